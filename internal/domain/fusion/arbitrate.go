package fusion

import (
	"fmt"
	"math"

	"github.com/semaj-12/7M-Quote-sub001/internal/domain/entity"
)

// Selection reasons, least specific first. A reason is only ever upgraded
// to a more specific one.
const (
	ReasonOwnerDefault    = "owner_default"
	ReasonHighestWeighted = "highest_weighted"
	ReasonAgreementBoost  = "agreement_boost"
	ReasonFieldBackfill   = "field_backfill"
)

// Disagreement classes.
const (
	DisagreeValue     = "value"
	DisagreeUnit      = "unit"
	DisagreeStructure = "structure"
)

var reasonRank = map[string]int{
	ReasonOwnerDefault:    0,
	ReasonHighestWeighted: 1,
	ReasonAgreementBoost:  2,
	ReasonFieldBackfill:   3,
}

// upgradeReason replaces current with next only when next is more specific.
// An unset reason always yields to next.
func upgradeReason(current, next string) string {
	if current == "" || reasonRank[next] > reasonRank[current] {
		return next
	}
	return current
}

// arbitrate scores every eligible candidate in the slot and marks the
// winner. score = weight[entity type][provider] * calibrated (post-boost).
// In shadow mode only the primary provider's candidates are eligible so
// background providers never alter the accepted candidate.
func arbitrate(s *Slot, cfg Config) error {
	eligible := make([]int, 0, len(s.Candidates))
	for i, c := range s.Candidates {
		if cfg.Mode == ModeShadow && c.Provider != cfg.PrimaryProvider {
			continue
		}
		eligible = append(eligible, i)
	}
	if len(eligible) == 0 {
		return ErrNoWinner
	}

	best := -1
	var bestScore float64
	for _, i := range eligible {
		c := s.Candidates[i]
		w, ok := cfg.Weight(s.Type, c.Provider)
		if !ok {
			return fmt.Errorf("%w: entity_type=%s provider=%s", ErrWeightMissing, s.Type, c.Provider)
		}
		score := w * c.Calibrated
		if best < 0 || score > bestScore || (score == bestScore && preferred(c, s.Candidates[best], s.Type, cfg)) {
			best = i
			bestScore = score
		}
	}

	// Would the pre-boost confidences have picked someone else? If so the
	// agreement boost materially affected the outcome.
	boostDecisive := false
	preBoostBest := -1
	var preBoostScore float64
	for _, i := range eligible {
		c := s.Candidates[i]
		w, _ := cfg.Weight(s.Type, c.Provider)
		score := w * s.base[c.ID]
		if preBoostBest < 0 || score > preBoostScore || (score == preBoostScore && preferred(c, s.Candidates[preBoostBest], s.Type, cfg)) {
			preBoostBest = i
			preBoostScore = score
		}
	}
	if preBoostBest != best {
		boostDecisive = true
	}

	winner := s.Candidates[best]
	s.winner = best

	for i, c := range s.Candidates {
		c.Audit.Accepted = i == best
	}

	// Fallbacks: the distinct providers of unselected candidates.
	winner.Audit.Fallbacks = nil
	seen := map[string]bool{winner.Provider: true}
	for _, c := range s.Candidates {
		if !seen[c.Provider] {
			seen[c.Provider] = true
			winner.Audit.Fallbacks = append(winner.Audit.Fallbacks, c.Provider)
		}
	}

	reason := ReasonOwnerDefault
	if contested(s, cfg) {
		reason = ReasonHighestWeighted
	}
	if boostDecisive {
		reason = upgradeReason(reason, ReasonAgreementBoost)
	}
	winner.Audit.Reason = upgradeReason(winner.Audit.Reason, reason)
	winner.Audit.Disagreement = classifyDisagreement(s, cfg)

	return nil
}

// contested reports whether selection required comparing distinct providers:
// more than one provider fielded a candidate and the winner is not simply
// the uncontested ownership default.
func contested(s *Slot, cfg Config) bool {
	provs := s.Providers()
	if len(provs) <= 1 {
		return false
	}
	winner := s.Candidates[s.winner]
	if winner.Provider == cfg.Owner(s.Type) && classifyDisagreement(s, cfg) == "" {
		// Full agreement resolved in the owner's favour; no real conflict.
		return false
	}
	return true
}

// preferred is the deterministic tie-break order: ownership-default provider,
// then lower provider latency, then lexical provider name.
func preferred(a, b *entity.Candidate, et entity.Type, cfg Config) bool {
	owner := cfg.Owner(et)
	if (a.Provider == owner) != (b.Provider == owner) {
		return a.Provider == owner
	}
	if a.Meta.LatencyMS != b.Meta.LatencyMS {
		return a.Meta.LatencyMS < b.Meta.LatencyMS
	}
	return a.Provider < b.Provider
}

// classifyDisagreement returns "" for a single candidate or full agreement,
// otherwise the dominant disagreement class across candidate pairs:
// "value" for numeric mismatch beyond epsilon, "unit" for declared-unit
// conflicts, "structure" for table shape or header mismatches.
func classifyDisagreement(s *Slot, cfg Config) string {
	if len(s.Candidates) < 2 {
		return ""
	}

	switch s.Type {
	case entity.TypeDimension:
		class := ""
		for i, a := range s.Candidates {
			for _, b := range s.Candidates[i+1:] {
				da, db := a.Dimension, b.Dimension
				if da == nil || db == nil {
					continue
				}
				if math.Abs(da.ValueIn()-db.ValueIn()) > cfg.EpsilonIn {
					return DisagreeValue
				}
				if da.Unit != db.Unit {
					class = DisagreeUnit
				}
			}
		}
		return class
	case entity.TypeTable:
		for i, a := range s.Candidates {
			for _, b := range s.Candidates[i+1:] {
				ta, tb := a.Table, b.Table
				if ta == nil || tb == nil {
					continue
				}
				if len(ta.Rows) != len(tb.Rows) {
					return DisagreeStructure
				}
				if headerOverlap(ta.Headers, tb.Headers) < cfg.TableHeaderOverlap {
					return DisagreeStructure
				}
			}
		}
		return ""
	default:
		for i, a := range s.Candidates {
			for _, b := range s.Candidates[i+1:] {
				if !Agrees(a, b, cfg) {
					return DisagreeStructure
				}
			}
		}
		return ""
	}
}
