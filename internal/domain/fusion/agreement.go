package fusion

import (
	"math"
	"sort"

	"github.com/semaj-12/7M-Quote-sub001/internal/domain/entity"
)

// Agrees reports whether two same-page, same-type candidates describe the
// same real element, using the type-specific match predicate.
func Agrees(a, b *entity.Candidate, cfg Config) bool {
	if a.Page != b.Page || a.Type != b.Type {
		return false
	}
	switch a.Type {
	case entity.TypeDimension:
		return dimensionsAgree(a.Dimension, b.Dimension, cfg)
	case entity.TypeTable:
		return tablesAgree(a, b, cfg)
	default:
		return a.BBox.Overlap(b.BBox) >= cfg.BBoxOverlap
	}
}

// dimensionsAgree compares unit-normalized values within epsilon and
// requires the same feature region when both candidates declare one.
func dimensionsAgree(a, b *entity.DimensionFields, cfg Config) bool {
	if a == nil || b == nil {
		return false
	}
	if a.Feature != "" && b.Feature != "" && a.Feature != b.Feature {
		return false
	}
	if a.Unit == entity.UnitMM && b.Unit == entity.UnitMM {
		return math.Abs(a.Value-b.Value) <= cfg.EpsilonMM
	}
	return math.Abs(a.ValueIn()-b.ValueIn()) <= cfg.EpsilonIn
}

// tablesAgree requires overlapping bounding boxes and a header set overlap
// ratio above the configured threshold.
func tablesAgree(a, b *entity.Candidate, cfg Config) bool {
	if a.Table == nil || b.Table == nil {
		return false
	}
	if !a.BBox.Intersects(b.BBox) {
		return false
	}
	return headerOverlap(a.Table.Headers, b.Table.Headers) >= cfg.TableHeaderOverlap
}

// headerOverlap returns |intersection| / |smaller set| for two header lists.
func headerOverlap(a, b []string) float64 {
	if len(a) == 0 || len(b) == 0 {
		return 0
	}
	set := make(map[string]bool, len(a))
	for _, h := range a {
		set[h] = true
	}
	shared := 0
	for _, h := range b {
		if set[h] {
			shared++
		}
	}
	smaller := len(a)
	if len(b) < smaller {
		smaller = len(b)
	}
	return float64(shared) / float64(smaller)
}

// BuildSlots groups candidates into slots. Candidates are sorted first so
// grouping is independent of provider response arrival order; each candidate
// joins the first slot whose members all share a page and type and where it
// agrees with at least one member, otherwise it opens a new slot.
func BuildSlots(docID string, cands []*entity.Candidate, cfg Config) []*Slot {
	sorted := make([]*entity.Candidate, len(cands))
	copy(sorted, cands)
	sort.SliceStable(sorted, func(i, j int) bool {
		a, b := sorted[i], sorted[j]
		if a.Page != b.Page {
			return a.Page < b.Page
		}
		if a.Type != b.Type {
			return a.Type < b.Type
		}
		if a.Provider != b.Provider {
			return a.Provider < b.Provider
		}
		return a.ID < b.ID
	})

	var slots []*Slot
	for _, c := range sorted {
		joined := false
		for _, s := range slots {
			if s.Page != c.Page || s.Type != c.Type {
				continue
			}
			for _, member := range s.Candidates {
				if Agrees(c, member, cfg) {
					_ = s.Add(c)
					joined = true
					break
				}
			}
			if joined {
				break
			}
		}
		if !joined {
			s := NewSlot(docID, c.Page, c.Type)
			_ = s.Add(c)
			slots = append(slots, s)
		}
	}
	return slots
}

// applyAgreement applies the agreement boost and records agreement partners.
// For every candidate agreeing with at least one candidate from a different
// provider, calibrated confidence is raised by cfg.AgreementBoost from its
// pre-boost baseline, clamped to 1.0. Runs before scoring so boosts affect
// selection.
func applyAgreement(s *Slot, cfg Config) {
	for _, c := range s.Candidates {
		partners := make(map[string]bool)
		for _, other := range s.Candidates {
			if other == c || other.Provider == c.Provider {
				continue
			}
			if Agrees(c, other, cfg) {
				partners[other.Provider] = true
			}
		}

		base := s.base[c.ID]
		if len(partners) > 0 {
			boosted := base + cfg.AgreementBoost
			if boosted > 1 {
				boosted = 1
			}
			c.Calibrated = boosted
			names := make([]string, 0, len(partners))
			for p := range partners {
				names = append(names, p)
			}
			sort.Strings(names)
			c.Audit.AgreementPartners = names
		} else {
			c.Calibrated = base
			c.Audit.AgreementPartners = nil
		}
		c.LowConf = c.Calibrated < cfg.LowConfThreshold
	}
}
