package fusion

import (
	"fmt"

	"github.com/semaj-12/7M-Quote-sub001/internal/domain/calibration"
)

// Adjudicator is the pluggable tie-breaking decision function invoked when
// escalation exhausts without resolution. It returns the index of the
// candidate to accept.
type Adjudicator func(s *Slot) int

// HighestConfidence is the built-in adjudicator: pick the candidate with the
// highest calibrated confidence, deterministic on ties via provider name.
func HighestConfidence(s *Slot) int {
	best := 0
	for i, c := range s.Candidates[1:] {
		cur := s.Candidates[best]
		if c.Calibrated > cur.Calibrated ||
			(c.Calibrated == cur.Calibrated && c.Provider < cur.Provider) {
			best = i + 1
		}
	}
	return best
}

// Pipeline runs the pure, in-memory fusion steps for one slot:
// Calibrator → Agreement Detector → Arbitration Engine → Sanity Validator.
// It holds only read-only state and may run concurrently across slots.
type Pipeline struct {
	Cfg   Config
	Calib *calibration.Table
}

// Process advances a NEW slot through CALIBRATED, SCORED and VALIDATED.
// Returns the providers that fell back to identity calibration, for logging.
func (p *Pipeline) Process(s *Slot) ([]string, error) {
	if err := s.Transition(StateCalibrated); err != nil {
		return nil, err
	}
	fallbacks := calibrateSlot(s, p.Calib, p.Cfg)

	if err := s.Transition(StateScored); err != nil {
		return fallbacks, err
	}
	applyAgreement(s, p.Cfg)
	if err := arbitrate(s, p.Cfg); err != nil {
		return fallbacks, err
	}

	if err := s.Transition(StateValidated); err != nil {
		return fallbacks, err
	}
	runValidation(s, p.Cfg)
	return fallbacks, nil
}

// Rescore re-runs calibration, agreement, arbitration and validation after
// an escalation call added a candidate. The slot must be ESCALATING.
func (p *Pipeline) Rescore(s *Slot) ([]string, error) {
	if s.State != StateEscalating {
		return nil, fmt.Errorf("%w: rescore from %s", ErrBadTransition, s.State)
	}
	fallbacks := calibrateSlot(s, p.Calib, p.Cfg)
	applyAgreement(s, p.Cfg)
	if err := arbitrate(s, p.Cfg); err != nil {
		return fallbacks, err
	}
	runValidation(s, p.Cfg)
	s.Rounds++
	return fallbacks, s.Transition(StateRescored)
}

// ShouldEscalate reports whether the escalation controller should request an
// additional provider for this slot. Only hotspot mode ever pays for extra
// calls: single and shadow modes never escalate, and in full mode every
// provider already ran up front.
func (p *Pipeline) ShouldEscalate(s *Slot) bool {
	if p.Cfg.Mode != ModeHotspot {
		return false
	}
	if !s.Unresolved(p.Cfg) {
		return false
	}
	// Stop paying for providers once an escalation round produced an
	// agreement partner for the winner, even below the threshold.
	if s.Rounds > 0 && s.AgreementFormed() {
		return false
	}
	return len(s.NotQueried(p.Cfg.EscalationOrder)) > 0
}

// Unresolved reports whether the slot still fails validation or sits below
// the low-confidence threshold.
func (s *Slot) Unresolved(cfg Config) bool {
	if s.ValidationFailed {
		return true
	}
	winner, err := s.Winner()
	if err != nil {
		return true
	}
	return winner.Calibrated < cfg.LowConfThreshold
}

// AgreementFormed reports whether the current winner has at least one
// agreement partner — one of the escalation stop conditions.
func (s *Slot) AgreementFormed() bool {
	winner, err := s.Winner()
	if err != nil {
		return false
	}
	return len(winner.Audit.AgreementPartners) > 0
}

// Adjudicate applies the adjudicator's choice to the slot and flags the
// winner accordingly.
func (p *Pipeline) Adjudicate(s *Slot, adj Adjudicator) error {
	if len(s.Candidates) == 0 {
		return ErrNoWinner
	}
	idx := adj(s)
	if idx < 0 || idx >= len(s.Candidates) {
		return fmt.Errorf("adjudicator returned out-of-range index %d: %w", idx, ErrNoWinner)
	}
	prev, _ := s.Winner()
	s.winner = idx
	winner := s.Candidates[idx]
	for i, c := range s.Candidates {
		c.Audit.Accepted = i == idx
	}
	if prev != nil && prev != winner {
		// Carry arbitration context onto the adjudicated winner.
		winner.Audit.Reason = prev.Audit.Reason
		winner.Audit.Disagreement = prev.Audit.Disagreement
		winner.Audit.Fallbacks = nil
		seen := map[string]bool{winner.Provider: true}
		for _, c := range s.Candidates {
			if !seen[c.Provider] {
				seen[c.Provider] = true
				winner.Audit.Fallbacks = append(winner.Audit.Fallbacks, c.Provider)
			}
		}
	}
	winner.Audit.AdjudicatorUsed = true
	return nil
}

// Finalize back-fills the winner, seals the slot and returns the immutable
// FusionResult. A result is published only here, atomically: partial fusion
// states are never exposed.
func (p *Pipeline) Finalize(s *Slot) (*Result, error) {
	winner, err := s.Winner()
	if err != nil {
		return nil, err
	}
	backfill(s, p.Cfg)
	// A slot that escalated and still exits unresolved carries the flag
	// regardless of which candidate won: every escalation round is part of
	// the decision's audit trail even when the calls failed.
	escalated := winner.Audit.Escalated || (s.Rounds > 0 && s.Unresolved(p.Cfg))
	if err := s.Transition(StateFinalized); err != nil {
		return nil, err
	}
	return &Result{
		SlotID:           s.ID,
		DocID:            s.DocID,
		Page:             s.Page,
		Type:             s.Type,
		Entity:           winner.Clone(),
		ValidationFailed: s.ValidationFailed,
		Escalated:        escalated,
		AdjudicatorUsed:  winner.Audit.AdjudicatorUsed,
		TimedOut:         s.TimedOut,
		Rounds:           s.Rounds,
	}, nil
}
