package fusion

import (
	"errors"
	"fmt"
	"sort"

	"github.com/google/uuid"

	"github.com/semaj-12/7M-Quote-sub001/internal/domain/entity"
)

// State is the lifecycle state of a slot.
type State string

const (
	StateNew        State = "NEW"
	StateCalibrated State = "CALIBRATED"
	StateScored     State = "SCORED"
	StateValidated  State = "VALIDATED"
	StateEscalating State = "ESCALATING"
	StateRescored   State = "RESCORED"
	StateFinalized  State = "FINALIZED"
)

var (
	ErrBadTransition = errors.New("invalid slot state transition")
	ErrSlotFinalized = errors.New("slot is finalized and immutable")
	ErrNoWinner      = errors.New("slot has no accepted candidate")
)

// transitions maps each state to the states reachable from it.
var transitions = map[State][]State{
	StateNew:        {StateCalibrated},
	StateCalibrated: {StateScored},
	StateScored:     {StateValidated},
	StateValidated:  {StateEscalating, StateFinalized},
	StateEscalating: {StateRescored, StateFinalized},
	StateRescored:   {StateEscalating, StateFinalized},
	StateFinalized:  {},
}

// Slot groups candidates from different providers that describe the same
// real drawing element (same page, same entity type, matched by geometry or
// value proximity). It accumulates candidates across escalation rounds and
// carries the state machine bounding those rounds.
type Slot struct {
	ID    string
	DocID string
	Page  int
	Type  entity.Type
	State State

	// Candidates in deterministic order (provider, then ID). The pipeline
	// owns these copies; callers never see partial fusion state.
	Candidates []*entity.Candidate

	// Queried tracks every provider consulted for this slot, including
	// escalation calls that failed or returned nothing.
	Queried map[string]bool

	Rounds           int
	ValidationFailed bool
	TimedOut         bool

	// base holds pre-boost calibrated confidence per candidate ID so
	// agreement boosts are recomputed, never stacked, across rounds.
	base   map[string]float64
	winner int
}

// NewSlot creates an empty slot for one (document, page, entity type) group.
func NewSlot(docID string, page int, et entity.Type) *Slot {
	return &Slot{
		ID:      uuid.NewString(),
		DocID:   docID,
		Page:    page,
		Type:    et,
		State:   StateNew,
		Queried: make(map[string]bool),
		base:    make(map[string]float64),
		winner:  -1,
	}
}

// Transition moves the slot to the next state, enforcing the machine
// NEW → CALIBRATED → SCORED → VALIDATED → [ESCALATING → RESCORED]* → FINALIZED.
func (s *Slot) Transition(next State) error {
	for _, allowed := range transitions[s.State] {
		if next == allowed {
			s.State = next
			return nil
		}
	}
	return fmt.Errorf("%w: %s -> %s", ErrBadTransition, s.State, next)
}

// Add inserts a candidate copy into the slot, keeping deterministic order.
// The finalized result must be a pure function of the accumulated candidate
// set regardless of provider response arrival order.
func (s *Slot) Add(c *entity.Candidate) error {
	if s.State == StateFinalized {
		return ErrSlotFinalized
	}
	cp := c.Clone()
	s.Candidates = append(s.Candidates, cp)
	s.Queried[cp.Provider] = true
	sort.SliceStable(s.Candidates, func(i, j int) bool {
		a, b := s.Candidates[i], s.Candidates[j]
		if a.Provider != b.Provider {
			return a.Provider < b.Provider
		}
		return a.ID < b.ID
	})
	s.winner = -1
	return nil
}

// Providers returns the distinct providers present in the slot, sorted.
func (s *Slot) Providers() []string {
	seen := make(map[string]bool, len(s.Candidates))
	var out []string
	for _, c := range s.Candidates {
		if !seen[c.Provider] {
			seen[c.Provider] = true
			out = append(out, c.Provider)
		}
	}
	sort.Strings(out)
	return out
}

// Winner returns the accepted candidate, or an error before arbitration.
func (s *Slot) Winner() (*entity.Candidate, error) {
	if s.winner < 0 || s.winner >= len(s.Candidates) {
		return nil, ErrNoWinner
	}
	return s.Candidates[s.winner], nil
}

// NotQueried returns the providers from order that have not yet been
// consulted for this slot, preserving order. Bounds escalation to at most
// len(order) rounds.
func (s *Slot) NotQueried(order []string) []string {
	var out []string
	for _, prov := range order {
		if !s.Queried[prov] {
			out = append(out, prov)
		}
	}
	return out
}
