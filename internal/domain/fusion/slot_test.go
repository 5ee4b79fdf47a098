package fusion_test

import (
	"errors"
	"testing"

	"github.com/semaj-12/7M-Quote-sub001/internal/domain/entity"
	"github.com/semaj-12/7M-Quote-sub001/internal/domain/fusion"
)

func TestSlot_TransitionOrder(t *testing.T) {
	s := fusion.NewSlot("doc-1", 1, entity.TypeNote)
	steps := []fusion.State{
		fusion.StateCalibrated,
		fusion.StateScored,
		fusion.StateValidated,
		fusion.StateEscalating,
		fusion.StateRescored,
		fusion.StateEscalating,
		fusion.StateRescored,
		fusion.StateFinalized,
	}
	for _, next := range steps {
		if err := s.Transition(next); err != nil {
			t.Fatalf("transition to %s: %v", next, err)
		}
	}
}

func TestSlot_TransitionRejectsSkips(t *testing.T) {
	s := fusion.NewSlot("doc-1", 1, entity.TypeNote)
	if err := s.Transition(fusion.StateValidated); !errors.Is(err, fusion.ErrBadTransition) {
		t.Fatalf("expected ErrBadTransition, got %v", err)
	}
	if err := s.Transition(fusion.StateFinalized); !errors.Is(err, fusion.ErrBadTransition) {
		t.Fatalf("expected ErrBadTransition, got %v", err)
	}
}

func TestSlot_FinalizedIsTerminal(t *testing.T) {
	cfg := testConfig()
	p := &fusion.Pipeline{Cfg: cfg}
	s := runSlot(p, dim("a", "reducto", 40.5, entity.UnitInch, 0.9))
	if _, err := p.Finalize(s); err != nil {
		t.Fatalf("finalize: %v", err)
	}

	if err := s.Add(dim("b", "textract", 40.5, entity.UnitInch, 0.9)); !errors.Is(err, fusion.ErrSlotFinalized) {
		t.Fatalf("expected ErrSlotFinalized on Add, got %v", err)
	}
	if err := s.Transition(fusion.StateEscalating); !errors.Is(err, fusion.ErrBadTransition) {
		t.Fatalf("expected ErrBadTransition out of FINALIZED, got %v", err)
	}
}

func TestSlot_AddClonesInput(t *testing.T) {
	s := fusion.NewSlot("doc-1", 1, entity.TypeDimension)
	c := dim("a", "reducto", 40.5, entity.UnitInch, 0.9)
	if err := s.Add(c); err != nil {
		t.Fatalf("add: %v", err)
	}
	c.Dimension.Value = 99.9
	if s.Candidates[0].Dimension.Value != 40.5 {
		t.Fatal("slot must hold an independent copy of the candidate")
	}
}

func TestSlot_WinnerBeforeArbitration(t *testing.T) {
	s := fusion.NewSlot("doc-1", 1, entity.TypeDimension)
	_ = s.Add(dim("a", "reducto", 40.5, entity.UnitInch, 0.9))
	if _, err := s.Winner(); !errors.Is(err, fusion.ErrNoWinner) {
		t.Fatalf("expected ErrNoWinner, got %v", err)
	}
}

func TestSlot_NotQueried(t *testing.T) {
	s := fusion.NewSlot("doc-1", 1, entity.TypeDimension)
	_ = s.Add(dim("a", "reducto", 40.5, entity.UnitInch, 0.9))
	_ = s.Add(dim("b", "donut", 40.5, entity.UnitInch, 0.9))

	order := []string{"textract", "donut", "layoutlmv3"}
	got := s.NotQueried(order)
	if len(got) != 2 || got[0] != "textract" || got[1] != "layoutlmv3" {
		t.Fatalf("expected [textract layoutlmv3], got %v", got)
	}
}

func TestSlot_ProvidersSorted(t *testing.T) {
	s := fusion.NewSlot("doc-1", 1, entity.TypeDimension)
	_ = s.Add(dim("a", "textract", 40.5, entity.UnitInch, 0.9))
	_ = s.Add(dim("b", "reducto", 40.5, entity.UnitInch, 0.9))
	_ = s.Add(dim("c", "reducto", 40.5, entity.UnitInch, 0.8))

	got := s.Providers()
	if len(got) != 2 || got[0] != "reducto" || got[1] != "textract" {
		t.Fatalf("expected [reducto textract], got %v", got)
	}
}
