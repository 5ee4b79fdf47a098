package fusion_test

import (
	"testing"

	"github.com/semaj-12/7M-Quote-sub001/internal/domain/entity"
	"github.com/semaj-12/7M-Quote-sub001/internal/domain/fusion"
)

func TestArbitrate_SingleCandidate(t *testing.T) {
	cfg := testConfig()
	p := &fusion.Pipeline{Cfg: cfg}
	s := runSlot(p, dim("a", "reducto", 40.5, entity.UnitInch, 0.8))

	winner, err := s.Winner()
	if err != nil {
		t.Fatalf("winner: %v", err)
	}
	if !winner.Audit.Accepted {
		t.Fatal("expected winner accepted")
	}
	if winner.Calibrated != 0.8 {
		t.Fatalf("single candidate calibrated should equal calibrate output, got %v", winner.Calibrated)
	}
	if winner.Audit.Reason != fusion.ReasonOwnerDefault {
		t.Fatalf("expected owner_default, got %q", winner.Audit.Reason)
	}
	if len(winner.Audit.Fallbacks) != 0 {
		t.Fatalf("expected empty fallbacks, got %v", winner.Audit.Fallbacks)
	}
	if winner.Audit.Disagreement != "" {
		t.Fatalf("expected no disagreement, got %q", winner.Audit.Disagreement)
	}
}

func TestArbitrate_HighestWeightedWins(t *testing.T) {
	cfg := testConfig()
	p := &fusion.Pipeline{Cfg: cfg}
	// Non-owner textract has much higher confidence; values disagree so
	// they land in separate slots — build one slot by hand instead.
	s := fusion.NewSlot("doc-1", 1, entity.TypeDimension)
	_ = s.Add(dim("a", "reducto", 40.5, entity.UnitInch, 0.40))
	_ = s.Add(dim("b", "textract", 41.5, entity.UnitInch, 0.95))
	if _, err := p.Process(s); err != nil {
		t.Fatalf("process: %v", err)
	}

	winner, _ := s.Winner()
	if winner.Provider != "textract" {
		t.Fatalf("expected textract (0.9*0.95) over reducto (1.0*0.40), got %s", winner.Provider)
	}
	if winner.Audit.Reason != fusion.ReasonHighestWeighted {
		t.Fatalf("expected highest_weighted, got %q", winner.Audit.Reason)
	}
	if len(winner.Audit.Fallbacks) != 1 || winner.Audit.Fallbacks[0] != "reducto" {
		t.Fatalf("expected fallbacks [reducto], got %v", winner.Audit.Fallbacks)
	}
	if winner.Audit.Disagreement != fusion.DisagreeValue {
		t.Fatalf("expected value disagreement, got %q", winner.Audit.Disagreement)
	}
}

func TestArbitrate_TieBreakOwnershipDefault(t *testing.T) {
	cfg := testConfig()
	for _, et := range entity.Types {
		cfg.ProviderWeights[et]["textract"] = 1.0
	}
	p := &fusion.Pipeline{Cfg: cfg}

	s := fusion.NewSlot("doc-1", 1, entity.TypeDimension)
	a := dim("a", "reducto", 40.5, entity.UnitInch, 0.8)
	b := dim("b", "textract", 40.5, entity.UnitInch, 0.8)
	_ = s.Add(a)
	_ = s.Add(b)
	if _, err := p.Process(s); err != nil {
		t.Fatalf("process: %v", err)
	}

	winner, _ := s.Winner()
	if winner.Provider != "reducto" {
		t.Fatalf("equal scores should break to ownership default reducto, got %s", winner.Provider)
	}
}

func TestArbitrate_TieBreakLatency(t *testing.T) {
	cfg := testConfig()
	cfg.OwnershipDefaults[entity.TypeDimension] = "donut" // owner absent from slot
	for _, et := range entity.Types {
		cfg.ProviderWeights[et]["textract"] = 1.0
	}
	p := &fusion.Pipeline{Cfg: cfg}

	s := fusion.NewSlot("doc-1", 1, entity.TypeDimension)
	a := dim("a", "reducto", 40.5, entity.UnitInch, 0.8)
	a.Meta.LatencyMS = 900
	b := dim("b", "textract", 40.5, entity.UnitInch, 0.8)
	b.Meta.LatencyMS = 120
	_ = s.Add(a)
	_ = s.Add(b)
	if _, err := p.Process(s); err != nil {
		t.Fatalf("process: %v", err)
	}

	winner, _ := s.Winner()
	if winner.Provider != "textract" {
		t.Fatalf("expected lower-latency textract on tie, got %s", winner.Provider)
	}
}

func TestArbitrate_MissingWeightFails(t *testing.T) {
	cfg := testConfig()
	delete(cfg.ProviderWeights[entity.TypeDimension], "textract")
	p := &fusion.Pipeline{Cfg: cfg}

	s := fusion.NewSlot("doc-1", 1, entity.TypeDimension)
	_ = s.Add(dim("a", "reducto", 40.5, entity.UnitInch, 0.8))
	_ = s.Add(dim("b", "textract", 40.5, entity.UnitInch, 0.8))
	if _, err := p.Process(s); err == nil {
		t.Fatal("expected missing weight error")
	}
}

func TestArbitrate_ShadowModeIgnoresBackgroundProviders(t *testing.T) {
	cfg := testConfig()
	cfg.Mode = fusion.ModeShadow
	p := &fusion.Pipeline{Cfg: cfg}

	s := fusion.NewSlot("doc-1", 1, entity.TypeDimension)
	_ = s.Add(dim("a", "reducto", 40.5, entity.UnitInch, 0.30))
	_ = s.Add(dim("b", "textract", 41.9, entity.UnitInch, 0.99))
	if _, err := p.Process(s); err != nil {
		t.Fatalf("process: %v", err)
	}

	winner, _ := s.Winner()
	if winner.Provider != "reducto" {
		t.Fatalf("shadow mode must accept the primary provider, got %s", winner.Provider)
	}
}

func TestArbitrate_UnitDisagreement(t *testing.T) {
	cfg := testConfig()
	p := &fusion.Pipeline{Cfg: cfg}

	s := fusion.NewSlot("doc-1", 1, entity.TypeDimension)
	_ = s.Add(dim("a", "reducto", 40.5, entity.UnitInch, 0.8))
	_ = s.Add(dim("b", "textract", 40.5*entity.MMPerInch, entity.UnitMM, 0.7))
	if _, err := p.Process(s); err != nil {
		t.Fatalf("process: %v", err)
	}

	winner, _ := s.Winner()
	if winner.Audit.Disagreement != fusion.DisagreeUnit {
		t.Fatalf("expected unit disagreement, got %q", winner.Audit.Disagreement)
	}
}

func TestArbitrate_StructureDisagreement(t *testing.T) {
	cfg := testConfig()
	p := &fusion.Pipeline{Cfg: cfg}

	rows3 := [][]entity.Cell{{{Text: "W1"}}, {{Text: "W2"}}, {{Text: "W3"}}}
	rows2 := [][]entity.Cell{{{Text: "W1"}}, {{Text: "W2"}}}

	s := fusion.NewSlot("doc-1", 1, entity.TypeTable)
	_ = s.Add(table("a", "reducto", []string{"MARK", "QTY"}, rows3, 0.8))
	_ = s.Add(table("b", "textract", []string{"MARK", "QTY"}, rows2, 0.7))
	if _, err := p.Process(s); err != nil {
		t.Fatalf("process: %v", err)
	}

	winner, _ := s.Winner()
	if winner.Audit.Disagreement != fusion.DisagreeStructure {
		t.Fatalf("expected structure disagreement, got %q", winner.Audit.Disagreement)
	}
}
