package fusion_test

import (
	"testing"

	"github.com/semaj-12/7M-Quote-sub001/internal/domain/entity"
	"github.com/semaj-12/7M-Quote-sub001/internal/domain/fusion"
)

func validatedSlot(t *testing.T, cfg fusion.Config, c *entity.Candidate) *fusion.Slot {
	t.Helper()
	p := &fusion.Pipeline{Cfg: cfg}
	s := fusion.NewSlot("doc-1", 1, c.Type)
	if err := s.Add(c); err != nil {
		t.Fatalf("add: %v", err)
	}
	if _, err := p.Process(s); err != nil {
		t.Fatalf("process: %v", err)
	}
	return s
}

func TestValidate_TableDeclaredTotalMatches(t *testing.T) {
	cfg := testConfig()
	rows := [][]entity.Cell{
		{{Text: "W1"}, {Text: "4"}},
		{{Text: "W2"}, {Text: "6"}},
	}
	c := table("a", "reducto", []string{"MARK", "QTY"}, rows, 0.9)
	c.Table.DeclaredTotals = map[string]float64{"QTY": 10}

	s := validatedSlot(t, cfg, c)
	if s.ValidationFailed {
		t.Fatal("matching declared total must pass")
	}
}

func TestValidate_TableDeclaredTotalMismatch(t *testing.T) {
	cfg := testConfig()
	rows := [][]entity.Cell{
		{{Text: "W1"}, {Text: "4"}},
		{{Text: "W2"}, {Text: "6"}},
	}
	c := table("a", "reducto", []string{"MARK", "QTY"}, rows, 0.9)
	c.Table.DeclaredTotals = map[string]float64{"QTY": 14}

	s := validatedSlot(t, cfg, c)
	if !s.ValidationFailed {
		t.Fatal("declared total off by 4 must fail")
	}

	winner, err := s.Winner()
	if err != nil {
		t.Fatalf("winner: %v", err)
	}
	if winner.Table == nil {
		t.Fatal("failed validation must retain the entity")
	}
}

func TestValidate_TableEmptyCellsSkippedInSum(t *testing.T) {
	cfg := testConfig()
	rows := [][]entity.Cell{
		{{Text: "W1"}, {Text: "4"}},
		{{Text: "W2"}, {Text: ""}},
		{{Text: "W3"}, {Text: "6"}},
	}
	c := table("a", "reducto", []string{"MARK", "QTY"}, rows, 0.9)
	c.Table.DeclaredTotals = map[string]float64{"QTY": 10}

	if s := validatedSlot(t, cfg, c); s.ValidationFailed {
		t.Fatal("empty cells must be skipped, not treated as zero-and-fail")
	}
}

func TestValidate_TableUnparseableCellFails(t *testing.T) {
	cfg := testConfig()
	rows := [][]entity.Cell{
		{{Text: "W1"}, {Text: "4"}},
		{{Text: "W2"}, {Text: "six"}},
	}
	c := table("a", "reducto", []string{"MARK", "QTY"}, rows, 0.9)
	c.Table.DeclaredTotals = map[string]float64{"QTY": 4}

	if s := validatedSlot(t, cfg, c); !s.ValidationFailed {
		t.Fatal("non-numeric non-empty cell in a summed column must fail")
	}
}

func TestValidate_TableRequiredHeaders(t *testing.T) {
	cfg := testConfig()
	cfg.TableRequiredHeaders = []string{"MARK", "QTY"}

	ok := table("a", "reducto", []string{"Mark", "Qty", "MATERIAL"}, nil, 0.9)
	if s := validatedSlot(t, cfg, ok); s.ValidationFailed {
		t.Fatal("required headers matched case-insensitively must pass")
	}

	missing := table("b", "reducto", []string{"MARK", "MATERIAL"}, nil, 0.9)
	if s := validatedSlot(t, cfg, missing); !s.ValidationFailed {
		t.Fatal("missing required header must fail")
	}
}

func TestValidate_DimensionUnitAndRange(t *testing.T) {
	cfg := testConfig()

	if s := validatedSlot(t, cfg, dim("a", "reducto", 40.5, entity.UnitInch, 0.9)); s.ValidationFailed {
		t.Fatal("plausible inch dimension must pass")
	}

	bad := dim("b", "reducto", 40.5, entity.UnitInch, 0.9)
	bad.Dimension.Unit = "ft"
	if s := validatedSlot(t, cfg, bad); !s.ValidationFailed {
		t.Fatal("unknown unit must fail")
	}

	huge := dim("c", "reducto", 5000, entity.UnitInch, 0.9)
	if s := validatedSlot(t, cfg, huge); !s.ValidationFailed {
		t.Fatal("value beyond max_reasonable_in must fail")
	}

	neg := dim("d", "reducto", -3, entity.UnitInch, 0.9)
	if s := validatedSlot(t, cfg, neg); !s.ValidationFailed {
		t.Fatal("non-positive value must fail")
	}
}

func TestValidate_WeldComboAllowList(t *testing.T) {
	cfg := testConfig()

	if s := validatedSlot(t, cfg, weld("a", "reducto", "fillet", "GMAW", "arrow", 0.9)); s.ValidationFailed {
		t.Fatal("fillet+GMAW+arrow is allow-listed")
	}

	if s := validatedSlot(t, cfg, weld("b", "reducto", "fillet", "GTAW", "arrow", 0.9)); !s.ValidationFailed {
		t.Fatal("fillet+GTAW is not allow-listed and must fail")
	}

	// Empty side defaults to arrow for the membership check.
	if s := validatedSlot(t, cfg, weld("c", "reducto", "groove", "SAW", "", 0.9)); s.ValidationFailed {
		t.Fatal("empty side must default to arrow")
	}
}

func TestValidate_SectionSheetRef(t *testing.T) {
	cfg := testConfig()

	ok := &entity.Candidate{
		ID: "a", Type: entity.TypeSection, Page: 1, Provider: "reducto", Confidence: 0.9,
		BBox:    entity.BBox{X0: 0, Y0: 0, X1: 50, Y1: 50},
		Section: &entity.SectionFields{Label: "A", SheetRef: "A2.01"},
	}
	if s := validatedSlot(t, cfg, ok); s.ValidationFailed {
		t.Fatal("well-formed sheet ref must pass")
	}

	bad := &entity.Candidate{
		ID: "b", Type: entity.TypeSection, Page: 1, Provider: "reducto", Confidence: 0.9,
		BBox:    entity.BBox{X0: 0, Y0: 0, X1: 50, Y1: 50},
		Section: &entity.SectionFields{Label: "A", SheetRef: "sheet two"},
	}
	if s := validatedSlot(t, cfg, bad); !s.ValidationFailed {
		t.Fatal("malformed sheet ref must fail")
	}

	unlabeled := &entity.Candidate{
		ID: "c", Type: entity.TypeSection, Page: 1, Provider: "reducto", Confidence: 0.9,
		BBox:    entity.BBox{X0: 0, Y0: 0, X1: 50, Y1: 50},
		Section: &entity.SectionFields{Label: "  "},
	}
	if s := validatedSlot(t, cfg, unlabeled); !s.ValidationFailed {
		t.Fatal("blank label must fail")
	}
}

func TestValidate_DisabledValidatorPassesEverything(t *testing.T) {
	cfg := testConfig()
	cfg.ValidatorEnabled = false

	bad := dim("a", "reducto", 5000, entity.UnitInch, 0.9)
	if s := validatedSlot(t, cfg, bad); s.ValidationFailed {
		t.Fatal("disabled validator must not flag anything")
	}
}

func TestValidDateField(t *testing.T) {
	for _, v := range []string{"2026-08-28", "8/28/26", "08/28/2026"} {
		if !fusion.ValidDateField(v) {
			t.Fatalf("expected %q to be a valid date field", v)
		}
	}
	for _, v := range []string{"Aug 28", "2026/08/28", ""} {
		if fusion.ValidDateField(v) {
			t.Fatalf("expected %q to be rejected", v)
		}
	}
}

func TestValidSheetField(t *testing.T) {
	for _, v := range []string{"A2.01", "S5", " M10.2 "} {
		if !fusion.ValidSheetField(v) {
			t.Fatalf("expected %q to be a valid sheet number", v)
		}
	}
	for _, v := range []string{"2.01", "a2.01", "A2.01b", ""} {
		if fusion.ValidSheetField(v) {
			t.Fatalf("expected %q to be rejected", v)
		}
	}
}

func TestValidScaleField(t *testing.T) {
	for _, v := range []string{`1/4" = 1'-0"`, "1/8=1'", ` 3 / 16 " = 1'-0" `} {
		if !fusion.ValidScaleField(v) {
			t.Fatalf("expected %q to be a valid scale", v)
		}
	}
	for _, v := range []string{"NTS", "1:50", `1" = 1'`, ""} {
		if fusion.ValidScaleField(v) {
			t.Fatalf("expected %q to be rejected", v)
		}
	}
}
