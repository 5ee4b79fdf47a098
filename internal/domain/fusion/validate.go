package fusion

import (
	"math"
	"regexp"
	"strconv"
	"strings"

	"github.com/semaj-12/7M-Quote-sub001/internal/domain/entity"
)

// Title-block field patterns carried over from the extraction service's
// metadata checks. Used when NOTE candidates carry structured title-block
// text such as sheet references.
var (
	datePattern  = regexp.MustCompile(`^\d{4}-\d{2}-\d{2}$|^\d{1,2}/\d{1,2}/\d{2,4}$`)
	sheetPattern = regexp.MustCompile(`^[A-Z]\d+(?:\.\d+)?$`)
	scalePattern = regexp.MustCompile(`^\d+\s*/\s*\d+\s*"?\s*=\s*1['′]`)
)

// runValidation runs the entity-type-specific consistency checks on the
// slot's winner. Failures mark the slot validation_failed — the entity is
// retained, never discarded — and feed the escalation controller.
func runValidation(s *Slot, cfg Config) {
	if !cfg.ValidatorEnabled {
		s.ValidationFailed = false
		return
	}
	winner, err := s.Winner()
	if err != nil {
		s.ValidationFailed = true
		return
	}

	switch s.Type {
	case entity.TypeTable:
		s.ValidationFailed = !validTable(winner.Table, cfg)
	case entity.TypeDimension:
		s.ValidationFailed = !validDimension(winner.Dimension, cfg)
	case entity.TypeWeld:
		s.ValidationFailed = !validWeld(winner.Weld, cfg)
	case entity.TypeNote:
		s.ValidationFailed = winner.Note == nil || strings.TrimSpace(winner.Note.Text) == ""
	case entity.TypeSection:
		s.ValidationFailed = !validSection(winner.Section)
	}
}

// validTable checks declared totals against data-row sums within tolerance,
// minimum column count, and required header presence.
func validTable(t *entity.TableFields, cfg Config) bool {
	if t == nil {
		return false
	}
	if cfg.TableMinColumns > 0 && len(t.Headers) < cfg.TableMinColumns {
		return false
	}
	for _, required := range cfg.TableRequiredHeaders {
		found := false
		for _, h := range t.Headers {
			if strings.EqualFold(h, required) {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}

	for header, declared := range t.DeclaredTotals {
		col := columnIndex(t.Headers, header)
		if col < 0 {
			return false
		}
		sum, ok := columnSum(t, col)
		if !ok {
			return false
		}
		tolerance := cfg.TableSumTolerance * math.Max(math.Abs(declared), 1)
		if math.Abs(sum-declared) > tolerance {
			return false
		}
	}
	return true
}

func columnIndex(headers []string, name string) int {
	for i, h := range headers {
		if strings.EqualFold(h, name) {
			return i
		}
	}
	return -1
}

// columnSum totals the numeric cells of a column. Empty cells are skipped;
// a non-empty cell that does not parse fails the check.
func columnSum(t *entity.TableFields, col int) (float64, bool) {
	var sum float64
	for _, row := range t.Rows {
		if col >= len(row) {
			continue
		}
		text := strings.TrimSpace(row[col].Text)
		if text == "" {
			continue
		}
		v, err := strconv.ParseFloat(strings.ReplaceAll(text, ",", ""), 64)
		if err != nil {
			return 0, false
		}
		sum += v
	}
	return sum, true
}

// validDimension checks the declared unit and that the value normalized to
// inches is positive and within the configured plausible range.
func validDimension(d *entity.DimensionFields, cfg Config) bool {
	if d == nil {
		return false
	}
	if d.Unit != entity.UnitInch && d.Unit != entity.UnitMM {
		return false
	}
	in := d.ValueIn()
	return in > 0 && in <= cfg.MaxReasonableIn
}

// validWeld checks (symbol, process, side) against the allow-list. Unset
// side defaults to "arrow" for the membership check, matching how drawings
// omit the side on single-sided symbols.
func validWeld(w *entity.WeldFields, cfg Config) bool {
	if w == nil || w.Symbol == "" || w.Process == "" {
		return false
	}
	side := w.Side
	if side == "" {
		side = "arrow"
	}
	return cfg.WeldComboAllowed(w.Symbol, w.Process, side)
}

// validSection requires a label; a sheet reference, when present, must look
// like a sheet number (e.g. "A2.01").
func validSection(s *entity.SectionFields) bool {
	if s == nil || strings.TrimSpace(s.Label) == "" {
		return false
	}
	if s.SheetRef != "" && !sheetPattern.MatchString(strings.TrimSpace(s.SheetRef)) {
		return false
	}
	return true
}

// ValidDateField reports whether a title-block date value matches the
// accepted formats. Exposed for provider adapters normalizing metadata.
func ValidDateField(v string) bool {
	return datePattern.MatchString(strings.TrimSpace(v))
}

// ValidSheetField reports whether a value looks like a sheet number
// (e.g. "A2.01").
func ValidSheetField(v string) bool {
	return sheetPattern.MatchString(strings.TrimSpace(v))
}

// ValidScaleField reports whether a value looks like an imperial drawing
// scale (e.g. `1/4" = 1'-0"`).
func ValidScaleField(v string) bool {
	return scalePattern.MatchString(strings.TrimSpace(v))
}
