// Package entity defines the candidate entity schema shared by all
// extraction providers and the fusion engine.
package entity

import (
	"errors"
	"fmt"
)

// Type identifies the kind of drawing element a candidate describes.
type Type string

const (
	TypeTable     Type = "TABLE"
	TypeDimension Type = "DIMENSION"
	TypeWeld      Type = "WELD"
	TypeNote      Type = "NOTE"
	TypeSection   Type = "SECTION"
)

// Types lists all entity types in stable order.
var Types = []Type{TypeTable, TypeDimension, TypeWeld, TypeNote, TypeSection}

// Valid reports whether t is a known entity type.
func (t Type) Valid() bool {
	switch t {
	case TypeTable, TypeDimension, TypeWeld, TypeNote, TypeSection:
		return true
	}
	return false
}

var (
	ErrInvalidType      = errors.New("invalid entity type")
	ErrConfidenceRange  = errors.New("confidence must be in [0,1]")
	ErrMissingFields    = errors.New("candidate is missing the field payload for its type")
	ErrAmbiguousFields  = errors.New("candidate carries field payloads for more than one type")
	ErrProviderRequired = errors.New("provider is required")
)

// BBox is an axis-aligned bounding box in page coordinates.
type BBox struct {
	X0 float64 `json:"x0"`
	Y0 float64 `json:"y0"`
	X1 float64 `json:"x1"`
	Y1 float64 `json:"y1"`
}

// Area returns the box area, zero for degenerate boxes.
func (b BBox) Area() float64 {
	w := b.X1 - b.X0
	h := b.Y1 - b.Y0
	if w <= 0 || h <= 0 {
		return 0
	}
	return w * h
}

// Overlap returns the intersection-over-union of two boxes in [0,1].
func (b BBox) Overlap(o BBox) float64 {
	ix0 := max(b.X0, o.X0)
	iy0 := max(b.Y0, o.Y0)
	ix1 := min(b.X1, o.X1)
	iy1 := min(b.Y1, o.Y1)

	inter := BBox{X0: ix0, Y0: iy0, X1: ix1, Y1: iy1}.Area()
	if inter == 0 {
		return 0
	}
	union := b.Area() + o.Area() - inter
	if union <= 0 {
		return 0
	}
	return inter / union
}

// Intersects reports whether two boxes share any area.
func (b BBox) Intersects(o BBox) bool {
	return b.X0 < o.X1 && o.X0 < b.X1 && b.Y0 < o.Y1 && o.Y0 < b.Y1
}

// ProviderMeta carries per-call provider metadata used for auditing
// and tie-breaking.
type ProviderMeta struct {
	LatencyMS      int64  `json:"latency_ms"`
	AdapterVersion string `json:"adapter_version,omitempty"`
	SchemaVersion  string `json:"schema_version,omitempty"`
	PromptVersion  string `json:"prompt_version,omitempty"`
}

// Audit holds the fusion annotations attached to a candidate as it moves
// through calibration, agreement detection, arbitration and back-fill.
type Audit struct {
	Accepted          bool     `json:"accepted"`
	Reason            string   `json:"selection_reason,omitempty"`
	Disagreement      string   `json:"disagreement_class,omitempty"`
	Escalated         bool     `json:"escalated_from_hotspot"`
	Fallbacks         []string `json:"fallback_consulted,omitempty"`
	AgreementPartners []string `json:"agreement_partners,omitempty"`
	AdjudicatorUsed   bool     `json:"adjudicator_used"`
}

// Candidate is one provider's extraction of one drawing element. Exactly one
// field payload matching Type must be set.
type Candidate struct {
	ID         string       `json:"id"`
	Type       Type         `json:"entity_type"`
	Page       int          `json:"page"`
	BBox       BBox         `json:"bbox"`
	TextRaw    string       `json:"text_raw,omitempty"`
	Provider   string       `json:"provider"`
	Confidence float64      `json:"confidence"`
	Calibrated float64      `json:"confidence_calibrated"`
	LowConf    bool         `json:"low_confidence"`
	Meta       ProviderMeta `json:"provider_meta"`

	Table     *TableFields     `json:"table,omitempty"`
	Dimension *DimensionFields `json:"dimension,omitempty"`
	Weld      *WeldFields      `json:"weld,omitempty"`
	Note      *NoteFields      `json:"note,omitempty"`
	Section   *SectionFields   `json:"section,omitempty"`

	Audit Audit `json:"audit"`
}

// Validate checks the structural invariants of a candidate: a known type,
// confidences in [0,1], a provider name, and exactly one field payload
// matching the declared type.
func (c *Candidate) Validate() error {
	if !c.Type.Valid() {
		return fmt.Errorf("candidate %s: %w: %q", c.ID, ErrInvalidType, c.Type)
	}
	if c.Provider == "" {
		return fmt.Errorf("candidate %s: %w", c.ID, ErrProviderRequired)
	}
	if c.Confidence < 0 || c.Confidence > 1 {
		return fmt.Errorf("candidate %s: %w (raw %v)", c.ID, ErrConfidenceRange, c.Confidence)
	}
	if c.Calibrated < 0 || c.Calibrated > 1 {
		return fmt.Errorf("candidate %s: %w (calibrated %v)", c.ID, ErrConfidenceRange, c.Calibrated)
	}

	set := 0
	for _, present := range []bool{
		c.Table != nil, c.Dimension != nil, c.Weld != nil, c.Note != nil, c.Section != nil,
	} {
		if present {
			set++
		}
	}
	if set > 1 {
		return fmt.Errorf("candidate %s: %w", c.ID, ErrAmbiguousFields)
	}

	var ok bool
	switch c.Type {
	case TypeTable:
		ok = c.Table != nil
	case TypeDimension:
		ok = c.Dimension != nil
	case TypeWeld:
		ok = c.Weld != nil
	case TypeNote:
		ok = c.Note != nil
	case TypeSection:
		ok = c.Section != nil
	}
	if !ok {
		return fmt.Errorf("candidate %s (%s): %w", c.ID, c.Type, ErrMissingFields)
	}
	return nil
}

// Clone returns a deep copy of the candidate. The fusion pipeline never
// mutates caller-owned candidates.
func (c *Candidate) Clone() *Candidate {
	cp := *c
	cp.Table = c.Table.clone()
	cp.Dimension = c.Dimension.clone()
	cp.Weld = c.Weld.clone()
	cp.Note = c.Note.clone()
	cp.Section = c.Section.clone()
	cp.Audit.Fallbacks = append([]string(nil), c.Audit.Fallbacks...)
	cp.Audit.AgreementPartners = append([]string(nil), c.Audit.AgreementPartners...)
	return &cp
}
