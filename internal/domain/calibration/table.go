// Package calibration maps raw provider confidences to comparable,
// probability-like scores keyed by (provider, entity type).
package calibration

import (
	"errors"
	"fmt"
	"sort"

	"github.com/semaj-12/7M-Quote-sub001/internal/domain/entity"
)

var (
	ErrCurveEmpty      = errors.New("calibration curve has no points")
	ErrCurveUnsorted   = errors.New("calibration curve points must be strictly increasing in raw")
	ErrPointOutOfRange = errors.New("calibration point values must be in [0,1]")
)

// Point maps one raw confidence to a calibrated confidence.
type Point struct {
	Raw        float64 `yaml:"raw" json:"raw"`
	Calibrated float64 `yaml:"calibrated" json:"calibrated"`
}

// Curve is a piecewise-linear calibration curve. Raw values outside the
// covered range clamp to the nearest endpoint.
type Curve struct {
	Points []Point `yaml:"points" json:"points"`
}

// Validate checks that the curve is non-empty, sorted, and in range.
func (c Curve) Validate() error {
	if len(c.Points) == 0 {
		return ErrCurveEmpty
	}
	prev := -1.0
	for i, p := range c.Points {
		if p.Raw < 0 || p.Raw > 1 || p.Calibrated < 0 || p.Calibrated > 1 {
			return fmt.Errorf("point %d: %w", i, ErrPointOutOfRange)
		}
		if p.Raw <= prev {
			return fmt.Errorf("point %d: %w", i, ErrCurveUnsorted)
		}
		prev = p.Raw
	}
	return nil
}

// Apply interpolates raw through the curve.
func (c Curve) Apply(raw float64) float64 {
	pts := c.Points
	if raw <= pts[0].Raw {
		return pts[0].Calibrated
	}
	last := pts[len(pts)-1]
	if raw >= last.Raw {
		return last.Calibrated
	}
	i := sort.Search(len(pts), func(i int) bool { return pts[i].Raw >= raw })
	lo, hi := pts[i-1], pts[i]
	t := (raw - lo.Raw) / (hi.Raw - lo.Raw)
	return lo.Calibrated + t*(hi.Calibrated-lo.Calibrated)
}

// Table holds calibration curves keyed by provider and entity type.
// A nil Table calibrates everything through the identity mapping.
type Table struct {
	curves map[string]map[entity.Type]Curve
}

// NewTable builds a Table from the given curve map, validating every curve.
func NewTable(curves map[string]map[entity.Type]Curve) (*Table, error) {
	for prov, byType := range curves {
		for et, curve := range byType {
			if err := curve.Validate(); err != nil {
				return nil, fmt.Errorf("curve %s/%s: %w", prov, et, err)
			}
		}
	}
	return &Table{curves: curves}, nil
}

// Lookup returns the curve for (provider, entity type) and whether one exists.
func (t *Table) Lookup(provider string, et entity.Type) (Curve, bool) {
	if t == nil || t.curves == nil {
		return Curve{}, false
	}
	byType, ok := t.curves[provider]
	if !ok {
		return Curve{}, false
	}
	c, ok := byType[et]
	return c, ok
}

// Apply calibrates raw confidence for (provider, entity type). When no curve
// exists the identity mapping is used; ok reports whether a curve was found
// so callers can log the fallback.
func (t *Table) Apply(provider string, et entity.Type, raw float64) (calibrated float64, ok bool) {
	curve, ok := t.Lookup(provider, et)
	if !ok {
		return clamp01(raw), false
	}
	return clamp01(curve.Apply(raw)), true
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
