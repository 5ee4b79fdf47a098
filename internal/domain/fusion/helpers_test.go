package fusion_test

import (
	"github.com/semaj-12/7M-Quote-sub001/internal/domain/entity"
	"github.com/semaj-12/7M-Quote-sub001/internal/domain/fusion"
)

// testConfig returns a full-mode config with weights for the providers the
// tests exercise.
func testConfig() fusion.Config {
	cfg := fusion.DefaultConfig()
	cfg.Mode = fusion.ModeFull
	cfg.ProviderWeights = map[entity.Type]map[string]float64{}
	for _, et := range entity.Types {
		cfg.ProviderWeights[et] = map[string]float64{
			"reducto":    1.0,
			"textract":   0.9,
			"donut":      0.8,
			"layoutlmv3": 0.7,
		}
	}
	return cfg
}

func dim(id, provider string, value float64, unit string, conf float64) *entity.Candidate {
	return &entity.Candidate{
		ID:         id,
		Type:       entity.TypeDimension,
		Page:       1,
		BBox:       entity.BBox{X0: 100, Y0: 100, X1: 160, Y1: 120},
		Provider:   provider,
		Confidence: conf,
		Dimension:  &entity.DimensionFields{Value: value, Unit: unit},
	}
}

func weld(id, provider, symbol, process, side string, conf float64) *entity.Candidate {
	return &entity.Candidate{
		ID:         id,
		Type:       entity.TypeWeld,
		Page:       1,
		BBox:       entity.BBox{X0: 10, Y0: 10, X1: 30, Y1: 30},
		Provider:   provider,
		Confidence: conf,
		Weld:       &entity.WeldFields{Symbol: symbol, Process: process, Side: side},
	}
}

func note(id, provider, text string, conf float64, box entity.BBox) *entity.Candidate {
	return &entity.Candidate{
		ID:         id,
		Type:       entity.TypeNote,
		Page:       1,
		BBox:       box,
		Provider:   provider,
		Confidence: conf,
		Note:       &entity.NoteFields{Text: text},
	}
}

func table(id, provider string, headers []string, rows [][]entity.Cell, conf float64) *entity.Candidate {
	return &entity.Candidate{
		ID:         id,
		Type:       entity.TypeTable,
		Page:       1,
		BBox:       entity.BBox{X0: 0, Y0: 0, X1: 200, Y1: 100},
		Provider:   provider,
		Confidence: conf,
		Table:      &entity.TableFields{Headers: headers, Rows: rows},
	}
}

// runSlot drives one slot through the pure pipeline to VALIDATED.
func runSlot(p *fusion.Pipeline, cands ...*entity.Candidate) *fusion.Slot {
	s := fusion.NewSlot("doc-1", 1, cands[0].Type)
	for _, c := range cands {
		_ = s.Add(c)
	}
	if _, err := p.Process(s); err != nil {
		panic(err)
	}
	return s
}
