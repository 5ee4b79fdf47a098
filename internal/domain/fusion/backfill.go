package fusion

import (
	"sort"

	"github.com/semaj-12/7M-Quote-sub001/internal/domain/entity"
)

// backfill fills missing structured fields in the winner from agreeing or
// higher-confidence peers. DIMENSION values are never blended or averaged:
// averaging could mask a genuine measurement error, so merging for
// dimensions is limited to the agreement partners already recorded.
// NOTE and SECTION winners stand as-is.
// Returns true when any merge was applied, which upgrades the selection
// reason to "field_backfill".
func backfill(s *Slot, cfg Config) bool {
	winner, err := s.Winner()
	if err != nil {
		return false
	}

	peers := make([]*entity.Candidate, 0, len(s.Candidates)-1)
	for _, c := range s.Candidates {
		if c != winner && c.Calibrated >= winner.Calibrated {
			peers = append(peers, c)
		}
	}
	if len(peers) == 0 {
		return false
	}
	// Highest-confidence peer first; provider name breaks exact ties so
	// the merge is deterministic.
	sort.SliceStable(peers, func(i, j int) bool {
		if peers[i].Calibrated != peers[j].Calibrated {
			return peers[i].Calibrated > peers[j].Calibrated
		}
		return peers[i].Provider < peers[j].Provider
	})

	merged := false
	switch s.Type {
	case entity.TypeTable:
		merged = backfillTable(winner, peers)
	case entity.TypeWeld:
		merged = backfillWeld(winner, peers)
	}

	if merged {
		winner.Audit.Reason = upgradeReason(winner.Audit.Reason, ReasonFieldBackfill)
	}
	return merged
}

// backfillTable copies text into each empty winner cell from the first peer
// holding a non-empty cell at an overlapping bbox, recording per-cell
// provenance in Cell.Source.
func backfillTable(winner *entity.Candidate, peers []*entity.Candidate) bool {
	merged := false
	tbl := winner.Table
	for ri := range tbl.Rows {
		for ci := range tbl.Rows[ri] {
			cell := &tbl.Rows[ri][ci]
			if cell.Text != "" {
				continue
			}
			for _, peer := range peers {
				if peer.Table == nil {
					continue
				}
				pc, ok := peer.Table.Cell(ri, ci)
				if !ok || pc.Text == "" {
					continue
				}
				if cell.BBox.Area() > 0 && pc.BBox.Area() > 0 && !cell.BBox.Intersects(pc.BBox) {
					continue
				}
				cell.Text = pc.Text
				cell.Source = peer.Provider
				merged = true
				break
			}
		}
	}
	return merged
}

// backfillWeld copies each unset weld field from the highest-confidence peer
// that has it set.
func backfillWeld(winner *entity.Candidate, peers []*entity.Candidate) bool {
	merged := false
	w := winner.Weld
	for _, peer := range peers {
		p := peer.Weld
		if p == nil {
			continue
		}
		merged = fillString(&w.Side, p.Side) || merged
		merged = fillString(&w.Process, p.Process) || merged
		merged = fillString(&w.Symbol, p.Symbol) || merged
		merged = fillFloat(&w.Size, p.Size) || merged
		merged = fillString(&w.SizeUnit, p.SizeUnit) || merged
		merged = fillFloat(&w.Length, p.Length) || merged
		merged = fillFloat(&w.Pitch, p.Pitch) || merged
		merged = fillString(&w.Contour, p.Contour) || merged
		merged = fillString(&w.Finish, p.Finish) || merged
		merged = fillString(&w.Tail, p.Tail) || merged
	}
	return merged
}

func fillString(dst *string, src string) bool {
	if *dst != "" || src == "" {
		return false
	}
	*dst = src
	return true
}

func fillFloat(dst **float64, src *float64) bool {
	if *dst != nil || src == nil {
		return false
	}
	v := *src
	*dst = &v
	return true
}
