package fusion

import (
	"github.com/semaj-12/7M-Quote-sub001/internal/domain/calibration"
	"github.com/semaj-12/7M-Quote-sub001/internal/domain/entity"
)

// Calibrate maps the candidate's raw confidence through the calibration
// table for (provider, entity type) and flags low confidence against the
// configured threshold. When no curve exists the identity mapping applies;
// the returned bool lets the caller log that fallback. Pure, no I/O.
func Calibrate(c *entity.Candidate, tbl *calibration.Table, cfg Config) bool {
	calibrated, usedCurve := tbl.Apply(c.Provider, c.Type, c.Confidence)
	c.Calibrated = calibrated
	c.LowConf = calibrated < cfg.LowConfThreshold
	return usedCurve
}

// calibrateSlot calibrates every candidate not yet calibrated this round and
// records the pre-boost baseline used by agreement boosting. Returns the
// providers that fell back to identity calibration, for logging.
func calibrateSlot(s *Slot, tbl *calibration.Table, cfg Config) []string {
	var fallbacks []string
	for _, c := range s.Candidates {
		if _, done := s.base[c.ID]; done {
			// Re-entering at CALIBRATED after escalation: reset to the
			// baseline so boosts never stack across rounds.
			c.Calibrated = s.base[c.ID]
			c.LowConf = c.Calibrated < cfg.LowConfThreshold
			continue
		}
		if used := Calibrate(c, tbl, cfg); !used {
			fallbacks = append(fallbacks, c.Provider)
		}
		s.base[c.ID] = c.Calibrated
	}
	return fallbacks
}
