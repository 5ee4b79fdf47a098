package fusion

import (
	"time"

	"github.com/semaj-12/7M-Quote-sub001/internal/domain/entity"
)

// Result is the accepted candidate for a finalized slot plus its audit
// annotations. Immutable once produced.
type Result struct {
	SlotID           string            `json:"slot_id"`
	DocID            string            `json:"doc_id"`
	Page             int               `json:"page"`
	Type             entity.Type       `json:"entity_type"`
	Entity           *entity.Candidate `json:"entity"`
	ValidationFailed bool              `json:"validation_failed"`
	Escalated        bool              `json:"escalated"`
	AdjudicatorUsed  bool              `json:"adjudicator_used"`
	TimedOut         bool              `json:"timed_out"`
	Rounds           int               `json:"rounds"`
}

// DocumentSummary aggregates a document's fusion run after every slot has
// reached FINALIZED. Produced exactly once per document.
type DocumentSummary struct {
	DocID              string              `json:"doc_id"`
	Mode               Mode                `json:"mode"`
	ConfigHash         string              `json:"ensemble_config_hash"`
	EntityCounts       map[entity.Type]int `json:"entities"`
	AcceptedByProvider map[string]int      `json:"accepted_by_provider"`
	LatencyByProvider  map[string]int64    `json:"latency_ms"`
	AdapterVersions    map[string]string   `json:"adapters"`
	Slots              int                 `json:"slots"`
	ConflictsDetected  int                 `json:"conflicts_detected"`
	Escalations        int                 `json:"escalations"`
	Adjudications      int                 `json:"adjudications"`
	ValidationFailures int                 `json:"validation_failures"`
	TimedOutSlots      int                 `json:"timed_out_slots"`
	ElapsedMS          int64               `json:"elapsed_ms"`
	CompletedAt        time.Time           `json:"completed_at"`
}

// Summarize rolls finalized results up into the per-document summary.
// Entity counts equal the accepted entities per type across all slots.
func Summarize(docID string, cfg Config, results []*Result, elapsed time.Duration, adapterVersions map[string]string) *DocumentSummary {
	sum := &DocumentSummary{
		DocID:              docID,
		Mode:               cfg.Mode,
		ConfigHash:         cfg.Hash(),
		EntityCounts:       make(map[entity.Type]int),
		AcceptedByProvider: make(map[string]int),
		LatencyByProvider:  make(map[string]int64),
		AdapterVersions:    adapterVersions,
		Slots:              len(results),
		ElapsedMS:          elapsed.Milliseconds(),
		CompletedAt:        time.Now().UTC(),
	}

	for _, r := range results {
		sum.EntityCounts[r.Type]++
		sum.AcceptedByProvider[r.Entity.Provider]++
		sum.LatencyByProvider[r.Entity.Provider] += r.Entity.Meta.LatencyMS
		if r.Entity.Audit.Disagreement != "" {
			sum.ConflictsDetected++
		}
		if r.Escalated {
			sum.Escalations++
		}
		if r.AdjudicatorUsed {
			sum.Adjudications++
		}
		if r.ValidationFailed {
			sum.ValidationFailures++
		}
		if r.TimedOut {
			sum.TimedOutSlots++
		}
	}
	return sum
}
