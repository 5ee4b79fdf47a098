// Package auditstore defines the port for persisting per-slot fusion
// decisions and per-document summaries.
package auditstore

import (
	"context"
	"time"

	"github.com/semaj-12/7M-Quote-sub001/internal/domain/entity"
	"github.com/semaj-12/7M-Quote-sub001/internal/domain/fusion"
)

// DecisionRecord is the audit trail for one finalized slot. One record is
// written per slot, after FINALIZED, with the full arbitration context needed
// to replay the decision offline.
type DecisionRecord struct {
	SlotID     string      `json:"slot_id"`
	DocID      string      `json:"doc_id"`
	Page       int         `json:"page"`
	EntityType entity.Type `json:"entity_type"`

	AcceptedProvider string   `json:"accepted_provider"`
	AcceptedID       string   `json:"accepted_id"`
	Reason           string   `json:"reason"`
	Disagreement     string   `json:"disagreement_class,omitempty"`
	Fallbacks        []string `json:"fallbacks,omitempty"`
	Partners         []string `json:"agreement_partners,omitempty"`

	Confidence       float64 `json:"confidence_raw"`
	Calibrated       float64 `json:"confidence_calibrated"`
	Escalated        bool    `json:"escalated"`
	Rounds           int     `json:"rounds"`
	AdjudicatorUsed  bool    `json:"adjudicator_used"`
	ValidationFailed bool    `json:"validation_failed"`
	TimedOut         bool    `json:"timed_out"`

	ConfigHash string    `json:"ensemble_config_hash"`
	RecordedAt time.Time `json:"ts"`
}

// NewDecisionRecord builds the audit record for a finalized result.
func NewDecisionRecord(r *fusion.Result, configHash string) DecisionRecord {
	a := r.Entity.Audit
	return DecisionRecord{
		SlotID:           r.SlotID,
		DocID:            r.DocID,
		Page:             r.Page,
		EntityType:       r.Type,
		AcceptedProvider: r.Entity.Provider,
		AcceptedID:       r.Entity.ID,
		Reason:           a.Reason,
		Disagreement:     a.Disagreement,
		Fallbacks:        a.Fallbacks,
		Partners:         a.AgreementPartners,
		Confidence:       r.Entity.Confidence,
		Calibrated:       r.Entity.Calibrated,
		Escalated:        r.Escalated,
		Rounds:           r.Rounds,
		AdjudicatorUsed:  r.AdjudicatorUsed,
		ValidationFailed: r.ValidationFailed,
		TimedOut:         r.TimedOut,
		ConfigHash:       configHash,
		RecordedAt:       time.Now().UTC(),
	}
}

// Store is the port interface for fusion audit persistence.
type Store interface {
	// SaveDecision persists one per-slot decision record.
	SaveDecision(ctx context.Context, rec DecisionRecord) error

	// SaveSummary persists the per-document summary, written exactly once
	// per document run.
	SaveSummary(ctx context.Context, sum *fusion.DocumentSummary) error

	// ListDecisions returns the decision records for a document, ordered
	// by page then slot ID.
	ListDecisions(ctx context.Context, docID string) ([]DecisionRecord, error)

	// GetSummary returns the summary for a document, or nil when the
	// document has not completed a fusion run.
	GetSummary(ctx context.Context, docID string) (*fusion.DocumentSummary, error)
}
