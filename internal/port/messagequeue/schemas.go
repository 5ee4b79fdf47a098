package messagequeue

import "github.com/semaj-12/7M-Quote-sub001/internal/domain/entity"

// CandidateBatchPayload is the schema for candidates.{provider} messages:
// one provider's extraction output for one document.
type CandidateBatchPayload struct {
	DocID      string              `json:"doc_id"`
	Provider   string              `json:"provider"`
	Candidates []*entity.Candidate `json:"candidates"`
}

// FusionRequestedPayload is the schema for fusion.requested messages.
type FusionRequestedPayload struct {
	DocID       string `json:"doc_id"`
	DocumentURI string `json:"document_uri"`
	Mode        string `json:"mode,omitempty"`
}

// FusionResultPayload is the schema for fusion.result messages: one
// finalized slot.
type FusionResultPayload struct {
	SlotID           string            `json:"slot_id"`
	DocID            string            `json:"doc_id"`
	Page             int               `json:"page"`
	EntityType       entity.Type       `json:"entity_type"`
	Entity           *entity.Candidate `json:"entity"`
	ValidationFailed bool              `json:"validation_failed"`
	Escalated        bool              `json:"escalated"`
	Rounds           int               `json:"rounds"`
}

// FusionEscalatePayload is the schema for fusion.escalate messages, emitted
// once per escalation call for telemetry.
type FusionEscalatePayload struct {
	SlotID     string      `json:"slot_id"`
	DocID      string      `json:"doc_id"`
	EntityType entity.Type `json:"entity_type"`
	Provider   string      `json:"provider"`
	Round      int         `json:"round"`
}
