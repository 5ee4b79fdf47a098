package ws

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/semaj-12/7M-Quote-sub001/internal/domain/entity"
)

// Event type constants for WebSocket messages.
const (
	EventSlotFinalized   = "slot.finalized"
	EventSlotEscalated   = "slot.escalated"
	EventDocumentSummary = "document.summary"
)

// SlotFinalizedEvent is broadcast when a slot reaches FINALIZED.
type SlotFinalizedEvent struct {
	SlotID           string      `json:"slot_id"`
	DocID            string      `json:"doc_id"`
	Page             int         `json:"page"`
	EntityType       entity.Type `json:"entity_type"`
	AcceptedProvider string      `json:"accepted_provider"`
	Reason           string      `json:"selection_reason"`
	Disagreement     string      `json:"disagreement_class,omitempty"`
	Escalated        bool        `json:"escalated"`
	ValidationFailed bool        `json:"validation_failed"`
}

// SlotEscalatedEvent is broadcast each time the escalation controller calls
// an additional provider for a slot.
type SlotEscalatedEvent struct {
	SlotID     string      `json:"slot_id"`
	DocID      string      `json:"doc_id"`
	EntityType entity.Type `json:"entity_type"`
	Provider   string      `json:"provider"`
	Round      int         `json:"round"`
}

// DocumentSummaryEvent is broadcast once per document when fusion completes.
type DocumentSummaryEvent struct {
	DocID       string `json:"doc_id"`
	Mode        string `json:"mode"`
	ConfigHash  string `json:"ensemble_config_hash"`
	Slots       int    `json:"slots"`
	Escalations int    `json:"escalations"`
	ElapsedMS   int64  `json:"elapsed_ms"`
}

// BroadcastEvent is a convenience method that marshals a typed event and broadcasts it.
func (h *Hub) BroadcastEvent(ctx context.Context, eventType string, payload any) {
	data, err := json.Marshal(payload)
	if err != nil {
		slog.Error("marshal ws event payload", "type", eventType, "error", err)
		return
	}

	h.Broadcast(ctx, Message{
		Type:    eventType,
		Payload: json.RawMessage(data),
	})
}
