package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/semaj-12/7M-Quote-sub001/internal/domain"
	"github.com/semaj-12/7M-Quote-sub001/internal/domain/fusion"
	"github.com/semaj-12/7M-Quote-sub001/internal/port/auditstore"
)

// Store implements auditstore.Store using PostgreSQL.
type Store struct {
	pool *pgxpool.Pool
}

// NewStore creates a new Store backed by the given connection pool.
func NewStore(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

// SaveDecision persists one per-slot decision record. Replays of the same
// slot (retried document runs) overwrite the previous record.
func (s *Store) SaveDecision(ctx context.Context, rec auditstore.DecisionRecord) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO fusion_decisions (
			slot_id, doc_id, page, entity_type,
			accepted_provider, accepted_id, reason, disagreement_class,
			fallbacks, agreement_partners,
			confidence_raw, confidence_calibrated,
			escalated, rounds, adjudicator_used, validation_failed, timed_out,
			ensemble_config_hash, recorded_at
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18,$19)
		ON CONFLICT (slot_id) DO UPDATE SET
			accepted_provider = EXCLUDED.accepted_provider,
			accepted_id = EXCLUDED.accepted_id,
			reason = EXCLUDED.reason,
			disagreement_class = EXCLUDED.disagreement_class,
			fallbacks = EXCLUDED.fallbacks,
			agreement_partners = EXCLUDED.agreement_partners,
			confidence_raw = EXCLUDED.confidence_raw,
			confidence_calibrated = EXCLUDED.confidence_calibrated,
			escalated = EXCLUDED.escalated,
			rounds = EXCLUDED.rounds,
			adjudicator_used = EXCLUDED.adjudicator_used,
			validation_failed = EXCLUDED.validation_failed,
			timed_out = EXCLUDED.timed_out,
			ensemble_config_hash = EXCLUDED.ensemble_config_hash,
			recorded_at = EXCLUDED.recorded_at`,
		rec.SlotID, rec.DocID, rec.Page, string(rec.EntityType),
		rec.AcceptedProvider, rec.AcceptedID, rec.Reason, nullIfEmpty(rec.Disagreement),
		pgTextArray(rec.Fallbacks), pgTextArray(rec.Partners),
		rec.Confidence, rec.Calibrated,
		rec.Escalated, rec.Rounds, rec.AdjudicatorUsed, rec.ValidationFailed, rec.TimedOut,
		rec.ConfigHash, rec.RecordedAt)
	if err != nil {
		return fmt.Errorf("save decision %s: %w", rec.SlotID, err)
	}
	return nil
}

// SaveSummary persists the per-document summary. The full summary goes into
// a JSONB column; mode and config hash are lifted out for querying.
func (s *Store) SaveSummary(ctx context.Context, sum *fusion.DocumentSummary) error {
	data, err := json.Marshal(sum)
	if err != nil {
		return fmt.Errorf("marshal summary: %w", err)
	}

	_, err = s.pool.Exec(ctx,
		`INSERT INTO document_summaries (doc_id, mode, ensemble_config_hash, summary, completed_at)
		 VALUES ($1,$2,$3,$4,$5)
		 ON CONFLICT (doc_id) DO UPDATE SET
			mode = EXCLUDED.mode,
			ensemble_config_hash = EXCLUDED.ensemble_config_hash,
			summary = EXCLUDED.summary,
			completed_at = EXCLUDED.completed_at`,
		sum.DocID, string(sum.Mode), sum.ConfigHash, data, sum.CompletedAt)
	if err != nil {
		return fmt.Errorf("save summary %s: %w", sum.DocID, err)
	}
	return nil
}

// ListDecisions returns the decision records for a document, ordered by page
// then slot ID.
func (s *Store) ListDecisions(ctx context.Context, docID string) ([]auditstore.DecisionRecord, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT slot_id, doc_id, page, entity_type,
			accepted_provider, accepted_id, reason, disagreement_class,
			fallbacks, agreement_partners,
			confidence_raw, confidence_calibrated,
			escalated, rounds, adjudicator_used, validation_failed, timed_out,
			ensemble_config_hash, recorded_at
		 FROM fusion_decisions WHERE doc_id = $1 ORDER BY page, slot_id`, docID)
	if err != nil {
		return nil, fmt.Errorf("list decisions: %w", err)
	}
	defer rows.Close()

	var recs []auditstore.DecisionRecord
	for rows.Next() {
		rec, err := scanDecision(rows)
		if err != nil {
			return nil, err
		}
		recs = append(recs, rec)
	}
	return recs, rows.Err()
}

// GetSummary returns the summary for a document, or ErrNotFound when the
// document has not completed a fusion run.
func (s *Store) GetSummary(ctx context.Context, docID string) (*fusion.DocumentSummary, error) {
	var data []byte
	err := s.pool.QueryRow(ctx,
		`SELECT summary FROM document_summaries WHERE doc_id = $1`, docID).Scan(&data)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("summary %s: %w", docID, domain.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get summary %s: %w", docID, err)
	}

	var sum fusion.DocumentSummary
	if err := json.Unmarshal(data, &sum); err != nil {
		return nil, fmt.Errorf("unmarshal summary %s: %w", docID, err)
	}
	return &sum, nil
}
