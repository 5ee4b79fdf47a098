package postgres

import (
	"database/sql"

	"github.com/semaj-12/7M-Quote-sub001/internal/domain/entity"
	"github.com/semaj-12/7M-Quote-sub001/internal/port/auditstore"
)

// scannable abstracts pgx.Row and pgx.Rows for shared scan helpers.
type scannable interface {
	Scan(dest ...any) error
}

// nullIfEmpty returns nil for empty strings (for nullable text columns).
func nullIfEmpty(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

// pgTextArray converts a string slice to a pgx-compatible text array.
// nil slices become empty arrays to avoid SQL NULL.
func pgTextArray(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}

func scanDecision(row scannable) (auditstore.DecisionRecord, error) {
	var (
		rec          auditstore.DecisionRecord
		entityType   string
		disagreement sql.NullString
	)
	err := row.Scan(
		&rec.SlotID, &rec.DocID, &rec.Page, &entityType,
		&rec.AcceptedProvider, &rec.AcceptedID, &rec.Reason, &disagreement,
		&rec.Fallbacks, &rec.Partners,
		&rec.Confidence, &rec.Calibrated,
		&rec.Escalated, &rec.Rounds, &rec.AdjudicatorUsed, &rec.ValidationFailed, &rec.TimedOut,
		&rec.ConfigHash, &rec.RecordedAt,
	)
	if err != nil {
		return rec, err
	}
	rec.EntityType = entity.Type(entityType)
	rec.Disagreement = disagreement.String
	return rec, nil
}
