// Package ndjson implements the audit store port as an append-only
// newline-delimited JSON log. Used for local runs and offline replay where
// PostgreSQL is not available; one line per decision, flushed per write.
package ndjson

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"github.com/semaj-12/7M-Quote-sub001/internal/domain"
	"github.com/semaj-12/7M-Quote-sub001/internal/domain/fusion"
	"github.com/semaj-12/7M-Quote-sub001/internal/port/auditstore"
)

// Recorder writes decision records and summaries to NDJSON files under a
// base directory: {dir}/{doc_id}.decisions.ndjson and {dir}/{doc_id}.summary.json.
type Recorder struct {
	dir string

	mu        sync.Mutex
	decisions map[string][]auditstore.DecisionRecord
	summaries map[string]*fusion.DocumentSummary
}

// NewRecorder creates a Recorder writing under dir, creating it if needed.
func NewRecorder(dir string) (*Recorder, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create audit dir: %w", err)
	}
	return &Recorder{
		dir:       dir,
		decisions: make(map[string][]auditstore.DecisionRecord),
		summaries: make(map[string]*fusion.DocumentSummary),
	}, nil
}

// SaveDecision appends one record to the document's decision log.
func (r *Recorder) SaveDecision(_ context.Context, rec auditstore.DecisionRecord) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	path := filepath.Join(r.dir, rec.DocID+".decisions.ndjson")
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return fmt.Errorf("open decision log: %w", err)
	}
	defer func() { _ = f.Close() }()

	w := bufio.NewWriter(f)
	if err := json.NewEncoder(w).Encode(rec); err != nil {
		return fmt.Errorf("encode decision: %w", err)
	}
	if err := w.Flush(); err != nil {
		return fmt.Errorf("flush decision log: %w", err)
	}

	r.decisions[rec.DocID] = append(r.decisions[rec.DocID], rec)
	return nil
}

// SaveSummary writes the per-document summary file.
func (r *Recorder) SaveSummary(_ context.Context, sum *fusion.DocumentSummary) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	data, err := json.MarshalIndent(sum, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal summary: %w", err)
	}
	path := filepath.Join(r.dir, sum.DocID+".summary.json")
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write summary: %w", err)
	}

	r.summaries[sum.DocID] = sum
	return nil
}

// ListDecisions returns the in-memory view of this process's writes for the
// document, ordered by page then slot ID.
func (r *Recorder) ListDecisions(_ context.Context, docID string) ([]auditstore.DecisionRecord, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	recs := append([]auditstore.DecisionRecord(nil), r.decisions[docID]...)
	sort.Slice(recs, func(i, j int) bool {
		if recs[i].Page != recs[j].Page {
			return recs[i].Page < recs[j].Page
		}
		return recs[i].SlotID < recs[j].SlotID
	})
	return recs, nil
}

// GetSummary returns the summary written by this process, or ErrNotFound.
func (r *Recorder) GetSummary(_ context.Context, docID string) (*fusion.DocumentSummary, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	sum, ok := r.summaries[docID]
	if !ok {
		return nil, fmt.Errorf("summary %s: %w", docID, domain.ErrNotFound)
	}
	return sum, nil
}
