package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"golang.org/x/sync/errgroup"

	"github.com/semaj-12/7M-Quote-sub001/internal/adapter/otel"
	"github.com/semaj-12/7M-Quote-sub001/internal/adapter/ws"
	"github.com/semaj-12/7M-Quote-sub001/internal/config"
	"github.com/semaj-12/7M-Quote-sub001/internal/domain/calibration"
	"github.com/semaj-12/7M-Quote-sub001/internal/domain/entity"
	"github.com/semaj-12/7M-Quote-sub001/internal/domain/fusion"
	"github.com/semaj-12/7M-Quote-sub001/internal/port/auditstore"
	"github.com/semaj-12/7M-Quote-sub001/internal/port/broadcast"
	"github.com/semaj-12/7M-Quote-sub001/internal/port/cache"
	"github.com/semaj-12/7M-Quote-sub001/internal/port/messagequeue"
	"github.com/semaj-12/7M-Quote-sub001/internal/port/provider"
)

// FusionRequest describes one document fusion run.
type FusionRequest struct {
	DocID       string        `json:"doc_id"`
	DocumentURI string        `json:"document_uri"`
	Pages       []int         `json:"pages,omitempty"`
	Types       []entity.Type `json:"types,omitempty"`

	// Mode overrides the configured ensemble mode for this run when set.
	Mode string `json:"mode,omitempty"`
}

// FusionOutcome is the full output of one document fusion run.
type FusionOutcome struct {
	Summary *fusion.DocumentSummary `json:"summary"`
	Results []*fusion.Result        `json:"results"`
}

// FusionService orchestrates document fusion: it fans extraction calls out
// to the provider adapters, groups candidates into slots, runs each slot
// through the fusion pipeline (escalating where the mode allows), and
// persists and publishes the finalized decisions.
type FusionService struct {
	cfg      *config.Config
	calib    *calibration.Table
	invokers map[string]provider.Invoker
	audit    auditstore.Store
	queue    messagequeue.Queue
	hub      broadcast.Broadcaster
	metrics  *otel.Metrics
	escCache cache.Cache
	log      *slog.Logger

	// pending buffers candidate batches pushed over the bus until the
	// document's fusion run is requested.
	pendingMu sync.Mutex
	pending   map[string][]*entity.Candidate
}

// NewFusionService wires the fusion orchestrator. queue, hub, metrics and
// escCache are optional; audit is required.
func NewFusionService(
	cfg *config.Config,
	calib *calibration.Table,
	invokers []provider.Invoker,
	audit auditstore.Store,
	queue messagequeue.Queue,
	hub broadcast.Broadcaster,
	metrics *otel.Metrics,
	escCache cache.Cache,
	log *slog.Logger,
) (*FusionService, error) {
	if audit == nil {
		return nil, fmt.Errorf("fusion service requires an audit store")
	}
	if log == nil {
		log = slog.Default()
	}

	byName := make(map[string]provider.Invoker, len(invokers))
	for _, inv := range invokers {
		name := inv.Name()
		if _, dup := byName[name]; dup {
			return nil, fmt.Errorf("duplicate provider adapter %q", name)
		}
		byName[name] = inv
	}

	return &FusionService{
		cfg:      cfg,
		calib:    calib,
		invokers: byName,
		audit:    audit,
		queue:    queue,
		hub:      hub,
		metrics:  metrics,
		escCache: escCache,
		log:      log,
		pending:  make(map[string][]*entity.Candidate),
	}, nil
}

// FuseDocument runs the full fusion pipeline for one document and returns
// the per-document summary plus every finalized slot result. Slots still
// open when the document deadline fires finalize with their best candidate
// so far, flagged timed_out.
func (s *FusionService) FuseDocument(ctx context.Context, req FusionRequest) (*FusionOutcome, error) {
	start := time.Now()

	cfg := s.cfg.Ensemble
	if req.Mode != "" {
		m := fusion.Mode(req.Mode)
		if !m.Valid() {
			return nil, fmt.Errorf("invalid fusion mode %q", req.Mode)
		}
		cfg.Mode = m
	}

	types := req.Types
	if len(types) == 0 {
		types = entity.Types
	}

	initial, err := s.initialProviders(cfg)
	if err != nil {
		return nil, err
	}

	// Weights must cover every provider that can contribute a candidate;
	// a missing (type, provider) weight is fatal before any sidecar call.
	reachable := initial
	if cfg.Mode == fusion.ModeHotspot {
		reachable = appendMissing(reachable, cfg.EscalationOrder)
	}
	if err := cfg.RequireWeights(types, reachable); err != nil {
		return nil, fmt.Errorf("ensemble weights: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, s.cfg.DocumentTimeout)
	defer cancel()
	ctx, span := otel.StartDocumentSpan(ctx, req.DocID, string(cfg.Mode), cfg.Hash())
	defer span.End()

	pipe := &fusion.Pipeline{Cfg: cfg, Calib: s.calib}

	cands, versions := s.collect(ctx, req, types, initial, cfg.MaxParallel)

	// Merge in any candidate batches the sidecars pushed over the bus
	// ahead of the fusion request. The mode's provider gate applies to
	// pushed candidates exactly as it does to invoked ones, and a pushed
	// candidate without a weight entry is dropped rather than allowed to
	// abort the run.
	for _, c := range s.takePending(req.DocID) {
		if !pendingAllowed(cfg, c.Provider) {
			s.log.Debug("dropping pushed candidate outside mode provider set",
				"doc_id", req.DocID, "provider", c.Provider, "mode", cfg.Mode)
			continue
		}
		if _, ok := cfg.Weight(c.Type, c.Provider); !ok {
			s.log.Warn("dropping pushed candidate without weight entry",
				"doc_id", req.DocID, "provider", c.Provider, "entity_type", c.Type)
			continue
		}
		cands = append(cands, c)
		if _, seen := versions[c.Provider]; !seen && c.Meta.AdapterVersion != "" {
			versions[c.Provider] = c.Meta.AdapterVersion
		}
	}

	slots := fusion.BuildSlots(req.DocID, cands, cfg)

	results := make([]*fusion.Result, len(slots))
	g, gctx := errgroup.WithContext(ctx)
	if cfg.MaxParallel > 0 {
		g.SetLimit(cfg.MaxParallel)
	}
	for i, slot := range slots {
		g.Go(func() error {
			r, err := s.fuseSlot(gctx, pipe, req, slot)
			if err != nil {
				return err
			}
			results[i] = r
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("fuse document %s: %w", req.DocID, err)
	}

	// Shadow-only slots finalize to nothing; drop the holes before the
	// summary so slot counts reflect accepted results.
	finalized := results[:0]
	for _, r := range results {
		if r != nil {
			finalized = append(finalized, r)
		}
	}
	results = finalized

	sum := fusion.Summarize(req.DocID, cfg, results, time.Since(start), versions)

	// Persist and publish with a detached context so a document deadline
	// that fired mid-run cannot lose the audit trail.
	pctx := context.WithoutCancel(ctx)
	if err := s.audit.SaveSummary(pctx, sum); err != nil {
		return nil, fmt.Errorf("save summary for %s: %w", req.DocID, err)
	}
	s.publish(pctx, messagequeue.SubjectFusionSummary, sum)
	if s.hub != nil {
		s.hub.BroadcastEvent(pctx, ws.EventDocumentSummary, ws.DocumentSummaryEvent{
			DocID:       sum.DocID,
			Mode:        string(sum.Mode),
			ConfigHash:  sum.ConfigHash,
			Slots:       sum.Slots,
			Escalations: sum.Escalations,
			ElapsedMS:   sum.ElapsedMS,
		})
	}
	if s.metrics != nil {
		s.metrics.DocumentsFused.Add(pctx, 1)
		s.metrics.FusionDuration.Record(pctx, time.Since(start).Seconds())
	}

	s.log.Info("document fused",
		"doc_id", req.DocID,
		"mode", cfg.Mode,
		"slots", sum.Slots,
		"conflicts", sum.ConflictsDetected,
		"escalations", sum.Escalations,
		"elapsed_ms", sum.ElapsedMS,
	)

	return &FusionOutcome{Summary: sum, Results: results}, nil
}

// SubscribeRequests consumes fusion.requested messages from the bus and
// runs each document through FuseDocument.
func (s *FusionService) SubscribeRequests(ctx context.Context) (func(), error) {
	if s.queue == nil {
		return nil, fmt.Errorf("no message queue configured")
	}
	return s.queue.Subscribe(ctx, messagequeue.SubjectFusionRequested, func(ctx context.Context, _ string, data []byte) error {
		var req messagequeue.FusionRequestedPayload
		if err := json.Unmarshal(data, &req); err != nil {
			return fmt.Errorf("decode fusion request: %w", err)
		}
		_, err := s.FuseDocument(ctx, FusionRequest{
			DocID:       req.DocID,
			DocumentURI: req.DocumentURI,
			Mode:        req.Mode,
		})
		if err != nil {
			s.log.Error("fusion run failed", "doc_id", req.DocID, "error", err)
		}
		return err
	})
}

// SubscribeCandidates consumes candidates.{provider} batches pushed by the
// extraction sidecars and buffers them until the document's fusion run.
func (s *FusionService) SubscribeCandidates(ctx context.Context) (func(), error) {
	if s.queue == nil {
		return nil, fmt.Errorf("no message queue configured")
	}
	return s.queue.Subscribe(ctx, messagequeue.SubjectCandidates, func(_ context.Context, subject string, data []byte) error {
		var batch messagequeue.CandidateBatchPayload
		if err := json.Unmarshal(data, &batch); err != nil {
			return fmt.Errorf("decode candidate batch on %s: %w", subject, err)
		}
		for _, c := range batch.Candidates {
			if err := c.Validate(); err != nil {
				s.log.Warn("dropping invalid pushed candidate",
					"doc_id", batch.DocID, "provider", batch.Provider, "error", err)
				continue
			}
			s.addPending(batch.DocID, c)
		}
		return nil
	})
}

func (s *FusionService) addPending(docID string, c *entity.Candidate) {
	s.pendingMu.Lock()
	defer s.pendingMu.Unlock()
	s.pending[docID] = append(s.pending[docID], c)
}

// takePending removes and returns the buffered candidates for a document.
func (s *FusionService) takePending(docID string) []*entity.Candidate {
	s.pendingMu.Lock()
	defer s.pendingMu.Unlock()
	out := s.pending[docID]
	delete(s.pending, docID)
	return out
}

// pendingAllowed reports whether a bus-pushed candidate's provider may enter
// arbitration under the mode: single admits the primary alone, hotspot the
// primary plus the escalation chain, shadow and full any provider.
func pendingAllowed(cfg fusion.Config, providerName string) bool {
	switch cfg.Mode {
	case fusion.ModeSingle:
		return providerName == cfg.PrimaryProvider
	case fusion.ModeHotspot:
		if providerName == cfg.PrimaryProvider {
			return true
		}
		for _, p := range cfg.EscalationOrder {
			if p == providerName {
				return true
			}
		}
		return false
	}
	return true
}

// initialProviders returns the providers invoked up front for the mode:
// single and hotspot start with the primary alone, shadow and full fan out
// to every configured adapter.
func (s *FusionService) initialProviders(cfg fusion.Config) ([]string, error) {
	switch cfg.Mode {
	case fusion.ModeSingle, fusion.ModeHotspot:
		if _, ok := s.invokers[cfg.PrimaryProvider]; !ok {
			return nil, fmt.Errorf("primary provider %q has no adapter configured", cfg.PrimaryProvider)
		}
		return []string{cfg.PrimaryProvider}, nil
	case fusion.ModeShadow, fusion.ModeFull:
		names := make([]string, 0, len(s.invokers))
		for name := range s.invokers {
			names = append(names, name)
		}
		sort.Strings(names)
		if len(names) == 0 {
			return nil, fmt.Errorf("no provider adapters configured")
		}
		return names, nil
	}
	return nil, fmt.Errorf("unknown fusion mode %q", cfg.Mode)
}

// collect fans extraction calls out to the initial providers and gathers
// their candidates. A failed provider degrades the run rather than aborting
// it; the slot pipeline copes with whatever arrived.
func (s *FusionService) collect(ctx context.Context, req FusionRequest, types []entity.Type, providers []string, maxParallel int) ([]*entity.Candidate, map[string]string) {
	var mu sync.Mutex
	var out []*entity.Candidate
	versions := make(map[string]string)

	g, gctx := errgroup.WithContext(ctx)
	if maxParallel > 0 {
		g.SetLimit(maxParallel)
	}
	for _, name := range providers {
		inv := s.invokers[name]
		supported := supportedTypes(inv, types)
		if len(supported) == 0 {
			continue
		}
		g.Go(func() error {
			callStart := time.Now()
			cands, err := inv.Invoke(gctx, provider.Request{
				DocID:       req.DocID,
				DocumentURI: req.DocumentURI,
				Pages:       req.Pages,
				Types:       supported,
			})
			s.recordLatency(gctx, inv.Name(), time.Since(callStart))
			if err != nil {
				s.log.Warn("provider invocation failed",
					"provider", inv.Name(), "doc_id", req.DocID, "error", err)
				return nil
			}
			mu.Lock()
			out = append(out, cands...)
			if len(cands) > 0 && cands[0].Meta.AdapterVersion != "" {
				versions[inv.Name()] = cands[0].Meta.AdapterVersion
			}
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()
	return out, versions
}

// fuseSlot drives one slot from NEW to FINALIZED: the pure pipeline steps,
// the escalation loop for hotspot mode, the adjudicator when escalation
// exhausts unresolved, and the audit write.
func (s *FusionService) fuseSlot(ctx context.Context, pipe *fusion.Pipeline, req FusionRequest, slot *fusion.Slot) (*fusion.Result, error) {
	ctx, span := otel.StartSlotSpan(ctx, slot.ID, string(slot.Type))
	defer span.End()
	cfg := pipe.Cfg

	fallbacks, err := pipe.Process(slot)
	if err != nil {
		// A slot holding only background-provider candidates has no
		// eligible winner in shadow mode. That is telemetry about what
		// the primary missed, never a run failure.
		if cfg.Mode == fusion.ModeShadow && errors.Is(err, fusion.ErrNoWinner) {
			s.log.Info("shadow-only slot recorded without accepted candidate",
				"slot_id", slot.ID, "doc_id", slot.DocID, "page", slot.Page,
				"entity_type", slot.Type, "providers", slot.Providers())
			return nil, nil
		}
		return nil, fmt.Errorf("slot %s: %w", slot.ID, err)
	}
	for _, prov := range fallbacks {
		s.log.Debug("identity calibration fallback", "provider", prov, "slot_id", slot.ID)
	}

	for pipe.ShouldEscalate(slot) {
		if ctx.Err() != nil {
			slot.TimedOut = true
			break
		}
		next := slot.NotQueried(cfg.EscalationOrder)[0]
		if err := slot.Transition(fusion.StateEscalating); err != nil {
			return nil, fmt.Errorf("slot %s: %w", slot.ID, err)
		}
		round := slot.Rounds + 1

		if s.hub != nil {
			s.hub.BroadcastEvent(ctx, ws.EventSlotEscalated, ws.SlotEscalatedEvent{
				SlotID:     slot.ID,
				DocID:      slot.DocID,
				EntityType: slot.Type,
				Provider:   next,
				Round:      round,
			})
		}
		s.publish(ctx, messagequeue.SubjectFusionEscalate, messagequeue.FusionEscalatePayload{
			SlotID:     slot.ID,
			DocID:      slot.DocID,
			EntityType: slot.Type,
			Provider:   next,
			Round:      round,
		})
		if s.metrics != nil {
			s.metrics.Escalations.Add(ctx, 1)
		}

		cands, err := s.escalationCall(ctx, req, next, slot, cfg)
		if err != nil {
			s.log.Warn("escalation call failed",
				"provider", next, "slot_id", slot.ID, "round", round, "error", err)
		}
		// The provider counts as consulted even when it failed or
		// returned nothing; escalation never retries a provider.
		slot.Queried[next] = true
		for _, c := range cands {
			if c.Page != slot.Page || c.Type != slot.Type {
				continue
			}
			c.Audit.Escalated = true
			if err := slot.Add(c); err != nil {
				return nil, fmt.Errorf("slot %s: %w", slot.ID, err)
			}
		}
		if _, err := pipe.Rescore(slot); err != nil {
			return nil, fmt.Errorf("slot %s: %w", slot.ID, err)
		}
	}

	// The adjudicator may hand acceptance to any provider in the slot, so
	// it only runs in the modes where every provider is eligible to win,
	// and only on exhaustion: a slot whose escalation stopped on agreement
	// already has a consensus winner.
	if cfg.AdjudicatorEnabled &&
		(cfg.Mode == fusion.ModeHotspot || cfg.Mode == fusion.ModeFull) &&
		!slot.TimedOut && slot.Unresolved(cfg) && !slot.AgreementFormed() &&
		len(slot.Providers()) > 1 && !pipe.ShouldEscalate(slot) {
		if err := pipe.Adjudicate(slot, fusion.HighestConfidence); err != nil {
			return nil, fmt.Errorf("slot %s: %w", slot.ID, err)
		}
	}

	result, err := pipe.Finalize(slot)
	if err != nil {
		return nil, fmt.Errorf("slot %s: %w", slot.ID, err)
	}

	pctx := context.WithoutCancel(ctx)
	rec := auditstore.NewDecisionRecord(result, cfg.Hash())
	if err := s.audit.SaveDecision(pctx, rec); err != nil {
		return nil, fmt.Errorf("save decision for slot %s: %w", slot.ID, err)
	}

	s.publish(pctx, messagequeue.SubjectFusionResult, messagequeue.FusionResultPayload{
		SlotID:           result.SlotID,
		DocID:            result.DocID,
		Page:             result.Page,
		EntityType:       result.Type,
		Entity:           result.Entity,
		ValidationFailed: result.ValidationFailed,
		Escalated:        result.Escalated,
		Rounds:           result.Rounds,
	})
	if s.hub != nil {
		s.hub.BroadcastEvent(pctx, ws.EventSlotFinalized, ws.SlotFinalizedEvent{
			SlotID:           result.SlotID,
			DocID:            result.DocID,
			Page:             result.Page,
			EntityType:       result.Type,
			AcceptedProvider: result.Entity.Provider,
			Reason:           result.Entity.Audit.Reason,
			Disagreement:     result.Entity.Audit.Disagreement,
			Escalated:        result.Escalated,
			ValidationFailed: result.ValidationFailed,
		})
	}
	if s.metrics != nil {
		s.metrics.SlotsFinalized.Add(pctx, 1)
		s.metrics.EscalationRounds.Record(pctx, int64(result.Rounds))
		if result.Entity.Audit.Disagreement != "" {
			s.metrics.Conflicts.Add(pctx, 1)
		}
		if result.AdjudicatorUsed {
			s.metrics.Adjudications.Add(pctx, 1)
		}
		if result.ValidationFailed {
			s.metrics.ValidationFails.Add(pctx, 1)
		}
	}

	return result, nil
}

// escalationCall invokes one escalation provider for a slot's page and type.
// Responses are cached per (provider, document, page, type) so parallel
// slots over the same page pay for one sidecar call.
func (s *FusionService) escalationCall(ctx context.Context, req FusionRequest, name string, slot *fusion.Slot, cfg fusion.Config) ([]*entity.Candidate, error) {
	inv, ok := s.invokers[name]
	if !ok {
		return nil, fmt.Errorf("escalation provider %q has no adapter configured", name)
	}
	ctx, span := otel.StartEscalationSpan(ctx, slot.ID, name, slot.Rounds+1)
	defer span.End()

	key := escalationKey(name, slot.DocID, slot.Page, slot.Type)
	if s.escCache != nil {
		if data, hit, err := s.escCache.Get(ctx, key); err == nil && hit {
			var cands []*entity.Candidate
			if err := json.Unmarshal(data, &cands); err == nil {
				return cands, nil
			}
		}
	}

	cctx := ctx
	if cfg.EscalationTimeout > 0 {
		var cancel context.CancelFunc
		cctx, cancel = context.WithTimeout(ctx, cfg.EscalationTimeout)
		defer cancel()
	}

	callStart := time.Now()
	cands, err := inv.Invoke(cctx, provider.Request{
		DocID:       slot.DocID,
		DocumentURI: req.DocumentURI,
		Pages:       []int{slot.Page},
		Types:       []entity.Type{slot.Type},
	})
	s.recordLatency(ctx, name, time.Since(callStart))
	if err != nil {
		return nil, err
	}

	if s.escCache != nil {
		if data, err := json.Marshal(cands); err == nil {
			if err := s.escCache.Set(ctx, key, data, s.cfg.Cache.L2TTL); err != nil {
				s.log.Debug("escalation cache set failed", "key", key, "error", err)
			}
		}
	}
	return cands, nil
}

func (s *FusionService) publish(ctx context.Context, subject string, payload any) {
	if s.queue == nil {
		return
	}
	data, err := json.Marshal(payload)
	if err != nil {
		s.log.Error("marshal bus payload", "subject", subject, "error", err)
		return
	}
	if err := s.queue.Publish(ctx, subject, data); err != nil {
		s.log.Warn("publish failed", "subject", subject, "error", err)
	}
}

func (s *FusionService) recordLatency(ctx context.Context, providerName string, d time.Duration) {
	if s.metrics == nil {
		return
	}
	s.metrics.ProviderLatency.Record(ctx, d.Seconds(),
		metric.WithAttributes(attribute.String("provider", providerName)))
}

func supportedTypes(inv provider.Invoker, types []entity.Type) []entity.Type {
	caps := inv.Capabilities()
	var out []entity.Type
	for _, et := range types {
		if caps.Supports(et) {
			out = append(out, et)
		}
	}
	return out
}

func appendMissing(base, extra []string) []string {
	seen := make(map[string]bool, len(base))
	for _, p := range base {
		seen[p] = true
	}
	out := base
	for _, p := range extra {
		if !seen[p] {
			seen[p] = true
			out = append(out, p)
		}
	}
	return out
}

func escalationKey(provider, docID string, page int, et entity.Type) string {
	return fmt.Sprintf("esc:%s:%s:%d:%s", provider, docID, page, et)
}
