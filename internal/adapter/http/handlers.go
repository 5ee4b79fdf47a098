package http

import (
	"context"
	"encoding/json"
	"net/http"
	"sort"

	"github.com/semaj-12/7M-Quote-sub001/internal/domain/entity"
	"github.com/semaj-12/7M-Quote-sub001/internal/port/auditstore"
	"github.com/semaj-12/7M-Quote-sub001/internal/port/messagequeue"
	"github.com/semaj-12/7M-Quote-sub001/internal/port/provider"
	"github.com/semaj-12/7M-Quote-sub001/internal/service"
)

const maxBodySize = 1 << 20 // 1 MiB

// Fuser runs one document through the fusion pipeline.
type Fuser interface {
	FuseDocument(ctx context.Context, req service.FusionRequest) (*service.FusionOutcome, error)
}

// Handlers holds the dependencies for all HTTP handlers.
type Handlers struct {
	fuser    Fuser
	audit    auditstore.Store
	queue    messagequeue.Queue
	invokers []provider.Invoker
}

// NewHandlers creates the handler set. queue is optional; without it the
// async fuse endpoint returns 503.
func NewHandlers(fuser Fuser, audit auditstore.Store, queue messagequeue.Queue, invokers []provider.Invoker) *Handlers {
	return &Handlers{fuser: fuser, audit: audit, queue: queue, invokers: invokers}
}

type fuseRequest struct {
	DocumentURI string   `json:"document_uri"`
	Pages       []int    `json:"pages,omitempty"`
	Types       []string `json:"types,omitempty"`
	Mode        string   `json:"mode,omitempty"`
}

// FuseDocument runs fusion synchronously and returns the summary plus every
// finalized slot result.
func (h *Handlers) FuseDocument(w http.ResponseWriter, r *http.Request) {
	docID := urlParam(r, "docID")

	var body fuseRequest
	if r.ContentLength != 0 {
		var ok bool
		body, ok = readJSON[fuseRequest](w, r, maxBodySize)
		if !ok {
			return
		}
	}

	req := service.FusionRequest{
		DocID:       docID,
		DocumentURI: body.DocumentURI,
		Pages:       body.Pages,
		Mode:        body.Mode,
	}
	for _, t := range body.Types {
		et := entity.Type(t)
		if !et.Valid() {
			writeError(w, http.StatusBadRequest, "unknown entity type "+t)
			return
		}
		req.Types = append(req.Types, et)
	}

	out, err := h.fuser.FuseDocument(r.Context(), req)
	if err != nil {
		writeDomainError(w, err, "fusion failed")
		return
	}
	writeJSON(w, http.StatusOK, out)
}

// RequestFusion enqueues a fusion.requested message and returns 202. The
// subscriber picks the document up asynchronously.
func (h *Handlers) RequestFusion(w http.ResponseWriter, r *http.Request) {
	if h.queue == nil {
		writeError(w, http.StatusServiceUnavailable, "message queue not configured")
		return
	}
	docID := urlParam(r, "docID")

	var body fuseRequest
	if r.ContentLength != 0 {
		var ok bool
		body, ok = readJSON[fuseRequest](w, r, maxBodySize)
		if !ok {
			return
		}
	}

	payload, err := json.Marshal(messagequeue.FusionRequestedPayload{
		DocID:       docID,
		DocumentURI: body.DocumentURI,
		Mode:        body.Mode,
	})
	if err != nil {
		writeInternalError(w, err)
		return
	}
	if err := h.queue.Publish(r.Context(), messagequeue.SubjectFusionRequested, payload); err != nil {
		writeInternalError(w, err)
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]string{"doc_id": docID, "status": "queued"})
}

// ListDecisions returns the per-slot decision records for a document,
// ordered by page then slot ID.
func (h *Handlers) ListDecisions(w http.ResponseWriter, r *http.Request) {
	docID := urlParam(r, "docID")
	recs, err := h.audit.ListDecisions(r.Context(), docID)
	if err != nil {
		writeDomainError(w, err, "decisions not found")
		return
	}
	if recs == nil {
		recs = []auditstore.DecisionRecord{}
	}
	writeJSON(w, http.StatusOK, recs)
}

// GetSummary returns the per-document fusion summary.
func (h *Handlers) GetSummary(w http.ResponseWriter, r *http.Request) {
	docID := urlParam(r, "docID")
	sum, err := h.audit.GetSummary(r.Context(), docID)
	if err != nil {
		writeDomainError(w, err, "summary not found")
		return
	}
	writeJSON(w, http.StatusOK, sum)
}

type providerInfo struct {
	Name  string   `json:"name"`
	Types []string `json:"types"`
}

// ListProviders returns the configured extraction providers and the entity
// types each one supports.
func (h *Handlers) ListProviders(w http.ResponseWriter, _ *http.Request) {
	out := make([]providerInfo, 0, len(h.invokers))
	for _, inv := range h.invokers {
		info := providerInfo{Name: inv.Name()}
		for _, t := range inv.Capabilities().Types {
			info.Types = append(info.Types, string(t))
		}
		out = append(out, info)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	writeJSON(w, http.StatusOK, out)
}

// Health reports liveness plus message bus connectivity.
func (h *Handlers) Health(w http.ResponseWriter, _ *http.Request) {
	status := map[string]any{"status": "ok"}
	if h.queue != nil {
		status["nats_connected"] = h.queue.IsConnected()
	}
	writeJSON(w, http.StatusOK, status)
}
