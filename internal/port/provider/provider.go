// Package provider defines the extraction provider port and its factory
// registry. An extraction provider turns drawing pages into entity candidates;
// the fusion service treats every provider identically through this interface.
package provider

import (
	"context"
	"errors"

	"github.com/semaj-12/7M-Quote-sub001/internal/domain/entity"
)

var (
	// ErrUnavailable reports a provider that is configured but cannot be
	// reached. Escalation treats it as a failed round, not a fatal error.
	ErrUnavailable = errors.New("provider: unavailable")
	// ErrUnsupportedType reports a request for an entity type the provider
	// does not extract.
	ErrUnsupportedType = errors.New("provider: unsupported entity type")
)

// Capabilities declares which entity types a provider can extract.
type Capabilities struct {
	Types []entity.Type `json:"types"`
}

// Supports reports whether the provider extracts the given entity type.
func (c Capabilities) Supports(et entity.Type) bool {
	for _, t := range c.Types {
		if t == et {
			return true
		}
	}
	return false
}

// Request asks one provider for candidates from one document. Pages and Types
// narrow the extraction; empty means all.
type Request struct {
	DocID       string        `json:"doc_id"`
	DocumentURI string        `json:"document_uri"`
	Pages       []int         `json:"pages,omitempty"`
	Types       []entity.Type `json:"types,omitempty"`
}

// Invoker is the port interface for one extraction provider.
type Invoker interface {
	// Name returns the provider identifier used in weights, ownership
	// defaults and escalation order (e.g. "reducto", "textract").
	Name() string

	// Capabilities returns the entity types this provider extracts.
	Capabilities() Capabilities

	// Invoke extracts candidates from the document. Every returned
	// candidate carries this provider's name and raw confidence.
	Invoke(ctx context.Context, req Request) ([]*entity.Candidate, error)
}
