// Package itsm fetches change requests and incidents from an external ITSM
// system and resolves them to applications.
package itsm

import (
	"context"
	"strings"

	"github.com/ensemble/backend/internal/models"
)

// Record is one ticket as returned by the ITSM system. Payload is kept
// opaque and stored verbatim on the review queue.
type Record struct {
	ExternalID string                 `json:"external_id"`
	Type       string                 `json:"type"` // RFC, INC
	Payload    map[string]interface{} `json:"payload"`
}

// Field reads a string field from the payload.
func (r *Record) Field(key string) string {
	return strings.TrimSpace(models.PayloadString(r.Payload, key))
}

// FetchRequest scopes a pull to the team's configured assignment groups.
type FetchRequest struct {
	RFCWorkgroups []string
	INCWorkgroups []string
	MaxSearchDays int
}

// Source is implemented by ITSM backends.
type Source interface {
	Fetch(ctx context.Context, req FetchRequest) ([]Record, error)
}

// SourceFunc adapts a function to Source.
type SourceFunc func(ctx context.Context, req FetchRequest) ([]Record, error)

func (f SourceFunc) Fetch(ctx context.Context, req FetchRequest) ([]Record, error) {
	return f(ctx, req)
}
