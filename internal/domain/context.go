// Package domain provides the core invoicing types, the invoice state machine
// and context helpers for courtbill.
//
// Context helpers carry request-scoped data (the acting operator and a request
// ID) so audit columns are filled the same way from HTTP, CLI and jobs.
package domain

import (
	"context"

	"github.com/google/uuid"
)

type contextKey int

const (
	actorContextKey contextKey = iota
	requestIDContextKey
)

// Actor identifies who performed a mutation. System actors (scheduler, webhook
// reconciliation) carry uuid.Nil and a descriptive Name.
type Actor struct {
	ID   uuid.UUID
	Name string
}

// SystemActor is used for mutations that no human triggered.
func SystemActor(name string) *Actor {
	return &Actor{ID: uuid.Nil, Name: name}
}

// NewContextWithActor returns a new context with the actor attached.
func NewContextWithActor(ctx context.Context, actor *Actor) context.Context {
	return context.WithValue(ctx, actorContextKey, actor)
}

// ActorFromContext retrieves the actor from context.
// Returns nil if no actor is present.
func ActorFromContext(ctx context.Context) *Actor {
	actor, _ := ctx.Value(actorContextKey).(*Actor)
	return actor
}

// ActorIDFromContext returns the actor ID, or nil when the context carries no
// actor or a system actor. Audit columns are nullable for that reason.
func ActorIDFromContext(ctx context.Context) *uuid.UUID {
	actor := ActorFromContext(ctx)
	if actor == nil || actor.ID == uuid.Nil {
		return nil
	}
	id := actor.ID
	return &id
}

// NewContextWithRequestID returns a new context with the request ID attached.
func NewContextWithRequestID(ctx context.Context, requestID string) context.Context {
	return context.WithValue(ctx, requestIDContextKey, requestID)
}

// RequestIDFromContext retrieves the request ID from context.
// Returns empty string if no request ID is present.
func RequestIDFromContext(ctx context.Context) string {
	requestID, _ := ctx.Value(requestIDContextKey).(string)
	return requestID
}
