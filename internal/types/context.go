package types

import "context"

// ActorType identifies the kind of authenticated entity making a request.
type ActorType string

const (
	// ActorTypeUser is a fully-authorized session or API token.
	ActorTypeUser ActorType = "user"
	// ActorTypeIngestionKey is a restricted write-only key embedded in job
	// runners. Responses to ingestion keys are limited to the check-in id
	// and reads are refused outright.
	ActorTypeIngestionKey ActorType = "ingestion_key"
	// ActorTypeSystem is an internal worker (sweeper, archiver).
	ActorTypeSystem ActorType = "system"
)

// Actor represents the authenticated entity performing an operation.
// The auth layer resolves tokens to Actors before any handler runs; the
// ingestion core only ever sees an already-authorized actor.
type Actor struct {
	ID             string
	Type           ActorType
	OrganizationID int64
	ProjectID      int64
}

// Restricted reports whether response bodies must be trimmed to the
// check-in id only. This is a confidentiality rule for ingestion keys, not
// a convenience trim.
func (a Actor) Restricted() bool {
	return a.Type == ActorTypeIngestionKey
}

// Context Keys
type contextKey string

const (
	actorKey     contextKey = "actor"
	requestIDKey contextKey = "request_id"
)

// WithActor stores the Actor in the context.
func WithActor(ctx context.Context, actor Actor) context.Context {
	return context.WithValue(ctx, actorKey, actor)
}

// GetActor retrieves the Actor from the context.
func GetActor(ctx context.Context) (Actor, bool) {
	actor, ok := ctx.Value(actorKey).(Actor)
	return actor, ok
}

// WithRequestID stores the request ID in the context.
func WithRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, requestIDKey, id)
}

// GetRequestID retrieves the request ID from the context.
func GetRequestID(ctx context.Context) string {
	id, _ := ctx.Value(requestIDKey).(string)
	return id
}
