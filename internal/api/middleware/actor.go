package middleware

import (
	"context"
	"net/http"
	"strings"
)

type contextKey string

const actorKey contextKey = "actor"

// ActorHeader names the operator on whose behalf a request is made. It is
// recorded as created_by on jobs and snapshots. Authentication happens in
// front of this service.
const ActorHeader = "X-Actor"

// DefaultActor is used when a request carries no actor header.
const DefaultActor = "api"

// Actor stores the request's actor in the context.
func Actor(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		actor := strings.TrimSpace(r.Header.Get(ActorHeader))
		if actor == "" {
			actor = DefaultActor
		}
		next.ServeHTTP(w, r.WithContext(WithActor(r.Context(), actor)))
	})
}

func WithActor(ctx context.Context, actor string) context.Context {
	return context.WithValue(ctx, actorKey, actor)
}

// GetActor returns the actor stored by Actor, or DefaultActor.
func GetActor(ctx context.Context) string {
	if actor, ok := ctx.Value(actorKey).(string); ok && actor != "" {
		return actor
	}
	return DefaultActor
}
