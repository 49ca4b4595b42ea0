package middleware

import (
	"context"

	"github.com/google/uuid"

	"github.com/seahsky/joho-erp-sub004/internal/orders"
	"github.com/seahsky/joho-erp-sub004/pkg/enums"
)

type contextKey string

const ctxActor contextKey = "actor"

// WithActor injects the caller identity into the context.
func WithActor(ctx context.Context, actor orders.Actor) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	return context.WithValue(ctx, ctxActor, actor)
}

// ActorFromContext returns the identity seeded by Auth.
func ActorFromContext(ctx context.Context) (orders.Actor, bool) {
	if ctx == nil {
		return orders.Actor{}, false
	}
	actor, ok := ctx.Value(ctxActor).(orders.Actor)
	return actor, ok
}

func ActorIDFromContext(ctx context.Context) string {
	actor, _ := ActorFromContext(ctx)
	return actor.ID
}

func RoleFromContext(ctx context.Context) enums.ActorRole {
	actor, _ := ActorFromContext(ctx)
	return actor.Role
}

func CustomerIDFromContext(ctx context.Context) *uuid.UUID {
	actor, _ := ActorFromContext(ctx)
	return actor.CustomerID
}
