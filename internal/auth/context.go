package auth

import (
	"context"

	"google.golang.org/grpc/metadata"
)

type actorKey struct{}

// SystemActor is recorded when a change has no authenticated caller, e.g.
// the expiry sweep or the order-event listener.
const SystemActor = "system"

// WithActor stores the caller identity on ctx.
func WithActor(ctx context.Context, actor string) context.Context {
	return context.WithValue(ctx, actorKey{}, actor)
}

// Actor returns who is making the call: an identity stored by WithActor, the
// x-user-id metadata set by the gateway, or SystemActor.
func Actor(ctx context.Context) string {
	if val, ok := ctx.Value(actorKey{}).(string); ok && val != "" {
		return val
	}

	md, ok := metadata.FromIncomingContext(ctx)
	if ok {
		if val := md.Get("x-user-id"); len(val) > 0 && val[0] != "" {
			return val[0]
		}
	}
	return SystemActor
}
