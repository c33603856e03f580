package auth

import "context"

type contextKey string

const ActorKey contextKey = "actor"

// SystemActorID attributes work that was not started by an authenticated
// caller, such as CLI maintenance commands without --actor.
const SystemActorID = "system"

// Actor identifies who triggered an operation. It is used for audit
// attribution only. Fields are unexported so a value cannot be altered after
// it has been attached to a request.
type Actor struct {
	id        string
	name      string
	clientIP  string
	requestID string
}

func NewActor(id, name, clientIP, requestID string) Actor {
	return Actor{id: id, name: name, clientIP: clientIP, requestID: requestID}
}

// System returns the actor used when no caller identity is available.
func System() Actor {
	return Actor{id: SystemActorID, name: "System"}
}

func (a Actor) ID() string        { return a.id }
func (a Actor) Name() string      { return a.name }
func (a Actor) ClientIP() string  { return a.clientIP }
func (a Actor) RequestID() string { return a.requestID }

func (a Actor) IsZero() bool { return a.id == "" }

// WithRequestID returns a copy of a carrying requestID.
func (a Actor) WithRequestID(requestID string) Actor {
	a.requestID = requestID
	return a
}

func WithActor(ctx context.Context, a Actor) context.Context {
	return context.WithValue(ctx, ActorKey, a)
}

func ActorFromContext(ctx context.Context) (Actor, bool) {
	a, ok := ctx.Value(ActorKey).(Actor)
	if !ok || a.IsZero() {
		return Actor{}, false
	}
	return a, true
}

// ActorOrSystem returns the actor carried by ctx, falling back to System.
func ActorOrSystem(ctx context.Context) Actor {
	if a, ok := ActorFromContext(ctx); ok {
		return a
	}
	return System()
}
