// Package orchestrator coordinates the demographics, clinical and finance
// shards. Mutations run in a single unit of work and either apply to every
// shard or to none. Reads fan out and degrade to partial results.
package orchestrator

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/ehr/records/internal/domain/clinical"
	"github.com/ehr/records/internal/domain/demographics"
	"github.com/ehr/records/internal/domain/finance"
	"github.com/ehr/records/internal/platform/audit"
	"github.com/ehr/records/internal/platform/auth"
)

// UnitOfWork scopes a group of shard writes. Repositories called with the
// context passed to fn share its transaction. Do commits when fn returns nil
// and rolls back otherwise.
type UnitOfWork interface {
	Do(ctx context.Context, fn func(ctx context.Context) error) error
}

// Shards bundles the three shard repositories. They are expected to be the
// audited wrappers in production wiring.
type Shards struct {
	Patients demographics.Repository
	Clinical clinical.Repository
	Finance  finance.Repository
}

// Options carries the dependencies shared by every orchestrator.
type Options struct {
	UnitOfWork UnitOfWork
	Audit      audit.Recorder
	Logger     zerolog.Logger
	// Timeout applies when the caller's context has no deadline.
	Timeout time.Duration
}

func (o Options) recorder() audit.Recorder {
	if o.Audit == nil {
		return audit.Discard{}
	}
	return o.Audit
}

// inUnit runs fn in a unit of work. Audit records logged by the shard
// wrappers inside fn are written once the unit of work has committed or
// rolled back and released its connection.
func (o Options) inUnit(ctx context.Context, fn func(ctx context.Context) error) error {
	ctx, flush := audit.Defer(ctx)
	defer flush()
	return o.UnitOfWork.Do(ctx, fn)
}

// begin attributes ctx to actor and bounds it by the default timeout.
func begin(ctx context.Context, actor auth.Actor, timeout time.Duration) (context.Context, auth.Actor, context.CancelFunc) {
	if actor.IsZero() {
		actor = auth.System()
	}
	ctx = auth.WithActor(ctx, actor)
	if _, ok := ctx.Deadline(); ok || timeout <= 0 {
		return ctx, actor, func() {}
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	return ctx, actor, cancel
}

// lockAnchor checks inside the current unit of work that the patient exists
// and is active, and holds it until the unit of work ends.
func lockAnchor(ctx context.Context, patients demographics.Repository, id uuid.UUID) error {
	err := patients.LockActive(ctx, id)
	if errors.Is(err, demographics.ErrNotFound) {
		return patientNotFound(id, err)
	}
	if err != nil {
		return &ShardFailure{Shard: ShardDemographics, Op: "lock_active", Err: err}
	}
	return nil
}
