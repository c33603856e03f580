package audit

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/ehr/records/internal/platform/auth"
)

// ErrWriteFailed wraps every failure to persist an audit record. It is handed
// to the ErrorReporter and never returned to business callers.
var ErrWriteFailed = errors.New("audit write failed")

// DefaultWriteTimeout bounds a single audit insert when none is configured.
const DefaultWriteTimeout = 3 * time.Second

// Store persists audit records. Implementations must not join the caller's
// business transaction.
type Store interface {
	Append(ctx context.Context, rec *Record) error
}

// ErrorReporter receives audit failures out of band.
type ErrorReporter interface {
	Report(ctx context.Context, err error, fields map[string]any)
}

// Recorder is the surface shard wrappers and orchestrators depend on.
type Recorder interface {
	Log(ctx context.Context, actor auth.Actor, action, resourceType, resourceID string, details map[string]any)
}

// Logger writes redacted audit records on a best-effort basis.
type Logger struct {
	store    Store
	redactor *Redactor
	reporter ErrorReporter
	logger   zerolog.Logger
	timeout  time.Duration
	now      func() time.Time
}

// Option configures a Logger.
type Option func(*Logger)

// WithRedactor replaces the default redactor.
func WithRedactor(r *Redactor) Option {
	return func(l *Logger) { l.redactor = r }
}

// WithReporter sets the out-of-band error reporter.
func WithReporter(r ErrorReporter) Option {
	return func(l *Logger) { l.reporter = r }
}

// WithWriteTimeout bounds each store write.
func WithWriteTimeout(d time.Duration) Option {
	return func(l *Logger) {
		if d > 0 {
			l.timeout = d
		}
	}
}

// NewLogger returns a Logger writing to store. Failures are logged and, when
// no reporter is configured, reported through a LogReporter.
func NewLogger(store Store, logger zerolog.Logger, opts ...Option) *Logger {
	l := &Logger{
		store:    store,
		redactor: NewRedactor(),
		logger:   logger.With().Str("component", "audit").Logger(),
		timeout:  DefaultWriteTimeout,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(l)
	}
	if l.reporter == nil {
		l.reporter = NewLogReporter(l.logger)
	}
	return l
}

// Log records one access. The write runs on its own deadline, detached from
// ctx cancellation, so it persists even when the surrounding operation is
// cancelled or rolled back. Under a context from Defer the record is queued
// and written on flush. Errors never reach the caller.
func (l *Logger) Log(ctx context.Context, actor auth.Actor, action, resourceType, resourceID string, details map[string]any) {
	if actor.IsZero() {
		actor = auth.System()
	}
	rec := &Record{
		ActorID:      actor.ID(),
		ActorName:    actor.Name(),
		ClientIP:     actor.ClientIP(),
		RequestID:    actor.RequestID(),
		Action:       action,
		ResourceType: resourceType,
		ResourceID:   resourceID,
		Details:      l.redactor.Redact(details),
		RecordedAt:   l.now().UTC(),
	}

	if b, ok := ctx.Value(batchKey{}).(*batch); ok {
		b.add(ctx, l, rec)
		return
	}
	l.write(ctx, rec)
}

func (l *Logger) write(ctx context.Context, rec *Record) {
	wctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), l.timeout)
	defer cancel()

	if err := l.store.Append(wctx, rec); err != nil {
		werr := fmt.Errorf("%w: %s %s/%s: %w", ErrWriteFailed, rec.Action, rec.ResourceType, rec.ResourceID, err)
		l.logger.Error().
			Err(werr).
			Str("type", "audit_failure").
			Str("action", rec.Action).
			Str("resource_type", rec.ResourceType).
			Str("resource_id", rec.ResourceID).
			Str("actor_id", rec.ActorID).
			Str("request_id", rec.RequestID).
			Msg("failed to persist audit record")
		l.reporter.Report(context.WithoutCancel(ctx), werr, map[string]any{
			"action":        rec.Action,
			"resource_type": rec.ResourceType,
			"resource_id":   rec.ResourceID,
			"actor_id":      rec.ActorID,
			"request_id":    rec.RequestID,
		})
		return
	}

	l.logger.Debug().
		Int64("audit_id", rec.ID).
		Str("action", rec.Action).
		Str("resource_type", rec.ResourceType).
		Str("resource_id", rec.ResourceID).
		Str("actor_id", rec.ActorID).
		Msg("audit record written")
}
