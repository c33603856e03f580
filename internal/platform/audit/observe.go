package audit

import (
	"context"
	"maps"

	"github.com/ehr/records/internal/platform/auth"
)

// Access describes one audited call.
type Access struct {
	Action       string
	ResourceType string
	ResourceID   string
	Details      map[string]any
}

// Observe runs fn and records the access for the actor carried by ctx
// (system when none). The record is written whatever fn returns; the result
// and error of fn are passed through untouched. describe, when given, adds
// details derived from a successful result.
func Observe[T any](ctx context.Context, rec Recorder, access Access, fn func(context.Context) (T, error), describe ...func(T) map[string]any) (T, error) {
	v, err := fn(ctx)

	details := make(map[string]any, len(access.Details)+2)
	maps.Copy(details, access.Details)
	if err != nil {
		details["outcome"] = OutcomeFailure
		details["error"] = err.Error()
	} else {
		details["outcome"] = OutcomeSuccess
		for _, d := range describe {
			maps.Copy(details, d(v))
		}
	}

	rec.Log(ctx, auth.ActorOrSystem(ctx), access.Action, access.ResourceType, access.ResourceID, details)
	return v, err
}

// ObserveErr is Observe for calls that return only an error.
func ObserveErr(ctx context.Context, rec Recorder, access Access, fn func(context.Context) error) error {
	_, err := Observe(ctx, rec, access, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, fn(ctx)
	})
	return err
}

// Discard is a Recorder that drops every record.
type Discard struct{}

func (Discard) Log(context.Context, auth.Actor, string, string, string, map[string]any) {}
