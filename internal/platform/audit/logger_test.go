package audit

import (
	"bytes"
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/ehr/records/internal/platform/auth"
)

type memStore struct {
	mu      sync.Mutex
	records []*Record
	err     error
	ctxErr  error
}

func (m *memStore) Append(ctx context.Context, rec *Record) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.ctxErr = ctx.Err()
	if m.err != nil {
		return m.err
	}
	rec.ID = int64(len(m.records) + 1)
	m.records = append(m.records, rec)
	return nil
}

type captureReporter struct {
	mu     sync.Mutex
	errs   []error
	fields []map[string]any
}

func (c *captureReporter) Report(_ context.Context, err error, fields map[string]any) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.errs = append(c.errs, err)
	c.fields = append(c.fields, fields)
}

func TestLogger_Log_WritesRedactedRecord(t *testing.T) {
	store := &memStore{}
	l := NewLogger(store, zerolog.Nop())
	fixed := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	l.now = func() time.Time { return fixed }

	actor := auth.NewActor("u-1", "Dr. Demir", "10.0.0.1", "req-1")
	l.Log(context.Background(), actor, ActionRead, "patient", "p-1", map[string]any{
		"first_name": "A",
		"outcome":    OutcomeSuccess,
	})

	if len(store.records) != 1 {
		t.Fatalf("expected 1 record, got %d", len(store.records))
	}
	rec := store.records[0]
	if rec.ActorID != "u-1" || rec.ActorName != "Dr. Demir" || rec.ClientIP != "10.0.0.1" || rec.RequestID != "req-1" {
		t.Errorf("unexpected actor fields: %+v", rec)
	}
	if rec.Action != ActionRead || rec.ResourceType != "patient" || rec.ResourceID != "p-1" {
		t.Errorf("unexpected resource fields: %+v", rec)
	}
	if rec.Details["first_name"] != RedactionMarker {
		t.Errorf("expected first_name redacted, got %v", rec.Details["first_name"])
	}
	if !rec.RecordedAt.Equal(fixed) {
		t.Errorf("expected recorded_at %v, got %v", fixed, rec.RecordedAt)
	}
}

func TestLogger_Log_ZeroActorIsSystem(t *testing.T) {
	store := &memStore{}
	l := NewLogger(store, zerolog.Nop())

	l.Log(context.Background(), auth.Actor{}, ActionList, "clinical_entry", "", nil)

	if got := store.records[0].ActorID; got != auth.SystemActorID {
		t.Errorf("expected actor %q, got %q", auth.SystemActorID, got)
	}
}

func TestLogger_Log_StoreFailureIsReported(t *testing.T) {
	store := &memStore{err: errors.New("connection refused")}
	rep := &captureReporter{}
	var buf bytes.Buffer
	l := NewLogger(store, zerolog.New(&buf), WithReporter(rep))

	l.Log(context.Background(), auth.System(), ActionSoftDelete, "patient", "p-9", map[string]any{"email": "x@y"})

	if len(rep.errs) != 1 {
		t.Fatalf("expected 1 reported error, got %d", len(rep.errs))
	}
	if !errors.Is(rep.errs[0], ErrWriteFailed) {
		t.Errorf("expected ErrWriteFailed, got %v", rep.errs[0])
	}
	if !errors.Is(rep.errs[0], store.err) {
		t.Errorf("expected store cause to be wrapped, got %v", rep.errs[0])
	}
	if rep.fields[0]["resource_id"] != "p-9" {
		t.Errorf("expected resource_id in report fields, got %v", rep.fields[0])
	}
	if _, ok := rep.fields[0]["email"]; ok {
		t.Error("report fields must not carry details")
	}
	if !bytes.Contains(buf.Bytes(), []byte(`"type":"audit_failure"`)) {
		t.Errorf("expected audit_failure log line, got %s", buf.String())
	}
}

func TestLogger_Log_DetachedFromCancellation(t *testing.T) {
	store := &memStore{}
	l := NewLogger(store, zerolog.Nop(), WithWriteTimeout(time.Second))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	l.Log(ctx, auth.System(), ActionSoftDelete, "patient", "p-1", nil)

	if len(store.records) != 1 {
		t.Fatalf("expected record written after cancellation, got %d", len(store.records))
	}
	if store.ctxErr != nil {
		t.Errorf("expected live write context, got %v", store.ctxErr)
	}
}

func TestLogger_DefaultReporterLogs(t *testing.T) {
	var buf bytes.Buffer
	l := NewLogger(&memStore{err: errors.New("boom")}, zerolog.New(&buf))

	l.Log(context.Background(), auth.System(), ActionRead, "patient", "p-1", nil)

	if !bytes.Contains(buf.Bytes(), []byte("audit failure reported")) {
		t.Errorf("expected log reporter output, got %s", buf.String())
	}
}
