package orchestrator

import (
	"context"
	"errors"
	"maps"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/ehr/records/internal/domain/clinical"
	"github.com/ehr/records/internal/domain/demographics"
	"github.com/ehr/records/internal/domain/finance"
	"github.com/ehr/records/internal/platform/audit"
	"github.com/ehr/records/internal/platform/auth"
)

// memDB is an in-memory stand-in for the three shard schemas. Rows are stored
// by value so a snapshot is a plain map copy.
type memDB struct {
	mu       sync.Mutex
	patients map[uuid.UUID]demographics.Patient
	entries  map[uuid.UUID]clinical.Entry
	txns     map[uuid.UUID]finance.Transaction
	calls    []string
	now      time.Time
}

func newMemDB() *memDB {
	return &memDB{
		patients: make(map[uuid.UUID]demographics.Patient),
		entries:  make(map[uuid.UUID]clinical.Entry),
		txns:     make(map[uuid.UUID]finance.Transaction),
		now:      time.Date(2024, 6, 1, 9, 0, 0, 0, time.UTC),
	}
}

type memState struct {
	patients map[uuid.UUID]demographics.Patient
	entries  map[uuid.UUID]clinical.Entry
	txns     map[uuid.UUID]finance.Transaction
}

func (m *memDB) snapshot() memState {
	m.mu.Lock()
	defer m.mu.Unlock()
	return memState{maps.Clone(m.patients), maps.Clone(m.entries), maps.Clone(m.txns)}
}

func (m *memDB) restore(s memState) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.patients, m.entries, m.txns = s.patients, s.entries, s.txns
}

func (m *memDB) record(call string) {
	m.calls = append(m.calls, call)
}

func (m *memDB) callLog() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.calls...)
}

// tick advances the fake clock so a second write is distinguishable.
func (m *memDB) tick() time.Time {
	m.now = m.now.Add(time.Minute)
	return m.now
}

func (m *memDB) addPatient(first, last string) uuid.UUID {
	id := uuid.New()
	m.patients[id] = demographics.Patient{ID: id, FirstName: first, LastName: last, CreatedBy: "seed", UpdatedBy: "seed"}
	return id
}

func (m *memDB) addEntry(patientID uuid.UUID, kind clinical.Kind, title string) uuid.UUID {
	id := uuid.New()
	m.entries[id] = clinical.Entry{ID: id, PatientID: patientID, Kind: kind, Title: title, PerformedAt: m.tick(), CreatedBy: "seed", UpdatedBy: "seed"}
	return id
}

func (m *memDB) addTxn(patientID uuid.UUID, kind finance.Kind, amount string) uuid.UUID {
	id := uuid.New()
	m.txns[id] = finance.Transaction{ID: id, PatientID: patientID, Kind: kind, Amount: mustDecimal(amount), Currency: "TRY", OccurredAt: m.tick(), CreatedBy: "seed", UpdatedBy: "seed"}
	return id
}

// memUoW snapshots the store before fn and restores it when fn fails. With
// conn set it holds that connection slot for the whole call.
type memUoW struct {
	db        *memDB
	conn      chan struct{}
	commits   int
	rollbacks int
}

func (u *memUoW) Do(ctx context.Context, fn func(ctx context.Context) error) error {
	if u.conn != nil {
		u.conn <- struct{}{}
		defer func() { <-u.conn }()
	}
	snap := u.db.snapshot()
	if err := fn(ctx); err != nil {
		u.db.restore(snap)
		u.rollbacks++
		return err
	}
	if err := ctx.Err(); err != nil {
		u.db.restore(snap)
		u.rollbacks++
		return err
	}
	u.commits++
	return nil
}

// faults injects behavior into one fake shard.
type faults struct {
	err   error
	panic any
	block chan struct{}
}

func (f *faults) apply(ctx context.Context) error {
	if f == nil {
		return nil
	}
	if f.block != nil {
		select {
		case <-f.block:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	if f.panic != nil {
		panic(f.panic)
	}
	return f.err
}

type fakePatients struct {
	db *memDB
	f  *faults
}

func (r *fakePatients) Create(ctx context.Context, p *demographics.Patient) error {
	if err := r.f.apply(ctx); err != nil {
		return err
	}
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	r.db.record("demographics.Create")
	r.db.patients[p.ID] = *p
	return nil
}

func (r *fakePatients) GetByID(ctx context.Context, id uuid.UUID) (*demographics.Patient, error) {
	if err := r.f.apply(ctx); err != nil {
		return nil, err
	}
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	r.db.record("demographics.GetByID")
	p, ok := r.db.patients[id]
	if !ok {
		return nil, demographics.ErrNotFound
	}
	return &p, nil
}

func (r *fakePatients) Update(ctx context.Context, p *demographics.Patient) error {
	if err := r.f.apply(ctx); err != nil {
		return err
	}
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	r.db.record("demographics.Update")
	cur, ok := r.db.patients[p.ID]
	if !ok || cur.Deleted {
		return demographics.ErrNotFound
	}
	p.CreatedBy = cur.CreatedBy
	r.db.patients[p.ID] = *p
	return nil
}

func (r *fakePatients) SoftDelete(ctx context.Context, id uuid.UUID, actorID string) error {
	if err := r.f.apply(ctx); err != nil {
		return err
	}
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	r.db.record("demographics.SoftDelete")
	p, ok := r.db.patients[id]
	if !ok {
		return demographics.ErrNotFound
	}
	if !p.Deleted {
		at := r.db.tick()
		p.Deleted, p.DeletedAt, p.UpdatedBy, p.UpdatedAt = true, &at, actorID, at
		r.db.patients[id] = p
	}
	return nil
}

func (r *fakePatients) LockActive(ctx context.Context, id uuid.UUID) error {
	if err := r.f.apply(ctx); err != nil {
		return err
	}
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	r.db.record("demographics.LockActive")
	p, ok := r.db.patients[id]
	if !ok || p.Deleted {
		return demographics.ErrNotFound
	}
	return nil
}

type fakeClinical struct {
	db *memDB
	f  *faults
}

func (r *fakeClinical) Create(ctx context.Context, e *clinical.Entry) error {
	if err := r.f.apply(ctx); err != nil {
		return err
	}
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	r.db.record("clinical.Create")
	if e.ID == uuid.Nil {
		e.ID = uuid.New()
	}
	r.db.entries[e.ID] = *e
	return nil
}

func (r *fakeClinical) GetByID(ctx context.Context, id uuid.UUID) (*clinical.Entry, error) {
	if err := r.f.apply(ctx); err != nil {
		return nil, err
	}
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	e, ok := r.db.entries[id]
	if !ok {
		return nil, clinical.ErrNotFound
	}
	return &e, nil
}

func (r *fakeClinical) ListByPatient(ctx context.Context, patientID uuid.UUID, includeDeleted bool) ([]*clinical.Entry, error) {
	if err := r.f.apply(ctx); err != nil {
		return nil, err
	}
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	r.db.record("clinical.ListByPatient")
	out := make([]*clinical.Entry, 0)
	for _, e := range r.db.entries {
		if e.PatientID == patientID && (includeDeleted || !e.Deleted) {
			e := e
			out = append(out, &e)
		}
	}
	return out, nil
}

func (r *fakeClinical) SoftDelete(ctx context.Context, id uuid.UUID, actorID string) error {
	if err := r.f.apply(ctx); err != nil {
		return err
	}
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	e, ok := r.db.entries[id]
	if !ok {
		return clinical.ErrNotFound
	}
	if !e.Deleted {
		at := r.db.tick()
		e.Deleted, e.DeletedAt, e.UpdatedBy = true, &at, actorID
		r.db.entries[id] = e
	}
	return nil
}

func (r *fakeClinical) SoftDeleteByPatient(ctx context.Context, patientID uuid.UUID, actorID string) (int, error) {
	if err := r.f.apply(ctx); err != nil {
		return 0, err
	}
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	r.db.record("clinical.SoftDeleteByPatient")
	n := 0
	for id, e := range r.db.entries {
		if e.PatientID == patientID && !e.Deleted {
			at := r.db.tick()
			e.Deleted, e.DeletedAt, e.UpdatedBy = true, &at, actorID
			r.db.entries[id] = e
			n++
		}
	}
	return n, nil
}

type fakeFinance struct {
	db *memDB
	f  *faults
}

func (r *fakeFinance) Create(ctx context.Context, t *finance.Transaction) error {
	if err := r.f.apply(ctx); err != nil {
		return err
	}
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	r.db.record("finance.Create")
	if t.ID == uuid.Nil {
		t.ID = uuid.New()
	}
	r.db.txns[t.ID] = *t
	return nil
}

func (r *fakeFinance) GetByID(ctx context.Context, id uuid.UUID) (*finance.Transaction, error) {
	if err := r.f.apply(ctx); err != nil {
		return nil, err
	}
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	t, ok := r.db.txns[id]
	if !ok {
		return nil, finance.ErrNotFound
	}
	return &t, nil
}

func (r *fakeFinance) ListByPatient(ctx context.Context, patientID uuid.UUID, includeDeleted bool) ([]*finance.Transaction, error) {
	if err := r.f.apply(ctx); err != nil {
		return nil, err
	}
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	r.db.record("finance.ListByPatient")
	out := make([]*finance.Transaction, 0)
	for _, t := range r.db.txns {
		if t.PatientID == patientID && (includeDeleted || !t.Deleted) {
			t := t
			out = append(out, &t)
		}
	}
	return out, nil
}

func (r *fakeFinance) SoftDelete(ctx context.Context, id uuid.UUID, actorID string) error {
	if err := r.f.apply(ctx); err != nil {
		return err
	}
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	t, ok := r.db.txns[id]
	if !ok {
		return finance.ErrNotFound
	}
	if !t.Deleted {
		at := r.db.tick()
		t.Deleted, t.DeletedAt, t.UpdatedBy = true, &at, actorID
		r.db.txns[id] = t
	}
	return nil
}

func (r *fakeFinance) SoftDeleteByPatient(ctx context.Context, patientID uuid.UUID, actorID string) (int, error) {
	if err := r.f.apply(ctx); err != nil {
		return 0, err
	}
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	r.db.record("finance.SoftDeleteByPatient")
	n := 0
	for id, t := range r.db.txns {
		if t.PatientID == patientID && !t.Deleted {
			at := r.db.tick()
			t.Deleted, t.DeletedAt, t.UpdatedBy = true, &at, actorID
			r.db.txns[id] = t
			n++
		}
	}
	return n, nil
}

type auditEntry struct {
	actorID      string
	action       string
	resourceType string
	resourceID   string
	details      map[string]any
}

type auditSpy struct {
	mu      sync.Mutex
	entries []auditEntry
}

func (s *auditSpy) Log(_ context.Context, actor auth.Actor, action, resourceType, resourceID string, details map[string]any) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries = append(s.entries, auditEntry{actor.ID(), action, resourceType, resourceID, details})
}

func (s *auditSpy) byAction(action string) []auditEntry {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []auditEntry
	for _, e := range s.entries {
		if e.action == action {
			out = append(out, e)
		}
	}
	return out
}

// poolStore is an audit store sharing a single connection slot with memUoW.
type poolStore struct {
	conn    chan struct{}
	mu      sync.Mutex
	records []*audit.Record
}

func newPoolStore() *poolStore {
	return &poolStore{conn: make(chan struct{}, 1)}
}

func (s *poolStore) Append(ctx context.Context, rec *audit.Record) error {
	select {
	case s.conn <- struct{}{}:
	case <-ctx.Done():
		return ctx.Err()
	}
	defer func() { <-s.conn }()

	s.mu.Lock()
	defer s.mu.Unlock()
	s.records = append(s.records, rec)
	return nil
}

func (s *poolStore) written() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, 0, len(s.records))
	for _, r := range s.records {
		out = append(out, r.ResourceType+" "+r.Action+" "+r.Details["outcome"].(string))
	}
	return out
}

type failureCounter struct {
	mu   sync.Mutex
	errs []error
}

func (f *failureCounter) Report(_ context.Context, err error, _ map[string]any) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.errs = append(f.errs, err)
}

func (f *failureCounter) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.errs)
}

// harness wires the fakes into every orchestrator.
type harness struct {
	db       *memDB
	uow      *memUoW
	audit    *auditSpy
	patients *fakePatients
	clinical *fakeClinical
	finance  *fakeFinance
}

func newHarness() *harness {
	db := newMemDB()
	return &harness{
		db:       db,
		uow:      &memUoW{db: db},
		audit:    &auditSpy{},
		patients: &fakePatients{db: db},
		clinical: &fakeClinical{db: db},
		finance:  &fakeFinance{db: db},
	}
}

func (h *harness) shards() Shards {
	return Shards{Patients: h.patients, Clinical: h.clinical, Finance: h.finance}
}

func (h *harness) options() Options {
	return Options{UnitOfWork: h.uow, Audit: h.audit, Logger: zerolog.Nop(), Timeout: 5 * time.Second}
}

func mustDecimal(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

var errShardDown = errors.New("connection refused")

var testPatient = demographics.Patient{FirstName: "A", LastName: "B"}

var testActor = auth.NewActor("dr-kaya", "Dr. Kaya", "10.1.1.1", "req-42")
