package orchestrator

import (
	"context"
	"errors"
	"reflect"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/ehr/records/internal/domain/clinical"
	"github.com/ehr/records/internal/domain/demographics"
	"github.com/ehr/records/internal/domain/finance"
	"github.com/ehr/records/internal/platform/audit"
	"github.com/ehr/records/internal/platform/auth"
)

func TestDeleteEverywhere_Success(t *testing.T) {
	h := newHarness()
	pid := h.db.addPatient("A", "B")
	h.db.addEntry(pid, clinical.KindExamination, "Checkup")
	h.db.addEntry(pid, clinical.KindLab, "CBC")
	h.db.addTxn(pid, finance.KindCharge, "100")
	other := h.db.addPatient("C", "D")
	otherEntry := h.db.addEntry(other, clinical.KindLab, "Lipids")

	o := NewPatientOrchestrator(h.shards(), h.options())
	res, err := o.Purge(context.Background(), pid, testActor)
	if err != nil {
		t.Fatalf("Purge: %v", err)
	}

	if res.ClinicalEntries != 2 || res.FinanceTransactions != 1 {
		t.Errorf("unexpected counts: %+v", res)
	}
	want := []string{clinical.ResourceType, finance.ResourceType, demographics.ResourceType}
	wantSorted := []string{"clinical_entry", "finance_transaction", "patient"}
	if !reflect.DeepEqual(res.PurgedResources, wantSorted) {
		t.Errorf("expected purged resources %v, got %v", want, res.PurgedResources)
	}
	if p := h.db.patients[pid]; !p.Deleted || p.UpdatedBy != "dr-kaya" {
		t.Errorf("expected patient soft-deleted by dr-kaya, got %+v", p)
	}
	for _, e := range h.db.entries {
		if e.PatientID == pid && !e.Deleted {
			t.Errorf("entry %s not deleted", e.ID)
		}
	}
	for _, tx := range h.db.txns {
		if !tx.Deleted {
			t.Errorf("transaction %s not deleted", tx.ID)
		}
	}
	if h.db.entries[otherEntry].Deleted {
		t.Error("another patient's entry must not be touched")
	}
	if h.uow.commits != 1 || h.uow.rollbacks != 0 {
		t.Errorf("expected one commit, got commits=%d rollbacks=%d", h.uow.commits, h.uow.rollbacks)
	}

	purges := h.audit.byAction(audit.ActionPatientPurge)
	if len(purges) != 1 {
		t.Fatalf("expected 1 purge audit record, got %d", len(purges))
	}
	if purges[0].actorID != "dr-kaya" || purges[0].resourceID != pid.String() || purges[0].details["outcome"] != audit.OutcomeSuccess {
		t.Errorf("unexpected purge audit record: %+v", purges[0])
	}
}

func TestDeleteEverywhere_Ordering(t *testing.T) {
	h := newHarness()
	pid := h.db.addPatient("A", "B")

	o := NewPatientOrchestrator(h.shards(), h.options())
	if err := o.DeleteEverywhere(context.Background(), pid, testActor); err != nil {
		t.Fatalf("DeleteEverywhere: %v", err)
	}

	want := []string{"clinical.SoftDeleteByPatient", "finance.SoftDeleteByPatient", "demographics.SoftDelete"}
	if got := h.db.callLog(); !reflect.DeepEqual(got, want) {
		t.Errorf("expected calls %v, got %v", want, got)
	}
}

func TestDeleteEverywhere_ClinicalFailureNeverReachesDemographics(t *testing.T) {
	h := newHarness()
	pid := h.db.addPatient("A", "B")
	h.clinical.f = &faults{err: errShardDown}

	o := NewPatientOrchestrator(h.shards(), h.options())
	err := o.DeleteEverywhere(context.Background(), pid, testActor)

	var sf *ShardFailure
	if !errors.As(err, &sf) || sf.Shard != ShardClinical {
		t.Fatalf("expected clinical ShardFailure, got %v", err)
	}
	if !errors.Is(err, errShardDown) {
		t.Errorf("expected cause to be wrapped, got %v", err)
	}
	for _, c := range h.db.callLog() {
		if c == "demographics.SoftDelete" || c == "finance.SoftDeleteByPatient" {
			t.Errorf("unexpected call after clinical failure: %s", c)
		}
	}
	if h.db.patients[pid].Deleted {
		t.Error("patient must remain active")
	}
}

func TestDeleteEverywhere_Atomicity(t *testing.T) {
	tests := []struct {
		name  string
		setup func(h *harness)
		shard Shard
	}{
		{"finance fails", func(h *harness) { h.finance.f = &faults{err: errShardDown} }, ShardFinance},
		{"demographics fails", func(h *harness) { h.patients.f = &faults{err: errShardDown} }, ShardDemographics},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness()
			pid := h.db.addPatient("A", "B")
			h.db.addEntry(pid, clinical.KindOperation, "Appendectomy")
			h.db.addTxn(pid, finance.KindCharge, "2500")
			before := h.db.snapshot()
			tt.setup(h)

			o := NewPatientOrchestrator(h.shards(), h.options())
			err := o.DeleteEverywhere(context.Background(), pid, testActor)

			var sf *ShardFailure
			if !errors.As(err, &sf) || sf.Shard != tt.shard {
				t.Fatalf("expected %s ShardFailure, got %v", tt.shard, err)
			}
			after := h.db.snapshot()
			if !reflect.DeepEqual(before, after) {
				t.Error("expected every shard rolled back to its prior state")
			}
			if h.uow.rollbacks != 1 || h.uow.commits != 0 {
				t.Errorf("expected one rollback, got commits=%d rollbacks=%d", h.uow.commits, h.uow.rollbacks)
			}

			purges := h.audit.byAction(audit.ActionPatientPurge)
			if len(purges) != 1 {
				t.Fatalf("expected failure audit record, got %d", len(purges))
			}
			if purges[0].details["outcome"] != audit.OutcomeFailure || purges[0].details["shard"] != string(tt.shard) {
				t.Errorf("unexpected failure audit details: %v", purges[0].details)
			}
		})
	}
}

func TestDeleteEverywhere_DeadlineRollsBack(t *testing.T) {
	h := newHarness()
	pid := h.db.addPatient("A", "B")
	h.db.addEntry(pid, clinical.KindExamination, "Checkup")
	h.db.addTxn(pid, finance.KindCharge, "100")
	before := h.db.snapshot()
	block := make(chan struct{})
	defer close(block)
	h.finance.f = &faults{block: block}

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	o := NewPatientOrchestrator(h.shards(), h.options())
	err := o.DeleteEverywhere(ctx, pid, testActor)

	var sf *ShardFailure
	if !errors.As(err, &sf) || sf.Shard != ShardFinance {
		t.Fatalf("expected finance ShardFailure, got %v", err)
	}
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("expected deadline cause, got %v", err)
	}
	if !reflect.DeepEqual(before, h.db.snapshot()) {
		t.Error("expected clinical soft deletes rolled back")
	}
	if h.uow.rollbacks != 1 || h.uow.commits != 0 {
		t.Errorf("expected one rollback, got commits=%d rollbacks=%d", h.uow.commits, h.uow.rollbacks)
	}

	purges := h.audit.byAction(audit.ActionPatientPurge)
	if len(purges) != 1 {
		t.Fatalf("expected failure audit record, got %d", len(purges))
	}
	if purges[0].details["outcome"] != audit.OutcomeFailure || purges[0].details["shard"] != string(ShardFinance) {
		t.Errorf("unexpected failure audit details: %v", purges[0].details)
	}
}

func TestDeleteEverywhere_AuditWrittenAfterUnitOfWork(t *testing.T) {
	tests := []struct {
		name  string
		setup func(h *harness)
		want  []string
	}{
		{
			name:  "committed",
			setup: func(*harness) {},
			want: []string{
				"clinical_entry batch_soft_delete success",
				"finance_transaction batch_soft_delete success",
				"patient soft_delete success",
				"patient patient.purge success",
			},
		},
		{
			name:  "rolled back",
			setup: func(h *harness) { h.finance.f = &faults{err: errShardDown} },
			want: []string{
				"clinical_entry batch_soft_delete success",
				"finance_transaction batch_soft_delete failure",
				"patient patient.purge failure",
			},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness()
			pid := h.db.addPatient("A", "B")
			h.db.addEntry(pid, clinical.KindLab, "CBC")
			tt.setup(h)

			// One connection: the unit of work holds it for the whole purge.
			store := newPoolStore()
			h.uow.conn = store.conn
			failures := &failureCounter{}
			rec := audit.NewLogger(store, zerolog.Nop(), audit.WithReporter(failures), audit.WithWriteTimeout(20*time.Millisecond))

			shards := Shards{
				Patients: demographics.NewAuditedRepository(h.patients, rec),
				Clinical: clinical.NewAuditedRepository(h.clinical, rec),
				Finance:  finance.NewAuditedRepository(h.finance, rec),
			}
			opts := h.options()
			opts.Audit = rec

			_ = NewPatientOrchestrator(shards, opts).DeleteEverywhere(context.Background(), pid, testActor)

			if n := failures.count(); n != 0 {
				t.Errorf("expected no dropped audit records, got %d", n)
			}
			if got := store.written(); !reflect.DeepEqual(got, tt.want) {
				t.Errorf("expected audit records %v, got %v", tt.want, got)
			}
		})
	}
}

func TestDeleteEverywhere_Idempotent(t *testing.T) {
	h := newHarness()
	pid := h.db.addPatient("A", "B")
	h.db.addEntry(pid, clinical.KindExamination, "Checkup")
	h.db.addTxn(pid, finance.KindPayment, "50")
	o := NewPatientOrchestrator(h.shards(), h.options())

	if err := o.DeleteEverywhere(context.Background(), pid, testActor); err != nil {
		t.Fatalf("first delete: %v", err)
	}
	first := h.db.snapshot()

	second := auth.NewActor("admin-2", "", "", "")
	res, err := o.Purge(context.Background(), pid, second)
	if err != nil {
		t.Fatalf("second delete: %v", err)
	}
	if res.ClinicalEntries != 0 || res.FinanceTransactions != 0 {
		t.Errorf("expected no changes on repeat, got %+v", res)
	}
	if !reflect.DeepEqual(first, h.db.snapshot()) {
		t.Error("repeated delete must leave identical state")
	}
	if got := h.db.patients[pid].UpdatedBy; got != "dr-kaya" {
		t.Errorf("expected updated_by to stay dr-kaya, got %q", got)
	}
}

func TestDeleteEverywhere_PatientWithoutDependentData(t *testing.T) {
	h := newHarness()
	pid := h.db.addPatient("A", "B")

	o := NewPatientOrchestrator(h.shards(), h.options())
	res, err := o.Purge(context.Background(), pid, testActor)
	if err != nil {
		t.Fatalf("Purge: %v", err)
	}
	if !h.db.patients[pid].Deleted {
		t.Error("expected patient soft-deleted")
	}
	if !reflect.DeepEqual(res.PurgedResources, []string{demographics.ResourceType}) {
		t.Errorf("unexpected purged resources: %v", res.PurgedResources)
	}
}

func TestDeleteEverywhere_UnknownPatient(t *testing.T) {
	h := newHarness()
	pid := uuid.New()
	h.db.addEntry(pid, clinical.KindLab, "orphan")

	o := NewPatientOrchestrator(h.shards(), h.options())
	err := o.DeleteEverywhere(context.Background(), pid, testActor)

	if !errors.Is(err, ErrPatientNotFound) {
		t.Fatalf("expected ErrPatientNotFound, got %v", err)
	}
	if !errors.Is(err, demographics.ErrNotFound) {
		t.Errorf("expected repository sentinel in chain, got %v", err)
	}
	for _, e := range h.db.entries {
		if e.Deleted {
			t.Error("clinical batch delete must be rolled back")
		}
	}
}

func TestDeleteEverywhere_ZeroActorIsSystem(t *testing.T) {
	h := newHarness()
	pid := h.db.addPatient("A", "B")

	o := NewPatientOrchestrator(h.shards(), h.options())
	if err := o.DeleteEverywhere(context.Background(), pid, auth.Actor{}); err != nil {
		t.Fatalf("DeleteEverywhere: %v", err)
	}
	if got := h.db.patients[pid].UpdatedBy; got != auth.SystemActorID {
		t.Errorf("expected updated_by %q, got %q", auth.SystemActorID, got)
	}
}

func TestUpdateDemographics(t *testing.T) {
	h := newHarness()
	pid := h.db.addPatient("A", "B")
	o := NewPatientOrchestrator(h.shards(), h.options())

	p := &demographics.Patient{ID: pid, FirstName: "Ayse", LastName: "B"}
	if err := o.UpdateDemographics(context.Background(), p, testActor); err != nil {
		t.Fatalf("UpdateDemographics: %v", err)
	}
	if got := h.db.patients[pid]; got.FirstName != "Ayse" || got.UpdatedBy != "dr-kaya" {
		t.Errorf("unexpected stored patient: %+v", got)
	}

	if err := o.UpdateDemographics(context.Background(), &demographics.Patient{ID: pid}, testActor); !errors.Is(err, ErrInvalidInput) {
		t.Errorf("expected ErrInvalidInput, got %v", err)
	}

	if err := o.DeleteEverywhere(context.Background(), pid, testActor); err != nil {
		t.Fatalf("DeleteEverywhere: %v", err)
	}
	if err := o.UpdateDemographics(context.Background(), p, testActor); !errors.Is(err, ErrPatientNotFound) {
		t.Errorf("expected ErrPatientNotFound for deleted patient, got %v", err)
	}
}

func TestGetPatient(t *testing.T) {
	h := newHarness()
	pid := h.db.addPatient("A", "B")
	o := NewPatientOrchestrator(h.shards(), h.options())

	p, err := o.GetPatient(context.Background(), pid, testActor)
	if err != nil || p.FirstName != "A" {
		t.Fatalf("GetPatient: %v, %+v", err, p)
	}

	h.patients.f = &faults{err: errShardDown}
	_, err = o.GetPatient(context.Background(), pid, testActor)
	var sf *ShardFailure
	if !errors.As(err, &sf) || sf.Shard != ShardDemographics {
		t.Errorf("expected demographics ShardFailure, got %v", err)
	}
}
