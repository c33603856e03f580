package orchestrator

import (
	"context"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/ehr/records/internal/domain/finance"
	"github.com/ehr/records/internal/platform/auth"
)

// FinanceOrchestrator writes ledger entries under an active anchor.
type FinanceOrchestrator struct {
	shards Shards
	opts   Options
	logger zerolog.Logger
}

// NewFinanceOrchestrator returns an orchestrator writing through shards.
func NewFinanceOrchestrator(shards Shards, opts Options) *FinanceOrchestrator {
	return &FinanceOrchestrator{
		shards: shards,
		opts:   opts,
		logger: opts.Logger.With().Str("component", "finance_orchestrator").Logger(),
	}
}

// RecordTransaction validates t and stores it after locking its patient, so a
// transaction is never attached to a patient deleted concurrently.
func (o *FinanceOrchestrator) RecordTransaction(ctx context.Context, t *finance.Transaction, actor auth.Actor) error {
	if err := t.Validate(); err != nil {
		return invalidInput(err)
	}
	ctx, actor, cancel := begin(ctx, actor, o.opts.Timeout)
	defer cancel()

	t.CreatedBy = actor.ID()
	t.UpdatedBy = actor.ID()
	err := o.opts.inUnit(ctx, func(ctx context.Context) error {
		if err := lockAnchor(ctx, o.shards.Patients, t.PatientID); err != nil {
			return err
		}
		if err := o.shards.Finance.Create(ctx, t); err != nil {
			return &ShardFailure{Shard: ShardFinance, Op: "create", Err: err}
		}
		return nil
	})
	if err != nil {
		err = asShardFailure(ShardFinance, "transaction", err)
		o.logger.Error().Err(err).Str("patient_id", t.PatientID.String()).Msg("finance transaction not recorded")
		return err
	}
	o.logger.Info().
		Str("patient_id", t.PatientID.String()).
		Str("transaction_id", t.ID.String()).
		Str("kind", string(t.Kind)).
		Msg("finance transaction recorded")
	return nil
}

// PurgeForPatient soft-deletes every transaction of an active patient and
// leaves the other shards alone.
func (o *FinanceOrchestrator) PurgeForPatient(ctx context.Context, patientID uuid.UUID, actor auth.Actor) (int, error) {
	ctx, actor, cancel := begin(ctx, actor, o.opts.Timeout)
	defer cancel()

	var count int
	err := o.opts.inUnit(ctx, func(ctx context.Context) error {
		if err := lockAnchor(ctx, o.shards.Patients, patientID); err != nil {
			return err
		}
		n, err := o.shards.Finance.SoftDeleteByPatient(ctx, patientID, actor.ID())
		if err != nil {
			return &ShardFailure{Shard: ShardFinance, Op: "soft_delete_by_patient", Err: err}
		}
		count = n
		return nil
	})
	if err != nil {
		return 0, asShardFailure(ShardFinance, "transaction", err)
	}
	o.logger.Info().Str("patient_id", patientID.String()).Int("count", count).Msg("finance transactions purged")
	return count, nil
}
