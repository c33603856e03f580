package orchestrator

import (
	"context"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/ehr/records/internal/domain/clinical"
	"github.com/ehr/records/internal/platform/auth"
)

// ClinicalOrchestrator writes clinical entries under an active anchor.
type ClinicalOrchestrator struct {
	shards Shards
	opts   Options
	logger zerolog.Logger
}

func NewClinicalOrchestrator(shards Shards, opts Options) *ClinicalOrchestrator {
	return &ClinicalOrchestrator{
		shards: shards,
		opts:   opts,
		logger: opts.Logger.With().Str("component", "clinical_orchestrator").Logger(),
	}
}

// RecordEntry stores e after locking its patient, so the entry can never be
// attached to a patient deleted concurrently.
func (o *ClinicalOrchestrator) RecordEntry(ctx context.Context, e *clinical.Entry, actor auth.Actor) error {
	if err := e.Validate(); err != nil {
		return invalidInput(err)
	}
	ctx, actor, cancel := begin(ctx, actor, o.opts.Timeout)
	defer cancel()

	e.CreatedBy = actor.ID()
	e.UpdatedBy = actor.ID()
	err := o.opts.inUnit(ctx, func(ctx context.Context) error {
		if err := lockAnchor(ctx, o.shards.Patients, e.PatientID); err != nil {
			return err
		}
		if err := o.shards.Clinical.Create(ctx, e); err != nil {
			return &ShardFailure{Shard: ShardClinical, Op: "create", Err: err}
		}
		return nil
	})
	if err != nil {
		err = asShardFailure(ShardClinical, "transaction", err)
		o.logger.Error().Err(err).Str("patient_id", e.PatientID.String()).Msg("clinical entry not recorded")
		return err
	}
	o.logger.Info().
		Str("patient_id", e.PatientID.String()).
		Str("entry_id", e.ID.String()).
		Str("kind", string(e.Kind)).
		Msg("clinical entry recorded")
	return nil
}

// PurgeForPatient soft-deletes every clinical entry of an active patient and
// leaves the other shards alone.
func (o *ClinicalOrchestrator) PurgeForPatient(ctx context.Context, patientID uuid.UUID, actor auth.Actor) (int, error) {
	ctx, actor, cancel := begin(ctx, actor, o.opts.Timeout)
	defer cancel()

	var count int
	err := o.opts.inUnit(ctx, func(ctx context.Context) error {
		if err := lockAnchor(ctx, o.shards.Patients, patientID); err != nil {
			return err
		}
		n, err := o.shards.Clinical.SoftDeleteByPatient(ctx, patientID, actor.ID())
		if err != nil {
			return &ShardFailure{Shard: ShardClinical, Op: "soft_delete_by_patient", Err: err}
		}
		count = n
		return nil
	})
	if err != nil {
		return 0, asShardFailure(ShardClinical, "transaction", err)
	}
	o.logger.Info().Str("patient_id", patientID.String()).Int("count", count).Msg("clinical entries purged")
	return count, nil
}

// ListEntries reads the patient's active clinical entries directly from the
// clinical shard.
func (o *ClinicalOrchestrator) ListEntries(ctx context.Context, patientID uuid.UUID, actor auth.Actor) ([]*clinical.Entry, error) {
	ctx, _, cancel := begin(ctx, actor, o.opts.Timeout)
	defer cancel()

	entries, err := o.shards.Clinical.ListByPatient(ctx, patientID, false)
	if err != nil {
		return nil, &ShardFailure{Shard: ShardClinical, Op: "list_by_patient", Err: err}
	}
	return entries, nil
}
