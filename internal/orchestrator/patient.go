package orchestrator

import (
	"context"
	"errors"
	"slices"

	mapset "github.com/deckarep/golang-set/v2"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/ehr/records/internal/domain/clinical"
	"github.com/ehr/records/internal/domain/demographics"
	"github.com/ehr/records/internal/domain/finance"
	"github.com/ehr/records/internal/platform/audit"
	"github.com/ehr/records/internal/platform/auth"
)

// PatientOrchestrator runs mutations that span every shard of a patient.
type PatientOrchestrator struct {
	shards Shards
	opts   Options
	logger zerolog.Logger
}

func NewPatientOrchestrator(shards Shards, opts Options) *PatientOrchestrator {
	return &PatientOrchestrator{
		shards: shards,
		opts:   opts,
		logger: opts.Logger.With().Str("component", "patient_orchestrator").Logger(),
	}
}

// PurgeResult describes what a successful DeleteEverywhere changed.
type PurgeResult struct {
	PatientID           uuid.UUID `json:"patient_id"`
	ClinicalEntries     int       `json:"clinical_entries"`
	FinanceTransactions int       `json:"finance_transactions"`
	PurgedResources     []string  `json:"purged_resources"`
}

// DeleteEverywhere soft-deletes the patient's clinical entries, then finance
// transactions, then the demographics record, in one unit of work. A failure
// at any step rolls back all of them. Repeating the call on a deleted patient
// succeeds without changing anything.
func (o *PatientOrchestrator) DeleteEverywhere(ctx context.Context, patientID uuid.UUID, actor auth.Actor) error {
	_, err := o.Purge(ctx, patientID, actor)
	return err
}

// Purge is DeleteEverywhere returning per-shard counts.
func (o *PatientOrchestrator) Purge(ctx context.Context, patientID uuid.UUID, actor auth.Actor) (*PurgeResult, error) {
	ctx, actor, cancel := begin(ctx, actor, o.opts.Timeout)
	defer cancel()

	result := &PurgeResult{PatientID: patientID}
	purged := mapset.NewThreadUnsafeSet[string]()

	err := o.opts.inUnit(ctx, func(ctx context.Context) error {
		n, err := o.shards.Clinical.SoftDeleteByPatient(ctx, patientID, actor.ID())
		if err != nil {
			return &ShardFailure{Shard: ShardClinical, Op: "soft_delete_by_patient", Err: err}
		}
		result.ClinicalEntries = n
		if n > 0 {
			purged.Add(clinical.ResourceType)
		}

		n, err = o.shards.Finance.SoftDeleteByPatient(ctx, patientID, actor.ID())
		if err != nil {
			return &ShardFailure{Shard: ShardFinance, Op: "soft_delete_by_patient", Err: err}
		}
		result.FinanceTransactions = n
		if n > 0 {
			purged.Add(finance.ResourceType)
		}

		if err := o.shards.Patients.SoftDelete(ctx, patientID, actor.ID()); err != nil {
			if errors.Is(err, demographics.ErrNotFound) {
				return patientNotFound(patientID, err)
			}
			return &ShardFailure{Shard: ShardDemographics, Op: "soft_delete", Err: err}
		}
		purged.Add(demographics.ResourceType)
		return nil
	})
	if err != nil {
		err = asShardFailure(ShardDemographics, "transaction", err)
		o.recordPurgeFailure(ctx, actor, patientID, err)
		return nil, err
	}

	result.PurgedResources = purged.ToSlice()
	slices.Sort(result.PurgedResources)

	o.opts.recorder().Log(ctx, actor, audit.ActionPatientPurge, demographics.ResourceType, patientID.String(), map[string]any{
		"outcome":              audit.OutcomeSuccess,
		"purged_resources":     result.PurgedResources,
		"clinical_entries":     result.ClinicalEntries,
		"finance_transactions": result.FinanceTransactions,
	})
	o.logger.Info().
		Str("patient_id", patientID.String()).
		Str("actor_id", actor.ID()).
		Int("clinical_entries", result.ClinicalEntries).
		Int("finance_transactions", result.FinanceTransactions).
		Msg("patient purged from all shards")
	return result, nil
}

func (o *PatientOrchestrator) recordPurgeFailure(ctx context.Context, actor auth.Actor, patientID uuid.UUID, err error) {
	details := map[string]any{
		"outcome": audit.OutcomeFailure,
		"error":   err.Error(),
	}
	level := zerolog.ErrorLevel
	if errors.Is(err, ErrPatientNotFound) {
		level = zerolog.WarnLevel
	}
	evt := o.logger.WithLevel(level).Err(err).Str("patient_id", patientID.String()).Str("actor_id", actor.ID())

	var sf *ShardFailure
	if errors.As(err, &sf) {
		details["shard"] = string(sf.Shard)
		details["op"] = sf.Op
		evt = evt.Str("shard", string(sf.Shard)).Str("op", sf.Op)
	}

	o.opts.recorder().Log(ctx, actor, audit.ActionPatientPurge, demographics.ResourceType, patientID.String(), details)
	evt.Msg("patient purge rolled back")
}

// UpdateDemographics rewrites an active patient's demographics.
func (o *PatientOrchestrator) UpdateDemographics(ctx context.Context, p *demographics.Patient, actor auth.Actor) error {
	if err := p.Validate(); err != nil {
		return invalidInput(err)
	}
	ctx, actor, cancel := begin(ctx, actor, o.opts.Timeout)
	defer cancel()

	err := o.opts.inUnit(ctx, func(ctx context.Context) error {
		if err := lockAnchor(ctx, o.shards.Patients, p.ID); err != nil {
			return err
		}
		p.UpdatedBy = actor.ID()
		if err := o.shards.Patients.Update(ctx, p); err != nil {
			if errors.Is(err, demographics.ErrNotFound) {
				return patientNotFound(p.ID, err)
			}
			return &ShardFailure{Shard: ShardDemographics, Op: "update", Err: err}
		}
		return nil
	})
	if err != nil {
		return asShardFailure(ShardDemographics, "transaction", err)
	}
	return nil
}

// GetPatient reads the anchor record directly. Soft-deleted patients are
// reported as not found.
func (o *PatientOrchestrator) GetPatient(ctx context.Context, id uuid.UUID, actor auth.Actor) (*demographics.Patient, error) {
	ctx, _, cancel := begin(ctx, actor, o.opts.Timeout)
	defer cancel()

	p, err := o.shards.Patients.GetByID(ctx, id)
	if errors.Is(err, demographics.ErrNotFound) {
		return nil, patientNotFound(id, err)
	}
	if err != nil {
		return nil, &ShardFailure{Shard: ShardDemographics, Op: "get_by_id", Err: err}
	}
	if p.Deleted {
		return nil, patientNotFound(id, nil)
	}
	return p, nil
}
