package orchestrator

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/ehr/records/internal/domain/clinical"
	"github.com/ehr/records/internal/domain/demographics"
	"github.com/ehr/records/internal/domain/finance"
	"github.com/ehr/records/internal/platform/audit"
	"github.com/ehr/records/internal/platform/auth"
)

// Warnings added to a report when a dependent shard contributes nothing.
const (
	WarningClinicalUnavailable = "clinical data unavailable"
	WarningFinanceUnavailable  = "financial data unavailable"
)

var shardWarnings = map[Shard]string{
	ShardClinical: WarningClinicalUnavailable,
	ShardFinance:  WarningFinanceUnavailable,
}

// AggregatedReport is assembled per request and never stored. A nil section
// means the shard failed; an empty section means the shard had no data.
type AggregatedReport struct {
	PatientID      uuid.UUID             `json:"patient_id"`
	Demographics   *demographics.Patient `json:"demographics"`
	Examinations   []clinical.Summary    `json:"examinations"`
	FinanceSummary *finance.Summary      `json:"finance_summary"`
	Warnings       []string              `json:"warnings"`
	GeneratedAt    time.Time             `json:"generated_at"`
}

// IsComplete reports whether every section is present.
func (r *AggregatedReport) IsComplete() bool {
	return len(r.Warnings) == 0 && r.Demographics != nil && r.FinanceSummary != nil
}

func (r *AggregatedReport) MarshalJSON() ([]byte, error) {
	type report AggregatedReport
	return json.Marshal(struct {
		*report
		IsComplete bool `json:"is_complete"`
	}{(*report)(r), r.IsComplete()})
}

// ReportOrchestrator assembles patient reports across shards.
type ReportOrchestrator struct {
	shards Shards
	opts   Options
	logger zerolog.Logger
}

func NewReportOrchestrator(shards Shards, opts Options) *ReportOrchestrator {
	return &ReportOrchestrator{
		shards: shards,
		opts:   opts,
		logger: opts.Logger.With().Str("component", "report_orchestrator").Logger(),
	}
}

type section struct {
	shard Shard
	apply func(*AggregatedReport)
	err   error
}

// GetReport reads the anchor record, then the clinical and finance shards
// concurrently. Only a missing or deleted anchor, or a failing demographics
// shard, fails the call. A dependent shard that errors, panics or does not
// answer before ctx is done is left out and named in Warnings.
func (o *ReportOrchestrator) GetReport(ctx context.Context, patientID uuid.UUID, actor auth.Actor) (*AggregatedReport, error) {
	ctx, actor, cancel := begin(ctx, actor, o.opts.Timeout)
	defer cancel()

	report, err := o.assemble(ctx, patientID)

	details := map[string]any{"outcome": audit.OutcomeSuccess}
	if err != nil {
		details["outcome"] = audit.OutcomeFailure
		details["error"] = err.Error()
	} else {
		details["warnings"] = report.Warnings
		details["complete"] = report.IsComplete()
	}
	o.opts.recorder().Log(ctx, actor, audit.ActionReport, demographics.ResourceType, patientID.String(), details)

	return report, err
}

func (o *ReportOrchestrator) assemble(ctx context.Context, patientID uuid.UUID) (*AggregatedReport, error) {
	patient, err := o.shards.Patients.GetByID(ctx, patientID)
	if errors.Is(err, demographics.ErrNotFound) {
		return nil, patientNotFound(patientID, err)
	}
	if err != nil {
		o.logger.Error().Err(err).Str("patient_id", patientID.String()).Str("shard", string(ShardDemographics)).Msg("report anchor unavailable")
		return nil, &ShardFailure{Shard: ShardDemographics, Op: "get_by_id", Err: err}
	}
	if patient.Deleted {
		return nil, patientNotFound(patientID, nil)
	}

	report := &AggregatedReport{
		PatientID:    patientID,
		Demographics: patient,
		Warnings:     []string{},
		GeneratedAt:  time.Now().UTC(),
	}

	// Buffered so a shard answering after the deadline never blocks.
	results := make(chan section, 2)
	go fetchSection(ctx, ShardClinical, results, func(ctx context.Context) (func(*AggregatedReport), error) {
		entries, err := o.shards.Clinical.ListByPatient(ctx, patientID, false)
		if err != nil {
			return nil, err
		}
		summaries := clinical.Summarize(entries)
		return func(r *AggregatedReport) { r.Examinations = summaries }, nil
	})
	go fetchSection(ctx, ShardFinance, results, func(ctx context.Context) (func(*AggregatedReport), error) {
		txns, err := o.shards.Finance.ListByPatient(ctx, patientID, false)
		if err != nil {
			return nil, err
		}
		summary := finance.Summarize(txns)
		return func(r *AggregatedReport) { r.FinanceSummary = summary }, nil
	})

	pending := map[Shard]bool{ShardClinical: true, ShardFinance: true}
	for len(pending) > 0 {
		select {
		case res := <-results:
			delete(pending, res.shard)
			if res.err != nil {
				o.degrade(report, res.shard, res.err)
				continue
			}
			res.apply(report)
		case <-ctx.Done():
			for _, shard := range []Shard{ShardClinical, ShardFinance} {
				if pending[shard] {
					o.degrade(report, shard, ctx.Err())
				}
			}
			pending = nil
		}
	}
	return report, nil
}

func (o *ReportOrchestrator) degrade(report *AggregatedReport, shard Shard, err error) {
	report.Warnings = append(report.Warnings, shardWarnings[shard])
	o.logger.Warn().
		Err(err).
		Str("patient_id", report.PatientID.String()).
		Str("shard", string(shard)).
		Msg("report section unavailable")
}

// fetchSection runs fn in its own failure boundary and always delivers exactly
// one result to out.
func fetchSection(ctx context.Context, shard Shard, out chan<- section, fn func(context.Context) (func(*AggregatedReport), error)) {
	defer func() {
		if p := recover(); p != nil {
			out <- section{shard: shard, err: fmt.Errorf("panic: %v", p)}
		}
	}()
	apply, err := fn(ctx)
	out <- section{shard: shard, apply: apply, err: err}
}
