// Package legacy maps the flat, string-keyed request and response shape of
// the old patient API onto the orchestrators.
package legacy

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/ehr/records/internal/domain/clinical"
	"github.com/ehr/records/internal/domain/demographics"
	"github.com/ehr/records/internal/domain/finance"
	"github.com/ehr/records/internal/orchestrator"
	"github.com/ehr/records/internal/platform/auth"
)

// Request and response keys of the legacy API.
const (
	KeyPatientID = "hasta_id"
	KeyUserID    = "kullanici_id"
	KeyUserName  = "kullanici_adi"
)

// ErrBadRequest reports a malformed legacy request.
var ErrBadRequest = errors.New("legacy: bad request")

type Purger interface {
	Purge(ctx context.Context, patientID uuid.UUID, actor auth.Actor) (*orchestrator.PurgeResult, error)
}

type Reporter interface {
	GetReport(ctx context.Context, patientID uuid.UUID, actor auth.Actor) (*orchestrator.AggregatedReport, error)
}

type Adapter struct {
	purger   Purger
	reporter Reporter
}

func NewAdapter(purger Purger, reporter Reporter) *Adapter {
	return &Adapter{purger: purger, reporter: reporter}
}

// DeletePatient handles {hasta_id, kullanici_id}.
func (a *Adapter) DeletePatient(ctx context.Context, req map[string]any) (map[string]any, error) {
	id, err := patientID(req)
	if err != nil {
		return nil, err
	}
	res, err := a.purger.Purge(ctx, id, actorFor(ctx, req))
	if err != nil {
		return nil, err
	}
	return map[string]any{
		"durum":          "silindi",
		KeyPatientID:     id.String(),
		"klinik_kayit":   res.ClinicalEntries,
		"finans_kayit":   res.FinanceTransactions,
		"silinen_tipler": res.PurgedResources,
	}, nil
}

// PatientReport handles {hasta_id, kullanici_id}. Missing sections are
// returned as nil values, empty ones as empty lists.
func (a *Adapter) PatientReport(ctx context.Context, req map[string]any) (map[string]any, error) {
	id, err := patientID(req)
	if err != nil {
		return nil, err
	}
	report, err := a.reporter.GetReport(ctx, id, actorFor(ctx, req))
	if err != nil {
		return nil, err
	}

	out := map[string]any{
		KeyPatientID:   id.String(),
		"hasta":        patientFields(report.Demographics),
		"muayeneler":   nil,
		"finans_ozeti": nil,
		"uyarilar":     report.Warnings,
		"tam":          report.IsComplete(),
	}
	if report.Examinations != nil {
		out["muayeneler"] = examinationFields(report.Examinations)
	}
	if report.FinanceSummary != nil {
		out["finans_ozeti"] = summaryFields(report.FinanceSummary)
	}
	return out, nil
}

func patientID(req map[string]any) (uuid.UUID, error) {
	raw, ok := req[KeyPatientID]
	if !ok {
		return uuid.Nil, fmt.Errorf("%w: %s is required", ErrBadRequest, KeyPatientID)
	}
	s, ok := raw.(string)
	if !ok {
		return uuid.Nil, fmt.Errorf("%w: %s must be a string", ErrBadRequest, KeyPatientID)
	}
	id, err := uuid.Parse(strings.TrimSpace(s))
	if err != nil {
		return uuid.Nil, fmt.Errorf("%w: %s: %v", ErrBadRequest, KeyPatientID, err)
	}
	return id, nil
}

// actorFor prefers the authenticated actor. kullanici_id is only trusted when
// the call carries no identity, as with the CLI.
func actorFor(ctx context.Context, req map[string]any) auth.Actor {
	if a, ok := auth.ActorFromContext(ctx); ok {
		return a
	}
	userID, _ := req[KeyUserID].(string)
	if strings.TrimSpace(userID) == "" {
		return auth.System()
	}
	name, _ := req[KeyUserName].(string)
	return auth.NewActor(strings.TrimSpace(userID), name, "", "")
}

func patientFields(p *demographics.Patient) map[string]any {
	if p == nil {
		return nil
	}
	m := map[string]any{
		"ad":    p.FirstName,
		"soyad": p.LastName,
	}
	if p.NationalID != nil {
		m["tc_kimlik_no"] = *p.NationalID
	}
	if p.BirthDate != nil {
		m["dogum_tarihi"] = p.BirthDate.Format("2006-01-02")
	}
	if p.Gender != nil {
		m["cinsiyet"] = *p.Gender
	}
	if p.Phone != nil {
		m["telefon"] = *p.Phone
	}
	return m
}

func examinationFields(summaries []clinical.Summary) []map[string]any {
	out := make([]map[string]any, 0, len(summaries))
	for _, s := range summaries {
		out = append(out, map[string]any{
			"id":     s.ID.String(),
			"tur":    string(s.Kind),
			"baslik": s.Title,
			"tarih":  s.PerformedAt.Format(time.RFC3339),
		})
	}
	return out
}

func summaryFields(s *finance.Summary) map[string]any {
	balances := make([]map[string]any, 0, len(s.Currencies))
	for _, c := range s.Currencies {
		balances = append(balances, map[string]any{
			"para_birimi":  c.Currency,
			"islem_sayisi": c.TransactionCount,
			"toplam_borc":  c.TotalCharges.StringFixed(2),
			"toplam_odeme": c.TotalPayments.StringFixed(2),
			"toplam_iade":  c.TotalRefunds.StringFixed(2),
			"bakiye":       c.Balance.StringFixed(2),
		})
	}
	m := map[string]any{
		"islem_sayisi": s.TransactionCount,
		"bakiyeler":    balances,
	}
	if s.LastTransactionAt != nil {
		m["son_islem"] = s.LastTransactionAt.Format(time.RFC3339)
	}
	return m
}
