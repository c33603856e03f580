// Package api exposes the orchestrators and the legacy adapter over HTTP.
package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/ehr/records/internal/domain/clinical"
	"github.com/ehr/records/internal/domain/demographics"
	"github.com/ehr/records/internal/domain/finance"
	"github.com/ehr/records/internal/legacy"
	"github.com/ehr/records/internal/orchestrator"
	"github.com/ehr/records/internal/platform/auth"
	"github.com/ehr/records/pkg/pagination"
)

type PatientService interface {
	Purge(ctx context.Context, patientID uuid.UUID, actor auth.Actor) (*orchestrator.PurgeResult, error)
	GetPatient(ctx context.Context, id uuid.UUID, actor auth.Actor) (*demographics.Patient, error)
	UpdateDemographics(ctx context.Context, p *demographics.Patient, actor auth.Actor) error
}

type ClinicalService interface {
	RecordEntry(ctx context.Context, e *clinical.Entry, actor auth.Actor) error
	ListEntries(ctx context.Context, patientID uuid.UUID, actor auth.Actor) ([]*clinical.Entry, error)
}

type FinanceService interface {
	RecordTransaction(ctx context.Context, t *finance.Transaction, actor auth.Actor) error
}

type ReportService interface {
	GetReport(ctx context.Context, patientID uuid.UUID, actor auth.Actor) (*orchestrator.AggregatedReport, error)
}

type LegacyService interface {
	DeletePatient(ctx context.Context, req map[string]any) (map[string]any, error)
	PatientReport(ctx context.Context, req map[string]any) (map[string]any, error)
}

type Handler struct {
	patients PatientService
	clinical ClinicalService
	finance  FinanceService
	reports  ReportService
	legacy   LegacyService
}

func NewHandler(patients PatientService, entries ClinicalService, txns FinanceService, reports ReportService, legacyAPI LegacyService) *Handler {
	return &Handler{
		patients: patients,
		clinical: entries,
		finance:  txns,
		reports:  reports,
		legacy:   legacyAPI,
	}
}

func (h *Handler) RegisterRoutes(api *echo.Group, legacyGroup *echo.Group) {
	api.GET("/patients/:id", h.GetPatient)
	api.PUT("/patients/:id", h.UpdatePatient)
	api.DELETE("/patients/:id", h.DeletePatient)
	api.GET("/patients/:id/report", h.GetReport)
	api.GET("/patients/:id/clinical", h.ListClinicalEntries)
	api.POST("/patients/:id/clinical", h.RecordClinicalEntry)
	api.POST("/patients/:id/transactions", h.RecordTransaction)

	legacyGroup.POST("/hasta/sil", h.LegacyDeletePatient)
	legacyGroup.GET("/hasta/rapor", h.LegacyPatientReport)
}

// actor reads the caller resolved by the actor middleware. Requests that
// reach a handler without one are attributed to the system actor.
func actor(c echo.Context) auth.Actor {
	return auth.ActorOrSystem(c.Request().Context())
}

func patientParam(c echo.Context) (uuid.UUID, error) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return uuid.Nil, echo.NewHTTPError(http.StatusBadRequest, "invalid patient id")
	}
	return id, nil
}

// httpError maps orchestrator errors onto status codes. Shard failures name
// the shard so callers can tell which store was unavailable.
func httpError(err error) error {
	var sf *orchestrator.ShardFailure
	switch {
	case errors.Is(err, orchestrator.ErrPatientNotFound):
		return echo.NewHTTPError(http.StatusNotFound, "patient not found")
	case errors.Is(err, orchestrator.ErrInvalidInput), errors.Is(err, legacy.ErrBadRequest):
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	case errors.As(err, &sf):
		if errors.Is(err, context.DeadlineExceeded) {
			return echo.NewHTTPError(http.StatusGatewayTimeout, fmt.Sprintf("%s shard timed out", sf.Shard)).SetInternal(err)
		}
		return echo.NewHTTPError(http.StatusServiceUnavailable, fmt.Sprintf("%s shard unavailable", sf.Shard)).SetInternal(err)
	default:
		return echo.NewHTTPError(http.StatusInternalServerError, "internal server error").SetInternal(err)
	}
}

func (h *Handler) GetPatient(c echo.Context) error {
	id, err := patientParam(c)
	if err != nil {
		return err
	}
	p, err := h.patients.GetPatient(c.Request().Context(), id, actor(c))
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, p)
}

type updatePatientRequest struct {
	FirstName  string  `json:"first_name" validate:"required,max=100"`
	LastName   string  `json:"last_name" validate:"required,max=100"`
	NationalID *string `json:"national_id" validate:"omitempty,max=32"`
	Email      *string `json:"email" validate:"omitempty,email"`
	Phone      *string `json:"phone" validate:"omitempty,max=32"`
	BirthDate  *string `json:"birth_date"`
	Gender     *string `json:"gender" validate:"omitempty,oneof=male female other unknown"`
	Address    *string `json:"address" validate:"omitempty,max=500"`
}

func (h *Handler) UpdatePatient(c echo.Context) error {
	id, err := patientParam(c)
	if err != nil {
		return err
	}
	var req updatePatientRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	if err := c.Validate(&req); err != nil {
		return err
	}
	p, err := req.patient(id)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if err := h.patients.UpdateDemographics(c.Request().Context(), p, actor(c)); err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, p)
}

func (h *Handler) DeletePatient(c echo.Context) error {
	id, err := patientParam(c)
	if err != nil {
		return err
	}
	res, err := h.patients.Purge(c.Request().Context(), id, actor(c))
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, res)
}

// GetReport answers 200 for degraded reports; the body's warnings and
// is_complete fields say which sections are missing.
func (h *Handler) GetReport(c echo.Context) error {
	id, err := patientParam(c)
	if err != nil {
		return err
	}
	report, err := h.reports.GetReport(c.Request().Context(), id, actor(c))
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, report)
}

func (h *Handler) ListClinicalEntries(c echo.Context) error {
	id, err := patientParam(c)
	if err != nil {
		return err
	}
	entries, err := h.clinical.ListEntries(c.Request().Context(), id, actor(c))
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, pagination.Page(entries, pagination.FromContext(c)))
}

type clinicalEntryRequest struct {
	Kind        clinical.Kind `json:"kind" validate:"required,oneof=examination operation lab"`
	Title       string        `json:"title" validate:"required,max=200"`
	Notes       *string       `json:"notes"`
	PerformedAt string        `json:"performed_at" validate:"required"`
	PerformedBy *string       `json:"performed_by" validate:"omitempty,max=100"`
}

func (h *Handler) RecordClinicalEntry(c echo.Context) error {
	id, err := patientParam(c)
	if err != nil {
		return err
	}
	var req clinicalEntryRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	if err := c.Validate(&req); err != nil {
		return err
	}
	e, err := req.entry(id)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if err := h.clinical.RecordEntry(c.Request().Context(), e, actor(c)); err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusCreated, e)
}

type transactionRequest struct {
	Kind        finance.Kind `json:"kind" validate:"required,oneof=charge payment refund"`
	Amount      string       `json:"amount" validate:"required"`
	Currency    string       `json:"currency" validate:"required,len=3,uppercase"`
	Description *string      `json:"description" validate:"omitempty,max=500"`
	CardLast4   *string      `json:"card_last4" validate:"omitempty,len=4,numeric"`
	IBAN        *string      `json:"iban" validate:"omitempty,max=34"`
	OccurredAt  string       `json:"occurred_at" validate:"required"`
}

func (h *Handler) RecordTransaction(c echo.Context) error {
	id, err := patientParam(c)
	if err != nil {
		return err
	}
	var req transactionRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	if err := c.Validate(&req); err != nil {
		return err
	}
	t, err := req.transaction(id)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if err := h.finance.RecordTransaction(c.Request().Context(), t, actor(c)); err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusCreated, t)
}

// -- Legacy Handlers --

func (h *Handler) LegacyDeletePatient(c echo.Context) error {
	req := map[string]any{}
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	out, err := h.legacy.DeletePatient(c.Request().Context(), req)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, out)
}

func (h *Handler) LegacyPatientReport(c echo.Context) error {
	req := map[string]any{}
	for key, values := range c.QueryParams() {
		if len(values) > 0 {
			req[key] = values[0]
		}
	}
	out, err := h.legacy.PatientReport(c.Request().Context(), req)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, out)
}
