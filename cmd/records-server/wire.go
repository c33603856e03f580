package main

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"

	"github.com/ehr/records/internal/config"
	"github.com/ehr/records/internal/domain/clinical"
	"github.com/ehr/records/internal/domain/demographics"
	"github.com/ehr/records/internal/domain/finance"
	"github.com/ehr/records/internal/legacy"
	"github.com/ehr/records/internal/orchestrator"
	"github.com/ehr/records/internal/platform/audit"
	"github.com/ehr/records/internal/platform/db"
)

func newLogger(cfg *config.Config, w io.Writer) zerolog.Logger {
	if cfg.IsDev() {
		return zerolog.New(zerolog.ConsoleWriter{Out: w}).With().Timestamp().Logger()
	}
	return zerolog.New(w).With().Timestamp().Logger()
}

func loadConfig() (*config.Config, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

func poolConfig(cfg *config.Config) db.PoolConfig {
	return db.PoolConfig{
		URL:      cfg.DatabaseURL,
		MaxConns: cfg.DBMaxConns,
		MinConns: cfg.DBMinConns,
		AppName:  db.AppName,
	}
}

// auditPoolConfig sizes the pool used only by the audit store.
func auditPoolConfig(cfg *config.Config) db.PoolConfig {
	return db.PoolConfig{
		URL:             cfg.DatabaseURL,
		MaxConns:        cfg.AuditDBMaxConns,
		MinConns:        1,
		AppName:         db.AuditAppName,
		MaxConnIdleTime: 5 * time.Minute,
	}
}

func openPool(ctx context.Context, cfg *config.Config) (*pgxpool.Pool, error) {
	return db.NewPool(ctx, poolConfig(cfg))
}

// openPools opens the business pool and the audit pool. The caller closes
// both.
func openPools(ctx context.Context, cfg *config.Config) (pool, auditPool *pgxpool.Pool, err error) {
	pool, err = openPool(ctx, cfg)
	if err != nil {
		return nil, nil, err
	}
	auditPool, err = db.NewPool(ctx, auditPoolConfig(cfg))
	if err != nil {
		pool.Close()
		return nil, nil, err
	}
	return pool, auditPool, nil
}

// services holds the orchestrators shared by the HTTP server and the CLI.
type services struct {
	patients *orchestrator.PatientOrchestrator
	clinical *orchestrator.ClinicalOrchestrator
	finance  *orchestrator.FinanceOrchestrator
	reports  *orchestrator.ReportOrchestrator
	legacy   *legacy.Adapter
}

func newAuditLogger(pool *pgxpool.Pool, cfg *config.Config, logger zerolog.Logger) *audit.Logger {
	opts := []audit.Option{
		audit.WithRedactor(audit.NewRedactor(cfg.AuditExtraPIIKeys...)),
		audit.WithWriteTimeout(cfg.AuditWriteTimeout),
	}
	if cfg.ErrorReportURL != "" {
		opts = append(opts, audit.WithReporter(audit.NewWebhookReporter(cfg.ErrorReportURL, cfg.ErrorReportRetries, logger)))
	}
	return audit.NewLogger(audit.NewPGStore(pool), logger, opts...)
}

func newServices(pool, auditPool *pgxpool.Pool, cfg *config.Config, logger zerolog.Logger) *services {
	recorder := newAuditLogger(auditPool, cfg, logger)

	shards := orchestrator.Shards{
		Patients: demographics.NewAuditedRepository(demographics.NewRepo(pool), recorder),
		Clinical: clinical.NewAuditedRepository(clinical.NewRepo(pool), recorder),
		Finance:  finance.NewAuditedRepository(finance.NewRepo(pool), recorder),
	}
	opts := orchestrator.Options{
		UnitOfWork: db.NewUnitOfWork(pool),
		Audit:      recorder,
		Logger:     logger,
		Timeout:    cfg.OrchestrationTimeout,
	}

	s := &services{
		patients: orchestrator.NewPatientOrchestrator(shards, opts),
		clinical: orchestrator.NewClinicalOrchestrator(shards, opts),
		finance:  orchestrator.NewFinanceOrchestrator(shards, opts),
		reports:  orchestrator.NewReportOrchestrator(shards, opts),
	}
	s.legacy = legacy.NewAdapter(s.patients, s.reports)
	return s
}
