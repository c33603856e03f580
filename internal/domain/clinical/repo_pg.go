package clinical

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/ehr/records/internal/platform/db"
)

type repoPG struct {
	pool *pgxpool.Pool
}

func NewRepo(pool *pgxpool.Pool) Repository {
	return &repoPG{pool: pool}
}

func (r *repoPG) conn(ctx context.Context) querier {
	if tx := db.TxFromContext(ctx); tx != nil {
		return tx
	}
	return r.pool
}

const entryCols = `id, patient_id, kind, title, notes, performed_at, performed_by,
	deleted, deleted_at, created_by, updated_by, created_at, updated_at`

func (r *repoPG) Create(ctx context.Context, e *Entry) error {
	if e.ID == uuid.Nil {
		e.ID = uuid.New()
	}
	if e.UpdatedBy == "" {
		e.UpdatedBy = e.CreatedBy
	}
	err := r.conn(ctx).QueryRow(ctx, `
		INSERT INTO clinical.entry (
			id, patient_id, kind, title, notes, performed_at, performed_by, created_by, updated_by
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)
		RETURNING created_at, updated_at`,
		e.ID, e.PatientID, e.Kind, e.Title, e.Notes, e.PerformedAt, e.PerformedBy, e.CreatedBy, e.UpdatedBy,
	).Scan(&e.CreatedAt, &e.UpdatedAt)
	if err != nil {
		return fmt.Errorf("clinical entry create: %w", err)
	}
	return nil
}

func (r *repoPG) GetByID(ctx context.Context, id uuid.UUID) (*Entry, error) {
	e, err := scanEntry(r.conn(ctx).QueryRow(ctx, `SELECT `+entryCols+` FROM clinical.entry WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("clinical entry get by id: %w", err)
	}
	return e, nil
}

func (r *repoPG) ListByPatient(ctx context.Context, patientID uuid.UUID, includeDeleted bool) ([]*Entry, error) {
	query := `SELECT ` + entryCols + ` FROM clinical.entry WHERE patient_id = $1`
	if !includeDeleted {
		query += ` AND NOT deleted`
	}
	query += ` ORDER BY performed_at DESC, id`

	rows, err := r.conn(ctx).Query(ctx, query, patientID)
	if err != nil {
		return nil, fmt.Errorf("clinical entry list: %w", err)
	}
	defer rows.Close()

	entries := make([]*Entry, 0)
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, fmt.Errorf("clinical entry scan: %w", err)
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("clinical entry list: %w", err)
	}
	return entries, nil
}

func (r *repoPG) SoftDelete(ctx context.Context, id uuid.UUID, actorID string) error {
	tag, err := r.conn(ctx).Exec(ctx, `
		UPDATE clinical.entry SET
			deleted    = TRUE,
			deleted_at = CASE WHEN deleted THEN deleted_at ELSE NOW() END,
			updated_by = CASE WHEN deleted THEN updated_by ELSE $2 END,
			updated_at = CASE WHEN deleted THEN updated_at ELSE NOW() END
		WHERE id = $1`, id, actorID)
	if err != nil {
		return fmt.Errorf("clinical entry soft delete: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *repoPG) SoftDeleteByPatient(ctx context.Context, patientID uuid.UUID, actorID string) (int, error) {
	tag, err := r.conn(ctx).Exec(ctx, `
		UPDATE clinical.entry SET deleted = TRUE, deleted_at = NOW(), updated_by = $2, updated_at = NOW()
		WHERE patient_id = $1 AND NOT deleted`, patientID, actorID)
	if err != nil {
		return 0, fmt.Errorf("clinical entry soft delete by patient: %w", err)
	}
	return int(tag.RowsAffected()), nil
}

func scanEntry(row pgx.Row) (*Entry, error) {
	var e Entry
	err := row.Scan(
		&e.ID, &e.PatientID, &e.Kind, &e.Title, &e.Notes, &e.PerformedAt, &e.PerformedBy,
		&e.Deleted, &e.DeletedAt, &e.CreatedBy, &e.UpdatedBy, &e.CreatedAt, &e.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &e, nil
}

type querier interface {
	Exec(ctx context.Context, sql string, args ...interface{}) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...interface{}) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...interface{}) pgx.Row
}
