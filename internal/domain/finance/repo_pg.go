package finance

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

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

// amount is read as text so it round-trips through decimal.Decimal exactly.
const txnCols = `id, patient_id, kind, amount::text, currency, description, card_last4, iban, occurred_at,
	deleted, deleted_at, created_by, updated_by, created_at, updated_at`

func (r *repoPG) Create(ctx context.Context, t *Transaction) error {
	if t.ID == uuid.Nil {
		t.ID = uuid.New()
	}
	if t.UpdatedBy == "" {
		t.UpdatedBy = t.CreatedBy
	}
	err := r.conn(ctx).QueryRow(ctx, `
		INSERT INTO finance."transaction" (
			id, patient_id, kind, amount, currency, description, card_last4, iban, occurred_at,
			created_by, updated_by
		) VALUES ($1,$2,$3,$4::numeric,$5,$6,$7,$8,$9,$10,$11)
		RETURNING created_at, updated_at`,
		t.ID, t.PatientID, t.Kind, t.Amount.String(), t.Currency, t.Description, t.CardLast4, t.IBAN, t.OccurredAt,
		t.CreatedBy, t.UpdatedBy,
	).Scan(&t.CreatedAt, &t.UpdatedAt)
	if err != nil {
		return fmt.Errorf("finance transaction create: %w", err)
	}
	return nil
}

func (r *repoPG) GetByID(ctx context.Context, id uuid.UUID) (*Transaction, error) {
	t, err := scanTransaction(r.conn(ctx).QueryRow(ctx, `SELECT `+txnCols+` FROM finance."transaction" WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("finance transaction get by id: %w", err)
	}
	return t, nil
}

func (r *repoPG) ListByPatient(ctx context.Context, patientID uuid.UUID, includeDeleted bool) ([]*Transaction, error) {
	query := `SELECT ` + txnCols + ` FROM finance."transaction" WHERE patient_id = $1`
	if !includeDeleted {
		query += ` AND NOT deleted`
	}
	query += ` ORDER BY occurred_at DESC, id`

	rows, err := r.conn(ctx).Query(ctx, query, patientID)
	if err != nil {
		return nil, fmt.Errorf("finance transaction list: %w", err)
	}
	defer rows.Close()

	txns := make([]*Transaction, 0)
	for rows.Next() {
		t, err := scanTransaction(rows)
		if err != nil {
			return nil, fmt.Errorf("finance transaction scan: %w", err)
		}
		txns = append(txns, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("finance transaction list: %w", err)
	}
	return txns, nil
}

func (r *repoPG) SoftDelete(ctx context.Context, id uuid.UUID, actorID string) error {
	tag, err := r.conn(ctx).Exec(ctx, `
		UPDATE finance."transaction" SET
			deleted    = TRUE,
			deleted_at = CASE WHEN deleted THEN deleted_at ELSE NOW() END,
			updated_by = CASE WHEN deleted THEN updated_by ELSE $2 END,
			updated_at = CASE WHEN deleted THEN updated_at ELSE NOW() END
		WHERE id = $1`, id, actorID)
	if err != nil {
		return fmt.Errorf("finance transaction soft delete: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *repoPG) SoftDeleteByPatient(ctx context.Context, patientID uuid.UUID, actorID string) (int, error) {
	tag, err := r.conn(ctx).Exec(ctx, `
		UPDATE finance."transaction" SET deleted = TRUE, deleted_at = NOW(), updated_by = $2, updated_at = NOW()
		WHERE patient_id = $1 AND NOT deleted`, patientID, actorID)
	if err != nil {
		return 0, fmt.Errorf("finance transaction soft delete by patient: %w", err)
	}
	return int(tag.RowsAffected()), nil
}

func scanTransaction(row pgx.Row) (*Transaction, error) {
	var t Transaction
	var amount string
	err := row.Scan(
		&t.ID, &t.PatientID, &t.Kind, &amount, &t.Currency, &t.Description, &t.CardLast4, &t.IBAN, &t.OccurredAt,
		&t.Deleted, &t.DeletedAt, &t.CreatedBy, &t.UpdatedBy, &t.CreatedAt, &t.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	t.Amount, err = decimal.NewFromString(amount)
	if err != nil {
		return nil, fmt.Errorf("parse amount %q: %w", amount, err)
	}
	return &t, nil
}

type querier interface {
	Exec(ctx context.Context, sql string, args ...interface{}) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...interface{}) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...interface{}) pgx.Row
}
