package audit

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jackc/pgx/v5"
)

// rowQuerier is satisfied by *pgxpool.Pool. A pgx.Tx also satisfies it, which
// is why PGStore is constructed with the pool and never reads the
// transaction from the context.
type rowQuerier interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// PGStore appends records to audit.record.
type PGStore struct {
	pool rowQuerier
}

func NewPGStore(pool rowQuerier) *PGStore {
	return &PGStore{pool: pool}
}

const insertRecord = `
	INSERT INTO audit.record (
		actor_id, actor_name, client_ip, request_id,
		action, resource_type, resource_id, details, recorded_at
	) VALUES ($1, NULLIF($2, ''), NULLIF($3, ''), NULLIF($4, ''), $5, $6, NULLIF($7, ''), $8, $9)
	RETURNING id`

func (s *PGStore) Append(ctx context.Context, rec *Record) error {
	var details []byte
	if rec.Details != nil {
		b, err := json.Marshal(rec.Details)
		if err != nil {
			return fmt.Errorf("encode audit details: %w", err)
		}
		details = b
	}

	err := s.pool.QueryRow(ctx, insertRecord,
		rec.ActorID, rec.ActorName, rec.ClientIP, rec.RequestID,
		rec.Action, rec.ResourceType, rec.ResourceID, details, rec.RecordedAt,
	).Scan(&rec.ID)
	if err != nil {
		return fmt.Errorf("insert audit record: %w", err)
	}
	return nil
}
