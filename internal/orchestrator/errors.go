package orchestrator

import (
	"errors"
	"fmt"

	"github.com/google/uuid"
)

// Shard names one storage area.
type Shard string

const (
	ShardDemographics Shard = "demographics"
	ShardClinical     Shard = "clinical"
	ShardFinance      Shard = "finance"
)

var (
	// ErrPatientNotFound means the anchor demographics record is missing or
	// soft-deleted. The repository's own sentinel stays in the chain.
	ErrPatientNotFound = errors.New("patient not found")

	// ErrInvalidInput wraps validation failures of caller supplied records.
	ErrInvalidInput = errors.New("invalid input")
)

// ShardFailure reports that one shard failed during an orchestrated call.
// For mutations the whole unit of work has been rolled back.
type ShardFailure struct {
	Shard Shard
	Op    string
	Err   error
}

func (e *ShardFailure) Error() string {
	return fmt.Sprintf("%s shard %s: %v", e.Shard, e.Op, e.Err)
}

func (e *ShardFailure) Unwrap() error {
	return e.Err
}

func patientNotFound(id uuid.UUID, cause error) error {
	if cause == nil {
		return fmt.Errorf("%w: %s", ErrPatientNotFound, id)
	}
	return fmt.Errorf("%w: %s: %w", ErrPatientNotFound, id, cause)
}

func invalidInput(err error) error {
	return fmt.Errorf("%w: %w", ErrInvalidInput, err)
}

// asShardFailure passes through errors that already carry a classification
// and attributes anything else to shard.
func asShardFailure(shard Shard, op string, err error) error {
	var sf *ShardFailure
	if errors.As(err, &sf) || errors.Is(err, ErrPatientNotFound) {
		return err
	}
	return &ShardFailure{Shard: shard, Op: op, Err: err}
}
