// Package sequence allocates human readable record numbers from durable
// counter rows.
package sequence

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
)

const (
	// MRNKey is the counter row backing medical record numbers.
	MRNKey = "mrn"

	MRNPrefix        = "MR-"
	MRNPaddingLength = 6
)

var ErrAllocationFailure = errors.New("sequence allocation failed")

// upsertCounterQuery increments the counter and returns the new value in a
// single statement, creating the row at 1 on first use.
const upsertCounterQuery = `
	INSERT INTO id_sequences (key, current_val)
	VALUES ($1, 1)
	ON CONFLICT (key)
	DO UPDATE SET current_val = id_sequences.current_val + 1
	RETURNING current_val
`

// Querier is satisfied by both *sql.DB and *sql.Tx.
type Querier interface {
	QueryRowContext(ctx context.Context, query string, args ...interface{}) *sql.Row
}

// Allocator hands out counter values. It keeps no state of its own; callers
// pass the transaction the allocation must belong to.
type Allocator struct{}

func NewAllocator() *Allocator {
	return &Allocator{}
}

// Next increments the counter identified by key and returns the new value.
func (a *Allocator) Next(ctx context.Context, q Querier, key string) (int64, error) {
	var value int64
	if err := q.QueryRowContext(ctx, upsertCounterQuery, key).Scan(&value); err != nil {
		return 0, fmt.Errorf("%w: counter %q: %v", ErrAllocationFailure, key, err)
	}
	if value < 1 {
		return 0, fmt.Errorf("%w: counter %q returned %d", ErrAllocationFailure, key, value)
	}
	return value, nil
}

// NextMRN allocates the next medical record number. If it fails the
// enclosing transaction must be rolled back.
func (a *Allocator) NextMRN(ctx context.Context, q Querier) (string, error) {
	value, err := a.Next(ctx, q, MRNKey)
	if err != nil {
		return "", err
	}
	return FormatMRN(value), nil
}

// FormatMRN renders a counter value as MR-000042. Values past 999999 keep
// growing into a longer suffix.
func FormatMRN(value int64) string {
	return fmt.Sprintf("%s%0*d", MRNPrefix, MRNPaddingLength, value)
}
