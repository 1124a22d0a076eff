package murr

import (
	"errors"
	"fmt"

	"github.com/murrdb/murr/schema"
	"github.com/murrdb/murr/table"
)

var (
	// ErrUnknownTable is returned when an operation names a table the
	// service does not hold.
	ErrUnknownTable = errors.New("murr: unknown table")

	// ErrUnknownColumn is returned when a read names a column the table's
	// schema does not declare.
	ErrUnknownColumn = errors.New("murr: unknown column")

	// ErrAlreadyExists is returned when creating a table whose name is
	// taken.
	ErrAlreadyExists = errors.New("murr: table already exists")

	// ErrInvalidSchema is returned when a create carries an unusable
	// schema: unknown dtype, missing key column, or a nullable key.
	ErrInvalidSchema = errors.New("murr: invalid schema")

	// ErrSchemaMismatch is returned when a write batch disagrees with the
	// declared schema. No state is mutated.
	ErrSchemaMismatch = errors.New("murr: schema mismatch")

	// ErrIO is returned when a directory operation fails. On write the
	// operation aborts with the table unchanged; on rebuild the committed
	// segment stays on disk for the next attempt.
	ErrIO = errors.New("murr: io error")
)

// translateError maps lower-layer errors onto the service's contract
// sentinels so callers can branch with errors.Is.
func translateError(err error) error {
	if err == nil {
		return nil
	}
	switch {
	case errors.Is(err, table.ErrUnknownColumn):
		return fmt.Errorf("%w: %w", ErrUnknownColumn, err)
	case errors.Is(err, table.ErrSchemaMismatch):
		return fmt.Errorf("%w: %w", ErrSchemaMismatch, err)
	case errors.Is(err, schema.ErrInvalid):
		return fmt.Errorf("%w: %w", ErrInvalidSchema, err)
	}
	return err
}
