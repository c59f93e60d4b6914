package netq

import (
	"database/sql/driver"
	"fmt"
	"strconv"
	"sync/atomic"
)

// ID identifies a queued request and its response.
// IDs are assigned at enqueue time, increase monotonically and are never reused.
//
//nolint:recvcheck // Scan requires a pointer receiver, Value uses value receiver for driver.Valuer.
type ID int64

// IsZero reports whether the ID is unassigned.
func (id ID) IsZero() bool {
	return id == 0
}

// String returns the decimal representation.
func (id ID) String() string {
	return strconv.FormatInt(int64(id), 10)
}

// MarshalText implements encoding.TextMarshaler.
func (id ID) MarshalText() ([]byte, error) {
	return []byte(id.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (id *ID) UnmarshalText(text []byte) error {
	parsed, err := ParseID(string(text))
	if err != nil {
		return err
	}
	*id = parsed

	return nil
}

// Scan implements sql.Scanner for BIGINT columns.
// NULL is treated as ErrInvalidID.
func (id *ID) Scan(src any) error {
	switch value := src.(type) {
	case nil:
		return ErrInvalidID
	case int64:
		*id = ID(value)

		return nil
	case []byte:
		parsed, err := ParseID(string(value))
		if err != nil {
			return err
		}
		*id = parsed

		return nil
	case string:
		parsed, err := ParseID(value)
		if err != nil {
			return err
		}
		*id = parsed

		return nil
	default:
		return fmt.Errorf("netq: unsupported id type %T: %w", src, ErrInvalidID)
	}
}

// Value implements driver.Valuer for BIGINT.
func (id ID) Value() (driver.Value, error) {
	return int64(id), nil
}

// ParseID parses a positive decimal ID.
func ParseID(value string) (ID, error) {
	n, err := strconv.ParseInt(value, 10, 64)
	if err != nil || n <= 0 {
		return 0, ErrInvalidID
	}

	return ID(n), nil
}

// IDGenerator creates new identifiers.
type IDGenerator interface {
	// New returns a new identifier.
	New() (ID, error)
}

// SequenceGenerator produces strictly increasing IDs starting at 1.
type SequenceGenerator struct {
	last atomic.Int64
}

// NewSequenceGenerator creates a generator whose first ID is start+1.
func NewSequenceGenerator(start ID) *SequenceGenerator {
	g := &SequenceGenerator{}
	g.last.Store(int64(start))

	return g
}

// New returns the next identifier.
func (g *SequenceGenerator) New() (ID, error) {
	return ID(g.last.Add(1)), nil
}
