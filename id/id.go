// Package id defines TypeID-based identity types for imprint principals and
// records.
//
// Accounts (authors, buyers and the ledger's own custodian), notification
// events and settlement receipts all use a single ID struct whose prefix names
// the entity type. IDs are K-sortable (UUIDv7-based), globally unique and
// URL-safe in the format "prefix_suffix". Editions are the exception: they are
// numbered by the ledger's monotonic counter and never use this type.
package id

import (
	"database/sql/driver"
	"fmt"

	"go.jetify.com/typeid/v2"
)

// Prefix identifies the entity type encoded in a TypeID.
type Prefix string

// Prefix constants for imprint entity types.
const (
	PrefixAccount Prefix = "acct" // Author, buyer or custodian
	PrefixEvent   Prefix = "evt"  // Notification event
	PrefixReceipt Prefix = "rcpt" // Settlement receipt
)

// ID is the primary identifier type for imprint principals and records.
// The zero value is Nil, which the ledger uses as the "no author" sentinel.
//
//nolint:recvcheck // Value receivers for read-only methods, pointer receivers for UnmarshalText/Scan.
type ID struct {
	inner typeid.TypeID
	valid bool
}

// Nil is the zero-value ID.
var Nil ID

// New generates a new globally unique ID with the given prefix.
// It panics if prefix is not a valid TypeID prefix (programming error).
func New(prefix Prefix) ID {
	tid, err := typeid.Generate(string(prefix))
	if err != nil {
		panic(fmt.Sprintf("id: invalid prefix %q: %v", prefix, err))
	}

	return ID{inner: tid, valid: true}
}

// Parse parses a TypeID string (e.g., "acct_01h2xcejqtf2nbrexx3vqjhp41")
// into an ID.
func Parse(s string) (ID, error) {
	if s == "" {
		return Nil, fmt.Errorf("id: parse %q: empty string", s)
	}

	tid, err := typeid.Parse(s)
	if err != nil {
		return Nil, fmt.Errorf("id: parse %q: %w", s, err)
	}

	return ID{inner: tid, valid: true}, nil
}

// ParseWithPrefix parses a TypeID string and validates that its prefix
// matches the expected value.
func ParseWithPrefix(s string, expected Prefix) (ID, error) {
	parsed, err := Parse(s)
	if err != nil {
		return Nil, err
	}

	if parsed.Prefix() != expected {
		return Nil, fmt.Errorf("id: expected prefix %q, got %q", expected, parsed.Prefix())
	}

	return parsed, nil
}

// MustParse is like Parse but panics on error. Use for hardcoded ID values.
func MustParse(s string) ID {
	parsed, err := Parse(s)
	if err != nil {
		panic(fmt.Sprintf("id: must parse %q: %v", s, err))
	}

	return parsed
}

// ──────────────────────────────────────────────────
// Type aliases
// ──────────────────────────────────────────────────

// AccountID identifies an author, buyer or custodian (prefix: "acct").
type AccountID = ID

// EventID identifies a notification event (prefix: "evt").
type EventID = ID

// ReceiptID identifies a settlement receipt (prefix: "rcpt").
type ReceiptID = ID

// NewAccountID generates a new unique account ID.
func NewAccountID() ID { return New(PrefixAccount) }

// NewEventID generates a new unique event ID.
func NewEventID() ID { return New(PrefixEvent) }

// NewReceiptID generates a new unique receipt ID.
func NewReceiptID() ID { return New(PrefixReceipt) }

// ParseAccountID parses a string and validates the "acct" prefix.
func ParseAccountID(s string) (ID, error) { return ParseWithPrefix(s, PrefixAccount) }

// ParseEventID parses a string and validates the "evt" prefix.
func ParseEventID(s string) (ID, error) { return ParseWithPrefix(s, PrefixEvent) }

// ParseReceiptID parses a string and validates the "rcpt" prefix.
func ParseReceiptID(s string) (ID, error) { return ParseWithPrefix(s, PrefixReceipt) }

// ParseOptional parses s, mapping the empty string to Nil.
// Stores use it for columns where an empty value means "unset".
func ParseOptional(s string) (ID, error) {
	if s == "" {
		return Nil, nil
	}
	return Parse(s)
}

// ──────────────────────────────────────────────────
// ID methods
// ──────────────────────────────────────────────────

// String returns the full TypeID string representation (prefix_suffix).
// Returns an empty string for the Nil ID.
func (i ID) String() string {
	if !i.valid {
		return ""
	}

	return i.inner.String()
}

// Prefix returns the prefix component of this ID.
func (i ID) Prefix() Prefix {
	if !i.valid {
		return ""
	}

	return Prefix(i.inner.Prefix())
}

// IsNil reports whether this ID is the zero value.
func (i ID) IsNil() bool {
	return !i.valid
}

// Equal reports whether two IDs denote the same principal or record.
func (i ID) Equal(other ID) bool {
	return i.String() == other.String()
}

// MarshalText implements encoding.TextMarshaler.
func (i ID) MarshalText() ([]byte, error) {
	if !i.valid {
		return []byte{}, nil
	}

	return []byte(i.inner.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (i *ID) UnmarshalText(data []byte) error {
	if len(data) == 0 {
		*i = Nil

		return nil
	}

	parsed, err := Parse(string(data))
	if err != nil {
		return err
	}

	*i = parsed

	return nil
}

// Value implements driver.Valuer for database storage.
// Returns nil for the Nil ID so that optional columns store NULL.
func (i ID) Value() (driver.Value, error) {
	if !i.valid {
		return nil, nil //nolint:nilnil // nil is the canonical NULL for driver.Valuer
	}

	return i.inner.String(), nil
}

// Scan implements sql.Scanner for database retrieval.
func (i *ID) Scan(src any) error {
	if src == nil {
		*i = Nil

		return nil
	}

	switch v := src.(type) {
	case string:
		if v == "" {
			*i = Nil

			return nil
		}

		return i.UnmarshalText([]byte(v))
	case []byte:
		if len(v) == 0 {
			*i = Nil

			return nil
		}

		return i.UnmarshalText(v)
	default:
		return fmt.Errorf("id: cannot scan %T into ID", src)
	}
}
