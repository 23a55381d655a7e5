package core

import (
	"fmt"
	"strings"
)

// MissingColumnError aborts an entity before any row is processed.
type MissingColumnError struct {
	Entity  EntityType
	Columns []string // first accepted header of each missing field
}

func (e *MissingColumnError) Error() string {
	return fmt.Sprintf("%s: missing required columns: %s", e.Entity, strings.Join(e.Columns, ", "))
}

// SkipReason classifies a dropped row.
type SkipReason string

const (
	SkipMissingKey          SkipReason = "missing_key"
	SkipUnresolvedReference SkipReason = "unresolved_reference"
	SkipDuplicateUnique     SkipReason = "duplicate_unique"
	SkipConflict            SkipReason = "conflict"
)

// InvalidRowError describes a skipped row. It is collected, never returned
// up the call stack.
type InvalidRowError struct {
	Source string     `json:"source,omitempty"`
	Line   int        `json:"line,omitempty"`
	Key    string     `json:"key,omitempty"`
	Reason SkipReason `json:"reason"`
	Detail string     `json:"detail,omitempty"`
}

func (e InvalidRowError) Error() string {
	var b strings.Builder
	if e.Source != "" {
		fmt.Fprintf(&b, "%s:%d: ", e.Source, e.Line)
	}
	b.WriteString(string(e.Reason))
	if e.Detail != "" {
		b.WriteString(": ")
		b.WriteString(e.Detail)
	}
	return b.String()
}

// ConstraintViolation is a store-level uniqueness or referential failure
// during a bulk write. It aborts the current entity's transaction only.
type ConstraintViolation struct {
	Entity     EntityType
	Constraint string
	Keys       []string // natural keys of the offending rows, when known
	Err        error
}

func (e *ConstraintViolation) Error() string {
	msg := fmt.Sprintf("%s: constraint violation", e.Entity)
	if e.Constraint != "" {
		msg += " on " + e.Constraint
	}
	if len(e.Keys) > 0 {
		msg += fmt.Sprintf(" for keys [%s]", strings.Join(e.Keys, ", "))
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *ConstraintViolation) Unwrap() error {
	return e.Err
}
