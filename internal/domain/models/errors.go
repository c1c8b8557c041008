package models

import (
	"errors"
	"fmt"
)

var (
	// ErrValidation marks malformed or precondition-violating input.
	ErrValidation = errors.New("validation failed")

	// ErrConflict marks a concurrent modification detected while writing.
	ErrConflict = errors.New("concurrent modification detected")

	// ErrNotFound marks a referenced record that does not exist.
	ErrNotFound = errors.New("record not found")
)

// ValidationError names the rule that rejected the input.
type ValidationError struct {
	Rule    string
	Message string
}

// NewValidationError builds a ValidationError for the given rule.
func NewValidationError(rule, message string) *ValidationError {
	return &ValidationError{Rule: rule, Message: message}
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation failed on %s: %s", e.Rule, e.Message)
}

func (e *ValidationError) Unwrap() error {
	return ErrValidation
}

// ConflictError reports that a lot changed between read and write.
// Callers are expected to refresh and retry.
type ConflictError struct {
	LotID           string
	ExpectedVersion int64
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("lot %s was modified concurrently (expected version %d)", e.LotID, e.ExpectedVersion)
}

func (e *ConflictError) Unwrap() error {
	return ErrConflict
}

// GapKind enumerates the kinds of unresolved data met during aggregation.
type GapKind string

const (
	GapUnresolvedLot     GapKind = "unresolved_lot"
	GapMissingCategory   GapKind = "missing_category"
	GapUnknownCategory   GapKind = "unknown_category"
	GapMissingUnitPrice  GapKind = "missing_unit_price"
	GapMissingBirdCount  GapKind = "missing_bird_count"
	GapUnparseableRecord GapKind = "unparseable_record"
)

// DataGapWarning flags a value that was replaced by a safe default. It is
// returned alongside results and is never an error.
type DataGapWarning struct {
	Kind      GapKind `bson:"kind" json:"kind"`
	Reference string  `bson:"reference" json:"reference"`
	Message   string  `bson:"message" json:"message"`
}

func (w DataGapWarning) String() string {
	return fmt.Sprintf("%s (%s): %s", w.Kind, w.Reference, w.Message)
}

// IsValidation reports whether err is a validation failure.
func IsValidation(err error) bool {
	return errors.Is(err, ErrValidation)
}

// IsConflict reports whether err is retryable after refreshing data.
func IsConflict(err error) bool {
	return errors.Is(err, ErrConflict)
}

// IsNotFound reports whether err indicates a missing record.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}
