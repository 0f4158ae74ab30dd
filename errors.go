// Package blaze holds the errors and cache abstractions shared by the
// criteria builder and the entity view packages.
package blaze

import (
	"errors"
	"fmt"
	"strings"
)

// Standard sentinel errors for common operations.
var (
	// ErrNotFound is returned when a requested entity does not exist.
	ErrNotFound = errors.New("blaze: entity not found")

	// ErrNotSingular is returned when a query that expects exactly one result
	// returns zero or multiple results.
	ErrNotSingular = errors.New("blaze: entity not singular")

	// ErrOptimisticLock is returned when a versioned view was changed
	// concurrently.
	ErrOptimisticLock = errors.New("blaze: optimistic lock failure")

	// ErrUnsupported is returned when the database lacks a feature and no
	// emulation exists for it.
	ErrUnsupported = errors.New("blaze: unsupported by dialect")
)

// NotFoundError represents an error when an entity is not found.
type NotFoundError struct {
	label string
	id    any // Optional: the ID that was searched for
}

// Error returns the error string.
func (e *NotFoundError) Error() string {
	if e.id != nil {
		return fmt.Sprintf("blaze: %s not found (id=%v)", e.label, e.id)
	}
	return fmt.Sprintf("blaze: %s not found", e.label)
}

// Is reports whether the target error matches NotFoundError.
// This allows errors.Is(notFoundErr, ErrNotFound) to return true.
func (e *NotFoundError) Is(err error) bool {
	return err == ErrNotFound
}

// Label returns the entity label.
func (e *NotFoundError) Label() string {
	return e.label
}

// ID returns the ID that was searched for, if available.
func (e *NotFoundError) ID() any {
	return e.id
}

// NewNotFoundError returns a new NotFoundError for the given entity type.
func NewNotFoundError(label string) *NotFoundError {
	return &NotFoundError{label: label}
}

// NewNotFoundErrorWithID returns a new NotFoundError with the ID that was searched for.
func NewNotFoundErrorWithID(label string, id any) *NotFoundError {
	return &NotFoundError{label: label, id: id}
}

// IsNotFound returns true if the error is a NotFoundError.
func IsNotFound(err error) bool {
	if err == nil {
		return false
	}
	var e *NotFoundError
	return errors.As(err, &e) || errors.Is(err, ErrNotFound)
}

// NotSingularError represents an error when a query expects a singular result
// but receives zero or multiple results.
type NotSingularError struct {
	label string
	count int // Number of results returned (-1 if unknown)
}

// Error returns the error string.
func (e *NotSingularError) Error() string {
	if e.count >= 0 {
		return fmt.Sprintf("blaze: %s not singular (got %d results, expected 1)", e.label, e.count)
	}
	return fmt.Sprintf("blaze: %s not singular", e.label)
}

// Is reports whether the target error matches NotSingularError.
// This allows errors.Is(notSingularErr, ErrNotSingular) to return true.
func (e *NotSingularError) Is(err error) bool {
	return err == ErrNotSingular
}

// Label returns the entity label.
func (e *NotSingularError) Label() string {
	return e.label
}

// Count returns the number of results, or -1 if unknown.
func (e *NotSingularError) Count() int {
	return e.count
}

// NewNotSingularError returns a new NotSingularError for the given entity type.
func NewNotSingularError(label string) *NotSingularError {
	return &NotSingularError{label: label, count: -1}
}

// NewNotSingularErrorWithCount returns a new NotSingularError with the result count.
func NewNotSingularErrorWithCount(label string, count int) *NotSingularError {
	return &NotSingularError{label: label, count: count}
}

// IsNotSingular returns true if the error is a NotSingularError.
func IsNotSingular(err error) bool {
	if err == nil {
		return false
	}
	var e *NotSingularError
	return errors.As(err, &e) || errors.Is(err, ErrNotSingular)
}

// NotFetchedError is returned when an attribute of a view was excluded by
// the fetch paths of its query and is accessed through the change model.
type NotFetchedError struct {
	attr string
}

// Error returns the error string.
func (e *NotFetchedError) Error() string {
	return fmt.Sprintf("blaze: attribute %q was not fetched", e.attr)
}

// NewNotFetchedError returns a new NotFetchedError for the given attribute path.
func NewNotFetchedError(attr string) *NotFetchedError {
	return &NotFetchedError{attr: attr}
}

// IsNotFetched returns true if the error is a NotFetchedError.
func IsNotFetched(err error) bool {
	if err == nil {
		return false
	}
	var e *NotFetchedError
	return errors.As(err, &e)
}

// ConstraintError represents a database constraint violation error.
type ConstraintError struct {
	msg  string
	wrap error
}

// Error returns the error string.
func (e ConstraintError) Error() string {
	return fmt.Sprintf("blaze: constraint failed: %s", e.msg)
}

// Unwrap returns the underlying error.
func (e ConstraintError) Unwrap() error {
	return e.wrap
}

// NewConstraintError returns a new ConstraintError with the given message.
func NewConstraintError(msg string, wrap error) error {
	return ConstraintError{msg: msg, wrap: wrap}
}

// IsConstraintError returns true if the error is a ConstraintError.
func IsConstraintError(err error) bool {
	if err == nil {
		return false
	}
	var e ConstraintError
	return errors.As(err, &e)
}

// ValidationError represents a validation error for field values.
type ValidationError struct {
	Name string // Field or entity name
	Err  error  // Underlying validation error
}

// Error returns the error string.
func (e *ValidationError) Error() string {
	return fmt.Sprintf("blaze: validator failed for field %q: %s", e.Name, e.Err)
}

// Unwrap returns the underlying error.
func (e *ValidationError) Unwrap() error {
	return e.Err
}

// NewValidationError returns a new ValidationError for the given field.
func NewValidationError(name string, err error) *ValidationError {
	return &ValidationError{Name: name, Err: err}
}

// IsValidationError returns true if the error is a ValidationError.
func IsValidationError(err error) bool {
	if err == nil {
		return false
	}
	var e *ValidationError
	return errors.As(err, &e)
}

// RollbackError wraps an error that occurred during a transaction rollback.
// The view manager returns it when a flush it started had to be rolled back.
type RollbackError struct {
	Err error // Original error that triggered rollback
}

// Error returns the error string.
func (e *RollbackError) Error() string {
	return fmt.Sprintf("blaze: rollback failed: %v", e.Err)
}

// Unwrap returns the underlying error.
func (e *RollbackError) Unwrap() error {
	return e.Err
}

// AggregateError represents multiple errors collected during an operation.
type AggregateError struct {
	Errors []error
}

// Error returns the error string.
func (e *AggregateError) Error() string {
	if len(e.Errors) == 0 {
		return "blaze: no errors"
	}
	if len(e.Errors) == 1 {
		return e.Errors[0].Error()
	}
	var sb strings.Builder
	sb.WriteString("blaze: multiple errors:")
	for i, err := range e.Errors {
		fmt.Fprintf(&sb, "\n  [%d] %v", i+1, err)
	}
	return sb.String()
}

// NewAggregateError returns a new AggregateError if there are errors,
// otherwise returns nil.
func NewAggregateError(errs ...error) error {
	var filtered []error
	for _, err := range errs {
		if err != nil {
			filtered = append(filtered, err)
		}
	}
	if len(filtered) == 0 {
		return nil
	}
	if len(filtered) == 1 {
		return filtered[0]
	}
	return &AggregateError{Errors: filtered}
}

// QueryError wraps a query error with additional context.
type QueryError struct {
	Entity string // Entity or view type being queried
	Op     string // Operation (e.g., "select", "count", "page")
	Err    error  // Underlying error
}

// Error returns the error string.
func (e *QueryError) Error() string {
	if e.Op != "" {
		return fmt.Sprintf("blaze: querying %s (%s): %v", e.Entity, e.Op, e.Err)
	}
	return fmt.Sprintf("blaze: querying %s: %v", e.Entity, e.Err)
}

// Unwrap returns the underlying error.
func (e *QueryError) Unwrap() error {
	return e.Err
}

// NewQueryError returns a new QueryError.
func NewQueryError(entity, op string, err error) *QueryError {
	return &QueryError{Entity: entity, Op: op, Err: err}
}

// IsQueryError returns true if the error is a QueryError.
func IsQueryError(err error) bool {
	if err == nil {
		return false
	}
	var e *QueryError
	return errors.As(err, &e)
}

// MutationError wraps a mutation error with additional context.
type MutationError struct {
	Entity string // Entity or view type being flushed
	Op     string // Operation (e.g., "persist", "update", "remove")
	Err    error  // Underlying error
}

// Error returns the error string.
func (e *MutationError) Error() string {
	return fmt.Sprintf("blaze: %s %s: %v", e.Op, e.Entity, e.Err)
}

// Unwrap returns the underlying error.
func (e *MutationError) Unwrap() error {
	return e.Err
}

// NewMutationError returns a new MutationError.
func NewMutationError(entity, op string, err error) *MutationError {
	return &MutationError{Entity: entity, Op: op, Err: err}
}

// IsMutationError returns true if the error is a MutationError.
func IsMutationError(err error) bool {
	if err == nil {
		return false
	}
	var e *MutationError
	return errors.As(err, &e)
}

// PolicyError is returned when a flush policy denies an operation on a view.
type PolicyError struct {
	View string // View type
	Op   string // Operation (persist, update or remove)
	Err  error  // Decision returned by the policy
}

// Error returns the error string.
func (e *PolicyError) Error() string {
	return fmt.Sprintf("blaze: policy denied %s on %s: %v", e.Op, e.View, e.Err)
}

// Unwrap returns the policy decision.
func (e *PolicyError) Unwrap() error {
	return e.Err
}

// NewPolicyError returns a new PolicyError.
func NewPolicyError(view, op string, err error) *PolicyError {
	return &PolicyError{View: view, Op: op, Err: err}
}

// IsPolicyError returns true if the error is a PolicyError.
func IsPolicyError(err error) bool {
	if err == nil {
		return false
	}
	var e *PolicyError
	return errors.As(err, &e)
}

// ConfigurationError reports an invalid function invocation, mapping or
// metamodel definition. It is never caused by data.
type ConfigurationError struct {
	Subject string // The function, view or entity being configured
	Msg     string
}

// Error returns the error string.
func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("blaze: invalid configuration of %s: %s", e.Subject, e.Msg)
}

// NewConfigurationError returns a new ConfigurationError.
func NewConfigurationError(subject, format string, args ...any) *ConfigurationError {
	return &ConfigurationError{Subject: subject, Msg: fmt.Sprintf(format, args...)}
}

// IsConfigurationError returns true if the error is a ConfigurationError.
func IsConfigurationError(err error) bool {
	if err == nil {
		return false
	}
	var e *ConfigurationError
	return errors.As(err, &e)
}

// UnsupportedError reports a feature the target database does not support.
type UnsupportedError struct {
	Dialect string
	Feature string
}

// Error returns the error string.
func (e *UnsupportedError) Error() string {
	return fmt.Sprintf("blaze: %s is not supported by %s", e.Feature, e.Dialect)
}

// Is reports whether the target error is ErrUnsupported.
func (e *UnsupportedError) Is(err error) bool {
	return err == ErrUnsupported
}

// NewUnsupportedError returns a new UnsupportedError.
func NewUnsupportedError(dialect, feature string) *UnsupportedError {
	return &UnsupportedError{Dialect: dialect, Feature: feature}
}

// IsUnsupported returns true if the error is an UnsupportedError.
func IsUnsupported(err error) bool {
	if err == nil {
		return false
	}
	var e *UnsupportedError
	return errors.As(err, &e) || errors.Is(err, ErrUnsupported)
}

// OptimisticLockError is returned when an update or delete of a versioned
// view did not match the expected version.
type OptimisticLockError struct {
	View    string
	ID      any
	Version any
}

// Error returns the error string.
func (e *OptimisticLockError) Error() string {
	return fmt.Sprintf("blaze: optimistic lock failure for %s (id=%v, version=%v)", e.View, e.ID, e.Version)
}

// Is reports whether the target error is ErrOptimisticLock.
func (e *OptimisticLockError) Is(err error) bool {
	return err == ErrOptimisticLock
}

// NewOptimisticLockError returns a new OptimisticLockError.
func NewOptimisticLockError(view string, id, version any) *OptimisticLockError {
	return &OptimisticLockError{View: view, ID: id, Version: version}
}

// IsOptimisticLock returns true if the error is an OptimisticLockError.
func IsOptimisticLock(err error) bool {
	if err == nil {
		return false
	}
	var e *OptimisticLockError
	return errors.As(err, &e) || errors.Is(err, ErrOptimisticLock)
}
