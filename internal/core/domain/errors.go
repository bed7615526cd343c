package domain

import (
	"errors"
	"fmt"
	"time"
)

// Domain errors represent business logic failures.
// These are distinct from infrastructure errors.
var (
	// ErrNotFound indicates a requested entity does not exist.
	ErrNotFound = errors.New("not found")

	// ErrAlreadyExists indicates an entity already exists.
	ErrAlreadyExists = errors.New("already exists")

	// ErrInvalidInput indicates malformed or invalid input.
	ErrInvalidInput = errors.New("invalid input")

	// ErrInvalidTransition indicates a state transition not permitted by
	// the state machine tables.
	ErrInvalidTransition = errors.New("invalid transition")

	// ErrReprocessingConflict indicates reprocessing was requested while
	// a prior reprocessing round is still in flight for the document.
	// Conflicting requests are rejected, never queued.
	ErrReprocessingConflict = errors.New("reprocessing already in flight")

	// ErrJustificationRequired indicates a human override was attempted
	// without the mandatory structured justification.
	ErrJustificationRequired = errors.New("justification required")

	// ErrRestorationExpired indicates the restoration window for a
	// removed document has already lapsed.
	ErrRestorationExpired = errors.New("restoration window expired")

	// ErrLedgerImmutable indicates an attempt to mutate a committed
	// provenance or audit record.
	ErrLedgerImmutable = errors.New("ledger records are immutable")

	// ErrProvenanceCycle indicates a record would make the provenance
	// graph cyclic.
	ErrProvenanceCycle = errors.New("provenance record would create a cycle")
)

// IsolationViolationError is raised when an artifact reference crosses a
// corpus boundary. Fatal: never retried, always audited.
type IsolationViolationError struct {
	// SourceCorpus and TargetCorpus are the two corpus IDs involved.
	SourceCorpus string
	TargetCorpus string

	// Reference identifies the blocked artifact reference.
	Reference string

	// Rule names the isolation rule that rejected the reference.
	Rule string
}

func (e *IsolationViolationError) Error() string {
	return fmt.Sprintf("isolation violation: reference %q from corpus %s to corpus %s (rule %s)",
		e.Reference, e.SourceCorpus, e.TargetCorpus, e.Rule)
}

// ResourceTimeoutError is returned when slot acquisition does not
// complete within the caller's timeout. The state machine treats it as
// a transient failure.
type ResourceTimeoutError struct {
	// Class is the resource class that was requested.
	Class ResourceClass

	// Priority is the priority the request waited at.
	Priority Priority

	// Waited is how long the request waited before giving up.
	Waited time.Duration
}

func (e *ResourceTimeoutError) Error() string {
	return fmt.Sprintf("resource timeout: no %s slot after %s at priority %s",
		e.Class, e.Waited, e.Priority)
}

// TransientEngineError wraps a recoverable failure from an external
// engine. Retried with backoff up to the configured attempt budget.
type TransientEngineError struct {
	// Engine identifies the failing collaborator.
	Engine string

	// Err is the underlying failure.
	Err error
}

func (e *TransientEngineError) Error() string {
	return fmt.Sprintf("transient engine failure (%s): %v", e.Engine, e.Err)
}

func (e *TransientEngineError) Unwrap() error { return e.Err }

// StructuralCorruptionError marks input that cannot be processed at all.
// Fatal: the entity moves to failed without retry.
type StructuralCorruptionError struct {
	// Resource identifies the corrupt artifact.
	Resource string

	// Reason describes the corruption.
	Reason string
}

func (e *StructuralCorruptionError) Error() string {
	return fmt.Sprintf("structural corruption in %s: %s", e.Resource, e.Reason)
}

// Transient reports whether err should be retried with backoff.
func Transient(err error) bool {
	var te *TransientEngineError
	var rt *ResourceTimeoutError
	return errors.As(err, &te) || errors.As(err, &rt)
}

// Fatal reports whether err must move the entity to failed immediately.
func Fatal(err error) bool {
	var iv *IsolationViolationError
	var sc *StructuralCorruptionError
	return errors.As(err, &iv) || errors.As(err, &sc)
}
