// ABOUTME: Error taxonomy for the scanning core.
// ABOUTME: Input, rule, storage, network, and state-transition failures are kept distinct.

package types

import (
	"errors"
	"fmt"
)

// ErrInvalidTransition is returned when a quarantine entry or threat report
// is asked to make a transition its state machine does not allow. The caller
// made a mistake; nothing was changed.
var ErrInvalidTransition = errors.New("invalid state transition")

// InputError means the scan target itself is missing or unreadable. The scan
// aborts with no partial result.
type InputError struct {
	Target string
	Err    error
}

func (e *InputError) Error() string {
	return fmt.Sprintf("unreadable scan target %q: %v", e.Target, e.Err)
}

func (e *InputError) Unwrap() error { return e.Err }

// RuleError means a catalog entry is malformed. It is fatal at catalog load
// time and must never surface mid-scan.
type RuleError struct {
	RuleID string
	Reason string
}

func (e *RuleError) Error() string {
	return fmt.Sprintf("invalid rule %q: %s", e.RuleID, e.Reason)
}

// StorageFailure means a quarantine artifact move or delete failed. The entry
// remains in its prior state; the operation is retryable.
type StorageFailure struct {
	EntryID string
	Op      string
	Err     error
}

func (e *StorageFailure) Error() string {
	return fmt.Sprintf("quarantine %s failed for entry %q: %v", e.Op, e.EntryID, e.Err)
}

func (e *StorageFailure) Unwrap() error { return e.Err }

// NetworkFailure means the threat intelligence service is unreachable.
// Non-fatal: callers degrade to cached signatures and log.
type NetworkFailure struct {
	Op  string
	Err error
}

func (e *NetworkFailure) Error() string {
	return fmt.Sprintf("threat intel %s failed: %v", e.Op, e.Err)
}

func (e *NetworkFailure) Unwrap() error { return e.Err }
