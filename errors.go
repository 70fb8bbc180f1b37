package cdk

import (
	"fmt"

	"github.com/pkg/errors"
)

// ParseError is returned by row iterators when a source is structurally
// broken (short line, malformed record boundary, junk at end of input).
// It is fatal to the source it came from but must not affect sibling
// sources.
type ParseError struct {
	Msg      string
	Location string
	Offender string
}

func (e *ParseError) Error() string {
	if e.Location == "" {
		return e.Msg
	}
	return fmt.Sprintf("%s (%s)", e.Msg, e.Location)
}

// TriggerPulled is returned when a trigger with bail set matches a record.
// The source terminates; the caller decides whether the whole run stops.
type TriggerPulled struct {
	Trigger  string
	Location string
}

func (e *TriggerPulled) Error() string {
	return fmt.Sprintf("trigger %s pulled and set to bail (%s)", e.Trigger, e.Location)
}

// ValidationError is returned by a Rowmaker when evaluating one of its
// operations failed. Label names the declarative rule (variable name,
// procedure name, or destination column) the failing operation implements;
// Record is a sanitized snapshot of the row being mapped.
type ValidationError struct {
	Label  string
	Err    error
	Record Record
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("while building %s: %v", e.Label, e.Err)
}

// IsTriggerPulled reports whether err, at its cause, is a TriggerPulled.
func IsTriggerPulled(err error) bool {
	_, ok := errors.Cause(err).(*TriggerPulled)
	return ok
}

// IsParseError reports whether err, at its cause, is a ParseError.
func IsParseError(err error) bool {
	_, ok := errors.Cause(err).(*ParseError)
	return ok
}

// IsValidationError reports whether err, at its cause, is a
// ValidationError, which means the row is bad but the source may go on.
func IsValidationError(err error) bool {
	_, ok := errors.Cause(err).(*ValidationError)
	return ok
}
