package core

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

var (
	ErrInvalidWorkflow = errors.New("workflow is invalid")
	ErrStepFailed      = errors.New("workflow step failed")
	// ErrMissingInput means a step had no file to work on. It is not retryable; the run must be restarted
	// with a fresh input file.
	ErrMissingInput   = errors.New("no input file for step")
	ErrAlreadyRunning = errors.New("workflow executor is already running")
)

// ValidationError carries the per-step messages of a failed Workflow.Validate.
type ValidationError struct {
	Errors map[string][]string
}

func (e *ValidationError) Error() string {
	ids := make([]string, 0, len(e.Errors))
	for id := range e.Errors {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	var parts []string
	for _, id := range ids {
		for _, msg := range e.Errors[id] {
			parts = append(parts, fmt.Sprintf("%s: %s", id, msg))
		}
	}
	return fmt.Sprintf("%v: %s", ErrInvalidWorkflow, strings.Join(parts, "; "))
}

func (e *ValidationError) Unwrap() error {
	return ErrInvalidWorkflow
}

// StepError is returned by the executor when a step reports a failed result. The run is paused and can be
// resumed with Retry or RetryFailed.
type StepError struct {
	Index   int
	StepID  string
	Message string
	Cause   error
}

func (e *StepError) Error() string {
	return fmt.Sprintf("step %q (index %d) failed: %s", e.StepID, e.Index, e.Message)
}

func (e *StepError) Unwrap() []error {
	if e.Cause != nil {
		return []error{ErrStepFailed, e.Cause}
	}
	return []error{ErrStepFailed}
}
