// Package rpcerrors contains the error types returned by code handling
// submit RPC requests. The HTTP layer maps these to the numeric codes of the
// response envelope via CodeFromError, using errors.As so that wrapped
// errors anywhere in a chain are recognised.
package rpcerrors

import (
	"fmt"

	"github.com/pkg/errors"

	"github.com/volgrid/gridsubmit/pkg/api"
)

// ErrAuth indicates a bad or missing authenticator, or an operation on a
// resource the caller does not own.
type ErrAuth struct {
	Message string
}

func (err *ErrAuth) Error() string {
	if err.Message == "" {
		return "bad authenticator"
	}
	return err.Message
}

// ErrNoPermission indicates an authenticated caller without submit access to
// the target application.
type ErrNoPermission struct {
	Account string
	App     string
}

func (err *ErrNoPermission) Error() string {
	if err.App != "" {
		return fmt.Sprintf("%s is not allowed to submit jobs to app %q", err.Account, err.App)
	}
	return fmt.Sprintf("%s is not allowed to submit jobs", err.Account)
}

// ErrQuotaExceeded indicates the submission would push the caller past its
// in-flight job limit.
type ErrQuotaExceeded struct {
	Limit    int
	InFlight int
	Incoming int
}

func (err *ErrQuotaExceeded) Error() string {
	return fmt.Sprintf("job quota exceeded: %d in flight + %d submitted > limit %d",
		err.InFlight, err.Incoming, err.Limit)
}

// ErrNotFound is returned whenever a batch, job, instance, app or file does
// not exist. Type and Message are optional and omitted from the error
// message if not provided.
type ErrNotFound struct {
	Type    string // e.g. "batch" or "job"
	Value   string
	Message string
}

func (err *ErrNotFound) Error() (s string) {
	if err.Type != "" {
		s = fmt.Sprintf("%s %q does not exist", err.Type, err.Value)
	} else {
		s = fmt.Sprintf("%q does not exist", err.Value)
	}
	if err.Message != "" {
		return s + fmt.Sprintf("; %s", err.Message)
	}
	return s
}

// ErrTemplateMismatch indicates a job supplying the wrong number of input
// files for the app's input template.
type ErrTemplateMismatch struct {
	Job      string
	Expected int
	Got      int
}

func (err *ErrTemplateMismatch) Error() string {
	return fmt.Sprintf("job %q supplies %d input files, template expects %d", err.Job, err.Got, err.Expected)
}

// ErrImmutabilityViolation indicates an attempt to stage different content
// under an existing physical name. Stored files are write-once.
type ErrImmutabilityViolation struct {
	PhysName    string
	ExistingMD5 string
	NewMD5      string
}

func (err *ErrImmutabilityViolation) Error() string {
	return fmt.Sprintf("file %q already exists with md5 %s, refusing to overwrite with %s",
		err.PhysName, err.ExistingMD5, err.NewMD5)
}

// ErrStaging indicates an I/O failure while copying a file into the store.
type ErrStaging struct {
	PhysName string
	Cause    error
}

func (err *ErrStaging) Error() string {
	return fmt.Sprintf("failed to stage file %q: %v", err.PhysName, err.Cause)
}

func (err *ErrStaging) Unwrap() error { return err.Cause }

// ErrEnqueueFailure indicates the external enqueue command failed or timed
// out. The batch is left in INIT and no jobs are recorded.
type ErrEnqueueFailure struct {
	Message string
	Cause   error
}

func (err *ErrEnqueueFailure) Error() string {
	if err.Cause != nil {
		return fmt.Sprintf("enqueue failed: %s: %v", err.Message, err.Cause)
	}
	return fmt.Sprintf("enqueue failed: %s", err.Message)
}

func (err *ErrEnqueueFailure) Unwrap() error { return err.Cause }

// ErrBadState indicates an operation not valid for the batch's current
// state, e.g. adding jobs to a non-INIT batch.
type ErrBadState struct {
	BatchID int64
	State   api.BatchState
	Op      string
}

func (err *ErrBadState) Error() string {
	return fmt.Sprintf("batch %d is in state %s; %s is not permitted", err.BatchID, err.State, err.Op)
}

// ErrMalformedRequest indicates an unparseable request document or one with
// missing required fields.
type ErrMalformedRequest struct {
	Message string
}

func (err *ErrMalformedRequest) Error() string {
	return fmt.Sprintf("malformed request: %s", err.Message)
}

// ErrMissingEstimate indicates a batch estimate could not be derived because
// a job carries no compute estimate and no default applies.
type ErrMissingEstimate struct {
	Job string
}

func (err *ErrMissingEstimate) Error() string {
	return fmt.Sprintf("no compute estimate for job %q and no batch default given", err.Job)
}

// CodeFromError maps error types to protocol error codes. A nil error maps
// to CodeSuccess; unrecognised errors map to CodeInternalError.
func CodeFromError(err error) int {
	if err == nil {
		return api.CodeSuccess
	}
	{
		var e *ErrAuth
		if errors.As(err, &e) {
			return api.CodeAuthError
		}
	}
	{
		var e *ErrNoPermission
		if errors.As(err, &e) {
			return api.CodeAuthorizationError
		}
	}
	{
		var e *ErrQuotaExceeded
		if errors.As(err, &e) {
			return api.CodeQuotaExceeded
		}
	}
	{
		var e *ErrNotFound
		if errors.As(err, &e) {
			return api.CodeNotFound
		}
	}
	{
		var e *ErrTemplateMismatch
		if errors.As(err, &e) {
			return api.CodeTemplateMismatch
		}
	}
	{
		var e *ErrImmutabilityViolation
		if errors.As(err, &e) {
			return api.CodeImmutabilityViolation
		}
	}
	{
		var e *ErrStaging
		if errors.As(err, &e) {
			return api.CodeStagingError
		}
	}
	{
		var e *ErrEnqueueFailure
		if errors.As(err, &e) {
			return api.CodeEnqueueFailure
		}
	}
	{
		var e *ErrBadState
		if errors.As(err, &e) {
			return api.CodeBadState
		}
	}
	{
		var e *ErrMalformedRequest
		if errors.As(err, &e) {
			return api.CodeMalformedRequest
		}
	}
	{
		var e *ErrMissingEstimate
		if errors.As(err, &e) {
			return api.CodeMissingEstimate
		}
	}
	return api.CodeInternalError
}
