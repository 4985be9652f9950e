package rpcerrors

import (
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"

	"github.com/volgrid/gridsubmit/pkg/api"
)

func TestCodeFromError(t *testing.T) {
	assert.Equal(t, api.CodeSuccess, CodeFromError(nil))
	assert.Equal(t, api.CodeAuthError, CodeFromError(&ErrAuth{}))
	assert.Equal(t, api.CodeAuthorizationError, CodeFromError(&ErrNoPermission{Account: "a"}))
	assert.Equal(t, api.CodeQuotaExceeded, CodeFromError(&ErrQuotaExceeded{}))
	assert.Equal(t, api.CodeNotFound, CodeFromError(&ErrNotFound{Type: "batch", Value: "7"}))
	assert.Equal(t, api.CodeTemplateMismatch, CodeFromError(&ErrTemplateMismatch{}))
	assert.Equal(t, api.CodeImmutabilityViolation, CodeFromError(&ErrImmutabilityViolation{}))
	assert.Equal(t, api.CodeStagingError, CodeFromError(&ErrStaging{}))
	assert.Equal(t, api.CodeEnqueueFailure, CodeFromError(&ErrEnqueueFailure{}))
	assert.Equal(t, api.CodeBadState, CodeFromError(&ErrBadState{}))
	assert.Equal(t, api.CodeMalformedRequest, CodeFromError(&ErrMalformedRequest{}))
	assert.Equal(t, api.CodeMissingEstimate, CodeFromError(&ErrMissingEstimate{}))
	assert.Equal(t, api.CodeInternalError, CodeFromError(errors.New("disk on fire")))
}

func TestCodeFromError_Wrapped(t *testing.T) {
	err := errors.Wrap(&ErrNotFound{Type: "job", Value: "j1"}, "loading job")
	assert.Equal(t, api.CodeNotFound, CodeFromError(err))

	// Typed causes inside staging errors still map to the outer kind.
	err = &ErrStaging{PhysName: "jf_x", Cause: errors.New("io")}
	assert.Equal(t, api.CodeStagingError, CodeFromError(err))
}
