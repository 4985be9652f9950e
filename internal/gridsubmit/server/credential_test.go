package server

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestOutputCredential(t *testing.T) {
	credential := OutputCredential("secret", "job-a_0")

	assert.Len(t, credential, 64)
	assert.True(t, ValidCredential("secret", "job-a_0", credential))
	assert.False(t, ValidCredential("secret", "job-b_0", credential))
	assert.False(t, ValidCredential("other-secret", "job-a_0", credential))
	assert.False(t, ValidCredential("secret", "job-a_0", ""))

	// Deterministic, so URLs can be derived client side.
	assert.Equal(t, credential, OutputCredential("secret", "job-a_0"))
}
