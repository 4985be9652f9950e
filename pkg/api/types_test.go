package api

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestBatchStateRank(t *testing.T) {
	ordered := []BatchState{BatchInit, BatchInProgress, BatchComplete, BatchAborted, BatchRetired}
	for i := 1; i < len(ordered); i++ {
		assert.Greater(t, ordered[i].Rank(), ordered[i-1].Rank())
	}
	assert.Zero(t, BatchState("BOGUS").Rank())
}

func TestBatchStateTransitions(t *testing.T) {
	assert.True(t, BatchInit.CanTransitionTo(BatchInProgress))
	assert.True(t, BatchInProgress.CanTransitionTo(BatchComplete))
	assert.True(t, BatchInProgress.CanTransitionTo(BatchAborted))
	assert.True(t, BatchComplete.CanTransitionTo(BatchAborted))
	assert.True(t, BatchInit.CanTransitionTo(BatchRetired))
	assert.True(t, BatchAborted.CanTransitionTo(BatchRetired))

	// No going back, no aborting before jobs exist, no leaving RETIRED.
	assert.False(t, BatchInProgress.CanTransitionTo(BatchInit))
	assert.False(t, BatchComplete.CanTransitionTo(BatchInProgress))
	assert.False(t, BatchInit.CanTransitionTo(BatchAborted))
	assert.False(t, BatchAborted.CanTransitionTo(BatchComplete))
	assert.False(t, BatchRetired.CanTransitionTo(BatchRetired))
	assert.False(t, BatchRetired.CanTransitionTo(BatchAborted))
}
