package repository

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/volgrid/gridsubmit/pkg/api"
)

func TestBatchUpdate(t *testing.T) {
	assert.True(t, BatchUpdate{}.Empty())

	state := api.BatchComplete
	fraction := 0.5
	completion := int64(1700000000)
	update := BatchUpdate{
		State:          &state,
		FractionDone:   &fraction,
		CompletionTime: &completion,
	}
	assert.False(t, update.Empty())

	record := update.record()
	assert.Equal(t, "COMPLETE", record["state"])
	assert.Equal(t, 0.5, record["fraction_done"])
	assert.Equal(t, int64(1700000000), record["completion_time"])
	// Unset fields stay out of the UPDATE entirely.
	assert.Len(t, record, 3)
}

func TestJobTerminal(t *testing.T) {
	assert.False(t, (&Job{}).Terminal())
	assert.True(t, (&Job{CanonicalInstanceID: 4}).Terminal())
	assert.True(t, (&Job{ErrorMask: ErrorMaskCancelled}).Terminal())
}
