package util

import (
	"sort"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNewULID(t *testing.T) {
	n := 1000
	ids := make([]string, n)
	for i := range ids {
		ids[i] = NewULID()
	}

	seen := map[string]bool{}
	for _, id := range ids {
		assert.Len(t, id, 26)
		assert.False(t, seen[id], "duplicate ulid %s", id)
		seen[id] = true
	}

	// Generated in order means sorted lexicographically.
	assert.True(t, sort.StringsAreSorted(ids))
}
