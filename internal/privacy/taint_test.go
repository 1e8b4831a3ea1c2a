package privacy

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRegistryRegisterAndContains(t *testing.T) {
	r := NewRegistry()
	r.Register("hunter2", CategoryPassword, "sess-1")

	matches := r.Contains("the password is hunter2, really")
	assert.Len(t, matches, 1)
	assert.Equal(t, CategoryPassword, matches[0].Entry.Category)
}

func TestRegistryDeduplicatesSameValueAndCategory(t *testing.T) {
	r := NewRegistry()
	r.Register("hunter2", CategoryPassword, "sess-1")
	r.Register("hunter2", CategoryPassword, "sess-1")

	assert.Len(t, r.Snapshot(), 1)
}

func TestRegistryIgnoresEmptyValue(t *testing.T) {
	r := NewRegistry()
	r.Register("", CategoryPassword, "sess-1")
	assert.Empty(t, r.Snapshot())
}

func TestRegistryContainsFindsMultipleOccurrences(t *testing.T) {
	r := NewRegistry()
	r.Register("hunter2", CategoryPassword, "sess-1")

	matches := r.Contains("hunter2 and again hunter2")
	assert.Len(t, matches, 2)
}

func TestRegistryWipeClearsEntries(t *testing.T) {
	r := NewRegistry()
	r.Register("hunter2", CategoryPassword, "sess-1")

	result := r.Wipe()
	assert.True(t, result.Verified)
	assert.Empty(t, r.Snapshot())
	assert.Empty(t, r.Contains("hunter2"))
}
