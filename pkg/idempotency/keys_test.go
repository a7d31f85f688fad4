package idempotency

import (
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestUUIDGenerator_Unique(t *testing.T) {
	gen := UUIDGenerator{}
	seen := make(map[string]bool)

	for i := 0; i < 1000; i++ {
		key := gen.New(PrefixReservation)
		require.False(t, seen[key], "duplicate key %s", key)
		seen[key] = true
	}
}

func TestGeneratePrefixedUUID_Format(t *testing.T) {
	key := GeneratePrefixedUUID(PrefixCapture)

	require.True(t, strings.HasPrefix(key, "cap-"))
	_, err := uuid.Parse(strings.TrimPrefix(key, "cap-"))
	assert.NoError(t, err)
}

func TestNewSessionID_IsBareUUID(t *testing.T) {
	id := NewSessionID()

	_, err := uuid.Parse(id)
	require.NoError(t, err)
	assert.Len(t, id, 36)
	assert.NotEqual(t, id, NewSessionID())
}
