package registry

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalizeConfirmationSingleObject(t *testing.T) {
	msg, err := NormalizeConfirmation([]byte(`{"message":"certificate recorded","status":"ok"}`))
	require.NoError(t, err)
	assert.Equal(t, "certificate recorded", msg)
}

func TestNormalizeConfirmationFallsBackToDetailAndStatus(t *testing.T) {
	msg, err := NormalizeConfirmation([]byte(`{"detail":"queued for publication"}`))
	require.NoError(t, err)
	assert.Equal(t, "queued for publication", msg)

	msg, err = NormalizeConfirmation([]byte(`{"status":"ACCEPTED"}`))
	require.NoError(t, err)
	assert.Equal(t, "ACCEPTED", msg)
}

func TestNormalizeConfirmationConcatenatedObjects(t *testing.T) {
	raw := []byte(`{"message":"certificate recorded"}{"message":"registry index updated"}`)
	msg, err := NormalizeConfirmation(raw)
	require.NoError(t, err)
	assert.Equal(t, "certificate recorded; registry index updated", msg)
}

func TestNormalizeConfirmationDeduplicatesFragments(t *testing.T) {
	raw := []byte(`{"message":"certificate recorded"}{"message":"certificate recorded"}`)
	msg, err := NormalizeConfirmation(raw)
	require.NoError(t, err)
	assert.Equal(t, "certificate recorded", msg)
}

func TestNormalizeConfirmationRejectsBadInput(t *testing.T) {
	_, err := NormalizeConfirmation(nil)
	assert.Error(t, err)

	_, err = NormalizeConfirmation([]byte("   "))
	assert.Error(t, err)

	_, err = NormalizeConfirmation([]byte("<html>not json</html>"))
	assert.Error(t, err)

	_, err = NormalizeConfirmation([]byte(`{"unrelated":"field"}`))
	assert.Error(t, err)
}
