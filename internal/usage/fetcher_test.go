package usage

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFetchParsesCommandOutput(t *testing.T) {
	f := NewCommandFetcher([]string{"sh", "-c",
		`echo '{"session_percent": 42.5, "weekly_percent": 10}'`})

	snap, err := f.Fetch(context.Background())
	require.NoError(t, err)
	require.NotNil(t, snap)
	assert.Equal(t, 42.5, snap.SessionPercent)
	assert.Equal(t, 10.0, snap.WeeklyPercent)
	assert.False(t, snap.FetchedAt.IsZero())
}

func TestFetchNoCommandConfigured(t *testing.T) {
	f := NewCommandFetcher(nil)

	snap, err := f.Fetch(context.Background())
	require.Error(t, err)
	assert.Nil(t, snap)
}

func TestFetchFailureServesStaleSnapshot(t *testing.T) {
	f := NewCommandFetcher([]string{"sh", "-c",
		`echo '{"session_percent": 80}'`})
	_, err := f.Fetch(context.Background())
	require.NoError(t, err)

	// Swap in a failing command; the last good snapshot still serves.
	f.command = []string{"sh", "-c", "exit 1"}
	snap, err := f.Fetch(context.Background())
	require.Error(t, err)
	require.NotNil(t, snap)
	assert.Equal(t, 80.0, snap.SessionPercent)
}

func TestFetchRejectsNonJSONOutput(t *testing.T) {
	f := NewCommandFetcher([]string{"sh", "-c", "echo not json"})

	snap, err := f.Fetch(context.Background())
	require.Error(t, err)
	assert.Nil(t, snap)
}
