package transcript

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// memCursorStore is an in-memory CursorStore for tests.
type memCursorStore struct {
	cursors map[string]*Cursor
}

func newMemCursorStore() *memCursorStore {
	return &memCursorStore{cursors: make(map[string]*Cursor)}
}

func (m *memCursorStore) LoadCursor(path string) (*Cursor, error) {
	if c, ok := m.cursors[path]; ok {
		cp := *c
		return &cp, nil
	}
	return nil, nil
}

func (m *memCursorStore) SaveCursor(c *Cursor) error {
	cp := *c
	m.cursors[c.Path] = &cp
	return nil
}

func appendFile(t *testing.T, path, data string) {
	t.Helper()
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	require.NoError(t, err)
	defer f.Close()
	_, err = f.WriteString(data)
	require.NoError(t, err)
}

func TestTailTrackerAppendOnly(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "t.jsonl")
	tracker := NewTailTracker(newMemCursorStore(), true)

	appendFile(t, path, "line1\nline2\n")
	batch, err := tracker.Advance(path)
	require.NoError(t, err)
	require.NotNil(t, batch)
	require.Len(t, batch.Lines, 2)
	assert.Equal(t, "line1", string(batch.Lines[0]))
	assert.Equal(t, int64(0), batch.Start)
	require.NoError(t, tracker.Commit(batch.Cursor))

	appendFile(t, path, "line3\n")
	batch, err = tracker.Advance(path)
	require.NoError(t, err)
	require.NotNil(t, batch)
	require.Len(t, batch.Lines, 1)
	assert.Equal(t, "line3", string(batch.Lines[0]))
	assert.Greater(t, batch.Start, int64(0))
}

func TestTailTrackerNoGrowth(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "t.jsonl")
	tracker := NewTailTracker(newMemCursorStore(), true)

	appendFile(t, path, "line1\n")
	batch, err := tracker.Advance(path)
	require.NoError(t, err)
	require.NoError(t, tracker.Commit(batch.Cursor))

	batch, err = tracker.Advance(path)
	require.NoError(t, err)
	assert.Nil(t, batch)
}

func TestTailTrackerPartialLine(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "t.jsonl")
	tracker := NewTailTracker(newMemCursorStore(), true)

	appendFile(t, path, "complete\npart")
	batch, err := tracker.Advance(path)
	require.NoError(t, err)
	require.Len(t, batch.Lines, 1)
	assert.Equal(t, "complete", string(batch.Lines[0]))
	assert.Equal(t, []byte("part"), batch.Cursor.Partial)
	require.NoError(t, tracker.Commit(batch.Cursor))

	appendFile(t, path, "ial\nnext\n")
	batch, err = tracker.Advance(path)
	require.NoError(t, err)
	require.Len(t, batch.Lines, 2)
	assert.Equal(t, "partial", string(batch.Lines[0]), "fragments joined across reads")
	assert.Equal(t, "next", string(batch.Lines[1]))
	assert.Empty(t, batch.Cursor.Partial)
}

func TestTailTrackerTruncationResets(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "t.jsonl")
	tracker := NewTailTracker(newMemCursorStore(), true)

	appendFile(t, path, "old line one\nold line two\n")
	batch, err := tracker.Advance(path)
	require.NoError(t, err)
	require.NoError(t, tracker.Commit(batch.Cursor))

	// The file shrinks: rewritten from scratch.
	require.NoError(t, os.WriteFile(path, []byte("fresh\n"), 0o644))
	batch, err = tracker.Advance(path)
	require.NoError(t, err)
	require.NotNil(t, batch)
	require.Len(t, batch.Lines, 1)
	assert.Equal(t, "fresh", string(batch.Lines[0]))
	assert.Equal(t, int64(0), batch.Start)
}

func TestTailTrackerIgnoreExisting(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "t.jsonl")
	tracker := NewTailTracker(newMemCursorStore(), false)

	header := `{"type":"session_meta","payload":{"id":"s1"}}` + "\n"
	appendFile(t, path, header+"history1\nhistory2\n")

	// First observation skips the backlog entirely.
	batch, err := tracker.Advance(path)
	require.NoError(t, err)
	assert.Nil(t, batch)

	// Growth yields only the tail, plus the re-read header line.
	appendFile(t, path, "new1\n")
	batch, err = tracker.Advance(path)
	require.NoError(t, err)
	require.NotNil(t, batch)
	require.Len(t, batch.Lines, 1)
	assert.Equal(t, "new1", string(batch.Lines[0]))
	require.NotNil(t, batch.FirstLine)
	assert.Contains(t, string(batch.FirstLine), "session_meta")
	assert.False(t, batch.Cursor.IgnoreExisting)
	require.NoError(t, tracker.Commit(batch.Cursor))

	// Subsequent growth is plain tailing, no header re-read.
	appendFile(t, path, "new2\n")
	batch, err = tracker.Advance(path)
	require.NoError(t, err)
	require.Len(t, batch.Lines, 1)
	assert.Nil(t, batch.FirstLine)
}

func TestTailTrackerCursorSurvivesRestart(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "t.jsonl")
	cursors := newMemCursorStore()

	tracker := NewTailTracker(cursors, true)
	appendFile(t, path, "one\ntwo\n")
	batch, err := tracker.Advance(path)
	require.NoError(t, err)
	require.NoError(t, tracker.Commit(batch.Cursor))

	// New tracker over the same cursor store resumes, not replays.
	tracker2 := NewTailTracker(cursors, true)
	appendFile(t, path, "three\n")
	batch, err = tracker2.Advance(path)
	require.NoError(t, err)
	require.Len(t, batch.Lines, 1)
	assert.Equal(t, "three", string(batch.Lines[0]))
}

func TestTailTrackerCRLFAndBlankLines(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "t.jsonl")
	tracker := NewTailTracker(newMemCursorStore(), true)

	appendFile(t, path, "a\r\n\nb\n")
	batch, err := tracker.Advance(path)
	require.NoError(t, err)
	require.Len(t, batch.Lines, 2)
	assert.Equal(t, "a", string(batch.Lines[0]))
	assert.Equal(t, "b", string(batch.Lines[1]))
}

func TestStateCursorStoreRoundTrip(t *testing.T) {
	kv := map[string]string{}
	store := StateCursorStore{KV: mapKV(kv)}

	c := &Cursor{Path: "/p/t.jsonl", Offset: 42, Partial: []byte("fra"), SessionID: "s1"}
	require.NoError(t, store.SaveCursor(c))

	loaded, err := store.LoadCursor("/p/t.jsonl")
	require.NoError(t, err)
	require.NotNil(t, loaded)
	assert.Equal(t, int64(42), loaded.Offset)
	assert.Equal(t, []byte("fra"), loaded.Partial)
	assert.Equal(t, "s1", loaded.SessionID)

	missing, err := store.LoadCursor("/other")
	require.NoError(t, err)
	assert.Nil(t, missing)

	// Corrupt records restart the path instead of failing.
	kv[cursorKey("/bad")] = "{corrupt"
	bad, err := store.LoadCursor("/bad")
	require.NoError(t, err)
	assert.Nil(t, bad)
}

type mapKV map[string]string

func (m mapKV) GetState(key string) (string, error) { return m[key], nil }
func (m mapKV) SetState(key, value string) error    { m[key] = value; return nil }
