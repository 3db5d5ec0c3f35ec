package transcript

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"sync"
)

// Cursor is the persisted tail position for one transcript path. Offset
// only moves backward when the file is observed to have shrunk.
type Cursor struct {
	Path           string `json:"path"`
	Offset         int64  `json:"offset"`
	Partial        []byte `json:"partial,omitempty"`
	SessionID      string `json:"session_id,omitempty"`
	ProjectPath    string `json:"project_path,omitempty"`
	IgnoreExisting bool   `json:"ignore_existing,omitempty"`
}

// CursorStore persists cursors across daemon restarts.
type CursorStore interface {
	LoadCursor(path string) (*Cursor, error)
	SaveCursor(c *Cursor) error
}

// Batch is the outcome of one Advance call: the complete lines appended
// since the last committed cursor, and the cursor to commit once they
// have been processed.
type Batch struct {
	Cursor *Cursor
	Lines  [][]byte

	// Start is the byte offset the read began at. Zero means the batch
	// covers the file from its first byte.
	Start int64

	// FirstLine is set when the tracker skipped a pre-existing file's
	// history and the file has now grown: the header line is re-read so
	// the caller can bootstrap session identity from it.
	FirstLine []byte
}

// TailTracker computes the newly appended byte range of transcript files.
// One tracker serves all paths; callers must not process the same path
// concurrently (the daemon shards paths across workers for this).
type TailTracker struct {
	cursors CursorStore

	// replayExisting disables the seek-to-end behavior for files that
	// predate the tracker.
	replayExisting bool

	mu    sync.Mutex
	cache map[string]*Cursor
}

// NewTailTracker creates a tracker backed by the given cursor store.
func NewTailTracker(cursors CursorStore, replayExisting bool) *TailTracker {
	return &TailTracker{
		cursors:        cursors,
		replayExisting: replayExisting,
		cache:          make(map[string]*Cursor),
	}
}

// Advance reacts to a change signal for path. It returns nil when there is
// nothing new to process. The returned batch's cursor must be passed to
// Commit after the lines have been processed; until then a crash replays
// the same bytes (at-least-once, made safe by id-based upserts downstream).
func (t *TailTracker) Advance(path string) (*Batch, error) {
	cur, known, err := t.cursor(path)
	if err != nil {
		return nil, err
	}

	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("stat %s: %w", path, err)
	}
	size := info.Size()

	// First-ever observation of a file that predates us: remember the
	// current end and do not replay its history.
	if !known && !t.replayExisting && size > 0 {
		cur.Offset = size
		cur.IgnoreExisting = true
		if err := t.Commit(cur); err != nil {
			return nil, err
		}
		return nil, nil
	}

	// Truncation or rotation: start over.
	if size < cur.Offset {
		cur.Offset = 0
		cur.Partial = nil
	}

	if size == cur.Offset {
		return nil, nil
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	defer f.Close()

	if _, err := f.Seek(cur.Offset, io.SeekStart); err != nil {
		return nil, fmt.Errorf("seek %s to %d: %w", path, cur.Offset, err)
	}

	buf := make([]byte, size-cur.Offset)
	if _, err := io.ReadFull(f, buf); err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}

	// Prepend the stored partial tail, then split into complete lines;
	// the final fragment (no trailing newline yet) becomes the new tail.
	data := append(append([]byte{}, cur.Partial...), buf...)
	fragments := bytes.Split(data, []byte{'\n'})
	partial := fragments[len(fragments)-1]
	fragments = fragments[:len(fragments)-1]

	var lines [][]byte
	for _, frag := range fragments {
		frag = bytes.TrimRight(frag, "\r")
		if len(frag) == 0 {
			continue
		}
		lines = append(lines, frag)
	}

	next := *cur
	next.Offset = size
	next.Partial = append([]byte{}, partial...)

	batch := &Batch{Cursor: &next, Lines: lines, Start: cur.Offset}

	// The file grew past the skipped history: re-read the header line,
	// which carries session identity that tail-only reads never see.
	if cur.IgnoreExisting {
		next.IgnoreExisting = false
		batch.FirstLine = readFirstLine(path)
	}

	return batch, nil
}

// Commit persists a cursor after its batch was fully processed. Persisting
// last means a crash mid-batch re-processes lines rather than losing them.
func (t *TailTracker) Commit(c *Cursor) error {
	if err := t.cursors.SaveCursor(c); err != nil {
		return err
	}
	t.mu.Lock()
	t.cache[c.Path] = c
	t.mu.Unlock()
	return nil
}

// cursor returns the cached or persisted cursor for path, reporting
// whether the path was seen before.
func (t *TailTracker) cursor(path string) (*Cursor, bool, error) {
	t.mu.Lock()
	if c, ok := t.cache[path]; ok {
		t.mu.Unlock()
		cp := *c
		return &cp, true, nil
	}
	t.mu.Unlock()

	c, err := t.cursors.LoadCursor(path)
	if err != nil {
		return nil, false, err
	}
	if c != nil {
		t.mu.Lock()
		t.cache[path] = c
		t.mu.Unlock()
		cp := *c
		return &cp, true, nil
	}
	return &Cursor{Path: path}, false, nil
}

func readFirstLine(path string) []byte {
	f, err := os.Open(path)
	if err != nil {
		return nil
	}
	defer f.Close()

	r := make([]byte, 0, 4096)
	buf := make([]byte, 4096)
	for {
		n, err := f.Read(buf)
		if n > 0 {
			if i := bytes.IndexByte(buf[:n], '\n'); i >= 0 {
				return append(r, buf[:i]...)
			}
			r = append(r, buf[:n]...)
		}
		if err != nil {
			if err == io.EOF && len(r) > 0 {
				return r
			}
			return nil
		}
	}
}

// StateCursorStore adapts a daemon_state-style key-value store to
// CursorStore, one JSON record per tailed path.
type StateCursorStore struct {
	KV interface {
		GetState(key string) (string, error)
		SetState(key, value string) error
	}
}

func cursorKey(path string) string { return "tail_cursor:" + path }

// LoadCursor reads the persisted cursor for path, or nil if none exists.
func (s StateCursorStore) LoadCursor(path string) (*Cursor, error) {
	raw, err := s.KV.GetState(cursorKey(path))
	if err != nil {
		return nil, err
	}
	if raw == "" {
		return nil, nil
	}
	var c Cursor
	if err := json.Unmarshal([]byte(raw), &c); err != nil {
		// A corrupt cursor record means starting the path over, not
		// failing ingestion.
		return nil, nil
	}
	return &c, nil
}

// SaveCursor persists the cursor for its path.
func (s StateCursorStore) SaveCursor(c *Cursor) error {
	raw, err := json.Marshal(c)
	if err != nil {
		return err
	}
	return s.KV.SetState(cursorKey(c.Path), string(raw))
}
