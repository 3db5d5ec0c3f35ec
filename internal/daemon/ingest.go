package daemon

import (
	"context"
	"fmt"
	"hash/fnv"
	"sync"

	"github.com/highbeam/agentdeck/internal/model"
	"github.com/highbeam/agentdeck/internal/transcript"
)

// workerPool shards transcript paths across a fixed set of workers so
// that no two workers ever process the same path concurrently while
// different paths still ingest in parallel.
type workerPool struct {
	handle func(path string)
	queues []chan string
	wg     sync.WaitGroup
}

func newWorkerPool(n int, handle func(path string)) *workerPool {
	if n < 1 {
		n = 1
	}
	p := &workerPool{handle: handle}
	for i := 0; i < n; i++ {
		p.queues = append(p.queues, make(chan string, 64))
	}
	return p
}

func (p *workerPool) start(ctx context.Context) {
	for _, q := range p.queues {
		p.wg.Add(1)
		go func(q chan string) {
			defer p.wg.Done()
			for {
				select {
				case <-ctx.Done():
					return
				case path := <-q:
					p.handle(path)
				}
			}
		}(q)
	}
}

// dispatch routes path to its worker. A full queue drops the signal;
// the next change on the path triggers a catch-up read anyway.
func (p *workerPool) dispatch(path string) {
	h := fnv.New32a()
	_, _ = h.Write([]byte(path))
	q := p.queues[h.Sum32()%uint32(len(p.queues))]
	select {
	case q <- path:
	default:
	}
}

func (p *workerPool) wait() {
	p.wg.Wait()
}

// ingestState is the interpreter state one worker keeps for a path
// between change signals.
type ingestState struct {
	st      *transcript.SessionState
	nextSeq uint32
	seqByID map[string]uint32
}

// handleChange is the per-path ingest cycle: read newly appended lines,
// run them through the decoder and interpreter, persist derived state,
// then commit the cursor. Runs on exactly one worker per path.
func (d *Daemon) handleChange(path string) {
	dec := transcript.DecoderForPath(path, d.cfg.ClaudeProjectsDir, d.cfg.CodexSessionsDir)
	if dec == nil {
		return
	}

	batch, err := d.tracker.Advance(path)
	if err != nil {
		d.log.Warn().Err(err).Str("path", path).Msg("advance failed")
		return
	}
	if batch == nil || len(batch.Lines) == 0 {
		return
	}

	state, resynced, err := d.stateFor(path, dec, batch)
	if err != nil {
		d.log.Warn().Err(err).Str("path", path).Msg("state rebuild failed")
		return
	}
	if resynced {
		// The resync read the whole file including this batch's lines;
		// just record the new position.
		d.commit(batch, state)
		return
	}

	// A skipped-history file's header line carries session identity.
	if batch.FirstLine != nil {
		for _, ev := range dec.DecodeLine(batch.FirstLine) {
			if ev.Kind == transcript.KindSessionMeta {
				transcript.Apply(ev, state.st)
			}
		}
	}

	for _, line := range batch.Lines {
		for _, ev := range dec.DecodeLine(line) {
			msgs := transcript.Apply(ev, state.st)
			for i := range msgs {
				d.persistMessage(path, state, &msgs[i])
			}
		}
	}

	d.commit(batch, state)
}

// persistMessage assigns a stable sequence and upserts. A message id
// seen before (a tool call completing) keeps its original position.
func (d *Daemon) persistMessage(path string, state *ingestState, msg *model.Message) {
	if seq, ok := state.seqByID[msg.ID]; ok {
		msg.Sequence = seq
	} else {
		msg.Sequence = state.nextSeq
		state.seqByID[msg.ID] = state.nextSeq
		state.nextSeq++
	}
	if msg.SessionID == "" {
		// A message arriving before any identity line pins the session
		// to its path-derived id.
		if state.st.Session.ID == "" {
			state.st.Session.ID = transcript.SessionIDFallback(path)
		}
		msg.SessionID = state.st.Session.ID
	}
	if err := d.store.UpsertMessage(msg); err != nil {
		d.log.Warn().Err(err).Str("message", msg.ID).Msg("upsert message failed")
	}
}

// commit persists the session row, then the cursor, then notifies
// subscribers. Cursor-after-rows keeps delivery at-least-once.
func (d *Daemon) commit(batch *transcript.Batch, state *ingestState) {
	sess := &state.st.Session
	if sess.ID == "" {
		sess.ID = transcript.SessionIDFallback(batch.Cursor.Path)
	}
	if sess.Branch == "" && sess.ProjectPath != "" {
		sess.Branch = d.branches.Branch(sess.ProjectPath)
	}

	if err := d.store.UpsertSession(sess); err != nil {
		d.log.Warn().Err(err).Str("session", sess.ID).Msg("upsert session failed")
		return
	}

	batch.Cursor.SessionID = sess.ID
	batch.Cursor.ProjectPath = sess.ProjectPath
	if err := d.tracker.Commit(batch.Cursor); err != nil {
		d.log.Warn().Err(err).Str("path", batch.Cursor.Path).Msg("cursor commit failed")
	}

	d.rememberSession(sess.ID, batch.Cursor.Path)
	d.notifier.Notify(sess.ID)
}

// stateFor returns the in-memory interpreter state for path, rebuilding
// it from the full transcript when the daemon has restarted mid-file or
// the file was rewritten from the top. The bool result reports that a
// full resync ran and already persisted everything the current batch
// contained.
func (d *Daemon) stateFor(path string, dec transcript.Decoder, batch *transcript.Batch) (*ingestState, bool, error) {
	d.statesMu.Lock()
	state, ok := d.states[path]
	d.statesMu.Unlock()

	// A batch restarting at offset zero on a path we already derived
	// from means the file was truncated or rewritten in place. The cached
	// interpreter state and the rows derived from the old contents no
	// longer describe the file; it may even carry a different session.
	rewound := batch.Start == 0 && (ok || batch.Cursor.SessionID != "")
	if ok && !rewound {
		return state, false, nil
	}
	if rewound {
		d.statesMu.Lock()
		delete(d.states, path)
		d.statesMu.Unlock()
		d.resyncs.Invalidate(path)
	}

	state = &ingestState{seqByID: make(map[string]uint32)}

	// Fresh file or a skipped-history bootstrap: incremental apply
	// handles both.
	fallback := transcript.SessionIDFallback(path)
	if !rewound && (batch.Start == 0 || batch.FirstLine != nil) {
		state.st = transcript.NewSessionState(batch.Cursor.SessionID, dec.Format())
		d.rememberState(path, state)
		return state, false, nil
	}

	// Mid-file without memory, or a rewritten file: replay the whole
	// transcript once.
	if err := d.resyncPath(path, dec, fallback); err != nil {
		return nil, false, err
	}

	st, res, err := transcript.SessionFromParse(path, dec, fallback)
	if err != nil {
		return nil, false, err
	}
	state.st = st
	state.nextSeq = uint32(len(res.Messages))
	for _, m := range res.Messages {
		state.seqByID[m.ID] = m.Sequence
	}
	d.rememberState(path, state)
	return state, true, nil
}

// resyncPath rebuilds a session's rows from its full transcript. The
// freshness cache collapses concurrent and rapid repeat requests into
// one parse.
func (d *Daemon) resyncPath(path string, dec transcript.Decoder, fallbackID string) error {
	_, err := d.resyncs.GetOrCompute(path, func() (string, error) {
		st, res, err := transcript.SessionFromParse(path, dec, fallbackID)
		if err != nil {
			return "", err
		}
		sess := &st.Session
		if sess.Branch == "" && sess.ProjectPath != "" {
			sess.Branch = d.branches.Branch(sess.ProjectPath)
		}
		if err := d.store.UpsertSession(sess); err != nil {
			return "", err
		}
		if err := d.store.ReplaceMessages(sess.ID, res.Messages); err != nil {
			return "", err
		}
		d.rememberSession(sess.ID, path)
		d.notifier.Notify(sess.ID)
		return sess.ID, nil
	})
	return err
}

// Resync rebuilds one session from its transcript, for the IPC resync
// command.
func (d *Daemon) Resync(sessionID string) error {
	d.statesMu.Lock()
	path, ok := d.sessionPaths[sessionID]
	d.statesMu.Unlock()
	if !ok {
		return fmt.Errorf("unknown session %s", sessionID)
	}

	dec := transcript.DecoderForPath(path, d.cfg.ClaudeProjectsDir, d.cfg.CodexSessionsDir)
	if dec == nil {
		return fmt.Errorf("no decoder for %s", path)
	}

	d.resyncs.Invalidate(path)
	if err := d.resyncPath(path, dec, transcript.SessionIDFallback(path)); err != nil {
		return err
	}

	// Drop in-memory state so the next change rebuilds from the file.
	d.statesMu.Lock()
	delete(d.states, path)
	d.statesMu.Unlock()
	return nil
}

func (d *Daemon) rememberState(path string, state *ingestState) {
	d.statesMu.Lock()
	d.states[path] = state
	d.statesMu.Unlock()
}

func (d *Daemon) rememberSession(sessionID, path string) {
	d.statesMu.Lock()
	d.sessionPaths[sessionID] = path
	d.statesMu.Unlock()
}
