// Package daemon wires the agentdeck background process: transcript
// watching, ingestion, derived-state storage, and the IPC surface.
package daemon

import (
	"context"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/highbeam/agentdeck/internal/config"
	"github.com/highbeam/agentdeck/internal/freshness"
	"github.com/highbeam/agentdeck/internal/gitinfo"
	"github.com/highbeam/agentdeck/internal/logger"
	"github.com/highbeam/agentdeck/internal/notify"
	"github.com/highbeam/agentdeck/internal/store"
	"github.com/highbeam/agentdeck/internal/transcript"
	"github.com/highbeam/agentdeck/internal/watcher"
)

// IPCServer is the interface the daemon uses to start/stop the IPC
// listener. This avoids a circular dependency with the ipc package.
type IPCServer interface {
	Listen(ctx context.Context, socketPath string) error
	Stop() error
}

// StoreAware is implemented by IPC servers that want the store reference
// once the daemon has opened it.
type StoreAware interface {
	SetStore(store interface{})
}

// Daemon manages the lifecycle of the agentdeck background process.
type Daemon struct {
	cfg      *config.Config
	store    *store.Store
	ipc      IPCServer
	notifier *notify.Notifier
	watcher  *watcher.Watcher
	tracker  *transcript.TailTracker
	branches *gitinfo.Resolver
	resyncs  *freshness.Cache[string]
	pool     *workerPool
	log      zerolog.Logger

	startTime time.Time

	// Per-path interpreter state, owned by the worker that shards the
	// path. sessionPaths maps session ids back to transcript paths for
	// resync requests.
	statesMu     sync.Mutex
	states       map[string]*ingestState
	sessionPaths map[string]string

	ctx     context.Context
	cancel  context.CancelFunc
	mu      sync.Mutex
	running bool
}

// New creates a Daemon with the given config and an injected IPC server.
func New(cfg *config.Config, ipcServer IPCServer, notifier *notify.Notifier) *Daemon {
	return &Daemon{
		cfg:          cfg,
		ipc:          ipcServer,
		notifier:     notifier,
		branches:     gitinfo.NewResolver(),
		log:          logger.For("daemon"),
		states:       make(map[string]*ingestState),
		sessionPaths: make(map[string]string),
	}
}

// Start opens the store, starts the watcher, worker pool, and IPC
// server, runs the startup discovery scan, and blocks until the context
// is cancelled (via signal or Stop).
func (d *Daemon) Start() error {
	d.mu.Lock()
	if d.running {
		d.mu.Unlock()
		return fmt.Errorf("daemon is already running")
	}
	d.mu.Unlock()

	if err := d.cfg.EnsureDataDir(); err != nil {
		return fmt.Errorf("create data dir: %w", err)
	}

	s, err := store.New(d.cfg.DBPath)
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	d.store = s

	if sa, ok := d.ipc.(StoreAware); ok {
		sa.SetStore(s)
	}

	d.tracker = transcript.NewTailTracker(
		transcript.StateCursorStore{KV: s},
		d.cfg.ReplayExisting,
	)
	d.resyncs = freshness.New[string](d.cfg.FreshnessWindow())

	ctx, cancel := signalContext(context.Background())
	d.ctx = ctx
	d.cancel = cancel
	d.startTime = time.Now()

	d.mu.Lock()
	d.running = true
	d.mu.Unlock()

	d.pool = newWorkerPool(d.cfg.Workers, d.handleChange)
	d.pool.start(ctx)

	ipcErrCh := make(chan error, 1)
	go func() {
		ipcErrCh <- d.ipc.Listen(ctx, d.cfg.SocketPath)
	}()

	roots := []string{d.cfg.ClaudeProjectsDir, d.cfg.CodexSessionsDir}
	d.watcher = watcher.New(roots, d.cfg.DebounceWindow(), func(e watcher.Event) {
		d.pool.dispatch(e.Path)
	})
	go func() {
		if err := d.watcher.Start(ctx); err != nil {
			d.log.Error().Err(err).Msg("watcher failed")
		}
	}()

	// Pick up sessions that were active before we started.
	go d.discover(ctx, roots)

	d.log.Info().
		Int("pid", os.Getpid()).
		Str("db", d.cfg.DBPath).
		Str("socket", d.cfg.SocketPath).
		Msg("daemon started")

	select {
	case <-ctx.Done():
		d.log.Info().Msg("shutdown signal received")
	case err := <-ipcErrCh:
		if err != nil {
			d.log.Error().Err(err).Msg("ipc server failed")
		}
	}

	return d.shutdown()
}

// Stop triggers a graceful shutdown from outside (e.g. the IPC stop
// command).
func (d *Daemon) Stop() {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.cancel != nil {
		d.cancel()
	}
}

// shutdown performs ordered teardown: watcher, workers, IPC, notifier,
// store, socket cleanup.
func (d *Daemon) shutdown() error {
	d.log.Info().Msg("shutting down")

	if d.watcher != nil {
		d.watcher.Stop()
	}
	if d.pool != nil {
		d.pool.wait()
	}
	if d.ipc != nil {
		if err := d.ipc.Stop(); err != nil {
			d.log.Warn().Err(err).Msg("ipc stop")
		}
	}
	if d.notifier != nil {
		d.notifier.Stop()
	}
	if d.store != nil {
		if err := d.store.Close(); err != nil {
			d.log.Warn().Err(err).Msg("store close")
		}
	}

	_ = os.Remove(d.cfg.SocketPath)

	d.mu.Lock()
	d.running = false
	d.mu.Unlock()

	d.log.Info().Msg("daemon stopped")
	return nil
}

// Running reports whether the daemon loop is active.
func (d *Daemon) Running() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.running
}

// Uptime returns how long the daemon has been running.
func (d *Daemon) Uptime() time.Duration {
	if d.startTime.IsZero() {
		return 0
	}
	return time.Since(d.startTime)
}

// Store returns the daemon's data store.
func (d *Daemon) Store() *store.Store {
	return d.store
}
