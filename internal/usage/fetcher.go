// Package usage fetches account-level usage and rate-limit information
// from an external command. The daemon treats this as a soft dependency:
// when the command is missing or slow, queries fall back to the last
// snapshot that succeeded.
package usage

import (
	"context"
	"encoding/json"
	"fmt"
	"os/exec"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/highbeam/agentdeck/internal/logger"
)

const fetchTimeout = 10 * time.Second

// Snapshot is account-level usage as reported by the external tool.
type Snapshot struct {
	SessionPercent  float64   `json:"session_percent"`
	WeeklyPercent   float64   `json:"weekly_percent"`
	SessionResetsAt time.Time `json:"session_resets_at"`
	WeeklyResetsAt  time.Time `json:"weekly_resets_at"`
	FetchedAt       time.Time `json:"fetched_at"`
}

// Fetcher retrieves the current usage snapshot.
type Fetcher interface {
	Fetch(ctx context.Context) (*Snapshot, error)
}

// CommandFetcher runs a configured command that prints a usage snapshot
// as JSON on stdout. It caches the last successful snapshot so transient
// failures degrade to stale data instead of errors.
type CommandFetcher struct {
	command []string
	log     zerolog.Logger

	mu   sync.Mutex
	last *Snapshot
}

// NewCommandFetcher creates a fetcher around argv. An empty argv yields
// a fetcher whose Fetch always reports unavailability.
func NewCommandFetcher(argv []string) *CommandFetcher {
	return &CommandFetcher{
		command: argv,
		log:     logger.For("usage"),
	}
}

// Fetch runs the command with a bounded timeout and parses its output.
// On failure it returns the last known snapshot alongside the error so
// callers can choose to serve stale data.
func (f *CommandFetcher) Fetch(ctx context.Context) (*Snapshot, error) {
	if len(f.command) == 0 {
		return f.lastKnown(), fmt.Errorf("no usage command configured")
	}

	ctx, cancel := context.WithTimeout(ctx, fetchTimeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, f.command[0], f.command[1:]...)
	out, err := cmd.Output()
	if err != nil {
		f.log.Debug().Err(err).Msg("usage command failed")
		return f.lastKnown(), fmt.Errorf("run usage command: %w", err)
	}

	var snap Snapshot
	if err := json.Unmarshal(out, &snap); err != nil {
		return f.lastKnown(), fmt.Errorf("parse usage output: %w", err)
	}
	snap.FetchedAt = time.Now()

	f.mu.Lock()
	f.last = &snap
	f.mu.Unlock()

	return &snap, nil
}

// lastKnown returns a copy of the most recent successful snapshot, or nil.
func (f *CommandFetcher) lastKnown() *Snapshot {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.last == nil {
		return nil
	}
	cp := *f.last
	return &cp
}
