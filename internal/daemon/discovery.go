package daemon

import (
	"context"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/highbeam/agentdeck/internal/watcher"
)

// discover walks the transcript roots at startup and enqueues every
// transcript touched within the discovery window, so sessions that were
// active while the daemon was down catch up without waiting for their
// next append.
func (d *Daemon) discover(ctx context.Context, roots []string) {
	cutoff := d.startTime.Add(-d.cfg.DiscoveryMaxAge())
	var found int

	for _, root := range roots {
		err := filepath.WalkDir(root, func(path string, entry fs.DirEntry, err error) error {
			if err != nil {
				return nil // skip inaccessible entries
			}
			select {
			case <-ctx.Done():
				return filepath.SkipAll
			default:
			}
			if entry.IsDir() || !watcher.IsTranscript(path) {
				return nil
			}
			info, err := entry.Info()
			if err != nil || info.ModTime().Before(cutoff) {
				return nil
			}
			d.pool.dispatch(path)
			found++
			return nil
		})
		if err != nil && !os.IsNotExist(err) {
			d.log.Warn().Err(err).Str("root", root).Msg("discovery walk failed")
		}
	}

	d.log.Info().Int("transcripts", found).Msg("discovery scan complete")
}
