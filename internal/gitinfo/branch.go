// Package gitinfo resolves git metadata for session project directories
// using go-git. Branch names enrich session records; failures are soft
// since many project paths are not repositories at all.
package gitinfo

import (
	"sync"
	"time"

	"github.com/go-git/go-git/v5"
)

// cacheTTL bounds how stale a cached branch can get. Branch switches are
// rare compared to transcript appends, so a coarse window is fine.
const cacheTTL = 30 * time.Second

type cachedBranch struct {
	branch  string
	fetched time.Time
}

// Resolver looks up the checked-out branch for project directories,
// memoizing results per path. Safe for concurrent use.
type Resolver struct {
	mu    sync.Mutex
	cache map[string]cachedBranch
	now   func() time.Time
}

// NewResolver creates a Resolver with an empty cache.
func NewResolver() *Resolver {
	return &Resolver{
		cache: make(map[string]cachedBranch),
		now:   time.Now,
	}
}

// Branch returns the current branch name for the repository containing
// path, or "" when path is not inside a repository. Detached HEAD
// returns the short commit hash.
func (r *Resolver) Branch(path string) string {
	if path == "" {
		return ""
	}

	r.mu.Lock()
	if c, ok := r.cache[path]; ok && r.now().Sub(c.fetched) < cacheTTL {
		r.mu.Unlock()
		return c.branch
	}
	r.mu.Unlock()

	branch := resolveBranch(path)

	r.mu.Lock()
	r.cache[path] = cachedBranch{branch: branch, fetched: r.now()}
	r.mu.Unlock()

	return branch
}

// Invalidate drops the cached entry for path.
func (r *Resolver) Invalidate(path string) {
	r.mu.Lock()
	delete(r.cache, path)
	r.mu.Unlock()
}

// resolveBranch opens the repository enclosing path and reads HEAD.
func resolveBranch(path string) string {
	repo, err := git.PlainOpenWithOptions(path, &git.PlainOpenOptions{
		DetectDotGit: true,
	})
	if err != nil {
		return ""
	}

	head, err := repo.Head()
	if err != nil {
		// Repo with no commits yet.
		return ""
	}

	if head.Name().IsBranch() {
		return head.Name().Short()
	}
	// Detached HEAD, report the commit it points at.
	return head.Hash().String()[:7]
}
