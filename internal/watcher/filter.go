package watcher

import (
	"path/filepath"
	"strings"
)

// Editors and sync tools drop scratch files next to transcripts; they are
// never sessions.
var ignoreSuffixes = []string{
	".swp",
	".swo",
	".tmp",
	"~",
	".partial",
}

// IsTranscript reports whether path looks like an agent transcript file.
// Only JSONL files count, and scratch or hidden files are rejected even
// when they carry the extension.
func IsTranscript(path string) bool {
	base := filepath.Base(path)
	if strings.HasPrefix(base, ".") {
		return false
	}
	for _, suffix := range ignoreSuffixes {
		if strings.HasSuffix(base, suffix) {
			return false
		}
	}
	return strings.EqualFold(filepath.Ext(base), ".jsonl")
}
