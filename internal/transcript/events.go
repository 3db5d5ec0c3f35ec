// Package transcript turns append-only agent transcript files into derived
// session state: a byte-offset tail tracker, per-format line decoders, an
// incremental event interpreter, and a full-file correlating parser.
package transcript

import (
	"crypto/sha256"
	"encoding/hex"
	"time"

	"github.com/highbeam/agentdeck/internal/model"
)

// EventKind is the closed set of state-transition commands a decoded line
// can produce. Decoders map their own vocabulary onto these; anything they
// cannot map is simply not emitted.
type EventKind int

const (
	KindSessionMeta EventKind = iota
	KindTurnStarted
	KindTurnEnded
	KindUserText
	KindAssistantText
	KindThinking
	KindToolBegin
	KindToolEnd
	KindApproval
	KindQuestion
	KindUsage
)

// Event is one decoded state-transition command. Fields are populated per
// kind; unset fields are zero values.
type Event struct {
	Kind      EventKind
	Timestamp time.Time

	// LineID is a stable identifier carried by the source line itself
	// (e.g. a message uuid). Empty when the vocabulary has none.
	LineID string

	// Identity (KindSessionMeta, but decoders may attach to any event).
	SessionID   string
	ProjectPath string
	Model       string

	// Content (user/assistant/thinking).
	Text   string
	Images []string

	// Tool correlation (begin/end/approval).
	CallID    string
	ToolName  string
	ToolInput string
	Output    string

	// Question (KindQuestion).
	Question string

	// Usage report (KindUsage). Absolute counts, not deltas.
	Usage *model.TokenUsage
}

// Decoder turns one raw transcript line into zero or more events.
// Malformed lines decode to nothing; they never abort the stream.
type Decoder interface {
	Format() model.Format
	DecodeLine(line []byte) []Event
}

// DecoderForPath picks the decoder whose agent wrote the given transcript,
// based on which configured root contains it. Paths outside both roots
// have no decoder.
func DecoderForPath(path, claudeRoot, codexRoot string) Decoder {
	if codexRoot != "" && hasPathPrefix(path, codexRoot) {
		return CodexDecoder{}
	}
	if claudeRoot != "" && hasPathPrefix(path, claudeRoot) {
		return ClaudeDecoder{}
	}
	return nil
}

func hasPathPrefix(path, root string) bool {
	if len(path) < len(root) {
		return false
	}
	if path[:len(root)] != root {
		return false
	}
	return len(path) == len(root) || path[len(root)] == '/'
}

// stableID derives a message id for a line that carries no id of its own.
// It hashes source-line identity, so re-parses of the same line agree.
func stableID(parts ...string) string {
	h := sha256.New()
	for _, p := range parts {
		h.Write([]byte(p))
		h.Write([]byte{0})
	}
	return hex.EncodeToString(h.Sum(nil))[:16]
}
