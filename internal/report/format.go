// Package report renders daemon query results for the terminal.
package report

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/highbeam/agentdeck/internal/ipc"
	"github.com/highbeam/agentdeck/internal/metrics"
	"github.com/highbeam/agentdeck/internal/model"
)

// ANSI escape codes for terminal formatting.
const (
	bold   = "\033[1m"
	red    = "\033[31m"
	green  = "\033[32m"
	yellow = "\033[33m"
	dim    = "\033[2m"
	reset  = "\033[0m"
)

// FormatStatus formats daemon status output.
func FormatStatus(status *ipc.StatusData) string {
	var b strings.Builder
	b.WriteString(bold + "agentdeck daemon" + reset + "\n")
	b.WriteString(fmt.Sprintf("Uptime:   %s\n", status.Uptime))
	b.WriteString(fmt.Sprintf("Sessions: %d\n", status.SessionCount))
	b.WriteString(fmt.Sprintf("Messages: %d\n", status.MessageCount))
	b.WriteString(fmt.Sprintf("DB size:  %s\n", humanBytes(status.DBSizeBytes)))
	for _, root := range status.WatchedRoots {
		b.WriteString(fmt.Sprintf("Watching: %s\n", root))
	}
	return b.String()
}

// FormatSessions renders the session list as a table, most recent first.
func FormatSessions(sessions []model.Session) string {
	if len(sessions) == 0 {
		return "no sessions\n"
	}

	var b strings.Builder
	b.WriteString(fmt.Sprintf("%s%-14s %-7s %-10s %-20s %-9s %s%s\n",
		bold, "NAME", "AGENT", "STATUS", "PROJECT", "TOKENS", "LAST ACTIVITY", reset))

	for _, sess := range sessions {
		name := sess.Name
		if name == "" {
			name = truncateLeft(sess.ID, 14)
		}
		b.WriteString(fmt.Sprintf("%-14s %-7s %s%-10s%s %-20s %-9s %s\n",
			truncateRight(name, 14),
			sess.Format,
			colorForStatus(sess),
			statusLabel(sess),
			reset,
			truncateLeft(sess.ProjectPath, 20),
			humanTokens(sess.TotalTokens),
			humanAge(sess.LastActivityAt),
		))
	}
	return b.String()
}

// FormatSession renders a single session in detail.
func FormatSession(sess *model.Session) string {
	var b strings.Builder
	title := sess.Name
	if title == "" {
		title = sess.ID
	}
	b.WriteString(bold + title + reset + "\n")
	b.WriteString(fmt.Sprintf("ID:       %s\n", sess.ID))
	b.WriteString(fmt.Sprintf("Agent:    %s\n", sess.Format))
	b.WriteString(fmt.Sprintf("Model:    %s\n", sess.Model))
	b.WriteString(fmt.Sprintf("Project:  %s\n", sess.ProjectPath))
	if sess.Branch != "" {
		b.WriteString(fmt.Sprintf("Branch:   %s\n", sess.Branch))
	}
	b.WriteString(fmt.Sprintf("Status:   %s%s%s\n", colorForStatus(*sess), statusLabel(*sess), reset))
	if sess.PendingToolName != "" {
		b.WriteString(fmt.Sprintf("Awaiting approval: %s %s\n", sess.PendingToolName, truncateRight(sess.PendingToolInput, 60)))
	}
	if sess.PendingQuestion != "" {
		b.WriteString(fmt.Sprintf("Question: %s\n", sess.PendingQuestion))
	}
	if sess.FirstPrompt != "" {
		b.WriteString(fmt.Sprintf("Prompt:   %s\n", sess.FirstPrompt))
	}
	b.WriteString(fmt.Sprintf("Prompts:  %d   Tools: %d   Tokens: %s\n",
		sess.PromptCount, sess.ToolCount, humanTokens(sess.TotalTokens)))
	b.WriteString(fmt.Sprintf("Started:  %s\n", sess.StartedAt.Local().Format(time.RFC822)))
	b.WriteString(fmt.Sprintf("Activity: %s\n", humanAge(sess.LastActivityAt)))
	if sess.EndedAt != nil {
		b.WriteString(fmt.Sprintf("Ended:    %s\n", sess.EndedAt.Local().Format(time.RFC822)))
	}
	return b.String()
}

// FormatMessages renders a conversation transcript view.
func FormatMessages(msgs []model.Message) string {
	var b strings.Builder
	for _, msg := range msgs {
		switch msg.Type {
		case model.MessageUser:
			b.WriteString(bold + "> " + msg.Content + reset + "\n")
		case model.MessageAssistant:
			b.WriteString(msg.Content + "\n")
		case model.MessageThinking:
			b.WriteString(dim + "(thinking) " + truncateRight(msg.Content, 100) + reset + "\n")
		case model.MessageTool, model.MessageToolResult:
			line := dim + "⚙ " + msg.Content
			if msg.InProgress {
				line += " …"
			} else if msg.ToolDuration != nil {
				line += fmt.Sprintf(" (%dms)", *msg.ToolDuration)
			}
			b.WriteString(line + reset + "\n")
		default:
			b.WriteString(dim + msg.Content + reset + "\n")
		}
	}
	return b.String()
}

// FormatProjects renders the per-project aggregate table.
func FormatProjects(ov metrics.Overview) string {
	if len(ov.Projects) == 0 {
		return "no sessions\n"
	}

	var b strings.Builder
	b.WriteString(fmt.Sprintf("%s%-28s %8s %8s %9s %10s%s\n",
		bold, "PROJECT", "SESSIONS", "WORKING", "ATTENTION", "TOKENS", reset))
	for _, ps := range ov.Projects {
		path := ps.ProjectPath
		if path == "" {
			path = "(unknown)"
		}
		b.WriteString(fmt.Sprintf("%-28s %8d %8d %9d %10s\n",
			truncateLeft(path, 28),
			ps.SessionCount, ps.WorkingCount, ps.AttentionCount,
			humanTokens(ps.TotalTokens)))
	}
	b.WriteString(fmt.Sprintf("\n%d sessions, %d need attention, %s tokens\n",
		ov.SessionCount, ov.AttentionCount, humanTokens(ov.TotalTokens)))
	return b.String()
}

// FormatJSON marshals any value as indented JSON for --json output.
func FormatJSON(v interface{}) string {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Sprintf(`{"error": %q}`, err.Error())
	}
	return string(data)
}

// statusLabel prefers the attention reason over the coarse status.
func statusLabel(sess model.Session) string {
	switch sess.AttentionReason {
	case model.AttentionPermission:
		return "approval?"
	case model.AttentionQuestion:
		return "question?"
	}
	return string(sess.WorkStatus)
}

func colorForStatus(sess model.Session) string {
	switch {
	case sess.AttentionReason == model.AttentionPermission,
		sess.AttentionReason == model.AttentionQuestion:
		return red
	case sess.WorkStatus == model.StatusWorking:
		return green
	case sess.WorkStatus == model.StatusWaiting:
		return yellow
	default:
		return dim
	}
}

func humanBytes(b int64) string {
	switch {
	case b >= 1<<30:
		return fmt.Sprintf("%.1f GB", float64(b)/float64(1<<30))
	case b >= 1<<20:
		return fmt.Sprintf("%.1f MB", float64(b)/float64(1<<20))
	case b >= 1<<10:
		return fmt.Sprintf("%.1f KB", float64(b)/float64(1<<10))
	default:
		return fmt.Sprintf("%d B", b)
	}
}

func humanTokens(n int64) string {
	switch {
	case n >= 1_000_000:
		return fmt.Sprintf("%.1fM", float64(n)/1_000_000)
	case n >= 1_000:
		return fmt.Sprintf("%.1fk", float64(n)/1_000)
	default:
		return fmt.Sprintf("%d", n)
	}
}

func humanAge(t time.Time) string {
	if t.IsZero() {
		return "never"
	}
	d := time.Since(t)
	switch {
	case d < time.Minute:
		return "just now"
	case d < time.Hour:
		return fmt.Sprintf("%dm ago", int(d.Minutes()))
	case d < 24*time.Hour:
		return fmt.Sprintf("%dh ago", int(d.Hours()))
	default:
		return fmt.Sprintf("%dd ago", int(d.Hours()/24))
	}
}

func truncateRight(s string, limit int) string {
	if len(s) <= limit {
		return s
	}
	if limit <= 3 {
		return s[:limit]
	}
	return s[:limit-3] + "..."
}

func truncateLeft(s string, limit int) string {
	if len(s) <= limit {
		return s
	}
	if limit <= 3 {
		return s[len(s)-limit:]
	}
	return "..." + s[len(s)-(limit-3):]
}
