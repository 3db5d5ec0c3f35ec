package report

import (
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/highbeam/agentdeck/internal/ipc"
	"github.com/highbeam/agentdeck/internal/metrics"
	"github.com/highbeam/agentdeck/internal/model"
)

func TestFormatStatus(t *testing.T) {
	out := FormatStatus(&ipc.StatusData{
		Uptime:       "3m20s",
		DBSizeBytes:  2 * 1024 * 1024,
		SessionCount: 4,
		MessageCount: 120,
		WatchedRoots: []string{"/home/u/.claude/projects"},
	})
	assert.Contains(t, out, "3m20s")
	assert.Contains(t, out, "2.0 MB")
	assert.Contains(t, out, "/home/u/.claude/projects")
}

func TestFormatSessions(t *testing.T) {
	out := FormatSessions([]model.Session{
		{
			ID:              "abc",
			Name:            "brave-otter",
			Format:          model.FormatClaude,
			WorkStatus:      model.StatusWaiting,
			AttentionReason: model.AttentionQuestion,
			ProjectPath:     "/home/u/proj",
			TotalTokens:     45_200,
			LastActivityAt:  time.Now().Add(-5 * time.Minute),
		},
	})
	assert.Contains(t, out, "brave-otter")
	assert.Contains(t, out, "question?")
	assert.Contains(t, out, "45.2k")
	assert.Contains(t, out, "5m ago")
}

func TestFormatSessionsEmpty(t *testing.T) {
	assert.Equal(t, "no sessions\n", FormatSessions(nil))
}

func TestFormatSessionDetail(t *testing.T) {
	ended := time.Now()
	out := FormatSession(&model.Session{
		ID:               "abc",
		Format:           model.FormatCodex,
		Model:            "gpt-5-codex",
		ProjectPath:      "/home/u/proj",
		Branch:           "main",
		WorkStatus:       model.StatusPermission,
		AttentionReason:  model.AttentionPermission,
		PendingToolName:  "shell",
		PendingToolInput: "rm -rf build",
		FirstPrompt:      "clean up the build dir",
		StartedAt:        ended.Add(-time.Hour),
		LastActivityAt:   ended,
		EndedAt:          &ended,
	})
	assert.Contains(t, out, "gpt-5-codex")
	assert.Contains(t, out, "main")
	assert.Contains(t, out, "approval?")
	assert.Contains(t, out, "rm -rf build")
	assert.Contains(t, out, "Ended:")
}

func TestFormatMessages(t *testing.T) {
	ms := int64(340)
	out := FormatMessages([]model.Message{
		{Type: model.MessageUser, Content: "fix it"},
		{Type: model.MessageTool, Content: "Bash: ls", ToolDuration: &ms},
		{Type: model.MessageTool, Content: "Read a.go", InProgress: true},
		{Type: model.MessageAssistant, Content: "done"},
	})
	assert.Contains(t, out, "> fix it")
	assert.Contains(t, out, "(340ms)")
	assert.Contains(t, out, "…")
	assert.Contains(t, out, "done")
}

func TestFormatProjects(t *testing.T) {
	out := FormatProjects(metrics.Overview{
		Projects: []metrics.ProjectSummary{
			{ProjectPath: "/a", SessionCount: 2, WorkingCount: 1, TotalTokens: 1_500_000},
			{ProjectPath: "", SessionCount: 1},
		},
		SessionCount:   3,
		AttentionCount: 1,
		TotalTokens:    1_500_000,
	})
	assert.Contains(t, out, "/a")
	assert.Contains(t, out, "(unknown)")
	assert.Contains(t, out, "1.5M")
	assert.Contains(t, out, "3 sessions")
}

func TestFormatJSONRoundTrip(t *testing.T) {
	out := FormatJSON(map[string]int{"x": 1})
	var decoded map[string]int
	assert.NoError(t, json.Unmarshal([]byte(out), &decoded))
	assert.Equal(t, 1, decoded["x"])
}

func TestHumanHelpers(t *testing.T) {
	assert.Equal(t, "512 B", humanBytes(512))
	assert.Equal(t, "1.0 KB", humanBytes(1024))
	assert.Equal(t, "1.0 GB", humanBytes(1<<30))
	assert.Equal(t, "999", humanTokens(999))
	assert.Equal(t, "2.5k", humanTokens(2500))
	assert.True(t, strings.HasPrefix(truncateLeft("/very/long/path/to/project", 10), "..."))
	assert.Equal(t, "short", truncateRight("short", 10))
}
