package metrics

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/highbeam/agentdeck/internal/model"
)

func session(project string, status model.WorkStatus, attention model.AttentionReason, tokens int64) model.Session {
	return model.Session{
		ProjectPath:     project,
		WorkStatus:      status,
		AttentionReason: attention,
		TotalTokens:     tokens,
		PromptCount:     1,
	}
}

func TestAggregateGroupsByProject(t *testing.T) {
	ov := Aggregate([]model.Session{
		session("/a", model.StatusWorking, model.AttentionNone, 100),
		session("/a", model.StatusWaiting, model.AttentionReply, 50),
		session("/b", model.StatusPermission, model.AttentionPermission, 10),
	})

	require.Len(t, ov.Projects, 2)
	assert.Equal(t, "/a", ov.Projects[0].ProjectPath, "busier project first")

	a := ov.Projects[0]
	assert.Equal(t, 2, a.SessionCount)
	assert.Equal(t, 1, a.WorkingCount)
	assert.Equal(t, 1, a.WaitingCount)
	assert.Equal(t, 1, a.AttentionCount)
	assert.Equal(t, int64(150), a.TotalTokens)

	b := ov.Projects[1]
	assert.Equal(t, 1, b.WaitingCount, "permission counts as waiting on a human")
	assert.Equal(t, 1, b.AttentionCount)

	assert.Equal(t, 3, ov.SessionCount)
	assert.Equal(t, 2, ov.AttentionCount)
	assert.Equal(t, int64(160), ov.TotalTokens)
}

func TestAggregateEmpty(t *testing.T) {
	ov := Aggregate(nil)
	assert.Empty(t, ov.Projects)
	assert.Zero(t, ov.SessionCount)
}

func TestAggregateTieBreaksByPath(t *testing.T) {
	ov := Aggregate([]model.Session{
		session("/z", model.StatusWorking, model.AttentionNone, 0),
		session("/a", model.StatusWorking, model.AttentionNone, 0),
	})
	require.Len(t, ov.Projects, 2)
	assert.Equal(t, "/a", ov.Projects[0].ProjectPath)
}
