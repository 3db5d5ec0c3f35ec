// Package metrics computes aggregate session metrics grouped by project,
// so one glance answers where work is happening and what needs a human.
package metrics

import (
	"sort"

	"github.com/highbeam/agentdeck/internal/model"
)

// ProjectSummary holds aggregate metrics for one project directory.
type ProjectSummary struct {
	ProjectPath    string `json:"project_path"`
	SessionCount   int    `json:"session_count"`
	WorkingCount   int    `json:"working_count"`
	WaitingCount   int    `json:"waiting_count"`
	AttentionCount int    `json:"attention_count"`
	TotalTokens    int64  `json:"total_tokens"`
	PromptCount    int    `json:"prompt_count"`
	ToolCount      int    `json:"tool_count"`
}

// Overview is the cross-project rollup.
type Overview struct {
	Projects       []ProjectSummary `json:"projects"`
	SessionCount   int              `json:"session_count"`
	AttentionCount int              `json:"attention_count"`
	TotalTokens    int64            `json:"total_tokens"`
}

// Aggregate groups sessions by project path. Sessions without a known
// project land under "". Projects sort by session count, then path.
func Aggregate(sessions []model.Session) Overview {
	byPath := make(map[string]*ProjectSummary)

	var ov Overview
	for _, sess := range sessions {
		ps, ok := byPath[sess.ProjectPath]
		if !ok {
			ps = &ProjectSummary{ProjectPath: sess.ProjectPath}
			byPath[sess.ProjectPath] = ps
		}

		ps.SessionCount++
		ps.TotalTokens += sess.TotalTokens
		ps.PromptCount += sess.PromptCount
		ps.ToolCount += sess.ToolCount

		switch sess.WorkStatus {
		case model.StatusWorking:
			ps.WorkingCount++
		case model.StatusWaiting, model.StatusPermission:
			ps.WaitingCount++
		}
		if sess.AttentionReason != model.AttentionNone {
			ps.AttentionCount++
		}

		ov.SessionCount++
		ov.TotalTokens += sess.TotalTokens
		if sess.AttentionReason != model.AttentionNone {
			ov.AttentionCount++
		}
	}

	for _, ps := range byPath {
		ov.Projects = append(ov.Projects, *ps)
	}
	sort.Slice(ov.Projects, func(i, j int) bool {
		a, b := ov.Projects[i], ov.Projects[j]
		if a.SessionCount != b.SessionCount {
			return a.SessionCount > b.SessionCount
		}
		return a.ProjectPath < b.ProjectPath
	})
	return ov
}
