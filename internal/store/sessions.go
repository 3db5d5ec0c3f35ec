package store

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/highbeam/agentdeck/internal/model"
)

// ErrNotFound is returned by reads when no row matches.
var ErrNotFound = errors.New("store: not found")

// UpsertSession inserts a session or replaces all of its derived fields.
// Mutations for one session are serialized by its write lock.
func (s *Store) UpsertSession(sess *model.Session) error {
	return s.withSessionLock(sess.ID, func() error {
		_, err := s.writer.Exec(`
			INSERT INTO sessions (
				id, format, project_path, branch, model, name, first_prompt,
				work_status, attention_reason,
				pending_tool_name, pending_tool_input, pending_question, last_tool,
				prompt_count, tool_count, total_tokens,
				started_at, last_activity_at, ended_at
			) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
			ON CONFLICT(id) DO UPDATE SET
				format = excluded.format,
				project_path = excluded.project_path,
				branch = excluded.branch,
				model = excluded.model,
				name = excluded.name,
				first_prompt = excluded.first_prompt,
				work_status = excluded.work_status,
				attention_reason = excluded.attention_reason,
				pending_tool_name = excluded.pending_tool_name,
				pending_tool_input = excluded.pending_tool_input,
				pending_question = excluded.pending_question,
				last_tool = excluded.last_tool,
				prompt_count = excluded.prompt_count,
				tool_count = excluded.tool_count,
				total_tokens = excluded.total_tokens,
				started_at = excluded.started_at,
				last_activity_at = excluded.last_activity_at,
				ended_at = excluded.ended_at`,
			sess.ID, string(sess.Format), sess.ProjectPath, sess.Branch,
			sess.Model, sess.Name, sess.FirstPrompt,
			string(sess.WorkStatus), string(sess.AttentionReason),
			sess.PendingToolName, sess.PendingToolInput, sess.PendingQuestion, sess.LastTool,
			sess.PromptCount, sess.ToolCount, sess.TotalTokens,
			formatTime(sess.StartedAt), formatTime(sess.LastActivityAt), formatTimePtr(sess.EndedAt),
		)
		if err != nil {
			return fmt.Errorf("upsert session %s: %w", sess.ID, err)
		}
		return nil
	})
}

// SessionUpdate names the fields UpdateSession may change. Nil pointers
// leave the stored value untouched.
type SessionUpdate struct {
	Branch          *string
	Model           *string
	Name            *string
	WorkStatus      *model.WorkStatus
	AttentionReason *model.AttentionReason
	TotalTokens     *int64
	LastActivityAt  *time.Time
	EndedAt         *time.Time
}

// UpdateSession applies a partial update to a session.
func (s *Store) UpdateSession(id string, upd SessionUpdate) error {
	return s.withSessionLock(id, func() error {
		set := ""
		var args []any
		add := func(col string, v any) {
			if set != "" {
				set += ", "
			}
			set += col + " = ?"
			args = append(args, v)
		}

		if upd.Branch != nil {
			add("branch", *upd.Branch)
		}
		if upd.Model != nil {
			add("model", *upd.Model)
		}
		if upd.Name != nil {
			add("name", *upd.Name)
		}
		if upd.WorkStatus != nil {
			add("work_status", string(*upd.WorkStatus))
		}
		if upd.AttentionReason != nil {
			add("attention_reason", string(*upd.AttentionReason))
		}
		if upd.TotalTokens != nil {
			add("total_tokens", *upd.TotalTokens)
		}
		if upd.LastActivityAt != nil {
			add("last_activity_at", formatTime(*upd.LastActivityAt))
		}
		if upd.EndedAt != nil {
			add("ended_at", formatTime(*upd.EndedAt))
		}
		if set == "" {
			return nil
		}

		args = append(args, id)
		res, err := s.writer.Exec("UPDATE sessions SET "+set+" WHERE id = ?", args...)
		if err != nil {
			return fmt.Errorf("update session %s: %w", id, err)
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return ErrNotFound
		}
		return nil
	})
}

// ReadSession returns one session by id from the read connection.
func (s *Store) ReadSession(id string) (*model.Session, error) {
	row := s.reader.QueryRow(sessionSelect+" WHERE id = ?", id)
	sess, err := scanSession(row)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	return sess, err
}

// ListSessions returns all sessions ordered by most recent activity.
func (s *Store) ListSessions() ([]model.Session, error) {
	rows, err := s.reader.Query(sessionSelect + " ORDER BY last_activity_at DESC")
	if err != nil {
		return nil, fmt.Errorf("list sessions: %w", err)
	}
	defer rows.Close()

	var sessions []model.Session
	for rows.Next() {
		sess, err := scanSession(rows)
		if err != nil {
			return nil, err
		}
		sessions = append(sessions, *sess)
	}
	return sessions, rows.Err()
}

const sessionSelect = `
	SELECT id, format, project_path, branch, model, name, first_prompt,
	       work_status, attention_reason,
	       pending_tool_name, pending_tool_input, pending_question, last_tool,
	       prompt_count, tool_count, total_tokens,
	       started_at, last_activity_at, ended_at
	FROM sessions`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSession(r rowScanner) (*model.Session, error) {
	var sess model.Session
	var format, status, reason, startedAt, lastActivity string
	var endedAt sql.NullString

	err := r.Scan(
		&sess.ID, &format, &sess.ProjectPath, &sess.Branch,
		&sess.Model, &sess.Name, &sess.FirstPrompt,
		&status, &reason,
		&sess.PendingToolName, &sess.PendingToolInput, &sess.PendingQuestion, &sess.LastTool,
		&sess.PromptCount, &sess.ToolCount, &sess.TotalTokens,
		&startedAt, &lastActivity, &endedAt,
	)
	if err != nil {
		return nil, err
	}

	sess.Format = model.Format(format)
	sess.WorkStatus = model.WorkStatus(status)
	sess.AttentionReason = model.AttentionReason(reason)
	sess.StartedAt = parseTime(startedAt)
	sess.LastActivityAt = parseTime(lastActivity)
	if endedAt.Valid && endedAt.String != "" {
		t := parseTime(endedAt.String)
		sess.EndedAt = &t
	}
	return &sess, nil
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339Nano)
}

func formatTimePtr(t *time.Time) any {
	if t == nil {
		return nil
	}
	return formatTime(*t)
}

func parseTime(s string) time.Time {
	if s == "" {
		return time.Time{}
	}
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}
	}
	return t
}
