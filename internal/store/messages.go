package store

import (
	"database/sql"
	"fmt"
	"strings"

	"github.com/highbeam/agentdeck/internal/model"
)

// ReplaceMessages atomically swaps a session's message set for the given
// one (full resync). Delete and insert happen in a single transaction and
// in sequence order, so a reader sees either the old set or the new set,
// never a mix. Sequence values are taken from array position, not trusted
// from the caller.
func (s *Store) ReplaceMessages(sessionID string, messages []model.Message) error {
	return s.withSessionLock(sessionID, func() error {
		tx, err := s.writer.Begin()
		if err != nil {
			return fmt.Errorf("begin resync for %s: %w", sessionID, err)
		}

		if _, err := tx.Exec("DELETE FROM messages WHERE session_id = ?", sessionID); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("clear messages for %s: %w", sessionID, err)
		}

		stmt, err := tx.Prepare(messageInsert)
		if err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("prepare message insert: %w", err)
		}
		defer stmt.Close()

		for i, msg := range messages {
			msg.SessionID = sessionID
			msg.Sequence = uint32(i)
			if _, err := stmt.Exec(messageArgs(&msg)...); err != nil {
				_ = tx.Rollback()
				return fmt.Errorf("insert message %s: %w", msg.ID, err)
			}
		}

		if err := tx.Commit(); err != nil {
			return fmt.Errorf("commit resync for %s: %w", sessionID, err)
		}
		return nil
	})
}

// UpsertMessage inserts or updates a single message (incremental path).
// Keyed on message id, so replaying the same line is idempotent.
func (s *Store) UpsertMessage(msg *model.Message) error {
	return s.withSessionLock(msg.SessionID, func() error {
		_, err := s.writer.Exec(messageInsert+`
			ON CONFLICT(id) DO UPDATE SET
				content = excluded.content,
				timestamp = excluded.timestamp,
				sequence = excluded.sequence,
				tool_name = excluded.tool_name,
				tool_input = excluded.tool_input,
				tool_output = excluded.tool_output,
				tool_duration_ms = excluded.tool_duration_ms,
				input_tokens = excluded.input_tokens,
				output_tokens = excluded.output_tokens,
				images = excluded.images,
				in_progress = excluded.in_progress`,
			messageArgs(msg)...,
		)
		if err != nil {
			return fmt.Errorf("upsert message %s: %w", msg.ID, err)
		}
		return nil
	})
}

// ReadMessages returns a session's messages ordered by sequence.
func (s *Store) ReadMessages(sessionID string) ([]model.Message, error) {
	rows, err := s.reader.Query(`
		SELECT id, session_id, type, content, timestamp, sequence,
		       tool_name, tool_input, tool_output, tool_duration_ms,
		       input_tokens, output_tokens, images, in_progress
		FROM messages WHERE session_id = ? ORDER BY sequence`, sessionID)
	if err != nil {
		return nil, fmt.Errorf("read messages for %s: %w", sessionID, err)
	}
	defer rows.Close()

	var messages []model.Message
	for rows.Next() {
		var msg model.Message
		var msgType, timestamp, images string
		var duration, inTokens, outTokens sql.NullInt64
		var inProgress int

		err := rows.Scan(
			&msg.ID, &msg.SessionID, &msgType, &msg.Content, &timestamp, &msg.Sequence,
			&msg.ToolName, &msg.ToolInput, &msg.ToolOutput, &duration,
			&inTokens, &outTokens, &images, &inProgress,
		)
		if err != nil {
			return nil, err
		}

		msg.Type = model.MessageType(msgType)
		msg.Timestamp = parseTime(timestamp)
		if duration.Valid {
			msg.ToolDuration = &duration.Int64
		}
		if inTokens.Valid {
			msg.InputTokens = &inTokens.Int64
		}
		if outTokens.Valid {
			msg.OutputTokens = &outTokens.Int64
		}
		if images != "" {
			msg.Images = strings.Split(images, "\x1f")
		}
		msg.InProgress = inProgress != 0
		messages = append(messages, msg)
	}
	return messages, rows.Err()
}

const messageInsert = `
	INSERT INTO messages (
		id, session_id, type, content, timestamp, sequence,
		tool_name, tool_input, tool_output, tool_duration_ms,
		input_tokens, output_tokens, images, in_progress
	) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

func messageArgs(msg *model.Message) []any {
	var duration, inTokens, outTokens any
	if msg.ToolDuration != nil {
		duration = *msg.ToolDuration
	}
	if msg.InputTokens != nil {
		inTokens = *msg.InputTokens
	}
	if msg.OutputTokens != nil {
		outTokens = *msg.OutputTokens
	}
	inProgress := 0
	if msg.InProgress {
		inProgress = 1
	}
	return []any{
		msg.ID, msg.SessionID, string(msg.Type), msg.Content,
		formatTime(msg.Timestamp), msg.Sequence,
		msg.ToolName, msg.ToolInput, msg.ToolOutput, duration,
		inTokens, outTokens, strings.Join(msg.Images, "\x1f"), inProgress,
	}
}
