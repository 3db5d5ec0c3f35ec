package ipc

import "github.com/highbeam/agentdeck/internal/model"

// Request is a JSON line sent from client to server.
type Request struct {
	Command string            `json:"command"` // "ping", "status", "stop", "sessions", "session", "messages", "usage", "resync", "subscribe"
	Args    map[string]string `json:"args,omitempty"`
}

// Response is a JSON line sent from server to client. The subscribe
// command instead streams one Response per change until the client
// disconnects.
type Response struct {
	OK    bool        `json:"ok"`
	Data  interface{} `json:"data,omitempty"`
	Error string      `json:"error,omitempty"`
}

// StatusData is returned by the "status" command.
type StatusData struct {
	Uptime       string   `json:"uptime"`
	DBSizeBytes  int64    `json:"db_size_bytes"`
	SessionCount int64    `json:"session_count"`
	MessageCount int64    `json:"message_count"`
	WatchedRoots []string `json:"watched_roots"`
}

// SessionsData is returned by the "sessions" command.
type SessionsData struct {
	Sessions []model.Session `json:"sessions"`
}

// MessagesData is returned by the "messages" command.
type MessagesData struct {
	SessionID string          `json:"session_id"`
	Messages  []model.Message `json:"messages"`
}

// ChangeData is streamed by the "subscribe" command. An empty session id
// means everything may have changed.
type ChangeData struct {
	SessionID string `json:"session_id,omitempty"`
}
