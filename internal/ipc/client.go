package ipc

import (
	"bufio"
	"encoding/json"
	"fmt"
	"net"
	"time"

	"github.com/highbeam/agentdeck/internal/metrics"
	"github.com/highbeam/agentdeck/internal/model"
	"github.com/highbeam/agentdeck/internal/usage"
)

// Client communicates with the daemon over its Unix domain socket.
type Client struct {
	socketPath string
	timeout    time.Duration
}

// NewClient creates a client for the given socket path.
func NewClient(socketPath string) *Client {
	return &Client{
		socketPath: socketPath,
		timeout:    5 * time.Second,
	}
}

// Ping tests if the daemon is alive.
func (c *Client) Ping() error {
	_, err := c.send(Request{Command: "ping"})
	return err
}

// Status returns the daemon's status data.
func (c *Client) Status() (*StatusData, error) {
	var status StatusData
	if err := c.query(Request{Command: "status"}, &status); err != nil {
		return nil, err
	}
	return &status, nil
}

// Sessions lists sessions, optionally filtered. Recognized filter keys
// are "status", "format", "project", and "attention".
func (c *Client) Sessions(filters map[string]string) ([]model.Session, error) {
	var data SessionsData
	if err := c.query(Request{Command: "sessions", Args: filters}, &data); err != nil {
		return nil, err
	}
	return data.Sessions, nil
}

// Session fetches a single session by id.
func (c *Client) Session(id string) (*model.Session, error) {
	var sess model.Session
	if err := c.query(Request{Command: "session", Args: map[string]string{"id": id}}, &sess); err != nil {
		return nil, err
	}
	return &sess, nil
}

// Messages fetches the ordered messages of a session. limit 0 means all.
func (c *Client) Messages(id string, limit int) ([]model.Message, error) {
	args := map[string]string{"id": id}
	if limit > 0 {
		args["limit"] = fmt.Sprintf("%d", limit)
	}
	var data MessagesData
	if err := c.query(Request{Command: "messages", Args: args}, &data); err != nil {
		return nil, err
	}
	return data.Messages, nil
}

// Projects fetches the per-project aggregate overview.
func (c *Client) Projects() (*metrics.Overview, error) {
	var ov metrics.Overview
	if err := c.query(Request{Command: "projects"}, &ov); err != nil {
		return nil, err
	}
	return &ov, nil
}

// Usage fetches the account-level usage snapshot.
func (c *Client) Usage() (*usage.Snapshot, error) {
	var snap usage.Snapshot
	if err := c.query(Request{Command: "usage"}, &snap); err != nil {
		return nil, err
	}
	return &snap, nil
}

// Resync asks the daemon to rebuild a session from its transcript.
func (c *Client) Resync(id string) error {
	_, err := c.send(Request{Command: "resync", Args: map[string]string{"id": id}})
	return err
}

// RequestStop asks the daemon to shut down gracefully.
func (c *Client) RequestStop() error {
	_, err := c.send(Request{Command: "stop"})
	return err
}

// Subscribe opens a streaming connection and invokes handle for every
// change until the connection drops or handle returns false.
func (c *Client) Subscribe(handle func(ChangeData) bool) error {
	conn, err := net.DialTimeout("unix", c.socketPath, c.timeout)
	if err != nil {
		return fmt.Errorf("connect to daemon: %w", err)
	}
	defer conn.Close()

	if err := writeRequest(conn, Request{Command: "subscribe"}); err != nil {
		return err
	}

	scanner := bufio.NewScanner(conn)
	first := true
	for scanner.Scan() {
		var resp Response
		if err := json.Unmarshal(scanner.Bytes(), &resp); err != nil {
			return fmt.Errorf("unmarshal stream line: %w", err)
		}
		if !resp.OK {
			return fmt.Errorf("daemon error: %s", resp.Error)
		}
		if first {
			// Acknowledgement line.
			first = false
			continue
		}
		raw, err := json.Marshal(resp.Data)
		if err != nil {
			return fmt.Errorf("marshal change data: %w", err)
		}
		var change ChangeData
		if err := json.Unmarshal(raw, &change); err != nil {
			return fmt.Errorf("unmarshal change data: %w", err)
		}
		if !handle(change) {
			return nil
		}
	}
	return scanner.Err()
}

// query sends req and decodes resp.Data into out via re-marshal.
func (c *Client) query(req Request, out interface{}) error {
	resp, err := c.send(req)
	if err != nil {
		return err
	}
	raw, err := json.Marshal(resp.Data)
	if err != nil {
		return fmt.Errorf("marshal response data: %w", err)
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("unmarshal response data: %w", err)
	}
	return nil
}

// send dials the socket, sends a JSON request, reads the JSON response.
func (c *Client) send(req Request) (*Response, error) {
	conn, err := net.DialTimeout("unix", c.socketPath, c.timeout)
	if err != nil {
		return nil, fmt.Errorf("connect to daemon: %w", err)
	}
	defer conn.Close()

	_ = conn.SetDeadline(time.Now().Add(c.timeout))

	if err := writeRequest(conn, req); err != nil {
		return nil, err
	}

	scanner := bufio.NewScanner(conn)
	if !scanner.Scan() {
		if err := scanner.Err(); err != nil {
			return nil, fmt.Errorf("read response: %w", err)
		}
		return nil, fmt.Errorf("empty response from daemon")
	}

	var resp Response
	if err := json.Unmarshal(scanner.Bytes(), &resp); err != nil {
		return nil, fmt.Errorf("unmarshal response: %w", err)
	}

	if !resp.OK {
		return nil, fmt.Errorf("daemon error: %s", resp.Error)
	}

	return &resp, nil
}

func writeRequest(conn net.Conn, req Request) error {
	data, err := json.Marshal(req)
	if err != nil {
		return fmt.Errorf("marshal request: %w", err)
	}
	data = append(data, '\n')
	if _, err := conn.Write(data); err != nil {
		return fmt.Errorf("send request: %w", err)
	}
	return nil
}
