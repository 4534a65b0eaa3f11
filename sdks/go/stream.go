package signalgate

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"
)

// Stream is an open SSE connection to the session's event stream.
// It is not safe for concurrent use.
type Stream struct {
	client *Client
	resp   *http.Response
	br     *bufio.Reader
}

// Stream opens the session event stream. If the client has already
// received events on a previous stream, the server is asked to replay
// everything after the last seen event ID.
//
// The stream stays open until ctx is cancelled, Close is called, or the
// server terminates the session.
func (c *Client) Stream(ctx context.Context) (*Stream, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.url(), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "text/event-stream")
	req.Header.Set(protoHeader, protocolVersion)
	c.setAuth(req)

	c.mu.Lock()
	if c.sessionID != "" {
		req.Header.Set(sessionIDHeader, c.sessionID)
	}
	if c.lastEventID > 0 {
		req.Header.Set(lastEventIDHeader, strconv.FormatUint(c.lastEventID, 10))
	}
	c.mu.Unlock()

	// SSE connections outlive the RPC timeout; use an untimed client
	// with the same transport. Lifetime is governed by ctx.
	streamClient := &http.Client{Transport: c.httpClient.Transport}
	resp, err := streamClient.Do(req)
	if err != nil {
		return nil, err
	}

	if resp.StatusCode != http.StatusOK {
		defer resp.Body.Close()
		return nil, newAPIError(resp)
	}

	if sid := resp.Header.Get(sessionIDHeader); sid != "" {
		c.mu.Lock()
		c.sessionID = sid
		c.mu.Unlock()
	}

	return &Stream{client: c, resp: resp, br: bufio.NewReader(resp.Body)}, nil
}

// Next blocks until the next event arrives. Keepalive comments are
// skipped. Returns io.EOF when the server closes the stream.
func (s *Stream) Next() (*Event, error) {
	ev := &Event{}
	var data []string
	sawField := false

	for {
		line, err := s.br.ReadString('\n')
		if err != nil {
			return nil, err
		}
		line = strings.TrimRight(line, "\r\n")

		switch {
		case line == "":
			if !sawField {
				continue // stray blank line or flushed keepalive
			}
			ev.Data = []byte(strings.Join(data, "\n"))
			s.record(ev)
			return ev, nil

		case strings.HasPrefix(line, ":"):
			// keepalive comment

		case strings.HasPrefix(line, "id:"):
			sawField = true
			if id, err := strconv.ParseUint(strings.TrimSpace(line[3:]), 10, 64); err == nil {
				ev.ID = id
			}

		case strings.HasPrefix(line, "event:"):
			sawField = true
			ev.Type = strings.TrimSpace(line[6:])

		case strings.HasPrefix(line, "data:"):
			sawField = true
			data = append(data, strings.TrimPrefix(strings.TrimSpace(line[5:]), " "))
		}
	}
}

// record tracks stream state on the owning client: the session ID from
// the handshake event and the last delivered event ID for replay.
func (s *Stream) record(ev *Event) {
	switch ev.Type {
	case "session":
		var handshake struct {
			SessionID string `json:"sessionId"`
		}
		if err := json.Unmarshal(ev.Data, &handshake); err == nil && handshake.SessionID != "" {
			s.client.mu.Lock()
			s.client.sessionID = handshake.SessionID
			s.client.mu.Unlock()
		}

	case "message":
		if ev.ID > 0 {
			s.client.mu.Lock()
			if ev.ID > s.client.lastEventID {
				s.client.lastEventID = ev.ID
			}
			s.client.mu.Unlock()
		}
	}
}

// Close terminates the stream connection. The session itself stays
// alive; use Client.Close to terminate the session.
func (s *Stream) Close() error {
	return s.resp.Body.Close()
}
