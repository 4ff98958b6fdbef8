package client

import (
	"bufio"
	"context"
	"fmt"
	"net/http"
	"strings"

	"github.com/rs/zerolog"

	"campus-notify-go/internal/protocol"
)

// SSEDialer opens push channels against the server's /events endpoint
// (text/event-stream). Heartbeat comment lines keep the connection warm
// and are not surfaced as events.
type SSEDialer struct {
	URL    string
	Client *http.Client
	Header http.Header
	Log    zerolog.Logger
}

type sseConn struct {
	events chan protocol.Event
	cancel context.CancelFunc
}

func (c *sseConn) Events() <-chan protocol.Event {
	return c.events
}

func (c *sseConn) Close() error {
	c.cancel()
	return nil
}

// Dial performs the SSE handshake. Any failure to establish the stream is
// a ConnectionError; stream termination later shows up as the event
// channel closing.
func (d *SSEDialer) Dial(ctx context.Context) (Conn, error) {
	httpClient := d.Client
	if httpClient == nil {
		httpClient = http.DefaultClient
	}

	streamCtx, cancel := context.WithCancel(ctx)

	req, err := http.NewRequestWithContext(streamCtx, http.MethodGet, d.URL, nil)
	if err != nil {
		cancel()
		return nil, &protocol.ConnectionError{Op: "build request", Err: err}
	}
	for k, vs := range d.Header {
		for _, v := range vs {
			req.Header.Add(k, v)
		}
	}
	req.Header.Set("Accept", "text/event-stream")

	resp, err := httpClient.Do(req)
	if err != nil {
		cancel()
		return nil, &protocol.ConnectionError{Op: "dial", Err: err}
	}
	if resp.StatusCode != http.StatusOK {
		resp.Body.Close()
		cancel()
		return nil, &protocol.ConnectionError{Op: fmt.Sprintf("dial: unexpected status %d", resp.StatusCode)}
	}

	conn := &sseConn{
		events: make(chan protocol.Event, 16),
		cancel: cancel,
	}

	go func() {
		defer resp.Body.Close()
		defer close(conn.events)

		scanner := bufio.NewScanner(resp.Body)
		for scanner.Scan() {
			line := scanner.Text()
			if !strings.HasPrefix(line, "data: ") {
				// Comments (heartbeats) and blank separators.
				continue
			}

			ev, err := protocol.Decode([]byte(strings.TrimPrefix(line, "data: ")))
			if err != nil {
				d.Log.Warn().Err(err).Msg("dropping malformed stream message")
				continue
			}

			select {
			case conn.events <- ev:
			case <-streamCtx.Done():
				return
			}
		}
	}()

	return conn, nil
}
