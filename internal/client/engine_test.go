package client

import (
	"context"
	"errors"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"campus-notify-go/internal/models"
	"campus-notify-go/internal/protocol"
)

type fakeStore struct {
	mu            sync.Mutex
	items         []models.Notification
	count         int
	markReadErr   error
	markReadCalls int
	markAllCalls  int
}

func (s *fakeStore) List(ctx context.Context, cursor, limit int) ([]models.Notification, int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]models.Notification, len(s.items))
	copy(out, s.items)
	return out, 0, nil
}

func (s *fakeStore) UnreadCount(ctx context.Context) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.count, nil
}

func (s *fakeStore) MarkRead(ctx context.Context, id int) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.markReadCalls++
	if s.markReadErr != nil {
		return false, s.markReadErr
	}
	return true, nil
}

func (s *fakeStore) MarkAllRead(ctx context.Context) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.markAllCalls++
	return 0, nil
}

func (s *fakeStore) setCount(n int) {
	s.mu.Lock()
	s.count = n
	s.mu.Unlock()
}

func (s *fakeStore) readCalls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.markReadCalls
}

type fakeConn struct {
	ch chan protocol.Event
}

func newFakeConn() *fakeConn {
	return &fakeConn{ch: make(chan protocol.Event, 16)}
}

func (c *fakeConn) Events() <-chan protocol.Event { return c.ch }
func (c *fakeConn) Close() error                  { return nil }

type fakeDialer struct {
	mu        sync.Mutex
	failures  int // dial errors served before any success
	conns     []*fakeConn
	dialCount int
}

func (d *fakeDialer) Dial(ctx context.Context) (Conn, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.dialCount++
	if d.dialCount <= d.failures {
		return nil, errors.New("connection refused")
	}
	conn := newFakeConn()
	d.conns = append(d.conns, conn)
	return conn, nil
}

func (d *fakeDialer) dials() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.dialCount
}

func (d *fakeDialer) conn(i int) *fakeConn {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.conns[i]
}

func testConfig() Config {
	return Config{
		BackoffBase:      time.Millisecond,
		BackoffMax:       5 * time.Millisecond,
		MaxAttempts:      3,
		WriteRetryBudget: 2,
		PollInterval:     time.Hour,
		PageSize:         50,
	}
}

func testLogger() zerolog.Logger {
	return zerolog.New(io.Discard)
}

func TestEngine_DegradedAfterExhaustedBackoff(t *testing.T) {
	dialer := &fakeDialer{failures: 1000}
	e := NewEngine(&fakeStore{}, dialer, testConfig(), testLogger())
	e.Start()
	defer e.Stop()

	require.Eventually(t, func() bool {
		return e.State() == StateDegraded
	}, time.Second, time.Millisecond)

	assert.Equal(t, 3, dialer.dials())

	// Terminal: no further attempts.
	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, 3, dialer.dials())
	assert.Equal(t, StateDegraded, e.State())
}

func TestEngine_ConnectAndApplyEvents(t *testing.T) {
	store := &fakeStore{}
	dialer := &fakeDialer{}
	e := NewEngine(store, dialer, testConfig(), testLogger())
	e.Start()
	defer e.Stop()

	require.Eventually(t, func() bool {
		return e.State() == StateConnected
	}, time.Second, time.Millisecond)
	conn := dialer.conn(0)

	conn.ch <- protocol.NewNotification(notif(1, false))
	require.Eventually(t, func() bool { return e.Unread() == 1 }, time.Second, time.Millisecond)

	// Duplicate delivery (push/poll race) is ignored.
	conn.ch <- protocol.NewNotification(notif(1, false))
	// Malformed event touches nothing.
	conn.ch <- protocol.Event{Kind: "bogus"}
	// Read confirmation for an id never seen locally is a no-op.
	conn.ch <- protocol.NotificationRead(99)

	conn.ch <- protocol.NewNotification(notif(2, false))
	require.Eventually(t, func() bool { return e.Unread() == 2 }, time.Second, time.Millisecond)
	assert.Len(t, e.Snapshot(), 2)

	conn.ch <- protocol.NotificationRead(1)
	require.Eventually(t, func() bool { return e.Unread() == 1 }, time.Second, time.Millisecond)

	conn.ch <- protocol.AllRead()
	require.Eventually(t, func() bool { return e.Unread() == 0 }, time.Second, time.Millisecond)

	conn.ch <- protocol.UnreadCount(4)
	require.Eventually(t, func() bool { return e.Unread() == 4 }, time.Second, time.Millisecond)
}

func TestEngine_InitialCatchUp(t *testing.T) {
	store := &fakeStore{
		items: []models.Notification{notif(3, false), notif(2, true), notif(1, true)},
		count: 1,
	}
	e := NewEngine(store, &fakeDialer{}, testConfig(), testLogger())
	e.Start()
	defer e.Stop()

	require.Eventually(t, func() bool {
		return e.State() == StateConnected && len(e.Snapshot()) == 3
	}, time.Second, time.Millisecond)
	assert.Equal(t, 1, e.Unread())
}

func TestEngine_ReconnectCatchUp(t *testing.T) {
	store := &fakeStore{count: 2}
	dialer := &fakeDialer{}
	e := NewEngine(store, dialer, testConfig(), testLogger())
	e.Start()
	defer e.Stop()

	require.Eventually(t, func() bool {
		return e.State() == StateConnected
	}, time.Second, time.Millisecond)
	require.Eventually(t, func() bool { return e.Unread() == 2 }, time.Second, time.Millisecond)

	// Events missed while the channel is down are covered by the
	// authoritative count fetched on reconnect.
	store.setCount(5)
	close(dialer.conn(0).ch)

	require.Eventually(t, func() bool {
		return dialer.dials() == 2 && e.State() == StateConnected
	}, time.Second, time.Millisecond)
	require.Eventually(t, func() bool { return e.Unread() == 5 }, time.Second, time.Millisecond)
}

func TestEngine_OptimisticMarkRead(t *testing.T) {
	store := &fakeStore{
		items: []models.Notification{notif(1, false)},
		count: 1,
	}
	e := NewEngine(store, &fakeDialer{}, testConfig(), testLogger())
	e.Start()
	defer e.Stop()

	require.Eventually(t, func() bool { return e.Unread() == 1 }, time.Second, time.Millisecond)

	e.MarkRead(1)

	// Local flip is immediate, durable write follows.
	require.Eventually(t, func() bool { return e.Unread() == 0 }, time.Second, time.Millisecond)
	require.Eventually(t, func() bool { return store.readCalls() == 1 }, time.Second, time.Millisecond)
}

func TestEngine_MarkReadRetriesThenGivesUp(t *testing.T) {
	store := &fakeStore{
		items:       []models.Notification{notif(1, false)},
		count:       1,
		markReadErr: errors.New("store down"),
	}
	e := NewEngine(store, &fakeDialer{}, testConfig(), testLogger())
	e.Start()

	require.Eventually(t, func() bool { return e.Unread() == 1 }, time.Second, time.Millisecond)

	e.MarkRead(1)

	require.Eventually(t, func() bool { return e.Unread() == 0 }, time.Second, time.Millisecond)
	require.Eventually(t, func() bool { return store.readCalls() == 2 }, time.Second, time.Millisecond)

	// Stop waits out the retry goroutine; the optimistic flip survives.
	e.Stop()
	assert.Equal(t, 2, store.readCalls())
	assert.Equal(t, 0, e.Unread())
}

func TestEngine_MarkAllRead(t *testing.T) {
	store := &fakeStore{
		items: []models.Notification{notif(2, false), notif(1, false)},
		count: 2,
	}
	e := NewEngine(store, &fakeDialer{}, testConfig(), testLogger())
	e.Start()
	defer e.Stop()

	require.Eventually(t, func() bool { return e.Unread() == 2 }, time.Second, time.Millisecond)

	e.MarkAllRead()

	require.Eventually(t, func() bool { return e.Unread() == 0 }, time.Second, time.Millisecond)
	for _, it := range e.Snapshot() {
		assert.True(t, it.Read)
	}
}

func TestEngine_StateHandlerObservesTransitions(t *testing.T) {
	var mu sync.Mutex
	var states []State

	dialer := &fakeDialer{failures: 1000}
	e := NewEngine(&fakeStore{}, dialer, testConfig(), testLogger(),
		WithStateHandler(func(s State) {
			mu.Lock()
			states = append(states, s)
			mu.Unlock()
		}))
	e.Start()
	defer e.Stop()

	require.Eventually(t, func() bool {
		return e.State() == StateDegraded
	}, time.Second, time.Millisecond)

	mu.Lock()
	defer mu.Unlock()
	require.NotEmpty(t, states)
	assert.Equal(t, StateConnecting, states[0])
	assert.Equal(t, StateDegraded, states[len(states)-1])
}
