package client

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"campus-notify-go/internal/models"
	"campus-notify-go/internal/protocol"
)

// State is the engine's connection state. Degraded is terminal: it is
// only exited by an external reset (a fresh engine instance), a
// deliberate simplification surfaced to the user instead of infinite
// silent retry.
type State int32

const (
	StateDisconnected State = iota
	StateConnecting
	StateConnected
	StateReconnecting
	StateDegraded
)

func (s State) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	case StateReconnecting:
		return "reconnecting"
	case StateDegraded:
		return "degraded"
	}
	return "unknown"
}

// StoreClient is the request/response side of the reconciliation
// protocol: the durable store as seen by one recipient.
type StoreClient interface {
	List(ctx context.Context, cursor, limit int) ([]models.Notification, int, error)
	UnreadCount(ctx context.Context) (int, error)
	MarkRead(ctx context.Context, notificationID int) (bool, error)
	MarkAllRead(ctx context.Context) (int, error)
}

// Conn is one live push channel. Its event channel closing is the
// disconnect signal.
type Conn interface {
	Events() <-chan protocol.Event
	Close() error
}

// Dialer opens push channels.
type Dialer interface {
	Dial(ctx context.Context) (Conn, error)
}

// Config bounds the engine's retry and polling behavior.
type Config struct {
	BackoffBase      time.Duration // first reconnect delay, doubled per attempt
	BackoffMax       time.Duration // cap on the reconnect delay
	MaxAttempts      int           // consecutive dial failures before Degraded
	WriteRetryBudget int           // attempts for a failed durable write
	PollInterval     time.Duration // unread-count poll period while disconnected
	PageSize         int           // list page size for catch-up fetches
}

func (c *Config) withDefaults() {
	if c.BackoffBase <= 0 {
		c.BackoffBase = 500 * time.Millisecond
	}
	if c.BackoffMax <= 0 {
		c.BackoffMax = 30 * time.Second
	}
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = 8
	}
	if c.WriteRetryBudget <= 0 {
		c.WriteRetryBudget = 5
	}
	if c.PollInterval <= 0 {
		c.PollInterval = time.Minute
	}
	if c.PageSize <= 0 {
		c.PageSize = 50
	}
}

// Option configures an Engine.
type Option func(*Engine)

// WithStateHandler registers a callback invoked on every state
// transition, from the engine's own goroutine. The Degraded transition is
// the user-visible "connection lost" signal.
func WithStateHandler(fn func(State)) Option {
	return func(e *Engine) { e.onState = fn }
}

// Engine is the single authority for one client's local notification
// view. It reconciles pushed events, store responses and local optimistic
// updates by serializing every mutation through one goroutine.
type Engine struct {
	cfg    Config
	api    StoreClient
	dialer Dialer
	log    zerolog.Logger

	view    *View
	cmds    chan func()
	onState func(State)

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
	once   sync.Once
	done   chan struct{}

	state atomic.Int32

	// Owned by the run goroutine.
	conn      Conn
	attempts  int
	dialTimer *time.Timer
	pollTimer *time.Timer
}

func NewEngine(api StoreClient, dialer Dialer, cfg Config, log zerolog.Logger, opts ...Option) *Engine {
	cfg.withDefaults()

	ctx, cancel := context.WithCancel(context.Background())
	e := &Engine{
		cfg:    cfg,
		api:    api,
		dialer: dialer,
		log:    log.With().Str("component", "sync-engine").Logger(),
		view:   NewView(),
		cmds:   make(chan func(), 16),
		ctx:    ctx,
		cancel: cancel,
		done:   make(chan struct{}),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Start launches the engine and its first connection attempt.
func (e *Engine) Start() {
	e.once.Do(func() {
		go e.run()
	})
}

// Stop tears the engine down: the connection is closed, pending backoff
// timers are cancelled and background write retries are waited out. No
// retry loop outlives the engine.
func (e *Engine) Stop() {
	e.cancel()
	<-e.done
	e.wg.Wait()
}

// State returns the current connection state.
func (e *Engine) State() State {
	return State(e.state.Load())
}

// Unread returns the local unread counter.
func (e *Engine) Unread() int {
	return e.view.Unread()
}

// Snapshot returns a copy of the local ordered view, newest first.
func (e *Engine) Snapshot() []models.Notification {
	return e.view.Snapshot()
}

// MarkRead applies the optimistic local flip and issues the durable
// write. The flip is never reverted on write failure; the write is
// retried with backoff until the budget is exhausted, then logged as a
// soft inconsistency for external reconciliation.
func (e *Engine) MarkRead(notificationID int) {
	e.do(func() {
		e.view.ApplyRead(notificationID)
		e.retryDurable("mark read", func(ctx context.Context) error {
			_, err := e.api.MarkRead(ctx, notificationID)
			return err
		})
	})
}

// MarkAllRead applies the local full overwrite and issues the durable
// write with the same retry policy as MarkRead.
func (e *Engine) MarkAllRead() {
	e.do(func() {
		e.view.ApplyAllRead()
		e.retryDurable("mark all read", func(ctx context.Context) error {
			_, err := e.api.MarkAllRead(ctx)
			return err
		})
	})
}

func (e *Engine) do(fn func()) {
	select {
	case e.cmds <- fn:
	case <-e.ctx.Done():
	}
}

func (e *Engine) run() {
	defer close(e.done)
	defer e.closeConn()
	defer e.stopTimers()

	e.connect()

	for {
		var connEvents <-chan protocol.Event
		if e.conn != nil {
			connEvents = e.conn.Events()
		}

		select {
		case <-e.ctx.Done():
			return
		case fn := <-e.cmds:
			fn()
		case ev, ok := <-connEvents:
			if !ok {
				e.onChannelLost()
				continue
			}
			e.apply(ev)
		case <-timerC(e.dialTimer):
			e.dialTimer = nil
			e.connect()
		case <-timerC(e.pollTimer):
			e.pollTimer = nil
			e.pollUnread()
			if e.State() == StateDisconnected {
				e.pollTimer = time.NewTimer(e.cfg.PollInterval)
			}
		}
	}
}

// connect performs the channel handshake. Failure schedules the next
// attempt with exponential backoff or, once the attempt budget is spent,
// parks the engine in Degraded.
func (e *Engine) connect() {
	from := e.State()
	e.setState(StateConnecting)

	conn, err := e.dialer.Dial(e.ctx)
	if err != nil {
		if e.ctx.Err() != nil {
			return
		}

		e.attempts++
		e.log.Warn().Err(&protocol.ConnectionError{Op: "dial", Err: err}).
			Int("attempt", e.attempts).Msg("push channel handshake failed")

		if e.attempts >= e.cfg.MaxAttempts {
			e.stopTimers()
			e.setState(StateDegraded)
			e.log.Error().Msg("reconnect attempts exhausted, connection lost")
			return
		}

		if from == StateReconnecting {
			e.setState(StateReconnecting)
		} else {
			e.setState(StateDisconnected)
			if e.pollTimer == nil {
				e.pollTimer = time.NewTimer(e.cfg.PollInterval)
			}
		}
		e.dialTimer = time.NewTimer(e.backoff(e.attempts - 1))
		return
	}

	e.attempts = 0
	e.conn = conn
	if e.pollTimer != nil {
		e.pollTimer.Stop()
		e.pollTimer = nil
	}
	e.setState(StateConnected)
	e.catchUp()
}

// onChannelLost handles an unexpected push channel loss from Connected.
func (e *Engine) onChannelLost() {
	e.closeConn()
	if e.State() != StateConnected {
		return
	}

	e.log.Warn().Msg("push channel lost, reconnecting")
	e.setState(StateReconnecting)
	e.dialTimer = time.NewTimer(e.backoff(0))
}

// apply folds one pushed event into the view. A malformed event is
// rejected and logged without touching any state.
func (e *Engine) apply(ev protocol.Event) {
	if err := ev.Validate(); err != nil {
		e.log.Warn().Err(err).Msg("dropping malformed push event")
		return
	}

	switch ev.Kind {
	case protocol.KindNewNotification:
		if e.view.ApplyNew(*ev.Notification) {
			e.log.Debug().Int("id", ev.Notification.ID).Msg("notification received")
		}
	case protocol.KindNotificationRead:
		e.view.ApplyRead(ev.NotificationID)
	case protocol.KindAllRead:
		e.view.ApplyAllRead()
	case protocol.KindUnreadCount:
		e.view.SetUnread(ev.Count)
	}
}

// catchUp closes the gap left by events missed while disconnected: the
// freshest page is merged into the view, then the counter is replaced
// with the authoritative server count.
func (e *Engine) catchUp() {
	items, _, err := e.api.List(e.ctx, 0, e.cfg.PageSize)
	if err != nil {
		e.log.Warn().Err(&SyncError{Op: "catch-up list", Err: err}).Msg("catch-up fetch failed, keeping local view")
	} else {
		e.view.Merge(items)
	}

	count, err := e.api.UnreadCount(e.ctx)
	if err != nil {
		e.log.Warn().Err(&SyncError{Op: "catch-up count", Err: err}).Msg("catch-up count failed, keeping local counter")
		return
	}
	e.view.SetUnread(count)
}

// pollUnread is the low-frequency disconnected fallback: unread count
// only, no list traffic.
func (e *Engine) pollUnread() {
	count, err := e.api.UnreadCount(e.ctx)
	if err != nil {
		e.log.Debug().Err(&SyncError{Op: "poll count", Err: err}).Msg("unread poll failed")
		return
	}
	e.view.SetUnread(count)
}

// retryDurable runs a durable write with bounded backoff retries in the
// background. The caller has already applied the optimistic local effect,
// so exhaustion only logs the inconsistency.
func (e *Engine) retryDurable(op string, fn func(ctx context.Context) error) {
	e.wg.Add(1)
	go func() {
		defer e.wg.Done()

		var err error
		for attempt := 0; attempt < e.cfg.WriteRetryBudget; attempt++ {
			if attempt > 0 {
				select {
				case <-time.After(e.backoff(attempt - 1)):
				case <-e.ctx.Done():
					return
				}
			}
			if err = fn(e.ctx); err == nil {
				return
			}
			if e.ctx.Err() != nil {
				return
			}
		}

		e.log.Error().Err(&SyncError{Op: op, Err: err}).
			Msg("durable write budget exhausted, local view ahead of store")
	}()
}

func (e *Engine) backoff(k int) time.Duration {
	d := e.cfg.BackoffBase
	for i := 0; i < k && d < e.cfg.BackoffMax; i++ {
		d *= 2
	}
	if d > e.cfg.BackoffMax {
		d = e.cfg.BackoffMax
	}
	return d
}

func (e *Engine) setState(s State) {
	old := State(e.state.Swap(int32(s)))
	if old == s {
		return
	}
	e.log.Info().Str("from", old.String()).Str("to", s.String()).Msg("state change")
	if e.onState != nil {
		e.onState(s)
	}
}

func (e *Engine) closeConn() {
	if e.conn != nil {
		_ = e.conn.Close()
		e.conn = nil
	}
}

func (e *Engine) stopTimers() {
	if e.dialTimer != nil {
		e.dialTimer.Stop()
		e.dialTimer = nil
	}
	if e.pollTimer != nil {
		e.pollTimer.Stop()
		e.pollTimer = nil
	}
}

func timerC(t *time.Timer) <-chan time.Time {
	if t == nil {
		return nil
	}
	return t.C
}
