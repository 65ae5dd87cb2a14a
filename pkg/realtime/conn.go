package realtime

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/jwalitptl/hrm-api/pkg/logger"
)

// State is the lifecycle state of one channel connection.
type State int

const (
	Disconnected State = iota
	Connecting
	Connected
	Reconnecting
)

func (s State) String() string {
	switch s {
	case Connecting:
		return "connecting"
	case Connected:
		return "connected"
	case Reconnecting:
		return "reconnecting"
	default:
		return "disconnected"
	}
}

// ErrAuthFailed marks a handshake rejected for credentials. It is fatal for
// the connection: the caller re-authenticates and starts over, the manager
// never retries it internally.
var ErrAuthFailed = errors.New("realtime: authentication failed")

// Socket is the minimal transport surface the manager needs; *websocket.Conn
// satisfies it.
type Socket interface {
	ReadMessage() (messageType int, p []byte, err error)
	Close() error
}

// Dialer opens sockets. Swappable in tests.
type Dialer interface {
	Dial(ctx context.Context, url string, header http.Header) (Socket, error)
}

type wsDialer struct {
	d *websocket.Dialer
}

func (w wsDialer) Dial(ctx context.Context, url string, header http.Header) (Socket, error) {
	conn, resp, err := w.d.DialContext(ctx, url, header)
	if err != nil {
		if resp != nil && (resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden) {
			return nil, ErrAuthFailed
		}
		return nil, err
	}
	return conn, nil
}

// Handler consumes one live event.
type Handler func(Event)

// ConnConfig configures a channel connection.
type ConnConfig struct {
	URL   string
	Token string
	// CatchUp is the authoritative REST refetch for this channel's domain.
	// Invoked after every successful connect, before any event read from
	// the new socket is dispatched.
	CatchUp    func(ctx context.Context) error
	Dialer     Dialer
	BackoffMin time.Duration
	BackoffMax time.Duration
	Logger     *logger.Logger
}

// Conn owns one persistent channel connection: connect, dispatch, reconnect
// with backoff, catch-up after every reconnect, teardown. One instance per
// channel per session; UI consumers share it through Subscribe rather than
// opening their own.
type Conn struct {
	cfg ConnConfig

	mu        sync.Mutex
	state     State
	stateSubs map[int]func(State)
	handlers  map[string]map[int]Handler
	nextID    int
	cancel    context.CancelFunc
	sock      Socket
	started   bool
}

func NewConn(cfg ConnConfig) *Conn {
	if cfg.Dialer == nil {
		cfg.Dialer = wsDialer{d: websocket.DefaultDialer}
	}
	if cfg.BackoffMin <= 0 {
		cfg.BackoffMin = 500 * time.Millisecond
	}
	if cfg.BackoffMax <= 0 {
		cfg.BackoffMax = 30 * time.Second
	}
	if cfg.Logger == nil {
		cfg.Logger = logger.NewLogger(nil)
	}
	return &Conn{
		cfg:       cfg,
		state:     Disconnected,
		stateSubs: make(map[int]func(State)),
		handlers:  make(map[string]map[int]Handler),
	}
}

// State returns the current lifecycle state.
func (c *Conn) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// OnStateChange registers a state observer and returns its removal func.
func (c *Conn) OnStateChange(fn func(State)) func() {
	c.mu.Lock()
	defer c.mu.Unlock()
	id := c.nextID
	c.nextID++
	c.stateSubs[id] = fn
	return func() {
		c.mu.Lock()
		defer c.mu.Unlock()
		delete(c.stateSubs, id)
	}
}

// Subscribe registers a handler for one event kind and returns an
// unsubscribe func. Handlers survive reconnects; unsubscribing twice is a
// no-op, so repeated mount/unmount cycles cannot accumulate duplicates.
func (c *Conn) Subscribe(kind string, fn Handler) func() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.handlers[kind] == nil {
		c.handlers[kind] = make(map[int]Handler)
	}
	id := c.nextID
	c.nextID++
	c.handlers[kind][id] = fn
	return func() {
		c.mu.Lock()
		defer c.mu.Unlock()
		delete(c.handlers[kind], id)
	}
}

// Start dials the channel, suspending the caller until the first connect
// settles. A transient first-dial failure is returned as an error with the
// state left Disconnected; the caller decides whether to try again. On
// success the connection maintains itself until Stop or ctx cancellation.
func (c *Conn) Start(ctx context.Context) error {
	c.mu.Lock()
	if c.started {
		c.mu.Unlock()
		return nil
	}
	c.started = true
	runCtx, cancel := context.WithCancel(ctx)
	c.cancel = cancel
	c.mu.Unlock()

	c.setState(Connecting)
	sock, err := c.dial(runCtx)
	if err != nil {
		cancel()
		c.mu.Lock()
		c.started = false
		c.cancel = nil
		c.mu.Unlock()
		c.setState(Disconnected)
		return err
	}

	c.mu.Lock()
	c.sock = sock
	c.mu.Unlock()

	c.runCatchUp(runCtx)
	c.setState(Connected)

	go c.run(runCtx, sock)
	return nil
}

// Stop tears the connection down: aborts any in-flight dial or catch-up,
// closes the socket and settles in Disconnected. Events can no longer reach
// handlers for this (possibly logged-out) identity.
func (c *Conn) Stop() {
	c.mu.Lock()
	cancel := c.cancel
	sock := c.sock
	c.started = false
	c.cancel = nil
	c.sock = nil
	c.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	if sock != nil {
		sock.Close()
	}
	c.setState(Disconnected)
}

func (c *Conn) run(ctx context.Context, sock Socket) {
	for {
		c.readLoop(sock)
		sock.Close()

		if ctx.Err() != nil {
			c.setState(Disconnected)
			return
		}

		c.setState(Reconnecting)
		next, err := c.redial(ctx)
		if err != nil {
			// Auth failure or cancellation: degrade visibly, never hang.
			c.setState(Disconnected)
			return
		}
		sock = next

		c.mu.Lock()
		c.sock = sock
		c.mu.Unlock()

		// Missed events are not redelivered; the baseline refetch is the
		// authority before any event from the new socket is applied.
		c.runCatchUp(ctx)
		c.setState(Connected)
	}
}

func (c *Conn) readLoop(sock Socket) {
	for {
		_, data, err := sock.ReadMessage()
		if err != nil {
			return
		}
		var ev Event
		if err := json.Unmarshal(data, &ev); err != nil {
			c.cfg.Logger.Warn("dropping undecodable event", "error", err.Error())
			continue
		}
		c.dispatch(ev)
	}
}

func (c *Conn) dispatch(ev Event) {
	c.mu.Lock()
	fns := make([]Handler, 0, len(c.handlers[ev.Kind]))
	for _, fn := range c.handlers[ev.Kind] {
		fns = append(fns, fn)
	}
	c.mu.Unlock()

	for _, fn := range fns {
		fn(ev)
	}
}

func (c *Conn) dial(ctx context.Context) (Socket, error) {
	header := http.Header{}
	if c.cfg.Token != "" {
		header.Set("Authorization", "Bearer "+c.cfg.Token)
	}
	return c.cfg.Dialer.Dial(ctx, c.cfg.URL, header)
}

func (c *Conn) redial(ctx context.Context) (Socket, error) {
	backoff := c.cfg.BackoffMin
	for {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(backoff):
		}

		sock, err := c.dial(ctx)
		if err == nil {
			return sock, nil
		}
		if errors.Is(err, ErrAuthFailed) {
			return nil, err
		}
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}

		c.cfg.Logger.Debug("reconnect attempt failed", "error", err.Error())
		backoff *= 2
		if backoff > c.cfg.BackoffMax {
			backoff = c.cfg.BackoffMax
		}
	}
}

func (c *Conn) runCatchUp(ctx context.Context) {
	if c.cfg.CatchUp == nil {
		return
	}
	if err := c.cfg.CatchUp(ctx); err != nil {
		// Leave in-memory state as-is: stale-but-consistent beats clearing
		// flags that may represent real unread items.
		c.cfg.Logger.Warn("catch-up fetch failed", "error", err.Error())
	}
}

func (c *Conn) setState(s State) {
	c.mu.Lock()
	if c.state == s {
		c.mu.Unlock()
		return
	}
	c.state = s
	subs := make([]func(State), 0, len(c.stateSubs))
	for _, fn := range c.stateSubs {
		subs = append(subs, fn)
	}
	c.mu.Unlock()

	for _, fn := range subs {
		fn(s)
	}
}
