package link

import (
	"context"
	"net/http"
	"slices"
	"sync"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/disgoorg/snowflake/v2"
	"github.com/gorilla/websocket"
	zlog "github.com/rs/zerolog/log"

	"github.com/osa030/soundlink/protocol"
)

// Errors
var (
	ErrConnection     = errors.New("node connection error")
	ErrAuthentication = errors.New("node rejected credentials")
	ErrClosed         = errors.New("link closed")
	ErrAlreadyOpen    = errors.New("link already open")
)

// closeAuthFailed is the close code a node uses to reject credentials after
// the upgrade.
const closeAuthFailed = 4001

// Session receives the frames addressed to one guild.
// Both methods are called from the link's read goroutine.
type Session interface {
	HandleFrame(frame protocol.Routed)
	HandleLinkState(state State)
}

// Handlers receive node level notifications. Any of them may be nil.
type Handlers struct {
	OnStats      func(stats *protocol.Stats)
	OnReady      func(reconnected bool)
	OnDisconnect func(err error, fatal bool)
}

// Conn is the connection to one node.
type Conn struct {
	cfg      Config
	handlers Handlers
	dialer   *websocket.Dialer
	backoff  Backoff

	mu       sync.RWMutex
	state    State
	ws       *websocket.Conn // non-nil only while ready
	ready    chan struct{}   // closed while ready, replaced on drop
	sessions map[snowflake.ID]Session

	out    chan []byte
	held   []byte // frame taken from out but not yet written
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
	writer sync.Once
	once   sync.Once
}

// New creates a link. It does not connect; call Open.
func New(cfg Config, handlers Handlers) (*Conn, error) {
	if err := cfg.normalize(); err != nil {
		return nil, err
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &Conn{
		cfg:      cfg,
		handlers: handlers,
		dialer: &websocket.Dialer{
			Proxy:            http.ProxyFromEnvironment,
			HandshakeTimeout: cfg.HandshakeTimeout,
		},
		backoff:  Backoff{Base: cfg.ReconnectBase, Max: cfg.ReconnectMax},
		state:    StateIdle,
		ready:    make(chan struct{}),
		sessions: make(map[snowflake.ID]Session),
		out:      make(chan []byte, cfg.OutboundBuffer),
		ctx:      ctx,
		cancel:   cancel,
	}, nil
}

// Name returns the node name.
func (c *Conn) Name() string {
	return c.cfg.Name
}

// Config returns the normalized configuration.
func (c *Conn) Config() Config {
	return c.cfg
}

// State returns the current connection state.
func (c *Conn) State() State {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.state
}

// Ready reports whether frames are currently being delivered.
func (c *Conn) Ready() bool {
	return c.State() == StateReady
}

// Open dials the node and starts the read and write loops. Authentication
// failures return ErrAuthentication; other failures return ErrConnection and
// Open may be called again.
func (c *Conn) Open(ctx context.Context) error {
	c.mu.Lock()
	switch c.state {
	case StateIdle, StateFailed:
	case StateClosed:
		c.mu.Unlock()
		return ErrClosed
	default:
		c.mu.Unlock()
		return ErrAlreadyOpen
	}
	c.state = StateConnecting
	c.mu.Unlock()

	ws, err := c.dial(ctx)
	if err != nil {
		c.mu.Lock()
		if c.state == StateConnecting {
			c.state = StateIdle
			if errors.Is(err, ErrAuthentication) {
				c.state = StateFailed
			}
		}
		c.mu.Unlock()
		return err
	}

	if !c.attach(ws, false) {
		return ErrClosed
	}

	c.wg.Add(1)
	go c.readLoop(ws)
	c.writer.Do(func() {
		c.wg.Add(1)
		go c.writeLoop()
	})
	return nil
}

func (c *Conn) dial(ctx context.Context) (*websocket.Conn, error) {
	header := http.Header{}
	header.Set("Authorization", c.cfg.Password)
	header.Set("User-Id", c.cfg.UserID.String())
	header.Set("Client-Name", c.cfg.ClientName)
	if c.cfg.ResumeKey != "" {
		header.Set("Resume-Key", c.cfg.ResumeKey)
	}

	ws, resp, err := c.dialer.DialContext(ctx, c.cfg.URL(), header)
	if err != nil {
		if resp != nil && (resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden) {
			return nil, errors.Wrapf(ErrAuthentication, "node %s: status=%d", c.cfg.Name, resp.StatusCode)
		}
		return nil, errors.Mark(errors.Wrapf(err, "failed to connect to node %s", c.cfg.Name), ErrConnection)
	}
	return ws, nil
}

// attach makes ws the active connection. Setup frames are written before any
// queued frame. It returns false if the link was closed meanwhile.
func (c *Conn) attach(ws *websocket.Conn, reconnected bool) bool {
	for _, setup := range c.setupFrames() {
		data, err := protocol.Encode(setup)
		if err == nil {
			err = ws.WriteMessage(websocket.TextMessage, data)
		}
		if err != nil {
			zlog.Warn().Msgf("failed to send setup frame: node=%s op=%s err=%v", c.cfg.Name, setup.Op(), err)
		}
	}

	c.mu.Lock()
	if c.state == StateClosed {
		c.mu.Unlock()
		_ = ws.Close()
		return false
	}
	c.ws = ws
	c.state = StateReady
	close(c.ready)
	sessions := c.sessionsLocked()
	c.mu.Unlock()

	zlog.Info().Msgf("node connected: node=%s url=%s reconnected=%v", c.cfg.Name, c.cfg.URL(), reconnected)
	for _, s := range sessions {
		s.HandleLinkState(StateReady)
	}
	if c.handlers.OnReady != nil {
		c.handlers.OnReady(reconnected)
	}
	return true
}

func (c *Conn) setupFrames() []protocol.Outbound {
	var frames []protocol.Outbound
	if c.cfg.ResumeKey != "" {
		frames = append(frames, protocol.SetupResuming{
			Key:     c.cfg.ResumeKey,
			Timeout: int64(c.cfg.ResumeTimeout / time.Second),
		})
	}
	if c.cfg.DispatchBufferTimeout > 0 {
		frames = append(frames, protocol.SetupDispatchBuffer{
			Timeout: int64(c.cfg.DispatchBufferTimeout / time.Second),
		})
	}
	return frames
}

// detach drops ws if it is still the active connection.
func (c *Conn) detach(ws *websocket.Conn, next State) {
	c.mu.Lock()
	if c.ws == ws {
		c.ws = nil
		c.ready = make(chan struct{})
	}
	if c.state == StateReady || c.state == StateReconnecting {
		c.state = next
	}
	sessions := c.sessionsLocked()
	c.mu.Unlock()

	_ = ws.Close()
	for _, s := range sessions {
		s.HandleLinkState(next)
	}
}

func (c *Conn) closing() bool {
	return c.ctx.Err() != nil
}

func (c *Conn) readLoop(ws *websocket.Conn) {
	defer c.wg.Done()

	for {
		err := c.readFrom(ws)
		if c.closing() {
			return
		}

		fatal := isAuthClose(err)
		if fatal {
			err = errors.Wrapf(ErrAuthentication, "node %s closed the connection: %v", c.cfg.Name, err)
		} else {
			err = errors.Mark(errors.Wrapf(err, "node %s dropped", c.cfg.Name), ErrConnection)
		}
		zlog.Warn().Msgf("node disconnected: node=%s fatal=%v err=%v", c.cfg.Name, fatal, err)

		if fatal {
			c.fail(ws, err)
			return
		}
		c.detach(ws, StateReconnecting)
		if c.handlers.OnDisconnect != nil {
			c.handlers.OnDisconnect(err, false)
		}

		next, rerr := c.reconnect()
		if rerr != nil {
			if c.closing() {
				return
			}
			c.fail(nil, rerr)
			return
		}
		if !c.attach(next, true) {
			return
		}
		ws = next
	}
}

func (c *Conn) readFrom(ws *websocket.Conn) error {
	for {
		_, data, err := ws.ReadMessage()
		if err != nil {
			return err
		}
		c.dispatch(data)
	}
}

func isAuthClose(err error) bool {
	var ce *websocket.CloseError
	return errors.As(err, &ce) && ce.Code == closeAuthFailed
}

func (c *Conn) fail(ws *websocket.Conn, err error) {
	if ws != nil {
		c.detach(ws, StateFailed)
	}
	c.mu.Lock()
	if c.state != StateClosed {
		c.state = StateFailed
	}
	sessions := c.sessionsLocked()
	c.mu.Unlock()

	if ws == nil {
		for _, s := range sessions {
			s.HandleLinkState(StateFailed)
		}
	}
	zlog.Error().Msgf("node link failed: node=%s err=%v", c.cfg.Name, err)
	if c.handlers.OnDisconnect != nil {
		c.handlers.OnDisconnect(err, true)
	}
}

func (c *Conn) reconnect() (*websocket.Conn, error) {
	for attempt := 1; ; attempt++ {
		if limit := c.cfg.MaxReconnectAttempts; limit > 0 && attempt > limit {
			return nil, errors.Wrapf(ErrConnection, "node %s: gave up after %d attempts", c.cfg.Name, limit)
		}

		delay := c.backoff.Delay(attempt)
		zlog.Info().Msgf("reconnecting to node: node=%s attempt=%d delay=%s", c.cfg.Name, attempt, delay)

		timer := time.NewTimer(delay)
		select {
		case <-timer.C:
		case <-c.ctx.Done():
			timer.Stop()
			return nil, ErrClosed
		}

		ws, err := c.dial(c.ctx)
		if err == nil {
			return ws, nil
		}
		if errors.Is(err, ErrAuthentication) {
			return nil, err
		}
		zlog.Warn().Msgf("reconnect failed: node=%s attempt=%d err=%v", c.cfg.Name, attempt, err)
	}
}

func (c *Conn) dispatch(data []byte) {
	in, err := protocol.Decode(data)
	if err != nil {
		zlog.Warn().Msgf("dropping inbound frame: node=%s err=%v", c.cfg.Name, err)
		return
	}

	switch frame := in.(type) {
	case *protocol.Stats:
		if c.handlers.OnStats != nil {
			c.handlers.OnStats(frame)
		}
	case protocol.Routed:
		s, ok := c.Session(frame.Guild())
		if !ok {
			zlog.Warn().Msgf("dropping frame for unknown session: node=%s guild=%s op=%s", c.cfg.Name, frame.Guild(), frame.Op())
			return
		}
		s.HandleFrame(frame)
	}
}

// Send queues an outbound frame. Frames are written in the order Send is
// called; while the link is reconnecting they are held and flushed once it
// is ready again. Send blocks only when the outbound buffer is full.
func (c *Conn) Send(ctx context.Context, frame protocol.Outbound) error {
	if c.closing() {
		return ErrClosed
	}
	if c.State() == StateFailed {
		return errors.Wrapf(ErrConnection, "node %s link has failed", c.cfg.Name)
	}

	data, err := protocol.Encode(frame)
	if err != nil {
		return err
	}

	select {
	case c.out <- data:
		return nil
	case <-ctx.Done():
		return errors.Wrap(ctx.Err(), "send cancelled")
	case <-c.ctx.Done():
		return ErrClosed
	}
}

func (c *Conn) writeLoop() {
	defer c.wg.Done()

	for {
		if c.closing() {
			return
		}
		if c.held == nil {
			select {
			case data := <-c.out:
				c.held = data
			case <-c.ctx.Done():
				return
			}
		}

		c.mu.RLock()
		ws, ready := c.ws, c.ready
		c.mu.RUnlock()

		if ws == nil {
			select {
			case <-ready:
				continue
			case <-c.ctx.Done():
				return
			}
		}

		if err := ws.WriteMessage(websocket.TextMessage, c.held); err != nil {
			zlog.Warn().Msgf("write failed, holding frame: node=%s err=%v", c.cfg.Name, err)
			c.mu.Lock()
			if c.ws == ws {
				c.ws = nil
				c.ready = make(chan struct{})
			}
			c.mu.Unlock()
			_ = ws.Close()
			continue
		}
		c.held = nil
	}
}

// Register routes frames for guildID to s, replacing any previous session.
func (c *Conn) Register(guildID snowflake.ID, s Session) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sessions[guildID] = s
}

// Unregister stops routing frames for guildID.
func (c *Conn) Unregister(guildID snowflake.ID) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.sessions, guildID)
}

// Session returns the session registered for guildID.
func (c *Conn) Session(guildID snowflake.ID) (Session, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	s, ok := c.sessions[guildID]
	return s, ok
}

// Sessions returns the registered guild IDs.
func (c *Conn) Sessions() []snowflake.ID {
	c.mu.RLock()
	defer c.mu.RUnlock()
	ids := make([]snowflake.ID, 0, len(c.sessions))
	for id := range c.sessions {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	return ids
}

func (c *Conn) sessionsLocked() []Session {
	out := make([]Session, 0, len(c.sessions))
	for _, s := range c.sessions {
		out = append(out, s)
	}
	return out
}

// Close closes the connection, cancels any pending reconnect and waits for
// the read and write loops to exit. Pending and later Send calls fail with
// ErrClosed.
func (c *Conn) Close() error {
	c.once.Do(func() {
		c.mu.Lock()
		c.state = StateClosed
		ws := c.ws
		if ws != nil {
			c.ws = nil
			c.ready = make(chan struct{})
		}
		c.mu.Unlock()

		c.cancel()
		if ws != nil {
			_ = ws.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
				time.Now().Add(time.Second))
			_ = ws.Close()
		}
		zlog.Info().Msgf("node link closed: node=%s", c.cfg.Name)
	})
	c.wg.Wait()
	return nil
}
