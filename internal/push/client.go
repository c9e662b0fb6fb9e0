package push

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/coder/websocket"
	"github.com/matheus3301/crmsync/internal/crm"
	"go.uber.org/zap"
)

const (
	defaultPingInterval = 30 * time.Second
	defaultMinBackoff   = time.Second
	defaultMaxBackoff   = 30 * time.Second
	readLimit           = 1 << 20
)

// ClientConfig addresses the push endpoint.
type ClientConfig struct {
	URL          string
	Token        string
	PingInterval time.Duration
	MinBackoff   time.Duration
	MaxBackoff   time.Duration
}

// Session is one live socket connection. Handlers registered on it die with it.
type Session struct {
	mu       sync.RWMutex
	handlers map[Kind]map[uint64]Handler
	nextID   uint64
}

func newSession() *Session {
	return &Session{handlers: make(map[Kind]map[uint64]Handler)}
}

// On registers h for kind and returns a function that removes it.
func (s *Session) On(kind Kind, h Handler) func() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextID++
	id := s.nextID
	if s.handlers[kind] == nil {
		s.handlers[kind] = make(map[uint64]Handler)
	}
	s.handlers[kind][id] = h
	var once sync.Once
	return func() {
		once.Do(func() {
			s.mu.Lock()
			delete(s.handlers[kind], id)
			s.mu.Unlock()
		})
	}
}

// HandlerCount returns how many handlers are registered for kind.
func (s *Session) HandlerCount(kind Kind) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.handlers[kind])
}

func (s *Session) dispatch(ctx context.Context, f Frame) {
	s.mu.RLock()
	hs := make([]Handler, 0, len(s.handlers[f.Type]))
	for _, h := range s.handlers[f.Type] {
		hs = append(hs, h)
	}
	s.mu.RUnlock()
	for _, h := range hs {
		h(ctx, f.Data)
	}
}

// Client keeps a WebSocket connection to the push endpoint open, reconnecting
// with capped exponential backoff.
type Client struct {
	cfg    ClientConfig
	logger *zap.Logger

	connected atomic.Bool

	mu           sync.Mutex
	onConnect    func(*Session)
	onDisconnect func(error)
}

// NewClient creates an idle client. Call Run to connect.
func NewClient(cfg ClientConfig, logger *zap.Logger) *Client {
	if cfg.PingInterval <= 0 {
		cfg.PingInterval = defaultPingInterval
	}
	if cfg.MinBackoff <= 0 {
		cfg.MinBackoff = defaultMinBackoff
	}
	if cfg.MaxBackoff < cfg.MinBackoff {
		cfg.MaxBackoff = defaultMaxBackoff
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Client{cfg: cfg, logger: logger}
}

// OnConnect sets the hook called with each new session before any frame is read.
func (c *Client) OnConnect(fn func(*Session)) {
	c.mu.Lock()
	c.onConnect = fn
	c.mu.Unlock()
}

// OnDisconnect sets the hook called after a session ends or a dial fails.
func (c *Client) OnDisconnect(fn func(error)) {
	c.mu.Lock()
	c.onDisconnect = fn
	c.mu.Unlock()
}

// Connected reports whether a socket is currently open.
func (c *Client) Connected() bool {
	return c.connected.Load()
}

// Run connects and reads until ctx is cancelled or the server rejects the
// credentials, in which case it returns crm.ErrSessionExpired.
func (c *Client) Run(ctx context.Context) error {
	backoff := c.cfg.MinBackoff
	for {
		started := time.Now()
		err := c.runOnce(ctx)
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if errors.Is(err, crm.ErrSessionExpired) {
			return err
		}
		if time.Since(started) > c.cfg.MaxBackoff {
			backoff = c.cfg.MinBackoff
		}
		c.logger.Warn("push connection lost", zap.Error(err), zap.Duration("retry_in", backoff))

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(backoff):
		}
		backoff *= 2
		if backoff > c.cfg.MaxBackoff {
			backoff = c.cfg.MaxBackoff
		}
	}
}

func (c *Client) runOnce(ctx context.Context) error {
	header := http.Header{}
	if c.cfg.Token != "" {
		header.Set("Authorization", "Bearer "+c.cfg.Token)
	}
	c.mu.Lock()
	onConnect, onDisconnect := c.onConnect, c.onDisconnect
	c.mu.Unlock()

	conn, resp, err := websocket.Dial(ctx, c.cfg.URL, &websocket.DialOptions{HTTPHeader: header})
	if err != nil {
		if resp != nil && (resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden) {
			return crm.ErrSessionExpired
		}
		err = fmt.Errorf("dial push: %w", err)
		if onDisconnect != nil && ctx.Err() == nil {
			onDisconnect(err)
		}
		return err
	}
	defer conn.CloseNow()
	conn.SetReadLimit(readLimit)

	connCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	sess := newSession()

	c.connected.Store(true)
	c.logger.Info("push connected", zap.String("url", c.cfg.URL))
	if onConnect != nil {
		onConnect(sess)
	}

	go c.keepAlive(connCtx, conn)
	err = c.readLoop(connCtx, conn, sess)

	c.connected.Store(false)
	if onDisconnect != nil {
		onDisconnect(err)
	}
	if ctx.Err() != nil {
		conn.Close(websocket.StatusNormalClosure, "shutting down")
	}
	return err
}

func (c *Client) readLoop(ctx context.Context, conn *websocket.Conn, sess *Session) error {
	for {
		typ, data, err := conn.Read(ctx)
		if err != nil {
			return err
		}
		if typ != websocket.MessageText {
			continue
		}
		var f Frame
		if err := json.Unmarshal(data, &f); err != nil || f.Type == "" {
			c.logger.Warn("dropping unparseable push frame", zap.Int("bytes", len(data)), zap.Error(err))
			continue
		}
		sess.dispatch(ctx, f)
	}
}

func (c *Client) keepAlive(ctx context.Context, conn *websocket.Conn) {
	t := time.NewTicker(c.cfg.PingInterval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			pingCtx, cancel := context.WithTimeout(ctx, c.cfg.PingInterval/2)
			err := conn.Ping(pingCtx)
			cancel()
			if err != nil {
				c.logger.Debug("push ping failed", zap.Error(err))
				conn.Close(websocket.StatusGoingAway, "ping timeout")
				return
			}
		}
	}
}
