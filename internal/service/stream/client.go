package stream

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"DecisionCore/internal/domain/models"
	drepo "DecisionCore/internal/domain/repository"
	applogger "DecisionCore/pkg/logger"

	"github.com/gorilla/websocket"
)

var ErrNotConnected = errors.New("stream not connected")

// Client implements an ObservationStream over a feature websocket. The
// upstream pushes frames of the form {"type":"observation","data":[...]}.
type Client struct {
	url            string
	token          string
	symbols        []string
	reconnectDelay time.Duration
	pingInterval   time.Duration
	log            *applogger.Logger
	dialer         *websocket.Dialer

	mu          sync.RWMutex
	writeMu     sync.Mutex
	conn        *websocket.Conn
	connected   bool
	reconnected chan struct{}
	closed      chan struct{}
	closeOnce   sync.Once
	dropped     uint64
}

type Option func(*Client)

func WithToken(token string) Option { return func(c *Client) { c.token = token } }

func WithLogger(l *applogger.Logger) Option { return func(c *Client) { c.log = l } }

func WithReconnectDelay(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			c.reconnectDelay = d
		}
	}
}

func WithPingInterval(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			c.pingInterval = d
		}
	}
}

// New creates a new observation stream client.
func New(url string, symbols []string, opts ...Option) *Client {
	c := &Client{
		url:            url,
		symbols:        symbols,
		reconnectDelay: 5 * time.Second,
		pingInterval:   30 * time.Second,
		log:            applogger.Nop(),
		dialer:         websocket.DefaultDialer,
		reconnected:    make(chan struct{}, 1),
		closed:         make(chan struct{}),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Connect establishes the WebSocket connection.
func (c *Client) Connect(ctx context.Context) error {
	header := http.Header{}
	if c.token != "" {
		header.Set("Authorization", "Bearer "+c.token)
	}
	conn, _, err := c.dialer.DialContext(ctx, c.url, header)
	if err != nil {
		return fmt.Errorf("stream connect: %w", err)
	}
	c.mu.Lock()
	c.conn = conn
	c.connected = true
	c.mu.Unlock()
	c.log.Info("stream connected", applogger.String("url", c.url))
	return nil
}

type control struct {
	Type   string `json:"type"`
	Symbol string `json:"symbol"`
}

// Subscribe subscribes to configured symbols.
func (c *Client) Subscribe(ctx context.Context) error {
	for _, s := range c.symbols {
		if err := c.write(control{Type: "subscribe", Symbol: s}); err != nil {
			return fmt.Errorf("subscribe %s: %w", s, err)
		}
	}
	c.log.Info("stream subscribed", applogger.Strings("symbols", c.symbols))
	return nil
}

type frame struct {
	Type string                     `json:"type"`
	Data []models.MarketObservation `json:"data"`
}

// Read streams observations and read errors. After an error the reader waits
// until Reconnect succeeds; both channels close when ctx is done or Close is called.
func (c *Client) Read(ctx context.Context) (<-chan *models.MarketObservation, <-chan error) {
	out := make(chan *models.MarketObservation, 1024)
	errs := make(chan error, 1)

	go c.pingLoop(ctx)
	go func() {
		defer close(out)
		defer close(errs)
		for {
			conn := c.current()
			if conn == nil {
				if !c.awaitReconnect(ctx) {
					return
				}
				continue
			}
			_, b, err := conn.ReadMessage()
			if err != nil {
				if c.isClosed() || ctx.Err() != nil {
					return
				}
				c.markDisconnected(conn)
				select {
				case errs <- fmt.Errorf("stream read: %w", err):
				case <-ctx.Done():
					return
				case <-c.closed:
					return
				}
				if !c.awaitReconnect(ctx) {
					return
				}
				continue
			}

			var f frame
			if err := json.Unmarshal(b, &f); err != nil || f.Type != "observation" {
				continue
			}
			for i := range f.Data {
				obs := f.Data[i]
				select {
				case out <- &obs:
				default:
					// drop on backpressure
					c.mu.Lock()
					c.dropped++
					c.mu.Unlock()
				}
			}
		}
	}()
	return out, errs
}

func (c *Client) pingLoop(ctx context.Context) {
	ticker := time.NewTicker(c.pingInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-c.closed:
			return
		case <-ticker.C:
			c.writeMu.Lock()
			if conn := c.current(); conn != nil {
				_ = conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(5*time.Second))
			}
			c.writeMu.Unlock()
		}
	}
}

// Reconnect closes the current connection and dials again until it succeeds
// or ctx is done.
func (c *Client) Reconnect(ctx context.Context) error {
	c.mu.Lock()
	if c.conn != nil {
		_ = c.conn.Close()
	}
	c.conn, c.connected = nil, false
	c.mu.Unlock()

	for attempt := 1; ; attempt++ {
		t := time.NewTimer(c.reconnectDelay)
		select {
		case <-ctx.Done():
			t.Stop()
			return ctx.Err()
		case <-c.closed:
			t.Stop()
			return ErrNotConnected
		case <-t.C:
		}
		err := c.Connect(ctx)
		if err == nil {
			err = c.Subscribe(ctx)
		}
		if err == nil {
			select {
			case c.reconnected <- struct{}{}:
			default:
			}
			return nil
		}
		c.log.Warn("stream reconnect failed", applogger.Int("attempt", attempt), applogger.Error(err))
	}
}

// Close closes the WS connection and stops the reader.
func (c *Client) Close() error {
	c.closeOnce.Do(func() { close(c.closed) })
	c.mu.Lock()
	defer c.mu.Unlock()
	c.connected = false
	if c.conn != nil {
		err := c.conn.Close()
		c.conn = nil
		return err
	}
	return nil
}

// IsConnected indicates status.
func (c *Client) IsConnected() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.connected
}

// Dropped reports observations discarded because the consumer lagged.
func (c *Client) Dropped() uint64 {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.dropped
}

func (c *Client) current() *websocket.Conn {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.conn
}

func (c *Client) markDisconnected(conn *websocket.Conn) {
	c.mu.Lock()
	if c.conn == conn {
		c.connected = false
	}
	c.mu.Unlock()
}

func (c *Client) awaitReconnect(ctx context.Context) bool {
	select {
	case <-c.reconnected:
		return true
	case <-ctx.Done():
		return false
	case <-c.closed:
		return false
	}
}

func (c *Client) isClosed() bool {
	select {
	case <-c.closed:
		return true
	default:
		return false
	}
}

func (c *Client) write(v interface{}) error {
	conn := c.current()
	if conn == nil {
		return ErrNotConnected
	}
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	return conn.WriteJSON(v)
}

var _ drepo.ObservationStream = (*Client)(nil)
