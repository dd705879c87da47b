// Package ws carries bridge envelopes over websocket text frames: a
// reconnecting client for the simulation side and a small server for the
// decision-service side.
package ws

import (
	"context"
	"errors"
	"log"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
)

var (
	ErrNotConnected = errors.New("ws: not connected")
	ErrQueueFull    = errors.New("ws: send queue full")
	ErrClosed       = errors.New("ws: closed")
)

type ClientConfig struct {
	URL    string
	Header http.Header
	Logger *log.Logger

	QueueSize        int
	HandshakeTimeout time.Duration
	ReadTimeout      time.Duration
	WriteTimeout     time.Duration
	PingInterval     time.Duration
	MinBackoff       time.Duration
	MaxBackoff       time.Duration
}

func (c *ClientConfig) normalize() {
	if c.QueueSize <= 0 {
		c.QueueSize = 256
	}
	if c.HandshakeTimeout <= 0 {
		c.HandshakeTimeout = 5 * time.Second
	}
	if c.ReadTimeout <= 0 {
		c.ReadTimeout = 60 * time.Second
	}
	if c.WriteTimeout <= 0 {
		c.WriteTimeout = 5 * time.Second
	}
	if c.PingInterval <= 0 {
		c.PingInterval = 20 * time.Second
	}
	if c.MinBackoff <= 0 {
		c.MinBackoff = 200 * time.Millisecond
	}
	if c.MaxBackoff <= 0 {
		c.MaxBackoff = 5 * time.Second
	}
	if c.Logger == nil {
		c.Logger = log.New(log.Writer(), "[ws] ", log.LstdFlags|log.Lmicroseconds)
	}
}

// Client keeps one outbound connection alive, redialing with exponential
// backoff. Hooks run on the client's goroutines and must be set before Run.
type Client struct {
	cfg ClientConfig
	log *log.Logger

	OnMessage    func(b []byte)
	OnConnect    func()
	OnDisconnect func(err error)

	mu        sync.RWMutex
	conn      *websocket.Conn
	out       chan []byte
	connected bool
	lastErr   string

	connects  atomic.Uint64
	closeOnce sync.Once
	stop      chan struct{}
}

func NewClient(cfg ClientConfig) *Client {
	cfg.normalize()
	return &Client{cfg: cfg, log: cfg.Logger, stop: make(chan struct{})}
}

func (c *Client) Connected() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.connected
}

// Send queues b on the live connection. It never blocks.
func (c *Client) Send(b []byte) error {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if !c.connected || c.out == nil {
		return ErrNotConnected
	}
	select {
	case c.out <- b:
		return nil
	default:
		return ErrQueueFull
	}
}

// Close stops Run and drops the live connection.
func (c *Client) Close() {
	c.closeOnce.Do(func() {
		close(c.stop)
		c.mu.RLock()
		conn := c.conn
		c.mu.RUnlock()
		if conn != nil {
			_ = conn.Close()
		}
	})
}

// Run dials and serves connections until ctx ends or Close is called.
func (c *Client) Run(ctx context.Context) error {
	backoff := c.cfg.MinBackoff
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-c.stop:
			return nil
		default:
		}

		served, err := c.serve(ctx)
		if served {
			backoff = c.cfg.MinBackoff
		}
		if err != nil {
			c.mu.Lock()
			c.lastErr = err.Error()
			c.mu.Unlock()
			c.log.Printf("connection to %s: %v (retry in %s)", c.cfg.URL, err, backoff)
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-c.stop:
			return nil
		case <-time.After(backoff):
		}
		if backoff < c.cfg.MaxBackoff {
			backoff *= 2
			if backoff > c.cfg.MaxBackoff {
				backoff = c.cfg.MaxBackoff
			}
		}
	}
}

// serve runs one connection to completion. served reports whether the dial
// succeeded.
func (c *Client) serve(ctx context.Context) (served bool, err error) {
	d := websocket.Dialer{HandshakeTimeout: c.cfg.HandshakeTimeout}
	conn, resp, err := d.DialContext(ctx, c.cfg.URL, c.cfg.Header)
	if err != nil {
		return false, err
	}
	if resp != nil && resp.Body != nil {
		_ = resp.Body.Close()
	}

	connCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	out := make(chan []byte, c.cfg.QueueSize)

	c.mu.Lock()
	c.conn = conn
	c.out = out
	c.connected = true
	c.lastErr = ""
	c.mu.Unlock()
	c.connects.Add(1)

	select {
	case <-c.stop:
		// Close raced with the dial.
		_ = conn.Close()
	default:
	}

	writerDone := make(chan struct{})
	go func() {
		defer close(writerDone)
		c.writeLoop(connCtx, conn, out)
	}()

	if c.OnConnect != nil {
		c.OnConnect()
	}

	err = c.readLoop(conn)

	c.mu.Lock()
	c.connected = false
	c.conn = nil
	c.out = nil
	c.mu.Unlock()
	cancel()
	_ = conn.Close()
	<-writerDone

	if c.OnDisconnect != nil {
		c.OnDisconnect(err)
	}
	select {
	case <-c.stop:
		return true, nil
	default:
	}
	return true, err
}

func (c *Client) readLoop(conn *websocket.Conn) error {
	_ = conn.SetReadDeadline(time.Now().Add(c.cfg.ReadTimeout))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(c.cfg.ReadTimeout))
	})
	for {
		_, msg, err := conn.ReadMessage()
		if err != nil {
			return err
		}
		_ = conn.SetReadDeadline(time.Now().Add(c.cfg.ReadTimeout))
		if c.OnMessage != nil {
			c.OnMessage(msg)
		}
	}
}

func (c *Client) writeLoop(ctx context.Context, conn *websocket.Conn, out <-chan []byte) {
	ping := time.NewTicker(c.cfg.PingInterval)
	defer ping.Stop()
	for {
		select {
		case <-ctx.Done():
			_ = conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(time.Second))
			return
		case b := <-out:
			_ = conn.SetWriteDeadline(time.Now().Add(c.cfg.WriteTimeout))
			if err := conn.WriteMessage(websocket.TextMessage, b); err != nil {
				_ = conn.Close()
				return
			}
		case <-ping.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(c.cfg.WriteTimeout)); err != nil {
				_ = conn.Close()
				return
			}
		}
	}
}

type ClientStatus struct {
	URL       string `json:"url"`
	Connected bool   `json:"connected"`
	Connects  uint64 `json:"connects"`
	LastError string `json:"lastError,omitempty"`
}

func (c *Client) Status() ClientStatus {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return ClientStatus{
		URL:       c.cfg.URL,
		Connected: c.connected,
		Connects:  c.connects.Load(),
		LastError: c.lastErr,
	}
}
