// Package transport provides the byte stream the Gecko session runs on.
package transport

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"strconv"
	"sync"
	"time"
)

const (
	DefaultConnectTimeout = 5 * time.Second
	DefaultReadTimeout    = 10 * time.Second
	DefaultWriteTimeout   = 10 * time.Second
)

var (
	ErrNotConnected   = errors.New("transport: not connected")
	ErrConnectTimeout = errors.New("transport: connect timeout")
)

// Transport is a blocking byte stream with no protocol knowledge.
//
// ReadFull returns fewer than len(p) bytes only together with an error.
// Close is idempotent and never fails the caller.
type Transport interface {
	Connect(ctx context.Context) error
	ReadFull(p []byte) (int, error)
	Write(p []byte) (int, error)
	Close() error
}

// Config holds the TCP endpoint and its fixed timeouts.
type Config struct {
	Host           string
	Port           int
	ConnectTimeout time.Duration
	ReadTimeout    time.Duration
	WriteTimeout   time.Duration
}

func (c Config) WithDefaults() Config {
	if c.ConnectTimeout <= 0 {
		c.ConnectTimeout = DefaultConnectTimeout
	}
	if c.ReadTimeout <= 0 {
		c.ReadTimeout = DefaultReadTimeout
	}
	if c.WriteTimeout <= 0 {
		c.WriteTimeout = DefaultWriteTimeout
	}
	return c
}

func (c Config) Address() string {
	return net.JoinHostPort(c.Host, strconv.Itoa(c.Port))
}

// TCP is the production Transport.
type TCP struct {
	cfg  Config
	mu   sync.Mutex
	conn net.Conn
}

func NewTCP(cfg Config) *TCP {
	return &TCP{cfg: cfg.WithDefaults()}
}

func (t *TCP) Connect(ctx context.Context) error {
	_ = t.Close()

	dialer := net.Dialer{Timeout: t.cfg.ConnectTimeout}
	conn, err := dialer.DialContext(ctx, "tcp", t.cfg.Address())
	if err != nil {
		var nerr net.Error
		if errors.As(err, &nerr) && nerr.Timeout() {
			return fmt.Errorf("%w: %s: %w", ErrConnectTimeout, t.cfg.Address(), err)
		}
		return fmt.Errorf("transport: dial %s: %w", t.cfg.Address(), err)
	}
	if tcp, ok := conn.(*net.TCPConn); ok {
		_ = tcp.SetNoDelay(true)
	}

	t.mu.Lock()
	t.conn = conn
	t.mu.Unlock()
	return nil
}

func (t *TCP) current() (net.Conn, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.conn == nil {
		return nil, ErrNotConnected
	}
	return t.conn, nil
}

func (t *TCP) ReadFull(p []byte) (int, error) {
	conn, err := t.current()
	if err != nil {
		return 0, err
	}
	if err := conn.SetReadDeadline(time.Now().Add(t.cfg.ReadTimeout)); err != nil {
		return 0, err
	}
	n, err := io.ReadFull(conn, p)
	if err != nil && errors.Is(err, net.ErrClosed) {
		return n, fmt.Errorf("%w: %w", ErrNotConnected, err)
	}
	return n, err
}

func (t *TCP) Write(p []byte) (int, error) {
	conn, err := t.current()
	if err != nil {
		return 0, err
	}
	if err := conn.SetWriteDeadline(time.Now().Add(t.cfg.WriteTimeout)); err != nil {
		return 0, err
	}
	n, err := conn.Write(p)
	if err != nil && errors.Is(err, net.ErrClosed) {
		return n, fmt.Errorf("%w: %w", ErrNotConnected, err)
	}
	return n, err
}

func (t *TCP) Close() error {
	t.mu.Lock()
	conn := t.conn
	t.conn = nil
	t.mu.Unlock()
	if conn != nil {
		_ = conn.Close()
	}
	return nil
}
