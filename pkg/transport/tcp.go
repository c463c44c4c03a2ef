package transport

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/sony/gobreaker"
)

// ErrTransport wraps every dial, send and receive failure.
var ErrTransport = errors.New("transport error")

// Config holds the connection and breaker tuning of a TCP transport.
type Config struct {
	Addr           string
	DialTimeout    time.Duration
	ConnectRetries int

	BreakerFails    int
	BreakerOpen     time.Duration
	BreakerInterval time.Duration
}

// DialFunc opens a new connection to the device.
type DialFunc func(ctx context.Context) (net.Conn, error)

// TCP exchanges raw Modbus-TCP frames with a single remote device.
// A failed connection is dropped and re-dialed on the next send.
type TCP struct {
	cfg     Config
	dial    DialFunc
	breaker *gobreaker.CircuitBreaker
	logger  *log.Logger

	mu   sync.Mutex
	conn net.Conn
}

// NewTCP builds a transport dialing cfg.Addr. A nil dial uses net.Dialer.
func NewTCP(cfg Config, dial DialFunc, logger *log.Logger) *TCP {
	if cfg.DialTimeout <= 0 {
		cfg.DialTimeout = 3 * time.Second
	}
	if cfg.ConnectRetries < 1 {
		cfg.ConnectRetries = 5
	}
	if cfg.BreakerFails < 1 {
		cfg.BreakerFails = 3
	}
	if cfg.BreakerOpen <= 0 {
		cfg.BreakerOpen = 5 * time.Second
	}
	if logger == nil {
		logger = log.Default()
	}
	if dial == nil {
		d := &net.Dialer{Timeout: cfg.DialTimeout}
		addr := cfg.Addr
		dial = func(ctx context.Context) (net.Conn, error) {
			return d.DialContext(ctx, "tcp", addr)
		}
	}
	fails := uint32(cfg.BreakerFails)
	t := &TCP{cfg: cfg, dial: dial, logger: logger}
	t.breaker = gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:     "modbus-" + cfg.Addr,
		Interval: cfg.BreakerInterval,
		Timeout:  cfg.BreakerOpen,
		ReadyToTrip: func(c gobreaker.Counts) bool {
			return c.ConsecutiveFailures >= fails
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Printf("transport: breaker %s %s -> %s", name, from, to)
		},
	})
	return t
}

// Connect dials the device with exponential backoff, giving up after
// ConnectRetries attempts or when ctx is done.
func (t *TCP) Connect(ctx context.Context) error {
	bo := backoff.NewExponentialBackOff()
	bo.MaxElapsedTime = 30 * time.Second

	err := backoff.Retry(func() error {
		if ctx.Err() != nil {
			return backoff.Permanent(ctx.Err())
		}
		_, err := t.ensureConn(ctx)
		if err != nil {
			t.logger.Printf("transport: connect %s failed: %v", t.cfg.Addr, err)
		}
		return err
	}, backoff.WithContext(backoff.WithMaxRetries(bo, uint64(t.cfg.ConnectRetries-1)), ctx))
	if err != nil {
		return fmt.Errorf("%w: could not connect to %s after retries: %w", ErrTransport, t.cfg.Addr, err)
	}
	t.logger.Printf("transport: connected to %s", t.cfg.Addr)
	return nil
}

// Send writes one request frame. It goes through the circuit breaker, so
// while the breaker is open sends fail immediately.
func (t *TCP) Send(ctx context.Context, frame []byte) error {
	_, err := t.breaker.Execute(func() (interface{}, error) {
		conn, err := t.ensureConn(ctx)
		if err != nil {
			return nil, err
		}
		stop := context.AfterFunc(ctx, func() { _ = conn.SetWriteDeadline(time.Now()) })
		defer stop()
		if _, err := conn.Write(frame); err != nil {
			t.drop(conn)
			return nil, err
		}
		return nil, nil
	})
	if err != nil {
		return fmt.Errorf("%w: send: %w", ErrTransport, err)
	}
	return nil
}

// Receive blocks until one full response frame arrives or ctx is done.
func (t *TCP) Receive(ctx context.Context) ([]byte, error) {
	t.mu.Lock()
	conn := t.conn
	t.mu.Unlock()
	if conn == nil {
		return nil, fmt.Errorf("%w: receive: not connected", ErrTransport)
	}

	stop := context.AfterFunc(ctx, func() { _ = conn.SetReadDeadline(time.Now()) })
	defer stop()

	frame, err := ReadFrame(conn)
	if err != nil {
		t.drop(conn)
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, fmt.Errorf("%w: receive: %w", ErrTransport, err)
	}
	return frame, nil
}

// Connected reports whether a connection is currently open.
func (t *TCP) Connected() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.conn != nil
}

// BreakerState returns the circuit breaker state ("closed", "half-open", "open").
func (t *TCP) BreakerState() gobreaker.State {
	return t.breaker.State()
}

// Close drops the current connection.
func (t *TCP) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.conn == nil {
		return nil
	}
	err := t.conn.Close()
	t.conn = nil
	return err
}

func (t *TCP) ensureConn(ctx context.Context) (net.Conn, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.conn != nil {
		return t.conn, nil
	}
	dctx, cancel := context.WithTimeout(ctx, t.cfg.DialTimeout)
	defer cancel()
	conn, err := t.dial(dctx)
	if err != nil {
		return nil, err
	}
	t.conn = conn
	return conn, nil
}

// drop closes conn if it is still the current connection.
func (t *TCP) drop(conn net.Conn) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.conn == conn {
		_ = t.conn.Close()
		t.conn = nil
	}
}
