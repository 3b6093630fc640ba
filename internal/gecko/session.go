package gecko

import (
	"context"
	"math/rand"
	"sync"
	"sync/atomic"
	"time"

	"github.com/danmuck/geckoctl/internal/observability"
	"github.com/danmuck/geckoctl/internal/protocol"
	"github.com/danmuck/geckoctl/internal/transport"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Option customizes a Session.
type Option func(*Session)

func WithLogger(logger zerolog.Logger) Option {
	return func(s *Session) { s.baseLogger = logger }
}

// WithTransport pins the Transport instead of dialing TCP from the config.
func WithTransport(t transport.Transport) Option {
	return func(s *Session) {
		s.newTransport = func(Config) transport.Transport { return t }
	}
}

func WithTransportFactory(fn func(Config) transport.Transport) Option {
	return func(s *Session) { s.newTransport = fn }
}

// Session owns one connection to the agent and serializes every operation
// on it.
type Session struct {
	id           string
	codec        protocol.Codec
	newTransport func(Config) transport.Transport
	baseLogger   zerolog.Logger
	rng          *rand.Rand

	// wire is the exclusive-use lock; a buffered slot instead of a Mutex so
	// waiting callers can give up on ctx.
	wire chan struct{}

	stateMu sync.Mutex
	cfg     Config
	tr      transport.Transport
	logger  zerolog.Logger

	connected atomic.Bool
	cancel    atomic.Bool
}

func New(cfg Config, opts ...Option) *Session {
	cfg = cfg.WithDefaults()
	s := &Session{
		id:         uuid.NewString(),
		codec:      cfg.ByteOrder,
		baseLogger: log.Logger,
		rng:        rand.New(rand.NewSource(time.Now().UnixNano())),
		wire:       make(chan struct{}, 1),
		cfg:        cfg,
		newTransport: func(c Config) transport.Transport {
			return transport.NewTCP(c.transportConfig())
		},
	}
	for _, opt := range opts {
		opt(s)
	}
	s.logger = s.sessionLogger(cfg)
	return s
}

func (s *Session) sessionLogger(cfg Config) zerolog.Logger {
	return s.baseLogger.With().
		Str("session", s.id).
		Str("agent", cfg.transportConfig().Address()).
		Logger()
}

func (s *Session) ID() string {
	return s.id
}

func (s *Session) Connected() bool {
	return s.connected.Load()
}

func (s *Session) Host() string {
	s.stateMu.Lock()
	defer s.stateMu.Unlock()
	return s.cfg.Host
}

func (s *Session) Port() int {
	s.stateMu.Lock()
	defer s.stateMu.Unlock()
	return s.cfg.Port
}

// SetHost changes the endpoint; only allowed while disconnected.
func (s *Session) SetHost(host string) error {
	return s.setEndpoint(func(c *Config) { c.Host = host })
}

// SetPort changes the endpoint; only allowed while disconnected.
func (s *Session) SetPort(port int) error {
	return s.setEndpoint(func(c *Config) { c.Port = port })
}

func (s *Session) setEndpoint(update func(*Config)) error {
	s.stateMu.Lock()
	defer s.stateMu.Unlock()
	if s.connected.Load() {
		return ErrConnected
	}
	update(&s.cfg)
	s.logger = s.sessionLogger(s.cfg)
	return nil
}

// CancelDump asks the running Dump to stop at its next chunk boundary.
// The flag is cleared when a Dump starts.
func (s *Session) CancelDump() {
	s.cancel.Store(true)
}

// Connect opens the transport. An already connected session is
// disconnected first.
func (s *Session) Connect(ctx context.Context) error {
	if err := s.acquire(ctx); err != nil {
		return failure(KindConnect, "connect", err)
	}
	defer s.release()
	return s.connectLocked(ctx)
}

func (s *Session) connectLocked(ctx context.Context) error {
	if s.connected.Load() {
		s.disconnect("reconnect")
	}

	s.stateMu.Lock()
	cfg := s.cfg
	tr := s.newTransport(cfg)
	s.tr = tr
	logger := s.logger
	s.stateMu.Unlock()

	if err := tr.Connect(ctx); err != nil {
		_ = tr.Close()
		logger.Warn().Err(err).Msg("gecko.Session connect failed")
		return &Error{Kind: KindNotFound, Op: "connect", Msg: cfg.transportConfig().Address(), Err: err}
	}

	if cfg.SettleDelay > 0 {
		timer := time.NewTimer(cfg.SettleDelay)
		defer timer.Stop()
		select {
		case <-ctx.Done():
			_ = tr.Close()
			return failure(KindConnect, "connect", ctx.Err())
		case <-timer.C:
		}
	}

	s.connected.Store(true)
	logger.Info().Str("byte_order", s.codec.String()).Msg("gecko.Session connected")
	return nil
}

// ConnectWithRetry retries Connect with exponential backoff. attempts <= 0
// retries until ctx ends.
func (s *Session) ConnectWithRetry(ctx context.Context, attempts int) error {
	var attempt int
	for {
		attempt++
		err := s.Connect(ctx)
		if err == nil {
			return nil
		}
		s.Logger().Warn().Int("attempt", attempt).Err(err).Msg("gecko.Session connect attempt failed")
		if attempts > 0 && attempt >= attempts {
			return err
		}
		if ctx.Err() != nil {
			return err
		}
		s.stateMu.Lock()
		delay := s.cfg.Backoff.Delay(attempt, s.rng)
		s.stateMu.Unlock()
		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return err
		case <-timer.C:
		}
	}
}

// Reconnect drops and reopens the transport as one operation under the wire
// lock, so it never cuts another caller's exchange short. It reports success.
func (s *Session) Reconnect(ctx context.Context) bool {
	if err := s.acquire(ctx); err != nil {
		return false
	}
	defer s.release()
	s.disconnect("reconnect")
	return s.connectLocked(ctx) == nil
}

// EnsureConnected reconnects a dropped session. The state is re-checked under
// the wire lock, so concurrent callers reconnect at most once.
func (s *Session) EnsureConnected(ctx context.Context) error {
	if s.connected.Load() {
		return nil
	}
	if err := s.acquire(ctx); err != nil {
		return failure(KindConnect, "connect", err)
	}
	defer s.release()
	if s.connected.Load() {
		return nil
	}
	return s.connectLocked(ctx)
}

// Disconnect closes the transport. Safe to call repeatedly and while an
// operation is in flight; that operation then fails fatally.
func (s *Session) Disconnect() {
	s.disconnect("close")
}

func (s *Session) disconnect(reason string) {
	wasConnected := s.connected.Swap(false)

	s.stateMu.Lock()
	tr := s.tr
	logger := s.logger
	s.stateMu.Unlock()
	if tr != nil {
		_ = tr.Close()
	}
	if wasConnected {
		observability.RecordDisconnect(reason)
		logger.Info().Str("reason", reason).Msg("gecko.Session disconnected")
	}
}

func (s *Session) Logger() *zerolog.Logger {
	s.stateMu.Lock()
	defer s.stateMu.Unlock()
	l := s.logger
	return &l
}

func (s *Session) transport() transport.Transport {
	s.stateMu.Lock()
	defer s.stateMu.Unlock()
	return s.tr
}

func (s *Session) acquire(ctx context.Context) error {
	select {
	case s.wire <- struct{}{}:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *Session) release() {
	<-s.wire
}

// do runs fn as one operation under the wire lock.
func (s *Session) do(ctx context.Context, op string, fn func() error) error {
	start := time.Now()
	if err := s.acquire(ctx); err != nil {
		return err
	}
	err := func() error {
		defer s.release()
		return fn()
	}()
	observability.RecordOperation(op, err, time.Since(start))
	return err
}
