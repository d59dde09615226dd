package telemetry

import (
	"context"
	"fmt"
	"net"
	"sync"
	"sync/atomic"

	"mqtttelemetry/internal/logger"
)

const inboundBuffer = 64

// Session is a sensor node's connection to the broker together with the
// publisher and listener that run over it.
type Session struct {
	cfg     Config
	dialer  Dialer
	source  ReadingSource
	format  Formatter
	handler Handler
	log     *logger.Log
	clock   Clock
	backoff Backoff
	resolve func(ctx context.Context, host string) ([]string, error)

	mu           sync.RWMutex
	pubMu        sync.RWMutex // held shared by a publish in flight; release takes it exclusively.
	state        State
	conn         Conn
	subscription string
	attempts     uint64
	started      bool
	stopped      bool

	inbound chan InboundMessage
	stats   counters

	stopOnce   sync.Once
	pubCancel  context.CancelFunc
	lisCancel  context.CancelFunc
	lifeCancel context.CancelFunc
	pubDone    chan struct{}
	lisDone    chan struct{}
	lifeDone   chan struct{}
	closed     chan struct{}
}

// Option customises a Session.
type Option func(*Session)

// WithReadingSource sets the sensor sampled on every tick.
func WithReadingSource(src ReadingSource) Option {
	return func(s *Session) { s.source = src }
}

// WithFormatter sets how readings are rendered into payloads.
func WithFormatter(f Formatter) Option {
	return func(s *Session) { s.format = f }
}

// WithHandler sets the consumer of inbound messages.
func WithHandler(h Handler) Option {
	return func(s *Session) { s.handler = h }
}

// WithLogger sets the session logger.
func WithLogger(log logger.Logger) Option {
	return func(s *Session) { s.log = log.With(logger.Fields{"module": "telemetry"}) }
}

// WithClock replaces the wall clock.
func WithClock(c Clock) Option {
	return func(s *Session) { s.clock = c }
}

// WithBackoff sets the reconnect delay curve.
func WithBackoff(b Backoff) Option {
	return func(s *Session) { s.backoff = b }
}

// WithResolver replaces the DNS lookup used to check the broker host in Start.
func WithResolver(fn func(ctx context.Context, host string) ([]string, error)) Option {
	return func(s *Session) { s.resolve = fn }
}

// New validates cfg and builds a stopped Session. Defaults: the reading is a
// constant 25.5, rendered as "Temperature: 25.5°C", and inbound messages are
// logged.
func New(cfg Config, dialer Dialer, opts ...Option) (*Session, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	if dialer == nil {
		return nil, fmt.Errorf("%w: dialer is required", ErrFatalConfig)
	}

	s := &Session{
		cfg:      cfg,
		dialer:   dialer,
		source:   ConstantSource(25.5),
		format:   LabelFormatter("Temperature", "°C"),
		log:      logger.Default().With(logger.Fields{"module": "telemetry"}),
		clock:    realClock{},
		backoff:  DefaultBackoff(),
		resolve:  net.DefaultResolver.LookupHost,
		inbound:  make(chan InboundMessage, inboundBuffer),
		pubDone:  make(chan struct{}),
		lisDone:  make(chan struct{}),
		lifeDone: make(chan struct{}),
		closed:   make(chan struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.handler == nil {
		s.handler = LogHandler(s.log)
	}
	return s, nil
}

// Start checks that the broker host resolves and launches the lifecycle
// manager, listener and publisher. It does not wait for the first connection.
// Cancelling ctx stops the session as Stop would.
func (s *Session) Start(ctx context.Context) error {
	s.mu.Lock()
	switch {
	case s.stopped:
		s.mu.Unlock()
		return ErrSessionClosed
	case s.started:
		s.mu.Unlock()
		return ErrAlreadyStarted
	}
	s.started = true
	s.mu.Unlock()

	if _, err := s.resolve(ctx, s.cfg.Broker.Host); err != nil {
		s.mu.Lock()
		s.started = false
		s.mu.Unlock()
		return fmt.Errorf("%w: broker host %q: %w", ErrFatalConfig, s.cfg.Broker.Host, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stopped {
		return ErrSessionClosed
	}

	var lifeCtx, lisCtx, pubCtx context.Context
	lifeCtx, s.lifeCancel = context.WithCancel(context.Background())
	lisCtx, s.lisCancel = context.WithCancel(context.Background())
	pubCtx, s.pubCancel = context.WithCancel(context.Background())

	go s.run(lifeCtx)
	go s.listen(lisCtx)
	go s.publishLoop(pubCtx)

	go func() {
		select {
		case <-ctx.Done():
			s.Stop()
		case <-s.closed:
		}
	}()

	s.log.Infof("session started: broker %s:%d, subscribe %q, publish %q every %v",
		s.cfg.Broker.Host, s.cfg.Broker.Port, s.cfg.Broker.Topic, s.cfg.publishTopic(), s.cfg.Interval)
	return nil
}

// Stop cancels the publisher, then the listener, then closes the connection,
// waiting for each before moving on. Calling it again, or before Start, is a
// no-op.
func (s *Session) Stop() {
	s.stopOnce.Do(func() {
		s.mu.Lock()
		s.stopped = true
		pubCancel, lisCancel, lifeCancel := s.pubCancel, s.lisCancel, s.lifeCancel
		s.mu.Unlock()
		close(s.closed)

		if pubCancel == nil {
			return
		}

		pubCancel()
		<-s.pubDone
		lisCancel()
		<-s.lisDone
		lifeCancel()
		<-s.lifeDone

		s.log.Info("session stopped")
	})
}

// State returns the current connection state.
func (s *Session) State() State {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state
}

// Subscription returns the topic filter held on the live connection, or ""
// when not Connected.
func (s *Session) Subscription() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.subscription
}

// ReconnectAttempts returns the failures since the last successful connect.
func (s *Session) ReconnectAttempts() uint64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.attempts
}

// activeConn returns the live connection, or nil unless Connected.
func (s *Session) activeConn() Conn {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.state != Connected {
		return nil
	}
	return s.conn
}

func (s *Session) setState(st State) {
	s.mu.Lock()
	prev := s.state
	s.state = st
	s.mu.Unlock()

	if prev != st {
		s.log.Infof("state %s -> %s", prev, st)
	}
}

// run is the lifecycle manager. It is the only writer of state and conn.
func (s *Session) run(ctx context.Context) {
	defer close(s.lifeDone)

	for {
		conn, lost, err := s.connect(ctx)
		if err != nil {
			if ctx.Err() != nil {
				s.setState(Disconnected)
				return
			}
			if !s.retry(ctx, err) {
				return
			}
			continue
		}

		select {
		case <-ctx.Done():
			s.release(conn, Disconnected)
			return
		case err := <-lost:
			s.release(conn, Reconnecting)
			if !s.retry(ctx, fmt.Errorf("connection lost: %w", err)) {
				return
			}
		}
	}
}

// connect dials and subscribes. The session only becomes Connected once the
// inbound subscription is acknowledged, so every Connected period carries
// exactly one subscribe.
func (s *Session) connect(ctx context.Context) (Conn, <-chan error, error) {
	s.setState(Connecting)

	lost := make(chan error, 1)
	conn, err := s.dialer.Dial(ctx, func(err error) {
		select {
		case lost <- err:
		default:
		}
	})
	if err != nil {
		return nil, nil, fmt.Errorf("%w: %w", ErrConnect, err)
	}

	topic := s.cfg.Broker.Topic
	atomic.AddUint64(&s.stats.subscribes, 1)
	if err := conn.Subscribe(ctx, topic, s.cfg.QoS, s.deliver); err != nil {
		conn.Close()
		return nil, nil, fmt.Errorf("%w: topic %s: %w", ErrSubscribe, topic, err)
	}

	s.mu.Lock()
	prev := s.state
	s.conn = conn
	s.subscription = topic
	s.state = Connected
	s.attempts = 0
	s.mu.Unlock()
	atomic.AddUint64(&s.stats.connects, 1)

	s.log.Infof("state %s -> %s, subscribed to %s", prev, Connected, topic)
	return conn, lost, nil
}

// release waits for an in-flight publish, then detaches conn from the session
// before closing it, so the publisher never uses a closed connection.
func (s *Session) release(conn Conn, next State) {
	s.pubMu.Lock()
	s.mu.Lock()
	prev := s.state
	s.conn = nil
	s.subscription = ""
	s.state = next
	s.mu.Unlock()
	s.pubMu.Unlock()

	conn.Close()
	s.log.Infof("state %s -> %s", prev, next)
}

// retry records a failed attempt and sleeps out the backoff. It returns false
// when ctx ends first.
func (s *Session) retry(ctx context.Context, cause error) bool {
	s.mu.Lock()
	s.attempts++
	attempt := s.attempts
	s.state = Reconnecting
	s.mu.Unlock()

	delay := s.backoff.Delay(attempt)
	s.log.Warnf("%v; reconnect attempt %d in %v", cause, attempt, delay)

	select {
	case <-ctx.Done():
		s.setState(Disconnected)
		return false
	case <-s.clock.After(delay):
		return true
	}
}
