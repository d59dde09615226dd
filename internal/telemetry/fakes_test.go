package telemetry

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"mqtttelemetry/internal/logger"
)

const testTopic = "iot/sensor/data"

// --- fake connection ---

type fakeConn struct {
	mu sync.Mutex

	subs       []string
	pubs       []string
	closed     bool
	violations []string

	subErr    error
	pubErr    error
	pubGate   chan any // when set, Publish blocks until it is closed.
	inPublish bool
	onLost    func(error)
	deliver   func(topic string, payload []byte)
}

func (c *fakeConn) Subscribe(_ context.Context, topic string, _ byte, fn func(string, []byte)) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.subs = append(c.subs, topic)
	if c.subErr != nil {
		return c.subErr
	}
	c.deliver = fn
	return nil
}

func (c *fakeConn) Publish(ctx context.Context, topic string, _ byte, payload []byte) error {
	c.mu.Lock()
	if gate := c.pubGate; gate != nil {
		c.inPublish = true
		c.mu.Unlock()
		select {
		case <-gate:
		case <-ctx.Done():
		}
		c.mu.Lock()
		c.inPublish = false
	}
	defer c.mu.Unlock()
	if c.closed {
		c.violations = append(c.violations, "publish after close")
	}
	if len(c.subs) == 0 {
		c.violations = append(c.violations, "publish before subscribe")
	}
	if c.pubErr != nil {
		return c.pubErr
	}
	c.pubs = append(c.pubs, topic+" "+string(payload))
	return nil
}

func (c *fakeConn) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.inPublish {
		c.violations = append(c.violations, "close during publish")
	}
	c.closed = true
}

func (c *fakeConn) gatePublish() chan any {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.pubGate = make(chan any)
	return c.pubGate
}

func (c *fakeConn) publishing() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.inPublish
}

func (c *fakeConn) isClosed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

// lose simulates the transport reporting a dropped connection.
func (c *fakeConn) lose(err error) {
	c.mu.Lock()
	fn := c.onLost
	c.mu.Unlock()
	fn(err)
}

func (c *fakeConn) send(topic, payload string) {
	c.mu.Lock()
	fn := c.deliver
	c.mu.Unlock()
	fn(topic, []byte(payload))
}

func (c *fakeConn) snapshot() (subs, pubs, violations []string, closed bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string(nil), c.subs...), append([]string(nil), c.pubs...),
		append([]string(nil), c.violations...), c.closed
}

// --- fake dialer ---

type fakeDialer struct {
	mu sync.Mutex

	dialErrs []error          // consumed one per Dial; a nil entry succeeds.
	subErrs  map[int]error    // subscribe error for the n-th successful dial.
	gates    map[int]chan any // the n-th Dial blocks until its gate is closed.
	dials    int
	conns    []*fakeConn
}

func newFakeDialer() *fakeDialer {
	return &fakeDialer{subErrs: map[int]error{}, gates: map[int]chan any{}}
}

func (d *fakeDialer) Dial(ctx context.Context, onLost func(error)) (Conn, error) {
	d.mu.Lock()
	n := d.dials
	d.dials++
	gate := d.gates[n]
	var err error
	if len(d.dialErrs) > 0 {
		err, d.dialErrs = d.dialErrs[0], d.dialErrs[1:]
	}
	d.mu.Unlock()

	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if err != nil {
		return nil, err
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	c := &fakeConn{onLost: onLost, subErr: d.subErrs[len(d.conns)]}
	d.conns = append(d.conns, c)
	return c, nil
}

func (d *fakeDialer) conn(i int) *fakeConn {
	d.mu.Lock()
	defer d.mu.Unlock()
	if i >= len(d.conns) {
		return nil
	}
	return d.conns[i]
}

func (d *fakeDialer) connCount() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.conns)
}

func (d *fakeDialer) dialCount() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.dials
}

// --- manual clock ---

type fakeClock struct {
	mu     sync.Mutex
	ticks  chan time.Time
	delays []time.Duration
	now    time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{
		ticks: make(chan time.Time),
		now:   time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC),
	}
}

func (c *fakeClock) Now() time.Time { return c.now }

func (c *fakeClock) NewTicker(time.Duration) Ticker { return fakeTicker{c: c.ticks} }

// After fires at once; the requested delay is only recorded.
func (c *fakeClock) After(d time.Duration) <-chan time.Time {
	c.mu.Lock()
	c.delays = append(c.delays, d)
	c.mu.Unlock()
	ch := make(chan time.Time, 1)
	ch <- c.now
	return ch
}

func (c *fakeClock) recordedDelays() []time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]time.Duration(nil), c.delays...)
}

type fakeTicker struct {
	c chan time.Time
}

func (t fakeTicker) C() <-chan time.Time { return t.c }
func (t fakeTicker) Stop()               {}

// --- helpers ---

func testConfig() Config {
	return Config{
		Broker: BrokerConfig{
			Host:      "broker.hivemq.com",
			Port:      1883,
			KeepAlive: 60 * time.Second,
			Topic:     testTopic,
		},
		Interval: DefaultInterval,
	}
}

func resolveOK(context.Context, string) ([]string, error) {
	return []string{"127.0.0.1"}, nil
}

func newTestSession(t *testing.T, d Dialer, clock *fakeClock, opts ...Option) *Session {
	t.Helper()
	base := []Option{
		WithClock(clock),
		WithLogger(logger.Discard()),
		WithResolver(resolveOK),
		WithBackoff(Backoff{Initial: time.Millisecond, Max: 8 * time.Millisecond, Multiplier: 2}),
	}
	s, err := New(testConfig(), d, append(base, opts...)...)
	require.NoError(t, err)
	t.Cleanup(s.Stop)
	return s
}

func startSession(t *testing.T, s *Session) {
	t.Helper()
	require.NoError(t, s.Start(context.Background()))
}

func waitState(t *testing.T, s *Session, want State) {
	t.Helper()
	require.Eventually(t, func() bool { return s.State() == want }, 2*time.Second, time.Millisecond,
		"state stayed %s, want %s", s.State(), want)
}

func tickTotal(s *Session) uint64 {
	st := s.Stats()
	return st.Published + st.Skipped + st.Failed
}

// fireTick delivers one tick and waits until the publisher has accounted for it.
func fireTick(t *testing.T, s *Session, clock *fakeClock) {
	t.Helper()
	before := tickTotal(s)
	select {
	case clock.ticks <- clock.now:
	case <-time.After(2 * time.Second):
		t.Fatal("publisher did not take the tick")
	}
	require.Eventually(t, func() bool { return tickTotal(s) == before+1 }, 2*time.Second, time.Millisecond)
}

var errEOF = errors.New("EOF")
