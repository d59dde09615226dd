package telemetry

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"
)

// publishLoop fires on a fixed ticker, independent of inbound traffic and of
// the connection state. A tick never waits for a reconnect.
func (s *Session) publishLoop(ctx context.Context) {
	defer close(s.pubDone)

	ticker := s.clock.NewTicker(s.cfg.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C():
			_ = s.tick(ctx, now)
		}
	}
}

// tick samples the reading source and publishes it if the session is
// Connected. Missed ticks are not queued or retried.
func (s *Session) tick(ctx context.Context, now time.Time) error {
	reading, err := s.read(now)
	if err != nil {
		atomic.AddUint64(&s.stats.failed, 1)
		s.log.Warnf("tick at %s: %v", now.Format(time.RFC3339), err)
		return err
	}

	s.pubMu.RLock()
	defer s.pubMu.RUnlock()

	conn := s.activeConn()
	if conn == nil {
		atomic.AddUint64(&s.stats.skipped, 1)
		s.log.Debugf("reading %v not published: session %s", reading.Value, s.State())
		return ErrPublishSkipped
	}

	topic := s.cfg.publishTopic()
	payload := s.format(reading)
	if err := conn.Publish(ctx, topic, s.cfg.QoS, []byte(payload)); err != nil {
		if ctx.Err() != nil {
			// Shutting down; not a failed tick.
			return err
		}
		atomic.AddUint64(&s.stats.failed, 1)
		s.log.Warnf("publish to %s failed: %v", topic, err)
		return err
	}

	atomic.AddUint64(&s.stats.published, 1)
	s.log.Debugf("published %q to %s", payload, topic)
	return nil
}

func (s *Session) read(now time.Time) (r Reading, err error) {
	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("%w: panic: %v", ErrReading, p)
		}
	}()

	v, err := s.source()
	if err != nil {
		return Reading{}, fmt.Errorf("%w: %w", ErrReading, err)
	}
	return Reading{Value: v, Time: now}, nil
}
