package telemetry

import (
	"context"
	"fmt"
	"sync/atomic"

	"mqtttelemetry/internal/logger"
)

// deliver runs on the broker client's goroutine. It only filters and queues;
// when the handler falls behind and the queue is full, messages are dropped.
func (s *Session) deliver(topic string, payload []byte) {
	if !MatchTopic(s.cfg.Broker.Topic, topic) {
		atomic.AddUint64(&s.stats.dropped, 1)
		s.log.Debugf("dropped message on unsubscribed topic %s", topic)
		return
	}

	select {
	case <-s.lisDone:
		atomic.AddUint64(&s.stats.dropped, 1)
		return
	default:
	}

	msg := InboundMessage{
		Topic:      topic,
		Payload:    append([]byte(nil), payload...),
		ReceivedAt: s.clock.Now(),
	}
	// Never block the broker client's goroutine: it also carries pings and acks.
	select {
	case s.inbound <- msg:
	default:
		atomic.AddUint64(&s.stats.dropped, 1)
		s.log.Warnf("inbound queue full (%d), dropped message on %s", cap(s.inbound), topic)
	}
}

// listen hands queued messages to the handler one at a time, preserving
// delivery order.
func (s *Session) listen(ctx context.Context) {
	defer close(s.lisDone)

	for {
		select {
		case <-ctx.Done():
			return
		case msg := <-s.inbound:
			atomic.AddUint64(&s.stats.received, 1)
			if err := s.handle(ctx, msg); err != nil {
				atomic.AddUint64(&s.stats.handlerErrors, 1)
				s.log.With(logger.Fields{"topic": msg.Topic}).Errorf("%v", err)
			}
		}
	}
}

func (s *Session) handle(ctx context.Context, msg InboundMessage) (err error) {
	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("%w: panic: %v", ErrHandler, p)
		}
	}()

	if err := s.handler.HandleMessage(ctx, msg); err != nil {
		return fmt.Errorf("%w: %w", ErrHandler, err)
	}
	return nil
}

// LogHandler logs every inbound message at info level.
func LogHandler(log logger.Logger) Handler {
	l := log.With(logger.Fields{"module": "telemetry"})
	return HandlerFunc(func(_ context.Context, msg InboundMessage) error {
		l.Infof("Received message: %s on topic %s", msg.Text(), msg.Topic)
		return nil
	})
}
