// Package hub fans dashboard updates out to websocket subscribers. Each Hub
// is one topic and replays its last message to every new subscriber.
package hub

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync/atomic"
	"time"

	"golang.org/x/time/rate"
)

// Kind is the websocket frame type a Message is written as.
type Kind uint8

const (
	KindText Kind = iota
	KindBinary
)

// Message is one update.
type Message struct {
	Kind Kind
	Data []byte
}

// Hub owns a topic's subscribers. Membership is only touched by Run.
type Hub struct {
	topic  string
	logger *slog.Logger

	subs    map[*subscriber]struct{}
	publish chan Message
	join    chan *subscriber
	leave   chan *subscriber
	done    chan struct{}

	last    atomic.Pointer[Message]
	count   atomic.Int32
	running atomic.Bool
	dropped atomic.Int64
	dropLog rate.Sometimes
}

// New creates a hub for topic. Run must be called before subscribers are
// served.
func New(topic string, logger *slog.Logger) *Hub {
	if logger == nil {
		logger = slog.Default()
	}
	return &Hub{
		topic:   topic,
		logger:  logger.With("topic", topic),
		subs:    make(map[*subscriber]struct{}),
		publish: make(chan Message, 256),
		join:    make(chan *subscriber),
		leave:   make(chan *subscriber),
		done:    make(chan struct{}),
		dropLog: rate.Sometimes{First: 1, Interval: 10 * time.Second},
	}
}

// Run delivers messages until ctx is done, then closes every subscriber.
// A hub runs once.
func (h *Hub) Run(ctx context.Context) {
	defer close(h.done)
	h.running.Store(true)
	defer h.running.Store(false)

	for {
		select {
		case <-ctx.Done():
			for s := range h.subs {
				h.remove(s)
			}
			return

		case s := <-h.join:
			h.subs[s] = struct{}{}
			if last := h.last.Load(); last != nil {
				select {
				case s.send <- *last:
				default:
				}
			}
			h.count.Store(int32(len(h.subs)))
			h.logger.Info("subscriber joined", "subscribers", len(h.subs))

		case s := <-h.leave:
			if _, ok := h.subs[s]; ok {
				h.remove(s)
				h.logger.Info("subscriber left", "subscribers", len(h.subs))
			}

		case msg := <-h.publish:
			for s := range h.subs {
				select {
				case s.send <- msg:
				default:
					h.remove(s)
					h.logger.Warn("dropped slow subscriber", "subscribers", len(h.subs))
				}
			}
		}
	}
}

func (h *Hub) remove(s *subscriber) {
	delete(h.subs, s)
	close(s.send)
	h.count.Store(int32(len(h.subs)))
}

// Publish queues msg for every subscriber and retains it for later ones.
// It never blocks; a full queue drops the message.
func (h *Hub) Publish(msg Message) {
	h.last.Store(&msg)
	select {
	case h.publish <- msg:
	default:
		n := h.dropped.Add(1)
		h.dropLog.Do(func() {
			h.logger.Warn("publish queue full, dropping", "dropped", n)
		})
	}
}

// PublishJSON encodes v and publishes it as text.
func (h *Hub) PublishJSON(v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	h.Publish(Message{Kind: KindText, Data: data})
	return nil
}

// Last returns the retained message.
func (h *Hub) Last() (Message, bool) {
	if m := h.last.Load(); m != nil {
		return *m, true
	}
	return Message{}, false
}

// Subscribers returns the current subscriber count.
func (h *Hub) Subscribers() int {
	return int(h.count.Load())
}

// Running reports whether Run is active.
func (h *Hub) Running() bool {
	return h.running.Load()
}

// Dropped returns how many publishes were lost to a full queue.
func (h *Hub) Dropped() int64 {
	return h.dropped.Load()
}
