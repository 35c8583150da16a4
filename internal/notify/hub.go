package notify

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

const subscriberBuffer = 16

// FeedMessage is one live feed entry
type FeedMessage struct {
	Type   string    `json:"type"`
	ChatID int64     `json:"chat_id"`
	Text   string    `json:"text,omitempty"`
	SentAt time.Time `json:"sent_at"`
}

// Subscription receives the messages of one chat
type Subscription struct {
	C      <-chan FeedMessage
	ch     chan FeedMessage
	chatID int64
	hub    *Hub
	once   sync.Once
}

// Close detaches the subscription from the hub
func (s *Subscription) Close() {
	s.once.Do(func() {
		s.hub.unsubscribe(s)
	})
}

// Hub is an in-memory notifier that relays messages to live subscribers.
// Slow subscribers lose messages rather than block the poller.
type Hub struct {
	mu   sync.RWMutex
	subs map[int64]map[*Subscription]struct{}
	now  func() time.Time
}

// NewHub creates an empty hub
func NewHub() *Hub {
	return &Hub{
		subs: make(map[int64]map[*Subscription]struct{}),
		now:  time.Now,
	}
}

// Subscribe starts receiving messages sent to chatID
func (h *Hub) Subscribe(chatID int64) *Subscription {
	ch := make(chan FeedMessage, subscriberBuffer)
	sub := &Subscription{C: ch, ch: ch, chatID: chatID, hub: h}

	h.mu.Lock()
	defer h.mu.Unlock()
	if h.subs[chatID] == nil {
		h.subs[chatID] = make(map[*Subscription]struct{})
	}
	h.subs[chatID][sub] = struct{}{}
	return sub
}

func (h *Hub) unsubscribe(sub *Subscription) {
	h.mu.Lock()
	defer h.mu.Unlock()
	set := h.subs[sub.chatID]
	if _, ok := set[sub]; !ok {
		return
	}
	delete(set, sub)
	if len(set) == 0 {
		delete(h.subs, sub.chatID)
	}
	close(sub.ch)
}

// Subscribers returns the number of live subscribers of chatID
func (h *Hub) Subscribers(chatID int64) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs[chatID])
}

// Send relays text to the subscribers of chatID. It never fails.
func (h *Hub) Send(ctx context.Context, chatID int64, text string) error {
	msg := FeedMessage{Type: "notification", ChatID: chatID, Text: text, SentAt: h.now().UTC()}

	h.mu.RLock()
	defer h.mu.RUnlock()
	for sub := range h.subs[chatID] {
		select {
		case sub.ch <- msg:
		default:
			slog.Warn("dropping feed message for slow subscriber", "chat_id", chatID)
		}
	}
	return nil
}

// Close disconnects every subscriber
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for chatID, set := range h.subs {
		for sub := range set {
			close(sub.ch)
		}
		delete(h.subs, chatID)
	}
}
