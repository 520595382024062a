package events

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
)

const (
	DecisionGenerated = "decision.generated"
	DecisionApproved  = "decision.approved"
	DecisionRejected  = "decision.rejected"

	ExecutionQueued     = "execution.queued"
	ExecutionStarted    = "execution.started"
	ExecutionCompleted  = "execution.completed"
	ExecutionFailed     = "execution.failed"
	ExecutionExpired    = "execution.expired"
	ExecutionRolledBack = "execution.rolled_back"

	LearningFeedback = "learning.feedback"

	// All subscribes to every event type.
	All = "*"
)

type Event struct {
	Type        string         `json:"type"`
	DecisionID  string         `json:"decision_id,omitempty"`
	ExecutionID string         `json:"execution_id,omitempty"`
	CampaignID  string         `json:"campaign_id,omitempty"`
	Status      string         `json:"status,omitempty"`
	Message     string         `json:"message,omitempty"`
	Data        map[string]any `json:"data,omitempty"`
	At          time.Time      `json:"at"`
}

// Publisher is the write side of the hub.
type Publisher interface {
	Publish(ev Event)
}

// Hub fans engine events out to subscribers by type. Publish never blocks: a slow
// subscriber loses events rather than stalling workers.
type Hub struct {
	Logger *zap.Logger

	mu   sync.RWMutex
	subs map[string][]chan Event

	published uint64
	dropped   uint64
}

func NewHub(logger *zap.Logger) *Hub {
	return &Hub{Logger: logger, subs: map[string][]chan Event{}}
}

func (h *Hub) Subscribe(eventType string, buf int) <-chan Event {
	if buf <= 0 {
		buf = 16
	}
	ch := make(chan Event, buf)
	h.mu.Lock()
	if h.subs == nil {
		h.subs = map[string][]chan Event{}
	}
	h.subs[eventType] = append(h.subs[eventType], ch)
	h.mu.Unlock()
	return ch
}

// Unsubscribe removes and closes a channel returned by Subscribe.
func (h *Hub) Unsubscribe(ch <-chan Event) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for typ, list := range h.subs {
		for i, c := range list {
			if c == ch {
				h.subs[typ] = append(list[:i:i], list[i+1:]...)
				close(c)
				return
			}
		}
	}
}

func (h *Hub) Publish(ev Event) {
	if h == nil {
		return
	}
	if ev.At.IsZero() {
		ev.At = time.Now().UTC()
	}
	atomic.AddUint64(&h.published, 1)
	h.mu.RLock()
	defer h.mu.RUnlock()
	h.fanout(h.subs[ev.Type], ev)
	if ev.Type != All {
		h.fanout(h.subs[All], ev)
	}
}

func (h *Hub) fanout(list []chan Event, ev Event) {
	for _, ch := range list {
		select {
		case ch <- ev:
		default:
			atomic.AddUint64(&h.dropped, 1)
		}
	}
}

type Stats struct {
	Published uint64 `json:"published"`
	Dropped   uint64 `json:"dropped"`
}

func (h *Hub) Stats() Stats {
	return Stats{
		Published: atomic.LoadUint64(&h.published),
		Dropped:   atomic.LoadUint64(&h.dropped),
	}
}

// Run logs fan-out stats until ctx is done.
func (h *Hub) Run(ctx context.Context, every time.Duration) error {
	if h == nil {
		return nil
	}
	if every <= 0 {
		every = time.Minute
	}
	t := time.NewTicker(every)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-t.C:
			if h.Logger != nil {
				s := h.Stats()
				h.Logger.Info("event hub stats", zap.Uint64("published", s.Published), zap.Uint64("dropped", s.Dropped))
			}
		}
	}
}
