package dispatch_test

import (
	"chatgogo/realtime/internal/cache"
	"chatgogo/realtime/internal/models"
	"context"
	"errors"
	"fmt"
	"sync"
	"time"
)

type sendCall struct {
	roomID string
	event  string
	value  any
}

// recordingSender stands in for the hub.
type recordingSender struct {
	mu    sync.Mutex
	calls []sendCall
	sent  chan sendCall
}

func newRecordingSender() *recordingSender {
	return &recordingSender{sent: make(chan sendCall, 100)}
}

func (s *recordingSender) SendToRoom(roomID, event string, v any) int {
	call := sendCall{roomID: roomID, event: event, value: v}
	s.mu.Lock()
	s.calls = append(s.calls, call)
	s.mu.Unlock()
	s.sent <- call
	return 1
}

func (s *recordingSender) Calls() []sendCall {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]sendCall(nil), s.calls...)
}

// recordingDeliverer remembers every event in delivery order.
type recordingDeliverer struct {
	mu     sync.Mutex
	events []*models.ChatEvent
	done   chan *models.ChatEvent
	block  chan struct{}
	fail   map[string]error
	panics map[string]bool
}

func newRecordingDeliverer() *recordingDeliverer {
	return &recordingDeliverer{done: make(chan *models.ChatEvent, 1000)}
}

func (d *recordingDeliverer) Deliver(_ context.Context, ev *models.ChatEvent) error {
	if d.block != nil {
		<-d.block
	}
	if d.panics[ev.ID] {
		panic("deliverer exploded")
	}
	d.mu.Lock()
	d.events = append(d.events, ev)
	d.mu.Unlock()
	d.done <- ev
	return d.fail[ev.ID]
}

func (d *recordingDeliverer) IDs() []string {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make([]string, len(d.events))
	for i, ev := range d.events {
		out[i] = ev.ID
	}
	return out
}

func (d *recordingDeliverer) waitN(n int, timeout time.Duration) error {
	deadline := time.After(timeout)
	for i := 0; i < n; i++ {
		select {
		case <-d.done:
		case <-deadline:
			return fmt.Errorf("got %d of %d deliveries", i, n)
		}
	}
	return nil
}

// failingCache always fails to write and never hits.
type failingCache struct{}

func (failingCache) Cache(context.Context, *models.ChatEvent) error {
	return errors.New("cache unavailable")
}

func (failingCache) GetRecentMessages(context.Context, string, int) (cache.CachedPage, bool) {
	return cache.CachedPage{}, false
}

func event(roomID string, n int) *models.ChatEvent {
	return &models.ChatEvent{
		ID:        fmt.Sprintf("m%d", n),
		RoomID:    roomID,
		SenderID:  "u1",
		Type:      models.MessageTypeChat,
		Content:   fmt.Sprintf("message %d", n),
		Timestamp: int64(1700000000000 + n),
	}
}
