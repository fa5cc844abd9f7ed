package chathub_test

import (
	"chatgogo/realtime/internal/chathub"
	"encoding/json"
	"sync"
	"sync/atomic"
)

type MockClient struct {
	id       string
	userID   string
	userName string
	capacity int

	mu     sync.Mutex
	frames []chathub.Envelope
	closed atomic.Bool
}

func newMockClient(id, userID string) *MockClient {
	return &MockClient{id: id, userID: userID, userName: "name-" + userID, capacity: 64}
}

func (c *MockClient) ID() string       { return c.id }
func (c *MockClient) UserID() string   { return c.userID }
func (c *MockClient) UserName() string { return c.userName }

func (c *MockClient) Send(payload []byte) bool {
	if c.closed.Load() {
		return false
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.frames) >= c.capacity {
		return false
	}
	var env chathub.Envelope
	if err := json.Unmarshal(payload, &env); err != nil {
		return false
	}
	c.frames = append(c.frames, env)
	return true
}

func (c *MockClient) Run() {
	// Not needed for testing
}

func (c *MockClient) Close() { c.closed.Store(true) }

func (c *MockClient) Closed() bool { return c.closed.Load() }

func (c *MockClient) Frames() []chathub.Envelope {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]chathub.Envelope(nil), c.frames...)
}

// Events returns the frames with the given event name, decoded into T.
func Events[T any](c *MockClient, event string) []T {
	var out []T
	for _, f := range c.Frames() {
		if f.Event != event {
			continue
		}
		var v T
		if err := json.Unmarshal(f.Data, &v); err == nil {
			out = append(out, v)
		}
	}
	return out
}

func (c *MockClient) EventNames() []string {
	var out []string
	for _, f := range c.Frames() {
		out = append(out, f.Event)
	}
	return out
}
