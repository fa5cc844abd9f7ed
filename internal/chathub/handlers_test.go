package chathub_test

import (
	"chatgogo/realtime/internal/cache"
	"chatgogo/realtime/internal/chathub"
	"chatgogo/realtime/internal/dispatch"
	"chatgogo/realtime/internal/models"
	"chatgogo/realtime/internal/storage"
	"chatgogo/realtime/internal/storage/storagemock"
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type rejectingQueue struct{ stats dispatch.Stats }

func (q *rejectingQueue) Enqueue(*models.ChatEvent) bool { q.stats.Rejected++; return false }
func (q *rejectingQueue) Start(context.Context) error { return nil }
func (q *rejectingQueue) Shutdown(context.Context) dispatch.Stats { return q.stats }
func (q *rejectingQueue) Stats() dispatch.Stats { return q.stats }

type harness struct {
	store    *storagemock.MockStorage
	hub      *chathub.ManagerService
	registry *chathub.Registry
	recent   *cache.MemoryRecentCache
	queue    dispatch.Queue
	clock    *fakeClock
	h        *chathub.RoomHandlers
}

type harnessOption func(*chathub.Deps)

func newHarness(t *testing.T, opts ...harnessOption) *harness {
	t.Helper()
	clock := newFakeClock()
	store := new(storagemock.MockStorage)
	hub := chathub.NewManagerService(nil)
	registry := chathub.NewRegistry(chathub.RegistryConfig{IdleTimeout: time.Minute, Now: clock.Now}, hub, nil)
	recent := cache.NewMemoryRecentCache(cache.RecentConfig{})
	delivery := dispatch.NewDeliveryService(dispatch.NewDirectBroadcaster(hub, nil), recent, nil)

	deps := chathub.Deps{
		Store:        store,
		Hub:          hub,
		Registry:     registry,
		Participants: cache.NewMemoryParticipantCache(time.Minute),
		Recent:       recent,
		Queue:        dispatch.NewImmediateQueue(delivery, nil),
		Now:          clock.Now,
	}
	for _, opt := range opts {
		opt(&deps)
	}
	return &harness{
		store:    store,
		hub:      hub,
		registry: registry,
		recent:   recent,
		queue:    deps.Queue,
		clock:    clock,
		h:        chathub.NewRoomHandlers(deps),
	}
}

func (hs *harness) connect(socketID, userID string) *MockClient {
	return connect(hs.hub, hs.registry, socketID, userID)
}

func user(id string) *models.User {
	return &models.User{ID: id, Name: "name-" + id, Email: id + "@example.com"}
}

func isSystem(content string) any {
	return mock.MatchedBy(func(m *models.Message) bool {
		return m.Type == models.MessageTypeSystem && m.Content == content
	})
}

func TestRoomHandlers_JoinRoomFirstTime(t *testing.T) {
	hs := newHarness(t)
	ctx := context.Background()
	member := hs.connect("s2", "u2")
	hs.hub.JoinRoom("s2", "r1")
	joiner := hs.connect("s1", "u1")

	hs.store.On("GetUserByID", mock.Anything, "u1").Return(user("u1"), nil)
	hs.store.On("GetRoomByID", mock.Anything, "r1").
		Return(&models.ChatRoom{ID: "r1", ParticipantIDs: []string{"u2"}}, nil).Once()
	hs.store.On("AddParticipant", mock.Anything, "r1", "u1").Return(nil)
	hs.store.On("FindMessagesBefore", mock.Anything, "r1", hs.clock.Now(), chathub.DefaultInitialLoad).
		Return([]models.Message{
			{ID: "m1", RoomID: "r1", Content: "one", CreatedAt: hs.clock.Now().Add(-2 * time.Second)},
			{ID: "m2", RoomID: "r1", Content: "two", CreatedAt: hs.clock.Now().Add(-time.Second)},
		}, true, nil)
	hs.store.On("MarkMessagesRead", mock.Anything, "u1", []string{"m1", "m2"}, hs.clock.Now()).Return(nil)
	hs.store.On("AppendMessage", mock.Anything, isSystem("name-u1 joined the room")).Return(nil)
	hs.store.On("GetRoomByID", mock.Anything, "r1").
		Return(&models.ChatRoom{ID: "r1", ParticipantIDs: []string{"u1", "u2"}}, nil).Once()
	hs.store.On("FindUsersByIDs", mock.Anything, []string{"u1", "u2"}).
		Return([]models.User{*user("u2"), *user("u1")}, nil)

	hs.h.JoinRoom(ctx, joiner, "r1")

	hs.store.AssertExpectations(t)
	assert.True(t, hs.hub.InRoom("s1", "r1"))
	assert.Equal(t, []string{
		chathub.EventJoinRoomSuccess, chathub.EventMessage, chathub.EventParticipantsUpdate,
	}, joiner.EventNames())

	success := Events[chathub.JoinRoomSuccess](joiner, chathub.EventJoinRoomSuccess)
	require.Len(t, success, 1)
	assert.Equal(t, "r1", success[0].RoomID)
	assert.True(t, success[0].HasMore)
	require.Len(t, success[0].Messages, 2)
	assert.Equal(t, "m1", success[0].Messages[0].ID)
	assert.Equal(t, "m2", success[0].Messages[1].ID)
	require.Len(t, success[0].Participants, 2)
	assert.Equal(t, "u1", success[0].Participants[0].ID)
	assert.Equal(t, "u2", success[0].Participants[1].ID)

	joined := Events[models.ChatEvent](member, chathub.EventMessage)
	require.Len(t, joined, 1)
	assert.Equal(t, models.MessageTypeSystem, joined[0].Type)
	assert.Equal(t, "name-u1 joined the room", joined[0].Content)
	assert.Len(t, Events[chathub.ParticipantsUpdate](member, chathub.EventParticipantsUpdate), 1)

	page, ok := hs.recent.GetRecentMessages(ctx, "r1", 10)
	require.True(t, ok)
	require.Len(t, page.Messages, 1)
	assert.Equal(t, joined[0].ID, page.Messages[0].ID)
}

func TestRoomHandlers_JoinRoomSecondTabSkipsStoreWrite(t *testing.T) {
	hs := newHarness(t)
	tab := hs.connect("s1", "u1")

	room := &models.ChatRoom{ID: "r1", ParticipantIDs: []string{"u1"}}
	hs.store.On("GetUserByID", mock.Anything, "u1").Return(user("u1"), nil)
	hs.store.On("GetRoomByID", mock.Anything, "r1").Return(room, nil)
	hs.store.On("FindMessagesBefore", mock.Anything, "r1", mock.Anything, mock.Anything).Return([]models.Message{}, false, nil)
	hs.store.On("FindUsersByIDs", mock.Anything, []string{"u1"}).Return([]models.User{*user("u1")}, nil)

	hs.h.JoinRoom(context.Background(), tab, "r1")

	hs.store.AssertNotCalled(t, "AddParticipant", mock.Anything, mock.Anything, mock.Anything)
	hs.store.AssertNotCalled(t, "AppendMessage", mock.Anything, mock.Anything)
	assert.Empty(t, Events[models.ChatEvent](tab, chathub.EventMessage))
	assert.Len(t, Events[chathub.JoinRoomSuccess](tab, chathub.EventJoinRoomSuccess), 1)
}

func TestRoomHandlers_JoinRoomAlreadyJoined(t *testing.T) {
	hs := newHarness(t)
	c := hs.connect("s1", "u1")
	hs.hub.JoinRoom("s1", "r1")

	hs.store.On("GetUserByID", mock.Anything, "u1").Return(user("u1"), nil)
	hs.store.On("GetRoomByID", mock.Anything, "r1").Return(&models.ChatRoom{ID: "r1", ParticipantIDs: []string{"u1"}}, nil)

	hs.h.JoinRoom(context.Background(), c, "r1")

	success := Events[chathub.JoinRoomSuccess](c, chathub.EventJoinRoomSuccess)
	require.Len(t, success, 1)
	assert.Equal(t, "r1", success[0].RoomID)
	assert.Empty(t, success[0].Messages)
	hs.store.AssertNotCalled(t, "FindMessagesBefore", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestRoomHandlers_JoinRoomErrors(t *testing.T) {
	tests := []struct {
		name    string
		setup   func(s *storagemock.MockStorage)
		roomID  string
		message string
	}{
		{
			name:    "missing room id",
			setup:   func(*storagemock.MockStorage) {},
			message: "room id is required",
		},
		{
			name: "unknown user",
			setup: func(s *storagemock.MockStorage) {
				s.On("GetUserByID", mock.Anything, "u1").Return(nil, storage.ErrUserNotFound)
			},
			roomID:  "r1",
			message: "user not found",
		},
		{
			name: "unknown room",
			setup: func(s *storagemock.MockStorage) {
				s.On("GetUserByID", mock.Anything, "u1").Return(user("u1"), nil)
				s.On("GetRoomByID", mock.Anything, "r1").Return(nil, storage.ErrRoomNotFound)
			},
			roomID:  "r1",
			message: "room not found",
		},
		{
			name: "store down",
			setup: func(s *storagemock.MockStorage) {
				s.On("GetUserByID", mock.Anything, "u1").Return(nil, errors.New("connection refused"))
			},
			roomID:  "r1",
			message: "database unavailable, try again later",
		},
		{
			name: "add participant fails",
			setup: func(s *storagemock.MockStorage) {
				s.On("GetUserByID", mock.Anything, "u1").Return(user("u1"), nil)
				s.On("GetRoomByID", mock.Anything, "r1").Return(&models.ChatRoom{ID: "r1"}, nil)
				s.On("AddParticipant", mock.Anything, "r1", "u1").Return(errors.New("timeout"))
			},
			roomID:  "r1",
			message: "database unavailable, try again later",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			hs := newHarness(t)
			c := hs.connect("s1", "u1")
			tt.setup(hs.store)

			hs.h.JoinRoom(context.Background(), c, tt.roomID)

			errs := Events[chathub.JoinRoomError](c, chathub.EventJoinRoomError)
			require.Len(t, errs, 1)
			assert.Equal(t, tt.message, errs[0].Message)
			assert.False(t, hs.hub.InRoom("s1", tt.roomID))
		})
	}
}

func TestRoomHandlers_JoinRoomServesFullPageFromRecentCache(t *testing.T) {
	hs := newHarness(t, func(d *chathub.Deps) { d.InitialLoad = 2 })
	ctx := context.Background()
	for _, id := range []string{"m1", "m2", "m3"} {
		require.NoError(t, hs.recent.Cache(ctx, &models.ChatEvent{ID: id, RoomID: "r1", Content: id}))
	}
	c := hs.connect("s1", "u1")

	hs.store.On("GetUserByID", mock.Anything, "u1").Return(user("u1"), nil)
	hs.store.On("GetRoomByID", mock.Anything, "r1").Return(&models.ChatRoom{ID: "r1", ParticipantIDs: []string{"u1"}}, nil)
	hs.store.On("FindUsersByIDs", mock.Anything, []string{"u1"}).Return([]models.User{*user("u1")}, nil)

	hs.h.JoinRoom(ctx, c, "r1")

	success := Events[chathub.JoinRoomSuccess](c, chathub.EventJoinRoomSuccess)
	require.Len(t, success, 1)
	require.Len(t, success[0].Messages, 2)
	assert.Equal(t, "m2", success[0].Messages[0].ID)
	assert.Equal(t, "m3", success[0].Messages[1].ID)
	assert.True(t, success[0].HasMore)
	hs.store.AssertNotCalled(t, "FindMessagesBefore", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestRoomHandlers_LeaveRoom(t *testing.T) {
	hs := newHarness(t)
	ctx := context.Background()
	leaver := hs.connect("s1", "u1")
	stayer := hs.connect("s2", "u2")
	hs.hub.JoinRoom("s1", "r1")
	hs.hub.JoinRoom("s2", "r1")

	hs.store.On("RemoveParticipant", mock.Anything, "r1", "u1").Return(nil)
	hs.store.On("AppendMessage", mock.Anything, isSystem("name-u1 left the room")).Return(nil)
	hs.store.On("GetRoomByID", mock.Anything, "r1").Return(&models.ChatRoom{ID: "r1", ParticipantIDs: []string{"u2"}}, nil)
	hs.store.On("FindUsersByIDs", mock.Anything, []string{"u2"}).Return([]models.User{*user("u2")}, nil)

	hs.h.LeaveRoom(ctx, leaver, "r1")

	hs.store.AssertExpectations(t)
	assert.False(t, hs.hub.InRoom("s1", "r1"))
	assert.Empty(t, leaver.Frames())
	assert.Equal(t, []string{
		chathub.EventMessage, chathub.EventParticipantsUpdate, chathub.EventUserLeft,
	}, stayer.EventNames())

	left := Events[chathub.UserLeft](stayer, chathub.EventUserLeft)
	require.Len(t, left, 1)
	assert.Equal(t, chathub.UserLeft{RoomID: "r1", UserID: "u1", UserName: "name-u1"}, left[0])

	update := Events[chathub.ParticipantsUpdate](stayer, chathub.EventParticipantsUpdate)
	require.Len(t, update, 1)
	assert.Equal(t, []models.Participant{user("u2").ToParticipant()}, update[0].Participants)
}

func TestRoomHandlers_LeaveRoomNotJoinedIsNoop(t *testing.T) {
	hs := newHarness(t)
	c := hs.connect("s1", "u1")

	hs.h.LeaveRoom(context.Background(), c, "r1")

	hs.store.AssertNotCalled(t, "RemoveParticipant", mock.Anything, mock.Anything, mock.Anything)
	assert.Empty(t, c.Frames())
}

func TestRoomHandlers_LastLeaverEvictsRoster(t *testing.T) {
	hs := newHarness(t)
	c := hs.connect("s1", "u1")
	hs.hub.JoinRoom("s1", "r1")

	hs.store.On("RemoveParticipant", mock.Anything, "r1", "u1").Return(nil)
	hs.store.On("AppendMessage", mock.Anything, mock.Anything).Return(nil)
	hs.store.On("GetRoomByID", mock.Anything, "r1").Return(&models.ChatRoom{ID: "r1"}, nil)

	hs.h.LeaveRoom(context.Background(), c, "r1")

	hs.store.AssertNotCalled(t, "FindUsersByIDs", mock.Anything, mock.Anything)
	assert.Empty(t, Events[chathub.ParticipantsUpdate](c, chathub.EventParticipantsUpdate))
}

func TestRoomHandlers_SendMessage(t *testing.T) {
	hs := newHarness(t)
	sender := hs.connect("s1", "u1")
	peer := hs.connect("s2", "u2")
	hs.hub.JoinRoom("s1", "r1")
	hs.hub.JoinRoom("s2", "r1")

	hs.store.On("AppendMessage", mock.Anything, mock.MatchedBy(func(m *models.Message) bool {
		return m.RoomID == "r1" && m.SenderID == "u1" && m.Content == "hello" &&
			m.Type == models.MessageTypeChat && m.Metadata == `{"replyTo":"m0"}`
	})).Run(func(args mock.Arguments) {
		args.Get(1).(*models.Message).ID = "m1"
	}).Return(nil)

	hs.h.SendMessage(context.Background(), sender, chathub.ChatMessageRequest{
		RoomID:   "r1",
		Content:  "hello",
		Metadata: map[string]any{"replyTo": "m0"},
	})

	for _, c := range []*MockClient{sender, peer} {
		got := Events[models.ChatEvent](c, chathub.EventMessage)
		require.Len(t, got, 1)
		assert.Equal(t, "m1", got[0].ID)
		assert.Equal(t, "hello", got[0].Content)
		assert.Equal(t, "u1", got[0].SenderID)
		assert.Equal(t, hs.clock.Now().UnixMilli(), got[0].Timestamp)
		assert.Equal(t, map[string]any{"replyTo": "m0"}, got[0].Metadata)
	}
	assert.Equal(t, int64(1), hs.queue.Stats().Processed)
}

func TestRoomHandlers_SendFileMessage(t *testing.T) {
	hs := newHarness(t)
	sender := hs.connect("s1", "u1")
	hs.hub.JoinRoom("s1", "r1")

	hs.store.On("AppendMessage", mock.Anything, mock.MatchedBy(func(m *models.Message) bool {
		return m.Type == models.MessageTypeFile && m.FileID != nil && *m.FileID == "f1"
	})).Return(nil)

	hs.h.SendMessage(context.Background(), sender, chathub.ChatMessageRequest{RoomID: "r1", FileID: "f1"})

	got := Events[models.ChatEvent](sender, chathub.EventMessage)
	require.Len(t, got, 1)
	require.NotNil(t, got[0].File)
	assert.Equal(t, "f1", got[0].File.ID)
}

func TestRoomHandlers_SendMessageErrors(t *testing.T) {
	tests := []struct {
		name  string
		req   chathub.ChatMessageRequest
		join  bool
		store error
		queue dispatch.Queue
		code  string
	}{
		{name: "empty content", req: chathub.ChatMessageRequest{RoomID: "r1"}, join: true, code: chathub.ErrCodeBadRequest},
		{name: "missing room", req: chathub.ChatMessageRequest{Content: "x"}, code: chathub.ErrCodeBadRequest},
		{name: "not in room", req: chathub.ChatMessageRequest{RoomID: "r1", Content: "x"}, code: chathub.ErrCodeNotInRoom},
		{name: "store fails", req: chathub.ChatMessageRequest{RoomID: "r1", Content: "x"}, join: true, store: errors.New("down"), code: chathub.ErrCodeStoreFailed},
		{name: "queue full", req: chathub.ChatMessageRequest{RoomID: "r1", Content: "x"}, join: true, queue: &rejectingQueue{}, code: chathub.ErrCodeQueueFull},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			hs := newHarness(t, func(d *chathub.Deps) {
				if tt.queue != nil {
					d.Queue = tt.queue
				}
			})
			c := hs.connect("s1", "u1")
			if tt.join {
				hs.hub.JoinRoom("s1", "r1")
			}
			hs.store.On("AppendMessage", mock.Anything, mock.Anything).Return(tt.store)

			hs.h.SendMessage(context.Background(), c, tt.req)

			errs := Events[chathub.ErrorPayload](c, chathub.EventError)
			require.Len(t, errs, 1)
			assert.Equal(t, tt.code, errs[0].Code)
			assert.Empty(t, Events[models.ChatEvent](c, chathub.EventMessage))
		})
	}
}

func TestRoomHandlers_FetchPreviousMessages(t *testing.T) {
	hs := newHarness(t)
	c := hs.connect("s1", "u1")
	hs.hub.JoinRoom("s1", "r1")

	before := hs.clock.Now().Add(-time.Hour).UnixMilli()
	hs.store.On("FindMessagesBefore", mock.Anything, "r1", time.UnixMilli(before), chathub.MaxPageSize).
		Return([]models.Message{{ID: "old", RoomID: "r1"}}, true, nil)
	hs.store.On("MarkMessagesRead", mock.Anything, "u1", []string{"old"}, hs.clock.Now()).Return(nil)

	hs.h.FetchPreviousMessages(context.Background(), c, chathub.FetchPreviousRequest{RoomID: "r1", Before: before, Limit: 500})

	hs.store.AssertExpectations(t)
	loaded := Events[chathub.PreviousMessagesLoaded](c, chathub.EventPreviousMessagesLoaded)
	require.Len(t, loaded, 1)
	assert.True(t, loaded[0].HasMore)
	require.Len(t, loaded[0].Messages, 1)
	assert.Equal(t, "old", loaded[0].Messages[0].ID)
}

func TestRoomHandlers_FetchPreviousMessagesReturnsLoadedReaders(t *testing.T) {
	hs := newHarness(t)
	c := hs.connect("s1", "u1")
	hs.hub.JoinRoom("s1", "r1")

	readAt := hs.clock.Now().Add(-time.Minute)
	hs.store.On("FindMessagesBefore", mock.Anything, "r1", hs.clock.Now(), chathub.DefaultInitialLoad).
		Return([]models.Message{{
			ID: "m1", RoomID: "r1",
			Readers: []models.MessageReader{{MessageID: "m1", UserID: "u2", ReadAt: readAt}},
		}}, false, nil)
	// помилка запису прочитання не ламає відповідь
	hs.store.On("MarkMessagesRead", mock.Anything, "u1", []string{"m1"}, hs.clock.Now()).
		Return(errors.New("down")).Once()

	hs.h.FetchPreviousMessages(context.Background(), c, chathub.FetchPreviousRequest{RoomID: "r1"})

	hs.store.AssertExpectations(t)
	assert.Empty(t, Events[chathub.ErrorPayload](c, chathub.EventError))
	loaded := Events[chathub.PreviousMessagesLoaded](c, chathub.EventPreviousMessagesLoaded)
	require.Len(t, loaded, 1)
	require.Len(t, loaded[0].Messages, 1)
	assert.Equal(t, []models.Reader{{UserID: "u2", ReadAt: readAt.UnixMilli()}}, loaded[0].Messages[0].Readers)
}

func TestRoomHandlers_FetchPreviousMessagesDefaults(t *testing.T) {
	hs := newHarness(t)
	c := hs.connect("s1", "u1")
	hs.hub.JoinRoom("s1", "r1")

	hs.store.On("FindMessagesBefore", mock.Anything, "r1", hs.clock.Now(), chathub.DefaultInitialLoad).
		Return(nil, false, errors.New("down"))

	hs.h.FetchPreviousMessages(context.Background(), c, chathub.FetchPreviousRequest{RoomID: "r1"})

	errs := Events[chathub.ErrorPayload](c, chathub.EventError)
	require.Len(t, errs, 1)
	assert.Equal(t, chathub.ErrCodeStoreFailed, errs[0].Code)

	hs.h.FetchPreviousMessages(context.Background(), c, chathub.FetchPreviousRequest{RoomID: "r2"})
	errs = Events[chathub.ErrorPayload](c, chathub.EventError)
	require.Len(t, errs, 2)
	assert.Equal(t, chathub.ErrCodeNotInRoom, errs[1].Code)
}

func TestRoomHandlers_Restore(t *testing.T) {
	hs := newHarness(t)
	c := hs.connect("s1", "u1")
	hs.store.On("FindRoomIDsForUser", mock.Anything, "u1").Return([]string{"r1", "r2"}, nil)

	assert.Equal(t, 2, hs.h.Restore(context.Background(), c))
	assert.Equal(t, []string{"r1", "r2"}, hs.hub.RoomsOf("s1"))

	other := hs.connect("s2", "u2")
	hs.store.On("FindRoomIDsForUser", mock.Anything, "u2").Return(nil, errors.New("down"))
	assert.Equal(t, 0, hs.h.Restore(context.Background(), other))
}

func TestRoomHandlers_HandleEventRoutesAndTouches(t *testing.T) {
	hs := newHarness(t)
	c := hs.connect("s1", "u1")
	hs.hub.JoinRoom("s1", "r1")
	hs.clock.Advance(30 * time.Second)

	hs.store.On("AppendMessage", mock.Anything, mock.Anything).Return(nil)
	data, err := json.Marshal(chathub.ChatMessageRequest{RoomID: "r1", Content: "hi"})
	require.NoError(t, err)

	hs.h.HandleEvent(c, chathub.EventChatMessage, data)

	seen, ok := hs.registry.LastSeen("s1")
	require.True(t, ok)
	assert.True(t, seen.Equal(hs.clock.Now()))
	assert.Len(t, Events[models.ChatEvent](c, chathub.EventMessage), 1)

	hs.h.HandleEvent(c, chathub.EventChatMessage, json.RawMessage(`"not an object"`))
	errs := Events[chathub.ErrorPayload](c, chathub.EventError)
	require.Len(t, errs, 1)
	assert.Equal(t, chathub.ErrCodeBadRequest, errs[0].Code)

	hs.h.HandleEvent(c, "typing", nil)
	assert.Len(t, c.Frames(), 2)
}

func TestRoomHandlers_HandleEventDecodesBareRoomID(t *testing.T) {
	hs := newHarness(t)
	c := hs.connect("s1", "u1")
	hs.hub.JoinRoom("s1", "r1")

	hs.store.On("RemoveParticipant", mock.Anything, "r1", "u1").Return(nil)
	hs.store.On("AppendMessage", mock.Anything, mock.Anything).Return(nil)
	hs.store.On("GetRoomByID", mock.Anything, "r1").Return(nil, storage.ErrRoomNotFound)

	hs.h.HandleEvent(c, chathub.EventLeaveRoom, json.RawMessage(`"r1"`))

	assert.False(t, hs.hub.InRoom("s1", "r1"))
}

func TestRoomHandlers_HandleDisconnect(t *testing.T) {
	hs := newHarness(t)
	c := hs.connect("s1", "u1")
	hs.hub.JoinRoom("s1", "r1")

	hs.h.HandleDisconnect(c)

	assert.Equal(t, 0, hs.registry.Len())
	_, ok := hs.hub.Client("s1")
	assert.False(t, ok)
	assert.Empty(t, hs.hub.RoomMembers("r1"))
	hs.store.AssertNotCalled(t, "RemoveParticipant", mock.Anything, mock.Anything, mock.Anything)
}
