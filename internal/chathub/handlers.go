package chathub

import (
	"chatgogo/realtime/internal/cache"
	"chatgogo/realtime/internal/dispatch"
	"chatgogo/realtime/internal/localization"
	"chatgogo/realtime/internal/models"
	"chatgogo/realtime/internal/storage"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"
)

const (
	DefaultInitialLoad = 30
	MaxPageSize        = 100

	handlerTimeout = 10 * time.Second
)

// Deps are the collaborators of the room event handlers.
type Deps struct {
	Store        storage.Storage
	Hub          *ManagerService
	Registry     *Registry
	Participants cache.ParticipantCache
	Recent       cache.RecentMessageCache
	Queue        dispatch.Queue

	// InitialLoad is the number of messages sent with joinRoomSuccess.
	InitialLoad int
	// Texts and Language render the join and leave notices.
	Texts    *localization.Localizer
	Language string
	Now      func() time.Time
	Log      *slog.Logger
}

// RoomHandlers produces room events: join, leave, chat messages and history
// replay. It implements EventRouter.
type RoomHandlers struct {
	store        storage.Storage
	hub          *ManagerService
	registry     *Registry
	participants cache.ParticipantCache
	recent       cache.RecentMessageCache
	queue        dispatch.Queue
	initialLoad  int
	texts        *localization.Localizer
	lang         string
	now          func() time.Time
	log          *slog.Logger
}

func NewRoomHandlers(d Deps) *RoomHandlers {
	if d.Participants == nil {
		d.Participants = cache.NoopParticipantCache{}
	}
	if d.Recent == nil {
		d.Recent = cache.NoopRecentCache{}
	}
	if d.InitialLoad <= 0 {
		d.InitialLoad = DefaultInitialLoad
	}
	if d.Texts == nil {
		d.Texts = localization.Default()
	}
	if d.Language == "" {
		d.Language = localization.DefaultLanguage
	}
	if d.Now == nil {
		d.Now = time.Now
	}
	if d.Log == nil {
		d.Log = slog.Default()
	}
	return &RoomHandlers{
		store:        d.Store,
		hub:          d.Hub,
		registry:     d.Registry,
		participants: d.Participants,
		recent:       d.Recent,
		queue:        d.Queue,
		initialLoad:  min(d.InitialLoad, MaxPageSize),
		texts:        d.Texts,
		lang:         d.Language,
		now:          d.Now,
		log:          d.Log.With("component", "room-handlers"),
	}
}

// HandleEvent routes one inbound socket frame.
func (h *RoomHandlers) HandleEvent(c Client, event string, data json.RawMessage) {
	if h.registry != nil {
		h.registry.Touch(c.ID())
	}

	ctx, cancel := context.WithTimeout(context.Background(), handlerTimeout)
	defer cancel()

	switch event {
	case EventJoinRoom:
		h.JoinRoom(ctx, c, decodeRoomID(data))
	case EventLeaveRoom:
		h.LeaveRoom(ctx, c, decodeRoomID(data))
	case EventChatMessage:
		var req ChatMessageRequest
		if err := json.Unmarshal(data, &req); err != nil {
			h.sendError(c, ErrCodeBadRequest, "invalid chat message")
			return
		}
		h.SendMessage(ctx, c, req)
	case EventFetchPreviousMessages:
		var req FetchPreviousRequest
		if err := json.Unmarshal(data, &req); err != nil {
			h.sendError(c, ErrCodeBadRequest, "invalid fetch request")
			return
		}
		h.FetchPreviousMessages(ctx, c, req)
	default:
		h.log.Debug("unknown socket event", "event", event, "socket_id", c.ID())
	}
}

// HandleDisconnect forgets the socket. Store membership is kept so the
// user's rooms are restored on reconnect.
func (h *RoomHandlers) HandleDisconnect(c Client) {
	if h.registry != nil {
		h.registry.Unregister(c.ID())
	}
	h.hub.Unregister(c.ID())
	h.log.Debug("socket disconnected", "socket_id", c.ID(), "user_id", c.UserID())
}

func (h *RoomHandlers) JoinRoom(ctx context.Context, c Client, roomID string) {
	if roomID == "" {
		h.hub.SendToClient(c.ID(), EventJoinRoomError, JoinRoomError{Message: "room id is required"})
		return
	}
	joinErr := func(msg string) {
		h.hub.SendToClient(c.ID(), EventJoinRoomError, JoinRoomError{RoomID: roomID, Message: msg})
	}

	user, err := h.store.GetUserByID(ctx, c.UserID())
	if errors.Is(err, storage.ErrUserNotFound) {
		joinErr("user not found")
		return
	}
	if err != nil {
		h.log.Error("failed to load user on join", "user_id", c.UserID(), "error", err)
		joinErr("database unavailable, try again later")
		return
	}

	room, err := h.store.GetRoomByID(ctx, roomID)
	if errors.Is(err, storage.ErrRoomNotFound) {
		joinErr("room not found")
		return
	}
	if err != nil {
		h.log.Error("failed to load room on join", "room_id", roomID, "error", err)
		joinErr("database unavailable, try again later")
		return
	}

	if h.hub.InRoom(c.ID(), roomID) {
		h.hub.SendToClient(c.ID(), EventJoinRoomSuccess, JoinRoomSuccess{RoomID: roomID})
		return
	}

	// Інша вкладка того ж користувача вже в кімнаті: без повторного "joined"
	firstJoin := !room.HasParticipant(user.ID)
	if firstJoin {
		if err := h.store.AddParticipant(ctx, roomID, user.ID); err != nil {
			h.log.Error("failed to add participant", "room_id", roomID, "user_id", user.ID, "error", err)
			joinErr("database unavailable, try again later")
			return
		}
	}

	if !h.hub.JoinRoom(c.ID(), roomID) {
		return
	}
	h.participants.AddParticipant(ctx, roomID, user.ToParticipant())

	// Сторінка читається до запису "joined": ця подія прийде через чергу
	now := h.now()
	messages, hasMore := h.initialMessages(ctx, user.ID, roomID, now)

	var joinEvent *models.ChatEvent
	if firstJoin {
		joinEvent = h.systemMessage(ctx, roomID, h.texts.Format(h.lang, localization.KeyRoomJoined, user.Name), now)
	}
	participants := h.roster(ctx, roomID)

	h.hub.SendToClient(c.ID(), EventJoinRoomSuccess, JoinRoomSuccess{
		RoomID:       roomID,
		Participants: participants,
		Messages:     messages,
		HasMore:      hasMore,
	})

	if joinEvent != nil && !h.queue.Enqueue(joinEvent) {
		h.log.Warn("join message dropped, dispatch queue full", "room_id", roomID)
	}
	h.hub.SendToRoom(roomID, EventParticipantsUpdate, ParticipantsUpdate{RoomID: roomID, Participants: participants})

	h.log.Info("user joined room", "user_id", user.ID, "room_id", roomID, "messages", len(messages), "has_more", hasMore)
}

func (h *RoomHandlers) LeaveRoom(ctx context.Context, c Client, roomID string) {
	if roomID == "" || !h.hub.InRoom(c.ID(), roomID) {
		return
	}

	if err := h.store.RemoveParticipant(ctx, roomID, c.UserID()); err != nil {
		h.log.Error("failed to remove participant", "room_id", roomID, "user_id", c.UserID(), "error", err)
		h.sendError(c, ErrCodeStoreFailed, "failed to leave room")
		return
	}

	h.hub.LeaveRoom(c.ID(), roomID)
	h.participants.RemoveParticipant(ctx, roomID, c.UserID())

	if ev := h.systemMessage(ctx, roomID, h.texts.Format(h.lang, localization.KeyRoomLeft, c.UserName()), h.now()); ev != nil {
		if !h.queue.Enqueue(ev) {
			h.log.Warn("leave message dropped, dispatch queue full", "room_id", roomID)
		}
	}

	if participants := h.roster(ctx, roomID); len(participants) > 0 {
		h.hub.SendToRoom(roomID, EventParticipantsUpdate, ParticipantsUpdate{RoomID: roomID, Participants: participants})
	}
	h.hub.SendToRoom(roomID, EventUserLeft, UserLeft{RoomID: roomID, UserID: c.UserID(), UserName: c.UserName()})

	h.log.Info("user left room", "user_id", c.UserID(), "room_id", roomID)
}

// SendMessage persists a chat message and hands it to the dispatch queue.
func (h *RoomHandlers) SendMessage(ctx context.Context, c Client, req ChatMessageRequest) {
	if req.RoomID == "" || (req.Content == "" && req.FileID == "") {
		h.sendError(c, ErrCodeBadRequest, "room id and content are required")
		return
	}
	if !h.hub.InRoom(c.ID(), req.RoomID) {
		h.sendError(c, ErrCodeNotInRoom, "join the room before sending messages")
		return
	}

	msg := &models.Message{
		RoomID:    req.RoomID,
		SenderID:  c.UserID(),
		Type:      models.MessageTypeChat,
		Content:   req.Content,
		CreatedAt: h.now(),
	}
	if req.FileID != "" {
		fileID := req.FileID
		msg.Type = models.MessageTypeFile
		msg.FileID = &fileID
	}
	if len(req.Metadata) > 0 {
		meta, err := json.Marshal(req.Metadata)
		if err != nil {
			h.sendError(c, ErrCodeBadRequest, "invalid metadata")
			return
		}
		msg.Metadata = string(meta)
	}

	if err := h.store.AppendMessage(ctx, msg); err != nil {
		h.log.Error("failed to persist message", "room_id", req.RoomID, "user_id", c.UserID(), "error", err)
		h.sendError(c, ErrCodeStoreFailed, "failed to save message")
		return
	}

	ev := msg.ToEvent()
	if msg.FileID != nil && ev.File == nil {
		ev.File = &models.FileDescriptor{ID: *msg.FileID}
	}
	if !h.queue.Enqueue(ev) {
		h.sendError(c, ErrCodeQueueFull, "server is busy, message was saved but not delivered")
	}
}

// FetchPreviousMessages replays history older than req.Before from the store.
func (h *RoomHandlers) FetchPreviousMessages(ctx context.Context, c Client, req FetchPreviousRequest) {
	if req.RoomID == "" {
		h.sendError(c, ErrCodeBadRequest, "room id is required")
		return
	}
	if !h.hub.InRoom(c.ID(), req.RoomID) {
		h.sendError(c, ErrCodeNotInRoom, "join the room before loading messages")
		return
	}

	limit := req.Limit
	if limit <= 0 {
		limit = DefaultInitialLoad
	}
	limit = min(limit, MaxPageSize)

	before := h.now()
	if req.Before > 0 {
		before = time.UnixMilli(req.Before)
	}

	msgs, hasMore, err := h.store.FindMessagesBefore(ctx, req.RoomID, before, limit)
	if err != nil {
		h.log.Error("failed to load previous messages", "room_id", req.RoomID, "error", err)
		h.sendError(c, ErrCodeStoreFailed, "failed to load messages")
		return
	}
	h.markRead(ctx, c.UserID(), msgs)
	h.hub.SendToClient(c.ID(), EventPreviousMessagesLoaded, PreviousMessagesLoaded{
		RoomID:   req.RoomID,
		Messages: models.EventsFromMessages(msgs),
		HasMore:  hasMore,
	})
}

// Restore re-subscribes a fresh socket to every room the user belongs to.
func (h *RoomHandlers) Restore(ctx context.Context, c Client) int {
	roomIDs, err := h.store.FindRoomIDsForUser(ctx, c.UserID())
	if err != nil {
		h.log.Warn("failed to restore rooms", "user_id", c.UserID(), "error", err)
		return 0
	}
	restored := 0
	for _, roomID := range roomIDs {
		if h.hub.JoinRoom(c.ID(), roomID) {
			restored++
		}
	}
	if restored > 0 {
		h.log.Debug("restored room membership", "user_id", c.UserID(), "rooms", restored)
	}
	return restored
}

// ParticipantLoader reads the roster of a room from the store.
func (h *RoomHandlers) ParticipantLoader(roomID string) cache.Loader {
	return func(ctx context.Context) ([]models.Participant, error) {
		room, err := h.store.GetRoomByID(ctx, roomID)
		if errors.Is(err, storage.ErrRoomNotFound) {
			return nil, nil
		}
		if err != nil {
			return nil, err
		}
		if len(room.ParticipantIDs) == 0 {
			return nil, nil
		}
		users, err := h.store.FindUsersByIDs(ctx, []string(room.ParticipantIDs))
		if err != nil {
			return nil, err
		}
		out := make([]models.Participant, 0, len(users))
		for i := range users {
			out = append(out, users[i].ToParticipant())
		}
		return out, nil
	}
}

func (h *RoomHandlers) roster(ctx context.Context, roomID string) []models.Participant {
	participants, err := h.participants.GetParticipants(ctx, roomID, h.ParticipantLoader(roomID))
	if err != nil {
		h.log.Error("failed to load participants", "room_id", roomID, "error", err)
		return []models.Participant{}
	}
	if participants == nil {
		return []models.Participant{}
	}
	return participants
}

// initialMessages serves the join page from the recent window when it holds
// a full page, otherwise from the store. A store page is marked read by userID.
func (h *RoomHandlers) initialMessages(ctx context.Context, userID, roomID string, before time.Time) ([]models.ChatEvent, bool) {
	if page, ok := h.recent.GetRecentMessages(ctx, roomID, h.initialLoad); ok && len(page.Messages) >= h.initialLoad {
		return page.Messages, true
	}

	msgs, hasMore, err := h.store.FindMessagesBefore(ctx, roomID, before, h.initialLoad)
	if err != nil {
		h.log.Error("failed to load initial messages", "room_id", roomID, "error", err)
		return []models.ChatEvent{}, false
	}
	h.markRead(ctx, userID, msgs)
	return models.EventsFromMessages(msgs), hasMore
}

// markRead records the loaded page as read. The page itself is returned with
// the readers it was loaded with; a failure is only logged.
func (h *RoomHandlers) markRead(ctx context.Context, userID string, msgs []models.Message) {
	if len(msgs) == 0 {
		return
	}
	ids := make([]string, 0, len(msgs))
	for i := range msgs {
		ids = append(ids, msgs[i].ID)
	}
	if err := h.store.MarkMessagesRead(ctx, userID, ids, h.now()); err != nil {
		h.log.Warn("failed to mark messages read", "user_id", userID, "messages", len(ids), "error", err)
	}
}

// systemMessage persists a server notice. A store failure is logged and
// yields nil: the notice is skipped, the join or leave still happens.
func (h *RoomHandlers) systemMessage(ctx context.Context, roomID, content string, at time.Time) *models.ChatEvent {
	msg := models.NewSystemMessage(roomID, content, at)
	if err := h.store.AppendMessage(ctx, msg); err != nil {
		h.log.Error("failed to save system message", "room_id", roomID, "error", err)
		return nil
	}
	return msg.ToEvent()
}

func (h *RoomHandlers) sendError(c Client, code, message string) {
	h.hub.SendToClient(c.ID(), EventError, ErrorPayload{Code: code, Message: message})
}
