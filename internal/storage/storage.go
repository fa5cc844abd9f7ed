package storage

import (
	"chatgogo/realtime/internal/models"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

var (
	ErrRoomNotFound = errors.New("chat room not found")
	ErrUserNotFound = errors.New("user not found")
)

// Storage is the durable store consumed by the realtime core.
type Storage interface {
	AppendMessage(ctx context.Context, msg *models.Message) error
	// FindMessagesBefore returns up to limit messages older than before,
	// oldest first, and whether older messages exist.
	FindMessagesBefore(ctx context.Context, roomID string, before time.Time, limit int) ([]models.Message, bool, error)
	// MarkMessagesRead records userID as a reader of every message in ids.
	// A message the user has already read keeps its first read time.
	MarkMessagesRead(ctx context.Context, userID string, ids []string, at time.Time) error

	SaveRoom(ctx context.Context, room *models.ChatRoom) error
	GetRoomByID(ctx context.Context, roomID string) (*models.ChatRoom, error)
	FindRoomIDsForUser(ctx context.Context, userID string) ([]string, error)
	AddParticipant(ctx context.Context, roomID, userID string) error
	RemoveParticipant(ctx context.Context, roomID, userID string) error

	SaveUser(ctx context.Context, user *models.User) error
	GetUserByID(ctx context.Context, userID string) (*models.User, error)
	FindUsersByIDs(ctx context.Context, ids []string) ([]models.User, error)
}

type Service struct {
	DB  *gorm.DB
	log *slog.Logger
}

// NewStorageService Constructor
func NewStorageService(db *gorm.DB, log *slog.Logger) *Service {
	if log == nil {
		log = slog.Default()
	}
	return &Service{DB: db, log: log.With("component", "storage")}
}

// AutoMigrate створює таблиці для всіх моделей.
func (s *Service) AutoMigrate() error {
	return s.DB.AutoMigrate(
		&models.User{},
		&models.ChatRoom{},
		&models.File{},
		&models.Message{},
		&models.MessageReader{},
	)
}

// Ping перевіряє з'єднання з PostgreSQL.
func (s *Service) Ping(ctx context.Context) error {
	sqlDB, err := s.DB.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}

func (s *Service) Close() error {
	sqlDB, err := s.DB.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// AppendMessage зберігає повідомлення в PostgreSQL.
func (s *Service) AppendMessage(ctx context.Context, msg *models.Message) error {
	if msg.RoomID == "" {
		return models.ErrMissingRoomID
	}
	if msg.CreatedAt.IsZero() {
		msg.CreatedAt = time.Now()
	}
	// Postgres зберігає мікросекунди, подія несе мілісекунди
	msg.CreatedAt = msg.CreatedAt.Truncate(time.Millisecond)
	if err := s.DB.WithContext(ctx).Create(msg).Error; err != nil {
		return fmt.Errorf("append message to room %s: %w", msg.RoomID, err)
	}
	return nil
}

func (s *Service) FindMessagesBefore(ctx context.Context, roomID string, before time.Time, limit int) ([]models.Message, bool, error) {
	if limit <= 0 {
		return []models.Message{}, false, nil
	}

	var rows []models.Message
	err := s.DB.WithContext(ctx).
		Preload("File").
		Preload("Readers", func(db *gorm.DB) *gorm.DB { return db.Order("read_at") }).
		Where("room_id = ? AND is_deleted = ? AND created_at < ?", roomID, false, before).
		Order("created_at desc").
		Limit(limit + 1).
		Find(&rows).Error
	if err != nil {
		return nil, false, fmt.Errorf("find messages for room %s: %w", roomID, err)
	}

	hasMore := len(rows) > limit
	if hasMore {
		rows = rows[:limit]
	}
	slices.Reverse(rows)
	return rows, hasMore, nil
}

// MarkMessagesRead додає читача одним INSERT ... ON CONFLICT DO NOTHING.
func (s *Service) MarkMessagesRead(ctx context.Context, userID string, ids []string, at time.Time) error {
	if userID == "" || len(ids) == 0 {
		return nil
	}
	rows := make([]models.MessageReader, 0, len(ids))
	for _, id := range ids {
		rows = append(rows, models.MessageReader{MessageID: id, UserID: userID, ReadAt: at.Truncate(time.Millisecond)})
	}
	err := s.DB.WithContext(ctx).
		Clauses(clause.OnConflict{DoNothing: true}).
		Create(&rows).Error
	if err != nil {
		return fmt.Errorf("mark %d messages read by %s: %w", len(ids), userID, err)
	}
	return nil
}

func (s *Service) SaveRoom(ctx context.Context, room *models.ChatRoom) error {
	if room.ParticipantIDs == nil {
		room.ParticipantIDs = []string{}
	}
	return s.DB.WithContext(ctx).Save(room).Error
}

func (s *Service) GetRoomByID(ctx context.Context, roomID string) (*models.ChatRoom, error) {
	var room models.ChatRoom

	err := s.DB.WithContext(ctx).Where("id = ?", roomID).First(&room).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrRoomNotFound
	}
	if err != nil {
		s.log.Error("failed to get room", "room_id", roomID, "error", err)
		return nil, err
	}
	return &room, nil
}

func (s *Service) FindRoomIDsForUser(ctx context.Context, userID string) ([]string, error) {
	var ids []string
	err := s.DB.WithContext(ctx).
		Model(&models.ChatRoom{}).
		Where("? = ANY(participant_ids)", userID).
		Pluck("id", &ids).Error
	if err != nil {
		return nil, fmt.Errorf("find rooms for user %s: %w", userID, err)
	}
	return ids, nil
}

// AddParticipant додає користувача до кімнати одним UPDATE, без read-modify-write.
func (s *Service) AddParticipant(ctx context.Context, roomID, userID string) error {
	res := s.DB.WithContext(ctx).
		Model(&models.ChatRoom{}).
		Where("id = ?", roomID).
		Update("participant_ids", gorm.Expr(
			"CASE WHEN ?::text = ANY(participant_ids) THEN participant_ids ELSE array_append(participant_ids, ?::text) END",
			userID, userID,
		))
	if res.Error != nil {
		return fmt.Errorf("add participant %s to room %s: %w", userID, roomID, res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrRoomNotFound
	}
	return nil
}

func (s *Service) RemoveParticipant(ctx context.Context, roomID, userID string) error {
	res := s.DB.WithContext(ctx).
		Model(&models.ChatRoom{}).
		Where("id = ?", roomID).
		Update("participant_ids", gorm.Expr("array_remove(participant_ids, ?::text)", userID))
	if res.Error != nil {
		return fmt.Errorf("remove participant %s from room %s: %w", userID, roomID, res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrRoomNotFound
	}
	return nil
}

// SaveUser зберігає користувача в PostgreSQL
func (s *Service) SaveUser(ctx context.Context, user *models.User) error {
	return s.DB.WithContext(ctx).Save(user).Error
}

func (s *Service) GetUserByID(ctx context.Context, userID string) (*models.User, error) {
	var user models.User
	err := s.DB.WithContext(ctx).Where("id = ?", userID).First(&user).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrUserNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get user %s: %w", userID, err)
	}
	return &user, nil
}

func (s *Service) FindUsersByIDs(ctx context.Context, ids []string) ([]models.User, error) {
	if len(ids) == 0 {
		return []models.User{}, nil
	}
	var users []models.User
	if err := s.DB.WithContext(ctx).Where("id IN ?", ids).Find(&users).Error; err != nil {
		return nil, fmt.Errorf("find users: %w", err)
	}
	return users, nil
}
