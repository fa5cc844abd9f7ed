package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"chatgogo/realtime/internal/bus"
	"chatgogo/realtime/internal/cache"
	"chatgogo/realtime/internal/config"
	"chatgogo/realtime/internal/dispatch"
	"chatgogo/realtime/internal/models"
	"chatgogo/realtime/internal/storage"

	"github.com/redis/go-redis/v9"
)

const usage = `Usage: admin <command> [args]

Commands:
  create-room <room_id> <name>     create an empty room
  announce <room_id> <text...>     store a system message and publish it on the bus
  evict-room <room_id>             drop the cached participant roster of a room
  recent <room_id> [limit]         print the cached recent window of a room
  queue-len                        print the backlog of the redis dispatch queue`

var errUsage = errors.New("invalid arguments")

func main() {
	if len(os.Args) < 2 {
		fmt.Println(usage)
		os.Exit(1)
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelWarn}))

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	rdb := redis.NewClient(&redis.Options{Addr: cfg.Redis.Addr, Password: cfg.Redis.Password, DB: cfg.Redis.DB})
	defer rdb.Close()

	command, args := os.Args[1], os.Args[2:]
	switch command {
	case "create-room", "announce":
		db, err := storage.Open(cfg.Database)
		if err != nil {
			log.Fatalf("failed to connect database: %v", err)
		}
		store := storage.NewStorageService(db, logger)
		defer store.Close()

		if command == "create-room" {
			err = createRoom(ctx, store, args)
			break
		}
		b, berr := adminBus(cfg, rdb, logger)
		if berr != nil {
			log.Fatalf("failed to open bus: %v", berr)
		}
		defer b.Close()
		broadcaster := dispatch.NewBusBroadcaster(b, cfg.Realtime.ChannelPrefix, cfg.Realtime.BusSingleChannel, logger)
		err = announce(ctx, store, broadcaster, args)
	case "evict-room":
		err = evictRoom(ctx, cache.NewRedisParticipantCache(rdb, cfg.Realtime.ParticipantCacheTTL, cache.WithLogger(logger)), args)
	case "recent":
		recent := cache.NewRedisRecentCache(rdb, cfg.Realtime.ChannelPrefix,
			cache.RecentConfig{MaxSize: cfg.Realtime.RecentCacheSize, TTL: cfg.Realtime.RecentCacheTTL}, cache.WithLogger(logger))
		err = printRecent(ctx, os.Stdout, recent, args)
	case "queue-len":
		err = queueLen(ctx, os.Stdout, rdb, cfg.Realtime.QueueKey)
	default:
		fmt.Println(usage)
		os.Exit(1)
	}

	if errors.Is(err, errUsage) {
		fmt.Println(usage)
		os.Exit(1)
	}
	if err != nil {
		log.Fatalf("%s failed: %v", command, err)
	}
}

func adminBus(cfg *config.Config, rdb *redis.Client, log *slog.Logger) (bus.Bus, error) {
	if cfg.Realtime.BroadcastMode != config.BroadcastModeBus {
		return nil, errors.New("announce needs CHAT_BROADCAST_MODE=bus so every server receives it")
	}
	if cfg.Realtime.BusDriver == config.BusDriverNATS {
		return bus.DialNATS(cfg.NATS.URL, log)
	}
	return bus.NewRedisBus(rdb, log), nil
}

func createRoom(ctx context.Context, s storage.Storage, args []string) error {
	if len(args) < 2 {
		return errUsage
	}
	room := &models.ChatRoom{ID: args[0], Name: strings.Join(args[1:], " ")}
	if err := s.SaveRoom(ctx, room); err != nil {
		return err
	}
	fmt.Printf("Room %s has been created.\n", room.ID)
	return nil
}

// announce persists a system message and broadcasts it to every process.
func announce(ctx context.Context, s storage.Storage, b dispatch.Broadcaster, args []string) error {
	if len(args) < 2 {
		return errUsage
	}
	roomID := args[0]
	if _, err := s.GetRoomByID(ctx, roomID); err != nil {
		return err
	}
	msg := models.NewSystemMessage(roomID, strings.Join(args[1:], " "), time.Now())
	if err := s.AppendMessage(ctx, msg); err != nil {
		return err
	}
	return b.Broadcast(ctx, msg.ToEvent())
}

func evictRoom(ctx context.Context, c cache.ParticipantCache, args []string) error {
	if len(args) != 1 {
		return errUsage
	}
	c.Evict(ctx, args[0])
	fmt.Printf("Participant cache of room %s has been evicted.\n", args[0])
	return nil
}

func printRecent(ctx context.Context, w io.Writer, c cache.RecentMessageCache, args []string) error {
	if len(args) < 1 || len(args) > 2 {
		return errUsage
	}
	limit := cache.DefaultRecentSize
	if len(args) == 2 {
		n, err := strconv.Atoi(args[1])
		if err != nil || n <= 0 {
			return errUsage
		}
		limit = n
	}
	page, ok := c.GetRecentMessages(ctx, args[0], limit)
	if !ok {
		_, err := fmt.Fprintf(w, "No cached messages for room %s.\n", args[0])
		return err
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(page)
}

func queueLen(ctx context.Context, w io.Writer, rdb *redis.Client, key string) error {
	n, err := rdb.LLen(ctx, key).Result()
	if err != nil {
		return err
	}
	_, err = fmt.Fprintf(w, "%s: %d\n", key, n)
	return err
}
