package redis

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/jamroom/server/internal/repository/directory"
)

const publicRoomsKey = "rooms:public"

type repo struct {
	rc *redis.Client
}

func NewRepo(rc *redis.Client) *repo {
	return &repo{rc: rc}
}

func (r repo) getRoomKey(roomKey string) string {
	return "room:" + roomKey
}

func (r repo) InsertRoom(ctx context.Context, record *directory.RoomRecord) error {
	roomKey := r.getRoomKey(record.RoomKey)

	// SetNX on a guard field keeps concurrent inserts of the same code from
	// both succeeding.
	set, err := r.rc.HSetNX(ctx, roomKey, "room_key", record.RoomKey).Result()
	if err != nil {
		return fmt.Errorf("failed to insert room: %w", err)
	}
	if !set {
		return directory.ErrRoomAlreadyExists
	}

	pipe := r.rc.TxPipeline()
	pipe.HSet(ctx, roomKey, *record)
	if !record.IsPrivate {
		pipe.SAdd(ctx, publicRoomsKey, record.RoomKey)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to insert room: %w", err)
	}

	return nil
}

func (r repo) GetRoom(ctx context.Context, roomKey string) (directory.RoomRecord, error) {
	cmd := r.rc.HGetAll(ctx, r.getRoomKey(roomKey))
	fields, err := cmd.Result()
	if err != nil {
		return directory.RoomRecord{}, fmt.Errorf("failed to get room: %w", err)
	}
	if len(fields) == 0 {
		return directory.RoomRecord{}, directory.ErrRoomNotFound
	}

	var record directory.RoomRecord
	if err := cmd.Scan(&record); err != nil {
		return directory.RoomRecord{}, fmt.Errorf("failed to scan room: %w", err)
	}

	return record, nil
}

func (r repo) ListPublicRooms(ctx context.Context) ([]directory.RoomRecord, error) {
	roomKeys, err := r.rc.SMembers(ctx, publicRoomsKey).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to list public rooms: %w", err)
	}

	records := make([]directory.RoomRecord, 0, len(roomKeys))
	for _, roomKey := range roomKeys {
		record, err := r.GetRoom(ctx, roomKey)
		if err != nil {
			if err == directory.ErrRoomNotFound {
				continue
			}
			return nil, err
		}

		records = append(records, record)
	}

	return records, nil
}

func (r repo) IncrementListeners(ctx context.Context, roomKey string, delta int) (int, error) {
	listeners, err := r.rc.HIncrBy(ctx, r.getRoomKey(roomKey), "listeners", int64(delta)).Result()
	if err != nil {
		return 0, fmt.Errorf("failed to increment listeners: %w", err)
	}

	return int(listeners), nil
}

func (r repo) SetListeners(ctx context.Context, roomKey string, listeners int) error {
	if err := r.rc.HSet(ctx, r.getRoomKey(roomKey), "listeners", listeners).Err(); err != nil {
		return fmt.Errorf("failed to set listeners: %w", err)
	}

	return nil
}
