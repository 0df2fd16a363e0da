package directory

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/jamroom/server/internal/repository/directory"
	"github.com/jamroom/server/pkg/randstr"
)

var (
	ErrRoomNotFound = errors.New("room not found")
)

const (
	roomKeyLength   = 5
	maxKeyAttempts  = 10
	roomKeyAlphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"
)

type iDirectoryRepo interface {
	InsertRoom(ctx context.Context, record *directory.RoomRecord) error
	GetRoom(ctx context.Context, roomKey string) (directory.RoomRecord, error)
	ListPublicRooms(ctx context.Context) ([]directory.RoomRecord, error)
}

type iGenerator interface {
	GenerateRandomString(length int) string
}

type Room struct {
	RoomKey   string `json:"room_key"`
	Name      string `json:"name"`
	Creator   string `json:"creator"`
	IsPrivate bool   `json:"is_private"`
	Listeners int    `json:"listeners"`
	CreatedAt int64  `json:"created_at"`
}

type service struct {
	directoryRepo iDirectoryRepo
	generator     iGenerator
	logger        *slog.Logger
}

func NewService(directoryRepo iDirectoryRepo, logger *slog.Logger) *service {
	return &service{
		directoryRepo: directoryRepo,
		generator:     randstr.New([]byte(roomKeyAlphabet)),
		logger:        logger,
	}
}

type CreateRoomParams struct {
	Name      string
	Creator   string
	IsPrivate bool
}

// CreateRoom generates a fresh room code and inserts the record. Codes are
// unique across public and private rooms alike; the repo's insert guard
// catches a concurrent grab of the same code.
func (s *service) CreateRoom(ctx context.Context, params *CreateRoomParams) (Room, error) {
	for range maxKeyAttempts {
		roomKey := s.generator.GenerateRandomString(roomKeyLength)

		record := directory.RoomRecord{
			RoomKey:   roomKey,
			Name:      params.Name,
			Creator:   params.Creator,
			IsPrivate: params.IsPrivate,
			Listeners: 0,
			CreatedAt: time.Now().Unix(),
		}
		if err := s.directoryRepo.InsertRoom(ctx, &record); err != nil {
			if err == directory.ErrRoomAlreadyExists {
				continue
			}
			return Room{}, fmt.Errorf("failed to create room: %w", err)
		}

		return roomFromRecord(record), nil
	}

	return Room{}, errors.New("failed to generate unique room key")
}

// FindByCode normalizes the code the way the original join form did and
// looks it up across both visibility namespaces.
func (s *service) FindByCode(ctx context.Context, roomKey string) (Room, error) {
	record, err := s.directoryRepo.GetRoom(ctx, strings.ToUpper(strings.TrimSpace(roomKey)))
	if err != nil {
		if err == directory.ErrRoomNotFound {
			return Room{}, ErrRoomNotFound
		}
		return Room{}, fmt.Errorf("failed to find room: %w", err)
	}

	return roomFromRecord(record), nil
}

func (s *service) ListPublicRooms(ctx context.Context) ([]Room, error) {
	records, err := s.directoryRepo.ListPublicRooms(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list public rooms: %w", err)
	}

	rooms := make([]Room, 0, len(records))
	for _, record := range records {
		rooms = append(rooms, roomFromRecord(record))
	}

	return rooms, nil
}

func roomFromRecord(record directory.RoomRecord) Room {
	return Room{
		RoomKey:   record.RoomKey,
		Name:      record.Name,
		Creator:   record.Creator,
		IsPrivate: record.IsPrivate,
		Listeners: record.Listeners,
		CreatedAt: record.CreatedAt,
	}
}
