package room

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"sync"

	"github.com/gorilla/websocket"

	"github.com/jamroom/server/internal/repository/room"
)

var (
	ErrNotAMember = errors.New("connection is not a member of the room")
)

type iRoomStateRepo interface {
	AddMember(*room.AddMemberParams) (int, bool)
	RemoveMember(*room.RemoveMemberParams) (int, bool)
	RemoveFromAll(connId string) []room.Removal
	IsMember(roomKey, connId string) bool
	MemberCount(roomKey string) int
	GetMemberConnIds(roomKey string) []string
	GetPlayer(roomKey string) (room.Player, error)
	SetPlaying(*room.SetPlayingParams) room.Player
	UpdatePauseState(*room.UpdatePauseStateParams) error
	UpdatePosition(*room.UpdatePositionParams) error
	ReplacePlayer(*room.ReplacePlayerParams) error
	RemovePlayer(roomKey string)
}

type iConnRepo interface {
	Add(conn *websocket.Conn, connId string) error
	RemoveByConnId(connId string) error
	GetConns(connIds []string) []*websocket.Conn
}

type iDirectoryRepo interface {
	IncrementListeners(ctx context.Context, roomKey string, delta int) (int, error)
	SetListeners(ctx context.Context, roomKey string, listeners int) error
}

// service is the synchronization engine. It owns every mutation of the
// per-room state and computes what the controller must deliver to whom.
type service struct {
	stateRepo iRoomStateRepo
	connRepo  iConnRepo
	directory iDirectoryRepo
	logger    *slog.Logger

	// per-room locks serialize each event's read-modify-broadcast sequence;
	// events for different rooms run fully in parallel.
	locksMu sync.Mutex
	locks   map[string]*roomLock
}

type roomLock struct {
	mu   sync.Mutex
	refs int
}

func NewService(stateRepo iRoomStateRepo, connRepo iConnRepo, directory iDirectoryRepo, logger *slog.Logger) *service {
	return &service{
		stateRepo: stateRepo,
		connRepo:  connRepo,
		directory: directory,
		logger:    logger,
		locks:     make(map[string]*roomLock),
	}
}

// lockRoom acquires the room's event lock. Entries are refcounted and
// dropped once no event holds or awaits them, so idle rooms cost nothing.
func (s *service) lockRoom(roomKey string) func() {
	s.locksMu.Lock()
	lock, ok := s.locks[roomKey]
	if !ok {
		lock = &roomLock{}
		s.locks[roomKey] = lock
	}
	lock.refs++
	s.locksMu.Unlock()

	lock.mu.Lock()
	return func() {
		lock.mu.Unlock()

		s.locksMu.Lock()
		lock.refs--
		if lock.refs == 0 {
			delete(s.locks, roomKey)
		}
		s.locksMu.Unlock()
	}
}

// normalizeRoomKey matches the directory's code normalization so "ab12c"
// and "AB12C" land in the same room.
func normalizeRoomKey(roomKey string) string {
	return strings.ToUpper(strings.TrimSpace(roomKey))
}

func (s *service) getRoomConns(roomKey string) []*websocket.Conn {
	return s.connRepo.GetConns(s.stateRepo.GetMemberConnIds(roomKey))
}

// getRoomConnsExcept returns the conns of every member except the sender.
// The originator of a playback command is the source of truth for its own
// transition and must not receive its own command back.
func (s *service) getRoomConnsExcept(roomKey, connId string) []*websocket.Conn {
	connIds := s.stateRepo.GetMemberConnIds(roomKey)
	filtered := make([]string, 0, len(connIds))
	for _, id := range connIds {
		if id != connId {
			filtered = append(filtered, id)
		}
	}

	return s.connRepo.GetConns(filtered)
}

// mirrorListeners updates the directory's display-only listener counter.
// Failures degrade the room listing, never the room itself.
func (s *service) mirrorListeners(ctx context.Context, roomKey string, delta int) {
	if _, err := s.directory.IncrementListeners(ctx, roomKey, delta); err != nil {
		s.logger.InfoContext(ctx, "failed to update listener counter", "room_key", roomKey, "error", err)
	}
}

func (s *service) resetListeners(ctx context.Context, roomKey string) {
	if err := s.directory.SetListeners(ctx, roomKey, 0); err != nil {
		s.logger.InfoContext(ctx, "failed to reset listener counter", "room_key", roomKey, "error", err)
	}
}
