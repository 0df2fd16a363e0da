package room

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/jamroom/server/internal/repository/connection"
	"github.com/jamroom/server/internal/repository/room"
)

// ConnectMember registers a live connection and mints its connection id.
// The id is never reused; a reconnecting client gets a fresh one.
func (s *service) ConnectMember(ctx context.Context, conn *websocket.Conn) (string, error) {
	connId := uuid.NewString()
	if err := s.connRepo.Add(conn, connId); err != nil {
		return "", fmt.Errorf("failed to register connection: %w", err)
	}

	return connId, nil
}

type JoinRoomParams struct {
	RoomKey  string
	ConnId   string
	Username string
}

type JoinRoomResponse struct {
	Conns         []*websocket.Conn
	Message       string
	ListenerCount int
	// Snapshot is non-nil only when the room already has playback state;
	// it goes to the joiner alone.
	Snapshot *Snapshot
}

func (s *service) JoinRoom(ctx context.Context, params *JoinRoomParams) (JoinRoomResponse, error) {
	params.RoomKey = normalizeRoomKey(params.RoomKey)

	unlock := s.lockRoom(params.RoomKey)
	defer unlock()

	count, added := s.stateRepo.AddMember(&room.AddMemberParams{
		RoomKey:  params.RoomKey,
		ConnId:   params.ConnId,
		Username: params.Username,
	})
	if added {
		s.mirrorListeners(ctx, params.RoomKey, 1)
	}

	var snapshot *Snapshot
	if player, err := s.stateRepo.GetPlayer(params.RoomKey); err == nil {
		snapshot = snapshotFromPlayer(player)
	}

	return JoinRoomResponse{
		Conns:         s.getRoomConns(params.RoomKey),
		Message:       fmt.Sprintf("%s has entered the room. (%d listeners)", params.Username, count),
		ListenerCount: count,
		Snapshot:      snapshot,
	}, nil
}

type LeaveRoomParams struct {
	RoomKey  string
	ConnId   string
	Username string
}

type LeaveRoomResponse struct {
	Conns         []*websocket.Conn
	Message       string
	ListenerCount int
}

func (s *service) LeaveRoom(ctx context.Context, params *LeaveRoomParams) (LeaveRoomResponse, error) {
	params.RoomKey = normalizeRoomKey(params.RoomKey)

	unlock := s.lockRoom(params.RoomKey)
	defer unlock()

	count, removed := s.stateRepo.RemoveMember(&room.RemoveMemberParams{
		RoomKey: params.RoomKey,
		ConnId:  params.ConnId,
	})
	if !removed {
		return LeaveRoomResponse{}, ErrNotAMember
	}

	if count == 0 {
		s.stateRepo.RemovePlayer(params.RoomKey)
		s.resetListeners(ctx, params.RoomKey)
	} else {
		s.mirrorListeners(ctx, params.RoomKey, -1)
	}

	return LeaveRoomResponse{
		Conns:         s.getRoomConns(params.RoomKey),
		Message:       fmt.Sprintf("%s has left the room. (%d listeners)", params.Username, count),
		ListenerCount: count,
	}, nil
}

type DisconnectMemberParams struct {
	ConnId string
}

type RoomUpdate struct {
	Conns         []*websocket.Conn
	Message       string
	ListenerCount int
}

type DisconnectMemberResponse struct {
	Updates []RoomUpdate
}

// DisconnectMember is the recovery path for connections that vanish without
// an explicit leave. It releases membership, clears playback state for rooms
// that emptied, and is idempotent: a second call finds nothing to do.
func (s *service) DisconnectMember(ctx context.Context, params *DisconnectMemberParams) (DisconnectMemberResponse, error) {
	if err := s.connRepo.RemoveByConnId(params.ConnId); err != nil && err != connection.ErrNotFound {
		s.logger.InfoContext(ctx, "failed to remove connection", "error", err)
	}

	removals := s.stateRepo.RemoveFromAll(params.ConnId)

	updates := make([]RoomUpdate, 0, len(removals))
	for _, removal := range removals {
		if removal.ListenerCount == 0 {
			s.stateRepo.RemovePlayer(removal.RoomKey)
			s.resetListeners(ctx, removal.RoomKey)
		} else {
			s.mirrorListeners(ctx, removal.RoomKey, -1)
		}

		updates = append(updates, RoomUpdate{
			Conns:         s.getRoomConns(removal.RoomKey),
			Message:       fmt.Sprintf("%s has left the room. (%d listeners)", removal.Username, removal.ListenerCount),
			ListenerCount: removal.ListenerCount,
		})
	}

	return DisconnectMemberResponse{Updates: updates}, nil
}

type SendChatMessageParams struct {
	RoomKey  string
	ConnId   string
	Username string
	Msg      string
}

type SendChatMessageResponse struct {
	Conns    []*websocket.Conn
	Username string
	Msg      string
}

func (s *service) SendChatMessage(ctx context.Context, params *SendChatMessageParams) (SendChatMessageResponse, error) {
	params.RoomKey = normalizeRoomKey(params.RoomKey)

	if !s.stateRepo.IsMember(params.RoomKey, params.ConnId) {
		return SendChatMessageResponse{}, ErrNotAMember
	}

	return SendChatMessageResponse{
		Conns:    s.getRoomConns(params.RoomKey),
		Username: params.Username,
		Msg:      params.Msg,
	}, nil
}
