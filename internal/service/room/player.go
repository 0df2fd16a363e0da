package room

import (
	"context"
	"time"

	"github.com/gorilla/websocket"

	"github.com/jamroom/server/internal/repository/room"
)

type PlayTrackParams struct {
	RoomKey string
	ConnId  string
	Track   Track
}

type PlayTrackResponse struct {
	// Conns excludes the sender: it already plays the track locally and
	// re-applying its own command would restart its audio.
	Conns      []*websocket.Conn
	Track      Track
	PositionMs int
}

// PlayTrack models "new track selected": position always restarts at zero,
// even when the same track was already playing.
func (s *service) PlayTrack(ctx context.Context, params *PlayTrackParams) (PlayTrackResponse, error) {
	params.RoomKey = normalizeRoomKey(params.RoomKey)

	unlock := s.lockRoom(params.RoomKey)
	defer unlock()

	if !s.stateRepo.IsMember(params.RoomKey, params.ConnId) {
		return PlayTrackResponse{}, ErrNotAMember
	}

	s.stateRepo.SetPlaying(&room.SetPlayingParams{
		RoomKey:   params.RoomKey,
		Track:     trackToRepo(params.Track),
		UpdatedAt: time.Now().UnixMilli(),
	})

	return PlayTrackResponse{
		Conns:      s.getRoomConnsExcept(params.RoomKey, params.ConnId),
		Track:      params.Track,
		PositionMs: 0,
	}, nil
}

type TogglePlayParams struct {
	RoomKey    string
	ConnId     string
	IsPaused   bool
	PositionMs int
}

type TogglePlayResponse struct {
	Conns      []*websocket.Conn
	IsPaused   bool
	PositionMs int
}

func (s *service) TogglePlay(ctx context.Context, params *TogglePlayParams) (TogglePlayResponse, error) {
	params.RoomKey = normalizeRoomKey(params.RoomKey)

	unlock := s.lockRoom(params.RoomKey)
	defer unlock()

	if !s.stateRepo.IsMember(params.RoomKey, params.ConnId) {
		return TogglePlayResponse{}, ErrNotAMember
	}

	// With no state there is nothing to pause; the broadcast still goes
	// out so other clients follow the originator's UI.
	if err := s.stateRepo.UpdatePauseState(&room.UpdatePauseStateParams{
		RoomKey:    params.RoomKey,
		IsPaused:   params.IsPaused,
		PositionMs: params.PositionMs,
		UpdatedAt:  time.Now().UnixMilli(),
	}); err != nil && err != room.ErrPlayerNotFound {
		return TogglePlayResponse{}, err
	}

	return TogglePlayResponse{
		Conns:      s.getRoomConnsExcept(params.RoomKey, params.ConnId),
		IsPaused:   params.IsPaused,
		PositionMs: params.PositionMs,
	}, nil
}

type SeekParams struct {
	RoomKey    string
	ConnId     string
	PositionMs int
}

type SeekResponse struct {
	Conns      []*websocket.Conn
	PositionMs int
}

func (s *service) Seek(ctx context.Context, params *SeekParams) (SeekResponse, error) {
	params.RoomKey = normalizeRoomKey(params.RoomKey)

	unlock := s.lockRoom(params.RoomKey)
	defer unlock()

	if !s.stateRepo.IsMember(params.RoomKey, params.ConnId) {
		return SeekResponse{}, ErrNotAMember
	}

	if err := s.stateRepo.UpdatePosition(&room.UpdatePositionParams{
		RoomKey:    params.RoomKey,
		PositionMs: params.PositionMs,
		UpdatedAt:  time.Now().UnixMilli(),
	}); err != nil && err != room.ErrPlayerNotFound {
		return SeekResponse{}, err
	}

	return SeekResponse{
		Conns:      s.getRoomConnsExcept(params.RoomKey, params.ConnId),
		PositionMs: params.PositionMs,
	}, nil
}

type SyncRequestParams struct {
	RoomKey string
	ConnId  string
}

type SyncRequestResponse struct {
	// Snapshot is nil when the room has no playback state; the requester
	// still gets a sync_playback event with a null payload.
	Snapshot *Snapshot
}

func (s *service) SyncRequest(ctx context.Context, params *SyncRequestParams) (SyncRequestResponse, error) {
	params.RoomKey = normalizeRoomKey(params.RoomKey)

	if !s.stateRepo.IsMember(params.RoomKey, params.ConnId) {
		return SyncRequestResponse{}, ErrNotAMember
	}

	player, err := s.stateRepo.GetPlayer(params.RoomKey)
	if err != nil {
		return SyncRequestResponse{}, nil
	}

	return SyncRequestResponse{Snapshot: snapshotFromPlayer(player)}, nil
}

type PushPlayerStateParams struct {
	RoomKey    string
	ConnId     string
	TrackURI   string
	TrackInfo  Track
	PositionMs int
	IsPaused   bool
}

// PushPlayerState applies a full state correction from the playing client.
// It never resurrects a cleared room: the push is dropped unless the room
// still has members and existing playback state.
func (s *service) PushPlayerState(ctx context.Context, params *PushPlayerStateParams) error {
	params.RoomKey = normalizeRoomKey(params.RoomKey)

	unlock := s.lockRoom(params.RoomKey)
	defer unlock()

	if !s.stateRepo.IsMember(params.RoomKey, params.ConnId) {
		return ErrNotAMember
	}

	track := trackToRepo(params.TrackInfo)
	track.URI = params.TrackURI

	if err := s.stateRepo.ReplacePlayer(&room.ReplacePlayerParams{
		RoomKey: params.RoomKey,
		Player: room.Player{
			Track:      track,
			PositionMs: params.PositionMs,
			IsPaused:   params.IsPaused,
			UpdatedAt:  time.Now().UnixMilli(),
		},
	}); err != nil && err != room.ErrPlayerNotFound {
		return err
	}

	return nil
}
