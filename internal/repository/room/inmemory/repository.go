package inmemory

import (
	"sync"

	"golang.org/x/exp/maps"

	"github.com/jamroom/server/internal/repository/room"
)

// repo holds the authoritative per-room state: the membership set and the
// playback state. Both live in process memory by design; the room directory
// keeps only an eventually-consistent listener-count mirror.
type repo struct {
	members map[string]map[string]string // room key -> conn id -> username
	players map[string]*room.Player
	mu      sync.RWMutex
}

func NewRepo() *repo {
	return &repo{
		members: make(map[string]map[string]string),
		players: make(map[string]*room.Player),
	}
}

// AddMember adds the connection to the room's membership set and returns the
// resulting listener count. Re-adding a present connection is a no-op on the
// set; added reports whether the set actually grew.
func (r *repo) AddMember(params *room.AddMemberParams) (int, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	members, ok := r.members[params.RoomKey]
	if !ok {
		members = make(map[string]string)
		r.members[params.RoomKey] = members
	}

	_, present := members[params.ConnId]
	members[params.ConnId] = params.Username

	return len(members), !present
}

// RemoveMember removes the connection from the room's membership set. It is
// idempotent; removed reports whether the set actually shrank.
func (r *repo) RemoveMember(params *room.RemoveMemberParams) (int, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	return r.removeMemberLocked(params.RoomKey, params.ConnId)
}

func (r *repo) removeMemberLocked(roomKey, connId string) (int, bool) {
	members, ok := r.members[roomKey]
	if !ok {
		return 0, false
	}

	if _, present := members[connId]; !present {
		return len(members), false
	}

	delete(members, connId)
	if len(members) == 0 {
		delete(r.members, roomKey)
		return 0, true
	}

	return len(members), true
}

// RemoveFromAll evicts the connection from every room it belongs to (at most
// one in this design) without an explicit leave. Calling it again for the
// same connection is a no-op.
func (r *repo) RemoveFromAll(connId string) []room.Removal {
	r.mu.Lock()
	defer r.mu.Unlock()

	var removals []room.Removal
	for _, roomKey := range maps.Keys(r.members) {
		username, present := r.members[roomKey][connId]
		if !present {
			continue
		}

		count, _ := r.removeMemberLocked(roomKey, connId)
		removals = append(removals, room.Removal{
			RoomKey:       roomKey,
			Username:      username,
			ListenerCount: count,
		})
	}

	return removals
}

func (r *repo) IsMember(roomKey, connId string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()

	_, present := r.members[roomKey][connId]

	return present
}

func (r *repo) GetMemberConnIds(roomKey string) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return maps.Keys(r.members[roomKey])
}

func (r *repo) MemberCount(roomKey string) int {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return len(r.members[roomKey])
}

func (r *repo) GetPlayer(roomKey string) (room.Player, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	player, ok := r.players[roomKey]
	if !ok {
		return room.Player{}, room.ErrPlayerNotFound
	}

	return *player, nil
}

// SetPlaying overwrites any existing playback state with a freshly selected
// track: position zero, not paused. Selecting a track always restarts it.
func (r *repo) SetPlaying(params *room.SetPlayingParams) room.Player {
	r.mu.Lock()
	defer r.mu.Unlock()

	player := room.Player{
		Track:      params.Track,
		PositionMs: 0,
		IsPaused:   false,
		UpdatedAt:  params.UpdatedAt,
	}
	r.players[params.RoomKey] = &player

	return player
}

func (r *repo) UpdatePauseState(params *room.UpdatePauseStateParams) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	player, ok := r.players[params.RoomKey]
	if !ok {
		return room.ErrPlayerNotFound
	}

	player.IsPaused = params.IsPaused
	player.PositionMs = params.PositionMs
	player.UpdatedAt = params.UpdatedAt

	return nil
}

func (r *repo) UpdatePosition(params *room.UpdatePositionParams) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	player, ok := r.players[params.RoomKey]
	if !ok {
		return room.ErrPlayerNotFound
	}

	player.PositionMs = params.PositionMs
	player.UpdatedAt = params.UpdatedAt

	return nil
}

// ReplacePlayer applies a full externally-supplied state. It refuses to
// resurrect a room whose state was already cleared.
func (r *repo) ReplacePlayer(params *room.ReplacePlayerParams) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.players[params.RoomKey]; !ok {
		return room.ErrPlayerNotFound
	}

	player := params.Player
	r.players[params.RoomKey] = &player

	return nil
}

// RemovePlayer drops the room's playback state. Called when the last
// listener leaves so the next occupant never sees stale playback.
func (r *repo) RemovePlayer(roomKey string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	delete(r.players, roomKey)
}
