package room

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/gorilla/websocket"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	connectioninmemory "github.com/jamroom/server/internal/repository/connection/inmemory"
	directoryredis "github.com/jamroom/server/internal/repository/directory/redis"
	roomrepo "github.com/jamroom/server/internal/repository/room"
	roominmemory "github.com/jamroom/server/internal/repository/room/inmemory"
)

func newTestService(t *testing.T) (*service, *miniredis.Miniredis) {
	t.Helper()

	s := miniredis.RunT(t)
	rc := redis.NewClient(&redis.Options{Addr: s.Addr()})
	t.Cleanup(func() { rc.Close() })

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	return NewService(roominmemory.NewRepo(), connectioninmemory.NewRepo(), directoryredis.NewRepo(rc), logger), s
}

func connect(t *testing.T, svc *service) (string, *websocket.Conn) {
	t.Helper()

	conn := &websocket.Conn{}
	connId, err := svc.ConnectMember(context.Background(), conn)
	require.NoError(t, err)

	return connId, conn
}

func TestListeningSession(t *testing.T) {
	svc, s := newTestService(t)
	ctx := context.Background()

	aliceId, aliceConn := connect(t, svc)
	bobId, bobConn := connect(t, svc)

	joinResp, err := svc.JoinRoom(ctx, &JoinRoomParams{RoomKey: "ABCDE", ConnId: aliceId, Username: "alice"})
	require.NoError(t, err)
	assert.Equal(t, 1, joinResp.ListenerCount)
	assert.Equal(t, "alice has entered the room. (1 listeners)", joinResp.Message)
	assert.Nil(t, joinResp.Snapshot, "first joiner must not get a snapshot")
	assert.Len(t, joinResp.Conns, 1)

	playResp, err := svc.PlayTrack(ctx, &PlayTrackParams{
		RoomKey: "ABCDE",
		ConnId:  aliceId,
		Track:   Track{URI: "spotify:track:1", Title: "Song One", Artist: "Some Artist"},
	})
	require.NoError(t, err)
	assert.Empty(t, playResp.Conns, "alone in the room, nobody else to notify")
	assert.Equal(t, 0, playResp.PositionMs)

	joinResp, err = svc.JoinRoom(ctx, &JoinRoomParams{RoomKey: "ABCDE", ConnId: bobId, Username: "bob"})
	require.NoError(t, err)
	assert.Equal(t, 2, joinResp.ListenerCount)
	assert.Equal(t, "bob has entered the room. (2 listeners)", joinResp.Message)
	require.NotNil(t, joinResp.Snapshot, "late joiner must get the playback snapshot")
	assert.Equal(t, "spotify:track:1", joinResp.Snapshot.TrackURI)
	assert.False(t, joinResp.Snapshot.IsPaused)
	assert.Len(t, joinResp.Conns, 2)

	assert.Equal(t, "2", s.HGet("room:ABCDE", "listeners"))

	seekResp, err := svc.Seek(ctx, &SeekParams{RoomKey: "ABCDE", ConnId: bobId, PositionMs: 42000})
	require.NoError(t, err)
	require.Len(t, seekResp.Conns, 1, "seek must go to everyone but the seeker")
	assert.Same(t, aliceConn, seekResp.Conns[0])

	disconnectResp, err := svc.DisconnectMember(ctx, &DisconnectMemberParams{ConnId: aliceId})
	require.NoError(t, err)
	require.Len(t, disconnectResp.Updates, 1)
	assert.Equal(t, "alice has left the room. (1 listeners)", disconnectResp.Updates[0].Message)
	assert.Equal(t, 1, disconnectResp.Updates[0].ListenerCount)
	require.Len(t, disconnectResp.Updates[0].Conns, 1)
	assert.Same(t, bobConn, disconnectResp.Updates[0].Conns[0])

	leaveResp, err := svc.LeaveRoom(ctx, &LeaveRoomParams{RoomKey: "ABCDE", ConnId: bobId, Username: "bob"})
	require.NoError(t, err)
	assert.Equal(t, 0, leaveResp.ListenerCount)
	assert.Equal(t, "bob has left the room. (0 listeners)", leaveResp.Message)
	assert.Empty(t, leaveResp.Conns)

	assert.Equal(t, "0", s.HGet("room:ABCDE", "listeners"))

	// A fresh occupant of the same room must not inherit the old playback.
	carolId, _ := connect(t, svc)
	joinResp, err = svc.JoinRoom(ctx, &JoinRoomParams{RoomKey: "ABCDE", ConnId: carolId, Username: "carol"})
	require.NoError(t, err)
	assert.Equal(t, 1, joinResp.ListenerCount)
	assert.Nil(t, joinResp.Snapshot)
}

func TestPlaybackBroadcastsExcludeSender(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	aliceId, aliceConn := connect(t, svc)
	bobId, bobConn := connect(t, svc)

	_, err := svc.JoinRoom(ctx, &JoinRoomParams{RoomKey: "QWERT", ConnId: aliceId, Username: "alice"})
	require.NoError(t, err)
	_, err = svc.JoinRoom(ctx, &JoinRoomParams{RoomKey: "QWERT", ConnId: bobId, Username: "bob"})
	require.NoError(t, err)

	playResp, err := svc.PlayTrack(ctx, &PlayTrackParams{
		RoomKey: "QWERT",
		ConnId:  aliceId,
		Track:   Track{URI: "spotify:track:2"},
	})
	require.NoError(t, err)
	require.Len(t, playResp.Conns, 1)
	assert.Same(t, bobConn, playResp.Conns[0])

	toggleResp, err := svc.TogglePlay(ctx, &TogglePlayParams{RoomKey: "QWERT", ConnId: bobId, IsPaused: true, PositionMs: 1500})
	require.NoError(t, err)
	require.Len(t, toggleResp.Conns, 1)
	assert.Same(t, aliceConn, toggleResp.Conns[0])
	assert.True(t, toggleResp.IsPaused)
	assert.Equal(t, 1500, toggleResp.PositionMs)

	seekResp, err := svc.Seek(ctx, &SeekParams{RoomKey: "QWERT", ConnId: aliceId, PositionMs: 9000})
	require.NoError(t, err)
	require.Len(t, seekResp.Conns, 1)
	assert.Same(t, bobConn, seekResp.Conns[0])
}

func TestSyncRequest(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	aliceId, _ := connect(t, svc)
	_, err := svc.JoinRoom(ctx, &JoinRoomParams{RoomKey: "SYNCA", ConnId: aliceId, Username: "alice"})
	require.NoError(t, err)

	syncResp, err := svc.SyncRequest(ctx, &SyncRequestParams{RoomKey: "SYNCA", ConnId: aliceId})
	require.NoError(t, err)
	assert.Nil(t, syncResp.Snapshot, "nothing playing yet")

	_, err = svc.PlayTrack(ctx, &PlayTrackParams{RoomKey: "SYNCA", ConnId: aliceId, Track: Track{URI: "spotify:track:3"}})
	require.NoError(t, err)
	_, err = svc.TogglePlay(ctx, &TogglePlayParams{RoomKey: "SYNCA", ConnId: aliceId, IsPaused: true, PositionMs: 30000})
	require.NoError(t, err)

	syncResp, err = svc.SyncRequest(ctx, &SyncRequestParams{RoomKey: "SYNCA", ConnId: aliceId})
	require.NoError(t, err)
	require.NotNil(t, syncResp.Snapshot)
	assert.Equal(t, "spotify:track:3", syncResp.Snapshot.TrackURI)
	assert.True(t, syncResp.Snapshot.IsPaused)
	assert.Equal(t, 30000, syncResp.Snapshot.PositionMs)

	// Non-members get nothing.
	strangerId, _ := connect(t, svc)
	_, err = svc.SyncRequest(ctx, &SyncRequestParams{RoomKey: "SYNCA", ConnId: strangerId})
	assert.ErrorIs(t, err, ErrNotAMember)
}

func TestPushPlayerStateDoesNotResurrectClearedState(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	aliceId, _ := connect(t, svc)
	_, err := svc.JoinRoom(ctx, &JoinRoomParams{RoomKey: "GHOST", ConnId: aliceId, Username: "alice"})
	require.NoError(t, err)

	// No playback state exists; the push must be a silent no-op.
	err = svc.PushPlayerState(ctx, &PushPlayerStateParams{
		RoomKey:    "GHOST",
		ConnId:     aliceId,
		TrackURI:   "spotify:track:stale",
		PositionMs: 5000,
	})
	require.NoError(t, err)

	syncResp, err := svc.SyncRequest(ctx, &SyncRequestParams{RoomKey: "GHOST", ConnId: aliceId})
	require.NoError(t, err)
	assert.Nil(t, syncResp.Snapshot)

	// With live state the push replaces it wholesale.
	_, err = svc.PlayTrack(ctx, &PlayTrackParams{RoomKey: "GHOST", ConnId: aliceId, Track: Track{URI: "spotify:track:4"}})
	require.NoError(t, err)
	err = svc.PushPlayerState(ctx, &PushPlayerStateParams{
		RoomKey:    "GHOST",
		ConnId:     aliceId,
		TrackURI:   "spotify:track:5",
		TrackInfo:  Track{Title: "Song Five"},
		PositionMs: 12000,
		IsPaused:   true,
	})
	require.NoError(t, err)

	syncResp, err = svc.SyncRequest(ctx, &SyncRequestParams{RoomKey: "GHOST", ConnId: aliceId})
	require.NoError(t, err)
	require.NotNil(t, syncResp.Snapshot)
	assert.Equal(t, "spotify:track:5", syncResp.Snapshot.TrackURI)
	assert.Equal(t, 12000, syncResp.Snapshot.PositionMs)
	assert.True(t, syncResp.Snapshot.IsPaused)
}

func TestRoomKeyNormalization(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	aliceId, _ := connect(t, svc)
	bobId, _ := connect(t, svc)

	joinResp, err := svc.JoinRoom(ctx, &JoinRoomParams{RoomKey: "  ab12c ", ConnId: aliceId, Username: "alice"})
	require.NoError(t, err)
	assert.Equal(t, 1, joinResp.ListenerCount)

	joinResp, err = svc.JoinRoom(ctx, &JoinRoomParams{RoomKey: "AB12C", ConnId: bobId, Username: "bob"})
	require.NoError(t, err)
	assert.Equal(t, 2, joinResp.ListenerCount, "case variants must land in the same room")

	_, err = svc.Seek(ctx, &SeekParams{RoomKey: "ab12c", ConnId: aliceId, PositionMs: 1000})
	require.NoError(t, err)
}

func TestConcurrentEventsSerializePerRoom(t *testing.T) {
	s := miniredis.RunT(t)
	rc := redis.NewClient(&redis.Options{Addr: s.Addr()})
	t.Cleanup(func() { rc.Close() })

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	stateRepo := roominmemory.NewRepo()
	svc := NewService(stateRepo, connectioninmemory.NewRepo(), directoryredis.NewRepo(rc), logger)

	ctx := context.Background()
	const members = 16

	connIds := make([]string, members)
	for i := range connIds {
		connIds[i], _ = connect(t, svc)
	}

	var wg sync.WaitGroup
	joinCounts := make([]int, members)
	for i := range members {
		wg.Add(1)
		go func() {
			defer wg.Done()

			resp, err := svc.JoinRoom(ctx, &JoinRoomParams{
				RoomKey:  "RACED",
				ConnId:   connIds[i],
				Username: fmt.Sprintf("user%d", i),
			})
			assert.NoError(t, err)
			joinCounts[i] = resp.ListenerCount
		}()
	}
	wg.Wait()

	// Each join must observe a distinct post-mutation count.
	want := make([]int, members)
	for i := range want {
		want[i] = i + 1
	}
	assert.ElementsMatch(t, want, joinCounts)
	assert.Equal(t, members, stateRepo.MemberCount("RACED"))

	_, err := svc.PlayTrack(ctx, &PlayTrackParams{RoomKey: "RACED", ConnId: connIds[0], Track: Track{URI: "spotify:track:r"}})
	require.NoError(t, err)

	for i := range members {
		wg.Add(1)
		go func() {
			defer wg.Done()

			if i%2 == 0 {
				_, err := svc.Seek(ctx, &SeekParams{RoomKey: "RACED", ConnId: connIds[i], PositionMs: 1000 * i})
				assert.NoError(t, err)
			} else {
				_, err := svc.TogglePlay(ctx, &TogglePlayParams{RoomKey: "RACED", ConnId: connIds[i], IsPaused: true, PositionMs: 1000 * i})
				assert.NoError(t, err)
			}
		}()
	}
	wg.Wait()

	syncResp, err := svc.SyncRequest(ctx, &SyncRequestParams{RoomKey: "RACED", ConnId: connIds[0]})
	require.NoError(t, err)
	require.NotNil(t, syncResp.Snapshot)

	leaveCounts := make([]int, members)
	for i := range members {
		wg.Add(1)
		go func() {
			defer wg.Done()

			resp, err := svc.LeaveRoom(ctx, &LeaveRoomParams{
				RoomKey:  "RACED",
				ConnId:   connIds[i],
				Username: fmt.Sprintf("user%d", i),
			})
			assert.NoError(t, err)
			leaveCounts[i] = resp.ListenerCount
		}()
	}
	wg.Wait()

	for i := range want {
		want[i] = i
	}
	assert.ElementsMatch(t, want, leaveCounts)
	assert.Equal(t, 0, stateRepo.MemberCount("RACED"))

	_, err = stateRepo.GetPlayer("RACED")
	assert.ErrorIs(t, err, roomrepo.ErrPlayerNotFound)

	svc.locksMu.Lock()
	assert.Empty(t, svc.locks, "idle rooms must not retain lock entries")
	svc.locksMu.Unlock()
}

func TestDisconnectIsIdempotent(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	aliceId, _ := connect(t, svc)
	_, err := svc.JoinRoom(ctx, &JoinRoomParams{RoomKey: "TWICE", ConnId: aliceId, Username: "alice"})
	require.NoError(t, err)

	first, err := svc.DisconnectMember(ctx, &DisconnectMemberParams{ConnId: aliceId})
	require.NoError(t, err)
	assert.Len(t, first.Updates, 1)

	second, err := svc.DisconnectMember(ctx, &DisconnectMemberParams{ConnId: aliceId})
	require.NoError(t, err)
	assert.Empty(t, second.Updates)
}

func TestChatRequiresMembership(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	aliceId, _ := connect(t, svc)
	bobId, _ := connect(t, svc)

	_, err := svc.JoinRoom(ctx, &JoinRoomParams{RoomKey: "CHATR", ConnId: aliceId, Username: "alice"})
	require.NoError(t, err)
	_, err = svc.JoinRoom(ctx, &JoinRoomParams{RoomKey: "CHATR", ConnId: bobId, Username: "bob"})
	require.NoError(t, err)

	chatResp, err := svc.SendChatMessage(ctx, &SendChatMessageParams{RoomKey: "CHATR", ConnId: aliceId, Username: "alice", Msg: "hi"})
	require.NoError(t, err)
	assert.Equal(t, "alice", chatResp.Username)
	assert.Equal(t, "hi", chatResp.Msg)
	assert.Len(t, chatResp.Conns, 2, "chat goes to the whole room, sender included")

	strangerId, _ := connect(t, svc)
	_, err = svc.SendChatMessage(ctx, &SendChatMessageParams{RoomKey: "CHATR", ConnId: strangerId, Username: "mallory", Msg: "hi"})
	assert.ErrorIs(t, err, ErrNotAMember)

	_, err = svc.LeaveRoom(ctx, &LeaveRoomParams{RoomKey: "CHATR", ConnId: strangerId, Username: "mallory"})
	assert.ErrorIs(t, err, ErrNotAMember)
}
