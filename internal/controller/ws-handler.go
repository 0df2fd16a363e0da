package controller

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/gorilla/websocket"

	"github.com/jamroom/server/internal/service/room"
	"github.com/jamroom/server/pkg/validator"
	"github.com/jamroom/server/pkg/wsrouter"
)

type Output struct {
	Type    string `json:"type"`
	Payload any    `json:"payload"`
}

func (c *controller) getWSRouter() *wsrouter.WSRouter {
	mux := wsrouter.New()

	mux.Use(c.loggerWSMw())
	mux.OnError(func(ctx context.Context, err error) {
		// Bad events are logged and dropped; the connection keeps serving.
		c.logger.DebugContext(ctx, "websocket event dropped", "error", err)
	})

	// membership
	mux.Handle("join", c.handleJoin)
	mux.Handle("leave", c.handleLeave)

	// chat
	mux.Handle("send_message", c.handleSendMessage)

	// playback
	mux.Handle("play_song", c.handlePlaySong)
	mux.Handle("toggle_play", c.handleTogglePlay)
	mux.Handle("player_seek", c.handlePlayerSeek)
	mux.Handle("sync_request", c.handleSyncRequest)
	mux.Handle("song_update", c.handleSongUpdate)

	return mux
}

// serveWS upgrades the connection, registers it, and serves events until
// the client goes away. Teardown always runs the disconnect cleanup, which
// covers clients that never sent an explicit leave.
func (c controller) serveWS(w http.ResponseWriter, r *http.Request) {
	conn, err := c.upgrader.Upgrade(w, r, nil)
	if err != nil {
		c.logger.WarnContext(r.Context(), "failed to upgrade to websocket", "error", err)
		return
	}
	defer conn.Close()

	connId, err := c.roomService.ConnectMember(r.Context(), conn)
	if err != nil {
		c.logger.WarnContext(r.Context(), "failed to connect member", "error", err)
		return
	}

	ctx := context.WithValue(r.Context(), connIdCtxKey, connId)

	// Deferred so cleanup runs even when a handler panics; otherwise the
	// connection stays a member forever.
	defer c.disconnect(ctx, connId)

	if err := c.wsmux.ServeConn(ctx, conn); err != nil {
		c.logger.InfoContext(ctx, "websocket connection closed", "error", err)
	}
}

func (c controller) disconnect(ctx context.Context, connId string) {
	disconnectResp, err := c.roomService.DisconnectMember(ctx, &room.DisconnectMemberParams{
		ConnId: connId,
	})
	if err != nil {
		c.logger.WarnContext(ctx, "failed to disconnect member", "error", err)
		return
	}

	for _, update := range disconnectResp.Updates {
		c.broadcast(ctx, update.Conns, &Output{
			Type:    "room_message",
			Payload: map[string]any{"msg": update.Message},
		})
	}
}

// decodeInput unmarshals and validates an event payload. Malformed events
// error out here and get dropped by the router's error handler.
func decodeInput[T any](v *validator.Validator, payload json.RawMessage) (T, error) {
	var input T
	if err := json.Unmarshal(payload, &input); err != nil {
		return input, fmt.Errorf("malformed payload: %w", err)
	}

	if errs, ok := v.Validate(&input); !ok {
		return input, fmt.Errorf("invalid payload: %v", errs)
	}

	return input, nil
}

type JoinInput struct {
	RoomKey string `json:"room_key" validate:"required"`
}

func (c controller) handleJoin(ctx context.Context, conn *websocket.Conn, payload json.RawMessage) error {
	input, err := decodeInput[JoinInput](c.validate, payload)
	if err != nil {
		return err
	}

	joinResp, err := c.roomService.JoinRoom(ctx, &room.JoinRoomParams{
		RoomKey:  input.RoomKey,
		ConnId:   c.getConnIdFromCtx(ctx),
		Username: c.getUsernameFromCtx(ctx),
	})
	if err != nil {
		return fmt.Errorf("failed to join room: %w", err)
	}

	c.broadcast(ctx, joinResp.Conns, &Output{
		Type:    "room_message",
		Payload: map[string]any{"msg": joinResp.Message},
	})

	// Late-joiner catch-up goes to the joiner alone.
	if joinResp.Snapshot != nil {
		c.writeToConn(ctx, conn, &Output{
			Type:    "sync_playback",
			Payload: joinResp.Snapshot,
		})
	}

	return nil
}

type LeaveInput struct {
	RoomKey string `json:"room_key" validate:"required"`
}

func (c controller) handleLeave(ctx context.Context, _ *websocket.Conn, payload json.RawMessage) error {
	input, err := decodeInput[LeaveInput](c.validate, payload)
	if err != nil {
		return err
	}

	leaveResp, err := c.roomService.LeaveRoom(ctx, &room.LeaveRoomParams{
		RoomKey:  input.RoomKey,
		ConnId:   c.getConnIdFromCtx(ctx),
		Username: c.getUsernameFromCtx(ctx),
	})
	if err != nil {
		return fmt.Errorf("failed to leave room: %w", err)
	}

	c.broadcast(ctx, leaveResp.Conns, &Output{
		Type:    "room_message",
		Payload: map[string]any{"msg": leaveResp.Message},
	})

	return nil
}

type SendMessageInput struct {
	RoomKey string `json:"room_key" validate:"required"`
	Msg     string `json:"msg" validate:"required"`
}

func (c controller) handleSendMessage(ctx context.Context, _ *websocket.Conn, payload json.RawMessage) error {
	input, err := decodeInput[SendMessageInput](c.validate, payload)
	if err != nil {
		return err
	}

	chatResp, err := c.roomService.SendChatMessage(ctx, &room.SendChatMessageParams{
		RoomKey:  input.RoomKey,
		ConnId:   c.getConnIdFromCtx(ctx),
		Username: c.getUsernameFromCtx(ctx),
		Msg:      input.Msg,
	})
	if err != nil {
		return fmt.Errorf("failed to send message: %w", err)
	}

	c.broadcast(ctx, chatResp.Conns, &Output{
		Type: "new_message",
		Payload: map[string]any{
			"username": chatResp.Username,
			"msg":      chatResp.Msg,
		},
	})

	return nil
}

type SongInput struct {
	URI      string `json:"uri" validate:"required"`
	Title    string `json:"title"`
	Artist   string `json:"artist"`
	Artwork  string `json:"artwork"`
	Album    string `json:"album"`
	Duration int    `json:"duration"`
}

type PlaySongInput struct {
	RoomKey string    `json:"room_key" validate:"required"`
	Song    SongInput `json:"song" validate:"required"`
}

func (c controller) handlePlaySong(ctx context.Context, _ *websocket.Conn, payload json.RawMessage) error {
	input, err := decodeInput[PlaySongInput](c.validate, payload)
	if err != nil {
		return err
	}

	playResp, err := c.roomService.PlayTrack(ctx, &room.PlayTrackParams{
		RoomKey: input.RoomKey,
		ConnId:  c.getConnIdFromCtx(ctx),
		Track: room.Track{
			URI:      input.Song.URI,
			Title:    input.Song.Title,
			Artist:   input.Song.Artist,
			Artwork:  input.Song.Artwork,
			Album:    input.Song.Album,
			Duration: input.Song.Duration,
		},
	})
	if err != nil {
		return fmt.Errorf("failed to play track: %w", err)
	}

	// Conns already excludes the sender.
	c.broadcast(ctx, playResp.Conns, &Output{
		Type: "song_play_sync",
		Payload: map[string]any{
			"song":        playResp.Track,
			"position_ms": playResp.PositionMs,
		},
	})

	return nil
}

type TogglePlayInput struct {
	RoomKey    string `json:"room_key" validate:"required"`
	IsPaused   bool   `json:"is_paused"`
	PositionMs int    `json:"position_ms"`
}

func (c controller) handleTogglePlay(ctx context.Context, _ *websocket.Conn, payload json.RawMessage) error {
	input, err := decodeInput[TogglePlayInput](c.validate, payload)
	if err != nil {
		return err
	}

	toggleResp, err := c.roomService.TogglePlay(ctx, &room.TogglePlayParams{
		RoomKey:    input.RoomKey,
		ConnId:     c.getConnIdFromCtx(ctx),
		IsPaused:   input.IsPaused,
		PositionMs: input.PositionMs,
	})
	if err != nil {
		return fmt.Errorf("failed to toggle play: %w", err)
	}

	c.broadcast(ctx, toggleResp.Conns, &Output{
		Type: "sync_toggle_play",
		Payload: map[string]any{
			"is_paused":   toggleResp.IsPaused,
			"position_ms": toggleResp.PositionMs,
		},
	})

	return nil
}

type PlayerSeekInput struct {
	RoomKey    string `json:"room_key" validate:"required"`
	PositionMs int    `json:"position_ms" validate:"min=0"`
}

func (c controller) handlePlayerSeek(ctx context.Context, _ *websocket.Conn, payload json.RawMessage) error {
	input, err := decodeInput[PlayerSeekInput](c.validate, payload)
	if err != nil {
		return err
	}

	seekResp, err := c.roomService.Seek(ctx, &room.SeekParams{
		RoomKey:    input.RoomKey,
		ConnId:     c.getConnIdFromCtx(ctx),
		PositionMs: input.PositionMs,
	})
	if err != nil {
		return fmt.Errorf("failed to seek: %w", err)
	}

	c.broadcast(ctx, seekResp.Conns, &Output{
		Type: "sync_seek",
		Payload: map[string]any{
			"position_ms": seekResp.PositionMs,
		},
	})

	return nil
}

type SyncRequestInput struct {
	RoomKey string `json:"room_key" validate:"required"`
}

func (c controller) handleSyncRequest(ctx context.Context, conn *websocket.Conn, payload json.RawMessage) error {
	input, err := decodeInput[SyncRequestInput](c.validate, payload)
	if err != nil {
		return err
	}

	syncResp, err := c.roomService.SyncRequest(ctx, &room.SyncRequestParams{
		RoomKey: input.RoomKey,
		ConnId:  c.getConnIdFromCtx(ctx),
	})
	if err != nil {
		return fmt.Errorf("failed to sync: %w", err)
	}

	// A null payload tells the requester nothing is playing.
	var payloadOut any
	if syncResp.Snapshot != nil {
		payloadOut = syncResp.Snapshot
	}
	c.writeToConn(ctx, conn, &Output{
		Type:    "sync_playback",
		Payload: payloadOut,
	})

	return nil
}

type SongUpdateInput struct {
	RoomKey string `json:"room_key" validate:"required"`
	State   struct {
		TrackURI   string    `json:"track_uri" validate:"required"`
		TrackInfo  SongInput `json:"track_info"`
		PositionMs int       `json:"position_ms"`
		IsPaused   bool      `json:"is_paused"`
	} `json:"state" validate:"required"`
}

func (c controller) handleSongUpdate(ctx context.Context, _ *websocket.Conn, payload json.RawMessage) error {
	input, err := decodeInput[SongUpdateInput](c.validate, payload)
	if err != nil {
		return err
	}

	if err := c.roomService.PushPlayerState(ctx, &room.PushPlayerStateParams{
		RoomKey:  input.RoomKey,
		ConnId:   c.getConnIdFromCtx(ctx),
		TrackURI: input.State.TrackURI,
		TrackInfo: room.Track{
			URI:      input.State.TrackURI,
			Title:    input.State.TrackInfo.Title,
			Artist:   input.State.TrackInfo.Artist,
			Artwork:  input.State.TrackInfo.Artwork,
			Album:    input.State.TrackInfo.Album,
			Duration: input.State.TrackInfo.Duration,
		},
		PositionMs: input.State.PositionMs,
		IsPaused:   input.State.IsPaused,
	}); err != nil {
		return fmt.Errorf("failed to push player state: %w", err)
	}

	return nil
}

// broadcast delivers an event to every conn in the list. Sends are
// fire-and-forget: a dead conn is logged and skipped, its cleanup happens
// in its own read loop's teardown.
func (c controller) broadcast(ctx context.Context, conns []*websocket.Conn, out *Output) {
	for _, conn := range conns {
		if err := c.sender.Send(conn, out); err != nil {
			c.logger.DebugContext(ctx, "failed to write to conn", "error", err)
		}
	}
}

func (c controller) writeToConn(ctx context.Context, conn *websocket.Conn, out *Output) {
	if err := c.sender.Send(conn, out); err != nil {
		c.logger.DebugContext(ctx, "failed to write to conn", "error", err)
	}
}
