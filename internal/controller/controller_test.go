package controller

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/gorilla/websocket"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	connectioninmemory "github.com/jamroom/server/internal/repository/connection/inmemory"
	directoryredis "github.com/jamroom/server/internal/repository/directory/redis"
	roominmemory "github.com/jamroom/server/internal/repository/room/inmemory"
	tokenredis "github.com/jamroom/server/internal/repository/token/redis"
	usersqlite "github.com/jamroom/server/internal/repository/user/sqlite"
	"github.com/jamroom/server/internal/service/auth"
	"github.com/jamroom/server/internal/service/catalog"
	"github.com/jamroom/server/internal/service/directory"
	"github.com/jamroom/server/internal/service/room"
)

func newTestServer(t *testing.T) *httptest.Server {
	t.Helper()

	s := miniredis.RunT(t)
	rc := redis.NewClient(&redis.Options{Addr: s.Addr()})
	t.Cleanup(func() { rc.Close() })

	userRepo, err := usersqlite.NewRepo(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { userRepo.Close() })

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	roomService := room.NewService(roominmemory.NewRepo(), connectioninmemory.NewRepo(), directoryredis.NewRepo(rc), logger)
	directoryService := directory.NewService(directoryredis.NewRepo(rc), logger)
	authService := auth.NewService(userRepo, "test-secret", time.Hour)
	catalogService := catalog.NewService(tokenredis.NewRepo(rc), &catalog.Config{}, logger)

	srv := httptest.NewServer(NewController(roomService, directoryService, authService, catalogService, logger).GetMux())
	t.Cleanup(srv.Close)

	return srv
}

func registerAndLogin(t *testing.T, srv *httptest.Server, username string) string {
	t.Helper()

	body, err := json.Marshal(map[string]string{
		"username":         username,
		"email":            username + "@example.com",
		"password":         "longenough1!",
		"confirm_password": "longenough1!",
	})
	require.NoError(t, err)
	resp, err := http.Post(srv.URL+"/api/v1/auth/register", "application/json", bytes.NewReader(body))
	require.NoError(t, err)
	resp.Body.Close()
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	body, err = json.Marshal(map[string]string{"login": username, "password": "longenough1!"})
	require.NoError(t, err)
	resp, err = http.Post(srv.URL+"/api/v1/auth/login", "application/json", bytes.NewReader(body))
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var loginResp struct {
		Token string `json:"token"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&loginResp))

	return loginResp.Token
}

func dialWS(t *testing.T, srv *httptest.Server, token string) *websocket.Conn {
	t.Helper()

	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http") + "/api/v1/ws?token=" + token
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })

	return conn
}

func sendEvent(t *testing.T, conn *websocket.Conn, eventType string, payload any) {
	t.Helper()

	require.NoError(t, conn.WriteJSON(map[string]any{"type": eventType, "payload": payload}))
}

func readEvent(t *testing.T, conn *websocket.Conn) Output {
	t.Helper()

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))

	var out Output
	require.NoError(t, conn.ReadJSON(&out))

	return out
}

func eventMsg(t *testing.T, out Output) string {
	t.Helper()

	payload, ok := out.Payload.(map[string]any)
	require.True(t, ok, "payload must be an object")
	msg, ok := payload["msg"].(string)
	require.True(t, ok, "payload must carry a msg")

	return msg
}

func TestJoinNormalizesRoomKeyAcrossClients(t *testing.T) {
	srv := newTestServer(t)

	alice := dialWS(t, srv, registerAndLogin(t, srv, "alice"))
	bob := dialWS(t, srv, registerAndLogin(t, srv, "bob"))

	sendEvent(t, alice, "join", map[string]any{"room_key": "  ab12c "})
	out := readEvent(t, alice)
	assert.Equal(t, "room_message", out.Type)
	assert.Equal(t, "alice has entered the room. (1 listeners)", eventMsg(t, out))

	sendEvent(t, bob, "join", map[string]any{"room_key": "AB12C"})
	out = readEvent(t, alice)
	assert.Equal(t, "room_message", out.Type)
	assert.Equal(t, "bob has entered the room. (2 listeners)", eventMsg(t, out))
}

func TestAbruptCloseReleasesMembership(t *testing.T) {
	srv := newTestServer(t)

	alice := dialWS(t, srv, registerAndLogin(t, srv, "alice"))
	bob := dialWS(t, srv, registerAndLogin(t, srv, "bob"))

	sendEvent(t, alice, "join", map[string]any{"room_key": "QWERT"})
	readEvent(t, alice)
	sendEvent(t, bob, "join", map[string]any{"room_key": "QWERT"})
	readEvent(t, alice)
	readEvent(t, bob)

	// Closing the socket without a leave event must still release the
	// membership and notify the remaining listener.
	require.NoError(t, alice.Close())

	out := readEvent(t, bob)
	assert.Equal(t, "room_message", out.Type)
	assert.Equal(t, "alice has left the room. (1 listeners)", eventMsg(t, out))
}

func newWSPair(t *testing.T) (*websocket.Conn, *websocket.Conn) {
	t.Helper()

	upgrader := websocket.Upgrader{}
	serverConns := make(chan *websocket.Conn, 1)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		serverConns <- conn
	}))
	t.Cleanup(srv.Close)

	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http")
	client, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	t.Cleanup(func() { client.Close() })

	server := <-serverConns
	t.Cleanup(func() { server.Close() })

	return client, server
}

func TestBroadcastSerializesWritesPerConn(t *testing.T) {
	client, server := newWSPair(t)

	c := &controller{
		sender: newConnSender(),
		logger: slog.New(slog.NewTextHandler(io.Discard, nil)),
	}

	const writers = 8
	const perWriter = 50

	received := make(chan int, 1)
	go func() {
		client.SetReadDeadline(time.Now().Add(5 * time.Second))

		count := 0
		for count < writers*perWriter {
			var out Output
			if err := client.ReadJSON(&out); err != nil {
				break
			}
			count++
		}
		received <- count
	}()

	var wg sync.WaitGroup
	for i := range writers {
		wg.Add(1)
		go func() {
			defer wg.Done()

			for j := range perWriter {
				c.broadcast(context.Background(), []*websocket.Conn{server}, &Output{
					Type:    "sync_seek",
					Payload: map[string]any{"position_ms": i*perWriter + j},
				})
			}
		}()
	}
	wg.Wait()

	select {
	case count := <-received:
		assert.Equal(t, writers*perWriter, count, "every frame must arrive intact")
	case <-time.After(10 * time.Second):
		t.Fatal("timed out waiting for broadcast frames")
	}
}
