package controller

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/gorilla/websocket"

	"github.com/jamroom/server/internal/service/auth"
	"github.com/jamroom/server/internal/service/catalog"
	"github.com/jamroom/server/internal/service/directory"
	"github.com/jamroom/server/internal/service/room"
	"github.com/jamroom/server/pkg/validator"
	"github.com/jamroom/server/pkg/wsrouter"
)

type iRoomService interface {
	ConnectMember(ctx context.Context, conn *websocket.Conn) (string, error)
	DisconnectMember(context.Context, *room.DisconnectMemberParams) (room.DisconnectMemberResponse, error)
	JoinRoom(context.Context, *room.JoinRoomParams) (room.JoinRoomResponse, error)
	LeaveRoom(context.Context, *room.LeaveRoomParams) (room.LeaveRoomResponse, error)
	SendChatMessage(context.Context, *room.SendChatMessageParams) (room.SendChatMessageResponse, error)
	PlayTrack(context.Context, *room.PlayTrackParams) (room.PlayTrackResponse, error)
	TogglePlay(context.Context, *room.TogglePlayParams) (room.TogglePlayResponse, error)
	Seek(context.Context, *room.SeekParams) (room.SeekResponse, error)
	SyncRequest(context.Context, *room.SyncRequestParams) (room.SyncRequestResponse, error)
	PushPlayerState(context.Context, *room.PushPlayerStateParams) error
}

type iDirectoryService interface {
	CreateRoom(context.Context, *directory.CreateRoomParams) (directory.Room, error)
	FindByCode(ctx context.Context, roomKey string) (directory.Room, error)
	ListPublicRooms(ctx context.Context) ([]directory.Room, error)
}

type iAuthService interface {
	Register(context.Context, *auth.RegisterParams) (auth.User, error)
	Login(context.Context, *auth.LoginParams) (auth.LoginResponse, error)
	CurrentUser(ctx context.Context, tokenString string) (string, error)
}

type iCatalogService interface {
	LinkAccount(ctx context.Context, username, refreshToken string) error
	ResolveBearerToken(ctx context.Context, username string) (string, error)
	Search(ctx context.Context, bearerToken, q string) ([]catalog.Track, error)
}

type controller struct {
	roomService      iRoomService
	directoryService iDirectoryService
	authService      iAuthService
	catalogService   iCatalogService
	upgrader         websocket.Upgrader
	validate         *validator.Validator
	wsmux            *wsrouter.WSRouter
	sender           *connSender
	logger           *slog.Logger
}

func NewController(
	roomService iRoomService,
	directoryService iDirectoryService,
	authService iAuthService,
	catalogService iCatalogService,
	logger *slog.Logger,
) *controller {
	c := &controller{
		roomService:      roomService,
		directoryService: directoryService,
		authService:      authService,
		catalogService:   catalogService,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				return true
			},
		},
		validate: validator.NewValidator(),
		sender:   newConnSender(),
		logger:   logger,
	}
	c.wsmux = c.getWSRouter()

	return c
}
