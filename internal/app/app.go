package app

import (
	"context"
	"fmt"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/jamroom/server/internal/controller"
	connectioninmemory "github.com/jamroom/server/internal/repository/connection/inmemory"
	directoryredis "github.com/jamroom/server/internal/repository/directory/redis"
	roominmemory "github.com/jamroom/server/internal/repository/room/inmemory"
	tokenredis "github.com/jamroom/server/internal/repository/token/redis"
	usersqlite "github.com/jamroom/server/internal/repository/user/sqlite"
	"github.com/jamroom/server/internal/service/auth"
	"github.com/jamroom/server/internal/service/catalog"
	"github.com/jamroom/server/internal/service/directory"
	"github.com/jamroom/server/internal/service/room"
	"github.com/jamroom/server/pkg/ctxlogger"
	"github.com/jamroom/server/pkg/redisclient"
)

type AppConfig struct {
	Secret              string `json:"-"`
	Host                string `json:"host"`
	Port                int    `json:"port"`
	LogLevel            string `json:"log_level"`
	SqlitePath          string `json:"sqlite_path"`
	SessionTTLHours     int    `json:"session_ttl_hours"`
	RedisHost           string `json:"redis_host"`
	RedisPort           int    `json:"redis_port"`
	RedisPassword       string `json:"-"`
	SpotifyClientId     string `json:"spotify_client_id"`
	SpotifyClientSecret string `json:"-"`
	SpotifyTokenURL     string `json:"spotify_token_url"`
	SpotifyAPIBaseURL   string `json:"spotify_api_base_url"`
}

func (cfg *AppConfig) Validate() error {
	if cfg.Secret == "" {
		return fmt.Errorf("secret must be set")
	}
	if cfg.Port < 1 || cfg.Port > 65535 {
		return fmt.Errorf("port must be between 1 and 65535")
	}
	if cfg.SessionTTLHours < 1 {
		return fmt.Errorf("session ttl must be greater than 0")
	}
	return nil
}

func Run(ctx context.Context, cfg *AppConfig) error {
	logLevel := slog.LevelInfo
	if err := logLevel.UnmarshalText([]byte(strings.ToUpper(cfg.LogLevel))); err != nil {
		log.Fatal(err)
	}

	h := ctxlogger.ContextHandler{
		Handler: slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
			Level:     logLevel,
			AddSource: true,
		}),
	}

	logger := slog.New(&h)

	rc, err := redisclient.NewRedisClient(ctx, &redisclient.Config{
		Host:     cfg.RedisHost,
		Port:     cfg.RedisPort,
		Password: cfg.RedisPassword,
	})
	if err != nil {
		return fmt.Errorf("failed to create redis client: %w", err)
	}
	defer rc.Close()

	userRepo, err := usersqlite.NewRepo(cfg.SqlitePath)
	if err != nil {
		return fmt.Errorf("failed to open user store: %w", err)
	}
	defer userRepo.Close()

	roomStateRepo := roominmemory.NewRepo()
	connectionRepo := connectioninmemory.NewRepo()
	directoryRepo := directoryredis.NewRepo(rc)
	tokenRepo := tokenredis.NewRepo(rc)

	roomService := room.NewService(roomStateRepo, connectionRepo, directoryRepo, logger)
	directoryService := directory.NewService(directoryRepo, logger)
	authService := auth.NewService(userRepo, cfg.Secret, time.Duration(cfg.SessionTTLHours)*time.Hour)
	catalogService := catalog.NewService(tokenRepo, &catalog.Config{
		ClientId:     cfg.SpotifyClientId,
		ClientSecret: cfg.SpotifyClientSecret,
		TokenURL:     cfg.SpotifyTokenURL,
		APIBaseURL:   cfg.SpotifyAPIBaseURL,
	}, logger)

	controller := controller.NewController(roomService, directoryService, authService, catalogService, logger)
	server := &http.Server{Addr: fmt.Sprintf("%s:%d", cfg.Host, cfg.Port), Handler: controller.GetMux()}

	// graceful shutdown
	serverCtx, serverStopCtx := context.WithCancel(ctx)

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGHUP, syscall.SIGINT, syscall.SIGTERM, syscall.SIGQUIT)
	go func() {
		<-sig

		shutdownCtx, c := context.WithTimeout(serverCtx, 30*time.Second)
		defer c()

		go func() {
			<-shutdownCtx.Done()
			if shutdownCtx.Err() == context.DeadlineExceeded {
				log.Fatal("graceful shutdown timed out.. forcing exit.")
			}
		}()

		err := server.Shutdown(shutdownCtx)
		if err != nil {
			log.Fatal(err)
		}
		serverStopCtx()
	}()

	logger.InfoContext(serverCtx, "starting server", "address", server.Addr)
	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}

	<-serverCtx.Done()

	return nil
}
