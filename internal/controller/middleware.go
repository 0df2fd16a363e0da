package controller

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/jamroom/server/pkg/ctxlogger"
	"github.com/jamroom/server/pkg/wsrouter"
)

func (c controller) requestIdMw(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := ctxlogger.AppendCtx(r.Context(), slog.String("request_id", uuid.NewString()))
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func (c controller) requestLoggingMw(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		c.logger.InfoContext(r.Context(), "request",
			"method", r.Method,
			"url", r.URL.String(),
			"remote_addr", r.RemoteAddr,
		)
		next.ServeHTTP(w, r)
	})
}

// authMw resolves the session token from the Authorization header, the
// session cookie, or the token query param (the websocket path cannot set
// headers from a browser) and stores the authenticated username in the
// request context.
func (c controller) authMw(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		tokenString := strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer ")
		if tokenString == "" {
			if cookie, err := r.Cookie("session_token"); err == nil {
				tokenString = cookie.Value
			}
		}
		if tokenString == "" {
			tokenString = r.URL.Query().Get("token")
		}
		if tokenString == "" {
			c.writeError(w, http.StatusUnauthorized, "you must be logged in")
			return
		}

		username, err := c.authService.CurrentUser(r.Context(), tokenString)
		if err != nil {
			c.logger.DebugContext(r.Context(), "failed to resolve session", "error", err)
			c.writeError(w, http.StatusUnauthorized, "you must be logged in")
			return
		}

		ctx := context.WithValue(r.Context(), usernameCtxKey, username)
		ctx = ctxlogger.AppendCtx(ctx, slog.String("username", username))
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func (c controller) loggerWSMw() wsrouter.Middleware {
	return func(next wsrouter.HandlerFunc) wsrouter.HandlerFunc {
		return func(ctx context.Context, conn *websocket.Conn, payload json.RawMessage) error {
			ctx = ctxlogger.AppendCtx(ctx, slog.String("message_type", wsrouter.GetMessageTypeFromCtx(ctx)))
			c.logger.DebugContext(ctx, "websocket message received")

			start := time.Now()
			err := next(ctx, conn, payload)
			c.logger.DebugContext(ctx, "websocket message handled",
				"processing_time_us", time.Since(start).Microseconds(),
			)

			return err
		}
	}
}
