package controller

import (
	"encoding/json"
	"net/http"

	"github.com/jamroom/server/internal/service/auth"
	"github.com/jamroom/server/internal/service/catalog"
	"github.com/jamroom/server/internal/service/directory"
)

func (c controller) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func (c controller) writeError(w http.ResponseWriter, status int, msg string) {
	c.writeJSON(w, status, map[string]string{"error": msg})
}

func (c controller) decodeBody(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		c.logger.DebugContext(r.Context(), "failed to decode body", "error", err)
		c.writeError(w, http.StatusBadRequest, "invalid request body")
		return false
	}

	if errs, ok := c.validate.Validate(v); !ok {
		c.logger.DebugContext(r.Context(), "invalid body", "errors", errs)
		c.writeJSON(w, http.StatusBadRequest, map[string]any{"errors": errs})
		return false
	}

	return true
}

type RegisterInput struct {
	Username        string `json:"username" validate:"required,min=1,max=20"`
	Email           string `json:"email" validate:"required,email"`
	Password        string `json:"password" validate:"required"`
	ConfirmPassword string `json:"confirm_password" validate:"required"`
}

func (c controller) register(w http.ResponseWriter, r *http.Request) {
	var input RegisterInput
	if !c.decodeBody(w, r, &input) {
		return
	}

	registered, err := c.authService.Register(r.Context(), &auth.RegisterParams{
		Username:        input.Username,
		Email:           input.Email,
		Password:        input.Password,
		ConfirmPassword: input.ConfirmPassword,
	})
	if err != nil {
		switch err {
		case auth.ErrUsernameTaken, auth.ErrEmailTaken, auth.ErrPasswordMismatch,
			auth.ErrPasswordTooShort, auth.ErrPasswordNeedsDigit, auth.ErrPasswordNeedsSign:
			c.writeError(w, http.StatusBadRequest, err.Error())
		default:
			c.logger.WarnContext(r.Context(), "failed to register", "error", err)
			c.writeError(w, http.StatusInternalServerError, "failed to register")
		}
		return
	}

	c.writeJSON(w, http.StatusCreated, registered)
}

type LoginInput struct {
	// Login accepts a username or an email address.
	Login    string `json:"login" validate:"required"`
	Password string `json:"password" validate:"required"`
}

func (c controller) login(w http.ResponseWriter, r *http.Request) {
	var input LoginInput
	if !c.decodeBody(w, r, &input) {
		return
	}

	loginResp, err := c.authService.Login(r.Context(), &auth.LoginParams{
		Login:    input.Login,
		Password: input.Password,
	})
	if err != nil {
		switch err {
		case auth.ErrUserNotFound:
			c.writeError(w, http.StatusUnauthorized, "user not found")
		case auth.ErrWrongPassword:
			c.writeError(w, http.StatusUnauthorized, "incorrect password")
		default:
			c.logger.WarnContext(r.Context(), "failed to login", "error", err)
			c.writeError(w, http.StatusInternalServerError, "failed to login")
		}
		return
	}

	http.SetCookie(w, &http.Cookie{
		Name:     "session_token",
		Value:    loginResp.Token,
		Path:     "/",
		HttpOnly: true,
	})
	c.writeJSON(w, http.StatusOK, map[string]any{
		"token": loginResp.Token,
		"user":  loginResp.User,
	})
}

func (c controller) listPublicRooms(w http.ResponseWriter, r *http.Request) {
	rooms, err := c.directoryService.ListPublicRooms(r.Context())
	if err != nil {
		c.logger.WarnContext(r.Context(), "failed to list public rooms", "error", err)
		c.writeError(w, http.StatusInternalServerError, "failed to list rooms")
		return
	}

	c.writeJSON(w, http.StatusOK, rooms)
}

type CreateRoomInput struct {
	Name      string `json:"room_name" validate:"required,min=1,max=50"`
	IsPrivate bool   `json:"is_private"`
}

func (c controller) createRoom(w http.ResponseWriter, r *http.Request) {
	var input CreateRoomInput
	if !c.decodeBody(w, r, &input) {
		return
	}

	created, err := c.directoryService.CreateRoom(r.Context(), &directory.CreateRoomParams{
		Name:      input.Name,
		Creator:   c.getUsernameFromCtx(r.Context()),
		IsPrivate: input.IsPrivate,
	})
	if err != nil {
		c.logger.WarnContext(r.Context(), "failed to create room", "error", err)
		c.writeError(w, http.StatusInternalServerError, "failed to create room")
		return
	}

	c.writeJSON(w, http.StatusCreated, created)
}

type JoinRoomInput struct {
	RoomKey string `json:"room_key" validate:"required"`
}

func (c controller) joinRoomByCode(w http.ResponseWriter, r *http.Request) {
	var input JoinRoomInput
	if !c.decodeBody(w, r, &input) {
		return
	}

	found, err := c.directoryService.FindByCode(r.Context(), input.RoomKey)
	if err != nil {
		if err == directory.ErrRoomNotFound {
			c.writeError(w, http.StatusNotFound, "room not found")
			return
		}
		c.logger.WarnContext(r.Context(), "failed to find room", "error", err)
		c.writeError(w, http.StatusInternalServerError, "failed to find room")
		return
	}

	c.writeJSON(w, http.StatusOK, found)
}

type LinkAccountInput struct {
	RefreshToken string `json:"refresh_token" validate:"required"`
}

func (c controller) linkAccount(w http.ResponseWriter, r *http.Request) {
	var input LinkAccountInput
	if !c.decodeBody(w, r, &input) {
		return
	}

	username := c.getUsernameFromCtx(r.Context())
	if err := c.catalogService.LinkAccount(r.Context(), username, input.RefreshToken); err != nil {
		c.logger.WarnContext(r.Context(), "failed to link account", "error", err)
		c.writeError(w, http.StatusInternalServerError, "failed to link account")
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

func (c controller) searchTracks(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query().Get("q")
	if q == "" {
		c.writeJSON(w, http.StatusOK, []catalog.Track{})
		return
	}

	username := c.getUsernameFromCtx(r.Context())
	bearerToken, err := c.catalogService.ResolveBearerToken(r.Context(), username)
	if err != nil {
		if err == catalog.ErrNotLinked {
			c.writeError(w, http.StatusConflict, "link your music account to search")
			return
		}
		c.logger.WarnContext(r.Context(), "failed to resolve bearer token", "error", err)
		c.writeError(w, http.StatusBadGateway, "music catalog unavailable")
		return
	}

	tracks, err := c.catalogService.Search(r.Context(), bearerToken, q)
	if err != nil {
		c.logger.WarnContext(r.Context(), "failed to search", "error", err)
		c.writeError(w, http.StatusBadGateway, "music catalog unavailable")
		return
	}

	c.writeJSON(w, http.StatusOK, tracks)
}
