package auth

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/bcrypt"

	"github.com/jamroom/server/internal/repository/user"
)

var (
	ErrUserNotFound       = errors.New("user not found")
	ErrWrongPassword      = errors.New("incorrect password")
	ErrUsernameTaken      = errors.New("username already taken")
	ErrEmailTaken         = errors.New("email already registered")
	ErrPasswordMismatch   = errors.New("passwords do not match")
	ErrPasswordTooShort   = errors.New("password must be more than 8 characters")
	ErrPasswordNeedsDigit = errors.New("password must include at least one number")
	ErrPasswordNeedsSign  = errors.New("password must include at least one symbol")
	ErrInvalidToken       = errors.New("invalid session token")
)

var (
	digitRe  = regexp.MustCompile(`\d`)
	symbolRe = regexp.MustCompile(`[^A-Za-z0-9]`)
)

type iUserRepo interface {
	CreateUser(ctx context.Context, params *user.CreateUserParams) (user.User, error)
	GetUserByLogin(ctx context.Context, login string) (user.User, error)
}

type User struct {
	Username string `json:"username"`
	Email    string `json:"email"`
}

type service struct {
	userRepo iUserRepo
	secret   []byte
	tokenTTL time.Duration
}

func NewService(userRepo iUserRepo, secret string, tokenTTL time.Duration) *service {
	return &service{
		userRepo: userRepo,
		secret:   []byte(secret),
		tokenTTL: tokenTTL,
	}
}

type RegisterParams struct {
	Username        string
	Email           string
	Password        string
	ConfirmPassword string
}

func (s *service) Register(ctx context.Context, params *RegisterParams) (User, error) {
	if params.Password != params.ConfirmPassword {
		return User{}, ErrPasswordMismatch
	}
	if len(params.Password) <= 8 {
		return User{}, ErrPasswordTooShort
	}
	if !digitRe.MatchString(params.Password) {
		return User{}, ErrPasswordNeedsDigit
	}
	if !symbolRe.MatchString(params.Password) {
		return User{}, ErrPasswordNeedsSign
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(params.Password), bcrypt.DefaultCost)
	if err != nil {
		return User{}, fmt.Errorf("failed to hash password: %w", err)
	}

	created, err := s.userRepo.CreateUser(ctx, &user.CreateUserParams{
		Username:     params.Username,
		Email:        params.Email,
		PasswordHash: string(hash),
	})
	if err != nil {
		switch err {
		case user.ErrUsernameTaken:
			return User{}, ErrUsernameTaken
		case user.ErrEmailTaken:
			return User{}, ErrEmailTaken
		}
		return User{}, fmt.Errorf("failed to create user: %w", err)
	}

	return User{Username: created.Username, Email: created.Email}, nil
}

type LoginParams struct {
	// Login is a username or an email address.
	Login    string
	Password string
}

type LoginResponse struct {
	Token string
	User  User
}

func (s *service) Login(ctx context.Context, params *LoginParams) (LoginResponse, error) {
	u, err := s.userRepo.GetUserByLogin(ctx, params.Login)
	if err != nil {
		if err == user.ErrUserNotFound {
			return LoginResponse{}, ErrUserNotFound
		}
		return LoginResponse{}, fmt.Errorf("failed to get user: %w", err)
	}

	if err := bcrypt.CompareHashAndPassword([]byte(u.PasswordHash), []byte(params.Password)); err != nil {
		return LoginResponse{}, ErrWrongPassword
	}

	now := time.Now()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{
		Subject:   u.Username,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(s.tokenTTL)),
	})

	signed, err := token.SignedString(s.secret)
	if err != nil {
		return LoginResponse{}, fmt.Errorf("failed to sign token: %w", err)
	}

	return LoginResponse{
		Token: signed,
		User:  User{Username: u.Username, Email: u.Email},
	}, nil
}

// CurrentUser resolves a session token to the authenticated username.
func (s *service) CurrentUser(ctx context.Context, tokenString string) (string, error) {
	token, err := jwt.Parse(tokenString, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return s.secret, nil
	})
	if err != nil || !token.Valid {
		return "", ErrInvalidToken
	}

	username, err := token.Claims.GetSubject()
	if err != nil || username == "" {
		return "", ErrInvalidToken
	}

	return username, nil
}
