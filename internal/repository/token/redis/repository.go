package redis

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/jamroom/server/internal/repository/token"
)

type repo struct {
	rc *redis.Client
}

func NewRepo(rc *redis.Client) *repo {
	return &repo{rc: rc}
}

func (r repo) getRefreshTokenKey(username string) string {
	return "catalog:refresh-token:" + username
}

func (r repo) SetRefreshToken(ctx context.Context, username, refreshToken string) error {
	if err := r.rc.Set(ctx, r.getRefreshTokenKey(username), refreshToken, 0).Err(); err != nil {
		return fmt.Errorf("failed to set refresh token: %w", err)
	}

	return nil
}

func (r repo) GetRefreshToken(ctx context.Context, username string) (string, error) {
	refreshToken, err := r.rc.Get(ctx, r.getRefreshTokenKey(username)).Result()
	if err == redis.Nil {
		return "", token.ErrTokenNotFound
	}
	if err != nil {
		return "", fmt.Errorf("failed to get refresh token: %w", err)
	}

	return refreshToken, nil
}
