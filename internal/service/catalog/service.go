package catalog

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/jamroom/server/internal/repository/token"
)

var (
	// ErrNotLinked means the user never connected a music account; callers
	// surface this as degraded functionality, not a failure.
	ErrNotLinked = errors.New("music account not linked")
)

type iTokenRepo interface {
	SetRefreshToken(ctx context.Context, username, refreshToken string) error
	GetRefreshToken(ctx context.Context, username string) (string, error)
}

type Track struct {
	URI      string `json:"uri"`
	Title    string `json:"title"`
	Artist   string `json:"artist"`
	Artwork  string `json:"artwork"`
	Album    string `json:"album"`
	Duration int    `json:"duration"`
}

type Config struct {
	ClientId     string
	ClientSecret string
	TokenURL     string
	APIBaseURL   string
}

type cachedToken struct {
	accessToken string
	expiresAt   time.Time
}

type service struct {
	tokenRepo  iTokenRepo
	httpClient *http.Client
	cfg        *Config
	logger     *slog.Logger

	mu    sync.Mutex
	cache map[string]cachedToken
}

func NewService(tokenRepo iTokenRepo, cfg *Config, logger *slog.Logger) *service {
	return &service{
		tokenRepo:  tokenRepo,
		httpClient: &http.Client{Timeout: 10 * time.Second},
		cfg:        cfg,
		logger:     logger,
		cache:      make(map[string]cachedToken),
	}
}

func (s *service) LinkAccount(ctx context.Context, username, refreshToken string) error {
	if err := s.tokenRepo.SetRefreshToken(ctx, username, refreshToken); err != nil {
		return fmt.Errorf("failed to store refresh token: %w", err)
	}

	return nil
}

// ResolveBearerToken exchanges the user's stored refresh token for a short
// lived access token, caching it until shortly before expiry.
func (s *service) ResolveBearerToken(ctx context.Context, username string) (string, error) {
	s.mu.Lock()
	cached, ok := s.cache[username]
	s.mu.Unlock()
	if ok && time.Now().Before(cached.expiresAt) {
		return cached.accessToken, nil
	}

	refreshToken, err := s.tokenRepo.GetRefreshToken(ctx, username)
	if err != nil {
		if err == token.ErrTokenNotFound {
			return "", ErrNotLinked
		}
		return "", fmt.Errorf("failed to get refresh token: %w", err)
	}

	form := url.Values{}
	form.Set("grant_type", "refresh_token")
	form.Set("refresh_token", refreshToken)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.cfg.TokenURL, strings.NewReader(form.Encode()))
	if err != nil {
		return "", fmt.Errorf("failed to build token request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.SetBasicAuth(s.cfg.ClientId, s.cfg.ClientSecret)

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("failed to exchange refresh token: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("token endpoint returned status %d", resp.StatusCode)
	}

	var body struct {
		AccessToken string `json:"access_token"`
		ExpiresIn   int    `json:"expires_in"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return "", fmt.Errorf("failed to decode token response: %w", err)
	}

	s.mu.Lock()
	s.cache[username] = cachedToken{
		accessToken: body.AccessToken,
		expiresAt:   time.Now().Add(time.Duration(body.ExpiresIn)*time.Second - time.Minute),
	}
	s.mu.Unlock()

	return body.AccessToken, nil
}

// Search queries the catalog for tracks matching q.
func (s *service) Search(ctx context.Context, bearerToken, q string) ([]Track, error) {
	searchURL := fmt.Sprintf("%s/search?q=%s&type=track&limit=10", s.cfg.APIBaseURL, url.QueryEscape(q))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, searchURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build search request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+bearerToken)

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to search: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("search endpoint returned status %d", resp.StatusCode)
	}

	var body struct {
		Tracks struct {
			Items []struct {
				URI     string `json:"uri"`
				Name    string `json:"name"`
				Artists []struct {
					Name string `json:"name"`
				} `json:"artists"`
				Album struct {
					Name   string `json:"name"`
					Images []struct {
						URL string `json:"url"`
					} `json:"images"`
				} `json:"album"`
				DurationMs int `json:"duration_ms"`
			} `json:"items"`
		} `json:"tracks"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, fmt.Errorf("failed to decode search response: %w", err)
	}

	tracks := make([]Track, 0, len(body.Tracks.Items))
	for _, item := range body.Tracks.Items {
		track := Track{
			URI:      item.URI,
			Title:    item.Name,
			Album:    item.Album.Name,
			Duration: item.DurationMs,
		}
		if len(item.Artists) > 0 {
			track.Artist = item.Artists[0].Name
		}
		if len(item.Album.Images) > 0 {
			track.Artwork = item.Album.Images[0].URL
		}

		tracks = append(tracks, track)
	}

	return tracks, nil
}
