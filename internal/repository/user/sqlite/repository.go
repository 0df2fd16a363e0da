package sqlite

import (
	"context"
	"database/sql"
	"fmt"

	_ "modernc.org/sqlite"

	"github.com/jamroom/server/internal/repository/user"
)

type repo struct {
	db *sql.DB
}

func NewRepo(dbPath string) (*repo, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		return nil, fmt.Errorf("failed to enable wal: %w", err)
	}

	schema := `
	CREATE TABLE IF NOT EXISTS users (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		username TEXT NOT NULL UNIQUE,
		email TEXT NOT NULL UNIQUE,
		password_hash TEXT NOT NULL
	);`
	if _, err := db.Exec(schema); err != nil {
		return nil, fmt.Errorf("failed to create schema: %w", err)
	}

	return &repo{db: db}, nil
}

func (r *repo) Close() error {
	return r.db.Close()
}

func (r *repo) CreateUser(ctx context.Context, params *user.CreateUserParams) (user.User, error) {
	var exists bool
	if err := r.db.QueryRowContext(ctx,
		"SELECT EXISTS(SELECT 1 FROM users WHERE username = ?)", params.Username,
	).Scan(&exists); err != nil {
		return user.User{}, fmt.Errorf("failed to check username: %w", err)
	}
	if exists {
		return user.User{}, user.ErrUsernameTaken
	}

	if err := r.db.QueryRowContext(ctx,
		"SELECT EXISTS(SELECT 1 FROM users WHERE email = ?)", params.Email,
	).Scan(&exists); err != nil {
		return user.User{}, fmt.Errorf("failed to check email: %w", err)
	}
	if exists {
		return user.User{}, user.ErrEmailTaken
	}

	res, err := r.db.ExecContext(ctx,
		"INSERT INTO users (username, email, password_hash) VALUES (?, ?, ?)",
		params.Username, params.Email, params.PasswordHash,
	)
	if err != nil {
		return user.User{}, fmt.Errorf("failed to insert user: %w", err)
	}

	id, err := res.LastInsertId()
	if err != nil {
		return user.User{}, fmt.Errorf("failed to get user id: %w", err)
	}

	return user.User{
		Id:           id,
		Username:     params.Username,
		Email:        params.Email,
		PasswordHash: params.PasswordHash,
	}, nil
}

// GetUserByLogin looks the user up by username or email, matching the
// original login form which accepts either.
func (r *repo) GetUserByLogin(ctx context.Context, login string) (user.User, error) {
	var u user.User
	err := r.db.QueryRowContext(ctx,
		"SELECT id, username, email, password_hash FROM users WHERE username = ? OR email = ?",
		login, login,
	).Scan(&u.Id, &u.Username, &u.Email, &u.PasswordHash)
	if err == sql.ErrNoRows {
		return user.User{}, user.ErrUserNotFound
	}
	if err != nil {
		return user.User{}, fmt.Errorf("failed to get user: %w", err)
	}

	return u, nil
}

func (r *repo) GetUserByUsername(ctx context.Context, username string) (user.User, error) {
	var u user.User
	err := r.db.QueryRowContext(ctx,
		"SELECT id, username, email, password_hash FROM users WHERE username = ?",
		username,
	).Scan(&u.Id, &u.Username, &u.Email, &u.PasswordHash)
	if err == sql.ErrNoRows {
		return user.User{}, user.ErrUserNotFound
	}
	if err != nil {
		return user.User{}, fmt.Errorf("failed to get user: %w", err)
	}

	return u, nil
}
