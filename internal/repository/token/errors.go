package token

import "errors"

var (
	ErrTokenNotFound = errors.New("token not found")
)
