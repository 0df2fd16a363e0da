package controller

import "context"

type contextKey int

const (
	usernameCtxKey contextKey = iota
	connIdCtxKey
)

func (c controller) getUsernameFromCtx(ctx context.Context) string {
	username, ok := ctx.Value(usernameCtxKey).(string)
	if !ok {
		return ""
	}

	return username
}

func (c controller) getConnIdFromCtx(ctx context.Context) string {
	connId, ok := ctx.Value(connIdCtxKey).(string)
	if !ok {
		return ""
	}

	return connId
}
