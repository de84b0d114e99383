package auth

import (
	"context"
	"errors"
)

type ctxKey int

const (
	ctxUserID ctxKey = iota
	ctxUsername
)

func WithIdentity(ctx context.Context, userID, username string) context.Context {
	ctx = context.WithValue(ctx, ctxUserID, userID)
	ctx = context.WithValue(ctx, ctxUsername, username)
	return ctx
}

func UserID(ctx context.Context) (string, error) {
	v := ctx.Value(ctxUserID)
	if s, ok := v.(string); ok && s != "" {
		return s, nil
	}
	return "", errors.New("user_id not in context")
}

// Username may legitimately be empty (refresh flows); no error variant.
func Username(ctx context.Context) string {
	if s, ok := ctx.Value(ctxUsername).(string); ok {
		return s
	}
	return ""
}
