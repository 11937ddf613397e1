package common

import "context"

type contextKey string

const ContextUserIDKey contextKey = "user_id"

func WithUserID(ctx context.Context, userID int64) context.Context {
	return context.WithValue(ctx, ContextUserIDKey, userID)
}

func UserIDFromContext(ctx context.Context) (int64, bool) {
	id, ok := ctx.Value(ContextUserIDKey).(int64)
	return id, ok && id > 0
}
