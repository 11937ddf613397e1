package cache

import (
	"context"
	"fmt"
	"time"
)

const TaskTTL = 5 * time.Minute

func TaskKey(userID, taskID int64) string {
	return fmt.Sprintf("task:%d:%d", userID, taskID)
}

func taskListVersionKey(userID int64) string {
	return fmt.Sprintf("tasks:user:%d:version", userID)
}

// TaskListKey builds the cache key for one list query. Keys embed a per-user
// version so that InvalidateTaskLists drops every cached page at once.
func TaskListKey(ctx context.Context, userID int64, query string) string {
	version, err := Get(ctx, taskListVersionKey(userID))
	if err != nil {
		version = "0"
	}
	return fmt.Sprintf("tasks:user:%d:v%s:%s", userID, version, query)
}

func InvalidateTaskLists(ctx context.Context, userID int64) error {
	if RedisClient == nil {
		return nil
	}
	return RedisClient.Incr(ctx, taskListVersionKey(userID)).Err()
}
