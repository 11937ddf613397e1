package system

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-redis/redis/v8"

	"taskflow/cache"
	"taskflow/middleware"
)

type RateLimitStatus struct {
	Enabled   bool  `json:"enabled"`
	Limit     int   `json:"limit"`
	Remaining int   `json:"remaining"`
	Reset     int64 `json:"reset"` // seconds until reset
}

// RateLimitStatusHandler reports the caller's position in the per-user
// window counted by middleware.RateLimiter.
func RateLimitStatusHandler(redisClient cache.RedisClientInterface, limit int) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID, ok := currentUser(w, r)
		if !ok {
			return
		}
		if redisClient == nil {
			writeJSON(w, http.StatusOK, RateLimitStatus{Limit: limit, Remaining: limit})
			return
		}

		ctx := r.Context()
		key := middleware.UserKey(userID)

		count := 0
		countVal, err := redisClient.Get(ctx, key).Result()
		if err != nil && !errors.Is(err, redis.Nil) {
			http.Error(w, "Failed to read rate limit", http.StatusInternalServerError)
			return
		}
		if err == nil {
			count, _ = strconv.Atoi(countVal)
		}

		ttl, err := redisClient.TTL(ctx, key).Result()
		if err != nil {
			http.Error(w, "Failed to read TTL", http.StatusInternalServerError)
			return
		}
		reset := int64(ttl.Seconds())
		if reset < 0 {
			reset = 0
		}

		remaining := limit - count
		if remaining < 0 {
			remaining = 0
		}

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(RateLimitStatus{
			Enabled:   true,
			Limit:     limit,
			Remaining: remaining,
			Reset:     reset,
		})
	}
}
