package middleware

import (
	"fmt"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"taskflow/cache"
	"taskflow/common"
)

// KeyFunc names the bucket a request counts against. ok=false rejects the
// request as unauthorized.
type KeyFunc func(r *http.Request) (key string, ok bool)

func UserKey(userID int64) string {
	return fmt.Sprintf("ratelimit:user:%d", userID)
}

// ByUser buckets authenticated requests by user id.
func ByUser(r *http.Request) (string, bool) {
	userID, ok := common.UserIDFromContext(r.Context())
	if !ok {
		return "", false
	}
	return UserKey(userID), true
}

// ByIP buckets requests by the address of the connected peer.
func ByIP(r *http.Request) (string, bool) {
	return "ratelimit:ip:" + peerIP(r), true
}

// ByClientIP buckets requests by client address. X-Forwarded-For is only
// read when the connected peer is one of trustedProxies (IPs or CIDRs);
// everyone else is keyed on their own address.
func ByClientIP(trustedProxies []string) (KeyFunc, error) {
	nets := make([]*net.IPNet, 0, len(trustedProxies))
	for _, p := range trustedProxies {
		p = strings.TrimSpace(p)
		if !strings.Contains(p, "/") {
			ip := net.ParseIP(p)
			if ip == nil {
				return nil, fmt.Errorf("trusted proxy %q is not an IP or CIDR", p)
			}
			bits := 32
			if ip.To4() == nil {
				bits = 128
			}
			p = fmt.Sprintf("%s/%d", ip, bits)
		}
		_, n, err := net.ParseCIDR(p)
		if err != nil {
			return nil, fmt.Errorf("trusted proxy %q: %w", p, err)
		}
		nets = append(nets, n)
	}
	if len(nets) == 0 {
		return ByIP, nil
	}

	return func(r *http.Request) (string, bool) {
		peer := peerIP(r)
		if trusted(nets, peer) {
			if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
				if client := strings.TrimSpace(strings.Split(fwd, ",")[0]); net.ParseIP(client) != nil {
					return "ratelimit:ip:" + client, true
				}
			}
		}
		return "ratelimit:ip:" + peer, true
	}, nil
}

func peerIP(r *http.Request) string {
	if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
		return host
	}
	return r.RemoteAddr
}

func trusted(nets []*net.IPNet, addr string) bool {
	ip := net.ParseIP(addr)
	if ip == nil {
		return false
	}
	for _, n := range nets {
		if n.Contains(ip) {
			return true
		}
	}
	return false
}

// RateLimiter is a fixed-window counter in Redis.
type RateLimiter struct {
	RedisClient cache.RedisClientInterface
	Limit       int
	Window      time.Duration
	Key         KeyFunc
}

func NewRateLimiter(redisClient cache.RedisClientInterface, limit int, window time.Duration, key KeyFunc) *RateLimiter {
	if key == nil {
		key = ByUser
	}
	return &RateLimiter{
		RedisClient: redisClient,
		Limit:       limit,
		Window:      window,
		Key:         key,
	}
}

func (rl *RateLimiter) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		if rl.RedisClient == nil {
			next.ServeHTTP(w, req)
			return
		}

		key, ok := rl.Key(req)
		if !ok {
			http.Error(w, "Unauthorized", http.StatusUnauthorized)
			return
		}

		ctx := req.Context()
		count, err := rl.RedisClient.Incr(ctx, key).Result()
		if err != nil {
			http.Error(w, "Rate limit error", http.StatusInternalServerError)
			return
		}
		if count == 1 {
			if err := rl.RedisClient.Expire(ctx, key, rl.Window).Err(); err != nil {
				http.Error(w, "Rate limit error", http.StatusInternalServerError)
				return
			}
		}

		ttl, err := rl.RedisClient.TTL(ctx, key).Result()
		if err != nil || ttl < 0 {
			ttl = rl.Window
		}
		reset := time.Now().Add(ttl).Unix()

		remaining := rl.Limit - int(count)
		if remaining < 0 {
			remaining = 0
		}
		w.Header().Set("X-Rate-Limit-Limit", strconv.Itoa(rl.Limit))
		w.Header().Set("X-Rate-Limit-Remaining", strconv.Itoa(remaining))
		w.Header().Set("X-Rate-Limit-Reset", strconv.FormatInt(reset, 10))

		if int(count) > rl.Limit {
			w.Header().Set("Retry-After", strconv.Itoa(int(ttl.Seconds())))
			http.Error(w, "Too many requests, please try again later", http.StatusTooManyRequests)
			return
		}
		next.ServeHTTP(w, req)
	})
}
