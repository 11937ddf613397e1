package api

import (
	"io"
	"net/http"

	"github.com/gorilla/handlers"
	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"taskflow/cache"
	"taskflow/config"
	"taskflow/middleware"
	"taskflow/system"
	"taskflow/ws"
)

// NewRouter wires every route. accessLog receives one combined log line per
// request and may be nil.
func NewRouter(h *system.Handler, hub *ws.Hub, cfg *config.Config, accessLog io.Writer, log *zap.Logger) (http.Handler, error) {
	if log == nil {
		log = zap.NewNop()
	}
	r := mux.NewRouter()

	clientIP, err := middleware.ByClientIP(cfg.Server.TrustedProxies)
	if err != nil {
		return nil, err
	}

	// Public routes
	authLimiter := middleware.NewRateLimiter(cache.RedisClient, cfg.RateLimit.AuthLimit, cfg.RateLimit.AuthWindow, clientIP)
	r.Handle("/register", authLimiter.Middleware(http.HandlerFunc(h.Register))).Methods("POST")
	r.Handle("/login", authLimiter.Middleware(http.HandlerFunc(h.Login))).Methods("POST")
	r.HandleFunc("/health", h.Health).Methods("GET")
	r.Handle("/metrics", promhttp.Handler()).Methods("GET")
	r.HandleFunc("/ws", ws.HandleWS(hub, h.JWT, log)).Methods("GET")

	// Protected routes
	userLimiter := middleware.NewRateLimiter(cache.RedisClient, cfg.RateLimit.Limit, cfg.RateLimit.Window, middleware.ByUser)
	s := r.NewRoute().Subrouter()
	s.Use(middleware.JWTMiddleware(h.JWT), userLimiter.Middleware)

	s.HandleFunc("/users/me", h.Me).Methods("GET")

	s.HandleFunc("/tasks", h.GetAllTasks).Methods("GET")
	s.HandleFunc("/tasks", h.CreateTask).Methods("POST")
	s.HandleFunc("/tasks/{id:[0-9]+}", h.GetTask).Methods("GET")
	s.HandleFunc("/tasks/{id:[0-9]+}", h.UpdateTask).Methods("PUT")
	s.HandleFunc("/tasks/{id:[0-9]+}", h.DeleteTask).Methods("DELETE")

	s.HandleFunc("/categories", h.GetCategories).Methods("GET")
	s.HandleFunc("/categories", h.CreateCategory).Methods("POST")

	s.HandleFunc("/notifications", h.GetNotifications).Methods("GET")
	s.HandleFunc("/notifications/read-all", h.MarkAllNotificationsRead).Methods("PUT")
	s.HandleFunc("/notifications/{id:[0-9]+}/read", h.MarkNotificationRead).Methods("PUT")
	s.HandleFunc("/notifications/{id:[0-9]+}", h.DeleteNotification).Methods("DELETE")

	s.HandleFunc("/rate-limit", system.RateLimitStatusHandler(cache.RedisClient, cfg.RateLimit.Limit)).Methods("GET")

	var handler http.Handler = r
	handler = handlers.CORS(
		handlers.AllowedOrigins(cfg.Server.CORSOrigins),
		handlers.AllowedMethods([]string{"GET", "POST", "PUT", "DELETE", "OPTIONS"}),
		handlers.AllowedHeaders([]string{"Authorization", "Content-Type"}),
		handlers.AllowCredentials(),
	)(handler)
	if accessLog != nil {
		handler = handlers.CombinedLoggingHandler(accessLog, handler)
	}
	return handlers.RecoveryHandler(
		handlers.RecoveryLogger(zap.NewStdLog(log.Named("recovery"))),
	)(handler), nil
}
