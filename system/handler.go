package system

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"
	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"

	"taskflow/cache"
	"taskflow/common"
	"taskflow/storage/sqlite"
)

type Handler struct {
	DB            *sqlx.DB
	Users         *sqlite.UserStore
	Tasks         *sqlite.TaskStore
	Categories    *sqlite.CategoryStore
	Notifications *sqlite.NotificationStore
	Pool          *NotificationWorkerPool
	JWT           *common.JWT
	Log           *zap.Logger

	now func() time.Time
}

func NewHandler(db *sqlx.DB, pool *NotificationWorkerPool, tokens *common.JWT, log *zap.Logger) *Handler {
	if log == nil {
		log = zap.NewNop()
	}
	return &Handler{
		DB:            db,
		Users:         sqlite.NewUserStore(db),
		Tasks:         sqlite.NewTaskStore(db),
		Categories:    sqlite.NewCategoryStore(db),
		Notifications: sqlite.NewNotificationStore(db),
		Pool:          pool,
		JWT:           tokens,
		Log:           log.Named("http"),
		now:           time.Now,
	}
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeMessage(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"message": message})
}

// currentUser reads the id set by the JWT middleware and writes 401 when it
// is missing.
func currentUser(w http.ResponseWriter, r *http.Request) (int64, bool) {
	userID, ok := common.UserIDFromContext(r.Context())
	if !ok {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
	}
	return userID, ok
}

func pathID(w http.ResponseWriter, r *http.Request, what string) (int64, bool) {
	id, err := strconv.ParseInt(mux.Vars(r)["id"], 10, 64)
	if err != nil || id <= 0 {
		http.Error(w, "Invalid "+what+" ID", http.StatusBadRequest)
		return 0, false
	}
	return id, true
}

type HealthStatus struct {
	Status    string    `json:"status"`
	Database  string    `json:"database"`
	Redis     string    `json:"redis"`
	Timestamp time.Time `json:"timestamp"`
}

func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	status := HealthStatus{Status: "ok", Database: "up", Redis: "disabled", Timestamp: h.now().UTC()}
	code := http.StatusOK

	if err := h.DB.PingContext(ctx); err != nil {
		h.Log.Warn("database ping failed", zap.Error(err))
		status.Status = "unavailable"
		status.Database = "down"
		code = http.StatusServiceUnavailable
	}
	if cache.RedisClient != nil {
		if cache.Ping(ctx) {
			status.Redis = "up"
		} else {
			status.Redis = "down"
			if code == http.StatusOK {
				status.Status = "degraded"
			}
		}
	}
	writeJSON(w, code, status)
}
