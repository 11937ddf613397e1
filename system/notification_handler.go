package system

import (
	"errors"
	"net/http"
	"strconv"

	"go.uber.org/zap"

	"taskflow/storage"
)

const notificationListLimit = 50

// GetNotifications returns the newest notifications of the caller;
// ?unread=true keeps only unread ones.
func (h *Handler) GetNotifications(w http.ResponseWriter, r *http.Request) {
	userID, ok := currentUser(w, r)
	if !ok {
		return
	}
	unreadOnly, _ := strconv.ParseBool(r.URL.Query().Get("unread"))

	list, err := h.Notifications.ListForUser(r.Context(), userID, unreadOnly, notificationListLimit)
	if err != nil {
		h.Log.Error("listing notifications", zap.Int64("user_id", userID), zap.Error(err))
		http.Error(w, "Error querying notifications", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, list)
}

func (h *Handler) MarkNotificationRead(w http.ResponseWriter, r *http.Request) {
	userID, ok := currentUser(w, r)
	if !ok {
		return
	}
	id, ok := pathID(w, r, "notification")
	if !ok {
		return
	}

	n, err := h.Notifications.MarkRead(r.Context(), userID, id)
	if errors.Is(err, storage.ErrNotFound) {
		http.Error(w, "Notification not found", http.StatusNotFound)
		return
	}
	if err != nil {
		h.Log.Error("marking notification read", zap.Int64("notification_id", id), zap.Error(err))
		http.Error(w, "Database error", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, n)
}

func (h *Handler) MarkAllNotificationsRead(w http.ResponseWriter, r *http.Request) {
	userID, ok := currentUser(w, r)
	if !ok {
		return
	}
	updated, err := h.Notifications.MarkAllRead(r.Context(), userID)
	if err != nil {
		h.Log.Error("marking notifications read", zap.Int64("user_id", userID), zap.Error(err))
		http.Error(w, "Database error", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"message": "All notifications marked as read",
		"updated": updated,
	})
}

func (h *Handler) DeleteNotification(w http.ResponseWriter, r *http.Request) {
	userID, ok := currentUser(w, r)
	if !ok {
		return
	}
	id, ok := pathID(w, r, "notification")
	if !ok {
		return
	}

	err := h.Notifications.Delete(r.Context(), userID, id)
	if errors.Is(err, storage.ErrNotFound) {
		http.Error(w, "Notification not found", http.StatusNotFound)
		return
	}
	if err != nil {
		h.Log.Error("deleting notification", zap.Int64("notification_id", id), zap.Error(err))
		http.Error(w, "Database error", http.StatusInternalServerError)
		return
	}
	writeMessage(w, http.StatusOK, "Notification deleted")
}
