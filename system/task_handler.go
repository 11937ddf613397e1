package system

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"taskflow/cache"
	"taskflow/component"
	"taskflow/entity"
	"taskflow/storage"
)

const (
	defaultPageSize = 10
	maxPageSize     = 100
)

type createTaskRequest struct {
	Title       string     `json:"title" validate:"required,min=3,max=100"`
	Description string     `json:"description" validate:"max=500"`
	DueDate     *time.Time `json:"due_date" validate:"required"`
	Priority    string     `json:"priority" validate:"omitempty,oneof=low medium high"`
	Status      string     `json:"status" validate:"omitempty,oneof=todo in_progress done"`
	CategoryIDs []int64    `json:"category_ids" validate:"omitempty,dive,gt=0"`
}

// updateTaskRequest only changes the fields that are present.
type updateTaskRequest struct {
	Title       *string    `json:"title" validate:"omitempty,min=3,max=100"`
	Description *string    `json:"description" validate:"omitempty,max=500"`
	DueDate     *time.Time `json:"due_date"`
	Priority    *string    `json:"priority" validate:"omitempty,oneof=low medium high"`
	Status      *string    `json:"status" validate:"omitempty,oneof=todo in_progress done"`
	CategoryIDs []int64    `json:"category_ids" validate:"omitempty,dive,gt=0"`
}

type TaskPage struct {
	Tasks      []entity.Task `json:"tasks"`
	Total      int           `json:"total"`
	Page       int           `json:"page"`
	Limit      int           `json:"limit"`
	TotalPages int           `json:"totalPages"`
}

func (h *Handler) GetAllTasks(w http.ResponseWriter, r *http.Request) {
	userID, ok := currentUser(w, r)
	if !ok {
		return
	}
	ctx := r.Context()
	query := r.URL.Query()

	filter, page, problem := parseTaskFilter(query)
	if problem != "" {
		http.Error(w, problem, http.StatusBadRequest)
		return
	}

	cacheKey := cache.TaskListKey(ctx, userID, query.Encode())
	if cached, err := cache.Get(ctx, cacheKey); err == nil {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(cached))
		return
	}

	tasks, total, err := h.Tasks.List(ctx, userID, filter)
	if err != nil {
		h.Log.Error("listing tasks", zap.Int64("user_id", userID), zap.Error(err))
		http.Error(w, "Database error", http.StatusInternalServerError)
		return
	}

	resp := TaskPage{
		Tasks:      tasks,
		Total:      total,
		Page:       page,
		Limit:      filter.Limit,
		TotalPages: (total + filter.Limit - 1) / filter.Limit,
	}
	if body, err := json.Marshal(resp); err == nil {
		if err := cache.Set(ctx, cacheKey, string(body), cache.TaskTTL); err != nil {
			h.Log.Debug("caching task list", zap.Error(err))
		}
	}
	writeJSON(w, http.StatusOK, resp)
}

// parseTaskFilter returns a non-empty problem when a filter value is invalid.
func parseTaskFilter(q url.Values) (f storage.TaskFilter, page int, problem string) {
	get := func(k string) string {
		return strings.TrimSpace(q.Get(k))
	}

	page, _ = strconv.Atoi(get("page"))
	if page < 1 {
		page = 1
	}
	limit, _ := strconv.Atoi(get("limit"))
	if limit < 1 {
		limit = defaultPageSize
	}
	if limit > maxPageSize {
		limit = maxPageSize
	}

	f = storage.TaskFilter{
		Search:   get("search"),
		SortBy:   "created_at",
		SortDesc: true,
		Limit:    limit,
		Offset:   (page - 1) * limit,
	}
	if s := get("status"); s != "" {
		f.Status = component.Status(s)
		if !f.Status.Valid() {
			return f, 0, "Invalid status filter"
		}
	}
	if p := get("priority"); p != "" {
		f.Priority = component.Priority(p)
		if !f.Priority.Valid() {
			return f, 0, "Invalid priority filter"
		}
	}
	if sort := get("sort"); sort != "" {
		field, order, _ := strings.Cut(sort, ":")
		f.SortBy = field
		f.SortDesc = strings.EqualFold(order, "desc")
	}
	return f, page, ""
}

func (h *Handler) GetTask(w http.ResponseWriter, r *http.Request) {
	userID, ok := currentUser(w, r)
	if !ok {
		return
	}
	id, ok := pathID(w, r, "task")
	if !ok {
		return
	}
	ctx := r.Context()

	cacheKey := cache.TaskKey(userID, id)
	if cached, err := cache.Get(ctx, cacheKey); err == nil {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(cached))
		return
	}

	task, err := h.Tasks.Get(ctx, userID, id)
	if errors.Is(err, storage.ErrNotFound) {
		http.Error(w, "Task not found", http.StatusNotFound)
		return
	}
	if err != nil {
		h.Log.Error("getting task", zap.Int64("task_id", id), zap.Error(err))
		http.Error(w, "Database error", http.StatusInternalServerError)
		return
	}

	if body, err := json.Marshal(task); err == nil {
		if err := cache.Set(ctx, cacheKey, string(body), cache.TaskTTL); err != nil {
			h.Log.Debug("caching task", zap.Error(err))
		}
	}
	writeJSON(w, http.StatusOK, task)
}

func (h *Handler) CreateTask(w http.ResponseWriter, r *http.Request) {
	userID, ok := currentUser(w, r)
	if !ok {
		return
	}
	var req createTaskRequest
	if !decodeAndValidate(w, r, &req) {
		return
	}
	ctx := r.Context()

	if !h.categoriesExist(w, r, req.CategoryIDs) {
		return
	}

	task := entity.Task{
		Title:       strings.TrimSpace(req.Title),
		Description: req.Description,
		DueDate:     *req.DueDate,
		Priority:    component.Medium,
		Status:      component.Todo,
		UserID:      userID,
		CategoryIDs: req.CategoryIDs,
		CreatedAt:   h.now(),
	}
	if req.Priority != "" {
		task.Priority = component.Priority(req.Priority)
	}
	if req.Status != "" {
		task.Status = component.Status(req.Status)
	}

	if err := h.Tasks.Create(ctx, &task); err != nil {
		h.Log.Error("creating task", zap.Int64("user_id", userID), zap.Error(err))
		http.Error(w, "Database error", http.StatusInternalServerError)
		return
	}
	h.invalidateTaskCache(r, userID, 0)

	h.notify(NotificationJob{
		UserID:   userID,
		Message:  fmt.Sprintf("Nouvelle tâche créée : %s", task.Title),
		Severity: component.Info,
		Link:     task.Link(),
	})
	writeJSON(w, http.StatusCreated, task)
}

func (h *Handler) UpdateTask(w http.ResponseWriter, r *http.Request) {
	userID, ok := currentUser(w, r)
	if !ok {
		return
	}
	id, ok := pathID(w, r, "task")
	if !ok {
		return
	}
	var req updateTaskRequest
	if !decodeAndValidate(w, r, &req) {
		return
	}
	ctx := r.Context()

	task, err := h.Tasks.Get(ctx, userID, id)
	if errors.Is(err, storage.ErrNotFound) {
		http.Error(w, "Task not found", http.StatusNotFound)
		return
	}
	if err != nil {
		h.Log.Error("getting task", zap.Int64("task_id", id), zap.Error(err))
		http.Error(w, "Database error", http.StatusInternalServerError)
		return
	}
	if !h.categoriesExist(w, r, req.CategoryIDs) {
		return
	}

	previous := task.Status
	if req.Title != nil {
		task.Title = strings.TrimSpace(*req.Title)
	}
	if req.Description != nil {
		task.Description = *req.Description
	}
	if req.DueDate != nil {
		task.DueDate = *req.DueDate
	}
	if req.Priority != nil {
		task.Priority = component.Priority(*req.Priority)
	}
	if req.Status != nil {
		task.Status = component.Status(*req.Status)
	}
	// nil keeps the existing links
	task.CategoryIDs = req.CategoryIDs

	err = h.Tasks.Update(ctx, &task)
	if errors.Is(err, storage.ErrNotFound) {
		http.Error(w, "Task not found", http.StatusNotFound)
		return
	}
	if err != nil {
		h.Log.Error("updating task", zap.Int64("task_id", id), zap.Error(err))
		http.Error(w, "Database error", http.StatusInternalServerError)
		return
	}
	h.invalidateTaskCache(r, userID, id)

	if task.Status != previous {
		h.notify(NotificationJob{
			UserID:   userID,
			Message:  fmt.Sprintf("Tâche \"%s\" mise à jour - Statut : %s", task.Title, task.Status),
			Severity: component.Info,
			Link:     task.Link(),
		})
		if task.Status == component.Done {
			h.notify(NotificationJob{
				UserID:   userID,
				Message:  fmt.Sprintf("Félicitations ! La tâche \"%s\" est terminée", task.Title),
				Severity: component.Success,
				Link:     task.Link(),
			})
		}
	}

	updated, err := h.Tasks.Get(ctx, userID, id)
	if err != nil {
		writeJSON(w, http.StatusOK, task)
		return
	}
	writeJSON(w, http.StatusOK, updated)
}

func (h *Handler) DeleteTask(w http.ResponseWriter, r *http.Request) {
	userID, ok := currentUser(w, r)
	if !ok {
		return
	}
	id, ok := pathID(w, r, "task")
	if !ok {
		return
	}

	err := h.Tasks.Delete(r.Context(), userID, id)
	if errors.Is(err, storage.ErrNotFound) {
		http.Error(w, "Task not found", http.StatusNotFound)
		return
	}
	if err != nil {
		h.Log.Error("deleting task", zap.Int64("task_id", id), zap.Error(err))
		http.Error(w, "Database error", http.StatusInternalServerError)
		return
	}
	h.invalidateTaskCache(r, userID, id)

	writeMessage(w, http.StatusOK, fmt.Sprintf("Task with ID %d deleted successfully", id))
}

func (h *Handler) categoriesExist(w http.ResponseWriter, r *http.Request, ids []int64) bool {
	if len(ids) == 0 {
		return true
	}
	ok, err := h.Categories.AllExist(r.Context(), ids)
	if err != nil {
		h.Log.Error("checking categories", zap.Error(err))
		http.Error(w, "Database error", http.StatusInternalServerError)
		return false
	}
	if !ok {
		http.Error(w, "Unknown category", http.StatusBadRequest)
		return false
	}
	return true
}

// invalidateTaskCache drops the cached task (when taskID > 0) and every
// cached list page of the user.
func (h *Handler) invalidateTaskCache(r *http.Request, userID, taskID int64) {
	ctx := r.Context()
	if taskID > 0 {
		if err := cache.Delete(ctx, cache.TaskKey(userID, taskID)); err != nil {
			h.Log.Warn("evicting cached task", zap.Int64("task_id", taskID), zap.Error(err))
		}
	}
	if err := cache.InvalidateTaskLists(ctx, userID); err != nil {
		h.Log.Warn("evicting cached task lists", zap.Int64("user_id", userID), zap.Error(err))
	}
}

func (h *Handler) notify(job NotificationJob) {
	if h.Pool == nil {
		return
	}
	h.Pool.Submit(job)
}
