package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"

	"taskflow/component"
	"taskflow/entity"
	"taskflow/storage"
)

type TaskStore struct {
	db *sqlx.DB
}

func NewTaskStore(db *sqlx.DB) *TaskStore {
	return &TaskStore{db: db}
}

type taskRow struct {
	ID          int64          `db:"id"`
	Title       string         `db:"title"`
	Description string         `db:"description"`
	DueDate     string         `db:"due_date"`
	Priority    string         `db:"priority"`
	Status      string         `db:"status"`
	UserID      int64          `db:"user_id"`
	Username    sql.NullString `db:"username"`
	CreatedAt   string         `db:"created_at"`
	UpdatedAt   sql.NullString `db:"updated_at"`
}

func (r taskRow) toEntity() (entity.Task, error) {
	due, err := parseTime(r.DueDate)
	if err != nil {
		return entity.Task{}, err
	}
	created, err := parseTime(r.CreatedAt)
	if err != nil {
		return entity.Task{}, err
	}
	updated, err := parseNullTime(r.UpdatedAt)
	if err != nil {
		return entity.Task{}, err
	}
	return entity.Task{
		ID:          r.ID,
		Title:       r.Title,
		Description: r.Description,
		DueDate:     due,
		Priority:    component.Priority(r.Priority),
		Status:      component.Status(r.Status),
		UserID:      r.UserID,
		Username:    r.Username.String,
		CategoryIDs: []int64{},
		CreatedAt:   created,
		UpdatedAt:   updated,
	}, nil
}

const taskColumns = `t.id, t.title, t.description, t.due_date, t.priority, t.status,
	t.user_id, t.created_at, t.updated_at`

// Create inserts the task and its category links. ID and CreatedAt are set
// on success.
func (s *TaskStore) Create(ctx context.Context, task *entity.Task) error {
	if task.CreatedAt.IsZero() {
		task.CreatedAt = time.Now()
	}

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx,
		`INSERT INTO tasks (title, description, due_date, priority, status, user_id, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		task.Title, task.Description, formatTime(task.DueDate), task.Priority, task.Status,
		task.UserID, formatTime(task.CreatedAt),
	)
	if err != nil {
		return fmt.Errorf("inserting task: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return fmt.Errorf("reading task id: %w", err)
	}

	if err := setCategories(ctx, tx, id, task.CategoryIDs); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing task: %w", err)
	}

	task.ID = id
	if task.CategoryIDs == nil {
		task.CategoryIDs = []int64{}
	}
	return nil
}

func setCategories(ctx context.Context, tx *sqlx.Tx, taskID int64, categoryIDs []int64) error {
	if _, err := tx.ExecContext(ctx, "DELETE FROM task_categories WHERE task_id = ?", taskID); err != nil {
		return fmt.Errorf("clearing task categories: %w", err)
	}
	for _, cid := range categoryIDs {
		if _, err := tx.ExecContext(ctx,
			"INSERT OR IGNORE INTO task_categories (task_id, category_id) VALUES (?, ?)", taskID, cid,
		); err != nil {
			return fmt.Errorf("linking category %d: %w", cid, err)
		}
	}
	return nil
}

// Get returns the task owned by userID.
func (s *TaskStore) Get(ctx context.Context, userID, id int64) (entity.Task, error) {
	var row taskRow
	err := s.db.GetContext(ctx, &row,
		"SELECT "+taskColumns+" FROM tasks t WHERE t.id = ? AND t.user_id = ?", id, userID)
	if errors.Is(err, sql.ErrNoRows) {
		return entity.Task{}, storage.ErrNotFound
	}
	if err != nil {
		return entity.Task{}, fmt.Errorf("getting task %d: %w", id, err)
	}

	task, err := row.toEntity()
	if err != nil {
		return entity.Task{}, err
	}
	tasks := []entity.Task{task}
	if err := s.loadCategories(ctx, tasks); err != nil {
		return entity.Task{}, err
	}
	return tasks[0], nil
}

// List returns one page of the user's tasks and the total matching count.
func (s *TaskStore) List(ctx context.Context, userID int64, f storage.TaskFilter) ([]entity.Task, int, error) {
	where := []string{"t.user_id = ?"}
	args := []interface{}{userID}

	if f.Status != "" {
		where = append(where, "t.status = ?")
		args = append(args, f.Status)
	}
	if f.Priority != "" {
		where = append(where, "t.priority = ?")
		args = append(args, f.Priority)
	}
	if f.Search != "" {
		where = append(where, "(LOWER(t.title) LIKE ? OR LOWER(t.description) LIKE ?)")
		pattern := "%" + strings.ToLower(f.Search) + "%"
		args = append(args, pattern, pattern)
	}
	whereClause := " WHERE " + strings.Join(where, " AND ")

	var total int
	if err := s.db.GetContext(ctx, &total, "SELECT COUNT(*) FROM tasks t"+whereClause, args...); err != nil {
		return nil, 0, fmt.Errorf("counting tasks: %w", err)
	}

	order := "ASC"
	if f.SortDesc {
		order = "DESC"
	}
	query := fmt.Sprintf("SELECT %s FROM tasks t%s ORDER BY t.%s %s, t.id %s LIMIT ? OFFSET ?",
		taskColumns, whereClause, storage.SortColumn(f.SortBy), order, order)
	args = append(args, f.Limit, f.Offset)

	var rows []taskRow
	if err := s.db.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, 0, fmt.Errorf("listing tasks: %w", err)
	}

	tasks, err := toTasks(rows)
	if err != nil {
		return nil, 0, err
	}
	if err := s.loadCategories(ctx, tasks); err != nil {
		return nil, 0, err
	}
	return tasks, total, nil
}

// Update overwrites the mutable fields of a task owned by task.UserID.
func (s *TaskStore) Update(ctx context.Context, task *entity.Task) error {
	now := time.Now()

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx,
		`UPDATE tasks SET title = ?, description = ?, due_date = ?, priority = ?, status = ?, updated_at = ?
		 WHERE id = ? AND user_id = ?`,
		task.Title, task.Description, formatTime(task.DueDate), task.Priority, task.Status,
		formatTime(now), task.ID, task.UserID,
	)
	if err != nil {
		return fmt.Errorf("updating task %d: %w", task.ID, err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("reading update result: %w", err)
	}
	if affected == 0 {
		return storage.ErrNotFound
	}

	if task.CategoryIDs != nil {
		if err := setCategories(ctx, tx, task.ID, task.CategoryIDs); err != nil {
			return err
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing task update: %w", err)
	}
	task.UpdatedAt = &now
	return nil
}

// Delete removes the task. Notifications that link to it are left alone.
func (s *TaskStore) Delete(ctx context.Context, userID, id int64) error {
	res, err := s.db.ExecContext(ctx, "DELETE FROM tasks WHERE id = ? AND user_id = ?", id, userID)
	if err != nil {
		return fmt.Errorf("deleting task %d: %w", id, err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("reading delete result: %w", err)
	}
	if affected == 0 {
		return storage.ErrNotFound
	}
	return nil
}

// DueBetween returns up to limit unfinished tasks, across all users, whose
// due date lies in [from, to] and whose id is greater than afterID. Results
// are ordered by id so callers can page with the last id they saw.
func (s *TaskStore) DueBetween(ctx context.Context, from, to time.Time, afterID int64, limit int) ([]entity.Task, error) {
	var rows []taskRow
	err := s.db.SelectContext(ctx, &rows,
		`SELECT `+taskColumns+`, u.username
		 FROM tasks t
		 LEFT JOIN users u ON u.id = t.user_id
		 WHERE t.due_date >= ? AND t.due_date <= ? AND t.status != ? AND t.id > ?
		 ORDER BY t.id
		 LIMIT ?`,
		formatTime(from), formatTime(to), component.Done, afterID, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("selecting due tasks: %w", err)
	}
	return toTasks(rows)
}

func toTasks(rows []taskRow) ([]entity.Task, error) {
	tasks := make([]entity.Task, 0, len(rows))
	for _, r := range rows {
		t, err := r.toEntity()
		if err != nil {
			return nil, err
		}
		tasks = append(tasks, t)
	}
	return tasks, nil
}

func (s *TaskStore) loadCategories(ctx context.Context, tasks []entity.Task) error {
	if len(tasks) == 0 {
		return nil
	}
	ids := make([]int64, len(tasks))
	index := make(map[int64]int, len(tasks))
	for i, t := range tasks {
		ids[i] = t.ID
		index[t.ID] = i
	}

	query, args, err := sqlx.In(
		"SELECT task_id, category_id FROM task_categories WHERE task_id IN (?) ORDER BY category_id", ids)
	if err != nil {
		return fmt.Errorf("building category query: %w", err)
	}

	var links []struct {
		TaskID     int64 `db:"task_id"`
		CategoryID int64 `db:"category_id"`
	}
	if err := s.db.SelectContext(ctx, &links, s.db.Rebind(query), args...); err != nil {
		return fmt.Errorf("loading task categories: %w", err)
	}
	for _, l := range links {
		i := index[l.TaskID]
		tasks[i].CategoryIDs = append(tasks[i].CategoryIDs, l.CategoryID)
	}
	return nil
}
