// Package sqlitetest provides in-memory databases for tests.
package sqlitetest

import (
	"context"
	"testing"
	"time"

	"github.com/jmoiron/sqlx"

	"taskflow/entity"
	"taskflow/storage/sqlite"
)

// NewTestDB creates an in-memory database with all migrations applied.
// It is closed when the test completes.
func NewTestDB(t *testing.T) *sqlx.DB {
	t.Helper()

	db, err := sqlite.InitDB(context.Background(), ":memory:", nil)
	if err != nil {
		t.Fatalf("creating test db: %v", err)
	}

	t.Cleanup(func() {
		if err := db.Close(); err != nil {
			t.Errorf("closing test db: %v", err)
		}
	})
	return db
}

// MustCreateUser inserts a user with a placeholder password hash.
func MustCreateUser(t *testing.T, db *sqlx.DB, username string) entity.User {
	t.Helper()

	u := entity.User{Username: username, Email: username + "@example.com", Password: "x"}
	if err := sqlite.NewUserStore(db).Create(context.Background(), &u); err != nil {
		t.Fatalf("creating user %s: %v", username, err)
	}
	return u
}

// MustCreateTask inserts a task for the user.
func MustCreateTask(t *testing.T, db *sqlx.DB, task entity.Task) entity.Task {
	t.Helper()

	if task.Priority == "" {
		task.Priority = "medium"
	}
	if task.Status == "" {
		task.Status = "todo"
	}
	if task.CreatedAt.IsZero() {
		task.CreatedAt = time.Now()
	}
	if err := sqlite.NewTaskStore(db).Create(context.Background(), &task); err != nil {
		t.Fatalf("creating task %q: %v", task.Title, err)
	}
	return task
}
