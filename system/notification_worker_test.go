package system

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"taskflow/component"
	"taskflow/entity"
	"taskflow/storage/sqlite"
	"taskflow/storage/sqlite/sqlitetest"
)

type recordingPublisher struct {
	mu   sync.Mutex
	sent []entity.Notification
}

func (p *recordingPublisher) Publish(n entity.Notification) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.sent = append(p.sent, n)
}

func (p *recordingPublisher) all() []entity.Notification {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]entity.Notification(nil), p.sent...)
}

func newMockNotificationStore(t *testing.T) (*sqlite.NotificationStore, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return sqlite.NewNotificationStore(sqlx.NewDb(db, "sqlite")), mock
}

func TestNotificationWorkerPool_StoresThenPublishes(t *testing.T) {
	store, mock := newMockNotificationStore(t)
	mock.ExpectExec("INSERT INTO notifications").WillReturnResult(sqlmock.NewResult(1, 1))
	pub := &recordingPublisher{}

	pool := NewNotificationWorkerPool(store, pub, 2, zap.NewNop())
	pool.Start(context.Background())
	require.True(t, pool.Submit(NotificationJob{
		UserID:   7,
		Message:  "Nouvelle tâche créée : Write report",
		Severity: component.Info,
		Link:     "/tasks/3",
	}))
	pool.Stop()

	sent := pub.all()
	require.Len(t, sent, 1)
	assert.Equal(t, int64(1), sent[0].ID)
	assert.Equal(t, int64(7), sent[0].UserID)
	assert.Equal(t, "/tasks/3", sent[0].Link)
	assert.False(t, sent[0].CreatedAt.IsZero())
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestNotificationWorkerPool_StoreErrorSkipsPublish(t *testing.T) {
	store, mock := newMockNotificationStore(t)
	mock.ExpectExec("INSERT INTO notifications").WillReturnError(assert.AnError)
	pub := &recordingPublisher{}

	pool := NewNotificationWorkerPool(store, pub, 1, zap.NewNop())
	pool.Start(context.Background())
	pool.Submit(NotificationJob{UserID: 7, Message: "x"})
	pool.Stop()

	assert.Empty(t, pub.all())
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestNotificationWorkerPool_StopDrainsQueueAfterCancel(t *testing.T) {
	db := sqlitetest.NewTestDB(t)
	alice := sqlitetest.MustCreateUser(t, db, "alice")
	store := sqlite.NewNotificationStore(db)
	pub := &recordingPublisher{}

	ctx, cancel := context.WithCancel(context.Background())
	pool := NewNotificationWorkerPool(store, pub, 1, zap.NewNop())
	pool.Start(ctx)
	for i := 0; i < 10; i++ {
		require.True(t, pool.Submit(NotificationJob{
			UserID:  alice.ID,
			Message: fmt.Sprintf("Nouvelle tâche créée : task %d", i),
		}))
	}
	cancel()
	pool.Stop()

	stored, err := store.ListForUser(context.Background(), alice.ID, false, 50)
	require.NoError(t, err)
	assert.Len(t, stored, 10)
	assert.Len(t, pub.all(), 10)
}

func TestNotificationWorkerPool_SubmitAfterStop(t *testing.T) {
	pool := NewNotificationWorkerPool(nil, nil, 1, zap.NewNop())
	pool.Start(context.Background())
	pool.Stop()
	pool.Stop()

	assert.False(t, pool.Submit(NotificationJob{UserID: 1}))
}

func TestNotificationWorkerPool_FullQueueDrops(t *testing.T) {
	pool := NewNotificationWorkerPool(nil, nil, 0, zap.NewNop())
	for i := 0; i < cap(pool.JobQueue); i++ {
		require.True(t, pool.Submit(NotificationJob{UserID: int64(i)}))
	}

	assert.False(t, pool.Submit(NotificationJob{UserID: 999}))
}
