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

type NotificationStore struct {
	db  *sqlx.DB
	now func() time.Time
}

func NewNotificationStore(db *sqlx.DB) *NotificationStore {
	return &NotificationStore{db: db, now: time.Now}
}

type notificationRow struct {
	ID         int64          `db:"id"`
	UserID     int64          `db:"user_id"`
	Message    string         `db:"message"`
	Severity   string         `db:"severity"`
	Read       bool           `db:"read"`
	Link       string         `db:"link"`
	CreatedAt  string         `db:"created_at"`
	DedupScope sql.NullString `db:"dedup_scope"`
	DedupKey   sql.NullString `db:"dedup_key"`
}

func (r notificationRow) toEntity() (entity.Notification, error) {
	created, err := parseTime(r.CreatedAt)
	if err != nil {
		return entity.Notification{}, err
	}
	return entity.Notification{
		ID:         r.ID,
		UserID:     r.UserID,
		Message:    r.Message,
		Severity:   component.Severity(r.Severity),
		Read:       r.Read,
		Link:       r.Link,
		CreatedAt:  created,
		DedupScope: r.DedupScope.String,
		DedupKey:   r.DedupKey.String,
	}, nil
}

const notificationColumns = "id, user_id, message, severity, read, link, created_at, dedup_scope, dedup_key"

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

// Create inserts n if its owner exists. It returns storage.ErrNotFound for an
// unknown owner and storage.ErrDuplicate when n.DedupKey is already taken.
func (s *NotificationStore) Create(ctx context.Context, n *entity.Notification) error {
	if n.CreatedAt.IsZero() {
		n.CreatedAt = s.now()
	}
	if n.Severity == "" {
		n.Severity = component.Info
	}

	res, err := s.db.ExecContext(ctx,
		`INSERT INTO notifications (user_id, message, severity, read, link, created_at, dedup_scope, dedup_key)
		 SELECT ?, ?, ?, ?, ?, ?, ?, ?
		 WHERE EXISTS (SELECT 1 FROM users WHERE id = ?)`,
		n.UserID, n.Message, n.Severity, n.Read, n.Link, formatTime(n.CreatedAt),
		nullString(n.DedupScope), nullString(n.DedupKey), n.UserID,
	)
	if err != nil {
		if storage.IsUniqueViolation(err) {
			return storage.ErrDuplicate
		}
		return fmt.Errorf("inserting notification: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("reading insert result: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("notification owner %d: %w", n.UserID, storage.ErrNotFound)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return fmt.Errorf("reading notification id: %w", err)
	}
	n.ID = id
	return nil
}

// ExistsScopeSince reports whether a notification with the given dedup
// scope was created at or after since.
func (s *NotificationStore) ExistsScopeSince(ctx context.Context, scope string, since time.Time) (bool, error) {
	var count int
	err := s.db.GetContext(ctx, &count,
		"SELECT COUNT(*) FROM notifications WHERE dedup_scope = ? AND created_at >= ?",
		scope, formatTime(since))
	if err != nil {
		return false, fmt.Errorf("checking notification scope: %w", err)
	}
	return count > 0, nil
}

// ExistsMatchingSince reports whether any notification, for any user, created
// at or after since has a message containing title followed later by phrase.
func (s *NotificationStore) ExistsMatchingSince(ctx context.Context, title, phrase string, since time.Time) (bool, error) {
	var messages []string
	err := s.db.SelectContext(ctx, &messages,
		`SELECT message FROM notifications
		 WHERE created_at >= ? AND instr(message, ?) > 0 AND instr(message, ?) > 0`,
		formatTime(since), title, phrase)
	if err != nil {
		return false, fmt.Errorf("matching notification messages: %w", err)
	}
	for _, m := range messages {
		if MessageMatches(m, title, phrase) {
			return true, nil
		}
	}
	return false, nil
}

// MessageMatches reports whether message contains title with phrase somewhere
// after it.
func MessageMatches(message, title, phrase string) bool {
	i := strings.Index(message, title)
	if i < 0 {
		return false
	}
	return strings.Contains(message[i+len(title):], phrase)
}

// ListForUser returns the newest notifications of a user.
func (s *NotificationStore) ListForUser(ctx context.Context, userID int64, unreadOnly bool, limit int) ([]entity.Notification, error) {
	query := "SELECT " + notificationColumns + " FROM notifications WHERE user_id = ?"
	args := []interface{}{userID}
	if unreadOnly {
		query += " AND read = 0"
	}
	query += " ORDER BY created_at DESC, id DESC LIMIT ?"
	args = append(args, limit)

	var rows []notificationRow
	if err := s.db.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, fmt.Errorf("listing notifications: %w", err)
	}

	out := make([]entity.Notification, 0, len(rows))
	for _, r := range rows {
		n, err := r.toEntity()
		if err != nil {
			return nil, err
		}
		out = append(out, n)
	}
	return out, nil
}

func (s *NotificationStore) Get(ctx context.Context, userID, id int64) (entity.Notification, error) {
	var row notificationRow
	err := s.db.GetContext(ctx, &row,
		"SELECT "+notificationColumns+" FROM notifications WHERE id = ? AND user_id = ?", id, userID)
	if errors.Is(err, sql.ErrNoRows) {
		return entity.Notification{}, storage.ErrNotFound
	}
	if err != nil {
		return entity.Notification{}, fmt.Errorf("getting notification %d: %w", id, err)
	}
	return row.toEntity()
}

func (s *NotificationStore) MarkRead(ctx context.Context, userID, id int64) (entity.Notification, error) {
	res, err := s.db.ExecContext(ctx,
		"UPDATE notifications SET read = 1 WHERE id = ? AND user_id = ?", id, userID)
	if err != nil {
		return entity.Notification{}, fmt.Errorf("marking notification %d read: %w", id, err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return entity.Notification{}, fmt.Errorf("reading update result: %w", err)
	}
	if affected == 0 {
		return entity.Notification{}, storage.ErrNotFound
	}
	return s.Get(ctx, userID, id)
}

// MarkAllRead marks every unread notification of the user and returns how
// many changed.
func (s *NotificationStore) MarkAllRead(ctx context.Context, userID int64) (int64, error) {
	res, err := s.db.ExecContext(ctx,
		"UPDATE notifications SET read = 1 WHERE user_id = ? AND read = 0", userID)
	if err != nil {
		return 0, fmt.Errorf("marking notifications read: %w", err)
	}
	return res.RowsAffected()
}

func (s *NotificationStore) Delete(ctx context.Context, userID, id int64) error {
	res, err := s.db.ExecContext(ctx,
		"DELETE FROM notifications WHERE id = ? AND user_id = ?", id, userID)
	if err != nil {
		return fmt.Errorf("deleting notification %d: %w", id, err)
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
