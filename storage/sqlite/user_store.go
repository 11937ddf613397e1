package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"taskflow/entity"
	"taskflow/storage"
)

type UserStore struct {
	db *sqlx.DB
}

func NewUserStore(db *sqlx.DB) *UserStore {
	return &UserStore{db: db}
}

type userRow struct {
	ID          int64          `db:"id"`
	Username    string         `db:"username"`
	Email       string         `db:"email"`
	Password    string         `db:"password"`
	CreatedAt   string         `db:"created_at"`
	LastLoginAt sql.NullString `db:"last_login_at"`
}

func (r userRow) toEntity() (entity.User, error) {
	created, err := parseTime(r.CreatedAt)
	if err != nil {
		return entity.User{}, err
	}
	lastLogin, err := parseNullTime(r.LastLoginAt)
	if err != nil {
		return entity.User{}, err
	}
	return entity.User{
		ID:          r.ID,
		Username:    r.Username,
		Email:       r.Email,
		Password:    r.Password,
		CreatedAt:   created,
		LastLoginAt: lastLogin,
	}, nil
}

// Create stores a user whose Password already holds the bcrypt hash.
func (s *UserStore) Create(ctx context.Context, u *entity.User) error {
	if u.CreatedAt.IsZero() {
		u.CreatedAt = time.Now()
	}
	res, err := s.db.ExecContext(ctx,
		"INSERT INTO users (username, email, password, created_at) VALUES (?, ?, ?, ?)",
		u.Username, u.Email, u.Password, formatTime(u.CreatedAt))
	if err != nil {
		if storage.IsUniqueViolation(err) {
			return storage.ErrDuplicate
		}
		return fmt.Errorf("inserting user: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return fmt.Errorf("reading user id: %w", err)
	}
	u.ID = id
	return nil
}

func (s *UserStore) GetByUsername(ctx context.Context, username string) (entity.User, error) {
	return s.getOne(ctx, "SELECT * FROM users WHERE username = ?", username)
}

func (s *UserStore) GetByID(ctx context.Context, id int64) (entity.User, error) {
	return s.getOne(ctx, "SELECT * FROM users WHERE id = ?", id)
}

func (s *UserStore) getOne(ctx context.Context, query string, arg interface{}) (entity.User, error) {
	var row userRow
	err := s.db.GetContext(ctx, &row, query, arg)
	if errors.Is(err, sql.ErrNoRows) {
		return entity.User{}, storage.ErrNotFound
	}
	if err != nil {
		return entity.User{}, fmt.Errorf("getting user: %w", err)
	}
	return row.toEntity()
}

func (s *UserStore) TouchLogin(ctx context.Context, id int64, at time.Time) error {
	if _, err := s.db.ExecContext(ctx,
		"UPDATE users SET last_login_at = ? WHERE id = ?", formatTime(at), id); err != nil {
		return fmt.Errorf("updating last login: %w", err)
	}
	return nil
}
