package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"taskflow/entity"
	"taskflow/storage"
)

type CategoryStore struct {
	db *sqlx.DB
}

func NewCategoryStore(db *sqlx.DB) *CategoryStore {
	return &CategoryStore{db: db}
}

type categoryRow struct {
	ID          int64          `db:"id"`
	Name        string         `db:"name"`
	Description string         `db:"description"`
	Icon        string         `db:"icon"`
	CreatedAt   string         `db:"created_at"`
	UpdatedAt   sql.NullString `db:"updated_at"`
}

func (s *CategoryStore) Create(ctx context.Context, c *entity.Category) error {
	if c.CreatedAt.IsZero() {
		c.CreatedAt = time.Now()
	}
	res, err := s.db.ExecContext(ctx,
		"INSERT INTO categories (name, description, icon, created_at) VALUES (?, ?, ?, ?)",
		c.Name, c.Description, c.Icon, formatTime(c.CreatedAt))
	if err != nil {
		if storage.IsUniqueViolation(err) {
			return storage.ErrDuplicate
		}
		return fmt.Errorf("inserting category: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return fmt.Errorf("reading category id: %w", err)
	}
	c.ID = id
	return nil
}

func (s *CategoryStore) List(ctx context.Context) ([]entity.Category, error) {
	var rows []categoryRow
	if err := s.db.SelectContext(ctx, &rows,
		"SELECT id, name, description, icon, created_at, updated_at FROM categories ORDER BY name"); err != nil {
		return nil, fmt.Errorf("listing categories: %w", err)
	}

	out := make([]entity.Category, 0, len(rows))
	for _, r := range rows {
		created, err := parseTime(r.CreatedAt)
		if err != nil {
			return nil, err
		}
		updated, err := parseNullTime(r.UpdatedAt)
		if err != nil {
			return nil, err
		}
		out = append(out, entity.Category{
			ID:          r.ID,
			Name:        r.Name,
			Description: r.Description,
			Icon:        r.Icon,
			CreatedAt:   created,
			UpdatedAt:   updated,
		})
	}
	return out, nil
}

// AllExist reports whether every id refers to an existing category.
func (s *CategoryStore) AllExist(ctx context.Context, ids []int64) (bool, error) {
	if len(ids) == 0 {
		return true, nil
	}
	unique := make(map[int64]struct{}, len(ids))
	for _, id := range ids {
		unique[id] = struct{}{}
	}

	query, args, err := sqlx.In("SELECT COUNT(*) FROM categories WHERE id IN (?)", ids)
	if err != nil {
		return false, fmt.Errorf("building category query: %w", err)
	}
	var count int
	if err := s.db.GetContext(ctx, &count, s.db.Rebind(query), args...); err != nil {
		return false, fmt.Errorf("counting categories: %w", err)
	}
	return count == len(unique), nil
}
