package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"zapis/internal/models"

	sq "github.com/Masterminds/squirrel"
)

// UpsertUser stores the latest known contact details. Empty fields do not
// overwrite stored values.
func (db *DB) UpsertUser(ctx context.Context, user *models.User) error {
	query := `INSERT INTO users (user_id, first_name, last_name, phone, created_at, updated_at)
              VALUES (?, ?, ?, ?, ?, ?)
              ON CONFLICT(user_id) DO UPDATE SET
                first_name = CASE WHEN excluded.first_name <> '' THEN excluded.first_name ELSE users.first_name END,
                last_name = CASE WHEN excluded.last_name <> '' THEN excluded.last_name ELSE users.last_name END,
                phone = CASE WHEN excluded.phone <> '' THEN excluded.phone ELSE users.phone END,
                updated_at = excluded.updated_at`
	now := time.Now().UTC()
	_, err := db.ExecContext(ctx, query,
		user.UserID, user.FirstName, user.LastName, user.Phone, now, now)
	if err != nil {
		return fmt.Errorf("failed to upsert user: %w", err)
	}
	return nil
}

func (db *DB) GetUser(ctx context.Context, userID string) (*models.User, error) {
	row, err := db.queryRowContext(ctx, sq.
		Select("user_id", "first_name", "last_name", "phone", "created_at", "updated_at").
		From("users").
		Where(sq.Eq{"user_id": userID}))
	if err != nil {
		return nil, err
	}

	var u models.User
	err = row.Scan(&u.UserID, &u.FirstName, &u.LastName, &u.Phone, &u.CreatedAt, &u.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get user: %w", err)
	}
	return &u, nil
}
