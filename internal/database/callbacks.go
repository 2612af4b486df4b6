package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"zapis/internal/models"

	sq "github.com/Masterminds/squirrel"
	"github.com/google/uuid"
)

var callbackColumns = []string{
	"id", "user_id", "kind", "first_name", "phone", "preferred_at",
	"status", "attempts", "max_attempts", "created_at", "updated_at",
}

var openCallbackStatuses = []string{
	models.CallbackStatusScheduled,
	models.CallbackStatusInQueue,
	models.CallbackStatusInProgress,
}

func (db *DB) CreateCallback(ctx context.Context, c *models.CallbackRequest) error {
	now := time.Now().UTC()
	if c.ID == "" {
		c.ID = uuid.NewString()
	}
	c.PreferredAt = c.PreferredAt.UTC()
	c.CreatedAt = now
	c.UpdatedAt = now

	_, err := db.ExecContext(ctx,
		`INSERT INTO callback_requests (
            id, user_id, kind, first_name, phone, preferred_at,
            status, attempts, max_attempts, created_at, updated_at
         ) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		c.ID, c.UserID, c.Kind, c.FirstName, c.Phone, c.PreferredAt,
		c.Status, c.Attempts, c.MaxAttempts, c.CreatedAt, c.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create callback request: %w", err)
	}
	return nil
}

func (db *DB) GetCallback(ctx context.Context, id string) (*models.CallbackRequest, error) {
	row, err := db.queryRowContext(ctx, selectCallbacks().Where(sq.Eq{"id": id}))
	if err != nil {
		return nil, err
	}
	c, err := scanCallback(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	return c, err
}

// QueuePosition returns the 1-based position of an in-queue request in the
// order ListCallbacksByStatus uses: preferred time, then creation, then id.
func (db *DB) QueuePosition(ctx context.Context, c *models.CallbackRequest) (int, error) {
	preferred, created := c.PreferredAt.UTC(), c.CreatedAt.UTC()
	row, err := db.queryRowContext(ctx, sq.
		Select("COUNT(*)").
		From("callback_requests").
		Where(sq.Eq{"status": models.CallbackStatusInQueue}).
		Where(sq.Or{
			sq.Lt{"preferred_at": preferred},
			sq.And{sq.Eq{"preferred_at": preferred}, sq.Lt{"created_at": created}},
			sq.And{sq.Eq{"preferred_at": preferred}, sq.Eq{"created_at": created}, sq.Lt{"id": c.ID}},
		}))
	if err != nil {
		return 0, err
	}
	var ahead int
	if err := row.Scan(&ahead); err != nil {
		return 0, fmt.Errorf("failed to count queue: %w", err)
	}
	return ahead + 1, nil
}

// ListDueCallbacks returns scheduled requests whose preferred time has come.
func (db *DB) ListDueCallbacks(ctx context.Context, now time.Time) ([]*models.CallbackRequest, error) {
	return db.listCallbacks(ctx, selectCallbacks().
		Where(sq.Eq{"status": models.CallbackStatusScheduled}).
		Where(sq.LtOrEq{"preferred_at": now.UTC()}).
		OrderBy("preferred_at ASC"))
}

func (db *DB) ListCallbacksByStatus(ctx context.Context, status string) ([]*models.CallbackRequest, error) {
	return db.listCallbacks(ctx, selectCallbacks().
		Where(sq.Eq{"status": status}).
		OrderBy("preferred_at ASC", "created_at ASC", "id ASC"))
}

// TransitionCallback moves a request to status if its current status is one
// of from. Returns ErrNotFound for unknown ids and ErrInvalidTransition when
// the current status does not allow the change.
func (db *DB) TransitionCallback(ctx context.Context, id string, from []string, to string) error {
	res, err := db.ExecContext(ctx, fmt.Sprintf(
		`UPDATE callback_requests SET status = ?, updated_at = ?
         WHERE id = ? AND status IN (%s)`, placeholders(len(from))),
		append([]any{to, time.Now().UTC(), id}, toAny(from)...)...)
	if err != nil {
		return fmt.Errorf("failed to update callback status: %w", err)
	}
	return db.transitionResult(ctx, res, id)
}

// CancelCallback cancels the user's open request; false when nothing changed.
func (db *DB) CancelCallback(ctx context.Context, id, userID string) (bool, error) {
	res, err := db.ExecContext(ctx, fmt.Sprintf(
		`UPDATE callback_requests SET status = ?, updated_at = ?
         WHERE id = ? AND user_id = ? AND status IN (%s)`, placeholders(len(openCallbackStatuses))),
		append([]any{models.CallbackStatusCancelled, time.Now().UTC(), id, userID}, toAny(openCallbackStatuses)...)...)
	if err != nil {
		return false, fmt.Errorf("failed to cancel callback: %w", err)
	}
	return affected(res)
}

// RecordFailedAttempt increments the attempt counter of an in-queue request.
// The request becomes missed once the counter reaches max_attempts; otherwise
// it stays queued with a new preferred time.
func (db *DB) RecordFailedAttempt(ctx context.Context, id string, next time.Time) error {
	res, err := db.ExecContext(ctx,
		`UPDATE callback_requests SET
            attempts = attempts + 1,
            status = CASE WHEN attempts + 1 >= max_attempts THEN ? ELSE status END,
            preferred_at = ?,
            updated_at = ?
         WHERE id = ? AND status = ? AND attempts < max_attempts`,
		models.CallbackStatusMissed, next.UTC(), time.Now().UTC(), id, models.CallbackStatusInQueue)
	if err != nil {
		return fmt.Errorf("failed to record callback attempt: %w", err)
	}
	return db.transitionResult(ctx, res, id)
}

func (db *DB) transitionResult(ctx context.Context, res sql.Result, id string) error {
	ok, err := affected(res)
	if err != nil {
		return err
	}
	if ok {
		return nil
	}
	if _, err := db.GetCallback(ctx, id); err != nil {
		return err
	}
	return ErrInvalidTransition
}

func selectCallbacks() sq.SelectBuilder {
	return sq.Select(callbackColumns...).From("callback_requests")
}

func (db *DB) listCallbacks(ctx context.Context, b sq.SelectBuilder) ([]*models.CallbackRequest, error) {
	rows, err := db.queryContext(ctx, b)
	if err != nil {
		return nil, fmt.Errorf("failed to query callbacks: %w", err)
	}
	defer rows.Close()

	var result []*models.CallbackRequest
	for rows.Next() {
		c, err := scanCallback(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, c)
	}
	return result, rows.Err()
}

func scanCallback(row rowScanner) (*models.CallbackRequest, error) {
	var c models.CallbackRequest
	err := row.Scan(
		&c.ID, &c.UserID, &c.Kind, &c.FirstName, &c.Phone, &c.PreferredAt,
		&c.Status, &c.Attempts, &c.MaxAttempts, &c.CreatedAt, &c.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &c, nil
}

func placeholders(n int) string {
	if n == 0 {
		return ""
	}
	return sq.Placeholders(n)
}

func toAny(values []string) []any {
	out := make([]any, len(values))
	for i, v := range values {
		out[i] = v
	}
	return out
}
