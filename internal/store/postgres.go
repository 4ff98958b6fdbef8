package store

import (
	"context"
	"database/sql"
	_ "embed"
	"fmt"

	"campus-notify-go/internal/models"

	_ "github.com/lib/pq"
)

//go:embed schema.sql
var schemaSQL string

// PostgresStore is the durable NotificationStore backed by PostgreSQL.
type PostgresStore struct {
	db *sql.DB
}

func NewPostgresStore(databaseURL string) (*PostgresStore, error) {
	db, err := sql.Open("postgres", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return &PostgresStore{db: db}, nil
}

// RunMigrations creates tables if they don't exist and applies schema updates.
func (s *PostgresStore) RunMigrations(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, schemaSQL); err != nil {
		return err
	}

	migrations := []string{
		`ALTER TABLE notifications ADD COLUMN IF NOT EXISTS related_id INTEGER NOT NULL DEFAULT 0;`,
		`ALTER TABLE push_subscriptions ADD COLUMN IF NOT EXISTS created_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW();`,
	}

	for _, migration := range migrations {
		if _, err := s.db.ExecContext(ctx, migration); err != nil {
			return fmt.Errorf("migration failed: %w", err)
		}
	}

	return nil
}

// Close releases the underlying connection pool.
func (s *PostgresStore) Close() error {
	return s.db.Close()
}

func (s *PostgresStore) Create(ctx context.Context, recipientID int, category models.Category, title, body string, relatedID int) (models.Notification, error) {
	var n models.Notification
	err := s.db.QueryRowContext(ctx,
		`INSERT INTO notifications (recipient_id, category, title, body, related_id, is_read, created_at)
		 VALUES ($1, $2, $3, $4, $5, FALSE, NOW())
		 RETURNING id, recipient_id, category, title, body, related_id, is_read, created_at`,
		recipientID, string(category), title, body, relatedID,
	).Scan(&n.ID, &n.RecipientID, &n.Category, &n.Title, &n.Body, &n.RelatedID, &n.Read, &n.CreatedAt)

	if err != nil {
		return models.Notification{}, err
	}

	return n, nil
}

func (s *PostgresStore) ListByRecipient(ctx context.Context, recipientID, cursor, limit int) ([]models.Notification, int, error) {
	if limit <= 0 {
		limit = 50
	}

	// Keyset pagination: ids are monotonic, so "id < cursor" walks the
	// list newest-first without missing rows when new ones are inserted.
	query := `SELECT id, recipient_id, category, title, body, related_id, is_read, created_at
		  FROM notifications WHERE recipient_id = $1`
	args := []any{recipientID}
	if cursor > 0 {
		query += ` AND id < $2 ORDER BY id DESC LIMIT $3`
		args = append(args, cursor, limit+1)
	} else {
		query += ` ORDER BY id DESC LIMIT $2`
		args = append(args, limit+1)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var items []models.Notification
	for rows.Next() {
		var n models.Notification
		if err := rows.Scan(&n.ID, &n.RecipientID, &n.Category, &n.Title, &n.Body, &n.RelatedID, &n.Read, &n.CreatedAt); err != nil {
			return nil, 0, err
		}
		items = append(items, n)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, err
	}

	nextCursor := 0
	if len(items) > limit {
		items = items[:limit]
		nextCursor = items[len(items)-1].ID
	}

	return items, nextCursor, nil
}

func (s *PostgresStore) UnreadCount(ctx context.Context, recipientID int) (int, error) {
	var count int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM notifications WHERE recipient_id = $1 AND is_read = FALSE`,
		recipientID,
	).Scan(&count)
	return count, err
}

// MarkRead is conditional on the current flag so concurrent marks from
// multiple sessions commute: only one caller observes the transition.
func (s *PostgresStore) MarkRead(ctx context.Context, recipientID, notificationID int) (bool, error) {
	result, err := s.db.ExecContext(ctx,
		`UPDATE notifications SET is_read = TRUE
		 WHERE id = $1 AND recipient_id = $2 AND is_read = FALSE`,
		notificationID, recipientID,
	)
	if err != nil {
		return false, err
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return false, err
	}
	return rows > 0, nil
}

func (s *PostgresStore) MarkAllRead(ctx context.Context, recipientID int) (int, error) {
	result, err := s.db.ExecContext(ctx,
		`UPDATE notifications SET is_read = TRUE
		 WHERE recipient_id = $1 AND is_read = FALSE`,
		recipientID,
	)
	if err != nil {
		return 0, err
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return 0, err
	}
	return int(rows), nil
}

// Push subscription methods

func (s *PostgresStore) SavePushSubscription(ctx context.Context, recipientID int, endpoint, p256dh, auth string) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO push_subscriptions (recipient_id, endpoint, keys_p256dh, keys_auth, created_at)
		 VALUES ($1, $2, $3, $4, NOW())
		 ON CONFLICT (endpoint) DO UPDATE SET recipient_id = $1, keys_p256dh = $3, keys_auth = $4`,
		recipientID, endpoint, p256dh, auth,
	)
	return err
}

func (s *PostgresStore) GetPushSubscriptions(ctx context.Context, recipientID int) ([]models.PushSubscription, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, recipient_id, endpoint, keys_p256dh, keys_auth, created_at
		 FROM push_subscriptions WHERE recipient_id = $1`,
		recipientID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var subs []models.PushSubscription
	for rows.Next() {
		var sub models.PushSubscription
		if err := rows.Scan(&sub.ID, &sub.RecipientID, &sub.Endpoint, &sub.P256dh, &sub.Auth, &sub.CreatedAt); err != nil {
			continue
		}
		subs = append(subs, sub)
	}

	return subs, rows.Err()
}

func (s *PostgresStore) DeletePushSubscription(ctx context.Context, endpoint string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM push_subscriptions WHERE endpoint = $1`, endpoint)
	return err
}
