package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/stdlib"

	"github.com/restobook/realtime-server/internal/store"
	"github.com/restobook/realtime-server/internal/store/migrations"
	"github.com/restobook/realtime-server/internal/utils"
)

const defaultListLimit = 50

// PostgresStore implements store.Store on a pgx connection pool.
type PostgresStore struct {
	pool *pgxpool.Pool
}

var _ store.Store = (*PostgresStore)(nil)

// New connects to dsn, applies pending migrations and returns the store.
func New(ctx context.Context, dsn string) (*PostgresStore, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("parse database dsn: %w", err)
	}

	cfg.MaxConns = 25
	cfg.MinConns = 2
	cfg.MaxConnLifetime = 30 * time.Minute
	cfg.MaxConnIdleTime = 5 * time.Minute
	cfg.HealthCheckPeriod = time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("create pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}

	sqlDB := stdlib.OpenDBFromPool(pool)
	defer sqlDB.Close()

	if err := migrations.Up(sqlDB, migrations.DialectPostgres); err != nil {
		pool.Close()
		return nil, err
	}

	return &PostgresStore{pool: pool}, nil
}

// SchemaVersion reports the applied migration version.
func (s *PostgresStore) SchemaVersion() (int64, error) {
	sqlDB := stdlib.OpenDBFromPool(s.pool)
	defer sqlDB.Close()
	return migrations.Version(sqlDB, migrations.DialectPostgres)
}

// Close releases the pool.
func (s *PostgresStore) Close() error {
	s.pool.Close()
	return nil
}

// ==== UserStore implementation ====

func (s *PostgresStore) CreateUser(ctx context.Context, name, email, passwordHash string, role store.Role) (*store.User, error) {
	query := `
		INSERT INTO users (id, name, email, password_hash, role, is_suspended, created_at)
		VALUES ($1, $2, $3, $4, $5, FALSE, $6)
	`
	id := utils.NewID()
	if _, err := s.pool.Exec(ctx, query, id, name, email, passwordHash, string(role), time.Now().UTC()); err != nil {
		return nil, fmt.Errorf("insert user: %w", err)
	}
	return s.GetUserByID(ctx, id)
}

func (s *PostgresStore) GetUserByID(ctx context.Context, id string) (*store.User, error) {
	return s.queryUser(ctx, `WHERE id = $1`, id)
}

func (s *PostgresStore) GetUserByEmail(ctx context.Context, email string) (*store.User, error) {
	return s.queryUser(ctx, `WHERE email = $1`, email)
}

func (s *PostgresStore) SetUserSuspended(ctx context.Context, id string, suspended bool) error {
	tag, err := s.pool.Exec(ctx, `UPDATE users SET is_suspended = $1 WHERE id = $2`, suspended, id)
	if err != nil {
		return fmt.Errorf("update user: %w", err)
	}
	return expectAffected(tag, "user")
}

func (s *PostgresStore) queryUser(ctx context.Context, where string, arg any) (*store.User, error) {
	query := `
		SELECT id, name, email, password_hash, role, is_suspended, created_at
		FROM users
	` + where

	var (
		user store.User
		role string
	)
	err := s.pool.QueryRow(ctx, query, arg).Scan(
		&user.ID,
		&user.Name,
		&user.Email,
		&user.PasswordHash,
		&role,
		&user.IsSuspended,
		&user.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("user: %w", store.ErrNotFound)
		}
		return nil, fmt.Errorf("query user: %w", err)
	}
	user.Role = store.Role(role)
	return &user, nil
}

// ==== GuestStore implementation ====

func (s *PostgresStore) EnsureGuest(ctx context.Context, visitorID, name string) (*store.Guest, error) {
	query := `
		INSERT INTO guests (id, visitor_id, name, created_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (visitor_id) DO NOTHING
	`
	if _, err := s.pool.Exec(ctx, query, utils.NewID(), visitorID, name, time.Now().UTC()); err != nil {
		return nil, fmt.Errorf("insert guest: %w", err)
	}
	return s.GetGuestByVisitorID(ctx, visitorID)
}

func (s *PostgresStore) GetGuestByVisitorID(ctx context.Context, visitorID string) (*store.Guest, error) {
	query := `
		SELECT id, visitor_id, name, created_at
		FROM guests
		WHERE visitor_id = $1
	`
	var guest store.Guest
	err := s.pool.QueryRow(ctx, query, visitorID).Scan(&guest.ID, &guest.VisitorID, &guest.Name, &guest.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("guest: %w", store.ErrNotFound)
		}
		return nil, fmt.Errorf("query guest: %w", err)
	}
	return &guest, nil
}

// ==== MessageStore implementation ====

func (s *PostgresStore) SaveMessage(ctx context.Context, msg *store.Message) error {
	if msg.ID == "" {
		msg.ID = utils.NewID()
	}
	if msg.CreatedAt.IsZero() {
		msg.CreatedAt = time.Now().UTC()
	}

	query := `
		INSERT INTO messages (id, sender_type, guest_id, user_id, text, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`
	_, err := s.pool.Exec(ctx, query, msg.ID, string(msg.SenderType), msg.GuestID, msg.UserID, msg.Text, msg.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert message: %w", err)
	}
	return nil
}

func (s *PostgresStore) ListGuestMessages(ctx context.Context, guestID string, limit int, before time.Time) ([]*store.Message, error) {
	return s.listMessages(ctx, "guest_id", guestID, limit, before)
}

func (s *PostgresStore) ListUserMessages(ctx context.Context, userID string, limit int, before time.Time) ([]*store.Message, error) {
	return s.listMessages(ctx, "user_id", userID, limit, before)
}

func (s *PostgresStore) listMessages(ctx context.Context, column, ref string, limit int, before time.Time) ([]*store.Message, error) {
	if limit <= 0 {
		limit = defaultListLimit
	}

	// Subquery keeps the newest page, outer query returns it oldest first.
	query := `
		SELECT id, sender_type, guest_id, user_id, text, created_at FROM (
			SELECT id, sender_type, guest_id, user_id, text, created_at
			FROM messages
			WHERE ` + column + ` = $1 AND ($2::timestamptz IS NULL OR created_at < $2)
			ORDER BY created_at DESC
			LIMIT $3
		) page
		ORDER BY created_at ASC
	`
	var beforeArg *time.Time
	if !before.IsZero() {
		beforeArg = &before
	}

	rows, err := s.pool.Query(ctx, query, ref, beforeArg, limit)
	if err != nil {
		return nil, fmt.Errorf("query messages: %w", err)
	}
	defer rows.Close()

	var messages []*store.Message
	for rows.Next() {
		var (
			msg        store.Message
			senderType string
		)
		if err := rows.Scan(&msg.ID, &senderType, &msg.GuestID, &msg.UserID, &msg.Text, &msg.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan message: %w", err)
		}
		msg.SenderType = store.SenderType(senderType)
		messages = append(messages, &msg)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate messages: %w", err)
	}
	return messages, nil
}

// ==== NotificationStore implementation ====

func (s *PostgresStore) SaveNotification(ctx context.Context, n *store.Notification) error {
	if n.ID == "" {
		n.ID = utils.NewID()
	}
	if n.CreatedAt.IsZero() {
		n.CreatedAt = time.Now().UTC()
	}

	query := `
		INSERT INTO notifications (id, recipient_type, recipient, sender_id, type, content, link, is_read, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`
	_, err := s.pool.Exec(ctx, query,
		n.ID, string(n.RecipientType), n.Recipient, n.SenderID, n.Type, n.Content, n.Link, n.IsRead, n.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert notification: %w", err)
	}
	return nil
}

func (s *PostgresStore) ListNotifications(ctx context.Context, recipientType store.RecipientType, recipient string, limit int) ([]*store.Notification, error) {
	if limit <= 0 {
		limit = defaultListLimit
	}

	query := `
		SELECT id, recipient_type, recipient, sender_id, type, content, link, is_read, created_at
		FROM notifications
		WHERE recipient_type = $1 AND recipient = $2
		ORDER BY created_at DESC
		LIMIT $3
	`
	rows, err := s.pool.Query(ctx, query, string(recipientType), recipient, limit)
	if err != nil {
		return nil, fmt.Errorf("query notifications: %w", err)
	}
	defer rows.Close()

	var out []*store.Notification
	for rows.Next() {
		var (
			n     store.Notification
			rtype string
		)
		if err := rows.Scan(&n.ID, &rtype, &n.Recipient, &n.SenderID, &n.Type, &n.Content, &n.Link, &n.IsRead, &n.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan notification: %w", err)
		}
		n.RecipientType = store.RecipientType(rtype)
		out = append(out, &n)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate notifications: %w", err)
	}
	return out, nil
}

func (s *PostgresStore) MarkNotificationRead(ctx context.Context, id string, recipientType store.RecipientType, recipient string) error {
	query := `
		UPDATE notifications SET is_read = TRUE
		WHERE id = $1 AND recipient_type = $2 AND recipient = $3
	`
	tag, err := s.pool.Exec(ctx, query, id, string(recipientType), recipient)
	if err != nil {
		return fmt.Errorf("update notification: %w", err)
	}
	return expectAffected(tag, "notification")
}

func expectAffected(tag pgconn.CommandTag, what string) error {
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%s: %w", what, store.ErrNotFound)
	}
	return nil
}
