package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/restobook/realtime-server/internal/store"
	"github.com/restobook/realtime-server/internal/store/migrations"
	"github.com/restobook/realtime-server/internal/utils"
)

const defaultListLimit = 50

// SQLiteStore implements store.Store for SQLite.
type SQLiteStore struct {
	db *sql.DB
}

var _ store.Store = (*SQLiteStore)(nil)

// New creates a new SQLite store and applies pending migrations.
// dbPath is the path to the SQLite database file.
func New(dbPath string) (*SQLiteStore, error) {
	return NewWithSetup(dbPath, func(db *sql.DB) error {
		return migrations.Up(db, migrations.DialectSQLite)
	})
}

// NewWithSetup creates a new SQLite store and runs a setup function.
// Useful for tests to apply schema without migrations.
func NewWithSetup(dbPath string, setup func(*sql.DB) error) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}

	// Set connection pool limits before setup
	db.SetMaxOpenConns(1) // SQLite works best with single connection
	db.SetMaxIdleConns(1)

	// Run setup function (e.g., apply schema)
	if setup != nil {
		if err := setup(db); err != nil {
			db.Close()
			return nil, fmt.Errorf("setup: %w", err)
		}
	}

	// Test connection
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping sqlite: %w", err)
	}

	return &SQLiteStore{db: db}, nil
}

// SchemaVersion reports the applied migration version.
func (s *SQLiteStore) SchemaVersion() (int64, error) {
	return migrations.Version(s.db, migrations.DialectSQLite)
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// ==== UserStore implementation ====

// CreateUser creates a new user with hashed password.
func (s *SQLiteStore) CreateUser(ctx context.Context, name, email, passwordHash string, role store.Role) (*store.User, error) {
	query := `
		INSERT INTO users (id, name, email, password_hash, role, is_suspended, created_at)
		VALUES (?, ?, ?, ?, ?, 0, ?)
	`
	id := utils.NewID()
	if _, err := s.db.ExecContext(ctx, query, id, name, email, passwordHash, string(role), time.Now().UTC()); err != nil {
		return nil, fmt.Errorf("insert user: %w", err)
	}

	return s.GetUserByID(ctx, id)
}

// GetUserByID retrieves a user by ID.
func (s *SQLiteStore) GetUserByID(ctx context.Context, id string) (*store.User, error) {
	query := `
		SELECT id, name, email, password_hash, role, is_suspended, created_at
		FROM users
		WHERE id = ?
	`
	return s.scanUser(s.db.QueryRowContext(ctx, query, id))
}

// GetUserByEmail retrieves a user by email.
func (s *SQLiteStore) GetUserByEmail(ctx context.Context, email string) (*store.User, error) {
	query := `
		SELECT id, name, email, password_hash, role, is_suspended, created_at
		FROM users
		WHERE email = ?
	`
	return s.scanUser(s.db.QueryRowContext(ctx, query, email))
}

// SetUserSuspended toggles the suspension flag.
func (s *SQLiteStore) SetUserSuspended(ctx context.Context, id string, suspended bool) error {
	result, err := s.db.ExecContext(ctx, `UPDATE users SET is_suspended = ? WHERE id = ?`, suspended, id)
	if err != nil {
		return fmt.Errorf("update user: %w", err)
	}
	return expectAffected(result, "user")
}

func (s *SQLiteStore) scanUser(row *sql.Row) (*store.User, error) {
	var (
		user store.User
		role string
	)
	err := row.Scan(
		&user.ID,
		&user.Name,
		&user.Email,
		&user.PasswordHash,
		&role,
		&user.IsSuspended,
		&user.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("user: %w", store.ErrNotFound)
		}
		return nil, fmt.Errorf("query user: %w", err)
	}
	user.Role = store.Role(role)

	return &user, nil
}

// ==== GuestStore implementation ====

// EnsureGuest returns the guest for visitorID, creating it when absent.
func (s *SQLiteStore) EnsureGuest(ctx context.Context, visitorID, name string) (*store.Guest, error) {
	query := `
		INSERT INTO guests (id, visitor_id, name, created_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(visitor_id) DO NOTHING
	`
	if _, err := s.db.ExecContext(ctx, query, utils.NewID(), visitorID, name, time.Now().UTC()); err != nil {
		return nil, fmt.Errorf("insert guest: %w", err)
	}

	return s.GetGuestByVisitorID(ctx, visitorID)
}

// GetGuestByVisitorID retrieves a guest by its browser-assigned visitor id.
func (s *SQLiteStore) GetGuestByVisitorID(ctx context.Context, visitorID string) (*store.Guest, error) {
	query := `
		SELECT id, visitor_id, name, created_at
		FROM guests
		WHERE visitor_id = ?
	`
	var guest store.Guest
	err := s.db.QueryRowContext(ctx, query, visitorID).Scan(
		&guest.ID,
		&guest.VisitorID,
		&guest.Name,
		&guest.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("guest: %w", store.ErrNotFound)
		}
		return nil, fmt.Errorf("query guest: %w", err)
	}

	return &guest, nil
}

// ==== MessageStore implementation ====

// SaveMessage persists a message.
func (s *SQLiteStore) SaveMessage(ctx context.Context, msg *store.Message) error {
	if msg.ID == "" {
		msg.ID = utils.NewID()
	}
	if msg.CreatedAt.IsZero() {
		msg.CreatedAt = time.Now().UTC()
	}

	query := `
		INSERT INTO messages (id, sender_type, guest_id, user_id, text, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`
	_, err := s.db.ExecContext(ctx, query,
		msg.ID,
		string(msg.SenderType),
		nullable(msg.GuestID),
		nullable(msg.UserID),
		msg.Text,
		msg.CreatedAt.UTC(),
	)
	if err != nil {
		return fmt.Errorf("insert message: %w", err)
	}
	return nil
}

// ListGuestMessages returns the conversation with a guest, oldest first.
func (s *SQLiteStore) ListGuestMessages(ctx context.Context, guestID string, limit int, before time.Time) ([]*store.Message, error) {
	return s.listMessages(ctx, "guest_id", guestID, limit, before)
}

// ListUserMessages returns messages referencing a user, oldest first.
func (s *SQLiteStore) ListUserMessages(ctx context.Context, userID string, limit int, before time.Time) ([]*store.Message, error) {
	return s.listMessages(ctx, "user_id", userID, limit, before)
}

func (s *SQLiteStore) listMessages(ctx context.Context, column, ref string, limit int, before time.Time) ([]*store.Message, error) {
	if limit <= 0 {
		limit = defaultListLimit
	}

	// column is one of two constants chosen above, never user input
	query := `
		SELECT id, sender_type, guest_id, user_id, text, created_at
		FROM messages
		WHERE ` + column + ` = ?`
	args := []any{ref}
	if !before.IsZero() {
		query += ` AND created_at < ?`
		args = append(args, before.UTC())
	}
	query += ` ORDER BY created_at DESC, rowid DESC LIMIT ?`
	args = append(args, limit)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query messages: %w", err)
	}
	defer rows.Close()

	var messages []*store.Message
	for rows.Next() {
		var (
			msg        store.Message
			senderType string
			guestID    sql.NullString
			userID     sql.NullString
		)
		if err := rows.Scan(&msg.ID, &senderType, &guestID, &userID, &msg.Text, &msg.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan message: %w", err)
		}
		msg.SenderType = store.SenderType(senderType)
		msg.GuestID = fromNull(guestID)
		msg.UserID = fromNull(userID)
		messages = append(messages, &msg)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate messages: %w", err)
	}

	// Reverse to chronological order
	for i, j := 0, len(messages)-1; i < j; i, j = i+1, j-1 {
		messages[i], messages[j] = messages[j], messages[i]
	}

	return messages, nil
}

// ==== NotificationStore implementation ====

// SaveNotification persists a notification.
func (s *SQLiteStore) SaveNotification(ctx context.Context, n *store.Notification) error {
	if n.ID == "" {
		n.ID = utils.NewID()
	}
	if n.CreatedAt.IsZero() {
		n.CreatedAt = time.Now().UTC()
	}

	query := `
		INSERT INTO notifications (id, recipient_type, recipient, sender_id, type, content, link, is_read, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`
	_, err := s.db.ExecContext(ctx, query,
		n.ID,
		string(n.RecipientType),
		n.Recipient,
		n.SenderID,
		n.Type,
		n.Content,
		n.Link,
		n.IsRead,
		n.CreatedAt.UTC(),
	)
	if err != nil {
		return fmt.Errorf("insert notification: %w", err)
	}
	return nil
}

// ListNotifications returns notifications for a recipient, newest first.
func (s *SQLiteStore) ListNotifications(ctx context.Context, recipientType store.RecipientType, recipient string, limit int) ([]*store.Notification, error) {
	if limit <= 0 {
		limit = defaultListLimit
	}

	query := `
		SELECT id, recipient_type, recipient, sender_id, type, content, link, is_read, created_at
		FROM notifications
		WHERE recipient_type = ? AND recipient = ?
		ORDER BY created_at DESC, rowid DESC
		LIMIT ?
	`
	rows, err := s.db.QueryContext(ctx, query, string(recipientType), recipient, limit)
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

// MarkNotificationRead flags a notification addressed to the recipient as read.
func (s *SQLiteStore) MarkNotificationRead(ctx context.Context, id string, recipientType store.RecipientType, recipient string) error {
	query := `
		UPDATE notifications SET is_read = 1
		WHERE id = ? AND recipient_type = ? AND recipient = ?
	`
	result, err := s.db.ExecContext(ctx, query, id, string(recipientType), recipient)
	if err != nil {
		return fmt.Errorf("update notification: %w", err)
	}
	return expectAffected(result, "notification")
}

// ==== helpers ====

func expectAffected(result sql.Result, what string) error {
	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("%s: %w", what, store.ErrNotFound)
	}
	return nil
}

func nullable(s *string) any {
	if s == nil {
		return nil
	}
	return *s
}

func fromNull(ns sql.NullString) *string {
	if !ns.Valid {
		return nil
	}
	v := ns.String
	return &v
}
