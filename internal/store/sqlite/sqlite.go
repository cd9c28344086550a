package sqlite

import (
	"context"
	"database/sql"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	sqlite3 "github.com/mattn/go-sqlite3"

	"github.com/okultahta/tahta-server/internal/store"
	"github.com/okultahta/tahta-server/internal/stroke"
)

//go:embed schema.sql
var schema string

// SQLiteStore implements store.Store for SQLite.
type SQLiteStore struct {
	db *sql.DB
}

// New creates a new SQLite store and applies the schema.
// dbPath is the path to the SQLite database file.
func New(dbPath string) (*SQLiteStore, error) {
	return NewWithSetup(dbPath, func(db *sql.DB) error {
		_, err := db.Exec(schema)
		return err
	})
}

// NewWithSetup creates a new SQLite store and runs a setup function.
// Useful for tests to apply a custom schema.
func NewWithSetup(dbPath string, setup func(*sql.DB) error) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}

	// SQLite works best with a single connection; it also keeps :memory: databases shared.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if setup != nil {
		if err := setup(db); err != nil {
			db.Close()
			return nil, fmt.Errorf("setup: %w", err)
		}
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping sqlite: %w", err)
	}

	return &SQLiteStore{db: db}, nil
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// ==== UserStore implementation ====

// CreateUser creates a new user with hashed password.
func (s *SQLiteStore) CreateUser(ctx context.Context, email, username, passwordHash string) (*store.User, error) {
	query := `
		INSERT INTO users (id, email, username, password_hash, created_at)
		VALUES (?, ?, ?, ?, ?)
	`
	id := uuid.NewString()
	if _, err := s.db.ExecContext(ctx, query, id, email, username, passwordHash, time.Now().UTC()); err != nil {
		if isUniqueViolation(err) {
			return nil, fmt.Errorf("insert user: %w", store.ErrConflict)
		}
		return nil, fmt.Errorf("insert user: %w", err)
	}

	return s.GetUserByID(ctx, id)
}

// GetUserByID retrieves a user by ID.
func (s *SQLiteStore) GetUserByID(ctx context.Context, id string) (*store.User, error) {
	return s.getUser(ctx, "id", id)
}

// GetUserByEmail retrieves a user by email.
func (s *SQLiteStore) GetUserByEmail(ctx context.Context, email string) (*store.User, error) {
	return s.getUser(ctx, "email", email)
}

func (s *SQLiteStore) getUser(ctx context.Context, column, value string) (*store.User, error) {
	query := `
		SELECT id, email, username, password_hash, created_at
		FROM users
		WHERE ` + column + ` = ?
	`
	var user store.User
	err := s.db.QueryRowContext(ctx, query, value).Scan(
		&user.ID,
		&user.Email,
		&user.Username,
		&user.PasswordHash,
		&user.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("user not found: %w", store.ErrNotFound)
		}
		return nil, fmt.Errorf("query user: %w", err)
	}

	return &user, nil
}

// ==== DrawingStore implementation ====

// GetDrawingByUser returns the drawing owned by userID.
func (s *SQLiteStore) GetDrawingByUser(ctx context.Context, userID string) (*store.Drawing, error) {
	return s.getDrawing(ctx, "user_id", userID)
}

// GetDrawing returns a drawing by ID.
func (s *SQLiteStore) GetDrawing(ctx context.Context, id string) (*store.Drawing, error) {
	return s.getDrawing(ctx, "id", id)
}

// CreateDrawing inserts an empty drawing for userID unless one exists.
func (s *SQLiteStore) CreateDrawing(ctx context.Context, userID string) (*store.Drawing, error) {
	query := `
		INSERT INTO drawings (id, user_id, data, created_at, updated_at)
		VALUES (?, ?, '[]', ?, ?)
		ON CONFLICT(user_id) DO NOTHING
	`
	now := time.Now().UTC()
	if _, err := s.db.ExecContext(ctx, query, uuid.NewString(), userID, now, now); err != nil {
		return nil, fmt.Errorf("insert drawing: %w", err)
	}

	return s.GetDrawingByUser(ctx, userID)
}

// ReplaceStrokes overwrites the stroke list of drawing id.
func (s *SQLiteStore) ReplaceStrokes(ctx context.Context, id string, strokes []stroke.Stroke) (*store.Drawing, error) {
	if strokes == nil {
		strokes = []stroke.Stroke{}
	}
	data, err := json.Marshal(strokes)
	if err != nil {
		return nil, fmt.Errorf("encode strokes: %w", err)
	}

	query := `
		UPDATE drawings
		SET data = ?, updated_at = ?
		WHERE id = ?
	`
	result, err := s.db.ExecContext(ctx, query, string(data), time.Now().UTC(), id)
	if err != nil {
		return nil, fmt.Errorf("update drawing: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return nil, fmt.Errorf("get rows affected: %w", err)
	}
	if rows == 0 {
		return nil, fmt.Errorf("drawing %s: %w", id, store.ErrNotFound)
	}

	return s.GetDrawing(ctx, id)
}

func (s *SQLiteStore) getDrawing(ctx context.Context, column, value string) (*store.Drawing, error) {
	query := `
		SELECT id, user_id, data, created_at, updated_at
		FROM drawings
		WHERE ` + column + ` = ?
	`
	var (
		d    store.Drawing
		data string
	)
	err := s.db.QueryRowContext(ctx, query, value).Scan(
		&d.ID,
		&d.UserID,
		&data,
		&d.CreatedAt,
		&d.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("drawing not found: %w", store.ErrNotFound)
		}
		return nil, fmt.Errorf("query drawing: %w", err)
	}

	if err := json.Unmarshal([]byte(data), &d.Strokes); err != nil {
		return nil, fmt.Errorf("decode strokes: %w", err)
	}
	if d.Strokes == nil {
		d.Strokes = []stroke.Stroke{}
	}

	return &d, nil
}

func isUniqueViolation(err error) bool {
	var sqliteErr sqlite3.Error
	if errors.As(err, &sqliteErr) {
		return sqliteErr.ExtendedCode == sqlite3.ErrConstraintUnique
	}
	return false
}
