package store

import (
	"context"
	"errors"
	"time"

	"github.com/okultahta/tahta-server/internal/stroke"
)

var (
	// ErrNotFound is returned when a requested record does not exist.
	ErrNotFound = errors.New("not found")
	// ErrConflict is returned when a unique constraint is violated.
	ErrConflict = errors.New("conflict")
)

// User represents a registered account.
type User struct {
	ID           string
	Email        string
	Username     string
	PasswordHash string
	CreatedAt    time.Time
}

// Drawing is the persisted canvas of one user.
// Strokes is the full ordered stroke list, replaced as a whole on every write.
type Drawing struct {
	ID        string
	UserID    string
	Strokes   []stroke.Stroke
	CreatedAt time.Time
	UpdatedAt time.Time
}

// UserStore handles user persistence.
type UserStore interface {
	// CreateUser creates a new user. Returns ErrConflict if email is taken.
	// Usernames are display names and may repeat.
	CreateUser(ctx context.Context, email, username, passwordHash string) (*User, error)

	// GetUserByID retrieves a user by ID.
	GetUserByID(ctx context.Context, id string) (*User, error)

	// GetUserByEmail retrieves a user by email.
	GetUserByEmail(ctx context.Context, email string) (*User, error)
}

// DrawingStore handles drawing persistence.
type DrawingStore interface {
	// GetDrawingByUser returns the drawing owned by userID, or ErrNotFound.
	GetDrawingByUser(ctx context.Context, userID string) (*Drawing, error)

	// GetDrawing returns a drawing by its ID, or ErrNotFound.
	GetDrawing(ctx context.Context, id string) (*Drawing, error)

	// CreateDrawing creates an empty drawing for userID.
	// If one already exists (a concurrent create won), the existing drawing is returned.
	CreateDrawing(ctx context.Context, userID string) (*Drawing, error)

	// ReplaceStrokes overwrites the stroke list of a drawing.
	// The last writer wins; there is no merge.
	ReplaceStrokes(ctx context.Context, id string, strokes []stroke.Stroke) (*Drawing, error)
}

// Store aggregates all storage interfaces.
type Store interface {
	UserStore
	DrawingStore

	// Close closes the underlying database connection.
	Close() error
}
