// Package whiteboard owns a user's drawing session: it applies local
// gestures, persists the stroke list and keeps it in sync with other
// participants.
package whiteboard

import (
	"context"
	"errors"
	"fmt"

	"github.com/okultahta/tahta-server/internal/realtime"
	"github.com/okultahta/tahta-server/internal/store"
	"github.com/okultahta/tahta-server/internal/stroke"
)

// ErrSessionNotFound means the user has no drawing yet.
var ErrSessionNotFound = errors.New("whiteboard: session not found")

// Session is a persisted drawing.
type Session struct {
	ID      string
	UserID  string
	Strokes []stroke.Stroke
}

// SessionStore persists drawing sessions.
type SessionStore interface {
	Get(ctx context.Context, userID string) (*Session, error)
	Create(ctx context.Context, userID string) (*Session, error)
	Replace(ctx context.Context, sessionID string, strokes []stroke.Stroke) error
}

// Notifier receives a change notification after every successful replace.
type Notifier interface {
	NotifyChange(topic string, strokes []stroke.Stroke)
}

// StoreAdapter backs SessionStore with a server-side drawing store.
// Replaces of one drawing are serialized with their notification, so
// subscribers see changes in the order they were persisted.
type StoreAdapter struct {
	drawings store.DrawingStore
	notifier Notifier
	writes   keyLock
}

// NewStoreAdapter wraps drawings. notifier may be nil.
func NewStoreAdapter(drawings store.DrawingStore, notifier Notifier) *StoreAdapter {
	return &StoreAdapter{drawings: drawings, notifier: notifier}
}

func (a *StoreAdapter) Get(ctx context.Context, userID string) (*Session, error) {
	d, err := a.drawings.GetDrawingByUser(ctx, userID)
	if errors.Is(err, store.ErrNotFound) {
		return nil, ErrSessionNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get drawing: %w", err)
	}
	return sessionFromDrawing(d), nil
}

func (a *StoreAdapter) Create(ctx context.Context, userID string) (*Session, error) {
	d, err := a.drawings.CreateDrawing(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("create drawing: %w", err)
	}
	return sessionFromDrawing(d), nil
}

func (a *StoreAdapter) Replace(ctx context.Context, sessionID string, strokes []stroke.Stroke) error {
	_, err := a.ReplaceDrawing(ctx, sessionID, strokes)
	if errors.Is(err, store.ErrNotFound) {
		return ErrSessionNotFound
	}
	return err
}

// ReplaceDrawing persists strokes and notifies subscribers before any other
// replace of the same drawing may start. It returns store.ErrNotFound as is.
func (a *StoreAdapter) ReplaceDrawing(ctx context.Context, sessionID string, strokes []stroke.Stroke) (*store.Drawing, error) {
	unlock := a.writes.lock(sessionID)
	defer unlock()

	d, err := a.drawings.ReplaceStrokes(ctx, sessionID, strokes)
	if errors.Is(err, store.ErrNotFound) {
		return nil, err
	}
	if err != nil {
		return nil, fmt.Errorf("replace strokes: %w", err)
	}
	if a.notifier != nil {
		a.notifier.NotifyChange(realtime.Topic(d.ID), d.Strokes)
	}
	return d, nil
}

func sessionFromDrawing(d *store.Drawing) *Session {
	strokes := d.Strokes
	if strokes == nil {
		strokes = []stroke.Stroke{}
	}
	return &Session{ID: d.ID, UserID: d.UserID, Strokes: strokes}
}
