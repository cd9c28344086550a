// Package gormstore implements store.Store on PostgreSQL through GORM.
package gormstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/gorm/logger"

	"github.com/okultahta/tahta-server/internal/store"
	"github.com/okultahta/tahta-server/internal/stroke"
)

// Store implements store.Store with GORM.
type Store struct {
	db *gorm.DB
}

// Open connects to PostgreSQL at dsn and migrates the schema.
func Open(dsn string) (*Store, error) {
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{
		Logger:         logger.Default.LogMode(logger.Warn),
		TranslateError: true,
	})
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("get database instance: %w", err)
	}
	sqlDB.SetMaxIdleConns(10)
	sqlDB.SetMaxOpenConns(100)
	sqlDB.SetConnMaxLifetime(time.Hour)

	return New(db)
}

// New wraps an existing GORM handle and migrates the schema.
func New(db *gorm.DB) (*Store, error) {
	if err := db.AutoMigrate(&userModel{}, &drawingModel{}); err != nil {
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return &Store{db: db}, nil
}

// Close closes the underlying connection pool.
func (s *Store) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// CreateUser creates a new user.
func (s *Store) CreateUser(ctx context.Context, email, username, passwordHash string) (*store.User, error) {
	m := userModel{
		ID:           uuid.NewString(),
		Email:        email,
		Username:     username,
		PasswordHash: passwordHash,
	}
	if err := s.db.WithContext(ctx).Create(&m).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return nil, fmt.Errorf("insert user: %w", store.ErrConflict)
		}
		return nil, fmt.Errorf("insert user: %w", err)
	}
	return toUser(m), nil
}

// GetUserByID retrieves a user by ID.
func (s *Store) GetUserByID(ctx context.Context, id string) (*store.User, error) {
	return s.findUser(ctx, "id = ?", id)
}

// GetUserByEmail retrieves a user by email.
func (s *Store) GetUserByEmail(ctx context.Context, email string) (*store.User, error) {
	return s.findUser(ctx, "email = ?", email)
}

func (s *Store) findUser(ctx context.Context, cond string, arg any) (*store.User, error) {
	var m userModel
	if err := s.db.WithContext(ctx).Where(cond, arg).First(&m).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("user not found: %w", store.ErrNotFound)
		}
		return nil, fmt.Errorf("query user: %w", err)
	}
	return toUser(m), nil
}

// GetDrawingByUser returns the drawing owned by userID.
func (s *Store) GetDrawingByUser(ctx context.Context, userID string) (*store.Drawing, error) {
	return s.findDrawing(ctx, "user_id = ?", userID)
}

// GetDrawing returns a drawing by ID.
func (s *Store) GetDrawing(ctx context.Context, id string) (*store.Drawing, error) {
	return s.findDrawing(ctx, "id = ?", id)
}

// CreateDrawing inserts an empty drawing for userID unless one exists.
func (s *Store) CreateDrawing(ctx context.Context, userID string) (*store.Drawing, error) {
	m := drawingModel{
		ID:     uuid.NewString(),
		UserID: userID,
		Data:   datatypes.JSON("[]"),
	}
	err := s.db.WithContext(ctx).
		Clauses(clause.OnConflict{Columns: []clause.Column{{Name: "user_id"}}, DoNothing: true}).
		Create(&m).Error
	if err != nil {
		return nil, fmt.Errorf("insert drawing: %w", err)
	}
	return s.GetDrawingByUser(ctx, userID)
}

// ReplaceStrokes overwrites the stroke list of drawing id.
func (s *Store) ReplaceStrokes(ctx context.Context, id string, strokes []stroke.Stroke) (*store.Drawing, error) {
	if strokes == nil {
		strokes = []stroke.Stroke{}
	}
	data, err := json.Marshal(strokes)
	if err != nil {
		return nil, fmt.Errorf("encode strokes: %w", err)
	}

	res := s.db.WithContext(ctx).
		Model(&drawingModel{}).
		Where("id = ?", id).
		Updates(map[string]any{"data": datatypes.JSON(data), "updated_at": time.Now().UTC()})
	if res.Error != nil {
		return nil, fmt.Errorf("update drawing: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return nil, fmt.Errorf("drawing %s: %w", id, store.ErrNotFound)
	}
	return s.GetDrawing(ctx, id)
}

func (s *Store) findDrawing(ctx context.Context, cond string, arg any) (*store.Drawing, error) {
	var m drawingModel
	if err := s.db.WithContext(ctx).Where(cond, arg).First(&m).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("drawing not found: %w", store.ErrNotFound)
		}
		return nil, fmt.Errorf("query drawing: %w", err)
	}

	d := &store.Drawing{
		ID:        m.ID,
		UserID:    m.UserID,
		CreatedAt: m.CreatedAt,
		UpdatedAt: m.UpdatedAt,
	}
	if err := json.Unmarshal(m.Data, &d.Strokes); err != nil {
		return nil, fmt.Errorf("decode strokes: %w", err)
	}
	if d.Strokes == nil {
		d.Strokes = []stroke.Stroke{}
	}
	return d, nil
}

func toUser(m userModel) *store.User {
	return &store.User{
		ID:           m.ID,
		Email:        m.Email,
		Username:     m.Username,
		PasswordHash: m.PasswordHash,
		CreatedAt:    m.CreatedAt,
	}
}
