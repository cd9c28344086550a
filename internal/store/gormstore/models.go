package gormstore

import (
	"time"

	"gorm.io/datatypes"
)

type userModel struct {
	ID           string    `gorm:"primaryKey;type:varchar(36)"`
	Email        string    `gorm:"uniqueIndex;not null"`
	Username     string    `gorm:"index;not null"`
	PasswordHash string    `gorm:"not null"`
	CreatedAt    time.Time `gorm:"autoCreateTime"`
}

func (userModel) TableName() string {
	return "users"
}

type drawingModel struct {
	ID        string         `gorm:"primaryKey;type:varchar(36)"`
	UserID    string         `gorm:"uniqueIndex;not null;type:varchar(36)"`
	Data      datatypes.JSON `gorm:"not null"`
	CreatedAt time.Time      `gorm:"autoCreateTime"`
	UpdatedAt time.Time      `gorm:"autoUpdateTime"`
}

func (drawingModel) TableName() string {
	return "drawings"
}
