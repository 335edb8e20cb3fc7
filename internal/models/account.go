package models

import (
	"time"

	"gorm.io/gorm"
)

// Account holds credentials for the identity provider. The profile lives in
// the document store under users/{UID}.
type Account struct {
	UID          string         `gorm:"primaryKey;size:36" json:"uid"`
	Email        string         `gorm:"uniqueIndex;not null" json:"email"`
	PasswordHash string         `gorm:"not null" json:"-"`
	CreatedAt    time.Time      `json:"created_at"`
	UpdatedAt    time.Time      `json:"updated_at"`
	DeletedAt    gorm.DeletedAt `gorm:"index" json:"-"`
}

// TableName specifies the table name for GORM.
func (Account) TableName() string {
	return "accounts"
}
