package models

import "time"

// User is a registered account. Rows are never updated after registration.
type User struct {
	ID             uint      `gorm:"primaryKey" json:"id"`
	Email          string    `gorm:"not null;size:255;uniqueIndex" json:"email"`
	HashedPassword string    `gorm:"column:hashed_password;not null" json:"-"`
	CreatedAt      time.Time `json:"created_at"`
}
