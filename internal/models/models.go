package models

import (
	"time"

	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// User represents a user in the system
type User struct {
	ID        uint           `json:"id" gorm:"primaryKey"`
	Email     string         `json:"email" gorm:"unique;not null"`
	Username  string         `json:"username"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
	DeletedAt gorm.DeletedAt `gorm:"index"`
}

// PriceAlert is a user-defined threshold watch on one card variant.
// Once triggered it is disabled and stays inert until the user re-enables it.
type PriceAlert struct {
	ID         uint      `json:"id" gorm:"primaryKey"`
	UserID     uint      `json:"user_id" gorm:"index;not null"`
	User       User      `json:"user" gorm:"foreignKey:UserID"`
	ScryfallID string    `json:"scryfall_id" gorm:"index;not null"`
	Market     string    `json:"market" gorm:"not null"` // tcgplayer, cardmarket, cardhoarder
	Kind       string    `json:"kind" gorm:"not null"`   // normal, foil, etched
	Currency   string    `json:"currency" gorm:"default:'USD'"`
	Threshold  float64   `json:"threshold" gorm:"not null"`
	Direction  string    `json:"direction" gorm:"not null"` // above, below
	Enabled    bool      `json:"enabled" gorm:"index"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}

// Notification is created when a price alert triggers
type Notification struct {
	ID        uint           `json:"id" gorm:"primaryKey"`
	UserID    uint           `json:"user_id" gorm:"index;not null"`
	Type      string         `json:"type" gorm:"not null"`
	Title     string         `json:"title"`
	Body      string         `json:"body"`
	Payload   datatypes.JSON `json:"payload"`
	Read      bool           `json:"read" gorm:"default:false;index"`
	CreatedAt time.Time      `json:"created_at"`
}

// DeviceToken stores push delivery destinations per user
type DeviceToken struct {
	ID        uint      `json:"id" gorm:"primaryKey"`
	UserID    uint      `json:"user_id" gorm:"index;not null"`
	Token     string    `json:"token" gorm:"uniqueIndex;not null"`
	Platform  string    `json:"platform"` // ios, android
	Active    bool      `json:"active"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}
