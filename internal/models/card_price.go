package models

import "time"

// CardPrice is the current price of one variant on one market, one row per
// (market, variant, kind, currency). Overwritten on every ingestion cycle.
type CardPrice struct {
	ID         uint      `json:"id" gorm:"primaryKey"`
	ScryfallID string    `json:"scryfall_id" gorm:"uniqueIndex:idx_card_price_key;not null"`
	Market     string    `json:"market" gorm:"uniqueIndex:idx_card_price_key;not null"`
	Kind       string    `json:"kind" gorm:"uniqueIndex:idx_card_price_key;not null"`
	Currency   string    `json:"currency" gorm:"uniqueIndex:idx_card_price_key;not null"`
	Amount     float64   `json:"amount"`
	UpdatedAt  time.Time `json:"updated_at"`
}

// CardPriceHistory is an append-only daily series, at most one point per
// variant/market/kind per UTC calendar day. Duplicate-day inserts are ignored
// at the unique index, never updated.
type CardPriceHistory struct {
	ID         uint      `json:"id" gorm:"primaryKey"`
	ScryfallID string    `json:"scryfall_id" gorm:"uniqueIndex:idx_price_history_day;not null"`
	Market     string    `json:"market" gorm:"uniqueIndex:idx_price_history_day;not null"`
	Kind       string    `json:"kind" gorm:"uniqueIndex:idx_price_history_day;not null"`
	Day        string    `json:"day" gorm:"uniqueIndex:idx_price_history_day;not null"` // UTC, YYYY-MM-DD
	Currency   string    `json:"currency"`
	Amount     float64   `json:"amount"`
	RecordedAt time.Time `json:"recorded_at" gorm:"index"`
}
