package models

import "time"

// Card is one priced catalog variant. ScryfallID carries a finish suffix
// ("_foil", "_etched") so each finish of a printing is its own row; rows for
// the same printing share OracleID and PrintingID.
type Card struct {
	ID              uint      `json:"id" gorm:"primaryKey"`
	ScryfallID      string    `json:"scryfall_id" gorm:"uniqueIndex;not null"`
	OracleID        string    `json:"oracle_id" gorm:"index"`
	PrintingID      string    `json:"printing_id" gorm:"index"`
	Name            string    `json:"name" gorm:"index"`
	SetCode         string    `json:"set_code" gorm:"index"`
	CollectorNumber string    `json:"collector_number"`
	Finish          string    `json:"finish"` // nonfoil, foil, etched
	TypeLine        string    `json:"type_line"`
	OracleText      string    `json:"oracle_text" gorm:"type:text"`
	ManaCost        string    `json:"mana_cost"`
	ManaValue       float64   `json:"mana_value"`
	Colors          string    `json:"colors"` // e.g. "WU"
	Rarity          string    `json:"rarity" gorm:"index"`
	ImageURL        string    `json:"image_url"`
	CreatedAt       time.Time `json:"created_at"`
	UpdatedAt       time.Time `json:"updated_at"`

	// Associations
	Prices []CardPrice `json:"prices,omitempty" gorm:"foreignKey:ScryfallID;references:ScryfallID"`
}
