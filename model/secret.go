package model

import "time"

// CharacterSecret holds the sealed wallet mnemonic for one character.
// Mnemonics are kept out of character_storage so that listing and
// fetching characters can never leak them; the sealed value is only
// readable through the secrets vault.
type CharacterSecret struct {
	ID          int64     `gorm:"primaryKey;autoIncrement" json:"id"`
	CharacterID int64     `gorm:"uniqueIndex:idx_secret_character;not null" json:"character_id"`
	Sealed      string    `gorm:"type:text;not null" json:"-"`
	CreatedAt   time.Time `gorm:"autoCreateTime" json:"created_at"`
}
