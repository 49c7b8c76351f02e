package model

import "time"

// DefaultCharacterType is assigned when a character is created without
// an explicit type.
const DefaultCharacterType = "ai_character"

// Character is one row of the character_storage table. It indexes a
// stored character profile and its cross-references: the pinned IPFS
// object, the generated Algorand account and the latest local archive
// snapshot. The wallet mnemonic is deliberately NOT part of this table;
// it lives sealed in character_secrets (see CharacterSecret).
//
// The asset_* columns are a flattened optional sub-entity: they are
// meaningful as a unit and only when asset_id is set.
type Character struct {
	ID               int64     `gorm:"primaryKey;autoIncrement" json:"id"`
	Name             string    `gorm:"uniqueIndex:idx_character_name;size:64;not null" json:"name"`
	Description      string    `gorm:"type:text" json:"description"`
	Type             string    `gorm:"index:idx_character_type;size:32;default:ai_character" json:"type"`
	Theme            string    `gorm:"size:128" json:"theme,omitempty"`
	Goal             string    `gorm:"type:text" json:"goal,omitempty"`
	Antagonist       string    `gorm:"size:128" json:"antagonist,omitempty"`
	IPFSHash         string    `gorm:"column:ipfs_hash;size:128" json:"ipfs_hash,omitempty"`
	IPFSURL          string    `gorm:"column:ipfs_url;size:256" json:"ipfs_url,omitempty"`
	AlgorandAddress  string    `gorm:"size:58" json:"algorand_address,omitempty"`
	LocalFilePath    string    `gorm:"size:512" json:"-"`
	AssetID          *uint64   `gorm:"index:idx_asset_id" json:"asset_id,omitempty"`
	AssetName        *string   `gorm:"size:64" json:"asset_name,omitempty"`
	AssetUnitName    *string   `gorm:"size:16" json:"asset_unit_name,omitempty"`
	AssetURL         *string   `gorm:"size:256" json:"asset_url,omitempty"`
	AssetDescription *string   `gorm:"type:text" json:"-"`
	AssetTxID        *string   `gorm:"column:asset_tx_hash;size:64" json:"-"`
	TwitterHandle    *string   `gorm:"size:32" json:"twitter_handle,omitempty"`
	CreatedAt        time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt        time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

// TableName keeps the historical table name.
func (Character) TableName() string { return "character_storage" }
