package storage

import (
	"encoding/json"
	"time"
)

// canonicalKeys are the payload fields tracked by the relational index.
// Everything else in an incoming document is an archive-only extra.
var canonicalKeys = []string{
	"id", "name", "description", "type", "theme", "goal", "antagonist",
	"twitter_handle", "asset", "ipfs_hash", "ipfs_url", "algorand_address",
	"created_at", "updated_at",
}

// AssetData describes an on-chain token linked to a character.
type AssetData struct {
	AssetID     uint64 `json:"asset_id"`
	Name        string `json:"name,omitempty"`
	UnitName    string `json:"unit_name,omitempty"`
	URL         string `json:"url,omitempty"`
	Description string `json:"description,omitempty"`
	TxID        string `json:"tx_id,omitempty"`
}

// CharacterData is the input document for StoreCharacter. Unknown JSON
// fields are preserved in Extra: they are pinned and archived but not
// indexed.
type CharacterData struct {
	Name          string                 `json:"name" binding:"required"`
	Description   string                 `json:"description"`
	Type          string                 `json:"type"`
	Theme         string                 `json:"theme"`
	Goal          string                 `json:"goal"`
	Antagonist    string                 `json:"antagonist"`
	TwitterHandle string                 `json:"twitter_handle"`
	Asset         *AssetData             `json:"asset"`
	Extra         map[string]interface{} `json:"-"`
}

func (d *CharacterData) UnmarshalJSON(b []byte) error {
	type plain CharacterData
	var p plain
	if err := json.Unmarshal(b, &p); err != nil {
		return err
	}
	var raw map[string]interface{}
	if err := json.Unmarshal(b, &raw); err != nil {
		return err
	}
	for _, k := range canonicalKeys {
		delete(raw, k)
	}
	if len(raw) > 0 {
		p.Extra = raw
	}
	*d = CharacterData(p)
	return nil
}

// payload builds the document that gets pinned and archived.
func (d CharacterData) payload() map[string]interface{} {
	p := make(map[string]interface{}, len(d.Extra)+8)
	for k, v := range d.Extra {
		p[k] = v
	}
	p["name"] = d.Name
	p["description"] = d.Description
	p["type"] = d.Type
	if d.Theme != "" {
		p["theme"] = d.Theme
	}
	if d.Goal != "" {
		p["goal"] = d.Goal
	}
	if d.Antagonist != "" {
		p["antagonist"] = d.Antagonist
	}
	if d.TwitterHandle != "" {
		p["twitter_handle"] = d.TwitterHandle
	}
	if d.Asset != nil {
		p["asset"] = d.Asset
	}
	return p
}

// AssetPatch is a sparse update of the asset sub-entity. Nil fields keep
// the existing value.
type AssetPatch struct {
	AssetID     *uint64 `json:"asset_id,omitempty"`
	Name        *string `json:"name,omitempty"`
	UnitName    *string `json:"unit_name,omitempty"`
	URL         *string `json:"url,omitempty"`
	Description *string `json:"description,omitempty"`
	TxID        *string `json:"tx_id,omitempty"`
}

// CharacterPatch is a sparse update document for UpdateCharacter.
// Nil fields keep the existing row value; Extra fields are pinned and
// archived only.
type CharacterPatch struct {
	Description   *string                `json:"description"`
	TwitterHandle *string                `json:"twitter_handle"`
	Asset         *AssetPatch            `json:"asset"`
	Extra         map[string]interface{} `json:"-"`
}

func (p *CharacterPatch) UnmarshalJSON(b []byte) error {
	type plain CharacterPatch
	var v plain
	if err := json.Unmarshal(b, &v); err != nil {
		return err
	}
	var raw map[string]interface{}
	if err := json.Unmarshal(b, &raw); err != nil {
		return err
	}
	for _, k := range canonicalKeys {
		delete(raw, k)
	}
	if len(raw) > 0 {
		v.Extra = raw
	}
	*p = CharacterPatch(v)
	return nil
}

// payload builds the document pinned and archived by an update. Only the
// fields present in the patch appear, plus the character's immutable name.
func (p CharacterPatch) payload(name string) map[string]interface{} {
	m := make(map[string]interface{}, len(p.Extra)+4)
	for k, v := range p.Extra {
		m[k] = v
	}
	m["name"] = name
	if p.Description != nil {
		m["description"] = *p.Description
	}
	if p.TwitterHandle != nil {
		m["twitter_handle"] = *p.TwitterHandle
	}
	if p.Asset != nil {
		m["asset"] = p.Asset
	}
	return m
}

// updates builds the sparse column map for the row update. Absent patch
// fields are simply not written, preserving the existing values.
func (p CharacterPatch) updates(hash, url, localPath string, now time.Time) map[string]interface{} {
	u := map[string]interface{}{
		"ipfs_hash":       hash,
		"ipfs_url":        url,
		"local_file_path": localPath,
		"updated_at":      now,
	}
	if p.Description != nil {
		u["description"] = *p.Description
	}
	if p.TwitterHandle != nil {
		u["twitter_handle"] = *p.TwitterHandle
	}
	if p.Asset != nil {
		if p.Asset.AssetID != nil {
			u["asset_id"] = *p.Asset.AssetID
		}
		if p.Asset.Name != nil {
			u["asset_name"] = *p.Asset.Name
		}
		if p.Asset.UnitName != nil {
			u["asset_unit_name"] = *p.Asset.UnitName
		}
		if p.Asset.URL != nil {
			u["asset_url"] = *p.Asset.URL
		}
		if p.Asset.Description != nil {
			u["asset_description"] = *p.Asset.Description
		}
		if p.Asset.TxID != nil {
			u["asset_tx_hash"] = *p.Asset.TxID
		}
	}
	return u
}

// StoredCharacter is the composed read view of a character: the index
// row's canonical fields layered over any archive-only extras. It never
// carries the mnemonic or the local file path.
type StoredCharacter struct {
	ID              int64
	Name            string
	Type            string
	Description     string
	Theme           string
	Goal            string
	Antagonist      string
	IPFSHash        string
	IPFSURL         string
	AlgorandAddress string
	Asset           *AssetData
	TwitterHandle   string
	CreatedAt       time.Time
	UpdatedAt       time.Time
	Extra           map[string]interface{}
}

// MarshalJSON merges Extra (archive fields, the base) with the canonical
// fields (index row, authoritative).
func (c *StoredCharacter) MarshalJSON() ([]byte, error) {
	out := make(map[string]interface{}, len(c.Extra)+14)
	for k, v := range c.Extra {
		out[k] = v
	}
	out["id"] = c.ID
	out["name"] = c.Name
	out["type"] = c.Type
	out["description"] = c.Description
	out["theme"] = c.Theme
	out["goal"] = c.Goal
	out["antagonist"] = c.Antagonist
	out["ipfs_hash"] = c.IPFSHash
	out["ipfs_url"] = c.IPFSURL
	out["algorand_address"] = c.AlgorandAddress
	if c.Asset != nil {
		out["asset"] = c.Asset
	} else {
		out["asset"] = nil
	}
	if c.TwitterHandle != "" {
		out["twitter_handle"] = c.TwitterHandle
	}
	out["created_at"] = c.CreatedAt
	out["updated_at"] = c.UpdatedAt
	return json.Marshal(out)
}
