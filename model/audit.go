package model

import (
	"time"

	"gorm.io/datatypes"
)

// AuditLog records mutating API operations against the character store.
type AuditLog struct {
	ID            int64          `gorm:"primaryKey;autoIncrement" json:"id"`
	TraceID       string         `gorm:"index:idx_audit_trace;size:36;not null" json:"trace_id"`
	CharacterID   *int64         `gorm:"index:idx_audit_character" json:"character_id"`
	CharacterName string         `gorm:"size:64" json:"character_name"`
	Action        string         `gorm:"size:64;not null" json:"action"`
	Request       datatypes.JSON `json:"request"`
	Response      datatypes.JSON `json:"response"`
	Error         string         `gorm:"type:text" json:"error"`
	IP            string         `gorm:"size:45" json:"ip"`
	DurationMs    int            `json:"duration_ms"`
	CreatedAt     time.Time      `gorm:"index:idx_audit_created;autoCreateTime:milli" json:"created_at"`
}
