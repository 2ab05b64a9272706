// Package models defines domain models for the scoring engine.
package models

import (
	"encoding/json"
	"time"
)

// ActivityRecord is one immutable entry in the append-only activity log.
// Rows are never updated or deleted.
type ActivityRecord struct {
	ID            uint            `gorm:"primaryKey" json:"id"`
	UserID        uint            `gorm:"not null;index:idx_activity_user_type_time" json:"user_id"`
	ActivityType  string          `gorm:"not null;size:50;index:idx_activity_user_type_time" json:"activity_type"`
	PointsAwarded int             `gorm:"not null" json:"points_awarded"`
	ReferenceID   *string         `gorm:"size:100" json:"reference_id,omitempty"`
	ReferenceType *string         `gorm:"size:50" json:"reference_type,omitempty"`
	Metadata      json.RawMessage `gorm:"type:jsonb" json:"metadata,omitempty"`
	CreatedAt     time.Time       `gorm:"not null;index:idx_activity_user_type_time" json:"created_at"`
}

// TableName specifies the table name for ActivityRecord model.
func (ActivityRecord) TableName() string {
	return "activity_records"
}
