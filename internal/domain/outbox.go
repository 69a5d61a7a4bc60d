package domain

import (
	"time"

	"gorm.io/datatypes"
)

// OutboxEvent is a transport event written in the same transaction as the rows
// it describes. It is published only after that transaction commits.
type OutboxEvent struct {
	ID        string         `json:"id" gorm:"primaryKey;type:text"`
	Topic     string         `json:"topic" gorm:"type:text;not null"`
	Payload   datatypes.JSON `json:"payload" gorm:"type:jsonb;not null"`
	CreatedAt time.Time      `json:"createdAt" gorm:"not null;index"`
}

func (OutboxEvent) TableName() string { return "outbox_event" }
