package models

import "time"

// Diagnostic is one recorded error that was not surfaced to the user:
// broker and connection failures, rejected frames, failed publishes.
type Diagnostic struct {
	ID        uint      `gorm:"primaryKey;autoIncrement"`
	Kind      string    `gorm:"size:16;not null;index"`
	Username  string    `gorm:"size:64"`
	Message   string    `gorm:"type:text"`
	CreatedAt time.Time `gorm:"index"`
}
