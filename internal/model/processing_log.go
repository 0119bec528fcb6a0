package model

import "time"

// ProcessingLogEntry is one append-only audit row of the mail pipeline
type ProcessingLogEntry struct {
	ID        uint      `json:"id" gorm:"primaryKey;autoIncrement"`
	MailID    string    `json:"mail_id" gorm:"type:varchar(255);not null;index"`
	Step      Step      `json:"step" gorm:"type:varchar(64);not null"`
	Status    LogStatus `json:"status" gorm:"type:varchar(20);not null;index"`
	Details   *string   `json:"details" gorm:"type:text"`
	Timestamp time.Time `json:"timestamp" gorm:"not null;index"`
}

// TableName specifies the table name for ProcessingLogEntry
func (ProcessingLogEntry) TableName() string {
	return "mail_processing_log"
}
