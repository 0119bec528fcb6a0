package model

import "time"

// ProcessedEmail is the duplicate detector's record of prior work on an email
type ProcessedEmail struct {
	ID             uint        `json:"id" gorm:"primaryKey;autoIncrement"`
	EmailID        string      `json:"email_id" gorm:"type:varchar(255);not null;uniqueIndex"`
	EmailSubject   string      `json:"email_subject" gorm:"type:text"`
	SenderEmail    string      `json:"sender_email" gorm:"type:varchar(255);index"`
	ClientCardCode string      `json:"client_card_code" gorm:"type:varchar(100);index"`
	ClientName     string      `json:"client_name" gorm:"type:varchar(255)"`
	ProductCodes   []string    `json:"product_codes" gorm:"type:text;serializer:json"`
	ProcessedAt    time.Time   `json:"processed_at" gorm:"index"`
	QuoteID        *string     `json:"quote_id" gorm:"type:varchar(100)"`
	Status         EmailStatus `json:"status" gorm:"type:varchar(20);not null;default:pending"`
	SAPDocEntry    *int        `json:"sap_doc_entry" gorm:"column:sap_doc_entry"`
	Notes          string      `json:"notes" gorm:"type:text"`
}

// TableName specifies the table name for ProcessedEmail
func (ProcessedEmail) TableName() string {
	return "processed_emails"
}
