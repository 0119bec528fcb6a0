package model

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/datatypes"
)

// QuoteDraft is the persisted structured form of one processed email
type QuoteDraft struct {
	ID              string           `json:"id" gorm:"type:varchar(36);primaryKey"`
	MailID          string           `json:"mail_id" gorm:"type:varchar(255);not null;uniqueIndex"`
	ClientCode      *string          `json:"client_code" gorm:"type:varchar(100)"`
	ClientStatus    MatchStatus      `json:"client_status" gorm:"type:varchar(20);not null"`
	Status          QuoteStatus      `json:"status" gorm:"type:varchar(20);not null"`
	RawEmailPayload datatypes.JSON   `json:"raw_email_payload"`
	Lines           []QuoteDraftLine `json:"lines" gorm:"foreignKey:QuoteID;references:ID"`
	CreatedAt       time.Time        `json:"created_at"`
	UpdatedAt       time.Time        `json:"updated_at"`
}

// TableName specifies the table name for QuoteDraft
func (QuoteDraft) TableName() string {
	return "quote_drafts"
}

// Line returns the line with the given id.
func (q *QuoteDraft) Line(lineID string) (*QuoteDraftLine, bool) {
	for i := range q.Lines {
		if q.Lines[i].LineID == lineID {
			return &q.Lines[i], true
		}
	}
	return nil, false
}

// QuoteDraftLine is one requested product of a quote draft. Position fixes the
// line order at creation; Version guards single-line updates.
type QuoteDraftLine struct {
	QuoteID        string              `json:"-" gorm:"type:varchar(36);primaryKey"`
	LineID         string              `json:"line_id" gorm:"type:varchar(36);primaryKey"`
	Position       int                 `json:"-" gorm:"not null"`
	SupplierCode   string              `json:"supplier_code" gorm:"type:varchar(255)"`
	Description    string              `json:"description" gorm:"type:text"`
	Quantity       int                 `json:"quantity" gorm:"not null"`
	SAPItemCode    *string             `json:"sap_item_code" gorm:"column:sap_item_code;type:varchar(100)"`
	SAPStatus      MatchStatus         `json:"sap_status" gorm:"column:sap_status;type:varchar(20);not null"`
	SAPPrice       decimal.NullDecimal `json:"sap_price" gorm:"column:sap_price;type:decimal(15,4)"`
	SearchMetadata SearchMetadata      `json:"search_metadata" gorm:"type:text"`
	Version        int                 `json:"-" gorm:"not null;default:1"`
}

// TableName specifies the table name for QuoteDraftLine
func (QuoteDraftLine) TableName() string {
	return "quote_draft_lines"
}

// SearchMetadata describes the ERP lookup that produced a line's current item.
type SearchMetadata struct {
	SearchType      SearchType `json:"search_type"`
	QueryUsed       string     `json:"query_used"`
	SearchTimestamp time.Time  `json:"search_timestamp"`
	MatchScore      float64    `json:"match_score"`
}

// Value implements driver.Valuer, storing the metadata as JSON text.
func (m SearchMetadata) Value() (driver.Value, error) {
	b, err := json.Marshal(m)
	if err != nil {
		return nil, err
	}
	return string(b), nil
}

// Scan implements sql.Scanner.
func (m *SearchMetadata) Scan(src any) error {
	var b []byte
	switch v := src.(type) {
	case nil:
		*m = SearchMetadata{}
		return nil
	case []byte:
		b = v
	case string:
		b = []byte(v)
	default:
		return fmt.Errorf("unsupported search metadata type %T", src)
	}
	if len(b) == 0 {
		*m = SearchMetadata{}
		return nil
	}
	return json.Unmarshal(b, m)
}

// LineSAPData holds the mutable ERP fields of a line.
type LineSAPData struct {
	SAPItemCode    *string
	SAPStatus      MatchStatus
	SAPPrice       decimal.NullDecimal
	SearchMetadata SearchMetadata
}

// UpdatedLine is a line as stored after an update, with the updated_at its
// quote draft was given by the same write.
type UpdatedLine struct {
	QuoteDraftLine
	QuoteUpdatedAt time.Time
}

// NewLine is the caller-supplied content of a line at creation time.
type NewLine struct {
	SupplierCode string
	Description  string
	Quantity     int
	LineSAPData
}
