package domain

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

const (
	CollectionStatusPending   = "PENDING"
	CollectionStatusCompleted = "COMPLETED"
	CollectionStatusCancelled = "CANCELLED"
)

// Collection tracks one payment request from anchor arrival to fulfillment.
// AnchorData/IntentData/FulfillmentEvidence are last-seen snapshots kept for
// audit; decisions are never made from them after write time.
type Collection struct {
	ID                  string     `gorm:"type:uuid;primaryKey" json:"id"`
	MerchantTxID        string     `gorm:"column:merchant_tx_id;size:255;not null;uniqueIndex" json:"merchantTxId"`
	AnchorHandle        string     `gorm:"size:255;index" json:"anchorHandle,omitempty"`
	IntentHandle        string     `gorm:"size:255;index" json:"intentHandle,omitempty"`
	Schema              string     `gorm:"size:50" json:"schema,omitempty"`
	Status              string     `gorm:"size:50;not null;default:PENDING" json:"status"`
	AnchorData          Document   `gorm:"type:jsonb" json:"anchorData,omitempty"`
	IntentData          Document   `gorm:"type:jsonb" json:"intentData,omitempty"`
	FulfillmentEvidence Document   `gorm:"type:jsonb" json:"fulfillmentEvidence,omitempty"`
	FulfilledAt         *time.Time `json:"fulfilledAt,omitempty"`
	CreatedAt           time.Time  `json:"createdAt"`
	UpdatedAt           time.Time  `json:"updatedAt"`
}

func (Collection) TableName() string { return "collections" }

func (c *Collection) BeforeCreate(*gorm.DB) error {
	if c.ID == "" {
		c.ID = uuid.NewString()
	}
	if c.Status == "" {
		c.Status = CollectionStatusPending
	}
	return nil
}
