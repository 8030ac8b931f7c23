package models

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

type TelephoneNumber struct {
	ID          uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	Number      string    `gorm:"type:varchar(32);not null;uniqueIndex" json:"number"`
	CountryCode string    `gorm:"type:varchar(8);not null;index" json:"country_code"`
	AreaCode    *string   `gorm:"type:varchar(16);index" json:"area_code,omitempty"`
	NumberType  *string   `gorm:"type:varchar(64)" json:"number_type,omitempty"`
	Category    *string   `gorm:"type:varchar(64)" json:"category,omitempty"`
	Features    *string   `gorm:"type:text" json:"features,omitempty"`

	Status        Status     `gorm:"type:varchar(16);not null;index" json:"status"`
	HolderID      *string    `gorm:"type:varchar(255);index" json:"holder_id,omitempty"`
	ReservedUntil *time.Time `json:"reserved_until,omitempty"`

	Revision int     `gorm:"default:1;not null" json:"revision"`
	BatchID  *string `gorm:"type:varchar(64);index" json:"batch_id,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (TelephoneNumber) TableName() string {
	return "telephone_numbers"
}

// Validate checks the holder/expiry invariants that must hold after every
// transition.
func (n *TelephoneNumber) Validate() error {
	if !n.Status.Valid() {
		return fmt.Errorf("number %s: unknown status %q", n.ID, n.Status)
	}

	if n.Status.HoldsActor() != (n.HolderID != nil) {
		return fmt.Errorf("number %s: holder must be set iff status is RESERVED or ALLOCATED (status %s)", n.ID, n.Status)
	}

	if (n.Status == StatusReserved) != (n.ReservedUntil != nil) {
		return fmt.Errorf("number %s: reservation expiry must be set iff status is RESERVED (status %s)", n.ID, n.Status)
	}

	return nil
}

// Clone returns a deep copy so callers never share pointer fields.
func (n *TelephoneNumber) Clone() *TelephoneNumber {
	c := *n
	c.AreaCode = cloneString(n.AreaCode)
	c.NumberType = cloneString(n.NumberType)
	c.Category = cloneString(n.Category)
	c.Features = cloneString(n.Features)
	c.HolderID = cloneString(n.HolderID)
	c.BatchID = cloneString(n.BatchID)
	if n.ReservedUntil != nil {
		t := *n.ReservedUntil
		c.ReservedUntil = &t
	}
	return &c
}

func cloneString(s *string) *string {
	if s == nil {
		return nil
	}
	v := *s
	return &v
}

// StringPtr returns nil for an empty string.
func StringPtr(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
