package models

import (
	"time"

	"github.com/google/uuid"
)

// StatusHistory is an append-only audit record of one accepted transition.
type StatusHistory struct {
	ID                uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	TelephoneNumberID uuid.UUID `gorm:"type:uuid;not null;index" json:"telephone_number_id"`
	OldStatus         *Status   `gorm:"type:varchar(16)" json:"old_status,omitempty"`
	NewStatus         Status    `gorm:"type:varchar(16);not null" json:"new_status"`
	UserID            string    `gorm:"type:varchar(255)" json:"user_id"`
	Reason            string    `gorm:"type:text" json:"reason"`
	CreatedAt         time.Time `gorm:"not null;index" json:"created_at"`
}

func (StatusHistory) TableName() string {
	return "number_status_history"
}
