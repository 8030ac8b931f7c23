package models

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
)

func TestTelephoneNumberValidate(t *testing.T) {
	holder := "alice"
	until := time.Date(2026, 1, 2, 0, 0, 0, 0, time.UTC)

	tests := map[string]struct {
		status  Status
		holder  *string
		until   *time.Time
		wantErr bool
	}{
		"available":                {status: StatusAvailable},
		"available with holder":    {status: StatusAvailable, holder: &holder, wantErr: true},
		"reserved":                 {status: StatusReserved, holder: &holder, until: &until},
		"reserved without expiry":  {status: StatusReserved, holder: &holder, wantErr: true},
		"reserved without holder":  {status: StatusReserved, until: &until, wantErr: true},
		"allocated":                {status: StatusAllocated, holder: &holder},
		"allocated with expiry":    {status: StatusAllocated, holder: &holder, until: &until, wantErr: true},
		"activated":                {status: StatusActivated},
		"activated with holder":    {status: StatusActivated, holder: &holder, wantErr: true},
		"deactivated":              {status: StatusDeactivated},
		"deactivated with expiry":  {status: StatusDeactivated, until: &until, wantErr: true},
		"unknown status":           {status: Status("GONE"), wantErr: true},
	}

	for name, tc := range tests {
		t.Run(name, func(t *testing.T) {
			n := &TelephoneNumber{ID: uuid.New(), Status: tc.status, HolderID: tc.holder, ReservedUntil: tc.until}
			err := n.Validate()
			if tc.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestTelephoneNumberClone(t *testing.T) {
	until := time.Now()
	n := &TelephoneNumber{
		ID:            uuid.New(),
		Number:        "+14155550100",
		AreaCode:      StringPtr("415"),
		HolderID:      StringPtr("alice"),
		ReservedUntil: &until,
	}

	c := n.Clone()
	*c.AreaCode = "650"
	*c.HolderID = "bob"
	*c.ReservedUntil = until.Add(time.Hour)

	assert.Equal(t, "415", *n.AreaCode)
	assert.Equal(t, "alice", *n.HolderID)
	assert.Equal(t, until, *n.ReservedUntil)
}

func TestStringPtr(t *testing.T) {
	assert.Nil(t, StringPtr(""))
	assert.Equal(t, "x", *StringPtr("x"))
}
