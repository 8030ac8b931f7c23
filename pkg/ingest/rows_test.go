package ingest

import (
	"io"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/targc/numbervault/pkg/models"
)

func TestRowReader(t *testing.T) {
	payload := "Number,COUNTRYCODE,areaCode,extra,features\n" +
		"+14155550100,+1,415,x,\"sms,voice\"\n" +
		"4155550101,+1\n"

	r, err := NewRowReader(strings.NewReader(payload))
	require.NoError(t, err)

	row, err := r.Next()
	require.NoError(t, err)
	assert.Equal(t, Row{Line: 2, Number: "+14155550100", CountryCode: "+1", AreaCode: "415", Features: "sms,voice"}, row)

	row, err = r.Next()
	require.NoError(t, err)
	assert.Equal(t, "4155550101", row.Number)
	assert.Equal(t, "", row.AreaCode)

	_, err = r.Next()
	assert.ErrorIs(t, err, io.EOF)
}

func TestRowReaderRejectsMissingColumns(t *testing.T) {
	_, err := NewRowReader(strings.NewReader("phone,countryCode\n+14155550100,+1\n"))
	assert.ErrorIs(t, err, models.ErrMalformedInput)

	_, err = NewRowReader(strings.NewReader(""))
	assert.ErrorIs(t, err, models.ErrMalformedInput)
}

func TestRowValidate(t *testing.T) {
	cases := []struct {
		name  string
		row   Row
		valid bool
	}{
		{"e164", Row{Number: "+14155550100", CountryCode: "+1"}, true},
		{"no plus", Row{Number: "4155550100", CountryCode: "+1"}, true},
		{"too short", Row{Number: "+1415555", CountryCode: "+1"}, false},
		{"too long", Row{Number: "+1415555010012345", CountryCode: "+1"}, false},
		{"letters", Row{Number: "+1415555ABCD", CountryCode: "+1"}, false},
		{"no country", Row{Number: "+14155550100"}, false},
		{"empty", Row{}, false},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := tc.row.Validate()
			if tc.valid {
				assert.NoError(t, err)
			} else {
				assert.Error(t, err)
			}
		})
	}
}
