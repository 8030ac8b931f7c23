package ingest

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"regexp"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/targc/numbervault/pkg/models"
)

const (
	columnNumber      = "number"
	columnCountryCode = "countrycode"
	columnAreaCode    = "areacode"
	columnNumberType  = "numbertype"
	columnCategory    = "category"
	columnFeatures    = "features"
)

var phoneNumberPattern = regexp.MustCompile(`^\+?[0-9]{10,15}$`)

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New()
	_ = v.RegisterValidation("phonenumber", func(fl validator.FieldLevel) bool {
		return phoneNumberPattern.MatchString(fl.Field().String())
	})
	return v
}

// Row is one data line of a batch file.
type Row struct {
	Line        int
	Number      string `validate:"required,phonenumber"`
	CountryCode string `validate:"required"`
	AreaCode    string
	NumberType  string
	Category    string
	Features    string

	invalid error
	repeat  bool
}

func (r Row) Validate() error {
	return validate.Struct(r)
}

// RowReader reads a CSV batch file with a header line. Column names are
// matched case-insensitively; number and countryCode are required, the
// other known columns are optional and unknown columns are ignored.
type RowReader struct {
	csv     *csv.Reader
	columns map[string]int
	line    int
}

func NewRowReader(r io.Reader) (*RowReader, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	cr.TrimLeadingSpace = true

	header, err := cr.Read()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return nil, fmt.Errorf("empty file: %w", models.ErrMalformedInput)
		}
		return nil, fmt.Errorf("unreadable header: %v: %w", err, models.ErrMalformedInput)
	}

	columns := make(map[string]int, len(header))
	for i, name := range header {
		name = strings.ToLower(strings.TrimSpace(strings.TrimPrefix(name, "\ufeff")))
		if _, dup := columns[name]; !dup {
			columns[name] = i
		}
	}

	_, hasNumber := columns[columnNumber]
	_, hasCountryCode := columns[columnCountryCode]
	if !hasNumber || !hasCountryCode {
		return nil, fmt.Errorf("CSV file must contain 'number' and 'countryCode' columns: %w", models.ErrMalformedInput)
	}

	return &RowReader{csv: cr, columns: columns, line: 1}, nil
}

// Next returns the next data row or io.EOF.
func (r *RowReader) Next() (Row, error) {
	record, err := r.csv.Read()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return Row{}, io.EOF
		}
		return Row{}, fmt.Errorf("line %d: %v: %w", r.line+1, err, models.ErrMalformedInput)
	}
	r.line++

	return Row{
		Line:        r.line,
		Number:      r.field(record, columnNumber),
		CountryCode: r.field(record, columnCountryCode),
		AreaCode:    r.field(record, columnAreaCode),
		NumberType:  r.field(record, columnNumberType),
		Category:    r.field(record, columnCategory),
		Features:    r.field(record, columnFeatures),
	}, nil
}

func (r *RowReader) field(record []string, column string) string {
	i, ok := r.columns[column]
	if !ok || i >= len(record) {
		return ""
	}
	return strings.TrimSpace(record[i])
}
