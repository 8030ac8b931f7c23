// Package search defines the searchable projection of telephone numbers. The
// projection is never authoritative: it answers which ids match, and callers
// load the rows from the store.
package search

import (
	"context"
	"math"
	"strings"
	"unicode"

	"github.com/google/uuid"
	"github.com/targc/numbervault/pkg/models"
)

const (
	DefaultPageSize = 20
	MaxPageSize     = 200

	// MaxPage bounds Page so that Page*Size cannot overflow.
	MaxPage = math.MaxInt32
)

// Doc is the projected view of one number.
type Doc struct {
	ID          uuid.UUID
	Number      string
	CountryCode string
	AreaCode    string
	NumberType  string
	Category    string
	Features    string
	Status      models.Status

	// Revision is the store revision the doc was projected from. A doc never
	// replaces one projected from the same or a later revision.
	Revision int
}

func FromNumber(n *models.TelephoneNumber) Doc {
	return Doc{
		ID:          n.ID,
		Number:      n.Number,
		CountryCode: n.CountryCode,
		AreaCode:    deref(n.AreaCode),
		NumberType:  deref(n.NumberType),
		Category:    deref(n.Category),
		Features:    deref(n.Features),
		Status:      n.Status,
		Revision:    n.Revision,
	}
}

func FromNumbers(numbers []*models.TelephoneNumber) []Doc {
	docs := make([]Doc, len(numbers))
	for i, n := range numbers {
		docs[i] = FromNumber(n)
	}
	return docs
}

// Criteria filters the projection. Empty fields are ignored. Number matches
// as a substring, Features matches when any of its terms is present, every
// other field is an exact term.
type Criteria struct {
	Number      string        `query:"number"`
	CountryCode string        `query:"countryCode"`
	AreaCode    string        `query:"areaCode"`
	NumberType  string        `query:"numberType"`
	Category    string        `query:"category"`
	Features    string        `query:"features"`
	Status      models.Status `query:"status"`
	Page        int           `query:"page"`
	Size        int           `query:"size"`
}

// Normalize applies the defaults: AVAILABLE status, first page, page size 20.
// Page is clamped to [0, MaxPage] and Size to MaxPageSize.
func (c Criteria) Normalize() Criteria {
	if c.Status == "" {
		c.Status = models.StatusAvailable
	}
	if c.Page < 0 {
		c.Page = 0
	}
	if c.Page > MaxPage {
		c.Page = MaxPage
	}
	if c.Size <= 0 {
		c.Size = DefaultPageSize
	}
	if c.Size > MaxPageSize {
		c.Size = MaxPageSize
	}
	return c
}

type Projection interface {
	Upsert(ctx context.Context, doc Doc) error
	UpsertAll(ctx context.Context, docs []Doc) error
	Delete(ctx context.Context, id uuid.UUID) error

	// Search returns the ids of matching docs ordered by number.
	Search(ctx context.Context, criteria Criteria) ([]uuid.UUID, error)
}

// Terms splits a features string into lower-case match terms.
func Terms(features string) []string {
	fields := strings.FieldsFunc(strings.ToLower(features), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r) && r != '_' && r != '-'
	})

	seen := make(map[string]bool, len(fields))
	terms := make([]string, 0, len(fields))
	for _, f := range fields {
		if !seen[f] {
			seen[f] = true
			terms = append(terms, f)
		}
	}
	return terms
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
