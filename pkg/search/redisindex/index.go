// Package redisindex keeps the search projection in Redis. Each doc is a hash
// and every searchable field value owns a set of doc ids, so a search is a set
// intersection.
package redisindex

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/targc/numbervault/pkg/models"
	"github.com/targc/numbervault/pkg/search"
)

var _ search.Projection = (*Index)(nil)

const maxWatchRetries = 5

const (
	fieldNumber      = "number"
	fieldCountryCode = "countryCode"
	fieldAreaCode    = "areaCode"
	fieldNumberType  = "numberType"
	fieldCategory    = "category"
	fieldFeatures    = "features"
	fieldStatus      = "status"
	fieldRevision    = "revision"
	fieldFeature     = "feature"
)

type Index struct {
	db     redis.UniversalClient
	prefix string
}

func New(db redis.UniversalClient, prefix string) *Index {
	return &Index{db: db, prefix: prefix}
}

func (x *Index) docKey(id string) string {
	return x.prefix + "doc:" + id
}

func (x *Index) idxKey(field, value string) string {
	return x.prefix + "idx:" + field + ":" + value
}

func (x *Index) Upsert(ctx context.Context, doc search.Doc) error {
	id := doc.ID.String()
	key := x.docKey(id)

	return x.watch(ctx, key, func(tx *redis.Tx) error {
		old, err := tx.HGetAll(ctx, key).Result()
		if err != nil {
			return err
		}

		// Pushes may arrive out of commit order; keep the newest.
		if len(old) > 0 && storedRevision(old) >= doc.Revision {
			return nil
		}

		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			for _, k := range x.indexKeys(old) {
				pipe.SRem(ctx, k, id)
			}
			pipe.Del(ctx, key)
			pipe.HSet(ctx, key, hashValues(fields(doc)))
			for _, k := range x.indexKeys(fields(doc)) {
				pipe.SAdd(ctx, k, id)
			}
			return nil
		})
		return err
	})
}

func (x *Index) UpsertAll(ctx context.Context, docs []search.Doc) error {
	for _, doc := range docs {
		if err := x.Upsert(ctx, doc); err != nil {
			return fmt.Errorf("failed to index %s: %w", doc.Number, err)
		}
	}
	return nil
}

func (x *Index) Delete(ctx context.Context, id uuid.UUID) error {
	key := x.docKey(id.String())

	return x.watch(ctx, key, func(tx *redis.Tx) error {
		old, err := tx.HGetAll(ctx, key).Result()
		if err != nil {
			return err
		}

		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			for _, k := range x.indexKeys(old) {
				pipe.SRem(ctx, k, id.String())
			}
			pipe.Del(ctx, key)
			return nil
		})
		return err
	})
}

func (x *Index) Search(ctx context.Context, criteria search.Criteria) ([]uuid.UUID, error) {
	c := criteria.Normalize()

	keys := []string{x.idxKey(fieldStatus, string(c.Status))}
	for _, term := range []struct{ field, value string }{
		{fieldCountryCode, c.CountryCode},
		{fieldAreaCode, c.AreaCode},
		{fieldNumberType, c.NumberType},
		{fieldCategory, c.Category},
	} {
		if term.value != "" {
			keys = append(keys, x.idxKey(term.field, term.value))
		}
	}

	ids, err := x.db.SInter(ctx, keys...).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to intersect index sets: %w", err)
	}

	if terms := search.Terms(c.Features); len(terms) > 0 {
		featureKeys := make([]string, len(terms))
		for i, t := range terms {
			featureKeys[i] = x.idxKey(fieldFeature, t)
		}

		withFeature, err := x.db.SUnion(ctx, featureKeys...).Result()
		if err != nil {
			return nil, fmt.Errorf("failed to union feature sets: %w", err)
		}
		ids = intersect(ids, withFeature)
	}

	if len(ids) == 0 {
		return []uuid.UUID{}, nil
	}

	numbers, err := x.numbers(ctx, ids)
	if err != nil {
		return nil, err
	}

	type hit struct {
		id     string
		number string
	}

	hits := make([]hit, 0, len(ids))
	for i, id := range ids {
		if c.Number != "" && !strings.Contains(numbers[i], c.Number) {
			continue
		}
		hits = append(hits, hit{id: id, number: numbers[i]})
	}

	sort.Slice(hits, func(i, j int) bool {
		if hits[i].number != hits[j].number {
			return hits[i].number < hits[j].number
		}
		return hits[i].id < hits[j].id
	})

	if c.Page >= (len(hits)+c.Size-1)/c.Size {
		return []uuid.UUID{}, nil
	}
	start := c.Page * c.Size
	end := start + c.Size
	if end > len(hits) {
		end = len(hits)
	}

	result := make([]uuid.UUID, 0, end-start)
	for _, h := range hits[start:end] {
		id, err := uuid.Parse(h.id)
		if err != nil {
			return nil, fmt.Errorf("corrupt index member %q: %w", h.id, err)
		}
		result = append(result, id)
	}

	return result, nil
}

func (x *Index) numbers(ctx context.Context, ids []string) ([]string, error) {
	cmds := make([]*redis.StringCmd, len(ids))

	_, err := x.db.Pipelined(ctx, func(pipe redis.Pipeliner) error {
		for i, id := range ids {
			cmds[i] = pipe.HGet(ctx, x.docKey(id), fieldNumber)
		}
		return nil
	})
	if err != nil && !errors.Is(err, redis.Nil) {
		return nil, fmt.Errorf("failed to load projected numbers: %w", err)
	}

	numbers := make([]string, len(ids))
	for i, cmd := range cmds {
		numbers[i] = cmd.Val()
	}
	return numbers, nil
}

func (x *Index) watch(ctx context.Context, key string, fn func(tx *redis.Tx) error) error {
	var err error
	for i := 0; i < maxWatchRetries; i++ {
		err = x.db.Watch(ctx, fn, key)
		if !errors.Is(err, redis.TxFailedErr) {
			return err
		}
	}
	return err
}

func (x *Index) indexKeys(f map[string]string) []string {
	if len(f) == 0 {
		return nil
	}

	var keys []string
	for _, field := range []string{fieldCountryCode, fieldAreaCode, fieldNumberType, fieldCategory, fieldStatus} {
		if v := f[field]; v != "" {
			keys = append(keys, x.idxKey(field, v))
		}
	}
	for _, t := range search.Terms(f[fieldFeatures]) {
		keys = append(keys, x.idxKey(fieldFeature, t))
	}
	return keys
}

func fields(doc search.Doc) map[string]string {
	return map[string]string{
		fieldNumber:      doc.Number,
		fieldCountryCode: doc.CountryCode,
		fieldAreaCode:    doc.AreaCode,
		fieldNumberType:  doc.NumberType,
		fieldCategory:    doc.Category,
		fieldFeatures:    doc.Features,
		fieldStatus:      string(doc.Status),
		fieldRevision:    strconv.Itoa(doc.Revision),
	}
}

// storedRevision reads the revision of a projected hash. Hashes written
// before revisions were projected count as revision 0.
func storedRevision(f map[string]string) int {
	rev, err := strconv.Atoi(f[fieldRevision])
	if err != nil {
		return 0
	}
	return rev
}

func hashValues(f map[string]string) map[string]interface{} {
	values := make(map[string]interface{}, len(f))
	for k, v := range f {
		values[k] = v
	}
	return values
}

func intersect(a, b []string) []string {
	set := make(map[string]struct{}, len(b))
	for _, v := range b {
		set[v] = struct{}{}
	}

	out := a[:0]
	for _, v := range a {
		if _, ok := set[v]; ok {
			out = append(out, v)
		}
	}
	return out
}

// Status reports the projected status of a doc, mainly for diagnostics.
func (x *Index) Status(ctx context.Context, id uuid.UUID) (models.Status, error) {
	v, err := x.db.HGet(ctx, x.docKey(id.String()), fieldStatus).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return "", fmt.Errorf("projected doc %s: %w", id, models.ErrNotFound)
		}
		return "", err
	}
	return models.Status(v), nil
}
