package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/gofiber/fiber/v3"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/targc/numbervault/pkg/ingest"
	"github.com/targc/numbervault/pkg/lifecycle"
	"github.com/targc/numbervault/pkg/metrics"
	"github.com/targc/numbervault/pkg/models"
	"github.com/targc/numbervault/pkg/search"
	"github.com/targc/numbervault/pkg/search/redisindex"
	"github.com/targc/numbervault/pkg/staging/fsstage"
	"github.com/targc/numbervault/pkg/store/memstore"
	"github.com/targc/numbervault/pkg/store/storetest"
)

type recordingPublisher struct {
	mu      sync.Mutex
	batches []string
}

func (p *recordingPublisher) Publish(_ context.Context, batchID string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.batches = append(p.batches, batchID)
	return nil
}

type fixture struct {
	app       *fiber.App
	store     *memstore.Store
	index     *redisindex.Index
	publisher *recordingPublisher
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	st, err := memstore.New()
	require.NoError(t, err)

	mr := miniredis.RunT(t)
	index := redisindex.New(redis.NewClient(&redis.Options{Addr: mr.Addr()}), "test:")

	stage, err := fsstage.New(t.TempDir())
	require.NoError(t, err)

	m := metrics.New()
	registry := prometheus.NewRegistry()
	require.NoError(t, registry.Register(m))

	publisher := &recordingPublisher{}
	engine := lifecycle.New(st, index, lifecycle.Options{Metrics: m})
	uploader := ingest.NewUploader(st, stage, publisher)

	app := fiber.New()
	NewServer(engine, uploader, registry).SetupRoutes(app)

	return &fixture{app: app, store: st, index: index, publisher: publisher}
}

func (f *fixture) seed(t *testing.T, numbers ...string) []*models.TelephoneNumber {
	t.Helper()

	var created []*models.TelephoneNumber
	for _, n := range numbers {
		created = append(created, storetest.NewNumber(n))
	}

	require.NoError(t, f.store.SaveAll(context.Background(), created))
	require.NoError(t, f.index.UpsertAll(context.Background(), search.FromNumbers(created)))

	return created
}

func (f *fixture) do(t *testing.T, method, path, actor string, body io.Reader, contentType string) (*http.Response, []byte) {
	t.Helper()

	req := httptest.NewRequest(method, path, body)
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	if actor != "" {
		req.Header.Set(ActorHeader, actor)
	}

	resp, err := f.app.Test(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)

	return resp, raw
}

func (f *fixture) doJSON(t *testing.T, method, path, actor string, body any) (*http.Response, []byte) {
	t.Helper()

	var r io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		r = bytes.NewReader(raw)
	}

	return f.do(t, method, path, actor, r, "application/json")
}

func decode[T any](t *testing.T, raw []byte) T {
	t.Helper()

	var v T
	require.NoError(t, json.Unmarshal(raw, &v), string(raw))
	return v
}

func TestHealth(t *testing.T) {
	f := newFixture(t)

	resp, raw := f.do(t, http.MethodGet, "/health", "", nil, "")

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.JSONEq(t, `{"status":"healthy"}`, string(raw))
}

func TestReserveAndAllocate(t *testing.T) {
	f := newFixture(t)
	n := f.seed(t, "+14155550100")[0]
	base := "/api/v1/numbers/" + n.ID.String()

	resp, raw := f.doJSON(t, http.MethodPost, base+"/reserve", "alice", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode, string(raw))
	reserved := decode[models.TelephoneNumber](t, raw)
	assert.Equal(t, models.StatusReserved, reserved.Status)
	require.NotNil(t, reserved.HolderID)
	assert.Equal(t, "alice", *reserved.HolderID)
	assert.NotNil(t, reserved.ReservedUntil)

	resp, raw = f.doJSON(t, http.MethodPost, base+"/reserve", "bob", nil)
	assert.Equal(t, http.StatusConflict, resp.StatusCode, string(raw))
	assert.Equal(t, CodeInvalidState, decode[ErrorResponse](t, raw).Code)

	resp, raw = f.doJSON(t, http.MethodPost, base+"/allocate", "bob", nil)
	assert.Equal(t, http.StatusConflict, resp.StatusCode, string(raw))

	resp, raw = f.doJSON(t, http.MethodPost, base+"/allocate", "alice", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode, string(raw))
	allocated := decode[models.TelephoneNumber](t, raw)
	assert.Equal(t, models.StatusAllocated, allocated.Status)
	assert.Nil(t, allocated.ReservedUntil)

	resp, raw = f.doJSON(t, http.MethodGet, base+"/history", "", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	history := decode[[]models.StatusHistory](t, raw)
	require.Len(t, history, 2)
	assert.Equal(t, models.StatusAllocated, history[0].NewStatus)
	assert.Equal(t, models.StatusReserved, history[1].NewStatus)
	assert.Equal(t, "alice", history[0].UserID)
}

func TestMutationsRequireActor(t *testing.T) {
	f := newFixture(t)
	n := f.seed(t, "+14155550101")[0]

	resp, raw := f.doJSON(t, http.MethodPost, "/api/v1/numbers/"+n.ID.String()+"/reserve", "", nil)

	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	assert.Contains(t, decode[ErrorResponse](t, raw).Error, ActorHeader)
	assert.Equal(t, CodeUnauthorized, decode[ErrorResponse](t, raw).Code)
}

func TestChangeStatus(t *testing.T) {
	f := newFixture(t)
	n := f.seed(t, "+14155550102")[0]
	path := "/api/v1/numbers/" + n.ID.String() + "/status"

	resp, raw := f.doJSON(t, http.MethodPut, path, "ops", ChangeStatusRequest{Status: models.StatusActivated})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, "invalid status transition from AVAILABLE to ACTIVATED", decode[ErrorResponse](t, raw).Error)
	assert.Equal(t, CodeIllegalTransition, decode[ErrorResponse](t, raw).Code)

	resp, raw = f.doJSON(t, http.MethodPut, path, "ops", ChangeStatusRequest{Status: "LOST"})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode, string(raw))

	resp, _ = f.doJSON(t, http.MethodPut, path, "ops", ChangeStatusRequest{})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp, raw = f.doJSON(t, http.MethodPut, path, "ops", ChangeStatusRequest{Status: models.StatusReserved, Reason: "held for partner"})
	require.Equal(t, http.StatusOK, resp.StatusCode, string(raw))
	assert.Equal(t, models.StatusReserved, decode[models.TelephoneNumber](t, raw).Status)

	resp, raw = f.doJSON(t, http.MethodGet, "/api/v1/numbers/"+n.ID.String()+"/history", "", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "held for partner", decode[[]models.StatusHistory](t, raw)[0].Reason)
}

func TestUnknownAndMalformedIDs(t *testing.T) {
	f := newFixture(t)

	resp, _ := f.doJSON(t, http.MethodGet, "/api/v1/numbers/"+uuid.NewString(), "", nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	resp, _ = f.doJSON(t, http.MethodGet, "/api/v1/numbers/"+uuid.NewString()+"/history", "", nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	resp, _ = f.doJSON(t, http.MethodPost, "/api/v1/numbers/"+uuid.NewString()+"/reserve", "alice", nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	resp, _ = f.doJSON(t, http.MethodGet, "/api/v1/numbers/not-a-uuid", "", nil)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestSearchNumbers(t *testing.T) {
	f := newFixture(t)
	numbers := f.seed(t, "+14155550105", "+14155550103", "+14155550104")

	_, raw := f.doJSON(t, http.MethodPost, "/api/v1/numbers/"+numbers[2].ID.String()+"/reserve", "alice", nil)
	require.NotEmpty(t, raw)

	resp, raw := f.doJSON(t, http.MethodGet, "/api/v1/numbers", "", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode, string(raw))
	got := decode[SearchNumbersResponse](t, raw)
	assert.Equal(t, 0, got.Page)
	assert.Equal(t, search.DefaultPageSize, got.Size)
	require.Len(t, got.Numbers, 2)
	assert.Equal(t, "+14155550103", got.Numbers[0].Number)
	assert.Equal(t, "+14155550105", got.Numbers[1].Number)

	resp, raw = f.doJSON(t, http.MethodGet, "/api/v1/numbers?status=RESERVED", "", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	got = decode[SearchNumbersResponse](t, raw)
	require.Len(t, got.Numbers, 1)
	assert.Equal(t, numbers[2].ID, got.Numbers[0].ID)

	resp, raw = f.doJSON(t, http.MethodGet, "/api/v1/numbers?number=0105&size=1", "", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	got = decode[SearchNumbersResponse](t, raw)
	require.Len(t, got.Numbers, 1)
	assert.Equal(t, "+14155550105", got.Numbers[0].Number)

	resp, _ = f.doJSON(t, http.MethodGet, "/api/v1/numbers?status=LOST", "", nil)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestSearchFarBeyondLastPage(t *testing.T) {
	f := newFixture(t)
	f.seed(t, "+14155550107")

	resp, raw := f.doJSON(t, http.MethodGet, fmt.Sprintf("/api/v1/numbers?page=%d&size=200", math.MaxInt/100), "", nil)

	require.Equal(t, http.StatusOK, resp.StatusCode, string(raw))
	assert.Empty(t, decode[SearchNumbersResponse](t, raw).Numbers)
}

func TestHandlerPanicIsRecovered(t *testing.T) {
	f := newFixture(t)
	f.app.Get("/boom", func(c fiber.Ctx) error {
		panic("boom")
	})

	resp, _ := f.do(t, http.MethodGet, "/boom", "", nil, "")
	assert.Equal(t, http.StatusInternalServerError, resp.StatusCode)

	resp, _ = f.do(t, http.MethodGet, "/health", "", nil, "")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestUploads(t *testing.T) {
	f := newFixture(t)

	var body bytes.Buffer
	w := multipart.NewWriter(&body)
	part, err := w.CreateFormFile(UploadFormField, "numbers.csv")
	require.NoError(t, err)
	_, err = part.Write([]byte("number,countryCode\n+14155550199,+1\n"))
	require.NoError(t, err)
	require.NoError(t, w.Close())

	resp, raw := f.do(t, http.MethodPost, "/api/v1/uploads", "alice", &body, w.FormDataContentType())
	require.Equal(t, http.StatusAccepted, resp.StatusCode, string(raw))
	job := decode[models.IngestionJob](t, raw)
	assert.Equal(t, models.JobStatusPending, job.Status)
	assert.Equal(t, "numbers.csv", job.OriginalFileName)
	assert.Equal(t, "alice", job.UploadedBy)
	assert.Equal(t, []string{job.BatchID}, f.publisher.batches)

	resp, raw = f.doJSON(t, http.MethodGet, "/api/v1/uploads/"+job.BatchID, "", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, job.ID, decode[models.IngestionJob](t, raw).ID)

	resp, raw = f.doJSON(t, http.MethodGet, "/api/v1/uploads", "", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, 1, decode[ListUploadsResponse](t, raw).Total)

	resp, _ = f.doJSON(t, http.MethodGet, "/api/v1/uploads/"+uuid.NewString(), "", nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestUploadRequiresFile(t *testing.T) {
	f := newFixture(t)

	var body bytes.Buffer
	w := multipart.NewWriter(&body)
	require.NoError(t, w.WriteField("note", "no file"))
	require.NoError(t, w.Close())

	resp, _ := f.do(t, http.MethodPost, "/api/v1/uploads", "alice", &body, w.FormDataContentType())

	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Empty(t, f.publisher.batches)
}

func TestMetricsEndpoint(t *testing.T) {
	f := newFixture(t)
	n := f.seed(t, "+14155550106")[0]

	f.doJSON(t, http.MethodPost, "/api/v1/numbers/"+n.ID.String()+"/reserve", "alice", nil)

	resp, raw := f.do(t, http.MethodGet, "/metrics", "", nil, "")

	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, string(raw), `numbervault_transitions_total{operation="reserve",result="ok"} 1`)
}

func TestClassify(t *testing.T) {
	cases := []struct {
		err    error
		status int
		code   string
	}{
		{models.ErrNotFound, http.StatusNotFound, CodeNotFound},
		{models.ErrInvalidState, http.StatusConflict, CodeInvalidState},
		{models.ErrConcurrencyConflict, http.StatusConflict, CodeConcurrencyConflict},
		{&models.IllegalTransitionError{From: models.StatusAvailable, To: models.StatusActivated}, http.StatusBadRequest, CodeIllegalTransition},
		{errBadID, http.StatusBadRequest, CodeMalformedInput},
		{io.ErrUnexpectedEOF, http.StatusInternalServerError, CodeInternal},
	}

	for _, tc := range cases {
		status, code := classify(tc.err)
		assert.Equal(t, tc.status, status, tc.err.Error())
		assert.Equal(t, tc.code, code, tc.err.Error())
	}
}
