package apiclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"path/filepath"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/targc/numbervault/pkg/models"
	"github.com/targc/numbervault/pkg/search"
)

// ActorHeader must match the header the API server reads the caller from.
const ActorHeader = "X-User-Name"

// APIError is returned for every response with status >= 400.
type APIError struct {
	StatusCode int
	Code       string
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("api error (%d): %s", e.StatusCode, e.Message)
}

// Unwrap maps the server's error code to the model error it stands for,
// falling back to the status code for responses without one.
func (e *APIError) Unwrap() error {
	switch e.Code {
	case "not_found":
		return models.ErrNotFound
	case "invalid_state":
		return models.ErrInvalidState
	case "concurrency_conflict":
		return models.ErrConcurrencyConflict
	case "illegal_transition":
		return models.ErrIllegalTransition
	case "malformed_input":
		return models.ErrMalformedInput
	}

	switch e.StatusCode {
	case http.StatusNotFound:
		return models.ErrNotFound
	case http.StatusConflict:
		return models.ErrInvalidState
	case http.StatusBadRequest:
		return models.ErrMalformedInput
	default:
		return nil
	}
}

type Client struct {
	baseURL    string
	actor      string
	httpClient *http.Client
}

func NewClient(baseURL, actor string) *Client {
	return &Client{
		baseURL: baseURL,
		actor:   actor,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

func (c *Client) doRequest(ctx context.Context, method, path string, body interface{}, result interface{}) error {
	var bodyReader io.Reader

	if body != nil {
		data, err := json.Marshal(body)

		if err != nil {
			return fmt.Errorf("failed to marshal request: %w", err)
		}

		bodyReader = bytes.NewReader(data)
	}

	return c.send(ctx, method, path, bodyReader, "application/json", result)
}

func (c *Client) send(ctx context.Context, method, path string, body io.Reader, contentType string, result interface{}) error {
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)

	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}

	if c.actor != "" {
		req.Header.Set(ActorHeader, c.actor)
	}
	req.Header.Set("Content-Type", contentType)

	resp, err := c.httpClient.Do(req)

	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}

	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		var errResp struct {
			Error string `json:"error"`
			Code  string `json:"code"`
		}

		json.NewDecoder(resp.Body).Decode(&errResp)

		return &APIError{StatusCode: resp.StatusCode, Code: errResp.Code, Message: errResp.Error}
	}

	if result != nil {
		if err := json.NewDecoder(resp.Body).Decode(result); err != nil {
			return fmt.Errorf("failed to decode response: %w", err)
		}
	}

	return nil
}

// SearchNumbers queries the inventory. Zero-valued criteria fields are left
// to the server defaults.
func (c *Client) SearchNumbers(ctx context.Context, criteria search.Criteria) ([]*models.TelephoneNumber, error) {
	var resp struct {
		Numbers []*models.TelephoneNumber `json:"numbers"`
	}

	q := url.Values{}
	set := func(key, value string) {
		if value != "" {
			q.Set(key, value)
		}
	}
	set("number", criteria.Number)
	set("countryCode", criteria.CountryCode)
	set("areaCode", criteria.AreaCode)
	set("numberType", criteria.NumberType)
	set("category", criteria.Category)
	set("features", criteria.Features)
	set("status", string(criteria.Status))
	if criteria.Page > 0 {
		q.Set("page", strconv.Itoa(criteria.Page))
	}
	if criteria.Size > 0 {
		q.Set("size", strconv.Itoa(criteria.Size))
	}

	path := "/api/v1/numbers"
	if len(q) > 0 {
		path += "?" + q.Encode()
	}

	err := c.doRequest(ctx, "GET", path, nil, &resp)

	return resp.Numbers, err
}

func (c *Client) GetNumber(ctx context.Context, id uuid.UUID) (*models.TelephoneNumber, error) {
	var n models.TelephoneNumber

	err := c.doRequest(ctx, "GET", "/api/v1/numbers/"+id.String(), nil, &n)
	if err != nil {
		return nil, err
	}

	return &n, nil
}

func (c *Client) History(ctx context.Context, id uuid.UUID) ([]models.StatusHistory, error) {
	var history []models.StatusHistory

	err := c.doRequest(ctx, "GET", "/api/v1/numbers/"+id.String()+"/history", nil, &history)

	return history, err
}

func (c *Client) Reserve(ctx context.Context, id uuid.UUID) (*models.TelephoneNumber, error) {
	var n models.TelephoneNumber

	err := c.doRequest(ctx, "POST", "/api/v1/numbers/"+id.String()+"/reserve", nil, &n)
	if err != nil {
		return nil, err
	}

	return &n, nil
}

func (c *Client) Allocate(ctx context.Context, id uuid.UUID) (*models.TelephoneNumber, error) {
	var n models.TelephoneNumber

	err := c.doRequest(ctx, "POST", "/api/v1/numbers/"+id.String()+"/allocate", nil, &n)
	if err != nil {
		return nil, err
	}

	return &n, nil
}

// ChangeStatusRequest is the request body for ChangeStatus
type ChangeStatusRequest struct {
	Status models.Status `json:"status"`
	Reason string        `json:"reason,omitempty"`
}

func (c *Client) ChangeStatus(ctx context.Context, id uuid.UUID, status models.Status, reason string) (*models.TelephoneNumber, error) {
	var n models.TelephoneNumber

	err := c.doRequest(ctx, "PUT", "/api/v1/numbers/"+id.String()+"/status", ChangeStatusRequest{
		Status: status,
		Reason: reason,
	}, &n)

	if err != nil {
		return nil, err
	}

	return &n, nil
}

// Upload streams r as a multipart batch file named fileName.
func (c *Client) Upload(ctx context.Context, fileName string, r io.Reader) (*models.IngestionJob, error) {
	pr, pw := io.Pipe()
	w := multipart.NewWriter(pw)

	go func() {
		part, err := w.CreateFormFile("file", filepath.Base(fileName))
		if err == nil {
			_, err = io.Copy(part, r)
		}
		if err == nil {
			err = w.Close()
		}
		pw.CloseWithError(err)
	}()

	var job models.IngestionJob

	err := c.send(ctx, "POST", "/api/v1/uploads", pr, w.FormDataContentType(), &job)

	// Unblocks the writer if the request ended before the body was consumed.
	pr.Close()

	if err != nil {
		return nil, err
	}

	return &job, nil
}

func (c *Client) GetUpload(ctx context.Context, batchID string) (*models.IngestionJob, error) {
	var job models.IngestionJob

	err := c.doRequest(ctx, "GET", "/api/v1/uploads/"+url.PathEscape(batchID), nil, &job)
	if err != nil {
		return nil, err
	}

	return &job, nil
}

func (c *Client) ListUploads(ctx context.Context) ([]models.IngestionJob, error) {
	var resp struct {
		Jobs []models.IngestionJob `json:"jobs"`
	}

	err := c.doRequest(ctx, "GET", "/api/v1/uploads", nil, &resp)

	return resp.Jobs, err
}
