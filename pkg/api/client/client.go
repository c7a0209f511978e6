package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
)

const defaultBaseURL = "http://localhost:8000"

// Client provides typed access to the dev environment API for interactive tools.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// Option customises client instantiation.
type Option func(*Client)

// WithHTTPClient overrides the default HTTP client.
func WithHTTPClient(h *http.Client) Option {
	return func(c *Client) {
		if h != nil {
			c.httpClient = h
		}
	}
}

// New constructs a Client pointing at the provided API base URL.
func New(base string, opts ...Option) (*Client, error) {
	trimmed := strings.TrimSpace(base)
	if trimmed == "" {
		trimmed = defaultBaseURL
	}
	if !strings.HasPrefix(trimmed, "http://") && !strings.HasPrefix(trimmed, "https://") {
		trimmed = "http://" + trimmed
	}
	if _, err := url.Parse(trimmed); err != nil {
		return nil, fmt.Errorf("invalid api base url: %w", err)
	}
	cli := &Client{
		baseURL:    strings.TrimRight(trimmed, "/"),
		httpClient: &http.Client{Timeout: 15 * time.Second},
	}
	for _, opt := range opts {
		opt(cli)
	}
	return cli, nil
}

// FieldError names one rejected input field.
type FieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// APIError represents an error response from the API.
type APIError struct {
	Status  int
	Message string
	Fields  []FieldError
}

func (e APIError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("api request failed with status %d", e.Status)
	}
	if len(e.Fields) > 0 {
		parts := make([]string, 0, len(e.Fields))
		for _, f := range e.Fields {
			parts = append(parts, f.Field+": "+f.Message)
		}
		return fmt.Sprintf("api request failed (%d): %s (%s)", e.Status, e.Message, strings.Join(parts, "; "))
	}
	return fmt.Sprintf("api request failed (%d): %s", e.Status, e.Message)
}

// IsNotFound reports whether err is an APIError carrying a 404.
func IsNotFound(err error) bool {
	var apiErr APIError
	return errors.As(err, &apiErr) && apiErr.Status == http.StatusNotFound
}

func (c *Client) do(ctx context.Context, method, path string, body any, v any) error {
	if c == nil {
		return fmt.Errorf("client is nil")
	}
	if ctx == nil {
		ctx = context.Background()
	}
	endpoint := c.baseURL + path
	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode request body: %w", err)
		}
		reader = bytes.NewReader(payload)
	}
	req, err := http.NewRequestWithContext(ctx, method, endpoint, reader)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("perform request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusBadRequest {
		apiErr := extractError(resp.Body)
		apiErr.Status = resp.StatusCode
		return apiErr
	}

	if v == nil {
		return nil
	}
	decoder := json.NewDecoder(resp.Body)
	if err := decoder.Decode(v); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

func extractError(body io.Reader) APIError {
	if body == nil {
		return APIError{}
	}
	var payload struct {
		Detail string       `json:"detail"`
		Errors []FieldError `json:"errors"`
	}
	data, err := io.ReadAll(body)
	if err != nil || len(data) == 0 {
		return APIError{}
	}
	if err := json.Unmarshal(data, &payload); err != nil {
		return APIError{Message: strings.TrimSpace(string(data))}
	}
	return APIError{Message: strings.TrimSpace(payload.Detail), Fields: payload.Errors}
}

// EnvType classifies an environment.
type EnvType string

const (
	EnvTypeDev   EnvType = "dev"
	EnvTypeStage EnvType = "stage"
)

// Valid reports whether t is a type the API accepts.
func (t EnvType) Valid() bool {
	return t == EnvTypeDev || t == EnvTypeStage
}

// Env is an environment record as served by the API.
type Env struct {
	ID        string     `json:"id"`
	Name      string     `json:"name"`
	Owner     string     `json:"owner"`
	Group     string     `json:"group"`
	Duration  int32      `json:"duration"`
	EnvType   EnvType    `json:"env_type"`
	CreatedAt time.Time  `json:"created_at"`
	UpdatedAt *time.Time `json:"updated_at,omitempty"`
}

// CreateInput is the payload accepted by POST /envs.
type CreateInput struct {
	Name     string  `json:"name"`
	Owner    string  `json:"owner"`
	Group    string  `json:"group"`
	Duration int32   `json:"duration"`
	EnvType  EnvType `json:"env_type"`
}

// UpdateInput is a sparse update. Nil fields are omitted from the request.
type UpdateInput struct {
	Name     *string  `json:"name,omitempty"`
	Owner    *string  `json:"owner,omitempty"`
	Group    *string  `json:"group,omitempty"`
	Duration *int32   `json:"duration,omitempty"`
	EnvType  *EnvType `json:"env_type,omitempty"`
}

// Health fetches the welcome message served at the API root.
func (c *Client) Health(ctx context.Context) (string, error) {
	var resp struct {
		Message string `json:"message"`
	}
	if err := c.do(ctx, http.MethodGet, "/", nil, &resp); err != nil {
		return "", err
	}
	return resp.Message, nil
}

// Ready reports whether the API can reach its database.
func (c *Client) Ready(ctx context.Context) error {
	return c.do(ctx, http.MethodGet, "/healthz", nil, nil)
}

// CreateEnv registers a new environment.
func (c *Client) CreateEnv(ctx context.Context, input CreateInput) (Env, error) {
	var env Env
	if err := c.do(ctx, http.MethodPost, "/envs", input, &env); err != nil {
		return Env{}, err
	}
	return env, nil
}

// GetEnv fetches an environment by id.
func (c *Client) GetEnv(ctx context.Context, envID string) (Env, error) {
	var env Env
	if err := c.do(ctx, http.MethodGet, envPath(envID), nil, &env); err != nil {
		return Env{}, err
	}
	return env, nil
}

// UpdateEnv applies a sparse update to an environment.
func (c *Client) UpdateEnv(ctx context.Context, envID string, input UpdateInput) (Env, error) {
	var env Env
	if err := c.do(ctx, http.MethodPut, envPath(envID), input, &env); err != nil {
		return Env{}, err
	}
	return env, nil
}

// ExtendEnv adds extra to the environment's duration.
func (c *Client) ExtendEnv(ctx context.Context, envID string, extra int32) (Env, error) {
	path := envPath(envID) + "/extend?extra_duration=" + strconv.FormatInt(int64(extra), 10)
	var env Env
	if err := c.do(ctx, http.MethodPatch, path, nil, &env); err != nil {
		return Env{}, err
	}
	return env, nil
}

// DeleteEnv removes an environment and returns the server's confirmation.
func (c *Client) DeleteEnv(ctx context.Context, envID string) (string, error) {
	var resp struct {
		Detail string `json:"detail"`
	}
	if err := c.do(ctx, http.MethodDelete, envPath(envID), nil, &resp); err != nil {
		return "", err
	}
	return resp.Detail, nil
}

func envPath(envID string) string {
	return "/envs/" + url.PathEscape(strings.TrimSpace(envID))
}
