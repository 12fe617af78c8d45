// Package testutil provides containers, migrations and an HTTP client for integration tests.
package testutil

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"testing"
)

// Client calls the API with an optional bearer token and checks every exchange
// against the OpenAPI description when a validator is set.
type Client struct {
	BaseURL    string
	Token      string
	HTTPClient *http.Client
	Validator  *OpenAPIValidator
	t          *testing.T
}

// NewClient creates a client bound to t. validator may be nil.
func NewClient(t *testing.T, baseURL string, validator *OpenAPIValidator) *Client {
	return &Client{
		BaseURL:    baseURL,
		HTTPClient: &http.Client{},
		Validator:  validator,
		t:          t,
	}
}

// WithoutValidation returns a copy of the client that skips OpenAPI checks.
// Use it for requests that are malformed on purpose.
func (c *Client) WithoutValidation() *Client {
	clone := *c
	clone.Validator = nil
	return &clone
}

// WithToken returns a copy of the client that authenticates with token.
func (c *Client) WithToken(token string) *Client {
	clone := *c
	clone.Token = token
	return &clone
}

// Register creates an account and returns its id.
func (c *Client) Register(name, email, password string) string {
	c.t.Helper()

	resp := c.POST("/api/v1/users", map[string]string{
		"name":     name,
		"email":    email,
		"password": password,
	})
	if resp.StatusCode != http.StatusCreated {
		c.t.Fatalf("register %s: status=%d body=%s", email, resp.StatusCode, ReadBody(c.t, resp))
	}

	var body struct {
		Data struct {
			ID string `json:"id"`
		} `json:"data"`
	}
	DecodeJSON(c.t, resp, &body)
	return body.Data.ID
}

// Login authenticates and returns a client carrying the access token.
func (c *Client) Login(email, password string) *Client {
	c.t.Helper()

	resp := c.POST("/api/v1/auth/login", map[string]string{
		"email":    email,
		"password": password,
	})
	if resp.StatusCode != http.StatusOK {
		c.t.Fatalf("login %s: status=%d body=%s", email, resp.StatusCode, ReadBody(c.t, resp))
	}

	var body struct {
		Data struct {
			AccessToken string `json:"access_token"`
		} `json:"data"`
	}
	DecodeJSON(c.t, resp, &body)
	return c.WithToken(body.Data.AccessToken)
}

// GET performs a GET request.
func (c *Client) GET(path string) *http.Response {
	return c.do(http.MethodGet, path, nil)
}

// POST performs a POST request with JSON body.
func (c *Client) POST(path string, body any) *http.Response {
	return c.do(http.MethodPost, path, body)
}

// PUT performs a PUT request with JSON body.
func (c *Client) PUT(path string, body any) *http.Response {
	return c.do(http.MethodPut, path, body)
}

// PATCH performs a PATCH request with JSON body.
func (c *Client) PATCH(path string, body any) *http.Response {
	return c.do(http.MethodPatch, path, body)
}

// DELETE performs a DELETE request.
func (c *Client) DELETE(path string) *http.Response {
	return c.do(http.MethodDelete, path, nil)
}

func (c *Client) do(method, path string, body any) *http.Response {
	c.t.Helper()

	var payload []byte
	if body != nil {
		var err error
		if payload, err = json.Marshal(body); err != nil {
			c.t.Fatalf("marshal body: %v", err)
		}
	}

	req, err := c.newRequest(method, path, payload)
	if err != nil {
		c.t.Fatalf("create request: %v", err)
	}

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		c.t.Fatalf("%s %s: %v", method, path, err)
	}

	if c.Validator != nil {
		// The sent request's body is consumed; validate against a fresh copy.
		check, err := c.newRequest(method, path, payload)
		if err != nil {
			c.t.Fatalf("create validation request: %v", err)
		}
		c.Validator.Validate(c.t, check, resp)
	}

	return resp
}

func (c *Client) newRequest(method, path string, payload []byte) (*http.Request, error) {
	var body io.Reader
	if payload != nil {
		body = bytes.NewReader(payload)
	}

	req, err := http.NewRequest(method, c.BaseURL+path, body)
	if err != nil {
		return nil, err
	}
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.Token != "" {
		req.Header.Set("Authorization", "Bearer "+c.Token)
	}
	return req, nil
}

// DecodeJSON decodes response body into v.
func DecodeJSON(t *testing.T, resp *http.Response, v any) {
	t.Helper()
	defer func() { _ = resp.Body.Close() }()

	if err := json.NewDecoder(resp.Body).Decode(v); err != nil {
		t.Fatalf("decode response: %v", err)
	}
}

// ReadBody reads and returns response body as string.
func ReadBody(t *testing.T, resp *http.Response) string {
	t.Helper()
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("read body: %v", err)
	}
	return string(body)
}

// Close drains and closes the response body.
func Close(resp *http.Response) {
	_, _ = io.Copy(io.Discard, resp.Body)
	_ = resp.Body.Close()
}
