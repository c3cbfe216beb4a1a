package client

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// TokenSource returns the bearer token used for service-to-service calls
type TokenSource func() (string, error)

// UserClient looks users up in the service that owns user records
type UserClient struct {
	BaseURL    string
	HTTPClient *http.Client
	Token      TokenSource
}

// ErrorResponse is the error body returned by the user service
type ErrorResponse struct {
	Error string `json:"error"`
}

// NewUserClient creates a client with the given request timeout
func NewUserClient(baseURL string, timeout time.Duration, token TokenSource) *UserClient {
	return &UserClient{
		BaseURL:    strings.TrimRight(baseURL, "/"),
		HTTPClient: &http.Client{Timeout: timeout},
		Token:      token,
	}
}

// UserExists reports whether userID resolves to a user record
func (c *UserClient) UserExists(ctx context.Context, userID string) (bool, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, fmt.Sprintf("%s/users/%s", c.BaseURL, url.PathEscape(userID)), nil)
	if err != nil {
		return false, err
	}
	req.Header.Set("Accept", "application/json")
	if c.Token != nil {
		token, err := c.Token()
		if err != nil {
			return false, fmt.Errorf("failed to get access token: %w", err)
		}
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return false, err
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK:
		_, _ = io.Copy(io.Discard, resp.Body)
		return true, nil
	case http.StatusNotFound:
		_, _ = io.Copy(io.Discard, resp.Body)
		return false, nil
	}

	body, _ := io.ReadAll(resp.Body)
	var errorResp ErrorResponse
	if err := json.Unmarshal(body, &errorResp); err != nil || errorResp.Error == "" {
		return false, fmt.Errorf("user lookup failed: %d %s", resp.StatusCode, string(body))
	}
	return false, fmt.Errorf("user lookup failed: %d %s", resp.StatusCode, errorResp.Error)
}
