// Package nodeify provides a client for the nodeify messaging server.
package nodeify

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"
)

// Client is a nodeify API client.
type Client struct {
	BaseURL    string
	Token      string
	HTTPClient *http.Client
}

// NewClient creates a new client. An empty baseURL falls back to
// NODEIFY_URL, then http://localhost:8080. An empty token falls back to
// NODEIFY_TOKEN.
func NewClient(baseURL, token string) *Client {
	if baseURL == "" {
		baseURL = os.Getenv("NODEIFY_URL")
	}
	if baseURL == "" {
		baseURL = "http://localhost:8080"
	}
	if token == "" {
		token = os.Getenv("NODEIFY_TOKEN")
	}

	return &Client{
		BaseURL:    strings.TrimRight(baseURL, "/"),
		Token:      token,
		HTTPClient: &http.Client{Timeout: 30 * time.Second},
	}
}

// APIError is a non-2xx response.
type APIError struct {
	StatusCode  int
	Message     string
	Description string
}

func (e *APIError) Error() string {
	if e.Description != "" {
		return fmt.Sprintf("nodeify error %d: %s (%s)", e.StatusCode, e.Message, e.Description)
	}
	return fmt.Sprintf("nodeify error %d: %s", e.StatusCode, e.Message)
}

// doRequest performs an HTTP request.
func (c *Client) doRequest(method, path string, body []byte, authed bool) ([]byte, error) {
	req, err := http.NewRequest(method, c.BaseURL+path, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}

	req.Header.Set("Content-Type", "application/json")
	if authed {
		req.Header.Set("Authorization", "Bearer "+c.Token)
	}

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}

	if resp.StatusCode >= 400 {
		var errResp struct {
			Error            string `json:"error"`
			ErrorDescription string `json:"errorDescription"`
		}
		if json.Unmarshal(respBody, &errResp) != nil || errResp.Error == "" {
			errResp.Error = strings.TrimSpace(string(respBody))
		}
		return nil, &APIError{StatusCode: resp.StatusCode, Message: errResp.Error, Description: errResp.ErrorDescription}
	}

	return respBody, nil
}

// sendRequest is the body of POST /message.
type sendRequest struct {
	ClientID  string `json:"clientId"`
	Message   string `json:"message"`
	Recipient string `json:"recipient"`
}

// Send submits a message to recipient as the token's owner. A nil error
// means the server accepted and dispatched it, not that it was received.
func (c *Client) Send(recipient, message string) error {
	body, _ := json.Marshal(sendRequest{ClientID: c.Token, Message: message, Recipient: recipient})

	respBody, err := c.doRequest("POST", "/message", body, false)
	if err != nil {
		return err
	}
	if got := strings.TrimSpace(string(respBody)); got != "delivered" {
		return fmt.Errorf("unexpected response: %q", got)
	}
	return nil
}

// Presence is an identity's online state.
type Presence struct {
	Identity string `json:"identity"`
	Online   bool   `json:"online"`
	LastSeen string `json:"last_seen,omitempty"`
}

// Who looks up identity's presence. Requires a token.
func (c *Client) Who(identity string) (*Presence, error) {
	respBody, err := c.doRequest("GET", "/who/"+url.PathEscape(identity), nil, true)
	if err != nil {
		return nil, err
	}

	var resp Presence
	if err := json.Unmarshal(respBody, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// HealthCheck is one entry of a health response.
type HealthCheck struct {
	Status  string `json:"status"`
	Latency string `json:"latency,omitempty"`
	Message string `json:"message,omitempty"`
}

// HealthResponse is the response from the health endpoint.
type HealthResponse struct {
	Status      string                 `json:"status"`
	Version     string                 `json:"version"`
	Uptime      string                 `json:"uptime"`
	Connections int                    `json:"connections"`
	Pending     int64                  `json:"pending"`
	Checks      map[string]HealthCheck `json:"checks"`
	Timestamp   string                 `json:"timestamp"`
}

// Health checks server health. A degraded server still returns its report
// along with the error.
func (c *Client) Health() (*HealthResponse, error) {
	req, err := http.NewRequest("GET", c.BaseURL+"/health", nil)
	if err != nil {
		return nil, err
	}
	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	var health HealthResponse
	if err := json.NewDecoder(resp.Body).Decode(&health); err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusOK {
		return &health, &APIError{StatusCode: resp.StatusCode, Message: health.Status}
	}
	return &health, nil
}

// Stats is the response from the stats endpoint.
type Stats struct {
	TotalClients  int64  `json:"total_clients"`
	OnlineClients int    `json:"online_clients"`
	PendingCount  int64  `json:"pending_messages"`
	LastActivity  string `json:"last_activity"`
}

// Stats fetches delivery statistics.
func (c *Client) Stats() (*Stats, error) {
	respBody, err := c.doRequest("GET", "/stats", nil, false)
	if err != nil {
		return nil, err
	}

	var resp Stats
	if err := json.Unmarshal(respBody, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}
