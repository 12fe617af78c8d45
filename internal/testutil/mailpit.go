package testutil

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"
)

// MailpitClient reads mail captured by a Mailpit container.
type MailpitClient struct {
	baseURL    string
	httpClient *http.Client
}

// MailpitMessage is a message summary as listed by Mailpit.
type MailpitMessage struct {
	ID      string           `json:"ID"`
	From    MailpitAddress   `json:"From"`
	To      []MailpitAddress `json:"To"`
	Subject string           `json:"Subject"`
	Snippet string           `json:"Snippet"`
}

// MailpitAddress is a mail address as reported by Mailpit.
type MailpitAddress struct {
	Address string `json:"Address"`
	Name    string `json:"Name"`
}

type messagesResponse struct {
	Messages []MailpitMessage `json:"messages"`
}

// Client returns an API client for the container.
func (c *MailpitContainer) Client() *MailpitClient {
	return &MailpitClient{
		baseURL:    fmt.Sprintf("http://%s:%d", c.APIHost, c.APIPort),
		httpClient: &http.Client{Timeout: 10 * time.Second},
	}
}

// SearchByRecipient returns messages addressed to email.
func (c *MailpitClient) SearchByRecipient(ctx context.Context, email string) ([]MailpitMessage, error) {
	endpoint := c.baseURL + "/api/v1/search?query=" + url.QueryEscape("to:"+email)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("search messages: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("search messages: status %d: %s", resp.StatusCode, body)
	}

	var result messagesResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("decode search results: %w", err)
	}
	return result.Messages, nil
}

// WaitForRecipient polls until at least one message for email arrives or timeout passes.
func (c *MailpitClient) WaitForRecipient(ctx context.Context, email string, timeout time.Duration) ([]MailpitMessage, error) {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	ticker := time.NewTicker(100 * time.Millisecond)
	defer ticker.Stop()

	for {
		messages, err := c.SearchByRecipient(ctx, email)
		if err == nil && len(messages) > 0 {
			return messages, nil
		}

		select {
		case <-ctx.Done():
			if err != nil {
				return nil, fmt.Errorf("wait for mail to %s: %w", email, err)
			}
			return nil, fmt.Errorf("wait for mail to %s: %w", email, ctx.Err())
		case <-ticker.C:
		}
	}
}
