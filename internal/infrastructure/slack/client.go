// Package slack implements the notification-sink port against the Slack
// Web API.
package slack

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/orris-inc/ticketwatch/internal/domain/relay"
	sharedConfig "github.com/orris-inc/ticketwatch/internal/shared/config"
	apperrors "github.com/orris-inc/ticketwatch/internal/shared/errors"
)

const defaultBaseURL = "https://slack.com/api"

// Client provides Slack Web API operations.
type Client struct {
	config     sharedConfig.SlackConfig
	httpClient *http.Client
	baseURL    string
}

var _ relay.NotificationSink = (*Client)(nil)

// NewClient creates a new Slack API client.
func NewClient(config sharedConfig.SlackConfig) *Client {
	return &Client{
		config: config,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
		baseURL: defaultBaseURL,
	}
}

type attachment struct {
	Color     string `json:"color,omitempty"`
	Title     string `json:"title,omitempty"`
	TitleLink string `json:"title_link,omitempty"`
	Footer    string `json:"footer,omitempty"`
	Timestamp int64  `json:"ts,omitempty"`
}

type apiResponse struct {
	OK      bool   `json:"ok"`
	Channel string `json:"channel"`
	TS      string `json:"ts"`
	Error   string `json:"error"`
}

// Post sends a message to the configured channel and returns its reference
// for later reactions or deletion.
func (c *Client) Post(ctx context.Context, msg relay.Message) (relay.MessageRef, error) {
	body := map[string]any{
		"channel": c.config.Channel,
		"text":    msg.Text,
		"attachments": []attachment{{
			Color:     msg.Color,
			Title:     msg.Title,
			TitleLink: msg.TitleLink,
			Footer:    msg.Footer,
			Timestamp: timestampHint(msg.TimestampHint),
		}},
	}

	resp, err := c.call(ctx, "chat.postMessage", body)
	if err != nil {
		return relay.MessageRef{}, err
	}
	if resp.Channel == "" || resp.TS == "" {
		return relay.MessageRef{}, apperrors.NewTransportError("slack response missing message reference")
	}
	return relay.MessageRef{Channel: resp.Channel, Timestamp: resp.TS}, nil
}

// React adds an emoji reaction to a previously posted message. A reaction
// that is already present counts as success.
func (c *Client) React(ctx context.Context, ref relay.MessageRef, emoji string) error {
	body := map[string]any{
		"channel":   ref.Channel,
		"timestamp": ref.Timestamp,
		"name":      emoji,
	}
	_, err := c.call(ctx, "reactions.add", body)
	if appErr := apperrors.GetAppError(err); appErr != nil && appErr.Details == "already_reacted" {
		return nil
	}
	return err
}

// Delete removes a previously posted message.
func (c *Client) Delete(ctx context.Context, ref relay.MessageRef) error {
	body := map[string]any{
		"channel": ref.Channel,
		"ts":      ref.Timestamp,
	}
	_, err := c.call(ctx, "chat.delete", body)
	return err
}

func (c *Client) call(ctx context.Context, method string, body map[string]any) (*apiResponse, error) {
	jsonBody, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request body: %w", err)
	}

	apiURL := fmt.Sprintf("%s/%s", c.baseURL, method)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, apiURL, bytes.NewBuffer(jsonBody))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json; charset=utf-8")
	req.Header.Set("Authorization", "Bearer "+c.config.Token)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, apperrors.NewTransportError(fmt.Sprintf("slack %s request failed", method), err.Error())
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, apperrors.NewTransportError(
			fmt.Sprintf("slack %s returned status %d", method, resp.StatusCode))
	}

	var parsed apiResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return nil, apperrors.NewTransportError(
			fmt.Sprintf("failed to decode slack %s response", method), err.Error())
	}
	if !parsed.OK {
		return nil, apperrors.NewTransportError(
			fmt.Sprintf("slack %s rejected the request", method), parsed.Error)
	}
	return &parsed, nil
}

func timestampHint(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}
	return t.Unix()
}
