// Package redmine implements the issue-source port against the Redmine
// REST API.
package redmine

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/orris-inc/ticketwatch/internal/domain/relay"
	"github.com/orris-inc/ticketwatch/internal/domain/ticket"
	sharedConfig "github.com/orris-inc/ticketwatch/internal/shared/config"
	apperrors "github.com/orris-inc/ticketwatch/internal/shared/errors"
	"github.com/orris-inc/ticketwatch/internal/shared/logger"
)

const defaultFetchLimit = 100

// Client provides Redmine REST API operations.
type Client struct {
	config     sharedConfig.RedmineConfig
	httpClient *http.Client
	baseURL    string
	logger     logger.Interface
}

var _ relay.IssueSource = (*Client)(nil)

// NewClient creates a new Redmine API client.
func NewClient(config sharedConfig.RedmineConfig, log logger.Interface) *Client {
	if config.FetchLimit <= 0 {
		config.FetchLimit = defaultFetchLimit
	}
	return &Client{
		config: config,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
		baseURL: strings.TrimRight(config.BaseURL, "/"),
		logger:  log,
	}
}

type refPayload struct {
	ID   int    `json:"id"`
	Name string `json:"name"`
}

type issuePayload struct {
	ID          int         `json:"id"`
	Subject     string      `json:"subject"`
	Description string      `json:"description"`
	CreatedOn   string      `json:"created_on"`
	Tracker     refPayload  `json:"tracker"`
	Status      refPayload  `json:"status"`
	Priority    refPayload  `json:"priority"`
	Author      refPayload  `json:"author"`
	AssignedTo  *refPayload `json:"assigned_to"`
	Project     refPayload  `json:"project"`
}

type issueListResponse struct {
	Issues []issuePayload `json:"issues"`
}

type issueResponse struct {
	Issue issuePayload `json:"issue"`
}

// FetchCreatedSince returns tickets created after the given time. The
// Redmine created_on filter is date-granular, so the query over-fetches the
// boundary day; callers apply the strict timestamp comparison themselves.
func (c *Client) FetchCreatedSince(ctx context.Context, since time.Time) ([]*ticket.Ticket, error) {
	query := url.Values{}
	query.Set("sort", "created_on:desc")
	query.Set("created_on", ">="+since.UTC().Format("2006-01-02"))
	query.Set("limit", strconv.Itoa(c.config.FetchLimit))

	apiURL := fmt.Sprintf("%s/issues.json?%s", c.baseURL, query.Encode())

	var payload issueListResponse
	if err := c.get(ctx, apiURL, &payload); err != nil {
		return nil, err
	}

	tickets := make([]*ticket.Ticket, 0, len(payload.Issues))
	for _, issue := range payload.Issues {
		tk, err := c.toDomain(issue)
		if err != nil {
			// One malformed record must not abort the whole batch.
			c.logger.Warnw("skipping malformed issue", "issue_id", issue.ID, "error", err)
			continue
		}
		tickets = append(tickets, tk)
	}
	return tickets, nil
}

// FetchByID returns the current upstream state of one ticket. A 404 from
// the tracker maps to a not-found error, the defined signal for "deleted".
func (c *Client) FetchByID(ctx context.Context, id int) (*ticket.Ticket, error) {
	apiURL := fmt.Sprintf("%s/issues/%d.json", c.baseURL, id)

	var payload issueResponse
	if err := c.get(ctx, apiURL, &payload); err != nil {
		return nil, err
	}

	tk, err := c.toDomain(payload.Issue)
	if err != nil {
		return nil, apperrors.NewBadRequestError("malformed issue payload", err.Error())
	}
	return tk, nil
}

func (c *Client) get(ctx context.Context, apiURL string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, apiURL, nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("X-Redmine-API-Key", c.config.APIKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return apperrors.NewTransportError("redmine request failed", err.Error())
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return apperrors.NewNotFoundError("issue not found")
	}
	if resp.StatusCode != http.StatusOK {
		return apperrors.NewTransportError(
			fmt.Sprintf("redmine returned status %d", resp.StatusCode))
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return apperrors.NewTransportError("failed to decode redmine response", err.Error())
	}
	return nil
}

func (c *Client) toDomain(issue issuePayload) (*ticket.Ticket, error) {
	createdAt, err := time.Parse(time.RFC3339, issue.CreatedOn)
	if err != nil {
		return nil, fmt.Errorf("unparseable created_on %q: %w", issue.CreatedOn, err)
	}

	assigneeName := ""
	if issue.AssignedTo != nil {
		assigneeName = issue.AssignedTo.Name
	}

	return ticket.NewTicket(
		issue.ID,
		issue.Tracker.ID,
		issue.Tracker.Name,
		issue.Subject,
		issue.Description,
		issue.Author.Name,
		assigneeName,
		issue.Project.Name,
		issue.Priority.Name,
		issue.Status.Name,
		createdAt,
	)
}
