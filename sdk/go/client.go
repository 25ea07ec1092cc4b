package designflowsdk

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// Client is a minimal DesignFlow HTTP API client.
type Client struct {
	BaseURL     string
	ActorID     string
	BearerToken string
	HTTPClient  *http.Client
	Timeout     time.Duration
}

// New creates a client with sane defaults.
func New(baseURL string) *Client {
	return &Client{
		BaseURL: baseURL,
		Timeout: 10 * time.Second,
	}
}

type Feedback struct {
	ID      string `json:"id"`
	Author  string `json:"author"`
	Role    string `json:"role"`
	Content string `json:"content"`
	Date    string `json:"date"`
	Type    string `json:"type"`
}

// Request is the API design request model.
type Request struct {
	ID               string     `json:"id"`
	Title            string     `json:"title"`
	Client           string     `json:"client"`
	Requestor        string     `json:"requestor"`
	Description      string     `json:"description,omitempty"`
	Type             string     `json:"type"`
	BusinessFunction string     `json:"business_function"`
	Priority         string     `json:"priority"`
	Status           string     `json:"status"`
	EstimatedHours   float64    `json:"estimated_hours"`
	DueDate          string     `json:"due_date"`
	AssignedTo       string     `json:"assigned_to,omitempty"`
	StartDate        string     `json:"start_date,omitempty"`
	Feedback         []Feedback `json:"feedback"`
}

type Designer struct {
	ID            string   `json:"id"`
	Name          string   `json:"name"`
	Role          string   `json:"role"`
	Skills        []string `json:"skills"`
	CapacityHours float64  `json:"capacity_hours"`
	AssignedHours float64  `json:"assigned_hours"`
}

// NewRequest holds intake fields. Status and ownership are set by the server.
type NewRequest struct {
	Title            string  `json:"title"`
	Client           string  `json:"client,omitempty"`
	Requestor        string  `json:"requestor,omitempty"`
	Description      string  `json:"description,omitempty"`
	Type             string  `json:"type"`
	BusinessFunction string  `json:"business_function"`
	Priority         string  `json:"priority,omitempty"`
	EstimatedHours   float64 `json:"estimated_hours,omitempty"`
	DueDate          string  `json:"due_date"`
}

type AssignResult struct {
	Request  Request  `json:"request"`
	Designer Designer `json:"designer"`
	Hours    float64  `json:"hours"`
}

type Suggestion struct {
	RequestID  string `json:"requestId"`
	DesignerID string `json:"designerId"`
	Rationale  string `json:"rationale"`
}

type ApplyResult struct {
	Applied    bool       `json:"applied"`
	Reason     string     `json:"reason,omitempty"`
	Suggestion Suggestion `json:"suggestion"`
	Request    *Request   `json:"request,omitempty"`
}

type Bar struct {
	RequestID      string  `json:"request_id"`
	Title          string  `json:"title"`
	Status         string  `json:"status"`
	EstimatedHours float64 `json:"estimated_hours"`
	OffsetDays     int     `json:"offset_days"`
	DurationDays   int     `json:"duration_days"`
	Left           float64 `json:"left"`
	Width          float64 `json:"width"`
}

type TimelineRow struct {
	Designer Designer `json:"designer"`
	Bars     []Bar    `json:"bars"`
}

type Timeline struct {
	Start string        `json:"start"`
	Days  int           `json:"days"`
	Dates []string      `json:"dates"`
	Rows  []TimelineRow `json:"rows"`
}

// Event represents a log entry.
type Event struct {
	ID         int64          `json:"id"`
	TS         string         `json:"ts"`
	Type       string         `json:"type"`
	EntityKind string         `json:"entity_kind"`
	EntityID   string         `json:"entity_id"`
	ActorID    string         `json:"actor_id"`
	Payload    map[string]any `json:"payload"`
}

// PaginatedEvents wraps list responses with cursors.
type PaginatedEvents struct {
	Items      []Event `json:"items"`
	NextCursor string  `json:"next_cursor"`
}

// APIError wraps non-2xx responses. Code and Message come from the error
// envelope when the body carries one.
type APIError struct {
	StatusCode int
	Code       string
	Message    string
	Body       string
}

func (e *APIError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("api error: status=%d code=%s message=%s", e.StatusCode, e.Code, e.Message)
	}
	return fmt.Sprintf("api error: status=%d body=%s", e.StatusCode, e.Body)
}

func (c *Client) ListRequests(ctx context.Context, status string) ([]Request, error) {
	endpoint := "v0/requests"
	if status != "" {
		endpoint += "?status=" + url.QueryEscape(status)
	}
	var resp []Request
	err := c.do(ctx, http.MethodGet, endpoint, nil, &resp)
	return resp, err
}

func (c *Client) GetRequest(ctx context.Context, id string) (Request, error) {
	var resp Request
	err := c.do(ctx, http.MethodGet, "v0/requests/"+url.PathEscape(id), nil, &resp)
	return resp, err
}

// SubmitRequest files a new Pending request.
func (c *Client) SubmitRequest(ctx context.Context, in NewRequest) (Request, error) {
	var resp Request
	err := c.do(ctx, http.MethodPost, "v0/requests", in, &resp)
	return resp, err
}

func (c *Client) ListDesigners(ctx context.Context) ([]Designer, error) {
	var resp []Designer
	err := c.do(ctx, http.MethodGet, "v0/designers", nil, &resp)
	return resp, err
}

// Assign binds a request to a designer.
func (c *Client) Assign(ctx context.Context, requestID, designerID string) (AssignResult, error) {
	var resp AssignResult
	endpoint := fmt.Sprintf("v0/requests/%s/assign", url.PathEscape(requestID))
	err := c.do(ctx, http.MethodPost, endpoint, map[string]any{"designer_id": designerID}, &resp)
	return resp, err
}

// RecordFeedback posts feedback. Empty author and role fall back to the
// caller's identity on the server.
func (c *Client) RecordFeedback(ctx context.Context, requestID, feedbackType, content, author, role string) (Request, error) {
	body := map[string]any{"type": feedbackType}
	if content != "" {
		body["content"] = content
	}
	if author != "" {
		body["author"] = author
	}
	if role != "" {
		body["role"] = role
	}
	var resp Request
	endpoint := fmt.Sprintf("v0/requests/%s/feedback", url.PathEscape(requestID))
	err := c.do(ctx, http.MethodPost, endpoint, body, &resp)
	return resp, err
}

func (c *Client) SetStatus(ctx context.Context, requestID, status string) (Request, error) {
	var resp Request
	endpoint := fmt.Sprintf("v0/requests/%s/status", url.PathEscape(requestID))
	err := c.do(ctx, http.MethodPatch, endpoint, map[string]any{"status": status}, &resp)
	return resp, err
}

func (c *Client) Suggestions(ctx context.Context) ([]Suggestion, error) {
	var resp struct {
		Items []Suggestion `json:"items"`
	}
	err := c.do(ctx, http.MethodPost, "v0/suggestions", nil, &resp)
	return resp.Items, err
}

// ApplySuggestion asks the server to re-validate and apply s.
func (c *Client) ApplySuggestion(ctx context.Context, s Suggestion) (ApplyResult, error) {
	body := map[string]any{"request_id": s.RequestID, "designer_id": s.DesignerID, "rationale": s.Rationale}
	var resp ApplyResult
	err := c.do(ctx, http.MethodPost, "v0/suggestions/apply", body, &resp)
	return resp, err
}

// Timeline fetches the layout; empty start means the current week.
func (c *Client) Timeline(ctx context.Context, start string, days int) (Timeline, error) {
	q := url.Values{}
	if start != "" {
		q.Set("start", start)
	}
	if days > 0 {
		q.Set("days", fmt.Sprintf("%d", days))
	}
	endpoint := "v0/timeline"
	if len(q) > 0 {
		endpoint += "?" + q.Encode()
	}
	var resp Timeline
	err := c.do(ctx, http.MethodGet, endpoint, nil, &resp)
	return resp, err
}

// EventsPage returns a paginated event listing.
func (c *Client) EventsPage(ctx context.Context, limit int, cursor string) (PaginatedEvents, error) {
	q := url.Values{}
	if limit > 0 {
		q.Set("n", fmt.Sprintf("%d", limit))
	}
	if cursor != "" {
		q.Set("cursor", cursor)
	}
	endpoint := "v0/events"
	if len(q) > 0 {
		endpoint += "?" + q.Encode()
	}
	var resp PaginatedEvents
	err := c.do(ctx, http.MethodGet, endpoint, nil, &resp)
	return resp, err
}

func (c *Client) do(ctx context.Context, method, endpoint string, body any, out any) error {
	if c.HTTPClient == nil {
		c.HTTPClient = &http.Client{Timeout: c.Timeout}
	}
	url := c.base() + "/" + strings.TrimLeft(endpoint, "/")
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			return err
		}
	}
	req, err := http.NewRequestWithContext(ctx, method, url, &buf)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	switch {
	case c.BearerToken != "":
		req.Header.Set("Authorization", "Bearer "+c.BearerToken)
	case c.ActorID != "":
		req.Header.Set("X-Actor-Id", c.ActorID)
	}
	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		b, _ := io.ReadAll(resp.Body)
		apiErr := &APIError{StatusCode: resp.StatusCode, Body: string(b)}
		var env struct {
			Error struct {
				Code    string `json:"code"`
				Message string `json:"message"`
			} `json:"error"`
		}
		if json.Unmarshal(b, &env) == nil {
			apiErr.Code = env.Error.Code
			apiErr.Message = env.Error.Message
		}
		return apiErr
	}
	if out != nil {
		return json.NewDecoder(resp.Body).Decode(out)
	}
	return nil
}

func (c *Client) base() string {
	return strings.TrimRight(c.BaseURL, "/")
}
