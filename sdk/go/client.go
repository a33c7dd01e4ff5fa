package saleslinesdk

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

// Client is a minimal Salesline HTTP API client.
type Client struct {
	BaseURL     string
	APIKey      string
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

// Project represents the API project model (partial).
type Project struct {
	ProjectNo           string   `json:"project_no"`
	PartyName           string   `json:"party_name"`
	ProjectName         string   `json:"project_name"`
	ProjectValue        string   `json:"project_value"`
	ScopeOfDevelopment  string   `json:"scope_of_development"`
	ScopeVersion        int      `json:"scope_version"`
	CurrentStage        string   `json:"current_stage"`
	AvailableNextStages []string `json:"available_next_stages"`
	Status              string   `json:"status"`
	TotalAdvance        string   `json:"total_advance"`
	NeedsSerialNumber   bool     `json:"needs_serial_number"`
}

// Advance represents an advance payment entry.
type Advance struct {
	Amount           string `json:"amount"`
	Date             string `json:"date"`
	TallyEntryNumber string `json:"tally_entry_number"`
	ReceivedBy       string `json:"received_by"`
	ReceivedDate     string `json:"received_date"`
}

// Serial represents a delivered serial number.
type Serial struct {
	SerialNumber string `json:"serial_number"`
	Version      string `json:"version"`
	RecordedBy   string `json:"recorded_by"`
	RecordedDate string `json:"recorded_date"`
}

// StatusUpdate represents a development status entry.
type StatusUpdate struct {
	StatusCode      string `json:"status_code"`
	Notes           string `json:"notes"`
	CompiledFileURL string `json:"compiled_file_url,omitempty"`
	CreatedBy       string `json:"created_by"`
	CreatedDate     string `json:"created_date"`
}

// Event represents a log entry.
type Event struct {
	ID         int64          `json:"id"`
	TS         string         `json:"ts"`
	Type       string         `json:"type"`
	ProjectNo  string         `json:"project_no"`
	EntityKind string         `json:"entity_kind"`
	EntityID   string         `json:"entity_id"`
	Payload    map[string]any `json:"payload"`
}

// APIError wraps non-2xx responses.
type APIError struct {
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("api error: status=%d body=%s", e.StatusCode, e.Body)
}

// PaginatedEvents wraps list responses with cursors.
type PaginatedEvents struct {
	Items      []Event `json:"items"`
	NextCursor string  `json:"next_cursor"`
}

// CreateProject registers a project. The server assigns the project number.
func (c *Client) CreateProject(ctx context.Context, partyName, projectName, projectValue, scope string) (Project, error) {
	body := map[string]any{
		"party_name":           partyName,
		"project_name":         projectName,
		"project_value":        projectValue,
		"scope_of_development": scope,
	}
	var resp Project
	err := c.do(ctx, http.MethodPost, "v0/projects", body, &resp)
	return resp, err
}

// GetProject fetches a project with its full history.
func (c *Client) GetProject(ctx context.Context, projectNo string) (Project, error) {
	var resp Project
	err := c.do(ctx, http.MethodGet, c.projectPath(projectNo, ""), nil, &resp)
	return resp, err
}

// UpdateProject applies a bundled mutation. Fields map directly to the PATCH
// body, e.g. {"stage": "Quotation"} or {"scope_of_development": "..."}.
func (c *Client) UpdateProject(ctx context.Context, projectNo string, fields map[string]any) (Project, error) {
	var resp Project
	err := c.do(ctx, http.MethodPatch, c.projectPath(projectNo, ""), fields, &resp)
	return resp, err
}

// AddAdvance records an advance payment.
func (c *Client) AddAdvance(ctx context.Context, projectNo, amount, tallyEntryNumber string) (Advance, error) {
	body := map[string]any{
		"amount":             amount,
		"tally_entry_number": tallyEntryNumber,
	}
	var resp Advance
	err := c.do(ctx, http.MethodPost, c.projectPath(projectNo, "advances"), body, &resp)
	return resp, err
}

// AddSerial records a delivered serial number.
func (c *Client) AddSerial(ctx context.Context, projectNo, serialNumber, version string) (Serial, error) {
	body := map[string]any{
		"serial_number": serialNumber,
		"version":       version,
	}
	var resp Serial
	err := c.do(ctx, http.MethodPost, c.projectPath(projectNo, "serials"), body, &resp)
	return resp, err
}

// AddStatusUpdate posts a development status update.
func (c *Client) AddStatusUpdate(ctx context.Context, projectNo, statusCode, notes, compiledFileURL string) (StatusUpdate, error) {
	body := map[string]any{
		"status_code": statusCode,
		"notes":       notes,
	}
	if compiledFileURL != "" {
		body["compiled_file_url"] = compiledFileURL
	}
	var resp StatusUpdate
	err := c.do(ctx, http.MethodPost, c.projectPath(projectNo, "status-updates"), body, &resp)
	return resp, err
}

// Events returns recent events.
func (c *Client) Events(ctx context.Context, projectNo string, limit int) ([]Event, error) {
	page, err := c.EventsPage(ctx, projectNo, limit, "")
	return page.Items, err
}

// EventsPage returns a paginated event listing.
func (c *Client) EventsPage(ctx context.Context, projectNo string, limit int, cursor string) (PaginatedEvents, error) {
	params := url.Values{}
	if projectNo != "" {
		params.Set("project_no", projectNo)
	}
	if limit > 0 {
		params.Set("limit", fmt.Sprintf("%d", limit))
	}
	if cursor != "" {
		params.Set("cursor", cursor)
	}
	endpoint := "v0/events"
	if encoded := params.Encode(); encoded != "" {
		endpoint += "?" + encoded
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
	case c.APIKey != "":
		req.Header.Set("X-Api-Key", c.APIKey)
	}
	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		b, _ := io.ReadAll(resp.Body)
		return &APIError{StatusCode: resp.StatusCode, Body: string(b)}
	}
	if out != nil {
		return json.NewDecoder(resp.Body).Decode(out)
	}
	return nil
}

func (c *Client) projectPath(projectNo, p string) string {
	base := fmt.Sprintf("v0/projects/%s", url.PathEscape(projectNo))
	if p == "" {
		return base
	}
	return base + "/" + strings.TrimLeft(p, "/")
}

func (c *Client) base() string {
	return strings.TrimRight(c.BaseURL, "/")
}
