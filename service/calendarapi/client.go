package calendarapi

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/kelseyhightower/envconfig"
)

// Client is the external calendar service as seen by the core. Both calls
// may fail with network or auth errors; callers must treat any non-success
// as loggable, never fatal to the booking transaction.
type Client interface {
	CreateEvent(ctx context.Context, calendarID, title, description string, date time.Time, startTime, endTime string) (string, error)
	DeleteEvent(ctx context.Context, eventID, calendarID string) (bool, error)
}

type Config struct {
	BaseURL        string `envconfig:"CALENDAR_API_BASE_URL" required:"true"`
	Token          string `envconfig:"CALENDAR_API_TOKEN"`
	TimeoutSeconds int    `envconfig:"CALENDAR_API_TIMEOUT_SECONDS" default:"10"`
}

func LoadConfig() (Config, error) {
	var c Config
	err := envconfig.Process("", &c)
	return c, err
}

type HTTPClient struct {
	baseURL string
	token   string
	client  *http.Client
}

func NewHTTPClient(cfg Config) *HTTPClient {
	return &HTTPClient{
		baseURL: cfg.BaseURL,
		token:   cfg.Token,
		client:  &http.Client{Timeout: time.Duration(cfg.TimeoutSeconds) * time.Second},
	}
}

func (c *HTTPClient) CreateEvent(ctx context.Context, calendarID, title, description string, date time.Time, startTime, endTime string) (string, error) {
	payload := map[string]interface{}{
		"title":       title,
		"description": description,
		"date":        date.Format("2006-01-02"),
		"start_time":  startTime,
		"end_time":    endTime,
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return "", err
	}

	url := fmt.Sprintf("%s/calendars/%s/events", c.baseURL, calendarID)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewBuffer(body))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return "", fmt.Errorf("calendar API returned %d creating event on calendar %s", resp.StatusCode, calendarID)
	}

	var created struct {
		EventID string `json:"event_id"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&created); err != nil {
		return "", fmt.Errorf("decoding create event response: %w", err)
	}
	if created.EventID == "" {
		return "", fmt.Errorf("calendar API returned empty event id for calendar %s", calendarID)
	}
	return created.EventID, nil
}

func (c *HTTPClient) DeleteEvent(ctx context.Context, eventID, calendarID string) (bool, error) {
	url := fmt.Sprintf("%s/calendars/%s/events/%s", c.baseURL, calendarID, eventID)
	req, err := http.NewRequestWithContext(ctx, http.MethodDelete, url, nil)
	if err != nil {
		return false, err
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return false, err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return false, fmt.Errorf("calendar API returned %d deleting event %s", resp.StatusCode, eventID)
	}

	var deleted struct {
		Success bool `json:"success"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&deleted); err != nil {
		return false, fmt.Errorf("decoding delete event response: %w", err)
	}
	return deleted.Success, nil
}
