// Package backend talks to the scraping job API: a liveness probe and the
// start command. The progress stream itself lives in package stream.
package backend

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"

	"scrapewatch/internal/logging"
)

const (
	// DefaultBaseURL is where the job API listens when nothing is configured.
	DefaultBaseURL = "http://localhost:5001"

	healthPath   = "/api/health"
	scrapePath   = "/api/scrape"
	progressPath = "/api/scrape-progress/"

	userAgent = "scrapewatch/1.0"
)

// StartRequest is the body of the start command.
type StartRequest struct {
	URL       string `json:"url"`
	SessionID string `json:"session_id"`
	MaxPages  int    `json:"max_pages"`
}

type startResponse struct {
	Success bool   `json:"success"`
	Error   string `json:"error,omitempty"`
	Message string `json:"message,omitempty"`
}

// Client is a job API client.
type Client struct {
	baseURL string
	http    *resty.Client
}

// Option configures a Client.
type Option func(*Client)

// WithTimeout bounds each request. Zero disables the bound.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		c.http.SetTimeout(d)
	}
}

// WithRetry retries GET requests that fail at the transport level or with
// a 5xx. The start command is never retried so a job is launched at most once.
func WithRetry(count int, wait time.Duration) Option {
	return func(c *Client) {
		if count <= 0 {
			return
		}
		c.http.
			SetRetryCount(count).
			SetRetryWaitTime(wait).
			SetRetryMaxWaitTime(wait).
			AddRetryCondition(func(r *resty.Response, err error) bool {
				if r == nil || r.Request == nil || r.Request.Method != http.MethodGet {
					return false
				}
				return err != nil || r.StatusCode() >= 500
			})
	}
}

// New returns a Client for baseURL. An empty baseURL uses DefaultBaseURL.
func New(baseURL string, opts ...Option) *Client {
	baseURL = strings.TrimRight(strings.TrimSpace(baseURL), "/")
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	c := &Client{
		baseURL: baseURL,
		http: resty.New().
			SetBaseURL(baseURL).
			SetHeader("User-Agent", userAgent).
			SetTimeout(30 * time.Second).
			SetLogger(logging.Resty()),
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

// BaseURL returns the API root without a trailing slash.
func (c *Client) BaseURL() string {
	return c.baseURL
}

// HealthURL returns the absolute URL of the liveness probe.
func (c *Client) HealthURL() string {
	return c.baseURL + healthPath
}

// StartURL returns the absolute URL of the start command.
func (c *Client) StartURL() string {
	return c.baseURL + scrapePath
}

// ProgressURL returns the absolute URL of the progress stream for sessionID.
func (c *Client) ProgressURL(sessionID string) string {
	return ProgressURL(c.baseURL, sessionID)
}

// ProgressURL joins baseURL and the escaped progress path for sessionID.
func ProgressURL(baseURL, sessionID string) string {
	return strings.TrimRight(baseURL, "/") + progressPath + url.PathEscape(sessionID)
}

// Health probes the liveness endpoint. Any transport failure or non-2xx
// status is reported as ErrorTypeUnavailable.
func (c *Client) Health(ctx context.Context) error {
	resp, err := c.http.R().SetContext(ctx).Get(healthPath)
	if err != nil {
		if ctx.Err() != nil {
			return newCancelledError(ctx.Err())
		}
		return newUnavailableError(fmt.Sprintf("cannot reach %s", c.baseURL), err)
	}
	if !resp.IsSuccess() {
		return newUnavailableError(fmt.Sprintf("backend health check failed: %d", resp.StatusCode()), nil)
	}
	return nil
}

// StartScrape issues the start command for a session. The progress stream
// should already be open so no early events are missed.
func (c *Client) StartScrape(ctx context.Context, req StartRequest) error {
	resp, err := c.http.R().
		SetContext(ctx).
		SetHeader("Content-Type", "application/json").
		SetBody(req).
		Post(scrapePath)
	if err != nil {
		if ctx.Err() != nil {
			return newCancelledError(ctx.Err())
		}
		return newUnavailableError(fmt.Sprintf("cannot reach %s", c.baseURL), err)
	}

	var result startResponse
	decodeErr := json.Unmarshal(resp.Body(), &result)

	if !resp.IsSuccess() {
		if decodeErr == nil && result.Error != "" {
			return newRejectedError(result.Error)
		}
		return newRejectedError(fmt.Sprintf("HTTP error! status: %d", resp.StatusCode()))
	}
	if decodeErr != nil {
		return newInvalidResponseError("failed to decode start response", decodeErr)
	}
	if !result.Success {
		msg := result.Error
		if msg == "" {
			msg = "Failed to start scraping"
		}
		return newRejectedError(msg)
	}
	return nil
}

// Reason extracts the most specific message from err for display.
func Reason(err error) string {
	var be *Error
	if errors.As(err, &be) {
		if be.Type == ErrorTypeRejected {
			return be.Message
		}
		return be.UserMessage()
	}
	if err == nil {
		return ""
	}
	return err.Error()
}
