// Package chain fetches published works from the marketplace chain gateway.
// The gateway exposes the on-chain registry as paginated JSON; this package
// wraps it behind a narrow client interface so the sync view can be tested
// against a fake.
package chain

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/atelierlabs/atelier/utils/pkg/retry"
)

// Work is a registry entry as the gateway reports it. The royalty ratio is
// hundredths of a percent by the gateway's contract (2000 = 20%), matching
// on-chain storage.
type Work struct {
	ID                string   `json:"id"`
	Creator           string   `json:"creator"`
	ParentID          string   `json:"parentId,omitempty"`
	Title             string   `json:"title"`
	Description       string   `json:"description"`
	FileType          string   `json:"fileType"`
	FileSize          int64    `json:"fileSize"`
	Tags              []string `json:"tags"`
	Category          string   `json:"category"`
	Fee               int64    `json:"fee"`
	LicenseRule       string   `json:"licenseRule"`
	LicensePrice      int64    `json:"licensePrice"`
	RoyaltyRatioRaw   int      `json:"royaltyRatio"`
	Revoked           bool     `json:"revoked"`
	BlobID            string   `json:"blobId,omitempty"`
	PreviewURI        string   `json:"previewUri,omitempty"`
	TransactionDigest string   `json:"transactionDigest"`
	CreatedAtMillis   int64    `json:"createdAt"`
}

// RatioPercent converts the hundredths-of-a-percent ratio to a plain 0-100
// percent. Sub-percent ratios floor to zero; out-of-range values clamp.
func (w *Work) RatioPercent() int {
	ratio := w.RoyaltyRatioRaw / 100
	if ratio < 0 {
		return 0
	}
	if ratio > 100 {
		return 100
	}
	return ratio
}

// CreatedAt converts the gateway's millisecond timestamp.
func (w *Work) CreatedAt() time.Time {
	if w.CreatedAtMillis <= 0 {
		return time.Time{}
	}
	return time.UnixMilli(w.CreatedAtMillis).UTC()
}

// Page is one page of registry entries.
type Page struct {
	Works      []Work `json:"works"`
	NextCursor string `json:"nextCursor"`
}

// Client fetches registry pages.
type Client interface {
	FetchWorks(ctx context.Context, cursor string, limit int) (*Page, error)
}

type HTTPClientConfig struct {
	Logger  *slog.Logger
	BaseURL string
	Timeout time.Duration
	Retry   retry.Config
}

func (cfg *HTTPClientConfig) Validate() error {
	if cfg.Logger == nil {
		return errors.New("logger is required")
	}
	if cfg.BaseURL == "" {
		return errors.New("base URL is required")
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	if cfg.Retry.MaxAttempts == 0 {
		cfg.Retry = retry.DefaultConfig()
	}
	return nil
}

// HTTPClient talks to the gateway's /v1/works endpoint.
type HTTPClient struct {
	log  *slog.Logger
	cfg  HTTPClientConfig
	http *http.Client
}

func NewHTTPClient(cfg HTTPClientConfig) (*HTTPClient, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &HTTPClient{
		log:  cfg.Logger,
		cfg:  cfg,
		http: &http.Client{Timeout: cfg.Timeout},
	}, nil
}

// statusError carries the HTTP status so the retry package can tell
// retryable server errors from permanent client errors.
type statusError struct {
	status int
	body   string
}

func (e *statusError) Error() string {
	return fmt.Sprintf("gateway returned status %d: %s", e.status, e.body)
}

func (e *statusError) StatusCode() int { return e.status }

func (c *HTTPClient) FetchWorks(ctx context.Context, cursor string, limit int) (*Page, error) {
	if limit <= 0 {
		limit = 200
	}

	u, err := url.Parse(c.cfg.BaseURL + "/v1/works")
	if err != nil {
		return nil, fmt.Errorf("failed to parse gateway URL: %w", err)
	}
	q := u.Query()
	q.Set("limit", strconv.Itoa(limit))
	if cursor != "" {
		q.Set("cursor", cursor)
	}
	u.RawQuery = q.Encode()

	var page *Page
	err = retry.Do(ctx, c.cfg.Retry, func() error {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
		if err != nil {
			return err
		}
		req.Header.Set("Accept", "application/json")

		resp, err := c.http.Do(req)
		if err != nil {
			return fmt.Errorf("failed to fetch works page: %w", err)
		}
		defer resp.Body.Close()

		if resp.StatusCode != http.StatusOK {
			body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
			return &statusError{status: resp.StatusCode, body: string(body)}
		}

		var p Page
		if err := json.NewDecoder(resp.Body).Decode(&p); err != nil {
			return fmt.Errorf("failed to decode works page: %w", err)
		}
		page = &p
		return nil
	})
	if err != nil {
		return nil, err
	}
	return page, nil
}
