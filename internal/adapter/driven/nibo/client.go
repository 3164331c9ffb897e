// Package nibo implements the VendorClient port for the Nibo accounting API:
// a static API token and OData-paged schedule listings.
package nibo

import (
	"context"
	stdjson "encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/goccy/go-json"
	"github.com/gregjones/httpcache"

	"github.com/ericfisherdev/barsync/internal/domain/model"
	"github.com/ericfisherdev/barsync/internal/domain/port/driven"
	"github.com/ericfisherdev/barsync/internal/metrics"
)

// Compile-time interface satisfaction check.
var _ driven.VendorClient = (*Client)(nil)

const (
	// DefaultBaseURL is used when a credential carries no base URL.
	DefaultBaseURL = "https://api.nibo.com.br/empresas/v1"

	defaultPageSize = 500
	maxPages        = 200
)

// ErrTooManyPages is returned when a listing does not terminate within maxPages.
var ErrTooManyPages = errors.New("pagination did not terminate")

// page is the envelope of one OData listing page.
type page struct {
	Items []stdjson.RawMessage `json:"items"`
	Count int                  `json:"count"`
}

// Client implements the driven.VendorClient port for Nibo. Each API token gets
// its own HTTP client and response cache so cached pages never cross tenants.
type Client struct {
	timeout  time.Duration
	pageSize int
	now      func() time.Time

	mu      sync.Mutex
	clients map[string]*http.Client
	shared  *http.Client // Set in tests; bypasses the per-token cache.
}

// NewClient creates a Nibo client. Every token's transport stack is an
// in-memory httpcache transport (conditional request caching).
func NewClient(timeout time.Duration) *Client {
	return &Client{
		timeout:  timeout,
		pageSize: defaultPageSize,
		now:      time.Now,
		clients:  make(map[string]*http.Client),
	}
}

// NewClientWithHTTPClient creates a Client that sends every request through
// httpClient with the given page size. Intended for tests.
func NewClientWithHTTPClient(httpClient *http.Client, pageSize int) *Client {
	c := NewClient(0)
	c.shared = httpClient
	if pageSize > 0 {
		c.pageSize = pageSize
	}
	return c
}

// Vendor returns model.VendorNibo.
func (c *Client) Vendor() model.Vendor { return model.VendorNibo }

// Authenticate performs no network call: the API token is the session.
func (c *Client) Authenticate(_ context.Context, cred model.ExternalCredential) (model.SessionHandle, error) {
	if strings.TrimSpace(cred.Secret) == "" {
		return model.SessionHandle{}, &model.AuthError{
			Vendor: model.VendorNibo,
			Err:    fmt.Errorf("%w: empty api token", model.ErrInvalidCredentials),
		}
	}
	return model.SessionHandle{
		Vendor:     model.VendorNibo,
		Token:      cred.Secret,
		AcquiredAt: c.now(),
	}, nil
}

// Collect lists every debit schedule due on day, following $skip pagination
// until a short page is returned.
func (c *Client) Collect(ctx context.Context, session model.SessionHandle, cred model.ExternalCredential, dataType model.DataType, day time.Time) (model.RawBatch, error) {
	batch := model.RawBatch{
		TenantID:     cred.TenantID,
		Vendor:       model.VendorNibo,
		DataType:     dataType,
		BusinessDate: day,
	}

	if dataType != model.DataTypePayables {
		return batch, collectErr(dataType, fmt.Errorf("data type %s is not served by nibo", dataType))
	}

	baseURL := strings.TrimRight(cred.BaseURL, "/")
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}

	httpClient := c.clientFor(session.Token)
	date := day.Format(model.DateLayout)

	for pageNum := 0; pageNum < maxPages; pageNum++ {
		q := url.Values{}
		q.Set("$filter", fmt.Sprintf("dueDate ge %s and dueDate le %s", date, date))
		q.Set("$orderby", "dueDate")
		q.Set("$top", strconv.Itoa(c.pageSize))
		q.Set("$skip", strconv.Itoa(pageNum*c.pageSize))

		p, err := c.fetchPage(ctx, httpClient, session.Token, baseURL+"/schedules/debit?"+q.Encode(), dataType)
		if err != nil {
			return batch, err
		}

		batch.Records = append(batch.Records, p.Items...)
		if len(p.Items) < c.pageSize {
			return batch, nil
		}
	}

	return batch, collectErr(dataType, fmt.Errorf("%w after %d pages", ErrTooManyPages, maxPages))
}

func (c *Client) fetchPage(ctx context.Context, httpClient *http.Client, token, pageURL string, dataType model.DataType) (page, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, pageURL, nil)
	if err != nil {
		return page{}, collectErr(dataType, fmt.Errorf("create request: %w", err))
	}
	req.Header.Set("ApiToken", token)
	req.Header.Set("Accept", "application/json")

	start := time.Now()
	resp, err := httpClient.Do(req)
	metrics.VendorRequestDuration.WithLabelValues(string(model.VendorNibo), string(dataType)).Observe(time.Since(start).Seconds())
	if err != nil {
		metrics.VendorRequests.WithLabelValues(string(model.VendorNibo), string(dataType), "transport_error").Inc()
		return page{}, collectErr(dataType, fmt.Errorf("list schedules: %w", err))
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 32<<20))
	if err != nil {
		metrics.VendorRequests.WithLabelValues(string(model.VendorNibo), string(dataType), "transport_error").Inc()
		return page{}, collectErr(dataType, fmt.Errorf("read schedules: %w", err))
	}

	switch {
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		metrics.VendorRequests.WithLabelValues(string(model.VendorNibo), string(dataType), "rejected").Inc()
		return page{}, &model.AuthError{
			Vendor: model.VendorNibo,
			Err:    fmt.Errorf("%w: api token rejected with status %d", model.ErrInvalidCredentials, resp.StatusCode),
		}
	case resp.StatusCode >= 400:
		metrics.VendorRequests.WithLabelValues(string(model.VendorNibo), string(dataType), "http_error").Inc()
		return page{}, collectErr(dataType, fmt.Errorf("list schedules returned status %d: %s", resp.StatusCode, truncate(string(body), 200)))
	}

	var p page
	if err := json.Unmarshal(body, &p); err != nil {
		metrics.VendorRequests.WithLabelValues(string(model.VendorNibo), string(dataType), "decode_error").Inc()
		return page{}, collectErr(dataType, fmt.Errorf("%w: %v", model.ErrUnexpectedResponse, err))
	}

	metrics.VendorRequests.WithLabelValues(string(model.VendorNibo), string(dataType), "ok").Inc()
	return p, nil
}

func (c *Client) clientFor(token string) *http.Client {
	if c.shared != nil {
		return c.shared
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if hc, ok := c.clients[token]; ok {
		return hc
	}
	hc := &http.Client{
		Transport: httpcache.NewMemoryCacheTransport(),
		Timeout:   c.timeout,
	}
	c.clients[token] = hc
	return hc
}

func collectErr(dataType model.DataType, err error) error {
	return &model.CollectError{Vendor: model.VendorNibo, DataType: dataType, Err: err}
}

// truncate shortens s to at most n bytes without splitting a UTF-8 sequence.
func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n] + "..."
}
