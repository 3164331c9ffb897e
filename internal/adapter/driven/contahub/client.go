// Package contahub implements the VendorClient port for the ContaHub POS
// back office: cookie-session login followed by bulk report queries.
package contahub

import (
	"context"
	"crypto/sha1" //nolint:gosec // The vendor login protocol requires a SHA-1 password digest.
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/ericfisherdev/barsync/internal/domain/model"
	"github.com/ericfisherdev/barsync/internal/domain/port/driven"
	"github.com/ericfisherdev/barsync/internal/metrics"
)

// Compile-time interface satisfaction check.
var _ driven.VendorClient = (*Client)(nil)

// maxResponseBytes caps a single report body. A busy day of analytic lines
// stays well below this.
const maxResponseBytes = 64 << 20

// report is the ContaHub query code and fixed filters of one data type.
type report struct {
	code    string
	filters url.Values
}

var reports = map[model.DataType]report{
	model.DataTypeHourlySales: {code: "101"},
	model.DataTypeAnalytic:    {code: "77", filters: url.Values{"prd": {""}, "grp": {""}}},
	model.DataTypePayments:    {code: "7", filters: url.Values{"meio": {""}}},
}

// Client talks to one ContaHub installation per credential; the base URL comes
// from the credential so tenants on different hosts share a Client.
type Client struct {
	httpClient *http.Client
	now        func() time.Time
}

// NewClient creates a ContaHub client with the given request timeout.
func NewClient(timeout time.Duration) *Client {
	return NewClientWithHTTPClient(&http.Client{Timeout: timeout})
}

// NewClientWithHTTPClient creates a Client with a custom http.Client.
// This constructor is intended for testing, allowing injection of an httptest server client.
func NewClientWithHTTPClient(httpClient *http.Client) *Client {
	return &Client{httpClient: httpClient, now: time.Now}
}

// Vendor returns model.VendorContaHub.
func (c *Client) Vendor() model.Vendor { return model.VendorContaHub }

// Authenticate logs in with the credential's e-mail and SHA-1 password digest
// and captures the session cookies from the response.
func (c *Client) Authenticate(ctx context.Context, cred model.ExternalCredential) (model.SessionHandle, error) {
	if cred.Username == "" || cred.Secret == "" {
		return model.SessionHandle{}, authErr(fmt.Errorf("%w: missing e-mail or password", model.ErrInvalidCredentials))
	}

	loginURL := fmt.Sprintf("%s/login/%s?emp=0", strings.TrimRight(cred.BaseURL, "/"), c.nonce())

	form := url.Values{}
	form.Set("usr_email", cred.Username)
	form.Set("usr_password_sha1", passwordDigest(cred.Secret))

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, loginURL, strings.NewReader(form.Encode()))
	if err != nil {
		return model.SessionHandle{}, authErr(fmt.Errorf("create login request: %w", err))
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	metrics.VendorRequestDuration.WithLabelValues(string(model.VendorContaHub), "login").Observe(time.Since(start).Seconds())
	if err != nil {
		metrics.VendorRequests.WithLabelValues(string(model.VendorContaHub), "login", "transport_error").Inc()
		return model.SessionHandle{}, authErr(fmt.Errorf("login request: %w", err))
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 1<<20))

	if resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden {
		metrics.VendorRequests.WithLabelValues(string(model.VendorContaHub), "login", "rejected").Inc()
		return model.SessionHandle{}, authErr(fmt.Errorf("%w: login returned status %d", model.ErrInvalidCredentials, resp.StatusCode))
	}
	if resp.StatusCode >= 400 {
		metrics.VendorRequests.WithLabelValues(string(model.VendorContaHub), "login", "http_error").Inc()
		return model.SessionHandle{}, authErr(fmt.Errorf("login returned status %d", resp.StatusCode))
	}

	cookie := cookieHeader(resp.Cookies())
	if cookie == "" {
		metrics.VendorRequests.WithLabelValues(string(model.VendorContaHub), "login", "rejected").Inc()
		return model.SessionHandle{}, authErr(fmt.Errorf("%w: login response carried no session cookie", model.ErrInvalidCredentials))
	}

	metrics.VendorRequests.WithLabelValues(string(model.VendorContaHub), "login", "ok").Inc()
	slog.Debug("contahub login succeeded", "tenant_id", cred.TenantID)

	return model.SessionHandle{
		Vendor:     model.VendorContaHub,
		Cookie:     cookie,
		AcquiredAt: c.now(),
	}, nil
}

// Collect runs the report of dataType for a single business day.
func (c *Client) Collect(ctx context.Context, session model.SessionHandle, cred model.ExternalCredential, dataType model.DataType, day time.Time) (model.RawBatch, error) {
	batch := model.RawBatch{
		TenantID:     cred.TenantID,
		Vendor:       model.VendorContaHub,
		DataType:     dataType,
		BusinessDate: day,
	}

	rep, ok := reports[dataType]
	if !ok {
		return batch, collectErr(dataType, fmt.Errorf("data type %s is not served by contahub", dataType))
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.queryURL(cred, rep, day), nil)
	if err != nil {
		return batch, collectErr(dataType, fmt.Errorf("create query request: %w", err))
	}
	req.Header.Set("Cookie", session.Cookie)
	req.Header.Set("Accept", "application/json")

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	metrics.VendorRequestDuration.WithLabelValues(string(model.VendorContaHub), string(dataType)).Observe(time.Since(start).Seconds())
	if err != nil {
		metrics.VendorRequests.WithLabelValues(string(model.VendorContaHub), string(dataType), "transport_error").Inc()
		return batch, collectErr(dataType, fmt.Errorf("query request: %w", err))
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		metrics.VendorRequests.WithLabelValues(string(model.VendorContaHub), string(dataType), "transport_error").Inc()
		return batch, collectErr(dataType, fmt.Errorf("read query response: %w", err))
	}

	if resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden {
		metrics.VendorRequests.WithLabelValues(string(model.VendorContaHub), string(dataType), "session_expired").Inc()
		return batch, authErr(fmt.Errorf("%w: query returned status %d", model.ErrSessionExpired, resp.StatusCode))
	}
	if resp.StatusCode >= 400 {
		metrics.VendorRequests.WithLabelValues(string(model.VendorContaHub), string(dataType), "http_error").Inc()
		return batch, collectErr(dataType, fmt.Errorf("query returned status %d: %s", resp.StatusCode, truncate(string(body), 200)))
	}

	records, err := decodeRecords(body)
	if err != nil {
		if errors.Is(err, model.ErrSessionExpired) {
			metrics.VendorRequests.WithLabelValues(string(model.VendorContaHub), string(dataType), "session_expired").Inc()
			return batch, authErr(err)
		}
		metrics.VendorRequests.WithLabelValues(string(model.VendorContaHub), string(dataType), "decode_error").Inc()
		return batch, collectErr(dataType, err)
	}

	metrics.VendorRequests.WithLabelValues(string(model.VendorContaHub), string(dataType), "ok").Inc()
	batch.Records = records
	return batch, nil
}

func (c *Client) queryURL(cred model.ExternalCredential, rep report, day time.Time) string {
	date := day.Format(model.DateLayout)

	emp := cred.CompanyID
	if emp == "" {
		emp = strconv.FormatInt(cred.TenantID, 10)
	}

	q := url.Values{}
	q.Set("qry", rep.code)
	q.Set("d0", date)
	q.Set("d1", date)
	q.Set("emp", emp)
	q.Set("nfe", "1")
	for k, v := range rep.filters {
		q[k] = v
	}

	return fmt.Sprintf("%s/execQuery/%s?%s", strings.TrimRight(cred.BaseURL, "/"), c.nonce(), q.Encode())
}

// nonce is the millisecond timestamp path segment ContaHub expects on every call.
func (c *Client) nonce() string {
	return strconv.FormatInt(c.now().UnixMilli(), 10)
}

func passwordDigest(password string) string {
	sum := sha1.Sum([]byte(password)) //nolint:gosec // Required by the vendor login protocol.
	return hex.EncodeToString(sum[:])
}

func cookieHeader(cookies []*http.Cookie) string {
	parts := make([]string, 0, len(cookies))
	for _, ck := range cookies {
		if ck.Name == "" || ck.Value == "" {
			continue
		}
		parts = append(parts, ck.Name+"="+ck.Value)
	}
	return strings.Join(parts, "; ")
}

func authErr(err error) error {
	return &model.AuthError{Vendor: model.VendorContaHub, Err: err}
}

func collectErr(dataType model.DataType, err error) error {
	return &model.CollectError{Vendor: model.VendorContaHub, DataType: dataType, Err: err}
}
