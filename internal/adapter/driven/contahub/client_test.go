package contahub_test

import (
	"context"
	"crypto/sha1" //nolint:gosec // Mirrors the vendor login digest.
	"encoding/hex"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ericfisherdev/barsync/internal/adapter/driven/contahub"
	"github.com/ericfisherdev/barsync/internal/domain/model"
)

var testDay = time.Date(2025, 9, 6, 0, 0, 0, 0, time.UTC)

// newTestServer starts an httptest server and returns a client and a credential pointing at it.
func newTestServer(t *testing.T, handler http.Handler) (*contahub.Client, model.ExternalCredential) {
	t.Helper()

	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	cred := model.ExternalCredential{
		TenantID:    3,
		Vendor:      model.VendorContaHub,
		Environment: "production",
		BaseURL:     server.URL,
		Username:    "owner@bar.example",
		Secret:      "s3cret",
		CompanyID:   "3768",
		Active:      true,
	}

	return contahub.NewClientWithHTTPClient(server.Client()), cred
}

func session() model.SessionHandle {
	return model.SessionHandle{Vendor: model.VendorContaHub, Cookie: "PHPSESSID=abc"}
}

func TestAuthenticate_Success(t *testing.T) {
	sum := sha1.Sum([]byte("s3cret")) //nolint:gosec // Test fixture.
	wantDigest := hex.EncodeToString(sum[:])

	client, cred := newTestServer(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.True(t, strings.HasPrefix(r.URL.Path, "/login/"))
		assert.Equal(t, "0", r.URL.Query().Get("emp"))

		require.NoError(t, r.ParseForm())
		assert.Equal(t, "owner@bar.example", r.PostForm.Get("usr_email"))
		assert.Equal(t, wantDigest, r.PostForm.Get("usr_password_sha1"))

		http.SetCookie(w, &http.Cookie{Name: "PHPSESSID", Value: "abc"})
		http.SetCookie(w, &http.Cookie{Name: "emp", Value: "3768"})
		w.WriteHeader(http.StatusOK)
	}))

	handle, err := client.Authenticate(context.Background(), cred)
	require.NoError(t, err)

	assert.Equal(t, model.VendorContaHub, handle.Vendor)
	assert.Equal(t, "PHPSESSID=abc; emp=3768", handle.Cookie)
	assert.False(t, handle.AcquiredAt.IsZero())
}

func TestAuthenticate_NoCookie(t *testing.T) {
	client, cred := newTestServer(t, http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	_, err := client.Authenticate(context.Background(), cred)
	require.Error(t, err)

	var authErr *model.AuthError
	require.True(t, errors.As(err, &authErr))
	assert.ErrorIs(t, err, model.ErrInvalidCredentials)
}

func TestAuthenticate_Rejected(t *testing.T) {
	client, cred := newTestServer(t, http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusForbidden)
	}))

	_, err := client.Authenticate(context.Background(), cred)

	var authErr *model.AuthError
	require.True(t, errors.As(err, &authErr))
	assert.ErrorIs(t, err, model.ErrInvalidCredentials)
}

func TestAuthenticate_MissingPassword(t *testing.T) {
	client := contahub.NewClient(time.Second)

	_, err := client.Authenticate(context.Background(), model.ExternalCredential{Username: "a@b.c"})
	assert.ErrorIs(t, err, model.ErrInvalidCredentials)
}

func TestCollect_QueryParameters(t *testing.T) {
	client, cred := newTestServer(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.True(t, strings.HasPrefix(r.URL.Path, "/execQuery/"))
		q := r.URL.Query()
		assert.Equal(t, "101", q.Get("qry"))
		assert.Equal(t, "2025-09-06", q.Get("d0"))
		assert.Equal(t, "2025-09-06", q.Get("d1"))
		assert.Equal(t, "3768", q.Get("emp"))
		assert.Equal(t, "1", q.Get("nfe"))
		assert.Equal(t, "PHPSESSID=abc", r.Header.Get("Cookie"))

		_, _ = w.Write([]byte(`[{"hora":"19","prd":"101","q":"3"}]`))
	}))

	batch, err := client.Collect(context.Background(), session(), cred, model.DataTypeHourlySales, testDay)
	require.NoError(t, err)

	assert.Equal(t, int64(3), batch.TenantID)
	assert.Equal(t, model.DataTypeHourlySales, batch.DataType)
	assert.Equal(t, testDay, batch.BusinessDate)
	require.Len(t, batch.Records, 1)
	assert.JSONEq(t, `{"hora":"19","prd":"101","q":"3"}`, string(batch.Records[0]))
}

func TestCollect_ResponseShapes(t *testing.T) {
	tests := []struct {
		name    string
		body    string
		records int
	}{
		{name: "bare array", body: `[{"a":1},{"a":2}]`, records: 2},
		{name: "list wrapper", body: `{"list":[{"a":1},{"a":2},{"a":3}]}`, records: 3},
		{name: "items wrapper", body: `{"items":[{"a":1}]}`, records: 1},
		{name: "empty array", body: `[]`, records: 0},
		{name: "empty object", body: `{}`, records: 0},
		{name: "null", body: `null`, records: 0},
		{name: "empty body", body: ``, records: 0},
		{name: "null list", body: `{"list":null}`, records: 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client, cred := newTestServer(t, http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
				_, _ = w.Write([]byte(tt.body))
			}))

			batch, err := client.Collect(context.Background(), session(), cred, model.DataTypeAnalytic, testDay)
			require.NoError(t, err)
			assert.Len(t, batch.Records, tt.records)
		})
	}
}

func TestCollect_SessionExpiredSentinel(t *testing.T) {
	client, cred := newTestServer(t, http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`"Sem sessão"`))
	}))

	_, err := client.Collect(context.Background(), session(), cred, model.DataTypePayments, testDay)
	require.Error(t, err)

	var authErr *model.AuthError
	require.True(t, errors.As(err, &authErr), "session sentinel must surface as an auth failure")
	assert.ErrorIs(t, err, model.ErrSessionExpired)
}

func TestCollect_UnauthorizedStatus(t *testing.T) {
	client, cred := newTestServer(t, http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))

	_, err := client.Collect(context.Background(), session(), cred, model.DataTypePayments, testDay)
	assert.ErrorIs(t, err, model.ErrSessionExpired)
}

func TestCollect_UnexpectedShapes(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{name: "unknown object", body: `{"error":"boom"}`},
		{name: "other string", body: `"Manutenção programada"`},
		{name: "number", body: `42`},
		{name: "html", body: `<html>oops</html>`},
		{name: "truncated array", body: `[{"a":1}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client, cred := newTestServer(t, http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
				_, _ = w.Write([]byte(tt.body))
			}))

			_, err := client.Collect(context.Background(), session(), cred, model.DataTypeHourlySales, testDay)
			require.Error(t, err)

			var collectErr *model.CollectError
			require.True(t, errors.As(err, &collectErr))
			assert.ErrorIs(t, err, model.ErrUnexpectedResponse)
		})
	}
}

func TestCollect_ServerError(t *testing.T) {
	client, cred := newTestServer(t, http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "upstream down", http.StatusBadGateway)
	}))

	_, err := client.Collect(context.Background(), session(), cred, model.DataTypeHourlySales, testDay)

	var collectErr *model.CollectError
	require.True(t, errors.As(err, &collectErr))
	assert.Contains(t, err.Error(), "502")
}

func TestCollect_UnsupportedDataType(t *testing.T) {
	client := contahub.NewClient(time.Second)

	_, err := client.Collect(context.Background(), session(), model.ExternalCredential{}, model.DataTypePayables, testDay)

	var collectErr *model.CollectError
	assert.True(t, errors.As(err, &collectErr))
}
