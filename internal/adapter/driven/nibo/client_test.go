package nibo_test

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ericfisherdev/barsync/internal/adapter/driven/nibo"
	"github.com/ericfisherdev/barsync/internal/domain/model"
)

var testDay = time.Date(2025, 9, 6, 0, 0, 0, 0, time.UTC)

func newTestClient(t *testing.T, pageSize int, handler http.Handler) (*nibo.Client, model.ExternalCredential) {
	t.Helper()

	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	cred := model.ExternalCredential{
		TenantID: 3,
		Vendor:   model.VendorNibo,
		BaseURL:  server.URL,
		Secret:   "token-3",
	}
	return nibo.NewClientWithHTTPClient(server.Client(), pageSize), cred
}

func authenticate(t *testing.T, c *nibo.Client, cred model.ExternalCredential) model.SessionHandle {
	t.Helper()
	s, err := c.Authenticate(context.Background(), cred)
	require.NoError(t, err)
	return s
}

func TestAuthenticate_TokenIsSession(t *testing.T) {
	c := nibo.NewClient(time.Second)

	s, err := c.Authenticate(context.Background(), model.ExternalCredential{Secret: "tok"})
	require.NoError(t, err)
	assert.Equal(t, "tok", s.Token)
	assert.Equal(t, model.VendorNibo, s.Vendor)

	_, err = c.Authenticate(context.Background(), model.ExternalCredential{Secret: "  "})
	var authErr *model.AuthError
	require.True(t, errors.As(err, &authErr))
	assert.ErrorIs(t, err, model.ErrInvalidCredentials)
}

func TestCollect_Paginates(t *testing.T) {
	const total = 5
	var calls int

	client, cred := newTestClient(t, 2, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		assert.Equal(t, "/schedules/debit", r.URL.Path)
		assert.Equal(t, "token-3", r.Header.Get("ApiToken"))
		assert.Equal(t, "dueDate ge 2025-09-06 and dueDate le 2025-09-06", r.URL.Query().Get("$filter"))
		assert.Equal(t, "2", r.URL.Query().Get("$top"))

		skip, err := strconv.Atoi(r.URL.Query().Get("$skip"))
		assert.NoError(t, err)

		items := []map[string]any{}
		for i := skip; i < total && i < skip+2; i++ {
			items = append(items, map[string]any{"scheduleId": fmt.Sprintf("s-%d", i)})
		}
		_ = json.NewEncoder(w).Encode(map[string]any{"items": items, "count": total})
	}))

	batch, err := client.Collect(context.Background(), authenticate(t, client, cred), cred, model.DataTypePayables, testDay)
	require.NoError(t, err)

	assert.Equal(t, 3, calls)
	require.Len(t, batch.Records, total)
	assert.JSONEq(t, `{"scheduleId":"s-4"}`, string(batch.Records[4]))
	assert.Equal(t, model.VendorNibo, batch.Vendor)
}

func TestCollect_EmptyListing(t *testing.T) {
	client, cred := newTestClient(t, 50, http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"items":[],"count":0}`))
	}))

	batch, err := client.Collect(context.Background(), authenticate(t, client, cred), cred, model.DataTypePayables, testDay)
	require.NoError(t, err)
	assert.True(t, batch.Empty())
}

func TestCollect_TokenRejected(t *testing.T) {
	client, cred := newTestClient(t, 50, http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))

	_, err := client.Collect(context.Background(), authenticate(t, client, cred), cred, model.DataTypePayables, testDay)

	var authErr *model.AuthError
	require.True(t, errors.As(err, &authErr))
	assert.ErrorIs(t, err, model.ErrInvalidCredentials)
}

func TestCollect_MalformedBody(t *testing.T) {
	client, cred := newTestClient(t, 50, http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`not json`))
	}))

	_, err := client.Collect(context.Background(), authenticate(t, client, cred), cred, model.DataTypePayables, testDay)

	var collectErr *model.CollectError
	require.True(t, errors.As(err, &collectErr))
	assert.ErrorIs(t, err, model.ErrUnexpectedResponse)
}

func TestCollect_RejectsContaHubDataTypes(t *testing.T) {
	client := nibo.NewClient(time.Second)

	_, err := client.Collect(context.Background(), model.SessionHandle{Token: "t"}, model.ExternalCredential{}, model.DataTypeHourlySales, testDay)

	var collectErr *model.CollectError
	assert.True(t, errors.As(err, &collectErr))
}
