package webhook_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ericfisherdev/barsync/internal/adapter/driven/webhook"
	"github.com/ericfisherdev/barsync/internal/domain/model"
)

func TestNotifier_PostsJSON(t *testing.T) {
	var got model.Notification

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.WriteHeader(http.StatusNoContent)
	}))
	t.Cleanup(server.Close)

	n := webhook.NewWithHTTPClient(server.URL, server.Client())
	err := n.Send(context.Background(), model.Notification{
		Title:       "Sync finished",
		Description: "2025-09-06: 4/4 days ok",
		Fields:      []model.NotificationField{{Name: "Records written", Value: "12", Inline: true}},
		BarID:       3,
		WebhookType: "sync",
	})
	require.NoError(t, err)

	assert.Equal(t, "Sync finished", got.Title)
	assert.Equal(t, int64(3), got.BarID)
	assert.Equal(t, "sync", got.WebhookType)
	require.Len(t, got.Fields, 1)
	assert.Equal(t, "12", got.Fields[0].Value)
}

func TestNotifier_Non2xxIsError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	t.Cleanup(server.Close)

	err := webhook.New(server.URL, time.Second).Send(context.Background(), model.Notification{Title: "x"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "500")
}

func TestLogNotifier_NeverFails(t *testing.T) {
	err := webhook.LogNotifier{}.Send(context.Background(), model.Notification{
		Title:  "Sync finished",
		Fields: []model.NotificationField{{Name: "Errors", Value: "0"}},
	})
	assert.NoError(t, err)
}
