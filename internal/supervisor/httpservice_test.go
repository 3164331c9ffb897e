package supervisor

import (
	"context"
	"errors"
	"net/http"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/thejerf/suture/v4"
)

// mockHTTPServer blocks in ListenAndServe until Shutdown is called, unless
// listenErr is set.
type mockHTTPServer struct {
	listenErr   error
	shutdownErr error
	started     chan struct{}
	stopCh      chan struct{}
	shutdowns   atomic.Int32
}

func newMockHTTPServer() *mockHTTPServer {
	return &mockHTTPServer{
		started: make(chan struct{}, 1),
		stopCh:  make(chan struct{}),
	}
}

func (m *mockHTTPServer) ListenAndServe() error {
	select {
	case m.started <- struct{}{}:
	default:
	}
	if m.listenErr != nil {
		return m.listenErr
	}
	<-m.stopCh
	return http.ErrServerClosed
}

func (m *mockHTTPServer) Shutdown(_ context.Context) error {
	if m.shutdowns.Add(1) == 1 {
		close(m.stopCh)
	}
	return m.shutdownErr
}

var _ suture.Service = (*HTTPService)(nil)

func TestHTTPService_ShutsDownOnCancel(t *testing.T) {
	srv := newMockHTTPServer()
	svc := NewHTTPService(srv, "127.0.0.1:0", time.Second)

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() { errCh <- svc.Serve(ctx) }()

	<-srv.started
	cancel()

	select {
	case err := <-errCh:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(2 * time.Second):
		t.Fatal("Serve did not return after cancel")
	}
	assert.Equal(t, int32(1), srv.shutdowns.Load())
}

func TestHTTPService_ListenFailure(t *testing.T) {
	srv := newMockHTTPServer()
	srv.listenErr = errors.New("address already in use")
	svc := NewHTTPService(srv, "127.0.0.1:0", time.Second)

	err := svc.Serve(context.Background())

	require.Error(t, err)
	assert.Contains(t, err.Error(), "address already in use")
}

func TestHTTPService_ShutdownError(t *testing.T) {
	srv := newMockHTTPServer()
	srv.shutdownErr = errors.New("drain timeout")
	svc := NewHTTPService(srv, "127.0.0.1:0", time.Second)

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() { errCh <- svc.Serve(ctx) }()

	<-srv.started
	cancel()

	err := <-errCh
	require.Error(t, err)
	assert.Contains(t, err.Error(), "drain timeout")
}

func TestHTTPService_String(t *testing.T) {
	assert.Equal(t, "http-server", NewHTTPService(newMockHTTPServer(), "", 0).String())
}
