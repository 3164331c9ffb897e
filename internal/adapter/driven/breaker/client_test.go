package breaker_test

import (
	"context"
	"errors"
	"testing"
	"time"

	gobreaker "github.com/sony/gobreaker/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ericfisherdev/barsync/internal/adapter/driven/breaker"
	"github.com/ericfisherdev/barsync/internal/domain/model"
)

// fakeVendor returns collectErr from Collect and authErr from Authenticate,
// counting calls that reach it.
type fakeVendor struct {
	collectErr   error
	authErr      error
	collectCalls int
}

func (f *fakeVendor) Vendor() model.Vendor { return model.VendorContaHub }

func (f *fakeVendor) Authenticate(_ context.Context, _ model.ExternalCredential) (model.SessionHandle, error) {
	if f.authErr != nil {
		return model.SessionHandle{}, f.authErr
	}
	return model.SessionHandle{Vendor: model.VendorContaHub, Cookie: "c=1"}, nil
}

func (f *fakeVendor) Collect(_ context.Context, _ model.SessionHandle, cred model.ExternalCredential, dt model.DataType, day time.Time) (model.RawBatch, error) {
	f.collectCalls++
	if f.collectErr != nil {
		return model.RawBatch{}, f.collectErr
	}
	return model.RawBatch{TenantID: cred.TenantID, DataType: dt, BusinessDate: day}, nil
}

var day = time.Date(2025, 9, 6, 0, 0, 0, 0, time.UTC)

func TestClient_PassesThroughResults(t *testing.T) {
	fake := &fakeVendor{}
	c := breaker.Wrap(fake, breaker.Settings{})

	h, err := c.Authenticate(context.Background(), model.ExternalCredential{})
	require.NoError(t, err)
	assert.Equal(t, "c=1", h.Cookie)

	batch, err := c.Collect(context.Background(), h, model.ExternalCredential{TenantID: 3}, model.DataTypeHourlySales, day)
	require.NoError(t, err)
	assert.Equal(t, int64(3), batch.TenantID)
	assert.Equal(t, model.VendorContaHub, c.Vendor())
}

func TestClient_OpensAfterConsecutiveFailures(t *testing.T) {
	fake := &fakeVendor{collectErr: &model.CollectError{Vendor: model.VendorContaHub, Err: errors.New("502")}}
	c := breaker.Wrap(fake, breaker.Settings{ConsecutiveFailures: 3, OpenTimeout: time.Hour})

	for range 3 {
		_, err := c.Collect(context.Background(), model.SessionHandle{}, model.ExternalCredential{}, model.DataTypeAnalytic, day)
		require.Error(t, err)
		assert.NotErrorIs(t, err, model.ErrVendorUnavailable)
	}
	assert.Equal(t, gobreaker.StateOpen, c.State())

	_, err := c.Collect(context.Background(), model.SessionHandle{}, model.ExternalCredential{}, model.DataTypeAnalytic, day)
	require.Error(t, err)
	assert.ErrorIs(t, err, model.ErrVendorUnavailable)

	var collectErr *model.CollectError
	require.True(t, errors.As(err, &collectErr))
	assert.Equal(t, model.DataTypeAnalytic, collectErr.DataType)
	assert.Equal(t, 3, fake.collectCalls, "open circuit must not reach the vendor")
}

func TestClient_AuthErrorsDoNotTrip(t *testing.T) {
	fake := &fakeVendor{collectErr: &model.AuthError{Vendor: model.VendorContaHub, Err: model.ErrSessionExpired}}
	c := breaker.Wrap(fake, breaker.Settings{ConsecutiveFailures: 2, OpenTimeout: time.Hour})

	for range 5 {
		_, err := c.Collect(context.Background(), model.SessionHandle{}, model.ExternalCredential{}, model.DataTypePayments, day)
		assert.ErrorIs(t, err, model.ErrSessionExpired)
	}

	assert.Equal(t, gobreaker.StateClosed, c.State())
	assert.Equal(t, 5, fake.collectCalls)
}
