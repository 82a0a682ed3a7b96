package middleware

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/elevenpay/axis-payout-service/internal/domain/ports"
	"go.uber.org/zap"
)

type fakeSecrets struct {
	value string
	calls int
	err   error
}

func (f *fakeSecrets) GetSecret(ctx context.Context, path string) (*ports.Secret, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	return &ports.Secret{Value: f.value}, nil
}

func authTestStack(secrets *fakeSecrets) (http.Handler, *string) {
	auth := NewAPIKeyAuth(secrets, "axis-payout/api-keys", time.Minute, zap.NewNop())
	var seenMerchant string
	handler := auth.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seenMerchant = r.Header.Get("X-Merchant-Id")
		w.WriteHeader(http.StatusOK)
	}))
	return handler, &seenMerchant
}

func TestAPIKeyAuth_ValidKeyResolvesMerchant(t *testing.T) {
	secrets := &fakeSecrets{value: `{"key-abc":"merchant-1"}`}
	handler, seenMerchant := authTestStack(secrets)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/payouts/x", nil)
	req.Header.Set("X-Api-Key", "key-abc")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "merchant-1", *seenMerchant)
}

func TestAPIKeyAuth_MissingKeyRejected(t *testing.T) {
	handler, _ := authTestStack(&fakeSecrets{value: `{}`})

	req := httptest.NewRequest(http.MethodGet, "/api/v1/payouts/x", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestAPIKeyAuth_UnknownKeyRejected(t *testing.T) {
	handler, _ := authTestStack(&fakeSecrets{value: `{"key-abc":"merchant-1"}`})

	req := httptest.NewRequest(http.MethodGet, "/api/v1/payouts/x", nil)
	req.Header.Set("X-Api-Key", "key-wrong")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestAPIKeyAuth_TableIsCached(t *testing.T) {
	secrets := &fakeSecrets{value: `{"key-abc":"merchant-1"}`}
	handler, _ := authTestStack(secrets)

	for i := 0; i < 3; i++ {
		req := httptest.NewRequest(http.MethodGet, "/api/v1/payouts/x", nil)
		req.Header.Set("X-Api-Key", "key-abc")
		handler.ServeHTTP(httptest.NewRecorder(), req)
	}

	assert.Equal(t, 1, secrets.calls)
}
