package middleware

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.uber.org/zap"

	"github.com/elevenpay/axis-payout-service/internal/domain/ports"
)

var (
	apiKeyCacheHits = promauto.NewCounter(prometheus.CounterOpts{
		Name: "axis_api_key_cache_hits_total",
		Help: "API key table served from cache",
	})

	apiKeyCacheMisses = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "axis_api_key_cache_misses_total",
		Help: "API key table cache misses",
	}, []string{"reason"}) // expired, error

	authFailures = promauto.NewCounter(prometheus.CounterOpts{
		Name: "axis_auth_failures_total",
		Help: "Rejected API requests",
	})
)

type contextKey string

// MerchantIDKey carries the authenticated merchant through the request context
const MerchantIDKey contextKey = "merchant_id"

// APIKeyAuth authenticates merchant API calls. The key table lives in the
// secret manager as a JSON object mapping api key to merchant id, cached with
// a bounded TTL so rotation takes effect without a restart.
type APIKeyAuth struct {
	secrets    ports.SecretManager
	secretPath string
	ttl        time.Duration
	logger     *zap.Logger

	mu        sync.RWMutex
	keys      map[string]string
	expiresAt time.Time
}

// NewAPIKeyAuth creates the auth middleware. secretPath names the secret
// holding the key table.
func NewAPIKeyAuth(secrets ports.SecretManager, secretPath string, ttl time.Duration, logger *zap.Logger) *APIKeyAuth {
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	return &APIKeyAuth{
		secrets:    secrets,
		secretPath: secretPath,
		ttl:        ttl,
		logger:     logger,
	}
}

// Middleware wraps a handler with API key verification
func (a *APIKeyAuth) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		apiKey := r.Header.Get("X-Api-Key")
		if apiKey == "" {
			authFailures.Inc()
			respondUnauthorized(w, "AUTH_MISSING", "authentication required")
			return
		}

		merchantID, ok := a.lookup(r.Context(), apiKey)
		if !ok {
			authFailures.Inc()
			a.logger.Warn("request with invalid api key",
				zap.String("remote_addr", r.RemoteAddr),
			)
			respondUnauthorized(w, "AUTH_INVALID", "invalid authentication")
			return
		}

		r.Header.Set("X-Merchant-Id", merchantID)
		ctx := context.WithValue(r.Context(), MerchantIDKey, merchantID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func (a *APIKeyAuth) lookup(ctx context.Context, apiKey string) (string, bool) {
	keys := a.keyTable(ctx)
	for candidate, merchantID := range keys {
		if subtle.ConstantTimeCompare([]byte(candidate), []byte(apiKey)) == 1 {
			return merchantID, true
		}
	}
	return "", false
}

func (a *APIKeyAuth) keyTable(ctx context.Context) map[string]string {
	a.mu.RLock()
	if a.keys != nil && time.Now().Before(a.expiresAt) {
		keys := a.keys
		a.mu.RUnlock()
		apiKeyCacheHits.Inc()
		return keys
	}
	a.mu.RUnlock()

	a.mu.Lock()
	defer a.mu.Unlock()
	if a.keys != nil && time.Now().Before(a.expiresAt) {
		apiKeyCacheHits.Inc()
		return a.keys
	}

	reason := "expired"
	if a.keys == nil {
		reason = "cold"
	}
	apiKeyCacheMisses.WithLabelValues(reason).Inc()

	secret, err := a.secrets.GetSecret(ctx, a.secretPath)
	if err != nil {
		apiKeyCacheMisses.WithLabelValues("error").Inc()
		a.logger.Error("failed to load api key table", zap.Error(err))
		// serve the stale table rather than reject everything
		return a.keys
	}

	var table map[string]string
	if err := json.Unmarshal([]byte(secret.Value), &table); err != nil {
		apiKeyCacheMisses.WithLabelValues("error").Inc()
		a.logger.Error("api key table is not valid JSON", zap.Error(err))
		return a.keys
	}

	a.keys = table
	a.expiresAt = time.Now().Add(a.ttl)
	return a.keys
}

func respondUnauthorized(w http.ResponseWriter, code, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusUnauthorized)
	_ = json.NewEncoder(w).Encode(map[string]string{
		"error": message,
		"code":  code,
	})
}
