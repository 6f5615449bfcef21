package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kbessonov/roomhub/pkg/config"
	"github.com/kbessonov/roomhub/pkg/logging"
)

func TestChainOrder(t *testing.T) {
	var order []string
	mw := func(name string) Middleware {
		return func(next http.Handler) http.Handler {
			return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				order = append(order, name)
				next.ServeHTTP(w, r)
			})
		}
	}
	final := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		order = append(order, "handler")
	})

	h := Chain(final, mw("first"), mw("second"))
	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/ws", nil))
	assert.Equal(t, []string{"first", "second", "handler"}, order)
}

func TestRequestMetadata(t *testing.T) {
	var got *RequestMetadata
	final := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		meta, ok := ReqMetadataFrom(r.Context())
		require.True(t, ok)
		got = meta
	})

	req := httptest.NewRequest(http.MethodGet, "/ws?device=mobile", nil)
	req.RemoteAddr = "10.1.2.3:4567"
	Chain(final, RequestMetadataMiddleware()).ServeHTTP(httptest.NewRecorder(), req)

	require.NotNil(t, got)
	assert.Equal(t, "10.1.2.3", got.IP)
	assert.Equal(t, "mobile", got.Device)
	assert.Zero(t, got.UserID)
}

func signToken(t *testing.T, secret, subject string, right int) string {
	t.Helper()
	claims := AppClaims{
		Right: right,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   subject,
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
	require.NoError(t, err)
	return signed
}

func authStack(t *testing.T, secret string, got **RequestMetadata) http.Handler {
	t.Helper()
	final := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		meta, ok := ReqMetadataFrom(r.Context())
		require.True(t, ok)
		*got = meta
	})
	return Chain(final, RequestMetadataMiddleware(), NewAuthMiddleware(logging.Discard(), secret))
}

func TestAuthResolvesValidCookie(t *testing.T) {
	var got *RequestMetadata
	h := authStack(t, "secret", &got)

	req := httptest.NewRequest(http.MethodGet, "/ws", nil)
	req.AddCookie(&http.Cookie{Name: "session-token", Value: signToken(t, "secret", "42", 10)})
	h.ServeHTTP(httptest.NewRecorder(), req)

	require.NotNil(t, got)
	assert.Equal(t, int64(42), got.UserID)
	assert.Equal(t, 10, got.Right)
}

func TestAuthTreatsInvalidCookieAsGuest(t *testing.T) {
	var got *RequestMetadata
	h := authStack(t, "secret", &got)

	req := httptest.NewRequest(http.MethodGet, "/ws", nil)
	req.AddCookie(&http.Cookie{Name: "session-token", Value: signToken(t, "wrong-secret", "42", 10)})
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	require.NotNil(t, got)
	assert.Zero(t, got.UserID)
}

func limiterStack(counter UserConnectionCounter, cycler UserConnectionCycler, cfg config.ConnectionLimitConfig, userID int64) http.Handler {
	final := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	inject := func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			meta, _ := ReqMetadataFrom(r.Context())
			meta.UserID = userID
			next.ServeHTTP(w, r)
		})
	}
	return Chain(final,
		RequestMetadataMiddleware(),
		Middleware(inject),
		NewConnectionLimiter(logging.Discard(), counter, cycler, cfg))
}

func TestConnectionLimiterReject(t *testing.T) {
	cfg := config.ConnectionLimitConfig{MaxPerUser: 2, Mode: "reject"}
	h := limiterStack(func(int64) int { return 2 }, func(int64) {}, cfg, 7)

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/ws", nil))
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
}

func TestConnectionLimiterCycle(t *testing.T) {
	var cycled int64
	cfg := config.ConnectionLimitConfig{MaxPerUser: 2, Mode: "cycle"}
	h := limiterStack(func(int64) int { return 2 }, func(id int64) { cycled = id }, cfg, 7)

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/ws", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, int64(7), cycled)
}

func TestConnectionLimiterExemptsGuests(t *testing.T) {
	cfg := config.ConnectionLimitConfig{MaxPerUser: 1, Mode: "reject"}
	h := limiterStack(func(int64) int { return 100 }, func(int64) {}, cfg, 0)

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/ws", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
}
