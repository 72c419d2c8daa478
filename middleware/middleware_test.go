package middleware

import (
	"fmt"
	"net"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"schoolcoop/utils"
)

var okHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
})

func cidrs(t *testing.T, entries ...string) []*net.IPNet {
	t.Helper()
	nets := make([]*net.IPNet, 0, len(entries))
	for _, entry := range entries {
		_, n, err := net.ParseCIDR(entry)
		require.NoError(t, err)
		nets = append(nets, n)
	}
	return nets
}

func signedToken(t *testing.T, key []byte, claims jwt.MapClaims) string {
	t.Helper()
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(key)
	require.NoError(t, err)
	return token
}

func TestAuthMiddleware(t *testing.T) {
	key := []byte("test-secret")
	var gotID uint
	var gotEmail string
	handler := AuthMiddleware(key)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var err error
		gotID, gotEmail, err = GetAdminFromContext(r)
		require.NoError(t, err)
		w.WriteHeader(http.StatusOK)
	}))

	token := signedToken(t, key, jwt.MapClaims{
		"admin_id": 7,
		"email":    "treasurer@example.com",
		"exp":      time.Now().Add(time.Hour).Unix(),
	})
	req := httptest.NewRequest(http.MethodGet, "/api/overdue", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)

	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, uint(7), gotID)
	assert.Equal(t, "treasurer@example.com", gotEmail)
}

func TestAuthMiddleware_Rejects(t *testing.T) {
	key := []byte("test-secret")
	handler := AuthMiddleware(key)(okHandler)

	expired := signedToken(t, key, jwt.MapClaims{
		"admin_id": 7,
		"exp":      time.Now().Add(-time.Hour).Unix(),
	})
	foreign := signedToken(t, []byte("other-secret"), jwt.MapClaims{"admin_id": 7})
	noAdmin := signedToken(t, key, jwt.MapClaims{"email": "treasurer@example.com"})

	for name, header := range map[string]string{
		"missing":  "",
		"expired":  "Bearer " + expired,
		"foreign":  "Bearer " + foreign,
		"no admin": "Bearer " + noAdmin,
	} {
		req := httptest.NewRequest(http.MethodGet, "/api/overdue", nil)
		if header != "" {
			req.Header.Set("Authorization", header)
		}
		rr := httptest.NewRecorder()
		handler.ServeHTTP(rr, req)
		assert.Equal(t, http.StatusUnauthorized, rr.Code, name)
	}
}

func TestRateLimitMiddleware(t *testing.T) {
	handler := RateLimitMiddleware(utils.NewRateLimiter(2, time.Minute), nil)(okHandler)

	codes := make([]int, 0, 3)
	for i := 0; i < 3; i++ {
		req := httptest.NewRequest(http.MethodGet, "/api/overdue", nil)
		req.RemoteAddr = "10.0.0.1:5000"
		rr := httptest.NewRecorder()
		handler.ServeHTTP(rr, req)
		codes = append(codes, rr.Code)
		if i == 0 {
			assert.Equal(t, "2", rr.Header().Get("X-RateLimit-Limit"))
		}
	}
	assert.Equal(t, []int{http.StatusOK, http.StatusOK, http.StatusTooManyRequests}, codes)

	// другой адрес считается отдельно
	req := httptest.NewRequest(http.MethodGet, "/api/overdue", nil)
	req.RemoteAddr = "10.0.0.2:5000"
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)
	assert.Equal(t, http.StatusOK, rr.Code)
}

func TestRateLimitMiddleware_IgnoresForwardedForFromClients(t *testing.T) {
	handler := RateLimitMiddleware(utils.NewRateLimiter(1, time.Minute), nil)(okHandler)

	allowed := 0
	for i := 0; i < 50; i++ {
		req := httptest.NewRequest(http.MethodGet, "/api/overdue", nil)
		req.RemoteAddr = "203.0.113.7:40000"
		req.Header.Set("X-Forwarded-For", fmt.Sprintf("198.51.100.%d", i))
		rr := httptest.NewRecorder()
		handler.ServeHTTP(rr, req)
		if rr.Code == http.StatusOK {
			allowed++
		}
	}
	assert.Equal(t, 1, allowed)
}

func TestRateLimitMiddleware_TrustedProxy(t *testing.T) {
	handler := RateLimitMiddleware(utils.NewRateLimiter(1, time.Minute), cidrs(t, "10.0.0.0/8"))(okHandler)

	send := func(forwarded string) int {
		req := httptest.NewRequest(http.MethodGet, "/api/overdue", nil)
		req.RemoteAddr = "10.0.0.1:5000"
		req.Header.Set("X-Forwarded-For", forwarded)
		rr := httptest.NewRecorder()
		handler.ServeHTTP(rr, req)
		return rr.Code
	}

	// за прокси два разных клиента считаются отдельно
	assert.Equal(t, http.StatusOK, send("192.168.1.5"))
	assert.Equal(t, http.StatusOK, send("192.168.1.6"))
	assert.Equal(t, http.StatusTooManyRequests, send("192.168.1.5"))
}

func TestClientIP(t *testing.T) {
	trusted := cidrs(t, "10.0.0.0/8")

	tests := []struct {
		name      string
		remote    string
		forwarded string
		trusted   []*net.IPNet
		want      string
	}{
		{"no header", "10.0.0.1:5000", "", trusted, "10.0.0.1"},
		{"untrusted remote ignores header", "203.0.113.7:5000", "192.168.1.5", trusted, "203.0.113.7"},
		{"no trusted proxies ignores header", "10.0.0.1:5000", "192.168.1.5", nil, "10.0.0.1"},
		{"trusted remote", "10.0.0.1:5000", "192.168.1.5", trusted, "192.168.1.5"},
		{"client prepends fake hop", "10.0.0.1:5000", "1.2.3.4, 192.168.1.5, 10.0.0.2", trusted, "192.168.1.5"},
		{"all hops trusted", "10.0.0.1:5000", "10.0.0.3, 10.0.0.2", trusted, "10.0.0.3"},
		{"garbage hop", "10.0.0.1:5000", "not-an-ip", trusted, "10.0.0.1"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			req.RemoteAddr = tt.remote
			if tt.forwarded != "" {
				req.Header.Set("X-Forwarded-For", tt.forwarded)
			}
			assert.Equal(t, tt.want, ClientIP(req, tt.trusted))
		})
	}
}

func TestRecoveryMiddleware(t *testing.T) {
	handler := RecoveryMiddleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		panic("boom")
	}))

	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, http.StatusInternalServerError, rr.Code)
}

func TestLoggingMiddleware_RecordsRequest(t *testing.T) {
	metrics := utils.GetMetrics()
	before := metrics.GetMetricsSnapshot()["failed_requests"].(int64)

	handler := LoggingMiddleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "fail", http.StatusInternalServerError)
	}))
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/", nil))

	assert.Equal(t, http.StatusInternalServerError, rr.Code)
	after := metrics.GetMetricsSnapshot()["failed_requests"].(int64)
	assert.Equal(t, before+1, after)
}

func TestCORSMiddleware_Preflight(t *testing.T) {
	handler := CORSMiddleware(okHandler)

	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, httptest.NewRequest(http.MethodOptions, "/api/members", nil))
	assert.Equal(t, http.StatusNoContent, rr.Code)
	assert.Equal(t, "*", rr.Header().Get("Access-Control-Allow-Origin"))
	// токен передается в заголовке Authorization, куки не нужны
	assert.Empty(t, rr.Header().Get("Access-Control-Allow-Credentials"))
}

func TestOptionalAuthMiddleware(t *testing.T) {
	key := []byte("test-secret")
	var gotID uint
	handler := OptionalAuthMiddleware(key)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotID, _, _ = GetAdminFromContext(r)
		w.WriteHeader(http.StatusOK)
	}))

	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/api/auth/signUp", nil))
	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Zero(t, gotID)

	req := httptest.NewRequest(http.MethodPost, "/api/auth/signUp", nil)
	req.Header.Set("Authorization", "Bearer "+signedToken(t, key, jwt.MapClaims{
		"admin_id": 9,
		"email":    "clerk@example.com",
		"exp":      time.Now().Add(time.Hour).Unix(),
	}))
	rr = httptest.NewRecorder()
	handler.ServeHTTP(rr, req)
	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, uint(9), gotID)

	req = httptest.NewRequest(http.MethodPost, "/api/auth/signUp", nil)
	req.Header.Set("Authorization", "Bearer broken")
	rr = httptest.NewRecorder()
	handler.ServeHTTP(rr, req)
	assert.Equal(t, http.StatusUnauthorized, rr.Code)
}
