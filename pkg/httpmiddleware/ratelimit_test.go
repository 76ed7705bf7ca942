package httpmiddleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-faster/jx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func okHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
}

type limitedRequest struct {
	remote  string
	headers map[string]string
	want    int
}

func serveLimited(t *testing.T, h http.Handler, req limitedRequest) *httptest.ResponseRecorder {
	t.Helper()
	r := httptest.NewRequest(http.MethodPost, "/order/orderCreate", nil)
	if req.remote != "" {
		r.RemoteAddr = req.remote
	}
	for k, v := range req.headers {
		r.Header.Set(k, v)
	}
	w := httptest.NewRecorder()
	h.ServeHTTP(w, r)
	return w
}

func TestRateLimit_Keys(t *testing.T) {
	const slow = 0.001

	tests := []struct {
		name string
		cfg  RateLimitConfig
		reqs []limitedRequest
	}{
		{
			name: "burst then limited",
			cfg:  RateLimitConfig{RPS: slow, Burst: 2},
			reqs: []limitedRequest{
				{remote: "10.0.0.1:1000", want: http.StatusOK},
				{remote: "10.0.0.1:1001", want: http.StatusOK},
				{remote: "10.0.0.1:1002", want: http.StatusTooManyRequests},
			},
		},
		{
			name: "clients are independent",
			cfg:  RateLimitConfig{RPS: slow, Burst: 1},
			reqs: []limitedRequest{
				{remote: "10.0.0.1:1000", want: http.StatusOK},
				{remote: "10.0.0.2:1000", want: http.StatusOK},
				{remote: "10.0.0.1:2000", want: http.StatusTooManyRequests},
			},
		},
		{
			name: "forwarded for wins over remote addr",
			cfg:  RateLimitConfig{RPS: slow, Burst: 1},
			reqs: []limitedRequest{
				{remote: "192.168.1.1:1", headers: map[string]string{"X-Forwarded-For": "203.0.113.50, 70.41.3.18"}, want: http.StatusOK},
				{remote: "192.168.1.2:1", headers: map[string]string{"X-Forwarded-For": "203.0.113.50"}, want: http.StatusTooManyRequests},
			},
		},
		{
			name: "real ip header",
			cfg:  RateLimitConfig{RPS: slow, Burst: 1},
			reqs: []limitedRequest{
				{remote: "192.168.1.1:1", headers: map[string]string{"X-Real-IP": "198.51.100.7"}, want: http.StatusOK},
				{remote: "192.168.1.9:1", headers: map[string]string{"X-Real-IP": "198.51.100.7"}, want: http.StatusTooManyRequests},
				{remote: "192.168.1.9:1", want: http.StatusOK},
			},
		},
		{
			name: "custom key",
			cfg: RateLimitConfig{RPS: slow, Burst: 1, KeyFunc: func(r *http.Request) string {
				return r.Header.Get("X-Customer-Id")
			}},
			reqs: []limitedRequest{
				{headers: map[string]string{"X-Customer-Id": "cus-rahim"}, want: http.StatusOK},
				{headers: map[string]string{"X-Customer-Id": "cus-rahim"}, want: http.StatusTooManyRequests},
				{headers: map[string]string{"X-Customer-Id": "cus-karima"}, want: http.StatusOK},
			},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := RateLimit(tt.cfg)(okHandler())
			for i, req := range tt.reqs {
				w := serveLimited(t, h, req)
				assert.Equal(t, req.want, w.Code, "request %d", i+1)
			}
		})
	}
}

func TestRateLimit_RejectionBody(t *testing.T) {
	h := RateLimit(RateLimitConfig{RPS: 0.001, Burst: 3})(okHandler())
	req := limitedRequest{remote: "10.0.0.5:80"}

	w := serveLimited(t, h, req)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "3", w.Header().Get("X-RateLimit-Limit"))
	assert.Equal(t, "2", w.Header().Get("X-RateLimit-Remaining"))

	serveLimited(t, h, req)
	serveLimited(t, h, req)
	w = serveLimited(t, h, req)
	require.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.Equal(t, "application/json", w.Header().Get("Content-Type"))
	assert.Equal(t, "0", w.Header().Get("X-RateLimit-Remaining"))
	assert.NotEmpty(t, w.Header().Get("Retry-After"))

	var (
		code          int
		kind, message string
	)
	require.NoError(t, jx.DecodeBytes(w.Body.Bytes()).Obj(func(d *jx.Decoder, key string) error {
		var err error
		switch key {
		case "code":
			code, err = d.Int()
		case "kind":
			kind, err = d.Str()
		case "message":
			message, err = d.Str()
		default:
			err = d.Skip()
		}
		return err
	}))
	assert.Equal(t, http.StatusTooManyRequests, code)
	assert.Equal(t, "RateLimited", kind)
	assert.Equal(t, "rate limit exceeded", message)
}

func TestRateLimit_Refills(t *testing.T) {
	h := RateLimit(RateLimitConfig{RPS: 1000, Burst: 1})(okHandler())
	req := limitedRequest{remote: "10.0.0.3:1"}

	require.Equal(t, http.StatusOK, serveLimited(t, h, req).Code)
	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, http.StatusOK, serveLimited(t, h, req).Code)
}

func TestRateLimiter_Cleanup(t *testing.T) {
	rl := newRateLimiter(RateLimitConfig{RPS: 1, Burst: 1, IdleTTL: time.Minute})
	now := time.Now()
	rl.limiter("idle", now)
	rl.limiter("recent", now.Add(50*time.Second))

	rl.cleanup(now.Add(90 * time.Second))
	assert.NotContains(t, rl.clients, "idle")
	assert.Contains(t, rl.clients, "recent")
}
