package realip

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
)

func resolve(cfg Config, remote string, headers map[string]string) string {
	var got string
	handler := Middleware(cfg)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got = GetClientIP(r)
	}))
	req := httptest.NewRequest("GET", "/claim", nil)
	req.RemoteAddr = remote
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	handler.ServeHTTP(httptest.NewRecorder(), req)
	return got
}

func TestMiddleware(t *testing.T) {
	trusted := Config{TrustProxy: true, TrustedProxies: []string{"10.0.0.0/8", "192.168.1.1"}}

	tests := []struct {
		name    string
		cfg     Config
		remote  string
		headers map[string]string
		want    string
	}{
		{"proxy trust disabled", Config{}, "10.0.0.1:1234", map[string]string{"X-Forwarded-For": "203.0.113.7"}, "10.0.0.1"},
		{"trusted proxy", trusted, "10.0.0.1:1234", map[string]string{"X-Forwarded-For": "203.0.113.7"}, "203.0.113.7"},
		{"single trusted address", trusted, "192.168.1.1:80", map[string]string{"X-Forwarded-For": "203.0.113.7"}, "203.0.113.7"},
		{"untrusted peer", trusted, "198.51.100.2:1234", map[string]string{"X-Forwarded-For": "203.0.113.7"}, "198.51.100.2"},
		{"x-real-ip fallback", trusted, "10.0.0.1:1234", map[string]string{"X-Real-IP": " 203.0.113.9 "}, "203.0.113.9"},
		{"chain", trusted, "10.0.0.1:1234", map[string]string{"X-Forwarded-For": "1.1.1.1, 203.0.113.7, 10.0.0.5"}, "203.0.113.7"},
		{"all trusted", trusted, "10.0.0.1:1234", map[string]string{"X-Forwarded-For": "10.0.0.9, 10.0.0.5"}, "10.0.0.9"},
		{"no headers", trusted, "10.0.0.1:1234", nil, "10.0.0.1"},
		{"remote without port", Config{}, "203.0.113.7", nil, "203.0.113.7"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, resolve(tt.cfg, tt.remote, tt.headers))
		})
	}
}

func TestGetClientIP_NoContext(t *testing.T) {
	req := httptest.NewRequest("GET", "/", nil)
	req.RemoteAddr = "203.0.113.7:5555"
	assert.Equal(t, "203.0.113.7", GetClientIP(req))
}

func TestResolver_Trusted(t *testing.T) {
	res := NewResolver(Config{TrustProxy: true, TrustedProxies: []string{"10.0.0.0/8", "::1", "bogus", "fd00::/8"}})

	assert.True(t, res.Trusted("10.1.2.3"))
	assert.True(t, res.Trusted("::1"))
	assert.True(t, res.Trusted("fd00::1"))
	assert.True(t, res.Trusted("::ffff:10.0.0.1"))
	assert.False(t, res.Trusted("11.0.0.1"))
	assert.False(t, res.Trusted("not-an-ip"))

	off := NewResolver(Config{TrustProxy: false, TrustedProxies: []string{"10.0.0.0/8"}})
	assert.False(t, off.Trusted("10.1.2.3"))
}
