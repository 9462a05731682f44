package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestOriginPolicy_Allows(t *testing.T) {
	policy := NewOriginPolicy([]string{"https://acme.in/", " https://*.widgets.example.com ", ""})

	cases := []struct {
		origin string
		want   bool
	}{
		{"https://acme.in", true},
		{"HTTPS://ACME.IN", true},
		{"http://acme.in", false},
		{"https://shop.widgets.example.com", true},
		{"https://a.b.widgets.example.com", true},
		{"http://shop.widgets.example.com", false},
		{"https://widgets.example.com.evil.io", false},
		{"https://evilwidgets.example.com", false},
		{"", false},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, policy.Allows(tc.origin), tc.origin)
	}
	assert.False(t, policy.Empty())
	assert.True(t, NewOriginPolicy([]string{" "}).Empty())
	assert.True(t, NewOriginPolicy([]string{"*"}).Allows("https://anything.example"))
}

func serveCORS(policy *OriginPolicy, req *http.Request) (*httptest.ResponseRecorder, bool) {
	called := false
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
		w.WriteHeader(http.StatusOK)
	})
	rec := httptest.NewRecorder()
	CORS(policy)(next).ServeHTTP(rec, req)
	return rec, called
}

func TestCORS_AllowedOriginGetsHeaders(t *testing.T) {
	req := httptest.NewRequest(http.MethodPost, "/chat/sessions", nil)
	req.Header.Set("Origin", "https://acme.in")

	rec, called := serveCORS(NewOriginPolicy([]string{"https://acme.in"}), req)

	assert.True(t, called)
	assert.Equal(t, "https://acme.in", rec.Header().Get("Access-Control-Allow-Origin"))
	assert.Contains(t, rec.Header().Get("Access-Control-Allow-Headers"), "Last-Event-ID")
	assert.Equal(t, "Origin", rec.Header().Get("Vary"))
}

func TestCORS_UnknownOriginPassesWithoutHeaders(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	req.Header.Set("Origin", "https://unknown.example")

	rec, called := serveCORS(NewOriginPolicy([]string{"https://acme.in"}), req)

	assert.True(t, called)
	assert.Empty(t, rec.Header().Get("Access-Control-Allow-Origin"))
}

func TestCORS_Preflight(t *testing.T) {
	policy := NewOriginPolicy([]string{"https://*.acme.in"})

	req := httptest.NewRequest(http.MethodOptions, "/chat/sessions/s1/stream", nil)
	req.Header.Set("Origin", "https://careers.acme.in")
	req.Header.Set("Access-Control-Request-Method", "POST")
	rec, called := serveCORS(policy, req)
	assert.False(t, called)
	assert.Equal(t, http.StatusNoContent, rec.Code)

	req = httptest.NewRequest(http.MethodOptions, "/chat/sessions/s1/stream", nil)
	req.Header.Set("Origin", "https://other.example")
	req.Header.Set("Access-Control-Request-Method", "POST")
	rec, called = serveCORS(policy, req)
	assert.False(t, called)
	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestCORS_NoOriginHeader(t *testing.T) {
	rec, called := serveCORS(NewOriginPolicy(nil), httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.True(t, called)
	assert.Empty(t, rec.Header().Get("Vary"))
}
