package payments

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
)

type fakeRazorpay struct {
	server *httptest.Server
	orders atomic.Int32
	fail   atomic.Bool
}

func newFakeRazorpay(t *testing.T) *fakeRazorpay {
	t.Helper()
	f := &fakeRazorpay{}
	f.server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/v1/orders" {
			http.NotFound(w, r)
			return
		}
		user, pass, ok := r.BasicAuth()
		if !ok || user != "rzp_test_key" || pass != "test_secret" {
			w.WriteHeader(http.StatusUnauthorized)
			_, _ = w.Write([]byte(`{"error":{"code":"BAD_REQUEST_ERROR","description":"Authentication failed"}}`))
			return
		}
		if f.fail.Load() {
			w.WriteHeader(http.StatusBadRequest)
			_, _ = w.Write([]byte(`{"error":{"code":"BAD_REQUEST_ERROR","description":"amount exceeds maximum"}}`))
			return
		}
		var body struct {
			Amount   int64  `json:"amount"`
			Currency string `json:"currency"`
			Receipt  string `json:"receipt"`
		}
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		n := f.orders.Add(1)
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"id":       "order_test" + string(rune('A'+n-1)),
			"amount":   body.Amount,
			"currency": body.Currency,
			"receipt":  body.Receipt,
			"status":   "created",
		})
	}))
	t.Cleanup(f.server.Close)
	return f
}

func TestGatewayClient_CreateOrder(t *testing.T) {
	fake := newFakeRazorpay(t)
	client := NewGatewayClient("rzp_test_key", "test_secret", fake.server.URL+"/", nil)

	order, err := client.CreateOrder(context.Background(), 49900, "INR", "rcpt_1", map[string]string{"tool_id": "resume-builder"})
	if err != nil {
		t.Fatalf("CreateOrder: %v", err)
	}
	if order.ID != "order_testA" || order.Amount != 49900 || order.Currency != "INR" || order.Status != "created" {
		t.Fatalf("unexpected order %#v", order)
	}
}

func TestGatewayClient_Errors(t *testing.T) {
	fake := newFakeRazorpay(t)

	bad := NewGatewayClient("rzp_test_key", "wrong", fake.server.URL, nil)
	if _, err := bad.CreateOrder(context.Background(), 100, "INR", "r", nil); !errors.Is(err, ErrGatewayFailure) {
		t.Fatalf("expected gateway failure on auth error, got %v", err)
	}

	unconfigured := NewGatewayClient("", "", fake.server.URL, nil)
	if _, err := unconfigured.CreateOrder(context.Background(), 100, "INR", "r", nil); !errors.Is(err, ErrGatewayFailure) {
		t.Fatalf("expected gateway failure without credentials, got %v", err)
	}
	if fake.orders.Load() != 0 {
		t.Fatalf("no order should have been created")
	}
}
