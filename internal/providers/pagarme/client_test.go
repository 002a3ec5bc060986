package pagarme

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/tonipcv/kr-saas-sub001/pkg/config"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	client, err := NewClient(config.PagarmeConfig{
		APIKey:  "sk_test_abc",
		BaseURL: server.URL,
		Timeout: 5 * time.Second,
	}, nil)
	if err != nil {
		t.Fatalf("new client: %v", err)
	}
	return client
}

func TestVerifyPaidByPaidAmount(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if !strings.HasPrefix(r.Header.Get("Authorization"), "Basic ") {
			t.Error("missing basic auth header")
		}
		if r.URL.Path != "/orders/or_1" {
			t.Errorf("path = %s", r.URL.Path)
		}
		w.Write([]byte(`{"id":"or_1","status":"pending","amount":10000,
			"charges":[{"id":"ch_1","status":"pending","amount":10000,"paid_amount":10000}]}`))
	})

	confirmed, err := client.VerifyPaid(context.Background(), "or_1")
	if err != nil {
		t.Fatalf("verify: %v", err)
	}
	if !confirmed {
		t.Fatal("expected paid confirmation from paid_amount")
	}
}

func TestVerifyPaidByNestedTransaction(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"id":"or_2","status":"pending","amount":10000,
			"charges":[{"id":"ch_2","status":"pending","amount":10000,"paid_amount":0,
			"last_transaction":{"status":"paid"}}]}`))
	})

	confirmed, err := client.VerifyPaid(context.Background(), "or_2")
	if err != nil {
		t.Fatalf("verify: %v", err)
	}
	if !confirmed {
		t.Fatal("expected paid confirmation from nested transaction")
	}
}

func TestVerifyPaidUnsettled(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"id":"or_3","status":"pending","amount":10000,
			"charges":[{"id":"ch_3","status":"pending","amount":10000,"paid_amount":0}]}`))
	})

	confirmed, err := client.VerifyPaid(context.Background(), "or_3")
	if err != nil {
		t.Fatalf("verify: %v", err)
	}
	if confirmed {
		t.Fatal("unsettled order reported as paid")
	}
}

func TestProviderErrorSurfacesMessage(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnprocessableEntity)
		w.Write([]byte(`{"message":"The split remainder fee is invalid"}`))
	})

	_, err := client.CreateSubscription(context.Background(), SubscriptionRequest{CustomerID: "cus_1"})
	if err == nil {
		t.Fatal("expected provider error")
	}
	if !IsSplitRemainderError(err) {
		t.Fatalf("expected split remainder detection, got %v", err)
	}
}

func TestNewClientRequiresAPIKey(t *testing.T) {
	if _, err := NewClient(config.PagarmeConfig{}, nil); err == nil {
		t.Fatal("expected error for missing api key")
	}
}
