package status

import (
	"testing"

	"github.com/tonipcv/kr-saas-sub001/pkg/enums"
)

func TestNormalizePagarme(t *testing.T) {
	cases := []struct {
		raw  string
		want enums.TransactionStatus
	}{
		{"paid", enums.TransactionStatusPaid},
		{"PAID", enums.TransactionStatusPaid},
		{"pending", enums.TransactionStatusPending},
		{"processing", enums.TransactionStatusProcessing},
		{"authorized_pending_capture", enums.TransactionStatusAuthorized},
		{"waiting_payment", enums.TransactionStatusPending},
		{"refunded", enums.TransactionStatusRefunded},
		{"canceled", enums.TransactionStatusCanceled},
		{"failed", enums.TransactionStatusFailed},
		{"chargedback", enums.TransactionStatusChargedback},
		{"underpaid", enums.TransactionStatusUnderpaid},
		{"overpaid", enums.TransactionStatusOverpaid},
	}
	for _, tc := range cases {
		got := Normalize(enums.ProviderPagarme, "order.updated", tc.raw)
		if !got.Known() || got.Legacy != tc.want {
			t.Fatalf("Normalize(pagarme, %q) = %+v, want %s", tc.raw, got, tc.want)
		}
		if got.Canonical != tc.want.Canonical() {
			t.Fatalf("Normalize(pagarme, %q) canonical = %s, want %s", tc.raw, got.Canonical, tc.want.Canonical())
		}
	}
}

func TestNormalizeAppmaxSubstrings(t *testing.T) {
	cases := []struct {
		raw  string
		want enums.TransactionStatus
	}{
		{"Aprovado", enums.TransactionStatusPaid},
		{"Pagamento Aprovado", enums.TransactionStatusPaid},
		{"Autorizado", enums.TransactionStatusAuthorized},
		{"Pendente", enums.TransactionStatusPending},
		{"Pendente de Integração", enums.TransactionStatusPending},
		{"Integrado", enums.TransactionStatusPaid},
		{"Estornado", enums.TransactionStatusRefunded},
		{"Cancelado", enums.TransactionStatusCanceled},
		{"Falhou", enums.TransactionStatusFailed},
		{"Pagamento Negado", enums.TransactionStatusFailed},
	}
	for _, tc := range cases {
		got := Normalize(enums.ProviderAppmax, "", tc.raw)
		if !got.Known() || got.Legacy != tc.want {
			t.Fatalf("Normalize(appmax, %q) = %+v, want %s", tc.raw, got, tc.want)
		}
	}
}

func TestNormalizeUnknownIsNoop(t *testing.T) {
	for _, provider := range []enums.Provider{enums.ProviderPagarme, enums.ProviderAppmax} {
		got := Normalize(provider, "order.updated", "something-else")
		if got.Known() {
			t.Fatalf("Normalize(%s, unknown) = %+v, want zero", provider, got)
		}
	}
	if got := Normalize(enums.ProviderAppmax, "", ""); got.Known() {
		t.Fatalf("empty raw status should not normalize, got %+v", got)
	}
}

func TestPaidEventTypeForcesPaid(t *testing.T) {
	for _, eventType := range []string{"order.paid", "charge.paid", "invoice.paid"} {
		got := Normalize(enums.ProviderPagarme, eventType, "processing")
		if got.Legacy != enums.TransactionStatusPaid {
			t.Fatalf("Normalize(pagarme, %s, processing) = %s, want paid", eventType, got.Legacy)
		}
		if got.Canonical != enums.CanonicalStatusSucceeded {
			t.Fatalf("canonical = %s, want SUCCEEDED", got.Canonical)
		}
	}
	for _, eventType := range []string{"OrderApproved", "OrderPaid", "OrderPaidByPix", "OrderIntegrated"} {
		got := Normalize(enums.ProviderAppmax, eventType, "Pendente")
		if got.Legacy != enums.TransactionStatusPaid {
			t.Fatalf("Normalize(appmax, %s, Pendente) = %s, want paid", eventType, got.Legacy)
		}
	}
}
