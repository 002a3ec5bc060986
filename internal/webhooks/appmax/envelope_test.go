package appmax

import (
	"encoding/json"
	"net/url"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/tonipcv/kr-saas-sub001/pkg/enums"
)

func TestParseOrderApprovedJSON(t *testing.T) {
	body := []byte(`{
		"environment": "production",
		"event": "OrderApproved",
		"data": {
			"id": 884455,
			"status": "aprovado",
			"total": 299.90,
			"payment_type": "CreditCard",
			"installments": 2,
			"card_brand": "mastercard",
			"card_last_digits": "1881",
			"customer": {
				"id": 1201,
				"firstname": "Joao",
				"lastname": "Silva",
				"email": "joao@example.com",
				"telephone": "11988887777",
				"document_number": "98765432100"
			}
		}
	}`)

	ev, err := Parse(body, "application/json")
	require.NoError(t, err)

	require.Equal(t, enums.ProviderAppmax, ev.Provider)
	require.Equal(t, "OrderApproved", ev.Type)
	require.Equal(t, "884455", ev.OrderID)
	require.Equal(t, "OrderApproved:884455", ev.HookID)
	require.Equal(t, "aprovado", ev.RawStatus)
	require.Equal(t, int64(29990), ev.AmountCents)
	require.Equal(t, "BRL", ev.Currency)
	require.Equal(t, 2, ev.Installments)
	require.Equal(t, "Joao Silva", ev.CustomerName)
	require.Equal(t, "joao@example.com", ev.CustomerEmail)
	require.Equal(t, "1201", ev.ProviderCustomerID)
	require.Equal(t, "1881", ev.CardLast4)
}

func TestParseFormEncodedWithDataField(t *testing.T) {
	data := `{"id": 9001, "status": "pendente", "total": "150.00"}`
	body := []byte("event=OrderPaidByPix&environment=production&data=" + url.QueryEscape(data))

	ev, err := Parse(body, "application/x-www-form-urlencoded")
	require.NoError(t, err)
	require.Equal(t, "OrderPaidByPix", ev.Type)
	require.Equal(t, "9001", ev.OrderID)
	require.Equal(t, int64(15000), ev.AmountCents)
}

func TestParseFormEncodedFlatFields(t *testing.T) {
	body := []byte("event=OrderRefund&order_id=7777&status=estornado&total=49.90")

	ev, err := Parse(body, "application/x-www-form-urlencoded; charset=utf-8")
	require.NoError(t, err)
	require.Equal(t, "OrderRefund", ev.Type)
	require.Equal(t, "7777", ev.OrderID)
	require.Equal(t, "estornado", ev.RawStatus)
	require.Equal(t, int64(4990), ev.AmountCents)
}

func TestParseRejectsMissingEvent(t *testing.T) {
	_, err := Parse([]byte(`{"data": {"id": 1}}`), "application/json")
	require.Error(t, err)
}

func TestToCents(t *testing.T) {
	cases := []struct {
		in   string
		want int64
	}{
		{"299.90", 29990},
		{"299.9", 29990},
		{"150", 15000},
		{"0.01", 1},
		{"", 0},
	}
	for _, tc := range cases {
		require.Equal(t, tc.want, toCents(json.Number(tc.in)), "toCents(%q)", tc.in)
	}
}
