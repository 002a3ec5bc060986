package pagarme

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/tonipcv/kr-saas-sub001/pkg/enums"
)

func TestParseOrderPaid(t *testing.T) {
	body := []byte(`{
		"id": "hook_abc123",
		"type": "order.paid",
		"data": {
			"id": "or_xyz789",
			"status": "paid",
			"amount": 29900,
			"currency": "brl",
			"customer": {
				"id": "cus_1",
				"name": "Maria Souza",
				"email": "maria@example.com",
				"document": "12345678900",
				"phones": {"mobile_phone": {"country_code": "55", "area_code": "11", "number": "999990000"}}
			},
			"charges": [{
				"id": "ch_qwe456",
				"status": "paid",
				"amount": 29900,
				"paid_amount": 29900,
				"payment_method": "credit_card",
				"last_transaction": {
					"status": "captured",
					"transaction_type": "credit_card",
					"installments": 3,
					"card": {"id": "card_9", "brand": "visa", "last_four_digits": "4242", "exp_month": 12, "exp_year": 2030}
				}
			}],
			"metadata": {"clinicId": "clinic-1", "attempt": 2}
		}
	}`)

	ev, err := Parse(body)
	require.NoError(t, err)

	require.Equal(t, enums.ProviderPagarme, ev.Provider)
	require.Equal(t, "hook_abc123", ev.HookID)
	require.Equal(t, "order.paid", ev.Type)
	require.Equal(t, "or_xyz789", ev.OrderID)
	require.Equal(t, "ch_qwe456", ev.ChargeID)
	require.Equal(t, "paid", ev.RawStatus)
	require.Equal(t, int64(29900), ev.AmountCents)
	require.Equal(t, int64(29900), ev.PaidAmountCents)
	require.Equal(t, "BRL", ev.Currency)
	require.Equal(t, 3, ev.Installments)
	require.Equal(t, "Maria Souza", ev.CustomerName)
	require.Equal(t, "maria@example.com", ev.CustomerEmail)
	require.Equal(t, "5511999990000", ev.CustomerPhone)
	require.Equal(t, "visa", ev.CardBrand)
	require.Equal(t, "4242", ev.CardLast4)
	require.Equal(t, "clinic-1", ev.MetadataValue("clinicId"))
	require.Equal(t, "2", ev.MetadataValue("attempt"))
	require.Equal(t, enums.PaymentMethodCreditCard, ev.EffectiveMethod())
}

func TestParseRoutesDataIDByPrefix(t *testing.T) {
	t.Run("charge id never lands in the order slot", func(t *testing.T) {
		ev, err := Parse([]byte(`{"id":"hook_1","type":"charge.paid","data":{"id":"ch_only","status":"paid"}}`))
		require.NoError(t, err)
		require.Empty(t, ev.OrderID)
		require.Equal(t, "ch_only", ev.ChargeID)
	})

	t.Run("subscription id routed to the subscription slot", func(t *testing.T) {
		ev, err := Parse([]byte(`{"id":"hook_2","type":"subscription.created","data":{"id":"sub_77","status":"active"}}`))
		require.NoError(t, err)
		require.Empty(t, ev.OrderID)
		require.Equal(t, "sub_77", ev.SubscriptionID)
		require.Equal(t, "sub_77", ev.SubscriptionRef())
	})

	t.Run("nested order reference fills the order slot", func(t *testing.T) {
		ev, err := Parse([]byte(`{"id":"hook_3","type":"charge.refunded","data":{"id":"ch_5","status":"refunded","order":{"id":"or_5"}}}`))
		require.NoError(t, err)
		require.Equal(t, "or_5", ev.OrderID)
		require.Equal(t, "ch_5", ev.ChargeID)
	})
}

func TestParseNestedPixMethodWins(t *testing.T) {
	ev, err := Parse([]byte(`{
		"id": "hook_pix",
		"type": "order.paid",
		"data": {
			"id": "or_pix",
			"status": "paid",
			"amount": 5000,
			"charges": [{
				"id": "ch_pix",
				"payment_method": "credit_card",
				"last_transaction": {"status": "paid", "transaction_type": "pix"}
			}]
		}
	}`))
	require.NoError(t, err)
	require.Equal(t, enums.PaymentMethodPix, ev.EffectiveMethod())
	require.Equal(t, "paid", ev.NestedStatus)
}

func TestParseRejectsMalformedBody(t *testing.T) {
	_, err := Parse([]byte(`{"id": "hook_1", "type":`))
	require.Error(t, err)

	_, err = Parse([]byte(`{"data": {"id": "or_1"}}`))
	require.Error(t, err)
}
