package reconciler

import (
	"encoding/json"
	"strings"

	"github.com/tonipcv/kr-saas-sub001/pkg/enums"
)

// Event is the provider-agnostic view of an inbound webhook, extracted
// once by the provider envelope parsers. Every field except Provider and
// HookID is optional.
type Event struct {
	Provider enums.Provider
	HookID   string
	EventID  string
	Type     string

	OrderID        string
	ChargeID       string
	SubscriptionID string

	RawStatus       string
	AmountCents     int64
	PaidAmountCents int64
	Currency        string

	// PaymentMethod is the parent object's method; NestedMethod comes
	// from the last transaction object and wins when present, since the
	// parent field can be stale (credit_card reported for a pix payment).
	PaymentMethod string
	NestedMethod  string
	NestedStatus  string
	Installments  int

	CustomerName     string
	CustomerEmail    string
	CustomerPhone    string
	CustomerDocument string

	ProviderCustomerID string
	ProviderCardID     string
	CardBrand          string
	CardLast4          string
	CardExpMonth       int
	CardExpYear        int

	Metadata map[string]string
	Raw      json.RawMessage
}

// MetadataValue returns the named metadata entry, tolerating a nil map.
func (e Event) MetadataValue(key string) string {
	if e.Metadata == nil {
		return ""
	}
	return e.Metadata[key]
}

// EffectiveMethod prefers the nested transaction's payment method.
func (e Event) EffectiveMethod() enums.PaymentMethodType {
	if e.NestedMethod != "" {
		return enums.NormalizePaymentMethod(e.NestedMethod)
	}
	return enums.NormalizePaymentMethod(e.PaymentMethod)
}

// SubscriptionRef returns the best identifier for locating the linked
// subscription: the explicit subscription id, then metadata.
func (e Event) SubscriptionRef() string {
	if e.SubscriptionID != "" {
		return e.SubscriptionID
	}
	return e.MetadataValue("subscriptionId")
}

const chargeIDPrefix = "ch_"

// LooksLikeChargeID reports whether the token carries the provider's
// charge prefix. Charge ids must never land in the order-id column.
func LooksLikeChargeID(token string) bool {
	return strings.HasPrefix(token, chargeIDPrefix)
}

// Outcome reports what Process did with an event.
type Outcome struct {
	TransactionID string
	Applied       bool
	Status        enums.TransactionStatus
	PixDowngraded bool
	Activated     bool
}
