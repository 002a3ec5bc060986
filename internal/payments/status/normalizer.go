package status

import (
	"strings"

	"github.com/tonipcv/kr-saas-sub001/pkg/enums"
)

// Normalized is the outcome of mapping a provider status. A zero value
// (empty Legacy) means the raw status was not recognized and the caller
// must leave the stored status untouched.
type Normalized struct {
	Legacy    enums.TransactionStatus
	Canonical enums.CanonicalStatus
}

// Known reports whether normalization produced a usable status.
func (n Normalized) Known() bool {
	return n.Legacy != ""
}

// pagarmeStatuses is the exact-match vocabulary Pagar.me uses on orders,
// charges and invoices.
var pagarmeStatuses = map[string]enums.TransactionStatus{
	"paid":                       enums.TransactionStatusPaid,
	"pending":                    enums.TransactionStatusPending,
	"processing":                 enums.TransactionStatusProcessing,
	"authorized_pending_capture": enums.TransactionStatusAuthorized,
	"waiting_payment":            enums.TransactionStatusPending,
	"refunded":                   enums.TransactionStatusRefunded,
	"canceled":                   enums.TransactionStatusCanceled,
	"failed":                     enums.TransactionStatusFailed,
	"chargedback":                enums.TransactionStatusChargedback,
	"underpaid":                  enums.TransactionStatusUnderpaid,
	"overpaid":                   enums.TransactionStatusOverpaid,
}

type substringRule struct {
	pattern string
	status  enums.TransactionStatus
}

// appmaxRules matches AppMax's free-text Portuguese statuses. Order
// matters: the first matching pattern wins.
var appmaxRules = []substringRule{
	{"aprov", enums.TransactionStatusPaid},
	{"autor", enums.TransactionStatusAuthorized},
	{"pend", enums.TransactionStatusPending},
	{"integr", enums.TransactionStatusPaid},
	{"estorn", enums.TransactionStatusRefunded},
	{"cancel", enums.TransactionStatusCanceled},
	{"falh", enums.TransactionStatusFailed},
	{"negad", enums.TransactionStatusFailed},
}

// paidEventTypes are event names that definitively mean money moved.
// When one of these arrives the embedded status field is ignored: some
// providers send a stale status alongside a definitive event type.
var paidEventTypes = map[string]bool{
	"order.paid":     true,
	"charge.paid":    true,
	"invoice.paid":   true,
	"OrderApproved":  true,
	"OrderPaid":      true,
	"OrderPaidByPix": true,
	"OrderIntegrated": true,
}

// IsPaidEventType reports whether the event name alone confirms payment.
func IsPaidEventType(eventType string) bool {
	return paidEventTypes[eventType]
}

// Normalize maps a provider status (plus the event name) onto the
// internal vocabulary. It is total: unknown input yields a zero
// Normalized, never an error.
func Normalize(provider enums.Provider, eventType, rawStatus string) Normalized {
	if IsPaidEventType(eventType) {
		return fromLegacy(enums.TransactionStatusPaid)
	}

	switch provider {
	case enums.ProviderPagarme:
		if legacy, ok := pagarmeStatuses[strings.ToLower(strings.TrimSpace(rawStatus))]; ok {
			return fromLegacy(legacy)
		}
	case enums.ProviderAppmax:
		needle := strings.ToLower(strings.TrimSpace(rawStatus))
		if needle == "" {
			return Normalized{}
		}
		for _, rule := range appmaxRules {
			if strings.Contains(needle, rule.pattern) {
				return fromLegacy(rule.status)
			}
		}
	}
	return Normalized{}
}

func fromLegacy(legacy enums.TransactionStatus) Normalized {
	return Normalized{Legacy: legacy, Canonical: legacy.Canonical()}
}
