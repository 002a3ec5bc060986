package enums

import "fmt"

// TransactionStatus is the legacy payment transaction status vocabulary.
type TransactionStatus string

const (
	TransactionStatusPending     TransactionStatus = "pending"
	TransactionStatusProcessing  TransactionStatus = "processing"
	TransactionStatusAuthorized  TransactionStatus = "authorized"
	TransactionStatusPaid        TransactionStatus = "paid"
	TransactionStatusUnderpaid   TransactionStatus = "underpaid"
	TransactionStatusOverpaid    TransactionStatus = "overpaid"
	TransactionStatusRefunded    TransactionStatus = "refunded"
	TransactionStatusCanceled    TransactionStatus = "canceled"
	TransactionStatusFailed      TransactionStatus = "failed"
	TransactionStatusChargedback TransactionStatus = "chargedback"
)

var validTransactionStatuses = []TransactionStatus{
	TransactionStatusPending,
	TransactionStatusProcessing,
	TransactionStatusAuthorized,
	TransactionStatusPaid,
	TransactionStatusUnderpaid,
	TransactionStatusOverpaid,
	TransactionStatusRefunded,
	TransactionStatusCanceled,
	TransactionStatusFailed,
	TransactionStatusChargedback,
}

// transitionTable maps a current status to the set of statuses it may move to.
// Providers deliver webhooks out of order; any pair not listed here is a
// no-op, which is what keeps a stale "processing" from undoing a "paid".
var transitionTable = map[TransactionStatus][]TransactionStatus{
	TransactionStatusPending: {
		TransactionStatusProcessing,
		TransactionStatusPaid,
		TransactionStatusRefunded,
		TransactionStatusCanceled,
		TransactionStatusFailed,
		TransactionStatusAuthorized,
		TransactionStatusUnderpaid,
		TransactionStatusOverpaid,
		TransactionStatusChargedback,
	},
	TransactionStatusProcessing: {
		TransactionStatusPaid,
		TransactionStatusRefunded,
		TransactionStatusCanceled,
		TransactionStatusFailed,
		TransactionStatusAuthorized,
		TransactionStatusUnderpaid,
		TransactionStatusOverpaid,
		TransactionStatusChargedback,
	},
	TransactionStatusAuthorized: {
		TransactionStatusPaid,
		TransactionStatusRefunded,
		TransactionStatusCanceled,
		TransactionStatusFailed,
	},
	TransactionStatusPaid: {
		TransactionStatusRefunded,
		TransactionStatusCanceled,
		TransactionStatusFailed,
		TransactionStatusChargedback,
	},
	TransactionStatusRefunded: {
		TransactionStatusCanceled,
		TransactionStatusFailed,
	},
	TransactionStatusCanceled: {
		TransactionStatusFailed,
	},
}

// String implements fmt.Stringer.
func (s TransactionStatus) String() string {
	return string(s)
}

// IsValid reports whether the value is known.
func (s TransactionStatus) IsValid() bool {
	for _, candidate := range validTransactionStatuses {
		if candidate == s {
			return true
		}
	}
	return false
}

// TransactionStatuses returns every valid status in declaration order.
func TransactionStatuses() []TransactionStatus {
	out := make([]TransactionStatus, len(validTransactionStatuses))
	copy(out, validTransactionStatuses)
	return out
}

// CanTransition reports whether moving from s to next is an allowed forward
// edge of the status lattice.
func (s TransactionStatus) CanTransition(next TransactionStatus) bool {
	for _, candidate := range transitionTable[s] {
		if candidate == next {
			return true
		}
	}
	return false
}

// AllowedPredecessors returns every status that may legally transition into
// next. The reconciler uses this set as the predicate of its conditional
// UPDATE so the anti-downgrade check happens in a single atomic statement.
func AllowedPredecessors(next TransactionStatus) []TransactionStatus {
	var from []TransactionStatus
	for _, current := range validTransactionStatuses {
		if current.CanTransition(next) {
			from = append(from, current)
		}
	}
	return from
}

// Canonical maps the legacy status to its status_v2 counterpart.
func (s TransactionStatus) Canonical() CanonicalStatus {
	switch s {
	case TransactionStatusPending:
		return CanonicalStatusPending
	case TransactionStatusProcessing:
		return CanonicalStatusProcessing
	case TransactionStatusAuthorized:
		return CanonicalStatusAuthorized
	case TransactionStatusPaid:
		return CanonicalStatusSucceeded
	case TransactionStatusUnderpaid:
		return CanonicalStatusUnderpaid
	case TransactionStatusOverpaid:
		return CanonicalStatusOverpaid
	case TransactionStatusRefunded:
		return CanonicalStatusRefunded
	case TransactionStatusCanceled:
		return CanonicalStatusCanceled
	case TransactionStatusFailed:
		return CanonicalStatusFailed
	case TransactionStatusChargedback:
		return CanonicalStatusChargedback
	default:
		return ""
	}
}

// ParseTransactionStatus converts raw input into a TransactionStatus.
func ParseTransactionStatus(value string) (TransactionStatus, error) {
	for _, candidate := range validTransactionStatuses {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid transaction status %q", value)
}
