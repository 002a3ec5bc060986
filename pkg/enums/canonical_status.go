package enums

// CanonicalStatus is the provider-agnostic status_v2 vocabulary. It is
// written alongside the legacy status on every transition and never read
// back for decisions.
type CanonicalStatus string

const (
	CanonicalStatusPending     CanonicalStatus = "PENDING"
	CanonicalStatusProcessing  CanonicalStatus = "PROCESSING"
	CanonicalStatusAuthorized  CanonicalStatus = "AUTHORIZED"
	CanonicalStatusSucceeded   CanonicalStatus = "SUCCEEDED"
	CanonicalStatusFailed      CanonicalStatus = "FAILED"
	CanonicalStatusRefunded    CanonicalStatus = "REFUNDED"
	CanonicalStatusCanceled    CanonicalStatus = "CANCELED"
	CanonicalStatusUnderpaid   CanonicalStatus = "UNDERPAID"
	CanonicalStatusOverpaid    CanonicalStatus = "OVERPAID"
	CanonicalStatusChargedback CanonicalStatus = "CHARGEDBACK"
)

// String implements fmt.Stringer.
func (s CanonicalStatus) String() string {
	return string(s)
}

// IsValid reports whether the value is known.
func (s CanonicalStatus) IsValid() bool {
	switch s {
	case CanonicalStatusPending, CanonicalStatusProcessing, CanonicalStatusAuthorized,
		CanonicalStatusSucceeded, CanonicalStatusFailed, CanonicalStatusRefunded,
		CanonicalStatusCanceled, CanonicalStatusUnderpaid, CanonicalStatusOverpaid,
		CanonicalStatusChargedback:
		return true
	}
	return false
}
