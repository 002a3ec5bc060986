package enums

// PurchaseStatus marks the fulfillment state of a purchase record.
type PurchaseStatus string

const (
	PurchaseStatusCompleted PurchaseStatus = "COMPLETED"
	PurchaseStatusCanceled  PurchaseStatus = "CANCELED"
	PurchaseStatusRefunded  PurchaseStatus = "REFUNDED"
)

// String implements fmt.Stringer.
func (s PurchaseStatus) String() string {
	return string(s)
}

// IsValid reports whether the value is known.
func (s PurchaseStatus) IsValid() bool {
	switch s {
	case PurchaseStatusCompleted, PurchaseStatusCanceled, PurchaseStatusRefunded:
		return true
	}
	return false
}
