package enums

// PaymentMethodType is the normalized payment instrument kind.
type PaymentMethodType string

const (
	PaymentMethodCreditCard PaymentMethodType = "credit_card"
	PaymentMethodPix        PaymentMethodType = "pix"
	PaymentMethodBoleto     PaymentMethodType = "boleto"
	PaymentMethodUnknown    PaymentMethodType = "unknown"
)

// String implements fmt.Stringer.
func (m PaymentMethodType) String() string {
	return string(m)
}

// IsValid reports whether the value is known.
func (m PaymentMethodType) IsValid() bool {
	switch m {
	case PaymentMethodCreditCard, PaymentMethodPix, PaymentMethodBoleto, PaymentMethodUnknown:
		return true
	}
	return false
}

// NormalizePaymentMethod maps a provider's payment method string onto the
// normalized vocabulary. Anything unrecognized becomes unknown rather than
// an error; the method is informational and must not block reconciliation.
func NormalizePaymentMethod(raw string) PaymentMethodType {
	switch raw {
	case "credit_card", "creditcard", "CreditCard", "card":
		return PaymentMethodCreditCard
	case "pix", "Pix", "PIX":
		return PaymentMethodPix
	case "boleto", "Boleto":
		return PaymentMethodBoleto
	default:
		return PaymentMethodUnknown
	}
}
