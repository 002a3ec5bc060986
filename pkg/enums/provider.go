package enums

import "fmt"

// Provider identifies an external payment provider.
type Provider string

const (
	ProviderPagarme Provider = "pagarme"
	ProviderAppmax  Provider = "appmax"
)

var validProviders = []Provider{
	ProviderPagarme,
	ProviderAppmax,
}

// String implements fmt.Stringer.
func (p Provider) String() string {
	return string(p)
}

// IsValid reports whether the value is known.
func (p Provider) IsValid() bool {
	for _, candidate := range validProviders {
		if candidate == p {
			return true
		}
	}
	return false
}

// Canonical returns the v2 provider identifier stored alongside the legacy one.
func (p Provider) Canonical() string {
	switch p {
	case ProviderPagarme:
		return "PAGARME"
	case ProviderAppmax:
		return "APPMAX"
	default:
		return ""
	}
}

// ParseProvider converts raw input into a Provider.
func ParseProvider(value string) (Provider, error) {
	for _, candidate := range validProviders {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid provider %q", value)
}
