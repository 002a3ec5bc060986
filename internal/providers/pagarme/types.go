package pagarme

// CustomerRequest creates a customer on the provider.
type CustomerRequest struct {
	Name     string            `json:"name"`
	Email    string            `json:"email"`
	Document string            `json:"document,omitempty"`
	Type     string            `json:"type,omitempty"`
	Phones   *Phones           `json:"phones,omitempty"`
	Metadata map[string]string `json:"metadata,omitempty"`
}

type Phones struct {
	MobilePhone *Phone `json:"mobile_phone,omitempty"`
}

type Phone struct {
	CountryCode string `json:"country_code"`
	AreaCode    string `json:"area_code"`
	Number      string `json:"number"`
}

// Customer is the provider's customer object.
type Customer struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	Email    string `json:"email"`
	Document string `json:"document"`
}

// CardRequest stores a card under a customer.
type CardRequest struct {
	Number         string          `json:"number,omitempty"`
	HolderName     string          `json:"holder_name,omitempty"`
	ExpMonth       int             `json:"exp_month,omitempty"`
	ExpYear        int             `json:"exp_year,omitempty"`
	CVV            string          `json:"cvv,omitempty"`
	Token          string          `json:"token,omitempty"`
	BillingAddress *BillingAddress `json:"billing_address,omitempty"`
}

type BillingAddress struct {
	Line1   string `json:"line_1"`
	ZipCode string `json:"zip_code"`
	City    string `json:"city"`
	State   string `json:"state"`
	Country string `json:"country"`
}

// Card is the provider's stored card object.
type Card struct {
	ID       string `json:"id"`
	Brand    string `json:"brand"`
	LastFour string `json:"last_four_digits"`
	ExpMonth int    `json:"exp_month"`
	ExpYear  int    `json:"exp_year"`
}

// PlanRequest creates a recurring plan.
type PlanRequest struct {
	Name           string            `json:"name"`
	Interval       string            `json:"interval"`
	IntervalCount  int               `json:"interval_count"`
	BillingType    string            `json:"billing_type"`
	PaymentMethods []string          `json:"payment_methods"`
	Items          []PlanItem        `json:"items"`
	Metadata       map[string]string `json:"metadata,omitempty"`
}

type PlanItem struct {
	Name          string        `json:"name"`
	Quantity      int           `json:"quantity"`
	PricingScheme PricingScheme `json:"pricing_scheme"`
}

type PricingScheme struct {
	SchemeType string `json:"scheme_type"`
	Price      int64  `json:"price"`
}

// Plan is the provider's plan object.
type Plan struct {
	ID     string `json:"id"`
	Name   string `json:"name"`
	Status string `json:"status"`
}

// SubscriptionRequest creates a subscription, either referencing a plan
// or carrying inline items (planless mode).
type SubscriptionRequest struct {
	PlanID         string             `json:"plan_id,omitempty"`
	CustomerID     string             `json:"customer_id"`
	CardID         string             `json:"card_id,omitempty"`
	PaymentMethod  string             `json:"payment_method"`
	Interval       string             `json:"interval,omitempty"`
	IntervalCount  int                `json:"interval_count,omitempty"`
	BillingType    string             `json:"billing_type,omitempty"`
	Installments   int                `json:"installments,omitempty"`
	Items          []SubscriptionItem `json:"items,omitempty"`
	Split          []SplitRule        `json:"split,omitempty"`
	Metadata       map[string]string  `json:"metadata,omitempty"`
}

type SubscriptionItem struct {
	Description   string        `json:"description"`
	Quantity      int           `json:"quantity"`
	PricingScheme PricingScheme `json:"pricing_scheme"`
}

// SplitRule routes a share of each charge to a recipient.
type SplitRule struct {
	Amount    int64         `json:"amount"`
	Type      string        `json:"type"`
	Recipient string        `json:"recipient_id"`
	Options   *SplitOptions `json:"options,omitempty"`
}

type SplitOptions struct {
	ChargeProcessingFee bool `json:"charge_processing_fee"`
	ChargeRemainderFee  bool `json:"charge_remainder_fee"`
	Liable              bool `json:"liable"`
}

// Subscription is the provider's subscription object.
type Subscription struct {
	ID       string            `json:"id"`
	Status   string            `json:"status"`
	PlanID   string            `json:"plan_id"`
	Metadata map[string]string `json:"metadata"`
}

// Order is the provider's order object, fetched for PIX verification.
type Order struct {
	ID      string   `json:"id"`
	Status  string   `json:"status"`
	Amount  int64    `json:"amount"`
	Charges []Charge `json:"charges"`
}

// Charge is a charge nested under an order.
type Charge struct {
	ID              string       `json:"id"`
	Status          string       `json:"status"`
	Amount          int64        `json:"amount"`
	PaidAmount      int64        `json:"paid_amount"`
	PaymentMethod   string       `json:"payment_method"`
	LastTransaction *Transaction `json:"last_transaction"`
}

// Transaction is a charge's last transaction.
type Transaction struct {
	Status           string `json:"status"`
	TransactionType  string `json:"transaction_type"`
	AmountCents      int64  `json:"amount"`
	Installments     int    `json:"installments"`
}

// ChargeUpdateRequest applies a deferred split to an existing charge.
type ChargeUpdateRequest struct {
	Split []SplitRule `json:"split,omitempty"`
}
