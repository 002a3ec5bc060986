package pagarme

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/tonipcv/kr-saas-sub001/internal/reconciler"
	pkgerrors "github.com/tonipcv/kr-saas-sub001/pkg/errors"
	"github.com/tonipcv/kr-saas-sub001/pkg/enums"
)

type envelope struct {
	ID   string  `json:"id"`
	Type string  `json:"type"`
	Data payload `json:"data"`
}

type payload struct {
	ID          string           `json:"id"`
	Code        string           `json:"code"`
	Status      string           `json:"status"`
	Amount      int64            `json:"amount"`
	PaidAmount  int64            `json:"paid_amount"`
	Currency    string           `json:"currency"`
	Customer    *customer        `json:"customer"`
	Charges     []charge         `json:"charges"`
	Charge      *charge          `json:"charge"`
	Order       *orderRef        `json:"order"`
	Sub         *subscriptionRef `json:"subscription"`
	Metadata    map[string]any   `json:"metadata"`
	Installment int              `json:"installments"`
}

type orderRef struct {
	ID string `json:"id"`
}

type subscriptionRef struct {
	ID     string `json:"id"`
	Status string `json:"status"`
}

type customer struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	Email    string `json:"email"`
	Document string `json:"document"`
	Phones   *struct {
		MobilePhone *struct {
			CountryCode string `json:"country_code"`
			AreaCode    string `json:"area_code"`
			Number      string `json:"number"`
		} `json:"mobile_phone"`
	} `json:"phones"`
}

type charge struct {
	ID              string           `json:"id"`
	Status          string           `json:"status"`
	Amount          int64            `json:"amount"`
	PaidAmount      int64            `json:"paid_amount"`
	PaymentMethod   string           `json:"payment_method"`
	LastTransaction *lastTransaction `json:"last_transaction"`
}

type lastTransaction struct {
	Status          string `json:"status"`
	TransactionType string `json:"transaction_type"`
	Installments    int    `json:"installments"`
	Card            *card  `json:"card"`
}

type card struct {
	ID       string `json:"id"`
	Brand    string `json:"brand"`
	Last4    string `json:"last_four_digits"`
	ExpMonth int    `json:"exp_month"`
	ExpYear  int    `json:"exp_year"`
}

// Parse maps a Pagar.me webhook envelope onto the provider-agnostic
// event shape. The data.id slot can carry an order, a charge or a
// subscription id depending on the event family, so it is routed by
// prefix rather than trusted by position.
func Parse(body []byte) (reconciler.Event, error) {
	var env envelope
	if err := json.Unmarshal(body, &env); err != nil {
		return reconciler.Event{}, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "malformed pagarme webhook body")
	}
	if env.ID == "" && env.Type == "" {
		return reconciler.Event{}, pkgerrors.New(pkgerrors.CodeValidation, "pagarme webhook missing id and type")
	}

	ev := reconciler.Event{
		Provider:        enums.ProviderPagarme,
		HookID:          env.ID,
		EventID:         env.ID,
		Type:            env.Type,
		RawStatus:       env.Data.Status,
		AmountCents:     env.Data.Amount,
		PaidAmountCents: env.Data.PaidAmount,
		Currency:        strings.ToUpper(env.Data.Currency),
		Installments:    env.Data.Installment,
		Raw:             json.RawMessage(body),
	}

	routeID(&ev, env.Data.ID)
	if env.Data.Order != nil {
		routeID(&ev, env.Data.Order.ID)
	}
	if env.Data.Sub != nil && env.Data.Sub.ID != "" {
		ev.SubscriptionID = env.Data.Sub.ID
	}

	ch := pickCharge(env.Data)
	if ch != nil {
		if ev.ChargeID == "" {
			ev.ChargeID = ch.ID
		}
		ev.PaymentMethod = ch.PaymentMethod
		if ch.PaidAmount > ev.PaidAmountCents {
			ev.PaidAmountCents = ch.PaidAmount
		}
		if ev.AmountCents == 0 {
			ev.AmountCents = ch.Amount
		}
		if lt := ch.LastTransaction; lt != nil {
			ev.NestedStatus = lt.Status
			ev.NestedMethod = lt.TransactionType
			if lt.Installments > 0 {
				ev.Installments = lt.Installments
			}
			if lt.Card != nil {
				ev.ProviderCardID = lt.Card.ID
				ev.CardBrand = lt.Card.Brand
				ev.CardLast4 = lt.Card.Last4
				ev.CardExpMonth = lt.Card.ExpMonth
				ev.CardExpYear = lt.Card.ExpYear
			}
		}
	}

	if c := env.Data.Customer; c != nil {
		ev.ProviderCustomerID = c.ID
		ev.CustomerName = c.Name
		ev.CustomerEmail = c.Email
		ev.CustomerDocument = c.Document
		if c.Phones != nil && c.Phones.MobilePhone != nil {
			m := c.Phones.MobilePhone
			ev.CustomerPhone = m.CountryCode + m.AreaCode + m.Number
		}
	}

	if len(env.Data.Metadata) > 0 {
		ev.Metadata = make(map[string]string, len(env.Data.Metadata))
		for k, v := range env.Data.Metadata {
			ev.Metadata[k] = stringify(v)
		}
	}

	return ev, nil
}

func routeID(ev *reconciler.Event, id string) {
	switch {
	case id == "":
	case strings.HasPrefix(id, "ch_"):
		if ev.ChargeID == "" {
			ev.ChargeID = id
		}
	case strings.HasPrefix(id, "sub_"):
		if ev.SubscriptionID == "" {
			ev.SubscriptionID = id
		}
	default:
		if ev.OrderID == "" {
			ev.OrderID = id
		}
	}
}

func pickCharge(p payload) *charge {
	if p.Charge != nil {
		return p.Charge
	}
	if len(p.Charges) > 0 {
		return &p.Charges[0]
	}
	return nil
}

func stringify(v any) string {
	switch t := v.(type) {
	case string:
		return t
	case float64:
		if t == float64(int64(t)) {
			return fmt.Sprintf("%d", int64(t))
		}
		return fmt.Sprintf("%v", t)
	case bool:
		return fmt.Sprintf("%t", t)
	case nil:
		return ""
	default:
		b, _ := json.Marshal(t)
		return string(b)
	}
}
