package appmax

import (
	"encoding/json"
	"fmt"
	"net/url"
	"strconv"
	"strings"

	"github.com/tonipcv/kr-saas-sub001/internal/reconciler"
	pkgerrors "github.com/tonipcv/kr-saas-sub001/pkg/errors"
	"github.com/tonipcv/kr-saas-sub001/pkg/enums"
)

type envelope struct {
	Environment string  `json:"environment"`
	Event       string  `json:"event"`
	Data        payload `json:"data"`
}

type payload struct {
	ID            json.Number    `json:"id"`
	OrderID       json.Number    `json:"order_id"`
	Status        string         `json:"status"`
	Total         json.Number    `json:"total"`
	PaidAmount    json.Number    `json:"paid_amount"`
	PaymentType   string         `json:"payment_type"`
	Installments  int            `json:"installments"`
	CustomerID    json.Number    `json:"customer_id"`
	Customer      *customer      `json:"customer"`
	Metadata      map[string]any `json:"metadata"`
	CardBrand     string         `json:"card_brand"`
	CardLast4     string         `json:"card_last_digits"`
	UpsellOrderID json.Number    `json:"upsell_order_id"`
}

type customer struct {
	ID        json.Number `json:"id"`
	Firstname string      `json:"firstname"`
	Lastname  string      `json:"lastname"`
	Fullname  string      `json:"fullname"`
	Email     string      `json:"email"`
	Telephone string      `json:"telephone"`
	Document  string      `json:"document_number"`
}

// Parse maps an AppMax webhook onto the provider-agnostic event shape.
// AppMax posts JSON, but some integrations relay the envelope as
// application/x-www-form-urlencoded with the JSON document under a
// "data" field, so both encodings are handled.
func Parse(body []byte, contentType string) (reconciler.Event, error) {
	env, err := decode(body, contentType)
	if err != nil {
		return reconciler.Event{}, err
	}
	if env.Event == "" {
		return reconciler.Event{}, pkgerrors.New(pkgerrors.CodeValidation, "appmax webhook missing event name")
	}

	orderID := firstNumber(env.Data.OrderID, env.Data.ID)
	ev := reconciler.Event{
		Provider:        enums.ProviderAppmax,
		EventID:         orderID,
		Type:            env.Event,
		OrderID:         orderID,
		RawStatus:       env.Data.Status,
		AmountCents:     toCents(env.Data.Total),
		PaidAmountCents: toCents(env.Data.PaidAmount),
		Currency:        "BRL",
		PaymentMethod:   env.Data.PaymentType,
		Installments:    env.Data.Installments,
		CardBrand:       env.Data.CardBrand,
		CardLast4:       env.Data.CardLast4,
		Raw:             json.RawMessage(body),
	}
	// AppMax carries no event id, so deliveries are deduplicated on the
	// event name plus order id. That keys retries of the same
	// notification while leaving distinct lifecycle events apart.
	ev.HookID = fmt.Sprintf("%s:%s", env.Event, orderID)

	if c := env.Data.Customer; c != nil {
		ev.ProviderCustomerID = c.ID.String()
		ev.CustomerName = strings.TrimSpace(c.Fullname)
		if ev.CustomerName == "" {
			ev.CustomerName = strings.TrimSpace(c.Firstname + " " + c.Lastname)
		}
		ev.CustomerEmail = c.Email
		ev.CustomerPhone = c.Telephone
		ev.CustomerDocument = c.Document
	} else if env.Data.CustomerID.String() != "" {
		ev.ProviderCustomerID = env.Data.CustomerID.String()
	}

	if len(env.Data.Metadata) > 0 {
		ev.Metadata = make(map[string]string, len(env.Data.Metadata))
		for k, v := range env.Data.Metadata {
			ev.Metadata[k] = fmt.Sprintf("%v", v)
		}
	}

	return ev, nil
}

func decode(body []byte, contentType string) (envelope, error) {
	var env envelope
	if strings.Contains(contentType, "application/x-www-form-urlencoded") {
		values, err := url.ParseQuery(string(body))
		if err != nil {
			return env, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "malformed appmax form body")
		}
		env.Environment = values.Get("environment")
		env.Event = values.Get("event")
		if raw := values.Get("data"); raw != "" {
			if err := json.Unmarshal([]byte(raw), &env.Data); err != nil {
				return env, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "malformed appmax data field")
			}
		} else {
			env.Data.ID = json.Number(values.Get("order_id"))
			env.Data.Status = values.Get("status")
			env.Data.Total = json.Number(values.Get("total"))
		}
		return env, nil
	}
	if err := json.Unmarshal(body, &env); err != nil {
		return env, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "malformed appmax webhook body")
	}
	return env, nil
}

func firstNumber(nums ...json.Number) string {
	for _, n := range nums {
		if s := n.String(); s != "" && s != "0" {
			return s
		}
	}
	return ""
}

// toCents converts AppMax's decimal BRL totals ("299.90" or 299.9) to
// integer cents.
func toCents(n json.Number) int64 {
	s := n.String()
	if s == "" {
		return 0
	}
	if i, err := strconv.ParseInt(s, 10, 64); err == nil && !strings.Contains(s, ".") {
		// Whole numbers are still reais, not cents.
		return i * 100
	}
	f, err := n.Float64()
	if err != nil {
		return 0
	}
	return int64(f*100 + 0.5)
}
