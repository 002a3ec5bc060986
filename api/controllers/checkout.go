package controllers

import (
	"errors"
	"net/http"

	"github.com/google/uuid"

	"github.com/tonipcv/kr-saas-sub001/api/responses"
	"github.com/tonipcv/kr-saas-sub001/api/validators"
	"github.com/tonipcv/kr-saas-sub001/internal/checkout"
	"github.com/tonipcv/kr-saas-sub001/internal/providers/pagarme"
	pkgerrors "github.com/tonipcv/kr-saas-sub001/pkg/errors"
	"github.com/tonipcv/kr-saas-sub001/pkg/logger"
)

type subscribeRequest struct {
	ProductID string `json:"product_id" validate:"required,uuid"`
	OfferID   string `json:"offer_id,omitempty" validate:"omitempty,uuid"`
	Country   string `json:"country,omitempty" validate:"omitempty,len=2"`

	Customer struct {
		Name     string `json:"name" validate:"required,min=2"`
		Email    string `json:"email" validate:"required,email"`
		Phone    string `json:"phone,omitempty"`
		Document string `json:"document,omitempty"`
	} `json:"customer" validate:"required"`

	Card *struct {
		Number     string `json:"number,omitempty"`
		HolderName string `json:"holder_name,omitempty"`
		ExpMonth   int    `json:"exp_month,omitempty" validate:"omitempty,min=1,max=12"`
		ExpYear    int    `json:"exp_year,omitempty"`
		CVV        string `json:"cvv,omitempty"`
		Token      string `json:"token,omitempty"`
	} `json:"card,omitempty"`

	SavedCardID  string            `json:"saved_card_id,omitempty" validate:"omitempty,uuid"`
	Installments int               `json:"installments,omitempty" validate:"omitempty,min=1,max=12"`
	Metadata     map[string]string `json:"metadata,omitempty"`
}

type subscribeResponse struct {
	SubscriptionID         string `json:"subscription_id,omitempty"`
	ProviderSubscriptionID string `json:"provider_subscription_id"`
	TransactionID          string `json:"transaction_id,omitempty"`
	Status                 string `json:"status"`
	AmountCents            int64  `json:"amount_cents"`
	Currency               string `json:"currency"`
}

// CheckoutSubscribe starts a subscription for a clinic's product.
func CheckoutSubscribe(svc *checkout.Service, logg *logger.Logger, exposeProviderBody bool) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()

		var req subscribeRequest
		if err := validators.DecodeJSONBody(r, &req); err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}

		params, err := toSubscribeParams(req)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}

		result, err := svc.Subscribe(ctx, params)
		if err != nil {
			responses.WriteError(ctx, logg, w, translateCheckoutError(err, exposeProviderBody))
			return
		}

		resp := subscribeResponse{
			ProviderSubscriptionID: result.ProviderSubscriptionID,
			Status:                 string(result.Status),
			AmountCents:            result.AmountCents,
			Currency:               result.Currency,
		}
		if result.SubscriptionID != uuid.Nil {
			resp.SubscriptionID = result.SubscriptionID.String()
		}
		if result.TransactionID != uuid.Nil {
			resp.TransactionID = result.TransactionID.String()
		}
		responses.WriteSuccessStatus(w, http.StatusCreated, resp)
	}
}

func toSubscribeParams(req subscribeRequest) (checkout.SubscribeParams, error) {
	productID, err := uuid.Parse(req.ProductID)
	if err != nil {
		return checkout.SubscribeParams{}, pkgerrors.New(pkgerrors.CodeValidation, "invalid product id")
	}
	params := checkout.SubscribeParams{
		ProductID:    productID,
		Country:      req.Country,
		Installments: req.Installments,
		Metadata:     req.Metadata,
		Customer: checkout.CustomerInput{
			Name:     req.Customer.Name,
			Email:    req.Customer.Email,
			Phone:    req.Customer.Phone,
			Document: req.Customer.Document,
		},
	}
	if req.OfferID != "" {
		offerID, err := uuid.Parse(req.OfferID)
		if err != nil {
			return checkout.SubscribeParams{}, pkgerrors.New(pkgerrors.CodeValidation, "invalid offer id")
		}
		params.OfferID = &offerID
	}
	if req.SavedCardID != "" {
		cardID, err := uuid.Parse(req.SavedCardID)
		if err != nil {
			return checkout.SubscribeParams{}, pkgerrors.New(pkgerrors.CodeValidation, "invalid saved card id")
		}
		params.SavedCardID = &cardID
	}
	if req.Card != nil {
		params.Card = &checkout.CardInput{
			Number:     req.Card.Number,
			HolderName: req.Card.HolderName,
			ExpMonth:   req.Card.ExpMonth,
			ExpYear:    req.Card.ExpYear,
			CVV:        req.Card.CVV,
			Token:      req.Card.Token,
		}
	}
	return params, nil
}

// translateCheckoutError surfaces which provider call failed and what
// the provider said. The raw provider body is attached only outside
// production.
func translateCheckoutError(err error, exposeProviderBody bool) error {
	var step *checkout.StepError
	if !errors.As(err, &step) {
		return err
	}

	details := map[string]any{"step": step.Step}
	var perr *pagarme.ProviderError
	if errors.As(step.Err, &perr) {
		details["provider_status"] = perr.StatusCode
		details["provider_message"] = perr.Message
		if exposeProviderBody && perr.RawBody != "" {
			details["provider_body"] = perr.RawBody
		}
	}
	return pkgerrors.Wrap(pkgerrors.CodeProvider, err, "payment provider request failed").WithDetails(details)
}
