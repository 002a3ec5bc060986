package checkout

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/tonipcv/kr-saas-sub001/internal/customers"
	"github.com/tonipcv/kr-saas-sub001/internal/payments/split"
	"github.com/tonipcv/kr-saas-sub001/internal/providers/pagarme"
	"github.com/tonipcv/kr-saas-sub001/internal/subscriptions"
	"github.com/tonipcv/kr-saas-sub001/pkg/db/models"
	"github.com/tonipcv/kr-saas-sub001/pkg/enums"
	pkgerrors "github.com/tonipcv/kr-saas-sub001/pkg/errors"
	"github.com/tonipcv/kr-saas-sub001/pkg/logger"
)

// ProviderGateway is the slice of the Pagar.me client the subscribe flow
// uses.
type ProviderGateway interface {
	CreateCustomer(ctx context.Context, req pagarme.CustomerRequest) (*pagarme.Customer, error)
	CreateCard(ctx context.Context, customerID string, req pagarme.CardRequest) (*pagarme.Card, error)
	CreatePlan(ctx context.Context, req pagarme.PlanRequest) (*pagarme.Plan, error)
	CreateSubscription(ctx context.Context, req pagarme.SubscriptionRequest) (*pagarme.Subscription, error)
}

// StepError wraps a provider failure with the orchestration step it
// happened in, so the API can report which call failed.
type StepError struct {
	Step string
	Err  error
}

func (e *StepError) Error() string {
	return fmt.Sprintf("checkout step %s: %v", e.Step, e.Err)
}

func (e *StepError) Unwrap() error {
	return e.Err
}

// CustomerInput is the buyer's identity as submitted at checkout.
type CustomerInput struct {
	Name     string
	Email    string
	Phone    string
	Document string
}

// CardInput carries full card data or a tokenized reference. Raw card
// fields are forwarded to the provider and never persisted.
type CardInput struct {
	Number     string
	HolderName string
	ExpMonth   int
	ExpYear    int
	CVV        string
	Token      string
}

type SubscribeParams struct {
	ProductID    uuid.UUID
	OfferID      *uuid.UUID
	Country      string
	Customer     CustomerInput
	Card         *CardInput
	SavedCardID  *uuid.UUID
	Installments int
	Metadata     map[string]string
}

type SubscribeResult struct {
	SubscriptionID         uuid.UUID
	ProviderSubscriptionID string
	TransactionID          uuid.UUID
	Status                 enums.SubscriptionStatus
	AmountCents            int64
	Currency               string
}

type ServiceParams struct {
	Repo          Repository
	Customers     customers.Repository
	Subscriptions subscriptions.Repository
	Gateway       ProviderGateway
	Logger        *logger.Logger
	SplitEnabled  bool
	PlanlessMode  bool
}

// Service orchestrates the subscribe flow: catalog resolution, provider
// customer and card setup, subscription creation, and the local
// pre-insert that the webhook reconciler later settles.
type Service struct {
	repo         Repository
	custs        customers.Repository
	subs         subscriptions.Repository
	gateway      ProviderGateway
	logg         *logger.Logger
	splitEnabled bool
	planless     bool
	now          func() time.Time
}

func NewService(params ServiceParams) (*Service, error) {
	if params.Repo == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "checkout repo required")
	}
	if params.Customers == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "customer repo required")
	}
	if params.Subscriptions == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "subscription repo required")
	}
	if params.Gateway == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "provider gateway required")
	}
	if params.Logger == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "logger required")
	}
	return &Service{
		repo:         params.Repo,
		custs:        params.Customers,
		subs:         params.Subscriptions,
		gateway:      params.Gateway,
		logg:         params.Logger,
		splitEnabled: params.SplitEnabled,
		planless:     params.PlanlessMode,
		now:          time.Now,
	}, nil
}

// Subscribe runs the full checkout. Once the provider subscription
// exists it is the source of truth; local persistence failures after
// that point are logged and absorbed so the buyer is not charged twice
// for a bookkeeping error.
func (s *Service) Subscribe(ctx context.Context, params SubscribeParams) (*SubscribeResult, error) {
	if err := validate(params); err != nil {
		return nil, err
	}

	product, err := s.repo.ProductByID(ctx, params.ProductID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "failed to load product")
	}
	if product == nil {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "product not found or inactive")
	}
	if !product.IsRecurring() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "product does not sell as a subscription")
	}
	ctx = s.logg.WithClinicID(ctx, product.ClinicID.String())

	merchant, err := s.repo.MerchantForClinic(ctx, product.ClinicID, enums.ProviderPagarme)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "failed to load merchant")
	}
	if merchant == nil || merchant.RecipientID == nil || *merchant.RecipientID == "" {
		// The clinic cannot receive money; refuse rather than bill
		// into the void.
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "payments unavailable for this clinic")
	}

	if err := s.checkMonthlyLimit(ctx, merchant); err != nil {
		return nil, err
	}

	offer, priceCents, currency, err := s.resolvePrice(ctx, product, params.OfferID, params.Country)
	if err != nil {
		return nil, err
	}

	providerCustomerID, localCustomer, err := s.ensureProviderCustomer(ctx, merchant, params.Customer)
	if err != nil {
		return nil, err
	}

	cardID, cardMeta, err := s.resolveCard(ctx, providerCustomerID, params)
	if err != nil {
		return nil, err
	}

	interval, intervalCount := resolveOfferInterval(product, offer)

	sub, err := s.createProviderSubscription(ctx, createSubscriptionInput{
		product:       product,
		offer:         offer,
		merchant:      merchant,
		priceCents:    priceCents,
		currency:      currency,
		customerID:    providerCustomerID,
		cardID:        cardID,
		installments:  params.Installments,
		interval:      interval,
		intervalCount: intervalCount,
		metadata:      params.Metadata,
	})
	if err != nil {
		return nil, err
	}

	// Provider subscription exists; everything below must not fail the
	// request.
	result := &SubscribeResult{
		ProviderSubscriptionID: sub.ID,
		Status:                 enums.SubscriptionStatusPending,
		AmountCents:            priceCents,
		Currency:               currency,
	}
	s.persistLocalState(ctx, persistInput{
		product:       product,
		offer:         offer,
		merchant:      merchant,
		customer:      localCustomer,
		cardMeta:      cardMeta,
		sub:           sub,
		priceCents:    priceCents,
		currency:      currency,
		installments:  params.Installments,
		interval:      interval,
		intervalCount: intervalCount,
	}, result)

	return result, nil
}

func validate(params SubscribeParams) error {
	if params.ProductID == uuid.Nil {
		return pkgerrors.New(pkgerrors.CodeValidation, "product id is required")
	}
	if strings.TrimSpace(params.Customer.Email) == "" {
		return pkgerrors.New(pkgerrors.CodeValidation, "customer email is required")
	}
	if strings.TrimSpace(params.Customer.Name) == "" {
		return pkgerrors.New(pkgerrors.CodeValidation, "customer name is required")
	}
	if params.Card == nil && params.SavedCardID == nil {
		return pkgerrors.New(pkgerrors.CodeValidation, "a card or a saved card id is required")
	}
	return nil
}

// checkMonthlyLimit fails closed: when the count cannot be established
// the request is refused instead of waved through.
func (s *Service) checkMonthlyLimit(ctx context.Context, merchant *models.Merchant) error {
	if merchant.MonthlyTxLimit == nil {
		return nil
	}
	count, err := s.repo.MonthlyTransactionCount(ctx, merchant.ClinicID, s.now())
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "failed to check transaction limit")
	}
	if count >= *merchant.MonthlyTxLimit {
		return pkgerrors.New(pkgerrors.CodeLimitExceeded, "monthly transaction limit reached")
	}
	return nil
}

// resolvePrice walks country offer price, then offer, then product.
func (s *Service) resolvePrice(ctx context.Context, product *models.Product, offerID *uuid.UUID, country string) (*models.Offer, int64, string, error) {
	var offer *models.Offer
	if offerID != nil {
		var err error
		offer, err = s.repo.OfferByID(ctx, *offerID)
		if err != nil {
			return nil, 0, "", pkgerrors.Wrap(pkgerrors.CodeDependency, err, "failed to load offer")
		}
		if offer == nil {
			return nil, 0, "", pkgerrors.New(pkgerrors.CodeNotFound, "offer not found or inactive")
		}
		if offer.ProductID != product.ID {
			return nil, 0, "", pkgerrors.New(pkgerrors.CodeValidation, "offer does not belong to product")
		}
	}

	priceCents := product.PriceCents
	currency := product.Currency
	if offer != nil {
		if cp, err := s.repo.OfferPriceForCountry(ctx, offer.ID, country); err != nil {
			return nil, 0, "", pkgerrors.Wrap(pkgerrors.CodeDependency, err, "failed to load offer price")
		} else if cp != nil {
			priceCents = cp.PriceCents
			currency = cp.Currency
		} else if offer.PriceCents > 0 {
			priceCents = offer.PriceCents
			currency = offer.Currency
		}
	}

	if priceCents <= 0 {
		return nil, 0, "", pkgerrors.New(pkgerrors.CodeValidation, "resolved price must be positive")
	}
	return offer, priceCents, currency, nil
}

// ensureProviderCustomer reuses the stored provider identity when the
// buyer is already known, otherwise creates the customer on the
// provider.
func (s *Service) ensureProviderCustomer(ctx context.Context, merchant *models.Merchant, input CustomerInput) (string, *models.Customer, error) {
	local, err := s.custs.EnsureCustomer(ctx, customers.MirrorParams{
		MerchantID: merchant.ID,
		Provider:   enums.ProviderPagarme,
		Email:      input.Email,
		Name:       input.Name,
		Phone:      input.Phone,
		Document:   input.Document,
	})
	if err != nil {
		return "", nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "failed to ensure customer")
	}

	identity, err := s.custs.FindProviderIdentity(ctx, local.ID, enums.ProviderPagarme, merchant.ID.String())
	if err != nil {
		s.logg.Warn(ctx, fmt.Sprintf("provider identity lookup failed, creating fresh customer: %v", err))
	}
	if identity != nil && identity.ProviderCustomerID != "" {
		return identity.ProviderCustomerID, local, nil
	}

	req := pagarme.CustomerRequest{
		Name:     input.Name,
		Email:    input.Email,
		Document: input.Document,
		Type:     "individual",
	}
	if phone := splitPhone(input.Phone); phone != nil {
		req.Phones = &pagarme.Phones{MobilePhone: phone}
	}
	created, err := s.gateway.CreateCustomer(ctx, req)
	if err != nil {
		return "", nil, &StepError{Step: "create_customer", Err: err}
	}
	return created.ID, local, nil
}

type cardMetadata struct {
	providerCardID string
	brand          string
	last4          string
	expMonth       int
	expYear        int
}

// resolveCard returns the provider card id to bill, either a saved card
// or one freshly stored on the provider.
func (s *Service) resolveCard(ctx context.Context, providerCustomerID string, params SubscribeParams) (string, *cardMetadata, error) {
	if params.SavedCardID != nil {
		saved, err := s.custs.FindSavedCard(ctx, *params.SavedCardID)
		if err != nil {
			return "", nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "failed to load saved card")
		}
		if saved == nil || saved.ProviderCardID == nil || *saved.ProviderCardID == "" {
			return "", nil, pkgerrors.New(pkgerrors.CodeNotFound, "saved card not found")
		}
		return *saved.ProviderCardID, nil, nil
	}

	card := params.Card
	req := pagarme.CardRequest{
		Number:     card.Number,
		HolderName: card.HolderName,
		ExpMonth:   card.ExpMonth,
		ExpYear:    card.ExpYear,
		CVV:        card.CVV,
		Token:      card.Token,
	}
	created, err := s.gateway.CreateCard(ctx, providerCustomerID, req)
	if err != nil {
		return "", nil, &StepError{Step: "create_card", Err: err}
	}
	return created.ID, &cardMetadata{
		providerCardID: created.ID,
		brand:          created.Brand,
		last4:          created.LastFour,
		expMonth:       created.ExpMonth,
		expYear:        created.ExpYear,
	}, nil
}

type createSubscriptionInput struct {
	product       *models.Product
	offer         *models.Offer
	merchant      *models.Merchant
	priceCents    int64
	currency      string
	customerID    string
	cardID        string
	installments  int
	interval      enums.IntervalUnit
	intervalCount int
	metadata      map[string]string
}

func (s *Service) createProviderSubscription(ctx context.Context, in createSubscriptionInput) (*pagarme.Subscription, error) {
	req := pagarme.SubscriptionRequest{
		CustomerID:    in.customerID,
		CardID:        in.cardID,
		PaymentMethod: "credit_card",
		BillingType:   "prepaid",
		Installments:  in.installments,
		Metadata:      subscriptionMetadata(in),
	}

	if s.planless {
		req.Interval = string(in.interval)
		req.IntervalCount = in.intervalCount
		req.Items = []pagarme.SubscriptionItem{{
			Description: in.product.Name,
			Quantity:    1,
			PricingScheme: pagarme.PricingScheme{
				SchemeType: "unit",
				Price:      in.priceCents,
			},
		}}
	} else {
		planID, err := s.resolvePlan(ctx, in)
		if err != nil {
			return nil, err
		}
		req.PlanID = planID
	}

	if s.splitEnabled {
		rules, err := s.splitRules(in)
		if err != nil {
			s.logg.Warn(ctx, fmt.Sprintf("split computation failed, subscribing without split: %v", err))
		} else {
			req.Split = rules
		}
	}

	sub, err := s.gateway.CreateSubscription(ctx, req)
	if err == nil {
		return sub, nil
	}
	if len(req.Split) > 0 && pagarme.IsSplitRemainderError(err) {
		// The provider rejects splits whose rounding remainder it cannot
		// assign. Retry once without the split; the reconciler applies
		// it at charge time instead.
		s.logg.Warn(ctx, fmt.Sprintf("split rejected by provider, retrying without split: %v", err))
		req.Split = nil
		if sub, retryErr := s.gateway.CreateSubscription(ctx, req); retryErr == nil {
			return sub, nil
		}
	}
	return nil, &StepError{Step: "create_subscription", Err: err}
}

// resolvePlan reuses the plan cached on the offer when its price still
// matches, otherwise creates a plan and caches it.
func (s *Service) resolvePlan(ctx context.Context, in createSubscriptionInput) (string, error) {
	if in.offer != nil &&
		in.offer.ProviderPlanID != nil && *in.offer.ProviderPlanID != "" &&
		in.offer.ProviderPlanPriceCents != nil && *in.offer.ProviderPlanPriceCents == in.priceCents {
		return *in.offer.ProviderPlanID, nil
	}

	name := in.product.Name
	if in.offer != nil && in.offer.Name != "" {
		name = in.offer.Name
	}
	plan, err := s.gateway.CreatePlan(ctx, pagarme.PlanRequest{
		Name:           name,
		Interval:       string(in.interval),
		IntervalCount:  in.intervalCount,
		BillingType:    "prepaid",
		PaymentMethods: []string{"credit_card"},
		Items: []pagarme.PlanItem{{
			Name:     name,
			Quantity: 1,
			PricingScheme: pagarme.PricingScheme{
				SchemeType: "unit",
				Price:      in.priceCents,
			},
		}},
	})
	if err != nil {
		return "", &StepError{Step: "create_plan", Err: err}
	}

	if in.offer != nil {
		if err := s.repo.CacheOfferPlan(ctx, in.offer.ID, plan.ID, in.priceCents); err != nil {
			s.logg.Error(ctx, "failed to cache provider plan on offer", err)
		}
	}
	return plan.ID, nil
}

func (s *Service) splitRules(in createSubscriptionInput) ([]pagarme.SplitRule, error) {
	shares, err := split.Compute(in.priceCents, split.Terms{
		ClinicSplitPercent:  in.merchant.SplitPercent,
		PlatformFeeBps:      in.merchant.PlatformFeeBps,
		TransactionFeeCents: in.merchant.TransactionFeeCents,
	})
	if err != nil {
		return nil, err
	}
	return []pagarme.SplitRule{{
		Amount:    shares.ClinicAmountCents,
		Type:      "flat",
		Recipient: *in.merchant.RecipientID,
		Options: &pagarme.SplitOptions{
			ChargeProcessingFee: true,
			ChargeRemainderFee:  true,
			Liable:              true,
		},
	}}, nil
}

type persistInput struct {
	product       *models.Product
	offer         *models.Offer
	merchant      *models.Merchant
	customer      *models.Customer
	cardMeta      *cardMetadata
	sub           *pagarme.Subscription
	priceCents    int64
	currency      string
	installments  int
	interval      enums.IntervalUnit
	intervalCount int
}

// persistLocalState records the pending subscription and the processing
// transaction. The subscription id doubles as the order key until the
// first invoice webhook carries a real order id.
func (s *Service) persistLocalState(ctx context.Context, in persistInput, result *SubscribeResult) {
	now := s.now()
	periodEnd := subscriptions.AddInterval(now, in.interval, in.intervalCount)

	meta, _ := json.Marshal(map[string]string{
		"pagarmeOrderId": in.sub.ID,
		"clinicId":       in.merchant.ClinicID.String(),
	})

	subRow := &models.CustomerSubscription{
		ID:                     uuid.New(),
		Status:                 enums.SubscriptionStatusPending,
		Provider:               enums.ProviderPagarme,
		ProviderSubscriptionID: &in.sub.ID,
		MerchantID:             in.merchant.ID,
		CustomerID:             in.customer.ID,
		ProductID:              &in.product.ID,
		CurrentPeriodStart:     &now,
		CurrentPeriodEnd:       &periodEnd,
		Metadata:               meta,
	}
	if in.offer != nil {
		subRow.OfferID = &in.offer.ID
	}
	if err := s.subs.UpsertPending(ctx, subRow); err != nil {
		s.logg.Error(ctx, "failed to persist pending subscription", err)
	} else {
		result.SubscriptionID = subRow.ID
	}

	shares, splitErr := split.Compute(in.priceCents, split.Terms{
		ClinicSplitPercent:  in.merchant.SplitPercent,
		PlatformFeeBps:      in.merchant.PlatformFeeBps,
		TransactionFeeCents: in.merchant.TransactionFeeCents,
	})

	installments := in.installments
	if installments <= 0 {
		installments = 1
	}
	txRow := &models.PaymentTransaction{
		ID:                uuid.New(),
		Provider:          enums.ProviderPagarme,
		ProviderV2:        enums.ProviderPagarme.Canonical(),
		Status:            enums.TransactionStatusProcessing,
		StatusV2:          enums.TransactionStatusProcessing.Canonical(),
		ProviderOrderID:   &in.sub.ID,
		AmountCents:       in.priceCents,
		Currency:          in.currency,
		PaymentMethodType: enums.PaymentMethodCreditCard,
		Installments:      installments,
		CustomerID:        &in.customer.ID,
		ClinicID:          &in.merchant.ClinicID,
		ProductID:         &in.product.ID,
	}
	if splitErr == nil {
		txRow.ClinicAmountCents = &shares.ClinicAmountCents
		txRow.PlatformAmountCents = &shares.PlatformAmountCents
		txRow.PlatformFeeCents = &shares.PlatformFeeCents
	}
	if err := s.repo.InsertProcessingTransaction(ctx, txRow); err != nil {
		s.logg.Error(ctx, "failed to persist processing transaction", err)
	} else {
		result.TransactionID = txRow.ID
	}

	if in.cardMeta != nil {
		_, err := s.custs.Mirror(ctx, customers.MirrorParams{
			MerchantID:     in.merchant.ID,
			Provider:       enums.ProviderPagarme,
			AccountID:      in.merchant.ID.String(),
			Email:          in.customer.Email,
			Name:           in.customer.Name,
			ProviderCardID: in.cardMeta.providerCardID,
			CardBrand:      in.cardMeta.brand,
			CardLast4:      in.cardMeta.last4,
			CardExpMonth:   in.cardMeta.expMonth,
			CardExpYear:    in.cardMeta.expYear,
		})
		if err != nil {
			s.logg.Error(ctx, "failed to mirror card metadata", err)
		}
	}
}

func subscriptionMetadata(in createSubscriptionInput) map[string]string {
	meta := map[string]string{
		"clinicId":  in.merchant.ClinicID.String(),
		"productId": in.product.ID.String(),
	}
	if in.offer != nil {
		meta["offerId"] = in.offer.ID.String()
	}
	for k, v := range in.metadata {
		if _, taken := meta[k]; !taken {
			meta[k] = v
		}
	}
	return meta
}

func resolveOfferInterval(product *models.Product, offer *models.Offer) (enums.IntervalUnit, int) {
	if offer != nil && offer.IntervalUnit != nil && offer.IntervalCount != nil && *offer.IntervalCount > 0 {
		return *offer.IntervalUnit, *offer.IntervalCount
	}
	unit := product.IntervalUnit
	count := product.IntervalCount
	if count <= 0 {
		count = 1
	}
	if unit == "" {
		unit = enums.IntervalUnitMonth
	}
	return unit, count
}

// splitPhone turns a BR E.164-ish number into the provider phone shape.
func splitPhone(raw string) *pagarme.Phone {
	digits := strings.Map(func(r rune) rune {
		if r >= '0' && r <= '9' {
			return r
		}
		return -1
	}, raw)
	if len(digits) < 10 {
		return nil
	}
	country := "55"
	if len(digits) > 11 && strings.HasPrefix(digits, "55") {
		digits = digits[2:]
	}
	return &pagarme.Phone{
		CountryCode: country,
		AreaCode:    digits[:2],
		Number:      digits[2:],
	}
}
