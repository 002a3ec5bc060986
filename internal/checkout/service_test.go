package checkout

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/tonipcv/kr-saas-sub001/internal/customers"
	"github.com/tonipcv/kr-saas-sub001/internal/providers/pagarme"
	"github.com/tonipcv/kr-saas-sub001/internal/subscriptions"
	"github.com/tonipcv/kr-saas-sub001/pkg/db/models"
	"github.com/tonipcv/kr-saas-sub001/pkg/enums"
	pkgerrors "github.com/tonipcv/kr-saas-sub001/pkg/errors"
	"github.com/tonipcv/kr-saas-sub001/pkg/logger"
)

type stubGateway struct {
	customers     int
	cards         int
	plans         int
	subscriptions []pagarme.SubscriptionRequest

	failFirstSubscription error
}

func (g *stubGateway) CreateCustomer(context.Context, pagarme.CustomerRequest) (*pagarme.Customer, error) {
	g.customers++
	return &pagarme.Customer{ID: "cus_stub"}, nil
}

func (g *stubGateway) CreateCard(_ context.Context, _ string, req pagarme.CardRequest) (*pagarme.Card, error) {
	g.cards++
	return &pagarme.Card{ID: "card_stub", Brand: "visa", LastFour: "4242", ExpMonth: req.ExpMonth, ExpYear: req.ExpYear}, nil
}

func (g *stubGateway) CreatePlan(context.Context, pagarme.PlanRequest) (*pagarme.Plan, error) {
	g.plans++
	return &pagarme.Plan{ID: "plan_stub", Status: "active"}, nil
}

func (g *stubGateway) CreateSubscription(_ context.Context, req pagarme.SubscriptionRequest) (*pagarme.Subscription, error) {
	g.subscriptions = append(g.subscriptions, req)
	if g.failFirstSubscription != nil && len(g.subscriptions) == 1 {
		return nil, g.failFirstSubscription
	}
	return &pagarme.Subscription{ID: "sub_stub", Status: "active"}, nil
}

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open("file::memory:"), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(
		&models.Product{},
		&models.Offer{},
		&models.OfferPrice{},
		&models.Merchant{},
		&models.PaymentTransaction{},
		&models.Customer{},
		&models.CustomerProvider{},
		&models.CustomerPaymentMethod{},
		&models.CustomerSubscription{},
	))
	return db
}

type fixture struct {
	db       *gorm.DB
	gateway  *stubGateway
	service  *Service
	product  models.Product
	merchant models.Merchant
}

func newFixture(t *testing.T, opts func(*ServiceParams)) *fixture {
	t.Helper()
	db := newTestDB(t)
	gateway := &stubGateway{}
	params := ServiceParams{
		Repo:          NewRepository(db),
		Customers:     customers.NewRepository(db),
		Subscriptions: subscriptions.NewRepository(db),
		Gateway:       gateway,
		Logger:        logger.New(logger.Options{ServiceName: "test", Level: logger.ParseLevel("error")}),
		SplitEnabled:  true,
	}
	if opts != nil {
		opts(&params)
	}
	service, err := NewService(params)
	require.NoError(t, err)

	recipient := "rp_1"
	clinicID := uuid.New()
	product := models.Product{
		ID:            uuid.New(),
		ClinicID:      clinicID,
		Name:          "Plano Mensal",
		Type:          "recurring",
		PriceCents:    2990,
		Currency:      "BRL",
		IntervalUnit:  enums.IntervalUnitMonth,
		IntervalCount: 1,
		Active:        true,
	}
	merchant := models.Merchant{
		ID:                  uuid.New(),
		ClinicID:            clinicID,
		Provider:            enums.ProviderPagarme,
		SplitPercent:        85,
		PlatformFeeBps:      250,
		TransactionFeeCents: 100,
		RecipientID:         &recipient,
		Active:              true,
	}
	require.NoError(t, db.Create(&product).Error)
	require.NoError(t, db.Create(&merchant).Error)

	return &fixture{db: db, gateway: gateway, service: service, product: product, merchant: merchant}
}

func subscribeParams(f *fixture) SubscribeParams {
	return SubscribeParams{
		ProductID: f.product.ID,
		Customer: CustomerInput{
			Name:  "Maria Souza",
			Email: "maria@example.com",
			Phone: "+5511999990000",
		},
		Card: &CardInput{
			Number:     "4000000000000010",
			HolderName: "MARIA SOUZA",
			ExpMonth:   12,
			ExpYear:    2030,
			CVV:        "123",
		},
	}
}

func TestSubscribeHappyPath(t *testing.T) {
	f := newFixture(t, nil)

	result, err := f.service.Subscribe(context.Background(), subscribeParams(f))
	require.NoError(t, err)
	require.Equal(t, "sub_stub", result.ProviderSubscriptionID)
	require.Equal(t, enums.SubscriptionStatusPending, result.Status)
	require.Equal(t, int64(2990), result.AmountCents)

	require.Equal(t, 1, f.gateway.customers)
	require.Equal(t, 1, f.gateway.cards)
	require.Equal(t, 1, f.gateway.plans)
	require.Len(t, f.gateway.subscriptions, 1)
	require.Equal(t, "plan_stub", f.gateway.subscriptions[0].PlanID)
	require.Len(t, f.gateway.subscriptions[0].Split, 1)

	var tx models.PaymentTransaction
	require.NoError(t, f.db.First(&tx, "provider_order_id = ?", "sub_stub").Error)
	require.Equal(t, enums.TransactionStatusProcessing, tx.Status)
	require.Equal(t, int64(2990), tx.AmountCents)
	require.NotNil(t, tx.ClinicID)
	require.Equal(t, f.merchant.ClinicID, *tx.ClinicID)
	require.NotNil(t, tx.ClinicAmountCents)
	require.NotNil(t, tx.PlatformAmountCents)
	require.Equal(t, int64(2990), *tx.ClinicAmountCents+*tx.PlatformAmountCents)

	var sub models.CustomerSubscription
	require.NoError(t, f.db.First(&sub, "provider_subscription_id = ?", "sub_stub").Error)
	require.Equal(t, enums.SubscriptionStatusPending, sub.Status)
	require.NotNil(t, sub.CurrentPeriodEnd)
	require.Contains(t, string(sub.Metadata), `"pagarmeOrderId":"sub_stub"`)
}

func TestSubscribeMonthlyLimitFailsClosed(t *testing.T) {
	f := newFixture(t, nil)
	limit := int64(1)
	require.NoError(t, f.db.Model(&models.Merchant{}).Where("id = ?", f.merchant.ID).
		Update("monthly_tx_limit", &limit).Error)
	require.NoError(t, f.db.Create(&models.PaymentTransaction{
		ID:       uuid.New(),
		Provider: enums.ProviderPagarme,
		Status:   enums.TransactionStatusPaid,
		StatusV2: enums.TransactionStatusPaid.Canonical(),
		ClinicID: &f.merchant.ClinicID,
	}).Error)

	_, err := f.service.Subscribe(context.Background(), subscribeParams(f))
	require.Error(t, err)
	require.Equal(t, pkgerrors.CodeLimitExceeded, pkgerrors.As(err).Code())
	require.Empty(t, f.gateway.subscriptions)
}

func TestSubscribeRejectsClinicWithoutRecipient(t *testing.T) {
	f := newFixture(t, nil)
	require.NoError(t, f.db.Model(&models.Merchant{}).Where("id = ?", f.merchant.ID).
		Update("recipient_id", nil).Error)

	_, err := f.service.Subscribe(context.Background(), subscribeParams(f))
	require.Error(t, err)
	require.Equal(t, pkgerrors.CodeDependency, pkgerrors.As(err).Code())
	require.Empty(t, f.gateway.subscriptions)
}

func TestSubscribeCountryOfferPriceWins(t *testing.T) {
	f := newFixture(t, nil)
	offer := models.Offer{
		ID:         uuid.New(),
		ProductID:  f.product.ID,
		Name:       "Oferta BR",
		PriceCents: 2490,
		Currency:   "BRL",
		Active:     true,
	}
	require.NoError(t, f.db.Create(&offer).Error)
	require.NoError(t, f.db.Create(&models.OfferPrice{
		ID:         uuid.New(),
		OfferID:    offer.ID,
		Country:    "PT",
		PriceCents: 1990,
		Currency:   "EUR",
	}).Error)

	params := subscribeParams(f)
	params.OfferID = &offer.ID
	params.Country = "pt"

	result, err := f.service.Subscribe(context.Background(), params)
	require.NoError(t, err)
	require.Equal(t, int64(1990), result.AmountCents)
	require.Equal(t, "EUR", result.Currency)
}

func TestSubscribeReusesCachedPlanUntilPriceDrifts(t *testing.T) {
	f := newFixture(t, nil)
	cachedPlan := "plan_cached"
	cachedPrice := int64(2490)
	offer := models.Offer{
		ID:                     uuid.New(),
		ProductID:              f.product.ID,
		PriceCents:             2490,
		Currency:               "BRL",
		ProviderPlanID:         &cachedPlan,
		ProviderPlanPriceCents: &cachedPrice,
		Active:                 true,
	}
	require.NoError(t, f.db.Create(&offer).Error)

	params := subscribeParams(f)
	params.OfferID = &offer.ID

	_, err := f.service.Subscribe(context.Background(), params)
	require.NoError(t, err)
	require.Zero(t, f.gateway.plans)
	require.Equal(t, "plan_cached", f.gateway.subscriptions[0].PlanID)

	// Price drift invalidates the cache and forces a new plan.
	require.NoError(t, f.db.Model(&models.Offer{}).Where("id = ?", offer.ID).
		Update("price_cents", 2990).Error)
	params.Customer.Email = "other@example.com"
	_, err = f.service.Subscribe(context.Background(), params)
	require.NoError(t, err)
	require.Equal(t, 1, f.gateway.plans)

	var updated models.Offer
	require.NoError(t, f.db.First(&updated, "id = ?", offer.ID).Error)
	require.NotNil(t, updated.ProviderPlanID)
	require.Equal(t, "plan_stub", *updated.ProviderPlanID)
	require.Equal(t, int64(2990), *updated.ProviderPlanPriceCents)
}

func TestSubscribeRetriesWithoutSplitOnRemainderError(t *testing.T) {
	f := newFixture(t, nil)
	f.gateway.failFirstSubscription = &pagarme.ProviderError{
		StatusCode: 422,
		Message:    "The split remainder fee is invalid",
	}

	result, err := f.service.Subscribe(context.Background(), subscribeParams(f))
	require.NoError(t, err)
	require.Equal(t, "sub_stub", result.ProviderSubscriptionID)
	require.Len(t, f.gateway.subscriptions, 2)
	require.NotEmpty(t, f.gateway.subscriptions[0].Split)
	require.Empty(t, f.gateway.subscriptions[1].Split)
}

func TestSubscribePlanlessModeSendsInlineItems(t *testing.T) {
	f := newFixture(t, func(p *ServiceParams) {
		p.PlanlessMode = true
	})

	_, err := f.service.Subscribe(context.Background(), subscribeParams(f))
	require.NoError(t, err)
	require.Zero(t, f.gateway.plans)

	req := f.gateway.subscriptions[0]
	require.Empty(t, req.PlanID)
	require.Len(t, req.Items, 1)
	require.Equal(t, int64(2990), req.Items[0].PricingScheme.Price)
	require.Equal(t, "month", req.Interval)
}

func TestSubscribeReusesSavedCardAndIdentity(t *testing.T) {
	f := newFixture(t, nil)

	customer := models.Customer{
		ID:         uuid.New(),
		MerchantID: f.merchant.ID,
		Email:      "maria@example.com",
		Name:       "Maria Souza",
	}
	require.NoError(t, f.db.Create(&customer).Error)
	require.NoError(t, f.db.Create(&models.CustomerProvider{
		ID:                 uuid.New(),
		CustomerID:         customer.ID,
		Provider:           enums.ProviderPagarme,
		AccountID:          f.merchant.ID.String(),
		ProviderCustomerID: "cus_known",
	}).Error)
	providerCard := "card_known"
	savedCard := models.CustomerPaymentMethod{
		ID:             uuid.New(),
		CustomerID:     customer.ID,
		Provider:       enums.ProviderPagarme,
		ProviderCardID: &providerCard,
	}
	require.NoError(t, f.db.Create(&savedCard).Error)

	params := subscribeParams(f)
	params.Card = nil
	params.SavedCardID = &savedCard.ID

	_, err := f.service.Subscribe(context.Background(), params)
	require.NoError(t, err)
	require.Zero(t, f.gateway.customers)
	require.Zero(t, f.gateway.cards)
	require.Equal(t, "cus_known", f.gateway.subscriptions[0].CustomerID)
	require.Equal(t, "card_known", f.gateway.subscriptions[0].CardID)
}
