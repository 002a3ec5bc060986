package sideeffects

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/google/uuid"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/tonipcv/kr-saas-sub001/internal/purchases"
	"github.com/tonipcv/kr-saas-sub001/internal/reconciler"
	"github.com/tonipcv/kr-saas-sub001/pkg/db/models"
	"github.com/tonipcv/kr-saas-sub001/pkg/enums"
	"github.com/tonipcv/kr-saas-sub001/pkg/logger"
	"github.com/tonipcv/kr-saas-sub001/pkg/mailer"
	"github.com/tonipcv/kr-saas-sub001/pkg/outbox"
)

type failingMailer struct {
	err  error
	sent []mailer.Message
}

func (f *failingMailer) Send(_ context.Context, msg mailer.Message) error {
	if f.err != nil {
		return f.err
	}
	f.sent = append(f.sent, msg)
	return nil
}

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open("file::memory:"), &gorm.Config{})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	err = db.AutoMigrate(
		&models.Purchase{},
		&models.Merchant{},
		&models.Customer{},
		&models.CustomerProvider{},
		&models.CustomerPaymentMethod{},
		&models.OutboxEvent{},
		&models.Clinic{},
		&models.Product{},
		&models.User{},
		&models.PatientProfile{},
	)
	if err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return db
}

func newDispatcher(t *testing.T, db *gorm.DB, sender EmailSender, observer func([]Result)) *Dispatcher {
	t.Helper()
	logg := logger.New(logger.Options{ServiceName: "test", Level: logger.ParseLevel("error")})
	dispatcher, err := NewDispatcher(DispatcherParams{
		DB:        db,
		Mailer:    sender,
		Purchases: purchases.NewRepository(db),
		Outbox:    outbox.NewService(outbox.NewRepository(db), logg),
		Logger:    logg,
		Observer:  observer,
	})
	if err != nil {
		t.Fatalf("new dispatcher: %v", err)
	}
	return dispatcher
}

func paidTransition(orderID string) reconciler.Transition {
	return reconciler.Transition{
		Transaction: &models.PaymentTransaction{
			ID:          uuid.New(),
			Provider:    enums.ProviderPagarme,
			Status:      enums.TransactionStatusPaid,
			AmountCents: 10000,
			Currency:    "BRL",
		},
		Event: reconciler.Event{
			Provider:      enums.ProviderPagarme,
			OrderID:       orderID,
			CustomerEmail: "buyer@example.com",
			CustomerName:  "Buyer",
		},
		NewStatus: enums.TransactionStatusPaid,
	}
}

func TestDispatchPaidRunsAllActions(t *testing.T) {
	db := newTestDB(t)
	sender := &failingMailer{}
	var results []Result
	dispatcher := newDispatcher(t, db, sender, func(r []Result) { results = r })

	dispatcher.Dispatch(context.Background(), paidTransition("or_pay"))

	if len(results) != 4 {
		t.Fatalf("results = %d, want 4", len(results))
	}
	for _, res := range results {
		if res.Err != nil {
			t.Fatalf("action %s failed: %v", res.Action, res.Err)
		}
	}
	if len(sender.sent) != 1 {
		t.Fatalf("emails = %d, want 1", len(sender.sent))
	}

	var purchaseCount, outboxCount int64
	db.Model(&models.Purchase{}).Count(&purchaseCount)
	db.Model(&models.OutboxEvent{}).Count(&outboxCount)
	if purchaseCount != 1 {
		t.Fatalf("purchases = %d, want 1", purchaseCount)
	}
	if outboxCount != 1 {
		t.Fatalf("outbox events = %d, want 1", outboxCount)
	}
}

func TestDispatchFailingEmailDoesNotBlockPurchase(t *testing.T) {
	db := newTestDB(t)
	sender := &failingMailer{err: errors.New("smtp down")}
	var results []Result
	dispatcher := newDispatcher(t, db, sender, func(r []Result) { results = r })

	dispatcher.Dispatch(context.Background(), paidTransition("or_mailfail"))

	if results[0].Action != "payment_confirmed_email" || results[0].Err == nil {
		t.Fatalf("expected email action failure, got %+v", results[0])
	}
	for _, res := range results[1:] {
		if res.Err != nil {
			t.Fatalf("action %s should not be affected: %v", res.Action, res.Err)
		}
	}

	var purchaseCount int64
	db.Model(&models.Purchase{}).Count(&purchaseCount)
	if purchaseCount != 1 {
		t.Fatalf("purchases = %d, want 1", purchaseCount)
	}
}

func TestDispatchDuplicatePaidCreatesOnePurchase(t *testing.T) {
	db := newTestDB(t)
	dispatcher := newDispatcher(t, db, &failingMailer{}, nil)

	dispatcher.Dispatch(context.Background(), paidTransition("or_dup"))
	dispatcher.Dispatch(context.Background(), paidTransition("or_dup"))

	var purchaseCount, outboxCount int64
	db.Model(&models.Purchase{}).Count(&purchaseCount)
	db.Model(&models.OutboxEvent{}).Count(&outboxCount)
	if purchaseCount != 1 {
		t.Fatalf("purchases = %d, want 1", purchaseCount)
	}
	if outboxCount != 1 {
		t.Fatalf("outbox events = %d, want 1", outboxCount)
	}
}

func TestDispatchRefundUpdatesExistingPurchaseOnly(t *testing.T) {
	db := newTestDB(t)
	dispatcher := newDispatcher(t, db, &failingMailer{}, nil)

	t1 := paidTransition("or_refund")
	dispatcher.Dispatch(context.Background(), t1)

	t1.NewStatus = enums.TransactionStatusRefunded
	dispatcher.Dispatch(context.Background(), t1)

	var purchase models.Purchase
	if err := db.First(&purchase, "external_idempotency_key = ?", "or_refund").Error; err != nil {
		t.Fatalf("fetch purchase: %v", err)
	}
	if purchase.Status != enums.PurchaseStatusRefunded {
		t.Fatalf("purchase status = %s, want REFUNDED", purchase.Status)
	}

	// A refund for an order that never had a purchase creates nothing.
	t2 := paidTransition("or_never_paid")
	t2.NewStatus = enums.TransactionStatusRefunded
	dispatcher.Dispatch(context.Background(), t2)

	var count int64
	db.Model(&models.Purchase{}).Count(&count)
	if count != 1 {
		t.Fatalf("purchases = %d, want 1", count)
	}
}

func TestDispatchIgnoresNonObservableStatuses(t *testing.T) {
	db := newTestDB(t)
	var called bool
	dispatcher := newDispatcher(t, db, &failingMailer{}, func([]Result) { called = true })

	tr := paidTransition("or_noop")
	tr.NewStatus = enums.TransactionStatusProcessing
	dispatcher.Dispatch(context.Background(), tr)

	if called {
		t.Fatal("observer fired for a non-observable status")
	}
}

func TestDispatchPaidEmailFallsBackToPatientProfile(t *testing.T) {
	db := newTestDB(t)
	sender := &failingMailer{}
	dispatcher := newDispatcher(t, db, sender, nil)

	user := models.User{ID: uuid.New(), Email: "titular@example.com", Name: "Titular"}
	if err := db.Create(&user).Error; err != nil {
		t.Fatalf("seed user: %v", err)
	}
	profile := models.PatientProfile{ID: uuid.New(), UserID: user.ID}
	if err := db.Create(&profile).Error; err != nil {
		t.Fatalf("seed patient profile: %v", err)
	}

	tr := paidTransition("or_profile")
	tr.Event.CustomerEmail = ""
	tr.Event.CustomerName = ""
	tr.Transaction.PatientProfileID = &profile.ID
	dispatcher.Dispatch(context.Background(), tr)

	if len(sender.sent) != 1 {
		t.Fatalf("emails = %d, want 1", len(sender.sent))
	}
	if sender.sent[0].ToEmail != "titular@example.com" {
		t.Fatalf("recipient = %s, want titular@example.com", sender.sent[0].ToEmail)
	}
	if sender.sent[0].ToName != "Titular" {
		t.Fatalf("recipient name = %s, want Titular", sender.sent[0].ToName)
	}
}

func TestDispatchPaidEmailSkippedWhenChainExhausted(t *testing.T) {
	db := newTestDB(t)
	sender := &failingMailer{}
	dispatcher := newDispatcher(t, db, sender, nil)

	tr := paidTransition("or_noemail")
	tr.Event.CustomerEmail = ""
	dispatcher.Dispatch(context.Background(), tr)

	if len(sender.sent) != 0 {
		t.Fatalf("emails = %d, want 0", len(sender.sent))
	}
}

func TestDispatchPaidEmailNamesClinicAndProduct(t *testing.T) {
	db := newTestDB(t)
	sender := &failingMailer{}
	dispatcher := newDispatcher(t, db, sender, nil)

	clinic := models.Clinic{ID: uuid.New(), Name: "Clinica Central", Active: true}
	if err := db.Create(&clinic).Error; err != nil {
		t.Fatalf("seed clinic: %v", err)
	}
	product := models.Product{ID: uuid.New(), ClinicID: clinic.ID, Name: "Plano Mensal", Active: true}
	if err := db.Create(&product).Error; err != nil {
		t.Fatalf("seed product: %v", err)
	}

	tr := paidTransition("or_named")
	tr.Transaction.ClinicID = &clinic.ID
	tr.Transaction.ProductID = &product.ID
	dispatcher.Dispatch(context.Background(), tr)

	if len(sender.sent) != 1 {
		t.Fatalf("emails = %d, want 1", len(sender.sent))
	}
	body := sender.sent[0].Text
	if !strings.Contains(body, "Plano Mensal") {
		t.Fatalf("body %q missing product name", body)
	}
	if !strings.Contains(body, "Clinica Central") {
		t.Fatalf("body %q missing clinic name", body)
	}
}
