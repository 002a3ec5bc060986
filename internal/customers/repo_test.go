package customers

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/tonipcv/kr-saas-sub001/pkg/db/models"
	"github.com/tonipcv/kr-saas-sub001/pkg/enums"
)

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open("file::memory:"), &gorm.Config{})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	err = db.AutoMigrate(
		&models.Customer{},
		&models.CustomerProvider{},
		&models.CustomerPaymentMethod{},
	)
	if err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return db
}

func TestMirrorCreatesAllThreeRows(t *testing.T) {
	db := newTestDB(t)
	repo := NewRepository(db)
	ctx := context.Background()

	params := MirrorParams{
		MerchantID:         uuid.New(),
		Provider:           enums.ProviderPagarme,
		Email:              "buyer@example.com",
		Name:               "Buyer",
		Phone:              "+5511999999999",
		ProviderCustomerID: "cus_1",
		ProviderCardID:     "card_1",
		CardBrand:          "visa",
		CardLast4:          "4242",
		CardExpMonth:       12,
		CardExpYear:        2030,
	}

	customer, err := repo.Mirror(ctx, params)
	if err != nil {
		t.Fatalf("mirror: %v", err)
	}

	identity, err := repo.FindProviderIdentity(ctx, customer.ID, enums.ProviderPagarme, "")
	if err != nil || identity == nil {
		t.Fatalf("provider identity = (%v, %v)", identity, err)
	}
	if identity.ProviderCustomerID != "cus_1" {
		t.Fatalf("provider customer id = %s", identity.ProviderCustomerID)
	}

	var methods []models.CustomerPaymentMethod
	if err := db.Find(&methods, "customer_id = ?", customer.ID).Error; err != nil {
		t.Fatalf("fetch methods: %v", err)
	}
	if len(methods) != 1 {
		t.Fatalf("methods = %d, want 1", len(methods))
	}
	if methods[0].Last4 != "4242" || methods[0].Brand != "visa" {
		t.Fatalf("unexpected method %+v", methods[0])
	}
}

func TestMirrorIsIdempotent(t *testing.T) {
	db := newTestDB(t)
	repo := NewRepository(db)
	ctx := context.Background()

	params := MirrorParams{
		MerchantID:         uuid.New(),
		Provider:           enums.ProviderPagarme,
		Email:              "repeat@example.com",
		Name:               "Repeat",
		ProviderCustomerID: "cus_2",
		CardBrand:          "master",
		CardLast4:          "1111",
	}

	first, err := repo.Mirror(ctx, params)
	if err != nil {
		t.Fatalf("first mirror: %v", err)
	}
	second, err := repo.Mirror(ctx, params)
	if err != nil {
		t.Fatalf("second mirror: %v", err)
	}
	if first.ID != second.ID {
		t.Fatal("mirror created a second customer for the same email")
	}

	var customerCount, methodCount int64
	db.Model(&models.Customer{}).Count(&customerCount)
	db.Model(&models.CustomerPaymentMethod{}).Count(&methodCount)
	if customerCount != 1 || methodCount != 1 {
		t.Fatalf("counts = (%d customers, %d methods), want (1, 1)", customerCount, methodCount)
	}
}

func TestMirrorWithoutEmailFails(t *testing.T) {
	db := newTestDB(t)
	repo := NewRepository(db)

	if _, err := repo.Mirror(context.Background(), MirrorParams{MerchantID: uuid.New()}); err == nil {
		t.Fatal("expected error for missing email")
	}
}
