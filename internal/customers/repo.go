package customers

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/tonipcv/kr-saas-sub001/pkg/db/models"
	"github.com/tonipcv/kr-saas-sub001/pkg/enums"
)

// MirrorParams carries the provider-side identity seen on a webhook or
// checkout call.
type MirrorParams struct {
	MerchantID         uuid.UUID
	Provider           enums.Provider
	AccountID          string
	Email              string
	Name               string
	Phone              string
	Document           string
	ProviderCustomerID string
	ProviderCardID     string
	CardBrand          string
	CardLast4          string
	CardExpMonth       int
	CardExpYear        int
}

// Repository maintains the unified customer tables.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	EnsureCustomer(ctx context.Context, params MirrorParams) (*models.Customer, error)
	Mirror(ctx context.Context, params MirrorParams) (*models.Customer, error)
	FindProviderIdentity(ctx context.Context, customerID uuid.UUID, provider enums.Provider, accountID string) (*models.CustomerProvider, error)
	FindSavedCard(ctx context.Context, cardID uuid.UUID) (*models.CustomerPaymentMethod, error)
}

type repository struct {
	db *gorm.DB
}

// NewRepository returns a customer repository bound to the database.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

// EnsureCustomer finds or creates the merchant-scoped customer row.
func (r *repository) EnsureCustomer(ctx context.Context, params MirrorParams) (*models.Customer, error) {
	if params.Email == "" {
		return nil, errors.New("customer email required")
	}

	var customer models.Customer
	err := r.db.WithContext(ctx).
		Where("merchant_id = ? AND email = ?", params.MerchantID, params.Email).
		First(&customer).Error
	if err == nil {
		r.refreshContact(ctx, &customer, params)
		return &customer, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, err
	}

	customer = models.Customer{
		ID:         uuid.New(),
		MerchantID: params.MerchantID,
		Email:      params.Email,
		Name:       params.Name,
	}
	if params.Phone != "" {
		customer.Phone = &params.Phone
	}
	if params.Document != "" {
		customer.Document = &params.Document
	}
	if err := r.db.WithContext(ctx).Create(&customer).Error; err != nil {
		// Lost a concurrent insert race; the row exists now.
		ferr := r.db.WithContext(ctx).
			Where("merchant_id = ? AND email = ?", params.MerchantID, params.Email).
			First(&customer).Error
		if ferr != nil {
			return nil, err
		}
	}
	return &customer, nil
}

// Mirror upserts the customer plus its provider identity and masked card.
func (r *repository) Mirror(ctx context.Context, params MirrorParams) (*models.Customer, error) {
	customer, err := r.EnsureCustomer(ctx, params)
	if err != nil {
		return nil, err
	}

	if params.ProviderCustomerID != "" {
		if err := r.upsertProviderIdentity(ctx, customer.ID, params); err != nil {
			return customer, err
		}
	}
	if params.CardLast4 != "" {
		if err := r.upsertPaymentMethod(ctx, customer.ID, params); err != nil {
			return customer, err
		}
	}
	return customer, nil
}

func (r *repository) refreshContact(ctx context.Context, customer *models.Customer, params MirrorParams) {
	updates := map[string]any{}
	if params.Name != "" && customer.Name == "" {
		updates["name"] = params.Name
	}
	if params.Phone != "" && customer.Phone == nil {
		updates["phone"] = params.Phone
	}
	if params.Document != "" && customer.Document == nil {
		updates["document"] = params.Document
	}
	if len(updates) == 0 {
		return
	}
	r.db.WithContext(ctx).Model(customer).Updates(updates)
}

func (r *repository) upsertProviderIdentity(ctx context.Context, customerID uuid.UUID, params MirrorParams) error {
	var identity models.CustomerProvider
	err := r.db.WithContext(ctx).
		Where("customer_id = ? AND provider = ? AND account_id = ?", customerID, params.Provider, params.AccountID).
		First(&identity).Error
	if err == nil {
		if identity.ProviderCustomerID != params.ProviderCustomerID {
			return r.db.WithContext(ctx).Model(&identity).
				Update("provider_customer_id", params.ProviderCustomerID).Error
		}
		return nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return err
	}
	identity = models.CustomerProvider{
		ID:                 uuid.New(),
		CustomerID:         customerID,
		Provider:           params.Provider,
		AccountID:          params.AccountID,
		ProviderCustomerID: params.ProviderCustomerID,
	}
	return r.db.WithContext(ctx).Create(&identity).Error
}

// upsertPaymentMethod de-duplicates by last4 within the customer,
// provider and account scope. Only masked data is stored.
func (r *repository) upsertPaymentMethod(ctx context.Context, customerID uuid.UUID, params MirrorParams) error {
	var existing models.CustomerPaymentMethod
	err := r.db.WithContext(ctx).
		Where("customer_id = ? AND provider = ? AND account_id = ? AND last4 = ?",
			customerID, params.Provider, params.AccountID, params.CardLast4).
		First(&existing).Error
	if err == nil {
		return nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return err
	}

	method := models.CustomerPaymentMethod{
		ID:              uuid.New(),
		CustomerID:      customerID,
		Provider:        params.Provider,
		AccountID:       params.AccountID,
		Brand:           params.CardBrand,
		Last4:           params.CardLast4,
		ExpirationMonth: params.CardExpMonth,
		ExpirationYear:  params.CardExpYear,
	}
	if params.ProviderCardID != "" {
		method.ProviderCardID = &params.ProviderCardID
	}
	return r.db.WithContext(ctx).Create(&method).Error
}

func (r *repository) FindProviderIdentity(ctx context.Context, customerID uuid.UUID, provider enums.Provider, accountID string) (*models.CustomerProvider, error) {
	var identity models.CustomerProvider
	err := r.db.WithContext(ctx).
		Where("customer_id = ? AND provider = ? AND account_id = ?", customerID, provider, accountID).
		First(&identity).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &identity, nil
}

func (r *repository) FindSavedCard(ctx context.Context, cardID uuid.UUID) (*models.CustomerPaymentMethod, error) {
	var method models.CustomerPaymentMethod
	err := r.db.WithContext(ctx).First(&method, "id = ?", cardID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &method, nil
}
