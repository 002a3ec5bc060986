package sideeffects

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/gorm"

	"github.com/tonipcv/kr-saas-sub001/internal/customers"
	"github.com/tonipcv/kr-saas-sub001/internal/purchases"
	"github.com/tonipcv/kr-saas-sub001/internal/reconciler"
	"github.com/tonipcv/kr-saas-sub001/pkg/db/models"
	"github.com/tonipcv/kr-saas-sub001/pkg/enums"
	pkgerrors "github.com/tonipcv/kr-saas-sub001/pkg/errors"
	"github.com/tonipcv/kr-saas-sub001/pkg/logger"
	"github.com/tonipcv/kr-saas-sub001/pkg/mailer"
	"github.com/tonipcv/kr-saas-sub001/pkg/outbox"
)

// EmailSender is the slice of the mailer the dispatcher needs.
type EmailSender interface {
	Send(ctx context.Context, msg mailer.Message) error
}

// Result records the outcome of one named action for one transition.
type Result struct {
	Action string
	Err    error
}

// DispatcherParams wires the dispatcher's collaborators.
type DispatcherParams struct {
	DB        *gorm.DB
	Mailer    EmailSender
	Purchases purchases.Repository
	Customers customers.Repository
	Outbox    *outbox.Service
	Logger    *logger.Logger

	// Observer receives the per-action results after each dispatch.
	// Used by tests; may be nil.
	Observer func(results []Result)
}

// Dispatcher runs the post-commit consequences of a status transition as
// an ordered list of independently-fallible actions. A failing action is
// logged and recorded; it never stops the others and never surfaces to
// the provider-facing response.
type Dispatcher struct {
	db        *gorm.DB
	mailer    EmailSender
	purchases purchases.Repository
	customers customers.Repository
	outbox    *outbox.Service
	logg      *logger.Logger
	observer  func(results []Result)
}

func NewDispatcher(params DispatcherParams) (*Dispatcher, error) {
	if params.DB == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "db required")
	}
	if params.Purchases == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "purchases repo required")
	}
	if params.Logger == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "logger required")
	}
	return &Dispatcher{
		db:        params.DB,
		mailer:    params.Mailer,
		purchases: params.Purchases,
		customers: params.Customers,
		outbox:    params.Outbox,
		logg:      params.Logger,
		observer:  params.Observer,
	}, nil
}

type action struct {
	name string
	run  func(ctx context.Context, t reconciler.Transition) error
}

// Dispatch implements reconciler.SideEffectDispatcher.
func (d *Dispatcher) Dispatch(ctx context.Context, t reconciler.Transition) {
	var actions []action

	switch t.NewStatus {
	case enums.TransactionStatusPaid:
		actions = []action{
			{"payment_confirmed_email", d.sendConfirmedEmail},
			{"purchase_ensure", d.ensurePurchase},
			{"customer_mirror", d.mirrorCustomer},
			{"tenant_webhook", d.emitTenantEvent},
		}
	case enums.TransactionStatusCanceled, enums.TransactionStatusFailed:
		actions = []action{
			{"payment_not_completed_email", d.sendNotCompletedEmail},
			{"purchase_cancel", d.cancelPurchase},
			{"tenant_webhook", d.emitTenantEvent},
		}
	case enums.TransactionStatusRefunded:
		actions = []action{
			{"purchase_refund", d.refundPurchase},
			{"tenant_webhook", d.emitTenantEvent},
		}
	default:
		return
	}

	results := make([]Result, 0, len(actions))
	for _, act := range actions {
		err := d.runContained(ctx, act, t)
		if err != nil {
			fields := map[string]any{"action": act.name, "status": t.NewStatus}
			d.logg.Error(d.logg.WithFields(ctx, fields), "side effect failed", err)
		}
		results = append(results, Result{Action: act.name, Err: err})
	}
	if d.observer != nil {
		d.observer(results)
	}
}

// runContained gives each action its own failure boundary, panics
// included.
func (d *Dispatcher) runContained(ctx context.Context, act action, t reconciler.Transition) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic in side effect %s: %v", act.name, r)
		}
	}()
	return act.run(ctx, t)
}

func (d *Dispatcher) sendConfirmedEmail(ctx context.Context, t reconciler.Transition) error {
	clinicName, productName := d.emailContext(ctx, t)
	body := "Recebemos a confirmação do seu pagamento"
	if productName != "" {
		body += fmt.Sprintf(" de %s", productName)
	}
	if clinicName != "" {
		body += fmt.Sprintf(" para %s", clinicName)
	}
	body += ". Obrigado!"
	return d.sendEmail(ctx, t, "Pagamento confirmado", body)
}

func (d *Dispatcher) sendNotCompletedEmail(ctx context.Context, t reconciler.Transition) error {
	clinicName, _ := d.emailContext(ctx, t)
	body := "Seu pagamento não foi concluído. Verifique os dados e tente novamente."
	if clinicName != "" {
		body = fmt.Sprintf("Seu pagamento para %s não foi concluído. Verifique os dados e tente novamente.", clinicName)
	}
	return d.sendEmail(ctx, t, "Pagamento não concluído", body)
}

func (d *Dispatcher) sendEmail(ctx context.Context, t reconciler.Transition, subject, body string) error {
	if d.mailer == nil {
		return nil
	}
	recipient, name := d.resolveRecipient(ctx, t)
	if recipient == "" {
		d.logg.Warn(ctx, "no recipient email resolvable, skipping notification")
		return nil
	}
	return d.mailer.Send(ctx, mailer.Message{
		ToName:  name,
		ToEmail: recipient,
		Subject: subject,
		Text:    body,
	})
}

// resolveRecipient walks the notification address chain: the payload's
// customer email, the checkout metadata's buyer email, and finally the
// transaction's patient profile and its user account.
func (d *Dispatcher) resolveRecipient(ctx context.Context, t reconciler.Transition) (string, string) {
	if t.Event.CustomerEmail != "" {
		return t.Event.CustomerEmail, t.Event.CustomerName
	}
	if buyer := t.Event.MetadataValue("buyerEmail"); buyer != "" {
		return buyer, t.Event.CustomerName
	}
	if t.Transaction == nil || t.Transaction.PatientProfileID == nil {
		return "", ""
	}

	var profile models.PatientProfile
	err := d.db.WithContext(ctx).
		First(&profile, "id = ?", *t.Transaction.PatientProfileID).Error
	if err != nil {
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			d.logg.Error(ctx, "patient profile lookup failed", err)
		}
		return "", ""
	}

	var user models.User
	err = d.db.WithContext(ctx).First(&user, "id = ?", profile.UserID).Error
	if err != nil {
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			d.logg.Error(ctx, "user lookup failed", err)
		}
		return "", ""
	}
	return user.Email, user.Name
}

// emailContext resolves the display names referenced in notification
// bodies. Best effort: a missing row just leaves the name out.
func (d *Dispatcher) emailContext(ctx context.Context, t reconciler.Transition) (string, string) {
	var clinicName, productName string
	if t.Transaction == nil {
		return "", ""
	}
	if t.Transaction.ClinicID != nil {
		var clinic models.Clinic
		if err := d.db.WithContext(ctx).First(&clinic, "id = ?", *t.Transaction.ClinicID).Error; err == nil {
			clinicName = clinic.Name
		}
	}
	if t.Transaction.ProductID != nil {
		var product models.Product
		if err := d.db.WithContext(ctx).First(&product, "id = ?", *t.Transaction.ProductID).Error; err == nil {
			productName = product.Name
		}
	}
	return clinicName, productName
}

func (d *Dispatcher) ensurePurchase(ctx context.Context, t reconciler.Transition) error {
	key := purchaseKey(t)
	if key == "" {
		return errors.New("no idempotency key for purchase")
	}
	tx := t.Transaction
	purchase := &models.Purchase{
		ExternalIdempotencyKey: key,
		Status:                 enums.PurchaseStatusCompleted,
		CustomerID:             tx.CustomerID,
		ClinicID:               tx.ClinicID,
		ProductID:              tx.ProductID,
		TransactionID:          &tx.ID,
		AmountCents:            tx.AmountCents,
		Currency:               tx.Currency,
	}
	created, err := d.purchases.Ensure(ctx, purchase)
	if err != nil {
		return err
	}
	if created {
		d.logg.Info(d.logg.WithField(ctx, "purchase_key", key), "purchase recorded")
	}
	return nil
}

func (d *Dispatcher) cancelPurchase(ctx context.Context, t reconciler.Transition) error {
	_, err := d.purchases.UpdateStatusByKey(ctx, purchaseKey(t), enums.PurchaseStatusCanceled)
	return err
}

func (d *Dispatcher) refundPurchase(ctx context.Context, t reconciler.Transition) error {
	_, err := d.purchases.UpdateStatusByKey(ctx, purchaseKey(t), enums.PurchaseStatusRefunded)
	return err
}

func purchaseKey(t reconciler.Transition) string {
	if t.Event.OrderID != "" {
		return t.Event.OrderID
	}
	if t.Transaction.ProviderOrderID != nil && *t.Transaction.ProviderOrderID != "" {
		return *t.Transaction.ProviderOrderID
	}
	if t.Event.ChargeID != "" {
		return t.Event.ChargeID
	}
	if t.Transaction.ProviderChargeID != nil {
		return *t.Transaction.ProviderChargeID
	}
	return ""
}

// mirrorCustomer copies provider-side identity into the unified customer
// tables. Needs a merchant scope, resolved through the clinic.
func (d *Dispatcher) mirrorCustomer(ctx context.Context, t reconciler.Transition) error {
	if d.customers == nil || t.Event.CustomerEmail == "" {
		return nil
	}
	if t.Transaction.ClinicID == nil {
		return nil
	}

	var merchant models.Merchant
	err := d.db.WithContext(ctx).
		Where("clinic_id = ? AND provider = ?", *t.Transaction.ClinicID, t.Event.Provider).
		First(&merchant).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil
	}
	if err != nil {
		return err
	}

	_, err = d.customers.Mirror(ctx, customers.MirrorParams{
		MerchantID:         merchant.ID,
		Provider:           t.Event.Provider,
		Email:              t.Event.CustomerEmail,
		Name:               t.Event.CustomerName,
		Phone:              t.Event.CustomerPhone,
		Document:           t.Event.CustomerDocument,
		ProviderCustomerID: t.Event.ProviderCustomerID,
		ProviderCardID:     t.Event.ProviderCardID,
		CardBrand:          t.Event.CardBrand,
		CardLast4:          t.Event.CardLast4,
		CardExpMonth:       t.Event.CardExpMonth,
		CardExpYear:        t.Event.CardExpYear,
	})
	return err
}

func (d *Dispatcher) emitTenantEvent(ctx context.Context, t reconciler.Transition) error {
	if d.outbox == nil {
		return nil
	}
	eventType, ok := tenantEventType(t.NewStatus)
	if !ok {
		return nil
	}
	payload := map[string]any{
		"transactionId": t.Transaction.ID.String(),
		"provider":      t.Event.Provider.Canonical(),
		"status":        t.NewStatus.Canonical(),
	}
	return d.db.Transaction(func(tx *gorm.DB) error {
		return d.outbox.EmitIfNotExists(ctx, tx, outbox.DomainEvent{
			EventType:     eventType,
			AggregateType: enums.OutboxAggregateTransaction,
			AggregateID:   t.Transaction.ID,
			ClinicID:      t.Transaction.ClinicID,
			Data:          payload,
			Version:       1,
		})
	})
}

func tenantEventType(st enums.TransactionStatus) (enums.OutboxEventType, bool) {
	switch st {
	case enums.TransactionStatusPaid:
		return enums.OutboxEventTransactionPaid, true
	case enums.TransactionStatusRefunded:
		return enums.OutboxEventTransactionRefunded, true
	case enums.TransactionStatusCanceled:
		return enums.OutboxEventTransactionCanceled, true
	case enums.TransactionStatusFailed:
		return enums.OutboxEventTransactionFailed, true
	default:
		return "", false
	}
}

var _ reconciler.SideEffectDispatcher = (*Dispatcher)(nil)
