package webhooks

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/tonipcv/kr-saas-sub001/internal/reconciler"
	"github.com/tonipcv/kr-saas-sub001/internal/webhookevents"
	wpagarme "github.com/tonipcv/kr-saas-sub001/internal/webhooks/pagarme"
	"github.com/tonipcv/kr-saas-sub001/pkg/db/models"
	"github.com/tonipcv/kr-saas-sub001/pkg/logger"
)

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open("file::memory:"), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(
		&models.WebhookEvent{},
		&models.PaymentTransaction{},
		&models.CustomerSubscription{},
		&models.Merchant{},
	))
	return db
}

func newTestIngestor(t *testing.T, db *gorm.DB) *Ingestor {
	t.Helper()
	logg := logger.New(logger.Options{ServiceName: "test", Level: logger.ParseLevel("error")})
	rec, err := reconciler.NewService(reconciler.ServiceParams{
		Repo:     reconciler.NewRepository(db),
		Resolver: reconciler.NewSplitResolver(db),
		Logger:   logg,
	})
	require.NoError(t, err)
	ing, err := NewIngestor(IngestorParams{
		Events:     webhookevents.NewRepository(db),
		Reconciler: rec,
		Logger:     logg,
	})
	require.NoError(t, err)
	return ing
}

func pagarmeParser(body []byte, _ string) (reconciler.Event, error) {
	return wpagarme.Parse(body)
}

func TestIngestRecordsAndProcesses(t *testing.T) {
	db := newTestDB(t)
	ing := newTestIngestor(t, db)
	body := []byte(`{"id":"hook_ok","type":"order.paid","data":{"id":"or_ok","status":"paid","amount":4200,"currency":"brl"}}`)

	ack, err := ing.Ingest(context.Background(), pagarmeParser, body, "application/json")
	require.NoError(t, err)
	require.True(t, ack.Received)
	require.False(t, ack.WillRetry)

	var event models.WebhookEvent
	require.NoError(t, db.First(&event, "hook_id = ?", "hook_ok").Error)
	require.NotNil(t, event.ProcessedAt)
	require.NotNil(t, event.ResourceOrderID)
	require.Equal(t, "or_ok", *event.ResourceOrderID)

	var tx models.PaymentTransaction
	require.NoError(t, db.First(&tx, "provider_order_id = ?", "or_ok").Error)
	require.Equal(t, "paid", tx.Status.String())
}

func TestIngestDuplicateDeliveryShortCircuits(t *testing.T) {
	db := newTestDB(t)
	ing := newTestIngestor(t, db)
	body := []byte(`{"id":"hook_dup","type":"order.paid","data":{"id":"or_dup","status":"paid","amount":1000}}`)

	_, err := ing.Ingest(context.Background(), pagarmeParser, body, "application/json")
	require.NoError(t, err)

	ack, err := ing.Ingest(context.Background(), pagarmeParser, body, "application/json")
	require.NoError(t, err)
	require.True(t, ack.Received)
	require.True(t, ack.Duplicate)

	var count int64
	require.NoError(t, db.Model(&models.WebhookEvent{}).Where("hook_id = ?", "hook_dup").Count(&count).Error)
	require.Equal(t, int64(1), count)
}

func TestIngestAbsorbsMalformedBody(t *testing.T) {
	db := newTestDB(t)
	ing := newTestIngestor(t, db)

	ack, err := ing.Ingest(context.Background(), pagarmeParser, []byte(`{"id": "hook":`), "application/json")
	require.NoError(t, err)
	require.True(t, ack.Received)

	var count int64
	require.NoError(t, db.Model(&models.WebhookEvent{}).Count(&count).Error)
	require.Zero(t, count)
}

func TestIngestParksProcessingFailureForRetry(t *testing.T) {
	db := newTestDB(t)
	ing := newTestIngestor(t, db)
	// Dropping the transactions table makes the authoritative write fail
	// after the delivery is already durable.
	require.NoError(t, db.Migrator().DropTable(&models.PaymentTransaction{}))

	body := []byte(`{"id":"hook_fail","type":"order.paid","data":{"id":"or_fail","status":"paid","amount":1000}}`)
	ack, err := ing.Ingest(context.Background(), pagarmeParser, body, "application/json")
	require.NoError(t, err)
	require.True(t, ack.Received)
	require.True(t, ack.WillRetry)

	var event models.WebhookEvent
	require.NoError(t, db.First(&event, "hook_id = ?", "hook_fail").Error)
	require.Nil(t, event.ProcessedAt)
	require.True(t, event.IsRetryable)
	require.NotNil(t, event.NextRetryAt)
	require.Equal(t, 1, event.AttemptCount)
	require.NotNil(t, event.ProcessingError)
	require.NotEmpty(t, *event.ProcessingError)

	due, err := webhookevents.NewRepository(db).DueForRetry(context.Background(), 10, 10)
	require.NoError(t, err)
	require.Len(t, due, 1)
	require.Equal(t, "hook_fail", due[0].HookID)
}

func TestIngestAsyncParksWithoutProcessing(t *testing.T) {
	db := newTestDB(t)
	logg := logger.New(logger.Options{ServiceName: "test", Level: logger.ParseLevel("error")})
	rec, err := reconciler.NewService(reconciler.ServiceParams{
		Repo:     reconciler.NewRepository(db),
		Resolver: reconciler.NewSplitResolver(db),
		Logger:   logg,
	})
	require.NoError(t, err)
	ing, err := NewIngestor(IngestorParams{
		Events:     webhookevents.NewRepository(db),
		Reconciler: rec,
		Logger:     logg,
		Async:      true,
	})
	require.NoError(t, err)

	body := []byte(`{"id":"hook_async","type":"order.paid","data":{"id":"or_async","status":"paid","amount":1000}}`)
	ack, err := ing.Ingest(context.Background(), pagarmeParser, body, "application/json")
	require.NoError(t, err)
	require.True(t, ack.WillRetry)

	var event models.WebhookEvent
	require.NoError(t, db.First(&event, "hook_id = ?", "hook_async").Error)
	require.Nil(t, event.ProcessedAt)
	require.True(t, event.IsRetryable)
	require.NotNil(t, event.NextRetryAt)

	var count int64
	require.NoError(t, db.Model(&models.PaymentTransaction{}).Count(&count).Error)
	require.Zero(t, count)
}
