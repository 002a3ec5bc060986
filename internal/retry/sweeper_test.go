package retry

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/tonipcv/kr-saas-sub001/internal/reconciler"
	"github.com/tonipcv/kr-saas-sub001/internal/webhookevents"
	wpagarme "github.com/tonipcv/kr-saas-sub001/internal/webhooks/pagarme"
	"github.com/tonipcv/kr-saas-sub001/pkg/db/models"
	"github.com/tonipcv/kr-saas-sub001/pkg/enums"
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

func newTestSweeper(t *testing.T, db *gorm.DB) *Sweeper {
	t.Helper()
	logg := logger.New(logger.Options{ServiceName: "test", Level: logger.ParseLevel("error")})
	rec, err := reconciler.NewService(reconciler.ServiceParams{
		Repo:     reconciler.NewRepository(db),
		Resolver: reconciler.NewSplitResolver(db),
		Logger:   logg,
	})
	require.NoError(t, err)
	sweeper, err := NewSweeper(SweeperParams{
		Events:     webhookevents.NewRepository(db),
		Reconciler: rec,
		Parsers: map[enums.Provider]Parser{
			enums.ProviderPagarme: func(body []byte, _ string) (reconciler.Event, error) {
				return wpagarme.Parse(body)
			},
		},
		Logger:      logg,
		BackoffBase: time.Minute,
		BackoffCap:  6 * time.Hour,
	})
	require.NoError(t, err)
	return sweeper
}

func parkEvent(t *testing.T, db *gorm.DB, raw string, attempts int) models.WebhookEvent {
	t.Helper()
	result, row, err := webhookevents.NewRepository(db).Record(context.Background(), webhookevents.RecordParams{
		Provider:  enums.ProviderPagarme,
		HookID:    "hook_retry",
		EventType: "order.paid",
		Raw:       []byte(raw),
	})
	require.NoError(t, err)
	require.Equal(t, webhookevents.RecordInserted, result)

	past := time.Now().Add(-time.Minute)
	require.NoError(t, db.Model(&models.WebhookEvent{}).Where("id = ?", row.ID).Updates(map[string]any{
		"is_retryable":  true,
		"next_retry_at": past,
		"attempt_count": attempts,
	}).Error)
	require.NoError(t, db.First(row, "id = ?", row.ID).Error)
	return *row
}

func TestSweepOnceProcessesDueEvent(t *testing.T) {
	db := newTestDB(t)
	sweeper := newTestSweeper(t, db)
	parkEvent(t, db, `{"id":"hook_retry","type":"order.paid","data":{"id":"or_retry","status":"paid","amount":5000}}`, 1)

	n, err := sweeper.SweepOnce(context.Background())
	require.NoError(t, err)
	require.Equal(t, 1, n)

	var event models.WebhookEvent
	require.NoError(t, db.First(&event, "hook_id = ?", "hook_retry").Error)
	require.NotNil(t, event.ProcessedAt)
	require.False(t, event.IsRetryable)

	var tx models.PaymentTransaction
	require.NoError(t, db.First(&tx, "provider_order_id = ?", "or_retry").Error)
	require.Equal(t, enums.TransactionStatusPaid, tx.Status)
}

func TestSweepOnceReschedulesFailureWithBackoff(t *testing.T) {
	db := newTestDB(t)
	sweeper := newTestSweeper(t, db)
	parkEvent(t, db, `{"id":"hook_retry","type":"order.paid","data":{"id":"or_fail","status":"paid","amount":5000}}`, 2)
	require.NoError(t, db.Migrator().DropTable(&models.PaymentTransaction{}))

	before := time.Now()
	n, err := sweeper.SweepOnce(context.Background())
	require.NoError(t, err)
	require.Equal(t, 1, n)

	var event models.WebhookEvent
	require.NoError(t, db.First(&event, "hook_id = ?", "hook_retry").Error)
	require.Nil(t, event.ProcessedAt)
	require.Equal(t, 3, event.AttemptCount)
	require.NotNil(t, event.NextRetryAt)
	// Two prior attempts: backoff is base*5*5 = 25 minutes.
	require.WithinDuration(t, before.Add(25*time.Minute), *event.NextRetryAt, 5*time.Second)
}

func TestSweepOnceSkipsExhaustedEvents(t *testing.T) {
	db := newTestDB(t)
	sweeper := newTestSweeper(t, db)
	parkEvent(t, db, `{"id":"hook_retry","type":"order.paid","data":{"id":"or_done","status":"paid","amount":5000}}`, 10)

	n, err := sweeper.SweepOnce(context.Background())
	require.NoError(t, err)
	require.Zero(t, n)

	var count int64
	require.NoError(t, db.Model(&models.PaymentTransaction{}).Count(&count).Error)
	require.Zero(t, count)
}

func TestBackoffCapsAtConfiguredCeiling(t *testing.T) {
	db := newTestDB(t)
	sweeper := newTestSweeper(t, db)

	require.Equal(t, time.Minute, sweeper.backoff(0))
	require.Equal(t, 5*time.Minute, sweeper.backoff(1))
	require.Equal(t, 125*time.Minute, sweeper.backoff(3))
	require.Equal(t, 6*time.Hour, sweeper.backoff(4))
	require.Equal(t, 6*time.Hour, sweeper.backoff(50))
}
