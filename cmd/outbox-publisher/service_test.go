package main

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/tonipcv/kr-saas-sub001/pkg/config"
	"github.com/tonipcv/kr-saas-sub001/pkg/db/models"
	"github.com/tonipcv/kr-saas-sub001/pkg/enums"
	"github.com/tonipcv/kr-saas-sub001/pkg/logger"
)

type fakeRepo struct {
	events    []models.OutboxEvent
	endpoints map[uuid.UUID][]models.WebhookEndpoint
	published []uuid.UUID
	failed    []uuid.UUID
}

func (r *fakeRepo) FetchUnpublishedForPublish(limit, maxAttempts int) ([]models.OutboxEvent, error) {
	if limit > len(r.events) {
		limit = len(r.events)
	}
	return r.events[:limit], nil
}

func (r *fakeRepo) ActiveEndpoints(clinicID uuid.UUID) ([]models.WebhookEndpoint, error) {
	return r.endpoints[clinicID], nil
}

func (r *fakeRepo) MarkPublished(id uuid.UUID) error {
	r.published = append(r.published, id)
	return nil
}

func (r *fakeRepo) MarkFailed(id uuid.UUID, err error) error {
	r.failed = append(r.failed, id)
	return nil
}

type fakeDeliverer struct {
	errs      []error
	delivered []string
}

func (d *fakeDeliverer) Deliver(ctx context.Context, endpoint models.WebhookEndpoint, event models.OutboxEvent) error {
	d.delivered = append(d.delivered, endpoint.URL)
	if len(d.errs) == 0 {
		return nil
	}
	err := d.errs[0]
	d.errs = d.errs[1:]
	return err
}

func newTestService(t *testing.T, repo outboxRepository, del deliverer) *Service {
	t.Helper()
	service, err := NewService(ServiceParams{
		Config:     &config.Config{},
		Logger:     logger.New(logger.Options{ServiceName: "outbox-publisher-test"}),
		Repository: repo,
		Deliverer:  del,
	})
	if err != nil {
		t.Fatalf("new service: %v", err)
	}
	return service
}

func testEvent(clinicID *uuid.UUID) models.OutboxEvent {
	payload, _ := json.Marshal(map[string]any{"version": 1, "data": map[string]any{}})
	return models.OutboxEvent{
		ID:            uuid.New(),
		EventType:     enums.OutboxEventTransactionPaid,
		AggregateType: enums.OutboxAggregateTransaction,
		AggregateID:   uuid.New(),
		ClinicID:      clinicID,
		Payload:       payload,
		CreatedAt:     time.Now(),
	}
}

func TestServiceBatchContinuesAfterEndpointFailure(t *testing.T) {
	clinic := uuid.New()
	first := testEvent(&clinic)
	second := testEvent(&clinic)
	repo := &fakeRepo{
		events: []models.OutboxEvent{first, second},
		endpoints: map[uuid.UUID][]models.WebhookEndpoint{
			clinic: {{ID: uuid.New(), ClinicID: clinic, URL: "https://tenant.example/hook", Active: true}},
		},
	}
	del := &fakeDeliverer{errs: []error{errors.New("transient")}}
	service := newTestService(t, repo, del)

	processed, err := service.processBatch(context.Background())
	if err != nil {
		t.Fatalf("process batch returned error: %v", err)
	}
	if !processed {
		t.Fatalf("expected batch to report processed")
	}
	if got := len(repo.failed); got != 1 {
		t.Fatalf("unexpected number of failed rows: %d", got)
	}
	if repo.failed[0] != first.ID {
		t.Fatalf("failed row recorded wrong ID")
	}
	if got := len(repo.published); got != 1 {
		t.Fatalf("unexpected number of published rows: %d", got)
	}
	if repo.published[0] != second.ID {
		t.Fatalf("published row recorded wrong ID")
	}
}

func TestServiceSettlesEventWithoutClinicOrEndpoints(t *testing.T) {
	clinic := uuid.New()
	clinicLess := testEvent(nil)
	orphan := testEvent(&clinic)
	repo := &fakeRepo{
		events:    []models.OutboxEvent{clinicLess, orphan},
		endpoints: map[uuid.UUID][]models.WebhookEndpoint{},
	}
	del := &fakeDeliverer{}
	service := newTestService(t, repo, del)

	if _, err := service.processBatch(context.Background()); err != nil {
		t.Fatalf("process batch returned error: %v", err)
	}
	if got := len(del.delivered); got != 0 {
		t.Fatalf("expected no deliveries, got %d", got)
	}
	if got := len(repo.published); got != 2 {
		t.Fatalf("expected both events settled, got %d", got)
	}
}

func TestServicePartialEndpointFailureReschedulesEvent(t *testing.T) {
	clinic := uuid.New()
	event := testEvent(&clinic)
	repo := &fakeRepo{
		events: []models.OutboxEvent{event},
		endpoints: map[uuid.UUID][]models.WebhookEndpoint{
			clinic: {
				{ID: uuid.New(), ClinicID: clinic, URL: "https://a.example/hook", Active: true},
				{ID: uuid.New(), ClinicID: clinic, URL: "https://b.example/hook", Active: true},
			},
		},
	}
	del := &fakeDeliverer{errs: []error{nil, errors.New("b is down")}}
	service := newTestService(t, repo, del)

	if _, err := service.processBatch(context.Background()); err != nil {
		t.Fatalf("process batch returned error: %v", err)
	}
	if got := len(repo.published); got != 0 {
		t.Fatalf("expected event to stay unpublished, got %d published", got)
	}
	if got := len(repo.failed); got != 1 {
		t.Fatalf("expected one failure mark, got %d", got)
	}
}

func TestHTTPDelivererSignsAndPosts(t *testing.T) {
	clinic := uuid.New()
	event := testEvent(&clinic)
	secret := "whsec_tenant"

	var gotSignature, gotEventHeader string
	var gotBody []byte
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotSignature = r.Header.Get("X-Hub-Signature-256")
		gotEventHeader = r.Header.Get("X-Webhook-Event")
		gotBody, _ = io.ReadAll(r.Body)
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	del := &httpDeliverer{client: srv.Client()}
	endpoint := models.WebhookEndpoint{ID: uuid.New(), ClinicID: clinic, URL: srv.URL, Secret: secret, Active: true}
	if err := del.Deliver(context.Background(), endpoint, event); err != nil {
		t.Fatalf("deliver returned error: %v", err)
	}

	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(event.Payload)
	want := "sha256=" + hex.EncodeToString(mac.Sum(nil))
	if gotSignature != want {
		t.Fatalf("signature mismatch: got %s want %s", gotSignature, want)
	}
	if gotEventHeader != "transaction.paid" {
		t.Fatalf("unexpected event header: %s", gotEventHeader)
	}
	if string(gotBody) != string(event.Payload) {
		t.Fatalf("payload not delivered verbatim")
	}
}

func TestHTTPDelivererRejectsNon2xx(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	del := &httpDeliverer{client: srv.Client()}
	clinic := uuid.New()
	endpoint := models.WebhookEndpoint{ID: uuid.New(), ClinicID: clinic, URL: srv.URL, Secret: "s", Active: true}
	if err := del.Deliver(context.Background(), endpoint, testEvent(&clinic)); err == nil {
		t.Fatalf("expected error for 502 response")
	}
}
