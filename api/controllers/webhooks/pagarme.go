package webhooks

import (
	"context"
	"io"
	"net/http"

	"github.com/tonipcv/kr-saas-sub001/api/responses"
	"github.com/tonipcv/kr-saas-sub001/internal/reconciler"
	hooks "github.com/tonipcv/kr-saas-sub001/internal/webhooks"
	wpagarme "github.com/tonipcv/kr-saas-sub001/internal/webhooks/pagarme"
	pkgerrors "github.com/tonipcv/kr-saas-sub001/pkg/errors"
	"github.com/tonipcv/kr-saas-sub001/pkg/logger"
)

const maxWebhookBody = 1 << 20

// signatureHeaders are checked in order; Pagar.me and relay setups
// disagree on the header name.
var signatureHeaders = []string{"X-Hub-Signature-256", "X-Hub-Signature", "X-Webhook-Signature"}

// PagarmeAck answers provider endpoint verification pings.
func PagarmeAck() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		responses.WriteRaw(w, http.StatusOK, map[string]bool{"ok": true})
	}
}

// PagarmeWebhook receives Pagar.me deliveries. A bad signature is the
// only condition that may reject the request; once the delivery is
// recorded the response is 200 no matter what processing does.
func PagarmeWebhook(ing *hooks.Ingestor, secret string, logg *logger.Logger) http.HandlerFunc {
	parser := func(body []byte, _ string) (reconciler.Event, error) {
		return wpagarme.Parse(body)
	}
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()

		body, err := io.ReadAll(io.LimitReader(r.Body, maxWebhookBody))
		if err != nil {
			responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "read request body"))
			return
		}

		if err := checkSignature(ctx, secret, body, r, logg); err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}

		ack, err := ing.Ingest(ctx, parser, body, r.Header.Get("Content-Type"))
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		responses.WriteRaw(w, http.StatusOK, ack)
	}
}

// checkSignature enforces the HMAC when a secret is configured. An empty
// secret skips the check, loudly, so a misconfigured production deploy
// shows up in the logs on every delivery.
func checkSignature(ctx context.Context, secret string, body []byte, r *http.Request, logg *logger.Logger) error {
	if secret == "" {
		logg.Warn(ctx, "webhook signature verification disabled; no secret configured")
		return nil
	}
	header := ""
	for _, name := range signatureHeaders {
		if v := r.Header.Get(name); v != "" {
			header = v
			break
		}
	}
	return hooks.VerifySignature(secret, body, header)
}
