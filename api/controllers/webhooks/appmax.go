package webhooks

import (
	"io"
	"net/http"

	"github.com/tonipcv/kr-saas-sub001/api/responses"
	"github.com/tonipcv/kr-saas-sub001/internal/reconciler"
	hooks "github.com/tonipcv/kr-saas-sub001/internal/webhooks"
	wappmax "github.com/tonipcv/kr-saas-sub001/internal/webhooks/appmax"
	pkgerrors "github.com/tonipcv/kr-saas-sub001/pkg/errors"
	"github.com/tonipcv/kr-saas-sub001/pkg/logger"
)

// AppmaxAck answers provider endpoint verification pings.
func AppmaxAck() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		responses.WriteRaw(w, http.StatusOK, map[string]bool{"ok": true})
	}
}

// AppmaxWebhook receives AppMax deliveries, JSON or form encoded.
func AppmaxWebhook(ing *hooks.Ingestor, secret string, logg *logger.Logger) http.HandlerFunc {
	parser := func(body []byte, contentType string) (reconciler.Event, error) {
		return wappmax.Parse(body, contentType)
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
