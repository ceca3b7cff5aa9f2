package webhooks

import (
	"context"
	"io"
	"net/http"
	"strings"

	"github.com/angelmondragon/storefront-core/api/responses"
	reconcile "github.com/angelmondragon/storefront-core/internal/webhooks"
	"github.com/angelmondragon/storefront-core/pkg/enums"
	pkgerrors "github.com/angelmondragon/storefront-core/pkg/errors"
	"github.com/angelmondragon/storefront-core/pkg/logger"
	"github.com/angelmondragon/storefront-core/pkg/square"
)

const maxWebhookBody = 1 << 20

// Reconciler applies one parsed provider event.
type Reconciler interface {
	Handle(ctx context.Context, provider enums.PaymentProvider, event reconcile.Event, raw []byte) (*reconcile.Result, error)
}

type squareSigner interface {
	SigningSecret() string
	NotificationURL() string
}

// SquareWebhook verifies, parses and reconciles a Square notification.
// Square retries on any non-2xx, so only failures worth retrying get a 5xx.
func SquareWebhook(svc Reconciler, client squareSigner, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()

		if svc == nil || client == nil {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeInternal, "webhook service unavailable"))
			return
		}

		payload, err := io.ReadAll(io.LimitReader(r.Body, maxWebhookBody+1))
		if err != nil {
			responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "read request body"))
			return
		}
		if len(payload) > maxWebhookBody {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeValidation, "request body too large"))
			return
		}

		sigHeader := strings.TrimSpace(r.Header.Get(square.SignatureHeader))
		if sigHeader == "" {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeUnauthorized, "square signature missing"))
			return
		}
		if !square.VerifySignature(payload, client.NotificationURL(), client.SigningSecret(), sigHeader) {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeUnauthorized, "invalid square signature"))
			return
		}

		notification, err := square.ParseNotification(payload)
		if err != nil {
			responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "malformed square event"))
			return
		}

		result, err := svc.Handle(ctx, enums.PaymentProviderSquare, reconcile.FromSquare(notification), payload)
		if err != nil {
			responses.WriteError(ctx, logg, w, retryable(err))
			return
		}

		if logg != nil {
			logCtx := logg.WithFields(ctx, map[string]any{
				"event_id":   notification.EventID,
				"event_type": notification.Type,
				"outcome":    result.Outcome.String(),
			})
			logg.Info(logCtx, "square event handled")
		}
		responses.WriteSuccess(w, result)
	}
}

// retryable keeps malformed input a 400 and turns every other failure into a 5xx.
func retryable(err error) error {
	switch pkgerrors.CodeOf(err) {
	case pkgerrors.CodeValidation, pkgerrors.CodeDependency, pkgerrors.CodeInternal:
		return err
	}
	return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "reconcile square event")
}
