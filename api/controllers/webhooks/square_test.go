package webhooks

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	reconcile "github.com/angelmondragon/storefront-core/internal/webhooks"
	"github.com/angelmondragon/storefront-core/pkg/enums"
	pkgerrors "github.com/angelmondragon/storefront-core/pkg/errors"
	"github.com/angelmondragon/storefront-core/pkg/square"
)

const (
	testNotificationURL = "https://shop.example.test/api/v1/webhooks/square"
	testSignatureKey    = "sig-key"
)

type fakeReconciler struct {
	events []reconcile.Event
	result *reconcile.Result
	err    error
}

func (f *fakeReconciler) Handle(_ context.Context, provider enums.PaymentProvider, event reconcile.Event, _ []byte) (*reconcile.Result, error) {
	if provider != enums.PaymentProviderSquare {
		panic("unexpected provider " + provider)
	}
	f.events = append(f.events, event)
	if f.err != nil {
		return nil, f.err
	}
	if f.result != nil {
		return f.result, nil
	}
	return &reconcile.Result{Outcome: enums.WebhookOutcomeApplied}, nil
}

type fakeSigner struct{}

func (fakeSigner) SigningSecret() string   { return testSignatureKey }
func (fakeSigner) NotificationURL() string { return testNotificationURL }

func paymentEvent(t *testing.T) []byte {
	t.Helper()
	payload, err := json.Marshal(map[string]any{
		"merchant_id": "M1",
		"type":        "payment.updated",
		"event_id":    "evt-1",
		"data": map[string]any{
			"type": "payment",
			"id":   "pay-1",
		},
	})
	require.NoError(t, err)
	return payload
}

func post(handler http.Handler, payload []byte, signature string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, "/api/v1/webhooks/square", bytes.NewReader(payload))
	if signature != "" {
		req.Header.Set(square.SignatureHeader, signature)
	}
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	return rec
}

func TestSquareWebhookReconcilesSignedEvent(t *testing.T) {
	svc := &fakeReconciler{}
	payload := paymentEvent(t)

	rec := post(SquareWebhook(svc, fakeSigner{}, nil), payload, square.Sign(payload, testNotificationURL, testSignatureKey))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	require.Len(t, svc.events, 1)

	event, ok := svc.events[0].(reconcile.PaymentEvent)
	require.True(t, ok, "expected a payment event, got %T", svc.events[0])
	assert.Equal(t, "pay-1", event.PaymentID)
	assert.Equal(t, "evt-1", event.ExternalID())
}

func TestSquareWebhookRejectsBadSignature(t *testing.T) {
	svc := &fakeReconciler{}
	payload := paymentEvent(t)
	handler := SquareWebhook(svc, fakeSigner{}, nil)

	assert.Equal(t, http.StatusUnauthorized, post(handler, payload, "").Code)
	assert.Equal(t, http.StatusUnauthorized, post(handler, payload, square.Sign(payload, testNotificationURL, "other")).Code)
	assert.Empty(t, svc.events)
}

func TestSquareWebhookRejectsMalformedBody(t *testing.T) {
	svc := &fakeReconciler{}
	payload := []byte(`{"event_id":"x"}`)

	rec := post(SquareWebhook(svc, fakeSigner{}, nil), payload, square.Sign(payload, testNotificationURL, testSignatureKey))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Empty(t, svc.events)
}

func TestSquareWebhookAcknowledgesNonActionableOutcomes(t *testing.T) {
	for _, outcome := range []enums.WebhookOutcome{
		enums.WebhookOutcomeDeduped,
		enums.WebhookOutcomeIgnored,
		enums.WebhookOutcomeUnmatched,
		enums.WebhookOutcomeSkipped,
	} {
		svc := &fakeReconciler{result: &reconcile.Result{Outcome: outcome}}
		payload := paymentEvent(t)
		rec := post(SquareWebhook(svc, fakeSigner{}, nil), payload, square.Sign(payload, testNotificationURL, testSignatureKey))
		assert.Equal(t, http.StatusOK, rec.Code, outcome)
	}
}

func TestSquareWebhookFailuresAskForRetry(t *testing.T) {
	cases := []struct {
		err    error
		status int
	}{
		{pkgerrors.New(pkgerrors.CodeConflict, "order changed"), http.StatusInternalServerError},
		{pkgerrors.New(pkgerrors.CodeDependency, "square down"), http.StatusBadGateway},
		{pkgerrors.New(pkgerrors.CodeValidation, "event id missing"), http.StatusBadRequest},
	}
	for _, tc := range cases {
		svc := &fakeReconciler{err: tc.err}
		payload := paymentEvent(t)
		rec := post(SquareWebhook(svc, fakeSigner{}, nil), payload, square.Sign(payload, testNotificationURL, testSignatureKey))
		assert.Equal(t, tc.status, rec.Code, tc.err.Error())
	}
}
