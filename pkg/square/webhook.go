package square

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"strings"
)

// SignatureHeader carries the base64 HMAC-SHA256 of notification URL + body.
const SignatureHeader = "X-Square-Hmacsha256-Signature"

// VerifySignature checks a Square webhook signature in constant time.
func VerifySignature(payload []byte, notificationURL, signatureKey, header string) bool {
	header = strings.TrimSpace(header)
	if header == "" || signatureKey == "" {
		return false
	}
	expected := Sign(payload, notificationURL, signatureKey)
	return hmac.Equal([]byte(expected), []byte(header))
}

// Sign produces the signature Square would send for payload.
func Sign(payload []byte, notificationURL, signatureKey string) string {
	mac := hmac.New(sha256.New, []byte(signatureKey))
	mac.Write([]byte(notificationURL))
	mac.Write(payload)
	return base64.StdEncoding.EncodeToString(mac.Sum(nil))
}

// Notification is the subset of the Square event envelope reconciliation needs.
type Notification struct {
	EventID    string
	Type       string
	ObjectType string
	// ObjectID is the payment id for payment events and the order id for order events.
	ObjectID string
	// PaymentID is set for refund events, which reference the refunded payment.
	PaymentID string
}

type envelope struct {
	MerchantID string `json:"merchant_id"`
	Type       string `json:"type"`
	EventID    string `json:"event_id"`
	Data       struct {
		Type   string `json:"type"`
		ID     string `json:"id"`
		Object struct {
			Refund *struct {
				PaymentID string `json:"payment_id"`
			} `json:"refund"`
		} `json:"object"`
	} `json:"data"`
}

// ParseNotification decodes a Square event body.
func ParseNotification(payload []byte) (*Notification, error) {
	var env envelope
	if err := json.Unmarshal(payload, &env); err != nil {
		return nil, fmt.Errorf("decode square event: %w", err)
	}
	if strings.TrimSpace(env.Type) == "" {
		return nil, fmt.Errorf("square event type missing")
	}
	n := &Notification{
		EventID:    strings.TrimSpace(env.EventID),
		Type:       strings.ToLower(strings.TrimSpace(env.Type)),
		ObjectType: strings.ToLower(strings.TrimSpace(env.Data.Type)),
		ObjectID:   strings.TrimSpace(env.Data.ID),
	}
	if env.Data.Object.Refund != nil {
		n.PaymentID = strings.TrimSpace(env.Data.Object.Refund.PaymentID)
	}
	return n, nil
}
