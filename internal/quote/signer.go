package quote

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"strings"
	"time"

	pkgerrors "github.com/angelmondragon/storefront-core/pkg/errors"
)

const (
	DefaultTTL     = 15 * time.Minute
	maxFutureSkew  = time.Minute
	minSecretBytes = 16
)

// Quote is a signed shipping offer. Carrier, ServiceName and EstimatedDays are
// display-only and outside the signature.
type Quote struct {
	ServiceID     string `json:"service_id" validate:"required"`
	PriceCents    int64  `json:"price" validate:"gte=0"`
	ToPostalCode  string `json:"to_postal_code" validate:"required"`
	Timestamp     int64  `json:"timestamp" validate:"required"`
	CartID        string `json:"cart_id" validate:"required"`
	CartHash      string `json:"cart_hash" validate:"required"`
	Signature     string `json:"signature" validate:"required"`
	Carrier       string `json:"carrier,omitempty"`
	ServiceName   string `json:"service_name,omitempty"`
	EstimatedDays int    `json:"estimated_days,omitempty"`
}

// signedFields fixes the field order and types of the signed payload.
type signedFields struct {
	ServiceID    string `json:"serviceId"`
	Price        int64  `json:"price"`
	ToPostalCode string `json:"toPostalCode"`
	Timestamp    int64  `json:"timestamp"`
	CartID       string `json:"cartId"`
	CartHash     string `json:"cartHash"`
}

func canonicalPayload(q Quote) ([]byte, error) {
	return json.Marshal(signedFields{
		ServiceID:    strings.TrimSpace(q.ServiceID),
		Price:        q.PriceCents,
		ToPostalCode: strings.TrimSpace(q.ToPostalCode),
		Timestamp:    q.Timestamp,
		CartID:       strings.TrimSpace(q.CartID),
		CartHash:     strings.TrimSpace(q.CartHash),
	})
}

// Signer signs and verifies quotes with a server-held secret.
type Signer struct {
	secret []byte
	ttl    time.Duration
	now    func() time.Time
}

func NewSigner(secret string, ttl time.Duration, now func() time.Time) (*Signer, error) {
	if len(strings.TrimSpace(secret)) < minSecretBytes {
		return nil, errors.New("quote secret must be at least 16 characters")
	}
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	if now == nil {
		now = time.Now
	}
	return &Signer{secret: []byte(secret), ttl: ttl, now: now}, nil
}

// Sign stamps the quote with the current time and signs it.
func (s *Signer) Sign(q Quote) (Quote, error) {
	q.ServiceID = strings.TrimSpace(q.ServiceID)
	q.ToPostalCode = strings.TrimSpace(q.ToPostalCode)
	q.CartID = strings.TrimSpace(q.CartID)
	q.Timestamp = s.now().Unix()
	sig, err := s.signature(q)
	if err != nil {
		return Quote{}, err
	}
	q.Signature = sig
	return q, nil
}

// Verify checks the signature and the age window. A quote exactly TTL old is still valid.
func (s *Signer) Verify(q Quote) error {
	expected, err := s.signature(q)
	if err != nil {
		return err
	}
	provided, err := hex.DecodeString(strings.TrimSpace(q.Signature))
	if err != nil {
		return pkgerrors.New(pkgerrors.CodeInvalidQuote, "quote signature is malformed")
	}
	want, _ := hex.DecodeString(expected)
	if !hmac.Equal(provided, want) {
		return pkgerrors.New(pkgerrors.CodeInvalidQuote, "quote signature mismatch")
	}

	issued := time.Unix(q.Timestamp, 0)
	now := s.now()
	if now.Sub(issued) > s.ttl {
		return pkgerrors.New(pkgerrors.CodeInvalidQuote, "quote expired")
	}
	if issued.Sub(now) > maxFutureSkew {
		return pkgerrors.New(pkgerrors.CodeInvalidQuote, "quote timestamp is in the future")
	}
	return nil
}

func (s *Signer) signature(q Quote) (string, error) {
	payload, err := canonicalPayload(q)
	if err != nil {
		return "", pkgerrors.Wrap(pkgerrors.CodeInternal, err, "encode quote")
	}
	mac := hmac.New(sha256.New, s.secret)
	mac.Write(payload)
	return hex.EncodeToString(mac.Sum(nil)), nil
}
