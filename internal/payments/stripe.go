package payments

import (
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/stripe/stripe-go/v76"
	"github.com/stripe/stripe-go/v76/paymentintent"
	"github.com/stripe/stripe-go/v76/webhook"
)

// Gateway is the top-up entry point into the external payment provider.
// The provider's own protocol (redirects, 3DS, retries) stays on its side;
// the core only creates intents and consumes the settled webhook.
type Gateway interface {
	CreateTopUpIntent(userID int64, amountCents int64) (*TopUpIntent, error)
	ParseWebhook(payload []byte, signature string) (*TopUp, error)
}

type TopUpIntent struct {
	ID           string `json:"id"`
	ClientSecret string `json:"client_secret"`
	AmountCents  int64  `json:"amount_cents"`
}

// TopUp is a confirmed external payment ready to be credited to a wallet,
// idempotent on ExternalRef.
type TopUp struct {
	UserID      int64
	AmountCents int64
	ExternalRef string
}

type StripeGateway struct {
	webhookSecret string
	currency      string
}

func NewStripeGateway(secretKey, webhookSecret, currency string) *StripeGateway {
	stripe.Key = secretKey
	return &StripeGateway{
		webhookSecret: webhookSecret,
		currency:      currency,
	}
}

func (g *StripeGateway) CreateTopUpIntent(userID int64, amountCents int64) (*TopUpIntent, error) {
	params := &stripe.PaymentIntentParams{
		Amount:   stripe.Int64(amountCents),
		Currency: stripe.String(g.currency),
	}
	params.AddMetadata("user_id", strconv.FormatInt(userID, 10))

	pi, err := paymentintent.New(params)
	if err != nil {
		return nil, fmt.Errorf("failed to create payment intent: %w", err)
	}
	return &TopUpIntent{
		ID:           pi.ID,
		ClientSecret: pi.ClientSecret,
		AmountCents:  pi.Amount,
	}, nil
}

// ParseWebhook verifies the event signature and extracts a confirmed top-up.
// Returns (nil, nil) for event types the wallet does not care about.
func (g *StripeGateway) ParseWebhook(payload []byte, signature string) (*TopUp, error) {
	event, err := webhook.ConstructEvent(payload, signature, g.webhookSecret)
	if err != nil {
		return nil, fmt.Errorf("webhook signature verification failed: %w", err)
	}

	if event.Type != "payment_intent.succeeded" {
		return nil, nil
	}

	var pi stripe.PaymentIntent
	if err := json.Unmarshal(event.Data.Raw, &pi); err != nil {
		return nil, fmt.Errorf("failed to parse payment intent: %w", err)
	}

	userID, err := strconv.ParseInt(pi.Metadata["user_id"], 10, 64)
	if err != nil {
		return nil, fmt.Errorf("payment intent %s has no usable user_id metadata: %w", pi.ID, err)
	}

	return &TopUp{
		UserID:      userID,
		AmountCents: pi.Amount,
		ExternalRef: pi.ID,
	}, nil
}
