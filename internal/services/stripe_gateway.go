package services

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strconv"

	"rankshop-api/internal/config"
	"rankshop-api/internal/ranks"
	"rankshop-api/pkg/logging"

	"github.com/stripe/stripe-go/v74"
	"github.com/stripe/stripe-go/v74/checkout/session"
	"github.com/stripe/stripe-go/v74/webhook"
)

var (
	// ErrSignatureInvalid means the payload did not come from the payment
	// gateway; nothing may be processed from it
	ErrSignatureInvalid = errors.New("webhook signature invalid")

	// ErrRankNotPurchasable means the rank has no price configured and
	// cannot go through checkout
	ErrRankNotPurchasable = errors.New("rank is not purchasable")
)

// StripeGateway is the payment-gateway client: it verifies inbound webhook
// payloads and owns checkout session creation and lookup.
type StripeGateway struct {
	webhookSecret string
}

// NewStripeGateway creates a new Stripe gateway client
func NewStripeGateway() *StripeGateway {
	stripe.Key = config.AppConfig.StripeSecretKey
	return &StripeGateway{
		webhookSecret: config.AppConfig.StripeWebhookSecret,
	}
}

// VerifyAndParse checks the webhook signature and returns the typed event.
// Any verification failure is a hard rejection: an unverified payload must
// never reach the orchestrator.
func (g *StripeGateway) VerifyAndParse(body []byte, signatureHeader string) (stripe.Event, error) {
	if signatureHeader == "" {
		return stripe.Event{}, fmt.Errorf("%w: missing signature header", ErrSignatureInvalid)
	}

	event, err := webhook.ConstructEvent(body, signatureHeader, g.webhookSecret)
	if err != nil {
		return stripe.Event{}, fmt.Errorf("%w: %v", ErrSignatureInvalid, err)
	}

	return event, nil
}

// ParseEvent parses a pre-verified event payload. Only the test/bypass
// endpoints use this; the production webhook always goes through
// VerifyAndParse.
func ParseEvent(body []byte) (stripe.Event, error) {
	var event stripe.Event
	if err := json.Unmarshal(body, &event); err != nil {
		return stripe.Event{}, fmt.Errorf("failed to parse event: %w", err)
	}
	return event, nil
}

// ResolvePriceID returns the Stripe price id for a rank. A rank whose price
// is missing from the environment is not purchasable; the price of another
// rank is never substituted.
func ResolvePriceID(rank *ranks.Rank) (string, error) {
	priceID := os.Getenv(rank.PriceEnv)
	if priceID == "" {
		return "", fmt.Errorf("%w: no price configured for %s (%s)", ErrRankNotPurchasable, rank.ID, rank.PriceEnv)
	}
	return priceID, nil
}

// WarnMissingPrices logs a startup warning for every rank without a price id
func WarnMissingPrices() {
	for i := range ranks.Ranks {
		if os.Getenv(ranks.Ranks[i].PriceEnv) == "" {
			logging.Warnf("Rank %s has no price configured (%s), excluded from checkout",
				ranks.Ranks[i].ID, ranks.Ranks[i].PriceEnv)
		}
	}
}

// CreateCheckoutSession creates a checkout session for a rank purchase. The
// metadata written here is exactly what the fulfillment pipeline reads back
// from the webhook event.
func (g *StripeGateway) CreateCheckoutSession(rank *ranks.Rank, playerName, userID string, isGift bool) (*stripe.CheckoutSession, error) {
	priceID, err := ResolvePriceID(rank)
	if err != nil {
		return nil, err
	}

	params := &stripe.CheckoutSessionParams{
		Mode: stripe.String(string(stripe.CheckoutSessionModePayment)),
		LineItems: []*stripe.CheckoutSessionLineItemParams{
			{
				Price:    stripe.String(priceID),
				Quantity: stripe.Int64(1),
			},
		},
		SuccessURL: stripe.String(config.AppConfig.ShopSuccessURL + "?session_id={CHECKOUT_SESSION_ID}"),
		CancelURL:  stripe.String(config.AppConfig.ShopCancelURL),
	}
	params.AddMetadata("type", "rank_purchase")
	params.AddMetadata("rank_id", rank.ID)
	params.AddMetadata("rank_name", rank.Name)
	params.AddMetadata("minecraft_username", playerName)
	params.AddMetadata("is_gift", strconv.FormatBool(isGift))
	if userID != "" {
		params.AddMetadata("user_id", userID)
	}

	return session.New(params)
}

// GetCheckoutSession retrieves a checkout session from Stripe
func (g *StripeGateway) GetCheckoutSession(sessionID string) (*stripe.CheckoutSession, error) {
	return session.Get(sessionID, nil)
}
