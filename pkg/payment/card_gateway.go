package payment

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/shopspring/decimal"
	"github.com/stripe/stripe-go/v82"
	"github.com/stripe/stripe-go/v82/webhook"
)

const cardProviderName = "card"

// CardGateway implements card payments via Stripe payment intents.
type CardGateway struct {
	client        *stripe.Client
	webhookSecret string
	returnURL     string
}

// CardConfig holds configuration for the Stripe card gateway
type CardConfig struct {
	SecretKey     string
	WebhookSecret string
	ReturnURL     string
}

// NewCardGateway creates a new Stripe-backed card gateway
func NewCardGateway(config CardConfig) *CardGateway {
	return &CardGateway{
		client:        stripe.NewClient(config.SecretKey),
		webhookSecret: config.WebhookSecret,
		returnURL:     config.ReturnURL,
	}
}

// Name implements Provider
func (g *CardGateway) Name() string {
	return cardProviderName
}

// CreatePayment creates a payment intent and returns its client secret for
// the client-side confirmation step.
func (g *CardGateway) CreatePayment(ctx context.Context, req CreateRequest) (*CreateResult, error) {
	minorUnits, err := toMinorUnits(req.Amount)
	if err != nil {
		return nil, &Error{Provider: cardProviderName, Op: "create", Message: "invalid amount", Err: err}
	}

	params := &stripe.PaymentIntentCreateParams{
		Amount:   stripe.Int64(minorUnits),
		Currency: stripe.String(req.Currency),
		AutomaticPaymentMethods: &stripe.PaymentIntentCreateAutomaticPaymentMethodsParams{
			Enabled: stripe.Bool(true),
		},
	}
	if req.Description != "" {
		params.Description = stripe.String(req.Description)
	}
	params.AddMetadata("reference_id", req.ReferenceID)

	intent, err := g.client.V1PaymentIntents.Create(ctx, params)
	if err != nil {
		return nil, &Error{Provider: cardProviderName, Op: "create", Message: "payment intent creation failed", Err: err}
	}

	return &CreateResult{
		TransactionID: intent.ID,
		ClientSecret:  intent.ClientSecret,
		Status:        mapIntentStatus(intent.Status),
		Raw:           rawMap(intent),
	}, nil
}

// ConfirmPayment retrieves the intent and reports its current state. Card
// confirmation itself happens client-side with the client secret; the server
// only observes the outcome.
func (g *CardGateway) ConfirmPayment(ctx context.Context, transactionID string) (*ConfirmResult, error) {
	intent, err := g.client.V1PaymentIntents.Retrieve(ctx, transactionID, nil)
	if err != nil {
		return nil, &Error{Provider: cardProviderName, Op: "confirm", Message: "payment intent retrieval failed", Err: err}
	}

	return &ConfirmResult{
		TransactionID: intent.ID,
		Status:        mapIntentStatus(intent.Status),
		Raw:           rawMap(intent),
	}, nil
}

// RefundPayment refunds a captured intent. A zero amount refunds in full.
func (g *CardGateway) RefundPayment(ctx context.Context, transactionID string, amount decimal.Decimal, currency string) (*RefundResult, error) {
	params := &stripe.RefundCreateParams{
		PaymentIntent: stripe.String(transactionID),
	}
	if amount.IsPositive() {
		minorUnits, err := toMinorUnits(amount)
		if err != nil {
			return nil, &Error{Provider: cardProviderName, Op: "refund", Message: "invalid refund amount", Err: err}
		}
		params.Amount = stripe.Int64(minorUnits)
	}

	refund, err := g.client.V1Refunds.Create(ctx, params)
	if err != nil {
		return nil, &Error{Provider: cardProviderName, Op: "refund", Message: "refund creation failed", Err: err}
	}

	status := StatusPending
	if refund.Status == stripe.RefundStatusSucceeded {
		status = StatusSuccess
	} else if refund.Status == stripe.RefundStatusFailed || refund.Status == stripe.RefundStatusCanceled {
		status = StatusFailed
	}

	return &RefundResult{
		RefundID: refund.ID,
		Status:   status,
		Raw:      rawMap(refund),
	}, nil
}

// GetStatus queries Stripe for the intent's current state.
func (g *CardGateway) GetStatus(ctx context.Context, transactionID string) (*StatusResult, error) {
	intent, err := g.client.V1PaymentIntents.Retrieve(ctx, transactionID, nil)
	if err != nil {
		return nil, &Error{Provider: cardProviderName, Op: "status", Message: "payment intent retrieval failed", Err: err}
	}

	return &StatusResult{
		TransactionID: intent.ID,
		Status:        mapIntentStatus(intent.Status),
		Raw:           rawMap(intent),
	}, nil
}

// VerifyWebhook checks the Stripe-Signature header and parses the event.
func (g *CardGateway) VerifyWebhook(payload []byte, signatureHeader string) (*stripe.Event, error) {
	event, err := webhook.ConstructEvent(payload, signatureHeader, g.webhookSecret)
	if err != nil {
		return nil, fmt.Errorf("webhook signature verification failed: %w", err)
	}
	return &event, nil
}

// mapIntentStatus folds Stripe's intent statuses into the provider-agnostic
// three-state view.
func mapIntentStatus(status stripe.PaymentIntentStatus) Status {
	switch status {
	case stripe.PaymentIntentStatusSucceeded:
		return StatusSuccess
	case stripe.PaymentIntentStatusCanceled:
		return StatusFailed
	default:
		// requires_payment_method, requires_confirmation, requires_action,
		// processing, requires_capture
		return StatusPending
	}
}

// toMinorUnits converts a decimal major-unit amount to integer minor units,
// rounding half-up at the cent. Truncation would undercharge.
func toMinorUnits(amount decimal.Decimal) (int64, error) {
	if amount.IsNegative() {
		return 0, fmt.Errorf("amount %s is negative", amount)
	}
	return amount.Mul(decimal.NewFromInt(100)).Round(0).IntPart(), nil
}

// rawMap converts a provider response struct to a generic map for storage.
func rawMap(v interface{}) map[string]interface{} {
	data, err := json.Marshal(v)
	if err != nil {
		return map[string]interface{}{}
	}
	var m map[string]interface{}
	if err := json.Unmarshal(data, &m); err != nil {
		return map[string]interface{}{}
	}
	return m
}
