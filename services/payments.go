package services

import (
	"context"
	"errors"
	"fmt"
	"log"

	stripe "github.com/stripe/stripe-go/v76"
	"github.com/stripe/stripe-go/v76/paymentintent"
	"github.com/stripe/stripe-go/v76/refund"
	"github.com/stripe/stripe-go/v76/webhook"

	"parking-marketplace-server/config"
	"parking-marketplace-server/models"
)

// ChargeRequest describes one charge against the payment processor
type ChargeRequest struct {
	AmountPence      int64
	Currency         string
	PaymentMethodRef string
	CustomerRef      string
	BookingID        uint
	Description      string
}

// ChargeResult is the processor's synchronous acknowledgement. ProviderRef is
// set whenever the processor assigned a transaction id, including declines.
type ChargeResult struct {
	ProviderRef    string
	Status         models.PaymentStatus
	RequiresAction bool
	ClientSecret   string
	CardBrand      string
	CardLast4      string
	FailureReason  string
}

// RefundResult is the processor's acknowledgement of a refund attempt
type RefundResult struct {
	RefundRef string
	Succeeded bool
}

// PaymentGateway is the payment collaborator consumed by the booking core
type PaymentGateway interface {
	Charge(ctx context.Context, req ChargeRequest) (*ChargeResult, error)
	Refund(ctx context.Context, providerRef string, amountPence int64, reason string) (*RefundResult, error)
}

// StripeGateway is a thin wrapper around stripe-go PaymentIntents and Refunds
type StripeGateway struct {
	webhookSecret string
}

// NewStripeGateway initializes the stripe client from configuration
func NewStripeGateway() *StripeGateway {
	stripe.Key = config.AppConfig.Stripe.SecretKey
	return &StripeGateway{webhookSecret: config.AppConfig.Stripe.WebhookSecret}
}

// Charge creates and confirms a PaymentIntent for the given method. A decline
// still returns a result carrying the processor's transaction id so the
// failure can be recorded against it.
func (g *StripeGateway) Charge(ctx context.Context, req ChargeRequest) (*ChargeResult, error) {
	params := &stripe.PaymentIntentParams{
		Amount:        stripe.Int64(req.AmountPence),
		Currency:      stripe.String(req.Currency),
		PaymentMethod: stripe.String(req.PaymentMethodRef),
		Confirm:       stripe.Bool(true),
		Description:   stripe.String(req.Description),
	}
	if req.CustomerRef != "" {
		params.Customer = stripe.String(req.CustomerRef)
	}
	params.AddMetadata("booking_id", fmt.Sprintf("%d", req.BookingID))
	params.AddExpand("latest_charge")

	pi, err := paymentintent.New(params)
	if err != nil {
		var stripeErr *stripe.Error
		if errors.As(err, &stripeErr) && stripeErr.PaymentIntent != nil {
			// Declined after the processor assigned a transaction id
			return &ChargeResult{
				ProviderRef:   stripeErr.PaymentIntent.ID,
				Status:        models.PaymentStatusFailed,
				FailureReason: stripeErr.Msg,
			}, nil
		}
		log.Printf("❌ Stripe charge failed before an intent was created: %v", err)
		return nil, DependencyError("payment processor is unavailable")
	}

	result := &ChargeResult{
		ProviderRef:  pi.ID,
		ClientSecret: pi.ClientSecret,
	}
	if pi.LatestCharge != nil && pi.LatestCharge.PaymentMethodDetails != nil && pi.LatestCharge.PaymentMethodDetails.Card != nil {
		result.CardBrand = string(pi.LatestCharge.PaymentMethodDetails.Card.Brand)
		result.CardLast4 = pi.LatestCharge.PaymentMethodDetails.Card.Last4
	}

	switch pi.Status {
	case stripe.PaymentIntentStatusSucceeded:
		result.Status = models.PaymentStatusSucceeded
	case stripe.PaymentIntentStatusRequiresAction, stripe.PaymentIntentStatusRequiresConfirmation:
		result.Status = models.PaymentStatusProcessing
		result.RequiresAction = true
	case stripe.PaymentIntentStatusProcessing:
		result.Status = models.PaymentStatusProcessing
	case stripe.PaymentIntentStatusCanceled, stripe.PaymentIntentStatusRequiresPaymentMethod:
		result.Status = models.PaymentStatusFailed
		if pi.LastPaymentError != nil {
			result.FailureReason = pi.LastPaymentError.Msg
		}
	default:
		result.Status = models.PaymentStatusProcessing
	}

	return result, nil
}

// Refund issues a refund against a previously-charged PaymentIntent
func (g *StripeGateway) Refund(ctx context.Context, providerRef string, amountPence int64, reason string) (*RefundResult, error) {
	params := &stripe.RefundParams{
		PaymentIntent: stripe.String(providerRef),
		Amount:        stripe.Int64(amountPence),
		Reason:        stripe.String(string(stripe.RefundReasonRequestedByCustomer)),
	}
	params.AddMetadata("reason", reason)

	re, err := refund.New(params)
	if err != nil {
		log.Printf("❌ Stripe refund failed for %s: %v", providerRef, err)
		return nil, DependencyError("payment processor refused the refund call")
	}

	return &RefundResult{
		RefundRef: re.ID,
		Succeeded: re.Status == stripe.RefundStatusSucceeded || re.Status == stripe.RefundStatusPending,
	}, nil
}

// VerifyEvent authenticates an inbound webhook payload against the shared
// signing secret. Unverified or malformed notifications are rejected without
// any mutation.
func (g *StripeGateway) VerifyEvent(payload []byte, signatureHeader string) (stripe.Event, error) {
	event, err := webhook.ConstructEvent(payload, signatureHeader, g.webhookSecret)
	if err != nil {
		return stripe.Event{}, SignatureError("webhook signature verification failed")
	}
	return event, nil
}
