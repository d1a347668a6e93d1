package services

import (
	"context"
	"errors"
	"log"
	"strconv"
	"time"

	"gorm.io/gorm"

	"parking-marketplace-server/models"
	"parking-marketplace-server/repository"
)

// Notification event types delivered by the payment processor
const (
	EventPaymentSucceeded = "payment_intent.succeeded"
	EventPaymentFailed    = "payment_intent.payment_failed"
	EventDisputeCreated   = "charge.dispute.created"
)

// TelemetrySink records entries for the admin error-review surface
type TelemetrySink interface {
	Record(ctx context.Context, entry *models.ErrorLog) error
}

// PaymentReconciler applies the processor's asynchronous notifications to the
// payment and booking state. Delivery is at-least-once, so every application
// must be idempotent; the external transaction id is the idempotency key.
type PaymentReconciler struct {
	payments  PaymentStore
	bookings  BookingStore
	notifier  Notifier
	events    EventSink
	telemetry TelemetrySink

	now func() time.Time
}

func NewPaymentReconciler(payments PaymentStore, bookings BookingStore, notifier Notifier, events EventSink, telemetry TelemetrySink) *PaymentReconciler {
	return &PaymentReconciler{
		payments:  payments,
		bookings:  bookings,
		notifier:  notifier,
		events:    events,
		telemetry: telemetry,
		now:       time.Now,
	}
}

// Apply processes one verified notification. An unknown external transaction
// id is transient, not ignorable: the synchronous path records the id before
// any local flip, so "row not found" means that write has not committed yet
// and the caller must make the processor redeliver.
func (r *PaymentReconciler) Apply(ctx context.Context, eventType, providerRef, detail string) error {
	switch eventType {
	case EventPaymentSucceeded:
		return r.applySucceeded(ctx, providerRef)
	case EventPaymentFailed:
		return r.applyFailed(ctx, providerRef, detail)
	case EventDisputeCreated:
		return r.applyDispute(ctx, providerRef, detail)
	default:
		log.Printf("🔕 Ignoring payment event %s for %s", eventType, providerRef)
		return nil
	}
}

func (r *PaymentReconciler) applySucceeded(ctx context.Context, providerRef string) error {
	payment, err := r.lookup(ctx, providerRef)
	if err != nil {
		return err
	}

	// Re-delivery of an already-applied success changes nothing and sends
	// nothing
	if payment.Status == models.PaymentStatusSucceeded || payment.Status == models.PaymentStatusRefunded {
		return nil
	}

	payment.Status = models.PaymentStatusSucceeded
	payment.FailureReason = nil
	if err := r.payments.Save(ctx, payment); err != nil {
		return err
	}

	booking, err := r.bookings.GetByID(ctx, payment.BookingID)
	if err != nil {
		return err
	}

	// The booking was cancelled while the charge was still settling: there is
	// nothing to confirm and the settled money has to come back
	if booking.Status == models.BookingStatusCancelled || booking.Status == models.BookingStatusRefunded {
		log.Printf("💸 Payment %s succeeded for cancelled booking %d, queueing refund", providerRef, booking.ID)
		r.queueRefund(ctx, payment)
		return nil
	}

	if booking.Status == models.BookingStatusPending {
		if err := booking.Transition(models.BookingStatusConfirmed); err != nil {
			return err
		}
		if err := r.bookings.SaveStatusChecked(ctx, booking); err != nil {
			if errors.Is(err, repository.ErrBookingConflict) {
				// Charged but the slot was taken while the payment settled
				booking.Status = models.BookingStatusPending
				r.cancelAndQueueRefund(ctx, booking, payment)
				return nil
			}
			return err
		}
		r.publish("booking_confirmed", booking)
	}

	// Best-effort de-duplication of the confirmation email: the marker is
	// written after sending, so a crash in between can still double-send.
	if payment.ConfirmationSentAt == nil {
		r.notify(booking, TemplateBookingConfirmed, map[string]interface{}{
			"booking_id": booking.ID,
			"space":      booking.Space.Title,
			"start_time": booking.StartTime,
			"end_time":   booking.EndTime,
			"total":      FormatPence(booking.TotalCostPence),
		})
		now := r.now()
		payment.ConfirmationSentAt = &now
		if err := r.payments.Save(ctx, payment); err != nil {
			log.Printf("⚠️ Failed to mark confirmation sent for payment %d: %v", payment.ID, err)
		}
	}
	return nil
}

func (r *PaymentReconciler) applyFailed(ctx context.Context, providerRef, reason string) error {
	payment, err := r.lookup(ctx, providerRef)
	if err != nil {
		return err
	}

	if payment.Status == models.PaymentStatusFailed {
		return nil
	}
	if payment.Status == models.PaymentStatusSucceeded || payment.Status == models.PaymentStatusRefunded {
		// A failure notification arriving after a recorded success is out of
		// order; keep the success and surface it for review
		r.record(ctx, models.ErrorLogLevelWarning, "payments",
			"failure event for already-succeeded payment "+providerRef+": "+reason)
		return nil
	}

	payment.Status = models.PaymentStatusFailed
	if reason != "" {
		payment.FailureReason = &reason
	}
	if err := r.payments.Save(ctx, payment); err != nil {
		return err
	}

	booking, err := r.bookings.GetByID(ctx, payment.BookingID)
	if err != nil {
		return err
	}
	if booking.Status == models.BookingStatusPending {
		if err := booking.Transition(models.BookingStatusCancelled); err != nil {
			return err
		}
		now := r.now()
		booking.CancelledAt = &now
		if err := r.bookings.Save(ctx, booking); err != nil {
			return err
		}
		r.notify(booking, TemplatePaymentFailed, map[string]interface{}{
			"booking_id": booking.ID,
		})
		r.publish("booking_cancelled", booking)
	}
	return nil
}

// applyDispute records the dispute for manual follow-up; no booking mutation
func (r *PaymentReconciler) applyDispute(ctx context.Context, providerRef, detail string) error {
	payment, err := r.lookup(ctx, providerRef)
	if err != nil {
		return err
	}
	r.record(ctx, models.ErrorLogLevelDispute, "payments",
		"dispute opened against payment "+providerRef+" (booking "+strconv.Itoa(int(payment.BookingID))+"): "+detail)
	return nil
}

func (r *PaymentReconciler) cancelAndQueueRefund(ctx context.Context, booking *models.Booking, payment *models.Payment) {
	if err := booking.Transition(models.BookingStatusCancelled); err == nil {
		now := r.now()
		booking.CancelledAt = &now
		if err := r.bookings.Save(ctx, booking); err != nil {
			log.Printf("❌ Failed to cancel booking %d after lost confirm race: %v", booking.ID, err)
		}
	}
	r.queueRefund(ctx, payment)
	r.publish("booking_cancelled", booking)
}

// queueRefund records the full charge as owed back and flags it for the
// refund retry job
func (r *PaymentReconciler) queueRefund(ctx context.Context, payment *models.Payment) {
	full := payment.AmountPence
	payment.RefundPence = &full
	payment.RefundPending = true
	if err := r.payments.Save(ctx, payment); err != nil {
		log.Printf("❌ Failed to queue refund for payment %d: %v", payment.ID, err)
	}
}

func (r *PaymentReconciler) lookup(ctx context.Context, providerRef string) (*models.Payment, error) {
	payment, err := r.payments.GetByProviderRef(ctx, providerRef)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			// The synchronous write may not have committed yet; defer to the
			// processor's redelivery rather than dropping the event
			return nil, DependencyError("payment " + providerRef + " not recorded yet")
		}
		return nil, err
	}
	return payment, nil
}

func (r *PaymentReconciler) record(ctx context.Context, level models.ErrorLogLevel, source, message string) {
	if r.telemetry == nil {
		return
	}
	entry := &models.ErrorLog{Level: level, Source: source, Message: message}
	if err := r.telemetry.Record(ctx, entry); err != nil {
		log.Printf("⚠️ Failed to record telemetry entry: %v", err)
	}
}

func (r *PaymentReconciler) notify(booking *models.Booking, template string, data map[string]interface{}) {
	if r.notifier == nil || booking.User.Email == "" {
		return
	}
	r.notifier.Send(booking.User.Email, template, data)
}

func (r *PaymentReconciler) publish(event string, booking *models.Booking) {
	if r.events == nil {
		return
	}
	r.events.Publish(event, booking)
}

