package services

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"gorm.io/gorm"

	"parking-marketplace-server/models"
	"parking-marketplace-server/repository"
	"parking-marketplace-server/utils"
)

// BookingStore is the persistence surface the lifecycle needs. Implemented by
// repository.BookingRepo; mocked in tests.
type BookingStore interface {
	BookingFinder
	GetByID(ctx context.Context, id uint) (*models.Booking, error)
	CreateIfAvailable(ctx context.Context, b *models.Booking) error
	SaveStatusChecked(ctx context.Context, b *models.Booking) error
	Save(ctx context.Context, b *models.Booking) error
	ExtendIfAvailable(ctx context.Context, b *models.Booking, newEnd time.Time, addedCostPence int64) error
	RestoreRange(ctx context.Context, b *models.Booking, end time.Time, totalCostPence int64) error
	FindByUser(ctx context.Context, userID uint) ([]models.Booking, error)
}

// PaymentStore persists payment rows. Implemented by repository.PaymentRepo.
type PaymentStore interface {
	Create(ctx context.Context, p *models.Payment) error
	Save(ctx context.Context, p *models.Payment) error
	GetByID(ctx context.Context, id uint) (*models.Payment, error)
	GetByProviderRef(ctx context.Context, ref string) (*models.Payment, error)
	FindByBooking(ctx context.Context, bookingID uint) ([]models.Payment, error)
	FindPendingRefunds(ctx context.Context) ([]models.Payment, error)
}

// SpaceStore loads spaces for booking guards. Implemented by repository.SpaceRepo.
type SpaceStore interface {
	GetByID(ctx context.Context, id uint) (*models.ParkingSpace, error)
	HasFutureBlocking(ctx context.Context, spaceID uint, after time.Time) (bool, error)
}

// EventSink receives booking lifecycle events for live delivery to hosts
type EventSink interface {
	Publish(event string, booking *models.Booking)
}

// Cancellations at least this far before the start time refund in full;
// anything later refunds half.
const fullRefundLeadTime = time.Hour

// BookingService owns the booking lifecycle: every status change flows
// through here and through the transition table on the model.
type BookingService struct {
	bookings     BookingStore
	payments     PaymentStore
	spaces       SpaceStore
	availability *AvailabilityService
	gateway      PaymentGateway
	notifier     Notifier
	events       EventSink
	currency     string

	now func() time.Time
}

func NewBookingService(
	bookings BookingStore,
	payments PaymentStore,
	spaces SpaceStore,
	availability *AvailabilityService,
	gateway PaymentGateway,
	notifier Notifier,
	events EventSink,
	currency string,
) *BookingService {
	return &BookingService{
		bookings:     bookings,
		payments:     payments,
		spaces:       spaces,
		availability: availability,
		gateway:      gateway,
		notifier:     notifier,
		events:       events,
		currency:     currency,
		now:          time.Now,
	}
}

// CreateBookingInput is the validated, typed input for booking creation
type CreateBookingInput struct {
	SpaceID          uint
	Range            utils.TimeRange
	VehicleReg       string
	VehicleMake      *string
	VehicleModel     *string
	VehicleColour    *string
	SpecialRequest   *string
	PaymentMethodRef string
}

// CreateBookingResult carries the booking plus any further-action data the
// payment processor wants surfaced to the client
type CreateBookingResult struct {
	Booking        *models.Booking
	RequiresAction bool
	ClientSecret   string
}

// CreateBooking runs the create transition: guards first, no mutation on any
// guard failure, then the pending insert, then the charge, then the
// confirmation flip driven by the charge outcome.
func (s *BookingService) CreateBooking(ctx context.Context, userID uint, input CreateBookingInput) (*CreateBookingResult, error) {
	if err := input.Range.Validate(); err != nil {
		return nil, ValidationError("%s", err.Error())
	}
	if input.Range.Start.Before(s.now()) {
		return nil, ValidationError("start time must be in the future")
	}
	reg := models.NormalizeVehicleReg(input.VehicleReg)
	if reg == "" {
		return nil, ValidationError("vehicle registration is required")
	}
	if input.PaymentMethodRef == "" {
		return nil, ValidationError("payment method is required")
	}

	space, err := s.spaces.GetByID(ctx, input.SpaceID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, NotFoundError("Parking space")
		}
		return nil, err
	}
	if !space.IsActive {
		return nil, NotFoundError("Parking space")
	}
	if space.OwnerID == userID {
		return nil, ForbiddenError("You cannot book your own space")
	}
	if !SlotsCover(space.Slots, input.Range) {
		return nil, ConflictError("The space is closed during the requested time")
	}

	available, err := s.availability.IsAvailable(ctx, space.ID, input.Range, 0)
	if err != nil {
		return nil, err
	}
	if !available {
		return nil, ConflictError("The space is already booked for this time")
	}

	booking := &models.Booking{
		UserID:         userID,
		SpaceID:        space.ID,
		StartTime:      input.Range.Start,
		EndTime:        input.Range.End,
		TotalCostPence: Cost(input.Range, space.HourlyRatePence),
		Status:         models.BookingStatusPending,
		VehicleReg:     reg,
		VehicleMake:    input.VehicleMake,
		VehicleModel:   input.VehicleModel,
		VehicleColour:  input.VehicleColour,
		SpecialRequest: input.SpecialRequest,
	}

	if err := s.bookings.CreateIfAvailable(ctx, booking); err != nil {
		if errors.Is(err, repository.ErrBookingConflict) {
			return nil, ConflictError("The space is already booked for this time")
		}
		return nil, err
	}
	booking.Space = *space

	charge, err := s.gateway.Charge(ctx, ChargeRequest{
		AmountPence:      booking.TotalCostPence,
		Currency:         s.currency,
		PaymentMethodRef: input.PaymentMethodRef,
		BookingID:        booking.ID,
		Description:      fmt.Sprintf("Parking at %s", space.Title),
	})
	if err != nil {
		// No transaction id was assigned; the booking stays pending with no
		// payment row and the caller can retry the payment step.
		log.Printf("❌ Charge for booking %d never reached the processor: %v", booking.ID, err)
		return nil, err
	}

	// Record the external transaction id before any local status flip so the
	// reconciler can always repair a crash between here and the confirm write.
	payment := s.recordCharge(ctx, booking, charge)

	switch charge.Status {
	case models.PaymentStatusSucceeded:
		if err := s.confirmBooking(ctx, booking, payment); err != nil {
			return nil, err
		}
		return &CreateBookingResult{Booking: booking}, nil

	case models.PaymentStatusFailed:
		if err := booking.Transition(models.BookingStatusCancelled); err == nil {
			now := s.now()
			booking.CancelledAt = &now
			if err := s.bookings.Save(ctx, booking); err != nil {
				log.Printf("❌ Failed to cancel booking %d after declined charge: %v", booking.ID, err)
			}
		}
		s.publish("booking_cancelled", booking)
		return nil, PaymentFailedError("Payment was declined")

	default:
		// Processing or requires_action: stay pending, the webhook decides
		return &CreateBookingResult{
			Booking:        booking,
			RequiresAction: charge.RequiresAction,
			ClientSecret:   charge.ClientSecret,
		}, nil
	}
}

// recordCharge writes the payment row for a processor-acknowledged charge
func (s *BookingService) recordCharge(ctx context.Context, booking *models.Booking, charge *ChargeResult) *models.Payment {
	payment := &models.Payment{
		BookingID:   booking.ID,
		AmountPence: booking.TotalCostPence,
		Currency:    s.currency,
		Status:      charge.Status,
		ProviderRef: charge.ProviderRef,
	}
	if charge.CardBrand != "" {
		payment.CardBrand = &charge.CardBrand
	}
	if charge.CardLast4 != "" {
		payment.CardLast4 = &charge.CardLast4
	}
	if charge.FailureReason != "" {
		payment.FailureReason = &charge.FailureReason
	}
	if err := s.payments.Create(ctx, payment); err != nil {
		log.Printf("❌ Failed to record payment %s for booking %d: %v", charge.ProviderRef, booking.ID, err)
	}
	return payment
}

// confirmBooking flips pending -> confirmed behind the checked save. Losing
// the confirm race to an overlapping booking cancels this one and queues the
// refund for the retry job.
func (s *BookingService) confirmBooking(ctx context.Context, booking *models.Booking, payment *models.Payment) error {
	if err := booking.Transition(models.BookingStatusConfirmed); err != nil {
		return ConflictError(err.Error())
	}
	if err := s.bookings.SaveStatusChecked(ctx, booking); err != nil {
		if errors.Is(err, repository.ErrBookingConflict) {
			booking.Status = models.BookingStatusPending
			s.cancelAfterLostConfirm(ctx, booking, payment)
			return ConflictError("The space was booked by someone else while your payment was processing; your charge will be refunded")
		}
		return err
	}

	now := s.now()
	payment.ConfirmationSentAt = &now
	if err := s.payments.Save(ctx, payment); err != nil {
		log.Printf("⚠️ Failed to mark confirmation for payment %d: %v", payment.ID, err)
	}

	if booking.User.Email == "" {
		if fresh, err := s.bookings.GetByID(ctx, booking.ID); err == nil {
			booking.User = fresh.User
		}
	}
	s.notify(booking, TemplateBookingConfirmed, map[string]interface{}{
		"booking_id": booking.ID,
		"space":      booking.Space.Title,
		"start_time": booking.StartTime,
		"end_time":   booking.EndTime,
		"total":      FormatPence(booking.TotalCostPence),
	})
	s.publish("booking_confirmed", booking)
	return nil
}

// cancelAfterLostConfirm handles the charged-but-unconfirmable case
func (s *BookingService) cancelAfterLostConfirm(ctx context.Context, booking *models.Booking, payment *models.Payment) {
	if err := booking.Transition(models.BookingStatusCancelled); err == nil {
		now := s.now()
		booking.CancelledAt = &now
		if err := s.bookings.Save(ctx, booking); err != nil {
			log.Printf("❌ Failed to cancel booking %d after lost confirm race: %v", booking.ID, err)
		}
	}
	full := payment.AmountPence
	payment.RefundPence = &full
	payment.RefundPending = true
	if err := s.payments.Save(ctx, payment); err != nil {
		log.Printf("❌ Failed to queue refund for payment %d: %v", payment.ID, err)
	}
	s.publish("booking_cancelled", booking)
}

// UpdateDetails patches vehicle and request fields on a confirmed booking
// before it starts. Space, user, range and cost are immutable through this
// path; the input struct only exposes the patchable fields.
func (s *BookingService) UpdateDetails(ctx context.Context, bookingID, requesterID uint, update models.BookingDetailsUpdate) (*models.Booking, error) {
	booking, err := s.loadOwnedBooking(ctx, bookingID, requesterID)
	if err != nil {
		return nil, err
	}
	if booking.Status != models.BookingStatusConfirmed {
		return nil, ConflictError("Only confirmed bookings can be updated")
	}
	if !s.now().Before(booking.StartTime) {
		return nil, ConflictError("Bookings can no longer be updated once started")
	}

	if update.VehicleReg != nil {
		reg := models.NormalizeVehicleReg(*update.VehicleReg)
		if reg == "" {
			return nil, ValidationError("vehicle registration cannot be empty")
		}
		booking.VehicleReg = reg
	}
	if update.VehicleMake != nil {
		booking.VehicleMake = update.VehicleMake
	}
	if update.VehicleModel != nil {
		booking.VehicleModel = update.VehicleModel
	}
	if update.VehicleColour != nil {
		booking.VehicleColour = update.VehicleColour
	}
	if update.SpecialRequest != nil {
		booking.SpecialRequest = update.SpecialRequest
	}

	if err := s.bookings.Save(ctx, booking); err != nil {
		return nil, err
	}
	return booking, nil
}

// ExtendBooking pushes the end time of a confirmed or active booking out,
// pricing and charging the increment range with the same cost function used
// at creation.
func (s *BookingService) ExtendBooking(ctx context.Context, bookingID, requesterID uint, newEnd time.Time, paymentMethodRef string) (*models.Booking, error) {
	booking, err := s.loadOwnedBooking(ctx, bookingID, requesterID)
	if err != nil {
		return nil, err
	}
	if booking.Status != models.BookingStatusConfirmed && booking.Status != models.BookingStatusActive {
		return nil, ConflictError("Only confirmed or active bookings can be extended")
	}
	if !newEnd.After(booking.EndTime) {
		return nil, ValidationError("new end time must be after the current end time")
	}
	if paymentMethodRef == "" {
		return nil, ValidationError("payment method is required")
	}

	increment := utils.TimeRange{Start: booking.EndTime, End: newEnd}

	space, err := s.spaces.GetByID(ctx, booking.SpaceID)
	if err != nil {
		return nil, err
	}
	if !SlotsCover(space.Slots, increment) {
		return nil, ConflictError("The space is closed during the extension time")
	}

	available, err := s.availability.IsAvailable(ctx, booking.SpaceID, increment, booking.ID)
	if err != nil {
		return nil, err
	}
	if !available {
		return nil, ConflictError("The space is already booked for the extension time")
	}

	addedCost := Cost(increment, space.HourlyRatePence)
	oldEnd := booking.EndTime
	oldTotal := booking.TotalCostPence

	if err := s.bookings.ExtendIfAvailable(ctx, booking, newEnd, addedCost); err != nil {
		if errors.Is(err, repository.ErrBookingConflict) {
			return nil, ConflictError("The space is already booked for the extension time")
		}
		return nil, err
	}

	charge, err := s.gateway.Charge(ctx, ChargeRequest{
		AmountPence:      addedCost,
		Currency:         s.currency,
		PaymentMethodRef: paymentMethodRef,
		BookingID:        booking.ID,
		Description:      fmt.Sprintf("Extension of parking at %s", space.Title),
	})
	if err != nil {
		s.revertExtension(ctx, booking, oldEnd, oldTotal)
		return nil, err
	}

	payment := &models.Payment{
		BookingID:   booking.ID,
		AmountPence: addedCost,
		Currency:    s.currency,
		Status:      charge.Status,
		ProviderRef: charge.ProviderRef,
	}
	if charge.FailureReason != "" {
		payment.FailureReason = &charge.FailureReason
	}
	if err := s.payments.Create(ctx, payment); err != nil {
		log.Printf("❌ Failed to record extension payment %s: %v", charge.ProviderRef, err)
	}

	if charge.Status == models.PaymentStatusFailed {
		s.revertExtension(ctx, booking, oldEnd, oldTotal)
		return nil, PaymentFailedError("Payment for the extension was declined")
	}

	s.notify(booking, TemplateBookingExtended, map[string]interface{}{
		"booking_id":   booking.ID,
		"new_end_time": booking.EndTime,
		"added_cost":   FormatPence(addedCost),
		"total":        FormatPence(booking.TotalCostPence),
	})
	s.publish("booking_extended", booking)
	return booking, nil
}

func (s *BookingService) revertExtension(ctx context.Context, booking *models.Booking, oldEnd time.Time, oldTotal int64) {
	if err := s.bookings.RestoreRange(ctx, booking, oldEnd, oldTotal); err != nil {
		log.Printf("❌ Failed to revert extension of booking %d: %v", booking.ID, err)
	}
}

// CancelBooking cancels a pending or confirmed booking. The cancellation is
// authoritative and local; the refund against the processor is best-effort
// and queued for the retry job when it fails.
func (s *BookingService) CancelBooking(ctx context.Context, bookingID, requesterID uint) (*models.Booking, int64, error) {
	booking, err := s.loadOwnedBooking(ctx, bookingID, requesterID)
	if err != nil {
		return nil, 0, err
	}
	if booking.Status != models.BookingStatusPending && booking.Status != models.BookingStatusConfirmed {
		return nil, 0, ConflictError("Only pending or confirmed bookings can be cancelled")
	}

	refundPence := s.refundForCancellation(booking)

	if err := booking.Transition(models.BookingStatusCancelled); err != nil {
		return nil, 0, ConflictError(err.Error())
	}
	now := s.now()
	booking.CancelledAt = &now
	booking.RefundPence = &refundPence
	if err := s.bookings.Save(ctx, booking); err != nil {
		return nil, 0, err
	}

	if refundPence > 0 {
		s.issueRefunds(ctx, booking, refundPence, "booking cancelled")
	}

	s.notify(booking, TemplateBookingCancelled, map[string]interface{}{
		"booking_id": booking.ID,
		"refund":     FormatPence(refundPence),
	})
	s.publish("booking_cancelled", booking)
	return booking, refundPence, nil
}

// refundForCancellation applies the lead-time policy: a full hour or more of
// notice refunds everything, less than that refunds half. Nothing was charged
// for bookings still pending without a succeeded payment.
func (s *BookingService) refundForCancellation(booking *models.Booking) int64 {
	if booking.Status == models.BookingStatusPending {
		return 0
	}
	lead := booking.StartTime.Sub(s.now())
	if lead >= fullRefundLeadTime {
		return booking.TotalCostPence
	}
	// 50% late-cancellation penalty, rounded half-up at the penny
	return (booking.TotalCostPence + 1) / 2
}

// issueRefunds spreads the refund across the booking's succeeded payments.
// Processor failures never fail the cancellation: the amount is recorded and
// the retry job picks it up.
func (s *BookingService) issueRefunds(ctx context.Context, booking *models.Booking, refundPence int64, reason string) {
	payments, err := s.payments.FindByBooking(ctx, booking.ID)
	if err != nil {
		log.Printf("❌ Failed to load payments for booking %d refund: %v", booking.ID, err)
		return
	}

	remaining := refundPence
	for i := range payments {
		if remaining <= 0 {
			break
		}
		p := &payments[i]
		if p.Status != models.PaymentStatusSucceeded {
			continue
		}
		var alreadyRefunded int64
		if p.RefundPence != nil {
			alreadyRefunded = *p.RefundPence
		}
		amount := p.AmountPence - alreadyRefunded
		if amount <= 0 {
			continue
		}
		if amount > remaining {
			amount = remaining
		}
		remaining -= amount

		total := alreadyRefunded + amount
		p.RefundPence = &total
		reasonCopy := reason
		p.RefundReason = &reasonCopy

		result, err := s.gateway.Refund(ctx, p.ProviderRef, amount, reason)
		if err != nil || !result.Succeeded {
			log.Printf("⚠️ Refund of %s for payment %s failed, queued for retry", FormatPence(amount), p.ProviderRef)
			p.RefundPending = true
		} else {
			p.RefundRef = &result.RefundRef
			if p.IsFullyRefunded() {
				p.Status = models.PaymentStatusRefunded
			}
		}
		if err := s.payments.Save(ctx, p); err != nil {
			log.Printf("❌ Failed to record refund on payment %d: %v", p.ID, err)
		}
	}
}

// StartSession moves confirmed -> active inside the bounded window around the
// start time (15 minutes early at most, never after the end)
func (s *BookingService) StartSession(ctx context.Context, bookingID, requesterID uint) (*models.Booking, error) {
	booking, err := s.loadOwnedBooking(ctx, bookingID, requesterID)
	if err != nil {
		return nil, err
	}
	if booking.Status != models.BookingStatusConfirmed {
		return nil, ConflictError("Only confirmed bookings can be started")
	}
	now := s.now()
	if !booking.CanStartSessionAt(now) {
		return nil, ConflictError("The session can only be started from 15 minutes before the booking until its end")
	}

	if err := booking.Transition(models.BookingStatusActive); err != nil {
		return nil, ConflictError(err.Error())
	}
	booking.StartedAt = &now
	if err := s.bookings.Save(ctx, booking); err != nil {
		return nil, err
	}
	s.publish("session_started", booking)
	return booking, nil
}

// StopSession moves active -> completed
func (s *BookingService) StopSession(ctx context.Context, bookingID, requesterID uint) (*models.Booking, error) {
	booking, err := s.loadOwnedBooking(ctx, bookingID, requesterID)
	if err != nil {
		return nil, err
	}
	if booking.Status != models.BookingStatusActive {
		return nil, ConflictError("Only active sessions can be stopped")
	}

	if err := booking.Transition(models.BookingStatusCompleted); err != nil {
		return nil, ConflictError(err.Error())
	}
	now := s.now()
	booking.CompletedAt = &now
	if err := s.bookings.Save(ctx, booking); err != nil {
		return nil, err
	}
	s.publish("session_completed", booking)
	return booking, nil
}

// GetBooking loads a booking visible to the requester (booking owner, space
// owner or admin)
func (s *BookingService) GetBooking(ctx context.Context, bookingID uint, requester *models.User) (*models.Booking, error) {
	booking, err := s.bookings.GetByID(ctx, bookingID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, NotFoundError("Booking")
		}
		return nil, err
	}
	if booking.UserID != requester.ID && booking.Space.OwnerID != requester.ID && !requester.IsAdmin() {
		return nil, ForbiddenError("You do not have access to this booking")
	}
	return booking, nil
}

// ListUserBookings returns the requester's bookings
func (s *BookingService) ListUserBookings(ctx context.Context, userID uint) ([]models.Booking, error) {
	return s.bookings.FindByUser(ctx, userID)
}

// RefundPayment is the admin-driven manual refund. amountPence of 0 refunds
// whatever remains unrefunded on the payment. The booking flips to refunded
// only when its full cost has been returned.
func (s *BookingService) RefundPayment(ctx context.Context, paymentID uint, amountPence int64, reason string) (*models.Payment, error) {
	payment, err := s.payments.GetByID(ctx, paymentID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, NotFoundError("Payment")
		}
		return nil, err
	}
	if payment.Status != models.PaymentStatusSucceeded {
		return nil, ConflictError("Only succeeded payments can be refunded")
	}

	var alreadyRefunded int64
	if payment.RefundPence != nil {
		alreadyRefunded = *payment.RefundPence
	}
	remaining := payment.AmountPence - alreadyRefunded
	if amountPence == 0 {
		amountPence = remaining
	}
	if amountPence <= 0 || amountPence > remaining {
		return nil, ValidationError("refund amount must be between 0.01 and %s", FormatPence(remaining))
	}

	result, err := s.gateway.Refund(ctx, payment.ProviderRef, amountPence, reason)
	if err != nil {
		return nil, err
	}
	if !result.Succeeded {
		return nil, PaymentFailedError("The processor rejected the refund")
	}

	total := alreadyRefunded + amountPence
	payment.RefundPence = &total
	payment.RefundRef = &result.RefundRef
	reasonCopy := reason
	payment.RefundReason = &reasonCopy
	payment.RefundPending = false
	if payment.IsFullyRefunded() {
		payment.Status = models.PaymentStatusRefunded
	}
	if err := s.payments.Save(ctx, payment); err != nil {
		return nil, err
	}

	s.markBookingRefunded(ctx, payment.BookingID)

	booking, err := s.bookings.GetByID(ctx, payment.BookingID)
	if err == nil {
		s.notify(booking, TemplateRefundIssued, map[string]interface{}{
			"booking_id": booking.ID,
			"refund":     FormatPence(amountPence),
		})
	}
	return payment, nil
}

// markBookingRefunded flips the booking to refunded once the sum of refunds
// across its payments covers the full cost
func (s *BookingService) markBookingRefunded(ctx context.Context, bookingID uint) {
	booking, err := s.bookings.GetByID(ctx, bookingID)
	if err != nil {
		return
	}
	if !booking.CanTransition(models.BookingStatusRefunded) {
		return
	}
	payments, err := s.payments.FindByBooking(ctx, bookingID)
	if err != nil {
		return
	}
	var refunded int64
	for _, p := range payments {
		if p.RefundPence != nil {
			refunded += *p.RefundPence
		}
	}
	if refunded < booking.TotalCostPence {
		return
	}
	if err := booking.Transition(models.BookingStatusRefunded); err == nil {
		if err := s.bookings.Save(ctx, booking); err != nil {
			log.Printf("❌ Failed to mark booking %d refunded: %v", booking.ID, err)
		}
	}
}

// RetryPendingRefunds re-attempts best-effort refunds that failed at the
// processor. Invoked by the background job.
func (s *BookingService) RetryPendingRefunds(ctx context.Context) (int, error) {
	payments, err := s.payments.FindPendingRefunds(ctx)
	if err != nil {
		return 0, err
	}

	retried := 0
	for i := range payments {
		p := &payments[i]
		if p.RefundPence == nil {
			p.RefundPending = false
			s.payments.Save(ctx, p)
			continue
		}
		reason := "queued refund retry"
		if p.RefundReason != nil {
			reason = *p.RefundReason
		}
		result, err := s.gateway.Refund(ctx, p.ProviderRef, *p.RefundPence, reason)
		if err != nil || !result.Succeeded {
			log.Printf("⚠️ Refund retry for payment %s failed, will try again", p.ProviderRef)
			continue
		}
		p.RefundRef = &result.RefundRef
		p.RefundPending = false
		if p.IsFullyRefunded() {
			p.Status = models.PaymentStatusRefunded
		}
		if err := s.payments.Save(ctx, p); err != nil {
			log.Printf("❌ Failed to record retried refund on payment %d: %v", p.ID, err)
			continue
		}
		s.markBookingRefunded(ctx, p.BookingID)
		retried++
	}
	return retried, nil
}

// loadOwnedBooking loads a booking and enforces the requester-is-owner guard
func (s *BookingService) loadOwnedBooking(ctx context.Context, bookingID, requesterID uint) (*models.Booking, error) {
	booking, err := s.bookings.GetByID(ctx, bookingID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, NotFoundError("Booking")
		}
		return nil, err
	}
	if booking.UserID != requesterID {
		return nil, ForbiddenError("You do not own this booking")
	}
	return booking, nil
}

func (s *BookingService) notify(booking *models.Booking, template string, data map[string]interface{}) {
	if s.notifier == nil {
		return
	}
	if booking.User.Email == "" {
		return
	}
	s.notifier.Send(booking.User.Email, template, data)
}

func (s *BookingService) publish(event string, booking *models.Booking) {
	if s.events == nil {
		return
	}
	s.events.Publish(event, booking)
}
