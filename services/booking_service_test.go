package services

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"

	"parking-marketplace-server/models"
	"parking-marketplace-server/repository"
	"parking-marketplace-server/utils"
)

// Mock collaborators

type MockBookingStore struct {
	mock.Mock
}

func (m *MockBookingStore) FindBlocking(ctx context.Context, spaceID uint, excludeBookingID uint) ([]models.Booking, error) {
	args := m.Called(ctx, spaceID, excludeBookingID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]models.Booking), args.Error(1)
}

func (m *MockBookingStore) GetByID(ctx context.Context, id uint) (*models.Booking, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Booking), args.Error(1)
}

func (m *MockBookingStore) CreateIfAvailable(ctx context.Context, b *models.Booking) error {
	args := m.Called(ctx, b)
	return args.Error(0)
}

func (m *MockBookingStore) SaveStatusChecked(ctx context.Context, b *models.Booking) error {
	args := m.Called(ctx, b)
	return args.Error(0)
}

func (m *MockBookingStore) Save(ctx context.Context, b *models.Booking) error {
	args := m.Called(ctx, b)
	return args.Error(0)
}

func (m *MockBookingStore) ExtendIfAvailable(ctx context.Context, b *models.Booking, newEnd time.Time, addedCostPence int64) error {
	args := m.Called(ctx, b, newEnd, addedCostPence)
	if args.Error(0) == nil {
		b.EndTime = newEnd
		b.TotalCostPence += addedCostPence
	}
	return args.Error(0)
}

func (m *MockBookingStore) RestoreRange(ctx context.Context, b *models.Booking, end time.Time, totalCostPence int64) error {
	args := m.Called(ctx, b, end, totalCostPence)
	if args.Error(0) == nil {
		b.EndTime = end
		b.TotalCostPence = totalCostPence
	}
	return args.Error(0)
}

func (m *MockBookingStore) FindByUser(ctx context.Context, userID uint) ([]models.Booking, error) {
	args := m.Called(ctx, userID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]models.Booking), args.Error(1)
}

type MockPaymentStore struct {
	mock.Mock
}

func (m *MockPaymentStore) Create(ctx context.Context, p *models.Payment) error {
	args := m.Called(ctx, p)
	return args.Error(0)
}

func (m *MockPaymentStore) Save(ctx context.Context, p *models.Payment) error {
	args := m.Called(ctx, p)
	return args.Error(0)
}

func (m *MockPaymentStore) GetByID(ctx context.Context, id uint) (*models.Payment, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Payment), args.Error(1)
}

func (m *MockPaymentStore) GetByProviderRef(ctx context.Context, ref string) (*models.Payment, error) {
	args := m.Called(ctx, ref)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Payment), args.Error(1)
}

func (m *MockPaymentStore) FindByBooking(ctx context.Context, bookingID uint) ([]models.Payment, error) {
	args := m.Called(ctx, bookingID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]models.Payment), args.Error(1)
}

func (m *MockPaymentStore) FindPendingRefunds(ctx context.Context) ([]models.Payment, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]models.Payment), args.Error(1)
}

type MockSpaceStore struct {
	mock.Mock
}

func (m *MockSpaceStore) GetByID(ctx context.Context, id uint) (*models.ParkingSpace, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.ParkingSpace), args.Error(1)
}

func (m *MockSpaceStore) HasFutureBlocking(ctx context.Context, spaceID uint, after time.Time) (bool, error) {
	args := m.Called(ctx, spaceID, after)
	return args.Bool(0), args.Error(1)
}

type MockGateway struct {
	mock.Mock
}

func (m *MockGateway) Charge(ctx context.Context, req ChargeRequest) (*ChargeResult, error) {
	args := m.Called(ctx, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*ChargeResult), args.Error(1)
}

func (m *MockGateway) Refund(ctx context.Context, providerRef string, amountPence int64, reason string) (*RefundResult, error) {
	args := m.Called(ctx, providerRef, amountPence, reason)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*RefundResult), args.Error(1)
}

type MockNotifier struct {
	mock.Mock
}

func (m *MockNotifier) Send(to string, template string, data map[string]interface{}) {
	m.Called(to, template, data)
}

type MockEventSink struct {
	mock.Mock
}

func (m *MockEventSink) Publish(event string, booking *models.Booking) {
	m.Called(event, booking)
}

type MockTelemetry struct {
	mock.Mock
}

func (m *MockTelemetry) Record(ctx context.Context, entry *models.ErrorLog) error {
	args := m.Called(ctx, entry)
	return args.Error(0)
}

// Fixtures

var testNow = time.Date(2026, 3, 10, 8, 0, 0, 0, time.UTC)

type bookingFixture struct {
	bookings *MockBookingStore
	payments *MockPaymentStore
	spaces   *MockSpaceStore
	gateway  *MockGateway
	notifier *MockNotifier
	events   *MockEventSink
	svc      *BookingService
}

func newBookingFixture() *bookingFixture {
	f := &bookingFixture{
		bookings: &MockBookingStore{},
		payments: &MockPaymentStore{},
		spaces:   &MockSpaceStore{},
		gateway:  &MockGateway{},
		notifier: &MockNotifier{},
		events:   &MockEventSink{},
	}
	f.svc = NewBookingService(
		f.bookings,
		f.payments,
		f.spaces,
		NewAvailabilityService(f.bookings),
		f.gateway,
		f.notifier,
		f.events,
		"gbp",
	)
	f.svc.now = func() time.Time { return testNow }
	return f
}

func testSpace() *models.ParkingSpace {
	return &models.ParkingSpace{
		ID:              1,
		OwnerID:         99,
		Title:           "Covered bay near the station",
		HourlyRatePence: 400,
		IsActive:        true,
	}
}

func createInput() CreateBookingInput {
	return CreateBookingInput{
		SpaceID:          1,
		Range:            utils.TimeRange{Start: testNow.Add(2 * time.Hour), End: testNow.Add(4 * time.Hour)},
		VehicleReg:       "ab12 cde",
		PaymentMethodRef: "pm_card",
	}
}

func TestCreateBooking_Success(t *testing.T) {
	f := newBookingFixture()

	f.spaces.On("GetByID", mock.Anything, uint(1)).Return(testSpace(), nil)
	f.bookings.On("FindBlocking", mock.Anything, uint(1), uint(0)).Return([]models.Booking{}, nil)
	f.bookings.On("CreateIfAvailable", mock.Anything, mock.Anything).Run(func(args mock.Arguments) {
		args.Get(1).(*models.Booking).ID = 42
	}).Return(nil)
	f.gateway.On("Charge", mock.Anything, mock.Anything).Return(&ChargeResult{
		ProviderRef: "pi_1",
		Status:      models.PaymentStatusSucceeded,
		CardBrand:   "visa",
		CardLast4:   "4242",
	}, nil)
	f.payments.On("Create", mock.Anything, mock.Anything).Return(nil)
	f.bookings.On("SaveStatusChecked", mock.Anything, mock.Anything).Return(nil)
	f.payments.On("Save", mock.Anything, mock.Anything).Return(nil)
	f.bookings.On("GetByID", mock.Anything, uint(42)).Return(&models.Booking{
		ID:   42,
		User: models.User{ID: 7, Email: "driver@example.test"},
	}, nil)
	f.notifier.On("Send", "driver@example.test", TemplateBookingConfirmed, mock.Anything).Return()
	f.events.On("Publish", "booking_confirmed", mock.Anything).Return()

	result, err := f.svc.CreateBooking(context.Background(), 7, createInput())

	assert.NoError(t, err)
	assert.Equal(t, models.BookingStatusConfirmed, result.Booking.Status)
	assert.Equal(t, int64(800), result.Booking.TotalCostPence)
	assert.Equal(t, "AB12CDE", result.Booking.VehicleReg)
	assert.False(t, result.RequiresAction)

	// The charge amount matches the priced range
	charge := f.gateway.Calls[0].Arguments.Get(1).(ChargeRequest)
	assert.Equal(t, int64(800), charge.AmountPence)
	assert.Equal(t, "gbp", charge.Currency)

	// The payment row carries the external transaction id
	payment := f.payments.Calls[0].Arguments.Get(1).(*models.Payment)
	assert.Equal(t, "pi_1", payment.ProviderRef)
	assert.Equal(t, uint(42), payment.BookingID)

	f.notifier.AssertNumberOfCalls(t, "Send", 1)
}

func TestCreateBooking_GuardFailuresMutateNothing(t *testing.T) {
	tests := []struct {
		name     string
		mutate   func(*CreateBookingInput)
		space    func() *models.ParkingSpace
		wantKind ErrorKind
	}{
		{
			name:     "start in the past",
			mutate:   func(in *CreateBookingInput) { in.Range.Start = testNow.Add(-time.Hour) },
			space:    testSpace,
			wantKind: ErrKindValidation,
		},
		{
			name:     "inverted range",
			mutate:   func(in *CreateBookingInput) { in.Range.End = in.Range.Start.Add(-time.Minute) },
			space:    testSpace,
			wantKind: ErrKindValidation,
		},
		{
			name:     "blank vehicle registration",
			mutate:   func(in *CreateBookingInput) { in.VehicleReg = "   " },
			space:    testSpace,
			wantKind: ErrKindValidation,
		},
		{
			name:     "missing payment method",
			mutate:   func(in *CreateBookingInput) { in.PaymentMethodRef = "" },
			space:    testSpace,
			wantKind: ErrKindValidation,
		},
		{
			name:   "inactive space",
			mutate: func(in *CreateBookingInput) {},
			space: func() *models.ParkingSpace {
				s := testSpace()
				s.IsActive = false
				return s
			},
			wantKind: ErrKindNotFound,
		},
		{
			name:   "own space",
			mutate: func(in *CreateBookingInput) {},
			space: func() *models.ParkingSpace {
				s := testSpace()
				s.OwnerID = 7
				return s
			},
			wantKind: ErrKindForbidden,
		},
		{
			name:   "space closed for the range",
			mutate: func(in *CreateBookingInput) {},
			space: func() *models.ParkingSpace {
				s := testSpace()
				s.Slots = []models.AvailabilitySlot{
					{DayOfWeek: 0, StartTime: "09:00", EndTime: "17:00", IsActive: true},
				}
				return s
			},
			wantKind: ErrKindConflict,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newBookingFixture()
			f.spaces.On("GetByID", mock.Anything, uint(1)).Return(tt.space(), nil)
			f.bookings.On("FindBlocking", mock.Anything, uint(1), uint(0)).Return([]models.Booking{}, nil)

			input := createInput()
			tt.mutate(&input)

			_, err := f.svc.CreateBooking(context.Background(), 7, input)

			assert.Error(t, err)
			assert.Equal(t, tt.wantKind, AsServiceError(err).Kind)
			f.bookings.AssertNotCalled(t, "CreateIfAvailable", mock.Anything, mock.Anything)
			f.gateway.AssertNotCalled(t, "Charge", mock.Anything, mock.Anything)
		})
	}
}

func TestCreateBooking_ConflictBeforeCharge(t *testing.T) {
	f := newBookingFixture()

	held := models.Booking{
		ID:        9,
		StartTime: testNow.Add(3 * time.Hour),
		EndTime:   testNow.Add(5 * time.Hour),
		Status:    models.BookingStatusConfirmed,
	}
	f.spaces.On("GetByID", mock.Anything, uint(1)).Return(testSpace(), nil)
	f.bookings.On("FindBlocking", mock.Anything, uint(1), uint(0)).Return([]models.Booking{held}, nil)

	_, err := f.svc.CreateBooking(context.Background(), 7, createInput())

	assert.Error(t, err)
	assert.Equal(t, ErrKindConflict, AsServiceError(err).Kind)
	f.gateway.AssertNotCalled(t, "Charge", mock.Anything, mock.Anything)
}

func TestCreateBooking_InsertRaceLost(t *testing.T) {
	f := newBookingFixture()

	f.spaces.On("GetByID", mock.Anything, uint(1)).Return(testSpace(), nil)
	f.bookings.On("FindBlocking", mock.Anything, uint(1), uint(0)).Return([]models.Booking{}, nil)
	f.bookings.On("CreateIfAvailable", mock.Anything, mock.Anything).Return(repository.ErrBookingConflict)

	_, err := f.svc.CreateBooking(context.Background(), 7, createInput())

	assert.Error(t, err)
	assert.Equal(t, ErrKindConflict, AsServiceError(err).Kind)
	f.gateway.AssertNotCalled(t, "Charge", mock.Anything, mock.Anything)
}

func TestCreateBooking_PaymentDeclined(t *testing.T) {
	f := newBookingFixture()

	f.spaces.On("GetByID", mock.Anything, uint(1)).Return(testSpace(), nil)
	f.bookings.On("FindBlocking", mock.Anything, uint(1), uint(0)).Return([]models.Booking{}, nil)
	f.bookings.On("CreateIfAvailable", mock.Anything, mock.Anything).Run(func(args mock.Arguments) {
		args.Get(1).(*models.Booking).ID = 42
	}).Return(nil)
	f.gateway.On("Charge", mock.Anything, mock.Anything).Return(&ChargeResult{
		ProviderRef:   "pi_declined",
		Status:        models.PaymentStatusFailed,
		FailureReason: "card_declined",
	}, nil)
	f.payments.On("Create", mock.Anything, mock.Anything).Return(nil)
	f.bookings.On("Save", mock.Anything, mock.Anything).Return(nil)
	f.events.On("Publish", "booking_cancelled", mock.Anything).Return()

	_, err := f.svc.CreateBooking(context.Background(), 7, createInput())

	assert.Error(t, err)
	assert.Equal(t, ErrKindPaymentFailed, AsServiceError(err).Kind)

	// The declined transaction id is still recorded before the cancel
	payment := f.payments.Calls[0].Arguments.Get(1).(*models.Payment)
	assert.Equal(t, "pi_declined", payment.ProviderRef)
	assert.Equal(t, models.PaymentStatusFailed, payment.Status)

	saved := f.bookings.Calls[len(f.bookings.Calls)-1].Arguments.Get(1).(*models.Booking)
	assert.Equal(t, models.BookingStatusCancelled, saved.Status)
}

func TestCreateBooking_ProcessingStaysPending(t *testing.T) {
	f := newBookingFixture()

	f.spaces.On("GetByID", mock.Anything, uint(1)).Return(testSpace(), nil)
	f.bookings.On("FindBlocking", mock.Anything, uint(1), uint(0)).Return([]models.Booking{}, nil)
	f.bookings.On("CreateIfAvailable", mock.Anything, mock.Anything).Run(func(args mock.Arguments) {
		args.Get(1).(*models.Booking).ID = 42
	}).Return(nil)
	f.gateway.On("Charge", mock.Anything, mock.Anything).Return(&ChargeResult{
		ProviderRef:    "pi_3ds",
		Status:         models.PaymentStatusProcessing,
		RequiresAction: true,
		ClientSecret:   "pi_3ds_secret",
	}, nil)
	f.payments.On("Create", mock.Anything, mock.Anything).Return(nil)

	result, err := f.svc.CreateBooking(context.Background(), 7, createInput())

	assert.NoError(t, err)
	assert.Equal(t, models.BookingStatusPending, result.Booking.Status)
	assert.True(t, result.RequiresAction)
	assert.Equal(t, "pi_3ds_secret", result.ClientSecret)
	f.bookings.AssertNotCalled(t, "SaveStatusChecked", mock.Anything, mock.Anything)
}

func TestCreateBooking_ConfirmRaceLostQueuesRefund(t *testing.T) {
	f := newBookingFixture()

	f.spaces.On("GetByID", mock.Anything, uint(1)).Return(testSpace(), nil)
	f.bookings.On("FindBlocking", mock.Anything, uint(1), uint(0)).Return([]models.Booking{}, nil)
	f.bookings.On("CreateIfAvailable", mock.Anything, mock.Anything).Run(func(args mock.Arguments) {
		args.Get(1).(*models.Booking).ID = 42
	}).Return(nil)
	f.gateway.On("Charge", mock.Anything, mock.Anything).Return(&ChargeResult{
		ProviderRef: "pi_1",
		Status:      models.PaymentStatusSucceeded,
	}, nil)
	f.payments.On("Create", mock.Anything, mock.Anything).Return(nil)
	f.bookings.On("SaveStatusChecked", mock.Anything, mock.Anything).Return(repository.ErrBookingConflict)
	f.bookings.On("Save", mock.Anything, mock.Anything).Return(nil)
	f.payments.On("Save", mock.Anything, mock.Anything).Return(nil)
	f.events.On("Publish", "booking_cancelled", mock.Anything).Return()

	_, err := f.svc.CreateBooking(context.Background(), 7, createInput())

	assert.Error(t, err)
	assert.Equal(t, ErrKindConflict, AsServiceError(err).Kind)

	// The charged payment is queued for refund
	payment := f.payments.Calls[len(f.payments.Calls)-1].Arguments.Get(1).(*models.Payment)
	assert.True(t, payment.RefundPending)
	assert.Equal(t, int64(800), *payment.RefundPence)
}

func confirmedBooking() *models.Booking {
	return &models.Booking{
		ID:             42,
		UserID:         7,
		SpaceID:        1,
		StartTime:      testNow.Add(2 * time.Hour),
		EndTime:        testNow.Add(4 * time.Hour),
		TotalCostPence: 800,
		Status:         models.BookingStatusConfirmed,
		VehicleReg:     "AB12CDE",
		User:           models.User{ID: 7, Email: "driver@example.test"},
	}
}

func TestCancelBooking_FullRefundWithNotice(t *testing.T) {
	f := newBookingFixture()

	booking := confirmedBooking() // starts 2h from now, over the 1h threshold
	f.bookings.On("GetByID", mock.Anything, uint(42)).Return(booking, nil)
	f.bookings.On("Save", mock.Anything, booking).Return(nil)
	f.payments.On("FindByBooking", mock.Anything, uint(42)).Return([]models.Payment{
		{ID: 5, BookingID: 42, AmountPence: 800, Status: models.PaymentStatusSucceeded, ProviderRef: "pi_1"},
	}, nil)
	f.gateway.On("Refund", mock.Anything, "pi_1", int64(800), mock.Anything).Return(&RefundResult{RefundRef: "re_1", Succeeded: true}, nil)
	f.payments.On("Save", mock.Anything, mock.Anything).Return(nil)
	f.notifier.On("Send", "driver@example.test", TemplateBookingCancelled, mock.Anything).Return()
	f.events.On("Publish", "booking_cancelled", mock.Anything).Return()

	cancelled, refund, err := f.svc.CancelBooking(context.Background(), 42, 7)

	assert.NoError(t, err)
	assert.Equal(t, int64(800), refund)
	assert.Equal(t, models.BookingStatusCancelled, cancelled.Status)
	assert.NotNil(t, cancelled.CancelledAt)

	refunded := f.payments.Calls[len(f.payments.Calls)-1].Arguments.Get(1).(*models.Payment)
	assert.Equal(t, models.PaymentStatusRefunded, refunded.Status)
	assert.False(t, refunded.RefundPending)
}

func TestCancelBooking_LateCancellationRefundsHalf(t *testing.T) {
	f := newBookingFixture()

	booking := confirmedBooking()
	booking.StartTime = testNow.Add(30 * time.Minute)
	booking.TotalCostPence = 801

	f.bookings.On("GetByID", mock.Anything, uint(42)).Return(booking, nil)
	f.bookings.On("Save", mock.Anything, booking).Return(nil)
	f.payments.On("FindByBooking", mock.Anything, uint(42)).Return([]models.Payment{
		{ID: 5, BookingID: 42, AmountPence: 801, Status: models.PaymentStatusSucceeded, ProviderRef: "pi_1"},
	}, nil)
	// 801 halves to 401 with half-up rounding
	f.gateway.On("Refund", mock.Anything, "pi_1", int64(401), mock.Anything).Return(&RefundResult{RefundRef: "re_1", Succeeded: true}, nil)
	f.payments.On("Save", mock.Anything, mock.Anything).Return(nil)
	f.notifier.On("Send", mock.Anything, TemplateBookingCancelled, mock.Anything).Return()
	f.events.On("Publish", "booking_cancelled", mock.Anything).Return()

	_, refund, err := f.svc.CancelBooking(context.Background(), 42, 7)

	assert.NoError(t, err)
	assert.Equal(t, int64(401), refund)
}

func TestCancelBooking_AccumulatesOnPartiallyRefundedPayment(t *testing.T) {
	f := newBookingFixture()

	booking := confirmedBooking()
	prior := int64(300)
	priorRef := "re_admin"
	f.bookings.On("GetByID", mock.Anything, uint(42)).Return(booking, nil)
	f.bookings.On("Save", mock.Anything, booking).Return(nil)
	f.payments.On("FindByBooking", mock.Anything, uint(42)).Return([]models.Payment{
		{
			ID:          5,
			BookingID:   42,
			AmountPence: 800,
			Status:      models.PaymentStatusSucceeded,
			ProviderRef: "pi_1",
			RefundPence: &prior,
			RefundRef:   &priorRef,
		},
	}, nil)
	// Only the unrefunded remainder goes back to the processor
	f.gateway.On("Refund", mock.Anything, "pi_1", int64(500), mock.Anything).Return(&RefundResult{RefundRef: "re_cancel", Succeeded: true}, nil)
	f.payments.On("Save", mock.Anything, mock.Anything).Return(nil)
	f.notifier.On("Send", mock.Anything, TemplateBookingCancelled, mock.Anything).Return()
	f.events.On("Publish", "booking_cancelled", mock.Anything).Return()

	_, _, err := f.svc.CancelBooking(context.Background(), 42, 7)

	assert.NoError(t, err)

	saved := f.payments.Calls[len(f.payments.Calls)-1].Arguments.Get(1).(*models.Payment)
	assert.Equal(t, int64(800), *saved.RefundPence, "prior partial refund is kept in the total")
	assert.Equal(t, models.PaymentStatusRefunded, saved.Status)
}

func TestCancelBooking_PendingRefundsNothing(t *testing.T) {
	f := newBookingFixture()

	booking := confirmedBooking()
	booking.Status = models.BookingStatusPending
	f.bookings.On("GetByID", mock.Anything, uint(42)).Return(booking, nil)
	f.bookings.On("Save", mock.Anything, booking).Return(nil)
	f.notifier.On("Send", mock.Anything, TemplateBookingCancelled, mock.Anything).Return()
	f.events.On("Publish", "booking_cancelled", mock.Anything).Return()

	_, refund, err := f.svc.CancelBooking(context.Background(), 42, 7)

	assert.NoError(t, err)
	assert.Equal(t, int64(0), refund)
	f.gateway.AssertNotCalled(t, "Refund", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestCancelBooking_ProcessorFailureQueuesRefund(t *testing.T) {
	f := newBookingFixture()

	booking := confirmedBooking()
	f.bookings.On("GetByID", mock.Anything, uint(42)).Return(booking, nil)
	f.bookings.On("Save", mock.Anything, booking).Return(nil)
	f.payments.On("FindByBooking", mock.Anything, uint(42)).Return([]models.Payment{
		{ID: 5, BookingID: 42, AmountPence: 800, Status: models.PaymentStatusSucceeded, ProviderRef: "pi_1"},
	}, nil)
	f.gateway.On("Refund", mock.Anything, "pi_1", int64(800), mock.Anything).Return(nil, DependencyError("processor down"))
	f.payments.On("Save", mock.Anything, mock.Anything).Return(nil)
	f.notifier.On("Send", mock.Anything, TemplateBookingCancelled, mock.Anything).Return()
	f.events.On("Publish", "booking_cancelled", mock.Anything).Return()

	cancelled, refund, err := f.svc.CancelBooking(context.Background(), 42, 7)

	// Local cancellation is authoritative even when the processor is down
	assert.NoError(t, err)
	assert.Equal(t, int64(800), refund)
	assert.Equal(t, models.BookingStatusCancelled, cancelled.Status)

	queued := f.payments.Calls[len(f.payments.Calls)-1].Arguments.Get(1).(*models.Payment)
	assert.True(t, queued.RefundPending)
}

func TestCancelBooking_GuardsStatusAndOwnership(t *testing.T) {
	f := newBookingFixture()

	active := confirmedBooking()
	active.Status = models.BookingStatusActive
	f.bookings.On("GetByID", mock.Anything, uint(42)).Return(active, nil)

	_, _, err := f.svc.CancelBooking(context.Background(), 42, 7)
	assert.Equal(t, ErrKindConflict, AsServiceError(err).Kind)

	_, _, err = f.svc.CancelBooking(context.Background(), 42, 1234)
	assert.Equal(t, ErrKindForbidden, AsServiceError(err).Kind)
}

func TestExtendBooking_Success(t *testing.T) {
	f := newBookingFixture()

	booking := confirmedBooking()
	newEnd := booking.EndTime.Add(time.Hour)

	f.bookings.On("GetByID", mock.Anything, uint(42)).Return(booking, nil)
	f.spaces.On("GetByID", mock.Anything, uint(1)).Return(testSpace(), nil)
	f.bookings.On("FindBlocking", mock.Anything, uint(1), uint(42)).Return([]models.Booking{}, nil)
	f.bookings.On("ExtendIfAvailable", mock.Anything, booking, newEnd, int64(400)).Return(nil)
	f.gateway.On("Charge", mock.Anything, mock.Anything).Return(&ChargeResult{
		ProviderRef: "pi_ext",
		Status:      models.PaymentStatusSucceeded,
	}, nil)
	f.payments.On("Create", mock.Anything, mock.Anything).Return(nil)
	f.notifier.On("Send", "driver@example.test", TemplateBookingExtended, mock.Anything).Return()
	f.events.On("Publish", "booking_extended", mock.Anything).Return()

	extended, err := f.svc.ExtendBooking(context.Background(), 42, 7, newEnd, "pm_card")

	assert.NoError(t, err)
	assert.Equal(t, newEnd, extended.EndTime)
	assert.Equal(t, int64(1200), extended.TotalCostPence)

	// Only the increment is charged
	charge := f.gateway.Calls[0].Arguments.Get(1).(ChargeRequest)
	assert.Equal(t, int64(400), charge.AmountPence)
}

func TestExtendBooking_IncrementConflict(t *testing.T) {
	f := newBookingFixture()

	booking := confirmedBooking()
	newEnd := booking.EndTime.Add(time.Hour)
	neighbour := models.Booking{
		ID:        77,
		StartTime: booking.EndTime,
		EndTime:   booking.EndTime.Add(2 * time.Hour),
		Status:    models.BookingStatusConfirmed,
	}

	f.bookings.On("GetByID", mock.Anything, uint(42)).Return(booking, nil)
	f.spaces.On("GetByID", mock.Anything, uint(1)).Return(testSpace(), nil)
	f.bookings.On("FindBlocking", mock.Anything, uint(1), uint(42)).Return([]models.Booking{neighbour}, nil)

	_, err := f.svc.ExtendBooking(context.Background(), 42, 7, newEnd, "pm_card")

	assert.Error(t, err)
	assert.Equal(t, ErrKindConflict, AsServiceError(err).Kind)
	f.gateway.AssertNotCalled(t, "Charge", mock.Anything, mock.Anything)
}

func TestExtendBooking_DeclinedChargeReverts(t *testing.T) {
	f := newBookingFixture()

	booking := confirmedBooking()
	oldEnd := booking.EndTime
	newEnd := oldEnd.Add(time.Hour)

	f.bookings.On("GetByID", mock.Anything, uint(42)).Return(booking, nil)
	f.spaces.On("GetByID", mock.Anything, uint(1)).Return(testSpace(), nil)
	f.bookings.On("FindBlocking", mock.Anything, uint(1), uint(42)).Return([]models.Booking{}, nil)
	f.bookings.On("ExtendIfAvailable", mock.Anything, booking, newEnd, int64(400)).Return(nil)
	f.gateway.On("Charge", mock.Anything, mock.Anything).Return(&ChargeResult{
		ProviderRef: "pi_ext",
		Status:      models.PaymentStatusFailed,
	}, nil)
	f.payments.On("Create", mock.Anything, mock.Anything).Return(nil)
	f.bookings.On("RestoreRange", mock.Anything, booking, oldEnd, int64(800)).Return(nil)

	_, err := f.svc.ExtendBooking(context.Background(), 42, 7, newEnd, "pm_card")

	assert.Error(t, err)
	assert.Equal(t, ErrKindPaymentFailed, AsServiceError(err).Kind)
	assert.Equal(t, oldEnd, booking.EndTime)
	assert.Equal(t, int64(800), booking.TotalCostPence)
	f.bookings.AssertCalled(t, "RestoreRange", mock.Anything, booking, oldEnd, int64(800))
}

func TestExtendBooking_RejectsEarlierEnd(t *testing.T) {
	f := newBookingFixture()

	booking := confirmedBooking()
	f.bookings.On("GetByID", mock.Anything, uint(42)).Return(booking, nil)

	_, err := f.svc.ExtendBooking(context.Background(), 42, 7, booking.EndTime.Add(-time.Minute), "pm_card")

	assert.Equal(t, ErrKindValidation, AsServiceError(err).Kind)
}

func TestStartSession_WithinWindow(t *testing.T) {
	f := newBookingFixture()

	booking := confirmedBooking()
	booking.StartTime = testNow.Add(10 * time.Minute) // inside the 15 minute window
	booking.EndTime = booking.StartTime.Add(2 * time.Hour)

	f.bookings.On("GetByID", mock.Anything, uint(42)).Return(booking, nil)
	f.bookings.On("Save", mock.Anything, booking).Return(nil)
	f.events.On("Publish", "session_started", mock.Anything).Return()

	started, err := f.svc.StartSession(context.Background(), 42, 7)

	assert.NoError(t, err)
	assert.Equal(t, models.BookingStatusActive, started.Status)
	assert.Equal(t, testNow, *started.StartedAt)
}

func TestStartSession_TooEarly(t *testing.T) {
	f := newBookingFixture()

	booking := confirmedBooking() // starts 2h from now
	f.bookings.On("GetByID", mock.Anything, uint(42)).Return(booking, nil)

	_, err := f.svc.StartSession(context.Background(), 42, 7)

	assert.Equal(t, ErrKindConflict, AsServiceError(err).Kind)
	assert.Equal(t, models.BookingStatusConfirmed, booking.Status)
}

func TestStopSession(t *testing.T) {
	f := newBookingFixture()

	booking := confirmedBooking()
	booking.Status = models.BookingStatusActive
	f.bookings.On("GetByID", mock.Anything, uint(42)).Return(booking, nil)
	f.bookings.On("Save", mock.Anything, booking).Return(nil)
	f.events.On("Publish", "session_completed", mock.Anything).Return()

	stopped, err := f.svc.StopSession(context.Background(), 42, 7)

	assert.NoError(t, err)
	assert.Equal(t, models.BookingStatusCompleted, stopped.Status)
	assert.Equal(t, testNow, *stopped.CompletedAt)
}

func TestStopSession_RequiresActive(t *testing.T) {
	f := newBookingFixture()

	booking := confirmedBooking()
	f.bookings.On("GetByID", mock.Anything, uint(42)).Return(booking, nil)

	_, err := f.svc.StopSession(context.Background(), 42, 7)

	assert.Equal(t, ErrKindConflict, AsServiceError(err).Kind)
}

func TestUpdateDetails(t *testing.T) {
	f := newBookingFixture()

	booking := confirmedBooking()
	f.bookings.On("GetByID", mock.Anything, uint(42)).Return(booking, nil)
	f.bookings.On("Save", mock.Anything, booking).Return(nil)

	newReg := "xy99 zzz"
	colour := "red"
	updated, err := f.svc.UpdateDetails(context.Background(), 42, 7, models.BookingDetailsUpdate{
		VehicleReg:    &newReg,
		VehicleColour: &colour,
	})

	assert.NoError(t, err)
	assert.Equal(t, "XY99ZZZ", updated.VehicleReg)
	assert.Equal(t, "red", *updated.VehicleColour)
}

func TestUpdateDetails_RejectedAfterStart(t *testing.T) {
	f := newBookingFixture()

	booking := confirmedBooking()
	booking.StartTime = testNow.Add(-time.Minute)
	f.bookings.On("GetByID", mock.Anything, uint(42)).Return(booking, nil)

	reg := "XY99ZZZ"
	_, err := f.svc.UpdateDetails(context.Background(), 42, 7, models.BookingDetailsUpdate{VehicleReg: &reg})

	assert.Equal(t, ErrKindConflict, AsServiceError(err).Kind)
}

func TestRefundPayment_PartialThenFull(t *testing.T) {
	f := newBookingFixture()

	payment := &models.Payment{
		ID:          5,
		BookingID:   42,
		AmountPence: 800,
		Status:      models.PaymentStatusSucceeded,
		ProviderRef: "pi_1",
	}
	booking := confirmedBooking()
	booking.Status = models.BookingStatusCompleted

	f.payments.On("GetByID", mock.Anything, uint(5)).Return(payment, nil)
	f.gateway.On("Refund", mock.Anything, "pi_1", int64(300), "overcharge").Return(&RefundResult{RefundRef: "re_1", Succeeded: true}, nil)
	f.payments.On("Save", mock.Anything, payment).Return(nil)
	f.bookings.On("GetByID", mock.Anything, uint(42)).Return(booking, nil)
	f.payments.On("FindByBooking", mock.Anything, uint(42)).Return([]models.Payment{*payment}, nil)
	f.notifier.On("Send", mock.Anything, TemplateRefundIssued, mock.Anything).Return()

	refunded, err := f.svc.RefundPayment(context.Background(), 5, 300, "overcharge")

	assert.NoError(t, err)
	assert.Equal(t, int64(300), *refunded.RefundPence)
	assert.Equal(t, models.PaymentStatusSucceeded, refunded.Status, "partial refund keeps the payment succeeded")

	// Second refund for the remainder flips the payment to refunded
	f.gateway.On("Refund", mock.Anything, "pi_1", int64(500), "overcharge").Return(&RefundResult{RefundRef: "re_2", Succeeded: true}, nil)

	refunded, err = f.svc.RefundPayment(context.Background(), 5, 0, "overcharge")
	assert.NoError(t, err)
	assert.Equal(t, int64(800), *refunded.RefundPence)
	assert.Equal(t, models.PaymentStatusRefunded, refunded.Status)
}

func TestRefundPayment_RejectsOverRefund(t *testing.T) {
	f := newBookingFixture()

	payment := &models.Payment{ID: 5, BookingID: 42, AmountPence: 800, Status: models.PaymentStatusSucceeded, ProviderRef: "pi_1"}
	f.payments.On("GetByID", mock.Anything, uint(5)).Return(payment, nil)

	_, err := f.svc.RefundPayment(context.Background(), 5, 900, "too much")

	assert.Equal(t, ErrKindValidation, AsServiceError(err).Kind)
	f.gateway.AssertNotCalled(t, "Refund", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestRetryPendingRefunds(t *testing.T) {
	f := newBookingFixture()

	amount := int64(800)
	queued := models.Payment{
		ID:            5,
		BookingID:     42,
		AmountPence:   800,
		Status:        models.PaymentStatusSucceeded,
		ProviderRef:   "pi_1",
		RefundPence:   &amount,
		RefundPending: true,
	}
	booking := confirmedBooking()
	booking.Status = models.BookingStatusCancelled

	f.payments.On("FindPendingRefunds", mock.Anything).Return([]models.Payment{queued}, nil)
	f.gateway.On("Refund", mock.Anything, "pi_1", int64(800), mock.Anything).Return(&RefundResult{RefundRef: "re_1", Succeeded: true}, nil)
	f.payments.On("Save", mock.Anything, mock.Anything).Return(nil)
	f.bookings.On("GetByID", mock.Anything, uint(42)).Return(booking, nil)

	retried, err := f.svc.RetryPendingRefunds(context.Background())

	assert.NoError(t, err)
	assert.Equal(t, 1, retried)

	saved := f.payments.Calls[len(f.payments.Calls)-1].Arguments.Get(1).(*models.Payment)
	assert.False(t, saved.RefundPending)
	assert.Equal(t, models.PaymentStatusRefunded, saved.Status)
}

func TestGetBooking_Visibility(t *testing.T) {
	f := newBookingFixture()

	booking := confirmedBooking()
	booking.Space = *testSpace() // owned by user 99
	f.bookings.On("GetByID", mock.Anything, uint(42)).Return(booking, nil)

	driver := &models.User{ID: 7, Role: models.RoleDriver}
	host := &models.User{ID: 99, Role: models.RoleHost}
	admin := &models.User{ID: 1, Role: models.RoleAdmin}
	stranger := &models.User{ID: 1234, Role: models.RoleDriver}

	for _, u := range []*models.User{driver, host, admin} {
		got, err := f.svc.GetBooking(context.Background(), 42, u)
		assert.NoError(t, err)
		assert.Equal(t, uint(42), got.ID)
	}

	_, err := f.svc.GetBooking(context.Background(), 42, stranger)
	assert.Equal(t, ErrKindForbidden, AsServiceError(err).Kind)
}
