package models

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestBookingTransitions(t *testing.T) {
	legal := []struct {
		from BookingStatus
		to   BookingStatus
	}{
		{BookingStatusPending, BookingStatusConfirmed},
		{BookingStatusPending, BookingStatusCancelled},
		{BookingStatusConfirmed, BookingStatusActive},
		{BookingStatusConfirmed, BookingStatusCancelled},
		{BookingStatusConfirmed, BookingStatusRefunded},
		{BookingStatusActive, BookingStatusCompleted},
		{BookingStatusCompleted, BookingStatusRefunded},
	}
	for _, tt := range legal {
		b := &Booking{Status: tt.from}
		assert.True(t, b.CanTransition(tt.to), "%s -> %s should be legal", tt.from, tt.to)
		assert.NoError(t, b.Transition(tt.to))
		assert.Equal(t, tt.to, b.Status)
	}

	illegal := []struct {
		from BookingStatus
		to   BookingStatus
	}{
		{BookingStatusPending, BookingStatusActive},
		{BookingStatusPending, BookingStatusCompleted},
		{BookingStatusPending, BookingStatusRefunded},
		{BookingStatusConfirmed, BookingStatusCompleted},
		{BookingStatusActive, BookingStatusCancelled},
		{BookingStatusActive, BookingStatusRefunded},
		{BookingStatusCompleted, BookingStatusCancelled},
		{BookingStatusCancelled, BookingStatusConfirmed},
		{BookingStatusCancelled, BookingStatusRefunded},
		{BookingStatusRefunded, BookingStatusConfirmed},
	}
	for _, tt := range illegal {
		b := &Booking{Status: tt.from}
		assert.False(t, b.CanTransition(tt.to), "%s -> %s should be illegal", tt.from, tt.to)
		assert.Error(t, b.Transition(tt.to))
		assert.Equal(t, tt.from, b.Status, "status must not change on a rejected transition")
	}
}

func TestIsTerminal(t *testing.T) {
	assert.True(t, (&Booking{Status: BookingStatusCancelled}).IsTerminal())
	assert.True(t, (&Booking{Status: BookingStatusRefunded}).IsTerminal())
	assert.False(t, (&Booking{Status: BookingStatusPending}).IsTerminal())
	assert.False(t, (&Booking{Status: BookingStatusCompleted}).IsTerminal())
}

func TestStatusIsBlocking(t *testing.T) {
	assert.True(t, BookingStatusConfirmed.IsBlocking())
	assert.True(t, BookingStatusActive.IsBlocking())
	assert.False(t, BookingStatusPending.IsBlocking())
	assert.False(t, BookingStatusCompleted.IsBlocking())
	assert.False(t, BookingStatusCancelled.IsBlocking())
	assert.False(t, BookingStatusRefunded.IsBlocking())
}

func TestCanStartSessionAt(t *testing.T) {
	start := time.Date(2026, 3, 10, 10, 0, 0, 0, time.UTC)
	b := &Booking{
		Status:    BookingStatusConfirmed,
		StartTime: start,
		EndTime:   start.Add(2 * time.Hour),
	}

	assert.False(t, b.CanStartSessionAt(start.Add(-16*time.Minute)))
	assert.True(t, b.CanStartSessionAt(start.Add(-15*time.Minute)))
	assert.True(t, b.CanStartSessionAt(start))
	assert.True(t, b.CanStartSessionAt(start.Add(time.Hour)))
	assert.True(t, b.CanStartSessionAt(b.EndTime))
	assert.False(t, b.CanStartSessionAt(b.EndTime.Add(time.Second)))
}

func TestNormalizeVehicleReg(t *testing.T) {
	assert.Equal(t, "AB12CDE", NormalizeVehicleReg("ab12 cde"))
	assert.Equal(t, "AB12CDE", NormalizeVehicleReg("  AB12 CDE  "))
	assert.Equal(t, "", NormalizeVehicleReg("   "))
}
