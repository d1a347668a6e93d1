package services

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"parking-marketplace-server/models"
	"parking-marketplace-server/utils"
)

// BookingFinder loads the bookings that can block a space. Implemented by the
// gorm repository; faked in tests.
type BookingFinder interface {
	FindBlocking(ctx context.Context, spaceID uint, excludeBookingID uint) ([]models.Booking, error)
}

// AvailabilityService answers "is this space free for this range". This is the
// fast-fail check; the transactional re-check plus the exclusion constraint in
// the repository remain the source of truth under concurrent requests.
type AvailabilityService struct {
	bookings BookingFinder
}

func NewAvailabilityService(bookings BookingFinder) *AvailabilityService {
	return &AvailabilityService{bookings: bookings}
}

// IsAvailable reports whether no confirmed/active booking for the space
// overlaps the candidate range. excludeBookingID removes the booking being
// extended from the collision set; pass 0 for none.
func (s *AvailabilityService) IsAvailable(ctx context.Context, spaceID uint, r utils.TimeRange, excludeBookingID uint) (bool, error) {
	existing, err := s.bookings.FindBlocking(ctx, spaceID, excludeBookingID)
	if err != nil {
		return false, err
	}

	for _, b := range existing {
		held := utils.TimeRange{Start: b.StartTime, End: b.EndTime}
		if held.Overlaps(r) {
			return false, nil
		}
	}
	return true, nil
}

// ParseSlotTime converts an "HH:MM" slot boundary to minutes from midnight.
// "24:00" is accepted as end-of-day.
func ParseSlotTime(s string) (int, error) {
	parts := strings.SplitN(s, ":", 2)
	if len(parts) != 2 {
		return 0, fmt.Errorf("invalid slot time %q", s)
	}
	h, err := strconv.Atoi(parts[0])
	if err != nil {
		return 0, fmt.Errorf("invalid slot time %q", s)
	}
	m, err := strconv.Atoi(parts[1])
	if err != nil {
		return 0, fmt.Errorf("invalid slot time %q", s)
	}
	if h < 0 || h > 24 || m < 0 || m > 59 || (h == 24 && m != 0) {
		return 0, fmt.Errorf("slot time %q out of range", s)
	}
	return h*60 + m, nil
}

// minuteInterval is a [start,end) window in minutes from local midnight
type minuteInterval struct {
	start int
	end   int
}

// SlotsCover reports whether the booking range falls entirely inside the
// space's active weekly open windows. A space with no slots defined is open
// around the clock. Overlapping slots on the same day are unioned.
func SlotsCover(slots []models.AvailabilitySlot, r utils.TimeRange) bool {
	active := slots[:0:0]
	for _, s := range slots {
		if s.IsActive {
			active = append(active, s)
		}
	}
	if len(active) == 0 {
		return true
	}

	// Walk the range one local day at a time and require each day segment to
	// be covered by that weekday's merged slots.
	cursor := r.Start
	for cursor.Before(r.End) {
		midnight := time.Date(cursor.Year(), cursor.Month(), cursor.Day(), 0, 0, 0, 0, cursor.Location())
		nextMidnight := midnight.AddDate(0, 0, 1)

		segEnd := r.End
		if nextMidnight.Before(segEnd) {
			segEnd = nextMidnight
		}

		startMin := int(cursor.Sub(midnight) / time.Minute)
		endMin := int(segEnd.Sub(midnight) / time.Minute)
		if segEnd.Equal(nextMidnight) {
			endMin = 24 * 60
		}

		if !dayCovered(active, int(cursor.Weekday()), startMin, endMin) {
			return false
		}
		cursor = nextMidnight
	}
	return true
}

// dayCovered merges the weekday's slots and checks [startMin,endMin) is inside
// the union
func dayCovered(slots []models.AvailabilitySlot, weekday, startMin, endMin int) bool {
	var windows []minuteInterval
	for _, s := range slots {
		if s.DayOfWeek != weekday {
			continue
		}
		from, err := ParseSlotTime(s.StartTime)
		if err != nil {
			continue
		}
		to, err := ParseSlotTime(s.EndTime)
		if err != nil {
			continue
		}
		if to == 0 {
			to = 24 * 60
		}
		if to > from {
			windows = append(windows, minuteInterval{start: from, end: to})
		}
	}
	if len(windows) == 0 {
		return false
	}

	sort.Slice(windows, func(i, j int) bool { return windows[i].start < windows[j].start })

	// Merge and advance a cover pointer through the required segment
	need := startMin
	for _, w := range windows {
		if need >= endMin {
			return true
		}
		if w.start > need {
			return false
		}
		if w.end > need {
			need = w.end
		}
	}
	return need >= endMin
}
