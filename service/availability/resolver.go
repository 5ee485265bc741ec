package availability

import (
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/teambition/rrule-go"
	"gorm.io/gorm"

	"github.com/bookwise/bookwise-server/cmd/models"
)

// Resolver queries only accept bounded ranges.
const maxRangeDays = 92

var ErrInvalidRange = errors.New("date range must be bounded, ordered and at most 92 days")

// Instance is one concrete bookable occurrence of a slot.
type Instance struct {
	TimeSlotID uint   `json:"time_slot_id"`
	Date       string `json:"date"`
	StartTime  string `json:"start_time"`
	EndTime    string `json:"end_time"`
}

var rruleWeekdays = map[int]rrule.Weekday{
	0: rrule.SU,
	1: rrule.MO,
	2: rrule.TU,
	3: rrule.WE,
	4: rrule.TH,
	5: rrule.FR,
	6: rrule.SA,
}

// ListOpenInstances enumerates every (slot, date) occurrence of the host's
// recurring slots inside the inclusive range, minus those with an active
// booking. Read-only; the ordering (date, then slot start time, then slot
// id) is fixed so identical inputs yield identical sequences.
func ListOpenInstances(db *gorm.DB, hostID uint, start, end time.Time) ([]Instance, error) {
	start = time.Date(start.Year(), start.Month(), start.Day(), 0, 0, 0, 0, time.UTC)
	end = time.Date(end.Year(), end.Month(), end.Day(), 0, 0, 0, 0, time.UTC)
	if end.Before(start) || end.Sub(start) > maxRangeDays*24*time.Hour {
		return nil, ErrInvalidRange
	}

	var slots []models.TimeSlot
	if err := db.Where("host_id = ?", hostID).Find(&slots).Error; err != nil {
		return nil, err
	}

	booked, err := activeBookingKeys(db, hostID, start, end)
	if err != nil {
		return nil, err
	}

	instances := make([]Instance, 0)
	for _, slot := range slots {
		byday := make([]rrule.Weekday, 0, len(slot.Weekdays))
		for _, d := range slot.Weekdays {
			wd, ok := rruleWeekdays[d]
			if !ok {
				continue
			}
			byday = append(byday, wd)
		}
		if len(byday) == 0 {
			continue
		}

		rule, err := rrule.NewRRule(rrule.ROption{
			Freq:      rrule.WEEKLY,
			Byweekday: byday,
			Dtstart:   start,
		})
		if err != nil {
			return nil, fmt.Errorf("building recurrence for slot %d: %w", slot.ID, err)
		}

		for _, occ := range rule.Between(start, end, true) {
			key := instanceKey(slot.ID, occ)
			if booked[key] {
				continue
			}
			instances = append(instances, Instance{
				TimeSlotID: slot.ID,
				Date:       occ.Format("2006-01-02"),
				StartTime:  slot.StartTime,
				EndTime:    slot.EndTime,
			})
		}
	}

	sort.Slice(instances, func(i, j int) bool {
		if instances[i].Date != instances[j].Date {
			return instances[i].Date < instances[j].Date
		}
		if instances[i].StartTime != instances[j].StartTime {
			return instances[i].StartTime < instances[j].StartTime
		}
		return instances[i].TimeSlotID < instances[j].TimeSlotID
	})

	return instances, nil
}

func activeBookingKeys(db *gorm.DB, hostID uint, start, end time.Time) (map[string]bool, error) {
	var bookings []models.Booking
	err := db.Where("host_id = ? AND booking_date >= ? AND booking_date <= ? AND attendance_status <> ?",
		hostID, start, end, models.StatusCancelled).Find(&bookings).Error
	if err != nil {
		return nil, err
	}

	keys := make(map[string]bool, len(bookings))
	for _, b := range bookings {
		keys[instanceKey(b.TimeSlotID, b.BookingDate)] = true
	}
	return keys, nil
}

func instanceKey(slotID uint, date time.Time) string {
	return fmt.Sprintf("%d|%s", slotID, date.Format("2006-01-02"))
}
