package booking

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"gorm.io/gorm"

	"github.com/bookwise/bookwise-server/cmd/models"
	"github.com/bookwise/bookwise-server/service/calsync"
	"github.com/bookwise/bookwise-server/service/events"
)

// Service owns the booking state machine. Every mutating call runs inside
// one transaction covering the guard checks and the row write; external
// calendar work is enqueued on that same transaction and dispatched only
// after it commits.
type Service struct {
	db     *gorm.DB
	syncer *calsync.Coordinator
	events *events.Publisher // nil when no broker is configured
}

func NewService(db *gorm.DB, syncer *calsync.Coordinator, pub *events.Publisher) *Service {
	return &Service{db: db, syncer: syncer, events: pub}
}

type CreateInput struct {
	GuestID     uint
	TimeSlotID  uint
	Date        time.Time
	Topic       string
	Description string
}

func truncateToDate(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

// Create reserves a slot instance for a guest. The new booking starts in
// PENDING and, when the host has an active calendar binding, owes the
// external calendar a create-event call.
func (s *Service) Create(ctx context.Context, in CreateInput) (*models.Booking, error) {
	if in.Topic == "" {
		return nil, fmt.Errorf("%w: topic is required", ErrInvalidInput)
	}

	date := truncateToDate(in.Date)
	if date.Before(truncateToDate(time.Now().UTC())) {
		return nil, ErrInvalidDate
	}

	var created *models.Booking
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var slot models.TimeSlot
		if err := tx.First(&slot, in.TimeSlotID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrSlotNotFound
			}
			return err
		}

		if !slot.Weekdays.Contains(date.Weekday()) {
			return ErrInvalidDate
		}

		if err := ensureSlotFree(tx, slot.ID, date, 0); err != nil {
			return err
		}

		b := models.Booking{
			TimeSlotID:       slot.ID,
			HostID:           slot.HostID,
			GuestID:          in.GuestID,
			BookingDate:      date,
			StartTime:        slot.StartTime,
			EndTime:          slot.EndTime,
			Topic:            in.Topic,
			Description:      in.Description,
			AttendanceStatus: models.StatusPending,
		}
		if err := tx.Create(&b).Error; err != nil {
			// Lost the race on the partial unique index.
			if errors.Is(err, gorm.ErrDuplicatedKey) {
				return ErrSlotAlreadyBooked
			}
			return err
		}

		if err := s.enqueueCreateIfBound(tx, &b); err != nil {
			return err
		}

		created = &b
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.syncer.Kick()
	s.publish(ctx, "booking.created", created)
	return created, nil
}

// Reschedule moves a PENDING or CONFIRMED booking to a new slot/date,
// re-running all create guards against the target. The old slot/date pair is
// released and the new one occupied atomically; the external event follows
// (old one retracted, new one created).
func (s *Service) Reschedule(ctx context.Context, bookingID, memberID, newSlotID uint, newDate time.Time) (*models.Booking, error) {
	date := truncateToDate(newDate)
	if date.Before(truncateToDate(time.Now().UTC())) {
		return nil, ErrInvalidDate
	}

	var updated *models.Booking
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var b models.Booking
		if err := tx.First(&b, bookingID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrBookingNotFound
			}
			return err
		}

		if b.GuestID != memberID {
			return ErrForbidden
		}
		if b.AttendanceStatus != models.StatusPending && b.AttendanceStatus != models.StatusConfirmed {
			return ErrInvalidTransition
		}

		var slot models.TimeSlot
		if err := tx.First(&slot, newSlotID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrSlotNotFound
			}
			return err
		}
		if !slot.Weekdays.Contains(date.Weekday()) {
			return ErrInvalidDate
		}
		if err := ensureSlotFree(tx, slot.ID, date, b.ID); err != nil {
			return err
		}

		// Retract the event scheduled at the old slot before creating the
		// replacement on the (possibly different) host's calendar.
		if err := s.enqueueDeleteForBooking(tx, &b); err != nil {
			return err
		}

		b.TimeSlotID = slot.ID
		b.HostID = slot.HostID
		b.BookingDate = date
		b.StartTime = slot.StartTime
		b.EndTime = slot.EndTime
		b.ExternalEventID = ""
		if err := tx.Save(&b).Error; err != nil {
			if errors.Is(err, gorm.ErrDuplicatedKey) {
				return ErrSlotAlreadyBooked
			}
			return err
		}

		if err := s.enqueueCreateIfBound(tx, &b); err != nil {
			return err
		}

		updated = &b
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.syncer.Kick()
	s.publish(ctx, "booking.rescheduled", updated)
	return updated, nil
}

// Cancel moves a PENDING or CONFIRMED booking to CANCELLED, releasing its
// slot/date pair and retracting the external event. Allowed to the booking's
// guest or host.
func (s *Service) Cancel(ctx context.Context, bookingID, memberID uint) (*models.Booking, error) {
	var cancelled *models.Booking
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var b models.Booking
		if err := tx.First(&b, bookingID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrBookingNotFound
			}
			return err
		}

		if b.GuestID != memberID && b.HostID != memberID {
			return ErrForbidden
		}
		if b.AttendanceStatus != models.StatusPending && b.AttendanceStatus != models.StatusConfirmed {
			return ErrInvalidTransition
		}

		if err := s.enqueueDeleteForBooking(tx, &b); err != nil {
			return err
		}

		b.AttendanceStatus = models.StatusCancelled
		if err := tx.Save(&b).Error; err != nil {
			return err
		}

		cancelled = &b
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.syncer.Kick()
	s.publish(ctx, "booking.cancelled", cancelled)
	return cancelled, nil
}

// UpdateStatus is the host-driven part of the state machine:
// PENDING -> CONFIRMED, and PENDING/CONFIRMED -> COMPLETED or NO_SHOW.
func (s *Service) UpdateStatus(ctx context.Context, bookingID, hostID uint, newStatus, noShowReason string) (*models.Booking, error) {
	switch newStatus {
	case models.StatusConfirmed, models.StatusCompleted, models.StatusNoShow:
	default:
		return nil, fmt.Errorf("%w: status %q is not host-assignable", ErrInvalidInput, newStatus)
	}
	if noShowReason != "" && newStatus != models.StatusNoShow {
		return nil, fmt.Errorf("%w: no-show reason only applies to NO_SHOW", ErrInvalidInput)
	}
	if len(noShowReason) > 255 {
		return nil, fmt.Errorf("%w: no-show reason exceeds 255 characters", ErrInvalidInput)
	}

	var updated *models.Booking
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var b models.Booking
		if err := tx.First(&b, bookingID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrBookingNotFound
			}
			return err
		}

		if b.HostID != hostID {
			return ErrForbidden
		}
		if !legalHostTransition(b.AttendanceStatus, newStatus) {
			return ErrInvalidTransition
		}

		b.AttendanceStatus = newStatus
		if newStatus == models.StatusNoShow {
			b.NoShowReason = noShowReason
		}
		if err := tx.Save(&b).Error; err != nil {
			return err
		}

		updated = &b
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.publish(ctx, "booking.status_changed", updated)
	return updated, nil
}

func (s *Service) Get(ctx context.Context, bookingID uint) (*models.Booking, error) {
	var b models.Booking
	if err := s.db.WithContext(ctx).Preload("TimeSlot").First(&b, bookingID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrBookingNotFound
		}
		return nil, err
	}
	return &b, nil
}

func legalHostTransition(from, to string) bool {
	switch from {
	case models.StatusPending:
		return to == models.StatusConfirmed || to == models.StatusCompleted || to == models.StatusNoShow
	case models.StatusConfirmed:
		return to == models.StatusCompleted || to == models.StatusNoShow
	}
	return false
}

// ensureSlotFree fails with ErrSlotAlreadyBooked when an active booking
// other than excludeID occupies the slot/date pair. The partial unique index
// backs this check up under concurrency.
func ensureSlotFree(tx *gorm.DB, slotID uint, date time.Time, excludeID uint) error {
	var existing models.Booking
	q := tx.Where("time_slot_id = ? AND booking_date = ? AND attendance_status <> ?",
		slotID, date, models.StatusCancelled)
	if excludeID != 0 {
		q = q.Where("id <> ?", excludeID)
	}
	err := q.First(&existing).Error
	if err == nil {
		return ErrSlotAlreadyBooked
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return err
	}
	return nil
}

// enqueueCreateIfBound owes the host's calendar an event when the host has
// an active binding; hosts without one simply stay unsynced.
func (s *Service) enqueueCreateIfBound(tx *gorm.DB, b *models.Booking) error {
	var binding models.CalendarBinding
	err := tx.Where("host_id = ? AND status = ?", b.HostID, models.CalendarActive).First(&binding).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil
	}
	if err != nil {
		return err
	}
	return s.syncer.EnqueueCreate(tx, b, binding.ExternalCalendarID)
}

// enqueueDeleteForBooking retracts the booking's external event if it has
// one. The binding is looked up regardless of status: a retired binding
// still names the calendar that holds the event.
func (s *Service) enqueueDeleteForBooking(tx *gorm.DB, b *models.Booking) error {
	if b.ExternalEventID == "" {
		// Still supersede any pending create task for this booking.
		return s.syncer.EnqueueDelete(tx, b.ID, "", "")
	}

	var binding models.CalendarBinding
	err := tx.Where("host_id = ?", b.HostID).First(&binding).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		log.Printf("booking: no calendar binding for host %d, cannot retract event %s of booking %d",
			b.HostID, b.ExternalEventID, b.ID)
		return s.syncer.EnqueueDelete(tx, b.ID, "", "")
	}
	if err != nil {
		return err
	}
	return s.syncer.EnqueueDelete(tx, b.ID, b.ExternalEventID, binding.ExternalCalendarID)
}

func (s *Service) publish(ctx context.Context, key string, b *models.Booking) {
	if s.events == nil || b == nil {
		return
	}
	err := s.events.PublishJSON(ctx, key, map[string]any{
		"booking_id":   b.ID,
		"time_slot_id": b.TimeSlotID,
		"host_id":      b.HostID,
		"guest_id":     b.GuestID,
		"date":         b.BookingDate.Format("2006-01-02"),
		"status":       b.AttendanceStatus,
	})
	if err != nil {
		log.Printf("booking: publishing %s for booking %d: %v", key, b.ID, err)
	}
}
