package models

import (
	"time"

	"gorm.io/gorm"
)

const (
	StatusPending   = "PENDING"
	StatusConfirmed = "CONFIRMED"
	StatusCancelled = "CANCELLED"
	StatusCompleted = "COMPLETED"
	StatusNoShow    = "NO_SHOW"
)

// Booking is one dated reservation of a TimeSlot by a guest. The partial
// unique index enforces at most one non-cancelled booking per slot/date even
// when two requests race to the same pair; the second committer gets a
// duplicate-key error.
type Booking struct {
	gorm.Model
	TimeSlotID       uint      `gorm:"column:time_slot_id;not null;uniqueIndex:idx_active_slot_date,where:attendance_status <> 'CANCELLED'" json:"time_slot_id"`
	HostID           uint      `gorm:"column:host_id;not null;index" json:"host_id"`
	GuestID          uint      `gorm:"column:guest_id;not null;index" json:"guest_id"`
	BookingDate      time.Time `gorm:"column:booking_date;not null;uniqueIndex:idx_active_slot_date" json:"booking_date"`
	StartTime        string    `gorm:"column:start_time;size:5;not null" json:"start_time"`
	EndTime          string    `gorm:"column:end_time;size:5;not null" json:"end_time"`
	Topic            string    `gorm:"column:topic;size:255;not null" json:"topic"`
	Description      string    `gorm:"column:description;type:text" json:"description"`
	AttendanceStatus string    `gorm:"column:attendance_status;size:20;not null;default:'PENDING'" json:"attendance_status"`
	ExternalEventID  string    `gorm:"column:external_event_id;size:255" json:"external_event_id,omitempty"`
	NoShowReason     string    `gorm:"column:no_show_reason;size:255" json:"no_show_reason,omitempty"`

	TimeSlot *TimeSlot `gorm:"foreignKey:TimeSlotID" json:"time_slot,omitempty"`
}

func (Booking) TableName() string {
	return "bookings"
}

// Active reports whether the booking still occupies its slot/date pair.
func (b *Booking) Active() bool {
	return b.AttendanceStatus != StatusCancelled
}

// Terminal reports whether the booking is in a final state.
func (b *Booking) Terminal() bool {
	switch b.AttendanceStatus {
	case StatusCancelled, StatusCompleted, StatusNoShow:
		return true
	}
	return false
}
