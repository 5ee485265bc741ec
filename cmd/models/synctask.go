package models

import "time"

const (
	SyncActionCreate = "create_event"
	SyncActionDelete = "delete_event"
)

const (
	SyncPending     = "pending"
	SyncInFlight    = "in_flight"
	SyncDone        = "done"
	SyncSuperseded  = "superseded"
	SyncNeedsReview = "needs_review"
)

// CalendarSyncTask is an outbox row describing one external-calendar
// operation owed for a booking. Rows are written inside the same transaction
// as the booking mutation and dispatched strictly after commit, so a rolled
// back booking never leaks an external event.
type CalendarSyncTask struct {
	ID            string    `gorm:"primaryKey;size:36" json:"id"`
	BookingID     uint      `gorm:"column:booking_id;not null;index" json:"booking_id"`
	Action        string    `gorm:"column:action;size:20;not null" json:"action"`
	CalendarID    string    `gorm:"column:calendar_id;size:255;not null" json:"calendar_id"`
	EventID       string    `gorm:"column:event_id;size:255" json:"event_id,omitempty"`
	Title         string    `gorm:"column:title;size:255" json:"title"`
	Description   string    `gorm:"column:description;type:text" json:"description"`
	EventDate     time.Time `gorm:"column:event_date" json:"event_date"`
	StartTime     string    `gorm:"column:start_time;size:5" json:"start_time"`
	EndTime       string    `gorm:"column:end_time;size:5" json:"end_time"`
	Attempts      int       `gorm:"column:attempts;not null;default:0" json:"attempts"`
	Status        string    `gorm:"column:status;size:20;not null;default:pending;index" json:"status"`
	LastError     string    `gorm:"column:last_error;type:text" json:"last_error,omitempty"`
	NextAttemptAt time.Time `gorm:"column:next_attempt_at;index" json:"next_attempt_at"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}

func (CalendarSyncTask) TableName() string {
	return "calendar_sync_tasks"
}
