package calsync

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"
	"github.com/robfig/cron/v3"
	"gorm.io/gorm"

	"github.com/bookwise/bookwise-server/cmd/models"
	"github.com/bookwise/bookwise-server/service/calendarapi"
	"github.com/bookwise/bookwise-server/service/notification"
)

// Coordinator keeps the external calendar consistent with booking state.
// Work arrives as outbox rows written inside the booking transaction and is
// dispatched strictly after commit: an immediate kick for latency plus a
// periodic sweep for at-least-once delivery. No DB lock is held while the
// remote API is being called.
type Coordinator struct {
	db     *gorm.DB
	client calendarapi.Client
	mailer *notification.Mailer

	// Dispatch tuning. Exported so callers (and tests) can tighten them.
	Timeout     time.Duration
	MaxAttempts int
	Backoff     time.Duration
	BatchSize   int
}

func NewCoordinator(db *gorm.DB, client calendarapi.Client, mailer *notification.Mailer) *Coordinator {
	return &Coordinator{
		db:          db,
		client:      client,
		mailer:      mailer,
		Timeout:     15 * time.Second,
		MaxAttempts: 3,
		Backoff:     time.Minute,
		BatchSize:   50,
	}
}

// EnqueueCreate records that a remote event must be created for the booking.
// Must be called on the transaction that creates or reschedules the booking.
func (c *Coordinator) EnqueueCreate(tx *gorm.DB, b *models.Booking, calendarID string) error {
	task := models.CalendarSyncTask{
		ID:            uuid.NewString(),
		BookingID:     b.ID,
		Action:        models.SyncActionCreate,
		CalendarID:    calendarID,
		Title:         b.Topic,
		Description:   b.Description,
		EventDate:     b.BookingDate,
		StartTime:     b.StartTime,
		EndTime:       b.EndTime,
		Status:        models.SyncPending,
		NextAttemptAt: time.Now(),
	}
	return tx.Create(&task).Error
}

// EnqueueDelete records that the booking's remote event must be retracted.
// Pending create tasks for the same booking are superseded so a cancel that
// lands before the create ran does not recreate the event. With no external
// event id there is nothing to retract.
func (c *Coordinator) EnqueueDelete(tx *gorm.DB, bookingID uint, eventID, calendarID string) error {
	if err := tx.Model(&models.CalendarSyncTask{}).
		Where("booking_id = ? AND action = ? AND status = ?", bookingID, models.SyncActionCreate, models.SyncPending).
		Update("status", models.SyncSuperseded).Error; err != nil {
		return err
	}

	if eventID == "" {
		return nil
	}

	task := models.CalendarSyncTask{
		ID:            uuid.NewString(),
		BookingID:     bookingID,
		Action:        models.SyncActionDelete,
		CalendarID:    calendarID,
		EventID:       eventID,
		Status:        models.SyncPending,
		NextAttemptAt: time.Now(),
	}
	return tx.Create(&task).Error
}

// Kick dispatches pending work asynchronously. Called right after the owning
// transaction commits.
func (c *Coordinator) Kick() {
	go c.ProcessPending()
}

// ProcessPending dispatches every due task. Each task is isolated: a failure
// is recorded on that task alone and never stops its siblings. Dispatchers
// overlap freely (the post-commit kicks and the cron sweep), so every task is
// claimed with a conditional update before the remote call; whoever loses the
// claim skips the task.
func (c *Coordinator) ProcessPending() {
	// Requeue tasks stranded in flight by a crash between claim and save.
	stale := time.Now().Add(-2 * c.Timeout)
	if err := c.db.Model(&models.CalendarSyncTask{}).
		Where("status = ? AND updated_at <= ?", models.SyncInFlight, stale).
		Update("status", models.SyncPending).Error; err != nil {
		log.Printf("sync: requeueing stale in-flight tasks: %v", err)
	}

	var tasks []models.CalendarSyncTask
	err := c.db.
		Where("status = ? AND next_attempt_at <= ?", models.SyncPending, time.Now()).
		Order("created_at asc").
		Limit(c.BatchSize).
		Find(&tasks).Error
	if err != nil {
		log.Printf("sync: loading pending tasks: %v", err)
		return
	}

	for i := range tasks {
		if !c.claim(&tasks[i]) {
			continue
		}
		c.dispatch(&tasks[i])
	}
}

// claim takes exclusive ownership of the task. Zero rows affected means a
// concurrent dispatcher got there first, or a cancel superseded the task
// after it was loaded.
func (c *Coordinator) claim(task *models.CalendarSyncTask) bool {
	res := c.db.Model(&models.CalendarSyncTask{}).
		Where("id = ? AND status = ?", task.ID, models.SyncPending).
		Update("status", models.SyncInFlight)
	if res.Error != nil {
		log.Printf("sync: claiming task %s: %v", task.ID, res.Error)
		return false
	}
	return res.RowsAffected > 0
}

func (c *Coordinator) dispatch(task *models.CalendarSyncTask) {
	ctx, cancel := context.WithTimeout(context.Background(), c.Timeout)
	defer cancel()

	var err error
	switch task.Action {
	case models.SyncActionCreate:
		var eventID string
		eventID, err = c.client.CreateEvent(ctx, task.CalendarID, task.Title, task.Description, task.EventDate, task.StartTime, task.EndTime)
		if err == nil {
			task.EventID = eventID
			task.Status = models.SyncDone
			// Best effort: losing this update leaves the booking without its
			// event reference but must not fail the task.
			if uerr := c.db.Model(&models.Booking{}).Where("id = ?", task.BookingID).
				Update("external_event_id", eventID).Error; uerr != nil {
				log.Printf("sync: storing event %s on booking %d: %v", eventID, task.BookingID, uerr)
			}
		}
	case models.SyncActionDelete:
		var ok bool
		ok, err = c.client.DeleteEvent(ctx, task.EventID, task.CalendarID)
		if err == nil && !ok {
			err = fmt.Errorf("external calendar reported failure deleting event %s", task.EventID)
		}
		if err == nil {
			task.Status = models.SyncDone
		}
	default:
		err = errors.New("unknown sync action " + task.Action)
	}

	if err != nil {
		c.recordFailure(task, err)
	}

	// Write back only while still owning the claim, so a status written by
	// someone else mid-flight (a superseding cancel, a stale-claim requeue)
	// is never clobbered.
	res := c.db.Model(&models.CalendarSyncTask{}).
		Where("id = ? AND status = ?", task.ID, models.SyncInFlight).
		Updates(map[string]interface{}{
			"status":          task.Status,
			"event_id":        task.EventID,
			"attempts":        task.Attempts,
			"last_error":      task.LastError,
			"next_attempt_at": task.NextAttemptAt,
		})
	if res.Error != nil {
		log.Printf("sync: persisting task %s (booking %d): %v", task.ID, task.BookingID, res.Error)
	} else if res.RowsAffected == 0 {
		log.Printf("sync: task %s (booking %d) changed hands during dispatch, leaving it alone", task.ID, task.BookingID)
	}
}

func (c *Coordinator) recordFailure(task *models.CalendarSyncTask, cause error) {
	task.Attempts++
	task.LastError = cause.Error()

	if task.Attempts >= c.MaxAttempts {
		task.Status = models.SyncNeedsReview
		log.Printf("sync: task %s (%s) for booking %d event %q parked for manual review after %d attempts: %v",
			task.ID, task.Action, task.BookingID, task.EventID, task.Attempts, cause)
		if c.mailer != nil {
			if merr := c.mailer.SyncReviewAlert(*task); merr != nil {
				log.Printf("sync: review alert mail for task %s: %v", task.ID, merr)
			}
		}
		return
	}

	// Exponential backoff: 1x, 2x, 4x the base interval.
	delay := c.Backoff << (task.Attempts - 1)
	task.Status = models.SyncPending
	task.NextAttemptAt = time.Now().Add(delay)
	log.Printf("sync: task %s (%s) for booking %d event %q failed (attempt %d/%d), retrying in %s: %v",
		task.ID, task.Action, task.BookingID, task.EventID, task.Attempts, c.MaxAttempts, delay, cause)
}

// StartWorker begins the periodic sweep that picks up tasks missed by the
// immediate kick (crash between commit and kick, or retries coming due).
func (c *Coordinator) StartWorker(schedule string) (*cron.Cron, error) {
	if schedule == "" {
		schedule = "@every 30s"
	}
	runner := cron.New()
	if _, err := runner.AddFunc(schedule, c.ProcessPending); err != nil {
		return nil, fmt.Errorf("invalid sync sweep schedule %q: %w", schedule, err)
	}
	runner.Start()
	log.Printf("sync: outbox sweep running (%s)", schedule)
	return runner, nil
}
