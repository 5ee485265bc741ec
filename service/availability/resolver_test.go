package availability

import (
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/bookwise/bookwise-server/cmd/models"
)

func setupTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	name := strings.ReplaceAll(t.Name(), "/", "_")
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", name)
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{TranslateError: true})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(
		&models.TimeSlot{},
		&models.CalendarBinding{},
		&models.Booking{},
		&models.CalendarSyncTask{},
	))
	return db
}

// A fixed two-week window starting on a Monday keeps the expected occurrence
// counts readable: 2 Mondays, 2 Wednesdays.
func testWindow() (time.Time, time.Time) {
	start := time.Date(2030, 6, 3, 0, 0, 0, 0, time.UTC) // a Monday
	return start, start.AddDate(0, 0, 13)
}

func makeSlot(t *testing.T, db *gorm.DB, hostID uint, start, end string, weekdays ...int) models.TimeSlot {
	t.Helper()
	slot := models.TimeSlot{
		HostID:    hostID,
		StartTime: start,
		EndTime:   end,
		Weekdays:  models.WeekdaySet(weekdays),
	}
	require.NoError(t, db.Create(&slot).Error)
	return slot
}

func TestListOpenInstances_EnumeratesRecurrences(t *testing.T) {
	db := setupTestDB(t)
	slot := makeSlot(t, db, 1, "09:00", "10:00", int(time.Monday), int(time.Wednesday))
	start, end := testWindow()

	instances, err := ListOpenInstances(db, 1, start, end)
	require.NoError(t, err)
	require.Len(t, instances, 4)

	assert.Equal(t, "2030-06-03", instances[0].Date)
	assert.Equal(t, "2030-06-05", instances[1].Date)
	assert.Equal(t, "2030-06-10", instances[2].Date)
	assert.Equal(t, "2030-06-12", instances[3].Date)
	for _, in := range instances {
		assert.Equal(t, slot.ID, in.TimeSlotID)
		assert.Equal(t, "09:00", in.StartTime)
		assert.Equal(t, "10:00", in.EndTime)
	}
}

func TestListOpenInstances_ExcludesBookedPairs(t *testing.T) {
	db := setupTestDB(t)
	slot := makeSlot(t, db, 1, "09:00", "10:00", int(time.Monday))
	start, end := testWindow()

	firstMonday := start
	require.NoError(t, db.Create(&models.Booking{
		TimeSlotID: slot.ID, HostID: 1, GuestID: 2,
		BookingDate: firstMonday,
		StartTime:   "09:00", EndTime: "10:00", Topic: "taken",
		AttendanceStatus: models.StatusConfirmed,
	}).Error)

	instances, err := ListOpenInstances(db, 1, start, end)
	require.NoError(t, err)
	require.Len(t, instances, 1, "only the second Monday should remain open")
	assert.Equal(t, "2030-06-10", instances[0].Date)
}

func TestListOpenInstances_CancelledBookingDoesNotOccupy(t *testing.T) {
	db := setupTestDB(t)
	slot := makeSlot(t, db, 1, "09:00", "10:00", int(time.Monday))
	start, end := testWindow()

	require.NoError(t, db.Create(&models.Booking{
		TimeSlotID: slot.ID, HostID: 1, GuestID: 2,
		BookingDate: start,
		StartTime:   "09:00", EndTime: "10:00", Topic: "released",
		AttendanceStatus: models.StatusCancelled,
	}).Error)

	instances, err := ListOpenInstances(db, 1, start, end)
	require.NoError(t, err)
	assert.Len(t, instances, 2)
}

func TestListOpenInstances_Ordering(t *testing.T) {
	db := setupTestDB(t)
	makeSlot(t, db, 1, "14:00", "15:00", int(time.Monday))
	makeSlot(t, db, 1, "08:00", "09:00", int(time.Monday))
	start, end := testWindow()

	instances, err := ListOpenInstances(db, 1, start, end)
	require.NoError(t, err)
	require.Len(t, instances, 4)

	// Date ascending, then start time within the same date.
	assert.Equal(t, "2030-06-03", instances[0].Date)
	assert.Equal(t, "08:00", instances[0].StartTime)
	assert.Equal(t, "2030-06-03", instances[1].Date)
	assert.Equal(t, "14:00", instances[1].StartTime)
	assert.Equal(t, "2030-06-10", instances[2].Date)
	assert.Equal(t, "08:00", instances[2].StartTime)
}

func TestListOpenInstances_Deterministic(t *testing.T) {
	db := setupTestDB(t)
	makeSlot(t, db, 1, "09:00", "10:00", int(time.Monday), int(time.Friday))
	makeSlot(t, db, 1, "09:00", "10:00", int(time.Wednesday))
	start, end := testWindow()

	first, err := ListOpenInstances(db, 1, start, end)
	require.NoError(t, err)
	second, err := ListOpenInstances(db, 1, start, end)
	require.NoError(t, err)
	assert.Equal(t, first, second)
}

func TestListOpenInstances_OtherHostsInvisible(t *testing.T) {
	db := setupTestDB(t)
	makeSlot(t, db, 1, "09:00", "10:00", int(time.Monday))
	makeSlot(t, db, 2, "09:00", "10:00", int(time.Monday))
	start, end := testWindow()

	instances, err := ListOpenInstances(db, 1, start, end)
	require.NoError(t, err)
	assert.Len(t, instances, 2)
}

func TestListOpenInstances_RangeValidation(t *testing.T) {
	db := setupTestDB(t)
	start, _ := testWindow()

	_, err := ListOpenInstances(db, 1, start, start.AddDate(0, 0, -1))
	assert.ErrorIs(t, err, ErrInvalidRange)

	_, err = ListOpenInstances(db, 1, start, start.AddDate(0, 0, 200))
	assert.ErrorIs(t, err, ErrInvalidRange)

	// Single-day range is fine.
	instances, err := ListOpenInstances(db, 1, start, start)
	require.NoError(t, err)
	assert.Empty(t, instances)
}

func TestListOpenInstances_InclusiveBounds(t *testing.T) {
	db := setupTestDB(t)
	makeSlot(t, db, 1, "09:00", "10:00", int(time.Monday))
	start, _ := testWindow()

	// Both endpoints fall on Mondays and both count.
	instances, err := ListOpenInstances(db, 1, start, start.AddDate(0, 0, 7))
	require.NoError(t, err)
	assert.Len(t, instances, 2)
}
