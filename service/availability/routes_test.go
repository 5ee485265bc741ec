package availability

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gorilla/mux"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bookwise/bookwise-server/cmd/models"
)

func get(t *testing.T, router *mux.Router, path string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, path, nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

func TestGetOpenInstances_Handler(t *testing.T) {
	db := setupTestDB(t)
	makeSlot(t, db, 1, "09:00", "10:00", int(time.Monday))

	router := mux.NewRouter()
	NewAvailabilityHandler(db).RegisterRoutes(router)

	rec := get(t, router, "/hosts/1/availability/open?start_date=2030-06-03&end_date=2030-06-16")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"total":2`)

	rec = get(t, router, "/hosts/1/availability/open?start_date=2030-06-03")
	assert.Equal(t, http.StatusBadRequest, rec.Code, "end_date is required")

	rec = get(t, router, "/hosts/1/availability/open?start_date=june-3&end_date=2030-06-16")
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = get(t, router, "/hosts/1/availability/open?start_date=2030-06-16&end_date=2030-06-03")
	assert.Equal(t, http.StatusBadRequest, rec.Code, "reversed range is rejected")
}

func TestGetScheduleFeed(t *testing.T) {
	db := setupTestDB(t)

	monday := time.Date(2030, 6, 3, 0, 0, 0, 0, time.UTC)
	require.NoError(t, db.Create(&models.Booking{
		TimeSlotID: 1, HostID: 1, GuestID: 2,
		BookingDate: monday,
		StartTime:   "09:00", EndTime: "10:00",
		Topic:            "architecture review",
		AttendanceStatus: models.StatusConfirmed,
	}).Error)
	require.NoError(t, db.Create(&models.Booking{
		TimeSlotID: 1, HostID: 1, GuestID: 3,
		BookingDate: monday.AddDate(0, 0, 7),
		StartTime:   "09:00", EndTime: "10:00",
		Topic:            "gone",
		AttendanceStatus: models.StatusCancelled,
	}).Error)

	router := mux.NewRouter()
	NewAvailabilityHandler(db).RegisterRoutes(router)

	rec := get(t, router, "/hosts/1/schedule.ics")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "text/calendar; charset=utf-8", rec.Header().Get("Content-Type"))

	feed := rec.Body.String()
	assert.Contains(t, feed, "BEGIN:VCALENDAR")
	assert.Contains(t, feed, "SUMMARY:architecture review")
	assert.Contains(t, feed, "DTSTART:20300603T090000Z")
	assert.NotContains(t, feed, "gone", "cancelled bookings stay out of the feed")
}
