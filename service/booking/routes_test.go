package booking

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gorilla/mux"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/bookwise/bookwise-server/cmd/models"
	"github.com/bookwise/bookwise-server/cmd/utils"
)

func newTestHandler(t *testing.T) (*mux.Router, *gorm.DB) {
	t.Helper()
	svc, db, _ := newTestService(t)
	router := mux.NewRouter()
	NewBookingHandler(db, svc).RegisterRoutes(router)
	return router, db
}

func doAuthJSON(t *testing.T, router *mux.Router, method, path string, memberID uint, payload interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var body bytes.Buffer
	if payload != nil {
		require.NoError(t, json.NewEncoder(&body).Encode(payload))
	}
	req := httptest.NewRequest(method, path, &body)
	if memberID != 0 {
		req = req.WithContext(context.WithValue(req.Context(), utils.MemberIDKey, memberID))
	}
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

func TestCreateBookingHandler(t *testing.T) {
	router, db := newTestHandler(t)
	slot := makeSlot(t, db, 1, "09:00", "10:00", int(time.Monday))
	date := upcoming(time.Monday).Format("2006-01-02")

	rec := doAuthJSON(t, router, http.MethodPost, "/bookings", 42, map[string]interface{}{
		"time_slot_id": slot.ID,
		"booking_date": date,
		"topic":        "pairing session",
	})
	require.Equal(t, http.StatusCreated, rec.Code)

	var booking models.Booking
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&booking))
	assert.Equal(t, uint(42), booking.GuestID)
	assert.Equal(t, models.StatusPending, booking.AttendanceStatus)
}

func TestCreateBookingHandler_Unauthorized(t *testing.T) {
	router, db := newTestHandler(t)
	slot := makeSlot(t, db, 1, "09:00", "10:00", int(time.Monday))

	rec := doAuthJSON(t, router, http.MethodPost, "/bookings", 0, map[string]interface{}{
		"time_slot_id": slot.ID,
		"booking_date": upcoming(time.Monday).Format("2006-01-02"),
		"topic":        "pairing session",
	})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestCreateBookingHandler_ErrorMapping(t *testing.T) {
	router, db := newTestHandler(t)
	slot := makeSlot(t, db, 1, "09:00", "10:00", int(time.Monday))
	date := upcoming(time.Monday).Format("2006-01-02")

	// Unknown slot -> 404.
	rec := doAuthJSON(t, router, http.MethodPost, "/bookings", 42, map[string]interface{}{
		"time_slot_id": 999, "booking_date": date, "topic": "x",
	})
	assert.Equal(t, http.StatusNotFound, rec.Code)

	// Weekday mismatch -> 400.
	rec = doAuthJSON(t, router, http.MethodPost, "/bookings", 42, map[string]interface{}{
		"time_slot_id": slot.ID,
		"booking_date": upcoming(time.Tuesday).Format("2006-01-02"),
		"topic":        "x",
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	// Occupied pair -> 409.
	rec = doAuthJSON(t, router, http.MethodPost, "/bookings", 42, map[string]interface{}{
		"time_slot_id": slot.ID, "booking_date": date, "topic": "first",
	})
	require.Equal(t, http.StatusCreated, rec.Code)
	rec = doAuthJSON(t, router, http.MethodPost, "/bookings", 43, map[string]interface{}{
		"time_slot_id": slot.ID, "booking_date": date, "topic": "second",
	})
	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestCancelBookingHandler_Forbidden(t *testing.T) {
	router, db := newTestHandler(t)
	slot := makeSlot(t, db, 1, "09:00", "10:00", int(time.Monday))
	date := upcoming(time.Monday).Format("2006-01-02")

	rec := doAuthJSON(t, router, http.MethodPost, "/bookings", 42, map[string]interface{}{
		"time_slot_id": slot.ID, "booking_date": date, "topic": "private",
	})
	require.Equal(t, http.StatusCreated, rec.Code)

	var booking models.Booking
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&booking))

	rec = doAuthJSON(t, router, http.MethodPatch, fmt.Sprintf("/bookings/%d/cancel", booking.ID), 999, nil)
	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestUpdateBookingStatusHandler(t *testing.T) {
	router, db := newTestHandler(t)
	slot := makeSlot(t, db, 1, "09:00", "10:00", int(time.Monday))
	date := upcoming(time.Monday).Format("2006-01-02")

	rec := doAuthJSON(t, router, http.MethodPost, "/bookings", 42, map[string]interface{}{
		"time_slot_id": slot.ID, "booking_date": date, "topic": "standup",
	})
	require.Equal(t, http.StatusCreated, rec.Code)

	var booking models.Booking
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&booking))

	rec = doAuthJSON(t, router, http.MethodPatch, fmt.Sprintf("/bookings/%d/status", booking.ID), slot.HostID, map[string]string{
		"status": models.StatusConfirmed,
	})
	require.Equal(t, http.StatusOK, rec.Code)

	// Confirming twice is a state machine violation -> 409.
	rec = doAuthJSON(t, router, http.MethodPatch, fmt.Sprintf("/bookings/%d/status", booking.ID), slot.HostID, map[string]string{
		"status": models.StatusConfirmed,
	})
	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestListBookingsHandler(t *testing.T) {
	router, db := newTestHandler(t)
	slot := makeSlot(t, db, 1, "09:00", "10:00", int(time.Monday), int(time.Wednesday))

	for i, wd := range []time.Weekday{time.Monday, time.Wednesday} {
		rec := doAuthJSON(t, router, http.MethodPost, "/bookings", uint(40+i), map[string]interface{}{
			"time_slot_id": slot.ID,
			"booking_date": upcoming(wd).Format("2006-01-02"),
			"topic":        "listing",
		})
		require.Equal(t, http.StatusCreated, rec.Code)
	}

	rec := doAuthJSON(t, router, http.MethodGet, "/bookings/host/1", 0, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var listing struct {
		Total    int64            `json:"total"`
		Bookings []models.Booking `json:"bookings"`
	}
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&listing))
	assert.EqualValues(t, 2, listing.Total)

	rec = doAuthJSON(t, router, http.MethodGet, "/bookings/guest/40", 0, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&listing))
	assert.EqualValues(t, 1, listing.Total)

	// Status filter.
	rec = doAuthJSON(t, router, http.MethodGet, "/bookings/host/1?status=CANCELLED", 0, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&listing))
	assert.EqualValues(t, 0, listing.Total)
}

func TestListBookingsHandler_StorageError(t *testing.T) {
	router, db := newTestHandler(t)
	require.NoError(t, db.Migrator().DropTable(&models.Booking{}))

	rec := doAuthJSON(t, router, http.MethodGet, "/bookings/host/1", 0, nil)
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}
