package availability

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	ics "github.com/arran4/golang-ical"
	"github.com/gorilla/mux"
	"gorm.io/gorm"

	"github.com/bookwise/bookwise-server/cmd/models"
)

type AvailabilityHandler struct {
    db *gorm.DB
}

func NewAvailabilityHandler(db *gorm.DB) *AvailabilityHandler {
    return &AvailabilityHandler{db: db}
}

func (h *AvailabilityHandler) RegisterRoutes(router *mux.Router) {
    router.HandleFunc("/hosts/{hostId}/availability/open", h.GetOpenInstances).Methods("GET")
    router.HandleFunc("/hosts/{hostId}/schedule.ics", h.GetScheduleFeed).Methods("GET")
}

func (h *AvailabilityHandler) GetOpenInstances(w http.ResponseWriter, r *http.Request) {
    vars := mux.Vars(r)
    hostID, err := strconv.ParseUint(vars["hostId"], 10, 64)
    if err != nil {
        http.Error(w, "Invalid host ID", http.StatusBadRequest)
        return
    }

    startStr := r.URL.Query().Get("start_date")
    endStr := r.URL.Query().Get("end_date")
    if startStr == "" || endStr == "" {
        http.Error(w, "start_date and end_date are required", http.StatusBadRequest)
        return
    }

    start, err := time.Parse("2006-01-02", startStr)
    if err != nil {
        http.Error(w, "Invalid start_date. Use YYYY-MM-DD", http.StatusBadRequest)
        return
    }
    end, err := time.Parse("2006-01-02", endStr)
    if err != nil {
        http.Error(w, "Invalid end_date. Use YYYY-MM-DD", http.StatusBadRequest)
        return
    }

    instances, err := ListOpenInstances(h.db, uint(hostID), start, end)
    if err != nil {
        if errors.Is(err, ErrInvalidRange) {
            http.Error(w, err.Error(), http.StatusBadRequest)
            return
        }
        http.Error(w, "Error resolving open instances", http.StatusInternalServerError)
        return
    }

    w.Header().Set("Content-Type", "application/json")
    json.NewEncoder(w).Encode(map[string]interface{}{
        "instances": instances,
        "total":     len(instances),
    })
}

// GetScheduleFeed serves the host's booked schedule as an iCalendar feed.
func (h *AvailabilityHandler) GetScheduleFeed(w http.ResponseWriter, r *http.Request) {
    vars := mux.Vars(r)
    hostID, err := strconv.ParseUint(vars["hostId"], 10, 64)
    if err != nil {
        http.Error(w, "Invalid host ID", http.StatusBadRequest)
        return
    }

    var bookings []models.Booking
    if err := h.db.Where("host_id = ? AND attendance_status <> ?", hostID, models.StatusCancelled).
        Order("booking_date asc, start_time asc").Find(&bookings).Error; err != nil {
        http.Error(w, "Error retrieving bookings", http.StatusInternalServerError)
        return
    }

    cal := ics.NewCalendar()
    cal.SetMethod(ics.MethodPublish)

    for _, b := range bookings {
        start, err := combineDateTime(b.BookingDate, b.StartTime)
        if err != nil {
            continue
        }
        end, err := combineDateTime(b.BookingDate, b.EndTime)
        if err != nil {
            continue
        }

        event := cal.AddEvent(fmt.Sprintf("booking-%d@bookwise", b.ID))
        event.SetCreatedTime(b.CreatedAt)
        event.SetDtStampTime(b.UpdatedAt)
        event.SetStartAt(start)
        event.SetEndAt(end)
        event.SetSummary(b.Topic)
        if b.Description != "" {
            event.SetDescription(b.Description)
        }
    }

    w.Header().Set("Content-Type", "text/calendar; charset=utf-8")
    io.WriteString(w, cal.Serialize())
}

func combineDateTime(date time.Time, clock string) (time.Time, error) {
    t, err := time.Parse("15:04", clock)
    if err != nil {
        return time.Time{}, err
    }
    return time.Date(date.Year(), date.Month(), date.Day(), t.Hour(), t.Minute(), 0, 0, time.UTC), nil
}
