package timeslot

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"
	"gorm.io/gorm"

	"github.com/bookwise/bookwise-server/cmd/models"
	"github.com/bookwise/bookwise-server/cmd/utils"
)

type TimeSlotHandler struct {
    db *gorm.DB
}

func NewTimeSlotHandler(db *gorm.DB) *TimeSlotHandler {
    return &TimeSlotHandler{db: db}
}

func (h *TimeSlotHandler) RegisterRoutes(router *mux.Router) {
    router.HandleFunc("/hosts/{hostId}/slots", h.CreateTimeSlot).Methods("POST")
    router.HandleFunc("/hosts/{hostId}/slots", h.GetTimeSlots).Methods("GET")
    router.HandleFunc("/hosts/{hostId}/slots/{id}", h.GetTimeSlot).Methods("GET")
    router.HandleFunc("/hosts/{hostId}/slots/{id}", h.UpdateTimeSlot).Methods("PUT")
    router.HandleFunc("/hosts/{hostId}/slots/{id}", h.DeleteTimeSlot).Methods("DELETE")
}

type slotRequest struct {
    StartTime string            `json:"start_time"`
    EndTime   string            `json:"end_time"`
    Weekdays  models.WeekdaySet `json:"weekdays"`
}

// Slots belong to hosts; guests only read them.
func requireHostRole(w http.ResponseWriter, r *http.Request) bool {
    role, err := utils.GetRoleFromContext(r)
    if err != nil || role != utils.RoleHost {
        http.Error(w, "Only hosts can manage time slots", http.StatusForbidden)
        return false
    }
    return true
}

func validateSlotRequest(req slotRequest) error {
    start, err := time.Parse("15:04", req.StartTime)
    if err != nil {
        return fmt.Errorf("invalid start time %q, use HH:MM", req.StartTime)
    }
    end, err := time.Parse("15:04", req.EndTime)
    if err != nil {
        return fmt.Errorf("invalid end time %q, use HH:MM", req.EndTime)
    }
    if !end.After(start) {
        return errors.New("end time must be after start time")
    }
    return req.Weekdays.Validate()
}

func (h *TimeSlotHandler) CreateTimeSlot(w http.ResponseWriter, r *http.Request) {
    if !requireHostRole(w, r) {
        return
    }

    vars := mux.Vars(r)
    hostID, err := strconv.ParseUint(vars["hostId"], 10, 64)
    if err != nil {
        http.Error(w, "Invalid host ID", http.StatusBadRequest)
        return
    }

    var req slotRequest
    if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
        http.Error(w, "Invalid request body", http.StatusBadRequest)
        return
    }

    if err := validateSlotRequest(req); err != nil {
        http.Error(w, err.Error(), http.StatusBadRequest)
        return
    }

    slot := models.TimeSlot{
        HostID:    uint(hostID),
        StartTime: req.StartTime,
        EndTime:   req.EndTime,
        Weekdays:  req.Weekdays,
    }

    if err := h.db.Create(&slot).Error; err != nil {
        http.Error(w, "Error creating time slot", http.StatusInternalServerError)
        return
    }

    w.Header().Set("Content-Type", "application/json")
    w.WriteHeader(http.StatusCreated)
    json.NewEncoder(w).Encode(slot)
}

func (h *TimeSlotHandler) GetTimeSlots(w http.ResponseWriter, r *http.Request) {
    vars := mux.Vars(r)
    hostID, err := strconv.ParseUint(vars["hostId"], 10, 64)
    if err != nil {
        http.Error(w, "Invalid host ID", http.StatusBadRequest)
        return
    }

    var slots []models.TimeSlot
    if err := h.db.Where("host_id = ?", hostID).Order("start_time asc").Find(&slots).Error; err != nil {
        http.Error(w, "Error retrieving time slots", http.StatusInternalServerError)
        return
    }

    w.Header().Set("Content-Type", "application/json")
    json.NewEncoder(w).Encode(slots)
}

func (h *TimeSlotHandler) GetTimeSlot(w http.ResponseWriter, r *http.Request) {
    vars := mux.Vars(r)
    hostID, err := strconv.ParseUint(vars["hostId"], 10, 64)
    if err != nil {
        http.Error(w, "Invalid host ID", http.StatusBadRequest)
        return
    }

    slotID, err := strconv.ParseUint(vars["id"], 10, 64)
    if err != nil {
        http.Error(w, "Invalid slot ID", http.StatusBadRequest)
        return
    }

    var slot models.TimeSlot
    if err := h.db.Where("id = ? AND host_id = ?", slotID, hostID).First(&slot).Error; err != nil {
        http.Error(w, "Time slot not found", http.StatusNotFound)
        return
    }

    w.Header().Set("Content-Type", "application/json")
    json.NewEncoder(w).Encode(slot)
}

// UpdateTimeSlot is the explicit reschedule operation for a slot: inside one
// transaction it re-validates every active dependent booking against the new
// weekday set and moves their copied times along.
func (h *TimeSlotHandler) UpdateTimeSlot(w http.ResponseWriter, r *http.Request) {
    if !requireHostRole(w, r) {
        return
    }

    vars := mux.Vars(r)
    hostID, err := strconv.ParseUint(vars["hostId"], 10, 64)
    if err != nil {
        http.Error(w, "Invalid host ID", http.StatusBadRequest)
        return
    }

    slotID, err := strconv.ParseUint(vars["id"], 10, 64)
    if err != nil {
        http.Error(w, "Invalid slot ID", http.StatusBadRequest)
        return
    }

    var req slotRequest
    if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
        http.Error(w, "Invalid request body", http.StatusBadRequest)
        return
    }

    if err := validateSlotRequest(req); err != nil {
        http.Error(w, err.Error(), http.StatusBadRequest)
        return
    }

    tx := h.db.Begin()

    var slot models.TimeSlot
    if err := tx.Where("id = ? AND host_id = ?", slotID, hostID).First(&slot).Error; err != nil {
        tx.Rollback()
        http.Error(w, "Time slot not found", http.StatusNotFound)
        return
    }

    var dependents []models.Booking
    if err := tx.Where("time_slot_id = ? AND attendance_status <> ?", slot.ID, models.StatusCancelled).
        Find(&dependents).Error; err != nil {
        tx.Rollback()
        http.Error(w, "Error loading dependent bookings", http.StatusInternalServerError)
        return
    }

    for _, b := range dependents {
        if !req.Weekdays.Contains(b.BookingDate.Weekday()) {
            tx.Rollback()
            http.Error(w, fmt.Sprintf("booking %d on %s would fall outside the new weekdays",
                b.ID, b.BookingDate.Format("2006-01-02")), http.StatusConflict)
            return
        }
    }

    slot.StartTime = req.StartTime
    slot.EndTime = req.EndTime
    slot.Weekdays = req.Weekdays
    if err := tx.Save(&slot).Error; err != nil {
        tx.Rollback()
        http.Error(w, "Error updating time slot", http.StatusInternalServerError)
        return
    }

    // Dependent bookings carry a copy of the slot times.
    if len(dependents) > 0 {
        if err := tx.Model(&models.Booking{}).
            Where("time_slot_id = ? AND attendance_status <> ?", slot.ID, models.StatusCancelled).
            Updates(map[string]interface{}{
                "start_time": req.StartTime,
                "end_time":   req.EndTime,
            }).Error; err != nil {
            tx.Rollback()
            http.Error(w, "Error updating dependent bookings", http.StatusInternalServerError)
            return
        }
    }

    if err := tx.Commit().Error; err != nil {
        http.Error(w, "Error completing update", http.StatusInternalServerError)
        return
    }

    w.Header().Set("Content-Type", "application/json")
    json.NewEncoder(w).Encode(slot)
}

func (h *TimeSlotHandler) DeleteTimeSlot(w http.ResponseWriter, r *http.Request) {
    if !requireHostRole(w, r) {
        return
    }

    vars := mux.Vars(r)
    hostID, err := strconv.ParseUint(vars["hostId"], 10, 64)
    if err != nil {
        http.Error(w, "Invalid host ID", http.StatusBadRequest)
        return
    }

    slotID, err := strconv.ParseUint(vars["id"], 10, 64)
    if err != nil {
        http.Error(w, "Invalid slot ID", http.StatusBadRequest)
        return
    }

    var activeBookings int64
    if err := h.db.Model(&models.Booking{}).
        Where("time_slot_id = ? AND attendance_status <> ?", slotID, models.StatusCancelled).
        Count(&activeBookings).Error; err != nil {
        http.Error(w, "Error checking dependent bookings", http.StatusInternalServerError)
        return
    }
    if activeBookings > 0 {
        http.Error(w, "Time slot has active bookings", http.StatusConflict)
        return
    }

    result := h.db.Where("id = ? AND host_id = ?", slotID, hostID).Delete(&models.TimeSlot{})
    if result.Error != nil {
        http.Error(w, "Error deleting time slot", http.StatusInternalServerError)
        return
    }

    if result.RowsAffected == 0 {
        http.Error(w, "Time slot not found", http.StatusNotFound)
        return
    }

    w.Header().Set("Content-Type", "application/json")
    json.NewEncoder(w).Encode(map[string]string{
        "message": "Time slot deleted successfully",
    })
}
