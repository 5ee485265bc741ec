package calendar

import (
	"encoding/json"
	"errors"
	"net/http"
	"regexp"
	"strconv"
	"time"

	"github.com/gorilla/mux"
	"gorm.io/gorm"

	"github.com/bookwise/bookwise-server/cmd/models"
)

// The external service addresses calendars like mailboxes.
var calendarAddressPattern = regexp.MustCompile(`^[A-Za-z0-9._%+-]+@[A-Za-z0-9.-]+\.[A-Za-z]{2,}$`)

type CalendarHandler struct {
    db *gorm.DB
}

func NewCalendarHandler(db *gorm.DB) *CalendarHandler {
    return &CalendarHandler{db: db}
}

func (h *CalendarHandler) RegisterRoutes(router *mux.Router) {
    router.HandleFunc("/hosts/{hostId}/calendar", h.CreateBinding).Methods("POST")
    router.HandleFunc("/hosts/{hostId}/calendar", h.GetBinding).Methods("GET")
    router.HandleFunc("/hosts/{hostId}/calendar", h.UpdateBinding).Methods("PUT")
    router.HandleFunc("/hosts/{hostId}/calendar", h.RetireBinding).Methods("DELETE")
}

type bindingRequest struct {
    Topics             models.StringList `json:"topics"`
    Description        string            `json:"description"`
    ExternalCalendarID string            `json:"external_calendar_id"`
    Reactivate         bool              `json:"reactivate,omitempty"`
}

func validateBindingRequest(req bindingRequest) error {
    if len(req.Topics) == 0 {
        return errors.New("topics must not be empty")
    }
    if len(req.Description) < 10 {
        return errors.New("description must be at least 10 characters")
    }
    if !calendarAddressPattern.MatchString(req.ExternalCalendarID) {
        return errors.New("external calendar ID does not match the calendar service address format")
    }
    return nil
}

func (h *CalendarHandler) CreateBinding(w http.ResponseWriter, r *http.Request) {
    vars := mux.Vars(r)
    hostID, err := strconv.ParseUint(vars["hostId"], 10, 64)
    if err != nil {
        http.Error(w, "Invalid host ID", http.StatusBadRequest)
        return
    }

    var req bindingRequest
    if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
        http.Error(w, "Invalid request body", http.StatusBadRequest)
        return
    }

    if err := validateBindingRequest(req); err != nil {
        http.Error(w, err.Error(), http.StatusBadRequest)
        return
    }

    // One binding per host, retired ones included; reconnecting goes through
    // update with reactivate.
    var existing models.CalendarBinding
    if err := h.db.Where("host_id = ?", hostID).First(&existing).Error; err == nil {
        http.Error(w, "Host already has a calendar binding", http.StatusConflict)
        return
    } else if !errors.Is(err, gorm.ErrRecordNotFound) {
        http.Error(w, "Database error", http.StatusInternalServerError)
        return
    }

    binding := models.CalendarBinding{
        HostID:             uint(hostID),
        Topics:             req.Topics,
        Description:        req.Description,
        ExternalCalendarID: req.ExternalCalendarID,
        Status:             models.CalendarActive,
    }

    if err := h.db.Create(&binding).Error; err != nil {
        if errors.Is(err, gorm.ErrDuplicatedKey) {
            http.Error(w, "Host already has a calendar binding", http.StatusConflict)
            return
        }
        http.Error(w, "Error creating calendar binding", http.StatusInternalServerError)
        return
    }

    w.Header().Set("Content-Type", "application/json")
    w.WriteHeader(http.StatusCreated)
    json.NewEncoder(w).Encode(binding)
}

func (h *CalendarHandler) GetBinding(w http.ResponseWriter, r *http.Request) {
    vars := mux.Vars(r)
    hostID, err := strconv.ParseUint(vars["hostId"], 10, 64)
    if err != nil {
        http.Error(w, "Invalid host ID", http.StatusBadRequest)
        return
    }

    var binding models.CalendarBinding
    if err := h.db.Where("host_id = ?", hostID).First(&binding).Error; err != nil {
        http.Error(w, "Calendar binding not found", http.StatusNotFound)
        return
    }

    w.Header().Set("Content-Type", "application/json")
    json.NewEncoder(w).Encode(binding)
}

func (h *CalendarHandler) UpdateBinding(w http.ResponseWriter, r *http.Request) {
    vars := mux.Vars(r)
    hostID, err := strconv.ParseUint(vars["hostId"], 10, 64)
    if err != nil {
        http.Error(w, "Invalid host ID", http.StatusBadRequest)
        return
    }

    var req bindingRequest
    if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
        http.Error(w, "Invalid request body", http.StatusBadRequest)
        return
    }

    if err := validateBindingRequest(req); err != nil {
        http.Error(w, err.Error(), http.StatusBadRequest)
        return
    }

    var binding models.CalendarBinding
    if err := h.db.Where("host_id = ?", hostID).First(&binding).Error; err != nil {
        http.Error(w, "Calendar binding not found", http.StatusNotFound)
        return
    }

    if binding.Retired() && !req.Reactivate {
        http.Error(w, "Calendar binding is retired", http.StatusConflict)
        return
    }

    binding.Topics = req.Topics
    binding.Description = req.Description
    binding.ExternalCalendarID = req.ExternalCalendarID
    if req.Reactivate {
        binding.Status = models.CalendarActive
        binding.RetiredAt = nil
    }

    if err := h.db.Save(&binding).Error; err != nil {
        http.Error(w, "Error updating calendar binding", http.StatusInternalServerError)
        return
    }

    w.Header().Set("Content-Type", "application/json")
    json.NewEncoder(w).Encode(binding)
}

// RetireBinding disconnects the host's calendar. The row is kept so events
// already created externally can still be retracted later.
func (h *CalendarHandler) RetireBinding(w http.ResponseWriter, r *http.Request) {
    vars := mux.Vars(r)
    hostID, err := strconv.ParseUint(vars["hostId"], 10, 64)
    if err != nil {
        http.Error(w, "Invalid host ID", http.StatusBadRequest)
        return
    }

    var binding models.CalendarBinding
    if err := h.db.Where("host_id = ?", hostID).First(&binding).Error; err != nil {
        http.Error(w, "Calendar binding not found", http.StatusNotFound)
        return
    }

    if binding.Retired() {
        http.Error(w, "Calendar binding already retired", http.StatusConflict)
        return
    }

    now := time.Now()
    binding.Status = models.CalendarRetired
    binding.RetiredAt = &now

    if err := h.db.Save(&binding).Error; err != nil {
        http.Error(w, "Error retiring calendar binding", http.StatusInternalServerError)
        return
    }

    w.Header().Set("Content-Type", "application/json")
    json.NewEncoder(w).Encode(map[string]string{
        "message": "Calendar binding retired",
    })
}
