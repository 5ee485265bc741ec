package booking

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"
	"gorm.io/gorm"

	"github.com/bookwise/bookwise-server/cmd/models"
	"github.com/bookwise/bookwise-server/cmd/utils"
)

type BookingHandler struct {
    db  *gorm.DB
    svc *Service
}

func NewBookingHandler(db *gorm.DB, svc *Service) *BookingHandler {
    return &BookingHandler{db: db, svc: svc}
}

func (h *BookingHandler) RegisterRoutes(router *mux.Router) {
    router.HandleFunc("/bookings", h.CreateBooking).Methods("POST")
    router.HandleFunc("/bookings/{id}", h.GetBooking).Methods("GET")
    router.HandleFunc("/bookings/{id}/reschedule", h.RescheduleBooking).Methods("PATCH")
    router.HandleFunc("/bookings/{id}/cancel", h.CancelBooking).Methods("PATCH")
    router.HandleFunc("/bookings/{id}/status", h.UpdateBookingStatus).Methods("PATCH")
    router.HandleFunc("/bookings/guest/{guestId}", h.GetGuestBookings).Methods("GET")
    router.HandleFunc("/bookings/host/{hostId}", h.GetHostBookings).Methods("GET")
}

func writeServiceError(w http.ResponseWriter, err error) {
    switch {
    case errors.Is(err, ErrSlotNotFound), errors.Is(err, ErrBookingNotFound):
        http.Error(w, err.Error(), http.StatusNotFound)
    case errors.Is(err, ErrInvalidDate), errors.Is(err, ErrInvalidInput):
        http.Error(w, err.Error(), http.StatusBadRequest)
    case errors.Is(err, ErrSlotAlreadyBooked), errors.Is(err, ErrInvalidTransition):
        http.Error(w, err.Error(), http.StatusConflict)
    case errors.Is(err, ErrForbidden):
        http.Error(w, err.Error(), http.StatusForbidden)
    default:
        http.Error(w, "Error processing booking", http.StatusInternalServerError)
    }
}

func (h *BookingHandler) CreateBooking(w http.ResponseWriter, r *http.Request) {
    guestID, err := utils.GetMemberIDFromContext(r)
    if err != nil {
        http.Error(w, "Unauthorized", http.StatusUnauthorized)
        return
    }

    var bookingRequest struct {
        TimeSlotID  uint   `json:"time_slot_id"`
        BookingDate string `json:"booking_date"`
        Topic       string `json:"topic"`
        Description string `json:"description"`
    }
    if err := json.NewDecoder(r.Body).Decode(&bookingRequest); err != nil {
        http.Error(w, "Invalid request body", http.StatusBadRequest)
        return
    }

    date, err := time.Parse("2006-01-02", bookingRequest.BookingDate)
    if err != nil {
        http.Error(w, "Invalid booking date. Use YYYY-MM-DD", http.StatusBadRequest)
        return
    }

    booking, err := h.svc.Create(r.Context(), CreateInput{
        GuestID:     guestID,
        TimeSlotID:  bookingRequest.TimeSlotID,
        Date:        date,
        Topic:       bookingRequest.Topic,
        Description: bookingRequest.Description,
    })
    if err != nil {
        writeServiceError(w, err)
        return
    }

    w.Header().Set("Content-Type", "application/json")
    w.WriteHeader(http.StatusCreated)
    json.NewEncoder(w).Encode(booking)
}

func (h *BookingHandler) GetBooking(w http.ResponseWriter, r *http.Request) {
    vars := mux.Vars(r)
    bookingID, err := strconv.ParseUint(vars["id"], 10, 64)
    if err != nil {
        http.Error(w, "Invalid booking ID", http.StatusBadRequest)
        return
    }

    booking, err := h.svc.Get(r.Context(), uint(bookingID))
    if err != nil {
        writeServiceError(w, err)
        return
    }

    w.Header().Set("Content-Type", "application/json")
    json.NewEncoder(w).Encode(booking)
}

func (h *BookingHandler) RescheduleBooking(w http.ResponseWriter, r *http.Request) {
    memberID, err := utils.GetMemberIDFromContext(r)
    if err != nil {
        http.Error(w, "Unauthorized", http.StatusUnauthorized)
        return
    }

    vars := mux.Vars(r)
    bookingID, err := strconv.ParseUint(vars["id"], 10, 64)
    if err != nil {
        http.Error(w, "Invalid booking ID", http.StatusBadRequest)
        return
    }

    var rescheduleRequest struct {
        NewTimeSlotID uint   `json:"new_time_slot_id"`
        NewDate       string `json:"new_date"`
    }
    if err := json.NewDecoder(r.Body).Decode(&rescheduleRequest); err != nil {
        http.Error(w, "Invalid request body", http.StatusBadRequest)
        return
    }

    date, err := time.Parse("2006-01-02", rescheduleRequest.NewDate)
    if err != nil {
        http.Error(w, "Invalid date. Use YYYY-MM-DD", http.StatusBadRequest)
        return
    }

    booking, err := h.svc.Reschedule(r.Context(), uint(bookingID), memberID, rescheduleRequest.NewTimeSlotID, date)
    if err != nil {
        writeServiceError(w, err)
        return
    }

    w.Header().Set("Content-Type", "application/json")
    json.NewEncoder(w).Encode(booking)
}

func (h *BookingHandler) CancelBooking(w http.ResponseWriter, r *http.Request) {
    memberID, err := utils.GetMemberIDFromContext(r)
    if err != nil {
        http.Error(w, "Unauthorized", http.StatusUnauthorized)
        return
    }

    vars := mux.Vars(r)
    bookingID, err := strconv.ParseUint(vars["id"], 10, 64)
    if err != nil {
        http.Error(w, "Invalid booking ID", http.StatusBadRequest)
        return
    }

    booking, err := h.svc.Cancel(r.Context(), uint(bookingID), memberID)
    if err != nil {
        writeServiceError(w, err)
        return
    }

    w.Header().Set("Content-Type", "application/json")
    json.NewEncoder(w).Encode(booking)
}

func (h *BookingHandler) UpdateBookingStatus(w http.ResponseWriter, r *http.Request) {
    hostID, err := utils.GetMemberIDFromContext(r)
    if err != nil {
        http.Error(w, "Unauthorized", http.StatusUnauthorized)
        return
    }

    vars := mux.Vars(r)
    bookingID, err := strconv.ParseUint(vars["id"], 10, 64)
    if err != nil {
        http.Error(w, "Invalid booking ID", http.StatusBadRequest)
        return
    }

    var statusUpdate struct {
        Status       string `json:"status"`
        NoShowReason string `json:"no_show_reason"`
    }
    if err := json.NewDecoder(r.Body).Decode(&statusUpdate); err != nil {
        http.Error(w, "Invalid request body", http.StatusBadRequest)
        return
    }

    booking, err := h.svc.UpdateStatus(r.Context(), uint(bookingID), hostID, statusUpdate.Status, statusUpdate.NoShowReason)
    if err != nil {
        writeServiceError(w, err)
        return
    }

    w.Header().Set("Content-Type", "application/json")
    json.NewEncoder(w).Encode(booking)
}

func (h *BookingHandler) GetGuestBookings(w http.ResponseWriter, r *http.Request) {
    vars := mux.Vars(r)
    guestID, err := strconv.ParseUint(vars["guestId"], 10, 64)
    if err != nil {
        http.Error(w, "Invalid guest ID", http.StatusBadRequest)
        return
    }

    h.listBookings(w, r, "guest_id = ?", guestID)
}

func (h *BookingHandler) GetHostBookings(w http.ResponseWriter, r *http.Request) {
    vars := mux.Vars(r)
    hostID, err := strconv.ParseUint(vars["hostId"], 10, 64)
    if err != nil {
        http.Error(w, "Invalid host ID", http.StatusBadRequest)
        return
    }

    h.listBookings(w, r, "host_id = ?", hostID)
}

func (h *BookingHandler) listBookings(w http.ResponseWriter, r *http.Request, cond string, id uint64) {
    page, _ := strconv.Atoi(r.URL.Query().Get("page"))
    if page < 1 {
        page = 1
    }
    pageSize := 100

    query := h.db.Model(&models.Booking{}).Where(cond, id).Preload("TimeSlot")

    // Apply filters
    if status := r.URL.Query().Get("status"); status != "" {
        query = query.Where("attendance_status = ?", status)
    }
    if date := r.URL.Query().Get("date"); date != "" {
        query = query.Where("booking_date = ?", date)
    }

    var total int64
    if err := query.Count(&total).Error; err != nil {
        http.Error(w, "Error retrieving bookings", http.StatusInternalServerError)
        return
    }

    var bookings []models.Booking
    if err := query.Offset((page - 1) * pageSize).Limit(pageSize).
        Order("booking_date DESC, start_time DESC").Find(&bookings).Error; err != nil {
        http.Error(w, "Error retrieving bookings", http.StatusInternalServerError)
        return
    }

    w.Header().Set("Content-Type", "application/json")
    json.NewEncoder(w).Encode(map[string]interface{}{
        "bookings":    bookings,
        "total":       total,
        "page":        page,
        "page_size":   pageSize,
        "total_pages": (total + int64(pageSize) - 1) / int64(pageSize),
    })
}
