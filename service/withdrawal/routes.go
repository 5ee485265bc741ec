package withdrawal

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"
	"gorm.io/gorm"

	"github.com/bookwise/bookwise-server/cmd/models"
	"github.com/bookwise/bookwise-server/cmd/utils"
	"github.com/bookwise/bookwise-server/service/calsync"
)

// Snapshot captures everything the compensation sweep needs before the
// member's identity disappears. It is a value, not a live query.
type Snapshot struct {
	MemberID      uint
	Role          string
	HostBookings  []models.Booking
	GuestBookings []models.Booking
	AsOf          time.Time
}

type WithdrawalHandler struct {
    db     *gorm.DB
    syncer *calsync.Coordinator
}

func NewWithdrawalHandler(db *gorm.DB, syncer *calsync.Coordinator) *WithdrawalHandler {
    return &WithdrawalHandler{db: db, syncer: syncer}
}

func (h *WithdrawalHandler) RegisterRoutes(router *mux.Router) {
    router.HandleFunc("/members/{memberId}/withdrawal", h.HandleWithdrawal).Methods("POST")
}

// HandleWithdrawal is invoked by the identity service when a member account
// is deleted. It snapshots the member's bookings, retracts their external
// events and releases their slots.
func (h *WithdrawalHandler) HandleWithdrawal(w http.ResponseWriter, r *http.Request) {
    vars := mux.Vars(r)
    memberID, err := strconv.ParseUint(vars["memberId"], 10, 64)
    if err != nil {
        http.Error(w, "Invalid member ID", http.StatusBadRequest)
        return
    }

    var req struct {
        Role string `json:"role"`
    }
    if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
        http.Error(w, "Invalid request body", http.StatusBadRequest)
        return
    }
    if req.Role != utils.RoleHost && req.Role != utils.RoleGuest {
        http.Error(w, "Role must be host or guest", http.StatusBadRequest)
        return
    }

    snapshot, err := BuildSnapshot(h.db, uint(memberID), req.Role)
    if err != nil {
        http.Error(w, "Error capturing member bookings", http.StatusInternalServerError)
        return
    }

    result, err := h.Compensate(snapshot)
    if err != nil {
        http.Error(w, "Error running withdrawal compensation", http.StatusInternalServerError)
        return
    }

    h.syncer.Kick()

    w.Header().Set("Content-Type", "application/json")
    json.NewEncoder(w).Encode(result)
}

// BuildSnapshot reads the member's active bookings once, before anything is
// mutated or the identity row goes away.
func BuildSnapshot(db *gorm.DB, memberID uint, role string) (*Snapshot, error) {
	s := &Snapshot{MemberID: memberID, Role: role, AsOf: time.Now().UTC()}

	if role == utils.RoleHost {
		if err := db.Where("host_id = ? AND attendance_status <> ?", memberID, models.StatusCancelled).
			Find(&s.HostBookings).Error; err != nil {
			return nil, err
		}
	}

	if err := db.Where("guest_id = ? AND attendance_status <> ?", memberID, models.StatusCancelled).
		Find(&s.GuestBookings).Error; err != nil {
		return nil, err
	}

	return s, nil
}

// Result reports what the sweep did.
type Result struct {
	MemberID             uint `json:"member_id"`
	RetractionsEnqueued  int  `json:"retractions_enqueued"`
	BookingsCancelled    int  `json:"bookings_cancelled"`
	BookingsSkipped      int  `json:"bookings_skipped"`
	CalendarBindingRetired bool `json:"calendar_binding_retired"`
}

// Compensate drives the sweep from the snapshot. Every retraction goes
// through the isolated sync outbox, so one failing booking never blocks the
// rest; bookings whose calendar cannot be resolved are skipped and logged.
func (h *WithdrawalHandler) Compensate(s *Snapshot) (*Result, error) {
	result := &Result{MemberID: s.MemberID}

	err := h.db.Transaction(func(tx *gorm.DB) error {
		// Departing host: resolve their binding once, not once per booking.
		if s.Role == utils.RoleHost {
			var binding models.CalendarBinding
			err := tx.Where("host_id = ?", s.MemberID).First(&binding).Error
			switch {
			case err == nil:
				for _, b := range s.HostBookings {
					if b.ExternalEventID == "" {
						result.BookingsSkipped++
						continue
					}
					if err := h.syncer.EnqueueDelete(tx, b.ID, b.ExternalEventID, binding.ExternalCalendarID); err != nil {
						return err
					}
					result.RetractionsEnqueued++
				}
				if !binding.Retired() {
					now := time.Now()
					binding.Status = models.CalendarRetired
					binding.RetiredAt = &now
					if err := tx.Save(&binding).Error; err != nil {
						return err
					}
					result.CalendarBindingRetired = true
				}
			case errors.Is(err, gorm.ErrRecordNotFound):
				log.Printf("withdrawal: host %d has no calendar binding, skipping %d host bookings",
					s.MemberID, len(s.HostBookings))
				result.BookingsSkipped += len(s.HostBookings)
			default:
				return err
			}
		}

		// Guest bookings live on other hosts' calendars: resolve each host's
		// binding independently so one missing binding only skips that booking.
		for _, b := range s.GuestBookings {
			if b.ExternalEventID == "" {
				result.BookingsSkipped++
				continue
			}
			var binding models.CalendarBinding
			err := tx.Where("host_id = ?", b.HostID).First(&binding).Error
			if errors.Is(err, gorm.ErrRecordNotFound) {
				log.Printf("withdrawal: no calendar binding for host %d, cannot retract event %s of booking %d",
					b.HostID, b.ExternalEventID, b.ID)
				result.BookingsSkipped++
				continue
			}
			if err != nil {
				return err
			}
			if err := h.syncer.EnqueueDelete(tx, b.ID, b.ExternalEventID, binding.ExternalCalendarID); err != nil {
				return err
			}
			result.RetractionsEnqueued++
		}

		// Release the member's slots; rows stay behind for audit.
		cancelled, err := cancelActiveBookings(tx, s)
		if err != nil {
			return err
		}
		result.BookingsCancelled = cancelled

		return nil
	})
	if err != nil {
		return nil, err
	}

	return result, nil
}

func cancelActiveBookings(tx *gorm.DB, s *Snapshot) (int, error) {
	ids := make([]uint, 0, len(s.HostBookings)+len(s.GuestBookings))
	for _, b := range s.HostBookings {
		ids = append(ids, b.ID)
	}
	for _, b := range s.GuestBookings {
		ids = append(ids, b.ID)
	}
	if len(ids) == 0 {
		return 0, nil
	}

	res := tx.Model(&models.Booking{}).
		Where("id IN ? AND attendance_status <> ?", ids, models.StatusCancelled).
		Update("attendance_status", models.StatusCancelled)
	if res.Error != nil {
		return 0, res.Error
	}
	return int(res.RowsAffected), nil
}
