package api

import (
	"log"
	"net/http"
	"os"

	"github.com/gorilla/handlers"
	"github.com/gorilla/mux"
	"gorm.io/gorm"

	"github.com/bookwise/bookwise-server/cmd/utils"
	"github.com/bookwise/bookwise-server/service/availability"
	"github.com/bookwise/bookwise-server/service/booking"
	"github.com/bookwise/bookwise-server/service/calendar"
	"github.com/bookwise/bookwise-server/service/calendarapi"
	"github.com/bookwise/bookwise-server/service/calsync"
	"github.com/bookwise/bookwise-server/service/events"
	"github.com/bookwise/bookwise-server/service/notification"
	"github.com/bookwise/bookwise-server/service/timeslot"
	"github.com/bookwise/bookwise-server/service/withdrawal"
)

type APIServer struct {
	address string
	db      *gorm.DB
}

func NewApiServer(address string, db *gorm.DB) *APIServer {
	return &APIServer{
		address: address,
		db:      db,
	}
}

func (s *APIServer) Run() error {
	router := mux.NewRouter()
	subrouter := router.PathPrefix("/api/v1").Subrouter()
	subrouter.Use(utils.AuthMiddleware)

	calendarCfg, err := calendarapi.LoadConfig()
	if err != nil {
		return err
	}
	calendarClient := calendarapi.NewHTTPClient(calendarCfg)
	mailer := notification.NewMailerFromEnv()
	syncer := calsync.NewCoordinator(s.db, calendarClient, mailer)

	var publisher *events.Publisher
	if mqURL := os.Getenv("MQ_URL"); mqURL != "" {
		publisher, err = events.NewPublisher(mqURL, "bookwise.events")
		if err != nil {
			log.Printf("Event publisher disabled: %v", err)
			publisher = nil
		} else {
			defer publisher.Close()
		}
	}

	bookingSvc := booking.NewService(s.db, syncer, publisher)

	timeslotHandler := timeslot.NewTimeSlotHandler(s.db)
	timeslotHandler.RegisterRoutes(subrouter)

	calendarHandler := calendar.NewCalendarHandler(s.db)
	calendarHandler.RegisterRoutes(subrouter)

	availabilityHandler := availability.NewAvailabilityHandler(s.db)
	availabilityHandler.RegisterRoutes(subrouter)

	bookingHandler := booking.NewBookingHandler(s.db, bookingSvc)
	bookingHandler.RegisterRoutes(subrouter)

	withdrawalHandler := withdrawal.NewWithdrawalHandler(s.db, syncer)
	withdrawalHandler.RegisterRoutes(subrouter)

	sweeper, err := syncer.StartWorker(os.Getenv("SYNC_SWEEP_SCHEDULE"))
	if err != nil {
		return err
	}
	defer sweeper.Stop()

	corsRouter := handlers.CORS(
		handlers.AllowedOrigins([]string{"*"}),
		handlers.AllowedMethods([]string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"}),
		handlers.AllowedHeaders([]string{"Content-Type", "Authorization"}),
	)(router)

	log.Println("Server running at", s.address)
	return http.ListenAndServe(s.address, handlers.LoggingHandler(os.Stdout, corsRouter))
}
