package booking

import "errors"

var (
	ErrSlotNotFound      = errors.New("time slot not found")
	ErrBookingNotFound   = errors.New("booking not found")
	ErrInvalidDate       = errors.New("booking date is in the past or not offered on that weekday")
	ErrSlotAlreadyBooked = errors.New("time slot already booked for that date")
	ErrInvalidTransition = errors.New("illegal booking status transition")
	ErrForbidden         = errors.New("member may not modify this booking")
	ErrInvalidInput      = errors.New("invalid booking request")
)
