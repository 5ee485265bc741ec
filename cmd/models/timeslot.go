package models

import (
	"database/sql/driver"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"
)

// WeekdaySet holds the weekdays a slot repeats on, 0=Sunday through
// 6=Saturday (same numbering as time.Weekday). Stored as JSON text so the
// column works on both postgres and sqlite.
type WeekdaySet []int

func (s WeekdaySet) Value() (driver.Value, error) {
	b, err := json.Marshal(s)
	if err != nil {
		return nil, err
	}
	return string(b), nil
}

func (s *WeekdaySet) Scan(value interface{}) error {
	switch v := value.(type) {
	case []byte:
		return json.Unmarshal(v, s)
	case string:
		return json.Unmarshal([]byte(v), s)
	case nil:
		*s = nil
		return nil
	}
	return fmt.Errorf("cannot scan %T into WeekdaySet", value)
}

func (s WeekdaySet) Contains(d time.Weekday) bool {
	for _, w := range s {
		if w == int(d) {
			return true
		}
	}
	return false
}

func (s WeekdaySet) Validate() error {
	if len(s) == 0 {
		return errors.New("weekdays must not be empty")
	}
	for _, w := range s {
		if w < 0 || w > 6 {
			return fmt.Errorf("weekday %d out of range 0-6", w)
		}
	}
	return nil
}

// TimeSlot is a host's recurring weekly availability window. Start and end
// are times of day in "15:04" form.
type TimeSlot struct {
	gorm.Model
	HostID    uint       `gorm:"column:host_id;not null;index" json:"host_id"`
	StartTime string     `gorm:"column:start_time;size:5;not null" json:"start_time"`
	EndTime   string     `gorm:"column:end_time;size:5;not null" json:"end_time"`
	Weekdays  WeekdaySet `gorm:"column:weekdays;type:text;not null" json:"weekdays"`
}

func (TimeSlot) TableName() string {
	return "time_slots"
}
