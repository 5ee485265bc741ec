package models

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"

	"gorm.io/gorm"
)

const (
	CalendarActive  = "active"
	CalendarRetired = "retired"
)

// StringList is a JSON-backed list column (portable across postgres/sqlite).
type StringList []string

func (l StringList) Value() (driver.Value, error) {
	b, err := json.Marshal(l)
	if err != nil {
		return nil, err
	}
	return string(b), nil
}

func (l *StringList) Scan(value interface{}) error {
	switch v := value.(type) {
	case []byte:
		return json.Unmarshal(v, l)
	case string:
		return json.Unmarshal([]byte(v), l)
	case nil:
		*l = nil
		return nil
	}
	return fmt.Errorf("cannot scan %T into StringList", value)
}

// CalendarBinding links a host to one external calendar identity. Bindings
// are never hard-deleted: disconnecting a host retires the binding so that
// events already created externally can still be cleaned up later.
type CalendarBinding struct {
	gorm.Model
	HostID             uint       `gorm:"column:host_id;not null;uniqueIndex" json:"host_id"`
	Topics             StringList `gorm:"column:topics;type:text;not null" json:"topics"`
	Description        string     `gorm:"column:description;type:text;not null" json:"description"`
	ExternalCalendarID string     `gorm:"column:external_calendar_id;size:255;not null" json:"external_calendar_id"`
	Status             string     `gorm:"column:status;size:20;not null;default:active" json:"status"`
	RetiredAt          *time.Time `gorm:"column:retired_at" json:"retired_at,omitempty"`
}

func (CalendarBinding) TableName() string {
	return "calendar_bindings"
}

func (c *CalendarBinding) Retired() bool {
	return c.Status == CalendarRetired
}
