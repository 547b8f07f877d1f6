package models

import (
	"fmt"
	"time"
)

// StoreLocation is a pickup point and delivery origin.
type StoreLocation struct {
	ID        string      `gorm:"column:id;primaryKey"`
	Name      string      `gorm:"column:name;not null"`
	Address   string      `gorm:"column:address;not null"`
	Phone     string      `gorm:"column:phone"`
	Lat       float64     `gorm:"column:lat;not null"`
	Lng       float64     `gorm:"column:lng;not null"`
	Hours     WeeklyHours `gorm:"column:hours;type:jsonb;serializer:json"`
	IsActive  bool        `gorm:"column:is_active;not null;default:true"`
	CreatedAt time.Time   `gorm:"column:created_at;autoCreateTime"`
}

func (StoreLocation) TableName() string { return "store_locations" }

// WeeklyHours is keyed by lowercase English weekday ("monday").
type WeeklyHours map[string]DayHours

// DayHours holds HH:MM local open/close times.
type DayHours struct {
	Open   string `json:"open"`
	Close  string `json:"close"`
	Closed bool   `json:"closed,omitempty"`
}

// IsOpenAt reports whether t (in the location's wall clock) falls inside the
// operating window for its weekday. Close is exclusive.
func (s StoreLocation) IsOpenAt(t time.Time) bool {
	day, ok := s.Hours[weekdayKey(t.Weekday())]
	if !ok || day.Closed {
		return false
	}
	open, err := minuteOfDay(day.Open)
	if err != nil {
		return false
	}
	closing, err := minuteOfDay(day.Close)
	if err != nil {
		return false
	}
	at := t.Hour()*60 + t.Minute()
	return at >= open && at < closing
}

func weekdayKey(d time.Weekday) string {
	switch d {
	case time.Monday:
		return "monday"
	case time.Tuesday:
		return "tuesday"
	case time.Wednesday:
		return "wednesday"
	case time.Thursday:
		return "thursday"
	case time.Friday:
		return "friday"
	case time.Saturday:
		return "saturday"
	default:
		return "sunday"
	}
}

func minuteOfDay(hhmm string) (int, error) {
	var h, m int
	if _, err := fmt.Sscanf(hhmm, "%d:%d", &h, &m); err != nil {
		return 0, fmt.Errorf("parse %q: %w", hhmm, err)
	}
	if h < 0 || h > 24 || m < 0 || m > 59 {
		return 0, fmt.Errorf("out of range %q", hhmm)
	}
	return h*60 + m, nil
}
