package models

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"regexp"
	"time"
)

// DateOnly is a calendar date in plain YYYY-MM-DD form.
//
// All window-membership and day-bucketing decisions compare these strings
// lexically. Converting through time.Time with a location shifts tasks across
// midnight and buckets them into the wrong day, so the value is kept as text
// end to end: JSON, SQL (DATE column) and comparisons.
type DateOnly string

var dateOnlyRe = regexp.MustCompile(`^\d{4}-\d{2}-\d{2}$`)

// ParseDateOnly validates s as a YYYY-MM-DD calendar date.
func ParseDateOnly(s string) (DateOnly, error) {
	if !dateOnlyRe.MatchString(s) {
		return "", fmt.Errorf("invalid date %q (want YYYY-MM-DD)", s)
	}
	if _, err := time.Parse("2006-01-02", s); err != nil {
		return "", fmt.Errorf("invalid date %q: %w", s, err)
	}
	return DateOnly(s), nil
}

func (d DateOnly) String() string { return string(d) }

// IsZero reports whether the date is unset.
func (d DateOnly) IsZero() bool { return d == "" }

// Before and After are lexical; valid YYYY-MM-DD strings order the same way
// as the dates they name.
func (d DateOnly) Before(other DateOnly) bool { return d < other }
func (d DateOnly) After(other DateOnly) bool  { return d > other }

// Within reports whether d falls inside [start, end] inclusive.
func (d DateOnly) Within(start, end DateOnly) bool {
	return !d.Before(start) && !d.After(end)
}

// Scan accepts time.Time (how lib/pq returns DATE columns), []byte and string.
func (d *DateOnly) Scan(src interface{}) error {
	switch v := src.(type) {
	case nil:
		*d = ""
		return nil
	case time.Time:
		// pq parses DATE columns in UTC with a zero clock; formatting the
		// parsed value back loses nothing.
		*d = DateOnly(v.Format("2006-01-02"))
		return nil
	case []byte:
		*d = DateOnly(v)
		return nil
	case string:
		*d = DateOnly(v)
		return nil
	default:
		return fmt.Errorf("cannot scan %T into DateOnly", src)
	}
}

func (d DateOnly) Value() (driver.Value, error) {
	if d == "" {
		return nil, nil
	}
	return string(d), nil
}

func (d DateOnly) MarshalJSON() ([]byte, error) {
	return json.Marshal(string(d))
}

func (d *DateOnly) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return err
	}
	if s == "" {
		*d = ""
		return nil
	}
	parsed, err := ParseDateOnly(s)
	if err != nil {
		return err
	}
	*d = parsed
	return nil
}
