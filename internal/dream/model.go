// Package dream provides the dream journal domain models and the repository
// that maps dreams and their emotion tags onto the sqlite store.
package dream

import (
	"database/sql/driver"
	"errors"
	"fmt"
	"reflect"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

// DateLayout is the wire and storage format of a dream date.
const DateLayout = "2006-01-02"

var (
	// ErrNotFound is returned when no dream matches the requested identifier.
	ErrNotFound = errors.New("dream not found")
	// ErrInvalidMonth is returned when a month outside 1..12 is requested.
	ErrInvalidMonth = errors.New("month must be between 1 and 12")
)

// Date is a calendar date without a time of day.
type Date struct {
	time.Time
}

// NewDate returns the date at midnight UTC.
func NewDate(year int, month time.Month, day int) Date {
	return Date{Time: time.Date(year, month, day, 0, 0, 0, 0, time.UTC)}
}

// ParseDate parses a YYYY-MM-DD string.
func ParseDate(s string) (Date, error) {
	t, err := time.Parse(DateLayout, s)
	if err != nil {
		return Date{}, fmt.Errorf("parse date %q: %w", s, err)
	}
	return Date{Time: t}, nil
}

func (d Date) String() string {
	return d.Format(DateLayout)
}

func (d Date) MarshalText() ([]byte, error) {
	return []byte(d.String()), nil
}

func (d *Date) UnmarshalText(text []byte) error {
	parsed, err := ParseDate(string(text))
	if err != nil {
		return err
	}
	*d = parsed
	return nil
}

func (d Date) MarshalJSON() ([]byte, error) {
	return []byte(`"` + d.String() + `"`), nil
}

func (d *Date) UnmarshalJSON(data []byte) error {
	s := string(data)
	if s == "null" {
		return nil
	}
	if len(s) < 2 || s[0] != '"' || s[len(s)-1] != '"' {
		return fmt.Errorf("date must be a string in %s format", DateLayout)
	}
	return d.UnmarshalText([]byte(s[1 : len(s)-1]))
}

func (d Date) MarshalYAML() (interface{}, error) {
	return d.String(), nil
}

func (d *Date) UnmarshalYAML(node *yaml.Node) error {
	return d.UnmarshalText([]byte(node.Value))
}

// Scan implements sql.Scanner. go-sqlite3 returns DATE columns as time.Time,
// other drivers may hand back the raw text.
func (d *Date) Scan(src interface{}) error {
	switch v := src.(type) {
	case time.Time:
		*d = NewDate(v.Year(), v.Month(), v.Day())
		return nil
	case string:
		return d.UnmarshalText([]byte(v))
	case []byte:
		return d.UnmarshalText(v)
	case nil:
		*d = Date{}
		return nil
	default:
		return fmt.Errorf("cannot scan %T into dream.Date", src)
	}
}

// Value implements driver.Valuer.
func (d Date) Value() (driver.Value, error) {
	return d.String(), nil
}

// Dream is a single row of the dreams table.
type Dream struct {
	ID                int64  `db:"id" json:"id" yaml:"id"`
	Name              string `db:"name" json:"name" yaml:"name"`
	Description       string `db:"description" json:"description" yaml:"description"`
	DreamDate         Date   `db:"dream_date" json:"dream_date" yaml:"dream_date"`
	Lucidity          bool   `db:"lucidity" json:"lucidity" yaml:"lucidity"`
	SleepDuration     *int64 `db:"sleep_duration" json:"sleep_duration" yaml:"sleep_duration,omitempty"`
	Recurring         bool   `db:"recurring" json:"recurring" yaml:"recurring"`
	RoomTemp          *int64 `db:"room_temp" json:"room_temp" yaml:"room_temp,omitempty"`
	StressBeforeSleep *int64 `db:"stress_before_sleep" json:"stress_before_sleep" yaml:"stress_before_sleep,omitempty"`
}

// Record is a dream together with its emotion labels in insertion order.
type Record struct {
	Dream    `yaml:",inline"`
	Emotions []string `db:"-" json:"emotions" yaml:"emotions"`
}

// Payload converts the record back into the input of Create or Update.
func (r Record) Payload() Payload {
	date := r.DreamDate
	lucidity := r.Lucidity
	recurring := r.Recurring
	emotions := make([]string, len(r.Emotions))
	copy(emotions, r.Emotions)
	return Payload{
		Name:              r.Name,
		Description:       r.Description,
		DreamDate:         &date,
		Lucidity:          &lucidity,
		SleepDuration:     r.SleepDuration,
		Recurring:         &recurring,
		RoomTemp:          r.RoomTemp,
		StressBeforeSleep: r.StressBeforeSleep,
		Emotions:          emotions,
	}
}

// Summary is the reduced view returned when listing a month.
type Summary struct {
	ID        int64    `db:"id" json:"id" yaml:"id"`
	Name      string   `db:"name" json:"name" yaml:"name"`
	DreamDate Date     `db:"dream_date" json:"dream_date" yaml:"dream_date"`
	Emotions  []string `db:"-" json:"emotions" yaml:"emotions"`
}

// Emotion is a single row of the emotions table.
type Emotion struct {
	ID      int64  `db:"id"`
	DreamID int64  `db:"dream_id"`
	Label   string `db:"emotion"`
}

// Payload is the client supplied body for creating or fully replacing a dream.
type Payload struct {
	Name              string   `json:"name" yaml:"name" validate:"required,max=255"`
	Description       string   `json:"description" yaml:"description" validate:"required"`
	DreamDate         *Date    `json:"dream_date" yaml:"dream_date" validate:"required"`
	Lucidity          *bool    `json:"lucidity" yaml:"lucidity" validate:"required"`
	SleepDuration     *int64   `json:"sleep_duration" yaml:"sleep_duration" validate:"omitempty,min=0"`
	Recurring         *bool    `json:"recurring" yaml:"recurring"`
	RoomTemp          *int64   `json:"room_temp" yaml:"room_temp"`
	StressBeforeSleep *int64   `json:"stress_before_sleep" yaml:"stress_before_sleep" validate:"omitempty,min=0"`
	Emotions          []string `json:"emotions" yaml:"emotions" validate:"dive,required"`
}

var validate = newPayloadValidator()

func newPayloadValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// Validate checks the payload shape. The returned error is a
// validator.ValidationErrors keyed by JSON field names.
func (p *Payload) Validate() error {
	return validate.Struct(p)
}

// args returns the column values in the order of dreamColumns.
func (p *Payload) args() []interface{} {
	recurring := p.Recurring != nil && *p.Recurring
	return []interface{}{
		p.Name,
		p.Description,
		*p.DreamDate,
		*p.Lucidity,
		p.SleepDuration,
		recurring,
		p.RoomTemp,
		p.StressBeforeSleep,
	}
}
