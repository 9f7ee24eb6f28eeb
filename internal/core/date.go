package core

import (
	"errors"
	"strings"
	"time"
)

// DateLayout is the wire and form format for dates.
const DateLayout = "2006-01-02"

// Date is a calendar day in UTC. The zero value means "not set".
type Date struct {
	time.Time
}

// NewDate creates a new Date from year, month, day
func NewDate(year, month, day int) Date {
	return Date{Time: time.Date(year, time.Month(month), day, 0, 0, 0, 0, time.UTC)}
}

// DateOf truncates t to its calendar day in t's location.
func DateOf(t time.Time) Date {
	y, m, d := t.Date()
	return NewDate(y, int(m), d)
}

// Today returns the current day in the local timezone.
func Today() Date {
	return DateOf(time.Now())
}

// ParseDate parses YYYY-MM-DD. Out-of-range days such as 2025-02-30 are rejected.
func ParseDate(s string) (Date, error) {
	t, err := time.Parse(DateLayout, strings.TrimSpace(s))
	if err != nil {
		return Date{}, ErrInvalidDate
	}
	return Date{Time: t}, nil
}

// ParseOptionalDate is ParseDate but returns the zero Date for blank input.
func ParseOptionalDate(s string) (Date, error) {
	if strings.TrimSpace(s) == "" {
		return Date{}, nil
	}
	return ParseDate(s)
}

func (d Date) Validate() error {
	if d.IsZero() {
		return errors.New("date cannot be zero")
	}
	if d.Time.Year() < 1900 || d.Time.Year() > 9999 {
		return ErrInvalidDate
	}
	return nil
}

// String formats the date as YYYY-MM-DD, or "" when unset.
func (d Date) String() string {
	if d.IsZero() {
		return ""
	}
	return d.Format(DateLayout)
}

func (d Date) AddDays(n int) Date {
	return Date{Time: d.Time.AddDate(0, 0, n)}
}

// StartOfYear returns January 1st of d's year.
func (d Date) StartOfYear() Date {
	return NewDate(d.Time.Year(), 1, 1)
}

// YearMonth identifies a calendar month.
type YearMonth struct {
	Year  int
	Month int // 1-12
}

func (d Date) YearMonth() YearMonth {
	return YearMonth{Year: d.Time.Year(), Month: int(d.Time.Month())}
}

// Previous returns the month before ym, rolling January back to December of the previous year.
func (ym YearMonth) Previous() YearMonth {
	if ym.Month <= 1 {
		return YearMonth{Year: ym.Year - 1, Month: 12}
	}
	return YearMonth{Year: ym.Year, Month: ym.Month - 1}
}

func (ym YearMonth) Validate() error {
	if ym.Month < 1 || ym.Month > 12 {
		return ErrInvalidMonth
	}
	if ym.Year < 1900 || ym.Year > 9999 {
		return ErrInvalidDate
	}
	return nil
}

func (ym YearMonth) String() string {
	return NewDate(ym.Year, ym.Month, 1).Format("2006-01")
}
