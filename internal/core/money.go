// Package core holds the farm ledger domain: entities, enums, money and date
// handling, and the profit figures shown on the dashboard.
package core

import (
	"strconv"
	"strings"
	"unicode"

	"golang.org/x/text/language"
	"golang.org/x/text/message"
)

// Money is an amount in minor units (hundredths). Profits may be negative; entered amounts may not.
type Money struct {
	Cents int64
}

// CurrencySymbol prefixes formatted amounts.
var CurrencySymbol = "¥"

func (m Money) Validate() error {
	if m.Cents <= 0 {
		return ErrInvalidAmount
	}
	return nil
}

func (m Money) Add(o Money) Money { return Money{Cents: m.Cents + o.Cents} }
func (m Money) Sub(o Money) Money { return Money{Cents: m.Cents - o.Cents} }

func (m Money) IsZero() bool { return m.Cents == 0 }

// Float64 is the amount in major units, for spreadsheet cells that must stay numeric.
func (m Money) Float64() float64 { return float64(m.Cents) / 100 }

// Decimal renders the amount without grouping, as used in form inputs and exports: "1234" or "1234.50".
func (m Money) Decimal() string {
	neg := m.Cents < 0
	c := m.Cents
	if neg {
		c = -c
	}
	s := strconv.FormatInt(c/100, 10)
	if frac := c % 100; frac != 0 {
		s += "." + leftPad2(frac)
	}
	if neg {
		s = "-" + s
	}
	return s
}

// Format renders the amount with locale grouping and the currency symbol: "¥1,234,567".
func (m Money) Format(tag language.Tag) string {
	p := message.NewPrinter(tag)
	c := m.Cents
	sign := ""
	if c < 0 {
		sign = "-"
		c = -c
	}
	whole := p.Sprintf("%d", c/100)
	if frac := c % 100; frac != 0 {
		whole += "." + leftPad2(frac)
	}
	return sign + CurrencySymbol + whole
}

func (m Money) String() string {
	return m.Format(language.English)
}

func leftPad2(n int64) string {
	if n < 10 {
		return "0" + strconv.FormatInt(n, 10)
	}
	return strconv.FormatInt(n, 10)
}

// ParseMoney parses a positive decimal amount typed into a form.
func ParseMoney(s string) (Money, error) {
	cents, err := ParseDecimalToCents(s)
	if err != nil {
		return Money{}, err
	}
	return Money{Cents: cents}, nil
}

// ParseDecimalToCents converts a decimal string to minor units.
//
// Dot and comma are both accepted as the decimal separator, so grouping
// separators are not understood: "1,234" parses as 1.234. A third
// fractional digit rounds half-up. Only strictly positive results are accepted.
func ParseDecimalToCents(s string) (int64, error) {
	s = strings.TrimSpace(s)
	s = strings.TrimPrefix(s, CurrencySymbol)
	if s == "" || s[0] == '+' || s[0] == '-' {
		return 0, ErrInvalidAmount
	}
	s = strings.ReplaceAll(s, ",", ".")

	intPart, fracPart, _ := strings.Cut(s, ".")
	if strings.Contains(fracPart, ".") {
		return 0, ErrInvalidAmount
	}
	if intPart == "" {
		intPart = "0"
	}
	if !allDigits(intPart) || !allDigits(fracPart) {
		return 0, ErrInvalidAmount
	}

	iv, err := strconv.ParseInt(intPart, 10, 64)
	if err != nil {
		return 0, ErrInvalidAmount
	}
	const maxSafe = (1<<63 - 1) / 100
	if iv >= maxSafe {
		return 0, ErrInvalidAmount
	}

	var frac int64
	for i := 0; i < 2 && i < len(fracPart); i++ {
		d := int64(fracPart[i] - '0')
		if i == 0 {
			frac += d * 10
		} else {
			frac += d
		}
	}
	if len(fracPart) > 2 && fracPart[2] >= '5' {
		frac++
	}

	cents := iv*100 + frac
	if cents <= 0 {
		return 0, ErrInvalidAmount
	}
	return cents, nil
}

func allDigits(s string) bool {
	for _, r := range s {
		if !unicode.IsDigit(r) || r > unicode.MaxASCII {
			return false
		}
	}
	return true
}
