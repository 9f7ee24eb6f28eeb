package core

import (
	"errors"
	"fmt"
	"net/mail"
	"net/url"
	"strings"
	"time"
	"unicode/utf8"
)

const (
	MaxNameLength        = 200
	MaxDescriptionLength = 500
	MinPasswordLength    = 6

	// SessionReuseWindow is how long a rotated refresh token keeps working,
	// so parallel requests holding the same cookie do not sign the user out.
	SessionReuseWindow = 10 * time.Second
)

type (
	User struct {
		ID           string
		Email        string
		PasswordHash string
		CreatedAt    time.Time
	}

	// Session backs a refresh token. Revoked or expired sessions cannot be
	// refreshed, except that a rotated session forwards to ReplacedBy for
	// SessionReuseWindow after RotatedAt.
	Session struct {
		ID         string
		UserID     string
		Revoked    bool
		ReplacedBy string
		RotatedAt  time.Time
		CreatedAt  time.Time
		ExpiresAt  time.Time
	}

	// Profile is the farm owned by a user. Every ledger row hangs off Profile.ID.
	Profile struct {
		ID        string
		UserID    string
		Role      Role
		FarmName  string // empty when unset
		CreatedAt time.Time
		UpdatedAt time.Time
	}

	Herd struct {
		ID         string
		FarmID     string
		Name       string
		AnimalType AnimalType
		CreatedAt  time.Time
		UpdatedAt  time.Time
	}

	Animal struct {
		ID                   string
		HerdID               string
		IdentificationNumber string
		BirthDate            Date
		PurchaseDate         Date
		SaleDate             Date
		Status               AnimalStatus
		CreatedAt            time.Time
	}

	Revenue struct {
		ID           string
		FarmID       string
		Type         RevenueType
		Amount       Money
		Date         Date
		CustomerName string
		HerdID       string
		AnimalID     string
		Description  string
		CreatedAt    time.Time
		UpdatedAt    time.Time
	}

	Expense struct {
		ID          string
		FarmID      string
		Category    ExpenseCategory
		Amount      Money
		Date        Date
		VendorName  string
		HerdID      string
		AnimalID    string
		Description string
		CreatedAt   time.Time
		UpdatedAt   time.Time
	}

	Subsidy struct {
		ID                  string
		FarmID              string
		Name                string
		ExpectedAmount      Money
		ActualAmount        Money // zero until paid
		ApplicationDeadline Date
		PaymentDate         Date
		Status              SubsidyStatus
		DocumentURL         string
		CreatedAt           time.Time
		UpdatedAt           time.Time
	}
)

var (
	ErrNotFound  = errors.New("not found")
	ErrConflict  = errors.New("already exists")
	ErrForbidden = errors.New("forbidden")

	ErrInvalidMonth     = errors.New("invalid month")
	ErrInvalidDate      = errors.New("invalid date")
	ErrInvalidAmount    = errors.New("invalid amount")
	ErrEmptyName        = errors.New("name is required")
	ErrNameTooLong      = fmt.Errorf("name too long (max %d characters)", MaxNameLength)
	ErrDescriptionLong  = fmt.Errorf("description too long (max %d characters)", MaxDescriptionLength)
	ErrInvalidEmail     = errors.New("invalid email address")
	ErrPasswordTooShort = fmt.Errorf("password must be at least %d characters", MinPasswordLength)
	ErrInvalidURL       = errors.New("invalid document URL")
	ErrDateOrder        = errors.New("sale date cannot be before purchase date")
	ErrUnknownValue     = errors.New("unknown value")
)

// ValidationError ties a validation failure to the form field that caused it.
type ValidationError struct {
	Field string
	Err   error
}

func (e *ValidationError) Error() string {
	return e.Field + ": " + e.Err.Error()
}

func (e *ValidationError) Unwrap() error { return e.Err }

func invalid(field string, err error) error {
	return &ValidationError{Field: field, Err: err}
}

// IsValidation reports whether err is (or wraps) a ValidationError.
func IsValidation(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}

func (u User) Validate() error {
	if _, err := mail.ParseAddress(u.Email); err != nil || strings.ContainsAny(u.Email, " <>") {
		return invalid("email", ErrInvalidEmail)
	}
	return nil
}

// NormalizeEmail lowercases and trims an email for lookup and storage.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// ValidatePassword enforces the signup password rule.
func ValidatePassword(password string) error {
	if utf8.RuneCountInString(password) < MinPasswordLength {
		return invalid("password", ErrPasswordTooShort)
	}
	return nil
}

// DisplayName returns the farm name, or fallback when the name is unset.
func (p Profile) DisplayName(fallback string) string {
	if strings.TrimSpace(p.FarmName) == "" {
		return fallback
	}
	return p.FarmName
}

func (p Profile) Validate() error {
	if !p.Role.Valid() {
		return invalid("role", ErrUnknownValue)
	}
	if utf8.RuneCountInString(p.FarmName) > MaxNameLength {
		return invalid("farm_name", ErrNameTooLong)
	}
	return nil
}

func (h Herd) Validate() error {
	if err := validateName("name", h.Name); err != nil {
		return err
	}
	if !h.AnimalType.Valid() {
		return invalid("animal_type", ErrUnknownValue)
	}
	return nil
}

func (a Animal) Validate() error {
	if utf8.RuneCountInString(a.IdentificationNumber) > MaxNameLength {
		return invalid("identification_number", ErrNameTooLong)
	}
	if !a.Status.Valid() {
		return invalid("status", ErrUnknownValue)
	}
	if !a.SaleDate.IsZero() && !a.PurchaseDate.IsZero() && a.SaleDate.Before(a.PurchaseDate.Time) {
		return invalid("sale_date", ErrDateOrder)
	}
	return nil
}

func (r Revenue) Validate() error {
	if !r.Type.Valid() {
		return invalid("revenue_type", ErrUnknownValue)
	}
	if err := r.Amount.Validate(); err != nil {
		return invalid("amount", err)
	}
	if err := r.Date.Validate(); err != nil {
		return invalid("transaction_date", err)
	}
	if utf8.RuneCountInString(r.CustomerName) > MaxNameLength {
		return invalid("customer_name", ErrNameTooLong)
	}
	return validateDescription(r.Description)
}

func (e Expense) Validate() error {
	if !e.Category.Valid() {
		return invalid("category", ErrUnknownValue)
	}
	if err := e.Amount.Validate(); err != nil {
		return invalid("amount", err)
	}
	if err := e.Date.Validate(); err != nil {
		return invalid("transaction_date", err)
	}
	if utf8.RuneCountInString(e.VendorName) > MaxNameLength {
		return invalid("vendor_name", ErrNameTooLong)
	}
	return validateDescription(e.Description)
}

func (s Subsidy) Validate() error {
	if err := validateName("name", s.Name); err != nil {
		return err
	}
	if err := s.ExpectedAmount.Validate(); err != nil {
		return invalid("expected_amount", err)
	}
	if s.ActualAmount.Cents < 0 {
		return invalid("actual_amount", ErrInvalidAmount)
	}
	if !s.Status.Valid() {
		return invalid("status", ErrUnknownValue)
	}
	if s.DocumentURL != "" {
		u, err := url.Parse(s.DocumentURL)
		if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
			return invalid("document_url", ErrInvalidURL)
		}
	}
	return nil
}

// Upcoming reports whether the subsidy still awaits a decision or payment with a deadline on or after today.
func (s Subsidy) Upcoming(today Date) bool {
	if s.Status != SubsidyApplied && s.Status != SubsidyApproved {
		return false
	}
	return !s.ApplicationDeadline.IsZero() && !s.ApplicationDeadline.Before(today.Time)
}

func validateName(field, name string) error {
	if strings.TrimSpace(name) == "" {
		return invalid(field, ErrEmptyName)
	}
	if utf8.RuneCountInString(name) > MaxNameLength {
		return invalid(field, ErrNameTooLong)
	}
	return nil
}

func validateDescription(desc string) error {
	if utf8.RuneCountInString(desc) > MaxDescriptionLength {
		return invalid("description", ErrDescriptionLong)
	}
	return nil
}
