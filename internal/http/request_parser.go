package http

import (
	"net/http"
	"net/url"
	"strings"

	"farmledger/internal/core"
)

// formValue returns the trimmed field with control characters removed.
func formValue(form url.Values, key string) string {
	return sanitizeInput(form.Get(key))
}

// sanitizeInput removes control characters except tab, newline and carriage return.
func sanitizeInput(s string) string {
	s = strings.TrimSpace(s)
	return strings.Map(func(r rune) rune {
		if r < 32 && r != '\t' && r != '\n' && r != '\r' {
			return -1
		}
		return r
	}, s)
}

func parseAmount(form url.Values, key string) (core.Money, error) {
	m, err := core.ParseMoney(formValue(form, key))
	if err != nil {
		return core.Money{}, &core.ValidationError{Field: key, Err: err}
	}
	return m, nil
}

// parseOptionalAmount treats a blank field as zero.
func parseOptionalAmount(form url.Values, key string) (core.Money, error) {
	if formValue(form, key) == "" {
		return core.Money{}, nil
	}
	return parseAmount(form, key)
}

func parseDateField(form url.Values, key string) (core.Date, error) {
	d, err := core.ParseDate(formValue(form, key))
	if err != nil {
		return core.Date{}, &core.ValidationError{Field: key, Err: err}
	}
	return d, nil
}

func parseOptionalDateField(form url.Values, key string) (core.Date, error) {
	d, err := core.ParseOptionalDate(formValue(form, key))
	if err != nil {
		return core.Date{}, &core.ValidationError{Field: key, Err: err}
	}
	return d, nil
}

func parseRevenue(form url.Values) (core.Revenue, error) {
	amount, err := parseAmount(form, "amount")
	if err != nil {
		return core.Revenue{}, err
	}
	date, err := parseDateField(form, "transaction_date")
	if err != nil {
		return core.Revenue{}, err
	}
	return core.Revenue{
		Type:         core.RevenueType(formValue(form, "revenue_type")),
		Amount:       amount,
		Date:         date,
		CustomerName: formValue(form, "customer_name"),
		HerdID:       formValue(form, "herd_id"),
		AnimalID:     formValue(form, "animal_id"),
		Description:  formValue(form, "description"),
	}, nil
}

func revenueValues(rv core.Revenue) url.Values {
	return url.Values{
		"revenue_type":     {string(rv.Type)},
		"amount":           {rv.Amount.Decimal()},
		"transaction_date": {rv.Date.String()},
		"customer_name":    {rv.CustomerName},
		"herd_id":          {rv.HerdID},
		"animal_id":        {rv.AnimalID},
		"description":      {rv.Description},
	}
}

func parseExpense(form url.Values) (core.Expense, error) {
	amount, err := parseAmount(form, "amount")
	if err != nil {
		return core.Expense{}, err
	}
	date, err := parseDateField(form, "transaction_date")
	if err != nil {
		return core.Expense{}, err
	}
	return core.Expense{
		Category:    core.ExpenseCategory(formValue(form, "category")),
		Amount:      amount,
		Date:        date,
		VendorName:  formValue(form, "vendor_name"),
		HerdID:      formValue(form, "herd_id"),
		AnimalID:    formValue(form, "animal_id"),
		Description: formValue(form, "description"),
	}, nil
}

func expenseValues(e core.Expense) url.Values {
	return url.Values{
		"category":         {string(e.Category)},
		"amount":           {e.Amount.Decimal()},
		"transaction_date": {e.Date.String()},
		"vendor_name":      {e.VendorName},
		"herd_id":          {e.HerdID},
		"animal_id":        {e.AnimalID},
		"description":      {e.Description},
	}
}

func parseSubsidy(form url.Values) (core.Subsidy, error) {
	expected, err := parseAmount(form, "expected_amount")
	if err != nil {
		return core.Subsidy{}, err
	}
	actual, err := parseOptionalAmount(form, "actual_amount")
	if err != nil {
		return core.Subsidy{}, err
	}
	deadline, err := parseOptionalDateField(form, "application_deadline")
	if err != nil {
		return core.Subsidy{}, err
	}
	paid, err := parseOptionalDateField(form, "payment_date")
	if err != nil {
		return core.Subsidy{}, err
	}
	return core.Subsidy{
		Name:                formValue(form, "name"),
		ExpectedAmount:      expected,
		ActualAmount:        actual,
		ApplicationDeadline: deadline,
		PaymentDate:         paid,
		Status:              core.SubsidyStatus(formValue(form, "status")),
		DocumentURL:         formValue(form, "document_url"),
	}, nil
}

func subsidyValues(s core.Subsidy) url.Values {
	actual := ""
	if !s.ActualAmount.IsZero() {
		actual = s.ActualAmount.Decimal()
	}
	return url.Values{
		"name":                 {s.Name},
		"expected_amount":      {s.ExpectedAmount.Decimal()},
		"actual_amount":        {actual},
		"application_deadline": {s.ApplicationDeadline.String()},
		"payment_date":         {s.PaymentDate.String()},
		"status":               {string(s.Status)},
		"document_url":         {s.DocumentURL},
	}
}

func parseHerd(form url.Values) core.Herd {
	return core.Herd{
		Name:       formValue(form, "name"),
		AnimalType: core.AnimalType(formValue(form, "animal_type")),
	}
}

func herdValues(h core.Herd) url.Values {
	return url.Values{"name": {h.Name}, "animal_type": {string(h.AnimalType)}}
}

func parseAnimal(form url.Values) (core.Animal, error) {
	a := core.Animal{
		IdentificationNumber: formValue(form, "identification_number"),
		Status:               core.AnimalStatus(formValue(form, "status")),
	}
	var err error
	if a.BirthDate, err = parseOptionalDateField(form, "birth_date"); err != nil {
		return core.Animal{}, err
	}
	if a.PurchaseDate, err = parseOptionalDateField(form, "purchase_date"); err != nil {
		return core.Animal{}, err
	}
	if a.SaleDate, err = parseOptionalDateField(form, "sale_date"); err != nil {
		return core.Animal{}, err
	}
	return a, nil
}

// ParseFormOrFail parses the request form and returns an error response on failure.
func ParseFormOrFail(r *http.Request) *HTMXResponseBuilder {
	if err := r.ParseForm(); err != nil {
		return ErrorResponse(http.StatusBadRequest, "Malformed request")
	}
	return nil
}
