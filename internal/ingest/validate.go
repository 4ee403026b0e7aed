package ingest

import (
	"errors"
	"reflect"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"
	"golang.org/x/text/unicode/norm"
)

// Bounds of the NUMERIC(14,2) amount and NUMERIC(14,3) quantity columns.
var (
	maxAmount   = decimal.New(1, 12)
	maxQuantity = decimal.New(1, 11)
)

const (
	amountScale   = 2
	quantityScale = 3
)

// expenseFields lists the required expense fields in check order.
type expenseFields struct {
	Category      string `json:"category" validate:"required"`
	Amount        string `json:"amount" validate:"required,decimal"`
	PaymentTypeID string `json:"paymentTypeId" validate:"required"`
}

// cashFields is the required set for deposits and withdrawals.
type cashFields struct {
	Amount string `json:"amount" validate:"required,decimal"`
}

type optionalFields struct {
	Quantity string `json:"quantity" validate:"omitempty,decimal"`
}

// ValidationGate enforces the business field schema of a kind.
type ValidationGate struct {
	validate *validator.Validate
}

// NewValidationGate builds a gate whose failure reasons use wire field names.
func NewValidationGate() *ValidationGate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(field reflect.StructField) string {
		name, _, _ := strings.Cut(field.Tag.Get("json"), ",")
		if name == "" || name == "-" {
			return field.Name
		}
		return name
	})
	_ = v.RegisterValidation("decimal", func(fl validator.FieldLevel) bool {
		_, err := decimal.NewFromString(fl.Field().String())
		return err == nil
	})
	return &ValidationGate{validate: v}
}

// Check validates the business fields and returns them parsed. recordedAt
// is used as the business date when the submission carries none.
func (g *ValidationGate) Check(policy KindPolicy, sub Submission, recordedAt time.Time) (Fields, error) {
	amountText := numericText(sub.Amount)
	category := norm.NFC.String(strings.TrimSpace(sub.Category))
	paymentType := strings.TrimSpace(string(sub.PaymentTypeID))

	var required any = cashFields{Amount: amountText}
	if policy.RequireCategory || policy.RequirePaymentType {
		required = expenseFields{Category: category, Amount: amountText, PaymentTypeID: paymentType}
	}
	if err := g.run(required); err != nil {
		return Fields{}, err
	}

	quantityText := numericText(sub.Quantity)
	if err := g.run(optionalFields{Quantity: quantityText}); err != nil {
		return Fields{}, err
	}

	amount, err := decimal.NewFromString(amountText)
	if err != nil {
		return Fields{}, &ValidationError{Reason: "amount must be a valid number"}
	}
	if amount.Abs().GreaterThanOrEqual(maxAmount) {
		return Fields{}, &ValidationError{Reason: "amount is out of range"}
	}
	if !amount.Equal(amount.Truncate(amountScale)) {
		return Fields{}, &ValidationError{Reason: "amount must have at most 2 decimal places"}
	}
	if policy.PositiveAmount && !amount.IsPositive() {
		return Fields{}, &ValidationError{Reason: "amount must be greater than zero"}
	}

	fields := Fields{
		Category:      category,
		Description:   strings.TrimSpace(sub.Description),
		Amount:        amount,
		PaymentTypeID: optionalString(paymentType),
		ShiftID:       optionalString(strings.TrimSpace(string(sub.ShiftID))),
		ShiftGlobalID: strings.TrimSpace(sub.ShiftGlobalID),
		EmployeeID:    optionalString(strings.TrimSpace(string(sub.EmployeeID))),
		UserEmail:     cases.Lower(language.Und).String(strings.TrimSpace(sub.UserEmail)),
		RecordedAt:    recordedAt.UTC(),
	}
	if quantityText != "" {
		quantity, err := decimal.NewFromString(quantityText)
		if err != nil {
			return Fields{}, &ValidationError{Reason: "quantity must be a valid number"}
		}
		if quantity.IsNegative() {
			return Fields{}, &ValidationError{Reason: "quantity must not be negative"}
		}
		if quantity.GreaterThanOrEqual(maxQuantity) {
			return Fields{}, &ValidationError{Reason: "quantity is out of range"}
		}
		if !quantity.Equal(quantity.Truncate(quantityScale)) {
			return Fields{}, &ValidationError{Reason: "quantity must have at most 3 decimal places"}
		}
		fields.Quantity = &quantity
	}
	if businessDate := strings.TrimSpace(sub.ExpenseDateUTC); businessDate != "" {
		ts, err := ParseTimestamp(businessDate)
		if err != nil {
			return Fields{}, &ValidationError{Reason: "expenseDateUtc must be an ISO-8601 timestamp"}
		}
		fields.RecordedAt = ts
	}
	return fields, nil
}

// run validates s and converts the first field error into a ValidationError.
func (g *ValidationGate) run(s any) error {
	err := g.validate.Struct(s)
	if err == nil {
		return nil
	}
	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) || len(fieldErrs) == 0 {
		return &ValidationError{Reason: err.Error()}
	}
	first := fieldErrs[0]
	switch first.Tag() {
	case "required":
		return &ValidationError{Reason: first.Field() + " is required"}
	case "decimal":
		return &ValidationError{Reason: first.Field() + " must be a valid number"}
	default:
		return &ValidationError{Reason: first.Field() + " is invalid"}
	}
}

// numericText returns the text of a raw JSON number or numeric string.
// Absent and null values yield "". Anything else is returned as sent so the
// numeric check rejects it.
func numericText(raw []byte) string {
	if !rawPresent(raw) {
		return ""
	}
	text, err := rawText(raw)
	if err != nil {
		return string(raw)
	}
	return strings.TrimSpace(text)
}

func optionalString(v string) *string {
	if v == "" {
		return nil
	}
	return &v
}
