package ingest

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
)

// FlexString accepts a JSON string or number and keeps its textual form.
// Terminals send tenant, branch and payment type ids as either.
type FlexString string

// UnmarshalJSON implements json.Unmarshaler.
func (f *FlexString) UnmarshalJSON(data []byte) error {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		*f = ""
		return nil
	}
	if trimmed[0] == '"' {
		var s string
		if err := json.Unmarshal(trimmed, &s); err != nil {
			return err
		}
		*f = FlexString(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(trimmed, &n); err != nil {
		return fmt.Errorf("expected string or number, got %s", trimmed)
	}
	*f = FlexString(n.String())
	return nil
}

// Submission is the wire body of one sync request. Numeric fields stay raw so
// that absence, null and malformed values are told apart by the pipeline
// instead of failing the whole decode.
type Submission struct {
	TenantID          FlexString      `json:"tenantId"`
	BranchID          FlexString      `json:"branchId"`
	EmployeeID        FlexString      `json:"employeeId"`
	UserEmail         string          `json:"userEmail"`
	Category          string          `json:"category"`
	Description       string          `json:"description"`
	Amount            json.RawMessage `json:"amount"`
	Quantity          json.RawMessage `json:"quantity"`
	PaymentTypeID     FlexString      `json:"paymentTypeId"`
	ExpenseDateUTC    string          `json:"expenseDateUtc"`
	ShiftID           FlexString      `json:"shiftId"`
	ShiftGlobalID     string          `json:"shiftGlobalId"`
	ReviewedByDesktop *bool           `json:"reviewedByDesktop"`

	GlobalID        FlexString      `json:"globalId"`
	TerminalID      FlexString      `json:"terminalId"`
	LocalOpSeq      json.RawMessage `json:"localOpSeq"`
	CreatedLocalUTC string          `json:"createdLocalUtc"`
	DeviceEventRaw  json.RawMessage `json:"deviceEventRaw"`

	// decodeErr is set on a batch item whose JSON could not be decoded.
	decodeErr error
}

// snakeSubmission carries the field names desktop terminals have always sent.
type snakeSubmission struct {
	TenantID          FlexString      `json:"tenant_id"`
	BranchID          FlexString      `json:"branch_id"`
	EmployeeID        FlexString      `json:"employee_id"`
	UserEmail         string          `json:"user_email"`
	PaymentTypeID     FlexString      `json:"payment_type_id"`
	ExpenseDateUTC    string          `json:"expense_date_utc"`
	ShiftID           FlexString      `json:"shift_id"`
	IDTurno           FlexString      `json:"id_turno"`
	ShiftGlobalID     string          `json:"shift_global_id"`
	ReviewedByDesktop *bool           `json:"reviewed_by_desktop"`
	GlobalID          FlexString      `json:"global_id"`
	TerminalID        FlexString      `json:"terminal_id"`
	LocalOpSeq        json.RawMessage `json:"local_op_seq"`
	CreatedLocalUTC   string          `json:"created_local_utc"`
	DeviceEventRaw    json.RawMessage `json:"device_event_raw"`
}

// UnmarshalJSON decodes camelCase fields and fills the gaps from snake_case ones.
func (s *Submission) UnmarshalJSON(data []byte) error {
	type plain Submission
	if err := json.Unmarshal(data, (*plain)(s)); err != nil {
		return err
	}
	var alt snakeSubmission
	if err := json.Unmarshal(data, &alt); err != nil {
		return err
	}
	fillFlex(&s.TenantID, alt.TenantID)
	fillFlex(&s.BranchID, alt.BranchID)
	fillFlex(&s.EmployeeID, alt.EmployeeID)
	fillString(&s.UserEmail, alt.UserEmail)
	fillFlex(&s.PaymentTypeID, alt.PaymentTypeID)
	fillString(&s.ExpenseDateUTC, alt.ExpenseDateUTC)
	fillFlex(&s.ShiftID, alt.ShiftID)
	fillFlex(&s.ShiftID, alt.IDTurno)
	fillString(&s.ShiftGlobalID, alt.ShiftGlobalID)
	if s.ReviewedByDesktop == nil {
		s.ReviewedByDesktop = alt.ReviewedByDesktop
	}
	fillFlex(&s.GlobalID, alt.GlobalID)
	fillFlex(&s.TerminalID, alt.TerminalID)
	fillRaw(&s.LocalOpSeq, alt.LocalOpSeq)
	fillString(&s.CreatedLocalUTC, alt.CreatedLocalUTC)
	fillRaw(&s.DeviceEventRaw, alt.DeviceEventRaw)
	return nil
}

func fillFlex(dst *FlexString, alt FlexString) {
	if *dst == "" {
		*dst = alt
	}
}

func fillString(dst *string, alt string) {
	if *dst == "" {
		*dst = alt
	}
}

func fillRaw(dst *json.RawMessage, alt json.RawMessage) {
	if !rawPresent(*dst) {
		*dst = alt
	}
}

// rawPresent reports whether a raw JSON value was sent and is not null.
func rawPresent(raw json.RawMessage) bool {
	trimmed := bytes.TrimSpace(raw)
	return len(trimmed) > 0 && !bytes.Equal(trimmed, []byte("null"))
}

// rawText returns the textual content of a raw number or quoted number.
func rawText(raw json.RawMessage) (string, error) {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) > 0 && trimmed[0] == '"' {
		var s string
		if err := json.Unmarshal(trimmed, &s); err != nil {
			return "", err
		}
		return s, nil
	}
	return string(trimmed), nil
}

// ErrEmptyBatch is returned when a batch body holds no submissions.
var ErrEmptyBatch = errors.New("batch must contain at least one record")

// DecodeSubmissions parses a body holding one submission or an array of them.
// An undecodable batch item does not fail the batch: it is returned with an
// error that Service.Prepare reports as a ValidationError for that item.
func DecodeSubmissions(body []byte) ([]Submission, bool, error) {
	trimmed := bytes.TrimSpace(body)
	if len(trimmed) == 0 {
		return nil, false, errors.New("request body is empty")
	}
	if trimmed[0] == '[' {
		var raws []json.RawMessage
		if err := json.Unmarshal(trimmed, &raws); err != nil {
			return nil, true, err
		}
		if len(raws) == 0 {
			return nil, true, ErrEmptyBatch
		}
		batch := make([]Submission, len(raws))
		for i, raw := range raws {
			if err := json.Unmarshal(raw, &batch[i]); err != nil {
				batch[i].decodeErr = malformedItem(err)
			}
		}
		return batch, true, nil
	}
	var single Submission
	if err := json.Unmarshal(trimmed, &single); err != nil {
		return nil, false, err
	}
	return []Submission{single}, false, nil
}

func malformedItem(err error) error {
	var typeErr *json.UnmarshalTypeError
	if errors.As(err, &typeErr) && typeErr.Field != "" {
		return &ValidationError{Reason: typeErr.Field + " has an invalid type"}
	}
	return &ValidationError{Reason: "record is not a valid JSON object"}
}
