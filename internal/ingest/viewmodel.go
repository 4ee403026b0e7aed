package ingest

import (
	"encoding/json"
	"time"
)

// RecordView is the JSON shape of a stored record.
type RecordView struct {
	ID                int64        `json:"id"`
	Kind              Kind         `json:"kind"`
	TenantID          string       `json:"tenantId"`
	BranchID          string       `json:"branchId"`
	GlobalID          string       `json:"globalId"`
	TerminalID        string       `json:"terminalId"`
	LocalOpSeq        int64        `json:"localOpSeq"`
	CreatedLocalUTC   time.Time    `json:"createdLocalUtc"`
	DeviceEventRaw    int64        `json:"deviceEventRaw"`
	CategoryID        *int64       `json:"categoryId"`
	Category          string       `json:"category,omitempty"`
	Description       string       `json:"description"`
	Amount            json.Number  `json:"amount"`
	Quantity          *json.Number `json:"quantity"`
	PaymentTypeID     *string      `json:"paymentTypeId"`
	ShiftID           *string      `json:"shiftId"`
	EmployeeID        *string      `json:"employeeId"`
	ExpenseDateUTC    time.Time    `json:"expenseDateUtc"`
	ReviewedByDesktop bool         `json:"reviewedByDesktop"`
	ReviewedAt        *time.Time   `json:"reviewedAt"`
	RejectedAt        *time.Time   `json:"rejectedAt"`
	SyncedAt          time.Time    `json:"syncedAt"`
	CreatedAt         time.Time    `json:"createdAt"`
}

// FromRecord maps a stored record to its JSON view. Money is emitted as a
// JSON number without going through float64.
func FromRecord(rec Record) RecordView {
	view := RecordView{
		ID:                rec.ID,
		Kind:              rec.Kind,
		TenantID:          rec.TenantID,
		BranchID:          rec.BranchID,
		GlobalID:          rec.GlobalID,
		TerminalID:        rec.TerminalID,
		LocalOpSeq:        rec.LocalOpSeq,
		CreatedLocalUTC:   rec.CreatedLocalUTC,
		DeviceEventRaw:    rec.DeviceEventRaw,
		CategoryID:        rec.CategoryID,
		Category:          rec.Category,
		Description:       rec.Description,
		Amount:            json.Number(rec.Amount.String()),
		PaymentTypeID:     rec.PaymentTypeID,
		ShiftID:           rec.ShiftID,
		EmployeeID:        rec.EmployeeID,
		ExpenseDateUTC:    rec.RecordedAt,
		ReviewedByDesktop: rec.ReviewedByDesktop,
		ReviewedAt:        rec.ReviewedAt,
		RejectedAt:        rec.RejectedAt,
		SyncedAt:          rec.SyncedAt,
		CreatedAt:         rec.CreatedAt,
	}
	if rec.Quantity != nil {
		q := json.Number(rec.Quantity.String())
		view.Quantity = &q
	}
	return view
}

// FromRecords maps a slice of records.
func FromRecords(recs []Record) []RecordView {
	views := make([]RecordView, 0, len(recs))
	for _, rec := range recs {
		views = append(views, FromRecord(rec))
	}
	return views
}
