package ingest

import (
	"time"

	"github.com/shopspring/decimal"
)

// OnlineTerminalID is stored as terminalId for online-only clients that send none.
const OnlineTerminalID = "mobile-app"

// Scope is the validated tenant/branch pair every operation is namespaced by.
type Scope struct {
	TenantID string
	BranchID string
}

// ClientClass is the structural classification of a submission.
type ClientClass int

const (
	// OnlineOnly clients submit live and carry no durable identity.
	OnlineOnly ClientClass = iota
	// OfflineCapable terminals replay buffered operations with their own identity.
	OfflineCapable
)

func (c ClientClass) String() string {
	if c == OfflineCapable {
		return "offline_capable"
	}
	return "online_only"
}

// Identity is the resolved identity and ordering metadata of a record.
type Identity struct {
	GlobalID        string
	TerminalID      string
	LocalOpSeq      int64
	CreatedLocalUTC time.Time
	DeviceEventRaw  int64
}

// Fields are the validated business fields of a submission.
type Fields struct {
	Category      string
	Description   string
	Amount        decimal.Decimal
	Quantity      *decimal.Decimal
	PaymentTypeID *string
	ShiftID       *string
	ShiftGlobalID string
	EmployeeID    *string
	UserEmail     string
	RecordedAt    time.Time
}

// Draft is a fully resolved record ready for the insert-if-absent write.
type Draft struct {
	Kind              Kind
	Scope             Scope
	Class             ClientClass
	Identity          Identity
	Fields            Fields
	ReviewedByDesktop bool
}

// Record is the canonical stored representation.
type Record struct {
	ID                int64
	Kind              Kind
	TenantID          string
	BranchID          string
	GlobalID          string
	TerminalID        string
	LocalOpSeq        int64
	CreatedLocalUTC   time.Time
	DeviceEventRaw    int64
	CategoryID        *int64
	Category          string
	Description       string
	Amount            decimal.Decimal
	Quantity          *decimal.Decimal
	PaymentTypeID     *string
	ShiftID           *string
	EmployeeID        *string
	RecordedAt        time.Time
	ReviewedByDesktop bool
	ReviewedAt        *time.Time
	RejectedAt        *time.Time
	SyncedAt          time.Time
	CreatedAt         time.Time
}

// Outcome is the terminal state of one submission.
type Outcome string

const (
	OutcomePersisted    Outcome = "persisted"
	OutcomeDeduplicated Outcome = "deduplicated"
	OutcomeRejected     Outcome = "rejected"
	OutcomeFailed       Outcome = "failed"
)

// Result is returned for every accepted submission.
type Result struct {
	Record       Record
	Class        ClientClass
	Deduplicated bool
}
