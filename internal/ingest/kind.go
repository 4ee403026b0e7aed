package ingest

import "strings"

// Kind names a synchronisable entity. Each kind has its own endpoint and table.
type Kind string

const (
	KindExpenses    Kind = "expenses"
	KindDeposits    Kind = "deposits"
	KindWithdrawals Kind = "withdrawals"
)

// KindPolicy holds the per-kind field requirements applied by the ValidationGate.
type KindPolicy struct {
	Kind               Kind
	RequireCategory    bool
	RequirePaymentType bool
	PositiveAmount     bool
}

var kindPolicies = map[Kind]KindPolicy{
	KindExpenses:    {Kind: KindExpenses, RequireCategory: true, RequirePaymentType: true},
	KindDeposits:    {Kind: KindDeposits, PositiveAmount: true},
	KindWithdrawals: {Kind: KindWithdrawals, PositiveAmount: true},
}

// Kinds lists every registered kind in a stable order.
func Kinds() []Kind {
	return []Kind{KindExpenses, KindDeposits, KindWithdrawals}
}

// PolicyFor looks up the policy for a kind name as it appears in a URL.
func PolicyFor(name string) (KindPolicy, bool) {
	p, ok := kindPolicies[Kind(strings.ToLower(strings.TrimSpace(name)))]
	return p, ok
}
