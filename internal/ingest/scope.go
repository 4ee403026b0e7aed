package ingest

import "strings"

// ResolveScope validates the tenant/branch pair of a submission.
func ResolveScope(sub Submission) (Scope, error) {
	return scopeFrom(string(sub.TenantID), string(sub.BranchID))
}

func scopeFrom(tenantID, branchID string) (Scope, error) {
	tenant := strings.TrimSpace(tenantID)
	if tenant == "" {
		return Scope{}, &ScopeError{Field: "tenantId"}
	}
	branch := strings.TrimSpace(branchID)
	if branch == "" {
		return Scope{}, &ScopeError{Field: "branchId"}
	}
	return Scope{TenantID: tenant, BranchID: branch}, nil
}
