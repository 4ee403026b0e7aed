package cli

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	_ "github.com/odyssey-erp/possync/testing"
)

func TestValidateCommandJSONSuccess(t *testing.T) {
	input := `[
		{"tenantId":"t1","branchId":"b1","globalId":"g-1","terminalId":"pos-1","localOpSeq":3,"category":"Fuel","amount":"12.50","paymentTypeId":"cash"},
		{"tenant_id":"t1","branch_id":"b1","category":"Food","amount":7,"payment_type_id":"card"}
	]`
	stdout := new(bytes.Buffer)
	stderr := new(bytes.Buffer)
	exitCode := NewValidateCLI(nil).ValidateCommand(ValidateOptions{
		Kind:       "expenses",
		Input:      strings.NewReader(input),
		JSONOutput: true,
		Stdout:     stdout,
		Stderr:     stderr,
	})
	require.Zero(t, exitCode)
	require.Empty(t, stderr.String())

	var summary ValidateSummary
	require.NoError(t, json.Unmarshal(stdout.Bytes(), &summary))
	require.True(t, summary.OK)
	require.Len(t, summary.Results, 2)
	require.Equal(t, "offline_capable", summary.Results[0].Class)
	require.Equal(t, "g-1", summary.Results[0].GlobalID)
	require.Equal(t, "online_only", summary.Results[1].Class)
	require.True(t, strings.HasPrefix(summary.Results[1].GlobalID, "online:"))
	require.Equal(t, "mobile-app", summary.Results[1].TerminalID)
}

func TestValidateCommandReportsRejections(t *testing.T) {
	input := `{"tenantId":"t1","branchId":"b1","amount":"-5"}`
	stdout := new(bytes.Buffer)
	stderr := new(bytes.Buffer)
	exitCode := NewValidateCLI(nil).ValidateCommand(ValidateOptions{
		Kind:   "deposits",
		Input:  strings.NewReader(input),
		Stdout: stdout,
		Stderr: stderr,
	})
	require.Equal(t, 10, exitCode)
	require.Contains(t, stdout.String(), "rejected")
	require.Contains(t, stdout.String(), "amount must be greater than zero")
}

func TestValidateCommandUsageErrors(t *testing.T) {
	stderr := new(bytes.Buffer)
	exitCode := NewValidateCLI(nil).ValidateCommand(ValidateOptions{
		Kind:   "invoices",
		Input:  strings.NewReader(`{}`),
		Stdout: new(bytes.Buffer),
		Stderr: stderr,
	})
	require.Equal(t, 1, exitCode)
	require.Contains(t, stderr.String(), "unknown kind")

	stderr.Reset()
	exitCode = NewValidateCLI(nil).ValidateCommand(ValidateOptions{
		Kind:   "expenses",
		Input:  strings.NewReader(`[]`),
		Stdout: new(bytes.Buffer),
		Stderr: stderr,
	})
	require.Equal(t, 1, exitCode)
	require.Contains(t, stderr.String(), "decode input")
}
