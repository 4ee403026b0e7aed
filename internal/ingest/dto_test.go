package ingest

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSubmissionSnakeCaseAliases(t *testing.T) {
	sub := mustSubmission(t, `{
		"tenant_id": 5, "branch_id": "B1",
		"global_id": "g1", "terminal_id": "t1", "local_op_seq": 9,
		"created_local_utc": "2024-01-01T00:00:00Z", "device_event_raw": 123,
		"payment_type_id": 2, "expense_date_utc": "2024-01-01T00:00:00Z",
		"shift_global_id": "shift-9", "reviewed_by_desktop": true, "user_email": "a@b.c"
	}`)
	assert.Equal(t, FlexString("5"), sub.TenantID)
	assert.Equal(t, FlexString("B1"), sub.BranchID)
	assert.Equal(t, FlexString("g1"), sub.GlobalID)
	assert.Equal(t, FlexString("t1"), sub.TerminalID)
	assert.JSONEq(t, `9`, string(sub.LocalOpSeq))
	assert.Equal(t, "2024-01-01T00:00:00Z", sub.CreatedLocalUTC)
	assert.JSONEq(t, `123`, string(sub.DeviceEventRaw))
	assert.Equal(t, FlexString("2"), sub.PaymentTypeID)
	assert.Equal(t, "shift-9", sub.ShiftGlobalID)
	require.NotNil(t, sub.ReviewedByDesktop)
	assert.True(t, *sub.ReviewedByDesktop)
	assert.Equal(t, "a@b.c", sub.UserEmail)
}

func TestSubmissionCamelCaseWins(t *testing.T) {
	sub := mustSubmission(t, `{"globalId":"camel","global_id":"snake","localOpSeq":1,"local_op_seq":2,"reviewedByDesktop":false,"reviewed_by_desktop":true}`)
	assert.Equal(t, FlexString("camel"), sub.GlobalID)
	assert.JSONEq(t, `1`, string(sub.LocalOpSeq))
	require.NotNil(t, sub.ReviewedByDesktop)
	assert.False(t, *sub.ReviewedByDesktop)
}

func TestSubmissionShiftAliases(t *testing.T) {
	assert.Equal(t, FlexString("4"), mustSubmission(t, `{"id_turno":4}`).ShiftID)
	assert.Equal(t, FlexString("5"), mustSubmission(t, `{"shift_id":"5","id_turno":4}`).ShiftID)
}

func TestFlexStringRejectsObjects(t *testing.T) {
	var f FlexString
	assert.Error(t, f.UnmarshalJSON([]byte(`{"a":1}`)))
	assert.NoError(t, f.UnmarshalJSON([]byte(`null`)))
	assert.Equal(t, FlexString(""), f)
}

func TestDecodeSubmissions(t *testing.T) {
	subs, batch, err := DecodeSubmissions([]byte(`{"tenantId":"T1"}`))
	require.NoError(t, err)
	assert.False(t, batch)
	assert.Len(t, subs, 1)

	subs, batch, err = DecodeSubmissions([]byte(` [{"tenantId":"T1"},{"tenantId":"T2"}]`))
	require.NoError(t, err)
	assert.True(t, batch)
	assert.Len(t, subs, 2)

	subs, batch, err = DecodeSubmissions([]byte(`[{"tenantId":"T1","globalId":"g1","reviewedByDesktop":"yes"},7,{"tenantId":"T2"}]`))
	require.NoError(t, err)
	assert.True(t, batch)
	require.Len(t, subs, 3)
	assert.EqualError(t, subs[0].decodeErr, "reviewedByDesktop has an invalid type")
	assert.Equal(t, FlexString("g1"), subs[0].GlobalID)
	assert.EqualError(t, subs[1].decodeErr, "record is not a valid JSON object")
	assert.NoError(t, subs[2].decodeErr)

	_, batch, err = DecodeSubmissions([]byte(`[]`))
	assert.True(t, batch)
	assert.ErrorIs(t, err, ErrEmptyBatch)

	_, _, err = DecodeSubmissions([]byte(`{"tenantId":`))
	assert.Error(t, err)

	_, _, err = DecodeSubmissions(nil)
	assert.Error(t, err)
}
