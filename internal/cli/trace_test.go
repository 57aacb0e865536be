package cli

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/lzrecv/internal/ir"
	"github.com/roach88/lzrecv/internal/testutil"
)

func TestTrace_Deposit(t *testing.T) {
	db := depositDB(t)
	cmd := NewTraceCommand(&RootOptions{Format: "json", Database: db})
	out, err := execute(t, cmd, "", testutil.GUID(2).String())
	require.NoError(t, err)

	var result TraceResult
	decodeResponse(t, out, &result)
	assert.Equal(t, testutil.GUID(2), result.GUID)
	assert.Equal(t, 1, result.Stats.Requests)
	assert.True(t, result.Stats.Executed)
	assert.False(t, result.Stats.Failed)
	require.Len(t, result.Slots, 1)
	assert.Equal(t, uint64(2), result.Slots[0].Key.Nonce)
	require.Len(t, result.Deposits, 1)
	assert.Equal(t, uint64(2500), result.Deposits[0].Amount)
	assert.Len(t, result.Calls, 1)
	assert.Empty(t, result.Acks)
	assert.Empty(t, result.Failures)
}

func TestTrace_FailedMessage(t *testing.T) {
	db := depositDB(t)
	cmd := NewTraceCommand(&RootOptions{Format: "text", Database: db})
	out, err := execute(t, cmd, "", testutil.GUID(4).String())
	require.NoError(t, err)
	assert.Contains(t, out, "Message "+testutil.GUID(4).String())
	assert.Contains(t, out, "nonce 4 failed")
	assert.Contains(t, out, "Failure: INVALID_MESSAGE_TYPE at slot_consumed")
}

func TestTrace_RejectedRequestsListed(t *testing.T) {
	db := configuredDB(t)
	opts := &RootOptions{Format: "text", Database: db, Variant: "counter"}
	input := envelopeJSON(t, incrementEnvelope(1, 1))
	_, err := execute(t, executeCommand(opts), input)
	require.NoError(t, err)
	_, err = execute(t, executeCommand(opts), input)
	require.Error(t, err)

	out, err := execute(t, NewTraceCommand(&RootOptions{Format: "json", Database: db}), "", testutil.GUID(1).String())
	require.NoError(t, err)

	var result TraceResult
	decodeResponse(t, out, &result)
	assert.Equal(t, 2, result.Stats.Requests)
	assert.Len(t, result.Slots, 1)
	assert.Equal(t, ir.SlotConsumed, result.Slots[0].Status)
}

func TestTrace_NotFound(t *testing.T) {
	db := configuredDB(t)
	out, err := execute(t, NewTraceCommand(&RootOptions{Format: "json", Database: db}), "", testutil.GUID(9).String())
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))

	resp := decodeResponse(t, out, nil)
	require.NotNil(t, resp.Error)
	assert.Equal(t, "E_NOT_FOUND", resp.Error.Code)
}

func TestTrace_InvalidGUID(t *testing.T) {
	db := configuredDB(t)
	_, err := execute(t, NewTraceCommand(&RootOptions{Format: "text", Database: db}), "", "0xzz")
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
}
