package engine

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/lzrecv/internal/codec"
	"github.com/roach88/lzrecv/internal/ir"
	"github.com/roach88/lzrecv/internal/testutil"
)

func TestRun_ExecutesInOrderAndDrainsOnStop(t *testing.T) {
	eng, s := newTestEngine(t, codec.VariantCounter, WithAcknowledgements(true))
	ctx := context.Background()

	var replies []<-chan Result
	for n := uint64(1); n <= 5; n++ {
		reply, ok := eng.Enqueue(request(t, codec.VariantCounter, testutil.Envelope(n, increment(n))))
		require.True(t, ok)
		replies = append(replies, reply)
	}
	eng.Stop()

	_, ok := eng.Enqueue(request(t, codec.VariantCounter, testutil.Envelope(6, increment(1))))
	assert.False(t, ok, "enqueue after Stop must be refused")

	require.NoError(t, eng.Run(ctx))

	var counter uint64
	for i, reply := range replies {
		res := <-reply
		require.NoError(t, res.Err, "request %d", i)
		assert.Equal(t, int64(i+1), res.Ticket, "tickets follow enqueue order")
		counter += uint64(i + 1)
		require.NotNil(t, res.Receipt.AppState)
		assert.Equal(t, counter, res.Receipt.AppState.Counter, "request %d", i)
	}

	assert.Equal(t, uint64(15), mustAppState(t, s).Counter)

	out, err := s.OutboundMessages(ctx)
	require.NoError(t, err)
	require.Len(t, out, 5)
	assert.Equal(t, ir.HexBytes(codec.EncodeAck(15)), out[4].Message)
}

func TestRun_DeliversFailures(t *testing.T) {
	eng, _ := newTestEngine(t, codec.VariantCounter)

	req := request(t, codec.VariantCounter, testutil.Envelope(1, increment(1)))
	first, ok := eng.Enqueue(req)
	require.True(t, ok)
	second, ok := eng.Enqueue(req)
	require.True(t, ok)
	eng.Stop()

	require.NoError(t, eng.Run(context.Background()))

	assert.NoError(t, (<-first).Err)
	res := <-second
	assert.ErrorIs(t, res.Err, ir.ErrSlotConsumed)
	assert.Equal(t, StatusRejected, res.Receipt.Status)
}

func TestRun_ContextCancel(t *testing.T) {
	eng, _ := newTestEngine(t, codec.VariantCounter)
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan error, 1)
	go func() { done <- eng.Run(ctx) }()

	reply, ok := eng.Enqueue(request(t, codec.VariantCounter, testutil.Envelope(1, increment(1))))
	require.True(t, ok)
	select {
	case res := <-reply:
		require.NoError(t, res.Err)
	case <-time.After(5 * time.Second):
		t.Fatal("request was not executed")
	}

	cancel()
	select {
	case err := <-done:
		assert.True(t, errors.Is(err, context.Canceled))
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not return after cancel")
	}

	_, ok = eng.Enqueue(request(t, codec.VariantCounter, testutil.Envelope(2, increment(1))))
	assert.False(t, ok)
}

func TestEngine_State(t *testing.T) {
	eng, _ := newTestEngine(t, codec.VariantDeposit)
	ctx := context.Background()

	_, err := eng.Execute(ctx, request(t, codec.VariantDeposit, testutil.Envelope(1, deposit(9))))
	require.NoError(t, err)

	snap, err := eng.State(ctx)
	require.NoError(t, err)
	require.Len(t, snap.Ledger, 1)
	assert.Equal(t, uint64(9), snap.Ledger[0].TotalDeposited)
	assert.Len(t, snap.Slots, 1)
	assert.Len(t, snap.DepositEvents, 1)
	assert.Len(t, snap.ExternalCalls, 1)
	assert.Equal(t, codec.VariantDeposit, eng.Variant())
}
