package engine

import (
	"context"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/lzrecv/internal/codec"
	"github.com/roach88/lzrecv/internal/endpoint"
	"github.com/roach88/lzrecv/internal/ir"
	"github.com/roach88/lzrecv/internal/testutil"
)

func TestVerifyReplay_Deposits(t *testing.T) {
	eng, s := newTestEngine(t, codec.VariantDeposit)
	ctx := context.Background()

	addr := testutil.EVMAddress(0x07)
	bodies := [][]byte{
		deposit(100),
		deposit(250),
		codec.EncodeDeposit(codec.Deposit{Amount: 5, Address: &addr}),
		{1, 2, 3},
	}
	for i, body := range bodies {
		_, _ = eng.Execute(ctx, request(t, codec.VariantDeposit, testutil.Envelope(uint64(i+1), body)))
	}
	// Redelivery and a stranger.
	_, _ = eng.Execute(ctx, request(t, codec.VariantDeposit, testutil.Envelope(1, deposit(100))))
	stranger := testutil.Envelope(9, deposit(1))
	stranger.Sender = testutil.PaddedSender(testutil.EVMAddress(0x01))
	_, _ = eng.Execute(ctx, request(t, codec.VariantDeposit, stranger))

	report, err := VerifyReplay(ctx, s, codec.VariantDeposit)
	require.NoError(t, err)
	assert.True(t, report.Match, "source %s replay %s", report.SourceDigest, report.ReplayDigest)
	assert.Equal(t, 6, report.Entries)
	assert.Equal(t, 3, report.Completed)
	assert.Equal(t, 1, report.Failed)
	assert.Equal(t, 2, report.Rejected)
}

func TestVerifyReplay_CounterWithAcks(t *testing.T) {
	eng, s := newTestEngine(t, codec.VariantCounter, WithAcknowledgements(true))
	ctx := context.Background()

	env := testutil.Envelope(2, increment(3))
	ep := endpoint.New(testutil.Config().EndpointProgram)
	require.NoError(t, ep.Verify(ctx, s, env.Slot(testutil.Config().Store), endpoint.PayloadHash(env.GUID, env.Message)))

	_, _ = eng.Execute(ctx, request(t, codec.VariantCounter, testutil.Envelope(1, increment(math.MaxUint64))))
	_, _ = eng.Execute(ctx, request(t, codec.VariantCounter, env))
	text, err := codec.EncodeText("hello")
	require.NoError(t, err)
	_, _ = eng.Execute(ctx, request(t, codec.VariantCounter, testutil.Envelope(3, text)))

	report, err := VerifyReplay(ctx, s, codec.VariantCounter, WithAcknowledgements(true))
	require.NoError(t, err)
	assert.True(t, report.Match)
	assert.Equal(t, 2, report.Completed)
	assert.Equal(t, 1, report.Failed)

	// Without acknowledgements the replica diverges.
	report, err = VerifyReplay(ctx, s, codec.VariantCounter)
	require.NoError(t, err)
	assert.False(t, report.Match)
}

func TestVerifyReplay_EmptyStore(t *testing.T) {
	s := newTestStore(t)
	report, err := VerifyReplay(context.Background(), s, codec.VariantCounter)
	require.NoError(t, err)
	assert.True(t, report.Match)
	assert.Zero(t, report.Entries)
}

func TestVerifyReplay_UnconfiguredStore(t *testing.T) {
	eng, s := newTestEngine(t, codec.VariantCounter)
	ctx := context.Background()
	_, err := s.DB().Exec(`DELETE FROM config`)
	require.NoError(t, err)

	_, err = eng.Execute(ctx, request(t, codec.VariantCounter, testutil.Envelope(1, increment(1))))
	require.ErrorIs(t, err, ir.ErrNotConfigured)

	report, err := VerifyReplay(ctx, s, codec.VariantCounter)
	require.NoError(t, err)
	assert.True(t, report.Match)
	assert.Equal(t, 1, report.Rejected)
}
