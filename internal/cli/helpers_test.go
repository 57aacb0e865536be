package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"path/filepath"
	"strings"
	"testing"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/require"

	"github.com/roach88/lzrecv/internal/codec"
	"github.com/roach88/lzrecv/internal/ir"
	"github.com/roach88/lzrecv/internal/store"
	"github.com/roach88/lzrecv/internal/testutil"
)

// configuredDB returns the path of a database holding the fixture
// configuration and peer.
func configuredDB(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "lzrecv.db")
	st, err := store.Open(path)
	if err != nil {
		t.Fatalf("Open() failed: %v", err)
	}
	defer st.Close()

	ctx := context.Background()
	require.NoError(t, st.PutConfig(ctx, testutil.Config()))
	require.NoError(t, st.PutPeer(ctx, testutil.Peer()))
	return path
}

func openDB(t *testing.T, path string) *store.Store {
	t.Helper()
	st, err := store.Open(path)
	if err != nil {
		t.Fatalf("Open() failed: %v", err)
	}
	t.Cleanup(func() { st.Close() })
	return st
}

// execute runs cmd with args and stdin, returning stdout.
func execute(t *testing.T, cmd *cobra.Command, stdin string, args ...string) (string, error) {
	t.Helper()
	out := &bytes.Buffer{}
	cmd.SetOut(out)
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetIn(strings.NewReader(stdin))
	cmd.SetArgs(args)
	err := cmd.ExecuteContext(context.Background())
	return out.String(), err
}

func envelopeJSON(t *testing.T, env ir.Envelope) string {
	t.Helper()
	data, err := json.Marshal(env)
	require.NoError(t, err)
	return string(data)
}

func incrementEnvelope(nonce, by uint64) ir.Envelope {
	return testutil.Envelope(nonce, codec.EncodeCounter(codec.OpIncrement, by))
}

func depositEnvelope(nonce, amount uint64) ir.Envelope {
	return testutil.Envelope(nonce, codec.EncodeDeposit(codec.Deposit{Amount: amount}))
}

// decodeResponse decodes a JSON CLI response, decoding Data into data.
func decodeResponse(t *testing.T, out string, data interface{}) CLIResponse {
	t.Helper()
	var raw struct {
		CLIResponse
		Data json.RawMessage `json:"data"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &raw), "output: %s", out)
	if data != nil {
		require.NoError(t, json.Unmarshal(raw.Data, data))
	}
	return raw.CLIResponse
}
