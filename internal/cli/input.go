package cli

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/roach88/lzrecv/internal/codec"
	"github.com/roach88/lzrecv/internal/engine"
	"github.com/roach88/lzrecv/internal/ir"
	"github.com/roach88/lzrecv/internal/resolver"
)

// readInput reads path, or stdin when path is "-" or empty.
func readInput(path string, stdin io.Reader) ([]byte, error) {
	if path == "" || path == "-" {
		return io.ReadAll(stdin)
	}
	return os.ReadFile(path)
}

// decodeRequest accepts either a request object with an "envelope" key
// or a bare envelope.
func decodeRequest(data []byte) (engine.Request, error) {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(data, &fields); err != nil {
		return engine.Request{}, fmt.Errorf("invalid request JSON: %w", err)
	}

	dec := json.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()

	var req engine.Request
	if _, ok := fields["envelope"]; ok {
		if err := dec.Decode(&req); err != nil {
			return engine.Request{}, fmt.Errorf("invalid request: %w", err)
		}
		return req, nil
	}
	if err := dec.Decode(&req.Envelope); err != nil {
		return engine.Request{}, fmt.Errorf("invalid envelope: %w", err)
	}
	return req, nil
}

// completeRequest fills in the resource list from the resolver when the
// request carries none.
func completeRequest(cfg ir.Config, variant codec.Variant, req engine.Request) (engine.Request, error) {
	if len(req.Resources) > 0 {
		return req, nil
	}
	resources, err := resolver.Resolve(cfg, variant, req.Envelope)
	if err != nil {
		return req, err
	}
	req.Resources = resources
	return req, nil
}
