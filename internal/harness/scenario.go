package harness

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"github.com/roach88/lzrecv/internal/codec"
	"github.com/roach88/lzrecv/internal/ir"
)

// Scenario defines a conformance test scenario.
type Scenario struct {
	// Name uniquely identifies this scenario. It also names the golden file.
	Name string `yaml:"name"`

	// Description explains what this scenario validates.
	Description string `yaml:"description"`

	// Variant is the message variant the engine executes: counter or
	// deposit. Required unless Deployment declares one.
	Variant string `yaml:"variant,omitempty"`

	// Acknowledgements makes increments compose an ACK.
	Acknowledgements bool `yaml:"acknowledgements,omitempty"`

	// Deployment is a CUE deployment file, relative to the scenario file.
	// The fixture deployment is used when empty.
	Deployment string `yaml:"deployment,omitempty"`

	// Setup establishes state before the flow.
	Setup Setup `yaml:"setup,omitempty"`

	// Flow is the sequence of inbound messages.
	Flow []FlowStep `yaml:"flow"`

	// Assertions validate the final trace and state.
	Assertions []Assertion `yaml:"assertions"`

	// ExecutionID is the fixed execution id stamped on every receipt.
	// Defaults to "test-exec-default".
	ExecutionID string `yaml:"execution_id,omitempty"`
}

// Setup is state written before the flow runs.
type Setup struct {
	Peers    []PeerSetup     `yaml:"peers,omitempty"`
	AppState *AppStateSetup  `yaml:"app_state,omitempty"`
	Ledger   []LedgerSetup   `yaml:"ledger,omitempty"`
	Verified []VerifiedSetup `yaml:"verified,omitempty"`
}

// PeerSetup adds or replaces a trusted peer.
type PeerSetup struct {
	SrcEID  uint32 `yaml:"src_eid"`
	Address string `yaml:"address"`
}

// AppStateSetup seeds the counter variant's fields.
type AppStateSetup struct {
	Text    string `yaml:"text"`
	Counter uint64 `yaml:"counter"`
}

// LedgerSetup seeds one ledger record.
type LedgerSetup struct {
	Sender         string `yaml:"sender"`
	TotalDeposited uint64 `yaml:"total_deposited"`
	DepositCount   uint32 `yaml:"deposit_count"`
}

// VerifiedSetup records the payload hash of message as verified for the
// fixture peer's slot at nonce.
type VerifiedSetup struct {
	Nonce   uint64      `yaml:"nonce"`
	Message MessageSpec `yaml:"message"`
}

// FlowStep is one inbound message.
type FlowStep struct {
	Nonce uint64 `yaml:"nonce"`

	// SrcEID defaults to the fixture source chain.
	SrcEID uint32 `yaml:"src_eid,omitempty"`

	// Sender is a 20-byte or 32-byte hex address. Defaults to the fixture
	// peer.
	Sender string `yaml:"sender,omitempty"`

	// GUID defaults to testutil.GUID(nonce).
	GUID string `yaml:"guid,omitempty"`

	Message MessageSpec `yaml:"message"`

	// Tamper alters the resolved resource list before execution.
	Tamper string `yaml:"tamper,omitempty"`

	// Expect, when set, is checked against the step's receipt.
	Expect *ExpectClause `yaml:"expect,omitempty"`
}

// Tamper operations.
const (
	TamperDropLast      = "drop_last"
	TamperExtra         = "extra"
	TamperSwapStorePeer = "swap_store_peer"
	TamperReorderClear  = "reorder_clear"
)

// MessageSpec describes a message body.
type MessageSpec struct {
	// Kind is text, increment, ack, deposit or raw.
	Kind string `yaml:"kind"`

	// Text is the legacy text value.
	Text string `yaml:"text,omitempty"`

	// Value is the increment amount or the acknowledged counter.
	Value uint64 `yaml:"value,omitempty"`

	// Amount, Address and CorrelationID build a deposit body.
	Amount        uint64 `yaml:"amount,omitempty"`
	Address       string `yaml:"address,omitempty"`
	CorrelationID string `yaml:"correlation_id,omitempty"`

	// Hex is a raw body.
	Hex string `yaml:"hex,omitempty"`
}

// Message kinds.
const (
	MessageText      = "text"
	MessageIncrement = "increment"
	MessageAck       = "ack"
	MessageDeposit   = "deposit"
	MessageRaw       = "raw"
)

// Encode returns the message body.
func (m MessageSpec) Encode() ([]byte, error) {
	switch m.Kind {
	case MessageText:
		return codec.EncodeText(m.Text)
	case MessageIncrement:
		return codec.EncodeCounter(codec.OpIncrement, m.Value), nil
	case MessageAck:
		return codec.EncodeAck(m.Value), nil
	case MessageDeposit:
		d := codec.Deposit{Amount: m.Amount}
		if m.Address != "" {
			a, err := ir.ParseAddress20(m.Address)
			if err != nil {
				return nil, fmt.Errorf("address: %w", err)
			}
			d.Address = &a
		}
		if m.CorrelationID != "" {
			if d.Address == nil {
				return nil, fmt.Errorf("correlation_id requires address")
			}
			c, err := ir.ParseBytes32(m.CorrelationID)
			if err != nil {
				return nil, fmt.Errorf("correlation_id: %w", err)
			}
			d.CorrelationID = &c
		}
		return codec.EncodeDeposit(d), nil
	case MessageRaw:
		var h ir.HexBytes
		if err := h.UnmarshalText([]byte(m.Hex)); err != nil {
			return nil, fmt.Errorf("hex: %w", err)
		}
		return h, nil
	default:
		return nil, fmt.Errorf("unknown message kind %q", m.Kind)
	}
}

// ExpectClause specifies the expected receipt. Empty fields are not
// checked.
type ExpectClause struct {
	Status string `yaml:"status"`
	Code   string `yaml:"code,omitempty"`
	Stage  string `yaml:"stage,omitempty"`
}

// Assertion validates trace or final state.
type Assertion struct {
	// Type is trace_contains, trace_count, final_state or replay.
	Type string `yaml:"type"`

	// Status and Code select trace steps (trace_contains, trace_count).
	Status string `yaml:"status,omitempty"`
	Code   string `yaml:"code,omitempty"`

	// Table is a snapshot section (final_state): app_state, peers, ledger,
	// slots, verified_payloads, outbound_messages, external_calls,
	// deposit_events or failures.
	Table string `yaml:"table,omitempty"`

	// Where filters rows by exact field match (final_state).
	Where map[string]interface{} `yaml:"where,omitempty"`

	// Expect contains expected field values (final_state).
	// Subset match - only specified fields are validated.
	Expect map[string]interface{} `yaml:"expect,omitempty"`

	// Count is the expected number of matching steps or rows.
	Count *int `yaml:"count,omitempty"`
}

// Assertion type constants.
const (
	AssertTraceContains = "trace_contains"
	AssertTraceCount    = "trace_count"
	AssertFinalState    = "final_state"
	AssertReplay        = "replay"
)

// LoadScenario reads and parses a scenario YAML file. The deployment path
// is resolved relative to the scenario file.
// Returns an error if the file doesn't exist, is malformed,
// contains unknown fields (typos), or is missing required fields.
func LoadScenario(path string) (*Scenario, error) {
	return LoadScenarioWithBasePath(path, filepath.Dir(path))
}

// LoadScenarioWithBasePath reads and parses a scenario YAML file,
// resolving the deployment path relative to basePath.
func LoadScenarioWithBasePath(path, basePath string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read scenario file: %w", err)
	}

	// Strict decoding catches typos like "assertion:" vs "assertions:".
	var scenario Scenario
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&scenario); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	if scenario.Deployment != "" && !filepath.IsAbs(scenario.Deployment) && basePath != "" {
		scenario.Deployment = filepath.Join(basePath, scenario.Deployment)
	}

	if err := validateScenario(&scenario); err != nil {
		return nil, fmt.Errorf("invalid scenario: %w", err)
	}
	return &scenario, nil
}

// validateScenario checks that required fields are present and valid.
func validateScenario(s *Scenario) error {
	if s.Name == "" {
		return fmt.Errorf("name is required")
	}
	if s.Description == "" {
		return fmt.Errorf("description is required")
	}
	if s.Deployment == "" && s.Variant == "" {
		return fmt.Errorf("variant is required without a deployment")
	}
	if s.Variant != "" {
		if _, err := codec.ParseVariant(s.Variant); err != nil {
			return err
		}
	}
	if s.Deployment != "" {
		if _, err := os.Stat(s.Deployment); err != nil {
			return fmt.Errorf("deployment file not found: %s", s.Deployment)
		}
	}
	if len(s.Flow) == 0 {
		return fmt.Errorf("flow list is required and must be non-empty")
	}
	if len(s.Assertions) == 0 {
		return fmt.Errorf("assertions list is required and must be non-empty")
	}

	for i, step := range s.Flow {
		if step.Nonce == 0 {
			return fmt.Errorf("flow[%d]: nonce is required", i)
		}
		if _, err := step.Message.Encode(); err != nil {
			return fmt.Errorf("flow[%d].message: %w", i, err)
		}
		switch step.Tamper {
		case "", TamperDropLast, TamperExtra, TamperSwapStorePeer, TamperReorderClear:
		default:
			return fmt.Errorf("flow[%d]: unknown tamper %q", i, step.Tamper)
		}
		if step.Expect != nil && step.Expect.Status == "" {
			return fmt.Errorf("flow[%d].expect: status is required", i)
		}
	}

	for i, assertion := range s.Assertions {
		if err := validateAssertion(i, &assertion); err != nil {
			return err
		}
	}
	return nil
}

// validateAssertion validates a single assertion based on its type.
func validateAssertion(index int, a *Assertion) error {
	if a.Type == "" {
		return fmt.Errorf("assertions[%d]: type is required", index)
	}

	switch a.Type {
	case AssertTraceContains:
		if a.Status == "" {
			return fmt.Errorf("assertions[%d]: status is required for trace_contains", index)
		}
	case AssertTraceCount:
		if a.Status == "" {
			return fmt.Errorf("assertions[%d]: status is required for trace_count", index)
		}
		if a.Count == nil || *a.Count < 0 {
			return fmt.Errorf("assertions[%d]: a non-negative count is required for trace_count", index)
		}
	case AssertFinalState:
		if !isSnapshotTable(a.Table) {
			return fmt.Errorf("assertions[%d]: unknown table %q for final_state", index, a.Table)
		}
		if len(a.Expect) == 0 && a.Count == nil {
			return fmt.Errorf("assertions[%d]: expect or count is required for final_state", index)
		}
	case AssertReplay:
	default:
		return fmt.Errorf("assertions[%d]: unknown assertion type %q", index, a.Type)
	}
	return nil
}
