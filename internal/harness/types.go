package harness

import (
	"github.com/roach88/lzrecv/internal/engine"
	"github.com/roach88/lzrecv/internal/ir"
)

// TraceEvent is the observable outcome of one flow step.
type TraceEvent struct {
	Step   int    `json:"step"`
	Nonce  uint64 `json:"nonce"`
	Kind   string `json:"kind,omitempty"`
	Status string `json:"status"`
	Stage  string `json:"stage"`
	Code   string `json:"code,omitempty"`
	At     int64  `json:"at"`

	AppState     *ir.AppState `json:"app_state,omitempty"`
	Total        *uint64      `json:"total_deposited,omitempty"`
	Count        *uint32      `json:"deposit_count,omitempty"`
	DepositIndex uint32       `json:"deposit_index,omitempty"`
	Ack          string       `json:"ack,omitempty"`
	CallData     string       `json:"call_data,omitempty"`
	CallAccounts int          `json:"call_accounts,omitempty"`
}

// newTraceEvent projects a receipt onto the fields a trace records.
// Addresses and hashes are left out; they are covered by store assertions.
func newTraceEvent(step int, nonce uint64, rc engine.Receipt) TraceEvent {
	ev := TraceEvent{
		Step:     step,
		Nonce:    nonce,
		Kind:     rc.Kind,
		Status:   string(rc.Status),
		Stage:    string(rc.Stage),
		Code:     string(rc.Code),
		At:       rc.At,
		AppState: rc.AppState,
	}
	if rc.Ledger != nil {
		total, count := rc.Ledger.TotalDeposited, rc.Ledger.DepositCount
		ev.Total, ev.Count = &total, &count
	}
	if rc.Event != nil {
		ev.DepositIndex = rc.Event.DepositIndex
	}
	if rc.Ack != nil {
		ev.Ack = rc.Ack.Message.String()
	}
	if rc.Call != nil {
		ev.CallData = rc.Call.Data.String()
		ev.CallAccounts = len(rc.Call.Accounts)
	}
	return ev
}

// Canonical projects the event onto the canonical value space.
func (e TraceEvent) Canonical() map[string]any {
	m := map[string]any{
		"step":   e.Step,
		"nonce":  e.Nonce,
		"status": e.Status,
		"stage":  e.Stage,
		"at":     e.At,
	}
	if e.Kind != "" {
		m["kind"] = e.Kind
	}
	if e.Code != "" {
		m["code"] = e.Code
	}
	if e.AppState != nil {
		m["app_state"] = map[string]any{"text": e.AppState.Text, "counter": e.AppState.Counter}
	}
	if e.Total != nil {
		m["total_deposited"] = *e.Total
		m["deposit_count"] = *e.Count
	}
	if e.DepositIndex != 0 {
		m["deposit_index"] = e.DepositIndex
	}
	if e.Ack != "" {
		m["ack"] = e.Ack
	}
	if e.CallData != "" {
		m["call_data"] = e.CallData
		m["call_accounts"] = e.CallAccounts
	}
	return m
}

// Result is the outcome of a test scenario execution.
type Result struct {
	// Pass is true when every expect clause and assertion held.
	Pass bool `json:"pass"`

	// Trace holds one event per flow step, in order.
	Trace []TraceEvent `json:"trace"`

	// Errors contains validation error messages.
	// Empty if Pass is true.
	Errors []string `json:"errors,omitempty"`
}

// NewResult creates a new passing result.
func NewResult() *Result {
	return &Result{
		Pass:   true,
		Trace:  []TraceEvent{},
		Errors: []string{},
	}
}

// AddError adds a validation error and marks the result as failed.
func (r *Result) AddError(err string) {
	r.Errors = append(r.Errors, err)
	r.Pass = false
}

// AddStep appends a flow step's outcome to the trace.
func (r *Result) AddStep(ev TraceEvent) {
	r.Trace = append(r.Trace, ev)
}
