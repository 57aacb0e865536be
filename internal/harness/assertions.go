package harness

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"github.com/roach88/lzrecv/internal/codec"
	"github.com/roach88/lzrecv/internal/engine"
	"github.com/roach88/lzrecv/internal/store"
)

// AssertionError is returned when an assertion fails.
// It includes detailed context to help debug the failure.
type AssertionError struct {
	Type     string       // Assertion type for categorization
	Expected string       // Human-readable expected outcome
	Actual   string       // Human-readable actual outcome
	Trace    []TraceEvent // Full trace for debugging context
}

// Error implements the error interface.
func (e *AssertionError) Error() string {
	var buf strings.Builder

	fmt.Fprintf(&buf, "Assertion failed: %s\n", e.Type)
	fmt.Fprintf(&buf, "  Expected: %s\n", e.Expected)
	fmt.Fprintf(&buf, "  Actual: %s\n", e.Actual)

	if len(e.Trace) > 0 {
		fmt.Fprintf(&buf, "\nFull trace:\n")
		for _, ev := range e.Trace {
			fmt.Fprintf(&buf, "  [%d] nonce=%d %s at %s", ev.Step, ev.Nonce, ev.Status, ev.Stage)
			if ev.Code != "" {
				fmt.Fprintf(&buf, " (%s)", ev.Code)
			}
			buf.WriteByte('\n')
		}
	}
	return buf.String()
}

func stepMatches(ev TraceEvent, a Assertion) bool {
	return ev.Status == a.Status && (a.Code == "" || ev.Code == a.Code)
}

func describeStep(a Assertion) string {
	if a.Code != "" {
		return fmt.Sprintf("status %s with code %s", a.Status, a.Code)
	}
	return "status " + a.Status
}

// assertTraceContains checks that some step matches the assertion's
// status and code.
func assertTraceContains(trace []TraceEvent, a Assertion) error {
	for _, ev := range trace {
		if stepMatches(ev, a) {
			return nil
		}
	}
	return &AssertionError{
		Type:     AssertTraceContains,
		Expected: "a step with " + describeStep(a),
		Actual:   "not found in trace",
		Trace:    trace,
	}
}

// assertTraceCount checks that exactly Count steps match.
func assertTraceCount(trace []TraceEvent, a Assertion) error {
	count := 0
	for _, ev := range trace {
		if stepMatches(ev, a) {
			count++
		}
	}
	if count != *a.Count {
		return &AssertionError{
			Type:     AssertTraceCount,
			Expected: fmt.Sprintf("%d steps with %s", *a.Count, describeStep(a)),
			Actual:   fmt.Sprintf("%d steps", count),
			Trace:    trace,
		}
	}
	return nil
}

var snapshotTables = map[string]bool{
	"app_state":         true,
	"peers":             true,
	"ledger":            true,
	"slots":             true,
	"verified_payloads": true,
	"outbound_messages": true,
	"external_calls":    true,
	"deposit_events":    true,
	"failures":          true,
}

func isSnapshotTable(name string) bool {
	return snapshotTables[name]
}

// snapshotRows returns the rows of one snapshot section as decoded JSON
// objects. Numbers stay json.Number so u64 values compare exactly.
func snapshotRows(ctx context.Context, st *store.Store, table string) ([]map[string]any, error) {
	snap, err := st.Snapshot(ctx)
	if err != nil {
		return nil, fmt.Errorf("read snapshot: %w", err)
	}
	raw, err := json.Marshal(snap)
	if err != nil {
		return nil, err
	}
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var sections map[string]json.RawMessage
	if err := dec.Decode(&sections); err != nil {
		return nil, err
	}

	dec = json.NewDecoder(bytes.NewReader(sections[table]))
	dec.UseNumber()
	if table == "app_state" {
		var row map[string]any
		if err := dec.Decode(&row); err != nil {
			return nil, err
		}
		return []map[string]any{row}, nil
	}
	var rows []map[string]any
	if err := dec.Decode(&rows); err != nil {
		return nil, err
	}
	return rows, nil
}

// assertFinalState checks the rows of a snapshot table matching Where.
// With Count set, exactly Count rows must match. With Expect set, the
// first matching row must carry the expected values (subset match).
func assertFinalState(ctx context.Context, st *store.Store, a Assertion) error {
	rows, err := snapshotRows(ctx, st, a.Table)
	if err != nil {
		return err
	}

	var matched []map[string]any
	for _, row := range rows {
		if matchFields(row, a.Where) {
			matched = append(matched, row)
		}
	}

	if a.Count != nil && len(matched) != *a.Count {
		return &AssertionError{
			Type:     AssertFinalState,
			Expected: fmt.Sprintf("%d rows in %s where %s", *a.Count, a.Table, formatWhereClause(a.Where)),
			Actual:   fmt.Sprintf("%d rows", len(matched)),
		}
	}
	if len(a.Expect) == 0 {
		return nil
	}
	if len(matched) == 0 {
		return &AssertionError{
			Type:     AssertFinalState,
			Expected: fmt.Sprintf("row in %s where %s", a.Table, formatWhereClause(a.Where)),
			Actual:   "no rows found",
		}
	}

	row := matched[0]
	for _, key := range sortedKeys(a.Expect) {
		want := a.Expect[key]
		got, ok := row[key]
		if !ok {
			return &AssertionError{
				Type:     AssertFinalState,
				Expected: fmt.Sprintf("%s.%s = %v", a.Table, key, want),
				Actual:   "field not present",
			}
		}
		if !stateValuesEqual(want, got) {
			return &AssertionError{
				Type:     AssertFinalState,
				Expected: fmt.Sprintf("%s.%s = %v", a.Table, key, want),
				Actual:   fmt.Sprintf("%s.%s = %v", a.Table, key, got),
			}
		}
	}
	return nil
}

// assertReplay re-executes the inbound log and requires the same state.
func assertReplay(ctx context.Context, actx *AssertionContext) error {
	report, err := engine.VerifyReplay(ctx, actx.Store, actx.Variant, actx.Options...)
	if err != nil {
		return fmt.Errorf("replay: %w", err)
	}
	if !report.Match {
		return &AssertionError{
			Type:     AssertReplay,
			Expected: "state digest " + report.SourceDigest,
			Actual:   "state digest " + report.ReplayDigest,
		}
	}
	return nil
}

func matchFields(row map[string]any, where map[string]interface{}) bool {
	for k, want := range where {
		got, ok := row[k]
		if !ok || !stateValuesEqual(want, got) {
			return false
		}
	}
	return true
}

func sortedKeys(m map[string]interface{}) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// formatWhereClause creates a human-readable description of WHERE conditions.
func formatWhereClause(where map[string]interface{}) string {
	if len(where) == 0 {
		return "(no conditions)"
	}
	keys := sortedKeys(where)
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, fmt.Sprintf("%s=%v", k, where[k]))
	}
	return strings.Join(parts, " AND ")
}

// stateValuesEqual compares a YAML-decoded expected value with a
// JSON-decoded actual one. Numbers compare by decimal text and hex strings
// compare case-insensitively.
func stateValuesEqual(expected, actual interface{}) bool {
	switch got := actual.(type) {
	case json.Number:
		switch want := expected.(type) {
		case int, int64, uint64, uint32:
			return fmt.Sprint(want) == got.String()
		case string:
			return want == got.String()
		}
		return false
	case string:
		want, ok := expected.(string)
		return ok && strings.EqualFold(want, got)
	case bool:
		want, ok := expected.(bool)
		return ok && want == got
	case nil:
		return expected == nil
	}
	return false
}

// AssertionContext provides context for evaluating assertions.
type AssertionContext struct {
	Store   *store.Store
	Ctx     context.Context
	Variant codec.Variant
	Options []engine.Option
}

// EvaluateAssertions evaluates all assertions against the result.
// Returns a slice of error messages for failed assertions.
func EvaluateAssertions(result *Result, assertions []Assertion, actx *AssertionContext) []string {
	var errors []string

	for i, a := range assertions {
		var err error

		switch a.Type {
		case AssertTraceContains:
			err = assertTraceContains(result.Trace, a)
		case AssertTraceCount:
			err = assertTraceCount(result.Trace, a)
		case AssertFinalState, AssertReplay:
			if actx == nil || actx.Store == nil {
				err = fmt.Errorf("assertion[%d]: %s requires database context", i, a.Type)
			} else if a.Type == AssertFinalState {
				err = assertFinalState(actx.Ctx, actx.Store, a)
			} else {
				err = assertReplay(actx.Ctx, actx)
			}
		default:
			err = fmt.Errorf("assertion[%d]: unknown assertion type %q", i, a.Type)
		}

		if err != nil {
			errors = append(errors, err.Error())
		}
	}
	return errors
}
