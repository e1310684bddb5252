package harness

import (
	"context"
	"fmt"
	"reflect"
	"regexp"
	"sort"
	"strings"

	"github.com/roach88/constguard/internal/store"
)

// validIdentifier matches the table and column names final_state may
// interpolate into a query.
var validIdentifier = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

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
		for _, event := range e.Trace {
			switch event.Type {
			case EventInstance:
				fmt.Fprintf(&buf, "  [%d] %s line %d %s passed=%t\n", event.Seq, event.Type, event.Line, event.Text, event.Passed)
			default:
				fmt.Fprintf(&buf, "  [%d] %s line %d %s %s\n", event.Seq, event.Type, event.Line, event.Ident, event.Code)
			}
		}
	}

	return buf.String()
}

// assertTraceContains checks if the trace contains an event of the given
// type whose fields match (subset match).
func assertTraceContains(trace []TraceEvent, assertion Assertion) error {
	for _, event := range trace {
		if event.Type == assertion.Event && matchFields(event.fields(), assertion.Fields) {
			return nil
		}
	}

	return &AssertionError{
		Type:     AssertTraceContains,
		Expected: fmt.Sprintf("%s event with %v", assertion.Event, assertion.Fields),
		Actual:   "not found in trace",
		Trace:    trace,
	}
}

// assertTraceOrder checks that the first expansion or rejection of each
// ident appears in the listed order. Other events may come in between.
func assertTraceOrder(trace []TraceEvent, assertion Assertion) error {
	first := make(map[string]int, len(assertion.Idents))
	for i, event := range trace {
		if event.Type == EventInstance {
			continue
		}
		if _, seen := first[event.Ident]; !seen {
			first[event.Ident] = i
		}
	}

	prev := -1
	for j, ident := range assertion.Idents {
		pos, ok := first[ident]
		if !ok {
			return &AssertionError{
				Type:     AssertTraceOrder,
				Expected: fmt.Sprintf("all idents present: %v", assertion.Idents),
				Actual:   "missing ident: " + ident,
				Trace:    trace,
			}
		}
		if pos <= prev {
			return &AssertionError{
				Type:     AssertTraceOrder,
				Expected: fmt.Sprintf("idents in order: %v", assertion.Idents),
				Actual:   fmt.Sprintf("%s (event %d) should be before %s (event %d)", assertion.Idents[j-1], prev+1, ident, pos+1),
				Trace:    trace,
			}
		}
		prev = pos
	}
	return nil
}

// assertTraceCount checks the number of events of the given type.
func assertTraceCount(trace []TraceEvent, assertion Assertion) error {
	count := 0
	for _, event := range trace {
		if event.Type == assertion.Event {
			count++
		}
	}

	if count != assertion.Count {
		return &AssertionError{
			Type:     AssertTraceCount,
			Expected: fmt.Sprintf("%d %s events", assertion.Count, assertion.Event),
			Actual:   fmt.Sprintf("%d events", count),
			Trace:    trace,
		}
	}

	return nil
}

// assertOutput checks the expanded source for a substring.
func assertOutput(output string, assertion Assertion) error {
	found := strings.Contains(output, assertion.Text)
	want := assertion.Type == AssertOutputContains
	if found == want {
		return nil
	}
	expected := fmt.Sprintf("output containing %q", assertion.Text)
	if !want {
		expected = fmt.Sprintf("output without %q", assertion.Text)
	}
	return &AssertionError{
		Type:     assertion.Type,
		Expected: expected,
		Actual:   output,
	}
}

// assertFinalState looks up exactly one ledger row matching Where and
// checks the columns named in Expect. Identifiers cannot be bound as
// parameters, so table and column names must match validIdentifier.
func assertFinalState(ctx context.Context, st *store.Store, assertion Assertion) error {
	if assertion.Table == "" {
		return fmt.Errorf("final_state assertion requires table name")
	}
	if !validIdentifier.MatchString(assertion.Table) {
		return fmt.Errorf("invalid table name %q: must match pattern %s", assertion.Table, validIdentifier)
	}
	whereSQL, args, err := buildWhereClause(assertion.Where)
	if err != nil {
		return err
	}

	query := "SELECT * FROM " + assertion.Table
	if whereSQL != "" {
		query += " WHERE " + whereSQL
	}
	fail := func(expected, actual string) error {
		return &AssertionError{Type: AssertFinalState, Expected: expected, Actual: actual}
	}
	where := formatWhereClause(assertion.Where)

	row, n, err := queryOne(ctx, st, query, args)
	switch {
	case err != nil:
		return fail("query table "+assertion.Table, fmt.Sprintf("query error: %v", err))
	case n == 0:
		return fail(fmt.Sprintf("row in %s where %s", assertion.Table, where), "row not found")
	case n > 1:
		return fail(fmt.Sprintf("exactly one row in %s where %s", assertion.Table, where), "multiple rows matched (assertion is ambiguous)")
	}

	for _, col := range sortedKeys(assertion.Expect) {
		want := assertion.Expect[col]
		got, ok := row[col]
		if !ok {
			return fail(fmt.Sprintf("field %q to exist", col), fmt.Sprintf("columns are %v", sortedKeys(row)))
		}
		if !sqlEqual(want, got) {
			return fail(fmt.Sprintf("field %q = %v", col, want), fmt.Sprintf("field %q = %v", col, got))
		}
	}
	return nil
}

// queryOne returns the first row of query as a column map and whether a
// second row exists (n is 0, 1 or 2).
func queryOne(ctx context.Context, st *store.Store, query string, args []interface{}) (map[string]interface{}, int, error) {
	rows, err := st.DB().QueryContext(ctx, query, args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	if !rows.Next() {
		return nil, 0, rows.Err()
	}
	cols, err := rows.Columns()
	if err != nil {
		return nil, 0, err
	}
	vals := make([]interface{}, len(cols))
	ptrs := make([]interface{}, len(cols))
	for i := range vals {
		ptrs[i] = &vals[i]
	}
	if err := rows.Scan(ptrs...); err != nil {
		return nil, 0, err
	}
	row := make(map[string]interface{}, len(cols))
	for i, c := range cols {
		row[c] = vals[i]
	}
	if rows.Next() {
		return row, 2, nil
	}
	return row, 1, rows.Err()
}

// buildWhereClause returns a parameterized conjunction over where, with
// columns in sorted order.
func buildWhereClause(where map[string]interface{}) (string, []interface{}, error) {
	var clauses []string
	var args []interface{}
	for _, col := range sortedKeys(where) {
		if !validIdentifier.MatchString(col) {
			return "", nil, fmt.Errorf("invalid column name %q in where clause: must match pattern %s", col, validIdentifier)
		}
		clauses = append(clauses, col+" = ?")
		switch v := where[col].(type) {
		case string, int, int64, bool:
			args = append(args, v)
		default:
			args = append(args, fmt.Sprint(v))
		}
	}
	return strings.Join(clauses, " AND "), args, nil
}

func formatWhereClause(where map[string]interface{}) string {
	if len(where) == 0 {
		return "(no conditions)"
	}
	parts := make([]string, 0, len(where))
	for _, k := range sortedKeys(where) {
		parts = append(parts, fmt.Sprintf("%s=%v", k, where[k]))
	}
	return strings.Join(parts, " AND ")
}

func sortedKeys(m map[string]interface{}) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// sqlEqual compares a YAML value with a value scanned from SQLite, which
// returns TEXT as string or []byte and INTEGER (booleans included) as int64.
func sqlEqual(want, got interface{}) bool {
	if b, ok := got.([]byte); ok {
		got = string(b)
	}
	switch w := want.(type) {
	case int:
		want = int64(w)
	case bool:
		if _, ok := got.(int64); ok {
			want = int64(0)
			if w {
				want = int64(1)
			}
		}
	}
	return reflect.DeepEqual(want, got)
}

// matchFields checks if actual contains all expected fields (subset match).
func matchFields(actual, expected map[string]interface{}) bool {
	for key, expectedVal := range expected {
		actualVal, exists := actual[key]
		if !exists {
			return false
		}
		if !valuesEqual(actualVal, expectedVal) {
			return false
		}
	}
	return true
}

// valuesEqual compares a trace field with a YAML value. YAML integers
// decode as int; trace lines and sequence numbers are int and int64.
func valuesEqual(actual, expected interface{}) bool {
	if actual == nil || expected == nil {
		return actual == expected
	}
	if a, ok := actual.(int64); ok {
		actual = int(a)
	}
	return reflect.DeepEqual(actual, expected)
}

// AssertionContext provides context for evaluating assertions.
type AssertionContext struct {
	Store *store.Store
	Ctx   context.Context
}

// EvaluateAssertions evaluates all assertions against the result.
// Returns a slice of error messages for failed assertions.
// The actx parameter provides ledger access for final_state assertions.
func EvaluateAssertions(result *Result, assertions []Assertion, actx *AssertionContext) []string {
	var errors []string

	for i, assertion := range assertions {
		var err error

		switch assertion.Type {
		case AssertTraceContains:
			err = assertTraceContains(result.Trace, assertion)
		case AssertTraceOrder:
			err = assertTraceOrder(result.Trace, assertion)
		case AssertTraceCount:
			err = assertTraceCount(result.Trace, assertion)
		case AssertOutputContains, AssertOutputExcludes:
			err = assertOutput(result.Output, assertion)
		case AssertFinalState:
			if actx == nil || actx.Store == nil {
				err = fmt.Errorf("assertion[%d]: final_state requires ledger context", i)
			} else {
				err = assertFinalState(actx.Ctx, actx.Store, assertion)
			}
		default:
			err = fmt.Errorf("assertion[%d]: unknown assertion type %q", i, assertion.Type)
		}

		if err != nil {
			errors = append(errors, err.Error())
		}
	}

	return errors
}
