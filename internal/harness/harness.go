package harness

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/roach88/constguard/internal/config"
	"github.com/roach88/constguard/internal/expand"
	"github.com/roach88/constguard/internal/ir"
	"github.com/roach88/constguard/internal/store"
)

// Harness runs one scenario against a fresh expander and ledger.
type Harness struct {
	store    *store.Store
	expander *expand.Expander
}

// Run executes a scenario and returns the result.
//
// Each scenario runs against a fresh in-memory ledger for isolation, and
// the run ID is derived from the scenario name so ledger rows are stable.
//
// Execution flow:
// 1. Parse the inline config (or use the defaults)
// 2. Expand the source and check its instantiations
// 3. Record the run and its expansions in the ledger
// 4. Evaluate assertions
func Run(scenario *Scenario) (*Result, error) {
	cfg := config.Default()
	if scenario.Config != "" {
		c, err := config.Parse(scenario.Name+".cue", []byte(scenario.Config))
		if err != nil {
			return nil, fmt.Errorf("failed to parse config: %w", err)
		}
		cfg = c
	}

	path, src, err := scenarioSource(scenario)
	if err != nil {
		return nil, err
	}

	st, err := store.Open(":memory:")
	if err != nil {
		return nil, fmt.Errorf("failed to create in-memory store: %w", err)
	}
	defer st.Close()

	h := &Harness{
		store:    st,
		expander: expand.New(cfg.Expand()),
	}

	ctx := context.Background()
	result := NewResult()
	if err := h.execute(ctx, scenario.Name, path, src, result); err != nil {
		return nil, err
	}

	actx := &AssertionContext{
		Store: st,
		Ctx:   ctx,
	}
	for _, errMsg := range EvaluateAssertions(result, scenario.Assertions, actx) {
		result.AddError(errMsg)
	}

	return result, nil
}

// scenarioSource returns the path reported in diagnostics and the text.
func scenarioSource(s *Scenario) (string, []byte, error) {
	if s.File == "" {
		return s.Name + ".rs", []byte(s.Source), nil
	}
	src, err := os.ReadFile(s.File)
	if err != nil {
		return "", nil, fmt.Errorf("failed to read source: %w", err)
	}
	return filepath.Base(s.File), src, nil
}

// execute expands src, traces every application and instantiation, and
// records the run.
func (h *Harness) execute(ctx context.Context, name, path string, src []byte, result *Result) error {
	res := h.expander.ExpandSource(path, src)
	result.Output = string(res.Output)

	var exps []ir.Expansion
	expanded, rejected := 0, 0
	for _, e := range res.Expansions {
		ev := TraceEvent{
			Type:    EventExpansion,
			Line:    e.Pos.Line,
			Ident:   e.Ident,
			Guard:   e.Guard,
			Context: e.Record(path).Context,
		}
		if e.Ident != "" {
			ev.Kind = e.Kind.String()
		}
		if e.Diagnostic != nil {
			ev.Type = EventRejection
			ev.Code = e.Diagnostic.Code
			ev.Message = e.Diagnostic.Message
			rejected++
		} else {
			expanded++
		}
		result.AddTrace(ev)
		exps = append(exps, e.Record(path))
	}
	// Lex failures reject the whole file without an expansion.
	if len(res.Expansions) == 0 {
		for _, d := range res.Diagnostics {
			result.AddTrace(TraceEvent{
				Type:    EventRejection,
				Line:    d.Pos.Line,
				Code:    d.Code,
				Message: d.Message,
			})
		}
	}

	for _, in := range h.expander.Check(res) {
		ev := TraceEvent{
			Type:   EventInstance,
			Line:   in.Pos.Line,
			Ident:  in.Ident,
			Text:   in.Text,
			Passed: in.Passed,
		}
		if in.Diagnostic != nil {
			ev.Code = in.Diagnostic.Code
			ev.Message = in.Diagnostic.Message
		}
		result.AddTrace(ev)
	}

	opts := h.expander.OptionMap()
	hash, err := ir.OptionsHash(opts)
	if err != nil {
		return fmt.Errorf("failed to hash options: %w", err)
	}
	run := ir.Run{
		ID:          "scenario:" + name,
		Command:     "test",
		ToolVersion: ir.ToolVersion,
		OptionsHash: hash,
		Options:     opts,
		Files:       1,
		Expanded:    int64(expanded),
		Rejected:    int64(rejected),
	}
	if _, err := h.store.RecordRun(ctx, run, exps); err != nil {
		return fmt.Errorf("failed to record run: %w", err)
	}
	return nil
}
