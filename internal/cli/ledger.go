package cli

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"

	"github.com/google/uuid"

	"github.com/roach88/constguard/internal/expand"
	"github.com/roach88/constguard/internal/ir"
	"github.com/roach88/constguard/internal/store"
)

// RunIDGenerator produces ledger run IDs.
type RunIDGenerator interface {
	Generate() string
}

// UUIDv7Generator generates time-sortable UUIDv7 run IDs.
//
// Thread-safety: UUIDv7Generator is stateless and safe for concurrent use.
type UUIDv7Generator struct{}

// Generate creates a new UUIDv7 and returns it as a hyphenated string.
// Panics if UUID generation fails (should never happen in practice).
func (g UUIDv7Generator) Generate() string {
	return uuid.Must(uuid.NewV7()).String()
}

// FixedGenerator returns predetermined run IDs for testing.
//
// Thread-safety: FixedGenerator is safe for concurrent use via internal mutex.
type FixedGenerator struct {
	mu  sync.Mutex
	ids []string
	idx int
}

// NewFixedGenerator creates a generator that returns ids in order.
func NewFixedGenerator(ids ...string) *FixedGenerator {
	return &FixedGenerator{ids: ids}
}

// Generate returns the next predetermined ID.
//
// Panics if all IDs have been consumed, to catch a test that records more
// runs than it expects.
func (g *FixedGenerator) Generate() string {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.idx >= len(g.ids) {
		panic("FixedGenerator: all ids exhausted")
	}
	id := g.ids[g.idx]
	g.idx++
	return id
}

// openLedger opens the ledger at path, creating its directory. An existing
// ledger is required when mustExist is set.
func openLedger(path string, mustExist bool) (*store.Store, error) {
	if mustExist {
		if _, err := os.Stat(path); err != nil {
			return nil, fmt.Errorf("ledger not found: %s", path)
		}
	} else if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("create ledger directory: %w", err)
		}
	}
	return store.Open(path)
}

// recordRun writes one CLI run and every application in results.
func recordRun(ctx context.Context, st *store.Store, gen RunIDGenerator, command string, x *expand.Expander, results []*expand.FileResult) (ir.Run, error) {
	opts := x.OptionMap()
	hash, err := ir.OptionsHash(opts)
	if err != nil {
		return ir.Run{}, err
	}
	if gen == nil {
		gen = UUIDv7Generator{}
	}

	run := ir.Run{
		ID:          gen.Generate(),
		Command:     command,
		ToolVersion: ir.ToolVersion,
		OptionsHash: hash,
		Options:     opts,
		Files:       int64(len(results)),
	}
	var exps []ir.Expansion
	for _, r := range results {
		for _, e := range r.Expansions {
			if e.Diagnostic != nil {
				run.Rejected++
			} else {
				run.Expanded++
			}
			exps = append(exps, e.Record(r.Path))
		}
	}

	stored, err := st.RecordRun(ctx, run, exps)
	if err != nil {
		return ir.Run{}, err
	}
	slog.Debug("run recorded",
		"run_id", stored.ID,
		"seq", stored.Seq,
		"expansions", len(exps),
	)
	return stored, nil
}

// ledgerPath picks the --ledger flag over the config file's ledger.
func ledgerPath(flag, configured string) string {
	if flag != "" {
		return flag
	}
	return configured
}
