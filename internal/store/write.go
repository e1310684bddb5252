package store

import (
	"context"
	"fmt"

	"github.com/roach88/constguard/internal/ir"
)

// RecordRun writes a run and its expansions in one transaction and returns
// the run with its ledger seq assigned. Expansions are stored in the given
// order; their RunID is set to run.ID.
//
// Uses ON CONFLICT DO NOTHING for idempotency: recording the same run ID
// twice leaves the first record in place and returns it.
func (s *Store) RecordRun(ctx context.Context, run ir.Run, exps []ir.Expansion) (ir.Run, error) {
	optsJSON, err := marshalOptions(run.Options)
	if err != nil {
		return ir.Run{}, fmt.Errorf("record run: %w", err)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return ir.Run{}, fmt.Errorf("record run: begin tx: %w", err)
	}
	defer tx.Rollback() // No-op if committed

	result, err := tx.ExecContext(ctx, `
		INSERT INTO runs
		(id, seq, command, tool_version, options_hash, options, files, expanded, rejected)
		VALUES (?, (SELECT COALESCE(MAX(seq), 0) + 1 FROM runs), ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO NOTHING
	`,
		run.ID,
		run.Command,
		run.ToolVersion,
		run.OptionsHash,
		optsJSON,
		run.Files,
		run.Expanded,
		run.Rejected,
	)
	if err != nil {
		return ir.Run{}, fmt.Errorf("record run: %w", err)
	}
	inserted, err := result.RowsAffected()
	if err != nil {
		return ir.Run{}, fmt.Errorf("record run: rows affected: %w", err)
	}

	if inserted > 0 {
		for i, e := range exps {
			_, err := tx.ExecContext(ctx, `
				INSERT INTO expansions
				(run_id, seq, id, path, line, ident, kind, context, guard, input, output, code, message)
				VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
				ON CONFLICT(run_id, seq) DO NOTHING
			`,
				run.ID,
				i+1,
				e.ID,
				e.Path,
				e.Line,
				e.Ident,
				e.Kind,
				e.Context,
				e.Guard,
				e.Input,
				e.Output,
				e.Code,
				e.Message,
			)
			if err != nil {
				return ir.Run{}, fmt.Errorf("record expansion %d: %w", i+1, err)
			}
		}
	}

	stored, err := scanRun(tx.QueryRowContext(ctx, runColumns+` WHERE id = ?`, run.ID))
	if err != nil {
		return ir.Run{}, fmt.Errorf("record run: read back: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return ir.Run{}, fmt.Errorf("record run: commit: %w", err)
	}
	return stored, nil
}
