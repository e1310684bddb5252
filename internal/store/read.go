package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"

	"github.com/roach88/constguard/internal/ir"
)

const runColumns = `
	SELECT id, seq, command, tool_version, options_hash, options, files, expanded, rejected
	FROM runs`

const expansionColumns = `
	SELECT id, run_id, path, line, ident, kind, context, guard, input, output, code, message
	FROM expansions`

// Lookup returns the output of an emitted expansion with the given content
// ID from any earlier run. It implements expand.Cache; read errors are
// logged and reported as a miss.
func (s *Store) Lookup(id string) (string, bool) {
	var output string
	err := s.db.QueryRow(`
		SELECT output FROM expansions
		WHERE id = ? AND code = ''
		LIMIT 1
	`, id).Scan(&output)
	if err != nil {
		if !errors.Is(err, sql.ErrNoRows) {
			slog.Debug("ledger lookup failed",
				"id", id,
				"error", err,
			)
		}
		return "", false
	}
	return output, true
}

// ReadRun retrieves a run by ID.
// Returns sql.ErrNoRows if not found.
func (s *Store) ReadRun(ctx context.Context, id string) (ir.Run, error) {
	return scanRun(s.db.QueryRowContext(ctx, runColumns+` WHERE id = ?`, id))
}

// LatestRun returns the run with the highest seq.
// Returns sql.ErrNoRows if the ledger is empty.
func (s *Store) LatestRun(ctx context.Context) (ir.Run, error) {
	return scanRun(s.db.QueryRowContext(ctx, runColumns+` ORDER BY seq DESC LIMIT 1`))
}

// ReadRuns returns the most recent runs, oldest first. limit <= 0 returns
// every run.
//
// Returns an empty slice (not nil) if the ledger is empty.
func (s *Store) ReadRuns(ctx context.Context, limit int) ([]ir.Run, error) {
	if limit <= 0 {
		limit = -1
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT * FROM (`+runColumns+` ORDER BY seq DESC LIMIT ?)
		ORDER BY seq ASC
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("query runs: %w", err)
	}
	defer rows.Close()

	runs := []ir.Run{}
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, run)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate runs: %w", err)
	}
	return runs, nil
}

// ReadExpansions returns the expansions recorded by a run in the order
// they were applied.
//
// Returns an empty slice (not nil) if the run recorded none.
func (s *Store) ReadExpansions(ctx context.Context, runID string) ([]ir.Expansion, error) {
	rows, err := s.db.QueryContext(ctx, expansionColumns+`
		WHERE run_id = ?
		ORDER BY seq ASC, id COLLATE BINARY ASC
	`, runID)
	if err != nil {
		return nil, fmt.Errorf("query expansions: %w", err)
	}
	defer rows.Close()

	exps := []ir.Expansion{}
	for rows.Next() {
		var e ir.Expansion
		if err := rows.Scan(&e.ID, &e.RunID, &e.Path, &e.Line, &e.Ident, &e.Kind, &e.Context,
			&e.Guard, &e.Input, &e.Output, &e.Code, &e.Message); err != nil {
			return nil, fmt.Errorf("scan expansion: %w", err)
		}
		exps = append(exps, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate expansions: %w", err)
	}
	return exps, nil
}

// rowScanner is satisfied by *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

func scanRun(row rowScanner) (ir.Run, error) {
	var run ir.Run
	var optsJSON string
	if err := row.Scan(&run.ID, &run.Seq, &run.Command, &run.ToolVersion, &run.OptionsHash,
		&optsJSON, &run.Files, &run.Expanded, &run.Rejected); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return ir.Run{}, err
		}
		return ir.Run{}, fmt.Errorf("scan run: %w", err)
	}
	opts, err := unmarshalOptions(optsJSON)
	if err != nil {
		return ir.Run{}, err
	}
	run.Options = opts
	return run, nil
}
