package store

import (
	"context"
	"database/sql"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/roach88/constguard/internal/expand"
	"github.com/roach88/constguard/internal/ir"
)

var _ expand.Cache = (*Store)(nil)

// createTestStore creates a new store in a temp directory.
func createTestStore(t *testing.T) *Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.db")
	s, err := Open(path)
	if err != nil {
		t.Fatalf("Open() failed: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func testRun(id string) ir.Run {
	return ir.Run{
		ID:          id,
		Command:     "expand",
		ToolVersion: ir.ToolVersion,
		OptionsHash: "test-hash",
		Options:     map[string]string{"prefix": "_", "suffix": "_guard"},
		Files:       1,
		Expanded:    1,
		Rejected:    1,
	}
}

func testExpansions() []ir.Expansion {
	return []ir.Expansion{
		{
			ID: "aaa", Path: "src/lib.rs", Line: 3, Ident: "f", Kind: "fn", Context: ir.ContextItem,
			Guard: "N > 0", Input: "fn f < const N : usize > () {}", Output: "fn f < const N : usize > () where X {}",
		},
		{
			ID: "bbb", Path: "src/lib.rs", Line: 9, Context: ir.ContextItem,
			Guard: "N >", Input: "fn g < const N : usize > () {}", Code: "E202", Message: "E202: guard must be an expression or parameter-prefixed block",
		},
	}
}

func TestOpen_CreatesNewDatabase(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.db")

	s, err := Open(path)
	if err != nil {
		t.Fatalf("Open() failed: %v", err)
	}
	defer s.Close()

	if _, err := os.Stat(path); os.IsNotExist(err) {
		t.Error("database file was not created")
	}
}

func TestOpen_Idempotent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.db")

	for i := 0; i < 3; i++ {
		s, err := Open(path)
		if err != nil {
			t.Fatalf("Open() iteration %d failed: %v", i, err)
		}
		s.Close()
	}
}

func TestOpen_Pragmas(t *testing.T) {
	s := createTestStore(t)

	for name, want := range map[string]string{
		"journal_mode": "wal",
		"foreign_keys": "1",
		"busy_timeout": "5000",
		"user_version": "1",
	} {
		got, err := s.pragma(name)
		if err != nil {
			t.Fatalf("pragma %s: %v", name, err)
		}
		if got != want {
			t.Errorf("%s = %q, want %q", name, got, want)
		}
	}
}

func TestRecordRun_AssignsSeq(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	first, err := s.RecordRun(ctx, testRun("run-1"), nil)
	if err != nil {
		t.Fatalf("RecordRun() failed: %v", err)
	}
	second, err := s.RecordRun(ctx, testRun("run-2"), nil)
	if err != nil {
		t.Fatalf("RecordRun() failed: %v", err)
	}

	if first.Seq != 1 || second.Seq != 2 {
		t.Errorf("seqs = %d, %d; want 1, 2", first.Seq, second.Seq)
	}
	if second.Options["suffix"] != "_guard" {
		t.Errorf("options not round-tripped: %v", second.Options)
	}
}

func TestRecordRun_Idempotent(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	if _, err := s.RecordRun(ctx, testRun("run-1"), testExpansions()); err != nil {
		t.Fatalf("first RecordRun() failed: %v", err)
	}
	again := testRun("run-1")
	again.Command = "check"
	got, err := s.RecordRun(ctx, again, testExpansions()[:1])
	if err != nil {
		t.Fatalf("second RecordRun() failed: %v", err)
	}

	if got.Command != "expand" || got.Seq != 1 {
		t.Errorf("second write replaced the run: %+v", got)
	}
	exps, err := s.ReadExpansions(ctx, "run-1")
	if err != nil {
		t.Fatalf("ReadExpansions() failed: %v", err)
	}
	if len(exps) != 2 {
		t.Errorf("got %d expansions, want 2", len(exps))
	}
}

func TestReadExpansions_Order(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	if _, err := s.RecordRun(ctx, testRun("run-1"), testExpansions()); err != nil {
		t.Fatalf("RecordRun() failed: %v", err)
	}
	exps, err := s.ReadExpansions(ctx, "run-1")
	if err != nil {
		t.Fatalf("ReadExpansions() failed: %v", err)
	}
	if len(exps) != 2 {
		t.Fatalf("got %d expansions, want 2", len(exps))
	}
	if exps[0].ID != "aaa" || exps[1].ID != "bbb" {
		t.Errorf("order = %s, %s", exps[0].ID, exps[1].ID)
	}
	if exps[0].RunID != "run-1" || exps[0].Line != 3 || exps[0].Kind != "fn" {
		t.Errorf("fields not round-tripped: %+v", exps[0])
	}
	if !exps[1].Rejected() {
		t.Error("rejected expansion lost its code")
	}

	empty, err := s.ReadExpansions(ctx, "missing")
	if err != nil {
		t.Fatalf("ReadExpansions() failed: %v", err)
	}
	if empty == nil || len(empty) != 0 {
		t.Errorf("want empty non-nil slice, got %#v", empty)
	}
}

func TestLookup(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	if _, ok := s.Lookup("aaa"); ok {
		t.Fatal("Lookup() hit on an empty ledger")
	}
	if _, err := s.RecordRun(ctx, testRun("run-1"), testExpansions()); err != nil {
		t.Fatalf("RecordRun() failed: %v", err)
	}

	out, ok := s.Lookup("aaa")
	if !ok {
		t.Fatal("Lookup() missed a recorded expansion")
	}
	if out != "fn f < const N : usize > () where X {}" {
		t.Errorf("Lookup() = %q", out)
	}
	if _, ok := s.Lookup("bbb"); ok {
		t.Error("Lookup() served a rejected expansion")
	}
}

func TestReadRuns(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	runs, err := s.ReadRuns(ctx, 0)
	if err != nil {
		t.Fatalf("ReadRuns() failed: %v", err)
	}
	if runs == nil || len(runs) != 0 {
		t.Errorf("want empty non-nil slice, got %#v", runs)
	}

	for _, id := range []string{"run-1", "run-2", "run-3"} {
		if _, err := s.RecordRun(ctx, testRun(id), nil); err != nil {
			t.Fatalf("RecordRun(%s) failed: %v", id, err)
		}
	}

	runs, err = s.ReadRuns(ctx, 2)
	if err != nil {
		t.Fatalf("ReadRuns() failed: %v", err)
	}
	if len(runs) != 2 || runs[0].ID != "run-2" || runs[1].ID != "run-3" {
		t.Errorf("ReadRuns(2) = %+v", runs)
	}

	all, err := s.ReadRuns(ctx, 0)
	if err != nil {
		t.Fatalf("ReadRuns() failed: %v", err)
	}
	if len(all) != 3 {
		t.Errorf("ReadRuns(0) returned %d runs, want 3", len(all))
	}

	latest, err := s.LatestRun(ctx)
	if err != nil {
		t.Fatalf("LatestRun() failed: %v", err)
	}
	if latest.ID != "run-3" {
		t.Errorf("LatestRun() = %s", latest.ID)
	}
}

func TestReadRun_NotFound(t *testing.T) {
	s := createTestStore(t)

	_, err := s.ReadRun(context.Background(), "missing")
	if !errors.Is(err, sql.ErrNoRows) {
		t.Errorf("ReadRun() error = %v, want sql.ErrNoRows", err)
	}
	_, err = s.LatestRun(context.Background())
	if !errors.Is(err, sql.ErrNoRows) {
		t.Errorf("LatestRun() error = %v, want sql.ErrNoRows", err)
	}
}

func TestMarshalOptions_Canonical(t *testing.T) {
	a, err := marshalOptions(map[string]string{"suffix": "_guard", "prefix": "_"})
	if err != nil {
		t.Fatalf("marshalOptions() failed: %v", err)
	}
	if a != `{"prefix":"_","suffix":"_guard"}` {
		t.Errorf("marshalOptions() = %s", a)
	}

	opts, err := unmarshalOptions(a)
	if err != nil {
		t.Fatalf("unmarshalOptions() failed: %v", err)
	}
	if opts["prefix"] != "_" || len(opts) != 2 {
		t.Errorf("unmarshalOptions() = %v", opts)
	}
}
