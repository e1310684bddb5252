package expand

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"golang.org/x/sync/errgroup"
)

// File is one source file to expand.
type File struct {
	Path string
	Src  []byte
}

// ExpandFiles expands files concurrently, at most Config.Concurrency at a
// time. Results are in input order. Diagnostics do not stop other files;
// only cancellation of ctx returns an error.
func (x *Expander) ExpandFiles(ctx context.Context, files []File) ([]*FileResult, error) {
	results := make([]*FileResult, len(files))
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(x.cfg.Concurrency)
	for i, f := range files {
		i, f := i, f
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			results[i] = x.ExpandSource(f.Path, f.Src)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return results, nil
}

// LoadFiles reads the named files. A directory contributes every `.rs` file
// below it, in lexical order.
func LoadFiles(paths []string) ([]File, error) {
	var files []File
	for _, p := range paths {
		info, err := os.Stat(p)
		if err != nil {
			return nil, fmt.Errorf("stat %s: %w", p, err)
		}
		if !info.IsDir() {
			src, err := os.ReadFile(p)
			if err != nil {
				return nil, fmt.Errorf("read %s: %w", p, err)
			}
			files = append(files, File{Path: p, Src: src})
			continue
		}
		var found []string
		err = filepath.WalkDir(p, func(path string, d fs.DirEntry, err error) error {
			if err != nil {
				return err
			}
			if !d.IsDir() && IsSource(path) {
				found = append(found, path)
			}
			return nil
		})
		if err != nil {
			return nil, fmt.Errorf("walk %s: %w", p, err)
		}
		sort.Strings(found)
		for _, path := range found {
			src, err := os.ReadFile(path)
			if err != nil {
				return nil, fmt.Errorf("read %s: %w", path, err)
			}
			files = append(files, File{Path: path, Src: src})
		}
	}
	return files, nil
}

// IsSource reports whether path names a source file the expander handles.
func IsSource(path string) bool {
	return strings.HasSuffix(path, ".rs")
}
