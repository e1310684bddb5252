// Package config loads constguard.cue, the optional project configuration.
//
// The file is unified with an embedded CUE schema that supplies every
// default, so a missing or empty file yields the stock behaviour. Unknown
// fields are rejected because #Config is closed.
package config

import (
	_ "embed"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	"cuelang.org/go/cue/errors"
	"cuelang.org/go/cue/token"
	"github.com/Masterminds/semver/v3"

	"github.com/roach88/constguard/internal/emit"
	"github.com/roach88/constguard/internal/expand"
	"github.com/roach88/constguard/internal/ir"
)

// FileName is the configuration file looked up by Discover.
const FileName = "constguard.cue"

//go:embed schema.cue
var schemaSrc []byte

// Config is the decoded configuration.
type Config struct {
	Attributes  []string `json:"attributes"`
	Witness     string   `json:"witness"`
	Capability  string   `json:"capability"`
	Prefix      string   `json:"prefix"`
	Suffix      string   `json:"suffix"`
	Message     string   `json:"message"`
	StepLimit   int      `json:"step_limit"`
	Concurrency int      `json:"concurrency,omitempty"`
	Requires    string   `json:"requires,omitempty"`
	Ledger      string   `json:"ledger,omitempty"`

	// Path is the file the config was read from; empty for defaults.
	Path string `json:"-"`
}

// Error is a configuration error with its CUE source position.
type Error struct {
	Field   string
	Message string
	Pos     token.Pos
}

func (e *Error) Error() string {
	if e.Pos.IsValid() {
		return fmt.Sprintf("%s:%d:%d: %s: %s",
			e.Pos.Filename(), e.Pos.Line(), e.Pos.Column(),
			e.Field, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// Default returns the schema defaults.
func Default() *Config {
	c, err := Parse("", nil)
	if err != nil {
		panic(fmt.Sprintf("config: embedded schema: %v", err))
	}
	return c
}

// Load reads and validates the file at path.
func Load(path string) (*Config, error) {
	src, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	return Parse(path, src)
}

// Parse validates src against the schema. filename is used in positions.
func Parse(filename string, src []byte) (*Config, error) {
	ctx := cuecontext.New()
	schema := ctx.CompileBytes(schemaSrc, cue.Filename("schema.cue"))
	if err := schema.Err(); err != nil {
		return nil, formatCUEError(err)
	}
	def := schema.LookupPath(cue.ParsePath("#Config"))

	user := ctx.CompileBytes(src, cue.Filename(filename))
	if err := user.Err(); err != nil {
		return nil, formatCUEError(err)
	}
	v := def.Unify(user)
	if err := v.Validate(cue.Concrete(true)); err != nil {
		return nil, formatCUEError(err)
	}

	c := &Config{Path: filename}
	if err := v.Decode(c); err != nil {
		return nil, formatCUEError(err)
	}
	if err := c.checkRequires(v.LookupPath(cue.ParsePath("requires")).Pos()); err != nil {
		return nil, err
	}
	return c, nil
}

// checkRequires verifies the running tool satisfies the `requires`
// constraint.
func (c *Config) checkRequires(pos token.Pos) error {
	if c.Requires == "" {
		return nil
	}
	constraint, err := semver.NewConstraint(c.Requires)
	if err != nil {
		return &Error{Field: "requires", Message: fmt.Sprintf("invalid version constraint %q: %v", c.Requires, err), Pos: pos}
	}
	version := semver.MustParse(ir.ToolVersion)
	if !constraint.Check(version) {
		return &Error{Field: "requires", Message: fmt.Sprintf("constguard %s does not satisfy %q", version, c.Requires), Pos: pos}
	}
	return nil
}

// Discover looks for FileName in dir and its parents.
func Discover(dir string) (string, bool) {
	dir, err := filepath.Abs(dir)
	if err != nil {
		return "", false
	}
	for {
		p := filepath.Join(dir, FileName)
		if info, err := os.Stat(p); err == nil && !info.IsDir() {
			return p, true
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return "", false
		}
		dir = parent
	}
}

// Expand converts the configuration into expander settings.
func (c *Config) Expand() expand.Config {
	return expand.Config{
		Attributes: c.Attributes,
		Emit: emit.Options{
			Witness:    c.Witness,
			Capability: c.Capability,
			Prefix:     c.Prefix,
			Suffix:     c.Suffix,
			Message:    c.Message,
		},
		StepLimit:   c.StepLimit,
		Concurrency: c.Concurrency,
	}
}

// formatCUEError keeps the first error and its position.
func formatCUEError(err error) error {
	errs := errors.Errors(err)
	if len(errs) == 0 {
		return err
	}
	first := errs[0]
	field := strings.Join(fieldPath(first.Path()), ".")
	if field == "" {
		field = "cue"
	}
	msg, args := first.Msg()
	out := &Error{Field: field, Message: fmt.Sprintf(msg, args...)}
	if positions := errors.Positions(first); len(positions) > 0 {
		out.Pos = positions[0]
	}
	return out
}

// fieldPath drops the schema definition the user file was unified with, so
// `#Config.step_limit` reads as `step_limit`.
func fieldPath(path []string) []string {
	for len(path) > 0 && strings.HasPrefix(path[0], "#") {
		path = path[1:]
	}
	return path
}
