package ir

// Contexts a declaration can be expanded in.
const (
	ContextItem  = "item"
	ContextTrait = "trait"
)

// ExpansionKey is the content an expansion's identity is computed from.
type ExpansionKey struct {
	Item    string            // declaration text, guard attribute removed
	Guard   string            // guard attribute argument
	Context string            // ContextItem or ContextTrait
	Options map[string]string // effective emitter options
}

// Expansion is one guard application as recorded in the ledger.
type Expansion struct {
	ID      string `json:"id"` // ExpansionID of the key
	RunID   string `json:"run_id"`
	Path    string `json:"path"`
	Line    int64  `json:"line"`
	Ident   string `json:"ident"`
	Kind    string `json:"kind"`
	Context string `json:"context"`
	Guard   string `json:"guard"`
	Input   string `json:"input"`
	Output  string `json:"output,omitempty"` // empty when rejected
	Code    string `json:"code,omitempty"`   // diagnostic code when rejected
	Message string `json:"message,omitempty"`
}

// Rejected reports whether the application produced a diagnostic.
func (e Expansion) Rejected() bool {
	return e.Code != ""
}

// Run is one CLI invocation that wrote to the ledger. Runs are ordered by
// Seq, a counter assigned by the ledger, not by wall-clock time.
type Run struct {
	ID          string            `json:"id"` // UUIDv7
	Seq         int64             `json:"seq"`
	Command     string            `json:"command"`
	ToolVersion string            `json:"tool_version"`
	OptionsHash string            `json:"options_hash"`
	Options     map[string]string `json:"options,omitempty"`
	Files       int64             `json:"files"`
	Expanded    int64             `json:"expanded"`
	Rejected    int64             `json:"rejected"`
}
