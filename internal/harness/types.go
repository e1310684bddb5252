package harness

// TraceEvent is one guard application or instantiation check.
type TraceEvent struct {
	Type    string `json:"type"` // "expansion", "rejection" or "instance"
	Line    int    `json:"line"`
	Ident   string `json:"ident,omitempty"`
	Kind    string `json:"kind,omitempty"`
	Context string `json:"context,omitempty"`
	Guard   string `json:"guard,omitempty"`
	Text    string `json:"text,omitempty"` // instantiation as written
	Code    string `json:"code,omitempty"`
	Message string `json:"message,omitempty"`
	Passed  bool   `json:"passed,omitempty"`
	Seq     int64  `json:"seq"`
}

// fields returns the event as a flat map for subset matching.
// Keys are the JSON names; empty fields are omitted.
func (e TraceEvent) fields() map[string]interface{} {
	m := map[string]interface{}{
		"type": e.Type,
		"line": e.Line,
		"seq":  e.Seq,
	}
	for k, v := range map[string]string{
		"ident":   e.Ident,
		"kind":    e.Kind,
		"context": e.Context,
		"guard":   e.Guard,
		"text":    e.Text,
		"code":    e.Code,
		"message": e.Message,
	} {
		if v != "" {
			m[k] = v
		}
	}
	if e.Type == EventInstance {
		m["passed"] = e.Passed
	}
	return m
}

// Result is the outcome of a scenario execution.
type Result struct {
	// Pass indicates overall success: every assertion held.
	Pass bool `json:"pass"`

	// Trace contains expansions and rejections in source order, then
	// instantiation checks.
	Trace []TraceEvent `json:"trace"`

	// Output is the expanded source.
	Output string `json:"output"`

	// Errors contains assertion failures. Empty if Pass is true.
	Errors []string `json:"errors,omitempty"`
}

// NewResult creates a new passing result.
func NewResult() *Result {
	return &Result{
		Pass:   true,
		Trace:  []TraceEvent{},
		Errors: []string{},
	}
}

// AddError adds a validation error and marks the result as failed.
func (r *Result) AddError(err string) {
	r.Errors = append(r.Errors, err)
	r.Pass = false
}

// AddTrace appends an event, assigning the next sequence number.
func (r *Result) AddTrace(e TraceEvent) {
	e.Seq = int64(len(r.Trace) + 1)
	r.Trace = append(r.Trace, e)
}
