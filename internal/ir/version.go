package ir

const (
	// SchemaVersion is the version of the persisted expansion record.
	SchemaVersion = "1"

	// ToolVersion is checked against a config file's `requires` constraint.
	ToolVersion = "0.4.0"
)
