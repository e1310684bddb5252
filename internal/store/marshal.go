package store

import (
	"encoding/json"
	"fmt"

	"github.com/roach88/constguard/internal/ir"
)

// marshalOptions converts a run's option set to canonical JSON TEXT.
// Uses RFC 8785 canonical JSON so equal option sets store identical text.
func marshalOptions(opts map[string]string) (string, error) {
	obj := make(ir.Object, len(opts))
	for k, v := range opts {
		obj[k] = ir.String(v)
	}
	data, err := ir.MarshalCanonical(obj)
	if err != nil {
		return "", fmt.Errorf("marshal options: %w", err)
	}
	return string(data), nil
}

// unmarshalOptions parses options TEXT. An empty object yields nil.
func unmarshalOptions(data string) (map[string]string, error) {
	if data == "" || data == "{}" {
		return nil, nil
	}
	var opts map[string]string
	if err := json.Unmarshal([]byte(data), &opts); err != nil {
		return nil, fmt.Errorf("unmarshal options: %w", err)
	}
	return opts, nil
}
