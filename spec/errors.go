package spec

import (
	"fmt"

	"github.com/jcalloway/framecraft/codec"
)

// FormatError reports a specification document that could not be
// loaded: unreadable file, malformed YAML/JSON, or content that
// violates the format (bad descriptor keys, dangling block
// references, circular templates).
type FormatError struct {
	Path string // source file, empty for in-memory documents
	Err  error
}

func (e *FormatError) Error() string {
	if e.Path == "" {
		return fmt.Sprintf("spec: %v", e.Err)
	}
	return fmt.Sprintf("spec: %s: %v", e.Path, e.Err)
}

func (e *FormatError) Unwrap() error { return e.Err }

// ResolutionError reports a conditional block reference that could not
// be resolved to a block type: the determinant field has no code
// table, the table has no entry for the observed value, or the field
// had no value at the time resolution was needed.
type ResolutionError struct {
	Field  string
	Value  []byte // observed determinant value, nil if none was available
	Reason string
}

func (e *ResolutionError) Error() string {
	if e.Value != nil {
		return fmt.Sprintf("spec: conditional on %q: %s (value 0x%s)", e.Field, e.Reason, codec.ToHex(e.Value))
	}
	return fmt.Sprintf("spec: conditional on %q: %s", e.Field, e.Reason)
}
