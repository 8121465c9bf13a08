package frame

import "errors"

// Misuse of the tree API and malformed input are reported through
// these sentinels, wrapped with context. Resolution failures surface
// as *spec.ResolutionError instead.
var (
	ErrNotFound    = errors.New("frame: name not found")
	ErrWrongKind   = errors.New("frame: wrong node kind")
	ErrNotChild    = errors.New("frame: node is not a child of this block")
	ErrAttached    = errors.New("frame: node already attached")
	ErrNilNode     = errors.New("frame: nil node")
	ErrCycle       = errors.New("frame: attach would create a cycle")
	ErrRange       = errors.New("frame: index out of range")
	ErrShortBuffer = errors.New("frame: buffer too short")
	ErrTrailing    = errors.New("frame: trailing bytes")
	ErrUnknownType = errors.New("frame: unknown frame type")
)
