package frame

import (
	"github.com/jcalloway/framecraft/codec"
)

// Field is a leaf of the frame tree: a named byte array of known
// size. Values are stored exactly as they will appear on the wire;
// typed accessors convert on the way in and out.
//
// Assigning a value resizes the field to fit unless the size was
// pinned with SetSize. Caller assignments mark the field manual, so
// length recomputes leave a deliberately wrong length alone.
type Field struct {
	name        string
	value       []byte
	size        int
	isLength    bool
	manualSize  bool
	manualValue bool
	valued      bool
	parent      *Block
}

// NewField returns a detached field of the given size, zero-filled.
func NewField(name string, size int) *Field {
	if size < 0 {
		size = 0
	}
	return &Field{name: name, size: size, value: make([]byte, size)}
}

// NewLengthField returns a detached field that tracks the serialized
// length of the block it is attached to.
func NewLengthField(name string, size int) *Field {
	f := NewField(name, size)
	f.isLength = true
	return f
}

func (f *Field) Name() string { return f.name }

// Size returns the field's current width in bytes.
func (f *Field) Size() int { return f.size }

// IsLength reports whether the field auto-tracks its block's length.
func (f *Field) IsLength() bool { return f.isLength }

// ManualSize reports whether SetSize pinned the width.
func (f *Field) ManualSize() bool { return f.manualSize }

// ManualValue reports whether a caller wrote the field directly.
// Length recomputes leave manual fields alone.
func (f *Field) ManualValue() bool { return f.manualValue }

// Bytes returns a copy of the field's raw value.
func (f *Field) Bytes() []byte {
	out := make([]byte, len(f.value))
	copy(out, f.value)
	return out
}

// Len returns the serialized width. Equal to Size.
func (f *Field) Len() int { return len(f.value) }

// Int decodes the value as a big-endian unsigned integer.
func (f *Field) Int() int { return codec.ToInt(f.value) }

// Text decodes the value as text, without trailing zero padding.
func (f *Field) Text() string { return codec.ToString(f.value) }

// IPv4 renders the value as a dotted-quad address.
func (f *Field) IPv4() string { return codec.ToIPv4(f.value) }

// IndividualAddress renders the value as a KNX individual address.
func (f *Field) IndividualAddress() string { return codec.ToIndividualAddress(f.value) }

// GroupAddress renders the value as a KNX group address.
func (f *Field) GroupAddress() string { return codec.ToGroupAddress(f.value) }

// Bits expands the value into bits, most significant first.
func (f *Field) Bits() []uint8 { return codec.ToBits(f.value) }

// SetValue converts v (bytes, integer, string, address form) and
// stores it. Unpinned fields resize to the value's natural width and
// the enclosing block lengths are recomputed upward. A caller-written
// field is marked manual, so the recompute rules will not overwrite
// it even if it is a length field.
func (f *Field) SetValue(v any) {
	if f.manualSize {
		f.value = codec.Normalize(v, f.size)
	} else {
		f.value = codec.Normalize(v, 0)
		f.size = len(f.value)
	}
	f.valued = true
	f.manualValue = true
	f.notify()
}

// SetSize pins the field to n bytes and resizes the current value,
// keeping its least significant end. Later SetValue calls keep the
// pinned width.
func (f *Field) SetSize(n int) {
	if n < 0 {
		n = 0
	}
	f.size = n
	f.manualSize = true
	f.value = codec.Resize(f.value, n)
	f.notify()
}

// writeLength is the recompute path: it refreshes an auto-length
// value without pinning it or cascading further.
func (f *Field) writeLength(n int) {
	f.value = codec.FromInt(n, f.size)
}

// setParsed installs a value read off the wire. Parsed values count
// as assigned for conditional resolution but stay unpinned, so a
// reparsed frame recomputes cleanly.
func (f *Field) setParsed(b []byte) {
	f.value = b
	f.size = len(b)
	f.valued = true
}

func (f *Field) notify() {
	if f.parent != nil {
		f.parent.recomputeUp()
	}
}

func (f *Field) parentBlock() *Block { return f.parent }

func (f *Field) setParent(b *Block) { f.parent = b }
