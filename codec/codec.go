// Package codec converts between Go values and the raw byte arrays
// carried by frame fields. Every conversion is total: out-of-range or
// oddly shaped input is truncated or padded, never rejected, so that
// deliberately malformed frames can be crafted without the codec
// getting in the way.
//
// All integer conversions are big-endian, matching network order.
package codec

import (
	"encoding/hex"
	"fmt"
	"strconv"
	"strings"
)

// FromHex decodes hex text into bytes. It accepts an optional 0x
// prefix, whitespace or colons between byte pairs, and odd-length
// input (a leading zero nibble is assumed).
func FromHex(s string) ([]byte, error) {
	clean := strings.Map(func(r rune) rune {
		switch r {
		case ' ', '\t', '\n', ':':
			return -1
		}
		return r
	}, strings.TrimSpace(s))
	if strings.HasPrefix(clean, "0x") || strings.HasPrefix(clean, "0X") {
		clean = clean[2:]
	}
	if clean == "" {
		return []byte{}, nil
	}
	if len(clean)%2 != 0 {
		clean = "0" + clean
	}
	b, err := hex.DecodeString(clean)
	if err != nil {
		return nil, fmt.Errorf("invalid hex %q: %w", s, err)
	}
	return b, nil
}

// ToHex renders b as lowercase hex without separators.
func ToHex(b []byte) string {
	return hex.EncodeToString(b)
}

// Resize returns b adjusted to exactly size bytes using numeric
// (big-endian) semantics: truncation keeps the trailing bytes,
// padding prepends zeros. The least significant end is preserved.
func Resize(b []byte, size int) []byte {
	if size < 0 {
		size = 0
	}
	out := make([]byte, size)
	if len(b) >= size {
		copy(out, b[len(b)-size:])
	} else {
		copy(out[size-len(b):], b)
	}
	return out
}

// ResizeRight returns b adjusted to exactly size bytes using text
// semantics: truncation keeps the leading bytes, padding appends
// zeros. The start of the array is preserved.
func ResizeRight(b []byte, size int) []byte {
	if size < 0 {
		size = 0
	}
	out := make([]byte, size)
	copy(out, b)
	return out
}

// FromInt converts value to big-endian bytes. If size is positive the
// result is exactly size bytes, truncated or zero-padded on the left.
// If size is zero the minimal width is used; value 0 encodes as one
// zero byte. Negative values take their two's complement bit pattern.
func FromInt(value int, size int) []byte {
	u := uint64(value)
	n := 1
	for v := u >> 8; v != 0; v >>= 8 {
		n++
	}
	b := make([]byte, n)
	for i := n - 1; i >= 0; i-- {
		b[i] = byte(u)
		u >>= 8
	}
	if size > 0 {
		return Resize(b, size)
	}
	return b
}

// ToInt interprets b as a big-endian unsigned integer. Arrays longer
// than eight bytes contribute only their trailing eight bytes.
func ToInt(b []byte) int {
	var u uint64
	for _, c := range b {
		u = u<<8 | uint64(c)
	}
	return int(u)
}

// FromIPv4 converts a dotted-quad address to its four raw bytes.
// Returns false if s is not a well-formed IPv4 address.
func FromIPv4(s string) ([]byte, bool) {
	parts := strings.Split(s, ".")
	if len(parts) != 4 {
		return nil, false
	}
	b := make([]byte, 4)
	for i, p := range parts {
		n, err := strconv.Atoi(p)
		if err != nil || n < 0 || n > 255 || p == "" {
			return nil, false
		}
		b[i] = byte(n)
	}
	return b, true
}

// ToIPv4 renders b as a dotted-quad address. The array is resized to
// four bytes first so any input produces a printable address.
func ToIPv4(b []byte) string {
	b = Resize(b, 4)
	return fmt.Sprintf("%d.%d.%d.%d", b[0], b[1], b[2], b[3])
}

// FromIndividualAddress converts a KNX individual address "A.L.D"
// (area.line.device) to its two-byte wire form. Returns false if s
// does not match the triplet shape.
func FromIndividualAddress(s string) ([]byte, bool) {
	a, l, d, ok := splitTriplet(s, ".")
	if !ok || a > 0xF || l > 0xF || d > 0xFF {
		return nil, false
	}
	return FromInt(a<<12|l<<8|d, 2), true
}

// ToIndividualAddress renders b as a KNX individual address "A.L.D".
func ToIndividualAddress(b []byte) string {
	v := ToInt(Resize(b, 2))
	return fmt.Sprintf("%d.%d.%d", (v>>12)&0xF, (v>>8)&0xF, v&0xFF)
}

// FromGroupAddress converts a KNX group address "M/S/G"
// (main/sub/group) to its two-byte wire form. Returns false if s does
// not match the triplet shape.
func FromGroupAddress(s string) ([]byte, bool) {
	m, sub, g, ok := splitTriplet(s, "/")
	if !ok || m > 0x1F || sub > 0x7 || g > 0xFF {
		return nil, false
	}
	return FromInt(m<<11|sub<<8|g, 2), true
}

// ToGroupAddress renders b as a KNX group address "M/S/G".
func ToGroupAddress(b []byte) string {
	v := ToInt(Resize(b, 2))
	return fmt.Sprintf("%d/%d/%d", (v>>11)&0x1F, (v>>8)&0x7, v&0xFF)
}

func splitTriplet(s, sep string) (a, b, c int, ok bool) {
	parts := strings.Split(s, sep)
	if len(parts) != 3 {
		return 0, 0, 0, false
	}
	vals := make([]int, 3)
	for i, p := range parts {
		n, err := strconv.Atoi(p)
		if err != nil || n < 0 {
			return 0, 0, 0, false
		}
		vals[i] = n
	}
	return vals[0], vals[1], vals[2], true
}

// FromString converts s to bytes, recognizing address shapes before
// falling back to raw text. Dotted quads become four address bytes,
// KNX individual ("1.2.3" with in-range octets is ambiguous and
// resolves as IPv4 first) and group addresses become their two-byte
// wire forms, anything else becomes its raw bytes.
func FromString(s string) []byte {
	if b, ok := FromIPv4(s); ok {
		return b
	}
	if b, ok := FromIndividualAddress(s); ok {
		return b
	}
	if b, ok := FromGroupAddress(s); ok {
		return b
	}
	return []byte(s)
}

// ToString renders b as text, dropping trailing zero padding.
func ToString(b []byte) string {
	end := len(b)
	for end > 0 && b[end-1] == 0 {
		end--
	}
	return string(b[:end])
}

// ToBits expands b into individual bits, most significant first.
func ToBits(b []byte) []uint8 {
	bits := make([]uint8, 0, len(b)*8)
	for _, c := range b {
		for i := 7; i >= 0; i-- {
			bits = append(bits, (c>>uint(i))&1)
		}
	}
	return bits
}

// FromBits packs bits (most significant first) back into bytes.
// A bit count that is not a multiple of eight is padded with leading
// zero bits so the trailing bits keep their positions.
func FromBits(bits []uint8) []byte {
	rem := len(bits) % 8
	if rem != 0 {
		padded := make([]uint8, 8-rem, 8-rem+len(bits))
		bits = append(padded, bits...)
	}
	b := make([]byte, len(bits)/8)
	for i, bit := range bits {
		if bit != 0 {
			b[i/8] |= 1 << uint(7-i%8)
		}
	}
	return b
}

// IntToBits converts value to width bits, most significant first.
// A zero width defaults to eight bits.
func IntToBits(value int, width int) []uint8 {
	if width <= 0 {
		width = 8
	}
	size := (width + 7) / 8
	bits := ToBits(FromInt(value, size))
	return bits[len(bits)-width:]
}

// Normalize converts an arbitrary value to bytes. Byte slices pass
// through (copied), integers use big-endian numeric form, strings go
// through FromString, and anything else is rendered with fmt and
// treated as text.
//
// If size is positive the result is resized: numeric values keep
// their least significant end, text keeps its start. A zero size
// keeps the natural width.
func Normalize(v any, size int) []byte {
	switch x := v.(type) {
	case nil:
		return make([]byte, size)
	case []byte:
		out := make([]byte, len(x))
		copy(out, x)
		if size > 0 {
			return Resize(out, size)
		}
		return out
	case byte:
		return normInt(int(x), size)
	case int:
		return normInt(x, size)
	case int8:
		return normInt(int(x), size)
	case int16:
		return normInt(int(x), size)
	case int32:
		return normInt(int(x), size)
	case int64:
		return normInt(int(x), size)
	case uint:
		return normInt(int(x), size)
	case uint16:
		return normInt(int(x), size)
	case uint32:
		return normInt(int(x), size)
	case uint64:
		return normInt(int(x), size)
	case bool:
		n := 0
		if x {
			n = 1
		}
		return normInt(n, size)
	case string:
		return normString(x, size)
	default:
		return normString(fmt.Sprintf("%v", x), size)
	}
}

func normInt(v, size int) []byte {
	return FromInt(v, size)
}

func normString(s string, size int) []byte {
	b := FromString(s)
	if size <= 0 {
		return b
	}
	if len(b) != len(s) {
		// address form: numeric semantics
		return Resize(b, size)
	}
	return ResizeRight(b, size)
}
