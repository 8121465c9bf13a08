package frame

import (
	"fmt"

	"github.com/jcalloway/framecraft/spec"
)

// Parse reconstructs a frame tree from wire bytes, following the
// specification's template. Fields consume exactly their declared
// sizes; a block's own length field, once read, caps how far into the
// buffer that block may reach. The whole buffer must be consumed.
//
// Parsed length fields are not pinned: parsing a frame with wrong
// lengths succeeds (the declared structure permitting), and a later
// serialize will correct them.
func Parse(sp *spec.Specification, data []byte) (*Frame, error) {
	fr := &Frame{root: NewBlock("frame"), sp: sp}
	fr.root.afterRecompute = fr.updateTotalLength
	cur := &cursor{buf: data, limit: len(data)}
	for _, d := range sp.Template {
		if err := fr.parseInto(fr.root, d, cur, nil); err != nil {
			return nil, err
		}
	}
	if cur.off != len(data) {
		return nil, fmt.Errorf("%w: %d bytes remain after %d parsed", ErrTrailing, len(data)-cur.off, cur.off)
	}
	return fr, nil
}

// cursor walks the input buffer under a shrinking limit. The limit
// starts at the buffer end and is tightened while inside a block
// whose length field has been read.
type cursor struct {
	buf   []byte
	off   int
	limit int
}

func (c *cursor) remaining() int { return c.limit - c.off }

func (c *cursor) take(n int, fieldName string) ([]byte, error) {
	if n > c.remaining() {
		return nil, fmt.Errorf("%w: field %q needs %d bytes, %d available", ErrShortBuffer, fieldName, n, c.remaining())
	}
	out := make([]byte, n)
	copy(out, c.buf[c.off:c.off+n])
	c.off += n
	return out, nil
}

func (fr *Frame) parseInto(parent *Block, d spec.Descriptor, cur *cursor, stack []string) error {
	switch d.Kind {
	case spec.KindField:
		b, err := cur.take(d.Size, d.Name)
		if err != nil {
			return err
		}
		f := &Field{name: d.Name, isLength: d.IsLength}
		f.setParsed(b)
		parent.adopt(f)
		return nil
	case spec.KindBlock:
		return fr.parseBlock(parent, d.Name, d.BlockType, cur, stack)
	case spec.KindConditional:
		value, err := fr.parsedDeterminant(d)
		if err != nil {
			return err
		}
		typeName, err := fr.sp.ResolveConditional(d.DependsOn, value)
		if err != nil {
			return err
		}
		if !fr.sp.HasBlock(typeName) {
			return &spec.ResolutionError{
				Field: d.DependsOn, Value: value,
				Reason: fmt.Sprintf("resolved to unknown block type %q", typeName),
			}
		}
		return fr.parseBlock(parent, d.Name, typeName, cur, stack)
	}
	return fmt.Errorf("frame: entry %q: unknown kind %v", d.Name, d.Kind)
}

func (fr *Frame) parseBlock(parent *Block, name, typeName string, cur *cursor, stack []string) error {
	norm := spec.NormalizeName(typeName)
	for _, s := range stack {
		if s == norm {
			return &spec.FormatError{Err: fmt.Errorf("block %q: circular reference", typeName)}
		}
	}
	descs, ok := fr.sp.BlockDescriptors(typeName)
	if !ok {
		return fmt.Errorf("frame: unknown block type %q", typeName)
	}
	b := &Block{name: name, typeName: typeName}
	parent.adopt(b)
	start := cur.off
	saved := cur.limit
	for _, d := range descs {
		if err := fr.parseInto(b, d, cur, append(stack, norm)); err != nil {
			return err
		}
		if d.Kind == spec.KindField && d.IsLength {
			// The block's declared length bounds its remaining
			// children. A length that cannot bound (already passed,
			// or beyond the outer limit) is kept as data but ignored
			// here.
			f := b.children[len(b.children)-1].(*Field)
			if end := start + f.Int(); end >= cur.off && end < cur.limit {
				cur.limit = end
			}
		}
	}
	cur.limit = saved
	return nil
}

// parsedDeterminant resolves a conditional during parsing from fields
// already read off the wire.
func (fr *Frame) parsedDeterminant(d spec.Descriptor) ([]byte, error) {
	if n := fr.root.find(spec.NormalizeName(d.DependsOn)); n != nil {
		if f, ok := n.(*Field); ok && f.valued {
			return f.Bytes(), nil
		}
	}
	return nil, &spec.ResolutionError{Field: d.DependsOn, Reason: "determinant field not present before conditional"}
}
