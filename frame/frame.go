package frame

import (
	"fmt"
	"sort"

	"github.com/jcalloway/framecraft/codec"
	"github.com/jcalloway/framecraft/spec"
)

// Frame is a complete message: the specification's template slots
// instantiated into a tree of blocks and fields.
type Frame struct {
	root *Block
	sp   *spec.Specification
}

// New builds a frame of the named type. The type is looked up in the
// specification's code tables and the determinant fields it implies
// (for example a service identifier) are seeded with the table value,
// which in turn selects the block filling each conditional slot.
//
// An empty typeName builds the bare template with spec defaults only;
// conditional slots must then be resolvable from overrides or from
// defaulted fields.
//
// Overrides preset named fields anywhere in the frame. The value is
// fitted to the field's declared size and the field is marked manual,
// so length recomputes will not overwrite it. An override that
// matches no field is a misuse error.
func New(sp *spec.Specification, typeName string, overrides map[string]any) (*Frame, error) {
	ov, err := newOverrides(overrides)
	if err != nil {
		return nil, err
	}
	seeds := map[string][]byte{}
	if typeName != "" {
		seeds = sp.DeterminantsFor(typeName)
		if len(seeds) == 0 {
			return nil, fmt.Errorf("%w: %q", ErrUnknownType, typeName)
		}
	}
	fr := &Frame{root: NewBlock("frame"), sp: sp}
	fr.root.afterRecompute = fr.updateTotalLength
	for _, d := range sp.Template {
		if err := fr.buildInto(fr.root, d, ov, seeds, nil); err != nil {
			return nil, err
		}
	}
	if name, ok := ov.unused(); ok {
		return nil, fmt.Errorf("%w: override %q", ErrNotFound, name)
	}
	fr.Recompute()
	return fr, nil
}

// Root returns the top of the tree. Template slots are its direct
// children.
func (fr *Frame) Root() *Block { return fr.root }

// Spec returns the specification the frame was built against.
func (fr *Frame) Spec() *spec.Specification { return fr.sp }

// Header returns the slot named "header", or nil if the template has
// none.
func (fr *Frame) Header() *Block { return fr.slot("header") }

// Body returns the slot named "body", or nil if the template has
// none.
func (fr *Frame) Body() *Block { return fr.slot("body") }

func (fr *Frame) slot(name string) *Block {
	norm := spec.NormalizeName(name)
	for _, c := range fr.root.children {
		if cb, ok := c.(*Block); ok && spec.NormalizeName(cb.name) == norm {
			return cb
		}
	}
	return nil
}

// Get returns the first node matching name, depth first across the
// whole frame.
func (fr *Frame) Get(name string) (Node, error) { return fr.root.Get(name) }

// Field returns the first matching field in the frame.
func (fr *Frame) Field(name string) (*Field, error) { return fr.root.Field(name) }

// Block returns the first matching block in the frame.
func (fr *Frame) Block(name string) (*Block, error) { return fr.root.Block(name) }

// GetPath addresses a node by explicit path from the template slots
// down, for frames where names repeat.
func (fr *Frame) GetPath(path ...string) (Node, error) { return fr.root.GetPath(path...) }

// Fields lists every field in wire order.
func (fr *Frame) Fields() []*Field { return fr.root.Fields() }

// SetField assigns a value to the first field matching name.
func (fr *Frame) SetField(name string, v any) error {
	f, err := fr.root.Field(name)
	if err != nil {
		return err
	}
	f.SetValue(v)
	return nil
}

// Remove detaches the first node matching name from wherever it sits
// in the tree.
func (fr *Frame) Remove(name string) error {
	n := fr.root.find(spec.NormalizeName(name))
	if n == nil {
		return fmt.Errorf("%w: %q", ErrNotFound, name)
	}
	return n.parentBlock().Remove(n)
}

// Len returns the frame's serialized width.
func (fr *Frame) Len() int { return fr.root.Len() }

// Bytes recomputes lengths and serializes the frame. Parsing the
// result with the same specification reproduces the tree.
func (fr *Frame) Bytes() []byte {
	fr.Recompute()
	return fr.root.Bytes()
}

// Recompute refreshes every auto-length field, children before
// parents, then rewrites the header's total length field with the
// full frame length. Pinned fields keep whatever they were given.
func (fr *Frame) Recompute() {
	fr.root.recomputeDeep()
	fr.updateTotalLength()
}

// updateTotalLength maintains the frame-spanning length convention:
// a field named "total length" inside the header slot holds the
// serialized length of the whole frame, not just its own block.
func (fr *Frame) updateTotalLength() {
	hdr := fr.slot("header")
	if hdr == nil {
		return
	}
	f, err := hdr.Field("total length")
	if err != nil || f.manualValue {
		return
	}
	f.writeLength(fr.root.Len())
}

func (fr *Frame) buildInto(parent *Block, d spec.Descriptor, ov *overrideSet, seeds map[string][]byte, stack []string) error {
	switch d.Kind {
	case spec.KindField:
		fr.buildField(parent, d, ov, seeds)
		return nil
	case spec.KindBlock:
		return fr.buildBlock(parent, d.Name, d.BlockType, ov, seeds, stack)
	case spec.KindConditional:
		value, err := fr.determinant(d, ov, seeds)
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
		return fr.buildBlock(parent, d.Name, typeName, ov, seeds, stack)
	}
	return fmt.Errorf("frame: entry %q: unknown kind %v", d.Name, d.Kind)
}

// buildField materializes a field descriptor. Construction values
// (spec default, type seed, caller override, in that precedence
// order) fit the declared size: text pads right, numbers pad left.
// Auto-resize applies only to assignments made after construction.
func (fr *Frame) buildField(parent *Block, d spec.Descriptor, ov *overrideSet, seeds map[string][]byte) {
	f := &Field{name: d.Name, size: d.Size, isLength: d.IsLength}
	if len(d.Default) > 0 {
		f.value = codec.Resize(d.Default, d.Size)
		f.valued = true
	} else {
		f.value = make([]byte, d.Size)
	}
	norm := spec.NormalizeName(d.Name)
	if v, ok := seeds[norm]; ok {
		f.value = codec.Resize(v, d.Size)
		f.valued = true
	}
	if v, ok := ov.take(norm); ok {
		f.value = codec.Normalize(v, d.Size)
		f.valued = true
		f.manualValue = true
	}
	parent.adopt(f)
}

func (fr *Frame) buildBlock(parent *Block, name, typeName string, ov *overrideSet, seeds map[string][]byte, stack []string) error {
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
	for _, d := range descs {
		if err := fr.buildInto(b, d, ov, seeds, append(stack, norm)); err != nil {
			return err
		}
	}
	return nil
}

// determinant finds the value that decides a conditional: a caller
// override first, then the value implied by the frame type, then a
// field already present in the tree.
func (fr *Frame) determinant(d spec.Descriptor, ov *overrideSet, seeds map[string][]byte) ([]byte, error) {
	norm := spec.NormalizeName(d.DependsOn)
	if v, ok := ov.peek(norm); ok {
		return codec.Normalize(v, 0), nil
	}
	if v, ok := seeds[norm]; ok {
		return v, nil
	}
	if n := fr.root.find(norm); n != nil {
		if f, ok := n.(*Field); ok && f.valued {
			return f.Bytes(), nil
		}
	}
	return nil, &spec.ResolutionError{Field: d.DependsOn, Reason: "determinant field has no value"}
}

// overrideSet tracks caller-supplied field presets and which of them
// actually landed on a field.
type overrideSet struct {
	vals  map[string]any
	spell map[string]string
	used  map[string]bool
}

func newOverrides(m map[string]any) (*overrideSet, error) {
	ov := &overrideSet{
		vals:  make(map[string]any, len(m)),
		spell: make(map[string]string, len(m)),
		used:  make(map[string]bool, len(m)),
	}
	for name, v := range m {
		norm := spec.NormalizeName(name)
		if prev, dup := ov.spell[norm]; dup {
			return nil, fmt.Errorf("frame: overrides %q and %q name the same field", prev, name)
		}
		ov.vals[norm] = v
		ov.spell[norm] = name
	}
	return ov, nil
}

func (ov *overrideSet) peek(norm string) (any, bool) {
	v, ok := ov.vals[norm]
	return v, ok
}

func (ov *overrideSet) take(norm string) (any, bool) {
	v, ok := ov.vals[norm]
	if ok {
		ov.used[norm] = true
	}
	return v, ok
}

// unused returns the first override that never matched a field, in
// sorted order so the error is deterministic.
func (ov *overrideSet) unused() (string, bool) {
	var missed []string
	for norm := range ov.vals {
		if !ov.used[norm] {
			missed = append(missed, ov.spell[norm])
		}
	}
	if len(missed) == 0 {
		return "", false
	}
	sort.Strings(missed)
	return missed[0], true
}
