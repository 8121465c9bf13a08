// Package frame builds, mutates and serializes protocol frames as
// trees of blocks and fields, driven by a loaded specification. The
// tree is deliberately permissive: any field can hold any bytes, any
// node can be grafted anywhere, and automatic length bookkeeping can
// be overridden, so that both well-formed and deliberately broken
// frames can be produced.
package frame

import (
	"fmt"
	"strings"

	"github.com/jcalloway/framecraft/spec"
)

// Node is a member of the frame tree: either a *Field leaf or a
// *Block holding further nodes.
type Node interface {
	Name() string
	// Bytes returns the node's serialized form.
	Bytes() []byte
	// Len returns the serialized width without serializing.
	Len() int

	parentBlock() *Block
	setParent(*Block)
}

// Block is an ordered sequence of named child nodes. Child names are
// matched under spec.NormalizeName, and lookups return the first
// match in document order, depth first.
type Block struct {
	name     string
	typeName string
	children []Node
	parent   *Block

	// afterRecompute runs once an upward recompute pass reaches this
	// block as root. A frame installs its total-length rule here so
	// ad hoc edits keep the header current.
	afterRecompute func()
}

// NewBlock returns an empty detached block with no catalog type.
func NewBlock(name string) *Block {
	return &Block{name: name}
}

func (b *Block) Name() string { return b.name }

// Type returns the catalog block type this block was built from, or
// an empty string for ad hoc blocks.
func (b *Block) Type() string { return b.typeName }

// Children returns the child nodes in order. The slice is a copy; the
// nodes are not.
func (b *Block) Children() []Node {
	out := make([]Node, len(b.children))
	copy(out, b.children)
	return out
}

// Bytes serializes the block by concatenating its children.
func (b *Block) Bytes() []byte {
	out := make([]byte, 0, b.Len())
	for _, c := range b.children {
		out = append(out, c.Bytes()...)
	}
	return out
}

// Len returns the serialized width of the block.
func (b *Block) Len() int {
	n := 0
	for _, c := range b.children {
		n += c.Len()
	}
	return n
}

// Append attaches n as the last child and recomputes lengths upward.
func (b *Block) Append(n Node) error {
	return b.Insert(len(b.children), n)
}

// Insert attaches n at position i and recomputes lengths upward.
func (b *Block) Insert(i int, n Node) error {
	if n == nil {
		return ErrNilNode
	}
	if i < 0 || i > len(b.children) {
		return fmt.Errorf("%w: insert at %d of %d", ErrRange, i, len(b.children))
	}
	if n.parentBlock() != nil {
		return fmt.Errorf("%w: %q", ErrAttached, n.Name())
	}
	if nb, ok := n.(*Block); ok {
		for anc := b; anc != nil; anc = anc.parent {
			if anc == nb {
				return fmt.Errorf("%w: %q", ErrCycle, n.Name())
			}
		}
	}
	n.setParent(b)
	b.children = append(b.children, nil)
	copy(b.children[i+1:], b.children[i:])
	b.children[i] = n
	b.recomputeUp()
	return nil
}

// Remove detaches the given child and recomputes lengths upward.
// The node must be a direct child of this block.
func (b *Block) Remove(n Node) error {
	for i, c := range b.children {
		if c == n {
			b.children = append(b.children[:i], b.children[i+1:]...)
			n.setParent(nil)
			b.recomputeUp()
			return nil
		}
	}
	name := "<nil>"
	if n != nil {
		name = n.Name()
	}
	return fmt.Errorf("%w: %q", ErrNotChild, name)
}

// Get returns the first node below this block whose name matches,
// searching depth first in document order. Duplicate names are legal
// in a frame; Get finds the earliest, GetPath disambiguates.
func (b *Block) Get(name string) (Node, error) {
	if n := b.find(spec.NormalizeName(name)); n != nil {
		return n, nil
	}
	return nil, fmt.Errorf("%w: %q", ErrNotFound, name)
}

func (b *Block) find(norm string) Node {
	for _, c := range b.children {
		if spec.NormalizeName(c.Name()) == norm {
			return c
		}
		if cb, ok := c.(*Block); ok {
			if n := cb.find(norm); n != nil {
				return n
			}
		}
	}
	return nil
}

// Field returns the first matching descendant that is a field.
func (b *Block) Field(name string) (*Field, error) {
	n, err := b.Get(name)
	if err != nil {
		return nil, err
	}
	f, ok := n.(*Field)
	if !ok {
		return nil, fmt.Errorf("%w: %q is a block, not a field", ErrWrongKind, name)
	}
	return f, nil
}

// Block returns the first matching descendant that is a block.
func (b *Block) Block(name string) (*Block, error) {
	n, err := b.Get(name)
	if err != nil {
		return nil, err
	}
	nb, ok := n.(*Block)
	if !ok {
		return nil, fmt.Errorf("%w: %q is a field, not a block", ErrWrongKind, name)
	}
	return nb, nil
}

// GetPath walks direct children segment by segment, so frames with
// repeated names can address a node unambiguously.
func (b *Block) GetPath(path ...string) (Node, error) {
	if len(path) == 0 {
		return nil, fmt.Errorf("%w: empty path", ErrNotFound)
	}
	cur := b
	for i, seg := range path {
		var hit Node
		norm := spec.NormalizeName(seg)
		for _, c := range cur.children {
			if spec.NormalizeName(c.Name()) == norm {
				hit = c
				break
			}
		}
		if hit == nil {
			return nil, fmt.Errorf("%w: path %q", ErrNotFound, strings.Join(path[:i+1], "/"))
		}
		if i == len(path)-1 {
			return hit, nil
		}
		nb, ok := hit.(*Block)
		if !ok {
			return nil, fmt.Errorf("%w: %q is a field, cannot descend", ErrWrongKind, strings.Join(path[:i+1], "/"))
		}
		cur = nb
	}
	return nil, fmt.Errorf("%w: path %q", ErrNotFound, strings.Join(path, "/"))
}

// Fields returns every field below this block, depth first in
// document order.
func (b *Block) Fields() []*Field {
	var out []*Field
	b.walkFields(&out)
	return out
}

func (b *Block) walkFields(out *[]*Field) {
	for _, c := range b.children {
		switch x := c.(type) {
		case *Field:
			*out = append(*out, x)
		case *Block:
			x.walkFields(out)
		}
	}
}

// recomputeUp refreshes auto-length fields from this block to the
// root. Writing a length never changes a size, so one upward pass
// settles the tree.
func (b *Block) recomputeUp() {
	blk := b
	for {
		blk.updateLengths()
		if blk.parent == nil {
			break
		}
		blk = blk.parent
	}
	if blk.afterRecompute != nil {
		blk.afterRecompute()
	}
}

// recomputeDeep refreshes auto-length fields in the whole subtree,
// children before parents.
func (b *Block) recomputeDeep() {
	for _, c := range b.children {
		if cb, ok := c.(*Block); ok {
			cb.recomputeDeep()
		}
	}
	b.updateLengths()
}

// updateLengths writes this block's serialized length into each of
// its direct length fields, skipping pinned ones. The length covers
// the whole block, the length field itself included.
func (b *Block) updateLengths() {
	for _, c := range b.children {
		if f, ok := c.(*Field); ok && f.isLength && !f.manualValue {
			f.writeLength(b.Len())
		}
	}
}

// adopt attaches a freshly built child without the misuse checks or
// recompute of Insert. Builder and parser only.
func (b *Block) adopt(n Node) {
	n.setParent(b)
	b.children = append(b.children, n)
}

func (b *Block) parentBlock() *Block { return b.parent }

func (b *Block) setParent(p *Block) { b.parent = p }
