// Package refindex maps package-wide identifiers to the node defining them.
//
// An IDML package references nodes across parts by id (a story's text
// frame names its story, an element names its tag). The index is built
// once per transaction from every loaded part and kept current as parts
// are added.
package refindex

import (
	"sort"

	"github.com/beevik/etree"

	"github.com/starford/idmlkit/internal/apperr"
	"github.com/starford/idmlkit/internal/part"
)

// Ref locates the node defining an id.
type Ref struct {
	Part *part.Part
	Node *etree.Element
}

// Index is a flat id → Ref table. Not safe for concurrent use; the owning
// package serializes access.
type Index struct {
	refs map[string]Ref
}

// New returns an empty index.
func New() *Index {
	return &Index{refs: make(map[string]Ref)}
}

// Build indexes every identified node of parts. The first duplicate aborts
// the build.
func Build(parts []*part.Part) (*Index, error) {
	idx := New()
	for _, p := range parts {
		if err := idx.AddPart(p); err != nil {
			return nil, err
		}
	}
	return idx, nil
}

// AddPart registers every identified node of p. On a duplicate nothing from
// p is kept.
func (x *Index) AddPart(p *part.Part) error {
	nodes := p.IdentifiedNodes()
	seen := make(map[string]struct{}, len(nodes))
	for _, n := range nodes {
		id := part.ID(n)
		if ref, ok := x.refs[id]; ok {
			return &apperr.DuplicateIDError{ID: id, Existing: ref.Part.Name(), Part: p.Name()}
		}
		if _, ok := seen[id]; ok {
			return &apperr.DuplicateIDError{ID: id, Existing: p.Name(), Part: p.Name()}
		}
		seen[id] = struct{}{}
	}
	for _, n := range nodes {
		x.refs[part.ID(n)] = Ref{Part: p, Node: n}
	}
	return nil
}

// Register adds a single node.
func (x *Index) Register(p *part.Part, n *etree.Element) error {
	id := part.ID(n)
	if ref, ok := x.refs[id]; ok {
		return &apperr.DuplicateIDError{ID: id, Existing: ref.Part.Name(), Part: p.Name()}
	}
	x.refs[id] = Ref{Part: p, Node: n}
	return nil
}

// Has reports whether id is defined.
func (x *Index) Has(id string) bool {
	_, ok := x.refs[id]
	return ok
}

// Resolve returns the definition of id.
func (x *Index) Resolve(id string) (Ref, error) {
	ref, ok := x.refs[id]
	if !ok {
		return Ref{}, &apperr.UnknownIDError{ID: id}
	}
	return ref, nil
}

// ResolveAttr follows a reference attribute of n. The IDML "n" value means
// no reference and yields ok=false with no error.
func (x *Index) ResolveAttr(n *etree.Element, attr string) (Ref, bool, error) {
	v := n.SelectAttrValue(attr, "")
	if v == "" || v == part.NoneRef {
		return Ref{}, false, nil
	}
	ref, err := x.Resolve(v)
	if err != nil {
		return Ref{}, false, err
	}
	return ref, true, nil
}

// Unregister drops a single id.
func (x *Index) Unregister(id string) { delete(x.refs, id) }

// RemovePart drops every id defined by p.
func (x *Index) RemovePart(p *part.Part) {
	for id, ref := range x.refs {
		if ref.Part == p {
			delete(x.refs, id)
		}
	}
}

// Refresh re-indexes p after its tree changed. On a duplicate the previous
// entries of p are restored.
func (x *Index) Refresh(p *part.Part) error {
	prev := make(map[string]Ref)
	for id, ref := range x.refs {
		if ref.Part == p {
			prev[id] = ref
		}
	}
	x.RemovePart(p)
	if err := x.AddPart(p); err != nil {
		for id, ref := range prev {
			x.refs[id] = ref
		}
		return err
	}
	return nil
}

// Len returns the number of indexed ids.
func (x *Index) Len() int { return len(x.refs) }

// IDs returns every indexed id, sorted.
func (x *Index) IDs() []string {
	out := make([]string, 0, len(x.refs))
	for id := range x.refs {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}
