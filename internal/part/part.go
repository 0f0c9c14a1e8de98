// Package part models the XML parts of an IDML package.
//
// A Part is an etree document bound to a file path inside a working copy.
// Mutations happen in memory; nothing reaches disk until Synchronize is
// called. A Part loaded outside a transaction has no writer and cannot be
// synchronized.
package part

import (
	"fmt"
	"path"
	"strings"

	"github.com/beevik/etree"

	"github.com/starford/idmlkit/internal/apperr"
	"github.com/starford/idmlkit/internal/checksum"
)

// IDAttr is the attribute carrying a node's package-wide identifier.
const IDAttr = "Self"

// PackagingNS is the namespace of the idPkg wrapper elements.
const PackagingNS = "http://ns.adobe.com/AdobeInDesign/idml/1.0/packaging"

// DefaultDOMVersion is used for new parts when the designmap carries none.
const DefaultDOMVersion = "7.5"

// Kind classifies a part by its location in the archive.
type Kind string

const (
	KindDesignmap    Kind = "designmap"
	KindSpread       Kind = "spread"
	KindMasterSpread Kind = "master_spread"
	KindStory        Kind = "story"
	KindTags         Kind = "tags"
	KindBackingStory Kind = "backing_story"
	KindResource     Kind = "resource"
	KindMeta         Kind = "meta"
	KindOther        Kind = "other"
)

// Well-known part names.
const (
	DesignmapName = "designmap.xml"
	TagsName      = "XML/Tags.xml"
)

// KindOf derives the kind of a part from its archive-relative name.
func KindOf(name string) Kind {
	switch {
	case name == DesignmapName:
		return KindDesignmap
	case name == TagsName:
		return KindTags
	case name == "XML/BackingStory.xml":
		return KindBackingStory
	case strings.HasPrefix(name, "Spreads/"):
		return KindSpread
	case strings.HasPrefix(name, "MasterSpreads/"):
		return KindMasterSpread
	case strings.HasPrefix(name, "Stories/"):
		return KindStory
	case strings.HasPrefix(name, "Resources/"):
		return KindResource
	case strings.HasPrefix(name, "META-INF/"):
		return KindMeta
	default:
		return KindOther
	}
}

// ParseKind converts a user-supplied kind name.
func ParseKind(s string) (Kind, error) {
	switch k := Kind(strings.ToLower(strings.TrimSpace(s))); k {
	case KindDesignmap, KindSpread, KindMasterSpread, KindStory, KindTags,
		KindBackingStory, KindResource, KindMeta:
		return k, nil
	}
	return "", fmt.Errorf("%w: %q", apperr.ErrUnsupportedKind, s)
}

// IsXML reports whether an archive entry is an XML part.
func IsXML(name string) bool {
	return strings.EqualFold(path.Ext(name), ".xml")
}

// Writer persists serialized part bytes at an archive-relative path.
type Writer interface {
	Write(path string, content []byte) error
}

// Part is one XML file of the package.
type Part struct {
	name   string
	doc    *etree.Document
	w      Writer
	synced string // checksum of the last bytes read or written
	dirty  bool
}

// Parse builds a Part from raw file content. w may be nil for a read-only
// part.
func Parse(name string, data []byte, w Writer) (*Part, error) {
	doc := etree.NewDocument()
	if err := doc.ReadFromBytes(data); err != nil {
		return nil, fmt.Errorf("part: parse %s: %w", name, err)
	}
	if doc.Root() == nil {
		return nil, fmt.Errorf("part: parse %s: no root element", name)
	}
	p := &Part{name: name, doc: doc, w: w}
	out, err := p.Bytes()
	if err != nil {
		return nil, err
	}
	p.synced = checksum.Sum(out)
	return p, nil
}

// newPart wraps a freshly built document. It starts dirty: its file does
// not exist yet.
func newPart(name string, doc *etree.Document, w Writer) *Part {
	return &Part{name: name, doc: doc, w: w, dirty: true}
}

// Name returns the archive-relative file name.
func (p *Part) Name() string { return p.name }

// Kind returns the kind derived from Name.
func (p *Part) Kind() Kind { return KindOf(p.name) }

// Document exposes the underlying etree document.
func (p *Part) Document() *etree.Document { return p.doc }

// Tree returns the root element. Callers mutating it directly are tracked
// through the serialized checksum; the helpers below also set the flag.
func (p *Part) Tree() *etree.Element { return p.doc.Root() }

// Writable reports whether the part is bound to a working copy.
func (p *Part) Writable() bool { return p.w != nil }

// MarkDirty flags the part as needing synchronization.
func (p *Part) MarkDirty() { p.dirty = true }

// Dirty reports whether the in-memory tree differs from the backing file.
func (p *Part) Dirty() bool {
	if p.dirty {
		return true
	}
	out, err := p.Bytes()
	if err != nil {
		return true
	}
	return checksum.Sum(out) != p.synced
}

// Bytes serializes the tree. Output is deterministic for a given tree.
func (p *Part) Bytes() ([]byte, error) {
	out, err := p.doc.WriteToBytes()
	if err != nil {
		return nil, fmt.Errorf("part: serialize %s: %w", p.name, err)
	}
	return out, nil
}

// Synchronize writes the tree to the backing file and marks the part clean.
func (p *Part) Synchronize() error {
	if p.w == nil {
		return fmt.Errorf("part: synchronize %s: %w", p.name, apperr.ErrNoWorkingCopy)
	}
	out, err := p.Bytes()
	if err != nil {
		return err
	}
	if err := p.w.Write(p.name, out); err != nil {
		return fmt.Errorf("part: synchronize %s: %w", p.name, err)
	}
	p.synced = checksum.Sum(out)
	p.dirty = false
	return nil
}

// Detach unbinds the part from its working copy; later Synchronize calls
// fail with ErrNoWorkingCopy.
func (p *Part) Detach() { p.w = nil }

// SetAttr sets an attribute on a node of this part.
func (p *Part) SetAttr(el *etree.Element, key, value string) {
	el.CreateAttr(key, value)
	p.dirty = true
}

// AppendChild appends child to parent, both in this part.
func (p *Part) AppendChild(parent, child *etree.Element) {
	parent.AddChild(child)
	p.dirty = true
}

// RemoveNode detaches el from its parent.
func (p *Part) RemoveNode(el *etree.Element) {
	if parent := el.Parent(); parent != nil {
		parent.RemoveChild(el)
		p.dirty = true
	}
}

// IdentifiedNodes returns every node carrying an IDAttr, in document order.
func (p *Part) IdentifiedNodes() []*etree.Element {
	var out []*etree.Element
	Walk(p.doc.Root(), func(el *etree.Element) {
		if el.SelectAttr(IDAttr) != nil {
			out = append(out, el)
		}
	})
	return out
}

// ID returns the IDAttr of el, or "".
func ID(el *etree.Element) string {
	if el == nil {
		return ""
	}
	return el.SelectAttrValue(IDAttr, "")
}

// Walk visits el and its descendants depth-first in document order.
func Walk(el *etree.Element, fn func(*etree.Element)) {
	if el == nil {
		return
	}
	fn(el)
	for _, c := range el.ChildElements() {
		Walk(c, fn)
	}
}

// FindByID searches the subtree rooted at el for a node with the given id.
func FindByID(el *etree.Element, id string) *etree.Element {
	var found *etree.Element
	Walk(el, func(n *etree.Element) {
		if found == nil && ID(n) == id {
			found = n
		}
	})
	return found
}

// contentNode returns the first child of the idPkg wrapper with the given
// tag, or the root itself when it already has that tag.
func contentNode(doc *etree.Document, tag string) *etree.Element {
	root := doc.Root()
	if root == nil {
		return nil
	}
	if root.Tag == tag && root.Space == "" {
		return root
	}
	return root.SelectElement(tag)
}

// newPackagingDocument creates an idPkg:<wrapper> document.
func newPackagingDocument(wrapper, domVersion string) (*etree.Document, *etree.Element) {
	if domVersion == "" {
		domVersion = DefaultDOMVersion
	}
	doc := etree.NewDocument()
	doc.CreateProcInst("xml", `version="1.0" encoding="UTF-8" standalone="yes"`)
	root := doc.CreateElement("idPkg:" + wrapper)
	root.CreateAttr("xmlns:idPkg", PackagingNS)
	root.CreateAttr("DOMVersion", domVersion)
	return doc, root
}
