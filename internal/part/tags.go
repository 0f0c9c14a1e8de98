package part

import (
	"fmt"

	"github.com/beevik/etree"
)

// Tags is the XML/Tags.xml part declaring markup tags.
type Tags struct {
	*Part
}

// AsTags views p as the tag declarations.
func AsTags(p *Part) (*Tags, error) {
	if p.Kind() != KindTags || p.doc.Root() == nil {
		return nil, fmt.Errorf("part: %s is not the tags part", p.name)
	}
	return &Tags{Part: p}, nil
}

// TagID returns the id a tag named name is declared under.
func TagID(name string) string { return tagPrefix + name }

// Names returns the declared tag names.
func (t *Tags) Names() []string {
	var out []string
	for _, n := range t.Tree().SelectElements("XMLTag") {
		out = append(out, n.SelectAttrValue("Name", ""))
	}
	return out
}

// Lookup returns the declaration node of a tag.
func (t *Tags) Lookup(name string) *etree.Element {
	for _, n := range t.Tree().SelectElements("XMLTag") {
		if n.SelectAttrValue("Name", "") == name {
			return n
		}
	}
	return nil
}

// Ensure declares name if it is missing. It returns the declaration node
// and whether it was created.
func (t *Tags) Ensure(name string) (*etree.Element, bool) {
	if n := t.Lookup(name); n != nil {
		return n, false
	}
	n := etree.NewElement("XMLTag")
	n.CreateAttr(IDAttr, TagID(name))
	n.CreateAttr("Name", name)
	color := n.CreateElement("Properties").CreateElement("TagColor")
	color.CreateAttr("type", "enumeration")
	color.SetText("LightBlue")
	t.AppendChild(t.Tree(), n)
	return n, true
}
