package part

import (
	"fmt"
	"strings"

	"github.com/beevik/etree"
)

// Designmap is the package manifest: layers, spread and story order.
type Designmap struct {
	*Part
}

// AsDesignmap views p as the designmap.
func AsDesignmap(p *Part) (*Designmap, error) {
	if p.Kind() != KindDesignmap || p.doc.Root() == nil {
		return nil, fmt.Errorf("part: %s is not the designmap", p.name)
	}
	return &Designmap{Part: p}, nil
}

// Layer is a document layer declared in the designmap.
type Layer struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// DOMVersion returns the declared DOM version, if any.
func (d *Designmap) DOMVersion() string {
	return d.Tree().SelectAttrValue("DOMVersion", "")
}

// ActiveLayer returns the id of the active layer.
func (d *Designmap) ActiveLayer() string {
	return refAttr(d.Tree(), "ActiveLayer")
}

// Layers returns the declared layers in document order.
func (d *Designmap) Layers() []Layer {
	var out []Layer
	for _, n := range d.Tree().SelectElements("Layer") {
		out = append(out, Layer{ID: ID(n), Name: n.SelectAttrValue("Name", "")})
	}
	return out
}

// SpreadSources returns the spread part names in spread order.
func (d *Designmap) SpreadSources() []string { return d.sources("idPkg:Spread") }

// MasterSpreadSources returns the master spread part names.
func (d *Designmap) MasterSpreadSources() []string { return d.sources("idPkg:MasterSpread") }

// StorySources returns the story part names in declaration order.
func (d *Designmap) StorySources() []string { return d.sources("idPkg:Story") }

// HasStorySource reports whether name is already listed.
func (d *Designmap) HasStorySource(name string) bool {
	for _, s := range d.StorySources() {
		if s == name {
			return true
		}
	}
	return false
}

// AddStory lists the story part of id after the last existing story entry
// and appends id to the StoryList attribute when the document carries one.
func (d *Designmap) AddStory(id string) {
	root := d.Tree()
	if list := root.SelectAttr("StoryList"); list != nil && !containsField(list.Value, id) {
		d.SetAttr(root, "StoryList", strings.TrimSpace(list.Value+" "+id))
	}
	name := StoryName(id)
	if d.HasStorySource(name) {
		return
	}
	el := etree.NewElement("idPkg:Story")
	el.CreateAttr("src", name)

	stories := root.SelectElements("idPkg:Story")
	if len(stories) == 0 {
		d.AppendChild(root, el)
		return
	}
	last := stories[len(stories)-1]
	root.InsertChildAt(last.Index()+1, el)
	d.MarkDirty()
}

func containsField(list, v string) bool {
	for _, f := range strings.Fields(list) {
		if f == v {
			return true
		}
	}
	return false
}

func (d *Designmap) sources(tag string) []string {
	var out []string
	for _, n := range d.Tree().SelectElements(tag) {
		if src := n.SelectAttrValue("src", ""); src != "" {
			out = append(out, src)
		}
	}
	return out
}
