package part

import (
	"fmt"
	"strings"

	"github.com/beevik/etree"

	"github.com/starford/idmlkit/internal/apperr"
)

const (
	tagPrefix             = "XMLTag/"
	defaultParagraphStyle = "ParagraphStyle/$ID/NormalParagraphStyle"
	defaultCharacterStyle = "CharacterStyle/$ID/[No character style]"
)

// StoryName returns the archive path of the story with the given id.
func StoryName(id string) string { return "Stories/Story_" + id + ".xml" }

// StoryIDFromName is the inverse of StoryName.
func StoryIDFromName(name string) (string, bool) {
	if !strings.HasPrefix(name, "Stories/Story_") || !strings.HasSuffix(name, ".xml") {
		return "", false
	}
	return strings.TrimSuffix(strings.TrimPrefix(name, "Stories/Story_"), ".xml"), true
}

// Story is a text container part.
type Story struct {
	*Part
}

// AsStory views p as a Story.
func AsStory(p *Part) (*Story, error) {
	if p.Kind() != KindStory || contentNode(p.doc, "Story") == nil {
		return nil, fmt.Errorf("part: %s is not a story", p.name)
	}
	return &Story{Part: p}, nil
}

// NewStory builds a story part holding one empty content element. The part
// starts dirty and must be synchronized to create its file.
func NewStory(storyID, elementID, tag, domVersion string, w Writer) *Story {
	doc, root := newPackagingDocument("Story", domVersion)
	story := root.CreateElement("Story")
	story.CreateAttr(IDAttr, storyID)
	story.CreateAttr("AppliedTOCStyle", "n")
	story.CreateAttr("TrackChanges", "false")
	story.CreateAttr("StoryTitle", "$ID/")
	story.CreateAttr("AppliedNamedGrid", "n")
	pref := story.CreateElement("StoryPreference")
	pref.CreateAttr("OpticalMarginAlignment", "false")
	pref.CreateAttr("OpticalMarginSize", "12")
	pref.CreateAttr("FrameType", "TextFrameType")
	pref.CreateAttr("StoryOrientation", "Horizontal")
	pref.CreateAttr("StoryDirection", "LeftToRightDirection")
	el := story.CreateElement("XMLElement")
	el.CreateAttr(IDAttr, elementID)
	el.CreateAttr("MarkupTag", tagPrefix+tag)
	doc.Indent(2)
	return &Story{Part: newPart(StoryName(storyID), doc, w)}
}

// Node returns the <Story> element.
func (s *Story) Node() *etree.Element { return contentNode(s.doc, "Story") }

// ID returns the story identifier.
func (s *Story) ID() string { return ID(s.Node()) }

// Element finds an element by id within this story only.
func (s *Story) Element(id string) (*Element, error) {
	n := FindByID(s.Node(), id)
	if n == nil {
		return nil, &apperr.UnknownIDError{ID: id, Scope: s.name}
	}
	return &Element{part: s.Part, node: n}, nil
}

// Elements returns the XMLElement nodes of the story in document order.
func (s *Story) Elements() []*Element {
	var out []*Element
	Walk(s.Node(), func(n *etree.Element) {
		if n.Tag == "XMLElement" {
			out = append(out, &Element{part: s.Part, node: n})
		}
	})
	return out
}

// SetContent replaces the text of the element with the given id.
func (s *Story) SetContent(elementID, text string) error {
	el, err := s.Element(elementID)
	if err != nil {
		return err
	}
	el.SetText(text)
	return nil
}

// Text returns the plain text of the whole story.
func (s *Story) Text() string { return textOf(s.Node()) }

// Element is an addressable content node inside a story.
type Element struct {
	part *Part
	node *etree.Element
}

// ID returns the element identifier.
func (e *Element) ID() string { return ID(e.node) }

// Node exposes the underlying etree element.
func (e *Element) Node() *etree.Element { return e.node }

// Tag returns the markup tag name without its XMLTag/ prefix.
func (e *Element) Tag() string {
	return strings.TrimPrefix(e.node.SelectAttrValue("MarkupTag", ""), tagPrefix)
}

// Text returns the element's text; <Br/> reads as a newline.
func (e *Element) Text() string { return textOf(e.node) }

// SetText replaces the element's text. Lines are separated by <Br/> inside
// the first character style range, which is created if missing.
func (e *Element) SetText(text string) {
	var stale []*etree.Element
	walkOwn(e.node, func(n *etree.Element) {
		if n.Tag == "Content" || n.Tag == "Br" {
			stale = append(stale, n)
		}
	})
	for _, n := range stale {
		n.Parent().RemoveChild(n)
	}

	csr := firstDescendant(e.node, "CharacterStyleRange")
	if csr == nil {
		psr := e.node.CreateElement("ParagraphStyleRange")
		psr.CreateAttr("AppliedParagraphStyle", defaultParagraphStyle)
		csr = psr.CreateElement("CharacterStyleRange")
		csr.CreateAttr("AppliedCharacterStyle", defaultCharacterStyle)
	}
	if text != "" {
		for i, line := range strings.Split(text, "\n") {
			if i > 0 {
				csr.CreateElement("Br")
			}
			if line != "" {
				csr.CreateElement("Content").SetText(line)
			}
		}
	}
	e.part.MarkDirty()
}

func textOf(el *etree.Element) string {
	var b strings.Builder
	Walk(el, func(n *etree.Element) {
		switch n.Tag {
		case "Content":
			b.WriteString(n.Text())
		case "Br":
			b.WriteByte('\n')
		}
	})
	return b.String()
}

// firstDescendant returns the first node tagged tag that el owns directly,
// outside any nested XMLElement.
func firstDescendant(el *etree.Element, tag string) *etree.Element {
	var found *etree.Element
	walkOwn(el, func(n *etree.Element) {
		if found == nil && n.Tag == tag {
			found = n
		}
	})
	return found
}

// walkOwn visits the descendants of el in document order without entering
// nested XMLElement nodes, which own their own text.
func walkOwn(el *etree.Element, fn func(*etree.Element)) {
	for _, c := range el.ChildElements() {
		if c.Tag == "XMLElement" {
			continue
		}
		fn(c)
		walkOwn(c, fn)
	}
}
