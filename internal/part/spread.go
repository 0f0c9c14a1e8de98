package part

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/beevik/etree"
	validation "github.com/go-ozzo/ozzo-validation/v4"

	"github.com/starford/idmlkit/internal/models"
)

// NoneRef is the attribute value IDML uses for an absent reference.
const NoneRef = "n"

// Face tells which side of a spread a page sits on.
type Face string

const (
	Recto Face = "recto"
	Verso Face = "verso"
)

// Spread is a layout part holding pages and page items.
type Spread struct {
	*Part
}

// AsSpread views p as a Spread.
func AsSpread(p *Part) (*Spread, error) {
	k := p.Kind()
	if (k != KindSpread && k != KindMasterSpread) || spreadNode(p.doc) == nil {
		return nil, fmt.Errorf("part: %s is not a spread", p.name)
	}
	return &Spread{Part: p}, nil
}

func spreadNode(doc *etree.Document) *etree.Element {
	if n := contentNode(doc, "Spread"); n != nil {
		return n
	}
	return contentNode(doc, "MasterSpread")
}

// Node returns the <Spread> element.
func (s *Spread) Node() *etree.Element { return spreadNode(s.doc) }

// ID returns the spread identifier.
func (s *Spread) ID() string { return ID(s.Node()) }

// Pages returns the pages of the spread in document order.
func (s *Spread) Pages() []*Page {
	var out []*Page
	for _, n := range s.Node().SelectElements("Page") {
		out = append(out, &Page{node: n})
	}
	return out
}

// PageItem summarizes a top-level item placed on a spread.
type PageItem struct {
	ID          string `json:"id"`
	Type        string `json:"type"`
	ParentStory string `json:"parent_story,omitempty"`
	Layer       string `json:"layer,omitempty"`
}

// Items lists identified children of the spread other than pages.
func (s *Spread) Items() []PageItem {
	var out []PageItem
	for _, n := range s.Node().ChildElements() {
		if n.Tag == "Page" || ID(n) == "" {
			continue
		}
		out = append(out, PageItem{
			ID:          ID(n),
			Type:        n.Tag,
			ParentStory: refAttr(n, "ParentStory"),
			Layer:       refAttr(n, "ItemLayer"),
		})
	}
	return out
}

// TextFrame describes a rectangular text frame to place on a spread.
// X and Y are the frame's top-left corner in spread coordinates.
type TextFrame struct {
	ID      string
	StoryID string
	LayerID string
	X       float64
	Y       float64
	Width   float64
	Height  float64
}

func (f TextFrame) Validate() error {
	return validation.ValidateStruct(&f,
		validation.Field(&f.ID, validation.Required),
		validation.Field(&f.StoryID, validation.Required),
		validation.Field(&f.Width, validation.Required, validation.Min(0.0).Exclusive()),
		validation.Field(&f.Height, validation.Required, validation.Min(0.0).Exclusive()),
	)
}

// CenteredOn places a frame of the given size in the middle of a page.
func CenteredOn(c models.Coordinates, width, height float64) (x, y float64) {
	return c.X1 + (c.Width()-width)/2, c.Y1 + (c.Height()-height)/2
}

// AddTextFrame appends a frame threading the given story and returns the
// new node.
func (s *Spread) AddTextFrame(f TextFrame) (*etree.Element, error) {
	if err := f.Validate(); err != nil {
		return nil, fmt.Errorf("part: text frame: %w", err)
	}
	layer := f.LayerID
	if layer == "" {
		layer = NoneRef
	}

	tf := etree.NewElement("TextFrame")
	tf.CreateAttr(IDAttr, f.ID)
	tf.CreateAttr("ParentStory", f.StoryID)
	tf.CreateAttr("PreviousTextFrame", NoneRef)
	tf.CreateAttr("NextTextFrame", NoneRef)
	tf.CreateAttr("ContentType", "TextType")
	tf.CreateAttr("ItemLayer", layer)
	tf.CreateAttr("Visible", "true")
	tf.CreateAttr("ItemTransform", formatNumbers(1, 0, 0, 1, f.X, f.Y))

	props := tf.CreateElement("Properties")
	geom := props.CreateElement("PathGeometry").CreateElement("GeometryPathType")
	geom.CreateAttr("PathOpen", "false")
	points := geom.CreateElement("PathPointArray")
	for _, pt := range [][2]float64{{0, 0}, {0, f.Height}, {f.Width, f.Height}, {f.Width, 0}} {
		anchor := formatNumbers(pt[0], pt[1])
		pp := points.CreateElement("PathPointType")
		pp.CreateAttr("Anchor", anchor)
		pp.CreateAttr("LeftDirection", anchor)
		pp.CreateAttr("RightDirection", anchor)
	}
	pref := tf.CreateElement("TextFramePreference")
	pref.CreateAttr("TextColumnCount", "1")

	s.AppendChild(s.Node(), tf)
	return tf, nil
}

// Page is a <Page> node of a spread.
type Page struct {
	node *etree.Element
}

// Node exposes the underlying etree element.
func (p *Page) Node() *etree.Element { return p.node }

func (p *Page) ID() string   { return ID(p.node) }
func (p *Page) Name() string { return p.node.SelectAttrValue("Name", "") }

// GeometricBounds returns y1 x1 y2 x2 relative to the page transform.
func (p *Page) GeometricBounds() ([4]float64, error) {
	var out [4]float64
	v, err := parseNumbers(p.node.SelectAttrValue("GeometricBounds", ""), 4)
	if err != nil {
		return out, fmt.Errorf("page %s: GeometricBounds: %w", p.ID(), err)
	}
	copy(out[:], v)
	return out, nil
}

// ItemTransform returns the affine transform a b c d tx ty. Missing means
// identity.
func (p *Page) ItemTransform() ([6]float64, error) {
	out := [6]float64{1, 0, 0, 1, 0, 0}
	raw := p.node.SelectAttrValue("ItemTransform", "")
	if raw == "" {
		return out, nil
	}
	v, err := parseNumbers(raw, 6)
	if err != nil {
		return out, fmt.Errorf("page %s: ItemTransform: %w", p.ID(), err)
	}
	copy(out[:], v)
	return out, nil
}

// Coordinates returns the page rectangle in spread space: the geometric
// bounds translated by the transform's tx and ty.
func (p *Page) Coordinates() (models.Coordinates, error) {
	gb, err := p.GeometricBounds()
	if err != nil {
		return models.Coordinates{}, err
	}
	it, err := p.ItemTransform()
	if err != nil {
		return models.Coordinates{}, err
	}
	return models.Coordinates{
		X1: gb[1] + it[4],
		Y1: gb[0] + it[5],
		X2: gb[3] + it[4],
		Y2: gb[2] + it[5],
	}, nil
}

// Face reports recto for pages right of the spread origin.
func (p *Page) Face() (Face, error) {
	c, err := p.Coordinates()
	if err != nil {
		return "", err
	}
	if c.X1 >= 0 {
		return Recto, nil
	}
	return Verso, nil
}

func refAttr(el *etree.Element, key string) string {
	v := el.SelectAttrValue(key, "")
	if v == NoneRef {
		return ""
	}
	return v
}

func parseNumbers(raw string, want int) ([]float64, error) {
	fields := strings.Fields(raw)
	if len(fields) != want {
		return nil, fmt.Errorf("want %d numbers, got %q", want, raw)
	}
	out := make([]float64, want)
	for i, f := range fields {
		v, err := strconv.ParseFloat(f, 64)
		if err != nil {
			return nil, err
		}
		out[i] = v
	}
	return out, nil
}

func formatNumbers(vs ...float64) string {
	parts := make([]string, len(vs))
	for i, v := range vs {
		parts[i] = strconv.FormatFloat(v, 'f', -1, 64)
	}
	return strings.Join(parts, " ")
}
