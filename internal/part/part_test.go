package part

import (
	"errors"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/require"

	"github.com/starford/idmlkit/internal/apperr"
	"github.com/starford/idmlkit/internal/models"
)

const storyXML = `<?xml version="1.0" encoding="UTF-8" standalone="yes"?>
<idPkg:Story xmlns:idPkg="http://ns.adobe.com/AdobeInDesign/idml/1.0/packaging" DOMVersion="7.5">
<Story Self="S1">
<XMLElement Self="E1" MarkupTag="XMLTag/article"/>
<XMLElement Self="E2" MarkupTag="XMLTag/title">
<ParagraphStyleRange AppliedParagraphStyle="ParagraphStyle/$ID/NormalParagraphStyle">
<CharacterStyleRange AppliedCharacterStyle="CharacterStyle/$ID/[No character style]">
<Content>first</Content>
<Br/>
<Content>second</Content>
</CharacterStyleRange>
</ParagraphStyleRange>
</XMLElement>
</Story>
</idPkg:Story>`

const spreadXML = `<?xml version="1.0" encoding="UTF-8" standalone="yes"?>
<idPkg:Spread xmlns:idPkg="http://ns.adobe.com/AdobeInDesign/idml/1.0/packaging" DOMVersion="7.5">
<Spread Self="sp1" PageCount="2">
<Page Self="p1" Name="1" GeometricBounds="0 0 841.89 595.28" ItemTransform="1 0 0 1 -595.28 -420.945"/>
<Page Self="p2" Name="2" GeometricBounds="0 0 841.89 595.28" ItemTransform="1 0 0 1 0 -420.945"/>
<TextFrame Self="tf1" ParentStory="S1" ItemLayer="L1"/>
<Rectangle Self="r1" ItemLayer="n"/>
</Spread>
</idPkg:Spread>`

type memWriter struct {
	files  map[string][]byte
	writes int
	err    error
}

func newMemWriter() *memWriter { return &memWriter{files: map[string][]byte{}} }

func (m *memWriter) Write(path string, content []byte) error {
	if m.err != nil {
		return m.err
	}
	m.writes++
	m.files[path] = append([]byte(nil), content...)
	return nil
}

func TestKindOf(t *testing.T) {
	cases := map[string]Kind{
		"designmap.xml":            KindDesignmap,
		"Spreads/Spread_u1.xml":    KindSpread,
		"MasterSpreads/Master.xml": KindMasterSpread,
		"Stories/Story_S1.xml":     KindStory,
		"XML/Tags.xml":             KindTags,
		"XML/BackingStory.xml":     KindBackingStory,
		"Resources/Styles.xml":     KindResource,
		"META-INF/container.xml":   KindMeta,
		"mimetype":                 KindOther,
	}
	for name, want := range cases {
		require.Equal(t, want, KindOf(name), name)
	}
}

func TestParseKind(t *testing.T) {
	k, err := ParseKind(" Story ")
	require.NoError(t, err)
	require.Equal(t, KindStory, k)

	_, err = ParseKind("picture")
	require.ErrorIs(t, err, apperr.ErrUnsupportedKind)
}

func TestParse_InvalidXML(t *testing.T) {
	_, err := Parse("Stories/Story_x.xml", []byte("<Story"), nil)
	require.Error(t, err)
}

func TestDirtyTracking(t *testing.T) {
	w := newMemWriter()
	p, err := Parse("Stories/Story_S1.xml", []byte(storyXML), w)
	require.NoError(t, err)
	require.False(t, p.Dirty(), "freshly parsed part must be clean")

	// Direct tree edit without the helpers is still detected.
	p.Tree().SelectElement("Story").CreateAttr("StoryTitle", "x")
	require.True(t, p.Dirty())

	require.NoError(t, p.Synchronize())
	require.False(t, p.Dirty())
	require.Contains(t, string(w.files["Stories/Story_S1.xml"]), `StoryTitle="x"`)
}

func TestSynchronize_Idempotent(t *testing.T) {
	w := newMemWriter()
	p, err := Parse("Stories/Story_S1.xml", []byte(storyXML), w)
	require.NoError(t, err)
	p.MarkDirty()

	require.NoError(t, p.Synchronize())
	first := string(w.files[p.Name()])
	require.NoError(t, p.Synchronize())
	require.Equal(t, first, string(w.files[p.Name()]))
	require.False(t, p.Dirty())
}

func TestSynchronize_NoWorkingCopy(t *testing.T) {
	p, err := Parse("Stories/Story_S1.xml", []byte(storyXML), nil)
	require.NoError(t, err)
	require.False(t, p.Writable())
	require.ErrorIs(t, p.Synchronize(), apperr.ErrNoWorkingCopy)

	w := newMemWriter()
	p2, err := Parse("Stories/Story_S1.xml", []byte(storyXML), w)
	require.NoError(t, err)
	p2.Detach()
	require.ErrorIs(t, p2.Synchronize(), apperr.ErrNoWorkingCopy)
}

func TestSynchronize_WriterFailureKeepsDirty(t *testing.T) {
	w := newMemWriter()
	p, err := Parse("Stories/Story_S1.xml", []byte(storyXML), w)
	require.NoError(t, err)
	p.MarkDirty()
	w.err = errors.New("disk full")
	require.Error(t, p.Synchronize())
	require.True(t, p.Dirty())
}

func TestIdentifiedNodes(t *testing.T) {
	p, err := Parse("Stories/Story_S1.xml", []byte(storyXML), nil)
	require.NoError(t, err)
	var ids []string
	for _, n := range p.IdentifiedNodes() {
		ids = append(ids, ID(n))
	}
	if diff := cmp.Diff([]string{"S1", "E1", "E2"}, ids); diff != "" {
		t.Errorf("ids mismatch (-want +got):\n%s", diff)
	}
}

func TestStory_ElementScopedToStory(t *testing.T) {
	p, err := Parse("Stories/Story_S1.xml", []byte(storyXML), nil)
	require.NoError(t, err)
	s, err := AsStory(p)
	require.NoError(t, err)
	require.Equal(t, "S1", s.ID())

	el, err := s.Element("E2")
	require.NoError(t, err)
	require.Equal(t, "title", el.Tag())
	require.Equal(t, "first\nsecond", el.Text())

	_, err = s.Element("E9")
	var unknown *apperr.UnknownIDError
	require.ErrorAs(t, err, &unknown)
	require.Equal(t, "Stories/Story_S1.xml", unknown.Scope)
	require.ErrorIs(t, err, apperr.ErrUnknownID)
}

func TestElement_SetTextOnEmptyElement(t *testing.T) {
	w := newMemWriter()
	p, err := Parse("Stories/Story_S1.xml", []byte(storyXML), w)
	require.NoError(t, err)
	s, _ := AsStory(p)

	require.NoError(t, s.SetContent("E1", "hello"))
	require.True(t, s.Dirty())
	el, _ := s.Element("E1")
	require.Equal(t, "hello", el.Text())

	require.NoError(t, s.Synchronize())
	out := string(w.files[s.Name()])
	require.Contains(t, out, "<Content>hello</Content>")
	require.Contains(t, out, "CharacterStyleRange")
}

func TestElement_SetTextReplacesLines(t *testing.T) {
	p, err := Parse("Stories/Story_S1.xml", []byte(storyXML), nil)
	require.NoError(t, err)
	s, _ := AsStory(p)
	el, _ := s.Element("E2")

	el.SetText("a\n\nb")
	require.Equal(t, "a\n\nb", el.Text())
	require.Len(t, el.Node().FindElements(".//Br"), 2)
	require.Len(t, el.Node().FindElements(".//CharacterStyleRange"), 1)

	el.SetText("")
	require.Equal(t, "", el.Text())
	require.Equal(t, "", s.Text())
}

func TestElement_SetTextEscapes(t *testing.T) {
	w := newMemWriter()
	p, err := Parse("Stories/Story_S1.xml", []byte(storyXML), w)
	require.NoError(t, err)
	s, _ := AsStory(p)
	require.NoError(t, s.SetContent("E1", "a < b & c"))
	require.NoError(t, s.Synchronize())

	reparsed, err := Parse(s.Name(), w.files[s.Name()], nil)
	require.NoError(t, err)
	rs, _ := AsStory(reparsed)
	el, err := rs.Element("E1")
	require.NoError(t, err)
	require.Equal(t, "a < b & c", el.Text())
}

const nestedStoryXML = `<?xml version="1.0" encoding="UTF-8" standalone="yes"?>
<idPkg:Story xmlns:idPkg="http://ns.adobe.com/AdobeInDesign/idml/1.0/packaging" DOMVersion="7.5">
<Story Self="S2">
<XMLElement Self="outer" MarkupTag="XMLTag/article">
<ParagraphStyleRange AppliedParagraphStyle="ParagraphStyle/$ID/NormalParagraphStyle">
<CharacterStyleRange AppliedCharacterStyle="CharacterStyle/$ID/[No character style]">
<XMLElement Self="inner" MarkupTag="XMLTag/title">
<ParagraphStyleRange AppliedParagraphStyle="ParagraphStyle/$ID/NormalParagraphStyle">
<CharacterStyleRange AppliedCharacterStyle="CharacterStyle/$ID/[No character style]">
<Content>keep me</Content>
</CharacterStyleRange>
</ParagraphStyleRange>
</XMLElement>
</CharacterStyleRange>
</ParagraphStyleRange>
</XMLElement>
<XMLElement Self="wrapper" MarkupTag="XMLTag/section">
<XMLElement Self="only" MarkupTag="XMLTag/title">
<ParagraphStyleRange AppliedParagraphStyle="ParagraphStyle/$ID/NormalParagraphStyle">
<CharacterStyleRange AppliedCharacterStyle="CharacterStyle/$ID/[No character style]">
<Content>child text</Content>
</CharacterStyleRange>
</ParagraphStyleRange>
</XMLElement>
</XMLElement>
</Story>
</idPkg:Story>`

func TestElement_SetTextLeavesNestedElements(t *testing.T) {
	p, err := Parse("Stories/Story_S2.xml", []byte(nestedStoryXML), nil)
	require.NoError(t, err)
	s, err := AsStory(p)
	require.NoError(t, err)

	require.NoError(t, s.SetContent("outer", "new"))
	inner, err := s.Element("inner")
	require.NoError(t, err)
	require.Equal(t, "keep me", inner.Text())
	require.NotContains(t, inner.Text(), "new")
	outer, err := s.Element("outer")
	require.NoError(t, err)
	require.Equal(t, "keep menew", outer.Text())

	// The only CharacterStyleRange under wrapper belongs to its child, so
	// wrapper gets one of its own.
	require.NoError(t, s.SetContent("wrapper", "mine"))
	only, err := s.Element("only")
	require.NoError(t, err)
	require.Equal(t, "child text", only.Text())
	wrapper, err := s.Element("wrapper")
	require.NoError(t, err)
	require.Len(t, wrapper.Node().SelectElements("ParagraphStyleRange"), 1)
	require.Equal(t, "child textmine", wrapper.Text())

	// Clearing the outer element keeps the nested one intact.
	require.NoError(t, s.SetContent("outer", ""))
	require.Equal(t, "keep me", inner.Text())
	require.Equal(t, "keep me", outer.Text())
}

func TestNewStory(t *testing.T) {
	w := newMemWriter()
	s := NewStory("S9", "E9", "sidebar", "", w)
	require.Equal(t, "Stories/Story_S9.xml", s.Name())
	require.True(t, s.Dirty())
	require.Equal(t, "S9", s.ID())

	el, err := s.Element("E9")
	require.NoError(t, err)
	require.Equal(t, "sidebar", el.Tag())
	require.Equal(t, "", el.Text())

	require.NoError(t, s.Synchronize())
	out := string(w.files["Stories/Story_S9.xml"])
	require.True(t, strings.HasPrefix(out, "<?xml"))
	require.Contains(t, out, `DOMVersion="7.5"`)

	id, ok := StoryIDFromName(s.Name())
	require.True(t, ok)
	require.Equal(t, "S9", id)
}

func TestSpread_PagesAndCoordinates(t *testing.T) {
	p, err := Parse("Spreads/Spread_sp1.xml", []byte(spreadXML), nil)
	require.NoError(t, err)
	sp, err := AsSpread(p)
	require.NoError(t, err)
	require.Equal(t, "sp1", sp.ID())

	pages := sp.Pages()
	require.Len(t, pages, 2)

	c, err := pages[0].Coordinates()
	require.NoError(t, err)
	want := models.Coordinates{X1: -595.28, Y1: -420.945, X2: 0, Y2: 420.945}
	if diff := cmp.Diff(want, c, cmpFloat); diff != "" {
		t.Errorf("coordinates mismatch (-want +got):\n%s", diff)
	}
	face, err := pages[0].Face()
	require.NoError(t, err)
	require.Equal(t, Verso, face)

	face, err = pages[1].Face()
	require.NoError(t, err)
	require.Equal(t, Recto, face)
}

func TestSpread_Items(t *testing.T) {
	p, err := Parse("Spreads/Spread_sp1.xml", []byte(spreadXML), nil)
	require.NoError(t, err)
	sp, _ := AsSpread(p)
	want := []PageItem{
		{ID: "tf1", Type: "TextFrame", ParentStory: "S1", Layer: "L1"},
		{ID: "r1", Type: "Rectangle"},
	}
	if diff := cmp.Diff(want, sp.Items()); diff != "" {
		t.Errorf("items mismatch (-want +got):\n%s", diff)
	}
}

func TestSpread_AddTextFrame(t *testing.T) {
	p, err := Parse("Spreads/Spread_sp1.xml", []byte(spreadXML), nil)
	require.NoError(t, err)
	sp, _ := AsSpread(p)

	c, _ := sp.Pages()[1].Coordinates()
	x, y := CenteredOn(c, 100, 50)
	node, err := sp.AddTextFrame(TextFrame{ID: "tf2", StoryID: "S2", LayerID: "L1", X: x, Y: y, Width: 100, Height: 50})
	require.NoError(t, err)
	require.True(t, sp.Dirty())
	require.Equal(t, "S2", node.SelectAttrValue("ParentStory", ""))
	require.Len(t, node.FindElements(".//PathPointType"), 4)
	require.Equal(t, "tf2", sp.Items()[2].ID)

	_, err = sp.AddTextFrame(TextFrame{ID: "tf3", StoryID: "S2"})
	require.Error(t, err)
}

func TestPage_BadBounds(t *testing.T) {
	p, err := Parse("Spreads/Spread_x.xml", []byte(`<Spread Self="x"><Page Self="p" GeometricBounds="0 0 1"/></Spread>`), nil)
	require.NoError(t, err)
	sp, err := AsSpread(p)
	require.NoError(t, err)
	_, err = sp.Pages()[0].Coordinates()
	require.Error(t, err)
}

func TestDesignmap(t *testing.T) {
	const dm = `<?xml version="1.0" encoding="UTF-8" standalone="yes"?>
<Document xmlns:idPkg="http://ns.adobe.com/AdobeInDesign/idml/1.0/packaging" DOMVersion="8.0" Self="d" StoryList="S1" ActiveLayer="L1">
<Layer Self="L1" Name="Layer 1"/>
<idPkg:Spread src="Spreads/Spread_sp1.xml"/>
<idPkg:Story src="Stories/Story_S1.xml"/>
<idPkg:BackingStory src="XML/BackingStory.xml"/>
</Document>`
	p, err := Parse(DesignmapName, []byte(dm), nil)
	require.NoError(t, err)
	d, err := AsDesignmap(p)
	require.NoError(t, err)

	require.Equal(t, "L1", d.ActiveLayer())
	require.Equal(t, "8.0", d.DOMVersion())
	require.Equal(t, []Layer{{ID: "L1", Name: "Layer 1"}}, d.Layers())
	require.Equal(t, []string{"Spreads/Spread_sp1.xml"}, d.SpreadSources())

	d.AddStory("S2")
	d.AddStory("S2")
	require.Equal(t, []string{"Stories/Story_S1.xml", "Stories/Story_S2.xml"}, d.StorySources())
	require.Equal(t, "S1 S2", d.Tree().SelectAttrValue("StoryList", ""))
	require.True(t, d.Dirty())

	// New entry lands right after the existing story entries.
	var order []string
	for _, c := range d.Tree().ChildElements() {
		order = append(order, c.FullTag())
	}
	require.Equal(t, []string{"Layer", "idPkg:Spread", "idPkg:Story", "idPkg:Story", "idPkg:BackingStory"}, order)
}

func TestTags_Ensure(t *testing.T) {
	p, err := Parse(TagsName, []byte(`<idPkg:Tags xmlns:idPkg="x"><XMLTag Self="XMLTag/article" Name="article"/></idPkg:Tags>`), nil)
	require.NoError(t, err)
	tags, err := AsTags(p)
	require.NoError(t, err)

	n, created := tags.Ensure("article")
	require.False(t, created)
	require.Equal(t, "XMLTag/article", ID(n))
	require.False(t, tags.Dirty())

	n, created = tags.Ensure("sidebar")
	require.True(t, created)
	require.Equal(t, "XMLTag/sidebar", ID(n))
	require.Equal(t, []string{"article", "sidebar"}, tags.Names())
	require.True(t, tags.Dirty())
}

var cmpFloat = cmp.Comparer(func(a, b float64) bool {
	d := a - b
	return d < 1e-9 && d > -1e-9
})
