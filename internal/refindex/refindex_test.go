package refindex

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/starford/idmlkit/internal/apperr"
	"github.com/starford/idmlkit/internal/part"
)

func mustParse(t *testing.T, name, xml string) *part.Part {
	t.Helper()
	p, err := part.Parse(name, []byte(xml), nil)
	require.NoError(t, err)
	return p
}

func TestBuildAndResolve(t *testing.T) {
	story := mustParse(t, "Stories/Story_S1.xml", `<Story Self="S1"><XMLElement Self="E1"/></Story>`)
	spread := mustParse(t, "Spreads/Spread_a.xml", `<Spread Self="sp"><TextFrame Self="tf" ParentStory="S1" ItemLayer="n"/></Spread>`)

	idx, err := Build([]*part.Part{story, spread})
	require.NoError(t, err)
	require.Equal(t, 4, idx.Len())
	require.Equal(t, []string{"E1", "S1", "sp", "tf"}, idx.IDs())

	ref, err := idx.Resolve("E1")
	require.NoError(t, err)
	require.Same(t, story, ref.Part)
	require.Equal(t, "XMLElement", ref.Node.Tag)

	_, err = idx.Resolve("nope")
	require.ErrorIs(t, err, apperr.ErrUnknownID)
}

func TestResolveAttr(t *testing.T) {
	story := mustParse(t, "Stories/Story_S1.xml", `<Story Self="S1"/>`)
	spread := mustParse(t, "Spreads/Spread_a.xml", `<Spread Self="sp"><TextFrame Self="tf" ParentStory="S1" ItemLayer="n" Other="gone"/></Spread>`)
	idx, err := Build([]*part.Part{story, spread})
	require.NoError(t, err)

	tf, _ := idx.Resolve("tf")

	ref, ok, err := idx.ResolveAttr(tf.Node, "ParentStory")
	require.NoError(t, err)
	require.True(t, ok)
	require.Same(t, story, ref.Part)

	_, ok, err = idx.ResolveAttr(tf.Node, "ItemLayer")
	require.NoError(t, err)
	require.False(t, ok)

	_, _, err = idx.ResolveAttr(tf.Node, "Other")
	require.ErrorIs(t, err, apperr.ErrUnknownID)
}

func TestBuild_DuplicateAcrossParts(t *testing.T) {
	a := mustParse(t, "Stories/Story_A.xml", `<Story Self="A"><XMLElement Self="X"/></Story>`)
	b := mustParse(t, "Stories/Story_B.xml", `<Story Self="B"><XMLElement Self="X"/></Story>`)

	_, err := Build([]*part.Part{a, b})
	var dup *apperr.DuplicateIDError
	require.ErrorAs(t, err, &dup)
	require.Equal(t, "X", dup.ID)
	require.Equal(t, "Stories/Story_A.xml", dup.Existing)
	require.Equal(t, "Stories/Story_B.xml", dup.Part)
}

func TestAddPart_DuplicateWithinPartLeavesIndexUntouched(t *testing.T) {
	idx := New()
	bad := mustParse(t, "Stories/Story_A.xml", `<Story Self="A"><XMLElement Self="X"/><XMLElement Self="X"/></Story>`)
	require.ErrorIs(t, idx.AddPart(bad), apperr.ErrDuplicateID)
	require.Equal(t, 0, idx.Len())
}

func TestRegisterAndUnregister(t *testing.T) {
	p := mustParse(t, "XML/Tags.xml", `<Tags><XMLTag Self="XMLTag/a"/></Tags>`)
	idx, err := Build([]*part.Part{p})
	require.NoError(t, err)

	n := p.Tree().CreateElement("XMLTag")
	n.CreateAttr("Self", "XMLTag/b")
	require.NoError(t, idx.Register(p, n))
	require.True(t, idx.Has("XMLTag/b"))
	require.ErrorIs(t, idx.Register(p, n), apperr.ErrDuplicateID)

	idx.Unregister("XMLTag/b")
	require.False(t, idx.Has("XMLTag/b"))
}

func TestRefreshAndRemovePart(t *testing.T) {
	a := mustParse(t, "Stories/Story_A.xml", `<Story Self="A"><XMLElement Self="X"/></Story>`)
	b := mustParse(t, "Stories/Story_B.xml", `<Story Self="B"/>`)
	idx, err := Build([]*part.Part{a, b})
	require.NoError(t, err)

	n := b.Tree().CreateElement("XMLElement")
	n.CreateAttr("Self", "Y")
	require.NoError(t, idx.Refresh(b))
	require.True(t, idx.Has("Y"))

	clash := b.Tree().CreateElement("XMLElement")
	clash.CreateAttr("Self", "X")
	require.ErrorIs(t, idx.Refresh(b), apperr.ErrDuplicateID)
	require.True(t, idx.Has("Y"), "previous entries restored")
	ref, _ := idx.Resolve("X")
	require.Same(t, a, ref.Part)

	idx.RemovePart(a)
	require.False(t, idx.Has("A"))
	require.False(t, idx.Has("X"))
	require.True(t, idx.Has("B"))
}
