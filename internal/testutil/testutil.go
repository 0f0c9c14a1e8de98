// Package testutil provides shared test helpers for building IDML fixtures
// and library directories.
package testutil

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/starford/idmlkit/internal/archive"
	"github.com/starford/idmlkit/internal/storage"
)

const designmapXML = `<?xml version="1.0" encoding="UTF-8" standalone="yes"?>
<?aid style="50" type="document" readerVersion="6.0" featureSet="257" product="7.5(142)" ?>
<Document xmlns:idPkg="http://ns.adobe.com/AdobeInDesign/idml/1.0/packaging" DOMVersion="7.5" Self="d" StoryList="S1 S2" ActiveLayer="L1">
	<Layer Self="L1" Name="Layer 1" Visible="true" Locked="false"/>
	<Layer Self="L2" Name="Background" Visible="true" Locked="true"/>
	<idPkg:Tags src="XML/Tags.xml"/>
	<idPkg:Spread src="Spreads/Spread_sp1.xml"/>
	<idPkg:BackingStory src="XML/BackingStory.xml"/>
	<idPkg:Story src="Stories/Story_S1.xml"/>
	<idPkg:Story src="Stories/Story_S2.xml"/>
</Document>
`

const spreadXML = `<?xml version="1.0" encoding="UTF-8" standalone="yes"?>
<idPkg:Spread xmlns:idPkg="http://ns.adobe.com/AdobeInDesign/idml/1.0/packaging" DOMVersion="7.5">
	<Spread Self="sp1" PageCount="2" BindingLocation="1" ItemTransform="1 0 0 1 0 0">
		<Page Self="p1" Name="1" GeometricBounds="0 0 841.89 595.28" ItemTransform="1 0 0 1 -595.28 -420.945"/>
		<Page Self="p2" Name="2" GeometricBounds="0 0 841.89 595.28" ItemTransform="1 0 0 1 0 -420.945"/>
		<TextFrame Self="tf1" ParentStory="S2" PreviousTextFrame="n" NextTextFrame="n" ContentType="TextType" ItemLayer="L1" ItemTransform="1 0 0 1 50 -300"/>
	</Spread>
</idPkg:Spread>
`

const story1XML = `<?xml version="1.0" encoding="UTF-8" standalone="yes"?>
<idPkg:Story xmlns:idPkg="http://ns.adobe.com/AdobeInDesign/idml/1.0/packaging" DOMVersion="7.5">
	<Story Self="S1" AppliedTOCStyle="n" TrackChanges="false" StoryTitle="$ID/" AppliedNamedGrid="n">
		<XMLElement Self="E1" MarkupTag="XMLTag/article"/>
	</Story>
</idPkg:Story>
`

const story2XML = `<?xml version="1.0" encoding="UTF-8" standalone="yes"?>
<idPkg:Story xmlns:idPkg="http://ns.adobe.com/AdobeInDesign/idml/1.0/packaging" DOMVersion="7.5">
	<Story Self="S2" AppliedTOCStyle="n" TrackChanges="false" StoryTitle="$ID/" AppliedNamedGrid="n">
		<XMLElement Self="E2" MarkupTag="XMLTag/title">
			<ParagraphStyleRange AppliedParagraphStyle="ParagraphStyle/$ID/NormalParagraphStyle">
				<CharacterStyleRange AppliedCharacterStyle="CharacterStyle/$ID/[No character style]">
					<Content>Lorem ipsum</Content>
				</CharacterStyleRange>
			</ParagraphStyleRange>
		</XMLElement>
	</Story>
</idPkg:Story>
`

const tagsXML = `<?xml version="1.0" encoding="UTF-8" standalone="yes"?>
<idPkg:Tags xmlns:idPkg="http://ns.adobe.com/AdobeInDesign/idml/1.0/packaging" DOMVersion="7.5">
	<XMLTag Self="XMLTag/Root" Name="Root"/>
	<XMLTag Self="XMLTag/article" Name="article"/>
	<XMLTag Self="XMLTag/title" Name="title"/>
</idPkg:Tags>
`

const backingStoryXML = `<?xml version="1.0" encoding="UTF-8" standalone="yes"?>
<idPkg:BackingStory xmlns:idPkg="http://ns.adobe.com/AdobeInDesign/idml/1.0/packaging" DOMVersion="7.5">
	<XmlStory Self="bs1" AppliedTOCStyle="n">
		<XMLElement Self="root1" MarkupTag="XMLTag/Root"/>
	</XmlStory>
</idPkg:BackingStory>
`

const containerXML = `<?xml version="1.0" encoding="UTF-8" standalone="yes"?>
<container version="1.0" xmlns="urn:oasis:names:tc:opendocument:xmlns:container">
	<rootfiles>
		<rootfile full-path="designmap.xml" media-type="text/xml"/>
	</rootfiles>
</container>
`

// DefaultFiles returns the entries of a small two-page document: layer L1
// active, spread sp1 with pages p1 (verso) and p2 (recto), story S1 holding
// an empty element E1, story S2 holding E2 with "Lorem ipsum" threaded into
// text frame tf1.
func DefaultFiles() map[string]string {
	return map[string]string{
		archive.MimetypeEntry:    archive.Mimetype,
		"designmap.xml":          designmapXML,
		"Spreads/Spread_sp1.xml": spreadXML,
		"Stories/Story_S1.xml":   story1XML,
		"Stories/Story_S2.xml":   story2XML,
		"XML/Tags.xml":           tagsXML,
		"XML/BackingStory.xml":   backingStoryXML,
		"META-INF/container.xml": containerXML,
	}
}

// WriteIDML builds an archive at path from files.
func WriteIDML(t *testing.T, path string, files map[string]string) string {
	t.Helper()
	src := t.TempDir()
	for name, content := range files {
		p := filepath.Join(src, filepath.FromSlash(name))
		if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
			t.Fatal(err)
		}
		if err := os.WriteFile(p, []byte(content), 0o644); err != nil {
			t.Fatal(err)
		}
	}
	if err := (archive.ZipCodec{}).Build(src, path); err != nil {
		t.Fatalf("build fixture: %v", err)
	}
	return path
}

// NewIDML writes the default fixture as doc.idml in a fresh directory.
func NewIDML(t *testing.T) string {
	t.Helper()
	return WriteIDML(t, filepath.Join(t.TempDir(), "doc.idml"), DefaultFiles())
}

// TestLibrary creates a temporary library directory with a storage.Provider.
func TestLibrary(t *testing.T) (string, *storage.FS) {
	t.Helper()
	dir := t.TempDir()
	store, err := storage.NewFS(dir)
	if err != nil {
		t.Fatal(err)
	}
	return dir, store
}

// TestDBPath returns a database file path that is removed after the test.
func TestDBPath(t *testing.T) string {
	t.Helper()
	f, err := os.CreateTemp("", "idmlkit-test-*.db")
	if err != nil {
		t.Fatal(err)
	}
	_ = f.Close()
	t.Cleanup(func() { _ = os.Remove(f.Name()) })
	return f.Name()
}

// ReadEntry returns one entry of an archive on disk.
func ReadEntry(t *testing.T, archivePath, name string) string {
	t.Helper()
	r, err := archive.OpenReader(archivePath)
	if err != nil {
		t.Fatalf("open %s: %v", archivePath, err)
	}
	defer r.Close()
	data, err := r.ReadFile(name)
	if err != nil {
		t.Fatalf("read %s: %v", name, err)
	}
	return string(data)
}
