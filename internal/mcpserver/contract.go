package mcpserver

// PackageLayoutContract explains how an IDML archive is laid out and how the
// idmlkit tools address its parts. Tool callers should read it before
// editing.
const PackageLayoutContract = `# idmlkit Package Layout

An IDML package is a zip archive of XML parts. idmlkit edits it through a
transaction: the archive is extracted, changed, and repacked over the
original only when every step succeeds. A failed edit leaves the archive
byte-for-byte unchanged.

## Parts

| Entry                      | Holds                                          |
|----------------------------|------------------------------------------------|
| ` + "`mimetype`" + `                 | Always first, stored, never edited.            |
| ` + "`designmap.xml`" + `            | Layers, active layer, list of every part.      |
| ` + "`Spreads/Spread_<id>.xml`" + `  | Pages and page items (text frames) of a spread.|
| ` + "`Stories/Story_<id>.xml`" + `   | Story text, split into tagged XML elements.    |
| ` + "`XML/Tags.xml`" + `             | Declared XML tag names.                        |

## Ids

- Every node with a ` + "`Self`" + ` attribute has a package-wide unique id.
- Adding a story or element whose id already exists anywhere in the package
  fails with a duplicate id error.
- Element ids are looked up within their story: ` + "`set_element_text`" + ` on an
  element that lives in another story fails with an unknown id error.
- The value ` + "`n`" + ` in a reference attribute means "no reference".

## Pages and coordinates

Page coordinates are in points, relative to the spread origin. Pages left
of the origin are **verso**, pages at or right of it are **recto**.
` + "`add_text_range`" + ` with ` + "`page_id`" + ` centers a text frame on that page, on the
active layer, threaded to the new story.

## Concurrency

` + "`inspect_package`" + ` returns the archive checksum. Pass it as ` + "`if_match`" + ` to
edit tools to refuse the edit when someone else changed the archive first.

## Text

Element text is plain. A newline becomes a line break inside the element.
`
