package mcpserver

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/starford/idmlkit/internal/catalog"
	"github.com/starford/idmlkit/internal/docservice"
	"github.com/starford/idmlkit/internal/testutil"
)

func testServer(t *testing.T) (*Server, string) {
	t.Helper()

	dir, store := testutil.TestLibrary(t)
	testutil.WriteIDML(t, filepath.Join(dir, "doc.idml"), testutil.DefaultFiles())

	db, err := catalog.Open(testutil.TestDBPath(t))
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { db.Close() })

	logger := slog.New(slog.NewJSONHandler(io.Discard, nil))
	if err := catalog.Sync(db, store, logger); err != nil {
		t.Fatal(err)
	}

	svc := docservice.NewService(store, db, docservice.Options{ScratchDir: t.TempDir()}, logger)
	return New(svc, "test"), dir
}

func callTool(t *testing.T, srv *Server, name string, args map[string]any) *mcp.CallToolResult {
	t.Helper()
	ctx := context.Background()
	req := mcp.CallToolRequest{}
	req.Method = "tools/call"
	req.Params.Name = name
	req.Params.Arguments = args

	// mcp-go has no direct "call tool" helper; call the handlers.
	var result *mcp.CallToolResult
	var err error

	switch name {
	case "list_packages":
		result, err = srv.listPackages(ctx, req)
	case "inspect_package":
		result, err = srv.inspectPackage(ctx, req)
	case "search_stories":
		result, err = srv.searchStories(ctx, req)
	case "set_element_text":
		result, err = srv.setElementText(ctx, req)
	case "add_text_range":
		result, err = srv.addTextRange(ctx, req)
	case "import_package":
		result, err = srv.importPackage(ctx, req)
	case "get_package_layout":
		result, err = srv.getPackageLayout(ctx, req)
	default:
		t.Fatalf("unknown tool: %s", name)
	}

	if err != nil {
		t.Fatalf("tool %s error: %v", name, err)
	}
	return result
}

func resultText(r *mcp.CallToolResult) string {
	if len(r.Content) > 0 {
		if tc, ok := r.Content[0].(mcp.TextContent); ok {
			return tc.Text
		}
	}
	return ""
}

func TestListPackages(t *testing.T) {
	srv, _ := testServer(t)

	r := callTool(t, srv, "list_packages", map[string]any{})
	if r.IsError {
		t.Fatalf("list error: %s", resultText(r))
	}
	if !strings.Contains(resultText(r), `"path": "doc.idml"`) {
		t.Errorf("list = %s", resultText(r))
	}
}

func TestInspectAndSetElementText(t *testing.T) {
	srv, dir := testServer(t)

	r := callTool(t, srv, "inspect_package", map[string]any{"package": "doc.idml"})
	if r.IsError {
		t.Fatalf("inspect error: %s", resultText(r))
	}
	var detail docservice.PackageDetail
	if err := json.Unmarshal([]byte(resultText(r)), &detail); err != nil {
		t.Fatal(err)
	}
	if len(detail.Stories) != 2 {
		t.Fatalf("stories = %d", len(detail.Stories))
	}

	r = callTool(t, srv, "set_element_text", map[string]any{
		"package":    "doc.idml",
		"story_id":   "S1",
		"element_id": "E1",
		"text":       "from a tool",
		"if_match":   detail.Checksum,
	})
	if r.IsError {
		t.Fatalf("set error: %s", resultText(r))
	}
	story := testutil.ReadEntry(t, filepath.Join(dir, "doc.idml"), "Stories/Story_S1.xml")
	if !strings.Contains(story, "<Content>from a tool</Content>") {
		t.Errorf("story = %s", story)
	}

	// The checksum changed with the commit.
	r = callTool(t, srv, "set_element_text", map[string]any{
		"package": "doc.idml", "story_id": "S1", "element_id": "E1", "text": "again", "if_match": detail.Checksum,
	})
	if !r.IsError {
		t.Error("expected conflict with stale checksum")
	}
}

func TestSetElementText_UnknownElement(t *testing.T) {
	srv, _ := testServer(t)
	r := callTool(t, srv, "set_element_text", map[string]any{
		"package": "doc.idml", "story_id": "S2", "element_id": "E1", "text": "x",
	})
	if !r.IsError || !strings.Contains(resultText(r), "E1") {
		t.Errorf("result = %v %s", r.IsError, resultText(r))
	}
}

func TestAddTextRangeAndSearch(t *testing.T) {
	srv, _ := testServer(t)

	r := callTool(t, srv, "add_text_range", map[string]any{
		"package":    "doc.idml",
		"story_id":   "S7",
		"element_id": "E7",
		"tag":        "pullquote",
		"text":       "quotable words",
		"page_id":    "p2",
		"width":      120.0,
	})
	if r.IsError {
		t.Fatalf("add error: %s", resultText(r))
	}
	if !strings.Contains(resultText(r), `"frame_id": "tf_S7"`) {
		t.Errorf("add = %s", resultText(r))
	}

	r = callTool(t, srv, "search_stories", map[string]any{"query": "quotable"})
	if !strings.Contains(resultText(r), `"story_id": "S7"`) {
		t.Errorf("search = %s", resultText(r))
	}
}

func TestImportPackage_DataURI(t *testing.T) {
	srv, dir := testServer(t)
	data, err := os.ReadFile(testutil.NewIDML(t))
	if err != nil {
		t.Fatal(err)
	}
	uri := "data:application/vnd.adobe.indesign-idml-package;base64," + base64.StdEncoding.EncodeToString(data)

	r := callTool(t, srv, "import_package", map[string]any{"url": uri, "name": "imports/copy"})
	if r.IsError {
		t.Fatalf("import error: %s", resultText(r))
	}
	if _, err := os.Stat(filepath.Join(dir, "imports", "copy.idml")); err != nil {
		t.Errorf("imported archive missing: %v", err)
	}

	r = callTool(t, srv, "import_package", map[string]any{"url": uri})
	if r.IsError {
		t.Fatalf("import without name: %s", resultText(r))
	}
}

func TestImportPackage_Rejected(t *testing.T) {
	srv, _ := testServer(t)

	cases := map[string]string{
		"not zip":   "data:application/zip;base64," + base64.StdEncoding.EncodeToString([]byte("hello")),
		"bad mime":  "data:image/png;base64,AAAA",
		"no base64": "data:application/zip,PK",
		"loopback":  "http://127.0.0.1/doc.idml",
		"metadata":  "http://169.254.169.254/latest",
		"scheme":    "ftp://example.com/doc.idml",
	}
	for name, uri := range cases {
		t.Run(name, func(t *testing.T) {
			r := callTool(t, srv, "import_package", map[string]any{"url": uri})
			if !r.IsError {
				t.Errorf("expected error for %s", uri)
			}
		})
	}
}

func TestSanitizeName(t *testing.T) {
	cases := map[string]string{
		"spring.idml":       "spring.idml",
		"../../etc/passwd":  "etc/passwd.idml",
		"issues/May 1.IDML": "issues/May_1.IDML",
		`a\b\c.idml`:        "a/b/c.idml",
		"noext":             "noext.idml",
	}
	for in, want := range cases {
		if got := sanitizeName(in); got != want {
			t.Errorf("sanitizeName(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestGetPackageLayout(t *testing.T) {
	srv, _ := testServer(t)
	r := callTool(t, srv, "get_package_layout", map[string]any{})
	if !strings.Contains(resultText(r), "designmap.xml") {
		t.Error("layout contract missing designmap")
	}

	contents, err := srv.readLayoutResource(context.Background(), mcp.ReadResourceRequest{})
	if err != nil || len(contents) != 1 {
		t.Fatalf("resource = %v, %v", contents, err)
	}
}
