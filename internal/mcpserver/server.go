// Package mcpserver provides an MCP (Model Context Protocol) server
// that exposes idmlkit tools for LLM integration via stdio transport.
package mcpserver

import (
	"context"
	"encoding/json"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/starford/idmlkit/internal/docservice"
)

const layoutResourceURI = "idmlkit://package-layout"

// Server wraps the MCP server with idmlkit tools.
type Server struct {
	mcp *server.MCPServer
	svc *docservice.Service
}

// New creates a new MCP server with all idmlkit tools registered.
func New(svc *docservice.Service, version string) *Server {
	s := &Server{svc: svc}

	s.mcp = server.NewMCPServer(
		"idmlkit",
		version,
		server.WithToolCapabilities(false),
		server.WithResourceCapabilities(false, false),
	)

	s.mcp.AddTool(mcp.NewTool("list_packages",
		mcp.WithDescription("List the IDML packages in the library with page, spread and story counts."),
		mcp.WithNumber("limit", mcp.Description("Page size (default 50)")),
		mcp.WithNumber("offset", mcp.Description("Page offset")),
	), s.listPackages)

	s.mcp.AddTool(mcp.NewTool("inspect_package",
		mcp.WithDescription("Describe one package: layers, spreads, pages with coordinates and face, "+
			"page items, stories with their tagged elements and text, and the archive checksum."),
		mcp.WithString("package", mcp.Required(), mcp.Description("Library-relative package path (e.g. issues/spring.idml)")),
	), s.inspectPackage)

	s.mcp.AddTool(mcp.NewTool("search_stories",
		mcp.WithDescription("Full-text search through the story text of every package."),
		mcp.WithString("query", mcp.Required(), mcp.Description("Search query string")),
	), s.searchStories)

	s.mcp.AddTool(mcp.NewTool("set_element_text",
		mcp.WithDescription("Replace the text of one tagged element in a story. The edit is atomic: "+
			"on any failure the package is left unchanged."),
		mcp.WithString("package", mcp.Required(), mcp.Description("Library-relative package path")),
		mcp.WithString("story_id", mcp.Required(), mcp.Description("Story id (Self attribute of the Story)")),
		mcp.WithString("element_id", mcp.Required(), mcp.Description("XMLElement id inside that story")),
		mcp.WithString("text", mcp.Required(), mcp.Description("New plain text; newlines become line breaks")),
		mcp.WithString("if_match", mcp.Description("Archive checksum from inspect_package")),
	), s.setElementText)

	s.mcp.AddTool(mcp.NewTool("add_text_range",
		mcp.WithDescription("Add a new story holding one tagged element with the given text. "+
			"With page_id, also place a text frame for it centered on that page. "+
			"Read the package layout contract first via get_package_layout."),
		mcp.WithString("package", mcp.Required(), mcp.Description("Library-relative package path")),
		mcp.WithString("story_id", mcp.Required(), mcp.Description("New story id, unique in the package")),
		mcp.WithString("element_id", mcp.Required(), mcp.Description("New element id, unique in the package")),
		mcp.WithString("tag", mcp.Required(), mcp.Description("XML tag name for the element")),
		mcp.WithString("text", mcp.Description("Element text")),
		mcp.WithString("page_id", mcp.Description("Page to center a text frame on")),
		mcp.WithString("frame_id", mcp.Description("Text frame id (default tf_<story_id>)")),
		mcp.WithNumber("width", mcp.Description("Frame width in points (default 200)")),
		mcp.WithNumber("height", mcp.Description("Frame height in points (default 100)")),
		mcp.WithString("if_match", mcp.Description("Archive checksum from inspect_package")),
	), s.addTextRange)

	s.mcp.AddTool(mcp.NewTool("import_package",
		mcp.WithDescription("Import an IDML package into the library from a data URI or an http(s) URL."),
		mcp.WithString("url", mcp.Required(), mcp.Description("data:application/vnd.adobe.indesign-idml-package;base64,... or http(s) URL")),
		mcp.WithString("name", mcp.Description("Library path to store it under (must end with .idml)")),
	), s.importPackage)

	s.mcp.AddTool(mcp.NewTool("get_package_layout",
		mcp.WithDescription("Returns the idmlkit package layout contract: parts, id rules, coordinates. "+
			"Call this before editing packages."),
	), s.getPackageLayout)

	// Resource: package layout contract.
	s.mcp.AddResource(
		mcp.NewResource(layoutResourceURI, "Package Layout Contract",
			mcp.WithResourceDescription("How IDML packages are structured and addressed by idmlkit tools."),
			mcp.WithMIMEType("text/markdown"),
		),
		s.readLayoutResource,
	)

	return s
}

// ServeStdio starts the MCP server on stdin/stdout.
func (s *Server) ServeStdio() error {
	return server.ServeStdio(s.mcp)
}

// MCPServer returns the underlying server for testing.
func (s *Server) MCPServer() *server.MCPServer {
	return s.mcp
}

func jsonResult(v any) (*mcp.CallToolResult, error) {
	out, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return mcp.NewToolResultText(string(out)), nil
}

func (s *Server) listPackages(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	limit := req.GetInt("limit", 50)
	offset := req.GetInt("offset", 0)
	rows, total, err := s.svc.ListPackages(ctx, limit, offset)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return jsonResult(map[string]any{"packages": rows, "total": total})
}

func (s *Server) inspectPackage(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	name, err := req.RequireString("package")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	detail, err := s.svc.GetPackage(ctx, name)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return jsonResult(detail)
}

func (s *Server) searchStories(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	query, err := req.RequireString("query")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	results, err := s.svc.Search(ctx, query, 20)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return jsonResult(results)
}

func (s *Server) setElementText(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	name, err := req.RequireString("package")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	storyID, err := req.RequireString("story_id")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	elementID, err := req.RequireString("element_id")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	text, err := req.RequireString("text")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	res, err := s.svc.SetElementText(ctx, name, storyID, elementID, text, req.GetString("if_match", ""))
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return jsonResult(res)
}

func (s *Server) addTextRange(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	name, err := req.RequireString("package")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	tr := docservice.TextRangeRequest{
		StoryID:   req.GetString("story_id", ""),
		ElementID: req.GetString("element_id", ""),
		Tag:       req.GetString("tag", ""),
		Text:      req.GetString("text", ""),
		PageID:    req.GetString("page_id", ""),
		FrameID:   req.GetString("frame_id", ""),
		Width:     req.GetFloat("width", 0),
		Height:    req.GetFloat("height", 0),
	}
	res, err := s.svc.AddTextRange(ctx, name, tr, req.GetString("if_match", ""))
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return jsonResult(res)
}

func (s *Server) getPackageLayout(_ context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return mcp.NewToolResultText(PackageLayoutContract), nil
}

func (s *Server) readLayoutResource(_ context.Context, _ mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
	return []mcp.ResourceContents{
		mcp.TextResourceContents{
			URI:      layoutResourceURI,
			MIMEType: "text/markdown",
			Text:     PackageLayoutContract,
		},
	}, nil
}
