package mcp

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/google/jsonschema-go/jsonschema"
	"github.com/m-mizutani/concierge/pkg/model"
	"github.com/m-mizutani/concierge/pkg/repository"
	"github.com/m-mizutani/concierge/pkg/utils/logging"
	"github.com/m-mizutani/goerr/v2"
	"github.com/modelcontextprotocol/go-sdk/mcp"
)

const maxListLimit = 100

// Reporter is the analytics read side exposed over MCP
type Reporter interface {
	Show(ctx context.Context, sessionID model.SessionID) (*model.ConversationAnalytics, error)
	List(ctx context.Context, offset, limit int) ([]*model.ConversationAnalytics, error)
}

// Server exposes conversation analytics as MCP tools
type Server struct {
	reporter Reporter
	server   *mcp.Server
}

type getAnalyticsParams struct {
	SessionID string `json:"session_id" jsonschema:"Session ID of the visitor conversation"`
}

type listAnalyticsParams struct {
	Offset int `json:"offset,omitempty" jsonschema:"Number of records to skip, newest first"`
	Limit  int `json:"limit,omitempty" jsonschema:"Maximum number of records to return (1-100, default 20)"`
}

// NewServer creates an MCP server with the analytics tools registered
func NewServer(reporter Reporter, version string) (*Server, error) {
	s := &Server{
		reporter: reporter,
		server: mcp.NewServer(&mcp.Implementation{
			Name:    "concierge",
			Version: version,
		}, nil),
	}

	listSchema, err := listAnalyticsSchema()
	if err != nil {
		return nil, err
	}

	mcp.AddTool(s.server, &mcp.Tool{
		Name:        "get_conversation_analytics",
		Description: "Get engagement analytics of one visitor session: topics, pain points, buying signals, flags and engagement score.",
	}, s.getAnalytics)

	mcp.AddTool(s.server, &mcp.Tool{
		Name:        "list_conversation_analytics",
		Description: "List engagement analytics of visitor sessions, most recently updated first.",
		InputSchema: listSchema,
	}, s.listAnalytics)

	return s, nil
}

// listAnalyticsSchema rejects negative paging values before the handler runs.
// Limits above maxListLimit are clamped by the handler instead.
func listAnalyticsSchema() (*jsonschema.Schema, error) {
	schema, err := jsonschema.For[listAnalyticsParams](nil)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to infer list_conversation_analytics schema")
	}

	zero := 0.0
	for _, name := range []string{"offset", "limit"} {
		prop, ok := schema.Properties[name]
		if !ok {
			return nil, goerr.New("property missing in inferred schema", goerr.V("property", name))
		}
		prop.Minimum = &zero
	}
	return schema, nil
}

// Run serves over stdin/stdout until ctx is canceled or the client disconnects
func (s *Server) Run(ctx context.Context) error {
	if err := s.server.Run(ctx, &mcp.StdioTransport{}); err != nil {
		return goerr.Wrap(err, "mcp server stopped")
	}
	return nil
}

// Connect serves one session over transport
func (s *Server) Connect(ctx context.Context, transport mcp.Transport) (*mcp.ServerSession, error) {
	session, err := s.server.Connect(ctx, transport, nil)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to connect mcp session")
	}
	return session, nil
}

func (s *Server) getAnalytics(ctx context.Context, req *mcp.CallToolRequest, params getAnalyticsParams) (*mcp.CallToolResult, any, error) {
	if params.SessionID == "" {
		return errorResult("session_id is required"), nil, nil
	}

	a, err := s.reporter.Show(ctx, model.SessionID(params.SessionID))
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return errorResult("no analytics for session " + params.SessionID), nil, nil
		}
		logging.From(ctx).Error("get_conversation_analytics failed", logging.ErrAttr(err))
		return nil, nil, err
	}

	return jsonResult(a)
}

func (s *Server) listAnalytics(ctx context.Context, req *mcp.CallToolRequest, params listAnalyticsParams) (*mcp.CallToolResult, any, error) {
	limit := params.Limit
	if limit <= 0 {
		limit = 20
	}
	limit = min(limit, maxListLimit)

	list, err := s.reporter.List(ctx, max(params.Offset, 0), limit)
	if err != nil {
		logging.From(ctx).Error("list_conversation_analytics failed", logging.ErrAttr(err))
		return nil, nil, err
	}

	return jsonResult(map[string]any{
		"offset":   max(params.Offset, 0),
		"count":    len(list),
		"sessions": list,
	})
}

func jsonResult(v any) (*mcp.CallToolResult, any, error) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return nil, nil, goerr.Wrap(err, "failed to marshal tool result")
	}
	return &mcp.CallToolResult{
		Content: []mcp.Content{&mcp.TextContent{Text: string(data)}},
	}, nil, nil
}

func errorResult(msg string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		IsError: true,
		Content: []mcp.Content{&mcp.TextContent{Text: msg}},
	}
}
