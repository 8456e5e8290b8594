package docs

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"

	"github.com/felixgeelhaar/mcp-bridge/engine"
	"github.com/felixgeelhaar/mcp-bridge/protocol"
)

// ServerName is reported in the initialize result.
const ServerName = "rust-docs"

const instructions = "This server provides tools for looking up Rust crate documentation. " +
	"Use lookup_crate for a crate's front page, lookup_item for a specific module, type or function, " +
	"and search_crates to find crates by keyword."

// Tool names.
const (
	ToolLookupCrate  = "lookup_crate"
	ToolSearchCrates = "search_crates"
	ToolLookupItem   = "lookup_item"
)

type tool struct {
	Name        string         `json:"name"`
	Description string         `json:"description"`
	InputSchema map[string]any `json:"inputSchema"`
}

var tools = []tool{
	{
		Name:        ToolLookupCrate,
		Description: "Look up documentation for a Rust crate",
		InputSchema: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"crate_name": map[string]any{"type": "string", "description": "The name of the crate to look up"},
				"version":    map[string]any{"type": "string", "description": "The version of the crate (optional, defaults to latest)"},
			},
			"required": []string{"crate_name"},
		},
	},
	{
		Name:        ToolSearchCrates,
		Description: "Search for Rust crates on crates.io",
		InputSchema: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"query": map[string]any{"type": "string", "description": "The search query"},
				"limit": map[string]any{
					"type":        "integer",
					"description": "Maximum number of results to return (optional, defaults to 10, max 100)",
					"minimum":     1,
					"maximum":     MaxSearchLimit,
				},
			},
			"required": []string{"query"},
		},
	},
	{
		Name:        ToolLookupItem,
		Description: "Look up documentation for a specific item in a Rust crate",
		InputSchema: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"crate_name": map[string]any{"type": "string", "description": "The name of the crate"},
				"item_path":  map[string]any{"type": "string", "description": "Path to the item (e.g., 'std::vec::Vec')"},
				"version":    map[string]any{"type": "string", "description": "The version of the crate (optional, defaults to latest)"},
			},
			"required": []string{"crate_name", "item_path"},
		},
	},
}

// Handler answers MCP requests for the documentation tools. One Handler may
// serve any number of sessions concurrently.
type Handler struct {
	client  *Client
	version string
	log     *slog.Logger
}

// HandlerOption configures a Handler.
type HandlerOption func(*Handler)

// WithVersion sets the version reported in serverInfo.
func WithVersion(v string) HandlerOption {
	return func(h *Handler) {
		h.version = v
	}
}

// WithLogger sets the logger. If not provided, logs are discarded.
func WithLogger(l *slog.Logger) HandlerOption {
	return func(h *Handler) {
		h.log = l
	}
}

// NewHandler creates a Handler answering from client.
func NewHandler(client *Client, opts ...HandlerOption) *Handler {
	h := &Handler{client: client, version: "0.1.0"}
	for _, opt := range opts {
		opt(h)
	}
	if h.log == nil {
		h.log = slog.New(slog.DiscardHandler)
	}
	return h
}

// Factory returns an engine.Factory producing JSON-RPC engines backed by h.
func (h *Handler) Factory(opts ...engine.Option) engine.Factory {
	return func() engine.Engine {
		return engine.NewJSONRPC(h.Handle, opts...)
	}
}

// Handle dispatches one request.
func (h *Handler) Handle(ctx context.Context, req *protocol.Request) (*protocol.Response, error) {
	switch req.Method {
	case protocol.MethodInitialize:
		return h.handleInitialize(req)
	case protocol.MethodInitialized, protocol.MethodCancelled:
		return nil, nil
	case protocol.MethodPing:
		return protocol.NewResponse(req.ID, map[string]any{}), nil
	case protocol.MethodToolsList:
		return protocol.NewResponse(req.ID, map[string]any{"tools": tools}), nil
	case protocol.MethodToolsCall:
		return h.handleToolsCall(ctx, req)
	case protocol.MethodResourcesList:
		return protocol.NewResponse(req.ID, map[string]any{"resources": []any{}}), nil
	case protocol.MethodResourcesRead:
		return nil, protocol.NewNotFound("resource not found")
	case protocol.MethodPromptsList:
		return protocol.NewResponse(req.ID, map[string]any{"prompts": []any{}}), nil
	case protocol.MethodPromptsGet:
		return nil, protocol.NewNotFound("prompt not found")
	default:
		return nil, protocol.NewMethodNotFound(req.Method)
	}
}

func (h *Handler) handleInitialize(req *protocol.Request) (*protocol.Response, error) {
	result := map[string]any{
		"protocolVersion": protocol.MCPVersion,
		"serverInfo": map[string]any{
			"name":    ServerName,
			"version": h.version,
		},
		"capabilities": map[string]any{
			"tools": map[string]any{},
		},
		"instructions": instructions,
	}
	return protocol.NewResponse(req.ID, result), nil
}

type callParams struct {
	Name      string          `json:"name"`
	Arguments json.RawMessage `json:"arguments"`
	Meta      struct {
		ProgressToken json.RawMessage `json:"progressToken"`
	} `json:"_meta"`
}

type toolArgs struct {
	CrateName string `json:"crate_name"`
	Version   string `json:"version"`
	ItemPath  string `json:"item_path"`
	Query     string `json:"query"`
	Limit     *int   `json:"limit"`
}

func (h *Handler) handleToolsCall(ctx context.Context, req *protocol.Request) (*protocol.Response, error) {
	var params callParams
	if err := json.Unmarshal(req.Params, &params); err != nil {
		return nil, protocol.NewInvalidParams(err.Error())
	}

	var args toolArgs
	if len(params.Arguments) > 0 && string(params.Arguments) != "null" {
		if err := json.Unmarshal(params.Arguments, &args); err != nil {
			return nil, protocol.NewInvalidParams("invalid arguments: " + err.Error())
		}
	}

	var call func(context.Context) (string, error)
	switch params.Name {
	case ToolLookupCrate:
		if args.CrateName == "" {
			return nil, protocol.NewInvalidParams("crate_name is required")
		}
		call = func(ctx context.Context) (string, error) {
			return h.client.LookupCrate(ctx, args.CrateName, args.Version)
		}
	case ToolSearchCrates:
		if args.Query == "" {
			return nil, protocol.NewInvalidParams("query is required")
		}
		limit := 0
		if args.Limit != nil {
			limit = *args.Limit
		}
		call = func(ctx context.Context) (string, error) {
			return h.client.SearchCrates(ctx, args.Query, limit)
		}
	case ToolLookupItem:
		if args.CrateName == "" {
			return nil, protocol.NewInvalidParams("crate_name is required")
		}
		if args.ItemPath == "" {
			return nil, protocol.NewInvalidParams("item_path is required")
		}
		call = func(ctx context.Context) (string, error) {
			return h.client.LookupItem(ctx, args.CrateName, args.ItemPath, args.Version)
		}
	default:
		return nil, protocol.NewNotFound("Tool " + params.Name + " not found")
	}

	p := newProgress(ctx, params.Meta.ProgressToken)
	if err := p.report(0, 1, "fetching"); err != nil {
		h.log.WarnContext(ctx, "docs.progress.fail", slog.String("err", err.Error()))
	}

	text, err := call(ctx)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		if !errors.Is(err, ErrUpstream) {
			return nil, err
		}
		h.log.InfoContext(ctx, "docs.tool.fail",
			slog.String("tool", params.Name),
			slog.String("session_id", protocol.SessionIDFromContext(ctx)),
			slog.String("err", err.Error()),
		)
		return protocol.NewResponse(req.ID, toolResult("Failed to fetch documentation: "+err.Error(), true)), nil
	}

	if err := p.report(1, 1, "done"); err != nil {
		h.log.WarnContext(ctx, "docs.progress.fail", slog.String("err", err.Error()))
	}
	return protocol.NewResponse(req.ID, toolResult(text, false)), nil
}

func toolResult(text string, isError bool) map[string]any {
	result := map[string]any{
		"content": []map[string]any{
			{"type": "text", "text": text},
		},
	}
	if isError {
		result["isError"] = true
	}
	return result
}
