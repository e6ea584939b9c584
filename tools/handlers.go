package tools

import (
	"context"
	"fmt"
	"log/slog"
	"runtime/debug"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/olgasafonova/mediawiki-mcp-server/internal/gateway"
	"github.com/olgasafonova/mediawiki-mcp-server/metrics"
	"github.com/olgasafonova/mediawiki-mcp-server/tracing"
	"github.com/olgasafonova/mediawiki-mcp-server/wiki"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

// HandlerRegistry provides type-safe tool registration by mapping
// tool names to their concrete handler implementations.
type HandlerRegistry struct {
	service *wiki.Service
	logger  *slog.Logger
}

// NewHandlerRegistry creates a new handler registry.
func NewHandlerRegistry(service *wiki.Service, logger *slog.Logger) *HandlerRegistry {
	return &HandlerRegistry{
		service: service,
		logger:  logger,
	}
}

// RegisterAll registers all tools with the MCP server.
func (h *HandlerRegistry) RegisterAll(server *mcp.Server) {
	for _, spec := range AllTools {
		h.registerByName(server, spec)
	}
	h.logger.Info("Registered all tools", "count", len(AllTools))
}

// registerByName dispatches to the correct typed registration function.
func (h *HandlerRegistry) registerByName(server *mcp.Server, spec ToolSpec) {
	tool := h.buildTool(spec)

	switch spec.Method {
	// Search tools
	case "SearchPage":
		register(h, server, tool, spec, h.service.SearchPage)
	case "SearchPageByPrefix":
		register(h, server, tool, spec, h.service.SearchPageByPrefix)

	// Read tools
	case "GetPage":
		register(h, server, tool, spec, h.service.GetPage)
	case "GetPageHistory":
		register(h, server, tool, spec, h.service.GetPageHistory)
	case "GetRevision":
		register(h, server, tool, spec, h.service.GetRevision)
	case "GetFile":
		register(h, server, tool, spec, h.service.GetFile)

	// Write tools
	case "CreatePage":
		register(h, server, tool, spec, h.service.CreatePage)
	case "UpdatePage":
		register(h, server, tool, spec, h.service.UpdatePage)
	case "DeletePage":
		register(h, server, tool, spec, h.service.DeletePage)
	case "UploadFile":
		register(h, server, tool, spec, h.service.UploadFile)

	// Wiki management tools
	case "AddWiki":
		register(h, server, tool, spec, h.service.AddWiki)
	case "RemoveWiki":
		register(h, server, tool, spec, h.service.RemoveWiki)
	case "SetWiki":
		register(h, server, tool, spec, h.service.SetWiki)

	default:
		h.logger.Error("Unknown method, tool not registered", "method", spec.Method, "tool", spec.Name)
	}
}

// buildTool creates an mcp.Tool from a ToolSpec.
func (h *HandlerRegistry) buildTool(spec ToolSpec) *mcp.Tool {
	annotations := &mcp.ToolAnnotations{
		Title:          spec.Title,
		ReadOnlyHint:   spec.ReadOnly,
		IdempotentHint: spec.Idempotent,
	}
	if spec.Destructive {
		annotations.DestructiveHint = ptr(true)
	}
	if spec.OpenWorld {
		annotations.OpenWorldHint = ptr(true)
	}

	return &mcp.Tool{
		Name:        spec.Name,
		Description: spec.Description,
		Annotations: annotations,
	}
}

// register is a generic helper that registers a tool with the MCP server.
// It wraps the service method with panic recovery, metrics, tracing, and logging.
func register[Args, Result any](
	h *HandlerRegistry,
	server *mcp.Server,
	tool *mcp.Tool,
	spec ToolSpec,
	method func(context.Context, Args) (Result, error),
) {
	mcp.AddTool(server, tool, func(ctx context.Context, req *mcp.CallToolRequest, args Args) (*mcp.CallToolResult, Result, error) {
		return invoke(ctx, h, spec, method, args)
	})
}

// invoke runs one tool call. A panic inside method is reported as a tool
// error instead of taking down the session.
func invoke[Args, Result any](
	ctx context.Context,
	h *HandlerRegistry,
	spec ToolSpec,
	method func(context.Context, Args) (Result, error),
	args Args,
) (_ *mcp.CallToolResult, result Result, err error) {
	defer h.recoverPanic(spec.Name, &err)

	// Start trace span
	ctx, span := tracing.StartSpan(ctx, "mcp.tool."+spec.Name)
	defer span.End()

	tracing.AddToolAttributes(span, spec.Name, spec.Category)
	span.SetAttributes(attribute.Bool("mcp.tool.readonly", spec.ReadOnly))

	// Track in-flight requests
	metrics.RequestInFlight.WithLabelValues(spec.Name).Inc()
	defer metrics.RequestInFlight.WithLabelValues(spec.Name).Dec()

	start := time.Now()
	result, err = method(ctx, args)
	duration := time.Since(start).Seconds()

	span.SetAttributes(attribute.Float64("mcp.tool.duration_seconds", duration))

	if err != nil {
		tracing.RecordError(span, err)
		metrics.RecordRequest(spec.Name, duration, false)
		h.logger.Warn("Tool failed", "tool", spec.Name, "error", err)
		var zero Result
		return nil, zero, fmt.Errorf("%s failed: %w", spec.Name, err)
	}

	span.SetStatus(codes.Ok, "")
	metrics.RecordRequest(spec.Name, duration, true)
	h.logExecution(spec, args, result)
	return nil, result, nil
}

// recoverPanic recovers from panics in tool handlers and turns them into
// an error in *errp.
func (h *HandlerRegistry) recoverPanic(toolName string, errp *error) {
	if rec := recover(); rec != nil {
		metrics.PanicsRecovered.WithLabelValues(toolName).Inc()
		h.logger.Error("Panic recovered",
			"tool", toolName,
			"panic", rec,
			"stack", string(debug.Stack()))
		if errp != nil {
			*errp = fmt.Errorf("%s failed: internal error", toolName)
		}
	}
}

// logExecution logs tool execution details.
func (h *HandlerRegistry) logExecution(spec ToolSpec, args, result any) {
	attrs := []any{"tool", spec.Name, "category", spec.Category}

	// Add extractable fields from args using type assertions
	switch a := args.(type) {
	case wiki.SearchPageArgs:
		attrs = append(attrs, "query", a.Query, "wiki_url", a.WikiURL)
	case wiki.SearchPageByPrefixArgs:
		attrs = append(attrs, "prefix", a.Prefix, "wiki_url", a.WikiURL)
	case wiki.GetPageArgs:
		attrs = append(attrs, "title", a.Title, "content", a.Content, "wiki_url", a.WikiURL)
	case wiki.GetPageHistoryArgs:
		attrs = append(attrs, "title", a.Title, "wiki_url", a.WikiURL)
	case wiki.GetRevisionArgs:
		attrs = append(attrs, "revision", a.ID, "wiki_url", a.WikiURL)
	case wiki.GetFileArgs:
		attrs = append(attrs, "title", a.Title, "wiki_url", a.WikiURL)
	case wiki.CreatePageArgs:
		attrs = append(attrs, "title", a.Title, "wiki_url", a.WikiURL)
	case wiki.UpdatePageArgs:
		attrs = append(attrs, "title", a.Title, "latest_id", a.LatestID, "wiki_url", a.WikiURL)
	case wiki.DeletePageArgs:
		attrs = append(attrs, "title", a.Title, "wiki_url", a.WikiURL)
	case wiki.UploadFileArgs:
		attrs = append(attrs, "filename", a.WikiFilename, "wiki_url", a.WikiURL)
	case wiki.AddWikiArgs:
		attrs = append(attrs, "wiki_url", a.WikiURL)
	case wiki.RemoveWikiArgs:
		attrs = append(attrs, "uri", a.URI)
	case wiki.SetWikiArgs:
		attrs = append(attrs, "wiki_url", a.WikiURL)
	}

	// Add extractable fields from result
	switch r := result.(type) {
	case wiki.SearchPageResult:
		attrs = append(attrs, "wiki", r.Wiki, "results_count", len(r.Pages))
	case wiki.SearchPageByPrefixResult:
		attrs = append(attrs, "wiki", r.Wiki, "results_count", len(r.Titles))
	case wiki.PageContent:
		attrs = append(attrs, "wiki", r.Wiki, "format", r.Format)
	case wiki.PageHistoryResult:
		attrs = append(attrs, "wiki", r.Wiki, "revisions", len(r.Revisions))
	case wiki.RevisionContent:
		attrs = append(attrs, "wiki", r.Wiki, "page_id", r.PageID)
	case wiki.FileInfo:
		attrs = append(attrs, "wiki", r.Wiki, "media_type", r.MediaType)
	case gateway.PageResult:
		attrs = append(attrs, "page_id", r.PageID, "revision_id", r.RevisionID, "protocol", r.Protocol)
	case gateway.DeleteResult:
		attrs = append(attrs, "log_id", r.LogID)
	case gateway.UploadResult:
		attrs = append(attrs, "filename", r.Filename, "size", r.Size)
	case wiki.WikiResult:
		attrs = append(attrs, "wiki", r.Key, "current", r.Current)
	}

	h.logger.Info("Tool executed", attrs...)
}
