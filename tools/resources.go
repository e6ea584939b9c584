package tools

import (
	"context"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	apierrors "github.com/olgasafonova/mediawiki-mcp-server/internal/errors"
	"github.com/olgasafonova/mediawiki-mcp-server/internal/site"
	"github.com/olgasafonova/mediawiki-mcp-server/wiki"
)

// wikiResourceMIMEType is the MIME type of every mcp://wikis/{key} resource.
const wikiResourceMIMEType = "application/json"

// RegisterResources exposes every registered wiki as an MCP resource and
// keeps the resource list in step with the wiki registry.
func (h *HandlerRegistry) RegisterResources(server *mcp.Server) {
	resources := h.service.ListWikiResources()
	for _, r := range resources {
		h.addResource(server, r)
	}

	h.service.Registry().Subscribe(func(ev site.Event) {
		switch ev.Kind {
		case site.EventAdded:
			r, err := h.service.DescribeWikiResource(ev.Key)
			if err != nil {
				h.logger.Warn("Wiki added but not describable", "wiki", ev.Key, "error", err)
				return
			}
			h.addResource(server, r)
		case site.EventRemoved:
			server.RemoveResources(wiki.ResourceURI(ev.Key))
			h.logger.Info("Wiki resource removed", "wiki", ev.Key)
		}
	})

	h.logger.Info("Registered wiki resources", "count", len(resources))
}

func (h *HandlerRegistry) addResource(server *mcp.Server, r wiki.WikiResource) {
	server.AddResource(&mcp.Resource{
		URI:         r.URI,
		Name:        r.Name,
		Title:       r.Title,
		Description: r.Description,
		MIMEType:    wikiResourceMIMEType,
	}, h.readResource)
}

// readResource serves the credential-free descriptor of one wiki.
func (h *HandlerRegistry) readResource(_ context.Context, req *mcp.ReadResourceRequest) (*mcp.ReadResourceResult, error) {
	uri := req.Params.URI
	text, err := h.service.ReadWikiResource(uri)
	if err != nil {
		if apierrors.IsNotFound(err) {
			return nil, mcp.ResourceNotFoundError(uri)
		}
		return nil, err
	}
	return &mcp.ReadResourceResult{
		Contents: []*mcp.ResourceContents{{
			URI:      uri,
			MIMEType: wikiResourceMIMEType,
			Text:     text,
		}},
	}, nil
}
