// Package wiki implements the MCP tool operations. Every call works against an
// explicit site: the one named by the optional wikiUrl argument, or the
// session's current wiki.
package wiki

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"strings"

	apierrors "github.com/olgasafonova/mediawiki-mcp-server/internal/errors"
	"github.com/olgasafonova/mediawiki-mcp-server/internal/gateway"
	"github.com/olgasafonova/mediawiki-mcp-server/internal/infra"
	"github.com/olgasafonova/mediawiki-mcp-server/internal/site"
	"github.com/olgasafonova/mediawiki-mcp-server/internal/transport"
)

// SiteResolver maps a wiki URL to a registered site, discovering it if needed.
type SiteResolver interface {
	ResolveSite(ctx context.Context, rawURL string) (*site.Site, error)
}

// Service holds the shared capabilities the tools run on. It is built once
// in main and is safe for concurrent use.
type Service struct {
	registry  *site.Registry
	resolver  SiteResolver
	transport *transport.Transport
	gateway   *gateway.Gateway
	logger    *slog.Logger
}

// Option configures the Service
type Option func(*Service)

// WithLogger sets the logger
func WithLogger(l *slog.Logger) Option {
	return func(s *Service) {
		s.logger = l
	}
}

// NewService wires the tool operations to the registry, resolver, transport and gateway.
func NewService(registry *site.Registry, resolver SiteResolver, t *transport.Transport, gw *gateway.Gateway, opts ...Option) *Service {
	s := &Service{
		registry:  registry,
		resolver:  resolver,
		transport: t,
		gateway:   gw,
		logger:    slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Registry exposes the wiki registry backing the service.
func (s *Service) Registry() *site.Registry {
	return s.registry
}

// BreakerStats reports the circuit breaker of every host the service has contacted.
func (s *Service) BreakerStats() map[string]infra.CircuitBreakerStats {
	return s.transport.BreakerStats()
}

// siteFor returns the site a call targets. The session's current wiki is
// never changed here; only SetWiki does that.
func (s *Service) siteFor(ctx context.Context, wikiURL string) (*site.Site, error) {
	if strings.TrimSpace(wikiURL) == "" {
		return s.registry.Current(), nil
	}
	return s.resolver.ResolveSite(ctx, wikiURL)
}

// restGet fetches a REST route relative to the site's rest.php.
func (s *Service) restGet(ctx context.Context, target *site.Site, path string, q url.Values, out any) error {
	req := transport.GetRequest(target.RESTURL()+path, q)
	if target.Kind() == site.CredentialBearer {
		req.Bearer = target.Token
	}
	return s.transport.JSON(ctx, req, out)
}

// legacyGet runs a read-only legacy API query.
func (s *Service) legacyGet(ctx context.Context, target *site.Site, params any, out any) error {
	q, err := transport.Params(params)
	if err != nil {
		return err
	}
	req := transport.GetRequest(target.APIURL(), q)
	if target.Kind() == site.CredentialBearer {
		req.Bearer = target.Token
	}
	return s.transport.JSON(ctx, req, out)
}

func titlePath(title string) string {
	return url.PathEscape(strings.TrimSpace(title))
}

func requireField(field, value string) error {
	if strings.TrimSpace(value) == "" {
		return apierrors.NewValidationError(field, "", fmt.Sprintf("%s is required", field))
	}
	return nil
}
