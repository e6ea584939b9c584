// Package resolver maps a caller-supplied wiki URL to a registry key,
// discovering and registering unknown wikis on first use.
package resolver

import (
	"context"
	"errors"
	"log/slog"
	"net/url"
	"strings"

	"golang.org/x/sync/singleflight"

	"github.com/olgasafonova/mediawiki-mcp-server/internal/discovery"
	apierrors "github.com/olgasafonova/mediawiki-mcp-server/internal/errors"
	"github.com/olgasafonova/mediawiki-mcp-server/internal/site"
	"github.com/olgasafonova/mediawiki-mcp-server/metrics"
)

// Discoverer is the part of discovery.Discoverer the resolver needs.
type Discoverer interface {
	Discover(ctx context.Context, origin, originalURL string) (*discovery.Result, error)
}

// Resolver combines the registry with discovery.
type Resolver struct {
	registry   *site.Registry
	discoverer Discoverer
	logger     *slog.Logger
	group      singleflight.Group
}

// New creates a Resolver.
func New(registry *site.Registry, d Discoverer, logger *slog.Logger) *Resolver {
	if logger == nil {
		logger = slog.Default()
	}
	return &Resolver{registry: registry, discoverer: d, logger: logger}
}

// Resolve returns the registry key for rawURL. A host that is already
// registered, directly or as an alias, is returned without any network
// traffic. Otherwise the wiki is discovered and stored under its canonical
// host; if that key already exists the existing entry is kept. The input
// host is recorded as an alias so the next call short-circuits.
func (r *Resolver) Resolve(ctx context.Context, rawURL string) (string, error) {
	u, err := url.Parse(strings.TrimSpace(rawURL))
	if err != nil || u.Host == "" || (u.Scheme != "http" && u.Scheme != "https") {
		return "", &apierrors.WikiDiscoveryError{
			URL: rawURL,
			Err: apierrors.NewValidationError("wikiUrl", rawURL, "must be an absolute http or https URL"),
		}
	}

	if key, ok := r.registry.Lookup(u.Host); ok {
		return key, nil
	}

	// Concurrent calls for the same unknown host share one discovery.
	v, err, _ := r.group.Do(u.Host, func() (any, error) {
		if key, ok := r.registry.Lookup(u.Host); ok {
			return key, nil
		}
		origin := u.Scheme + "://" + u.Host
		res, err := r.discoverer.Discover(ctx, origin, rawURL)
		if err != nil {
			r.logger.Warn("Wiki discovery failed", "url", rawURL, "error", err)
			return nil, asDiscoveryError(rawURL, err)
		}

		key := res.Key
		if key == "" {
			key = u.Host
		}
		if r.registry.Add(key, res.Descriptor) {
			metrics.WikisRegistered.Set(float64(len(r.registry.Keys())))
			r.logger.Info("Registered discovered wiki",
				"key", key,
				"sitename", res.Descriptor.Sitename,
				"script_path", res.Descriptor.ScriptPath)
		}
		if key != u.Host {
			if err := r.registry.AddAlias(u.Host, key); err != nil {
				return nil, err
			}
		}
		return key, nil
	})
	if err != nil {
		return "", err
	}
	return v.(string), nil
}

// ResolveSite resolves rawURL and returns the registry entry.
func (r *Resolver) ResolveSite(ctx context.Context, rawURL string) (*site.Site, error) {
	key, err := r.Resolve(ctx, rawURL)
	if err != nil {
		return nil, err
	}
	return r.registry.Get(key)
}

func asDiscoveryError(rawURL string, err error) error {
	var discErr *apierrors.WikiDiscoveryError
	if errors.As(err, &discErr) {
		return err
	}
	return &apierrors.WikiDiscoveryError{URL: rawURL, Err: err}
}
