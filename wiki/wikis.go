package wiki

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strings"

	apierrors "github.com/olgasafonova/mediawiki-mcp-server/internal/errors"
)

// ResourceURIPrefix is the scheme and path under which wikis are exposed as MCP resources.
const ResourceURIPrefix = "mcp://wikis/"

// ResourceURI returns the resource URI of a wiki key.
func ResourceURI(key string) string {
	return ResourceURIPrefix + key
}

// ParseResourceURI extracts the wiki key from an mcp://wikis/{key} URI.
func ParseResourceURI(uri string) (string, error) {
	if !strings.HasPrefix(uri, ResourceURIPrefix) {
		return "", apierrors.NewValidationError("uri", uri,
			fmt.Sprintf("invalid wiki resource URI; must start with %q", ResourceURIPrefix))
	}
	key := strings.TrimSpace(strings.TrimPrefix(uri, ResourceURIPrefix))
	if key == "" {
		return "", apierrors.NewValidationError("uri", uri, "invalid wiki resource URI; wiki key cannot be empty")
	}
	return key, nil
}

// AddWiki discovers a wiki from any of its URLs and registers it. A wiki that
// is already registered is reported as such.
func (s *Service) AddWiki(ctx context.Context, args AddWikiArgs) (WikiResult, error) {
	if err := requireField("wikiUrl", args.WikiURL); err != nil {
		return WikiResult{}, err
	}
	known := false
	if u, err := url.Parse(strings.TrimSpace(args.WikiURL)); err == nil && u.Host != "" {
		_, known = s.registry.Lookup(u.Host)
	}

	target, err := s.resolver.ResolveSite(ctx, args.WikiURL)
	if err != nil {
		return WikiResult{}, err
	}

	res := s.wikiResult(target.Key, target.Sitename, target.Server)
	if known {
		res.Message = fmt.Sprintf("%s (%s) is already registered.", target.Sitename, res.URI)
	} else {
		res.Message = fmt.Sprintf("%s (%s) has been added to MCP resources.", target.Sitename, res.URI)
	}
	return res, nil
}

// RemoveWiki unregisters the wiki named by an mcp://wikis/{key} URI. The
// session's current wiki cannot be removed.
func (s *Service) RemoveWiki(_ context.Context, args RemoveWikiArgs) (WikiResult, error) {
	key, err := ParseResourceURI(args.URI)
	if err != nil {
		return WikiResult{}, err
	}
	existing, err := s.registry.Get(key)
	if err != nil {
		return WikiResult{}, err
	}
	if err := s.registry.Remove(existing.Key); err != nil {
		return WikiResult{}, err
	}

	res := s.wikiResult(existing.Key, existing.Sitename, existing.Server)
	res.Message = fmt.Sprintf("%s (%s) has been removed from MCP resources.", existing.Sitename, res.URI)
	return res, nil
}

// SetWiki resolves a wiki URL and makes it the session's current wiki.
func (s *Service) SetWiki(ctx context.Context, args SetWikiArgs) (WikiResult, error) {
	if err := requireField("wikiUrl", args.WikiURL); err != nil {
		return WikiResult{}, err
	}
	target, err := s.resolver.ResolveSite(ctx, args.WikiURL)
	if err != nil {
		return WikiResult{}, err
	}
	current, err := s.registry.SetCurrent(target.Key)
	if err != nil {
		return WikiResult{}, err
	}

	s.logger.Info("Current wiki changed", "wiki", current.Key)
	res := s.wikiResult(current.Key, current.Sitename, current.Server)
	res.Message = fmt.Sprintf("Wiki set to %s (%s)", current.Sitename, current.Server)
	return res, nil
}

func (s *Service) wikiResult(key, sitename, server string) WikiResult {
	return WikiResult{
		Key:      key,
		URI:      ResourceURI(key),
		Sitename: sitename,
		Server:   server,
		Current:  s.registry.CurrentKey() == key,
	}
}

// WikiResource is the listing entry for one registered wiki.
type WikiResource struct {
	URI         string
	Name        string
	Title       string
	Description string
}

// ListWikiResources describes every registered wiki, in key order.
func (s *Service) ListWikiResources() []WikiResource {
	keys := s.registry.Keys()
	out := make([]WikiResource, 0, len(keys))
	for _, key := range keys {
		r, err := s.DescribeWikiResource(key)
		if err != nil {
			continue
		}
		out = append(out, r)
	}
	return out
}

// DescribeWikiResource returns the listing entry for key.
func (s *Service) DescribeWikiResource(key string) (WikiResource, error) {
	d, err := s.registry.Sanitized(key)
	if err != nil {
		return WikiResource{}, err
	}
	return WikiResource{
		URI:         ResourceURI(key),
		Name:        "wikis/" + key,
		Title:       d.Sitename,
		Description: fmt.Sprintf("Wiki %q hosted at %s", d.Sitename, d.Server),
	}, nil
}

// ReadWikiResource returns the credential-free descriptor of the wiki named
// by uri as indented JSON.
func (s *Service) ReadWikiResource(uri string) (string, error) {
	key, err := ParseResourceURI(uri)
	if err != nil {
		return "", err
	}
	d, err := s.registry.Sanitized(key)
	if err != nil {
		return "", err
	}
	data, err := json.MarshalIndent(d, "", "  ")
	if err != nil {
		return "", fmt.Errorf("encode wiki %s: %w", key, err)
	}
	return string(data), nil
}
