// Package discovery turns any URL on a MediaWiki installation into a site
// descriptor by probing the action API under candidate script paths, falling
// back to the search form in the page HTML when the usual layouts miss.
package discovery

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"

	"golang.org/x/net/html"

	apierrors "github.com/olgasafonova/mediawiki-mcp-server/internal/errors"
	"github.com/olgasafonova/mediawiki-mcp-server/internal/site"
	"github.com/olgasafonova/mediawiki-mcp-server/internal/transport"
	"github.com/olgasafonova/mediawiki-mcp-server/metrics"
)

// CommonScriptPaths are probed in order before any HTML is fetched.
var CommonScriptPaths = []string{"/w", ""}

// Result is a discovered wiki: its canonical registry key and descriptor.
type Result struct {
	Key        string
	ServerName string
	Descriptor site.Descriptor
}

// Discoverer runs the probe sequence over a Transport.
type Discoverer struct {
	transport  *transport.Transport
	logger     *slog.Logger
	candidates []string
}

// Option configures the Discoverer
type Option func(*Discoverer)

// WithLogger sets a custom logger
func WithLogger(l *slog.Logger) Option {
	return func(d *Discoverer) {
		d.logger = l
	}
}

// WithCandidates replaces CommonScriptPaths as the fixed script path list.
func WithCandidates(paths ...string) Option {
	return func(d *Discoverer) {
		d.candidates = paths
	}
}

// New creates a Discoverer that sends all traffic through t.
func New(t *transport.Transport, opts ...Option) *Discoverer {
	d := &Discoverer{
		transport:  t,
		logger:     slog.Default(),
		candidates: CommonScriptPaths,
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Origin returns scheme://host[:port] of rawURL.
func Origin(rawURL string) (string, error) {
	u, err := url.Parse(strings.TrimSpace(rawURL))
	if err != nil {
		return "", apierrors.NewValidationError("wikiUrl", rawURL, err.Error())
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return "", apierrors.NewValidationError("wikiUrl", rawURL, "must be an absolute http or https URL")
	}
	if u.Host == "" {
		return "", apierrors.NewValidationError("wikiUrl", rawURL, "missing host")
	}
	return u.Scheme + "://" + u.Host, nil
}

// DiscoverURL derives the origin from rawURL and runs Discover.
func (d *Discoverer) DiscoverURL(ctx context.Context, rawURL string) (*Result, error) {
	origin, err := Origin(rawURL)
	if err != nil {
		return nil, &apierrors.WikiDiscoveryError{URL: rawURL, Err: err}
	}
	return d.Discover(ctx, origin, rawURL)
}

// Discover probes origin for a wiki. The fixed candidates are tried first;
// only when all of them fail is originalURL fetched and its search form used
// as a hint. A hint is never trusted without a successful API probe.
func (d *Discoverer) Discover(ctx context.Context, origin, originalURL string) (*Result, error) {
	if res := d.probeAll(ctx, origin, d.candidates); res != nil {
		metrics.RecordDiscovery("probe", true)
		return res, nil
	}
	metrics.RecordDiscovery("probe", false)

	candidates := d.candidates
	if hint, ok := d.scriptPathFromHTML(ctx, origin, originalURL); ok {
		candidates = []string{hint}
	}
	if res := d.probeAll(ctx, origin, candidates); res != nil {
		metrics.RecordDiscovery("html", true)
		return res, nil
	}
	metrics.RecordDiscovery("html", false)

	if err := ctx.Err(); err != nil {
		return nil, &apierrors.WikiDiscoveryError{URL: originalURL, Err: err}
	}
	return nil, &apierrors.WikiDiscoveryError{
		URL: originalURL,
		Err: fmt.Errorf("no action API found under %s", origin),
	}
}

func (d *Discoverer) probeAll(ctx context.Context, origin string, candidates []string) *Result {
	for _, candidate := range candidates {
		if ctx.Err() != nil {
			return nil
		}
		res, err := d.probe(ctx, origin, candidate)
		if err != nil {
			d.logger.Debug("Script path probe failed",
				"origin", origin,
				"script_path", candidate,
				"error", err)
			continue
		}
		return res
	}
	return nil
}

type siteInfoParams struct {
	Action string `url:"action"`
	Meta   string `url:"meta"`
	SiProp string `url:"siprop"`
	Format string `url:"format"`
	Origin string `url:"origin"`
}

type siteInfoResponse struct {
	Query *struct {
		General *struct {
			Sitename    string  `json:"sitename"`
			ArticlePath string  `json:"articlepath"`
			ScriptPath  *string `json:"scriptpath"`
			Server      string  `json:"server"`
			ServerName  string  `json:"servername"`
		} `json:"general"`
	} `json:"query"`
}

// probe queries {origin}{scriptPath}/api.php for general site info.
func (d *Discoverer) probe(ctx context.Context, origin, scriptPath string) (*Result, error) {
	params, err := transport.Params(siteInfoParams{
		Action: "query",
		Meta:   "siteinfo",
		SiProp: "general",
		Format: "json",
		Origin: "*",
	})
	if err != nil {
		return nil, err
	}

	var resp siteInfoResponse
	if err := d.transport.JSON(ctx, transport.GetRequest(origin+scriptPath+"/api.php", params), &resp); err != nil {
		return nil, err
	}
	if resp.Query == nil || resp.Query.General == nil || resp.Query.General.ScriptPath == nil {
		return nil, fmt.Errorf("response has no general site info")
	}
	g := resp.Query.General

	server := strings.TrimSpace(g.Server)
	if strings.HasPrefix(server, "//") {
		if u, err := url.Parse(origin); err == nil && u.Scheme != "" {
			server = u.Scheme + ":" + server
		}
	}

	desc := site.Descriptor{
		Sitename:    g.Sitename,
		Server:      server,
		ArticlePath: g.ArticlePath,
		ScriptPath:  *g.ScriptPath,
	}.Normalize()
	if desc.Server == "" {
		desc.Server = origin
	}

	return &Result{
		Key:        canonicalKey(desc.Server, g.ServerName),
		ServerName: g.ServerName,
		Descriptor: desc,
	}, nil
}

// canonicalKey is the host (with port) the wiki reports for itself.
func canonicalKey(server, serverName string) string {
	if u, err := url.Parse(server); err == nil && u.Host != "" {
		return u.Host
	}
	return serverName
}

// scriptPathFromHTML fetches originalURL and extracts a script path from its
// search form. ok is false when the page cannot be fetched or has no usable form.
func (d *Discoverer) scriptPathFromHTML(ctx context.Context, origin, originalURL string) (string, bool) {
	req := transport.GetRequest(originalURL, nil)
	req.Header = http.Header{"Accept": []string{"text/html"}}
	resp, err := d.transport.Do(ctx, req)
	if err != nil {
		d.logger.Debug("Could not fetch page HTML for discovery", "url", originalURL, "error", err)
		return "", false
	}
	path, ok := ExtractScriptPath(string(resp.Body), origin)
	if ok {
		d.logger.Debug("Script path hint from search form", "url", originalURL, "script_path", path)
	}
	return path, ok
}

// ExtractScriptPath finds <form id="searchform" action="..."> whose action
// points at index.php, resolves it against base, and returns the path before
// the last "/index.php".
func ExtractScriptPath(htmlBody, base string) (string, bool) {
	doc, err := html.Parse(strings.NewReader(htmlBody))
	if err != nil {
		return "", false
	}
	action, ok := findSearchFormAction(doc)
	if !ok || !strings.Contains(strings.ToLower(action), "index.php") {
		return "", false
	}

	baseURL, err := url.Parse(base)
	if err != nil {
		return "", false
	}
	ref, err := url.Parse(action)
	if err != nil {
		return "", false
	}
	path := baseURL.ResolveReference(ref).Path
	idx := strings.LastIndex(strings.ToLower(path), "/index.php")
	if idx == -1 {
		return "", false
	}
	return path[:idx], true
}

func findSearchFormAction(n *html.Node) (string, bool) {
	if n.Type == html.ElementNode && n.Data == "form" {
		var id, action string
		var hasAction bool
		for _, a := range n.Attr {
			switch a.Key {
			case "id":
				id = a.Val
			case "action":
				action, hasAction = a.Val, true
			}
		}
		if id == "searchform" && hasAction {
			return action, true
		}
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if action, ok := findSearchFormAction(c); ok {
			return action, true
		}
	}
	return "", false
}
