package gateway

import (
	"errors"
	"net/http"
	"strings"

	apierrors "github.com/olgasafonova/mediawiki-mcp-server/internal/errors"
	"github.com/olgasafonova/mediawiki-mcp-server/internal/site"
)

// FallbackPolicy decides whether a failed REST write is retried through the
// legacy API. It matches on error text because the REST endpoint reports the
// bearer/CSRF incompatibility only in its message body.
type FallbackPolicy struct {
	// Markers send the write to the legacy API when any appears in the error.
	Markers []string
	// ForbiddenTokenMarker must appear together with a 403 to trigger fallback.
	ForbiddenTokenMarker string
	Disabled             bool
}

// DefaultFallbackPolicy matches "rest-badtoken", "CSRF", or a 403 mentioning "token".
func DefaultFallbackPolicy() FallbackPolicy {
	return FallbackPolicy{
		Markers:              []string{"rest-badtoken", "CSRF"},
		ForbiddenTokenMarker: "token",
	}
}

// PolicyFromConfig overlays the configured markers on the default policy.
func PolicyFromConfig(cfg site.FallbackConfig) FallbackPolicy {
	p := DefaultFallbackPolicy()
	if len(cfg.Markers) > 0 {
		p.Markers = cfg.Markers
	}
	if cfg.ForbiddenTokenMarker != "" {
		p.ForbiddenTokenMarker = cfg.ForbiddenTokenMarker
	}
	p.Disabled = cfg.Disabled
	return p
}

// Allows reports whether err has the signature of the known CSRF problem.
func (p FallbackPolicy) Allows(err error) bool {
	if p.Disabled || err == nil {
		return false
	}

	text := err.Error()
	var httpErr *apierrors.HTTPError
	if errors.As(err, &httpErr) {
		// The error string truncates the body; match against all of it.
		text += "\n" + httpErr.Body
	}

	for _, m := range p.Markers {
		if m != "" && strings.Contains(text, m) {
			return true
		}
	}

	if p.ForbiddenTokenMarker == "" {
		return false
	}
	forbidden := apierrors.HTTPStatus(err) == http.StatusForbidden || strings.Contains(text, "403")
	return forbidden && strings.Contains(text, p.ForbiddenTokenMarker)
}
