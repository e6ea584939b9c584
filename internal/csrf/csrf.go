// Package csrf caches legacy-API CSRF tokens per wiki.
package csrf

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/olgasafonova/mediawiki-mcp-server/internal/infra"
	"github.com/olgasafonova/mediawiki-mcp-server/internal/site"
	"github.com/olgasafonova/mediawiki-mcp-server/internal/transport"
	"github.com/olgasafonova/mediawiki-mcp-server/metrics"
)

const (
	// TokenTTL is how long a fetched token is reused.
	TokenTTL = 30 * time.Minute

	// SessionTTL is how long a password login is trusted before re-checking.
	SessionTTL = 60 * time.Minute

	// AnonymousToken is what the API returns when the caller is not authenticated.
	AnonymousToken = `+\`
)

// TokenCache hands out CSRF tokens for write calls. Tokens are cached per
// site key so a token from one wiki is never sent to another.
type TokenCache struct {
	transport *transport.Transport
	cache     *infra.Cache
	logger    *slog.Logger
	ttl       time.Duration
	clock     infra.Clock
	group     singleflight.Group
}

// Option configures the TokenCache
type Option func(*TokenCache)

// WithLogger sets a custom logger
func WithLogger(l *slog.Logger) Option {
	return func(c *TokenCache) {
		c.logger = l
	}
}

// WithClock replaces the wall clock used for expiry.
func WithClock(clock infra.Clock) Option {
	return func(c *TokenCache) {
		c.clock = clock
	}
}

// WithTTL overrides TokenTTL.
func WithTTL(d time.Duration) Option {
	return func(c *TokenCache) {
		if d > 0 {
			c.ttl = d
		}
	}
}

// New creates a TokenCache that fetches through t.
func New(t *transport.Transport, opts ...Option) *TokenCache {
	c := &TokenCache{
		transport: t,
		logger:    slog.Default(),
		ttl:       TokenTTL,
		clock:     time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	c.cache = infra.NewCache(infra.DefaultMaxCacheEntries, infra.WithCacheClock(c.clock))
	return c
}

// Close stops the background cache sweep.
func (c *TokenCache) Close() {
	c.cache.Close()
}

// Token returns a usable CSRF token for s. ok is false when none could be
// obtained; the reason is logged, never returned.
func (c *TokenCache) Token(ctx context.Context, s *site.Site) (token string, ok bool) {
	key := tokenKey(s.Key)
	if v, hit := c.cache.Get(key); hit {
		metrics.RecordCSRF("hit")
		return v.(string), true
	}
	metrics.RecordCSRF("miss")

	v, err, _ := c.group.Do(key, func() (any, error) {
		if v, hit := c.cache.Get(key); hit {
			return v, nil
		}
		tok, err := c.fetch(ctx, s)
		if err != nil {
			return nil, err
		}
		c.cache.Set(key, tok, c.ttl)
		return tok, nil
	})
	if err != nil {
		metrics.RecordCSRF("fetch_error")
		c.logger.Warn("Could not obtain CSRF token", "wiki", s.Key, "error", err)
		return "", false
	}
	return v.(string), true
}

// Forget drops any cached token and session for siteKey.
func (c *TokenCache) Forget(siteKey string) {
	c.cache.Delete(tokenKey(siteKey))
	c.cache.Delete(sessionKey(siteKey))
}

func tokenKey(siteKey string) string   { return "csrf:" + siteKey }
func sessionKey(siteKey string) string { return "session:" + siteKey }

type tokenParams struct {
	Action string `url:"action"`
	Meta   string `url:"meta"`
	Type   string `url:"type"`
	Format string `url:"format"`
}

type tokensResponse struct {
	Query struct {
		Tokens struct {
			CSRFToken  string `json:"csrftoken"`
			LoginToken string `json:"logintoken"`
		} `json:"tokens"`
	} `json:"query"`
	Error *struct {
		Code string `json:"code"`
		Info string `json:"info"`
	} `json:"error"`
}

func (c *TokenCache) fetch(ctx context.Context, s *site.Site) (string, error) {
	req, err := tokenRequest(s.APIURL(), "csrf")
	if err != nil {
		return "", err
	}

	switch s.Kind() {
	case site.CredentialBearer:
		req.Bearer = s.Token
	case site.CredentialPassword:
		if err := c.ensureSession(ctx, s); err != nil {
			return "", err
		}
	default:
		return "", fmt.Errorf("no credential configured for %s", s.Key)
	}

	var resp tokensResponse
	if err := c.transport.JSON(ctx, req, &resp); err != nil {
		return "", err
	}
	if resp.Error != nil {
		return "", fmt.Errorf("token query failed: %s: %s", resp.Error.Code, resp.Error.Info)
	}
	tok := resp.Query.Tokens.CSRFToken
	if tok == "" || tok == AnonymousToken {
		return "", fmt.Errorf("wiki returned the anonymous token; credential not accepted")
	}
	return tok, nil
}

func tokenRequest(apiURL, typ string) (transport.Request, error) {
	params, err := transport.Params(tokenParams{
		Action: "query",
		Meta:   "tokens",
		Type:   typ,
		Format: "json",
	})
	if err != nil {
		return transport.Request{}, err
	}
	return transport.GetRequest(apiURL, params), nil
}

type loginParams struct {
	Action   string `url:"action"`
	Name     string `url:"lgname"`
	Password string `url:"lgpassword"`
	Token    string `url:"lgtoken"`
	Format   string `url:"format"`
}

type loginResponse struct {
	Login *struct {
		Result string `json:"result"`
		Reason string `json:"reason"`
	} `json:"login"`
	Error *struct {
		Code string `json:"code"`
		Info string `json:"info"`
	} `json:"error"`
}

// ensureSession logs in with the site's bot password unless a session
// cookie from an earlier login is still trusted.
func (c *TokenCache) ensureSession(ctx context.Context, s *site.Site) error {
	if _, ok := c.cache.Get(sessionKey(s.Key)); ok {
		return nil
	}

	req, err := tokenRequest(s.APIURL(), "login")
	if err != nil {
		return err
	}
	var tokens tokensResponse
	if err := c.transport.JSON(ctx, req, &tokens); err != nil {
		return fmt.Errorf("failed to get login token: %w", err)
	}
	loginToken := tokens.Query.Tokens.LoginToken
	if loginToken == "" {
		return fmt.Errorf("no login token in response")
	}

	form, err := transport.Params(loginParams{
		Action:   "login",
		Name:     s.Username,
		Password: s.Password,
		Token:    loginToken,
		Format:   "json",
	})
	if err != nil {
		return err
	}
	var resp loginResponse
	if err := c.transport.JSON(ctx, transport.FormRequest(s.APIURL(), form), &resp); err != nil {
		return fmt.Errorf("login failed: %w", err)
	}

	switch {
	case resp.Error != nil:
		return fmt.Errorf("login failed: %s: %s", resp.Error.Code, resp.Error.Info)
	case resp.Login == nil:
		return fmt.Errorf("unexpected login response")
	case resp.Login.Result == "Success":
		c.logger.Info("Successfully logged in", "wiki", s.Key, "username", s.Username)
	case strings.Contains(resp.Login.Reason, "BotPasswordSessionProvider"):
		// The cookie jar already carries a bot-password session.
		c.logger.Warn("Reusing existing bot password session", "wiki", s.Key)
	default:
		if resp.Login.Reason != "" {
			return fmt.Errorf("login failed: %s - %s", resp.Login.Result, resp.Login.Reason)
		}
		return fmt.Errorf("login failed: %s", resp.Login.Result)
	}

	c.cache.Set(sessionKey(s.Key), true, SessionTTL)
	return nil
}
