// MediaWiki MCP Server - A Model Context Protocol server for MediaWiki wikis
// Resolves any wiki URL to a registered site and writes through REST with a
// legacy Action API fallback.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"log"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"runtime/debug"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/gorilla/mux"
	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/olgasafonova/mediawiki-mcp-server/internal/csrf"
	"github.com/olgasafonova/mediawiki-mcp-server/internal/discovery"
	"github.com/olgasafonova/mediawiki-mcp-server/internal/gateway"
	"github.com/olgasafonova/mediawiki-mcp-server/internal/resolver"
	"github.com/olgasafonova/mediawiki-mcp-server/internal/site"
	"github.com/olgasafonova/mediawiki-mcp-server/internal/transport"
	"github.com/olgasafonova/mediawiki-mcp-server/metrics"
	"github.com/olgasafonova/mediawiki-mcp-server/tools"
	"github.com/olgasafonova/mediawiki-mcp-server/tracing"
	"github.com/olgasafonova/mediawiki-mcp-server/wiki"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/time/rate"
)

// recoverPanic wraps a function with panic recovery and returns an error instead of crashing
func recoverPanic(logger *slog.Logger, operation string) {
	if r := recover(); r != nil {
		logger.Error("Panic recovered",
			"operation", operation,
			"panic", r,
			"stack", string(debug.Stack()))
	}
}

const (
	ServerName    = "mediawiki-mcp-server"
	ServerVersion = "2.0.0"
)

const serverInstructions = `MediaWiki MCP Server provides tools for reading and editing any MediaWiki wiki.

Every tool works on the current wiki unless a wikiUrl argument is given. wikiUrl
can be any URL of the target wiki (an article, the main page, or the API
endpoint); unknown wikis are discovered and registered on first use without
changing the current wiki.

Available tools:
- search-page, search-page-by-prefix: Find pages
- get-page, get-page-history, get-revision, get-file: Read pages, revisions and files
- create-page, update-page, delete-page, upload-file: Write (requires a configured credential)
- add-wiki, remove-wiki, set-wiki: Manage the registered wikis

Registered wikis are listed as resources under mcp://wikis/{key}.

Configure via CONFIG (path to config.json or .yaml) and MEDIAWIKI_* environment variables.`

func main() {
	httpAddr := flag.String("http", "", "Serve MCP over streamable HTTP on this address (e.g. :8080) instead of stdio")
	rateLimit := flag.Int("rate-limit", 120, "HTTP mode: requests per minute per client IP (0 = unlimited)")
	showVersion := flag.Bool("version", false, "Print version and exit")
	flag.Parse()

	if *showVersion {
		fmt.Println(ServerName, ServerVersion)
		return
	}

	// Configure logging to stderr (stdout is used for MCP protocol)
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: logLevel(os.Getenv("LOG_LEVEL")),
	}))

	config, err := site.LoadConfig()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}
	registry, err := site.NewRegistryFromConfig(config)
	if err != nil {
		log.Fatalf("Failed to build wiki registry: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	traceConfig, err := tracing.ConfigFromEnv(os.Getenv)
	if err != nil {
		log.Fatalf("Invalid tracing configuration: %v", err)
	}
	traceConfig.ServiceVersion = ServerVersion
	shutdownTracing, err := tracing.Setup(ctx, traceConfig)
	if err != nil {
		log.Fatalf("Failed to set up tracing: %v", err)
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownTracing(shutdownCtx); err != nil {
			logger.Warn("Tracing shutdown failed", "error", err)
		}
	}()

	service, tokens := buildService(config, registry, logger)
	defer tokens.Close()

	server := mcp.NewServer(&mcp.Implementation{
		Name:    ServerName,
		Version: ServerVersion,
	}, &mcp.ServerOptions{
		Logger:       logger,
		Instructions: serverInstructions,
	})

	handlers := tools.NewHandlerRegistry(service, logger)
	handlers.RegisterAll(server)
	handlers.RegisterResources(server)

	logger.Info("Starting MediaWiki MCP Server",
		"name", ServerName,
		"version", ServerVersion,
		"config", configSource(config),
		"current_wiki", registry.CurrentKey(),
		"wikis", len(registry.Keys()),
	)

	if *httpAddr != "" {
		if err := serveHTTP(ctx, *httpAddr, server, service, logger, SecurityConfig{
			RateLimit:   *rateLimit,
			MaxBodySize: DefaultMaxBodySize,
		}); err != nil {
			log.Fatalf("Server error: %v", err)
		}
		return
	}

	if err := server.Run(ctx, &mcp.StdioTransport{}); err != nil && !errors.Is(err, context.Canceled) {
		log.Fatalf("Server error: %v", err)
	}
}

// buildService constructs the shared transport and the components layered on
// it. The returned token cache must be closed on shutdown.
func buildService(config *site.Config, registry *site.Registry, logger *slog.Logger) (*wiki.Service, *csrf.TokenCache) {
	opts := []transport.Option{
		transport.WithLogger(logger),
		transport.WithLanguage(config.Language),
		transport.WithRateLimit(config.Transport.RateLimit),
		transport.WithBlockPrivateNetworks(config.Transport.BlockPrivateNetworks),
	}
	if config.Transport.Timeout > 0 {
		opts = append(opts, transport.WithTimeout(time.Duration(config.Transport.Timeout)))
	}
	if config.Transport.MaxRetries != nil {
		opts = append(opts, transport.WithMaxRetries(*config.Transport.MaxRetries))
	}
	if config.Transport.UserAgent != "" {
		opts = append(opts, transport.WithUserAgent(config.Transport.UserAgent))
	}
	t := transport.New(opts...)

	discoveryOpts := []discovery.Option{discovery.WithLogger(logger)}
	if len(config.Discovery.ScriptPaths) > 0 {
		discoveryOpts = append(discoveryOpts, discovery.WithCandidates(config.Discovery.ScriptPaths...))
	}
	discoverer := discovery.New(t, discoveryOpts...)
	res := resolver.New(registry, discoverer, logger)
	tokens := csrf.New(t, csrf.WithLogger(logger))

	metrics.WikisRegistered.Set(float64(len(registry.Keys())))
	registry.Subscribe(func(ev site.Event) {
		if ev.Kind == site.EventRemoved {
			tokens.Forget(ev.Key)
		}
		metrics.WikisRegistered.Set(float64(len(registry.Keys())))
	})

	gw := gateway.New(t, tokens,
		gateway.WithLogger(logger),
		gateway.WithPolicy(gateway.PolicyFromConfig(config.Fallback)),
	)
	return wiki.NewService(registry, res, t, gw, wiki.WithLogger(logger)), tokens
}

func configSource(config *site.Config) string {
	if config.Source == "" {
		return "built-in default"
	}
	return config.Source
}

func logLevel(s string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// serveHTTP runs the streamable HTTP transport until ctx is cancelled.
func serveHTTP(ctx context.Context, addr string, server *mcp.Server, service *wiki.Service, logger *slog.Logger, config SecurityConfig) error {
	sm := NewSecurityMiddleware(newRouter(server, service, logger), logger, config)
	defer sm.Close()

	srv := &http.Server{
		Addr:              addr,
		Handler:           sm,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		defer recoverPanic(logger, "http server")
		logger.Info("Listening for MCP over HTTP", "addr", addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	}
}

// newRouter mounts the MCP endpoint next to the operational endpoints.
func newRouter(server *mcp.Server, service *wiki.Service, logger *slog.Logger) *mux.Router {
	r := mux.NewRouter()

	mcpHandler := mcp.NewStreamableHTTPHandler(func(*http.Request) *mcp.Server { return server }, nil)
	r.Handle("/mcp", mcpHandler)
	r.Handle("/metrics", promhttp.Handler()).Methods(http.MethodGet)
	r.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		registry := service.Registry()
		w.Header().Set("Content-Type", "application/json")
		if err := json.NewEncoder(w).Encode(map[string]any{
			"status":   "ok",
			"version":  ServerVersion,
			"default":  registry.DefaultKey(),
			"current":  registry.CurrentKey(),
			"wikis":    len(registry.Keys()),
			"breakers": service.BreakerStats(),
		}); err != nil {
			logger.Warn("Failed to write health response", "error", err)
		}
	}).Methods(http.MethodGet)

	return r
}

// DefaultMaxBodySize bounds HTTP request bodies in HTTP mode.
const DefaultMaxBodySize = 10 << 20

// SecurityConfig configures the HTTP-mode middleware.
type SecurityConfig struct {
	RateLimit   int   // requests per minute per client IP, 0 = unlimited
	MaxBodySize int64 // bytes, 0 = unlimited
}

// SecurityMiddleware applies per-IP rate limiting and body size limits.
type SecurityMiddleware struct {
	next    http.Handler
	logger  *slog.Logger
	config  SecurityConfig
	limiter *RateLimiter
}

// NewSecurityMiddleware wraps handler.
func NewSecurityMiddleware(handler http.Handler, logger *slog.Logger, config SecurityConfig) *SecurityMiddleware {
	sm := &SecurityMiddleware{
		next:   handler,
		logger: logger,
		config: config,
	}
	if config.RateLimit > 0 {
		sm.limiter = NewRateLimiter(config.RateLimit, time.Minute)
	}
	return sm
}

func (sm *SecurityMiddleware) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("X-Content-Type-Options", "nosniff")

	if sm.limiter != nil {
		ip := clientIP(r)
		if !sm.limiter.Allow(ip) {
			sm.logger.Warn("Rate limit exceeded", "ip", ip, "path", r.URL.Path)
			w.Header().Set("Retry-After", "60")
			http.Error(w, "rate limit exceeded", http.StatusTooManyRequests)
			return
		}
	}
	if sm.config.MaxBodySize > 0 && r.Body != nil {
		r.Body = http.MaxBytesReader(w, r.Body, sm.config.MaxBodySize)
	}
	sm.next.ServeHTTP(w, r)
}

// Close stops the rate limiter's cleanup loop.
func (sm *SecurityMiddleware) Close() {
	if sm.limiter != nil {
		sm.limiter.Close()
	}
}

func clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

// RateLimiter is a per-IP token bucket allowing rate requests per interval.
type RateLimiter struct {
	rate     int
	interval time.Duration

	mu      sync.Mutex
	buckets map[string]*bucket

	stopCh    chan struct{}
	closeOnce sync.Once
}

type bucket struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// NewRateLimiter creates a limiter and starts evicting idle buckets.
func NewRateLimiter(n int, interval time.Duration) *RateLimiter {
	rl := &RateLimiter{
		rate:     n,
		interval: interval,
		buckets:  make(map[string]*bucket),
		stopCh:   make(chan struct{}),
	}
	go rl.cleanup()
	return rl
}

// Allow reports whether ip may make a request now.
func (rl *RateLimiter) Allow(ip string) bool {
	rl.mu.Lock()
	b, ok := rl.buckets[ip]
	if !ok {
		every := rl.interval / time.Duration(max(rl.rate, 1))
		b = &bucket{limiter: rate.NewLimiter(rate.Every(every), rl.rate)}
		rl.buckets[ip] = b
	}
	b.lastSeen = time.Now()
	rl.mu.Unlock()
	return b.limiter.Allow()
}

func (rl *RateLimiter) cleanup() {
	ticker := time.NewTicker(max(rl.interval, time.Minute))
	defer ticker.Stop()
	for {
		select {
		case <-rl.stopCh:
			return
		case now := <-ticker.C:
			rl.mu.Lock()
			for ip, b := range rl.buckets {
				if now.Sub(b.lastSeen) > 2*rl.interval {
					delete(rl.buckets, ip)
				}
			}
			rl.mu.Unlock()
		}
	}
}

// Close stops the cleanup goroutine. Safe to call more than once.
func (rl *RateLimiter) Close() {
	rl.closeOnce.Do(func() { close(rl.stopCh) })
}
