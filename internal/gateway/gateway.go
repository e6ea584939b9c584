// Package gateway performs wiki writes. Page writes go to the REST API first
// and fall back once to the legacy action API when the failure matches the
// CSRF signature described by FallbackPolicy.
package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"net/url"
	"strings"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	apierrors "github.com/olgasafonova/mediawiki-mcp-server/internal/errors"
	"github.com/olgasafonova/mediawiki-mcp-server/internal/site"
	"github.com/olgasafonova/mediawiki-mcp-server/internal/transport"
	"github.com/olgasafonova/mediawiki-mcp-server/metrics"
	"github.com/olgasafonova/mediawiki-mcp-server/tracing"
)

// Default edit summaries
const (
	DefaultCreateSummary = "Created via MediaWiki MCP Server"
	DefaultUpdateSummary = "Updated via MediaWiki MCP Server"
	DefaultUploadSummary = "Uploaded via MediaWiki MCP Server"
	DefaultDeleteSummary = "Deleted via MediaWiki MCP Server"

	DefaultContentModel = "wikitext"
)

// Protocol names the API that served a write.
type Protocol string

const (
	ProtocolREST   Protocol = "rest"
	ProtocolLegacy Protocol = "legacy"
)

// TokenSource supplies CSRF tokens. *csrf.TokenCache implements it.
type TokenSource interface {
	Token(ctx context.Context, s *site.Site) (string, bool)
}

// PageResult is the outcome of a page write, identical for both protocols.
type PageResult struct {
	PageID       int64    `json:"page_id"`
	Title        string   `json:"title"`
	RevisionID   int64    `json:"revision_id"`
	Timestamp    string   `json:"timestamp,omitempty"`
	ContentModel string   `json:"content_model,omitempty"`
	License      string   `json:"license,omitempty"`
	URL          string   `json:"url"`
	Protocol     Protocol `json:"protocol"`
	WriteID      string   `json:"write_id"`
}

// CreatePageRequest describes a new page.
type CreatePageRequest struct {
	Title        string
	Source       string
	Comment      string
	ContentModel string
}

// UpdatePageRequest replaces a page's content. LatestID is the base revision
// for conflict detection; zero skips the check on the legacy path.
type UpdatePageRequest struct {
	Title    string
	Source   string
	Comment  string
	LatestID int64
}

// Gateway routes writes over a shared Transport.
type Gateway struct {
	transport *transport.Transport
	tokens    TokenSource
	policy    FallbackPolicy
	logger    *slog.Logger
	newID     func() string
}

// Option configures the Gateway
type Option func(*Gateway)

// WithLogger sets a custom logger
func WithLogger(l *slog.Logger) Option {
	return func(g *Gateway) {
		g.logger = l
	}
}

// WithPolicy replaces DefaultFallbackPolicy.
func WithPolicy(p FallbackPolicy) Option {
	return func(g *Gateway) {
		g.policy = p
	}
}

// New creates a Gateway.
func New(t *transport.Transport, tokens TokenSource, opts ...Option) *Gateway {
	g := &Gateway{
		transport: t,
		tokens:    tokens,
		policy:    DefaultFallbackPolicy(),
		logger:    slog.Default(),
		newID:     uuid.NewString,
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// CreatePage creates a page via POST /v1/page, falling back to action=edit.
func (g *Gateway) CreatePage(ctx context.Context, s *site.Site, req CreatePageRequest) (*PageResult, error) {
	if err := requireTitle(req.Title); err != nil {
		return nil, err
	}
	comment := req.Comment
	restBody := map[string]any{
		"source":  req.Source,
		"title":   req.Title,
		"comment": comment,
	}
	if req.ContentModel != "" {
		restBody["content_model"] = req.ContentModel
	}
	if comment == "" {
		comment = DefaultCreateSummary
	}
	model := req.ContentModel
	if model == "" {
		model = DefaultContentModel
	}

	metrics.ContentSize.WithLabelValues("create-page").Observe(float64(len(req.Source)))
	return g.writePage(ctx, s, "create-page", req.Title,
		func(ctx context.Context) (*PageResult, error) {
			return g.restWrite(ctx, s, http.MethodPost, "/v1/page", restBody)
		},
		func(ctx context.Context, token string) (*PageResult, error) {
			return g.legacyEdit(ctx, s, editParams{
				Action:       "edit",
				Title:        req.Title,
				Text:         req.Source,
				Summary:      comment,
				ContentModel: model,
				Token:        token,
				Format:       "json",
			})
		})
}

// UpdatePage replaces page content via PUT /v1/page/{title}, falling back to action=edit.
func (g *Gateway) UpdatePage(ctx context.Context, s *site.Site, req UpdatePageRequest) (*PageResult, error) {
	if err := requireTitle(req.Title); err != nil {
		return nil, err
	}
	restBody := map[string]any{
		"source":  req.Source,
		"comment": req.Comment,
		"latest":  map[string]int64{"id": req.LatestID},
	}
	summary := req.Comment
	if summary == "" {
		summary = DefaultUpdateSummary
	}

	metrics.ContentSize.WithLabelValues("update-page").Observe(float64(len(req.Source)))
	return g.writePage(ctx, s, "update-page", req.Title,
		func(ctx context.Context) (*PageResult, error) {
			return g.restWrite(ctx, s, http.MethodPut, "/v1/page/"+url.PathEscape(req.Title), restBody)
		},
		func(ctx context.Context, token string) (*PageResult, error) {
			return g.legacyEdit(ctx, s, editParams{
				Action:    "edit",
				Title:     req.Title,
				Text:      req.Source,
				Summary:   summary,
				BaseRevID: req.LatestID,
				Token:     token,
				Format:    "json",
			})
		})
}

// writePage runs the REST attempt and at most one legacy attempt.
func (g *Gateway) writePage(
	ctx context.Context,
	s *site.Site,
	op, title string,
	primary func(context.Context) (*PageResult, error),
	fallback func(context.Context, string) (*PageResult, error),
) (*PageResult, error) {
	writeID := g.newID()
	ctx, span := tracing.StartSpan(ctx, "gateway."+op)
	defer span.End()
	tracing.AddWikiAttributes(span, s.Key, op, title)

	logger := g.logger.With("write_id", writeID, "wiki", s.Key, "operation", op, "title", title)

	res, err := primary(ctx)
	if err == nil {
		res.Protocol = ProtocolREST
		res.WriteID = writeID
		g.finish(span, op, res.Protocol, writeID, nil)
		return res, nil
	}

	// A token that could not be obtained for REST cannot be obtained for legacy either.
	var csrfErr *apierrors.CSRFAcquisitionError
	if errors.As(err, &csrfErr) || !g.policy.Allows(err) {
		g.finish(span, op, ProtocolREST, writeID, err)
		return nil, err
	}

	logger.Warn("REST write failed with token error, falling back to legacy API", "error", err)
	metrics.WriteFallbacks.WithLabelValues(op).Inc()

	token, ok := g.tokens.Token(ctx, s)
	if !ok {
		err := &apierrors.CSRFAcquisitionError{Site: s.Key}
		g.finish(span, op, ProtocolLegacy, writeID, err)
		return nil, err
	}

	res, err = fallback(ctx, token)
	if err != nil {
		g.finish(span, op, ProtocolLegacy, writeID, err)
		return nil, err
	}
	if res.Title == "" {
		res.Title = title
	}
	res.URL = s.PageURL(res.Title)
	res.Protocol = ProtocolLegacy
	res.WriteID = writeID
	logger.Info("Legacy write succeeded", "page_id", res.PageID, "revision_id", res.RevisionID)
	g.finish(span, op, res.Protocol, writeID, nil)
	return res, nil
}

func (g *Gateway) finish(span trace.Span, op string, protocol Protocol, writeID string, err error) {
	tracing.AddWriteAttributes(span, string(protocol), writeID)
	metrics.RecordWrite(op, string(protocol), err == nil)
	if err != nil {
		tracing.RecordError(span, err)
		return
	}
	span.SetStatus(codes.Ok, "")
}

type restPage struct {
	ID     int64  `json:"id"`
	Key    string `json:"key"`
	Title  string `json:"title"`
	Latest struct {
		ID        int64  `json:"id"`
		Timestamp string `json:"timestamp"`
	} `json:"latest"`
	ContentModel string `json:"content_model"`
	License      struct {
		URL   string `json:"url"`
		Title string `json:"title"`
	} `json:"license"`
}

// restWrite sends a JSON write to the REST API. A bearer credential goes in
// the Authorization header and needs no CSRF token; any other session must
// put a token in the body.
func (g *Gateway) restWrite(ctx context.Context, s *site.Site, method, path string, body map[string]any) (*PageResult, error) {
	var bearer string
	if s.Kind() == site.CredentialBearer {
		bearer = s.Token
	} else {
		token, ok := g.tokens.Token(ctx, s)
		if !ok {
			return nil, &apierrors.CSRFAcquisitionError{Site: s.Key}
		}
		body["token"] = token
	}

	req, err := transport.JSONRequest(method, s.RESTURL()+path, body)
	if err != nil {
		return nil, err
	}
	req.Bearer = bearer

	var page restPage
	if err := g.transport.JSON(ctx, req, &page); err != nil {
		return nil, err
	}
	res := &PageResult{
		PageID:       page.ID,
		Title:        page.Title,
		RevisionID:   page.Latest.ID,
		Timestamp:    page.Latest.Timestamp,
		ContentModel: page.ContentModel,
		URL:          s.PageURL(page.Title),
	}
	if page.License.Title != "" {
		res.License = strings.TrimSpace(page.License.Title + " " + page.License.URL)
	}
	return res, nil
}

type editParams struct {
	Action       string `url:"action"`
	Title        string `url:"title"`
	Text         string `url:"text"`
	Summary      string `url:"summary"`
	ContentModel string `url:"contentmodel,omitempty"`
	BaseRevID    int64  `url:"baserevid,omitempty"`
	Token        string `url:"token"`
	Format       string `url:"format"`
}

type apiErrorBody struct {
	Code string `json:"code"`
	Info string `json:"info"`
}

type editResponse struct {
	Edit *struct {
		Result       string `json:"result"`
		PageID       int64  `json:"pageid"`
		Title        string `json:"title"`
		ContentModel string `json:"contentmodel"`
		NewRevID     int64  `json:"newrevid"`
		NewTimestamp string `json:"newtimestamp"`
	} `json:"edit"`
	Error *apiErrorBody `json:"error"`
}

// legacyEdit posts action=edit and remaps the result into a PageResult.
func (g *Gateway) legacyEdit(ctx context.Context, s *site.Site, p editParams) (*PageResult, error) {
	form, err := transport.Params(p)
	if err != nil {
		return nil, err
	}
	var resp editResponse
	raw, err := g.legacyPost(ctx, s, transport.FormRequest(s.APIURL(), form), &resp)
	if err != nil {
		return nil, err
	}

	switch {
	case resp.Edit != nil && resp.Edit.Result == "Success":
		return &PageResult{
			PageID:       resp.Edit.PageID,
			Title:        resp.Edit.Title,
			RevisionID:   resp.Edit.NewRevID,
			Timestamp:    resp.Edit.NewTimestamp,
			ContentModel: resp.Edit.ContentModel,
		}, nil
	case resp.Error != nil:
		return nil, &apierrors.APIError{Code: resp.Error.Code, Info: resp.Error.Info}
	default:
		return nil, &apierrors.UnknownResponseError{Action: "edit", Body: string(raw)}
	}
}

// legacyPost sends req to the action API and decodes the reply into out,
// returning the raw body for diagnostics.
func (g *Gateway) legacyPost(ctx context.Context, s *site.Site, req transport.Request, out any) ([]byte, error) {
	if s.Kind() == site.CredentialBearer {
		req.Bearer = s.Token
	}
	req.Header = http.Header{"Accept": []string{"application/json"}}
	resp, err := g.transport.Do(ctx, req)
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal(resp.Body, out); err != nil {
		return nil, &apierrors.DecodeError{URL: resp.URL, RawBody: string(resp.Body), Err: err}
	}
	return resp.Body, nil
}

func requireTitle(title string) error {
	if strings.TrimSpace(title) == "" {
		return apierrors.NewValidationError("title", "", "page title is required")
	}
	return nil
}
