package gateway

import (
	"context"
	"fmt"
	"io"
	"path/filepath"
	"sort"
	"strings"

	apierrors "github.com/olgasafonova/mediawiki-mcp-server/internal/errors"
	"github.com/olgasafonova/mediawiki-mcp-server/internal/site"
	"github.com/olgasafonova/mediawiki-mcp-server/internal/transport"
	"github.com/olgasafonova/mediawiki-mcp-server/metrics"
	"github.com/olgasafonova/mediawiki-mcp-server/tracing"
)

// DeleteResult is the outcome of a page deletion.
type DeleteResult struct {
	Title   string `json:"title"`
	Reason  string `json:"reason"`
	LogID   int64  `json:"log_id,omitempty"`
	WriteID string `json:"write_id"`
}

type deleteParams struct {
	Action string `url:"action"`
	Title  string `url:"title"`
	Reason string `url:"reason"`
	Token  string `url:"token"`
	Format string `url:"format"`
}

type deleteResponse struct {
	Delete *struct {
		Title  string `json:"title"`
		Reason string `json:"reason"`
		LogID  int64  `json:"logid"`
	} `json:"delete"`
	Error *apiErrorBody `json:"error"`
}

// DeletePage deletes a page through the legacy API. The REST API has no
// delete endpoint, so there is no fallback.
func (g *Gateway) DeletePage(ctx context.Context, s *site.Site, title, comment string) (*DeleteResult, error) {
	if err := requireTitle(title); err != nil {
		return nil, err
	}
	if comment == "" {
		comment = DefaultDeleteSummary
	}

	writeID := g.newID()
	ctx, span := tracing.StartSpan(ctx, "gateway.delete-page")
	defer span.End()
	tracing.AddWikiAttributes(span, s.Key, "delete-page", title)

	res, err := g.deletePage(ctx, s, title, comment)
	g.finish(span, "delete-page", ProtocolLegacy, writeID, err)
	if err != nil {
		return nil, err
	}
	res.WriteID = writeID
	return res, nil
}

func (g *Gateway) deletePage(ctx context.Context, s *site.Site, title, comment string) (*DeleteResult, error) {
	token, ok := g.tokens.Token(ctx, s)
	if !ok {
		return nil, &apierrors.CSRFAcquisitionError{Site: s.Key}
	}
	form, err := transport.Params(deleteParams{
		Action: "delete",
		Title:  title,
		Reason: comment,
		Token:  token,
		Format: "json",
	})
	if err != nil {
		return nil, err
	}

	var resp deleteResponse
	raw, err := g.legacyPost(ctx, s, transport.FormRequest(s.APIURL(), form), &resp)
	if err != nil {
		return nil, err
	}
	switch {
	case resp.Delete != nil:
		return &DeleteResult{Title: resp.Delete.Title, Reason: resp.Delete.Reason, LogID: resp.Delete.LogID}, nil
	case resp.Error != nil:
		return nil, &apierrors.APIError{Code: resp.Error.Code, Info: resp.Error.Info}
	default:
		return nil, &apierrors.UnknownResponseError{Action: "delete", Body: string(raw)}
	}
}

// UploadRequest describes a file upload. Filename is the wiki file name; a
// leading "File:" is stripped. SourceName is the local file name sent in the
// multipart part.
type UploadRequest struct {
	Filename       string
	SourceName     string
	Comment        string
	IgnoreWarnings bool
	Content        io.Reader
}

// UploadResult is the outcome of a successful upload.
type UploadResult struct {
	Filename string `json:"filename"`
	Size     int64  `json:"size,omitempty"`
	URL      string `json:"url"`
	WriteID  string `json:"write_id"`
}

// UploadWarningsError is returned when the wiki refuses an upload with
// warnings and IgnoreWarnings was not set.
type UploadWarningsError struct {
	Warnings []string
}

func (e *UploadWarningsError) Error() string {
	return fmt.Sprintf("upload warnings: %s. Use ignoreWarnings=true to override", strings.Join(e.Warnings, ", "))
}

type uploadParams struct {
	Action         string `url:"action"`
	Filename       string `url:"filename"`
	Comment        string `url:"comment"`
	Token          string `url:"token"`
	Format         string `url:"format"`
	IgnoreWarnings string `url:"ignorewarnings,omitempty"`
}

type uploadResponse struct {
	Upload *struct {
		Result    string         `json:"result"`
		Filename  string         `json:"filename"`
		Size      int64          `json:"size"`
		Warnings  map[string]any `json:"warnings"`
		ImageInfo *struct {
			Size int64 `json:"size"`
		} `json:"imageinfo"`
	} `json:"upload"`
	Error *apiErrorBody `json:"error"`
}

// UploadFile uploads a file with a multipart action=upload request.
func (g *Gateway) UploadFile(ctx context.Context, s *site.Site, req UploadRequest) (*UploadResult, error) {
	filename := NormalizeFilename(req.Filename)
	if filename == "" {
		return nil, apierrors.NewValidationError("wikiFilename", req.Filename, "file name is required")
	}
	if req.Content == nil {
		return nil, apierrors.NewValidationError("localFilePath", req.SourceName, "no file content")
	}

	writeID := g.newID()
	ctx, span := tracing.StartSpan(ctx, "gateway.upload-file")
	defer span.End()
	tracing.AddWikiAttributes(span, s.Key, "upload-file", "File:"+filename)

	res, err := g.upload(ctx, s, filename, req)
	g.finish(span, "upload-file", ProtocolLegacy, writeID, err)
	if err != nil {
		return nil, err
	}
	res.WriteID = writeID
	if res.Size > 0 {
		metrics.ContentSize.WithLabelValues("upload-file").Observe(float64(res.Size))
	}
	return res, nil
}

func (g *Gateway) upload(ctx context.Context, s *site.Site, filename string, req UploadRequest) (*UploadResult, error) {
	token, ok := g.tokens.Token(ctx, s)
	if !ok {
		return nil, &apierrors.CSRFAcquisitionError{Site: s.Key}
	}

	comment := req.Comment
	if comment == "" {
		comment = DefaultUploadSummary
	}
	p := uploadParams{
		Action:   "upload",
		Filename: filename,
		Comment:  comment,
		Token:    token,
		Format:   "json",
	}
	if req.IgnoreWarnings {
		p.IgnoreWarnings = "1"
	}
	fields, err := transport.Params(p)
	if err != nil {
		return nil, err
	}

	sourceName := filepath.Base(req.SourceName)
	if req.SourceName == "" {
		sourceName = filename
	}
	mreq, err := transport.MultipartRequest(s.APIURL(), fields, transport.File{
		Field:    "file",
		Filename: sourceName,
		Reader:   req.Content,
	})
	if err != nil {
		return nil, fmt.Errorf("build upload request: %w", err)
	}

	var resp uploadResponse
	raw, err := g.legacyPost(ctx, s, mreq, &resp)
	if err != nil {
		return nil, err
	}

	switch {
	case resp.Upload != nil && resp.Upload.Result == "Success":
		name := resp.Upload.Filename
		if name == "" {
			name = filename
		}
		size := resp.Upload.Size
		if size == 0 && resp.Upload.ImageInfo != nil {
			size = resp.Upload.ImageInfo.Size
		}
		return &UploadResult{Filename: name, Size: size, URL: s.PageURL("File:" + name)}, nil
	case resp.Upload != nil && len(resp.Upload.Warnings) > 0 && !req.IgnoreWarnings:
		warnings := make([]string, 0, len(resp.Upload.Warnings))
		for w := range resp.Upload.Warnings {
			warnings = append(warnings, w)
		}
		sort.Strings(warnings)
		return nil, &UploadWarningsError{Warnings: warnings}
	case resp.Error != nil:
		return nil, &apierrors.APIError{Code: resp.Error.Code, Info: resp.Error.Info}
	default:
		return nil, &apierrors.UnknownResponseError{Action: "upload", Body: string(raw)}
	}
}

// NormalizeFilename strips a "File:" namespace prefix and surrounding space.
func NormalizeFilename(name string) string {
	name = strings.TrimSpace(name)
	if len(name) >= 5 && strings.EqualFold(name[:5], "file:") {
		name = name[5:]
	}
	return strings.TrimSpace(name)
}
