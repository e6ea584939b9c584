package wiki

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	apierrors "github.com/olgasafonova/mediawiki-mcp-server/internal/errors"
	"github.com/olgasafonova/mediawiki-mcp-server/internal/site"
	"github.com/olgasafonova/mediawiki-mcp-server/metrics"
)

// parseContentFormat validates a content format, defaulting to source.
func parseContentFormat(raw string, allowed ...ContentFormat) (ContentFormat, error) {
	if raw == "" {
		return ContentSource, nil
	}
	for _, f := range allowed {
		if ContentFormat(raw) == f {
			return f, nil
		}
	}
	names := make([]string, len(allowed))
	for i, f := range allowed {
		names[i] = string(f)
	}
	return "", apierrors.NewValidationError("content", raw, "must be one of "+strings.Join(names, ", "))
}

// subEndpoint maps a content format onto the REST page/revision route suffix.
func subEndpoint(f ContentFormat) string {
	switch f {
	case ContentHTML, ContentHTMLAndMetadata:
		return "/with_html"
	case ContentMetadata:
		return "/bare"
	default:
		return ""
	}
}

type restPageObject struct {
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
	Source  *string `json:"source"`
	HTML    *string `json:"html"`
	HTMLURL string  `json:"html_url"`
}

// GetPage returns a page's source, HTML, metadata or a combination.
func (s *Service) GetPage(ctx context.Context, args GetPageArgs) (PageContent, error) {
	if err := requireField("title", args.Title); err != nil {
		return PageContent{}, err
	}
	format, err := parseContentFormat(args.Content,
		ContentSource, ContentHTML, ContentMetadata, ContentSourceAndMetadata, ContentHTMLAndMetadata)
	if err != nil {
		return PageContent{}, err
	}

	target, err := s.siteFor(ctx, args.WikiURL)
	if err != nil {
		return PageContent{}, err
	}

	var page restPageObject
	path := "/v1/page/" + titlePath(args.Title) + subEndpoint(format)
	if err := s.restGet(ctx, target, path, nil, &page); err != nil {
		return PageContent{}, fmt.Errorf("get page %q: %w", args.Title, err)
	}

	result := PageContent{Title: page.Title, Wiki: target.Key, Format: format}
	if result.Title == "" {
		result.Title = args.Title
	}

	switch format {
	case ContentSource:
		result.Source = orNotAvailable(page.Source)
	case ContentHTML:
		result.HTML = orNotAvailable(page.HTML)
	default:
		result.Metadata = pageMetadata(target, &page)
		result.Source = page.Source
		result.HTML = page.HTML
	}
	if result.Source != nil {
		metrics.ContentSize.WithLabelValues("get-page").Observe(float64(len(*result.Source)))
	} else if result.HTML != nil {
		metrics.ContentSize.WithLabelValues("get-page").Observe(float64(len(*result.HTML)))
	}
	return result, nil
}

func pageMetadata(target *site.Site, page *restPageObject) *PageMetadata {
	md := &PageMetadata{
		PageID:                  page.ID,
		Title:                   page.Title,
		LatestRevisionID:        page.Latest.ID,
		LatestRevisionTimestamp: page.Latest.Timestamp,
		ContentModel:            page.ContentModel,
		HTMLURL:                 page.HTMLURL,
		URL:                     target.PageURL(page.Title),
	}
	if page.License.URL != "" || page.License.Title != "" {
		md.License = strings.TrimSpace(page.License.URL + " " + page.License.Title)
	}
	return md
}

func orNotAvailable(v *string) *string {
	if v != nil {
		return v
	}
	na := "Not available"
	return &na
}

type restRevisionObject struct {
	ID        int64  `json:"id"`
	Size      int64  `json:"size"`
	Delta     int64  `json:"delta"`
	Minor     bool   `json:"minor"`
	Timestamp string `json:"timestamp"`
	Comment   string `json:"comment"`
	User      struct {
		ID   int64  `json:"id"`
		Name string `json:"name"`
	} `json:"user"`
	Page struct {
		ID    int64  `json:"id"`
		Title string `json:"title"`
	} `json:"page"`
	ContentModel string  `json:"content_model"`
	Source       *string `json:"source"`
	HTML         *string `json:"html"`
}

func (r *restRevisionObject) revision() Revision {
	return Revision{
		ID:        r.ID,
		Timestamp: r.Timestamp,
		User:      r.User.Name,
		UserID:    r.User.ID,
		Comment:   r.Comment,
		Size:      r.Size,
		Delta:     r.Delta,
		Minor:     r.Minor,
	}
}

// GetRevision returns a single revision with its source or HTML.
func (s *Service) GetRevision(ctx context.Context, args GetRevisionArgs) (RevisionContent, error) {
	if args.ID <= 0 {
		return RevisionContent{}, apierrors.NewValidationError("id", strconv.FormatInt(args.ID, 10), "revision ID must be positive")
	}
	format, err := parseContentFormat(args.Content, ContentSource, ContentHTML, ContentMetadata)
	if err != nil {
		return RevisionContent{}, err
	}

	target, err := s.siteFor(ctx, args.WikiURL)
	if err != nil {
		return RevisionContent{}, err
	}

	var rev restRevisionObject
	path := "/v1/revision/" + strconv.FormatInt(args.ID, 10) + subEndpoint(format)
	if err := s.restGet(ctx, target, path, nil, &rev); err != nil {
		return RevisionContent{}, fmt.Errorf("get revision %d: %w", args.ID, err)
	}

	return RevisionContent{
		Revision:     rev.revision(),
		Wiki:         target.Key,
		PageID:       rev.Page.ID,
		PageTitle:    rev.Page.Title,
		ContentModel: rev.ContentModel,
		Format:       format,
		Source:       rev.Source,
		HTML:         rev.HTML,
	}, nil
}

type restFileObject struct {
	Title              string `json:"title"`
	FileDescriptionURL string `json:"file_description_url"`
	Latest             struct {
		Timestamp string `json:"timestamp"`
		User      struct {
			ID   int64  `json:"id"`
			Name string `json:"name"`
		} `json:"user"`
	} `json:"latest"`
	Preferred *restFileVariant `json:"preferred"`
	Original  *restFileVariant `json:"original"`
	Thumbnail *restFileVariant `json:"thumbnail"`
}

type restFileVariant struct {
	MediaType string `json:"mediatype"`
	Size      int64  `json:"size"`
	URL       string `json:"url"`
}

// GetFile returns file metadata and download links.
func (s *Service) GetFile(ctx context.Context, args GetFileArgs) (FileInfo, error) {
	if err := requireField("title", args.Title); err != nil {
		return FileInfo{}, err
	}
	target, err := s.siteFor(ctx, args.WikiURL)
	if err != nil {
		return FileInfo{}, err
	}

	title := args.Title
	if !strings.HasPrefix(strings.ToLower(title), "file:") {
		title = "File:" + title
	}

	var file restFileObject
	if err := s.restGet(ctx, target, "/v1/file/"+titlePath(title), nil, &file); err != nil {
		return FileInfo{}, fmt.Errorf("get file %q: %w", args.Title, err)
	}

	info := FileInfo{
		Title:           file.Title,
		Wiki:            target.Key,
		DescriptionURL:  file.FileDescriptionURL,
		LatestTimestamp: file.Latest.Timestamp,
		LatestUser:      file.Latest.User.Name,
	}
	if file.Preferred != nil {
		info.PreferredURL = file.Preferred.URL
		info.MediaType = file.Preferred.MediaType
	}
	if file.Original != nil {
		info.OriginalURL = file.Original.URL
		info.Size = file.Original.Size
		if info.MediaType == "" {
			info.MediaType = file.Original.MediaType
		}
	}
	if file.Thumbnail != nil {
		info.ThumbnailURL = file.Thumbnail.URL
	}
	return info, nil
}
