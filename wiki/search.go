package wiki

import (
	"context"
	"fmt"
	"net/url"
	"strconv"

	apierrors "github.com/olgasafonova/mediawiki-mcp-server/internal/errors"
)

type restSearchResponse struct {
	Pages []struct {
		ID          int64   `json:"id"`
		Key         string  `json:"key"`
		Title       string  `json:"title"`
		Excerpt     string  `json:"excerpt"`
		Description *string `json:"description"`
		Thumbnail   *struct {
			URL string `json:"url"`
		} `json:"thumbnail"`
	} `json:"pages"`
}

// SearchPage runs a full-text search over page titles and contents.
func (s *Service) SearchPage(ctx context.Context, args SearchPageArgs) (SearchPageResult, error) {
	if err := requireField("query", args.Query); err != nil {
		return SearchPageResult{}, err
	}
	limit := args.Limit
	if limit == 0 {
		limit = DefaultSearchLimit
	}
	if limit < 1 || limit > MaxSearchLimit {
		return SearchPageResult{}, apierrors.NewValidationError("limit", strconv.Itoa(args.Limit), "must be between 1 and 100")
	}

	target, err := s.siteFor(ctx, args.WikiURL)
	if err != nil {
		return SearchPageResult{}, err
	}

	q := url.Values{}
	q.Set("q", args.Query)
	q.Set("limit", strconv.Itoa(limit))

	var resp restSearchResponse
	if err := s.restGet(ctx, target, "/v1/search/page", q, &resp); err != nil {
		return SearchPageResult{}, fmt.Errorf("search %s: %w", target.Key, err)
	}

	result := SearchPageResult{
		Query: args.Query,
		Wiki:  target.Key,
		Pages: make([]SearchHit, 0, len(resp.Pages)),
	}
	for _, p := range resp.Pages {
		hit := SearchHit{
			PageID:  p.ID,
			Title:   p.Title,
			Excerpt: p.Excerpt,
			URL:     target.PageURL(p.Key),
		}
		if p.Description != nil {
			hit.Description = *p.Description
		}
		if p.Thumbnail != nil {
			hit.ThumbnailURL = p.Thumbnail.URL
		}
		result.Pages = append(result.Pages, hit)
	}
	if len(result.Pages) == 0 {
		result.Message = fmt.Sprintf("No pages found for %s", args.Query)
	}
	return result, nil
}

type allPagesParams struct {
	Action    string `url:"action"`
	List      string `url:"list"`
	Prefix    string `url:"apprefix"`
	Limit     int    `url:"aplimit,omitempty"`
	Namespace *int   `url:"apnamespace,omitempty"`
	Format    string `url:"format"`
}

type allPagesResponse struct {
	Query struct {
		AllPages []struct {
			PageID int64  `json:"pageid"`
			NS     int    `json:"ns"`
			Title  string `json:"title"`
		} `json:"allpages"`
	} `json:"query"`
	Error *struct {
		Code string `json:"code"`
		Info string `json:"info"`
	} `json:"error"`
}

// SearchPageByPrefix lists page titles starting with a prefix.
func (s *Service) SearchPageByPrefix(ctx context.Context, args SearchPageByPrefixArgs) (SearchPageByPrefixResult, error) {
	if err := requireField("prefix", args.Prefix); err != nil {
		return SearchPageByPrefixResult{}, err
	}
	if args.Limit < 0 || args.Limit > MaxPrefixLimit {
		return SearchPageByPrefixResult{}, apierrors.NewValidationError("limit", strconv.Itoa(args.Limit), "must be between 1 and 500")
	}
	if args.Namespace != nil && *args.Namespace < 0 {
		return SearchPageByPrefixResult{}, apierrors.NewValidationError("namespace", strconv.Itoa(*args.Namespace), "must not be negative")
	}

	target, err := s.siteFor(ctx, args.WikiURL)
	if err != nil {
		return SearchPageByPrefixResult{}, err
	}

	var resp allPagesResponse
	err = s.legacyGet(ctx, target, allPagesParams{
		Action:    "query",
		List:      "allpages",
		Prefix:    args.Prefix,
		Limit:     args.Limit,
		Namespace: args.Namespace,
		Format:    "json",
	}, &resp)
	if err != nil {
		return SearchPageByPrefixResult{}, fmt.Errorf("prefix search %s: %w", target.Key, err)
	}
	if resp.Error != nil {
		return SearchPageByPrefixResult{}, &apierrors.APIError{Code: resp.Error.Code, Info: resp.Error.Info}
	}

	result := SearchPageByPrefixResult{
		Prefix: args.Prefix,
		Wiki:   target.Key,
		Titles: make([]string, 0, len(resp.Query.AllPages)),
	}
	for _, p := range resp.Query.AllPages {
		result.Titles = append(result.Titles, p.Title)
	}
	if len(result.Titles) == 0 {
		result.Message = fmt.Sprintf("No pages found with the prefix %q", args.Prefix)
	}
	return result, nil
}
