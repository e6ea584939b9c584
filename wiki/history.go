package wiki

import (
	"context"
	"fmt"
	"net/url"
	"strconv"

	apierrors "github.com/olgasafonova/mediawiki-mcp-server/internal/errors"
)

var historyFilters = map[string]bool{
	"reverted":  true,
	"anonymous": true,
	"bot":       true,
	"minor":     true,
}

type restHistoryResponse struct {
	Revisions []restRevisionObject `json:"revisions"`
	Latest    string               `json:"latest"`
	Older     string               `json:"older"`
	Newer     string               `json:"newer"`
}

// GetPageHistory returns a segment of up to 20 revisions, newest first, with
// the REST routes of the neighbouring segments.
func (s *Service) GetPageHistory(ctx context.Context, args GetPageHistoryArgs) (PageHistoryResult, error) {
	if err := requireField("title", args.Title); err != nil {
		return PageHistoryResult{}, err
	}
	if args.OlderThan > 0 && args.NewerThan > 0 {
		return PageHistoryResult{}, apierrors.NewValidationError("olderThan", strconv.FormatInt(args.OlderThan, 10), "olderThan and newerThan cannot be combined")
	}
	if args.Filter != "" && !historyFilters[args.Filter] {
		return PageHistoryResult{}, apierrors.NewValidationError("filter", args.Filter, "must be one of reverted, anonymous, bot, minor")
	}

	target, err := s.siteFor(ctx, args.WikiURL)
	if err != nil {
		return PageHistoryResult{}, err
	}

	q := url.Values{}
	if args.OlderThan > 0 {
		q.Set("older_than", strconv.FormatInt(args.OlderThan, 10))
	}
	if args.NewerThan > 0 {
		q.Set("newer_than", strconv.FormatInt(args.NewerThan, 10))
	}
	if args.Filter != "" {
		q.Set("filter", args.Filter)
	}

	var resp restHistoryResponse
	if err := s.restGet(ctx, target, "/v1/page/"+titlePath(args.Title)+"/history", q, &resp); err != nil {
		return PageHistoryResult{}, fmt.Errorf("get history of %q: %w", args.Title, err)
	}

	result := PageHistoryResult{
		Title:     args.Title,
		Wiki:      target.Key,
		Revisions: make([]Revision, 0, len(resp.Revisions)),
		Older:     resp.Older,
		Newer:     resp.Newer,
		Latest:    resp.Latest,
	}
	for i := range resp.Revisions {
		result.Revisions = append(result.Revisions, resp.Revisions[i].revision())
	}
	if len(result.Revisions) == 0 {
		result.Message = "No revisions found for page"
	}
	return result, nil
}
