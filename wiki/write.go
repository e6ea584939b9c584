package wiki

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	apierrors "github.com/olgasafonova/mediawiki-mcp-server/internal/errors"
	"github.com/olgasafonova/mediawiki-mcp-server/internal/gateway"
)

// CreatePage creates a page through the write gateway.
func (s *Service) CreatePage(ctx context.Context, args CreatePageArgs) (gateway.PageResult, error) {
	target, err := s.siteFor(ctx, args.WikiURL)
	if err != nil {
		return gateway.PageResult{}, err
	}
	return deref(s.gateway.CreatePage(ctx, target, gateway.CreatePageRequest{
		Title:        args.Title,
		Source:       args.Source,
		Comment:      args.Comment,
		ContentModel: args.ContentModel,
	}))
}

// UpdatePage replaces a page's source, based on revision LatestID.
func (s *Service) UpdatePage(ctx context.Context, args UpdatePageArgs) (gateway.PageResult, error) {
	target, err := s.siteFor(ctx, args.WikiURL)
	if err != nil {
		return gateway.PageResult{}, err
	}
	return deref(s.gateway.UpdatePage(ctx, target, gateway.UpdatePageRequest{
		Title:    args.Title,
		Source:   args.Source,
		Comment:  args.Comment,
		LatestID: args.LatestID,
	}))
}

// DeletePage deletes a page.
func (s *Service) DeletePage(ctx context.Context, args DeletePageArgs) (gateway.DeleteResult, error) {
	target, err := s.siteFor(ctx, args.WikiURL)
	if err != nil {
		return gateway.DeleteResult{}, err
	}
	return deref(s.gateway.DeletePage(ctx, target, args.Title, args.Comment))
}

// UploadFile uploads a local file to the wiki.
func (s *Service) UploadFile(ctx context.Context, args UploadFileArgs) (gateway.UploadResult, error) {
	if err := requireField("localFilePath", args.LocalFilePath); err != nil {
		return gateway.UploadResult{}, err
	}
	if !filepath.IsAbs(args.LocalFilePath) {
		return gateway.UploadResult{}, apierrors.NewValidationError("localFilePath", args.LocalFilePath, "must be an absolute path")
	}

	f, err := os.Open(args.LocalFilePath)
	if err != nil {
		return gateway.UploadResult{}, fmt.Errorf("file not found or not readable: %s: %w", args.LocalFilePath, err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return gateway.UploadResult{}, fmt.Errorf("stat %s: %w", args.LocalFilePath, err)
	}
	if info.IsDir() {
		return gateway.UploadResult{}, apierrors.NewValidationError("localFilePath", args.LocalFilePath, "is a directory")
	}

	target, err := s.siteFor(ctx, args.WikiURL)
	if err != nil {
		return gateway.UploadResult{}, err
	}
	return deref(s.gateway.UploadFile(ctx, target, gateway.UploadRequest{
		Filename:       args.WikiFilename,
		SourceName:     args.LocalFilePath,
		Comment:        args.Comment,
		IgnoreWarnings: args.IgnoreWarnings,
		Content:        f,
	}))
}

// deref flattens a gateway result so tool output is always a JSON object.
func deref[T any](v *T, err error) (T, error) {
	if err != nil || v == nil {
		var zero T
		return zero, err
	}
	return *v, nil
}
