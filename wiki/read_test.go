package wiki

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"path/filepath"
	"sync"
	"testing"

	apierrors "github.com/olgasafonova/mediawiki-mcp-server/internal/errors"
)

const pageJSON = `{
	"id": 42,
	"key": "Main_Page",
	"title": "Main Page",
	"latest": {"id": 1001, "timestamp": "2024-05-01T10:00:00Z"},
	"content_model": "wikitext",
	"license": {"url": "https://creativecommons.org/licenses/by-sa/4.0/", "title": "CC BY-SA 4.0"},
	"source": "'''Hello'''",
	"html_url": "https://wiki.test/w/rest.php/v1/page/Main_Page/html"
}`

const pageHTMLJSON = `{
	"id": 42,
	"key": "Main_Page",
	"title": "Main Page",
	"latest": {"id": 1001, "timestamp": "2024-05-01T10:00:00Z"},
	"content_model": "wikitext",
	"license": {"url": "", "title": ""},
	"html": "<b>Hello</b>"
}`

const pageBareJSON = `{
	"id": 42,
	"key": "Main_Page",
	"title": "Main Page",
	"latest": {"id": 1001, "timestamp": "2024-05-01T10:00:00Z"},
	"content_model": "wikitext",
	"license": {"url": "https://creativecommons.org/licenses/by-sa/4.0/", "title": "CC BY-SA 4.0"},
	"html_url": "https://wiki.test/w/rest.php/v1/page/Main_Page/html"
}`

func TestGetPage_Formats(t *testing.T) {
	tests := []struct {
		content      string
		wantPath     string
		wantFormat   ContentFormat
		wantSource   string
		wantHTML     string
		wantMetadata bool
	}{
		{"", "/w/rest.php/v1/page/Main Page", ContentSource, "'''Hello'''", "", false},
		{"source", "/w/rest.php/v1/page/Main Page", ContentSource, "'''Hello'''", "", false},
		{"html", "/w/rest.php/v1/page/Main Page/with_html", ContentHTML, "", "<b>Hello</b>", false},
		{"metadata", "/w/rest.php/v1/page/Main Page/bare", ContentMetadata, "", "", true},
		{"sourceAndMetadata", "/w/rest.php/v1/page/Main Page", ContentSourceAndMetadata, "'''Hello'''", "", true},
		{"htmlAndMetadata", "/w/rest.php/v1/page/Main Page/with_html", ContentHTMLAndMetadata, "", "<b>Hello</b>", true},
	}

	for _, tt := range tests {
		t.Run("content="+tt.content, func(t *testing.T) {
			f := newFixture(t)
			f.primary.handle("/w/rest.php/v1/page/Main Page", pageJSON)
			f.primary.handle("/w/rest.php/v1/page/Main Page/with_html", pageHTMLJSON)
			f.primary.handle("/w/rest.php/v1/page/Main Page/bare", pageBareJSON)

			result, err := f.service.GetPage(context.Background(), GetPageArgs{Title: "Main Page", Content: tt.content})
			if err != nil {
				t.Fatalf("GetPage failed: %v", err)
			}

			if got := f.primary.lastRequest(t).Path; got != tt.wantPath {
				t.Errorf("path = %q, want %q", got, tt.wantPath)
			}
			if result.Format != tt.wantFormat {
				t.Errorf("Format = %q, want %q", result.Format, tt.wantFormat)
			}
			if tt.wantSource != "" && (result.Source == nil || *result.Source != tt.wantSource) {
				t.Errorf("Source = %v, want %q", result.Source, tt.wantSource)
			}
			if tt.wantHTML != "" && (result.HTML == nil || *result.HTML != tt.wantHTML) {
				t.Errorf("HTML = %v, want %q", result.HTML, tt.wantHTML)
			}
			if tt.wantMetadata != (result.Metadata != nil) {
				t.Fatalf("Metadata present = %v, want %v", result.Metadata != nil, tt.wantMetadata)
			}
			if tt.wantMetadata {
				md := result.Metadata
				if md.PageID != 42 || md.LatestRevisionID != 1001 {
					t.Errorf("metadata ids = %d/%d, want 42/1001", md.PageID, md.LatestRevisionID)
				}
				if md.URL != f.primary.srv.URL+"/wiki/Main_Page" {
					t.Errorf("URL = %q", md.URL)
				}
			}
		})
	}
}

func TestGetPage_MissingContentIsNotAvailable(t *testing.T) {
	f := newFixture(t)
	f.primary.handle("/w/rest.php/v1/page/Empty", `{"id":1,"key":"Empty","title":"Empty","latest":{"id":2,"timestamp":"x"},"content_model":"wikitext","license":{"url":"","title":""}}`)

	result, err := f.service.GetPage(context.Background(), GetPageArgs{Title: "Empty"})
	if err != nil {
		t.Fatalf("GetPage failed: %v", err)
	}
	if result.Source == nil || *result.Source != "Not available" {
		t.Errorf("Source = %v, want Not available", result.Source)
	}
}

func TestGetPage_License(t *testing.T) {
	f := newFixture(t)
	f.primary.handle("/w/rest.php/v1/page/Main Page/bare", pageBareJSON)

	result, err := f.service.GetPage(context.Background(), GetPageArgs{Title: "Main Page", Content: "metadata"})
	if err != nil {
		t.Fatalf("GetPage failed: %v", err)
	}
	want := "https://creativecommons.org/licenses/by-sa/4.0/ CC BY-SA 4.0"
	if result.Metadata.License != want {
		t.Errorf("License = %q, want %q", result.Metadata.License, want)
	}
}

func TestGetPage_Validation(t *testing.T) {
	f := newFixture(t)

	if _, err := f.service.GetPage(context.Background(), GetPageArgs{}); !apierrors.IsValidation(err) {
		t.Errorf("Expected validation error for empty title, got %v", err)
	}
	if _, err := f.service.GetPage(context.Background(), GetPageArgs{Title: "X", Content: "wikitext"}); !apierrors.IsValidation(err) {
		t.Errorf("Expected validation error for unknown format, got %v", err)
	}
}

func TestGetPage_NotFound(t *testing.T) {
	f := newFixture(t)

	_, err := f.service.GetPage(context.Background(), GetPageArgs{Title: "Missing"})
	if apierrors.HTTPStatus(err) != 404 {
		t.Errorf("Expected 404, got %v", err)
	}
}

func TestGetPage_WikiURLDoesNotChangeCurrent(t *testing.T) {
	f := newFixture(t)
	other := f.addWiki(t, "other.test", "https://other.test/wiki/Main_Page")
	other.handle("/w/rest.php/v1/page/Main Page", pageJSON)

	result, err := f.service.GetPage(context.Background(), GetPageArgs{
		Title:   "Main Page",
		WikiURL: "https://other.test/wiki/Main_Page",
	})
	if err != nil {
		t.Fatalf("GetPage failed: %v", err)
	}
	if result.Wiki != "other.test" {
		t.Errorf("Wiki = %q, want other.test", result.Wiki)
	}
	if f.primary.requestCount() != 0 {
		t.Errorf("Primary wiki received %d requests, want 0", f.primary.requestCount())
	}
	if f.registry.CurrentKey() != "primary.test" {
		t.Errorf("current = %q, want primary.test", f.registry.CurrentKey())
	}
}

func TestGetRevision(t *testing.T) {
	f := newFixture(t)
	f.primary.handle("/w/rest.php/v1/revision/1001/with_html", `{
		"id": 1001, "size": 120, "delta": -4, "minor": true,
		"timestamp": "2024-05-01T10:00:00Z", "comment": "typo",
		"user": {"id": 7, "name": "Alice"},
		"page": {"id": 42, "title": "Main Page"},
		"content_model": "wikitext",
		"html": "<p>Hi</p>"
	}`)

	result, err := f.service.GetRevision(context.Background(), GetRevisionArgs{ID: 1001, Content: "html"})
	if err != nil {
		t.Fatalf("GetRevision failed: %v", err)
	}
	if result.ID != 1001 || result.User != "Alice" || result.UserID != 7 || !result.Minor {
		t.Errorf("revision = %+v", result.Revision)
	}
	if result.PageID != 42 || result.PageTitle != "Main Page" {
		t.Errorf("page = %d/%q", result.PageID, result.PageTitle)
	}
	if result.HTML == nil || *result.HTML != "<p>Hi</p>" {
		t.Errorf("HTML = %v", result.HTML)
	}
	if result.Delta != -4 {
		t.Errorf("Delta = %d, want -4", result.Delta)
	}
}

func TestGetRevision_Validation(t *testing.T) {
	f := newFixture(t)

	if _, err := f.service.GetRevision(context.Background(), GetRevisionArgs{}); !apierrors.IsValidation(err) {
		t.Errorf("Expected validation error for zero id, got %v", err)
	}
	if _, err := f.service.GetRevision(context.Background(), GetRevisionArgs{ID: 1, Content: "sourceAndMetadata"}); !apierrors.IsValidation(err) {
		t.Errorf("Expected validation error for page-only format, got %v", err)
	}
}

func TestGetFile(t *testing.T) {
	f := newFixture(t)
	f.primary.handle("/w/rest.php/v1/file/File:Logo.png", `{
		"title": "Logo.png",
		"file_description_url": "//wiki.test/wiki/File:Logo.png",
		"latest": {"timestamp": "2024-01-01T00:00:00Z", "user": {"id": 1, "name": "Admin"}},
		"preferred": {"mediatype": "BITMAP", "size": null, "url": "//upload/preferred.png"},
		"original": {"mediatype": "BITMAP", "size": 2048, "url": "//upload/Logo.png"},
		"thumbnail": {"mediatype": "BITMAP", "size": null, "url": "//upload/thumb.png"}
	}`)

	for _, title := range []string{"Logo.png", "File:Logo.png"} {
		t.Run(title, func(t *testing.T) {
			info, err := f.service.GetFile(context.Background(), GetFileArgs{Title: title})
			if err != nil {
				t.Fatalf("GetFile failed: %v", err)
			}
			if info.LatestUser != "Admin" || info.Size != 2048 || info.MediaType != "BITMAP" {
				t.Errorf("info = %+v", info)
			}
			if info.OriginalURL != "//upload/Logo.png" || info.ThumbnailURL != "//upload/thumb.png" || info.PreferredURL != "//upload/preferred.png" {
				t.Errorf("urls = %q %q %q", info.OriginalURL, info.ThumbnailURL, info.PreferredURL)
			}
		})
	}
}

func TestUploadFile_Validation(t *testing.T) {
	f := newFixture(t)
	dir := t.TempDir()

	tests := []struct {
		name string
		path string
	}{
		{"empty path", ""},
		{"relative path", "logo.png"},
		{"directory", dir},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.service.UploadFile(context.Background(), UploadFileArgs{LocalFilePath: tt.path, WikiFilename: "Logo.png"})
			if !apierrors.IsValidation(err) {
				t.Errorf("Expected validation error, got %v", err)
			}
		})
	}

	_, err := f.service.UploadFile(context.Background(), UploadFileArgs{
		LocalFilePath: filepath.Join(dir, "missing.png"),
		WikiFilename:  "Logo.png",
	})
	if !errors.Is(err, fs.ErrNotExist) {
		t.Errorf("Expected not-exist error, got %v", err)
	}
}

func TestGetPage_ConcurrentCallsUseTheirOwnWiki(t *testing.T) {
	f := newFixture(t)
	wikiA := f.addWiki(t, "a.test", "https://a.test/wiki/Shared")
	wikiB := f.addWiki(t, "b.test", "https://b.test/wiki/Shared")

	page := `{"id":1,"title":"Shared","latest":{"id":7,"timestamp":"2024-05-01T10:00:00Z"},"content_model":"wikitext","license":{"url":"","title":""},"source":%q}`
	f.primary.handle("/w/rest.php/v1/page/Shared", fmt.Sprintf(page, "from primary"))
	wikiA.handle("/w/rest.php/v1/page/Shared", fmt.Sprintf(page, "from a.test"))
	wikiB.handle("/w/rest.php/v1/page/Shared", fmt.Sprintf(page, "from b.test"))

	targets := []struct {
		wikiURL string
		key     string
		source  string
	}{
		{"", "primary.test", "from primary"},
		{"https://a.test/wiki/Shared", "a.test", "from a.test"},
		{"https://b.test/wiki/Shared", "b.test", "from b.test"},
	}

	const rounds = 20
	var wg sync.WaitGroup
	errs := make(chan error, rounds*len(targets))
	for i := 0; i < rounds; i++ {
		for _, target := range targets {
			wg.Add(1)
			go func() {
				defer wg.Done()
				res, err := f.service.GetPage(context.Background(), GetPageArgs{Title: "Shared", WikiURL: target.wikiURL})
				switch {
				case err != nil:
					errs <- fmt.Errorf("%s: %w", target.key, err)
				case res.Wiki != target.key:
					errs <- fmt.Errorf("call for %s answered by %s", target.key, res.Wiki)
				case res.Source == nil || *res.Source != target.source:
					errs <- fmt.Errorf("call for %s got source %v", target.key, res.Source)
				}
				if cur := f.registry.CurrentKey(); cur != "primary.test" {
					errs <- fmt.Errorf("current wiki changed to %s", cur)
				}
			}()
		}
	}
	wg.Wait()
	close(errs)

	for err := range errs {
		t.Error(err)
	}
	if f.registry.CurrentKey() != "primary.test" {
		t.Errorf("current = %q, want primary.test", f.registry.CurrentKey())
	}
}
