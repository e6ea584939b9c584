package wiki

import (
	"context"
	"errors"
	"strings"
	"testing"

	apierrors "github.com/olgasafonova/mediawiki-mcp-server/internal/errors"
)

func TestSearchPage(t *testing.T) {
	f := newFixture(t)
	f.primary.handle("/w/rest.php/v1/search/page", `{"pages":[
		{"id":1,"key":"Main_Page","title":"Main Page","excerpt":"the <span>main</span> page","description":"Landing page","thumbnail":{"url":"//img/main.png"}},
		{"id":2,"key":"Help:Contents","title":"Help:Contents","excerpt":"","description":null,"thumbnail":null}
	]}`)

	result, err := f.service.SearchPage(context.Background(), SearchPageArgs{Query: "main"})
	if err != nil {
		t.Fatalf("SearchPage failed: %v", err)
	}

	req := f.primary.lastRequest(t)
	if req.Query.Get("q") != "main" {
		t.Errorf("q = %q, want %q", req.Query.Get("q"), "main")
	}
	if req.Query.Get("limit") != "10" {
		t.Errorf("limit = %q, want default 10", req.Query.Get("limit"))
	}

	if result.Wiki != "primary.test" {
		t.Errorf("Wiki = %q, want primary.test", result.Wiki)
	}
	if len(result.Pages) != 2 {
		t.Fatalf("Expected 2 pages, got %d", len(result.Pages))
	}
	first := result.Pages[0]
	if first.PageID != 1 || first.Title != "Main Page" {
		t.Errorf("first hit = %+v", first)
	}
	if first.URL != f.primary.srv.URL+"/wiki/Main_Page" {
		t.Errorf("URL = %q", first.URL)
	}
	if first.Description != "Landing page" || first.ThumbnailURL != "//img/main.png" {
		t.Errorf("description/thumbnail = %q/%q", first.Description, first.ThumbnailURL)
	}
	if result.Pages[1].Description != "" || result.Pages[1].ThumbnailURL != "" {
		t.Errorf("Expected empty description and thumbnail, got %+v", result.Pages[1])
	}
	if result.Message != "" {
		t.Errorf("Message = %q, want empty", result.Message)
	}
}

func TestSearchPage_NoResults(t *testing.T) {
	f := newFixture(t)
	f.primary.handle("/w/rest.php/v1/search/page", `{"pages":[]}`)

	result, err := f.service.SearchPage(context.Background(), SearchPageArgs{Query: "zzz", Limit: 5})
	if err != nil {
		t.Fatalf("SearchPage failed: %v", err)
	}
	if len(result.Pages) != 0 {
		t.Errorf("Expected no pages, got %d", len(result.Pages))
	}
	if result.Message != "No pages found for zzz" {
		t.Errorf("Message = %q", result.Message)
	}
	if got := f.primary.lastRequest(t).Query.Get("limit"); got != "5" {
		t.Errorf("limit = %q, want 5", got)
	}
}

func TestSearchPage_Validation(t *testing.T) {
	f := newFixture(t)

	tests := []struct {
		name string
		args SearchPageArgs
	}{
		{"empty query", SearchPageArgs{Query: " "}},
		{"limit too high", SearchPageArgs{Query: "x", Limit: 101}},
		{"negative limit", SearchPageArgs{Query: "x", Limit: -1}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.service.SearchPage(context.Background(), tt.args)
			if !apierrors.IsValidation(err) {
				t.Errorf("Expected validation error, got %v", err)
			}
		})
	}
	if f.primary.requestCount() != 0 {
		t.Errorf("Expected no requests, got %d", f.primary.requestCount())
	}
}

func TestSearchPage_HTTPErrorIsWrapped(t *testing.T) {
	f := newFixture(t)
	f.primary.handleStatus("/w/rest.php/v1/search/page", 500, `{"messageTranslations":{"en":"boom"}}`)

	_, err := f.service.SearchPage(context.Background(), SearchPageArgs{Query: "x"})
	if err == nil {
		t.Fatal("Expected error")
	}
	if apierrors.HTTPStatus(err) != 500 {
		t.Errorf("HTTPStatus = %d, want 500", apierrors.HTTPStatus(err))
	}
	if !strings.Contains(err.Error(), "search primary.test") {
		t.Errorf("error = %q, want wiki key context", err.Error())
	}
}

func TestSearchPageByPrefix(t *testing.T) {
	f := newFixture(t)
	f.primary.handle("/w/api.php", `{"query":{"allpages":[
		{"pageid":3,"ns":0,"title":"Foo"},
		{"pageid":4,"ns":0,"title":"Foobar"}
	]}}`)

	ns := 0
	result, err := f.service.SearchPageByPrefix(context.Background(), SearchPageByPrefixArgs{
		Prefix: "Foo", Limit: 20, Namespace: &ns,
	})
	if err != nil {
		t.Fatalf("SearchPageByPrefix failed: %v", err)
	}

	q := f.primary.lastRequest(t).Query
	want := map[string]string{
		"action":      "query",
		"list":        "allpages",
		"apprefix":    "Foo",
		"aplimit":     "20",
		"apnamespace": "0",
		"format":      "json",
	}
	for k, v := range want {
		if q.Get(k) != v {
			t.Errorf("%s = %q, want %q", k, q.Get(k), v)
		}
	}
	if len(result.Titles) != 2 || result.Titles[0] != "Foo" || result.Titles[1] != "Foobar" {
		t.Errorf("Titles = %v", result.Titles)
	}
}

func TestSearchPageByPrefix_OmitsUnsetOptions(t *testing.T) {
	f := newFixture(t)
	f.primary.handle("/w/api.php", `{"query":{"allpages":[]}}`)

	result, err := f.service.SearchPageByPrefix(context.Background(), SearchPageByPrefixArgs{Prefix: "Zz"})
	if err != nil {
		t.Fatalf("SearchPageByPrefix failed: %v", err)
	}
	q := f.primary.lastRequest(t).Query
	if q.Has("aplimit") || q.Has("apnamespace") {
		t.Errorf("Expected aplimit and apnamespace to be omitted, got %v", q)
	}
	if result.Message != `No pages found with the prefix "Zz"` {
		t.Errorf("Message = %q", result.Message)
	}
}

func TestSearchPageByPrefix_APIError(t *testing.T) {
	f := newFixture(t)
	f.primary.handle("/w/api.php", `{"error":{"code":"badvalue","info":"Unrecognized value"}}`)

	_, err := f.service.SearchPageByPrefix(context.Background(), SearchPageByPrefixArgs{Prefix: "Foo"})
	var apiErr *apierrors.APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("Expected APIError, got %v", err)
	}
	if apiErr.Code != "badvalue" {
		t.Errorf("Code = %q, want badvalue", apiErr.Code)
	}
}

func TestSearchPageByPrefix_Validation(t *testing.T) {
	f := newFixture(t)
	neg := -1

	tests := []struct {
		name string
		args SearchPageByPrefixArgs
	}{
		{"empty prefix", SearchPageByPrefixArgs{}},
		{"limit too high", SearchPageByPrefixArgs{Prefix: "a", Limit: 501}},
		{"negative namespace", SearchPageByPrefixArgs{Prefix: "a", Namespace: &neg}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.service.SearchPageByPrefix(context.Background(), tt.args)
			if !apierrors.IsValidation(err) {
				t.Errorf("Expected validation error, got %v", err)
			}
		})
	}
}
