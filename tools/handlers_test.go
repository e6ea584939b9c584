package tools

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"testing"

	"github.com/olgasafonova/mediawiki-mcp-server/internal/gateway"
	"github.com/olgasafonova/mediawiki-mcp-server/internal/site"
	"github.com/olgasafonova/mediawiki-mcp-server/internal/transport"
	"github.com/olgasafonova/mediawiki-mcp-server/wiki"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

// newTestService builds a service over a single-wiki registry. server is the
// wiki's base URL; the resolver is unused by these tests.
func newTestService(t *testing.T, server string) *wiki.Service {
	t.Helper()
	registry, err := site.NewRegistry("wiki.test", map[string]site.Descriptor{
		"wiki.test": {
			Sitename:    "Test Wiki",
			Server:      server,
			ArticlePath: "/wiki",
			ScriptPath:  "/w",
		},
	})
	if err != nil {
		t.Fatalf("NewRegistry failed: %v", err)
	}
	tr := transport.New(transport.WithMaxRetries(0), transport.WithLogger(testLogger()))
	return wiki.NewService(registry, nil, tr, nil, wiki.WithLogger(testLogger()))
}

func TestNewHandlerRegistry(t *testing.T) {
	logger := testLogger()
	service := newTestService(t, "https://wiki.test")

	registry := NewHandlerRegistry(service, logger)

	if registry == nil {
		t.Fatal("Expected non-nil registry")
	}
	if registry.service != service {
		t.Error("Registry should hold the service reference")
	}
	if registry.logger != logger {
		t.Error("Registry should hold the logger reference")
	}
}

func TestBuildTool(t *testing.T) {
	registry := NewHandlerRegistry(newTestService(t, "https://wiki.test"), testLogger())

	tests := []struct {
		name      string
		spec      ToolSpec
		wantName  string
		wantDesc  string
		wantRO    bool
		wantIdem  bool
		wantDestr bool
		wantOpen  bool
	}{
		{
			name: "read-only tool",
			spec: ToolSpec{
				Name:        "get-page",
				Title:       "Get page",
				Description: "Return a wiki page",
				Method:      "GetPage",
				ReadOnly:    true,
				Idempotent:  true,
			},
			wantName: "get-page",
			wantDesc: "Return a wiki page",
			wantRO:   true,
			wantIdem: true,
		},
		{
			name: "destructive tool",
			spec: ToolSpec{
				Name:        "delete-page",
				Title:       "Delete page",
				Description: "Delete a wiki page",
				Method:      "DeletePage",
				Destructive: true,
				OpenWorld:   true,
			},
			wantName:  "delete-page",
			wantDesc:  "Delete a wiki page",
			wantDestr: true,
			wantOpen:  true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tool := registry.buildTool(tt.spec)

			if tool.Name != tt.wantName {
				t.Errorf("Name = %q, want %q", tool.Name, tt.wantName)
			}
			if tool.Description != tt.wantDesc {
				t.Errorf("Description = %q, want %q", tool.Description, tt.wantDesc)
			}
			if tool.Annotations == nil {
				t.Fatal("Expected annotations")
			}
			if tool.Annotations.ReadOnlyHint != tt.wantRO {
				t.Errorf("ReadOnlyHint = %v, want %v", tool.Annotations.ReadOnlyHint, tt.wantRO)
			}
			if tool.Annotations.IdempotentHint != tt.wantIdem {
				t.Errorf("IdempotentHint = %v, want %v", tool.Annotations.IdempotentHint, tt.wantIdem)
			}
			if tt.wantDestr && (tool.Annotations.DestructiveHint == nil || !*tool.Annotations.DestructiveHint) {
				t.Error("Expected DestructiveHint to be true")
			}
			if !tt.wantDestr && tool.Annotations.DestructiveHint != nil {
				t.Error("Expected DestructiveHint to be unset")
			}
			if tt.wantOpen && (tool.Annotations.OpenWorldHint == nil || !*tool.Annotations.OpenWorldHint) {
				t.Error("Expected OpenWorldHint to be true")
			}
		})
	}
}

func TestRecoverPanic(t *testing.T) {
	registry := NewHandlerRegistry(newTestService(t, "https://wiki.test"), testLogger())

	var err error
	func() {
		defer registry.recoverPanic("test_tool", &err)
		panic("test panic")
	}()

	if err == nil {
		t.Fatal("Expected recovered panic to be reported as an error")
	}
	if err.Error() != "test_tool failed: internal error" {
		t.Errorf("err = %q", err)
	}
}

func TestInvoke(t *testing.T) {
	registry := NewHandlerRegistry(newTestService(t, "https://wiki.test"), testLogger())
	spec := ToolSpec{Name: "test_tool", Category: "read"}

	t.Run("success", func(t *testing.T) {
		_, result, err := invoke(context.Background(), registry, spec,
			func(_ context.Context, args wiki.GetPageArgs) (wiki.PageContent, error) {
				return wiki.PageContent{Title: args.Title}, nil
			}, wiki.GetPageArgs{Title: "Main Page"})
		if err != nil {
			t.Fatalf("invoke failed: %v", err)
		}
		if result.Title != "Main Page" {
			t.Errorf("Title = %q", result.Title)
		}
	})

	t.Run("error is wrapped with tool name", func(t *testing.T) {
		sentinel := errors.New("boom")
		_, _, err := invoke(context.Background(), registry, spec,
			func(context.Context, wiki.GetPageArgs) (wiki.PageContent, error) {
				return wiki.PageContent{}, sentinel
			}, wiki.GetPageArgs{})
		if !errors.Is(err, sentinel) {
			t.Fatalf("Expected wrapped sentinel, got %v", err)
		}
		if err.Error() != "test_tool failed: boom" {
			t.Errorf("err = %q", err)
		}
	})

	t.Run("panic becomes error", func(t *testing.T) {
		_, _, err := invoke(context.Background(), registry, spec,
			func(context.Context, wiki.GetPageArgs) (wiki.PageContent, error) {
				panic("nil map")
			}, wiki.GetPageArgs{})
		if err == nil {
			t.Fatal("Expected error after panic")
		}
	})
}

func TestLogExecution(t *testing.T) {
	registry := NewHandlerRegistry(newTestService(t, "https://wiki.test"), testLogger())
	spec := ToolSpec{Name: "test_tool", Category: "search"}

	registry.logExecution(spec,
		wiki.SearchPageArgs{Query: "test"},
		wiki.SearchPageResult{Wiki: "wiki.test", Pages: []wiki.SearchHit{{Title: "Test"}}})

	registry.logExecution(spec,
		wiki.UpdatePageArgs{Title: "Page", LatestID: 3},
		gateway.PageResult{PageID: 1, RevisionID: 4, Protocol: gateway.ProtocolLegacy})

	registry.logExecution(spec,
		wiki.RemoveWikiArgs{URI: "mcp://wikis/wiki.test"},
		wiki.WikiResult{Key: "wiki.test"})
}

func TestAllToolsNotEmpty(t *testing.T) {
	if len(AllTools) == 0 {
		t.Error("AllTools should not be empty")
	}

	seen := make(map[string]bool)
	for i, spec := range AllTools {
		if spec.Name == "" {
			t.Errorf("Tool %d has empty Name", i)
		}
		if seen[spec.Name] {
			t.Errorf("Tool %s is defined twice", spec.Name)
		}
		seen[spec.Name] = true
		if spec.Method == "" {
			t.Errorf("Tool %s has empty Method", spec.Name)
		}
		if spec.Description == "" {
			t.Errorf("Tool %s has empty Description", spec.Name)
		}
		if spec.Category == "" {
			t.Errorf("Tool %s has empty Category", spec.Name)
		}
		if spec.ReadOnly && spec.Destructive {
			t.Errorf("Tool %s cannot be both read-only and destructive", spec.Name)
		}
	}
}

func TestToolSpecMethods(t *testing.T) {
	knownMethods := map[string]bool{
		"SearchPage":         true,
		"SearchPageByPrefix": true,
		"GetPage":            true,
		"GetPageHistory":     true,
		"GetRevision":        true,
		"GetFile":            true,
		"CreatePage":         true,
		"UpdatePage":         true,
		"DeletePage":         true,
		"UploadFile":         true,
		"AddWiki":            true,
		"RemoveWiki":         true,
		"SetWiki":            true,
	}

	for _, spec := range AllTools {
		if !knownMethods[spec.Method] {
			t.Errorf("Tool %s has unknown method: %s", spec.Name, spec.Method)
		}
	}
	if len(AllTools) != len(knownMethods) {
		t.Errorf("Expected %d tools, got %d", len(knownMethods), len(AllTools))
	}
}

func TestAllToolsCategories(t *testing.T) {
	counts := make(map[string]int)
	for _, spec := range AllTools {
		counts[spec.Category]++
		switch spec.Category {
		case "search", "read":
			if !spec.ReadOnly {
				t.Errorf("Tool %s in %s should be read-only", spec.Name, spec.Category)
			}
		case "write":
			if spec.ReadOnly {
				t.Errorf("Tool %s writes and cannot be read-only", spec.Name)
			}
		case "wikis":
		default:
			t.Errorf("Tool %s has unknown category %s", spec.Name, spec.Category)
		}
	}

	want := map[string]int{"search": 2, "read": 4, "write": 4, "wikis": 3}
	for category, n := range want {
		if counts[category] != n {
			t.Errorf("category %s: expected %d tools, got %d", category, n, counts[category])
		}
	}
}
