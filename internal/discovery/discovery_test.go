package discovery

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apierrors "github.com/olgasafonova/mediawiki-mcp-server/internal/errors"
	"github.com/olgasafonova/mediawiki-mcp-server/internal/transport"
)

// fakeWiki serves siteinfo under one script path and records request paths.
type fakeWiki struct {
	mu         sync.Mutex
	paths      []string
	scriptPath string // "-" disables the API entirely
	page       string
	server     string // reported server; defaults to the test server URL
	srv        *httptest.Server
}

func newFakeWiki(t *testing.T, scriptPath, page string) *fakeWiki {
	t.Helper()
	fw := &fakeWiki{scriptPath: scriptPath, page: page}
	fw.srv = httptest.NewServer(http.HandlerFunc(fw.serve))
	t.Cleanup(fw.srv.Close)
	return fw
}

func (fw *fakeWiki) serve(w http.ResponseWriter, r *http.Request) {
	fw.mu.Lock()
	fw.paths = append(fw.paths, r.URL.Path)
	fw.mu.Unlock()

	if fw.scriptPath != "-" && r.URL.Path == fw.scriptPath+"/api.php" {
		if r.URL.Query().Get("meta") != "siteinfo" {
			http.Error(w, "bad request", http.StatusBadRequest)
			return
		}
		server := fw.server
		if server == "" {
			server = fw.srv.URL
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = fmt.Fprintf(w, `{"query":{"general":{"sitename":"Fake Wiki","articlepath":"/wiki/$1","scriptpath":%q,"server":%q,"servername":"fake.example.org"}}}`,
			fw.scriptPath, server)
		return
	}
	if fw.page != "" && r.URL.Path == "/wiki/Main_Page" {
		w.Header().Set("Content-Type", "text/html")
		_, _ = w.Write([]byte(fw.page))
		return
	}
	http.NotFound(w, r)
}

func (fw *fakeWiki) Paths() []string {
	fw.mu.Lock()
	defer fw.mu.Unlock()
	return append([]string(nil), fw.paths...)
}

func (fw *fakeWiki) Host() string {
	u, _ := url.Parse(fw.srv.URL)
	return u.Host
}

func newDiscoverer() *Discoverer {
	return New(transport.New(transport.WithMaxRetries(0)))
}

func TestDiscover_ProbesWBeforeEmptyPath(t *testing.T) {
	fw := newFakeWiki(t, "", "")

	res, err := newDiscoverer().DiscoverURL(context.Background(), fw.srv.URL+"/wiki/Main_Page")
	require.NoError(t, err)

	assert.Equal(t, []string{"/w/api.php", "/api.php"}, fw.Paths())
	assert.Equal(t, "", res.Descriptor.ScriptPath)
	assert.Equal(t, "/wiki", res.Descriptor.ArticlePath)
	assert.Equal(t, fw.Host(), res.Key)
}

func TestDiscover_FirstCandidateWins(t *testing.T) {
	fw := newFakeWiki(t, "/w", "")

	res, err := newDiscoverer().DiscoverURL(context.Background(), fw.srv.URL+"/wiki/Some_Page")
	require.NoError(t, err)

	assert.Equal(t, []string{"/w/api.php"}, fw.Paths())
	assert.Equal(t, "Fake Wiki", res.Descriptor.Sitename)
	assert.Equal(t, "/w", res.Descriptor.ScriptPath)
	assert.Equal(t, fw.srv.URL, res.Descriptor.Server)
	assert.Equal(t, "fake.example.org", res.ServerName)
}

func TestDiscover_SearchFormHint(t *testing.T) {
	page := `<html><body>
<form id="searchform" action="/mediawiki/index.php" method="get"><input name="search"></form>
</body></html>`
	fw := newFakeWiki(t, "/mediawiki", page)

	res, err := newDiscoverer().DiscoverURL(context.Background(), fw.srv.URL+"/wiki/Main_Page")
	require.NoError(t, err)

	assert.Equal(t, []string{"/w/api.php", "/api.php", "/wiki/Main_Page", "/mediawiki/api.php"}, fw.Paths())
	assert.Equal(t, "/mediawiki", res.Descriptor.ScriptPath)
}

func TestDiscover_ConfiguredCandidates(t *testing.T) {
	fw := newFakeWiki(t, "/mediawiki", "")
	d := New(transport.New(transport.WithMaxRetries(0)), WithCandidates("/mediawiki", "/w"))

	res, err := d.DiscoverURL(context.Background(), fw.srv.URL+"/wiki/Main_Page")
	require.NoError(t, err)

	assert.Equal(t, []string{"/mediawiki/api.php"}, fw.Paths())
	assert.Equal(t, "/mediawiki", res.Descriptor.ScriptPath)
}

func TestDiscover_NoHintReprobesFixedList(t *testing.T) {
	fw := newFakeWiki(t, "-", "<html><body><p>not a wiki</p></body></html>")

	_, err := newDiscoverer().DiscoverURL(context.Background(), fw.srv.URL+"/wiki/Main_Page")
	require.Error(t, err)

	var discErr *apierrors.WikiDiscoveryError
	require.True(t, errors.As(err, &discErr))
	assert.Equal(t, apierrors.DiscoveryMessage, err.Error())
	assert.Equal(t,
		[]string{"/w/api.php", "/api.php", "/wiki/Main_Page", "/w/api.php", "/api.php"},
		fw.Paths())
}

func TestDiscover_UntrustedHintIsValidated(t *testing.T) {
	page := `<form id="searchform" action="/elsewhere/index.php"></form>`
	fw := newFakeWiki(t, "-", page)

	_, err := newDiscoverer().DiscoverURL(context.Background(), fw.srv.URL+"/wiki/Main_Page")
	require.Error(t, err)
	assert.Equal(t, []string{"/w/api.php", "/api.php", "/wiki/Main_Page", "/elsewhere/api.php"}, fw.Paths())
}

func TestDiscoverURL_InvalidURL(t *testing.T) {
	for _, raw := range []string{"not a url", "ftp://wiki.example.org/", "/relative/path"} {
		_, err := newDiscoverer().DiscoverURL(context.Background(), raw)
		require.Error(t, err, raw)
		assert.Equal(t, apierrors.DiscoveryMessage, err.Error())
		assert.True(t, apierrors.IsValidation(errors.Unwrap(err)), raw)
	}
}

func TestExtractScriptPath(t *testing.T) {
	tests := []struct {
		name   string
		html   string
		want   string
		wantOK bool
	}{
		{
			name:   "absolute path",
			html:   `<form id="searchform" action="/w/index.php">`,
			want:   "/w",
			wantOK: true,
		},
		{
			name:   "root index",
			html:   `<form action="/index.php" id="searchform"></form>`,
			want:   "",
			wantOK: true,
		},
		{
			name:   "full URL with query",
			html:   `<form id='searchform' action='https://wiki.example.org/core/Index.php?title=Special:Search'></form>`,
			want:   "/core",
			wantOK: true,
		},
		{
			name:   "relative action",
			html:   `<form id="searchform" action="mw/index.php"></form>`,
			want:   "/mw",
			wantOK: true,
		},
		{
			name:   "nested in layout",
			html:   `<div><div id="p-search"><form id="searchform" action="/x/y/index.php"><input></form></div></div>`,
			want:   "/x/y",
			wantOK: true,
		},
		{
			name:   "other form id",
			html:   `<form id="login" action="/w/index.php"></form>`,
			wantOK: false,
		},
		{
			name:   "action without index.php",
			html:   `<form id="searchform" action="/search"></form>`,
			wantOK: false,
		},
		{
			name:   "no form",
			html:   `<p>hello</p>`,
			wantOK: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := ExtractScriptPath(tt.html, "https://wiki.example.org")
			assert.Equal(t, tt.wantOK, ok)
			if tt.wantOK {
				assert.Equal(t, tt.want, got)
			}
		})
	}
}

func TestOrigin(t *testing.T) {
	got, err := Origin("https://wiki.example.org:8443/wiki/Foo?x=1")
	require.NoError(t, err)
	assert.Equal(t, "https://wiki.example.org:8443", got)
}

func TestDiscover_ProtocolRelativeServerKeepsOriginScheme(t *testing.T) {
	fw := newFakeWiki(t, "/w", "")
	fw.server = "//" + fw.Host()

	res, err := newDiscoverer().DiscoverURL(context.Background(), fw.srv.URL+"/wiki/Main_Page")
	require.NoError(t, err)

	assert.Equal(t, "http://"+fw.Host(), res.Descriptor.Server)
	assert.Equal(t, fw.Host(), res.Key)
}
