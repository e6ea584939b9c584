package site

import (
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apierrors "github.com/olgasafonova/mediawiki-mcp-server/internal/errors"
)

func testRegistry(t *testing.T) *Registry {
	t.Helper()
	r, err := NewRegistry("a.example.org", map[string]Descriptor{
		"a.example.org": {Sitename: "A", Server: "https://a.example.org/", ArticlePath: "/wiki/$1", ScriptPath: "/w/"},
		"b.example.org": {Sitename: "B", Server: "https://b.example.org", ArticlePath: "/wiki", ScriptPath: "/w",
			Credential: Credential{Token: "secret"}},
	})
	require.NoError(t, err)
	return r
}

func TestNewRegistry_UnknownDefault(t *testing.T) {
	_, err := NewRegistry("missing", map[string]Descriptor{"a": {}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "missing")
}

func TestNewRegistry_NormalizesEntries(t *testing.T) {
	r := testRegistry(t)
	s, err := r.Get("a.example.org")
	require.NoError(t, err)

	assert.Equal(t, "https://a.example.org", s.Server)
	assert.Equal(t, "/wiki", s.ArticlePath)
	assert.Equal(t, "/w", s.ScriptPath)
	assert.Equal(t, "https://a.example.org/w/api.php", s.APIURL())
	assert.Equal(t, "https://a.example.org/w/rest.php", s.RESTURL())
	assert.Equal(t, "https://a.example.org/wiki/Main_Page", s.PageURL("Main Page"))
	assert.Equal(t, "a.example.org", s.Host())
}

func TestRegistry_CurrentStartsAtDefault(t *testing.T) {
	r := testRegistry(t)
	assert.Equal(t, "a.example.org", r.CurrentKey())
	assert.Equal(t, "a.example.org", r.DefaultKey())
	assert.Equal(t, "A", r.Current().Sitename)
}

func TestRegistry_AddExistingWins(t *testing.T) {
	r := testRegistry(t)

	added := r.Add("a.example.org", Descriptor{Sitename: "Other"})
	assert.False(t, added)

	s, err := r.Get("a.example.org")
	require.NoError(t, err)
	assert.Equal(t, "A", s.Sitename)
}

func TestRegistry_AliasLookup(t *testing.T) {
	r := testRegistry(t)
	require.NoError(t, r.AddAlias("www.a.example.org", "a.example.org"))

	key, ok := r.Lookup("www.a.example.org")
	require.True(t, ok)
	assert.Equal(t, "a.example.org", key)

	s, err := r.Get("www.a.example.org")
	require.NoError(t, err)
	assert.Equal(t, "a.example.org", s.Key)

	assert.Error(t, r.AddAlias("x", "nope"))
}

func TestRegistry_RemoveCurrentRefused(t *testing.T) {
	r := testRegistry(t)

	err := r.Remove("a.example.org")
	require.Error(t, err)
	assert.True(t, apierrors.IsValidation(err))
	assert.Contains(t, r.Keys(), "a.example.org")
}

func TestRegistry_RemoveDropsAliases(t *testing.T) {
	r := testRegistry(t)
	require.NoError(t, r.AddAlias("alias.b", "b.example.org"))

	require.NoError(t, r.Remove("b.example.org"))

	_, ok := r.Lookup("alias.b")
	assert.False(t, ok)
	assert.Equal(t, []string{"a.example.org"}, r.Keys())
}

func TestRegistry_GetUnknownSuggests(t *testing.T) {
	r := testRegistry(t)

	_, err := r.Get("b.example")
	require.Error(t, err)

	var nf *apierrors.NotFoundError
	require.ErrorAs(t, err, &nf)
	assert.Contains(t, nf.Suggestions, "b.example.org")
}

func TestRegistry_SetCurrent(t *testing.T) {
	r := testRegistry(t)

	s, err := r.SetCurrent("b.example.org")
	require.NoError(t, err)
	assert.Equal(t, "b.example.org", s.Key)
	assert.Equal(t, "b.example.org", r.CurrentKey())

	_, err = r.SetCurrent("nope")
	require.Error(t, err)
	assert.Equal(t, "b.example.org", r.CurrentKey())
}

func TestRegistry_SetCredentials(t *testing.T) {
	r := testRegistry(t)
	require.NoError(t, r.SetCredentials("a.example.org", Credential{Username: "bot", Password: "pw"}))

	s, _ := r.Get("a.example.org")
	assert.Equal(t, CredentialPassword, s.Credential.Kind())
}

func TestRegistry_Sanitized(t *testing.T) {
	r := testRegistry(t)
	d, err := r.Sanitized("b.example.org")
	require.NoError(t, err)
	assert.Empty(t, d.Token)
	assert.Equal(t, "B", d.Sitename)

	// The stored entry keeps its credential.
	s, _ := r.Get("b.example.org")
	assert.Equal(t, "secret", s.Token)
}

func TestRegistry_SnapshotsAreIndependent(t *testing.T) {
	r := testRegistry(t)
	s, _ := r.Get("a.example.org")
	s.Sitename = "mutated"

	again, _ := r.Get("a.example.org")
	assert.Equal(t, "A", again.Sitename)
}

func TestRegistry_Subscribe(t *testing.T) {
	r := testRegistry(t)
	var events []Event
	r.Subscribe(func(ev Event) { events = append(events, ev) })

	r.Add("c.example.org", Descriptor{Sitename: "C", Server: "https://c.example.org"})
	r.Add("c.example.org", Descriptor{Sitename: "dup"})
	require.NoError(t, r.Remove("c.example.org"))

	assert.Equal(t, []Event{{Kind: EventAdded, Key: "c.example.org"}, {Kind: EventRemoved, Key: "c.example.org"}}, events)
}

func TestRegistry_ConcurrentAccess(t *testing.T) {
	r := testRegistry(t)
	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			key := fmt.Sprintf("w%d.example.org", i)
			r.Add(key, Descriptor{Server: "https://" + key})
			_ = r.AddAlias("alias-"+key, key)
			_, _ = r.Get("alias-" + key)
			_ = r.Keys()
			_ = r.Current()
		}(i)
	}
	wg.Wait()
	assert.Len(t, r.Keys(), 22)
}

func TestCredential_Kind(t *testing.T) {
	assert.Equal(t, CredentialNone, Credential{}.Kind())
	assert.Equal(t, CredentialNone, Credential{Username: "u"}.Kind())
	assert.Equal(t, CredentialPassword, Credential{Username: "u", Password: "p"}.Kind())
	assert.Equal(t, CredentialBearer, Credential{Token: "t", Username: "u", Password: "p"}.Kind())
	assert.Equal(t, "bearer", CredentialBearer.String())
}

func TestNormalizePath(t *testing.T) {
	tests := map[string]string{
		"/wiki/$1": "/wiki",
		"/w/":      "/w",
		"":         "",
		"/$1":      "",
		" /w ":     "/w",
	}
	for in, want := range tests {
		assert.Equal(t, want, NormalizePath(in), "NormalizePath(%q)", in)
	}
}

func TestDescriptor_NormalizeProtocolRelative(t *testing.T) {
	d := Descriptor{Server: "//wiki.example.org/"}.Normalize()
	assert.Equal(t, "https://wiki.example.org", d.Server)
}
