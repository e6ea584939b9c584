// Package site holds wiki site descriptors, the in-memory registry of known
// wikis, and the configuration file that seeds it.
package site

import (
	"net/url"
	"strings"
)

// CredentialKind tells how a site authenticates writes.
type CredentialKind int

const (
	CredentialNone CredentialKind = iota
	CredentialBearer
	CredentialPassword
)

func (k CredentialKind) String() string {
	switch k {
	case CredentialBearer:
		return "bearer"
	case CredentialPassword:
		return "password"
	default:
		return "none"
	}
}

// Credential is either an OAuth2 bearer token or a bot username/password pair.
// A bearer token takes precedence when both are set.
type Credential struct {
	Token    string `json:"token,omitempty" yaml:"token,omitempty"`
	Username string `json:"username,omitempty" yaml:"username,omitempty"`
	Password string `json:"password,omitempty" yaml:"password,omitempty"`
}

// Kind reports which credential is in effect.
func (c Credential) Kind() CredentialKind {
	switch {
	case c.Token != "":
		return CredentialBearer
	case c.Username != "" && c.Password != "":
		return CredentialPassword
	default:
		return CredentialNone
	}
}

// Descriptor fully specifies how to reach one wiki installation.
type Descriptor struct {
	Sitename    string `json:"sitename" yaml:"sitename"`
	Server      string `json:"server" yaml:"server"`
	ArticlePath string `json:"articlepath" yaml:"articlepath"`
	ScriptPath  string `json:"scriptpath" yaml:"scriptpath"`
	Credential  `yaml:",inline"`
}

// Normalize strips trailing "/$1" and trailing slashes from the paths and the server.
// A protocol-relative server ("//host") with no known origin, as in a config
// file, is given https.
func (d Descriptor) Normalize() Descriptor {
	d.Server = strings.TrimRight(strings.TrimSpace(d.Server), "/")
	if strings.HasPrefix(d.Server, "//") {
		d.Server = "https:" + d.Server
	}
	d.ArticlePath = NormalizePath(d.ArticlePath)
	d.ScriptPath = NormalizePath(d.ScriptPath)
	return d
}

// Sanitized returns a copy with all credential fields cleared.
func (d Descriptor) Sanitized() Descriptor {
	d.Credential = Credential{}
	return d
}

// NormalizePath removes a trailing "/$1" placeholder and any trailing slashes.
func NormalizePath(p string) string {
	p = strings.TrimSpace(p)
	p = strings.TrimSuffix(p, "/$1")
	return strings.TrimRight(p, "/")
}

// Site is a registry entry handed to a single call. Operations receive it
// explicitly instead of reading a shared "current wiki".
type Site struct {
	Key string
	Descriptor
}

// APIURL is the legacy action API endpoint.
func (s *Site) APIURL() string {
	return s.Server + s.ScriptPath + "/api.php"
}

// RESTURL is the base of the REST API; append "/v1/...".
func (s *Site) RESTURL() string {
	return s.Server + s.ScriptPath + "/rest.php"
}

// PageURL builds the human-facing URL of a page.
func (s *Site) PageURL(title string) string {
	return s.Server + s.ArticlePath + "/" + url.PathEscape(strings.ReplaceAll(title, " ", "_"))
}

// Host returns the host (with port) of the site's server.
func (s *Site) Host() string {
	u, err := url.Parse(s.Server)
	if err != nil {
		return ""
	}
	return u.Host
}
