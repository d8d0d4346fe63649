package guard

import (
	"fmt"
	"io"
	"os"
	"path"
	"strings"

	"gopkg.in/yaml.v3"
)

// RouteDescriptor marks a path as requiring a valid session. Sensitive
// routes additionally revalidate the token with the authority.
type RouteDescriptor struct {
	Path      string `yaml:"path" json:"path"`
	Protected bool   `yaml:"protected" json:"protected"`
	Sensitive bool   `yaml:"sensitive,omitempty" json:"sensitive,omitempty"`
}

// Table is the ordered, read-only route table.
type Table struct {
	routes []RouteDescriptor
	index  map[string]int
}

type tableFile struct {
	Routes []RouteDescriptor `yaml:"routes"`
}

// NewTable validates routes and builds a table from them.
func NewTable(routes []RouteDescriptor) (*Table, error) {
	t := &Table{
		routes: make([]RouteDescriptor, 0, len(routes)),
		index:  make(map[string]int, len(routes)),
	}
	for i, r := range routes {
		if !strings.HasPrefix(r.Path, "/") {
			return nil, fmt.Errorf("[guard.NewTable] route %d: path %q must start with /", i, r.Path)
		}
		r.Path = cleanPath(r.Path)
		if _, dup := t.index[r.Path]; dup {
			return nil, fmt.Errorf("[guard.NewTable] route %d: duplicate path %q", i, r.Path)
		}
		if r.Sensitive && !r.Protected {
			return nil, fmt.Errorf("[guard.NewTable] route %d: sensitive route %q must be protected", i, r.Path)
		}
		t.index[r.Path] = len(t.routes)
		t.routes = append(t.routes, r)
	}
	return t, nil
}

// LoadTable reads a YAML route table of the form
//
//	routes:
//	  - path: /dash
//	    protected: true
func LoadTable(r io.Reader) (*Table, error) {
	var f tableFile
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&f); err != nil {
		return nil, fmt.Errorf("[guard.LoadTable] yaml decode: %w", err)
	}
	return NewTable(f.Routes)
}

// LoadTableFile reads a YAML route table from disk.
func LoadTableFile(filename string) (*Table, error) {
	f, err := os.Open(filename)
	if err != nil {
		return nil, fmt.Errorf("[guard.LoadTableFile] %w", err)
	}
	defer f.Close()
	return LoadTable(f)
}

// DefaultTable is the built-in table: the login entry point and public pages
// are open, everything under the landing path needs a session. Both paths
// must be absolute and must not collide with each other or a fixed route.
func DefaultTable(loginPath, landingPath string) (*Table, error) {
	t, err := NewTable([]RouteDescriptor{
		{Path: "/"},
		{Path: loginPath},
		{Path: "/auth"},
		{Path: "/callback"},
		{Path: "/static"},
		{Path: "/healthz"},
		{Path: landingPath, Protected: true},
		{Path: path.Join(landingPath, "security"), Protected: true, Sensitive: true},
	})
	if err != nil {
		return nil, fmt.Errorf("[guard.DefaultTable] login path %q, landing path %q: %w", loginPath, landingPath, err)
	}
	return t, nil
}
