// Package view declares the console's page routes.
//
// The table is built once and never changes. Every declared path is served
// as its own URL (browser history mode); there is no fragment routing and
// no catch-all entry.
package view

import (
	"errors"
	"fmt"
	"strings"
)

// HistoryMode is the navigation mode of the console: path-based URLs.
const HistoryMode = "web"

// Route names.
const (
	NameHome     = "Home"
	NameSlaves   = "Slaves"
	NameLinkTest = "LinkTest"
	NameMessage  = "Message"
	NameReport   = "Report"
)

// View identifiers. Page handlers register under these.
const (
	HomeView     = "HomeView"
	SlaveManager = "SlaveManager"
	LinkTestView = "LinkTest"
	MessageView  = "Message"
	ReportView   = "Report"
)

// Validation errors returned by Table.Validate.
var (
	ErrDuplicatePath = errors.New("duplicate route path")
	ErrDuplicateName = errors.New("duplicate route name")
	ErrUnknownView   = errors.New("route references unknown view")
	ErrInvalidRoute  = errors.New("invalid route")
)

// Route binds a URL path to a named view.
type Route struct {
	Path string
	Name string
	View string
}

// Table is an ordered, read-only set of routes.
type Table struct {
	routes []Route
}

var declared = NewTable(
	Route{Path: "/", Name: NameHome, View: HomeView},
	Route{Path: "/slaves", Name: NameSlaves, View: SlaveManager},
	Route{Path: "/linktest", Name: NameLinkTest, View: LinkTestView},
	Route{Path: "/message", Name: NameMessage, View: MessageView},
	Route{Path: "/report", Name: NameReport, View: ReportView},
)

// Routes returns the console route table in declaration order.
func Routes() Table {
	return declared
}

// NewTable builds a table from routes. It does not validate them.
func NewTable(routes ...Route) Table {
	return Table{routes: append([]Route(nil), routes...)}
}

// All returns a copy of the routes in declaration order.
func (t Table) All() []Route {
	return append([]Route(nil), t.routes...)
}

// Len returns the number of routes.
func (t Table) Len() int {
	return len(t.routes)
}

// Validate checks that paths and names are unique and that every route
// references one of views. It reports the first violation found.
func (t Table) Validate(views []string) error {
	known := make(map[string]struct{}, len(views))
	for _, v := range views {
		known[v] = struct{}{}
	}

	paths := make(map[string]struct{}, len(t.routes))
	names := make(map[string]struct{}, len(t.routes))
	for _, r := range t.routes {
		if r.Path == "" || !strings.HasPrefix(r.Path, "/") {
			return fmt.Errorf("%w: path %q must start with /", ErrInvalidRoute, r.Path)
		}
		if r.Name == "" {
			return fmt.Errorf("%w: route %q has no name", ErrInvalidRoute, r.Path)
		}
		if _, ok := paths[r.Path]; ok {
			return fmt.Errorf("%w: %q", ErrDuplicatePath, r.Path)
		}
		paths[r.Path] = struct{}{}
		if _, ok := names[r.Name]; ok {
			return fmt.Errorf("%w: %q", ErrDuplicateName, r.Name)
		}
		names[r.Name] = struct{}{}
		if _, ok := known[r.View]; !ok {
			return fmt.Errorf("%w: route %q view %q", ErrUnknownView, r.Name, r.View)
		}
	}
	return nil
}

// Match resolves a request path to its route. Matching is exact; a single
// trailing slash is ignored on every path except "/".
func (t Table) Match(path string) (Route, bool) {
	if len(path) > 1 && strings.HasSuffix(path, "/") {
		path = path[:len(path)-1]
	}
	for _, r := range t.routes {
		if r.Path == path {
			return r, true
		}
	}
	return Route{}, false
}

// ByName returns the route with the given name.
func (t Table) ByName(name string) (Route, bool) {
	for _, r := range t.routes {
		if r.Name == name {
			return r, true
		}
	}
	return Route{}, false
}

// Path returns the path of the named route, or "" if there is none.
func (t Table) Path(name string) string {
	r, _ := t.ByName(name)
	return r.Path
}
