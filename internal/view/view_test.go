package view

import (
	"errors"
	"testing"
)

var allViews = []string{HomeView, SlaveManager, LinkTestView, MessageView, ReportView}

func TestRoutes_Declared(t *testing.T) {
	want := []Route{
		{"/", "Home", "HomeView"},
		{"/slaves", "Slaves", "SlaveManager"},
		{"/linktest", "LinkTest", "LinkTest"},
		{"/message", "Message", "Message"},
		{"/report", "Report", "Report"},
	}

	got := Routes().All()
	if len(got) != len(want) {
		t.Fatalf("len(Routes()) = %d; want %d", len(got), len(want))
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("route %d = %+v; want %+v", i, got[i], want[i])
		}
	}
}

func TestRoutes_Valid(t *testing.T) {
	if err := Routes().Validate(allViews); err != nil {
		t.Fatalf("Validate() = %v; want nil", err)
	}
}

func TestRoutes_UniquePathsAndNames(t *testing.T) {
	paths := map[string]bool{}
	names := map[string]bool{}
	for _, r := range Routes().All() {
		if paths[r.Path] {
			t.Errorf("path %q declared twice", r.Path)
		}
		if names[r.Name] {
			t.Errorf("name %q declared twice", r.Name)
		}
		paths[r.Path] = true
		names[r.Name] = true
	}
}

func TestRoutes_AllReturnsCopy(t *testing.T) {
	got := Routes().All()
	got[0].Path = "/changed"
	if Routes().Path(NameHome) != "/" {
		t.Error("mutating All() result changed the table")
	}
}

func TestTable_Validate(t *testing.T) {
	tests := []struct {
		name    string
		table   Table
		views   []string
		wantErr error
	}{
		{
			name: "duplicate path",
			table: NewTable(
				Route{"/", "Home", HomeView},
				Route{"/", "Other", HomeView},
			),
			views:   allViews,
			wantErr: ErrDuplicatePath,
		},
		{
			name: "duplicate name",
			table: NewTable(
				Route{"/", "Home", HomeView},
				Route{"/home", "Home", HomeView},
			),
			views:   allViews,
			wantErr: ErrDuplicateName,
		},
		{
			name:    "unknown view",
			table:   NewTable(Route{"/", "Home", "Missing"}),
			views:   allViews,
			wantErr: ErrUnknownView,
		},
		{
			name:    "view not registered",
			table:   Routes(),
			views:   []string{HomeView, SlaveManager},
			wantErr: ErrUnknownView,
		},
		{
			name:    "relative path",
			table:   NewTable(Route{"slaves", "Slaves", SlaveManager}),
			views:   allViews,
			wantErr: ErrInvalidRoute,
		},
		{
			name:    "empty name",
			table:   NewTable(Route{"/slaves", "", SlaveManager}),
			views:   allViews,
			wantErr: ErrInvalidRoute,
		},
		{
			name:  "empty table",
			table: NewTable(),
			views: allViews,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.table.Validate(tt.views)
			if tt.wantErr == nil {
				if err != nil {
					t.Fatalf("Validate() = %v; want nil", err)
				}
				return
			}
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("Validate() = %v; want %v", err, tt.wantErr)
			}
		})
	}
}

func TestTable_Match(t *testing.T) {
	tests := []struct {
		path     string
		wantName string
		wantOK   bool
	}{
		{"/", NameHome, true},
		{"/slaves", NameSlaves, true},
		{"/slaves/", NameSlaves, true},
		{"/linktest", NameLinkTest, true},
		{"/message", NameMessage, true},
		{"/report", NameReport, true},
		{"/report/", NameReport, true},
		{"/slaves//", "", false},
		{"/slaves/7", "", false},
		{"/Slaves", "", false},
		{"/unknown", "", false},
		{"", "", false},
		{"#/slaves", "", false},
		{"/settings", "", false},
	}
	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			r, ok := Routes().Match(tt.path)
			if ok != tt.wantOK {
				t.Fatalf("Match(%q) ok = %v; want %v", tt.path, ok, tt.wantOK)
			}
			if r.Name != tt.wantName {
				t.Errorf("Match(%q).Name = %q; want %q", tt.path, r.Name, tt.wantName)
			}
		})
	}
}

func TestTable_MatchResolvesOnlyItsOwnView(t *testing.T) {
	table := Routes()
	for _, want := range table.All() {
		got, ok := table.Match(want.Path)
		if !ok {
			t.Fatalf("Match(%q) found nothing", want.Path)
		}
		if got != want {
			t.Errorf("Match(%q) = %+v; want %+v", want.Path, got, want)
		}
	}
}

func TestTable_ByNameAndPath(t *testing.T) {
	table := Routes()

	r, ok := table.ByName(NameSlaves)
	if !ok || r.View != SlaveManager {
		t.Fatalf("ByName(Slaves) = %+v, %v", r, ok)
	}
	if got := table.Path(NameLinkTest); got != "/linktest" {
		t.Errorf("Path(LinkTest) = %q; want /linktest", got)
	}
	if got := table.Path("Nope"); got != "" {
		t.Errorf("Path(Nope) = %q; want empty", got)
	}
	if _, ok := table.ByName("Nope"); ok {
		t.Error("ByName(Nope) should not match")
	}
}

func TestHistoryMode(t *testing.T) {
	if HistoryMode != "web" {
		t.Errorf("HistoryMode = %q; want web", HistoryMode)
	}
}
