// Package web holds the console's templates and static assets.
package web

import "embed"

// EmbeddedFS contains templates/ and static/ for release builds. Debug mode
// reads the same tree from disk instead.
//
//go:embed templates static
var EmbeddedFS embed.FS
