// Package web embeds the live progress page served by the status server.
//
// The page is plain HTML and JavaScript: it loads /api/v1/progress and
// /api/v1/items once, then applies every event from /api/v1/ws.
//
// Usage in the API server:
//
//	site, err := web.DistFS()
//	if err == nil {
//		r.Handle("/*", http.FileServerFS(site))
//	}
package web

import (
	"embed"
	"fmt"
	"io/fs"
)

//go:embed all:static
var dist embed.FS

// DistFS returns a filesystem rooted at the embedded static/ directory.
// This is ready to use with http.FileServerFS or http.FS.
func DistFS() (fs.FS, error) {
	sub, err := fs.Sub(dist, "static")
	if err != nil {
		return nil, fmt.Errorf("web: static site: %w", err)
	}
	return sub, nil
}
