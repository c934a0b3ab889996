// Package frontend provides the built-in web UI for kubesage.
package frontend

import (
	"embed"
	"io/fs"
	"net/http"
	"strings"
)

//go:embed web
var webFS embed.FS

// Handler serves the embedded frontend static files.
type Handler struct {
	files      fs.FS
	fileServer http.Handler
	prefix     string
}

// NewHandler creates a frontend handler that serves embedded static files.
// The prefix is the URL path prefix (e.g., "/ui/").
func NewHandler(prefix string) *Handler {
	subFS, _ := fs.Sub(webFS, "web")

	return &Handler{
		files:      subFS,
		fileServer: http.FileServer(http.FS(subFS)),
		prefix:     prefix,
	}
}

// ServeHTTP serves embedded static files with a fallback to index.html.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	path := strings.TrimPrefix(r.URL.Path, h.prefix)
	if path == "" || path == "/" {
		path = "index.html"
	}

	if _, err := fs.Stat(h.files, path); err != nil {
		r.URL.Path = h.prefix + "/"
	}

	http.StripPrefix(h.prefix, h.fileServer).ServeHTTP(w, r)
}
