package api

import (
	"net/http"
	"os"
	"path"
	"strings"
)

// spaFileSystem implements http.FileSystem for the single page app: unknown
// page routes fall back to index.html, while missing API paths and missing
// assets (anything with a file extension) stay 404.
type spaFileSystem struct {
	root http.FileSystem
}

// Open opens the named file, falling back to index.html for page routes.
func (s *spaFileSystem) Open(name string) (http.File, error) {
	f, err := s.root.Open(name)
	if err == nil {
		return f, nil
	}
	if !os.IsNotExist(err) || !isPageRoute(name) {
		return nil, err
	}
	return s.root.Open("index.html")
}

func isPageRoute(name string) bool {
	clean := path.Clean("/" + name)
	if strings.HasPrefix(clean, "/api/") || clean == "/api" {
		return false
	}
	return path.Ext(clean) == ""
}
