package server

import (
	"io/fs"
	"net/http"
	"strings"
)

// handleStatic serves the embedded assets under /static/. Directories are
// not listed.
func handleStatic(fsys fs.FS) http.HandlerFunc {
	fileServer := http.StripPrefix("/static/", http.FileServerFS(fsys))

	return func(w http.ResponseWriter, r *http.Request) {
		name := strings.TrimPrefix(r.URL.Path, "/static/")
		if info, err := fs.Stat(fsys, name); err != nil || info.IsDir() {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Cache-Control", "public, max-age=3600")
		fileServer.ServeHTTP(w, r)
	}
}
