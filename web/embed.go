// Package web embeds the inbox page (dist/) and serves it as a single-page
// application. Unknown paths such as /login or /inbox/42 fall back to
// index.html, which routes on the client.
package web

import (
	"bytes"
	"embed"
	"io/fs"
	"log/slog"
	"net/http"
	"path"
	"strings"
	"time"
)

//go:embed all:dist
var distFS embed.FS

// Unmatched API and websocket paths answer 404 instead of the page.
var reservedPrefixes = []string{"api/", "ws/"}

// SPAHandler returns an http.Handler that serves the embedded frontend.
// index.html is sent with Cache-Control: no-cache so a rebuilt binary
// reaches open browsers on their next load; other files may be cached.
func SPAHandler() http.Handler {
	sub, err := fs.Sub(distFS, "dist")
	if err != nil {
		panic("web: failed to create sub filesystem: " + err.Error())
	}
	index, err := fs.ReadFile(sub, "index.html")
	if err != nil {
		panic("web: missing index.html: " + err.Error())
	}
	files := http.FileServer(http.FS(sub))
	built := time.Now()

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet && r.Method != http.MethodHead {
			w.Header().Set("Allow", "GET, HEAD")
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}

		name := strings.TrimPrefix(path.Clean("/"+r.URL.Path), "/")
		for _, p := range reservedPrefixes {
			if strings.HasPrefix(name+"/", p) {
				http.NotFound(w, r)
				return
			}
		}

		if name != "" && name != "index.html" && isFile(sub, name) {
			w.Header().Set("Cache-Control", "public, max-age=3600")
			files.ServeHTTP(w, r)
			return
		}

		slog.Debug("web: serving index", "path", r.URL.Path)
		w.Header().Set("Cache-Control", "no-cache")
		http.ServeContent(w, r, "index.html", built, bytes.NewReader(index))
	})
}

func isFile(fsys fs.FS, name string) bool {
	info, err := fs.Stat(fsys, name)
	return err == nil && !info.IsDir()
}
