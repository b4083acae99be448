package main

import (
	"net/http"
	"os"
	"path/filepath"
	"strings"
)

// Asset extensions that 404 when missing instead of falling back to index.html.
var staticExtensions = map[string]bool{
	".js": true, ".mjs": true, ".css": true, ".map": true,
	".woff": true, ".woff2": true, ".ttf": true,
	".png": true, ".jpg": true, ".jpeg": true, ".gif": true, ".svg": true, ".ico": true, ".webp": true,
	".json": true, ".wav": true,
}

func setNoCacheHeaders(w http.ResponseWriter) {
	w.Header().Set("Cache-Control", "no-store, no-cache, must-revalidate, proxy-revalidate")
	w.Header().Set("Pragma", "no-cache")
	w.Header().Set("Expires", "0")
}

// spaHandler serves the dashboard build and falls back to index.html for client-side routes.
// Hashed files under /assets/ are cached for a year.
func spaHandler(staticDir string) http.HandlerFunc {
	fileServer := http.FileServer(http.Dir(staticDir))
	index := filepath.Join(staticDir, "index.html")

	return func(w http.ResponseWriter, r *http.Request) {
		path := filepath.Join(staticDir, filepath.Clean("/"+r.URL.Path))

		fi, err := os.Stat(path)
		if err != nil || fi.IsDir() {
			if staticExtensions[strings.ToLower(filepath.Ext(r.URL.Path))] {
				setNoCacheHeaders(w)
				http.NotFound(w, r)
				return
			}
			setNoCacheHeaders(w)
			http.ServeFile(w, r, index)
			return
		}

		if strings.HasPrefix(r.URL.Path, "/assets/") {
			w.Header().Set("Cache-Control", "public, max-age=31536000, immutable")
		} else {
			setNoCacheHeaders(w)
		}
		fileServer.ServeHTTP(w, r)
	}
}
