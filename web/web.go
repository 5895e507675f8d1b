// Package web serves the embedded game pages and their static assets.
package web

import (
	"embed"
	"fmt"
	"io/fs"
	"net/http"
	"path"
	"strings"
)

//go:embed dist/*
var content embed.FS

// pages maps request paths to the HTML documents served for them.
var pages = map[string]string{
	"/":     "index.html",
	"/game": "game.html",
}

// Handler returns an http.Handler that serves the landing page at /, the game
// console at /game and the files under dist/static at /static/. Every other
// path, including directories, is a 404.
func Handler() (http.Handler, error) {
	fsys, err := fs.Sub(content, "dist")
	if err != nil {
		return nil, fmt.Errorf("loading embedded web assets: %w", err)
	}

	docs := make(map[string][]byte, len(pages))
	for route, name := range pages {
		b, err := fs.ReadFile(fsys, name)
		if err != nil {
			return nil, fmt.Errorf("reading embedded %s: %w", name, err)
		}
		docs[route] = b
	}

	static := http.FileServer(http.FS(fsys))

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet && r.Method != http.MethodHead {
			w.Header().Set("Allow", "GET, HEAD")
			http.Error(w, http.StatusText(http.StatusMethodNotAllowed), http.StatusMethodNotAllowed)
			return
		}

		if doc, ok := docs[r.URL.Path]; ok {
			w.Header().Set("Content-Type", "text/html; charset=utf-8")
			w.Write(doc)
			return
		}

		cleanPath := strings.TrimPrefix(path.Clean(r.URL.Path), "/")
		if !strings.HasPrefix(cleanPath, "static/") {
			http.NotFound(w, r)
			return
		}
		info, err := fs.Stat(fsys, cleanPath)
		if err != nil || info.IsDir() {
			http.NotFound(w, r)
			return
		}
		static.ServeHTTP(w, r)
	}), nil
}
