// ABOUTME: Static control UI handler with client-side route fallback
// ABOUTME: Serves files from ui.dir and index.html for unknown non-asset paths

package gateway

import (
	"fmt"
	"net/http"
	"os"
	"path"
	"path/filepath"
	"strings"
)

type uiHandler struct {
	dir   string
	files http.Handler
}

func newUIHandler(dir string) (*uiHandler, error) {
	info, err := os.Stat(dir)
	if err != nil {
		return nil, fmt.Errorf("ui.dir: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("ui.dir: %s is not a directory", dir)
	}
	return &uiHandler{dir: dir, files: http.FileServer(http.Dir(dir))}, nil
}

func (h *uiHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	clean := path.Clean("/" + r.URL.Path)
	if info, err := os.Stat(filepath.Join(h.dir, filepath.FromSlash(clean))); err == nil && !info.IsDir() {
		h.files.ServeHTTP(w, r)
		return
	}

	// Missing assets are real 404s; anything else is a client-side route.
	if strings.HasPrefix(clean, "/assets/") {
		http.NotFound(w, r)
		return
	}
	http.ServeFile(w, r, filepath.Join(h.dir, "index.html"))
}
