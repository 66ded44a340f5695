package server

import (
	"net/http"
	"os"
	"path/filepath"
)

const (
	indexFileNameConstant          = "index.html"
	frontendMissingMessageConstant = "Frontend not found. Please check frontend directory."
)

// staticDirectory prefers the cache-busted build and falls back to the source frontend.
func (server *Server) staticDirectory() (string, bool) {
	for _, candidate := range []string{server.options.DistDirectory, server.options.FrontendDirectory} {
		if info, statError := os.Stat(candidate); statError == nil && info.IsDir() {
			return candidate, true
		}
	}
	return "", false
}

func (server *Server) handleIndex(responseWriter http.ResponseWriter, request *http.Request) {
	for _, directory := range []string{server.options.DistDirectory, server.options.FrontendDirectory} {
		indexPath := filepath.Join(directory, indexFileNameConstant)
		if info, statError := os.Stat(indexPath); statError == nil && !info.IsDir() {
			http.ServeFile(responseWriter, request, indexPath)
			return
		}
	}
	server.writeJSON(responseWriter, http.StatusOK, messageResponse{Message: frontendMissingMessageConstant})
}
