package server

import (
	"encoding/json"
	"errors"
	"net/http"

	"go.uber.org/zap"

	"github.com/temirov/paperdigest/internal/papers"
)

const (
	headerContentTypeConstant        = "Content-Type"
	headerOriginConstant             = "Origin"
	headerVaryConstant               = "Vary"
	headerAllowOriginConstant        = "Access-Control-Allow-Origin"
	headerAllowCredentialsConstant   = "Access-Control-Allow-Credentials"
	headerAllowMethodsConstant       = "Access-Control-Allow-Methods"
	headerAllowHeadersConstant       = "Access-Control-Allow-Headers"
	corsAnyOriginConstant            = "*"
	corsAnyHeaderConstant            = "*"
	corsTrueConstant                 = "true"
	corsAllowedMethodsConstant       = "GET, POST, PUT, DELETE, OPTIONS"
	jsonContentTypeConstant          = "application/json"
	responseEncodeLogMessageConstant = "Failed to encode response"
	paperNotFoundDetailConstant      = "Paper not found"
	invalidBodyDetailConstant        = "Invalid JSON body"
)

// errorResponse mirrors the {"detail": ...} shape the web UI expects.
type errorResponse struct {
	Detail string `json:"detail"`
}

// messageResponse is the common acknowledgement body.
type messageResponse struct {
	Message string `json:"message"`
	Status  string `json:"status,omitempty"`
	PaperID string `json:"paper_id,omitempty"`
}

func (server *Server) writeJSON(responseWriter http.ResponseWriter, status int, payload any) {
	responseWriter.Header().Set(headerContentTypeConstant, jsonContentTypeConstant)
	responseWriter.WriteHeader(status)
	if encodeError := json.NewEncoder(responseWriter).Encode(payload); encodeError != nil {
		server.logger.Warn(responseEncodeLogMessageConstant, zap.Error(encodeError))
	}
}

func (server *Server) writeError(responseWriter http.ResponseWriter, status int, detail string) {
	server.writeJSON(responseWriter, status, errorResponse{Detail: detail})
}

// writePaperError maps a missing paper to 404 and anything else to 500.
func (server *Server) writePaperError(responseWriter http.ResponseWriter, paperError error) {
	if errors.Is(paperError, papers.ErrPaperNotFound) {
		server.writeError(responseWriter, http.StatusNotFound, paperNotFoundDetailConstant)
		return
	}
	server.writeError(responseWriter, http.StatusInternalServerError, paperError.Error())
}

func decodeJSON(request *http.Request, target any) error {
	return json.NewDecoder(request.Body).Decode(target)
}
