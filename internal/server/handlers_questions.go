package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/temirov/paperdigest/internal/analysis"
)

const (
	headerCacheControlConstant          = "Cache-Control"
	headerConnectionConstant            = "Connection"
	headerAccelBufferingConstant        = "X-Accel-Buffering"
	eventStreamContentTypeConstant      = "text/event-stream"
	noCacheConstant                     = "no-cache"
	keepAliveConstant                   = "keep-alive"
	accelBufferingOffConstant           = "no"
	serverSentEventTemplateConstant     = "data: %s\n\n"
	analyzerMissingDetailConstant       = "question answering is not configured"
	streamFailedLogMessageConstant      = "Streamed question failed"
	streamWriteFailedLogMessageConstant = "Failed to write stream event"
)

type askRequest struct {
	Question   string `json:"question"`
	ParentQAID *int   `json:"parent_qa_id"`
}

type askResponse struct {
	Question string `json:"question"`
	Answer   string `json:"answer"`
	PaperID  string `json:"paper_id"`
}

type streamDone struct {
	Done bool `json:"done"`
}

type streamFailure struct {
	Error string `json:"error"`
}

func (server *Server) handleAsk(responseWriter http.ResponseWriter, request *http.Request) {
	if server.dependencies.Analyzer == nil {
		server.writeError(responseWriter, http.StatusServiceUnavailable, analyzerMissingDetailConstant)
		return
	}
	var body askRequest
	if decodeError := decodeJSON(request, &body); decodeError != nil {
		server.writeError(responseWriter, http.StatusUnprocessableEntity, invalidBodyDetailConstant)
		return
	}
	paperID := chi.URLParam(request, paperIDParameterConstant)
	paper, loadError := server.dependencies.Papers.Load(paperID)
	if loadError != nil {
		server.writePaperError(responseWriter, loadError)
		return
	}
	currentSettings, settingsError := server.dependencies.Settings.Load()
	if settingsError != nil {
		server.writeError(responseWriter, http.StatusInternalServerError, settingsError.Error())
		return
	}

	answer, askError := server.dependencies.Analyzer.Ask(request.Context(), paper, analysis.QuestionRequest{Question: body.Question, ParentQAID: body.ParentQAID}, currentSettings)
	if askError != nil {
		status := http.StatusInternalServerError
		if errors.Is(askError, analysis.ErrQuestionRequired) {
			status = http.StatusUnprocessableEntity
		}
		server.writeError(responseWriter, status, askError.Error())
		return
	}
	server.writeJSON(responseWriter, http.StatusOK, askResponse{Question: body.Question, Answer: answer.Answer, PaperID: paperID})
}

// handleAskStream answers over server-sent events: one event per chunk, then {"done":true},
// or {"error":...} when the question fails. Each event is flushed immediately.
func (server *Server) handleAskStream(responseWriter http.ResponseWriter, request *http.Request) {
	if server.dependencies.Analyzer == nil {
		server.writeError(responseWriter, http.StatusServiceUnavailable, analyzerMissingDetailConstant)
		return
	}
	var body askRequest
	if decodeError := decodeJSON(request, &body); decodeError != nil {
		server.writeError(responseWriter, http.StatusUnprocessableEntity, invalidBodyDetailConstant)
		return
	}
	paperID := chi.URLParam(request, paperIDParameterConstant)
	paper, loadError := server.dependencies.Papers.Load(paperID)
	if loadError != nil {
		server.writePaperError(responseWriter, loadError)
		return
	}
	currentSettings, settingsError := server.dependencies.Settings.Load()
	if settingsError != nil {
		server.writeError(responseWriter, http.StatusInternalServerError, settingsError.Error())
		return
	}

	headers := responseWriter.Header()
	headers.Set(headerContentTypeConstant, eventStreamContentTypeConstant)
	headers.Set(headerCacheControlConstant, noCacheConstant)
	headers.Set(headerConnectionConstant, keepAliveConstant)
	headers.Set(headerAccelBufferingConstant, accelBufferingOffConstant)
	responseWriter.WriteHeader(http.StatusOK)
	flusher, _ := responseWriter.(http.Flusher)

	send := func(payload any) error {
		encoded, encodeError := json.Marshal(payload)
		if encodeError != nil {
			return encodeError
		}
		if _, writeError := fmt.Fprintf(responseWriter, serverSentEventTemplateConstant, encoded); writeError != nil {
			return writeError
		}
		if flusher != nil {
			flusher.Flush()
		}
		return nil
	}

	_, askError := server.dependencies.Analyzer.AskStream(request.Context(), paper,
		analysis.QuestionRequest{Question: body.Question, ParentQAID: body.ParentQAID},
		currentSettings,
		func(event analysis.StreamEvent) error {
			return send(event)
		},
	)
	var finalPayload any = streamDone{Done: true}
	if askError != nil {
		server.logger.Warn(streamFailedLogMessageConstant, zap.String(logFieldIdentifierConstant, paperID), zap.Error(askError))
		finalPayload = streamFailure{Error: askError.Error()}
	}
	if sendError := send(finalPayload); sendError != nil {
		server.logger.Debug(streamWriteFailedLogMessageConstant, zap.Error(sendError))
	}
}
