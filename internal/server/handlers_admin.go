package server

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"github.com/temirov/paperdigest/internal/export"
	"github.com/temirov/paperdigest/internal/settings"
)

const (
	configUpdatedMessageConstant            = "Config updated"
	configRecheckMessageConstant            = "Config updated. Re-checking papers with new negative keywords in background..."
	fetchTriggeredMessageConstant           = "Fetch triggered"
	fetchRunningStatusConstant              = "running"
	fetchUnavailableDetailConstant          = "fetching is not configured"
	exportSucceededMessageConstant          = "导出成功"
	exportFailedTemplateConstant            = "导出失败: %s"
	exportUnavailableDetailConstant         = "export is not configured"
	queryMinScoreConstant                   = "min_score"
	queryOutputDirectoryConstant            = "output_dir"
	invalidNumberTemplateConstant           = "query parameter %s must be a number"
	recheckTaskConstant                     = "negative-keyword-recheck"
	fetchTaskConstant                       = "manual-fetch"
	recheckFinishedLogMessageConstant       = "Negative keyword recheck finished"
	exportCleanupFailedLogMessageConstant   = "Cleanup after export failed"
	scheduleRefreshFailedLogMessageConstant = "Scheduler did not pick up the new fetch interval"
	logFieldUpdatedConstant                 = "updated"
)

type configResponse struct {
	Message string            `json:"message"`
	Config  settings.Settings `json:"config"`
}

type exportResponse struct {
	Message string        `json:"message"`
	Result  export.Result `json:"result"`
}

func (server *Server) handleGetConfig(responseWriter http.ResponseWriter, _ *http.Request) {
	currentSettings, loadError := server.dependencies.Settings.Load()
	if loadError != nil {
		server.writeError(responseWriter, http.StatusInternalServerError, loadError.Error())
		return
	}
	server.writeJSON(responseWriter, http.StatusOK, currentSettings)
}

// handleUpdateConfig applies a partial settings update. A changed negative keyword set
// re-checks relevant papers in the background; a fetch_interval update reschedules the pipeline.
func (server *Server) handleUpdateConfig(responseWriter http.ResponseWriter, request *http.Request) {
	var updateRequest settings.UpdateRequest
	if decodeError := decodeJSON(request, &updateRequest); decodeError != nil {
		server.writeError(responseWriter, http.StatusUnprocessableEntity, invalidBodyDetailConstant)
		return
	}
	updated, negativeKeywordsChanged, updateError := server.dependencies.Settings.Update(updateRequest)
	if updateError != nil {
		server.writeError(responseWriter, http.StatusInternalServerError, updateError.Error())
		return
	}
	if updateRequest.FetchInterval != nil && server.dependencies.Scheduler != nil {
		if refreshError := server.dependencies.Scheduler.Refresh(); refreshError != nil {
			server.logger.Warn(scheduleRefreshFailedLogMessageConstant, zap.Error(refreshError))
		}
	}

	if negativeKeywordsChanged && server.dependencies.Analyzer != nil {
		server.runInBackground(recheckTaskConstant, func(taskContext context.Context) error {
			updatedCount, recheckError := server.dependencies.Analyzer.RecheckNegativeKeywords(taskContext, updated)
			if recheckError == nil {
				server.logger.Info(recheckFinishedLogMessageConstant, zap.Int(logFieldUpdatedConstant, updatedCount))
			}
			return recheckError
		})
		server.writeJSON(responseWriter, http.StatusOK, configResponse{Message: configRecheckMessageConstant, Config: updated})
		return
	}
	server.writeJSON(responseWriter, http.StatusOK, configResponse{Message: configUpdatedMessageConstant, Config: updated})
}

// handleFetch starts a fetch and analysis run without waiting for it.
func (server *Server) handleFetch(responseWriter http.ResponseWriter, _ *http.Request) {
	if server.dependencies.FetchRunner == nil {
		server.writeError(responseWriter, http.StatusServiceUnavailable, fetchUnavailableDetailConstant)
		return
	}
	server.runInBackground(fetchTaskConstant, func(taskContext context.Context) error {
		_, runError := server.dependencies.FetchRunner.Execute(taskContext)
		return runError
	})
	server.writeJSON(responseWriter, http.StatusOK, messageResponse{Message: fetchTriggeredMessageConstant, Status: fetchRunningStatusConstant})
}

// handleExport writes the Markdown digest for the current settings window and, when
// configured, removes the exported paper documents.
func (server *Server) handleExport(responseWriter http.ResponseWriter, request *http.Request) {
	if server.dependencies.Exporter == nil {
		server.writeError(responseWriter, http.StatusServiceUnavailable, exportUnavailableDetailConstant)
		return
	}
	query := request.URL.Query()
	minScore := export.DefaultMinScore
	if rawMinScore := strings.TrimSpace(query.Get(queryMinScoreConstant)); len(rawMinScore) > 0 {
		parsed, parseError := strconv.ParseFloat(rawMinScore, 64)
		if parseError != nil {
			server.writeError(responseWriter, http.StatusUnprocessableEntity, fmt.Sprintf(invalidNumberTemplateConstant, queryMinScoreConstant))
			return
		}
		minScore = parsed
	}
	outputDirectory := strings.TrimSpace(query.Get(queryOutputDirectoryConstant))
	if len(outputDirectory) == 0 {
		outputDirectory = server.options.ExportDirectory
	}

	currentSettings, settingsError := server.dependencies.Settings.Load()
	if settingsError != nil {
		server.writeError(responseWriter, http.StatusInternalServerError, fmt.Sprintf(exportFailedTemplateConstant, settingsError.Error()))
		return
	}
	result, exportError := server.dependencies.Exporter.Export(export.Options{
		MinScore:        minScore,
		StartDate:       currentSettings.StartDate,
		EndDate:         currentSettings.EndDate,
		OutputDirectory: outputDirectory,
	})
	if exportError != nil {
		server.writeError(responseWriter, http.StatusInternalServerError, fmt.Sprintf(exportFailedTemplateConstant, exportError.Error()))
		return
	}

	if server.options.CleanupAfterExport {
		removed, cleanupError := server.dependencies.Papers.DeleteAll()
		if cleanupError != nil {
			server.logger.Warn(exportCleanupFailedLogMessageConstant, zap.Error(cleanupError))
		}
		result.CleanedUpFiles = removed
	}
	server.writeJSON(responseWriter, http.StatusOK, exportResponse{Message: exportSucceededMessageConstant, Result: result})
}
