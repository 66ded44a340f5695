package server

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/temirov/paperdigest/internal/papers"
)

const (
	paperIDParameterConstant        = "paperID"
	querySkipConstant               = "skip"
	queryLimitConstant              = "limit"
	querySortByConstant             = "sort_by"
	queryKeywordConstant            = "keyword"
	queryStarredOnlyConstant        = "starred_only"
	queryTextConstant               = "q"
	trueQueryValueConstant          = "true"
	defaultTimelineLimitConstant    = 20
	defaultSearchLimitConstant      = 50
	timelineWindowConstant          = 1000
	directMatchSearchScoreConstant  = 1000
	paperHiddenMessageConstant      = "Paper hidden"
	paperUnhiddenMessageConstant    = "Paper unhidden"
	paperStarredMessageConstant     = "论文已收藏"
	paperUnstarredMessageConstant   = "取消收藏"
	relevanceUpdatedMessageConstant = "论文相关性已更新"
	healthMessageConstant           = "arXiv Paper Fetcher API"
	healthStatusConstant            = "running"
	invalidIntegerTemplateConstant  = "query parameter %s must be an integer"
	queryRequiredTemplateConstant   = "query parameter %s is required"
	paperNotOnArxivTemplateConstant = "Paper %s not found on arXiv"
	lookupFailedLogMessageConstant  = "Failed to fetch paper by identifier"
	searchAnalysisTaskConstant      = "search-analysis"
	logFieldIdentifierConstant      = "identifier"
)

type starResponse struct {
	Message   string `json:"message"`
	IsStarred bool   `json:"is_starred"`
}

type relevanceRequest struct {
	IsRelevant     *bool    `json:"is_relevant"`
	RelevanceScore *float64 `json:"relevance_score"`
}

type relevanceResponse struct {
	Message        string  `json:"message"`
	IsRelevant     bool    `json:"is_relevant"`
	RelevanceScore float64 `json:"relevance_score"`
}

func (server *Server) handleHealth(responseWriter http.ResponseWriter, _ *http.Request) {
	server.writeJSON(responseWriter, http.StatusOK, messageResponse{Message: healthMessageConstant, Status: healthStatusConstant})
}

// handleListPapers serves the timeline. Starred listings scan every paper; the regular
// timeline looks at the most recent documents only.
func (server *Server) handleListPapers(responseWriter http.ResponseWriter, request *http.Request) {
	query := request.URL.Query()
	skip, skipError := integerParameter(query.Get(querySkipConstant), 0, querySkipConstant)
	if skipError != nil {
		server.writeError(responseWriter, http.StatusUnprocessableEntity, skipError.Error())
		return
	}
	limit, limitError := integerParameter(query.Get(queryLimitConstant), defaultTimelineLimitConstant, queryLimitConstant)
	if limitError != nil {
		server.writeError(responseWriter, http.StatusUnprocessableEntity, limitError.Error())
		return
	}
	sortBy := query.Get(querySortByConstant)
	if len(sortBy) == 0 {
		sortBy = papers.SortByRelevance
	}
	starredOnly := strings.EqualFold(query.Get(queryStarredOnlyConstant), trueQueryValueConstant)

	window := timelineWindowConstant
	if starredOnly {
		window = 0
	}
	storedPapers, listError := server.dependencies.Papers.List(0, window)
	if listError != nil {
		server.writeError(responseWriter, http.StatusInternalServerError, listError.Error())
		return
	}
	timeline := papers.Timeline(storedPapers, papers.TimelineOptions{
		Skip:        skip,
		Limit:       limit,
		SortBy:      sortBy,
		Keyword:     query.Get(queryKeywordConstant),
		StarredOnly: starredOnly,
	})
	server.writeJSON(responseWriter, http.StatusOK, papers.SummarizeAll(timeline))
}

func (server *Server) handleGetPaper(responseWriter http.ResponseWriter, request *http.Request) {
	paper, loadError := server.dependencies.Papers.Load(chi.URLParam(request, paperIDParameterConstant))
	if loadError != nil {
		server.writePaperError(responseWriter, loadError)
		return
	}
	server.writeJSON(responseWriter, http.StatusOK, paper)
}

func (server *Server) handleHide(responseWriter http.ResponseWriter, request *http.Request) {
	paperID := chi.URLParam(request, paperIDParameterConstant)
	if _, hideError := server.dependencies.Papers.Hide(paperID); hideError != nil {
		server.writePaperError(responseWriter, hideError)
		return
	}
	server.writeJSON(responseWriter, http.StatusOK, messageResponse{Message: paperHiddenMessageConstant, PaperID: paperID})
}

func (server *Server) handleUnhide(responseWriter http.ResponseWriter, request *http.Request) {
	paperID := chi.URLParam(request, paperIDParameterConstant)
	if _, unhideError := server.dependencies.Papers.Unhide(paperID); unhideError != nil {
		server.writePaperError(responseWriter, unhideError)
		return
	}
	server.writeJSON(responseWriter, http.StatusOK, messageResponse{Message: paperUnhiddenMessageConstant, PaperID: paperID})
}

func (server *Server) handleStar(responseWriter http.ResponseWriter, request *http.Request) {
	paper, starError := server.dependencies.Papers.ToggleStar(chi.URLParam(request, paperIDParameterConstant))
	if starError != nil {
		server.writePaperError(responseWriter, starError)
		return
	}
	message := paperUnstarredMessageConstant
	if paper.IsStarred {
		message = paperStarredMessageConstant
	}
	server.writeJSON(responseWriter, http.StatusOK, starResponse{Message: message, IsStarred: paper.IsStarred})
}

func (server *Server) handleUpdateRelevance(responseWriter http.ResponseWriter, request *http.Request) {
	var body relevanceRequest
	if decodeError := decodeJSON(request, &body); decodeError != nil || body.IsRelevant == nil || body.RelevanceScore == nil {
		server.writeError(responseWriter, http.StatusUnprocessableEntity, invalidBodyDetailConstant)
		return
	}
	paper, updateError := server.dependencies.Papers.UpdateRelevance(chi.URLParam(request, paperIDParameterConstant), *body.IsRelevant, *body.RelevanceScore)
	if updateError != nil {
		server.writePaperError(responseWriter, updateError)
		return
	}
	server.writeJSON(responseWriter, http.StatusOK, relevanceResponse{
		Message:        relevanceUpdatedMessageConstant,
		IsRelevant:     paper.Relevant(),
		RelevanceScore: paper.RelevanceScore,
	})
}

func (server *Server) handleStats(responseWriter http.ResponseWriter, _ *http.Request) {
	storedPapers, listError := server.dependencies.Papers.List(0, 0)
	if listError != nil {
		server.writeError(responseWriter, http.StatusInternalServerError, listError.Error())
		return
	}
	server.writeJSON(responseWriter, http.StatusOK, papers.ComputeStats(storedPapers))
}

// handleSearch runs a keyword search. A query that is an arXiv identifier fetches the paper
// when needed and queues whichever analysis stage it still lacks.
func (server *Server) handleSearch(responseWriter http.ResponseWriter, request *http.Request) {
	query := request.URL.Query()
	text := strings.TrimSpace(query.Get(queryTextConstant))
	if len(text) == 0 {
		server.writeError(responseWriter, http.StatusUnprocessableEntity, fmt.Sprintf(queryRequiredTemplateConstant, queryTextConstant))
		return
	}
	limit, limitError := integerParameter(query.Get(queryLimitConstant), defaultSearchLimitConstant, queryLimitConstant)
	if limitError != nil {
		server.writeError(responseWriter, http.StatusUnprocessableEntity, limitError.Error())
		return
	}

	if papers.IsArxivID(text) && server.dependencies.Fetcher != nil {
		server.searchByIdentifier(responseWriter, request, text)
		return
	}

	storedPapers, listError := server.dependencies.Papers.List(0, timelineWindowConstant)
	if listError != nil {
		server.writeError(responseWriter, http.StatusInternalServerError, listError.Error())
		return
	}
	server.writeJSON(responseWriter, http.StatusOK, papers.Search(storedPapers, text, limit))
}

func (server *Server) searchByIdentifier(responseWriter http.ResponseWriter, request *http.Request, identifier string) {
	paper, fetchError := server.dependencies.Fetcher.FetchSingle(request.Context(), identifier)
	if fetchError != nil {
		server.logger.Warn(lookupFailedLogMessageConstant, zap.String(logFieldIdentifierConstant, identifier), zap.Error(fetchError))
		server.writeError(responseWriter, http.StatusNotFound, fmt.Sprintf(paperNotOnArxivTemplateConstant, identifier))
		return
	}

	if server.dependencies.Analyzer != nil {
		currentSettings, settingsError := server.dependencies.Settings.Load()
		if settingsError != nil {
			server.writeError(responseWriter, http.StatusInternalServerError, settingsError.Error())
			return
		}
		needsFilter := !paper.Analyzed()
		needsDeepAnalysis := paper.NeedsDeepAnalysis(currentSettings.MinRelevanceScoreForStage2)
		if needsFilter || needsDeepAnalysis {
			candidate := paper.Clone()
			server.runInBackground(searchAnalysisTaskConstant, func(taskContext context.Context) error {
				_, analyzeError := server.dependencies.Analyzer.ProcessPapers(taskContext, []papers.Paper{candidate}, currentSettings, !needsFilter)
				return analyzeError
			})
		}
	}

	server.writeJSON(responseWriter, http.StatusOK, []papers.SearchResult{{
		Summary:     papers.Summarize(paper),
		SearchScore: directMatchSearchScoreConstant,
	}})
}

func integerParameter(rawValue string, defaultValue int, name string) (int, error) {
	trimmed := strings.TrimSpace(rawValue)
	if len(trimmed) == 0 {
		return defaultValue, nil
	}
	parsed, parseError := strconv.Atoi(trimmed)
	if parseError != nil {
		return 0, fmt.Errorf(invalidIntegerTemplateConstant, name)
	}
	return parsed, nil
}
