package fetcher

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/temirov/paperdigest/internal/arxiv"
	"github.com/temirov/paperdigest/internal/papers"
	"github.com/temirov/paperdigest/internal/settings"
)

const (
	identifierRequiredMessageConstant = "paper identifier must be provided"
	lookupTemplateConstant            = "failed to fetch paper %s: %w"
	saveTemplateConstant              = "failed to save paper %s: %w"
	loadTemplateConstant              = "failed to load paper %s: %w"

	fetchStartedLogMessageConstant    = "Fetching papers"
	categoryFailedLogMessageConstant  = "Category fetch failed, skipping"
	categoryFetchedLogMessageConstant = "Category fetched"
	paperSavedLogMessageConstant      = "Paper saved"
	paperSaveFailedLogMessageConstant = "Failed to save paper"
	fetchCompletedLogMessageConstant  = "Fetch completed"
	logFieldCategoriesConstant        = "categories"
	logFieldCategoryConstant          = "category"
	logFieldStartDateConstant         = "start_date"
	logFieldEndDateConstant           = "end_date"
	logFieldEntriesConstant           = "entries"
	logFieldNewPapersConstant         = "new_papers"
	logFieldIdentifierConstant        = "id"
	logFieldHasHTMLConstant           = "has_html"
)

// ErrIdentifierRequired indicates that FetchSingle received a blank identifier.
var ErrIdentifierRequired = errors.New(identifierRequiredMessageConstant)

// Source provides arXiv metadata and full text.
type Source interface {
	SearchByDateRange(executionContext context.Context, request arxiv.SearchRequest) ([]arxiv.Entry, error)
	LookupByID(executionContext context.Context, identifier string) (arxiv.Entry, error)
	FetchHTMLText(executionContext context.Context, identifier string) string
	HTMLURL(identifier string) string
}

// Recorder observes fetch outcomes.
type Recorder interface {
	PaperFetched(category string)
	CategoryFailed(category string)
}

// ServiceDependencies wires collaborators for the fetch service.
type ServiceDependencies struct {
	Source   Source
	Store    *papers.Store
	Logger   *zap.Logger
	Recorder Recorder
}

// Service ingests new arXiv papers into the paper store.
type Service struct {
	source   Source
	store    *papers.Store
	logger   *zap.Logger
	recorder Recorder
}

// NewService constructs a Service.
func NewService(dependencies ServiceDependencies) *Service {
	logger := dependencies.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{
		source:   dependencies.Source,
		store:    dependencies.Store,
		logger:   logger,
		recorder: dependencies.Recorder,
	}
}

// Options narrow a FetchLatest call. Blank values fall back to the settings document.
type Options struct {
	StartDate  string
	EndDate    string
	MaxResults int
	Categories []string
}

// FetchLatest searches every configured category within the settings date window and saves papers not seen before.
// A failing category is logged and skipped.
func (service *Service) FetchLatest(executionContext context.Context, currentSettings settings.Settings, options Options) ([]papers.Paper, error) {
	categories := currentSettings.Categories
	if len(options.Categories) > 0 {
		categories = options.Categories
	}
	startDate := firstNonBlank(options.StartDate, currentSettings.StartDate)
	endDate := firstNonBlank(options.EndDate, currentSettings.EndDate)
	maxResults := currentSettings.MaxPapersPerFetch
	if options.MaxResults > 0 {
		maxResults = options.MaxResults
	}

	service.logger.Info(fetchStartedLogMessageConstant,
		zap.Strings(logFieldCategoriesConstant, categories),
		zap.String(logFieldStartDateConstant, startDate),
		zap.String(logFieldEndDateConstant, endDate),
	)

	seenIdentifiers := make(map[string]struct{})
	fetchedPapers := make([]papers.Paper, 0)
	for _, category := range categories {
		if contextError := executionContext.Err(); contextError != nil {
			return fetchedPapers, contextError
		}

		entries, searchError := service.source.SearchByDateRange(executionContext, arxiv.SearchRequest{
			Category:   category,
			StartDate:  startDate,
			EndDate:    endDate,
			MaxResults: maxResults,
		})
		if searchError != nil {
			if errors.Is(searchError, context.Canceled) || errors.Is(searchError, context.DeadlineExceeded) {
				return fetchedPapers, searchError
			}
			service.logger.Warn(categoryFailedLogMessageConstant, zap.String(logFieldCategoryConstant, category), zap.Error(searchError))
			if service.recorder != nil {
				service.recorder.CategoryFailed(category)
			}
			continue
		}

		newInCategory := 0
		for _, entry := range entries {
			if _, seen := seenIdentifiers[entry.ID]; seen {
				continue
			}
			seenIdentifiers[entry.ID] = struct{}{}
			if service.store.Exists(entry.ID) {
				continue
			}

			paper := service.buildPaper(executionContext, entry)
			if saveError := service.store.Save(paper); saveError != nil {
				service.logger.Warn(paperSaveFailedLogMessageConstant, zap.String(logFieldIdentifierConstant, entry.ID), zap.Error(saveError))
				continue
			}
			service.logger.Debug(paperSavedLogMessageConstant,
				zap.String(logFieldIdentifierConstant, paper.ID),
				zap.Bool(logFieldHasHTMLConstant, len(paper.HTMLContent) > 0),
			)
			if service.recorder != nil {
				service.recorder.PaperFetched(category)
			}
			fetchedPapers = append(fetchedPapers, paper)
			newInCategory++
		}
		service.logger.Info(categoryFetchedLogMessageConstant,
			zap.String(logFieldCategoryConstant, category),
			zap.Int(logFieldEntriesConstant, len(entries)),
			zap.Int(logFieldNewPapersConstant, newInCategory),
		)
	}

	service.logger.Info(fetchCompletedLogMessageConstant, zap.Int(logFieldNewPapersConstant, len(fetchedPapers)))
	return fetchedPapers, nil
}

// FetchSingle returns the stored paper for identifier or downloads and saves it.
func (service *Service) FetchSingle(executionContext context.Context, identifier string) (papers.Paper, error) {
	trimmedIdentifier := strings.TrimSpace(identifier)
	if len(trimmedIdentifier) == 0 {
		return papers.Paper{}, ErrIdentifierRequired
	}

	if service.store.Exists(trimmedIdentifier) {
		storedPaper, loadError := service.store.Load(trimmedIdentifier)
		if loadError != nil {
			return papers.Paper{}, fmt.Errorf(loadTemplateConstant, trimmedIdentifier, loadError)
		}
		return storedPaper, nil
	}

	entry, lookupError := service.source.LookupByID(executionContext, trimmedIdentifier)
	if lookupError != nil {
		return papers.Paper{}, fmt.Errorf(lookupTemplateConstant, trimmedIdentifier, lookupError)
	}

	if entry.ID != trimmedIdentifier && service.store.Exists(entry.ID) {
		storedPaper, loadError := service.store.Load(entry.ID)
		if loadError != nil {
			return papers.Paper{}, fmt.Errorf(loadTemplateConstant, entry.ID, loadError)
		}
		return storedPaper, nil
	}

	paper := service.buildPaper(executionContext, entry)
	if saveError := service.store.Save(paper); saveError != nil {
		return papers.Paper{}, fmt.Errorf(saveTemplateConstant, paper.ID, saveError)
	}
	if service.recorder != nil {
		service.recorder.PaperFetched("")
	}
	service.logger.Info(paperSavedLogMessageConstant,
		zap.String(logFieldIdentifierConstant, paper.ID),
		zap.Bool(logFieldHasHTMLConstant, len(paper.HTMLContent) > 0),
	)
	return paper, nil
}

func (service *Service) buildPaper(executionContext context.Context, entry arxiv.Entry) papers.Paper {
	htmlText := service.source.FetchHTMLText(executionContext, entry.ID)
	timestamp := papers.FormatTimestamp(service.store.Now())
	return papers.Paper{
		ID:                entry.ID,
		Title:             entry.Title,
		Authors:           append([]string{}, entry.Authors...),
		Abstract:          entry.Summary,
		URL:               entry.Link,
		HTMLURL:           service.source.HTMLURL(entry.ID),
		HTMLContent:       htmlText,
		PreviewText:       arxiv.BuildPreview(entry.Summary, htmlText),
		ExtractedKeywords: []string{},
		QAPairs:           []papers.QAPair{},
		PublishedDate:     entry.Published,
		CreatedAt:         timestamp,
		UpdatedAt:         timestamp,
	}
}

func firstNonBlank(value string, fallback string) string {
	if trimmed := strings.TrimSpace(value); len(trimmed) > 0 {
		return trimmed
	}
	return strings.TrimSpace(fallback)
}
