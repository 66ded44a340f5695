package export

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"
	"unicode"

	"go.uber.org/zap"

	"github.com/temirov/paperdigest/internal/papers"
)

const (
	// DefaultMinScore is the relevance score a paper needs to be exported.
	DefaultMinScore = 6.0
	// DefaultOutputDirectory receives one folder per exported date window.
	DefaultOutputDirectory = "data/markdown_export"

	dateLayoutConstant               = "2006-01-02"
	dateTimeSeparatorConstant        = "T"
	folderNameTemplateConstant       = "%s_to_%s"
	fileNameTemplateConstant         = "%03d_%03d_%s_%s.md"
	titleRuneLimitConstant           = 50
	titleSpaceConstant               = " "
	titleSpaceReplacementConstant    = "_"
	headerTitleTemplateConstant      = "# %s\n"
	headerScoreTemplateConstant      = "**相关性评分**: %s/10\n"
	headerRankTemplateConstant       = "**排名**: #%d\n"
	headerRuleConstant               = "---\n"
	documentLineSeparatorConstant    = "\n"
	outputDirectoryPermissions       = 0o755
	exportFilePermissions            = 0o644
	dateRangeRequiredMessageConstant = "date range not found in settings: start_date and end_date are required"
	listPapersTemplateConstant       = "failed to list papers for export: %w"
	createFolderTemplateConstant     = "failed to create export folder %s: %w"

	exportStartedLogMessageConstant   = "Exporting papers to Markdown"
	paperExportedLogMessageConstant   = "Paper exported"
	paperFailedLogMessageConstant     = "Failed to export paper"
	exportCompletedLogMessageConstant = "Markdown export completed"
	logFieldCandidatesConstant        = "candidates"
	logFieldMinScoreConstant          = "min_score"
	logFieldFolderConstant            = "folder"
	logFieldIdentifierConstant        = "id"
	logFieldFileConstant              = "file"
	logFieldExportedConstant          = "exported"
	logFieldFailedConstant            = "failed"
	logFieldTotalConstant             = "total"
)

// ErrDateRangeRequired indicates that the export window is incomplete.
var ErrDateRangeRequired = errors.New(dateRangeRequiredMessageConstant)

// PaperLister lists stored papers.
type PaperLister interface {
	List(skip int, limit int) ([]papers.Paper, error)
}

// Recorder observes exported papers.
type Recorder interface {
	PapersExported(count int)
}

// Options select the papers to export and where to write them.
type Options struct {
	MinScore        float64
	StartDate       string
	EndDate         string
	OutputDirectory string
}

// Result summarizes an export run.
type Result struct {
	TotalPapers    int     `json:"total_papers"`
	ExportedPapers int     `json:"exported_papers"`
	FailedPapers   int     `json:"failed_papers"`
	MinScore       float64 `json:"min_score"`
	OutputFolder   string  `json:"output_folder"`
	DateRange      string  `json:"date_range"`
	CleanedUpFiles int     `json:"cleaned_up_files,omitempty"`
}

// Exporter writes high-scoring papers as Markdown files, one file per paper.
type Exporter struct {
	lister   PaperLister
	logger   *zap.Logger
	recorder Recorder
	writer   func(path string, contents []byte) error
}

// NewExporter constructs an Exporter over lister.
func NewExporter(lister PaperLister, logger *zap.Logger, recorder Recorder) *Exporter {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Exporter{
		lister:   lister,
		logger:   logger,
		recorder: recorder,
		writer: func(path string, contents []byte) error {
			return os.WriteFile(path, contents, exportFilePermissions)
		},
	}
}

// Export writes papers scoring at least MinScore and published inside the inclusive date window
// into <output>/<start>_to_<end>/, ranked by score. Papers with unparseable dates are kept.
// Individual write failures are counted and do not stop the export.
func (exporter *Exporter) Export(options Options) (Result, error) {
	startDate := strings.TrimSpace(options.StartDate)
	endDate := strings.TrimSpace(options.EndDate)
	if len(startDate) == 0 || len(endDate) == 0 {
		return Result{}, ErrDateRangeRequired
	}
	outputDirectory := strings.TrimSpace(options.OutputDirectory)
	if len(outputDirectory) == 0 {
		outputDirectory = DefaultOutputDirectory
	}

	allPapers, listError := exporter.lister.List(0, 0)
	if listError != nil {
		return Result{}, fmt.Errorf(listPapersTemplateConstant, listError)
	}

	selected := SelectPapers(allPapers, options.MinScore, startDate, endDate)
	dateRange := fmt.Sprintf(folderNameTemplateConstant, startDate, endDate)
	outputFolder := filepath.Join(outputDirectory, dateRange)
	if mkdirError := os.MkdirAll(outputFolder, outputDirectoryPermissions); mkdirError != nil {
		return Result{}, fmt.Errorf(createFolderTemplateConstant, outputFolder, mkdirError)
	}
	exporter.logger.Info(exportStartedLogMessageConstant,
		zap.Int(logFieldCandidatesConstant, len(selected)),
		zap.Float64(logFieldMinScoreConstant, options.MinScore),
		zap.String(logFieldFolderConstant, outputFolder),
	)

	result := Result{
		TotalPapers:  len(allPapers),
		MinScore:     options.MinScore,
		OutputFolder: outputFolder,
		DateRange:    dateRange,
	}
	for paperIndex, paper := range selected {
		rank := paperIndex + 1
		fileName := FileName(rank, paper)
		if writeError := exporter.writer(filepath.Join(outputFolder, fileName), []byte(RenderDocument(rank, paper))); writeError != nil {
			exporter.logger.Warn(paperFailedLogMessageConstant, zap.String(logFieldIdentifierConstant, paper.ID), zap.Error(writeError))
			result.FailedPapers++
			continue
		}
		exporter.logger.Debug(paperExportedLogMessageConstant, zap.String(logFieldIdentifierConstant, paper.ID), zap.String(logFieldFileConstant, fileName))
		result.ExportedPapers++
	}

	if exporter.recorder != nil {
		exporter.recorder.PapersExported(result.ExportedPapers)
	}
	exporter.logger.Info(exportCompletedLogMessageConstant,
		zap.Int(logFieldTotalConstant, result.TotalPapers),
		zap.Int(logFieldExportedConstant, result.ExportedPapers),
		zap.Int(logFieldFailedConstant, result.FailedPapers),
		zap.String(logFieldFolderConstant, outputFolder),
	)
	return result, nil
}

// SelectPapers filters papers by score and publication window and orders them by score, highest first.
// Ties keep their listing order.
func SelectPapers(allPapers []papers.Paper, minScore float64, startDate string, endDate string) []papers.Paper {
	windowStart, startError := time.Parse(dateLayoutConstant, startDate)
	windowEnd, endError := time.Parse(dateLayoutConstant, endDate)
	windowValid := startError == nil && endError == nil

	selected := make([]papers.Paper, 0)
	for _, paper := range allPapers {
		if paper.RelevanceScore < minScore {
			continue
		}
		if windowValid && len(paper.PublishedDate) > 0 {
			datePart, _, _ := strings.Cut(paper.PublishedDate, dateTimeSeparatorConstant)
			publishedDate, parseError := time.Parse(dateLayoutConstant, datePart)
			if parseError == nil && (publishedDate.Before(windowStart) || publishedDate.After(windowEnd)) {
				continue
			}
		}
		selected = append(selected, paper)
	}
	sort.SliceStable(selected, func(left int, right int) bool {
		return selected[left].RelevanceScore > selected[right].RelevanceScore
	})
	return selected
}

// FileName builds <rank>_<score*10>_<id>_<title>.md so a directory listing follows the ranking.
func FileName(rank int, paper papers.Paper) string {
	return fmt.Sprintf(fileNameTemplateConstant, rank, int(paper.RelevanceScore*10), paper.ID, SafeTitle(paper))
}

// SafeTitle keeps letters, digits, spaces, dashes and underscores of the first 50 title characters.
// Spaces become underscores; an empty result falls back to the paper identifier.
func SafeTitle(paper papers.Paper) string {
	titleRunes := []rune(paper.Title)
	if len(titleRunes) > titleRuneLimitConstant {
		titleRunes = titleRunes[:titleRuneLimitConstant]
	}
	var builder strings.Builder
	for _, character := range titleRunes {
		if unicode.IsLetter(character) || unicode.IsNumber(character) || character == ' ' || character == '-' || character == '_' {
			builder.WriteRune(character)
		}
	}
	safeTitle := strings.ReplaceAll(strings.TrimSpace(builder.String()), titleSpaceConstant, titleSpaceReplacementConstant)
	if len(safeTitle) == 0 {
		return paper.ID
	}
	return safeTitle
}

// RenderDocument renders the exported file: a ranking header followed by the paper body.
func RenderDocument(rank int, paper papers.Paper) string {
	lines := []string{
		fmt.Sprintf(headerTitleTemplateConstant, paper.Title),
		fmt.Sprintf(headerScoreTemplateConstant, papers.FormatScore(paper.RelevanceScore)),
		fmt.Sprintf(headerRankTemplateConstant, rank),
		"",
		headerRuleConstant,
		"",
		papers.RenderMarkdown(paper),
	}
	return strings.Join(lines, documentLineSeparatorConstant)
}
