package papers

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/temirov/paperdigest/internal/papers"
	flagutils "github.com/temirov/paperdigest/internal/utils/flags"
)

const (
	listUseConstant                = "list"
	listShortDescriptionConstant   = "List the paper timeline"
	listLongDescriptionConstant    = "list prints stored papers the way the web timeline shows them: hidden papers excluded, sorted by relevance or publication date."
	searchUseConstant              = "search <query>"
	searchShortDescriptionConstant = "Search stored papers, or look up an arXiv identifier"
	searchLongDescriptionConstant  = "search ranks stored papers by how often the query occurs in them. A query that is an arXiv identifier loads the paper, downloading it when it is not stored yet."
	statsUseConstant               = "stats"
	statsShortDescriptionConstant  = "Print paper counters"
	skipFlagNameConstant           = "skip"
	skipFlagUsageConstant          = "Number of papers to skip"
	limitFlagNameConstant          = "limit"
	limitFlagUsageConstant         = "Maximum number of papers to print"
	sortByFlagNameConstant         = "sort-by"
	sortByFlagUsageConstant        = "Timeline order"
	keywordFlagNameConstant        = "keyword"
	keywordFlagUsageConstant       = "Only papers with this extracted keyword"
	starredFlagNameConstant        = "starred"
	starredFlagUsageConstant       = "Only starred papers"
	formatFlagNameConstant         = "format"
	formatFlagUsageConstant        = "Output format"
	formatTableConstant            = "table"
	formatJSONConstant             = "json"
	defaultListLimitConstant       = 20
	defaultSearchLimitConstant     = 50
	timelineWindowConstant         = 1000
	tableMinimumWidthConstant      = 0
	tableTabWidthConstant          = 4
	tablePaddingConstant           = 2
	tablePaddingCharacterConstant  = ' '
	jsonIndentConstant             = "  "
	listHeaderConstant             = "ID\tSCORE\tFLAGS\tPUBLISHED\tTITLE\n"
	listRowTemplateConstant        = "%s\t%s\t%s\t%s\t%s\n"
	searchHeaderConstant           = "ID\tMATCHES\tSCORE\tTITLE\n"
	searchRowTemplateConstant      = "%s\t%d\t%s\t%s\n"
	statsTemplateConstant          = "total: %d\nanalyzed: %d\nrelevant: %d\nstarred: %d\nhidden: %d\npending deep analysis: %d\n"
	flagStarredConstant            = "★"
	flagAnalyzedConstant           = "A"
	flagHiddenConstant             = "H"
	queryRequiredMessageConstant   = "search query required"
	listedLogMessageConstant       = "Papers listed"
	logFieldCountConstant          = "count"
)

var outputFormats = []string{formatTableConstant, formatJSONConstant}

// ListCommandBuilder assembles the papers list command.
type ListCommandBuilder struct {
	LoggerProvider   LoggerProvider
	ServicesProvider ServicesProvider
}

// Build constructs the list command.
func (builder *ListCommandBuilder) Build() (*cobra.Command, error) {
	command := &cobra.Command{
		Use:   listUseConstant,
		Short: listShortDescriptionConstant,
		Long:  listLongDescriptionConstant,
		Args:  cobra.NoArgs,
		RunE:  builder.run,
	}
	command.Flags().Int(skipFlagNameConstant, 0, skipFlagUsageConstant)
	command.Flags().Int(limitFlagNameConstant, defaultListLimitConstant, limitFlagUsageConstant)
	command.Flags().String(sortByFlagNameConstant, papers.SortByRelevance, flagutils.FormatChoiceUsage(papers.SortByRelevance, papers.SortChoices, sortByFlagUsageConstant))
	command.Flags().String(keywordFlagNameConstant, "", keywordFlagUsageConstant)
	command.Flags().Bool(starredFlagNameConstant, false, starredFlagUsageConstant)
	bindFormatFlag(command)
	return command, nil
}

func (builder *ListCommandBuilder) run(command *cobra.Command, _ []string) error {
	container, servicesError := resolveServices(builder.ServicesProvider)
	if servicesError != nil {
		return servicesError
	}
	format, formatError := readFormat(command)
	if formatError != nil {
		return formatError
	}
	sortValue, _ := command.Flags().GetString(sortByFlagNameConstant)
	sortBy, sortError := flagutils.NormalizeChoice(sortValue, papers.SortByRelevance, papers.SortChoices)
	if sortError != nil {
		return sortError
	}
	skip, _ := command.Flags().GetInt(skipFlagNameConstant)
	limit, _ := command.Flags().GetInt(limitFlagNameConstant)
	keyword, _ := command.Flags().GetString(keywordFlagNameConstant)
	starredOnly, _ := command.Flags().GetBool(starredFlagNameConstant)

	store, storeError := container.Papers()
	if storeError != nil {
		return storeError
	}
	window := timelineWindowConstant
	if starredOnly {
		window = 0
	}
	storedPapers, listError := store.List(0, window)
	if listError != nil {
		return listError
	}
	timeline := papers.Timeline(storedPapers, papers.TimelineOptions{
		Skip:        skip,
		Limit:       limit,
		SortBy:      sortBy,
		Keyword:     keyword,
		StarredOnly: starredOnly,
	})
	resolveLogger(builder.LoggerProvider).Debug(listedLogMessageConstant, zap.Int(logFieldCountConstant, len(timeline)))

	summaries := papers.SummarizeAll(timeline)
	if format == formatJSONConstant {
		return writeJSON(command.OutOrStdout(), summaries)
	}
	return writeSummaryTable(command.OutOrStdout(), summaries)
}

// SearchCommandBuilder assembles the papers search command.
type SearchCommandBuilder struct {
	LoggerProvider   LoggerProvider
	ServicesProvider ServicesProvider
}

// Build constructs the search command.
func (builder *SearchCommandBuilder) Build() (*cobra.Command, error) {
	command := &cobra.Command{
		Use:   searchUseConstant,
		Short: searchShortDescriptionConstant,
		Long:  searchLongDescriptionConstant,
		RunE:  builder.run,
	}
	command.Flags().Int(limitFlagNameConstant, defaultSearchLimitConstant, limitFlagUsageConstant)
	bindFormatFlag(command)
	return command, nil
}

func (builder *SearchCommandBuilder) run(command *cobra.Command, arguments []string) error {
	query := strings.TrimSpace(strings.Join(arguments, " "))
	if len(query) == 0 {
		_ = command.Help()
		return errors.New(queryRequiredMessageConstant)
	}
	container, servicesError := resolveServices(builder.ServicesProvider)
	if servicesError != nil {
		return servicesError
	}
	format, formatError := readFormat(command)
	if formatError != nil {
		return formatError
	}
	limit, _ := command.Flags().GetInt(limitFlagNameConstant)

	var results []papers.SearchResult
	if papers.IsArxivID(query) {
		paperFetcher, fetcherError := container.Fetcher()
		if fetcherError != nil {
			return fetcherError
		}
		paper, fetchError := paperFetcher.FetchSingle(command.Context(), query)
		if fetchError != nil {
			return fetchError
		}
		results = []papers.SearchResult{{Summary: papers.Summarize(paper)}}
	} else {
		store, storeError := container.Papers()
		if storeError != nil {
			return storeError
		}
		storedPapers, listError := store.List(0, timelineWindowConstant)
		if listError != nil {
			return listError
		}
		results = papers.Search(storedPapers, query, limit)
	}

	if format == formatJSONConstant {
		return writeJSON(command.OutOrStdout(), results)
	}
	tableWriter := newTableWriter(command.OutOrStdout())
	fmt.Fprint(tableWriter, searchHeaderConstant)
	for _, result := range results {
		fmt.Fprintf(tableWriter, searchRowTemplateConstant, result.ID, result.SearchScore, papers.FormatScore(result.RelevanceScore), result.Title)
	}
	return tableWriter.Flush()
}

// StatsCommandBuilder assembles the papers stats command.
type StatsCommandBuilder struct {
	LoggerProvider   LoggerProvider
	ServicesProvider ServicesProvider
}

// Build constructs the stats command.
func (builder *StatsCommandBuilder) Build() (*cobra.Command, error) {
	command := &cobra.Command{
		Use:   statsUseConstant,
		Short: statsShortDescriptionConstant,
		Args:  cobra.NoArgs,
		RunE:  builder.run,
	}
	bindFormatFlag(command)
	return command, nil
}

func (builder *StatsCommandBuilder) run(command *cobra.Command, _ []string) error {
	container, servicesError := resolveServices(builder.ServicesProvider)
	if servicesError != nil {
		return servicesError
	}
	format, formatError := readFormat(command)
	if formatError != nil {
		return formatError
	}
	store, storeError := container.Papers()
	if storeError != nil {
		return storeError
	}
	storedPapers, listError := store.List(0, 0)
	if listError != nil {
		return listError
	}
	stats := papers.ComputeStats(storedPapers)
	if format == formatJSONConstant {
		return writeJSON(command.OutOrStdout(), stats)
	}
	_, writeError := fmt.Fprintf(command.OutOrStdout(), statsTemplateConstant,
		stats.TotalPapers, stats.AnalyzedPapers, stats.RelevantPapers, stats.StarredPapers, stats.HiddenPapers, stats.PendingAnalysis)
	return writeError
}

func bindFormatFlag(command *cobra.Command) {
	command.Flags().String(formatFlagNameConstant, formatTableConstant, flagutils.FormatChoiceUsage(formatTableConstant, outputFormats, formatFlagUsageConstant))
}

func readFormat(command *cobra.Command) (string, error) {
	value, _ := command.Flags().GetString(formatFlagNameConstant)
	return flagutils.NormalizeChoice(value, formatTableConstant, outputFormats)
}

func writeJSON(output io.Writer, payload any) error {
	encoder := json.NewEncoder(output)
	encoder.SetIndent("", jsonIndentConstant)
	return encoder.Encode(payload)
}

func newTableWriter(output io.Writer) *tabwriter.Writer {
	return tabwriter.NewWriter(output, tableMinimumWidthConstant, tableTabWidthConstant, tablePaddingConstant, tablePaddingCharacterConstant, 0)
}

func writeSummaryTable(output io.Writer, summaries []papers.Summary) error {
	tableWriter := newTableWriter(output)
	fmt.Fprint(tableWriter, listHeaderConstant)
	for _, summary := range summaries {
		fmt.Fprintf(tableWriter, listRowTemplateConstant,
			summary.ID,
			papers.FormatScore(summary.RelevanceScore),
			summaryFlags(summary),
			summary.PublishedDate,
			summary.Title,
		)
	}
	return tableWriter.Flush()
}

func summaryFlags(summary papers.Summary) string {
	var builder strings.Builder
	if summary.IsStarred {
		builder.WriteString(flagStarredConstant)
	}
	if len(summary.DetailedSummary) > 0 {
		builder.WriteString(flagAnalyzedConstant)
	}
	if summary.IsHidden {
		builder.WriteString(flagHiddenConstant)
	}
	return builder.String()
}
