package papers

import (
	"regexp"
	"sort"
	"strings"
	"unicode/utf8"
)

const (
	// SortByRelevance orders papers with deep analysis first, then by score.
	SortByRelevance = "relevance"
	// SortByLatest orders papers by publication date, newest first.
	SortByLatest = "latest"

	summaryAbstractLimitConstant  = 200
	summaryEllipsisConstant       = "..."
	searchFieldSeparatorConstant  = " "
	arxivIdentifierPatternLiteral = `^\d{4}\.\d{4,5}(v\d+)?$`
)

// SortChoices lists the supported timeline orderings.
var SortChoices = []string{SortByRelevance, SortByLatest}

var arxivIdentifierPattern = regexp.MustCompile(arxivIdentifierPatternLiteral)

// Summary is the condensed representation of a paper used by listings.
type Summary struct {
	ID                string   `json:"id"`
	Title             string   `json:"title"`
	Authors           []string `json:"authors"`
	Abstract          string   `json:"abstract"`
	URL               string   `json:"url"`
	IsRelevant        *bool    `json:"is_relevant"`
	RelevanceScore    float64  `json:"relevance_score"`
	ExtractedKeywords []string `json:"extracted_keywords"`
	OneLineSummary    string   `json:"one_line_summary"`
	PublishedDate     string   `json:"published_date"`
	IsStarred         bool     `json:"is_starred"`
	IsHidden          bool     `json:"is_hidden"`
	CreatedAt         string   `json:"created_at"`
	HasQA             bool     `json:"has_qa"`
	DetailedSummary   string   `json:"detailed_summary"`
}

// SearchResult is a summary ranked by how often the query occurs in the paper.
type SearchResult struct {
	Summary
	SearchScore int `json:"search_score"`
}

// TimelineOptions filter, sort and paginate a timeline listing.
type TimelineOptions struct {
	Skip        int
	Limit       int
	SortBy      string
	Keyword     string
	StarredOnly bool
}

// Stats aggregates counters over the stored papers.
type Stats struct {
	TotalPapers     int `json:"total_papers"`
	AnalyzedPapers  int `json:"analyzed_papers"`
	RelevantPapers  int `json:"relevant_papers"`
	StarredPapers   int `json:"starred_papers"`
	HiddenPapers    int `json:"hidden_papers"`
	PendingAnalysis int `json:"pending_analysis"`
}

// IsArxivID reports whether value looks like a modern arXiv identifier such as 2510.09212 or 2510.09212v2.
func IsArxivID(value string) bool {
	return arxivIdentifierPattern.MatchString(strings.TrimSpace(value))
}

// Summarize condenses a paper for listings; abstracts longer than 200 characters are cut.
func Summarize(paper Paper) Summary {
	normalized := paper.normalize()
	return Summary{
		ID:                normalized.ID,
		Title:             normalized.Title,
		Authors:           normalized.Authors,
		Abstract:          truncateRunes(normalized.Abstract, summaryAbstractLimitConstant),
		URL:               normalized.URL,
		IsRelevant:        normalized.IsRelevant,
		RelevanceScore:    normalized.RelevanceScore,
		ExtractedKeywords: normalized.ExtractedKeywords,
		OneLineSummary:    normalized.OneLineSummary,
		PublishedDate:     normalized.PublishedDate,
		IsStarred:         normalized.IsStarred,
		IsHidden:          normalized.IsHidden,
		CreatedAt:         normalized.CreatedAt,
		HasQA:             len(normalized.QAPairs) > 0,
		DetailedSummary:   normalized.DetailedSummary,
	}
}

// SummarizeAll condenses every paper in order.
func SummarizeAll(papers []Paper) []Summary {
	summaries := make([]Summary, 0, len(papers))
	for _, paper := range papers {
		summaries = append(summaries, Summarize(paper))
	}
	return summaries
}

// Timeline applies the timeline rules: hidden papers are dropped, starred papers are either
// the only ones returned or excluded, the keyword filters extracted keywords, then the result
// is sorted and paginated.
func Timeline(papers []Paper, options TimelineOptions) []Paper {
	normalizedKeyword := strings.ToLower(strings.TrimSpace(options.Keyword))

	selected := make([]Paper, 0, len(papers))
	for _, paper := range papers {
		if paper.IsHidden {
			continue
		}
		if paper.IsStarred != options.StarredOnly {
			continue
		}
		if len(normalizedKeyword) > 0 {
			joinedKeywords := strings.ToLower(strings.Join(paper.ExtractedKeywords, searchFieldSeparatorConstant))
			if !strings.Contains(joinedKeywords, normalizedKeyword) {
				continue
			}
		}
		selected = append(selected, paper)
	}

	switch strings.ToLower(strings.TrimSpace(options.SortBy)) {
	case SortByLatest:
		sort.SliceStable(selected, func(leftIndex int, rightIndex int) bool {
			return latestSortKey(selected[leftIndex]) > latestSortKey(selected[rightIndex])
		})
	case SortByRelevance, "":
		sort.SliceStable(selected, func(leftIndex int, rightIndex int) bool {
			leftPaper := selected[leftIndex]
			rightPaper := selected[rightIndex]
			if leftPaper.HasDetailedSummary() != rightPaper.HasDetailedSummary() {
				return leftPaper.HasDetailedSummary()
			}
			return leftPaper.RelevanceScore > rightPaper.RelevanceScore
		})
	}

	return paginate(selected, options.Skip, options.Limit)
}

// Search performs a case-insensitive substring search over title, abstract, keywords and
// one-line summary. Hidden papers are excluded; results are ordered by occurrence count.
func Search(papers []Paper, query string, limit int) []SearchResult {
	normalizedQuery := strings.ToLower(query)
	if len(strings.TrimSpace(normalizedQuery)) == 0 {
		return []SearchResult{}
	}

	results := make([]SearchResult, 0)
	for _, paper := range papers {
		if paper.IsHidden {
			continue
		}
		searchable := strings.ToLower(strings.Join([]string{
			paper.Title,
			paper.Abstract,
			strings.Join(paper.ExtractedKeywords, searchFieldSeparatorConstant),
			paper.OneLineSummary,
		}, searchFieldSeparatorConstant))
		occurrences := strings.Count(searchable, normalizedQuery)
		if occurrences == 0 {
			continue
		}
		results = append(results, SearchResult{Summary: Summarize(paper), SearchScore: occurrences})
	}

	sort.SliceStable(results, func(leftIndex int, rightIndex int) bool {
		return results[leftIndex].SearchScore > results[rightIndex].SearchScore
	})
	if limit > 0 && len(results) > limit {
		results = results[:limit]
	}
	return results
}

// ComputeStats counts total, analyzed, relevant, starred, hidden and pending papers.
func ComputeStats(papers []Paper) Stats {
	stats := Stats{TotalPapers: len(papers)}
	for _, paper := range papers {
		if paper.Analyzed() {
			stats.AnalyzedPapers++
		}
		if paper.Relevant() {
			stats.RelevantPapers++
		}
		if paper.IsStarred {
			stats.StarredPapers++
		}
		if paper.IsHidden {
			stats.HiddenPapers++
		}
	}
	stats.PendingAnalysis = stats.TotalPapers - stats.AnalyzedPapers
	return stats
}

// PendingDeepAnalysis selects relevant papers at or above minimumScore without a detailed summary.
func PendingDeepAnalysis(papers []Paper, minimumScore float64) []Paper {
	pending := make([]Paper, 0)
	for _, paper := range papers {
		if paper.NeedsDeepAnalysis(minimumScore) {
			pending = append(pending, paper)
		}
	}
	return pending
}

// Unanalyzed selects papers that have no relevance verdict yet.
func Unanalyzed(papers []Paper) []Paper {
	unanalyzed := make([]Paper, 0)
	for _, paper := range papers {
		if !paper.Analyzed() {
			unanalyzed = append(unanalyzed, paper)
		}
	}
	return unanalyzed
}

func latestSortKey(paper Paper) string {
	if len(paper.PublishedDate) > 0 {
		return paper.PublishedDate
	}
	return paper.CreatedAt
}

func paginate(papers []Paper, skip int, limit int) []Paper {
	if skip < 0 {
		skip = 0
	}
	if skip >= len(papers) {
		return []Paper{}
	}
	paginated := papers[skip:]
	if limit > 0 && len(paginated) > limit {
		paginated = paginated[:limit]
	}
	return paginated
}

func truncateRunes(value string, limit int) string {
	if utf8.RuneCountInString(value) <= limit {
		return value
	}
	runes := []rune(value)
	return string(runes[:limit]) + summaryEllipsisConstant
}
