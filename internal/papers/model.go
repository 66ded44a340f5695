package papers

import (
	"strings"
	"time"
)

// TimestampLayout formats creation and update timestamps stored in paper documents.
const TimestampLayout = "2006-01-02T15:04:05.000000"

// QAPair is a single question and answer recorded against a paper.
// ParentQAID indexes another pair of the same paper when the question is a follow-up.
type QAPair struct {
	Question    string  `json:"question"`
	Answer      string  `json:"answer"`
	Timestamp   string  `json:"timestamp"`
	Thinking    *string `json:"thinking"`
	IsReasoning bool    `json:"is_reasoning"`
	ParentQAID  *int    `json:"parent_qa_id"`
}

// Paper is the persisted document for one arXiv paper.
// IsRelevant is nil until the relevance filter has produced a verdict.
type Paper struct {
	ID                string   `json:"id"`
	Title             string   `json:"title"`
	Authors           []string `json:"authors"`
	Abstract          string   `json:"abstract"`
	URL               string   `json:"url"`
	HTMLURL           string   `json:"html_url"`
	HTMLContent       string   `json:"html_content"`
	PreviewText       string   `json:"preview_text"`
	IsRelevant        *bool    `json:"is_relevant"`
	RelevanceScore    float64  `json:"relevance_score"`
	ExtractedKeywords []string `json:"extracted_keywords"`
	OneLineSummary    string   `json:"one_line_summary"`
	DetailedSummary   string   `json:"detailed_summary"`
	QAPairs           []QAPair `json:"qa_pairs"`
	IsHidden          bool     `json:"is_hidden"`
	IsStarred         bool     `json:"is_starred"`
	PublishedDate     string   `json:"published_date"`
	CreatedAt         string   `json:"created_at"`
	UpdatedAt         string   `json:"updated_at"`
}

// NewQAPair builds a pair stamped with the provided time.
func NewQAPair(question string, answer string, timestamp time.Time) QAPair {
	return QAPair{Question: question, Answer: answer, Timestamp: FormatTimestamp(timestamp)}
}

// FormatTimestamp renders a timestamp in the layout stored inside paper documents.
func FormatTimestamp(timestamp time.Time) string {
	return timestamp.Format(TimestampLayout)
}

// BoolPointer returns a pointer to value.
func BoolPointer(value bool) *bool {
	return &value
}

// Relevant reports whether the relevance filter marked the paper as relevant.
func (paper Paper) Relevant() bool {
	return paper.IsRelevant != nil && *paper.IsRelevant
}

// Analyzed reports whether the relevance filter has produced a verdict.
func (paper Paper) Analyzed() bool {
	return paper.IsRelevant != nil
}

// HasDetailedSummary reports whether deep analysis already produced a summary.
func (paper Paper) HasDetailedSummary() bool {
	return len(strings.TrimSpace(paper.DetailedSummary)) > 0
}

// AnalysisContent returns the full text when available and falls back to the abstract.
func (paper Paper) AnalysisContent() string {
	if len(paper.HTMLContent) > 0 {
		return paper.HTMLContent
	}
	return paper.Abstract
}

// NeedsDeepAnalysis reports whether the paper is relevant, meets minimumScore and still lacks a detailed summary.
func (paper Paper) NeedsDeepAnalysis(minimumScore float64) bool {
	return paper.Relevant() && paper.RelevanceScore >= minimumScore && !paper.HasDetailedSummary()
}

// normalize replaces nil slices so documents always serialize arrays.
func (paper Paper) normalize() Paper {
	if paper.Authors == nil {
		paper.Authors = []string{}
	}
	if paper.ExtractedKeywords == nil {
		paper.ExtractedKeywords = []string{}
	}
	if paper.QAPairs == nil {
		paper.QAPairs = []QAPair{}
	}
	return paper
}

// Clone returns a deep copy so concurrent workers never share slices.
func (paper Paper) Clone() Paper {
	cloned := paper
	cloned.Authors = append([]string(nil), paper.Authors...)
	cloned.ExtractedKeywords = append([]string(nil), paper.ExtractedKeywords...)
	cloned.QAPairs = append([]QAPair(nil), paper.QAPairs...)
	if paper.IsRelevant != nil {
		cloned.IsRelevant = BoolPointer(*paper.IsRelevant)
	}
	return cloned.normalize()
}
