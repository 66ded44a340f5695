// Package settings manages the mutable analysis settings document: keywords, prompts,
// categories, the date window and the chat-completion tuning knobs.
package settings

import (
	"strings"
	"time"
)

const (
	// DateLayout is the calendar date format used by the date window.
	DateLayout = "2006-01-02"

	defaultSystemPromptConstant         = "你是一个专业的学术论文分析助手请用中文回答所有问题。先仔细阅读下面文章，分析文章的要点，回答要准确、简洁、有深度。使用 Markdown 格式，包括：标题（##）、要点列表（-）、代码块（```）、加粗（**）等，让回答更易读。重点关注论文的技术创新和实际价值。"
	defaultFetchIntervalSecondsConstant = 300
	defaultMaxPapersPerFetchConstant    = 1000
	defaultModelConstant                = "deepseek-chat"
	defaultTemperatureConstant          = 0.3
	defaultMaxTokensConstant            = 2000
	defaultConcurrentPapersConstant     = 10
	defaultMinimumStage2ScoreConstant   = 6.0
	defaultStartDateConstant            = "2025-12-28"
	defaultEndDateConstant              = "2025-12-29"

	minimumFetchIntervalConstant    = 60
	minimumMaxPapersConstant        = 1
	maximumMaxPapersConstant        = 500
	minimumTemperatureConstant      = 0.0
	maximumTemperatureConstant      = 2.0
	minimumMaxTokensConstant        = 100
	maximumMaxTokensConstant        = 8000
	minimumConcurrentPapersConstant = 1
	maximumConcurrentPapersConstant = 50
	minimumStage2ScoreBoundConstant = 0.0
	maximumStage2ScoreBoundConstant = 10.0
)

// Settings is the analysis settings document persisted as JSON.
type Settings struct {
	FilterKeywords             []string `json:"filter_keywords"`
	NegativeKeywords           []string `json:"negative_keywords"`
	PresetQuestions            []string `json:"preset_questions"`
	SystemPrompt               string   `json:"system_prompt"`
	Categories                 []string `json:"categories"`
	FetchInterval              int      `json:"fetch_interval"`
	MaxPapersPerFetch          int      `json:"max_papers_per_fetch"`
	StartDate                  string   `json:"start_date"`
	EndDate                    string   `json:"end_date"`
	Model                      string   `json:"model"`
	Temperature                float64  `json:"temperature"`
	MaxTokens                  int      `json:"max_tokens"`
	ConcurrentPapers           int      `json:"concurrent_papers"`
	MinRelevanceScoreForStage2 float64  `json:"min_relevance_score_for_stage2"`
}

// UpdateRequest carries optional settings changes; nil fields are left untouched.
type UpdateRequest struct {
	FilterKeywords             *[]string `json:"filter_keywords,omitempty"`
	NegativeKeywords           *[]string `json:"negative_keywords,omitempty"`
	PresetQuestions            *[]string `json:"preset_questions,omitempty"`
	SystemPrompt               *string   `json:"system_prompt,omitempty"`
	Categories                 *[]string `json:"categories,omitempty"`
	FetchInterval              *int      `json:"fetch_interval,omitempty"`
	MaxPapersPerFetch          *int      `json:"max_papers_per_fetch,omitempty"`
	StartDate                  *string   `json:"start_date,omitempty"`
	EndDate                    *string   `json:"end_date,omitempty"`
	Model                      *string   `json:"model,omitempty"`
	Temperature                *float64  `json:"temperature,omitempty"`
	MaxTokens                  *int      `json:"max_tokens,omitempty"`
	ConcurrentPapers           *int      `json:"concurrent_papers,omitempty"`
	MinRelevanceScoreForStage2 *float64  `json:"min_relevance_score_for_stage2,omitempty"`
}

// Default returns the settings used when no document exists yet.
func Default() Settings {
	return Settings{
		FilterKeywords: []string{
			"Vision-Language-Action Model",
			"VLA for Robotics",
			"Inference Efficiency",
			"Lightweight Architecture",
			"Inference Acceleration",
			"Edge Deployment",
		},
		NegativeKeywords: []string{"medical", "healthcare", "clinical", "protein", "molecule"},
		PresetQuestions: []string{
			"这篇论文的核心创新点是什么，他想解决什么问题，怎么解决的？",
			"请用一段话总结这篇论文，明确说明：论文试图解决的核心问题；提出的主要方法或框架；最终取得的主要效果或结论。要求语言简洁、信息密度高，不要复述摘要原文。",
			"这篇论文相对于已有工作有哪些明确的创新点？请逐条列出，并对每一条说明：相比以往方法改进或不同之处在哪里，以及该创新解决了什么具体问题或带来了什么优势。",
			"论文在实验或评估中最终实现了怎样的效果？请说明使用了哪些数据集和评价指标，与哪些基线方法进行了对比，以及在关键指标上的主要性能提升或结论。如果论文未给出明确的定量结果，也请说明原因。",
		},
		SystemPrompt:               defaultSystemPromptConstant,
		Categories:                 []string{"cs.RO", "cs.AI", "cs.CV", "cs.LG", "cs.CL", "cs.NE"},
		FetchInterval:              defaultFetchIntervalSecondsConstant,
		MaxPapersPerFetch:          defaultMaxPapersPerFetchConstant,
		StartDate:                  defaultStartDateConstant,
		EndDate:                    defaultEndDateConstant,
		Model:                      defaultModelConstant,
		Temperature:                defaultTemperatureConstant,
		MaxTokens:                  defaultMaxTokensConstant,
		ConcurrentPapers:           defaultConcurrentPapersConstant,
		MinRelevanceScoreForStage2: defaultMinimumStage2ScoreConstant,
	}
}

// FetchIntervalDuration converts the fetch interval to a duration.
func (settings Settings) FetchIntervalDuration() time.Duration {
	return time.Duration(settings.FetchInterval) * time.Second
}

// Sanitize trims list entries and fills blank or non-positive values with defaults.
func (settings Settings) Sanitize() Settings {
	defaults := Default()
	sanitized := settings

	sanitized.FilterKeywords = trimEntries(settings.FilterKeywords)
	sanitized.NegativeKeywords = trimEntries(settings.NegativeKeywords)
	sanitized.PresetQuestions = trimEntries(settings.PresetQuestions)
	sanitized.Categories = trimEntries(settings.Categories)
	if len(sanitized.Categories) == 0 {
		sanitized.Categories = defaults.Categories
	}
	if len(strings.TrimSpace(sanitized.SystemPrompt)) == 0 {
		sanitized.SystemPrompt = defaults.SystemPrompt
	}
	if len(strings.TrimSpace(sanitized.Model)) == 0 {
		sanitized.Model = defaults.Model
	}
	sanitized.StartDate = strings.TrimSpace(sanitized.StartDate)
	sanitized.EndDate = strings.TrimSpace(sanitized.EndDate)

	if sanitized.FetchInterval <= 0 {
		sanitized.FetchInterval = defaults.FetchInterval
	}
	sanitized.FetchInterval = maxInt(sanitized.FetchInterval, minimumFetchIntervalConstant)
	if sanitized.MaxPapersPerFetch <= 0 {
		sanitized.MaxPapersPerFetch = defaults.MaxPapersPerFetch
	}
	if sanitized.MaxTokens <= 0 {
		sanitized.MaxTokens = defaults.MaxTokens
	}
	if sanitized.ConcurrentPapers <= 0 {
		sanitized.ConcurrentPapers = defaults.ConcurrentPapers
	}
	sanitized.Temperature = clampFloat(sanitized.Temperature, minimumTemperatureConstant, maximumTemperatureConstant)
	sanitized.MinRelevanceScoreForStage2 = clampFloat(sanitized.MinRelevanceScoreForStage2, minimumStage2ScoreBoundConstant, maximumStage2ScoreBoundConstant)
	return sanitized
}

// Apply returns a copy with the request applied and clamped, and whether the negative keyword set changed.
func (settings Settings) Apply(request UpdateRequest) (Settings, bool) {
	updated := settings
	previousNegativeKeywords := keywordSet(settings.NegativeKeywords)

	if request.FilterKeywords != nil {
		updated.FilterKeywords = append([]string{}, (*request.FilterKeywords)...)
	}
	if request.NegativeKeywords != nil {
		updated.NegativeKeywords = append([]string{}, (*request.NegativeKeywords)...)
	}
	if request.PresetQuestions != nil {
		updated.PresetQuestions = append([]string{}, (*request.PresetQuestions)...)
	}
	if request.SystemPrompt != nil {
		updated.SystemPrompt = *request.SystemPrompt
	}
	if request.Categories != nil {
		updated.Categories = append([]string{}, (*request.Categories)...)
	}
	if request.FetchInterval != nil {
		updated.FetchInterval = maxInt(*request.FetchInterval, minimumFetchIntervalConstant)
	}
	if request.MaxPapersPerFetch != nil {
		updated.MaxPapersPerFetch = clampInt(*request.MaxPapersPerFetch, minimumMaxPapersConstant, maximumMaxPapersConstant)
	}
	if request.StartDate != nil {
		updated.StartDate = strings.TrimSpace(*request.StartDate)
	}
	if request.EndDate != nil {
		updated.EndDate = strings.TrimSpace(*request.EndDate)
	}
	if request.Model != nil {
		updated.Model = *request.Model
	}
	if request.Temperature != nil {
		updated.Temperature = clampFloat(*request.Temperature, minimumTemperatureConstant, maximumTemperatureConstant)
	}
	if request.MaxTokens != nil {
		updated.MaxTokens = clampInt(*request.MaxTokens, minimumMaxTokensConstant, maximumMaxTokensConstant)
	}
	if request.ConcurrentPapers != nil {
		updated.ConcurrentPapers = clampInt(*request.ConcurrentPapers, minimumConcurrentPapersConstant, maximumConcurrentPapersConstant)
	}
	if request.MinRelevanceScoreForStage2 != nil {
		updated.MinRelevanceScoreForStage2 = clampFloat(*request.MinRelevanceScoreForStage2, minimumStage2ScoreBoundConstant, maximumStage2ScoreBoundConstant)
	}

	negativeKeywordsChanged := !sameKeywordSet(previousNegativeKeywords, keywordSet(updated.NegativeKeywords))
	return updated, negativeKeywordsChanged
}

// WithDateWindow returns a copy whose window ends at reference and starts daysBack days earlier.
func (settings Settings) WithDateWindow(reference time.Time, daysBack int) Settings {
	if daysBack < 0 {
		daysBack = 0
	}
	updated := settings
	updated.EndDate = reference.Format(DateLayout)
	updated.StartDate = reference.AddDate(0, 0, -daysBack).Format(DateLayout)
	return updated
}

func trimEntries(values []string) []string {
	trimmed := make([]string, 0, len(values))
	for _, value := range values {
		candidate := strings.TrimSpace(value)
		if len(candidate) == 0 {
			continue
		}
		trimmed = append(trimmed, candidate)
	}
	return trimmed
}

func keywordSet(values []string) map[string]struct{} {
	set := make(map[string]struct{}, len(values))
	for _, value := range values {
		set[value] = struct{}{}
	}
	return set
}

func sameKeywordSet(left map[string]struct{}, right map[string]struct{}) bool {
	if len(left) != len(right) {
		return false
	}
	for key := range left {
		if _, exists := right[key]; !exists {
			return false
		}
	}
	return true
}

func clampInt(value int, minimum int, maximum int) int {
	if value < minimum {
		return minimum
	}
	if value > maximum {
		return maximum
	}
	return value
}

func maxInt(value int, minimum int) int {
	if value < minimum {
		return minimum
	}
	return value
}

func clampFloat(value float64, minimum float64, maximum float64) float64 {
	if value < minimum {
		return minimum
	}
	if value > maximum {
		return maximum
	}
	return value
}
