package analysis

import (
	"fmt"
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/temirov/paperdigest/internal/papers"
)

const (
	stage1PromptTemplateConstant = `分析这篇论文预览，判断它与以下关键词的相关性：

关键词：%s

论文标题：%s
论文预览：
%s

请用 JSON 格式回答：
{
    "is_relevant": true/false,
    "relevance_score": 0-10的分数（0=完全不相关，10=高度相关），
    "extracted_keywords": ["关键词1", "关键词2", ...],
    "one_line_summary": "一句话总结（中文）"
}
`
	detailedSummaryQuestionConstant = `请用中文生成这篇论文的详细摘要（约200-300字），包括：
1. 研究背景和动机
2. 核心方法和技术创新
3. 主要实验结果
4. 研究意义和价值

使用 Markdown 格式，让摘要清晰易读。`

	paperPrefixTemplateConstant          = "Paper Title: %s\n\nPaper Content:\n%s\n"
	questionMessageTemplateConstant      = "%s\n\nQuestion: %s"
	historyQuestionTemplateConstant      = "Question: %s"
	keywordSeparatorConstant             = ", "
	negativeKeywordMarkerConstant        = "❌ "
	negativeKeywordSummaryTemplate       = "论文包含负面关键词「%s」，自动标记为不相关"
	currentPaperHeaderConstant           = "=== CURRENT PAPER ==="
	referencePaperHeaderTemplateConstant = "=== REFERENCE PAPER %d ==="
	contextTitleTemplateConstant         = "Title: %s"
	contextContentTemplateConstant       = "Content:\n%s"
	contextLineSeparatorConstant         = "\n"
	referenceTokenTemplateConstant       = "[%s]"
	quotedTitleTemplateConstant          = `"%s"`
	shortTitleRuneLimitConstant          = 60
	shortTitleEllipsisConstant           = "..."
	reasoningPrefixConstant              = "think:"
)

var referencePattern = regexp.MustCompile(`\[(\d{4}\.\d{4,5}(?:v\d+)?)\]`)

// Stage1Prompt renders the relevance filter prompt for paper.
func Stage1Prompt(paper papers.Paper, filterKeywords []string) string {
	return fmt.Sprintf(stage1PromptTemplateConstant, strings.Join(filterKeywords, keywordSeparatorConstant), paper.Title, paper.PreviewText)
}

// PaperPrefix renders the fixed part of every deep analysis message.
// Only the question that follows it changes, so the endpoint can reuse its prompt cache.
func PaperPrefix(paper papers.Paper) string {
	return fmt.Sprintf(paperPrefixTemplateConstant, paper.Title, paper.AnalysisContent())
}

// QuestionMessage appends question to the fixed prefix.
func QuestionMessage(prefix string, question string) string {
	return fmt.Sprintf(questionMessageTemplateConstant, prefix, question)
}

// MatchNegativeKeyword returns the first negative keyword found in the title or preview, ignoring case.
func MatchNegativeKeyword(paper papers.Paper, negativeKeywords []string) (string, bool) {
	searchableText := strings.ToLower(paper.Title + " " + paper.PreviewText)
	for _, keyword := range negativeKeywords {
		if len(keyword) == 0 {
			continue
		}
		if strings.Contains(searchableText, strings.ToLower(keyword)) {
			return keyword, true
		}
	}
	return "", false
}

// ParseReasoningPrefix strips a case-insensitive "think:" prefix and reports whether it was present.
func ParseReasoningPrefix(question string) (string, bool) {
	if len(question) < len(reasoningPrefixConstant) || !strings.EqualFold(question[:len(reasoningPrefixConstant)], reasoningPrefixConstant) {
		return question, false
	}
	return strings.TrimSpace(question[len(reasoningPrefixConstant):]), true
}

// ExtractReferences returns the bracketed arXiv identifiers of question in order of first appearance.
func ExtractReferences(question string) []string {
	matches := referencePattern.FindAllStringSubmatch(question, -1)
	seen := make(map[string]struct{}, len(matches))
	identifiers := make([]string, 0, len(matches))
	for _, match := range matches {
		if _, duplicate := seen[match[1]]; duplicate {
			continue
		}
		seen[match[1]] = struct{}{}
		identifiers = append(identifiers, match[1])
	}
	return identifiers
}

// ShortTitle cuts a title to 60 characters followed by an ellipsis.
func ShortTitle(title string) string {
	if utf8.RuneCountInString(title) <= shortTitleRuneLimitConstant {
		return title
	}
	return string([]rune(title)[:shortTitleRuneLimitConstant]) + shortTitleEllipsisConstant
}

// resolvedReference pairs the identifier written in a question with the paper it resolved to.
type resolvedReference struct {
	token string
	paper papers.Paper
}

func replaceReferences(question string, references []resolvedReference) string {
	enhancedQuestion := question
	for _, reference := range references {
		enhancedQuestion = strings.ReplaceAll(enhancedQuestion,
			fmt.Sprintf(referenceTokenTemplateConstant, reference.token),
			fmt.Sprintf(quotedTitleTemplateConstant, ShortTitle(reference.paper.Title)),
		)
	}
	return enhancedQuestion
}

func referenceContext(paper papers.Paper, references []resolvedReference) string {
	contextLines := []string{
		currentPaperHeaderConstant,
		fmt.Sprintf(contextTitleTemplateConstant, paper.Title),
		fmt.Sprintf(contextContentTemplateConstant, paper.AnalysisContent()),
		"",
	}
	for referenceIndex, reference := range references {
		contextLines = append(contextLines,
			fmt.Sprintf(referencePaperHeaderTemplateConstant, referenceIndex+1),
			fmt.Sprintf(contextTitleTemplateConstant, reference.paper.Title),
			fmt.Sprintf(contextContentTemplateConstant, reference.paper.AnalysisContent()),
			"",
		)
	}
	return strings.Join(contextLines, contextLineSeparatorConstant)
}

// conversationHistory walks the parent chain starting at parentIdentifier and returns the pairs oldest first.
func conversationHistory(pairs []papers.QAPair, parentIdentifier *int) []papers.QAPair {
	if parentIdentifier == nil || *parentIdentifier < 0 || *parentIdentifier >= len(pairs) {
		return nil
	}
	history := make([]papers.QAPair, 0)
	visited := make(map[int]struct{})
	currentIdentifier := parentIdentifier
	for currentIdentifier != nil && *currentIdentifier >= 0 && *currentIdentifier < len(pairs) {
		if _, seen := visited[*currentIdentifier]; seen {
			break
		}
		visited[*currentIdentifier] = struct{}{}
		pair := pairs[*currentIdentifier]
		history = append([]papers.QAPair{pair}, history...)
		currentIdentifier = pair.ParentQAID
	}
	return history
}
