package papers

import (
	"fmt"
	"strconv"
	"strings"
)

const (
	markdownLineSeparatorConstant      = "\n"
	markdownListSeparatorConstant      = ", "
	markdownBasicInfoHeadingConstant   = "## 基本信息\n"
	markdownAuthorsHeadingConstant     = "## 作者\n"
	markdownKeywordsHeadingConstant    = "## 关键词\n"
	markdownOneLineHeadingConstant     = "## 一句话总结\n"
	markdownAbstractHeadingConstant    = "## 摘要\n"
	markdownDetailedHeadingConstant    = "## 详细分析\n"
	markdownQAHeadingConstant          = "## 问答对\n"
	markdownLinksHeadingConstant       = "## 相关链接\n"
	markdownIdentifierTemplateConstant = "- **arXiv ID**: [%s](%s)"
	markdownPublishedTemplateConstant  = "- **发布时间**: %s"
	markdownScoreTemplateConstant      = "- **相关性评分**: %s/10"
	markdownRelevantTemplateConstant   = "- **是否相关**: %s"
	markdownQuestionHeadingTemplate    = "### 问题 %d\n"
	markdownQuestionTemplateConstant   = "**Q**: %s\n"
	markdownThinkingTemplateConstant   = "**思考过程**:\n\n%s\n"
	markdownAnswerTemplateConstant     = "**A**: %s\n"
	markdownReasoningNoteConstant      = "*（使用推理模式生成）*\n"
	markdownArxivLinkTemplateConstant  = "- [arXiv 页面](%s)"
	markdownHTMLLinkTemplateConstant   = "- [HTML 版本](%s)"
	markdownMissingValueConstant       = "N/A"
	markdownYesConstant                = "是"
	markdownNoConstant                 = "否"
	negativeKeywordMarkerConstant      = "❌ "
	positiveKeywordMarkerConstant      = "✅ "
	scoreDecimalPointConstant          = "."
	scoreWholeSuffixConstant           = ".0"
)

// FormatScore renders a score with at least one decimal digit, for example 9.0 or 8.5.
func FormatScore(score float64) string {
	formatted := strconv.FormatFloat(score, 'f', -1, 64)
	if !strings.Contains(formatted, scoreDecimalPointConstant) {
		formatted += scoreWholeSuffixConstant
	}
	return formatted
}

// StripKeywordMarkers removes the verdict markers prepended to extracted keywords.
func StripKeywordMarkers(keyword string) string {
	withoutNegative := strings.ReplaceAll(keyword, negativeKeywordMarkerConstant, "")
	return strings.ReplaceAll(withoutNegative, positiveKeywordMarkerConstant, "")
}

// RenderMarkdown renders the body of a paper document: metadata, authors, keywords,
// summaries, question and answer pairs, and links.
func RenderMarkdown(paper Paper) string {
	lines := make([]string, 0)

	publishedDate := paper.PublishedDate
	if len(publishedDate) == 0 {
		publishedDate = markdownMissingValueConstant
	}
	relevantLabel := markdownNoConstant
	if paper.Relevant() {
		relevantLabel = markdownYesConstant
	}
	lines = append(lines,
		markdownBasicInfoHeadingConstant,
		fmt.Sprintf(markdownIdentifierTemplateConstant, paper.ID, paper.URL),
		fmt.Sprintf(markdownPublishedTemplateConstant, publishedDate),
		fmt.Sprintf(markdownScoreTemplateConstant, FormatScore(paper.RelevanceScore)),
		fmt.Sprintf(markdownRelevantTemplateConstant, relevantLabel),
		"",
	)

	if len(paper.Authors) > 0 {
		lines = append(lines, markdownAuthorsHeadingConstant, strings.Join(paper.Authors, markdownListSeparatorConstant), "")
	}

	if len(paper.ExtractedKeywords) > 0 {
		cleanedKeywords := make([]string, 0, len(paper.ExtractedKeywords))
		for _, keyword := range paper.ExtractedKeywords {
			cleanedKeywords = append(cleanedKeywords, StripKeywordMarkers(keyword))
		}
		lines = append(lines, markdownKeywordsHeadingConstant, strings.Join(cleanedKeywords, markdownListSeparatorConstant), "")
	}

	if len(paper.OneLineSummary) > 0 {
		lines = append(lines, markdownOneLineHeadingConstant, paper.OneLineSummary, "")
	}

	lines = append(lines, markdownAbstractHeadingConstant, paper.Abstract, "")

	if len(paper.DetailedSummary) > 0 {
		lines = append(lines, markdownDetailedHeadingConstant, paper.DetailedSummary, "")
	}

	if len(paper.QAPairs) > 0 {
		lines = append(lines, markdownQAHeadingConstant)
		for pairIndex, pair := range paper.QAPairs {
			lines = append(lines,
				fmt.Sprintf(markdownQuestionHeadingTemplate, pairIndex+1),
				fmt.Sprintf(markdownQuestionTemplateConstant, pair.Question),
			)
			if pair.Thinking != nil && len(*pair.Thinking) > 0 {
				lines = append(lines, fmt.Sprintf(markdownThinkingTemplateConstant, *pair.Thinking))
			}
			lines = append(lines, fmt.Sprintf(markdownAnswerTemplateConstant, pair.Answer))
			if pair.IsReasoning {
				lines = append(lines, markdownReasoningNoteConstant)
			}
			lines = append(lines, "")
		}
	}

	lines = append(lines, markdownLinksHeadingConstant, fmt.Sprintf(markdownArxivLinkTemplateConstant, paper.URL))
	if len(paper.HTMLURL) > 0 {
		lines = append(lines, fmt.Sprintf(markdownHTMLLinkTemplateConstant, paper.HTMLURL))
	}
	lines = append(lines, "")

	return strings.Join(lines, markdownLineSeparatorConstant)
}
