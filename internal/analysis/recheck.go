package analysis

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/temirov/paperdigest/internal/papers"
	"github.com/temirov/paperdigest/internal/settings"
)

const (
	recheckListTemplateConstant       = "failed to list papers for negative keyword recheck: %w"
	recheckStartedLogMessageConstant  = "Rechecking papers against negative keywords"
	recheckDemotedLogMessageConstant  = "Paper demoted by negative keyword"
	recheckFailedLogMessageConstant   = "Failed to demote paper"
	recheckFinishedLogMessageConstant = "Negative keyword recheck finished"
	logFieldCandidatesConstant        = "candidates"
	logFieldDemotedConstant           = "demoted"
)

// RecheckNegativeKeywords demotes relevant papers at or above the deep analysis threshold
// that now contain a negative keyword. It returns how many papers were demoted.
func (analyzer *Analyzer) RecheckNegativeKeywords(executionContext context.Context, currentSettings settings.Settings) (int, error) {
	allPapers, listError := analyzer.store.List(0, 0)
	if listError != nil {
		return 0, fmt.Errorf(recheckListTemplateConstant, listError)
	}

	candidates := make([]papers.Paper, 0)
	for _, paper := range allPapers {
		if paper.Relevant() && paper.RelevanceScore >= currentSettings.MinRelevanceScoreForStage2 {
			candidates = append(candidates, paper)
		}
	}
	if len(candidates) == 0 {
		return 0, nil
	}
	analyzer.logger.Info(recheckStartedLogMessageConstant, zap.Int(logFieldCandidatesConstant, len(candidates)))

	demoted := 0
	for _, candidate := range candidates {
		if contextError := executionContext.Err(); contextError != nil {
			return demoted, contextError
		}
		keyword, matched := MatchNegativeKeyword(candidate, currentSettings.NegativeKeywords)
		if !matched {
			continue
		}
		_, persistError := analyzer.persist(candidate, func(target *papers.Paper) {
			target.IsRelevant = papers.BoolPointer(false)
			target.RelevanceScore = negativeKeywordScoreConstant
			target.ExtractedKeywords = append([]string{negativeKeywordMarkerConstant + keyword}, target.ExtractedKeywords...)
			target.OneLineSummary = fmt.Sprintf(negativeKeywordSummaryTemplate, keyword)
		})
		if persistError != nil {
			analyzer.logger.Warn(recheckFailedLogMessageConstant, zap.String(logFieldIdentifierConstant, candidate.ID), zap.Error(persistError))
			continue
		}
		analyzer.logger.Info(recheckDemotedLogMessageConstant, zap.String(logFieldIdentifierConstant, candidate.ID), zap.String(logFieldKeywordConstant, keyword))
		analyzer.record(StageFilter, OutcomeNegativeKeyword)
		demoted++
	}

	analyzer.logger.Info(recheckFinishedLogMessageConstant, zap.Int(logFieldDemotedConstant, demoted))
	return demoted, nil
}

// AnalyzeUnanalyzed runs both stages on every stored paper that has no relevance verdict yet.
func (analyzer *Analyzer) AnalyzeUnanalyzed(executionContext context.Context, currentSettings settings.Settings) ([]papers.Paper, error) {
	allPapers, listError := analyzer.store.List(0, 0)
	if listError != nil {
		return nil, listError
	}
	return analyzer.ProcessPapers(executionContext, papers.Unanalyzed(allPapers), currentSettings, false)
}

// AnalyzePending runs deep analysis on relevant papers at or above the threshold that still lack a summary.
func (analyzer *Analyzer) AnalyzePending(executionContext context.Context, currentSettings settings.Settings) ([]papers.Paper, error) {
	allPapers, listError := analyzer.store.List(0, 0)
	if listError != nil {
		return nil, listError
	}
	return analyzer.ProcessPapers(executionContext, papers.PendingDeepAnalysis(allPapers, currentSettings.MinRelevanceScoreForStage2), currentSettings, true)
}
