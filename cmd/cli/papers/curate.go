package papers

import (
	"errors"
	"fmt"
	"strconv"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/temirov/paperdigest/internal/papers"
)

// CurateAction names a single-paper curation command.
type CurateAction string

// Supported curation actions.
const (
	ActionHide   CurateAction = "hide"
	ActionUnhide CurateAction = "unhide"
	ActionStar   CurateAction = "star"
)

const (
	curateUseTemplateConstant         = "%s <paper-id>"
	hideShortDescriptionConstant      = "Hide a paper from the timeline"
	unhideShortDescriptionConstant    = "Show a hidden paper again"
	starShortDescriptionConstant      = "Toggle the star of a paper"
	relevanceUseConstant              = "relevance <paper-id> <score>"
	relevanceShortDescriptionConstant = "Override the relevance verdict of a paper"
	relevanceLongDescriptionConstant  = "relevance records a manual verdict. The score is clamped to 0-10; pass --relevant=false to mark the paper irrelevant."
	relevantFlagNameConstant          = "relevant"
	relevantFlagUsageConstant         = "Mark the paper relevant"
	hiddenOutputTemplateConstant      = "Paper hidden: %s\n"
	unhiddenOutputTemplateConstant    = "Paper unhidden: %s\n"
	starredOutputTemplateConstant     = "Paper starred: %s\n"
	unstarredOutputTemplateConstant   = "Paper unstarred: %s\n"
	relevanceOutputTemplateConstant   = "Relevance updated: %s relevant=%t score=%s\n"
	invalidScoreTemplateConstant      = "invalid score %q: %w"
	scoreRequiredMessageConstant      = "relevance score required"
	unknownActionTemplateConstant     = "unknown curation action %q"
	curatedLogMessageConstant         = "Paper curated"
	logFieldActionConstant            = "action"
	logFieldIdentifierConstant        = "paper_id"
)

// CurateCommandBuilder assembles the hide, unhide and star commands.
type CurateCommandBuilder struct {
	Action           CurateAction
	LoggerProvider   LoggerProvider
	ServicesProvider ServicesProvider
}

// Build constructs the command for the configured action.
func (builder *CurateCommandBuilder) Build() (*cobra.Command, error) {
	shortDescription, known := map[CurateAction]string{
		ActionHide:   hideShortDescriptionConstant,
		ActionUnhide: unhideShortDescriptionConstant,
		ActionStar:   starShortDescriptionConstant,
	}[builder.Action]
	if !known {
		return nil, fmt.Errorf(unknownActionTemplateConstant, builder.Action)
	}
	return &cobra.Command{
		Use:   fmt.Sprintf(curateUseTemplateConstant, builder.Action),
		Short: shortDescription,
		Args:  cobra.MaximumNArgs(1),
		RunE:  builder.run,
	}, nil
}

func (builder *CurateCommandBuilder) run(command *cobra.Command, arguments []string) error {
	identifier, identifierError := requireIdentifier(command, arguments)
	if identifierError != nil {
		return identifierError
	}
	container, servicesError := resolveServices(builder.ServicesProvider)
	if servicesError != nil {
		return servicesError
	}
	store, storeError := container.Papers()
	if storeError != nil {
		return storeError
	}

	var (
		paper          papers.Paper
		curationError  error
		outputTemplate string
	)
	switch builder.Action {
	case ActionHide:
		paper, curationError = store.Hide(identifier)
		outputTemplate = hiddenOutputTemplateConstant
	case ActionUnhide:
		paper, curationError = store.Unhide(identifier)
		outputTemplate = unhiddenOutputTemplateConstant
	default:
		paper, curationError = store.ToggleStar(identifier)
		outputTemplate = unstarredOutputTemplateConstant
		if paper.IsStarred {
			outputTemplate = starredOutputTemplateConstant
		}
	}
	if curationError != nil {
		return curationError
	}
	resolveLogger(builder.LoggerProvider).Debug(curatedLogMessageConstant,
		zap.String(logFieldActionConstant, string(builder.Action)),
		zap.String(logFieldIdentifierConstant, paper.ID),
	)
	_, writeError := fmt.Fprintf(command.OutOrStdout(), outputTemplate, paper.ID)
	return writeError
}

// RelevanceCommandBuilder assembles the relevance override command.
type RelevanceCommandBuilder struct {
	LoggerProvider   LoggerProvider
	ServicesProvider ServicesProvider
}

// Build constructs the relevance command.
func (builder *RelevanceCommandBuilder) Build() (*cobra.Command, error) {
	command := &cobra.Command{
		Use:   relevanceUseConstant,
		Short: relevanceShortDescriptionConstant,
		Long:  relevanceLongDescriptionConstant,
		Args:  cobra.MaximumNArgs(2),
		RunE:  builder.run,
	}
	command.Flags().Bool(relevantFlagNameConstant, true, relevantFlagUsageConstant)
	return command, nil
}

func (builder *RelevanceCommandBuilder) run(command *cobra.Command, arguments []string) error {
	identifier, identifierError := requireIdentifier(command, arguments)
	if identifierError != nil {
		return identifierError
	}
	if len(arguments) < 2 {
		_ = command.Help()
		return errors.New(scoreRequiredMessageConstant)
	}
	score, parseError := strconv.ParseFloat(arguments[1], 64)
	if parseError != nil {
		return fmt.Errorf(invalidScoreTemplateConstant, arguments[1], parseError)
	}
	relevant, _ := command.Flags().GetBool(relevantFlagNameConstant)

	container, servicesError := resolveServices(builder.ServicesProvider)
	if servicesError != nil {
		return servicesError
	}
	store, storeError := container.Papers()
	if storeError != nil {
		return storeError
	}
	paper, updateError := store.UpdateRelevance(identifier, relevant, score)
	if updateError != nil {
		return updateError
	}
	_, writeError := fmt.Fprintf(command.OutOrStdout(), relevanceOutputTemplateConstant, paper.ID, paper.Relevant(), papers.FormatScore(paper.RelevanceScore))
	return writeError
}
