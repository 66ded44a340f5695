package papers

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/temirov/paperdigest/internal/analysis"
	"github.com/temirov/paperdigest/internal/utils"
)

const (
	askUseConstant                = "ask <paper-id> <question>"
	askShortDescriptionConstant   = "Ask a question about a stored paper"
	askLongDescriptionConstant    = "ask streams an answer about a paper. Prefix the question with \"think:\" to use the reasoning model, and mention other papers as [YYMM.NNNNN] to include them as context."
	parentFlagNameConstant        = "parent"
	parentFlagUsageConstant       = "Index of an earlier question this one follows up"
	noStreamFlagNameConstant      = "no-stream"
	noStreamFlagUsageConstant     = "Print the answer only when it is complete"
	showThinkingFlagNameConstant  = "show-thinking"
	showThinkingFlagUsageConstant = "Print reasoning output while streaming"
	questionRequiredMessage       = "question required"
	thinkingPrefixConstant        = "> "
	answerTerminatorConstant      = "\n"
)

// AskCommandBuilder assembles the ask command.
type AskCommandBuilder struct {
	LoggerProvider   LoggerProvider
	ServicesProvider ServicesProvider
}

// Build constructs the ask command.
func (builder *AskCommandBuilder) Build() (*cobra.Command, error) {
	command := &cobra.Command{
		Use:   askUseConstant,
		Short: askShortDescriptionConstant,
		Long:  askLongDescriptionConstant,
		RunE:  builder.run,
	}
	command.Flags().Int(parentFlagNameConstant, -1, parentFlagUsageConstant)
	command.Flags().Bool(noStreamFlagNameConstant, false, noStreamFlagUsageConstant)
	command.Flags().Bool(showThinkingFlagNameConstant, false, showThinkingFlagUsageConstant)
	return command, nil
}

func (builder *AskCommandBuilder) run(command *cobra.Command, arguments []string) error {
	identifier, identifierError := requireIdentifier(command, arguments)
	if identifierError != nil {
		return identifierError
	}
	question := strings.TrimSpace(strings.Join(arguments[1:], " "))
	if len(question) == 0 {
		_ = command.Help()
		return errors.New(questionRequiredMessage)
	}

	container, servicesError := resolveServices(builder.ServicesProvider)
	if servicesError != nil {
		return servicesError
	}
	store, storeError := container.Papers()
	if storeError != nil {
		return storeError
	}
	paper, loadError := store.Load(identifier)
	if loadError != nil {
		return loadError
	}
	settingsStore, settingsError := container.Settings()
	if settingsError != nil {
		return settingsError
	}
	currentSettings, loadSettingsError := settingsStore.Load()
	if loadSettingsError != nil {
		return loadSettingsError
	}
	analyzer, analyzerError := container.Analyzer()
	if analyzerError != nil {
		return analyzerError
	}

	request := analysis.QuestionRequest{Question: question}
	if command.Flags().Changed(parentFlagNameConstant) {
		parent, _ := command.Flags().GetInt(parentFlagNameConstant)
		request.ParentQAID = &parent
	}

	output := utils.NewFlushingWriter(command.OutOrStdout())
	noStream, _ := command.Flags().GetBool(noStreamFlagNameConstant)
	if noStream {
		answer, askError := analyzer.Ask(command.Context(), paper, request, currentSettings)
		if askError != nil {
			return askError
		}
		_, writeError := fmt.Fprint(output, answer.Answer+answerTerminatorConstant)
		return writeError
	}

	showThinking, _ := command.Flags().GetBool(showThinkingFlagNameConstant)
	_, askError := analyzer.AskStream(command.Context(), paper, request, currentSettings, func(event analysis.StreamEvent) error {
		switch event.Type {
		case analysis.EventContent:
			_, writeError := fmt.Fprint(output, event.Chunk)
			return writeError
		case analysis.EventThinking:
			if !showThinking {
				return nil
			}
			_, writeError := fmt.Fprint(command.ErrOrStderr(), thinkingPrefixConstant+event.Chunk)
			return writeError
		default:
			_, writeError := fmt.Fprint(command.ErrOrStderr(), event.Chunk)
			return writeError
		}
	})
	if askError != nil {
		return askError
	}
	_, writeError := fmt.Fprint(output, answerTerminatorConstant)
	return writeError
}
