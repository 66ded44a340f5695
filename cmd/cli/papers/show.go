package papers

import (
	"fmt"

	"github.com/charmbracelet/glamour"
	"github.com/spf13/cobra"

	"github.com/temirov/paperdigest/internal/papers"
)

const (
	showUseConstant               = "show <paper-id>"
	showShortDescriptionConstant  = "Render a stored paper"
	showLongDescriptionConstant   = "show renders the analysis, summaries and questions of a stored paper as Markdown for the terminal."
	rawFlagNameConstant           = "raw"
	rawFlagUsageConstant          = "Print the Markdown source instead of rendering it"
	wordWrapFlagNameConstant      = "width"
	wordWrapFlagUsageConstant     = "Wrap rendered text at this column"
	defaultWordWrapConstant       = 100
	paperDocumentTemplateConstant = "# %s\n\n%s"
	rendererTemplateConstant      = "unable to create markdown renderer: %w"
)

// ShowCommandBuilder assembles the papers show command.
type ShowCommandBuilder struct {
	LoggerProvider   LoggerProvider
	ServicesProvider ServicesProvider
}

// Build constructs the show command.
func (builder *ShowCommandBuilder) Build() (*cobra.Command, error) {
	command := &cobra.Command{
		Use:   showUseConstant,
		Short: showShortDescriptionConstant,
		Long:  showLongDescriptionConstant,
		Args:  cobra.MaximumNArgs(1),
		RunE:  builder.run,
	}
	command.Flags().Bool(rawFlagNameConstant, false, rawFlagUsageConstant)
	command.Flags().Int(wordWrapFlagNameConstant, defaultWordWrapConstant, wordWrapFlagUsageConstant)
	return command, nil
}

func (builder *ShowCommandBuilder) run(command *cobra.Command, arguments []string) error {
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
	paper, loadError := store.Load(identifier)
	if loadError != nil {
		return loadError
	}

	document := fmt.Sprintf(paperDocumentTemplateConstant, paper.Title, papers.RenderMarkdown(paper))
	raw, _ := command.Flags().GetBool(rawFlagNameConstant)
	if raw {
		_, writeError := fmt.Fprint(command.OutOrStdout(), document)
		return writeError
	}

	width, _ := command.Flags().GetInt(wordWrapFlagNameConstant)
	renderer, rendererError := glamour.NewTermRenderer(
		glamour.WithAutoStyle(),
		glamour.WithWordWrap(width),
	)
	if rendererError != nil {
		return fmt.Errorf(rendererTemplateConstant, rendererError)
	}
	rendered, renderError := renderer.Render(document)
	if renderError != nil {
		return renderError
	}
	_, writeError := fmt.Fprint(command.OutOrStdout(), rendered)
	return writeError
}
