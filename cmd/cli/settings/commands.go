package settings

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/temirov/paperdigest/internal/pipeline"
	"github.com/temirov/paperdigest/internal/settings"
)

const (
	showUseConstant                 = "show"
	showShortDescriptionConstant    = "Print the current settings as JSON"
	initUseConstant                 = "init"
	initShortDescriptionConstant    = "Write the default settings document when none exists"
	updateUseConstant               = "update <json|->"
	updateShortDescriptionConstant  = "Apply a partial settings update"
	updateLongDescriptionConstant   = "update merges a JSON object into the settings document. Omitted fields are kept. Pass - to read the object from standard input. Changing negative_keywords re-checks relevant papers."
	windowUseConstant               = "window"
	windowShortDescriptionConstant  = "Move the date window to end today"
	recheckUseConstant              = "recheck"
	recheckShortDescriptionConstant = "Demote relevant papers that match a negative keyword"
	daysBackFlagNameConstant        = "days-back"
	daysBackFlagUsageConstant       = "Number of days the window spans"
	standardInputArgumentConstant   = "-"
	updatePayloadRequiredMessage    = "settings update payload required"
	decodeUpdateTemplateConstant    = "invalid settings update: %w"
	readUpdateTemplateConstant      = "unable to read settings update: %w"
	createdTemplateConstant         = "Settings written: %s\n"
	existingTemplateConstant        = "Settings already exist: %s\n"
	updatedTemplateConstant         = "Settings updated: %s\n"
	recheckSkippedTemplateConstant  = "Negative keywords changed; run \"settings recheck\" to apply them (%v)\n"
	windowTemplateConstant          = "Date window: %s to %s\n"
	recheckTemplateConstant         = "Papers demoted: %d\n"
	recheckFailedLogMessage         = "Negative keyword re-check failed"
)

func (builder *CommandGroupBuilder) showCommand() *cobra.Command {
	return &cobra.Command{
		Use:   showUseConstant,
		Short: showShortDescriptionConstant,
		Args:  cobra.NoArgs,
		RunE: func(command *cobra.Command, _ []string) error {
			store, storeError := builder.store()
			if storeError != nil {
				return storeError
			}
			current, loadError := store.Load()
			if loadError != nil {
				return loadError
			}
			return writeJSON(command.OutOrStdout(), current)
		},
	}
}

func (builder *CommandGroupBuilder) initCommand() *cobra.Command {
	return &cobra.Command{
		Use:   initUseConstant,
		Short: initShortDescriptionConstant,
		Args:  cobra.NoArgs,
		RunE: func(command *cobra.Command, _ []string) error {
			store, storeError := builder.store()
			if storeError != nil {
				return storeError
			}
			created, ensureError := store.EnsureExists()
			if ensureError != nil {
				return ensureError
			}
			template := existingTemplateConstant
			if created {
				template = createdTemplateConstant
			}
			_, writeError := fmt.Fprintf(command.OutOrStdout(), template, store.Path())
			return writeError
		},
	}
}

func (builder *CommandGroupBuilder) updateCommand() *cobra.Command {
	return &cobra.Command{
		Use:   updateUseConstant,
		Short: updateShortDescriptionConstant,
		Long:  updateLongDescriptionConstant,
		Args:  cobra.MaximumNArgs(1),
		RunE: func(command *cobra.Command, arguments []string) error {
			request, requestError := readUpdateRequest(command, arguments)
			if requestError != nil {
				return requestError
			}
			store, storeError := builder.store()
			if storeError != nil {
				return storeError
			}
			updated, negativeKeywordsChanged, updateError := store.Update(request)
			if updateError != nil {
				return updateError
			}
			if _, writeError := fmt.Fprintf(command.OutOrStdout(), updatedTemplateConstant, store.Path()); writeError != nil {
				return writeError
			}
			if !negativeKeywordsChanged {
				return nil
			}
			return builder.recheck(command, updated)
		},
	}
}

func (builder *CommandGroupBuilder) windowCommand() *cobra.Command {
	command := &cobra.Command{
		Use:   windowUseConstant,
		Short: windowShortDescriptionConstant,
		Args:  cobra.NoArgs,
		RunE: func(command *cobra.Command, _ []string) error {
			daysBack, _ := command.Flags().GetInt(daysBackFlagNameConstant)
			store, storeError := builder.store()
			if storeError != nil {
				return storeError
			}
			updated, regenerateError := store.RegenerateDateWindow(builder.now(), daysBack)
			if regenerateError != nil {
				return regenerateError
			}
			_, writeError := fmt.Fprintf(command.OutOrStdout(), windowTemplateConstant, updated.StartDate, updated.EndDate)
			return writeError
		},
	}
	command.Flags().Int(daysBackFlagNameConstant, pipeline.DefaultDaysBack, daysBackFlagUsageConstant)
	return command
}

func (builder *CommandGroupBuilder) recheckCommand() *cobra.Command {
	return &cobra.Command{
		Use:   recheckUseConstant,
		Short: recheckShortDescriptionConstant,
		Args:  cobra.NoArgs,
		RunE: func(command *cobra.Command, _ []string) error {
			store, storeError := builder.store()
			if storeError != nil {
				return storeError
			}
			current, loadError := store.Load()
			if loadError != nil {
				return loadError
			}
			container, servicesError := builder.services()
			if servicesError != nil {
				return servicesError
			}
			analyzer, analyzerError := container.Analyzer()
			if analyzerError != nil {
				return analyzerError
			}
			demoted, recheckError := analyzer.RecheckNegativeKeywords(command.Context(), current)
			if recheckError != nil {
				return recheckError
			}
			_, writeError := fmt.Fprintf(command.OutOrStdout(), recheckTemplateConstant, demoted)
			return writeError
		},
	}
}

// recheck demotes papers after a negative keyword change. Without a chat client the
// re-check is reported as skipped instead of failing the update.
func (builder *CommandGroupBuilder) recheck(command *cobra.Command, updated settings.Settings) error {
	container, servicesError := builder.services()
	if servicesError != nil {
		return servicesError
	}
	analyzer, analyzerError := container.Analyzer()
	if analyzerError != nil {
		_, writeError := fmt.Fprintf(command.OutOrStdout(), recheckSkippedTemplateConstant, analyzerError)
		return writeError
	}
	demoted, recheckError := analyzer.RecheckNegativeKeywords(command.Context(), updated)
	if recheckError != nil {
		builder.logger().Warn(recheckFailedLogMessage, zap.Error(recheckError))
		return recheckError
	}
	_, writeError := fmt.Fprintf(command.OutOrStdout(), recheckTemplateConstant, demoted)
	return writeError
}

func (builder *CommandGroupBuilder) store() (*settings.Store, error) {
	container, servicesError := builder.services()
	if servicesError != nil {
		return nil, servicesError
	}
	return container.Settings()
}

func readUpdateRequest(command *cobra.Command, arguments []string) (settings.UpdateRequest, error) {
	if len(arguments) == 0 || len(strings.TrimSpace(arguments[0])) == 0 {
		_ = command.Help()
		return settings.UpdateRequest{}, errors.New(updatePayloadRequiredMessage)
	}

	payload := []byte(arguments[0])
	if arguments[0] == standardInputArgumentConstant {
		contents, readError := io.ReadAll(command.InOrStdin())
		if readError != nil {
			return settings.UpdateRequest{}, fmt.Errorf(readUpdateTemplateConstant, readError)
		}
		payload = contents
	}

	var request settings.UpdateRequest
	decoder := json.NewDecoder(bytes.NewReader(payload))
	decoder.DisallowUnknownFields()
	if decodeError := decoder.Decode(&request); decodeError != nil {
		return settings.UpdateRequest{}, fmt.Errorf(decodeUpdateTemplateConstant, decodeError)
	}
	return request, nil
}
