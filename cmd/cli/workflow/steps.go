package workflow

import (
	"errors"
	"fmt"
	"strings"

	"github.com/temirov/paperdigest/internal/pipeline"
)

const (
	stepsFlagTemplateConstant     = "invalid --steps value: %w"
	stepsFileTemplateConstant     = "unable to load steps file: %w"
	conflictingStepSourcesMessage = "use either --steps or --steps-file, not both"
)

var errConflictingStepSources = errors.New(conflictingStepSourcesMessage)

// ResolveSteps selects the step list for a run. Explicit step names win over a steps file,
// and both win over the configured pipeline.
func ResolveSteps(stepNames []string, stepsFilePath string, configured pipeline.Configuration) (pipeline.Configuration, error) {
	trimmedPath := strings.TrimSpace(stepsFilePath)
	hasNames := len(strings.TrimSpace(strings.Join(stepNames, ""))) > 0
	if hasNames && len(trimmedPath) > 0 {
		return pipeline.Configuration{}, errConflictingStepSources
	}

	if hasNames {
		steps, stepsError := pipeline.StepsFromNames(stepNames)
		if stepsError != nil {
			return pipeline.Configuration{}, fmt.Errorf(stepsFlagTemplateConstant, stepsError)
		}
		return steps, nil
	}
	if len(trimmedPath) > 0 {
		steps, loadError := pipeline.LoadConfiguration(trimmedPath)
		if loadError != nil {
			return pipeline.Configuration{}, fmt.Errorf(stepsFileTemplateConstant, loadError)
		}
		return steps, nil
	}
	if len(configured.Steps) == 0 {
		return pipeline.DefaultConfiguration(), nil
	}
	return configured, nil
}
