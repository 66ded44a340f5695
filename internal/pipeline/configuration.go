package pipeline

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

const (
	configurationLoadErrorTemplateConstant       = "failed to load pipeline configuration: %w"
	configurationParseErrorTemplateConstant      = "failed to parse pipeline configuration: %w"
	configurationPathRequiredMessageConstant     = "pipeline configuration path must be provided"
	configurationEmptyStepsMessageConstant       = "pipeline configuration must define at least one step"
	configurationOperationMissingMessageConstant = "pipeline step missing operation name"
	stepListSeparatorConstant                    = ","
)

// OperationType identifies supported pipeline operations.
type OperationType string

// Supported pipeline operations.
const (
	OperationTypeRegenerateSettings OperationType = OperationType("regenerate-settings")
	OperationTypeFetch              OperationType = OperationType("fetch")
	OperationTypeAnalyze            OperationType = OperationType("analyze")
	OperationTypePending            OperationType = OperationType("pending")
	OperationTypeExport             OperationType = OperationType("export")
	OperationTypePublish            OperationType = OperationType("publish")
	OperationTypeCleanup            OperationType = OperationType("cleanup")
)

// ErrEmptySteps indicates that a configuration declares no steps.
var ErrEmptySteps = errors.New(configurationEmptyStepsMessageConstant)

// Configuration describes the ordered pipeline steps loaded from YAML or the application configuration.
type Configuration struct {
	Steps []StepConfiguration `yaml:"steps" json:"steps" mapstructure:"steps"`
}

// StepConfiguration associates an operation type with declarative options.
type StepConfiguration struct {
	Operation OperationType  `yaml:"operation" json:"operation" mapstructure:"operation"`
	Options   map[string]any `yaml:"with" json:"with" mapstructure:"with"`
}

// DefaultConfiguration mirrors the unattended run: move the date window, fetch, analyze, export,
// publish and, when enabled, remove the paper documents.
func DefaultConfiguration() Configuration {
	return Configuration{Steps: []StepConfiguration{
		{Operation: OperationTypeRegenerateSettings},
		{Operation: OperationTypeFetch},
		{Operation: OperationTypeAnalyze},
		{Operation: OperationTypeExport},
		{Operation: OperationTypePublish},
		{Operation: OperationTypeCleanup},
	}}
}

// LoadConfiguration reads a step list from disk. Both a top-level "steps" key and a
// "pipeline.steps" wrapper are accepted.
func LoadConfiguration(filePath string) (Configuration, error) {
	trimmedPath := strings.TrimSpace(filePath)
	if len(trimmedPath) == 0 {
		return Configuration{}, errors.New(configurationPathRequiredMessageConstant)
	}

	contentBytes, readError := os.ReadFile(trimmedPath)
	if readError != nil {
		return Configuration{}, fmt.Errorf(configurationLoadErrorTemplateConstant, readError)
	}
	return ParseConfiguration(contentBytes)
}

// ParseConfiguration decodes and validates a YAML step list.
func ParseConfiguration(contentBytes []byte) (Configuration, error) {
	var configuration Configuration
	if unmarshalError := yaml.Unmarshal(contentBytes, &configuration); unmarshalError != nil {
		return Configuration{}, fmt.Errorf(configurationParseErrorTemplateConstant, unmarshalError)
	}
	if len(configuration.Steps) == 0 {
		var wrapper struct {
			Pipeline Configuration `yaml:"pipeline"`
		}
		if nestedError := yaml.Unmarshal(contentBytes, &wrapper); nestedError == nil {
			configuration = wrapper.Pipeline
		}
	}
	return configuration.Validate()
}

// Validate trims operation names and rejects empty step lists.
func (configuration Configuration) Validate() (Configuration, error) {
	if len(configuration.Steps) == 0 {
		return Configuration{}, ErrEmptySteps
	}
	validated := Configuration{Steps: make([]StepConfiguration, 0, len(configuration.Steps))}
	for _, step := range configuration.Steps {
		trimmedOperation := strings.ToLower(strings.TrimSpace(string(step.Operation)))
		if len(trimmedOperation) == 0 {
			return Configuration{}, errors.New(configurationOperationMissingMessageConstant)
		}
		validated.Steps = append(validated.Steps, StepConfiguration{Operation: OperationType(trimmedOperation), Options: step.Options})
	}
	return validated, nil
}

// StepsFromNames builds option-less steps from names such as "fetch,analyze".
func StepsFromNames(names []string) (Configuration, error) {
	configuration := Configuration{}
	for _, name := range names {
		for _, part := range strings.Split(name, stepListSeparatorConstant) {
			trimmedPart := strings.TrimSpace(part)
			if len(trimmedPart) == 0 {
				continue
			}
			configuration.Steps = append(configuration.Steps, StepConfiguration{Operation: OperationType(trimmedPart)})
		}
	}
	return configuration.Validate()
}
