package pipeline_test

import (
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/temirov/paperdigest/internal/pipeline"
)

const (
	configurationTestFileName  = "pipeline.yaml"
	topLevelStepsConfiguration = `steps:
  - operation: " Fetch "
    with:
      max_results: 25
      categories: [cs.CL, cs.AI]
  - operation: analyze
`
	wrappedStepsConfiguration = `pipeline:
  steps:
    - operation: export
      with:
        min_score: 7.5
    - operation: publish
`
	missingOperationConfiguration = `steps:
  - with:
      days_back: 2
`
)

func TestParseConfiguration(testInstance *testing.T) {
	testCases := []struct {
		name               string
		content            string
		expectedOperations []pipeline.OperationType
		expectedError      error
		expectAnyError     bool
	}{
		{
			name:               "top_level_steps",
			content:            topLevelStepsConfiguration,
			expectedOperations: []pipeline.OperationType{pipeline.OperationTypeFetch, pipeline.OperationTypeAnalyze},
		},
		{
			name:               "pipeline_wrapper",
			content:            wrappedStepsConfiguration,
			expectedOperations: []pipeline.OperationType{pipeline.OperationTypeExport, pipeline.OperationTypePublish},
		},
		{
			name:          "empty_document",
			content:       "steps: []\n",
			expectedError: pipeline.ErrEmptySteps,
		},
		{
			name:           "missing_operation",
			content:        missingOperationConfiguration,
			expectAnyError: true,
		},
	}

	for testCaseIndex, testCase := range testCases {
		testInstance.Run(fmt.Sprintf("%d_%s", testCaseIndex, testCase.name), func(subtest *testing.T) {
			configuration, parseError := pipeline.ParseConfiguration([]byte(testCase.content))
			if testCase.expectedError != nil {
				require.ErrorIs(subtest, parseError, testCase.expectedError)
				return
			}
			if testCase.expectAnyError {
				require.Error(subtest, parseError)
				return
			}
			require.NoError(subtest, parseError)
			actualOperations := make([]pipeline.OperationType, 0, len(configuration.Steps))
			for _, step := range configuration.Steps {
				actualOperations = append(actualOperations, step.Operation)
			}
			require.Equal(subtest, testCase.expectedOperations, actualOperations)
		})
	}
}

func TestLoadConfigurationBuildsTypedOperations(testInstance *testing.T) {
	configurationPath := filepath.Join(testInstance.TempDir(), configurationTestFileName)
	require.NoError(testInstance, os.WriteFile(configurationPath, []byte(topLevelStepsConfiguration), 0o644))

	configuration, loadError := pipeline.LoadConfiguration(configurationPath)
	require.NoError(testInstance, loadError)

	operations, buildError := pipeline.BuildOperations(configuration)
	require.NoError(testInstance, buildError)
	require.Len(testInstance, operations, 2)

	fetchOperation, isFetch := operations[0].(*pipeline.FetchOperation)
	require.True(testInstance, isFetch)
	require.Equal(testInstance, 25, fetchOperation.MaxResults)
	require.Equal(testInstance, []string{"cs.CL", "cs.AI"}, fetchOperation.Categories)
	require.IsType(testInstance, &pipeline.AnalyzeOperation{}, operations[1])
}

func TestLoadConfigurationRequiresPath(testInstance *testing.T) {
	_, loadError := pipeline.LoadConfiguration("  ")
	require.Error(testInstance, loadError)
}

func TestBuildOperationsAppliesDefaults(testInstance *testing.T) {
	operations, buildError := pipeline.BuildOperations(pipeline.DefaultConfiguration())
	require.NoError(testInstance, buildError)
	require.Len(testInstance, operations, 6)

	regenerate, isRegenerate := operations[0].(*pipeline.RegenerateSettingsOperation)
	require.True(testInstance, isRegenerate)
	require.Equal(testInstance, pipeline.DefaultDaysBack, regenerate.DaysBack)

	exportOperation, isExport := operations[3].(*pipeline.ExportOperation)
	require.True(testInstance, isExport)
	require.InDelta(testInstance, 6.0, exportOperation.MinScore, 0.0001)

	cleanup, isCleanup := operations[5].(*pipeline.CleanupOperation)
	require.True(testInstance, isCleanup)
	require.True(testInstance, cleanup.RequirePublish)
	require.Nil(testInstance, cleanup.Enabled)
}

func TestBuildOperationsRejectsInvalidOptions(testInstance *testing.T) {
	testCases := []struct {
		name string
		step pipeline.StepConfiguration
	}{
		{
			name: "unknown_operation",
			step: pipeline.StepConfiguration{Operation: "deploy"},
		},
		{
			name: "days_back_not_integer",
			step: pipeline.StepConfiguration{Operation: pipeline.OperationTypeRegenerateSettings, Options: map[string]any{"days_back": 1.5}},
		},
		{
			name: "min_score_not_number",
			step: pipeline.StepConfiguration{Operation: pipeline.OperationTypeExport, Options: map[string]any{"min_score": "high"}},
		},
		{
			name: "categories_not_strings",
			step: pipeline.StepConfiguration{Operation: pipeline.OperationTypeFetch, Options: map[string]any{"categories": []any{"cs.CL", 7}}},
		},
		{
			name: "enabled_not_boolean",
			step: pipeline.StepConfiguration{Operation: pipeline.OperationTypeCleanup, Options: map[string]any{"enabled": "sometimes"}},
		},
	}

	for testCaseIndex, testCase := range testCases {
		testInstance.Run(fmt.Sprintf("%d_%s", testCaseIndex, testCase.name), func(subtest *testing.T) {
			_, buildError := pipeline.BuildOperations(pipeline.Configuration{Steps: []pipeline.StepConfiguration{testCase.step}})
			require.Error(subtest, buildError)
		})
	}
}

func TestBuildOperationsReadsCleanupSwitches(testInstance *testing.T) {
	operations, buildError := pipeline.BuildOperations(pipeline.Configuration{Steps: []pipeline.StepConfiguration{{
		Operation: pipeline.OperationTypeCleanup,
		Options:   map[string]any{"Enabled": "true", "require_publish": false},
	}}})
	require.NoError(testInstance, buildError)

	cleanup := operations[0].(*pipeline.CleanupOperation)
	require.NotNil(testInstance, cleanup.Enabled)
	require.True(testInstance, *cleanup.Enabled)
	require.False(testInstance, cleanup.RequirePublish)
}

func TestStepsFromNames(testInstance *testing.T) {
	configuration, namesError := pipeline.StepsFromNames([]string{"fetch, analyze", "export"})
	require.NoError(testInstance, namesError)
	require.Len(testInstance, configuration.Steps, 3)
	require.Equal(testInstance, pipeline.OperationTypeExport, configuration.Steps[2].Operation)

	_, emptyError := pipeline.StepsFromNames([]string{" , "})
	require.ErrorIs(testInstance, emptyError, pipeline.ErrEmptySteps)
}

func TestBuildOperationsDecodesQuotedOptions(testInstance *testing.T) {
	operations, buildError := pipeline.BuildOperations(pipeline.Configuration{Steps: []pipeline.StepConfiguration{
		{Operation: pipeline.OperationTypeFetch, Options: map[string]any{"MAX_RESULTS": "40", "categories": " cs.RO , ,cs.LG"}},
		{Operation: pipeline.OperationTypeExport, Options: map[string]any{"min_score": 7, "output_dir": " out "}},
		{Operation: pipeline.OperationTypeRegenerateSettings, Options: map[string]any{"days_back": 3.0}},
	}})
	require.NoError(testInstance, buildError)

	fetchOperation := operations[0].(*pipeline.FetchOperation)
	require.Equal(testInstance, 40, fetchOperation.MaxResults)
	require.Equal(testInstance, []string{"cs.RO", "cs.LG"}, fetchOperation.Categories)

	exportOperation := operations[1].(*pipeline.ExportOperation)
	require.InDelta(testInstance, 7.0, exportOperation.MinScore, 0.0001)
	require.Equal(testInstance, "out", exportOperation.OutputDirectory)

	require.Equal(testInstance, 3, operations[2].(*pipeline.RegenerateSettingsOperation).DaysBack)
}
