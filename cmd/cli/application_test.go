package cli_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/temirov/paperdigest/cmd/cli"
	"github.com/temirov/paperdigest/internal/pipeline"
	"github.com/temirov/paperdigest/internal/publish"
	"github.com/temirov/paperdigest/internal/utils"
)

const (
	testConfigurationNameConstant        = "paperdigest-test"
	testConfigurationTypeConstant        = "yaml"
	testEnvironmentPrefixConstant        = "PAPERDIGEST"
	testModelOverrideConstant            = "deepseek-custom"
	testModelEnvironmentVariableConstant = "PAPERDIGEST_LLM_MODEL"
)

func loadEmbeddedConfiguration(testInstance *testing.T) cli.ApplicationConfiguration {
	testInstance.Helper()

	loader := utils.NewConfigurationLoader(testConfigurationNameConstant, testConfigurationTypeConstant, testEnvironmentPrefixConstant, []string{testInstance.TempDir()})
	loader.SetEmbeddedConfiguration(cli.EmbeddedDefaultConfiguration())

	var configuration cli.ApplicationConfiguration
	_, loadError := loader.LoadConfiguration("", nil, &configuration)
	require.NoError(testInstance, loadError)
	return configuration
}

func TestEmbeddedDefaultConfigurationDecodes(testInstance *testing.T) {
	configuration := loadEmbeddedConfiguration(testInstance)

	require.Equal(testInstance, string(utils.LogLevelInfo), configuration.Common.LogLevel)
	require.Equal(testInstance, string(utils.LogFormatStructured), configuration.Common.LogFormat)
	require.Equal(testInstance, "data/papers", configuration.Storage.PapersDirectory)
	require.Equal(testInstance, "data/config.json", configuration.Storage.SettingsPath)
	require.Equal(testInstance, 30*time.Second, configuration.Arxiv.RequestTimeout)
	require.Equal(testInstance, 3*time.Second, configuration.Arxiv.QueryInterval)
	require.Equal(testInstance, "deepseek-chat", configuration.LLM.Model)
	require.Equal(testInstance, "deepseek-reasoner", configuration.LLM.ReasoningModel)
	require.Equal(testInstance, 5*time.Minute, configuration.LLM.RequestTimeout)
	require.Equal(testInstance, publish.BackendNone, configuration.Publish.Backend)
	require.Equal(testInstance, ":5000", configuration.Server.ListenAddress)
	require.Equal(testInstance, 10*time.Second, configuration.Server.ShutdownTimeout)
	require.True(testInstance, configuration.Server.Scheduler)

	operations := make([]pipeline.OperationType, 0, len(configuration.Pipeline.Steps))
	for _, step := range configuration.Pipeline.Steps {
		operations = append(operations, step.Operation)
	}
	require.Equal(testInstance, []pipeline.OperationType{
		pipeline.OperationTypeRegenerateSettings,
		pipeline.OperationTypeFetch,
		pipeline.OperationTypeAnalyze,
		pipeline.OperationTypeExport,
		pipeline.OperationTypePublish,
		pipeline.OperationTypeCleanup,
	}, operations)
	require.EqualValues(testInstance, 6, configuration.Pipeline.Steps[3].Options["min_score"])
}

func TestEmbeddedDefaultConfigurationBuildsPipeline(testInstance *testing.T) {
	configuration := loadEmbeddedConfiguration(testInstance)

	servicesConfiguration := configuration.Services()
	require.Len(testInstance, servicesConfiguration.Pipeline.Steps, 6)
	require.Equal(testInstance, configuration.Storage, servicesConfiguration.Storage)
	require.Equal(testInstance, configuration.Server, servicesConfiguration.Server)
}

func TestEnvironmentOverridesEmbeddedConfiguration(testInstance *testing.T) {
	testInstance.Setenv(testModelEnvironmentVariableConstant, testModelOverrideConstant)

	configuration := loadEmbeddedConfiguration(testInstance)
	require.Equal(testInstance, testModelOverrideConstant, configuration.LLM.Model)
}
