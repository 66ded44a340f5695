package cli

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

const (
	testVersionConstant = "v2.0.0"
)

func writeTestConfiguration(testInstance *testing.T) (string, string) {
	testInstance.Helper()

	temporaryDirectory := testInstance.TempDir()
	papersDirectory := filepath.Join(temporaryDirectory, "papers")
	configurationPath := filepath.Join(temporaryDirectory, "paperdigest.yaml")
	content := []byte("common:\n  log_level: warn\n  log_format: console\nstorage:\n  papers_dir: " + papersDirectory + "\n")
	require.NoError(testInstance, os.WriteFile(configurationPath, content, 0o644))
	return configurationPath, papersDirectory
}

func TestApplicationRegistersCommands(testInstance *testing.T) {
	application := NewApplication()

	registered := map[string]bool{}
	for _, command := range application.rootCommand.Commands() {
		registered[command.Name()] = true
	}
	for _, expected := range []string{"run", "watch", "fetch", "analyze", "papers", "ask", "export", "publish", "build-static", "serve", "settings", "config"} {
		require.Truef(testInstance, registered[expected], "command %s not registered", expected)
	}
}

func TestApplicationVersionFlagPrintsVersion(testInstance *testing.T) {
	application := NewApplication()
	application.rootCommand.Version = testVersionConstant

	outputBuffer := &bytes.Buffer{}
	application.rootCommand.SetOut(outputBuffer)
	application.rootCommand.SetArgs([]string{"--version"})

	require.NoError(testInstance, application.Execute())
	require.Equal(testInstance, "paperdigest version: v2.0.0\n", outputBuffer.String())
}

func TestResolveVersionPrefersBuildVersion(testInstance *testing.T) {
	originalVersion := buildVersion
	testInstance.Cleanup(func() { buildVersion = originalVersion })

	buildVersion = " v1.4.0 "
	require.Equal(testInstance, "v1.4.0", resolveVersion())
}

func TestInitializeConfigurationAppliesFileAndFlags(testInstance *testing.T) {
	configurationPath, papersDirectory := writeTestConfiguration(testInstance)

	application := NewApplication()
	rootCommand := application.rootCommand
	rootCommand.SetContext(context.Background())
	require.NoError(testInstance, rootCommand.PersistentFlags().Set(configFileFlagNameConstant, configurationPath))
	require.NoError(testInstance, rootCommand.PersistentFlags().Set(logLevelFlagNameConstant, "debug"))

	require.NoError(testInstance, application.initializeConfiguration(rootCommand))

	require.Equal(testInstance, "debug", application.configuration.Common.LogLevel)
	require.Equal(testInstance, "console", application.configuration.Common.LogFormat)
	require.True(testInstance, application.humanReadableLoggingEnabled())
	require.Equal(testInstance, papersDirectory, application.configuration.Storage.PapersDirectory)
	require.Equal(testInstance, "deepseek-chat", application.configuration.LLM.Model)

	usedPath, pathAvailable := application.commandContextAccessor.ConfigurationFilePath(rootCommand.Context())
	require.True(testInstance, pathAvailable)
	require.Equal(testInstance, configurationPath, usedPath)
}

func TestServicesProviderBuildsContainerOnce(testInstance *testing.T) {
	configurationPath, papersDirectory := writeTestConfiguration(testInstance)

	application := NewApplication()
	rootCommand := application.rootCommand
	rootCommand.SetContext(context.Background())
	require.NoError(testInstance, rootCommand.PersistentFlags().Set(configFileFlagNameConstant, configurationPath))
	require.NoError(testInstance, application.initializeConfiguration(rootCommand))

	firstContainer, firstError := application.services()
	require.NoError(testInstance, firstError)
	secondContainer, secondError := application.services()
	require.NoError(testInstance, secondError)

	require.Same(testInstance, firstContainer, secondContainer)
	require.Equal(testInstance, papersDirectory, firstContainer.Configuration().Storage.PapersDirectory)
}

func TestConfigurationInitCommandWritesEmbeddedDefaults(testInstance *testing.T) {
	configurationPath, _ := writeTestConfiguration(testInstance)
	targetPath := filepath.Join(testInstance.TempDir(), "nested", "paperdigest.yaml")

	testCases := []struct {
		name          string
		arguments     []string
		expectedError string
	}{
		{name: "fresh", arguments: []string{"config", "init", "--path", targetPath}},
		{name: "existing", arguments: []string{"config", "init", "--path", targetPath}, expectedError: "already exists"},
		{name: "forced", arguments: []string{"config", "init", "--path", targetPath, "--force"}},
	}

	for _, testCase := range testCases {
		testInstance.Run(testCase.name, func(subtest *testing.T) {
			application := NewApplication()
			outputBuffer := &bytes.Buffer{}
			application.rootCommand.SetOut(outputBuffer)
			application.rootCommand.SetErr(&bytes.Buffer{})
			application.rootCommand.SetArgs(append(testCase.arguments, "--config", configurationPath))

			executionError := application.Execute()
			if len(testCase.expectedError) > 0 {
				require.ErrorContains(subtest, executionError, testCase.expectedError)
				return
			}
			require.NoError(subtest, executionError)
			require.Equal(subtest, "Configuration written: "+targetPath+"\n", outputBuffer.String())

			written, readError := os.ReadFile(targetPath)
			require.NoError(subtest, readError)
			embedded, _ := EmbeddedDefaultConfiguration()
			require.Equal(subtest, embedded, written)
		})
	}
}
