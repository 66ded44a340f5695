package utils_test

import (
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/temirov/paperdigest/internal/utils"
)

const (
	testEnvironmentPrefixConstant                  = "TESTPAPERDIGEST"
	testConfigurationNameConstant                  = "config"
	testConfigurationTypeConstant                  = "yaml"
	testConfigFileNameConstant                     = "config.yaml"
	testEmbeddedConfigurationConstant              = "common:\n  log_level: debug\narxiv:\n  request_interval: 3s\n"
	testFileConfigurationConstant                  = "common:\n  log_level: warn\n"
	configurationLoaderSubtestNameTemplateConstant = "%d_%s"
)

type configurationFixture struct {
	Common configurationCommonFixture `mapstructure:"common"`
	ArXiv  configurationArXivFixture  `mapstructure:"arxiv"`
}

type configurationCommonFixture struct {
	LogLevel  string `mapstructure:"log_level"`
	LogFormat string `mapstructure:"log_format"`
}

type configurationArXivFixture struct {
	RequestInterval time.Duration `mapstructure:"request_interval"`
}

func TestConfigurationLoaderLoadConfiguration(testInstance *testing.T) {
	testCases := []struct {
		name                string
		writeFile           bool
		environmentLogLevel string
		expectedLogLevel    string
	}{
		{name: "embedded_configuration_applies", expectedLogLevel: "debug"},
		{name: "file_overrides_embedded", writeFile: true, expectedLogLevel: "warn"},
		{name: "environment_overrides_file", writeFile: true, environmentLogLevel: "error", expectedLogLevel: "error"},
	}

	for testCaseIndex, testCase := range testCases {
		testInstance.Run(fmt.Sprintf(configurationLoaderSubtestNameTemplateConstant, testCaseIndex, testCase.name), func(testInstance *testing.T) {
			workingDirectory := testInstance.TempDir()
			if testCase.writeFile {
				require.NoError(testInstance, os.WriteFile(filepath.Join(workingDirectory, testConfigFileNameConstant), []byte(testFileConfigurationConstant), 0o600))
			}
			if len(testCase.environmentLogLevel) > 0 {
				testInstance.Setenv(testEnvironmentPrefixConstant+"_COMMON_LOG_LEVEL", testCase.environmentLogLevel)
			}

			loader := utils.NewConfigurationLoader(testConfigurationNameConstant, testConfigurationTypeConstant, testEnvironmentPrefixConstant, []string{workingDirectory})
			loader.SetEmbeddedConfiguration([]byte(testEmbeddedConfigurationConstant), testConfigurationTypeConstant)

			var configuration configurationFixture
			_, loadError := loader.LoadConfiguration("", map[string]any{"common.log_format": "structured"}, &configuration)
			require.NoError(testInstance, loadError)
			require.Equal(testInstance, testCase.expectedLogLevel, configuration.Common.LogLevel)
			require.Equal(testInstance, "structured", configuration.Common.LogFormat)
			require.Equal(testInstance, 3*time.Second, configuration.ArXiv.RequestInterval)
		})
	}
}

func TestConfigurationLoaderWriteEmbeddedConfiguration(testInstance *testing.T) {
	targetPath := filepath.Join(testInstance.TempDir(), "nested", testConfigFileNameConstant)
	loader := utils.NewConfigurationLoader(testConfigurationNameConstant, testConfigurationTypeConstant, testEnvironmentPrefixConstant, nil)

	_, missingError := loader.WriteEmbeddedConfiguration(targetPath, false)
	require.ErrorIs(testInstance, missingError, utils.ErrEmbeddedConfigurationMissing)

	loader.SetEmbeddedConfiguration([]byte(testEmbeddedConfigurationConstant), testConfigurationTypeConstant)
	writtenPath, writeError := loader.WriteEmbeddedConfiguration(targetPath, false)
	require.NoError(testInstance, writeError)
	require.Equal(testInstance, targetPath, writtenPath)

	contents, readError := os.ReadFile(targetPath)
	require.NoError(testInstance, readError)
	require.Equal(testInstance, testEmbeddedConfigurationConstant, string(contents))

	_, existsError := loader.WriteEmbeddedConfiguration(targetPath, false)
	require.ErrorContains(testInstance, existsError, "already exists")

	_, overwriteError := loader.WriteEmbeddedConfiguration(targetPath, true)
	require.NoError(testInstance, overwriteError)
}
