package utils

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"

	pathutils "github.com/temirov/paperdigest/internal/utils/path"
)

const (
	environmentKeySeparatorOldConstant              = "."
	environmentKeySeparatorNewConstant              = "_"
	configurationDirectoryPermissionsConstant       = 0o755
	configurationFilePermissionsConstant            = 0o644
	configurationReadErrorTemplateConstant          = "failed to read configuration: %w"
	configurationUnmarshalErrorTemplateConstant     = "failed to parse configuration: %w"
	embeddedConfigurationMergeErrorTemplateConstant = "failed to merge embedded configuration: %w"
	configurationExistsErrorTemplateConstant        = "configuration file %s already exists"
	configurationWriteErrorTemplateConstant         = "failed to write configuration %s: %w"
	embeddedConfigurationMissingMessageConstant     = "embedded configuration not configured"
	configurationTargetMissingMessageConstant       = "configuration target path must be provided"
)

// ErrEmbeddedConfigurationMissing indicates that no embedded configuration was registered.
var ErrEmbeddedConfigurationMissing = errors.New(embeddedConfigurationMissingMessageConstant)

// ConfigurationLoader wraps Viper to load structured configuration files and environment overrides.
type ConfigurationLoader struct {
	configurationName         string
	configurationType         string
	environmentPrefix         string
	searchPaths               []string
	environmentKeyReplacer    *strings.Replacer
	embeddedConfiguration     []byte
	embeddedConfigurationType string
	homeExpander              *pathutils.HomeExpander
}

// LoadedConfiguration surfaces metadata about the resolved configuration.
type LoadedConfiguration struct {
	ConfigFileUsed string
}

// NewConfigurationLoader creates a loader that searches known paths and respects an environment prefix.
func NewConfigurationLoader(configurationName string, configurationType string, environmentPrefix string, searchPaths []string) *ConfigurationLoader {
	homeExpander := pathutils.NewHomeExpander()
	expandedSearchPaths := make([]string, 0, len(searchPaths))
	for _, searchPath := range searchPaths {
		expandedSearchPaths = append(expandedSearchPaths, homeExpander.Expand(searchPath))
	}

	return &ConfigurationLoader{
		configurationName:      configurationName,
		configurationType:      configurationType,
		environmentPrefix:      environmentPrefix,
		searchPaths:            expandedSearchPaths,
		environmentKeyReplacer: strings.NewReplacer(environmentKeySeparatorOldConstant, environmentKeySeparatorNewConstant),
		homeExpander:           homeExpander,
	}
}

// SetEmbeddedConfiguration stores embedded configuration data merged before user-provided configuration files.
func (loader *ConfigurationLoader) SetEmbeddedConfiguration(configurationData []byte, configurationType string) {
	if loader == nil {
		return
	}

	loader.embeddedConfiguration = nil
	loader.embeddedConfigurationType = strings.TrimSpace(configurationType)

	if len(configurationData) == 0 {
		return
	}

	duplicatedData := make([]byte, len(configurationData))
	copy(duplicatedData, configurationData)
	loader.embeddedConfiguration = duplicatedData
}

// LoadConfiguration populates targetConfiguration using configuration files, defaults, and environment variables.
func (loader *ConfigurationLoader) LoadConfiguration(configurationFilePath string, defaultValues map[string]any, targetConfiguration any) (LoadedConfiguration, error) {
	viperInstance := viper.New()
	viperInstance.SetConfigName(loader.configurationName)
	viperInstance.SetConfigType(loader.configurationType)

	if len(loader.embeddedConfiguration) > 0 {
		configurationType := loader.configurationType
		if len(loader.embeddedConfigurationType) > 0 {
			configurationType = loader.embeddedConfigurationType
		}

		viperInstance.SetConfigType(configurationType)
		mergeError := viperInstance.MergeConfig(bytes.NewReader(loader.embeddedConfiguration))
		if mergeError != nil {
			return LoadedConfiguration{}, fmt.Errorf(embeddedConfigurationMergeErrorTemplateConstant, mergeError)
		}

		viperInstance.SetConfigType(loader.configurationType)
	}

	for _, searchPath := range loader.searchPaths {
		viperInstance.AddConfigPath(searchPath)
	}

	viperInstance.SetEnvPrefix(loader.environmentPrefix)
	if loader.environmentKeyReplacer != nil {
		viperInstance.SetEnvKeyReplacer(loader.environmentKeyReplacer)
	}
	viperInstance.AutomaticEnv()

	for defaultKey, defaultValue := range defaultValues {
		viperInstance.SetDefault(defaultKey, defaultValue)
	}

	trimmedConfigurationFilePath := strings.TrimSpace(configurationFilePath)
	if len(trimmedConfigurationFilePath) > 0 {
		viperInstance.SetConfigFile(loader.homeExpander.Expand(trimmedConfigurationFilePath))
	}

	readError := viperInstance.MergeInConfig()
	if readError != nil {
		var notFoundError viper.ConfigFileNotFoundError
		if !errors.As(readError, &notFoundError) {
			return LoadedConfiguration{}, fmt.Errorf(configurationReadErrorTemplateConstant, readError)
		}
	}

	unmarshalError := viperInstance.Unmarshal(targetConfiguration)
	if unmarshalError != nil {
		return LoadedConfiguration{}, fmt.Errorf(configurationUnmarshalErrorTemplateConstant, unmarshalError)
	}

	loadedConfiguration := LoadedConfiguration{
		ConfigFileUsed: viperInstance.ConfigFileUsed(),
	}

	return loadedConfiguration, nil
}

// WriteEmbeddedConfiguration materializes the embedded configuration at targetPath.
// Existing files are preserved unless overwrite is requested.
func (loader *ConfigurationLoader) WriteEmbeddedConfiguration(targetPath string, overwrite bool) (string, error) {
	if loader == nil || len(loader.embeddedConfiguration) == 0 {
		return "", ErrEmbeddedConfigurationMissing
	}

	trimmedTargetPath := strings.TrimSpace(targetPath)
	if len(trimmedTargetPath) == 0 {
		return "", errors.New(configurationTargetMissingMessageConstant)
	}
	resolvedTargetPath := loader.homeExpander.Expand(trimmedTargetPath)

	if !overwrite {
		if _, statError := os.Stat(resolvedTargetPath); statError == nil {
			return "", fmt.Errorf(configurationExistsErrorTemplateConstant, resolvedTargetPath)
		}
	}

	if directoryError := os.MkdirAll(filepath.Dir(resolvedTargetPath), configurationDirectoryPermissionsConstant); directoryError != nil {
		return "", fmt.Errorf(configurationWriteErrorTemplateConstant, resolvedTargetPath, directoryError)
	}

	if writeError := os.WriteFile(resolvedTargetPath, loader.embeddedConfiguration, configurationFilePermissionsConstant); writeError != nil {
		return "", fmt.Errorf(configurationWriteErrorTemplateConstant, resolvedTargetPath, writeError)
	}

	return resolvedTargetPath, nil
}
