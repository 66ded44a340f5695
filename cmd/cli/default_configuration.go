package cli

import (
	"bytes"
	_ "embed"
)

//go:embed default_config.yaml
var defaultConfigurationYAML []byte

// EmbeddedDefaultConfiguration returns a copy of the built-in paperdigest.yaml and its format,
// ready for ConfigurationLoader.SetEmbeddedConfiguration.
func EmbeddedDefaultConfiguration() ([]byte, string) {
	return bytes.Clone(defaultConfigurationYAML), configurationTypeConstant
}
