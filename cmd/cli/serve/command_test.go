package serve_test

import (
	"bytes"
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/temirov/paperdigest/cmd/cli/serve"
	"github.com/temirov/paperdigest/internal/server"
	"github.com/temirov/paperdigest/internal/services"
)

func TestServeCommandStopsWithContext(testInstance *testing.T) {
	root := testInstance.TempDir()
	container := services.NewContainer(services.Configuration{
		Storage: services.StorageConfiguration{
			PapersDirectory: filepath.Join(root, "papers"),
			SettingsPath:    filepath.Join(root, "config.json"),
		},
		LLM: services.LLMConfiguration{APIKeySource: "env:PAPERDIGEST_TEST_MISSING_KEY"},
		Server: server.Options{
			Scheduler:        true,
			PendingOnStartup: true,
			ExportDirectory:  filepath.Join(root, "export"),
		},
	}, services.Dependencies{EnvironmentLookup: func(string) (string, bool) { return "", false }})

	builder := serve.CommandBuilder{ServicesProvider: func() (*services.Container, error) { return container, nil }}
	command, buildError := builder.Build()
	require.NoError(testInstance, buildError)

	cancelledContext, cancel := context.WithCancel(context.Background())
	cancel()
	var output bytes.Buffer
	command.SetOut(&output)
	command.SetErr(&output)
	command.SetArgs([]string{"--listen", "127.0.0.1:0", "--no-scheduler", "--no-pending"})
	command.SetContext(cancelledContext)
	command.SilenceUsage = true
	command.SilenceErrors = true
	require.NoError(testInstance, command.Execute())
}

func TestServeCommandRequiresServices(testInstance *testing.T) {
	builder := serve.CommandBuilder{}
	command, buildError := builder.Build()
	require.NoError(testInstance, buildError)
	command.SetArgs([]string{})
	command.SilenceUsage = true
	command.SilenceErrors = true
	require.EqualError(testInstance, command.Execute(), "application services are not configured")
}
