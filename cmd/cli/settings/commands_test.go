package settings_test

import (
	"bytes"
	"context"
	"encoding/json"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/require"

	settingscmd "github.com/temirov/paperdigest/cmd/cli/settings"
	"github.com/temirov/paperdigest/internal/llm"
	"github.com/temirov/paperdigest/internal/papers"
	"github.com/temirov/paperdigest/internal/services"
	"github.com/temirov/paperdigest/internal/settings"
)

type silentChatClient struct{}

func (silentChatClient) Complete(context.Context, llm.Request) (string, error) {
	return "", nil
}

func (silentChatClient) Stream(context.Context, llm.Request, llm.StreamHandler) error {
	return nil
}

type settingsFixture struct {
	settingsPath string
	container    *services.Container
}

func newSettingsFixture(testInstance *testing.T, chatClient llm.Client) settingsFixture {
	testInstance.Helper()
	root := testInstance.TempDir()
	settingsPath := filepath.Join(root, "config.json")
	container := services.NewContainer(services.Configuration{
		Storage: services.StorageConfiguration{
			PapersDirectory: filepath.Join(root, "papers"),
			SettingsPath:    settingsPath,
		},
		LLM: services.LLMConfiguration{APIKeySource: "env:PAPERDIGEST_TEST_MISSING_KEY"},
	}, services.Dependencies{
		ChatClient:        chatClient,
		EnvironmentLookup: func(string) (string, bool) { return "", false },
	})
	return settingsFixture{settingsPath: settingsPath, container: container}
}

func (fixture settingsFixture) execute(testInstance *testing.T, standardInput string, arguments ...string) (string, error) {
	testInstance.Helper()
	builder := settingscmd.CommandGroupBuilder{
		ServicesProvider: func() (*services.Container, error) { return fixture.container, nil },
		Clock:            func() time.Time { return time.Date(2026, time.October, 19, 8, 0, 0, 0, time.UTC) },
	}
	command, buildError := builder.Build()
	require.NoError(testInstance, buildError)
	return run(command, standardInput, arguments...)
}

func run(command *cobra.Command, standardInput string, arguments ...string) (string, error) {
	var output bytes.Buffer
	command.SetIn(strings.NewReader(standardInput))
	command.SetOut(&output)
	command.SetErr(&output)
	command.SetArgs(arguments)
	command.SetContext(context.Background())
	command.SilenceUsage = true
	command.SilenceErrors = true
	executionError := command.Execute()
	return output.String(), executionError
}

func (fixture settingsFixture) current(testInstance *testing.T) settings.Settings {
	testInstance.Helper()
	store, storeError := fixture.container.Settings()
	require.NoError(testInstance, storeError)
	current, loadError := store.Load()
	require.NoError(testInstance, loadError)
	return current
}

func TestInitCommandWritesDefaultsOnce(testInstance *testing.T) {
	fixture := newSettingsFixture(testInstance, nil)

	output, executionError := fixture.execute(testInstance, "", "init")
	require.NoError(testInstance, executionError)
	require.Equal(testInstance, "Settings written: "+fixture.settingsPath+"\n", output)

	output, executionError = fixture.execute(testInstance, "", "init")
	require.NoError(testInstance, executionError)
	require.Equal(testInstance, "Settings already exist: "+fixture.settingsPath+"\n", output)
}

func TestShowCommandPrintsSettings(testInstance *testing.T) {
	fixture := newSettingsFixture(testInstance, nil)
	output, executionError := fixture.execute(testInstance, "", "show")
	require.NoError(testInstance, executionError)

	var shown settings.Settings
	require.NoError(testInstance, json.Unmarshal([]byte(output), &shown))
	require.Equal(testInstance, settings.Default().StartDate, shown.StartDate)
	require.Equal(testInstance, settings.Default().Categories, shown.Categories)
}

func TestUpdateCommandMergesFields(testInstance *testing.T) {
	testCases := []struct {
		name          string
		arguments     []string
		standardInput string
		expectedError string
	}{
		{
			name:      "argument",
			arguments: []string{"update", `{"categories":["cs.RO"],"max_papers_per_fetch":25}`},
		},
		{
			name:          "standard_input",
			arguments:     []string{"update", "-"},
			standardInput: `{"categories":["cs.RO"],"max_papers_per_fetch":25}`,
		},
		{
			name:          "unknown_field",
			arguments:     []string{"update", `{"category":"cs.RO"}`},
			expectedError: "invalid settings update",
		},
		{
			name:          "missing_payload",
			arguments:     []string{"update"},
			expectedError: "settings update payload required",
		},
	}

	for _, testCase := range testCases {
		testInstance.Run(testCase.name, func(subTest *testing.T) {
			fixture := newSettingsFixture(subTest, nil)
			output, executionError := fixture.execute(subTest, testCase.standardInput, testCase.arguments...)
			if len(testCase.expectedError) > 0 {
				require.ErrorContains(subTest, executionError, testCase.expectedError)
				return
			}
			require.NoError(subTest, executionError)
			require.Equal(subTest, "Settings updated: "+fixture.settingsPath+"\n", output)
			current := fixture.current(subTest)
			require.Equal(subTest, []string{"cs.RO"}, current.Categories)
			require.Equal(subTest, 25, current.MaxPapersPerFetch)
			require.Equal(subTest, settings.Default().SystemPrompt, current.SystemPrompt)
		})
	}
}

func TestUpdateCommandRechecksNegativeKeywords(testInstance *testing.T) {
	fixture := newSettingsFixture(testInstance, silentChatClient{})
	store, storeError := fixture.container.Papers()
	require.NoError(testInstance, storeError)
	require.NoError(testInstance, store.Save(papers.Paper{
		ID:             "2610.00042",
		Title:          "A benchmark for humanoid locomotion",
		IsRelevant:     papers.BoolPointer(true),
		RelevanceScore: 9,
	}))

	output, executionError := fixture.execute(testInstance, "", "update", `{"negative_keywords":["humanoid"]}`)
	require.NoError(testInstance, executionError)
	require.Contains(testInstance, output, "Papers demoted: 1\n")

	demoted, loadError := store.Load("2610.00042")
	require.NoError(testInstance, loadError)
	require.False(testInstance, demoted.Relevant())
}

func TestUpdateCommandReportsSkippedRecheck(testInstance *testing.T) {
	fixture := newSettingsFixture(testInstance, nil)
	output, executionError := fixture.execute(testInstance, "", "update", `{"negative_keywords":["humanoid"]}`)
	require.NoError(testInstance, executionError)
	require.Contains(testInstance, output, "run \"settings recheck\"")
}

func TestWindowCommandMovesDates(testInstance *testing.T) {
	fixture := newSettingsFixture(testInstance, nil)
	output, executionError := fixture.execute(testInstance, "", "window", "--days-back", "2")
	require.NoError(testInstance, executionError)
	require.Equal(testInstance, "Date window: 2026-10-17 to 2026-10-19\n", output)

	current := fixture.current(testInstance)
	require.Equal(testInstance, "2026-10-17", current.StartDate)
	require.Equal(testInstance, "2026-10-19", current.EndDate)
}

func TestRecheckCommandRequiresChatClient(testInstance *testing.T) {
	fixture := newSettingsFixture(testInstance, nil)
	_, executionError := fixture.execute(testInstance, "", "recheck")
	require.ErrorIs(testInstance, executionError, llm.ErrAPIKeyRequired)
}
