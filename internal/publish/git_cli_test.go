package publish_test

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/temirov/paperdigest/internal/execshell"
	"github.com/temirov/paperdigest/internal/publish"
)

const (
	testRepositoryURLConstant = "https://github.com/example/example.github.io.git"
	testTokenConstant         = "ghp_secret_value"
)

type recordingGitExecutor struct {
	commands []execshell.CommandDetails
	respond  func(details execshell.CommandDetails) (execshell.ExecutionResult, error)
}

func (executor *recordingGitExecutor) ExecuteGit(_ context.Context, details execshell.CommandDetails) (execshell.ExecutionResult, error) {
	executor.commands = append(executor.commands, details)
	if executor.respond == nil {
		return execshell.ExecutionResult{}, nil
	}
	return executor.respond(details)
}

func subcommandOf(arguments []string) string {
	for argumentIndex := 0; argumentIndex < len(arguments); argumentIndex++ {
		if arguments[argumentIndex] == "-c" {
			argumentIndex++
			continue
		}
		return arguments[argumentIndex]
	}
	return ""
}

func subcommands(commands []execshell.CommandDetails) []string {
	names := make([]string, 0, len(commands))
	for _, command := range commands {
		names = append(names, subcommandOf(command.Arguments))
	}
	return names
}

func TestGitCLIBackendClonesWithCredentialHelper(testInstance *testing.T) {
	executor := &recordingGitExecutor{}
	backend, backendError := publish.NewGitCLIBackend(executor, testRepositoryURLConstant, "gh-pages", testTokenConstant, nil)
	require.NoError(testInstance, backendError)

	checkoutPath := filepath.Join(testInstance.TempDir(), "checkout")
	require.NoError(testInstance, backend.Prepare(context.Background(), checkoutPath))
	require.Len(testInstance, executor.commands, 1)

	cloneCommand := executor.commands[0]
	require.Equal(testInstance, filepath.Dir(checkoutPath), cloneCommand.WorkingDirectory)
	require.Equal(testInstance, []string{"clone", "--depth", "1", "--branch", "gh-pages", testRepositoryURLConstant, checkoutPath}, cloneCommand.Arguments[4:])
	require.Equal(testInstance, []string{"-c", "credential.helper=", "-c"}, cloneCommand.Arguments[:3])
	require.Contains(testInstance, cloneCommand.Arguments[3], "$"+publish.TokenEnvironmentVariable)
	for _, argument := range cloneCommand.Arguments {
		require.NotContains(testInstance, argument, testTokenConstant)
	}
	require.Equal(testInstance, testTokenConstant, cloneCommand.EnvironmentVariables[publish.TokenEnvironmentVariable])
	require.Equal(testInstance, "0", cloneCommand.EnvironmentVariables["GIT_TERMINAL_PROMPT"])
}

func TestGitCLIBackendPrepareExistingCheckout(testInstance *testing.T) {
	testCases := []struct {
		name                string
		failingSubcommand   string
		expectedSubcommands []string
		expectCheckoutGone  bool
	}{
		{name: "reset_to_remote", expectedSubcommands: []string{"fetch", "reset", "clean"}},
		{name: "reclone_after_failed_fetch", failingSubcommand: "fetch", expectedSubcommands: []string{"fetch", "clone"}, expectCheckoutGone: true},
		{name: "reclone_after_failed_reset", failingSubcommand: "reset", expectedSubcommands: []string{"fetch", "reset", "clone"}, expectCheckoutGone: true},
	}

	for testCaseIndex, testCase := range testCases {
		testInstance.Run(fmt.Sprintf("%d_%s", testCaseIndex, testCase.name), func(testInstance *testing.T) {
			checkoutPath := filepath.Join(testInstance.TempDir(), "checkout")
			require.NoError(testInstance, os.MkdirAll(filepath.Join(checkoutPath, ".git"), 0o755))
			require.NoError(testInstance, os.WriteFile(filepath.Join(checkoutPath, "stale.md"), []byte("stale"), 0o644))

			executor := &recordingGitExecutor{respond: func(details execshell.CommandDetails) (execshell.ExecutionResult, error) {
				if subcommandOf(details.Arguments) == testCase.failingSubcommand {
					return execshell.ExecutionResult{}, errors.New("checkout damaged")
				}
				return execshell.ExecutionResult{}, nil
			}}
			backend, backendError := publish.NewGitCLIBackend(executor, testRepositoryURLConstant, "", "", nil)
			require.NoError(testInstance, backendError)

			require.NoError(testInstance, backend.Prepare(context.Background(), checkoutPath))
			require.Equal(testInstance, testCase.expectedSubcommands, subcommands(executor.commands))
			require.Equal(testInstance, []string{"fetch", "--depth", "1", "origin", "main"}, executor.commands[0].Arguments)
			require.Equal(testInstance, checkoutPath, executor.commands[0].WorkingDirectory)

			_, statError := os.Stat(filepath.Join(checkoutPath, "stale.md"))
			require.Equal(testInstance, testCase.expectCheckoutGone, errors.Is(statError, os.ErrNotExist))
		})
	}
}

func TestGitCLIBackendCommit(testInstance *testing.T) {
	testCases := []struct {
		name                string
		statusOutput        string
		expectCommitted     bool
		expectedSubcommands []string
	}{
		{name: "clean_tree", statusOutput: "", expectedSubcommands: []string{"add", "status"}},
		{name: "dirty_tree", statusOutput: "A  papers/001.md\n", expectCommitted: true, expectedSubcommands: []string{"add", "status", "commit"}},
	}

	for testCaseIndex, testCase := range testCases {
		testInstance.Run(fmt.Sprintf("%d_%s", testCaseIndex, testCase.name), func(testInstance *testing.T) {
			executor := &recordingGitExecutor{respond: func(details execshell.CommandDetails) (execshell.ExecutionResult, error) {
				if subcommandOf(details.Arguments) == "status" {
					return execshell.ExecutionResult{StandardOutput: testCase.statusOutput}, nil
				}
				return execshell.ExecutionResult{}, nil
			}}
			backend, backendError := publish.NewGitCLIBackend(executor, testRepositoryURLConstant, "main", testTokenConstant, nil)
			require.NoError(testInstance, backendError)

			committed, commitError := backend.Commit(context.Background(), "/tmp/checkout", publish.CommitDetails{Message: "Update", AuthorName: "Bot", AuthorEmail: "bot@example.com"})
			require.NoError(testInstance, commitError)
			require.Equal(testInstance, testCase.expectCommitted, committed)
			require.Equal(testInstance, testCase.expectedSubcommands, subcommands(executor.commands))
			require.Equal(testInstance, []string{"add", "-A"}, executor.commands[0].Arguments)
			if testCase.expectCommitted {
				require.Equal(testInstance, []string{"-c", "user.name=Bot", "-c", "user.email=bot@example.com", "commit", "-m", "Update"}, executor.commands[2].Arguments)
			}
		})
	}
}

func TestGitCLIBackendPush(testInstance *testing.T) {
	executor := &recordingGitExecutor{respond: func(execshell.CommandDetails) (execshell.ExecutionResult, error) {
		return execshell.ExecutionResult{}, errors.New("rejected")
	}}
	backend, backendError := publish.NewGitCLIBackend(executor, testRepositoryURLConstant, "main", "", nil)
	require.NoError(testInstance, backendError)

	pushError := backend.Push(context.Background(), "/tmp/checkout")
	require.ErrorContains(testInstance, pushError, "rejected")
	require.Equal(testInstance, []string{"push", "origin", "HEAD:main"}, executor.commands[0].Arguments)
	_, hasToken := executor.commands[0].EnvironmentVariables[publish.TokenEnvironmentVariable]
	require.False(testInstance, hasToken)
}

func TestNewBackend(testInstance *testing.T) {
	_, disabledError := publish.NewBackend(publish.Options{}, &recordingGitExecutor{}, "", nil)
	require.ErrorIs(testInstance, disabledError, publish.ErrPublishingDisabled)

	_, missingRepositoryError := publish.NewBackend(publish.Options{Backend: "git"}, &recordingGitExecutor{}, "", nil)
	require.ErrorIs(testInstance, missingRepositoryError, publish.ErrRepositoryRequired)

	_, missingExecutorError := publish.NewBackend(publish.Options{Backend: "git", RepositoryURL: testRepositoryURLConstant}, nil, "", nil)
	require.ErrorIs(testInstance, missingExecutorError, publish.ErrGitExecutorRequired)

	_, unknownError := publish.NewBackend(publish.Options{Backend: "svn"}, nil, "", nil)
	require.ErrorContains(testInstance, unknownError, "svn")

	goGitBackend, goGitError := publish.NewBackend(publish.Options{Backend: " Go-Git ", RepositoryURL: testRepositoryURLConstant}, nil, "", nil)
	require.NoError(testInstance, goGitError)
	require.IsType(testInstance, &publish.GoGitBackend{}, goGitBackend)
	require.True(testInstance, strings.EqualFold(publish.Options{Backend: "GIT"}.Sanitize().Backend, "git"))
}
