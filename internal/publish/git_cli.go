package publish

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"go.uber.org/zap"

	"github.com/temirov/paperdigest/internal/execshell"
)

const (
	// TokenEnvironmentVariable carries the push token to the inline credential helper.
	TokenEnvironmentVariable = "PAPERDIGEST_GIT_TOKEN"

	gitConfigurationFlagConstant      = "-c"
	gitResetCredentialHelperConstant  = "credential.helper="
	gitCredentialHelperTemplate       = "credential.helper=!f() { echo username=%s; echo \"password=$%s\"; }; f"
	gitUserNameTemplateConstant       = "user.name=%s"
	gitUserEmailTemplateConstant      = "user.email=%s"
	gitCloneSubcommandConstant        = "clone"
	gitFetchSubcommandConstant        = "fetch"
	gitResetSubcommandConstant        = "reset"
	gitCleanSubcommandConstant        = "clean"
	gitAddSubcommandConstant          = "add"
	gitStatusSubcommandConstant       = "status"
	gitCommitSubcommandConstant       = "commit"
	gitPushSubcommandConstant         = "push"
	gitDepthFlagConstant              = "--depth"
	gitDepthValueConstant             = "1"
	gitBranchFlagConstant             = "--branch"
	gitHardFlagConstant               = "--hard"
	gitFetchHeadConstant              = "FETCH_HEAD"
	gitCleanFlagsConstant             = "-fd"
	gitAllFlagConstant                = "-A"
	gitPorcelainFlagConstant          = "--porcelain"
	gitMessageFlagConstant            = "-m"
	gitRemoteNameConstant             = "origin"
	gitPushRefSpecTemplateConstant    = "HEAD:%s"
	gitMetadataDirectoryConstant      = ".git"
	gitTerminalPromptVariableConstant = "GIT_TERMINAL_PROMPT"
	gitTerminalPromptDisabledConstant = "0"
	tokenUsernameConstant             = "x-access-token"
	checkoutPermissions               = 0o755

	executorRequiredMessageConstant   = "git executor must be provided"
	repositoryRequiredMessageConstant = "repository url must be provided"
	cloneTemplateConstant             = "failed to clone %s: %w"
	syncTemplateConstant              = "failed to update checkout %s: %w"
	stageTemplateConstant             = "failed to stage changes in %s: %w"
	statusTemplateConstant            = "failed to inspect changes in %s: %w"
	commitTemplateConstant            = "failed to commit changes in %s: %w"
	pushTemplateConstant              = "failed to push %s: %w"
	resetCheckoutTemplateConstant     = "failed to reset checkout %s: %w"

	syncFailedLogMessageConstant = "Checkout sync failed, recloning"
	logFieldCheckoutConstant     = "checkout"
)

// ErrGitExecutorRequired indicates that the git CLI backend received no executor.
var ErrGitExecutorRequired = errors.New(executorRequiredMessageConstant)

// ErrRepositoryRequired indicates that no repository URL was configured.
var ErrRepositoryRequired = errors.New(repositoryRequiredMessageConstant)

// GitExecutor runs git commands.
type GitExecutor interface {
	ExecuteGit(executionContext context.Context, details execshell.CommandDetails) (execshell.ExecutionResult, error)
}

// GitCLIBackend drives the git executable. The token reaches git through an inline
// credential helper reading an environment variable, so it never appears in arguments.
type GitCLIBackend struct {
	executor      GitExecutor
	repositoryURL string
	branch        string
	token         string
	logger        *zap.Logger
}

// NewGitCLIBackend constructs a git CLI backend.
func NewGitCLIBackend(executor GitExecutor, repositoryURL string, branch string, token string, logger *zap.Logger) (*GitCLIBackend, error) {
	if executor == nil {
		return nil, ErrGitExecutorRequired
	}
	trimmedRepository := strings.TrimSpace(repositoryURL)
	if len(trimmedRepository) == 0 {
		return nil, ErrRepositoryRequired
	}
	trimmedBranch := strings.TrimSpace(branch)
	if len(trimmedBranch) == 0 {
		trimmedBranch = DefaultBranch
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &GitCLIBackend{
		executor:      executor,
		repositoryURL: trimmedRepository,
		branch:        trimmedBranch,
		token:         strings.TrimSpace(token),
		logger:        logger,
	}, nil
}

// Prepare resets an existing checkout to the remote branch or clones a fresh shallow one.
// Local commits that never reached the remote (dry runs, failed pushes) are discarded so the
// next commit is built on the remote head. A checkout that cannot be synced is cloned again.
func (backend *GitCLIBackend) Prepare(executionContext context.Context, checkoutPath string) error {
	if _, statError := os.Stat(filepath.Join(checkoutPath, gitMetadataDirectoryConstant)); statError == nil {
		syncError := backend.syncCheckout(executionContext, checkoutPath)
		if syncError == nil {
			return nil
		}
		backend.logger.Warn(syncFailedLogMessageConstant, zap.String(logFieldCheckoutConstant, checkoutPath), zap.Error(syncError))
		if removeError := os.RemoveAll(checkoutPath); removeError != nil {
			return fmt.Errorf(resetCheckoutTemplateConstant, checkoutPath, removeError)
		}
	} else if !errors.Is(statError, fs.ErrNotExist) {
		return fmt.Errorf(syncTemplateConstant, checkoutPath, statError)
	}

	parentDirectory := filepath.Dir(checkoutPath)
	if mkdirError := os.MkdirAll(parentDirectory, checkoutPermissions); mkdirError != nil {
		return fmt.Errorf(cloneTemplateConstant, backend.repositoryURL, mkdirError)
	}
	cloneArguments := backend.authenticated(gitCloneSubcommandConstant, gitDepthFlagConstant, gitDepthValueConstant, gitBranchFlagConstant, backend.branch, backend.repositoryURL, checkoutPath)
	if _, cloneError := backend.run(executionContext, parentDirectory, cloneArguments...); cloneError != nil {
		return fmt.Errorf(cloneTemplateConstant, backend.repositoryURL, cloneError)
	}
	return nil
}

func (backend *GitCLIBackend) syncCheckout(executionContext context.Context, checkoutPath string) error {
	steps := [][]string{
		backend.authenticated(gitFetchSubcommandConstant, gitDepthFlagConstant, gitDepthValueConstant, gitRemoteNameConstant, backend.branch),
		{gitResetSubcommandConstant, gitHardFlagConstant, gitFetchHeadConstant},
		{gitCleanSubcommandConstant, gitCleanFlagsConstant},
	}
	for _, arguments := range steps {
		if _, stepError := backend.run(executionContext, checkoutPath, arguments...); stepError != nil {
			return fmt.Errorf(syncTemplateConstant, checkoutPath, stepError)
		}
	}
	return nil
}

// Commit stages every change in the checkout and commits when the tree is dirty.
func (backend *GitCLIBackend) Commit(executionContext context.Context, checkoutPath string, details CommitDetails) (bool, error) {
	if _, addError := backend.run(executionContext, checkoutPath, gitAddSubcommandConstant, gitAllFlagConstant); addError != nil {
		return false, fmt.Errorf(stageTemplateConstant, checkoutPath, addError)
	}
	statusResult, statusError := backend.run(executionContext, checkoutPath, gitStatusSubcommandConstant, gitPorcelainFlagConstant)
	if statusError != nil {
		return false, fmt.Errorf(statusTemplateConstant, checkoutPath, statusError)
	}
	if len(strings.TrimSpace(statusResult.StandardOutput)) == 0 {
		return false, nil
	}

	commitArguments := []string{
		gitConfigurationFlagConstant, fmt.Sprintf(gitUserNameTemplateConstant, details.AuthorName),
		gitConfigurationFlagConstant, fmt.Sprintf(gitUserEmailTemplateConstant, details.AuthorEmail),
		gitCommitSubcommandConstant, gitMessageFlagConstant, details.Message,
	}
	if _, commitError := backend.run(executionContext, checkoutPath, commitArguments...); commitError != nil {
		return false, fmt.Errorf(commitTemplateConstant, checkoutPath, commitError)
	}
	return true, nil
}

// Push publishes the checkout HEAD to the configured branch.
func (backend *GitCLIBackend) Push(executionContext context.Context, checkoutPath string) error {
	pushArguments := backend.authenticated(gitPushSubcommandConstant, gitRemoteNameConstant, fmt.Sprintf(gitPushRefSpecTemplateConstant, backend.branch))
	if _, pushError := backend.run(executionContext, checkoutPath, pushArguments...); pushError != nil {
		return fmt.Errorf(pushTemplateConstant, backend.repositoryURL, pushError)
	}
	return nil
}

func (backend *GitCLIBackend) authenticated(arguments ...string) []string {
	if len(backend.token) == 0 {
		return arguments
	}
	credentialArguments := []string{
		gitConfigurationFlagConstant, gitResetCredentialHelperConstant,
		gitConfigurationFlagConstant, fmt.Sprintf(gitCredentialHelperTemplate, tokenUsernameConstant, TokenEnvironmentVariable),
	}
	return append(credentialArguments, arguments...)
}

func (backend *GitCLIBackend) run(executionContext context.Context, workingDirectory string, arguments ...string) (execshell.ExecutionResult, error) {
	environment := map[string]string{gitTerminalPromptVariableConstant: gitTerminalPromptDisabledConstant}
	if len(backend.token) > 0 {
		environment[TokenEnvironmentVariable] = backend.token
	}
	return backend.executor.ExecuteGit(executionContext, execshell.CommandDetails{
		Arguments:            arguments,
		WorkingDirectory:     workingDirectory,
		EnvironmentVariables: environment,
	})
}
