package publish_test

import (
	"context"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"testing"

	"github.com/go-git/go-git/v5"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/temirov/paperdigest/internal/execshell"
	"github.com/temirov/paperdigest/internal/publish"
)

const (
	testSeedAuthorConfigConstant = "user.name=Seeder"
	testSeedEmailConfigConstant  = "user.email=seeder@example.com"
	testBranchConstant           = "main"
)

func requireGitBinary(testInstance *testing.T) {
	testInstance.Helper()
	if _, lookupError := exec.LookPath("git"); lookupError != nil {
		testInstance.Skip("git executable not available")
	}
}

func runGit(testInstance *testing.T, workingDirectory string, arguments ...string) string {
	testInstance.Helper()
	command := exec.Command("git", arguments...)
	command.Dir = workingDirectory
	command.Env = append(os.Environ(), "GIT_TERMINAL_PROMPT=0")
	output, runError := command.CombinedOutput()
	require.NoError(testInstance, runError, string(output))
	return strings.TrimSpace(string(output))
}

// seedRemote creates a bare repository whose main branch holds a single commit.
func seedRemote(testInstance *testing.T) string {
	testInstance.Helper()
	rootDirectory := testInstance.TempDir()
	remotePath := filepath.Join(rootDirectory, "remote.git")
	seedPath := filepath.Join(rootDirectory, "seed")
	require.NoError(testInstance, os.MkdirAll(seedPath, 0o755))

	runGit(testInstance, rootDirectory, "init", "--bare", "--initial-branch="+testBranchConstant, remotePath)
	runGit(testInstance, seedPath, "init", "--initial-branch="+testBranchConstant)
	require.NoError(testInstance, os.WriteFile(filepath.Join(seedPath, "index.md"), []byte("# Digest"), 0o644))
	runGit(testInstance, seedPath, "add", "-A")
	runGit(testInstance, seedPath, "-c", testSeedAuthorConfigConstant, "-c", testSeedEmailConfigConstant, "commit", "-m", "seed")
	runGit(testInstance, seedPath, "push", remotePath, testBranchConstant)
	return remotePath
}

func TestGitCLIBackendPushesAfterDryRun(testInstance *testing.T) {
	requireGitBinary(testInstance)
	remotePath := seedRemote(testInstance)
	checkoutPath := filepath.Join(testInstance.TempDir(), "checkout")
	folder := writeExportFolder(testInstance)

	executor, executorError := execshell.NewShellExecutor(zap.NewNop(), execshell.NewOSCommandRunner())
	require.NoError(testInstance, executorError)
	backend, backendError := publish.NewGitCLIBackend(executor, "file://"+remotePath, testBranchConstant, "", nil)
	require.NoError(testInstance, backendError)

	publishWith := func(dryRun bool) publish.Result {
		service, serviceError := publish.NewService(publish.Options{
			WorkDirectory:         checkoutPath,
			TargetDirectory:       "papers",
			CommitMessageTemplate: "Update paper digest %s",
			AuthorName:            "Bot",
			AuthorEmail:           "bot@example.com",
			DryRun:                dryRun,
		}, publish.ServiceDependencies{Backend: backend})
		require.NoError(testInstance, serviceError)
		result, publishError := service.Publish(context.Background(), folder)
		require.NoError(testInstance, publishError)
		return result
	}

	require.Equal(testInstance, publish.OutcomeDryRun, publishWith(true).Outcome)
	remoteHeadAfterDryRun := runGit(testInstance, remotePath, "rev-parse", testBranchConstant)
	require.NotEqual(testInstance, remoteHeadAfterDryRun, runGit(testInstance, checkoutPath, "rev-parse", "HEAD"))

	require.Equal(testInstance, publish.OutcomePushed, publishWith(false).Outcome)
	require.Equal(testInstance, runGit(testInstance, checkoutPath, "rev-parse", "HEAD"), runGit(testInstance, remotePath, "rev-parse", testBranchConstant))
	require.NotEqual(testInstance, remoteHeadAfterDryRun, runGit(testInstance, remotePath, "rev-parse", testBranchConstant))

	require.Equal(testInstance, publish.OutcomeUnchanged, publishWith(false).Outcome)
}

func TestGoGitBackendPrepareDiscardsUnpushedCommits(testInstance *testing.T) {
	requireGitBinary(testInstance)
	remotePath := seedRemote(testInstance)
	checkoutPath := filepath.Join(testInstance.TempDir(), "checkout")
	remoteHead := runGit(testInstance, remotePath, "rev-parse", testBranchConstant)

	_, cloneError := git.PlainClone(checkoutPath, false, &git.CloneOptions{URL: remotePath})
	require.NoError(testInstance, cloneError)

	backend, backendError := publish.NewGoGitBackend(remotePath, testBranchConstant, "", nil)
	require.NoError(testInstance, backendError)
	require.NoError(testInstance, os.WriteFile(filepath.Join(checkoutPath, "unpushed.md"), []byte("local only"), 0o644))
	committed, commitError := backend.Commit(context.Background(), checkoutPath, publish.CommitDetails{Message: "local", AuthorName: "Bot", AuthorEmail: "bot@example.com"})
	require.NoError(testInstance, commitError)
	require.True(testInstance, committed)
	require.NoError(testInstance, os.WriteFile(filepath.Join(checkoutPath, "untracked.md"), []byte("scratch"), 0o644))

	require.NoError(testInstance, backend.Prepare(context.Background(), checkoutPath))

	require.Equal(testInstance, remoteHead, runGit(testInstance, checkoutPath, "rev-parse", "HEAD"))
	for _, leftover := range []string{"unpushed.md", "untracked.md"} {
		_, statError := os.Stat(filepath.Join(checkoutPath, leftover))
		require.ErrorIs(testInstance, statError, os.ErrNotExist)
	}
	_, indexError := os.Stat(filepath.Join(checkoutPath, "index.md"))
	require.NoError(testInstance, indexError)
}
