package publish

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/config"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/object"
	"github.com/go-git/go-git/v5/plumbing/transport"
	githttp "github.com/go-git/go-git/v5/plumbing/transport/http"
	"go.uber.org/zap"
)

const (
	goGitRefSpecTemplateConstant      = "refs/heads/%s:refs/heads/%s"
	goGitFetchRefSpecTemplateConstant = "+refs/heads/%s:refs/remotes/%s/%s"
	openCheckoutTemplateConstant = "failed to open checkout %s: %w"
	worktreeTemplateConstant     = "failed to open worktree %s: %w"
)

// GoGitBackend publishes with the native go-git implementation and needs no git executable.
type GoGitBackend struct {
	repositoryURL string
	branch        string
	token         string
	logger        *zap.Logger
	clock         func() time.Time
}

// NewGoGitBackend constructs a go-git backend.
func NewGoGitBackend(repositoryURL string, branch string, token string, logger *zap.Logger) (*GoGitBackend, error) {
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
	return &GoGitBackend{
		repositoryURL: trimmedRepository,
		branch:        trimmedBranch,
		token:         strings.TrimSpace(token),
		logger:        logger,
		clock:         time.Now,
	}, nil
}

// Prepare resets an existing checkout to the remote branch or clones a fresh shallow one.
func (backend *GoGitBackend) Prepare(executionContext context.Context, checkoutPath string) error {
	repository, openError := git.PlainOpen(checkoutPath)
	if openError == nil {
		syncError := backend.syncCheckout(executionContext, repository)
		if syncError == nil {
			return nil
		}
		backend.logger.Warn(syncFailedLogMessageConstant, zap.String(logFieldCheckoutConstant, checkoutPath), zap.Error(syncError))
		if removeError := os.RemoveAll(checkoutPath); removeError != nil {
			return fmt.Errorf(resetCheckoutTemplateConstant, checkoutPath, removeError)
		}
	} else if !errors.Is(openError, git.ErrRepositoryNotExists) {
		return fmt.Errorf(openCheckoutTemplateConstant, checkoutPath, openError)
	}

	_, cloneError := git.PlainCloneContext(executionContext, checkoutPath, false, &git.CloneOptions{
		URL:           backend.repositoryURL,
		Auth:          backend.auth(),
		ReferenceName: plumbing.NewBranchReferenceName(backend.branch),
		SingleBranch:  true,
		Depth:         1,
	})
	if cloneError != nil {
		return fmt.Errorf(cloneTemplateConstant, backend.repositoryURL, cloneError)
	}
	return nil
}

func (backend *GoGitBackend) syncCheckout(executionContext context.Context, repository *git.Repository) error {
	fetchRefSpec := config.RefSpec(fmt.Sprintf(goGitFetchRefSpecTemplateConstant, backend.branch, gitRemoteNameConstant, backend.branch))
	fetchError := repository.FetchContext(executionContext, &git.FetchOptions{
		RemoteName: gitRemoteNameConstant,
		RefSpecs:   []config.RefSpec{fetchRefSpec},
		Auth:       backend.auth(),
		Force:      true,
	})
	if fetchError != nil && !errors.Is(fetchError, git.NoErrAlreadyUpToDate) {
		return fetchError
	}
	remoteReference, referenceError := repository.Reference(plumbing.NewRemoteReferenceName(gitRemoteNameConstant, backend.branch), true)
	if referenceError != nil {
		return referenceError
	}
	worktree, worktreeError := repository.Worktree()
	if worktreeError != nil {
		return worktreeError
	}
	if resetError := worktree.Reset(&git.ResetOptions{Commit: remoteReference.Hash(), Mode: git.HardReset}); resetError != nil {
		return resetError
	}
	return worktree.Clean(&git.CleanOptions{Dir: true})
}

// Commit stages every change in the checkout and commits when the tree is dirty.
func (backend *GoGitBackend) Commit(executionContext context.Context, checkoutPath string, details CommitDetails) (bool, error) {
	if contextError := executionContext.Err(); contextError != nil {
		return false, contextError
	}
	repository, openError := git.PlainOpen(checkoutPath)
	if openError != nil {
		return false, fmt.Errorf(openCheckoutTemplateConstant, checkoutPath, openError)
	}
	worktree, worktreeError := repository.Worktree()
	if worktreeError != nil {
		return false, fmt.Errorf(worktreeTemplateConstant, checkoutPath, worktreeError)
	}
	if addError := worktree.AddWithOptions(&git.AddOptions{All: true}); addError != nil {
		return false, fmt.Errorf(stageTemplateConstant, checkoutPath, addError)
	}
	status, statusError := worktree.Status()
	if statusError != nil {
		return false, fmt.Errorf(statusTemplateConstant, checkoutPath, statusError)
	}
	if status.IsClean() {
		return false, nil
	}

	_, commitError := worktree.Commit(details.Message, &git.CommitOptions{
		Author: &object.Signature{Name: details.AuthorName, Email: details.AuthorEmail, When: backend.clock()},
	})
	if commitError != nil {
		return false, fmt.Errorf(commitTemplateConstant, checkoutPath, commitError)
	}
	return true, nil
}

// Push publishes the local branch to the remote branch of the same name.
func (backend *GoGitBackend) Push(executionContext context.Context, checkoutPath string) error {
	repository, openError := git.PlainOpen(checkoutPath)
	if openError != nil {
		return fmt.Errorf(openCheckoutTemplateConstant, checkoutPath, openError)
	}
	pushError := repository.PushContext(executionContext, &git.PushOptions{
		RemoteName: gitRemoteNameConstant,
		RefSpecs:   []config.RefSpec{config.RefSpec(fmt.Sprintf(goGitRefSpecTemplateConstant, backend.branch, backend.branch))},
		Auth:       backend.auth(),
	})
	if pushError != nil && !errors.Is(pushError, git.NoErrAlreadyUpToDate) {
		return fmt.Errorf(pushTemplateConstant, backend.repositoryURL, pushError)
	}
	return nil
}

func (backend *GoGitBackend) auth() transport.AuthMethod {
	if len(backend.token) == 0 {
		return nil
	}
	return &githttp.BasicAuth{Username: tokenUsernameConstant, Password: backend.token}
}
