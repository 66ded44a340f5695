package publish

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"

	"github.com/google/go-github/v57/github"
	"golang.org/x/oauth2"
)

const (
	pagesTokenRequiredMessageConstant = "github token is required to request a pages build"
	pagesRepositoryTemplateConstant   = "failed to resolve pages repository: %w"
	pagesBaseURLTemplateConstant      = "invalid github api url %s: %w"
	pagesBuildTemplateConstant        = "failed to request pages build for %s/%s: %w"
	trailingSlashConstant             = "/"
)

// ErrPagesTokenRequired indicates that a pages build was requested without a token.
var ErrPagesTokenRequired = errors.New(pagesTokenRequiredMessageConstant)

// PagesBuildRequester asks the hosting service to rebuild the site.
type PagesBuildRequester interface {
	RequestBuild(executionContext context.Context) error
}

// GitHubPagesBuilder requests GitHub Pages builds through the REST API.
type GitHubPagesBuilder struct {
	client     *github.Client
	repository Repository
}

// NewGitHubPagesBuilder authenticates with token and targets the repository behind repositoryURL.
// A non-empty apiBaseURL replaces the public API endpoint.
func NewGitHubPagesBuilder(executionContext context.Context, token string, repositoryURL string, apiBaseURL string) (*GitHubPagesBuilder, error) {
	trimmedToken := strings.TrimSpace(token)
	if len(trimmedToken) == 0 {
		return nil, ErrPagesTokenRequired
	}
	repository, parseError := ParseRepositoryURL(repositoryURL)
	if parseError != nil {
		return nil, fmt.Errorf(pagesRepositoryTemplateConstant, parseError)
	}

	tokenSource := oauth2.StaticTokenSource(&oauth2.Token{AccessToken: trimmedToken})
	client := github.NewClient(oauth2.NewClient(executionContext, tokenSource))
	if trimmedBaseURL := strings.TrimSpace(apiBaseURL); len(trimmedBaseURL) > 0 {
		if !strings.HasSuffix(trimmedBaseURL, trailingSlashConstant) {
			trimmedBaseURL += trailingSlashConstant
		}
		baseURL, urlError := url.Parse(trimmedBaseURL)
		if urlError != nil {
			return nil, fmt.Errorf(pagesBaseURLTemplateConstant, trimmedBaseURL, urlError)
		}
		client.BaseURL = baseURL
	}
	return &GitHubPagesBuilder{client: client, repository: repository}, nil
}

// RequestBuild queues a Pages build of the latest commit.
func (builder *GitHubPagesBuilder) RequestBuild(executionContext context.Context) error {
	if _, _, buildError := builder.client.Repositories.RequestPageBuild(executionContext, builder.repository.Owner, builder.repository.Name); buildError != nil {
		return fmt.Errorf(pagesBuildTemplateConstant, builder.repository.Owner, builder.repository.Name, buildError)
	}
	return nil
}
