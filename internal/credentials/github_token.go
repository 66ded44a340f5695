package credentials

import (
	"context"
	"strings"
)

// Environment variable names consulted for GitHub authentication when no explicit source resolves.
const (
	EnvGitHubCLIToken = "GH_TOKEN"
	EnvGitHubToken    = "GITHUB_TOKEN"
	EnvGitHubAPIToken = "GITHUB_API_TOKEN"
)

var gitHubTokenPreference = []string{
	EnvGitHubCLIToken,
	EnvGitHubToken,
	EnvGitHubAPIToken,
}

// ResolveGitHubToken resolves the configured declaration first and falls back to the
// conventional GitHub environment variables. An empty result means anonymous access.
func (resolver *TokenResolver) ResolveGitHubToken(resolutionContext context.Context, declaration string) (string, bool) {
	if len(strings.TrimSpace(declaration)) > 0 {
		if token, resolveError := resolver.ResolveDeclaredToken(resolutionContext, declaration); resolveError == nil {
			return token, true
		}
	}
	for _, environmentKey := range gitHubTokenPreference {
		value, found := resolver.environmentLookup(environmentKey)
		trimmedValue := strings.TrimSpace(value)
		if found && len(trimmedValue) > 0 {
			return trimmedValue, true
		}
	}
	return "", false
}
