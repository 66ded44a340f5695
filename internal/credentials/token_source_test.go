package credentials

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestParseTokenSource(t *testing.T) {
	testCases := []struct {
		name          string
		declaration   string
		expected      TokenSource
		expectedError string
	}{
		{name: "bare_name", declaration: "DEEPSEEK_API_KEY", expected: TokenSource{Type: TokenSourceTypeEnvironment, Reference: "DEEPSEEK_API_KEY"}},
		{name: "environment", declaration: "env:GITHUB_TOKEN", expected: TokenSource{Type: TokenSourceTypeEnvironment, Reference: "GITHUB_TOKEN"}},
		{name: "file", declaration: " FILE: /run/secrets/key ", expected: TokenSource{Type: TokenSourceTypeFile, Reference: "/run/secrets/key"}},
		{name: "blank", declaration: "  ", expectedError: tokenSourceMissingErrorMessageConstant},
		{name: "empty_environment", declaration: "env:", expectedError: environmentNameMissingErrorMessageConstant},
		{name: "unsupported", declaration: "vault:secret", expectedError: "unsupported token source type"},
	}

	for _, testCase := range testCases {
		t.Run(testCase.name, func(t *testing.T) {
			source, parseError := ParseTokenSource(testCase.declaration)
			if len(testCase.expectedError) > 0 {
				require.ErrorContains(t, parseError, testCase.expectedError)
				return
			}
			require.NoError(t, parseError)
			require.Equal(t, testCase.expected, source)
		})
	}
}

func TestTokenResolverResolvesSources(t *testing.T) {
	environment := map[string]string{"DEEPSEEK_API_KEY": " sk-test \n", "EMPTY": " "}
	files := map[string]string{"/secrets/token": "file-token\n", "/secrets/empty": ""}
	resolver := NewTokenResolver(
		func(key string) (string, bool) {
			value, found := environment[key]
			return value, found
		},
		func(path string) ([]byte, error) {
			contents, found := files[path]
			if !found {
				return nil, errors.New("missing file")
			}
			return []byte(contents), nil
		},
	)

	token, resolveError := resolver.ResolveDeclaredToken(context.Background(), "env:DEEPSEEK_API_KEY")
	require.NoError(t, resolveError)
	require.Equal(t, "sk-test", token)

	token, resolveError = resolver.ResolveDeclaredToken(context.Background(), "file:/secrets/token")
	require.NoError(t, resolveError)
	require.Equal(t, "file-token", token)

	_, resolveError = resolver.ResolveDeclaredToken(context.Background(), "EMPTY")
	require.ErrorContains(t, resolveError, "EMPTY is not set")

	_, resolveError = resolver.ResolveDeclaredToken(context.Background(), "file:/secrets/empty")
	require.ErrorContains(t, resolveError, "is empty")

	_, resolveError = resolver.ResolveDeclaredToken(context.Background(), "file:/secrets/absent")
	require.ErrorContains(t, resolveError, "unable to read token file")
}

func TestResolveGitHubTokenFallsBackToConventionalVariables(t *testing.T) {
	environment := map[string]string{EnvGitHubToken: "ghp_fallback"}
	resolver := NewTokenResolver(func(key string) (string, bool) {
		value, found := environment[key]
		return value, found
	}, nil)

	token, found := resolver.ResolveGitHubToken(context.Background(), "env:PAGES_TOKEN")
	require.True(t, found)
	require.Equal(t, "ghp_fallback", token)

	environment["PAGES_TOKEN"] = "ghp_explicit"
	token, found = resolver.ResolveGitHubToken(context.Background(), "env:PAGES_TOKEN")
	require.True(t, found)
	require.Equal(t, "ghp_explicit", token)

	emptyResolver := NewTokenResolver(func(string) (string, bool) { return "", false }, nil)
	_, found = emptyResolver.ResolveGitHubToken(context.Background(), "")
	require.False(t, found)
}
