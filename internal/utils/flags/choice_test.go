package flags

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestFormatChoiceUsage(t *testing.T) {
	testCases := []struct {
		name           string
		defaultChoice  string
		choices        []string
		description    string
		expectedOutput string
	}{
		{
			name:           "DefaultFirstChoice",
			defaultChoice:  "relevance",
			choices:        []string{"relevance", "latest"},
			description:    "Order the timeline.",
			expectedOutput: "`<RELEVANCE|latest>` Order the timeline.",
		},
		{
			name:           "DefaultSecondChoice",
			defaultChoice:  "go-git",
			choices:        []string{"git", "go-git", "none"},
			description:    "Publishing backend.",
			expectedOutput: "`<git|GO-GIT|none>` Publishing backend.",
		},
		{
			name:           "EmptyDescription",
			defaultChoice:  "latest",
			choices:        []string{"relevance", "latest"},
			expectedOutput: "`<relevance|LATEST>`",
		},
		{
			name:           "DuplicateChoicesIgnored",
			defaultChoice:  "git",
			choices:        []string{"git", "git", "none"},
			description:    "Select between options.",
			expectedOutput: "`<GIT|none>` Select between options.",
		},
	}

	for _, testCase := range testCases {
		t.Run(testCase.name, func(t *testing.T) {
			require.Equal(t, testCase.expectedOutput, FormatChoiceUsage(testCase.defaultChoice, testCase.choices, testCase.description))
		})
	}
}

func TestNormalizeChoice(t *testing.T) {
	choices := []string{"relevance", "latest"}

	normalized, normalizeError := NormalizeChoice(" Latest ", "relevance", choices)
	require.NoError(t, normalizeError)
	require.Equal(t, "latest", normalized)

	normalized, normalizeError = NormalizeChoice("", "relevance", choices)
	require.NoError(t, normalizeError)
	require.Equal(t, "relevance", normalized)

	_, normalizeError = NormalizeChoice("oldest", "relevance", choices)
	require.ErrorContains(t, normalizeError, "unsupported value")
}
