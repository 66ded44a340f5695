package publish

import (
	"fmt"
	"strings"
)

const (
	sshProtocolPrefixConstant        = "ssh://"
	sshUserDelimiterConstant         = "@"
	sshPathDelimiterConstant         = ":"
	httpsProtocolPrefixConstant      = "https://"
	httpProtocolPrefixConstant       = "http://"
	gitUserPrefixConstant            = "git@"
	pathSeparatorConstant            = "/"
	gitSuffixConstant                = ".git"
	remoteParseErrorTemplateConstant = "%s: %s"
	invalidRemoteMessageConstant     = "invalid repository url"
	requiredValueMessageConstant     = "value required"
)

// Repository identifies a hosted git repository.
type Repository struct {
	Host  string
	Owner string
	Name  string
}

// RepositoryParseError indicates a repository URL could not be parsed.
type RepositoryParseError struct {
	Input   string
	Message string
}

// Error describes the parse failure.
func (parseError RepositoryParseError) Error() string {
	return fmt.Sprintf(remoteParseErrorTemplateConstant, parseError.Input, parseError.Message)
}

// ParseRepositoryURL extracts host, owner and repository name from an HTTPS or SSH remote.
func ParseRepositoryURL(remote string) (Repository, error) {
	trimmedRemote := strings.TrimSpace(remote)
	if len(trimmedRemote) == 0 {
		return Repository{}, RepositoryParseError{Input: remote, Message: requiredValueMessageConstant}
	}

	switch {
	case strings.HasPrefix(trimmedRemote, sshProtocolPrefixConstant):
		return parseSSHRemote(strings.TrimPrefix(trimmedRemote, sshProtocolPrefixConstant))
	case strings.HasPrefix(trimmedRemote, gitUserPrefixConstant):
		return parseSSHRemote(trimmedRemote)
	case strings.HasPrefix(trimmedRemote, httpsProtocolPrefixConstant):
		return parseHTTPRemote(strings.TrimPrefix(trimmedRemote, httpsProtocolPrefixConstant))
	case strings.HasPrefix(trimmedRemote, httpProtocolPrefixConstant):
		return parseHTTPRemote(strings.TrimPrefix(trimmedRemote, httpProtocolPrefixConstant))
	}
	return Repository{}, RepositoryParseError{Input: remote, Message: invalidRemoteMessageConstant}
}

func parseSSHRemote(remote string) (Repository, error) {
	userSplitIndex := strings.Index(remote, sshUserDelimiterConstant)
	if userSplitIndex == -1 {
		return Repository{}, RepositoryParseError{Input: remote, Message: invalidRemoteMessageConstant}
	}
	hostAndPath := remote[userSplitIndex+1:]
	delimiterIndex := strings.Index(hostAndPath, sshPathDelimiterConstant)
	if delimiterIndex == -1 {
		delimiterIndex = strings.Index(hostAndPath, pathSeparatorConstant)
	}
	if delimiterIndex == -1 {
		return Repository{}, RepositoryParseError{Input: remote, Message: invalidRemoteMessageConstant}
	}
	return splitRepositoryPath(remote, hostAndPath[:delimiterIndex], hostAndPath[delimiterIndex+1:])
}

func parseHTTPRemote(remote string) (Repository, error) {
	host, path, found := strings.Cut(remote, pathSeparatorConstant)
	if !found {
		return Repository{}, RepositoryParseError{Input: remote, Message: invalidRemoteMessageConstant}
	}
	if credentialsIndex := strings.LastIndex(host, sshUserDelimiterConstant); credentialsIndex >= 0 {
		host = host[credentialsIndex+1:]
	}
	return splitRepositoryPath(remote, host, path)
}

func splitRepositoryPath(remote string, host string, path string) (Repository, error) {
	segments := strings.Split(strings.Trim(path, pathSeparatorConstant), pathSeparatorConstant)
	if len(host) == 0 || len(segments) != 2 {
		return Repository{}, RepositoryParseError{Input: remote, Message: invalidRemoteMessageConstant}
	}
	name := strings.TrimSuffix(segments[1], gitSuffixConstant)
	if len(segments[0]) == 0 || len(name) == 0 {
		return Repository{}, RepositoryParseError{Input: remote, Message: invalidRemoteMessageConstant}
	}
	return Repository{Host: host, Owner: segments[0], Name: name}, nil
}
