// Package credentials resolves secrets such as the chat-completion API key and the
// GitHub Pages push token from environment variables or files.
package credentials
