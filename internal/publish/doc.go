// Package publish copies Markdown exports into a GitHub Pages checkout and pushes them,
// either through the git executable or through go-git.
package publish
