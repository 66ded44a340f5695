// Package papers defines the paper document model and the directory-backed store
// that keeps one JSON file per paper.
//
// Besides persistence it offers the read-side queries used by the CLI and the HTTP
// server (timeline, search, statistics, pending deep analysis) and the user actions
// that mutate a stored paper (hide, star, manual relevance).
package papers
