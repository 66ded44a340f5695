// Package export writes high-scoring papers as ranked Markdown files grouped by date window.
package export
