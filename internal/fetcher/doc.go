// Package fetcher ingests arXiv papers into the paper store.
package fetcher
