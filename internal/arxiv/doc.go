// Package arxiv queries the arXiv API for papers by category and submission window,
// looks papers up by identifier, and extracts readable text from their HTML renderings.
//
// Requests are paced with golang.org/x/time/rate limiters and retried with the
// backoff policies from the retry package.
package arxiv
