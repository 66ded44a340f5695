// Package staticbuild copies the frontend into a distribution directory and versions
// JS and CSS references with a content hash so browsers refetch changed assets.
package staticbuild
