// Package services assembles the paperdigest services from the application configuration.
//
// A Container opens the stores, builds the arXiv client, chat client, analyzer, exporter
// and publisher on first use, and composes them into pipeline executors, the scheduler
// and the HTTP server. Every service reports to one private metrics registry.
package services
