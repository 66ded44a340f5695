// Package server exposes the paper store, analysis settings and question answering over a
// chi REST API, hosts the web UI and runs the pipeline scheduler in the background.
package server
