// Package cli constructs the paperdigest command-line interface, wiring the
// Cobra command hierarchy, configuration loader, and structured logging
// primitives. The service container is built lazily from the loaded
// configuration and shared by every subcommand.
package cli
