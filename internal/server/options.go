package server

import (
	"strings"
	"time"

	"github.com/temirov/paperdigest/internal/export"
	"github.com/temirov/paperdigest/internal/staticbuild"
)

const (
	// DefaultListenAddress matches the port the digest UI has always used.
	DefaultListenAddress = ":5000"
	// DefaultShutdownTimeout bounds the graceful shutdown of the HTTP server.
	DefaultShutdownTimeout = 10 * time.Second
)

// Options configure the HTTP server.
type Options struct {
	ListenAddress      string        `mapstructure:"listen"`
	FrontendDirectory  string        `mapstructure:"frontend_dir"`
	DistDirectory      string        `mapstructure:"dist_dir"`
	ExportDirectory    string        `mapstructure:"export_dir"`
	CleanupAfterExport bool          `mapstructure:"cleanup_after_export"`
	ShutdownTimeout    time.Duration `mapstructure:"shutdown_timeout"`
	Scheduler          bool          `mapstructure:"scheduler"`
	PendingOnStartup   bool          `mapstructure:"pending_on_startup"`
}

// Sanitize trims values and applies defaults.
func (options Options) Sanitize() Options {
	sanitized := options
	sanitized.ListenAddress = strings.TrimSpace(sanitized.ListenAddress)
	if len(sanitized.ListenAddress) == 0 {
		sanitized.ListenAddress = DefaultListenAddress
	}
	sanitized.FrontendDirectory = strings.TrimSpace(sanitized.FrontendDirectory)
	if len(sanitized.FrontendDirectory) == 0 {
		sanitized.FrontendDirectory = staticbuild.DefaultSourceDirectory
	}
	sanitized.DistDirectory = strings.TrimSpace(sanitized.DistDirectory)
	if len(sanitized.DistDirectory) == 0 {
		sanitized.DistDirectory = staticbuild.DefaultDestinationDirectory
	}
	sanitized.ExportDirectory = strings.TrimSpace(sanitized.ExportDirectory)
	if len(sanitized.ExportDirectory) == 0 {
		sanitized.ExportDirectory = export.DefaultOutputDirectory
	}
	if sanitized.ShutdownTimeout <= 0 {
		sanitized.ShutdownTimeout = DefaultShutdownTimeout
	}
	return sanitized
}
