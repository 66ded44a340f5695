// Package execshell provides structured helpers for invoking external tools.
//
// ShellExecutor wraps a CommandRunner with zap logging and typed failures,
// and OSCommandRunner is the os/exec backed runner. The publishing pipeline
// drives git through this package so every clone, commit and push is logged
// without exposing credentials passed through the environment.
package execshell
