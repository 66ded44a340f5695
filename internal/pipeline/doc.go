// Package pipeline runs the unattended digest cycle as an ordered list of steps
// (window regeneration, fetch, analysis, export, publish, cleanup) and schedules it with cron.
package pipeline
