// Package ui renders git publishing progress as short console lines when
// console logging is selected, while the structured logger keeps the full
// command details.
package ui
