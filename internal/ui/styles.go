// Package ui renders colored terminal output for the bw CLI.
package ui

import (
	"fmt"
	"strings"
)

// ANSI256 color codes matching the Ayu palette.
const (
	colorAccent = 74  // blue
	colorOK     = 114 // green
	colorWarn   = 179 // amber
	colorMuted  = 245 // medium gray
)

var noColor bool

func paint(code int, s string) string {
	if noColor {
		return s
	}
	return fmt.Sprintf("\x1b[38;5;%dm%s\x1b[0m", code, s)
}

// RenderAccent returns s in the accent (blue) color. Used for session IDs.
func RenderAccent(s string) string { return paint(colorAccent, s) }

// RenderOK returns s in green.
func RenderOK(s string) string { return paint(colorOK, s) }

// RenderWarn returns s in amber.
func RenderWarn(s string) string { return paint(colorWarn, s) }

// RenderMuted returns s in the muted (gray) color.
func RenderMuted(s string) string { return paint(colorMuted, s) }

// RenderTopic colors an event topic by what it reports: arrivals and accepted
// tags green, duplicates amber, ignored reads gray, departures blue.
func RenderTopic(topic string) string {
	switch {
	case strings.HasSuffix(topic, ".arrived"), strings.HasSuffix(topic, ".accepted"):
		return RenderOK(topic)
	case strings.HasSuffix(topic, ".duplicate"):
		return RenderWarn(topic)
	case strings.HasSuffix(topic, ".ignored"):
		return RenderMuted(topic)
	default:
		return RenderAccent(topic)
	}
}

// RenderPresence renders the presence flag as a word.
func RenderPresence(present bool) string {
	if present {
		return RenderOK("present")
	}
	return RenderMuted("absent")
}

// ForceNoColor disables color output globally.
func ForceNoColor() {
	noColor = true
}
