// Package clog wires up the process-wide logger and the colorized
// status/error/warning lines the CLI prints, keyed off the root
// command's -l/--level count flag.
package clog

import (
	"fmt"
	"os"

	"github.com/fatih/color"
	"github.com/hashicorp/go-hclog"
	"github.com/mattn/go-isatty"
)

// New returns the root logger. level follows the -l/--level CountVarP
// convention: 0 = info, 1 = debug, 2+ = trace.
func New(level int, noColor bool) hclog.Logger {
	hclevel := hclog.Info
	switch {
	case level >= 2:
		hclevel = hclog.Trace
	case level == 1:
		hclevel = hclog.Debug
	}
	colorOpt := hclog.ColorOff
	if !noColor && isatty.IsTerminal(os.Stdout.Fd()) {
		colorOpt = hclog.AutoColor
	}
	return hclog.New(&hclog.LoggerOptions{
		Name:   "towpath",
		Level:  hclevel,
		Color:  colorOpt,
		Output: os.Stderr,
	})
}

// UI formats user-facing status/error/warning lines.
type UI struct {
	NoColor bool
}

// Error prints a red-prefixed error line to stderr.
func (u UI) Error(msg string) {
	fmt.Fprintln(os.Stderr, u.paint(color.FgRed, "✖ ")+msg)
}

// Warn prints a yellow-prefixed warning line to stderr.
func (u UI) Warn(msg string) {
	fmt.Fprintln(os.Stderr, u.paint(color.FgYellow, "⚠ ")+msg)
}

// Info prints a plain status line to stdout.
func (u UI) Info(msg string) {
	fmt.Fprintln(os.Stdout, msg)
}

func (u UI) paint(attr color.Attribute, prefix string) string {
	if u.NoColor {
		return prefix
	}
	return color.New(attr, color.Bold).Sprint(prefix)
}
