// Package ui formats console output for the makerkit CLI.
package ui

import (
	"fmt"
	"io"
	"os"
	"runtime"
	"strings"

	"golang.org/x/term"
)

// OutputFormatter handles formatted console output with colors
type OutputFormatter struct {
	writer    io.Writer
	useColors bool
}

// ANSI color codes
const (
	colorReset  = "\033[0m"
	colorRed    = "\033[31m"
	colorGreen  = "\033[32m"
	colorYellow = "\033[33m"
	colorCyan   = "\033[36m"
	colorBold   = "\033[1m"
)

// NewOutputFormatter creates a new OutputFormatter
func NewOutputFormatter(w io.Writer) *OutputFormatter {
	if w == nil {
		w = os.Stdout
	}
	return &OutputFormatter{writer: w, useColors: colorsEnabled(w)}
}

func colorsEnabled(w io.Writer) bool {
	// Windows consoles outside Windows Terminal do not render ANSI
	if runtime.GOOS == "windows" && os.Getenv("WT_SESSION") == "" {
		return false
	}
	if os.Getenv("NO_COLOR") != "" {
		return false
	}
	f, ok := w.(*os.File)
	return ok && term.IsTerminal(int(f.Fd()))
}

// Writer returns the underlying writer.
func (o *OutputFormatter) Writer() io.Writer {
	return o.writer
}

// Success prints a success message with green checkmark
func (o *OutputFormatter) Success(msg string) {
	if o.useColors {
		fmt.Fprintf(o.writer, "%s✓%s %s\n", colorGreen, colorReset, msg)
	} else {
		fmt.Fprintf(o.writer, "✓ %s\n", msg)
	}
}

// Error prints an error message with red cross
func (o *OutputFormatter) Error(msg string) {
	if o.useColors {
		fmt.Fprintf(o.writer, "%s✗%s %s\n", colorRed, colorReset, msg)
	} else {
		fmt.Fprintf(o.writer, "✗ %s\n", msg)
	}
}

// Warning prints a warning message
func (o *OutputFormatter) Warning(msg string) {
	if o.useColors {
		fmt.Fprintf(o.writer, "%s!%s %s\n", colorYellow, colorReset, msg)
	} else {
		fmt.Fprintf(o.writer, "! %s\n", msg)
	}
}

// Info prints an info message
func (o *OutputFormatter) Info(msg string) {
	fmt.Fprintln(o.writer, msg)
}

// Field prints an aligned "label: value" line.
func (o *OutputFormatter) Field(label, value string) {
	fmt.Fprintf(o.writer, "  %-12s %s\n", label+":", value)
}

// List prints items as an indented bullet list.
func (o *OutputFormatter) List(items []string) {
	for _, item := range items {
		fmt.Fprintf(o.writer, "  - %s\n", item)
	}
}

// Diff prints a unified-style diff, coloring added and removed lines.
func (o *OutputFormatter) Diff(diff string) {
	for _, line := range strings.SplitAfter(diff, "\n") {
		if line == "" {
			continue
		}
		switch {
		case !o.useColors:
			fmt.Fprint(o.writer, line)
		case strings.HasPrefix(line, "+"):
			fmt.Fprint(o.writer, colorGreen+strings.TrimSuffix(line, "\n")+colorReset+"\n")
		case strings.HasPrefix(line, "-"):
			fmt.Fprint(o.writer, colorRed+strings.TrimSuffix(line, "\n")+colorReset+"\n")
		default:
			fmt.Fprint(o.writer, line)
		}
	}
}

// Bold returns the string wrapped in bold formatting
func (o *OutputFormatter) Bold(s string) string {
	if o.useColors {
		return colorBold + s + colorReset
	}
	return s
}

// Cyan returns the string wrapped in cyan formatting
func (o *OutputFormatter) Cyan(s string) string {
	if o.useColors {
		return colorCyan + s + colorReset
	}
	return s
}
