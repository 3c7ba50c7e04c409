package main

import (
	"fmt"
	"io"
	"os"

	"github.com/fatih/color"
)

// stderr receives status output; tests swap it.
var stderr io.Writer = os.Stderr

func colorize(text string, attrs ...color.Attribute) string {
	if noColor {
		return text
	}
	c := color.New(attrs...)
	c.EnableColor()
	return c.Sprint(text)
}

func printSuccess(format string, args ...any) {
	msg := fmt.Sprintf(format, args...)
	fmt.Fprintln(stderr, colorize("✓ "+msg, color.FgGreen))
}

func printError(format string, args ...any) {
	msg := fmt.Sprintf(format, args...)
	fmt.Fprintln(stderr, colorize("✗ "+msg, color.FgRed))
}

func printWarning(format string, args ...any) {
	msg := fmt.Sprintf(format, args...)
	fmt.Fprintln(stderr, colorize("⚠ "+msg, color.FgYellow))
}

func printStatus(label string, format string, args ...any) {
	val := fmt.Sprintf(format, args...)
	l := colorize(label+":", color.Bold)
	fmt.Fprintf(stderr, "  %s %s\n", l, val)
}

func printStep(format string, args ...any) {
	msg := fmt.Sprintf(format, args...)
	fmt.Fprintln(stderr, colorize("→ "+msg, color.FgCyan))
}
