package main

import (
	"fmt"
	"io"
	"strings"

	"github.com/fatih/color"
)

var (
	successColor = color.New(color.FgGreen, color.Bold)
	errorColor   = color.New(color.FgRed, color.Bold)
	warningColor = color.New(color.FgYellow, color.Bold)
	infoColor    = color.New(color.FgCyan)
	titleColor   = color.New(color.FgMagenta, color.Bold)
)

func printSuccess(w io.Writer, format string, args ...any) {
	successColor.Fprintf(w, "✓ "+format+"\n", args...)
}

func printError(w io.Writer, format string, args ...any) {
	errorColor.Fprintf(w, "✗ "+format+"\n", args...)
}

func printWarning(w io.Writer, format string, args ...any) {
	warningColor.Fprintf(w, "! "+format+"\n", args...)
}

func printInfo(w io.Writer, format string, args ...any) {
	infoColor.Fprintf(w, format+"\n", args...)
}

func printTitle(w io.Writer, format string, args ...any) {
	title := fmt.Sprintf(format, args...)
	titleColor.Fprintln(w, title)
	titleColor.Fprintln(w, strings.Repeat("=", len([]rune(title))))
}

// maskKey shows only the last four characters of a key
func maskKey(key string) string {
	r := []rune(key)
	if len(r) <= 4 {
		return strings.Repeat("*", len(r))
	}
	return strings.Repeat("*", len(r)-4) + string(r[len(r)-4:])
}
