// Package logging builds the process logger and the console banner.
package logging

import (
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/fatih/color"
)

// New returns a logger writing to w at level in the given format, "text" or
// "json".
func New(w io.Writer, level slog.Level, format string) *slog.Logger {
	opts := &slog.HandlerOptions{Level: level}
	var h slog.Handler
	if strings.EqualFold(format, "json") {
		h = slog.NewJSONHandler(w, opts)
	} else {
		h = slog.NewTextHandler(w, opts)
	}
	return slog.New(h)
}

// Banner prints the startup line shown on the console.
func Banner(w io.Writer, addr, root string, mimeTypes int) {
	color.New(color.FgGreen, color.Bold).Fprintf(w, "Serving %s on %s", root, addr)
	fmt.Fprintf(w, " (%d MIME extensions)\n", mimeTypes)
	fmt.Fprintln(w, "Press Ctrl+C to stop")
}
