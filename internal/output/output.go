// Package output provides formatted output for manifest execution.
package output

import (
	"fmt"
	"io"
	"strings"
	"time"
)

// Colors for terminal output.
const (
	colorReset  = "\033[0m"
	colorRed    = "\033[31m"
	colorGreen  = "\033[32m"
	colorYellow = "\033[33m"
	colorBlue   = "\033[34m"
	colorCyan   = "\033[36m"
	colorGray   = "\033[90m"
	colorBold   = "\033[1m"
)

// Step statuses understood by StepResult.
const (
	StatusOK      = "ok"
	StatusFailed  = "failed"
	StatusSpawned = "spawned"
	StatusTimeout = "timeout"
	StatusSkipped = "skipped"
)

// Stats holds execution statistics for output.
type Stats interface {
	GetOK() int
	GetFailed() int
	GetSpawned() int
	GetDuration() time.Duration
}

// Output handles formatted output.
type Output struct {
	w        io.Writer
	useColor bool
	debug    bool
}

// New creates a new output handler.
func New(w io.Writer) *Output {
	return &Output{
		w:        w,
		useColor: true,
	}
}

// SetColor enables or disables color output.
func (o *Output) SetColor(enabled bool) {
	o.useColor = enabled
}

// SetDebug enables or disables debug output.
func (o *Output) SetDebug(enabled bool) {
	o.debug = enabled
}

// color returns the string wrapped in color codes if enabled.
func (o *Output) color(c, s string) string {
	if !o.useColor {
		return s
	}
	return c + s + colorReset
}

// ManifestStart prints the manifest start banner.
func (o *Output) ManifestStart(path string) {
	o.printf("\n%s %s\n", o.color(colorBold, "MANIFEST"), path)
	if o.debug {
		o.printf("%s\n", strings.Repeat("-", 60))
	}
}

// ManifestEnd prints the run summary.
func (o *Output) ManifestEnd(stats Stats) {
	o.printf("\n%s ", o.color(colorBold, "RECAP"))

	ok := o.color(colorGreen, fmt.Sprintf("ok=%d", stats.GetOK()))
	failed := o.color(colorRed, fmt.Sprintf("failed=%d", stats.GetFailed()))
	spawned := o.color(colorCyan, fmt.Sprintf("spawned=%d", stats.GetSpawned()))

	o.printf("%s %s %s", ok, failed, spawned)
	o.printf(" %s\n", o.color(colorGray, fmt.Sprintf("(%.2fs)", stats.GetDuration().Seconds())))
}

// StepResult prints the step result in a single line.
// Format: [indicator] step name, with details on a second line in
// debug mode.
func (o *Output) StepResult(name, status, message string) {
	var indicator string
	var statusColor string

	switch status {
	case StatusOK:
		indicator = "✓"
		statusColor = colorGreen
	case StatusSpawned:
		indicator = "»"
		statusColor = colorCyan
	case StatusSkipped:
		indicator = "○"
		statusColor = colorCyan
	case StatusFailed, StatusTimeout:
		indicator = "✗"
		statusColor = colorRed
	default:
		indicator = "?"
		statusColor = colorGray
	}

	o.printf("  %s %s\n", o.color(statusColor, indicator), name)

	if o.debug && message != "" {
		o.printf("    %s %s\n", o.color(colorGray, "→"), message)
	}
}

// StepStream prints one captured stream of a step, indented, in debug
// mode only.
func (o *Output) StepStream(name string, data []byte) {
	if !o.debug {
		return
	}
	text := strings.TrimSpace(string(data))
	if text == "" {
		return
	}
	o.printf("      %s\n", o.color(colorGray, name+":"))
	for _, line := range strings.Split(text, "\n") {
		o.printf("        %s\n", line)
	}
}

// Section prints a section header.
func (o *Output) Section(name string) {
	o.printf("\n%s\n", o.color(colorBold, name))
}

// Info prints an informational message.
func (o *Output) Info(format string, args ...any) {
	o.printf("%s %s\n", o.color(colorBlue, "INFO"), fmt.Sprintf(format, args...))
}

// Warn prints a warning message.
func (o *Output) Warn(format string, args ...any) {
	o.printf("%s %s\n", o.color(colorYellow, "WARN"), fmt.Sprintf(format, args...))
}

// Error prints an error message.
func (o *Output) Error(format string, args ...any) {
	o.printf("%s %s\n", o.color(colorRed, "ERROR"), fmt.Sprintf(format, args...))
}

// Debug prints a debug message (only in debug mode).
func (o *Output) Debug(format string, args ...any) {
	if o.debug {
		o.printf("%s %s\n", o.color(colorGray, "DEBUG"), fmt.Sprintf(format, args...))
	}
}

func (o *Output) printf(format string, args ...any) {
	fmt.Fprintf(o.w, format, args...)
}

// DiagWriter returns a writer for the remote package's diagnostic
// lines. Each line of the form "user@host: cmd" is reprinted with the
// endpoint in blue and the command in yellow; lines without a command
// part are printed all in blue.
func (o *Output) DiagWriter() io.Writer {
	return diagWriter{o}
}

type diagWriter struct {
	o *Output
}

func (d diagWriter) Write(p []byte) (int, error) {
	line := strings.TrimSuffix(string(p), "\n")
	if i := strings.Index(line, ": "); i >= 0 {
		d.o.printf("%s%s %s\n",
			d.o.color(colorBlue, line[:i]),
			d.o.color(colorBlue, ":"),
			d.o.color(colorYellow, line[i+2:]))
	} else {
		d.o.printf("%s\n", d.o.color(colorBlue, line))
	}
	return len(p), nil
}
