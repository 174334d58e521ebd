package verbose

import (
	"fmt"
	"io"
	"os"
	"strings"
	"sync"

	"golang.org/x/term"
)

const prefix = "[verbose]"

const (
	ansiReset  = "\x1b[0m"
	ansiBold   = "\x1b[1m"
	ansiDim    = "\x1b[2m"
	ansiGray   = "\x1b[90m"
	ansiGreen  = "\x1b[32m"
	ansiRed    = "\x1b[31m"
	ansiBlue   = "\x1b[34m"
	ansiYellow = "\x1b[33m"
)

// Style selects the emphasis of a log line.
type Style int

const (
	StyleDefault Style = iota
	StyleStream
	StyleSuccess
	StyleWarning
	StyleError
)

// Logger writes prefixed diagnostic lines. A nil Logger discards everything.
type Logger struct {
	mu      sync.Mutex
	writer  io.Writer
	palette palette
}

// New returns a logger writing to w, or nil when w is nil.
func New(w io.Writer, noColor bool) *Logger {
	if w == nil {
		return nil
	}
	return &Logger{writer: w, palette: paletteFor(w, noColor)}
}

// Printf logs a default-styled line.
func (l *Logger) Printf(format string, args ...any) {
	l.Logf(StyleDefault, format, args...)
}

// Logf logs a line with the given style.
func (l *Logger) Logf(style Style, format string, args ...any) {
	if l == nil {
		return
	}
	line := fmt.Sprintf(format, args...)
	l.mu.Lock()
	defer l.mu.Unlock()
	fmt.Fprintf(l.writer, "%s %s\n", l.palette.prefix(prefix), l.palette.apply(style, line))
}

// Block logs a header followed by each line of body, truncated to limit bytes.
func (l *Logger) Block(header, body string, limit int) {
	if l == nil {
		return
	}
	l.Printf("%s", header)
	trimmed := Truncate(body, limit)
	if strings.TrimSpace(trimmed) == "" {
		return
	}
	for _, line := range strings.Split(trimmed, "\n") {
		l.Printf("%s", line)
	}
}

const truncationMarker = "\n... [truncated]"

// Truncate shortens text to at most limit bytes plus a marker.
func Truncate(text string, limit int) string {
	if limit <= 0 || len(text) <= limit {
		return text
	}
	return text[:limit] + truncationMarker
}

// Tee returns a logger that writes to every non-nil writer.
func Tee(noColor bool, writers ...io.Writer) *Logger {
	active := make([]io.Writer, 0, len(writers))
	for _, w := range writers {
		if w != nil {
			active = append(active, w)
		}
	}
	switch len(active) {
	case 0:
		return nil
	case 1:
		return New(active[0], noColor)
	default:
		// Styling is decided by the first writer; files never get ANSI codes
		// because they are not terminals.
		return &Logger{writer: io.MultiWriter(active...), palette: paletteFor(active[0], noColor || len(active) > 1)}
	}
}

type palette struct {
	enabled bool
}

func paletteFor(writer io.Writer, noColor bool) palette {
	if noColor {
		return palette{enabled: false}
	}
	return palette{enabled: ShouldStyle(writer)}
}

// ShouldStyle reports whether ANSI styling suits writer.
func ShouldStyle(writer io.Writer) bool {
	if writer == nil {
		return false
	}
	if os.Getenv("NO_COLOR") != "" || os.Getenv("TERM") == "dumb" {
		return false
	}
	if strings.EqualFold(os.Getenv("CLICOLOR"), "0") {
		return false
	}
	return IsTerminal(writer)
}

// IsTerminal reports whether writer is a TTY.
func IsTerminal(writer io.Writer) bool {
	if file, ok := writer.(*os.File); ok {
		return term.IsTerminal(int(file.Fd()))
	}
	if fder, ok := writer.(interface{ Fd() uintptr }); ok {
		return term.IsTerminal(int(fder.Fd()))
	}
	return false
}

func (p palette) prefix(text string) string {
	if !p.enabled {
		return text
	}
	return ansiDim + ansiGray + text + ansiReset
}

func (p palette) apply(style Style, text string) string {
	if !p.enabled {
		return text
	}
	switch style {
	case StyleStream:
		return ansiBold + ansiBlue + text + ansiReset
	case StyleSuccess:
		return ansiBold + ansiGreen + text + ansiReset
	case StyleWarning:
		return ansiYellow + text + ansiReset
	case StyleError:
		return ansiBold + ansiRed + text + ansiReset
	default:
		return text
	}
}
