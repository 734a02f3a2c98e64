package errors

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"sync/atomic"

	"github.com/goccy/go-json"
	"github.com/hashicorp/go-multierror"
)

// ANSI escape sequences used by the terminal renderer.
const (
	ansiReset = "\033[0m"
	ansiBold  = "\033[1m"
	ansiRed   = "\033[31m"
	ansiCyan  = "\033[36m"
	ansiWhite = "\033[37m"
	ansiDim   = "\033[90m"
)

var plain atomic.Bool

// DisableColors turns off ANSI escapes in formatted output.
func DisableColors() { plain.Store(true) }

// EnableColors turns ANSI escapes back on.
func EnableColors() { plain.Store(false) }

func paint(text string, codes ...string) string {
	if plain.Load() || len(codes) == 0 {
		return text
	}
	return strings.Join(codes, "") + text + ansiReset
}

func red(text string) string { return paint(text, ansiRed) }

// renderer accumulates the terminal form of a coded error.
type renderer struct {
	strings.Builder
}

func (r *renderer) line(indent int, parts ...string) {
	r.WriteString(strings.Repeat(" ", indent))
	for _, p := range parts {
		r.WriteString(p)
	}
	r.WriteByte('\n')
}

func (r *renderer) blank() { r.WriteByte('\n') }

func (r *renderer) header(e *Error) {
	r.blank()
	label := "ERROR: "
	code := ""
	if e.Code != "" {
		label = "ERROR "
		code = paint(e.Code+": ", ansiBold, ansiWhite)
	}
	r.line(0, paint(label, ansiBold, ansiRed), code, paint(e.Message, ansiWhite))
	r.blank()
}

// snippet prints the context lines centered on loc, marking the failing
// line and, when known, the column.
func (r *renderer) snippet(loc *Location, context []string) {
	first := loc.Line - len(context)/2
	gutter := paint(" │ ", ansiDim)
	for i, text := range context {
		n := first + i
		if n != loc.Line {
			r.line(4, fmt.Sprintf("%4d", n), gutter, text)
			continue
		}
		r.line(2, paint("→ ", ansiRed), fmt.Sprintf("%4d", n), gutter, text)
		if loc.Column > 0 {
			r.line(7, paint("│ ", ansiDim), strings.Repeat(" ", loc.Column-1), paint("^", ansiRed))
		}
	}
	r.blank()
}

func (r *renderer) section(title, body string) {
	r.line(2, paint(title+":", ansiCyan))
	for _, l := range strings.Split(body, "\n") {
		r.line(4, l)
	}
	r.blank()
}

// Format renders the error for a terminal: header, source location with
// surrounding lines, wrapped detail, hint and example.
func (e *Error) Format() string {
	var r renderer
	r.header(e)

	if loc := e.Location; loc != nil {
		r.line(2, paint(loc.String(), ansiCyan))
		r.blank()
		if len(e.Context) > 0 {
			r.snippet(loc, e.Context)
		}
	}

	if lines := wrapText(e.Detail, 70); len(lines) > 0 {
		for _, l := range lines {
			r.line(2, l)
		}
		r.blank()
	}
	if e.Suggestion != "" {
		r.line(2, paint("Hint: ", ansiCyan), e.Suggestion)
		r.blank()
	}
	if e.Example != "" {
		r.section("Example", e.Example)
	}
	return r.String()
}

// FormatCompact renders the error as "file:line:col: CODE: message".
func (e *Error) FormatCompact() string {
	parts := make([]string, 0, 3)
	if e.Location != nil {
		parts = append(parts, e.Location.String())
	}
	if e.Code != "" {
		parts = append(parts, e.Code)
	}
	return strings.Join(append(parts, e.Message), ": ")
}

type wireLocation struct {
	File   string `json:"file"`
	Line   int    `json:"line"`
	Column int    `json:"column,omitempty"`
}

type wireError struct {
	Code       string        `json:"code,omitempty"`
	Category   Category      `json:"category"`
	Message    string        `json:"message"`
	Detail     string        `json:"detail,omitempty"`
	Location   *wireLocation `json:"location,omitempty"`
	Suggestion string        `json:"suggestion,omitempty"`
	Cause      string        `json:"cause,omitempty"`
}

// FormatJSON renders the error as a single JSON object.
func (e *Error) FormatJSON() string {
	w := wireError{
		Code:       e.Code,
		Category:   e.Category,
		Message:    e.Message,
		Detail:     e.Detail,
		Suggestion: e.Suggestion,
	}
	if loc := e.Location; loc != nil {
		w.Location = &wireLocation{loc.File, loc.Line, loc.Column}
	}
	if e.Wrapped != nil {
		w.Cause = e.Wrapped.Error()
	}
	out, err := json.Marshal(w)
	if err != nil {
		return fmt.Sprintf(`{"message":%q}`, e.Message)
	}
	return string(out)
}

// wrapText greedily fills lines of at most width bytes. A single word
// longer than width gets a line of its own.
func wrapText(text string, width int) []string {
	words := strings.Fields(text)
	if len(words) == 0 {
		return nil
	}
	var lines []string
	cur := words[0]
	for _, w := range words[1:] {
		if len(cur)+1+len(w) > width {
			lines = append(lines, cur)
			cur = w
			continue
		}
		cur += " " + w
	}
	return append(lines, cur)
}

// PrintError writes err to stderr in terminal form.
func PrintError(err error) {
	Fprint(os.Stderr, err)
}

// Fprint writes err to w. Each member of an aggregated error is printed
// separately; a coded error also shows its cause.
func Fprint(w io.Writer, err error) {
	var merr *multierror.Error
	if errors.As(err, &merr) && len(merr.Errors) > 1 {
		for _, member := range merr.Errors {
			Fprint(w, member)
		}
		return
	}

	var coded *Error
	if !errors.As(err, &coded) {
		fmt.Fprintf(w, "\n%s %s\n\n", paint("ERROR:", ansiBold, ansiRed), err)
		return
	}
	io.WriteString(w, coded.Format())
	if coded.Wrapped != nil {
		fmt.Fprintf(w, "  %s %s\n\n", paint("Cause:", ansiDim), coded.Wrapped)
	}
}
