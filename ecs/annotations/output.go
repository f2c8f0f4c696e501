package annotations

import (
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/fatih/color"
)

// OutputFormatter formats events for human-readable display
type OutputFormatter struct {
	useColor bool
	writer   io.Writer
}

// NewOutputFormatter creates a formatter, enabling color for terminals
func NewOutputFormatter(w io.Writer) *OutputFormatter {
	if w == nil {
		w = os.Stdout
	}
	useColor := false
	if f, ok := w.(*os.File); ok && (f == os.Stdout || f == os.Stderr) {
		useColor = !color.NoColor
	}
	return &OutputFormatter{useColor: useColor, writer: w}
}

// SetColor forces color output on or off
func (f *OutputFormatter) SetColor(on bool) {
	f.useColor = on
}

// Handle prints events as they occur
func (f *OutputFormatter) Handle(event Event) {
	if output := f.Format(event); output != "" {
		fmt.Fprintln(f.writer, output)
	}
}

// Format converts an event to a human-readable string
func (f *OutputFormatter) Format(event Event) string {
	latency := f.formatLatency(event.Latency)

	switch event.Name {
	case QueryBuilt:
		return fmt.Sprintf("%s %s Query %s built with %s",
			latency,
			f.colorize("===", color.FgGreen),
			truncateQuery(str(event.Data["query"])),
			f.colorizeCount("fields", num(event.Data["fields"])))

	case QueryBuildFailed:
		return fmt.Sprintf("%s %s Query %s failed: %v",
			latency,
			f.colorize("✗", color.FgRed),
			truncateQuery(str(event.Data["query"])),
			event.Data["error"])

	case QueryIterated:
		return fmt.Sprintf("%s Iterated %s with %s",
			latency,
			f.colorizeCount("batches", num(event.Data["batches"])),
			f.colorizeCount("rows", num(event.Data["rows"])))

	case QueryClosed:
		return fmt.Sprintf("%s Query %v closed", latency, event.Data["query.id"])

	case BatchResolved:
		return fmt.Sprintf("%s Batch %s %s path with %s",
			latency,
			str(event.Data["table"]),
			f.colorize(str(event.Data["path"]), color.FgCyan),
			f.colorizeCount("rows", num(event.Data["count"])))

	case CacheRebuilt:
		return fmt.Sprintf("%s Cache rebuilt: %s in %s",
			latency,
			f.colorizeCount("tables", num(event.Data["tables"])),
			f.colorizeCount("groups", num(event.Data["groups"])))

	case GroupCreated:
		return fmt.Sprintf("%s %s Group %v created", latency, f.colorize("+", color.FgGreen), event.Data["group"])

	case GroupDeleted:
		return fmt.Sprintf("%s %s Group %v deleted", latency, f.colorize("-", color.FgYellow), event.Data["group"])

	case DeferFlushed:
		errs := num(event.Data["errors"])
		if errs > 0 {
			return fmt.Sprintf("%s Flushed %s, %s",
				latency,
				f.colorizeCount("commands", num(event.Data["commands"])),
				f.colorize(fmt.Sprintf("%d failed", errs), color.FgRed))
		}
		return fmt.Sprintf("%s Flushed %s",
			latency,
			f.colorizeCount("commands", num(event.Data["commands"])))

	case ObserverTriggered:
		return fmt.Sprintf("%s Observer %s on %s for %s",
			latency,
			f.colorize(str(event.Data["event"]), color.FgCyan),
			str(event.Data["id"]),
			str(event.Data["entity"]))

	case ErrorReplay:
		return fmt.Sprintf("%s %s Replay of %s failed: %v",
			latency,
			f.colorize("✗", color.FgRed),
			str(event.Data["command"]),
			event.Data["error"])

	default:
		return fmt.Sprintf("%s %s %v", latency, event.Name, event.Data)
	}
}

// formatLatency formats a duration as [XXXms] or [XXXµs] with color coding
func (f *OutputFormatter) formatLatency(d time.Duration) string {
	if d < time.Millisecond {
		s := fmt.Sprintf("[%dµs]", d.Microseconds())
		if !f.useColor {
			return s
		}
		return color.GreenString(s)
	}

	ms := float64(d.Microseconds()) / 1000.0
	s := fmt.Sprintf("[%.1fms]", ms)
	if !f.useColor {
		return s
	}
	switch {
	case ms < 50:
		return color.GreenString(s)
	case ms < 200:
		return color.YellowString(s)
	default:
		return color.RedString(s)
	}
}

// colorizeCount formats a count with a label, colored by label
func (f *OutputFormatter) colorizeCount(label string, count int) string {
	text := fmt.Sprintf("%d %s", count, label)
	if !f.useColor {
		return text
	}
	switch label {
	case "rows", "commands":
		return color.MagentaString(text)
	case "batches", "tables":
		return color.CyanString(text)
	case "groups", "fields":
		return color.BlueString(text)
	default:
		return text
	}
}

func (f *OutputFormatter) colorize(text string, attrs ...color.Attribute) string {
	if !f.useColor {
		return text
	}
	return color.New(attrs...).Sprint(text)
}

// truncateQuery shortens long query expressions for display
func truncateQuery(query string) string {
	query = strings.Join(strings.Fields(query), " ")
	const maxLen = 80
	if len(query) <= maxLen {
		return query
	}
	return query[:maxLen-3] + "..."
}

func str(v any) string {
	if v == nil {
		return ""
	}
	if s, ok := v.(string); ok {
		return s
	}
	return fmt.Sprint(v)
}

func num(v any) int {
	switch n := v.(type) {
	case int:
		return n
	case int64:
		return int(n)
	case uint64:
		return int(n)
	}
	return 0
}

// ConsoleHandler creates a handler that prints formatted events to stdout
func ConsoleHandler() Handler {
	return NewOutputFormatter(os.Stdout).Handle
}
