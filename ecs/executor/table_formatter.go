package executor

import (
	"fmt"
	"reflect"
	"strings"
	"unicode/utf8"

	"github.com/olekukonko/tablewriter"
	"github.com/olekukonko/tablewriter/renderer"
	"github.com/olekukonko/tablewriter/tw"
	"github.com/wbrown/janus-ecs/ecs/fields"
)

// TableFormatter renders query results as markdown tables
type TableFormatter struct {
	// MaxWidth is the maximum width of a cell
	MaxWidth int
	// TruncateString is appended to truncated cells
	TruncateString string
}

// NewTableFormatter creates a table formatter with default settings
func NewTableFormatter() *TableFormatter {
	return &TableFormatter{
		MaxWidth:       40,
		TruncateString: "...",
	}
}

// FormatQuery iterates q and renders one row per matched entity with one
// column per field. Variables are appended as extra columns.
func (tf *TableFormatter) FormatQuery(q *Query) (string, error) {
	return tf.FormatIterable(q.Iter())
}

// FormatIterable is FormatQuery for an iterable with bound variables
func (tf *TableFormatter) FormatIterable(it *Iterable) (string, error) {
	q := it.q
	headers := tf.headers(q)
	var rows [][]string
	err := it.EachIter(func(i *Iter, row int, _ *fields.Tuple) {
		rows = append(rows, tf.row(i, row))
	})
	if err != nil {
		return "", err
	}
	return tf.formatTable(headers, rows), nil
}

func (tf *TableFormatter) headers(q *Query) []string {
	headers := []string{"entity"}
	for i := 0; i < q.FieldCount(); i++ {
		if i < len(q.options.Columns) {
			headers = append(headers, q.options.Columns[i])
			continue
		}
		headers = append(headers, q.plan.FieldTerm(i).String())
	}
	for _, v := range q.plan.Vars[1:] {
		headers = append(headers, "$"+v)
	}
	return headers
}

func (tf *TableFormatter) row(it *Iter, row int) []string {
	w := it.world
	cells := []string{"-"}
	if e := it.Entity(row); e != 0 {
		cells[0] = w.Name(e)
	}
	for i := 0; i < it.q.FieldCount(); i++ {
		switch {
		case !it.IsSet(i):
			cells = append(cells, "-")
		case it.hasData(it.ID(i)):
			cells = append(cells, tf.formatValue(it.FieldAt(i, row)))
		default:
			cells = append(cells, w.IDString(it.ID(i)))
		}
	}
	for v := 1; v < len(it.q.plan.Vars); v++ {
		cells = append(cells, w.Name(it.GetVar(v)))
	}
	return cells
}

func (tf *TableFormatter) formatTable(headers []string, rows [][]string) string {
	if len(rows) == 0 {
		return fmt.Sprintf("_Columns: %v_\n\n_No rows_", headers)
	}
	sb := &strings.Builder{}

	alignment := make([]tw.Align, len(headers))
	for i := range alignment {
		alignment[i] = tw.AlignNone
	}
	table := tablewriter.NewTable(sb,
		tablewriter.WithRenderer(renderer.NewMarkdown()),
		tablewriter.WithAlignment(alignment),
		tablewriter.WithHeaderAutoFormat(tw.Off),
	)
	table.Header(headers)
	for _, r := range rows {
		table.Append(r)
	}
	table.Render()

	fmt.Fprintf(sb, "\n_%d rows_\n", len(rows))
	return sb.String()
}

// formatValue dereferences a *T field pointer and prints the value
func (tf *TableFormatter) formatValue(ptr any) string {
	if ptr == nil {
		return "nil"
	}
	v := reflect.ValueOf(ptr)
	if v.Kind() == reflect.Pointer {
		if v.IsNil() {
			return "nil"
		}
		v = v.Elem()
	}
	var s string
	switch val := v.Interface().(type) {
	case float32, float64:
		s = fmt.Sprintf("%.2f", val)
	case fmt.Stringer:
		s = val.String()
	default:
		s = fmt.Sprintf("%+v", val)
	}
	return tf.truncate(s)
}

// truncate shortens s to MaxWidth runes
func (tf *TableFormatter) truncate(s string) string {
	if tf.MaxWidth <= 0 {
		return s
	}
	runes := []rune(s)
	if len(runes) <= tf.MaxWidth {
		return s
	}
	cut := tf.MaxWidth - utf8.RuneCountInString(tf.TruncateString)
	if cut < 0 {
		cut = 0
	}
	return string(runes[:cut]) + tf.TruncateString
}
