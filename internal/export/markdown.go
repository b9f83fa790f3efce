package export

import (
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/mattn/go-runewidth"
)

type Report struct {
	Question    string
	SQL         string
	Columns     []string
	Rows        [][]any
	Explanation string
}

// RenderReport lays out the human-readable companion of an exported query.
func RenderReport(r Report) string {
	sections := []string{
		"# Query: " + r.Question + "\n",
		"## SQL\n",
		"```sql\n" + r.SQL + "\n```\n",
		"## Results\n",
	}
	if len(r.Rows) > 0 {
		sections = append(sections, MarkdownTable(r.Columns, r.Rows)+"\n")
	} else {
		sections = append(sections, "(no rows)\n")
	}
	if r.Explanation != "" {
		sections = append(sections, "## Explanation\n"+r.Explanation+"\n")
	}
	return strings.Join(sections, "\n")
}

// MarkdownTable renders a GitHub flavoured pipe table. Numeric columns are
// right aligned and widths are measured in terminal cells.
func MarkdownTable(columns []string, rows [][]any) string {
	width := len(columns)
	for _, row := range rows {
		if len(row) > width {
			width = len(row)
		}
	}
	headers := make([]string, width)
	copy(headers, columns)

	cells := make([][]string, len(rows))
	numeric := make([]bool, width)
	for c := range numeric {
		numeric[c] = len(rows) > 0
	}
	for r, row := range rows {
		cells[r] = make([]string, width)
		for c := 0; c < width; c++ {
			var value any
			if c < len(row) {
				value = row[c]
			}
			cells[r][c] = FormatValue(value)
			if value != nil && !isNumber(value) {
				numeric[c] = false
			}
		}
	}

	widths := make([]int, width)
	for c := range widths {
		widths[c] = runewidth.StringWidth(headers[c])
		for r := range cells {
			if w := runewidth.StringWidth(cells[r][c]); w > widths[c] {
				widths[c] = w
			}
		}
	}

	var b strings.Builder
	writeLine := func(values []string) {
		b.WriteString("|")
		for c, value := range values {
			b.WriteString(" ")
			if numeric[c] {
				b.WriteString(runewidth.FillLeft(value, widths[c]))
			} else {
				b.WriteString(runewidth.FillRight(value, widths[c]))
			}
			b.WriteString(" |")
		}
		b.WriteString("\n")
	}

	writeLine(headers)
	b.WriteString("|")
	for c := range widths {
		b.WriteString(strings.Repeat("-", widths[c]+2))
		b.WriteString("|")
	}
	b.WriteString("\n")
	for _, row := range cells {
		writeLine(row)
	}
	return strings.TrimSuffix(b.String(), "\n")
}

// FormatValue renders a scanned database value for display. Pipes and line
// breaks are escaped so a value stays inside its table cell.
func FormatValue(value any) string {
	var out string
	switch typed := value.(type) {
	case nil:
		return ""
	case string:
		out = typed
	case []byte:
		out = string(typed)
	case float64:
		out = formatFloat(typed, 64)
	case float32:
		out = formatFloat(float64(typed), 32)
	case time.Time:
		out = typed.Format(time.RFC3339)
	case bool:
		out = strconv.FormatBool(typed)
	default:
		out = fmt.Sprint(typed)
	}
	out = strings.ReplaceAll(out, "|", `\|`)
	out = strings.ReplaceAll(out, "\r\n", " ")
	return strings.ReplaceAll(out, "\n", " ")
}

func formatFloat(v float64, bits int) string {
	if math.IsInf(v, 0) || math.IsNaN(v) {
		return strconv.FormatFloat(v, 'g', -1, bits)
	}
	return strconv.FormatFloat(v, 'f', -1, bits)
}

func isNumber(value any) bool {
	switch value.(type) {
	case int, int8, int16, int32, int64, uint, uint8, uint16, uint32, uint64, float32, float64:
		return true
	default:
		return false
	}
}
