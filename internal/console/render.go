package console

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/pterm/pterm"

	"github.com/askql/askql/internal/export"
	"github.com/askql/askql/internal/nl2sql"
	"github.com/askql/askql/internal/query"
	"github.com/askql/askql/internal/session"
)

func (c *Console) printSQL(sql string) {
	if c.sqlShown {
		return
	}
	c.sqlShown = true
	pterm.Fprintln(c.out, "\n--- Generated SQL ---")
	pterm.Fprintln(c.out, sql)
}

func (c *Console) printTurn(result session.TurnResult, err error) {
	if result.SQL != "" {
		c.printSQL(result.SQL)
	}

	switch result.Status {
	case session.StatusBlocked:
		pterm.Fprintln(c.out, "\n[BLOCKED] The generated SQL is not a single safe SELECT statement.")
		pterm.Warning.WithWriter(c.out).Println(result.Decision.Message())
		return
	case session.StatusCancelled:
		pterm.Fprintln(c.out, "Canceled.")
		return
	case session.StatusFailed:
		c.printFailure(err)
		return
	}
	if err != nil {
		c.printFailure(err)
		return
	}

	pterm.Fprintln(c.out, "\n--- Results ---")
	rows := result.Rows
	if c.opts.MaxDisplayRows > 0 && len(rows) > c.opts.MaxDisplayRows {
		rows = rows[:c.opts.MaxDisplayRows]
	}
	if len(result.Rows) == 0 {
		pterm.Fprintln(c.out, "(no rows)")
	} else {
		pterm.Fprintln(c.out, export.MarkdownTable(result.Columns, rows))
	}
	if hidden := len(result.Rows) - len(rows); hidden > 0 {
		pterm.Fprintln(c.out, fmt.Sprintf("... %s more rows not shown", humanize.Comma(int64(hidden))))
	}
	pterm.Fprintln(c.out, fmt.Sprintf("%s %s in %s", humanize.Comma(int64(len(result.Rows))), plural(len(result.Rows), "row", "rows"), result.Duration.Round(time.Millisecond)))

	if result.Explanation != "" {
		pterm.Fprintln(c.out, "\n--- Explanation ---")
		pterm.Fprintln(c.out, result.Explanation)
	}

	if result.Export != nil {
		for _, artifact := range result.Export.Artifacts {
			pterm.Info.WithWriter(c.out).Println(fmt.Sprintf("Saved %s (%s)", artifact.Location, humanize.Bytes(uint64(artifact.Size))))
		}
	}
	if result.ExportError != "" {
		pterm.Warning.WithWriter(c.out).Println("Export failed: " + result.ExportError)
	}
}

func (c *Console) printFailure(err error) {
	if err == nil {
		return
	}
	var execErr *query.ExecutionError
	switch {
	case errors.Is(err, nl2sql.ErrGenerationUnavailable):
		pterm.Error.WithWriter(c.out).Println("SQL generation failed: " + err.Error())
	case errors.As(err, &execErr):
		pterm.Error.WithWriter(c.out).Println("Query failed: " + execErr.Err.Error())
	default:
		pterm.Error.WithWriter(c.out).Println(err.Error())
	}
}

func (c *Console) printHistory() {
	turns := c.session.RecentTurns()
	if len(turns) == 0 {
		pterm.Fprintln(c.out, "(no history)")
		return
	}
	pterm.Fprintln(c.out, "\n--- History (last turns) ---")
	for i, turn := range turns {
		preview := turn.Preview
		if len(preview) > HistoryPreviewRows {
			preview = preview[:HistoryPreviewRows]
		}
		raw, err := json.Marshal(preview)
		if err != nil {
			raw = []byte(fmt.Sprint(preview))
		}
		pterm.Fprintln(c.out, fmt.Sprintf("%d. Q: %s\n   SQL: %s\n   Preview: %s\n", i+1, turn.Question, turn.SQL, raw))
	}
}

func (c *Console) printSchema(title string) {
	pterm.Fprintln(c.out, title)
	text := c.session.SchemaText
	lines := strings.Split(text, "\n")
	for i, line := range lines {
		if line != "" {
			lines[i] = "  " + line
		}
	}
	pterm.Fprintln(c.out, strings.Join(lines, "\n"))
}

func plural(n int, one, many string) string {
	if n == 1 {
		return one
	}
	return many
}
