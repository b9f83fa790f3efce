// Package console is the line-oriented front end: it reads questions from an
// input stream, runs them through a session and prints the dialogue.
package console

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/pterm/pterm"
	"golang.org/x/term"

	"github.com/askql/askql/internal/session"
)

// HistoryPreviewRows is how many preview rows :history prints per turn.
const HistoryPreviewRows = 2

type Options struct {
	// ConfirmBeforeExecute asks "Run this query? [Y/n]" after the gate passes.
	ConfirmBeforeExecute bool
	// MaxDisplayRows caps the printed result table. Zero prints every row.
	MaxDisplayRows int
}

type Console struct {
	session *session.Orchestrator
	reader  *bufio.Reader
	out     io.Writer
	opts    Options

	sqlShown bool
}

// New wires c as the session's confirmation policy when confirmation is on.
func New(s *session.Orchestrator, in io.Reader, out io.Writer, opts Options) *Console {
	c := &Console{
		session: s,
		reader:  bufio.NewReader(in),
		out:     out,
		opts:    opts,
	}
	if opts.ConfirmBeforeExecute {
		s.Confirmer = c
	} else {
		s.Confirmer = session.AutoApprove
	}
	return c
}

// IsInteractive reports whether w is a terminal.
func IsInteractive(w io.Writer) bool {
	f, ok := w.(*os.File)
	if !ok {
		return false
	}
	return term.IsTerminal(int(f.Fd()))
}

// Run loops until exit, end of input or ctx cancellation. Only I/O failures
// are returned; per-turn failures are printed and the loop continues.
func (c *Console) Run(ctx context.Context) error {
	c.printSchema("Loaded schema:")
	pterm.Fprintln(c.out, "\nAsk questions (e.g., 'Top 5 countries by revenue', 'Which artists have the most tracks?').")
	pterm.Fprintln(c.out, "Type ':history' to view history, ':clear' to clear, ':schema' to reprint schema, or 'exit' to quit.")

	for {
		if err := ctx.Err(); err != nil {
			pterm.Fprintln(c.out, "\nExiting. Goodbye!")
			return nil
		}

		pterm.Fprint(c.out, "\nYour question: ")
		line, err := c.readLine()
		if err != nil {
			if errors.Is(err, io.EOF) {
				pterm.Fprintln(c.out, "\nExiting. Goodbye!")
				return nil
			}
			return fmt.Errorf("read question: %w", err)
		}

		switch strings.ToLower(line) {
		case "exit", "quit", "q":
			pterm.Fprintln(c.out, "Exiting. Goodbye!")
			return nil
		case ":history":
			c.printHistory()
			continue
		case ":clear":
			c.session.ClearHistory()
			pterm.Fprintln(c.out, "History cleared.")
			continue
		case ":schema":
			c.printSchema("\nSchema:")
			continue
		case "":
			pterm.Fprintln(c.out, "No question provided. Try again.")
			continue
		}

		c.sqlShown = false
		result, err := c.session.Ask(ctx, line)
		if err != nil && errors.Is(err, io.EOF) {
			pterm.Fprintln(c.out, "\nExiting. Goodbye!")
			return nil
		}
		c.printTurn(result, err)
	}
}

// Once asks a single question without the loop, for scripted use.
func (c *Console) Once(ctx context.Context, question string) (session.TurnResult, error) {
	c.sqlShown = false
	result, err := c.session.Ask(ctx, question)
	if errors.Is(err, session.ErrEmptyQuestion) {
		pterm.Fprintln(c.out, "No question provided.")
		return result, err
	}
	c.printTurn(result, err)
	return result, err
}

// Confirm prints the candidate and waits for an answer. Empty input, "y" and
// "yes" approve.
func (c *Console) Confirm(_ context.Context, sql string) (bool, error) {
	c.printSQL(sql)
	pterm.Fprint(c.out, "\nRun this query? [Y/n]: ")
	answer, err := c.readLine()
	if err != nil {
		return false, err
	}
	return ParseConfirmation(answer), nil
}

func ParseConfirmation(answer string) bool {
	switch strings.ToLower(strings.TrimSpace(answer)) {
	case "", "y", "yes":
		return true
	default:
		return false
	}
}

// readLine returns the trimmed line. A final line without a newline is
// returned before io.EOF is reported on the next call.
func (c *Console) readLine() (string, error) {
	line, err := c.reader.ReadString('\n')
	if err != nil {
		if errors.Is(err, io.EOF) && line != "" {
			return strings.TrimSpace(line), nil
		}
		return "", err
	}
	return strings.TrimSpace(line), nil
}
