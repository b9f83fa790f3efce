// Package history keeps the ordered log of completed turns that gives the SQL
// generator conversational context.
package history

import (
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"
)

// PreviewRows is the number of result rows a turn carries into prompts.
const PreviewRows = 3

type Turn struct {
	Question string    `json:"question"`
	SQL      string    `json:"sql"`
	Preview  [][]any   `json:"preview"`
	Columns  []string  `json:"columns,omitempty"`
	AskedAt  time.Time `json:"asked_at"`
}

// Buffer is append-only: turns are never edited or removed one by one, only
// cleared as a whole. Storage is unbounded; views are bounded.
type Buffer struct {
	mu    sync.RWMutex
	turns []Turn
}

func NewBuffer() *Buffer {
	return &Buffer{}
}

// Append stores a copy of turn with its preview cut to PreviewRows.
func (b *Buffer) Append(turn Turn) {
	stored := Turn{
		Question: turn.Question,
		SQL:      turn.SQL,
		Preview:  copyRows(turn.Preview, PreviewRows),
		Columns:  append([]string(nil), turn.Columns...),
		AskedAt:  turn.AskedAt,
	}
	if stored.AskedAt.IsZero() {
		stored.AskedAt = time.Now().UTC()
	}

	b.mu.Lock()
	b.turns = append(b.turns, stored)
	b.mu.Unlock()
}

func (b *Buffer) Clear() {
	b.mu.Lock()
	b.turns = nil
	b.mu.Unlock()
}

func (b *Buffer) Len() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.turns)
}

// ContextView returns at most maxTurns of the most recent turns, oldest first.
func (b *Buffer) ContextView(maxTurns int) []Turn {
	if maxTurns <= 0 {
		return []Turn{}
	}

	b.mu.RLock()
	defer b.mu.RUnlock()

	start := len(b.turns) - maxTurns
	if start < 0 {
		start = 0
	}
	out := make([]Turn, 0, len(b.turns)-start)
	for _, turn := range b.turns[start:] {
		out = append(out, Turn{
			Question: turn.Question,
			SQL:      turn.SQL,
			Preview:  copyRows(turn.Preview, PreviewRows),
			Columns:  append([]string(nil), turn.Columns...),
			AskedAt:  turn.AskedAt,
		})
	}
	return out
}

// Render formats ContextView(maxTurns) as prompt text. An empty view renders
// as the empty string so callers can omit the history section entirely.
func (b *Buffer) Render(maxTurns int) string {
	return RenderTurns(b.ContextView(maxTurns))
}

func RenderTurns(turns []Turn) string {
	if len(turns) == 0 {
		return ""
	}
	chunks := make([]string, 0, len(turns))
	for i, turn := range turns {
		chunks = append(chunks, fmt.Sprintf(
			"Turn %d:\nQ: %s\nSQL: %s\nPreviewRows: %s\n",
			i+1, turn.Question, turn.SQL, previewJSON(turn.Preview, PreviewRows),
		))
	}
	return strings.Join(chunks, "\n")
}

func previewJSON(rows [][]any, limit int) string {
	rows = copyRows(rows, limit)
	if rows == nil {
		rows = [][]any{}
	}
	raw, err := json.Marshal(rows)
	if err != nil {
		return fmt.Sprint(rows)
	}
	return string(raw)
}

func copyRows(rows [][]any, limit int) [][]any {
	if len(rows) > limit {
		rows = rows[:limit]
	}
	out := make([][]any, 0, len(rows))
	for _, row := range rows {
		out = append(out, append([]any(nil), row...))
	}
	return out
}
