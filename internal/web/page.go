package web

import (
	"bytes"
	"embed"
	"encoding/json"
	"errors"
	"html/template"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"

	"github.com/askql/askql/internal/config"
	"github.com/askql/askql/internal/export"
	"github.com/askql/askql/internal/nl2sql"
	"github.com/askql/askql/internal/observability"
	"github.com/askql/askql/internal/query"
	"github.com/askql/askql/internal/session"
)

//go:embed templates/index.html
var templateFS embed.FS

var indexTemplate = template.Must(template.New("index.html").Funcs(template.FuncMap{
	"timestamp": func(t time.Time) string { return t.Format("2006-01-02 15:04:05") },
}).ParseFS(templateFS, "templates/index.html"))

type pageRenderer struct {
	service  string
	deps     Dependencies
	markdown goldmark.Markdown
}

type pageData struct {
	Service         string
	Dialect         string
	Schema          string
	Settings        session.Config
	HistoryLimit    int
	ExportAvailable bool
	Question        string
	Result          *resultView
	Error           string
	History         []historyView
}

type resultView struct {
	Status         string
	SQL            string
	Blocked        bool
	Cancelled      bool
	BlockedMessage string
	Report         template.HTML
	RowCount       int
	DurationMs     int64
	Export         *export.Result
	ExportError    string
}

type historyView struct {
	Index    int
	Question string
	SQL      string
	Preview  string
	AskedAt  time.Time
}

func newPageRenderer(cfg config.Config, deps Dependencies) *pageRenderer {
	return &pageRenderer{
		service:  cfg.Service.Name,
		deps:     deps,
		markdown: goldmark.New(goldmark.WithExtensions(extension.GFM)),
	}
}

func (p *pageRenderer) handleIndex(w http.ResponseWriter, r *http.Request) {
	conversation, ok := p.resolve(w, r)
	if !ok {
		return
	}
	p.render(w, r, http.StatusOK, p.baseData(conversation))
}

func (p *pageRenderer) handleAsk(w http.ResponseWriter, r *http.Request) {
	conversation, ok := p.resolve(w, r)
	if !ok {
		return
	}
	if err := r.ParseForm(); err != nil {
		data := p.baseData(conversation)
		data.Error = "Could not read the form."
		p.render(w, r, http.StatusBadRequest, data)
		return
	}

	question := strings.TrimSpace(r.PostFormValue("question"))
	result, err := conversation.Ask(r.Context(), question)

	data := p.baseData(conversation)
	data.Question = question
	status := http.StatusOK
	if err != nil {
		data.Error = pageErrorMessage(err)
		status, _, _, _ = classifyTurnError(result, err)
	}
	if result.SQL != "" || result.Status != "" {
		view, renderErr := p.resultView(result)
		if renderErr != nil {
			p.logger().WarnContext(r.Context(), "report_render_failed", slog.String("error", renderErr.Error()))
		}
		data.Result = view
	}
	p.render(w, r, status, data)
}

func (p *pageRenderer) handleSettings(w http.ResponseWriter, r *http.Request) {
	conversation, ok := p.resolve(w, r)
	if !ok {
		return
	}
	if err := r.ParseForm(); err != nil {
		http.Error(w, "invalid form", http.StatusBadRequest)
		return
	}
	if raw := strings.TrimSpace(r.PostFormValue("history_depth")); raw != "" {
		depth, err := strconv.Atoi(raw)
		if err != nil {
			data := p.baseData(conversation)
			data.Error = "History depth must be a whole number between 0 and 50."
			p.render(w, r, http.StatusBadRequest, data)
			return
		}
		conversation.SetMaxHistoryTurns(depth)
	}
	conversation.SetExportEnabled(p.deps.ExportAvailable && r.PostFormValue("export") != "")
	http.Redirect(w, r, "/", http.StatusSeeOther)
}

func (p *pageRenderer) handleClear(w http.ResponseWriter, r *http.Request) {
	conversation, ok := p.resolve(w, r)
	if !ok {
		return
	}
	conversation.ClearHistory()
	http.Redirect(w, r, "/", http.StatusSeeOther)
}

func (p *pageRenderer) resolve(w http.ResponseWriter, r *http.Request) (*session.Orchestrator, bool) {
	if p.deps.Sessions == nil {
		http.Error(w, "session store is not configured", http.StatusNotImplemented)
		return nil, false
	}
	conversation, _ := p.deps.Sessions.Resolve(w, r)
	return conversation, true
}

func (p *pageRenderer) baseData(conversation *session.Orchestrator) pageData {
	turns := conversation.RecentTurns()
	items := make([]historyView, 0, len(turns))
	for i := len(turns) - 1; i >= 0; i-- {
		preview, err := json.Marshal(turns[i].Preview)
		if err != nil {
			preview = []byte("[]")
		}
		items = append(items, historyView{
			Index:    i + 1,
			Question: turns[i].Question,
			SQL:      turns[i].SQL,
			Preview:  string(preview),
			AskedAt:  turns[i].AskedAt,
		})
	}
	return pageData{
		Service:         p.service,
		Dialect:         p.deps.Dialect,
		Schema:          conversation.SchemaText,
		Settings:        conversation.Settings(),
		HistoryLimit:    config.MaxHistoryTurnsLimit,
		ExportAvailable: p.deps.ExportAvailable,
		History:         items,
	}
}

func (p *pageRenderer) resultView(result session.TurnResult) (*resultView, error) {
	view := &resultView{
		Status:      string(result.Status),
		SQL:         result.SQL,
		Blocked:     result.Status == session.StatusBlocked,
		Cancelled:   result.Status == session.StatusCancelled,
		RowCount:    len(result.Rows),
		DurationMs:  result.Duration.Milliseconds(),
		Export:      result.Export,
		ExportError: result.ExportError,
	}
	if view.Blocked {
		view.BlockedMessage = result.Decision.Message()
	}
	if result.Status != session.StatusCompleted {
		return view, nil
	}
	report, err := p.renderMarkdown(export.RenderReport(export.Report{
		Question:    result.Question,
		SQL:         result.SQL,
		Columns:     result.Columns,
		Rows:        result.Rows,
		Explanation: result.Explanation,
	}))
	if err != nil {
		return view, err
	}
	view.Report = report
	return view, nil
}

// renderMarkdown leaves raw HTML in the source unrendered, so database values
// cannot inject markup.
func (p *pageRenderer) renderMarkdown(source string) (template.HTML, error) {
	var buf bytes.Buffer
	if err := p.markdown.Convert([]byte(source), &buf); err != nil {
		return "", err
	}
	return template.HTML(buf.String()), nil
}

func (p *pageRenderer) render(w http.ResponseWriter, r *http.Request, status int, data pageData) {
	var buf bytes.Buffer
	if err := indexTemplate.Execute(&buf, data); err != nil {
		p.logger().ErrorContext(r.Context(), "page_render_failed", slog.String("error", err.Error()))
		http.Error(w, "failed to render page", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	_, _ = buf.WriteTo(w)
}

func (p *pageRenderer) logger() *slog.Logger {
	if p.deps.Logger != nil {
		return p.deps.Logger
	}
	return observability.DiscardLogger()
}

func pageErrorMessage(err error) string {
	var execErr *query.ExecutionError
	switch {
	case errors.Is(err, session.ErrEmptyQuestion):
		return "No question provided."
	case errors.Is(err, nl2sql.ErrGenerationUnavailable):
		return "SQL generation is unavailable right now. Please try again."
	case errors.As(err, &execErr):
		return "Query failed: " + observability.Mask(execErr.Err.Error())
	default:
		return observability.Mask(err.Error())
	}
}
