// Package ui provides a read-only HTTP inspection surface over a
// checkpoint store: per-thread checkpoint history and rendered
// transcripts. It is a debugging aid, not a transport for the core.
package ui

import (
	"errors"
	"fmt"
	"html/template"
	"net/http"
	"strconv"
	"strings"

	"github.com/ctxpg/ctxpg/checkpoint"
	"github.com/ctxpg/ctxpg/types"
)

// Config holds the inspection UI configuration.
type Config struct {
	// Store is the checkpoint store to inspect (required).
	Store checkpoint.Store

	// Threads is the list of known thread IDs to show on the index page.
	// The Store interface has no thread enumeration, so the embedder
	// supplies the list.
	Threads []string

	// Title is the page title. Defaults to "ctxpg inspector".
	Title string
}

// Handler is the read-only inspection handler.
type Handler struct {
	store   checkpoint.Store
	threads []string
	title   string
}

// NewHandler creates the inspection handler.
func NewHandler(cfg Config) (*Handler, error) {
	if cfg.Store == nil {
		return nil, errors.New("ui: checkpoint store is required")
	}
	title := cfg.Title
	if title == "" {
		title = "ctxpg inspector"
	}
	return &Handler{
		store:   cfg.Store,
		threads: cfg.Threads,
		title:   title,
	}, nil
}

// ServeHTTP routes:
//
//	GET /                         thread index
//	GET /threads/{id}             checkpoint history for a thread
//	GET /threads/{id}/{step}      transcript at a checkpoint
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	path := strings.Trim(r.URL.Path, "/")
	switch {
	case path == "":
		h.serveIndex(w, r)
	case strings.HasPrefix(path, "threads/"):
		parts := strings.Split(strings.TrimPrefix(path, "threads/"), "/")
		switch len(parts) {
		case 1:
			h.serveThread(w, r, parts[0])
		case 2:
			step, err := strconv.Atoi(parts[1])
			if err != nil {
				http.NotFound(w, r)
				return
			}
			h.serveCheckpoint(w, r, parts[0], step)
		default:
			http.NotFound(w, r)
		}
	default:
		http.NotFound(w, r)
	}
}

func (h *Handler) serveIndex(w http.ResponseWriter, r *http.Request) {
	h.render(w, indexTemplate, map[string]any{
		"Title":   h.title,
		"Threads": h.threads,
	})
}

func (h *Handler) serveThread(w http.ResponseWriter, r *http.Request, threadID string) {
	checkpoints, err := h.store.List(r.Context(), threadID)
	if err != nil {
		http.Error(w, fmt.Sprintf("list checkpoints: %v", err), http.StatusInternalServerError)
		return
	}

	h.render(w, threadTemplate, map[string]any{
		"Title":       h.title,
		"ThreadID":    threadID,
		"Checkpoints": checkpoints,
	})
}

func (h *Handler) serveCheckpoint(w http.ResponseWriter, r *http.Request, threadID string, step int) {
	cp, err := h.store.Load(r.Context(), threadID, step)
	if err != nil {
		if errors.Is(err, checkpoint.ErrNotFound) {
			http.NotFound(w, r)
			return
		}
		http.Error(w, fmt.Sprintf("load checkpoint: %v", err), http.StatusInternalServerError)
		return
	}

	type messageView struct {
		Role      types.Role
		IsSummary bool
		HTML      template.HTML
	}

	messages := make([]messageView, 0, len(cp.History))
	for _, msg := range cp.History {
		messages = append(messages, messageView{
			Role:      msg.Role,
			IsSummary: msg.IsSummary,
			HTML:      renderMarkdown(msg.Text()),
		})
	}

	h.render(w, checkpointTemplate, map[string]any{
		"Title":    h.title,
		"ThreadID": threadID,
		"Step":     cp.Step,
		"Messages": messages,
	})
}

func (h *Handler) render(w http.ResponseWriter, tmpl *template.Template, data any) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := tmpl.Execute(w, data); err != nil {
		http.Error(w, fmt.Sprintf("render: %v", err), http.StatusInternalServerError)
	}
}

var indexTemplate = template.Must(template.New("index").Parse(`<!doctype html>
<html><head><title>{{.Title}}</title></head>
<body>
<h1>{{.Title}}</h1>
<h2>Threads</h2>
<ul>
{{range .Threads}}<li><a href="/threads/{{.}}">{{.}}</a></li>
{{else}}<li>No threads configured.</li>{{end}}
</ul>
</body></html>`))

var threadTemplate = template.Must(template.New("thread").Parse(`<!doctype html>
<html><head><title>{{.Title}} - {{.ThreadID}}</title></head>
<body>
<h1>Thread {{.ThreadID}}</h1>
<table border="1" cellpadding="4">
<tr><th>Step</th><th>Messages</th><th>Created</th></tr>
{{range .Checkpoints}}<tr>
<td><a href="/threads/{{.ThreadID}}/{{.Step}}">{{.Step}}</a></td>
<td>{{len .History}}</td>
<td>{{.CreatedAt.Format "2006-01-02 15:04:05"}}</td>
</tr>{{else}}<tr><td colspan="3">No checkpoints.</td></tr>{{end}}
</table>
<p><a href="/">Back</a></p>
</body></html>`))

var checkpointTemplate = template.Must(template.New("checkpoint").Parse(`<!doctype html>
<html><head><title>{{.Title}} - {{.ThreadID}} step {{.Step}}</title></head>
<body>
<h1>Thread {{.ThreadID}}, step {{.Step}}</h1>
{{range .Messages}}
<div style="margin-bottom:1em">
<strong>{{.Role}}{{if .IsSummary}} (summary){{end}}</strong>
<div>{{.HTML}}</div>
</div>
{{end}}
<p><a href="/threads/{{.ThreadID}}">Back to thread</a></p>
</body></html>`))
