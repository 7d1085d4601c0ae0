// Package notification renders the user-facing text of in-app
// notifications from named templates.
package notification

import (
	"fmt"
	"strings"
	"sync"
)

const TemplateMatchFound = "match-found"

// Template defines a reusable notification template. Placeholders use the
// {{key}} form in every field.
type Template struct {
	ID    string `json:"id"`
	Type  string `json:"type"`
	Title string `json:"title"`
	Body  string `json:"body"`
	Link  string `json:"link"`
}

// Rendered is a template with its placeholders substituted.
type Rendered struct {
	Type  string
	Title string
	Body  string
	Link  string
}

type TemplateEngine struct {
	mu        sync.RWMutex
	templates map[string]*Template
}

// NewTemplateEngine creates a TemplateEngine with the built-in templates pre-registered.
func NewTemplateEngine() *TemplateEngine {
	e := &TemplateEngine{templates: make(map[string]*Template)}
	e.RegisterTemplate(Template{
		ID:    TemplateMatchFound,
		Type:  "MATCH_FOUND",
		Title: "Blood Request Match Found!",
		Body:  "A patient in {{city}} needs {{blood_group}} blood. Your blood type matches!",
		Link:  "/requests/{{request_id}}",
	})
	return e
}

// RegisterTemplate adds or replaces a template in the engine.
func (e *TemplateEngine) RegisterTemplate(t Template) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.templates[t.ID] = &t
}

// Render performs {{key}} replacement using data. Keys present in the
// template but absent from data are left as-is.
func (e *TemplateEngine) Render(templateID string, data map[string]string) (Rendered, error) {
	e.mu.RLock()
	t, ok := e.templates[templateID]
	e.mu.RUnlock()
	if !ok {
		return Rendered{}, fmt.Errorf("template %q not found", templateID)
	}

	out := Rendered{Type: t.Type, Title: t.Title, Body: t.Body, Link: t.Link}
	for k, v := range data {
		placeholder := "{{" + k + "}}"
		out.Title = strings.ReplaceAll(out.Title, placeholder, v)
		out.Body = strings.ReplaceAll(out.Body, placeholder, v)
		out.Link = strings.ReplaceAll(out.Link, placeholder, v)
	}
	return out, nil
}
