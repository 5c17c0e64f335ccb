package main

import (
	"bytes"
	"embed"
	"fmt"
	"html/template"
	"net/http"

	"github.com/aquilax/treeboard/auth"
	"github.com/aquilax/treeboard/log"
)

//go:embed templates/*.html
var templatesFS embed.FS

var pages = []string{"index.html", "tree.html", "auth.html", "admin.html", "form.html"}

// Session collects what one rendered page needs.
type Session struct {
	td TemplateData
	ln *Language
}

type TemplateData map[string]interface{}

type Crumb struct {
	URL   string
	Title string
}

func NewSession(sc *SiteConfig, ln *Language) *Session {
	return &Session{
		td: NewTemplateData(sc),
		ln: ln,
	}
}

func NewTemplateData(sc *SiteConfig) TemplateData {
	td := make(TemplateData)
	td.Set("Title", sc.Title)
	td.Set("Description", sc.Description)
	td.Set("Language", sc.Language)
	td.Set("Path", []Crumb{})
	return td
}

// baseHelpers only exist so the templates parse; every render rebinds them
// to the session language.
var baseHelpers = template.FuncMap{
	"lang":     func(s string) string { return s },
	"time":     hfTime,
	"slug":     hfSlug,
	"plural":   hfPlural,
	"markdown": hfMarkdown,
}

func parseTemplates() (map[string]*template.Template, error) {
	tpl := make(map[string]*template.Template, len(pages))
	for _, page := range pages {
		t, err := template.New("layout.html").Funcs(baseHelpers).ParseFS(templatesFS, "templates/layout.html", "templates/"+page)
		if err != nil {
			return nil, fmt.Errorf("template %s: %w", page, err)
		}
		tpl[page] = t
	}
	return tpl, nil
}

func (s *Session) getHelpers() template.FuncMap {
	return template.FuncMap{
		"lang": s.Lang,
	}
}

func (s *Session) Lang(text string) string {
	return s.ln.Lang(text)
}

func (s *Session) AddPath(url, title string) {
	s.td["Path"] = append(s.td["Path"].([]Crumb), Crumb{URL: url, Title: title})
}

func (s *Session) SetFlashes(flashes []auth.Flash) {
	s.td.Set("Flashes", flashes)
}

func (s *Session) render(w http.ResponseWriter, templates map[string]*template.Template, page string) error {
	base, ok := templates[page]
	if !ok {
		return fmt.Errorf("unknown template %s", page)
	}
	t, err := base.Clone()
	if err != nil {
		return err
	}
	t.Funcs(s.getHelpers())
	var buf bytes.Buffer
	if err := t.Execute(&buf, s.td); err != nil {
		log.Error.Printf("render %s: %v", page, err)
		return err
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_, err = buf.WriteTo(w)
	return err
}

func (td TemplateData) Set(name string, value interface{}) {
	td[name] = value
}

func (s *Session) Set(name string, value interface{}) {
	s.td.Set(name, value)
}
