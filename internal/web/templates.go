package web

import (
	"embed"
	"fmt"
	"html/template"
	"io"
	"path/filepath"
)

//go:embed templates/*.html
var templatesFS embed.FS

// Templates holds all page templates, keyed by page name. Each page gets
// its own clone of the layout so {{define "content"}} doesn't collide.
type Templates struct {
	pages map[string]*template.Template
}

// ExecuteTemplate renders a page template by name via the shared layout.
func (t *Templates) ExecuteTemplate(w io.Writer, name string, data any) error {
	tmpl, ok := t.pages[name]
	if !ok {
		return fmt.Errorf("template %q not found", name)
	}
	return tmpl.ExecuteTemplate(w, "layout.html", data)
}

// Load parses all embedded page templates.
func Load() *Templates {
	base := template.Must(
		template.New("base").ParseFS(templatesFS, "templates/layout.html"),
	)

	pages := map[string]*template.Template{}
	pageFiles, err := templatesFS.ReadDir("templates")
	if err != nil {
		panic("failed to read page templates: " + err.Error())
	}

	for _, f := range pageFiles {
		name := f.Name()
		if name == "layout.html" || filepath.Ext(name) != ".html" {
			continue
		}
		clone, err := base.Clone()
		if err != nil {
			panic("failed to clone base template: " + err.Error())
		}
		template.Must(clone.ParseFS(templatesFS, "templates/"+name))
		pages[name] = clone
	}

	return &Templates{pages: pages}
}
