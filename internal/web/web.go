// Package web holds the embedded page template and static assets.
package web

import (
	"embed"
	"fmt"
	"html/template"
	"io"
	"io/fs"
	"net/http"
	"strings"

	"github.com/LearnCode801/Name-Entity-Recognition-NER-Project/internal/render"
)

//go:embed templates/*.html
var templatesFS embed.FS

//go:embed static/*
var staticFS embed.FS

// Menu choices shown in the sidebar.
const (
	MenuHome = "Home"
	MenuNER  = "NER"
)

// Menus lists the sidebar choices in display order.
var Menus = []string{MenuHome, MenuNER}

// Page is the data rendered by page.html.
type Page struct {
	Title      string
	Menu       string
	Menus      []string
	Subheader  string
	TextLabel  string
	Text       string
	ShowButton bool
	Submitted  bool

	Model string
	Mode  string

	Tokens     *render.TokenTable
	TokenAttrs []string
	AllAttrs   []string

	Entities     *render.EntityView
	LabelFilter  []string
	ModelLabels  []string
	ShowEntTable bool

	Error     string
	RequestID string
}

// Templates parses the embedded templates.
func Templates() (*template.Template, error) {
	t, err := template.New("").Funcs(templateFuncs()).ParseFS(templatesFS, "templates/*.html")
	if err != nil {
		return nil, fmt.Errorf("parse templates: %w", err)
	}
	return t, nil
}

func templateFuncs() template.FuncMap {
	return template.FuncMap{
		"contains": func(list []string, s string) bool {
			for _, v := range list {
				if v == s {
					return true
				}
			}
			return false
		},
		"color": func(label string) template.CSS {
			return template.CSS(render.LabelColor(label, nil))
		},
		"score": func(f float32) string {
			if f == 0 {
				return ""
			}
			return fmt.Sprintf("%.2f", f)
		},
		"lower": strings.ToLower,
	}
}

// RenderPage writes the page.
func RenderPage(w io.Writer, t *template.Template, p Page) error {
	return t.ExecuteTemplate(w, "page.html", p)
}

// StaticHandler serves the embedded assets under prefix with cache headers.
func StaticHandler(prefix string) http.Handler {
	sub, err := fs.Sub(staticFS, "static")
	if err != nil {
		panic(err)
	}
	files := http.StripPrefix(prefix, http.FileServer(http.FS(sub)))
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Cache-Control", "public, max-age=3600")
		files.ServeHTTP(w, r)
	})
}
