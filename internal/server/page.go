package server

import (
	"bytes"
	"errors"
	"net/http"

	"github.com/LearnCode801/Name-Entity-Recognition-NER-Project/internal/redact"
	"github.com/LearnCode801/Name-Entity-Recognition-NER-Project/internal/render"
	"github.com/LearnCode801/Name-Entity-Recognition-NER-Project/internal/web"
)

const (
	subheaderHome = "Word Tokenization"
	subheaderNER  = "Name Entity Recognition"
	textLabel     = "Text to Tokenize"
	actionTokens  = "tokenize"
)

// handlePage renders the app page. The text is processed on every render of
// a section; the Home token table appears only after the Tokenize button is
// pressed, the NER view always. An unknown menu renders the title only.
func (s *Server) handlePage(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		http.NotFound(w, r)
		return
	}
	if r.Method != http.MethodGet && r.Method != http.MethodPost {
		w.Header().Set("Allow", "GET, POST")
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	page := web.Page{
		Title:     s.cfg.UI.Title,
		Menu:      web.MenuHome,
		Menus:     web.Menus,
		TextLabel: textLabel,
		Text:      s.cfg.UI.DefaultText,
		Model:     s.pipeline.Name,
		Mode:      s.pipeline.Mode,
		RequestID: requestIDFrom(r.Context()),
	}
	status := http.StatusOK

	if err := r.ParseForm(); err != nil {
		var maxBytes *http.MaxBytesError
		if errors.As(err, &maxBytes) {
			status = http.StatusRequestEntityTooLarge
			page.Error = "The submitted text is too large."
		} else {
			status = http.StatusBadRequest
			page.Error = "The form could not be read."
		}
		s.writePage(w, status, page)
		return
	}
	if m := r.Form.Get("menu"); m != "" {
		page.Menu = m
	}
	if vals, ok := r.PostForm["text"]; ok && len(vals) > 0 {
		page.Text = vals[0]
	}
	pressed := r.Method == http.MethodPost && r.PostForm.Get("action") == actionTokens

	switch page.Menu {
	case web.MenuHome:
		page.Subheader = subheaderHome
		page.ShowButton = true
		page.AllAttrs = render.AllTokenAttrs
		page.TokenAttrs = render.DefaultTokenAttrs
		doc, err := s.analyze(r.Context(), page.Text)
		if err != nil {
			status, page.Error = s.pageError(err)
			break
		}
		if pressed {
			table := render.Tokens(doc, r.PostForm["attr"])
			page.Tokens = &table
			page.TokenAttrs = table.Columns
		}

	case web.MenuNER:
		page.Subheader = subheaderNER
		page.ModelLabels = s.pipeline.Labels()
		page.LabelFilter = r.Form["label"]
		page.ShowEntTable = true
		if !s.pipeline.Ready() {
			page.Error = "Entity recognition is unavailable: the model " + s.pipeline.Name + " is not loaded."
		}
		doc, err := s.analyze(r.Context(), page.Text)
		if err != nil {
			status, page.Error = s.pageError(err)
			break
		}
		view := render.Entities(doc, render.EntityOptions{Labels: page.LabelFilter})
		page.Entities = &view
	}

	s.writePage(w, status, page)
}

func (s *Server) pageError(err error) (int, string) {
	status, msg, _ := statusForError(err)
	if status >= http.StatusInternalServerError {
		redact.Logf("http: page processing failed: %v", err)
	}
	return status, msg + "."
}

// writePage renders into a buffer first so a template failure yields a clean 500.
func (s *Server) writePage(w http.ResponseWriter, status int, page web.Page) {
	var buf bytes.Buffer
	if err := web.RenderPage(&buf, s.tmpl, page); err != nil {
		redact.Logf("http: template rendering failed: %v", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	_, _ = w.Write(buf.Bytes())
}
