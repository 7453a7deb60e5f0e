package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/LearnCode801/Name-Entity-Recognition-NER-Project/internal/nlp"
	"github.com/LearnCode801/Name-Entity-Recognition-NER-Project/internal/redact"
	"github.com/LearnCode801/Name-Entity-Recognition-NER-Project/internal/render"
)

type tokenizeRequest struct {
	Text  string   `json:"text"`
	Attrs []string `json:"attrs,omitempty"`
}

type tokenizeResponse struct {
	Model  string             `json:"model"`
	Text   string             `json:"text"`
	Tokens []nlp.Token        `json:"tokens"`
	Table  *render.TokenTable `json:"table,omitempty"`
}

type nerRequest struct {
	Text   string   `json:"text"`
	Labels []string `json:"labels,omitempty"`
	HTML   bool     `json:"html,omitempty"`
}

type nerResponse struct {
	Model string     `json:"model"`
	Mode  string     `json:"mode"`
	Text  string     `json:"text"`
	Ents  []nlp.Span `json:"ents"`
	HTML  string     `json:"html,omitempty"`

	Degraded bool `json:"degraded,omitempty"`
}

type modelResponse struct {
	Name   string   `json:"name"`
	Mode   string   `json:"mode"`
	Ready  bool     `json:"ready"`
	Labels []string `json:"labels"`
}

func (s *Server) handleTokenize(w http.ResponseWriter, r *http.Request) {
	var req tokenizeRequest
	if !decodeRequest(w, r, &req) {
		return
	}
	doc, err := s.analyze(r.Context(), req.Text)
	if err != nil {
		s.writeProcessingError(w, err)
		return
	}
	resp := tokenizeResponse{Model: doc.Model, Text: doc.Text, Tokens: doc.Tokens}
	if resp.Tokens == nil {
		resp.Tokens = []nlp.Token{}
	}
	if len(req.Attrs) > 0 {
		table := render.Tokens(doc, req.Attrs)
		resp.Table = &table
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleNER(w http.ResponseWriter, r *http.Request) {
	var req nerRequest
	if !decodeRequest(w, r, &req) {
		return
	}
	doc, err := s.analyze(r.Context(), req.Text)
	if err != nil {
		s.writeProcessingError(w, err)
		return
	}
	view := render.Entities(doc, render.EntityOptions{Labels: req.Labels})
	resp := nerResponse{Model: doc.Model, Mode: s.pipeline.Mode, Text: doc.Text, Ents: filterEnts(doc.Ents, req.Labels), Degraded: doc.Degraded}
	if req.HTML {
		resp.HTML = string(view.HTML)
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleModel(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	labels := s.pipeline.Labels()
	if labels == nil {
		labels = []string{}
	}
	writeJSON(w, http.StatusOK, modelResponse{
		Name:   s.pipeline.Name,
		Mode:   s.pipeline.Mode,
		Ready:  s.pipeline.Ready(),
		Labels: labels,
	})
}

func decodeRequest(w http.ResponseWriter, r *http.Request, v any) bool {
	if r.Method != http.MethodPost {
		w.Header().Set("Allow", http.MethodPost)
		writeAPIError(w, http.StatusMethodNotAllowed, "Method not allowed", "invalid_request_error")
		return false
	}
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		var maxBytes *http.MaxBytesError
		if errors.As(err, &maxBytes) {
			writeAPIError(w, http.StatusRequestEntityTooLarge, "Request body too large", "request_too_large")
			return false
		}
		writeAPIError(w, http.StatusBadRequest, "Invalid JSON body", "invalid_request_error")
		return false
	}
	return true
}

func (s *Server) writeProcessingError(w http.ResponseWriter, err error) {
	status, msg, typ := statusForError(err)
	if status >= http.StatusInternalServerError {
		redact.Logf("http: processing failed: %v", err)
	}
	writeAPIError(w, status, msg, typ)
}

func filterEnts(ents []nlp.Span, labels []string) []nlp.Span {
	out := []nlp.Span{}
	if len(labels) == 0 {
		return append(out, ents...)
	}
	keep := map[string]bool{}
	for _, l := range labels {
		keep[strings.ToUpper(strings.TrimSpace(l))] = true
	}
	for _, e := range ents {
		if keep[e.Label] {
			out = append(out, e)
		}
	}
	return out
}
