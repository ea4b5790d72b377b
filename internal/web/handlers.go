package web

import (
	"bytes"
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"followback/pkg/analyzer"
	"followback/pkg/instagram"
	"followback/pkg/relationships"
)

const (
	fieldUsername = "username"
	fieldPassword = "password"
	fieldToken    = "token"

	messageFormExpired = "Your form expired, please try again."
)

type indexView struct {
	Token    string
	Username string
	Error    string
}

type resultsView struct {
	Total    int
	Accounts []relationships.Entry
}

func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	s.renderForm(w, r, "", "")
}

func (s *Server) handleAnalyze(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxFormBytes)
	if err := r.ParseForm(); err != nil {
		http.Error(w, "invalid form", http.StatusBadRequest)
		return
	}

	username := strings.TrimSpace(r.PostForm.Get(fieldUsername))
	if err := s.tokens.Verify(r.PostForm.Get(fieldToken)); err != nil {
		s.logger.DebugWithFields("rejected form token", map[string]interface{}{
			"request_id": RequestID(r.Context()),
		})
		s.renderForm(w, r, username, messageFormExpired)
		return
	}

	outcome := s.analyzer.Analyze(r.Context(), s.keyFunc(r), analyzer.Credentials{
		Username: username,
		Password: r.PostForm.Get(fieldPassword),
	})
	if !outcome.OK() {
		s.renderForm(w, r, username, "Error: "+outcome.Reason)
		return
	}

	s.render(w, r, "results.html", resultsView{
		Total:    outcome.Result.Total,
		Accounts: outcome.Result.Sorted(),
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]string{
		"status":  "ok",
		"uptime":  s.clock().Sub(s.started).Truncate(time.Second).String(),
		"version": s.version,
	})
}

// renderForm renders the login form with a fresh token
func (s *Server) renderForm(w http.ResponseWriter, r *http.Request, username, message string) {
	token, err := s.tokens.Issue()
	if err != nil {
		s.logger.WithError(err).Error("failed to issue form token")
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}
	s.render(w, r, "index.html", indexView{Token: token, Username: username, Error: message})
}

// render executes name into a buffer so a template error never produces a
// partial page.
func (s *Server) render(w http.ResponseWriter, r *http.Request, name string, data interface{}) {
	var buf bytes.Buffer
	if err := s.templates.ExecuteTemplate(&buf, name, data); err != nil {
		s.logger.WithError(err).ErrorWithFields("failed to render template", map[string]interface{}{
			"template":   name,
			"request_id": RequestID(r.Context()),
		})
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Header().Set("Cache-Control", "no-store")
	_, _ = buf.WriteTo(w)
}

func profileURL(handle string) string {
	return instagram.GetUserProfileURL(handle)
}
