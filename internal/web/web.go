// Package web exposes the generator over HTTP.
//
//	POST /api/generate   text in, calendar out (JSON or text/calendar)
//	GET  /health         liveness, never behind basic auth
package web

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-playground/validator/v10"

	"textcal/internal/config"
	"textcal/internal/ics"
	appLog "textcal/internal/log"
	"textcal/internal/model"
	"textcal/internal/pipeline"
)

// maxBodyBytes caps request bodies.
const maxBodyBytes = 1 << 20

// Server serves the generate API.
type Server struct {
	cfg    *config.Config
	gen    *pipeline.Generator
	now    func() time.Time
	router chi.Router

	// Generators for request-supplied timezones, keyed by zone name.
	zonesMu sync.RWMutex
	zones   map[string]*pipeline.Generator
}

// Option customizes a Server.
type Option func(*Server)

// WithClock replaces time.Now as the default anchor for relative dates.
func WithClock(now func() time.Time) Option {
	return func(s *Server) {
		if now != nil {
			s.now = now
		}
	}
}

// NewServer constructs a Server around gen.
func NewServer(cfg *config.Config, gen *pipeline.Generator, opts ...Option) *Server {
	s := &Server{
		cfg:   cfg,
		gen:   gen,
		now:   time.Now,
		zones: make(map[string]*pipeline.Generator),
	}
	for _, o := range opts {
		o(s)
	}
	s.router = s.routes()
	return s
}

// Handler returns the root http.Handler.
func (s *Server) Handler() http.Handler { return s.router }

func (s *Server) routes() chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(requestLogger)
	r.Use(middleware.Recoverer)

	r.Get("/health", s.handleHealth)

	r.Group(func(r chi.Router) {
		if s.basicAuthEnabled() {
			appLog.Info("web: basic auth enabled")
			r.Use(s.basicAuth)
		}
		r.Post("/api/generate", s.handleGenerate)
	})
	return r
}

// basicAuthEnabled reports whether HTTP Basic Auth is configured.
func (s *Server) basicAuthEnabled() bool {
	if s.cfg == nil || s.cfg.BasicAuth == nil {
		return false
	}
	return s.cfg.BasicAuth.Username != "" && s.cfg.BasicAuth.Password != ""
}

func (s *Server) basicAuth(next http.Handler) http.Handler {
	username := s.cfg.BasicAuth.Username
	password := s.cfg.BasicAuth.Password

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		u, p, ok := r.BasicAuth()
		if !ok || !secureCompare(u, username) || !secureCompare(p, password) {
			w.Header().Set("WWW-Authenticate", `Basic realm="textcal", charset="UTF-8"`)
			writeError(w, http.StatusUnauthorized, "unauthorized")
			return
		}
		next.ServeHTTP(w, r)
	})
}

// secureCompare compares two strings in constant time.
func secureCompare(a, b string) bool {
	if len(a) != len(b) {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(a), []byte(b)) == 1
}

// requestLogger logs one line per request through the app logger.
func requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		appLog.Debug("web: request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"bytes", ww.BytesWritten(),
			"duration", time.Since(start).String(),
			"request_id", middleware.GetReqID(r.Context()),
		)
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("OK"))
}

// generateRequest is accepted as JSON, as a form, or as a plain text body.
type generateRequest struct {
	Text     string `json:"text" validate:"required"`
	Now      string `json:"now,omitempty" validate:"omitempty,datetime=2006-01-02T15:04:05Z07:00"`
	Timezone string `json:"timezone,omitempty" validate:"omitempty,timezone"`
}

type eventDTO struct {
	Title             string    `json:"title"`
	Start             time.Time `json:"start"`
	End               time.Time `json:"end"`
	SourceClauseIndex int       `json:"source_clause_index"`
}

type skippedDTO struct {
	Index  int    `json:"index"`
	Text   string `json:"text"`
	Start  int    `json:"start"`
	End    int    `json:"end"`
	Reason string `json:"reason"`
}

type generateResponse struct {
	Document string       `json:"document"`
	Events   []eventDTO   `json:"events"`
	Skipped  []skippedDTO `json:"skipped"`
	Warnings []string     `json:"warnings"`
	Timezone string       `json:"timezone"`
}

var requestValidator = validator.New(validator.WithRequiredStructEnabled())

func (s *Server) handleGenerate(w http.ResponseWriter, r *http.Request) {
	req, err := decodeRequest(w, r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err := requestValidator.Struct(req); err != nil {
		writeError(w, http.StatusBadRequest, validationMessage(err))
		return
	}

	now := s.now()
	if req.Now != "" {
		// Already checked by the datetime validator.
		now, _ = time.Parse(time.RFC3339, req.Now)
	}

	gen, err := s.generatorFor(req.Timezone)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	res, err := gen.Generate(r.Context(), req.Text, now)
	switch {
	case errors.Is(err, model.ErrEmptyInput):
		writeError(w, http.StatusBadRequest, err.Error())
		return
	case err != nil:
		appLog.Error("web: generate failed", err)
		writeError(w, http.StatusInternalServerError, "failed to generate calendar")
		return
	}

	if wantsCalendar(r) {
		w.Header().Set("Content-Type", "text/calendar; charset=utf-8")
		w.Header().Set("Content-Disposition", fmt.Sprintf(`attachment; filename=%q`, ics.DefaultFileName))
		w.WriteHeader(http.StatusOK)
		_, _ = io.WriteString(w, res.Document.Text)
		return
	}

	writeJSON(w, http.StatusOK, toResponse(res, gen.Location()))
}

func decodeRequest(w http.ResponseWriter, r *http.Request) (generateRequest, error) {
	var req generateRequest
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)

	ct, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	switch ct {
	case "application/json":
		dec := json.NewDecoder(r.Body)
		dec.DisallowUnknownFields()
		if err := dec.Decode(&req); err != nil {
			return req, fmt.Errorf("invalid JSON body: %w", err)
		}
	case "application/x-www-form-urlencoded", "multipart/form-data":
		if err := r.ParseMultipartForm(maxBodyBytes); err != nil && !errors.Is(err, http.ErrNotMultipart) {
			return req, fmt.Errorf("invalid form body: %w", err)
		}
		req.Text = r.FormValue("text")
		req.Now = r.FormValue("now")
		req.Timezone = r.FormValue("timezone")
	default:
		body, err := io.ReadAll(r.Body)
		if err != nil {
			return req, fmt.Errorf("read body: %w", err)
		}
		q := r.URL.Query()
		req.Text = string(body)
		req.Now = q.Get("now")
		req.Timezone = q.Get("timezone")
	}
	return req, nil
}

// validationMessage flattens validator errors into "field: tag" pairs.
func validationMessage(err error) string {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err.Error()
	}
	parts := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		parts = append(parts, fmt.Sprintf("%s: failed %s", strings.ToLower(fe.Field()), fe.Tag()))
	}
	return "invalid request: " + strings.Join(parts, "; ")
}

// generatorFor returns the generator for a request-supplied zone, building
// and caching one the first time a zone is seen.
func (s *Server) generatorFor(zone string) (*pipeline.Generator, error) {
	if zone == "" {
		return s.gen, nil
	}

	s.zonesMu.RLock()
	g, ok := s.zones[zone]
	s.zonesMu.RUnlock()
	if ok {
		return g, nil
	}

	loc, err := time.LoadLocation(zone)
	if err != nil {
		return nil, fmt.Errorf("unknown timezone %q", zone)
	}
	g = s.gen.WithLocation(loc)

	s.zonesMu.Lock()
	s.zones[zone] = g
	s.zonesMu.Unlock()
	return g, nil
}

func wantsCalendar(r *http.Request) bool {
	for _, part := range strings.Split(r.Header.Get("Accept"), ",") {
		mt, _, err := mime.ParseMediaType(strings.TrimSpace(part))
		if err == nil && mt == "text/calendar" {
			return true
		}
	}
	return r.URL.Query().Get("format") == "ics"
}

func toResponse(res pipeline.Result, loc *time.Location) generateResponse {
	out := generateResponse{
		Document: res.Document.Text,
		Events:   make([]eventDTO, 0, len(res.Document.Events)),
		Skipped:  make([]skippedDTO, 0, len(res.Skipped)),
		Warnings: res.Warnings,
		Timezone: loc.String(),
	}
	if out.Warnings == nil {
		out.Warnings = []string{}
	}
	for _, ev := range res.Document.Events {
		out.Events = append(out.Events, eventDTO{
			Title:             ev.Title,
			Start:             ev.Start,
			End:               ev.End,
			SourceClauseIndex: ev.SourceClauseIndex,
		})
	}
	for _, sk := range res.Skipped {
		out.Skipped = append(out.Skipped, skippedDTO{
			Index:  sk.Index,
			Text:   sk.Text,
			Start:  sk.Start,
			End:    sk.End,
			Reason: sk.ReasonText(),
		})
	}
	return out
}

// StartServer serves on cfg.Listen until ctx is cancelled, then shuts down
// gracefully.
func StartServer(ctx context.Context, cfg *config.Config, gen *pipeline.Generator) error {
	srv := &http.Server{
		Addr:              cfg.Listen,
		Handler:           NewServer(cfg, gen).Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		appLog.Info("web: starting HTTP server", "listen", "http://"+cfg.Listen)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	appLog.Info("web: shutting down HTTP server")
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	if err := <-errCh; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		appLog.Error("web: failed to write JSON response", err)
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	type errResp struct {
		Error string `json:"error"`
	}
	writeJSON(w, status, errResp{Error: msg})
}
