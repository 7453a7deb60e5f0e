package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"html/template"
	"net"
	"net/http"
	"regexp"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/time/rate"

	"github.com/LearnCode801/Name-Entity-Recognition-NER-Project/internal/config"
	"github.com/LearnCode801/Name-Entity-Recognition-NER-Project/internal/nlp"
	"github.com/LearnCode801/Name-Entity-Recognition-NER-Project/internal/redact"
	"github.com/LearnCode801/Name-Entity-Recognition-NER-Project/internal/telemetry"
	"github.com/LearnCode801/Name-Entity-Recognition-NER-Project/internal/web"
)

// Server wraps the HTTP surface of nerapp.
type Server struct {
	cfg       *config.Config
	mux       *http.ServeMux
	handler   http.Handler
	pipeline  *nlp.Pipeline
	tmpl      *template.Template
	store     *analysisStore
	limiter   *rate.Limiter
	inFlight  chan struct{}
	telemetry *telemetry.Provider

	mu   sync.Mutex
	http *http.Server
}

// New creates a server with all routes registered. A nil telemetry provider
// records nothing.
func New(cfg *config.Config, pipeline *nlp.Pipeline, tel *telemetry.Provider) (*Server, error) {
	if cfg == nil {
		return nil, errors.New("server: config is nil")
	}
	if pipeline == nil {
		return nil, errors.New("server: pipeline is nil")
	}
	tmpl, err := web.Templates()
	if err != nil {
		return nil, err
	}
	if tel == nil {
		tel = telemetry.Noop()
	}

	s := &Server{
		cfg:       cfg,
		mux:       http.NewServeMux(),
		pipeline:  pipeline,
		tmpl:      tmpl,
		store:     newAnalysisStore(cfg.UI.CacheTTL, cfg.UI.CacheEntries),
		telemetry: tel,
	}
	if cfg.Server.RateLimitRPS > 0 {
		s.limiter = rate.NewLimiter(rate.Limit(cfg.Server.RateLimitRPS), max(cfg.Server.RateLimitBurst, 1))
	}
	if cfg.Server.MaxInFlightRequests > 0 {
		s.inFlight = make(chan struct{}, cfg.Server.MaxInFlightRequests)
	}

	s.mux.HandleFunc("/", s.handlePage)
	s.mux.Handle("/ner", http.RedirectHandler("/?menu="+web.MenuNER, http.StatusFound))
	s.mux.Handle("/static/", web.StaticHandler("/static/"))
	s.mux.HandleFunc("/api/v1/tokenize", s.handleTokenize)
	s.mux.HandleFunc("/api/v1/ner", s.handleNER)
	s.mux.HandleFunc("/api/v1/model", s.handleModel)
	s.mux.HandleFunc("/healthz", s.handleHealth)
	s.mux.HandleFunc("/readyz", s.handleReady)
	s.mux.HandleFunc("/robots.txt", handleRobots)
	s.handler = s.middleware(s.mux)
	return s, nil
}

// Handler returns the root handler including middleware.
func (s *Server) Handler() http.Handler {
	return s.handler
}

// Start listens on the configured address and blocks until Shutdown.
func (s *Server) Start() error {
	ln, err := net.Listen("tcp", s.cfg.Server.Addr)
	if err != nil {
		return fmt.Errorf("listen %s: %w", s.cfg.Server.Addr, err)
	}
	return s.Serve(ln)
}

// Serve accepts connections on ln. It returns nil after a graceful shutdown.
func (s *Server) Serve(ln net.Listener) error {
	sc := s.cfg.Server
	srv := &http.Server{
		Handler:           s.handler,
		ReadHeaderTimeout: sc.ReadHeaderTimeout,
		ReadTimeout:       sc.ReadTimeout,
		WriteTimeout:      sc.WriteTimeout,
		IdleTimeout:       sc.IdleTimeout,
	}
	s.mu.Lock()
	s.http = srv
	s.mu.Unlock()
	redact.Logf("nerapp listening on %s (model=%s mode=%s)", ln.Addr(), s.pipeline.Name, s.pipeline.Mode)
	if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown stops accepting connections and waits for in-flight requests.
func (s *Server) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	srv := s.http
	s.mu.Unlock()
	if srv == nil {
		return nil
	}
	return srv.Shutdown(ctx)
}

// --- Middleware ---

type requestIDKey struct{}

var requestIDRe = regexp.MustCompile(`^[A-Za-z0-9._\-]{1,64}$`)

func requestIDFrom(ctx context.Context) string {
	id, _ := ctx.Value(requestIDKey{}).(string)
	return id
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

var knownRoutes = map[string]bool{
	"/": true, "/ner": true, "/api/v1/tokenize": true, "/api/v1/ner": true,
	"/api/v1/model": true, "/healthz": true, "/readyz": true, "/robots.txt": true,
}

func routeLabel(path string) string {
	if knownRoutes[path] {
		return path
	}
	if len(path) > len("/static/") && path[:len("/static/")] == "/static/" {
		return "/static/"
	}
	return "other"
}

// unlimited routes bypass rate and concurrency limits.
func unlimited(path string) bool {
	switch routeLabel(path) {
	case "/healthz", "/readyz", "/static/", "/robots.txt":
		return true
	}
	return false
}

func (s *Server) middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		id := r.Header.Get("X-Request-ID")
		if !requestIDRe.MatchString(id) {
			id = uuid.NewString()
		}
		w.Header().Set("X-Request-ID", id)
		r = r.WithContext(context.WithValue(r.Context(), requestIDKey{}, id))
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}

		defer func() {
			dur := time.Since(start)
			route := routeLabel(r.URL.Path)
			s.telemetry.RecordRequest(route, rec.status, float64(dur.Microseconds())/1000)
			if route != "/healthz" && route != "/readyz" && route != "/static/" {
				redact.Logf("http: %s %s status=%d dur=%s id=%s", r.Method, route, rec.status, dur.Round(time.Microsecond), id)
			}
		}()

		if !unlimited(r.URL.Path) {
			if s.limiter != nil && !s.limiter.Allow() {
				rec.Header().Set("Retry-After", "1")
				writeAPIError(rec, http.StatusTooManyRequests, "Rate limit exceeded", "rate_limit_error")
				return
			}
			if s.inFlight != nil {
				select {
				case s.inFlight <- struct{}{}:
					defer func() { <-s.inFlight }()
				default:
					writeAPIError(rec, http.StatusTooManyRequests, "Too many concurrent requests", "rate_limit_error")
					return
				}
			}
			if r.Body != nil && s.cfg.Server.MaxRequestBodyBytes > 0 {
				r.Body = http.MaxBytesReader(rec, r.Body, s.cfg.Server.MaxRequestBodyBytes)
			}
		}
		next.ServeHTTP(rec, r)
	})
}

// --- Shared helpers ---

// analyze processes text through the pipeline, reusing cached results.
func (s *Server) analyze(ctx context.Context, text string) (*nlp.Doc, error) {
	key := analysisKey(s.pipeline.Name, text)
	if doc, ok := s.store.Get(key); ok {
		return doc, nil
	}

	ctx, span := s.telemetry.StartSpan(ctx, "nerapp.process", map[string]interface{}{
		"nerapp.model": s.pipeline.Name,
		"nerapp.mode":  s.pipeline.Mode,
		"nerapp.bytes": len(text),
	})
	defer span.End()

	start := time.Now()
	doc, err := s.pipeline.Process(ctx, text)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}
	dur := time.Since(start)

	labels := make([]string, 0, len(doc.Ents))
	for _, e := range doc.Ents {
		labels = append(labels, e.Label)
	}
	s.telemetry.RecordInference(s.pipeline.Name, s.pipeline.Mode, float64(dur.Microseconds())/1000, labels)
	if !doc.Degraded {
		s.store.Put(key, doc)
	}

	redact.Logf("nlp: processed id=%s tokens=%d ents=%d degraded=%t dur=%s text=%s",
		requestIDFrom(ctx), len(doc.Tokens), len(doc.Ents), doc.Degraded, dur.Round(time.Microsecond), redact.Preview(text, s.cfg.Logging.TextPreview))
	return doc, nil
}

// statusForError maps pipeline errors to HTTP status and error type.
func statusForError(err error) (int, string, string) {
	var maxBytes *http.MaxBytesError
	switch {
	case errors.As(err, &maxBytes):
		return http.StatusRequestEntityTooLarge, "Request body too large", "request_too_large"
	case errors.Is(err, nlp.ErrTextTooLarge):
		return http.StatusRequestEntityTooLarge, "Text exceeds the maximum size", "text_too_large"
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout, "Processing timed out", "timeout_error"
	case errors.Is(err, context.Canceled):
		return http.StatusServiceUnavailable, "Request canceled", "canceled"
	default:
		return http.StatusInternalServerError, "Processing failed", "processing_error"
	}
}

type apiErrorBody struct {
	Error apiErrorDetail `json:"error"`
}

type apiErrorDetail struct {
	Message string `json:"message"`
	Type    string `json:"type"`
}

// writeAPIError writes an error JSON body.
func writeAPIError(w http.ResponseWriter, status int, message, typ string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(apiErrorBody{Error: apiErrorDetail{Message: message, Type: typ}})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		redact.Logf("http: failed to write response: %v", err)
	}
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	fmt.Fprintln(w, "ok")
}

func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	if !s.pipeline.Ready() {
		http.Error(w, "entity recognition unavailable (mode="+s.pipeline.Mode+")", http.StatusServiceUnavailable)
		return
	}
	fmt.Fprintln(w, "ready")
}

const robotsTxt = "User-agent: *\nDisallow: /api/\n"

func handleRobots(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain")
	w.Header().Set("Cache-Control", "no-store")
	_, _ = w.Write([]byte(robotsTxt))
}
