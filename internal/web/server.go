package web

import (
	"context"
	"embed"
	"encoding/json"
	"errors"
	"html/template"
	"io"
	log "log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"talk2code/internal/audio"
	"talk2code/internal/codegen"
	"talk2code/internal/metrics"
	"talk2code/internal/session"
)

//go:embed templates/*.html
var templateFS embed.FS

const formField = "audio"

type Session interface {
	Record(ctx context.Context) (session.Interaction, error)
	Upload(ctx context.Context, name, contentType string, r io.Reader) (session.Interaction, error)
	Current() session.Interaction
	Busy() bool
	Artifact() (codegen.Artifact, error)
	Audio() ([]byte, string, error)
	Subscribe() (<-chan session.Event, func())
}

type Options struct {
	Title          string
	RecordDuration time.Duration
	MaxUploadBytes int64
	Metrics        *metrics.Metrics
}

type Server struct {
	sess Session
	opt  Options
	tmpl *template.Template
	mux  chi.Router
}

func NewServer(sess Session, opt Options) (*Server, error) {
	if opt.Title == "" {
		opt.Title = "Talk2Code (Offline)"
	}

	tmpl, err := template.New("").Funcs(template.FuncMap{
		"code": RenderCode,
	}).ParseFS(templateFS, "templates/*.html")
	if err != nil {
		return nil, err
	}

	s := &Server{sess: sess, opt: opt, tmpl: tmpl}
	s.mux = s.routes()
	return s, nil
}

func (s *Server) routes() chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(s.countRequests)

	r.Get("/", s.handleIndex)
	r.Get("/health", s.handleHealth)
	r.Get("/state", s.handleState)
	r.Get("/audio", s.handleAudio)
	r.Get("/download", s.handleDownload)
	r.Get("/ws", s.handleEvents)
	r.Post("/record", s.handleRecord)
	r.Post("/upload", s.handleUpload)
	r.Method(http.MethodGet, "/metrics", s.opt.Metrics.Handler())

	return r
}

func (s *Server) Handler() http.Handler { return s.mux }

// ListenAndServe serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() { errCh <- srv.ListenAndServe() }()

	log.Info("Web UI listening", "addr", addr)

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	}
}

func (s *Server) countRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		route := r.URL.Path
		if rctx := chi.RouteContext(r.Context()); rctx != nil && rctx.RoutePattern() != "" {
			route = rctx.RoutePattern()
		}
		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}
		s.opt.Metrics.HTTP(route, status)
	})
}

type pageData struct {
	Title         string
	Interaction   session.Interaction
	Busy          bool
	HasAudio      bool
	RecordSeconds int
	Accept        string
}

func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	_, _, audioErr := s.sess.Audio()

	data := pageData{
		Title:         s.opt.Title,
		Interaction:   s.sess.Current(),
		Busy:          s.sess.Busy(),
		HasAudio:      audioErr == nil,
		RecordSeconds: int(s.opt.RecordDuration.Seconds()),
		Accept:        strings.Join(audio.AllowedExtensions, ","),
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := s.tmpl.ExecuteTemplate(w, "index.html", data); err != nil {
		log.Error("Failed to render page", "err", err)
	}
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"status": "ok", "busy": s.sess.Busy()})
}

func (s *Server) handleState(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.sess.Current())
}

func (s *Server) handleRecord(w http.ResponseWriter, r *http.Request) {
	in, err := s.sess.Record(r.Context())
	s.respond(w, r, in, err)
}

func (s *Server) handleUpload(w http.ResponseWriter, r *http.Request) {
	if s.opt.MaxUploadBytes > 0 {
		// multipart framing on top of the file itself
		r.Body = http.MaxBytesReader(w, r.Body, s.opt.MaxUploadBytes+1<<20)
	}

	file, header, err := r.FormFile(formField)
	if err != nil {
		var tooBig *http.MaxBytesError
		if errors.As(err, &tooBig) {
			httpError(w, r, http.StatusRequestEntityTooLarge, audio.ErrUploadTooLarge)
			return
		}
		httpError(w, r, http.StatusBadRequest, errors.New("missing audio file"))
		return
	}
	defer file.Close()

	in, err := s.sess.Upload(r.Context(), header.Filename, header.Header.Get("Content-Type"), file)
	s.respond(w, r, in, err)
}

// respond finishes a record/upload request: JSON clients get the
// interaction, browsers are sent back to the page.
func (s *Server) respond(w http.ResponseWriter, r *http.Request, in session.Interaction, err error) {
	if errors.Is(err, session.ErrBusy) {
		httpError(w, r, http.StatusConflict, err)
		return
	}
	if err != nil {
		httpError(w, r, http.StatusInternalServerError, err)
		return
	}

	if wantsJSON(r) {
		status := http.StatusOK
		if in.State == session.StateFailed {
			status = statusFor(in)
		}
		writeJSON(w, status, in)
		return
	}
	http.Redirect(w, r, "/", http.StatusSeeOther)
}

func (s *Server) handleAudio(w http.ResponseWriter, r *http.Request) {
	data, mime, err := s.sess.Audio()
	if err != nil {
		http.Error(w, err.Error(), http.StatusNotFound)
		return
	}

	w.Header().Set("Content-Type", mime)
	w.Header().Set("Content-Length", strconv.Itoa(len(data)))
	w.Header().Set("Cache-Control", "no-store")
	w.Write(data)
}

func (s *Server) handleDownload(w http.ResponseWriter, r *http.Request) {
	a, err := s.sess.Artifact()
	if err != nil {
		http.Error(w, err.Error(), http.StatusNotFound)
		return
	}

	w.Header().Set("Content-Type", a.MIME)
	w.Header().Set("Content-Disposition", `attachment; filename="`+a.Name+`"`)
	w.Header().Set("Content-Length", strconv.Itoa(len(a.Data)))
	w.Write(a.Data)
}

func statusFor(in session.Interaction) int {
	switch {
	case errors.Is(in.Err(), audio.ErrUnsupportedType):
		return http.StatusUnsupportedMediaType
	case errors.Is(in.Err(), audio.ErrUploadTooLarge):
		return http.StatusRequestEntityTooLarge
	case in.FailedStage == session.StageUpload:
		return http.StatusBadRequest
	default:
		return http.StatusBadGateway
	}
}

func wantsJSON(r *http.Request) bool {
	return strings.Contains(r.Header.Get("Accept"), "application/json")
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Debug("Failed to write json", "err", err)
	}
}

func httpError(w http.ResponseWriter, r *http.Request, status int, err error) {
	if wantsJSON(r) {
		writeJSON(w, status, map[string]string{"error": err.Error()})
		return
	}
	http.Error(w, err.Error(), status)
}
