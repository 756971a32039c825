// Package api serves stored runs, their rules and the process metrics over HTTP.
package api

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"dqrules/domain/core"
	"dqrules/domain/rule"
	"dqrules/internal/errors"
	"dqrules/internal/logging"
	"dqrules/internal/metrics"
	"dqrules/models"
	"dqrules/ports"
)

const (
	defaultRunLimit = 50
	maxRunLimit     = 500
)

// Pinger reports whether the backing store is reachable
type Pinger interface {
	PingContext(ctx context.Context) error
}

// Options wires the server's dependencies. Usage, Metrics and DB may be nil.
type Options struct {
	Runs            ports.RunRepository
	Usage           ports.LLMUsageRepository
	Metrics         *metrics.Metrics
	DB              Pinger
	ShutdownTimeout time.Duration
}

// Server is the read API
type Server struct {
	opts   Options
	router *chi.Mux
	logger *zap.Logger
}

// NewServer builds the router
func NewServer(opts Options, logger *zap.Logger) *Server {
	if opts.ShutdownTimeout <= 0 {
		opts.ShutdownTimeout = 10 * time.Second
	}
	s := &Server{opts: opts, router: chi.NewRouter(), logger: logging.OrNop(logger)}
	s.setupMiddleware()
	s.setupRoutes()
	return s
}

func (s *Server) setupMiddleware() {
	s.router.Use(middleware.RequestID)
	s.router.Use(middleware.Recoverer)
	s.router.Use(s.instrument)
}

func (s *Server) setupRoutes() {
	s.router.Get("/healthz", s.handleHealth)
	s.router.Get("/runs", s.handleListRuns)
	s.router.Get("/runs/{id}", s.handleGetRun)
	s.router.Get("/runs/{id}/rules", s.handleListRules)
	if s.opts.Metrics != nil {
		s.router.Method(http.MethodGet, "/metrics", s.opts.Metrics.Handler())
	}
}

// Handler exposes the router, mainly for tests
func (s *Server) Handler() http.Handler {
	return s.router
}

// ListenAndServe serves on addr until ctx is cancelled
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return errors.Wrapf(err, "failed to listen on %s", addr)
	}
	return s.Serve(ctx, ln)
}

// Serve accepts connections on ln until ctx is cancelled, then shuts down
// gracefully within the configured timeout.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	srv := &http.Server{
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
		WriteTimeout:      60 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		s.logger.Info("[API] server starting", zap.String("addr", ln.Addr().String()))
		if err := srv.Serve(ln); err != nil && !stderrors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		s.logger.Info("[API] shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), s.opts.ShutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})
	return g.Wait()
}

func (s *Server) instrument(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)

		route := "unmatched"
		if rctx := chi.RouteContext(r.Context()); rctx != nil && rctx.RoutePattern() != "" {
			route = rctx.RoutePattern()
		}
		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}
		s.opts.Metrics.HTTPRequest(route, strconv.Itoa(status))
		s.logger.Debug("[API] request",
			zap.String("method", r.Method),
			zap.String("route", route),
			zap.Int("status", status),
			zap.Duration("elapsed", time.Since(start)),
			zap.String("request_id", middleware.GetReqID(r.Context())))
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if s.opts.DB != nil {
		if err := s.opts.DB.PingContext(r.Context()); err != nil {
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable", "error": err.Error()})
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleListRuns(w http.ResponseWriter, r *http.Request) {
	limit := defaultRunLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			s.writeError(w, errors.InvalidInput("limit must be a positive integer"))
			return
		}
		limit = min(n, maxRunLimit)
	}
	runs, err := s.opts.Runs.ListRuns(r.Context(), limit)
	if err != nil {
		s.writeError(w, err)
		return
	}
	if runs == nil {
		runs = []*models.Run{}
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"runs": runs, "count": len(runs)})
}

type runResponse struct {
	*models.Run
	Usage *models.UsageSummary `json:"usage,omitempty"`
}

func (s *Server) handleGetRun(w http.ResponseWriter, r *http.Request) {
	runID, ok := s.runID(w, r)
	if !ok {
		return
	}
	run, err := s.opts.Runs.GetRun(r.Context(), runID)
	if err != nil {
		s.writeError(w, err)
		return
	}
	resp := runResponse{Run: run}
	if s.opts.Usage != nil {
		summary, err := s.opts.Usage.GetRunUsageSummary(r.Context(), runID)
		if err != nil {
			s.logger.Warn("[API] usage summary unavailable", zap.String("run_id", runID.String()), zap.Error(err))
		} else {
			resp.Usage = summary
		}
	}
	writeJSON(w, http.StatusOK, resp)
}

// handleListRules supports category, severity and attribute filters (case-insensitive)
func (s *Server) handleListRules(w http.ResponseWriter, r *http.Request) {
	runID, ok := s.runID(w, r)
	if !ok {
		return
	}
	if _, err := s.opts.Runs.GetRun(r.Context(), runID); err != nil {
		s.writeError(w, err)
		return
	}
	rules, err := s.opts.Runs.ListRules(r.Context(), runID)
	if err != nil {
		s.writeError(w, err)
		return
	}
	unprocessed, err := s.opts.Runs.ListUnprocessed(r.Context(), runID)
	if err != nil {
		s.writeError(w, err)
		return
	}

	q := r.URL.Query()
	filtered := make([]rule.Rule, 0, len(rules))
	for _, rr := range rules {
		if !matches(q.Get("category"), string(rr.Category)) ||
			!matches(q.Get("severity"), string(rr.Severity)) ||
			!matches(q.Get("attribute"), rr.Attribute) {
			continue
		}
		filtered = append(filtered, rr)
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"run_id":      runID,
		"count":       len(filtered),
		"rules":       filtered,
		"unprocessed": unprocessed,
	})
}

func matches(filter, value string) bool {
	return filter == "" || strings.EqualFold(strings.TrimSpace(filter), value)
}

func (s *Server) runID(w http.ResponseWriter, r *http.Request) (core.RunID, bool) {
	runID, err := core.ParseRunID(chi.URLParam(r, "id"))
	if err != nil {
		s.writeError(w, errors.InvalidInput(err.Error()))
		return "", false
	}
	return runID, true
}

func (s *Server) writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	switch errors.GetCode(err) {
	case errors.CodeNotFound:
		status = http.StatusNotFound
	case errors.CodeInvalidInput:
		status = http.StatusBadRequest
	}
	if status == http.StatusInternalServerError {
		s.logger.Error("[API] request failed", zap.Error(err))
	}
	writeJSON(w, status, map[string]string{"error": err.Error(), "code": errors.GetCode(err)})
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
