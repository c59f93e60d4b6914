// Package admin serves the worker control API.
package admin

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/julienschmidt/httprouter"

	"github.com/velmie/netq"
	"github.com/velmie/netq/internal/stats"
)

const (
	headerContentType = "Content-Type"
	contentTypeJSON   = "application/json"
)

// Supervisor is the worker lifecycle seen by the API.
type Supervisor interface {
	Restart() bool
	Status() netq.WorkerStatus
	CheckUp() error
}

// Collector reads recorded responses.
type Collector interface {
	Collect(ctx context.Context, id netq.ID, opts netq.CollectOptions) (netq.Collection, error)
}

// StatsSource provides counter snapshots.
type StatsSource interface {
	Snapshot() stats.Snapshot
}

// Config wires the API to the running worker. Nil fields disable their routes.
type Config struct {
	Wake      netq.Signaler
	Worker    Supervisor
	Collector Collector
	Stats     StatsSource
	Logger    netq.Logger
	// MaxWait caps the max_wait of blocking collects.
	MaxWait time.Duration
}

// Server routes the admin endpoints.
type Server struct {
	router *httprouter.Router
	cfg    Config
}

// New registers the routes for every configured dependency.
func New(cfg Config) *Server {
	if cfg.Logger == nil {
		cfg.Logger = netq.NopLogger{}
	}
	if cfg.MaxWait <= 0 {
		cfg.MaxWait = 30 * time.Second
	}

	s := &Server{router: httprouter.New(), cfg: cfg}
	if cfg.Wake != nil {
		s.router.POST("/wake", s.wake)
	}
	if cfg.Worker != nil {
		s.router.POST("/restart", s.restart)
		s.router.GET("/healthz", s.healthz)
		s.router.GET("/readyz", s.readyz)
	}
	if cfg.Collector != nil {
		s.router.GET("/responses/:id", s.response)
	}
	if cfg.Stats != nil {
		s.router.GET("/stats", s.stats)
	}

	return s
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

type statusBody struct {
	Status string `json:"status"`
	Error  string `json:"error,omitempty"`
}

func (s *Server) wake(w http.ResponseWriter, _ *http.Request, _ httprouter.Params) {
	s.cfg.Wake.Signal()
	s.writeJSON(w, http.StatusAccepted, statusBody{Status: "woken"})
}

func (s *Server) restart(w http.ResponseWriter, _ *http.Request, _ httprouter.Params) {
	if !s.cfg.Worker.Restart() {
		s.writeJSON(w, http.StatusConflict, statusBody{
			Status: s.cfg.Worker.Status().String(),
			Error:  "worker is not running",
		})
		return
	}
	s.writeJSON(w, http.StatusAccepted, statusBody{Status: "restarting"})
}

func (s *Server) healthz(w http.ResponseWriter, _ *http.Request, _ httprouter.Params) {
	s.writeJSON(w, http.StatusOK, statusBody{Status: s.cfg.Worker.Status().String()})
}

func (s *Server) readyz(w http.ResponseWriter, _ *http.Request, _ httprouter.Params) {
	if err := s.cfg.Worker.CheckUp(); err != nil {
		s.writeJSON(w, http.StatusServiceUnavailable, statusBody{
			Status: s.cfg.Worker.Status().String(),
			Error:  err.Error(),
		})
		return
	}
	s.writeJSON(w, http.StatusOK, statusBody{Status: s.cfg.Worker.Status().String()})
}

func (s *Server) response(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	id, err := netq.ParseID(ps.ByName("id"))
	if err != nil {
		s.writeJSON(w, http.StatusBadRequest, statusBody{Status: "invalid", Error: err.Error()})
		return
	}

	var opts netq.CollectOptions
	query := r.URL.Query()
	if raw := query.Get("blocking"); raw != "" {
		if opts.Blocking, err = strconv.ParseBool(raw); err != nil {
			s.writeJSON(w, http.StatusBadRequest, statusBody{Status: "invalid", Error: "blocking: " + err.Error()})
			return
		}
	}
	if raw := query.Get("max_wait"); raw != "" {
		if opts.MaxWait, err = time.ParseDuration(raw); err != nil || opts.MaxWait < 0 {
			s.writeJSON(w, http.StatusBadRequest, statusBody{Status: "invalid", Error: "max_wait must be a non-negative duration"})
			return
		}
	}
	if opts.Blocking && (opts.MaxWait == 0 || opts.MaxWait > s.cfg.MaxWait) {
		opts.MaxWait = s.cfg.MaxWait
	}

	collection, err := s.cfg.Collector.Collect(r.Context(), id, opts)
	switch {
	case errors.Is(err, netq.ErrNotFound):
		s.writeJSON(w, http.StatusNotFound, NewCollectionView(collection))
	case err != nil:
		s.cfg.Logger.Warn("netq admin collect failed", "id", id, "err", err)
		s.writeJSON(w, http.StatusInternalServerError, statusBody{Status: "failed", Error: err.Error()})
	default:
		s.writeJSON(w, http.StatusOK, NewCollectionView(collection))
	}
}

func (s *Server) stats(w http.ResponseWriter, _ *http.Request, _ httprouter.Params) {
	s.writeJSON(w, http.StatusOK, s.cfg.Stats.Snapshot())
}

func (s *Server) writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set(headerContentType, contentTypeJSON)
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.cfg.Logger.Debug("netq admin write failed", "err", err)
	}
}
