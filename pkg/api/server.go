/*
Package api exposes the VOSpace HTTP surface.

The server is a stateless translator: it resolves the caller identity,
normalizes node paths, validates query options, and routes to the
metadata store or the transfer engine, mapping typed errors onto HTTP
status codes. The data-plane endpoints of the storage backend and the
prometheus metrics handler are mounted alongside.
*/
package api

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/icrar/govospace/pkg/errtypes"
	"github.com/icrar/govospace/pkg/events"
	"github.com/icrar/govospace/pkg/executor"
	"github.com/icrar/govospace/pkg/health"
	"github.com/icrar/govospace/pkg/log"
	"github.com/icrar/govospace/pkg/metrics"
	"github.com/icrar/govospace/pkg/space"
	"github.com/icrar/govospace/pkg/storage"
	"github.com/icrar/govospace/pkg/vosxml"
)

// Config tunes the request dispatcher.
type Config struct {
	// DirectoryLimit caps the limit query option on node reads.
	DirectoryLimit int

	// Checkers back the health endpoint.
	Checkers []health.Checker
}

// Server routes VOSpace requests to the store and the executor.
type Server struct {
	router  *chi.Mux
	store   storage.Store
	exec    *executor.Executor
	backend space.Backend
	storage space.Storage
	broker  *events.Broker
	codec   *vosxml.Codec
	cfg     Config
	logger  zerolog.Logger
}

// NewServer wires the dispatcher. storageHandlers may be nil when the
// data plane is served by a separate process.
func NewServer(store storage.Store, exec *executor.Executor, backend space.Backend, storageHandlers space.Storage, broker *events.Broker, codec *vosxml.Codec, cfg Config) *Server {
	if cfg.DirectoryLimit <= 0 {
		cfg.DirectoryLimit = 1000
	}
	s := &Server{
		router:  chi.NewRouter(),
		store:   store,
		exec:    exec,
		backend: backend,
		storage: storageHandlers,
		broker:  broker,
		codec:   codec,
		cfg:     cfg,
		logger:  log.WithComponent("api"),
	}
	s.initRouter()
	return s
}

// Router returns the mounted handler.
func (s *Server) Router() http.Handler { return s.router }

func (s *Server) initRouter() {
	r := s.router
	r.Use(s.instrument)

	r.Route("/vospace", func(r chi.Router) {
		r.Use(s.withIdentity)
		r.Get("/protocols", s.getProtocols)
		r.Get("/properties", s.getProperties)

		r.Get("/nodes/*", s.getNode)
		r.Put("/nodes/*", s.createNode)
		r.Post("/nodes/*", s.setNodeProperties)
		r.Delete("/nodes/*", s.deleteNode)

		r.Post("/transfers", s.createTransfer)
		r.Post("/synctrans", s.syncTransfer)
		r.Get("/transfers/{jobID}", s.getJob)
		r.Get("/transfers/{jobID}/phase", s.getJobPhase)
		r.Post("/transfers/{jobID}/phase", s.modifyJobPhase)
		r.Get("/transfers/{jobID}/results/transferDetails", s.getTransferDetails)
	})

	if s.storage != nil {
		r.Put("/data/*", stripData(s.storage.Upload))
		r.Get("/data/*", stripData(s.storage.Download))
	}

	r.Get("/health", health.Handler(s.cfg.Checkers...))
	r.Handle("/metrics", promhttp.Handler())
}

func stripData(h http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		http.StripPrefix("/data", h).ServeHTTP(w, r)
	}
}

// instrument records prometheus request metrics.
func (s *Server) instrument(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, code: http.StatusOK}
		next.ServeHTTP(rec, r)

		route := chi.RouteContext(r.Context()).RoutePattern()
		if route == "" {
			route = r.URL.Path
		}
		metrics.RequestsTotal.WithLabelValues(r.Method, route, strconv.Itoa(rec.code)).Inc()
		metrics.RequestDuration.WithLabelValues(route).Observe(time.Since(start).Seconds())
	})
}

type statusRecorder struct {
	http.ResponseWriter
	code int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.code = code
	r.ResponseWriter.WriteHeader(code)
}

type contextKey string

const identityKey contextKey = "identity"

// withIdentity resolves the caller identity from basic auth or the
// X-VOSpace-User header. Requests without an identity are denied.
func (s *Server) withIdentity(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		identity := ""
		if user, _, ok := r.BasicAuth(); ok {
			identity = user
		} else {
			identity = r.Header.Get("X-VOSpace-User")
		}
		if identity == "" {
			s.writeError(w, r, errtypes.PermissionDenied("credentials not found"))
			return
		}
		logger := log.WithIdentity(identity)
		logger.Debug().Str("path", r.URL.Path).Msg("request admitted")
		next.ServeHTTP(w, r.WithContext(withIdentity(r.Context(), identity)))
	})
}

func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	code := errtypes.Status(err)
	if code >= http.StatusInternalServerError {
		s.logger.Error().Err(err).Str("path", r.URL.Path).Msg("request failed")
	} else {
		s.logger.Debug().Err(err).Str("path", r.URL.Path).Msg("request rejected")
	}
	http.Error(w, err.Error(), code)
}

func (s *Server) writeXML(w http.ResponseWriter, code int, data []byte) {
	w.Header().Set("Content-Type", "text/xml")
	w.WriteHeader(code)
	w.Write(data)
}
