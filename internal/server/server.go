// Package server exposes the schema registry and the query pipeline over
// HTTP.
package server

import (
	"context"
	"errors"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/koustreak/dataagent/internal/logger"
	"github.com/koustreak/dataagent/internal/model"
	"github.com/koustreak/dataagent/internal/snapshot"
)

// Schemas is the registry side of the agent.
type Schemas interface {
	Schemas() []*model.EntityDescriptor
	Schema(id string) (*model.EntityDescriptor, bool)
	SchemaByTable(table string) (*model.EntityDescriptor, bool)
	Summary() map[string]string
	HasSchema(id string) bool
	Count() int
	Clear()
	EntityInfo(id string) (string, bool)
	EntityNames() []string
	TableNames() []string
	DiscoverAndLearn(ctx context.Context, scope string, force bool) ([]*model.EntityDescriptor, error)
}

// Queries is the execution side of the agent.
type Queries interface {
	ProcessNaturalLanguage(ctx context.Context, text, dialect string) *model.QueryResult
	ExecuteSQL(ctx context.Context, sql string, params map[string]any) *model.QueryResult
	IsReady(ctx context.Context) bool
	DatabaseInfo(ctx context.Context) map[string]any
	Tables(ctx context.Context) ([]string, bool)
}

// Snapshots persists the registry contents.
type Snapshots interface {
	Save(ctx context.Context, ds []*model.EntityDescriptor) (snapshot.Info, error)
	List(ctx context.Context) ([]snapshot.Info, error)
}

// Server routes the REST API onto the agent.
type Server struct {
	router    chi.Router
	schemas   Schemas
	queries   Queries
	snapshots Snapshots
	metrics   http.Handler
	metricsAt string
	log       *logger.Logger
	now       func() time.Time
}

type Option func(*Server)

func WithLogger(l *logger.Logger) Option {
	return func(s *Server) {
		if l != nil {
			s.log = l
		}
	}
}

// WithMetrics mounts h at path.
func WithMetrics(path string, h http.Handler) Option {
	return func(s *Server) {
		s.metrics = h
		s.metricsAt = path
	}
}

// WithSnapshots enables the /api/snapshots endpoints.
func WithSnapshots(snap Snapshots) Option {
	return func(s *Server) { s.snapshots = snap }
}

func New(schemas Schemas, queries Queries, opts ...Option) *Server {
	s := &Server{
		schemas: schemas,
		queries: queries,
		log:     logger.Nop(),
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	s.log = s.log.Component("server")
	s.router = s.routes()
	return s
}

// Handler returns the root handler.
func (s *Server) Handler() http.Handler { return s.router }

// ListenAndServe serves on addr until ctx is cancelled, then drains
// in-flight requests.
func (s *Server) ListenAndServe(ctx context.Context, addr string, readTimeout, writeTimeout time.Duration) error {
	srv := &http.Server{
		Addr:         addr,
		Handler:      s.router,
		ReadTimeout:  readTimeout,
		WriteTimeout: writeTimeout,
		BaseContext:  func(_ net.Listener) context.Context { return ctx },
	}

	errCh := make(chan error, 1)
	go func() {
		s.log.InfoWith("http server listening", map[string]any{"addr": addr})
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	s.log.Info("http server shutting down")
	return srv.Shutdown(shutdownCtx)
}

func (s *Server) routes() chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(s.requestLogger)
	r.Use(middleware.Recoverer)

	r.Route("/api", func(r chi.Router) {
		r.Route("/schemas", func(r chi.Router) {
			r.Get("/", s.listSchemas)
			r.Delete("/", s.clearSchemas)
			r.Get("/summary", s.summary)
			r.Get("/count", s.count)
			r.Get("/table/{table}", s.schemaByTable)
			r.Get("/{id}", s.schema)
			r.Get("/{id}/exists", s.schemaExists)
		})
		r.Get("/entities/names", s.entityNames)
		r.Get("/entities/{id}/info", s.entityInfo)
		r.Get("/tables/names", s.tableNames)
		r.Post("/discover", s.discover)

		r.Post("/query/natural-language", s.naturalLanguage)
		r.Post("/query/sql", s.sql)

		r.Get("/status", s.status)
		r.Get("/database/info", s.databaseInfo)
		r.Get("/database/tables", s.databaseTables)
		r.Get("/health", s.health)

		r.Get("/snapshots", s.listSnapshots)
		r.Post("/snapshots", s.saveSnapshot)
	})

	if s.metrics != nil {
		r.Method(http.MethodGet, s.metricsAt, s.metrics)
	}
	return r
}

// requestLogger mirrors chi's middleware.Logger onto the structured logger
// and places a request-scoped logger in the context.
func (s *Server) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := s.now()
		reqLog := s.log.With().Str("request_id", middleware.GetReqID(r.Context())).Logger()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

		next.ServeHTTP(ww, r.WithContext(reqLog.WithContext(r.Context())))

		reqLog.HTTPEvent().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", ww.Status()).
			Int("bytes", ww.BytesWritten()).
			Dur("duration", s.now().Sub(start)).
			Msg("http request")
	})
}
