// Package rpcmesh implements the RPC Mesh: the HTTP surface every node
// exposes, both to game clients and to its peers. Middleware stack and
// lifecycle (Start/Shutdown with signal handling, the WriteJSON/WriteError
// response helpers) are carried over from the teacher's chi-based admin
// server; the routes themselves are this system's client- and peer-facing
// endpoints (spec.md §4.3) plus the ambient status dashboard and optional
// GraphQL introspection endpoint.
package rpcmesh

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/mnohosten/cardmesh/internal/eventbus"
	"github.com/mnohosten/cardmesh/internal/graphqlapi"
	"github.com/mnohosten/cardmesh/internal/model"
	"github.com/mnohosten/cardmesh/internal/store"
	"github.com/mnohosten/cardmesh/internal/txn"
)

// metricsExporter is the subset of internal/metrics.PrometheusExporter the
// server depends on for the /_metrics endpoint.
type metricsExporter interface {
	WriteMetrics(w io.Writer) error
}

// Server is this node's HTTP listener: client-facing gameplay endpoints,
// peer-facing 2PC endpoints, and the ambient status/GraphQL surface.
type Server struct {
	config *Config

	nodeName string
	engine   *txn.Engine
	store    *store.Store
	bus      *eventbus.Bus
	exporter metricsExporter

	router    *chi.Mux
	httpSrv   *http.Server
	startTime time.Time
}

// New builds a Server wired to the given node identity and already-running
// components.
func New(config *Config, nodeName string, engine *txn.Engine, st *store.Store, bus *eventbus.Bus, exporter metricsExporter) (*Server, error) {
	s := &Server{
		config:    config,
		nodeName:  nodeName,
		engine:    engine,
		store:     st,
		bus:       bus,
		exporter:  exporter,
		router:    chi.NewRouter(),
		startTime: time.Now(),
	}

	s.setupMiddleware()
	s.setupRoutes()

	if config.EnableGraphQL {
		if err := s.setupGraphQLRoute(); err != nil {
			return nil, fmt.Errorf("setup graphql route: %w", err)
		}
	}

	s.httpSrv = &http.Server{
		Addr:         fmt.Sprintf("%s:%d", config.Host, config.Port),
		Handler:      s.router,
		ReadTimeout:  config.ReadTimeout,
		WriteTimeout: config.WriteTimeout,
		IdleTimeout:  config.IdleTimeout,
	}

	return s, nil
}

func (s *Server) setupMiddleware() {
	s.router.Use(middleware.RequestID)
	s.router.Use(middleware.RealIP)
	s.router.Use(middleware.Recoverer)

	if s.config.EnableLogging {
		s.router.Use(middleware.Logger)
	}
	if s.config.EnableCORS {
		s.router.Use(s.corsMiddleware)
	}
	s.router.Use(s.requestSizeLimitMiddleware)
	s.router.Use(middleware.Timeout(30 * time.Second))
}

func (s *Server) setupRoutes() {
	s.router.Get("/", s.handleRoot)

	// Client-facing.
	s.router.Post("/jogador/entrar", s.handleJoin)
	s.router.Get("/inventario/{player_id}", s.handleGetInventory)
	s.router.Post("/pacote/abrir/{player_id}", s.handleOpenPack)
	s.router.Post("/inventario/troca/{player_a}/{player_b}", s.handleTrade)

	// Peer-facing.
	s.router.Post("/transacao/abrir_pacote/prepare", s.handlePreparePeer(model.TxKindOpenPack))
	s.router.Post("/transacao/abrir_pacote/commit_abort", s.handleDecidePeer(model.TxKindOpenPack))
	s.router.Post("/inventario/troca/prepare", s.handlePreparePeer(model.TxKindTradeCards))
	s.router.Post("/inventario/troca/commit_abort", s.handleDecidePeer(model.TxKindTradeCards))

	// Ambient.
	s.router.Get("/_ws/status", s.handleStatusWS)
	s.router.Get("/_metrics", s.handlePrometheusMetrics)
}

func (s *Server) setupGraphQLRoute() error {
	handler, err := graphqlapi.NewHandler(s.store)
	if err != nil {
		return err
	}
	s.router.Post("/graphql", handler.ServeHTTP)
	log.Println("rpcmesh: read-only GraphQL endpoint enabled at /graphql")
	return nil
}

func (s *Server) corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		origin := "*"
		if len(s.config.AllowedOrigins) > 0 {
			origin = s.config.AllowedOrigins[0]
		}
		w.Header().Set("Access-Control-Allow-Origin", origin)
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, X-Request-ID")
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) requestSizeLimitMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		r.Body = http.MaxBytesReader(w, r.Body, s.config.MaxRequestSize)
		next.ServeHTTP(w, r)
	})
}

func (s *Server) handlePrometheusMetrics(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain; version=0.0.4; charset=utf-8")
	if s.exporter == nil {
		return
	}
	if err := s.exporter.WriteMetrics(w); err != nil {
		http.Error(w, fmt.Sprintf("error writing metrics: %v", err), http.StatusInternalServerError)
	}
}

// Start runs the HTTP server and blocks until a shutdown signal or a fatal
// listener error.
func (s *Server) Start() error {
	log.Printf("rpcmesh: %s listening on %s", s.nodeName, s.httpSrv.Addr)

	errCh := make(chan error, 1)
	go func() {
		if err := s.httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- fmt.Errorf("listen: %w", err)
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)

	select {
	case err := <-errCh:
		return err
	case sig := <-sigCh:
		log.Printf("rpcmesh: received signal %v, shutting down", sig)
		return s.Shutdown()
	}
}

// Shutdown gracefully drains the HTTP listener.
func (s *Server) Shutdown() error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return s.httpSrv.Shutdown(ctx)
}

// WriteJSON writes data as a JSON response with the given status code.
func WriteJSON(w http.ResponseWriter, statusCode int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		log.Printf("rpcmesh: error encoding response: %v", err)
	}
}

// WriteError writes a structured error response.
func WriteError(w http.ResponseWriter, statusCode int, errorType, message string) {
	WriteJSON(w, statusCode, map[string]interface{}{
		"ok":      false,
		"error":   errorType,
		"message": message,
	})
}

// WriteSuccess writes a structured success response.
func WriteSuccess(w http.ResponseWriter, result interface{}) {
	WriteJSON(w, http.StatusOK, map[string]interface{}{
		"ok":     true,
		"result": result,
	})
}
