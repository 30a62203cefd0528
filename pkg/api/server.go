package api

import (
	"net/http"

	"github.com/gorilla/mux"
	"github.com/sirupsen/logrus"

	"github.com/platinummonkey/plughost/pkg/httputil"
)

// RouteRegistrar is an interface for types that can register routes
type RouteRegistrar interface {
	RegisterRoutes(router *mux.Router)
}

// Server is the HTTP entry point of the host
type Server struct {
	router  *mux.Router
	handler http.Handler
}

// NewServer creates a server with the routes of every registrar, wrapped in
// request id, logging and panic recovery middleware.
// Route middleware only runs for matched routes, in the given order.
func NewServer(log *logrus.Logger, registrars []RouteRegistrar, routeMiddleware ...mux.MiddlewareFunc) *Server {
	if log == nil {
		log = logrus.New()
	}

	s := &Server{router: mux.NewRouter()}
	s.router.NotFoundHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		httputil.WriteNotFoundError(w, "not found")
	})
	s.router.Use(routeMiddleware...)
	for _, reg := range registrars {
		s.RegisterRoutes(reg)
	}

	s.handler = httputil.Chain(
		httputil.RequestIDMiddleware,
		httputil.LoggingMiddleware(log),
		httputil.RecoveryMiddleware(log),
	)(s.router)

	return s
}

// RegisterRoutes registers routes from a RouteRegistrar
func (s *Server) RegisterRoutes(registrar RouteRegistrar) {
	registrar.RegisterRoutes(s.router)
}

// Router returns the underlying router, without middleware
func (s *Server) Router() *mux.Router {
	return s.router
}

// ServeHTTP implements http.Handler
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.handler.ServeHTTP(w, r)
}
