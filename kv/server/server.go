package server

import (
	"context"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/pingcap-incubator/tinyds/kv/datastore"
	"github.com/pingcap/errors"
	"github.com/pingcap/log"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/unrolled/render"
	"github.com/urfave/negroni"
	"go.uber.org/zap"
)

const (
	apiPrefix = "/api/v1"
	pingAPI   = "/ping"
)

// Server exposes a datastore.Store over HTTP with JSON bodies.
type Server struct {
	store   *datastore.Store
	handler http.Handler
	httpSrv *http.Server
}

func NewServer(store *datastore.Store) *Server {
	s := &Server{store: store}
	n := negroni.New(negroni.NewRecovery(), negroni.HandlerFunc(logRequest))
	n.UseHandler(createRouter(store))
	s.handler = n
	return s
}

// Handler returns the HTTP handler of the API, for embedding and tests.
func (s *Server) Handler() http.Handler {
	return s.handler
}

// Run serves on addr until Close is called.
func (s *Server) Run(addr string) error {
	s.httpSrv = &http.Server{Addr: addr, Handler: s.handler}
	log.Info("http server listening", zap.String("addr", addr))
	if err := s.httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return errors.Trace(err)
	}
	return nil
}

// Close shuts the listener down, waiting up to timeout for requests in
// flight.
func (s *Server) Close(timeout time.Duration) error {
	if s.httpSrv == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	return errors.Trace(s.httpSrv.Shutdown(ctx))
}

func createRouter(store *datastore.Store) *mux.Router {
	rd := render.New(render.Options{
		IndentJSON: true,
	})

	router := mux.NewRouter()
	router.HandleFunc(pingAPI, func(w http.ResponseWriter, r *http.Request) {
		rd.JSON(w, http.StatusOK, "pong")
	}).Methods("GET")
	router.Handle("/metrics", promhttp.Handler()).Methods("GET")

	api := router.PathPrefix(apiPrefix + "/apps/{app}").Subrouter()

	entityHandler := newEntityHandler(store, rd)
	api.HandleFunc("/put", entityHandler.Put).Methods("POST")
	api.HandleFunc("/get", entityHandler.Get).Methods("POST")
	api.HandleFunc("/delete", entityHandler.Delete).Methods("POST")
	api.HandleFunc("/allocate_ids", entityHandler.AllocateIDs).Methods("POST")

	queryHandler := newQueryHandler(store, rd)
	api.HandleFunc("/query", queryHandler.Run).Methods("POST")
	api.HandleFunc("/next", queryHandler.Next).Methods("POST")
	api.HandleFunc("/count", queryHandler.Count).Methods("POST")
	api.HandleFunc("/query_history", queryHandler.History).Methods("GET")
	api.HandleFunc("/query_history", queryHandler.ClearHistory).Methods("DELETE")

	txnHandler := newTxnHandler(store, rd)
	api.HandleFunc("/transactions", txnHandler.Begin).Methods("POST")
	api.HandleFunc("/transactions/{tx}/commit", txnHandler.Commit).Methods("POST")
	api.HandleFunc("/transactions/{tx}/rollback", txnHandler.Rollback).Methods("POST")
	api.HandleFunc("/transactions/{tx}/actions", txnHandler.AddActions).Methods("POST")

	schemaHandler := newSchemaHandler(store, rd)
	api.HandleFunc("/schema", schemaHandler.Get).Methods("GET")
	api.HandleFunc("/drop", schemaHandler.Drop).Methods("POST")

	indexHandler := newIndexHandler(store, rd)
	api.HandleFunc("/indexes", indexHandler.List).Methods("GET")
	api.HandleFunc("/indexes", indexHandler.Create).Methods("POST")
	api.HandleFunc("/indexes/update", indexHandler.Update).Methods("POST")
	api.HandleFunc("/indexes/delete", indexHandler.Delete).Methods("POST")

	return router
}

func logRequest(w http.ResponseWriter, r *http.Request, next http.HandlerFunc) {
	start := time.Now()
	next(w, r)
	status := 0
	if rw, ok := w.(negroni.ResponseWriter); ok {
		status = rw.Status()
	}
	log.Debug("http request",
		zap.String("method", r.Method),
		zap.String("path", r.URL.Path),
		zap.Int("status", status),
		zap.Duration("duration", time.Since(start)))
}
