package web

import (
	"context"
	"expvar"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/mux"
	jsoniter "github.com/json-iterator/go"
	"github.com/sirupsen/logrus"

	"github.com/jc2k/cwstatsd/pkg/healthcheck"
)

// StatsFunc returns a value describing the state of the server, rendered as JSON on /stats.
type StatsFunc func() interface{}

// GaugeDeleter removes the named gauge, returning false if it did not exist.
type GaugeDeleter func(name string) bool

type httpServer struct {
	logger  logrus.FieldLogger
	address string
	Router  *mux.Router
}

type route struct {
	path    string
	handler http.HandlerFunc
	method  string
	name    string
}

var done = struct{}{}

// NewHttpServer creates the operational HTTP server.  It serves /healthcheck and /deepcheck from the
// supplied checks, /expvar, /stats if stats is not nil, and DELETE /gauges/{name} if deleteGauge is not nil.
func NewHttpServer(
	logger logrus.FieldLogger,
	address string,
	healthChecks []healthcheck.HealthcheckFunc,
	deepChecks []healthcheck.HealthcheckFunc,
	stats StatsFunc,
	deleteGauge GaugeDeleter,
) (*httpServer, error) {
	server := &httpServer{
		logger:  logger,
		address: address,
	}

	hc := &healthChecker{
		logger:       logger,
		healthChecks: healthChecks,
		deepChecks:   deepChecks,
	}
	routes := []route{
		{path: "/healthcheck", handler: hc.healthCheck, method: "GET", name: "healthcheck_get"},
		{path: "/deepcheck", handler: hc.deepCheck, method: "GET", name: "deepcheck_get"},
		{path: "/expvar", handler: expvar.Handler().ServeHTTP, method: "GET", name: "expvar_get"},
	}
	if stats != nil {
		routes = append(routes, route{path: "/stats", handler: statsHandler(stats), method: "GET", name: "stats_get"})
	}
	if deleteGauge != nil {
		routes = append(routes, route{path: "/gauges/{name}", handler: server.deleteGaugeHandler(deleteGauge), method: "DELETE", name: "gauge_delete"})
	}

	router, err := createRoutes(routes)
	if err != nil {
		return nil, err
	}
	router.NotFoundHandler = server.logRequest(http.HandlerFunc(server.notFound))
	router.Use(server.logRequest)
	server.Router = router

	logger.WithFields(logrus.Fields{
		"address":      address,
		"healthchecks": len(healthChecks),
		"deepchecks":   len(deepChecks),
	}).Info("Created server")

	return server, nil
}

func statsHandler(stats StatsFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, req *http.Request) {
		w.Header().Set("content-type", "application/json")
		w.WriteHeader(http.StatusOK)
		enc := jsoniter.NewEncoder(w)
		enc.SetIndent("", "  ")
		_ = enc.Encode(stats())
	}
}

// deleteGaugeHandler stops a gauge from being carried forward into future windows.
func (hs *httpServer) deleteGaugeHandler(deleteGauge GaugeDeleter) http.HandlerFunc {
	return func(w http.ResponseWriter, req *http.Request) {
		name := mux.Vars(req)["name"]
		if !deleteGauge(name) {
			hs.notFound(w, req)
			return
		}
		hs.logger.WithField("gauge", name).Info("Deleted gauge")
		w.WriteHeader(http.StatusNoContent)
	}
}

func (hs *httpServer) notFound(w http.ResponseWriter, req *http.Request) {
	w.WriteHeader(404)
	_, _ = w.Write([]byte("not found"))
}

func createRoutes(routes []route) (*mux.Router, error) {
	router := mux.NewRouter()

	for _, route := range routes {
		r := router.HandleFunc(route.path, route.handler).Methods(route.method).Name(route.name)
		if err := r.GetError(); err != nil {
			return nil, fmt.Errorf("error creating route %s: %v", route.name, err)
		}
	}

	return router, nil
}

func (hs *httpServer) logRequest(handler http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		logFields := logrus.Fields{
			"srcip": strings.Split(req.RemoteAddr, ":")[0],
			"path":  req.URL.Path,
		}
		if route := mux.CurrentRoute(req); route == nil {
			logFields["method"] = req.Method
		} else {
			logFields["route"] = route.GetName()
		}
		if source := req.Header.Get("X-Forwarded-For"); source != "" {
			logFields["forwarded_for"] = source
		}

		start := time.Now()
		handler.ServeHTTP(w, req)
		dur := time.Since(start)

		logFields["duration"] = float64(dur) / float64(time.Millisecond)
		hs.logger.WithFields(logFields).Debug("request")
	})
}

// Run serves until ctx is done, then shuts the server down gracefully.
func (hs *httpServer) Run(ctx context.Context) {
	server := &http.Server{
		Addr:    hs.address,
		Handler: hs.Router,
	}

	chStopped := make(chan struct{}, 1)
	go hs.waitAndStop(ctx, server, chStopped)

	hs.logger.WithField("address", server.Addr).Info("listening")

	err := server.ListenAndServe()
	if err != http.ErrServerClosed {
		hs.logger.WithError(err).Error("web server failed")
		return
	}

	// Wait for graceful shutdown of existing connections
	select {
	case <-chStopped:
		// happy
	case <-time.After(6 * time.Second):
		hs.logger.Info("timeout waiting for webserver to stop")
	}
}

// waitAndStop will gracefully shut down the Server when the Context passed is cancelled.  It signals
// on chStopped when it is done.  There is no guarantee that it will actually signal, if the server
// does not shutdown.
func (hs *httpServer) waitAndStop(ctx context.Context, server *http.Server, chStopped chan<- struct{}) {
	<-ctx.Done()

	hs.logger.Info("shutting down web server")
	timeoutCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	err := server.Shutdown(timeoutCtx)
	if err != nil {
		hs.logger.WithError(err).Warn("failed to stop web server")
	}
	chStopped <- done
}
