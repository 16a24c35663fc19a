package api

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"
	"github.com/honeynil/GymMembershipMarket/internal/handler"
	"github.com/honeynil/GymMembershipMarket/internal/infrastructure/auth"
	"github.com/honeynil/GymMembershipMarket/internal/infrastructure/observability"
	"github.com/honeynil/GymMembershipMarket/internal/infrastructure/redis"
)

func SetupRouter(h *handler.Handler, tokens auth.TokenParser, redisClient redis.RedisClient, metricsHandler http.Handler) *mux.Router {
	r := mux.NewRouter()
	r.Use(metricsMiddleware)

	r.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"status":"ok"}`))
	}).Methods(http.MethodGet)
	if metricsHandler != nil {
		r.Handle("/metrics", metricsHandler).Methods(http.MethodGet)
	}

	apiRouter := r.PathPrefix("/api").Subrouter()

	// Protected routes are matched first so POST /listings does not fall
	// through to the public GET.
	protected := apiRouter.NewRoute().Subrouter()
	protected.Use(auth.AuthMiddleware(tokens, redisClient))
	h.RegisterProtectedRoutes(protected)

	h.RegisterPublicRoutes(apiRouter)
	return r
}

// metricsMiddleware records request count and latency labelled by the
// matched route template, so path parameters do not explode cardinality.
func metricsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		recorder := &statusRecorder{ResponseWriter: w}
		next.ServeHTTP(recorder, r)

		route := "unmatched"
		if current := mux.CurrentRoute(r); current != nil {
			if tpl, err := current.GetPathTemplate(); err == nil {
				route = tpl
			}
		}
		if recorder.status == 0 {
			recorder.status = http.StatusOK
		}
		observability.HTTPRequests.WithLabelValues(r.Method, route, strconv.Itoa(recorder.status)).Inc()
		observability.HTTPDuration.WithLabelValues(r.Method, route).Observe(time.Since(start).Seconds())
	})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

func (r *statusRecorder) Write(b []byte) (int, error) {
	if r.status == 0 {
		r.status = http.StatusOK
	}
	return r.ResponseWriter.Write(b)
}
