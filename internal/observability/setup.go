package observability

import (
	"context"
	"net/http"

	"github.com/honeynil/GymMembershipMarket/internal/infrastructure/observability"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Setup wires logs, metrics and traces for the process. It returns the tracer
// shutdown hook and the handler serving the registered metrics.
func Setup(ctx context.Context, serviceName, logLevel, otlpEndpoint string) (func(context.Context) error, http.Handler, error) {
	observability.InitLogger(logLevel)
	observability.InitMetrics(prometheus.DefaultRegisterer)
	shutdown, err := observability.InitTracing(ctx, serviceName, otlpEndpoint)
	if err != nil {
		return nil, nil, err
	}
	return shutdown, promhttp.Handler(), nil
}
