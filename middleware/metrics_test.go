package middleware_test

import (
	"context"
	"net/http/httptest"
	"testing"

	"github.com/fazamuttaqien/permitting/middleware"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/attribute"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
	"go.uber.org/zap"
)

// requestCounts returns the request counter keyed by route and status.
func requestCounts(t *testing.T, reader *sdkmetric.ManualReader) map[string]int64 {
	t.Helper()

	var rm metricdata.ResourceMetrics
	require.NoError(t, reader.Collect(context.Background(), &rm))

	counts := map[string]int64{}
	for _, scope := range rm.ScopeMetrics {
		for _, m := range scope.Metrics {
			if m.Name != "http.server.request.count" {
				continue
			}
			sum, ok := m.Data.(metricdata.Sum[int64])
			require.True(t, ok)
			for _, dp := range sum.DataPoints {
				route, _ := dp.Attributes.Value(attribute.Key("http.route"))
				status, _ := dp.Attributes.Value(attribute.Key("http.status_code"))
				counts[route.AsString()+" "+status.Emit()] += dp.Value
			}
		}
	}
	return counts
}

func TestRequestMetrics_RecordsRoutePatternAndErrorStatus(t *testing.T) {
	reader := sdkmetric.NewManualReader()
	provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))

	metrics, err := middleware.NewRequestMetrics(provider.Meter("test"), zap.NewNop())
	require.NoError(t, err)

	app := fiber.New()
	app.Use(metrics.Handle())
	app.Get("/applications/:id", func(c *fiber.Ctx) error {
		if c.Params("id") == "404" {
			return fiber.ErrNotFound
		}
		return c.SendStatus(fiber.StatusOK)
	})

	for _, path := range []string{"/applications/1", "/applications/2", "/applications/404"} {
		resp, err := app.Test(httptest.NewRequest(fiber.MethodGet, path, nil))
		require.NoError(t, err)
		resp.Body.Close()
	}

	counts := requestCounts(t, reader)
	assert.Equal(t, int64(2), counts["/applications/:id 200"])
	assert.Equal(t, int64(1), counts["/applications/:id 404"])
}
