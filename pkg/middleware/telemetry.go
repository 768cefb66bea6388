package middleware

import (
	"strconv"
	"time"

	"github.com/gofiber/fiber/v2"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"
)

var (
	httpTracer      = otel.Tracer("finsight/http")
	httpMeter       = otel.Meter("finsight/http")
	httpDuration, _ = httpMeter.Float64Histogram("http.server.request.duration", metric.WithDescription("HTTP request duration in seconds"), metric.WithUnit("s"))
	httpActive, _   = httpMeter.Int64UpDownCounter("http.server.active_requests", metric.WithDescription("In-flight HTTP requests"))
)

// Telemetry opens a server span per request and records its duration by
// route template, method and status.
func Telemetry() fiber.Handler {
	return func(c *fiber.Ctx) error {
		carrier := propagation.HeaderCarrier{}
		c.Request().Header.VisitAll(func(k, v []byte) {
			carrier.Set(string(k), string(v))
		})
		ctx := otel.GetTextMapPropagator().Extract(c.UserContext(), carrier)

		ctx, span := httpTracer.Start(ctx, c.Method()+" "+c.Path(), trace.WithSpanKind(trace.SpanKindServer))
		defer span.End()
		c.SetUserContext(ctx)

		httpActive.Add(ctx, 1)
		defer httpActive.Add(ctx, -1)

		start := time.Now()
		err := c.Next()
		if err != nil {
			// let the app error handler pick the status before it is recorded
			if handlerErr := c.App().ErrorHandler(c, err); handlerErr != nil {
				_ = c.SendStatus(fiber.StatusInternalServerError)
			}
		}

		status := c.Response().StatusCode()
		route := c.Route().Path
		span.SetName(c.Method() + " " + route)
		span.SetAttributes(
			attribute.String("http.request.method", c.Method()),
			attribute.String("http.route", route),
			attribute.Int("http.response.status_code", status),
		)
		if status >= fiber.StatusInternalServerError {
			span.SetStatus(codes.Error, strconv.Itoa(status))
		}

		httpDuration.Record(ctx, time.Since(start).Seconds(), metric.WithAttributes(
			attribute.String("http.request.method", c.Method()),
			attribute.String("http.route", route),
			attribute.Int("http.response.status_code", status),
		))
		return nil
	}
}
