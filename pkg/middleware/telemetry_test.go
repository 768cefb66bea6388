package middleware

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gofiber/fiber/v2"
)

func TestTelemetry(t *testing.T) {
	app := fiber.New()
	app.Use(Telemetry())
	app.Get("/ok", func(c *fiber.Ctx) error {
		if c.UserContext() == context.Background() {
			t.Error("user context was not replaced")
		}
		return c.SendStatus(http.StatusAccepted)
	})
	app.Get("/teapot", func(c *fiber.Ctx) error {
		return fiber.ErrTeapot
	})

	tests := []struct {
		path string
		want int
	}{
		{path: "/ok", want: http.StatusAccepted},
		{path: "/teapot", want: http.StatusTeapot},
		{path: "/missing", want: http.StatusNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, tt.path, nil)
			req.Header.Set("traceparent", "00-4bf92f3577b34da6a3ce929d0e0e4736-00f067aa0ba902b7-01")

			resp, err := app.Test(req)
			if err != nil {
				t.Fatalf("app.Test() error = %v", err)
			}
			if resp.StatusCode != tt.want {
				t.Errorf("status = %d, want %d", resp.StatusCode, tt.want)
			}
		})
	}
}
