package middleware

import (
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/platelab/labeler/internal/errors"
)

// RequestRecorder receives one observation per served request.
type RequestRecorder interface {
	RecordRequest(method, route string, status int, seconds float64)
}

// NewMetrics records method, matched route, status and latency of every request.
// The route is the registered pattern, not the concrete path, so image names
// never become label values.
func NewMetrics(rec RequestRecorder) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			start := time.Now()
			err := next(c)

			status := c.Response().Status
			if err != nil {
				var he *echo.HTTPError
				if errors.As(err, &he) {
					status = he.Code
				} else if !c.Response().Committed {
					status = http.StatusInternalServerError
				}
			}

			route := c.Path()
			if route == "" {
				route = "unmatched"
			}
			rec.RecordRequest(c.Request().Method, route, status, time.Since(start).Seconds())
			return err
		}
	}
}
