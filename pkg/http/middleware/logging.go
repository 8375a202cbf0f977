package middleware

import (
	"time"

	applogger "DecisionCore/pkg/logger"

	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
)

// RequestID tags each request with X-Request-ID, reusing the caller's id
// when one is sent.
func RequestID() echo.MiddlewareFunc {
	return echomw.RequestID()
}

// RequestLogging logs every request at debug level. Scrapes of the metrics
// and health endpoints are skipped.
func RequestLogging(l *applogger.Logger, skip ...string) echo.MiddlewareFunc {
	skipped := make(map[string]struct{}, len(skip))
	for _, p := range skip {
		skipped[p] = struct{}{}
	}
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			if _, ok := skipped[c.Path()]; ok {
				return next(c)
			}
			start := time.Now()
			err := next(c)

			res := c.Response()
			l.Debug("http request",
				applogger.String("request_id", requestID(c)),
				applogger.String("method", c.Request().Method),
				applogger.String("route", c.Path()),
				applogger.String("symbol", c.Param("symbol")),
				applogger.String("remote", c.RealIP()),
				applogger.Int("status", res.Status),
				applogger.Int64("bytes", res.Size),
				applogger.Duration("latency", time.Since(start)),
			)
			return err
		}
	}
}

// requestID is the id RequestID set on the response.
func requestID(c echo.Context) string {
	return c.Response().Header().Get(echo.HeaderXRequestID)
}
