package middleware

import (
	"fmt"
	"net/http"
	"runtime"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/ehr/records/internal/platform/auth"
)

// Recovery turns a handler panic into a 500. The log line carries the same
// request_id and actor_id an audit record of the request would carry.
func Recovery(logger zerolog.Logger) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) (err error) {
			defer func() {
				r := recover()
				if r == nil {
					return
				}
				if r == http.ErrAbortHandler {
					panic(r)
				}

				var stack [4096]byte
				n := runtime.Stack(stack[:], false)

				req := c.Request()
				rid, _ := c.Get(RequestIDKey).(string)
				evt := logger.Error().
					Str("type", "panic").
					Str("request_id", rid).
					Str("method", req.Method).
					Str("path", req.URL.Path)
				if actor, ok := auth.ActorFromContext(req.Context()); ok {
					evt = evt.Str("actor_id", actor.ID())
				}
				if perr, ok := r.(error); ok {
					evt = evt.Err(perr)
				}
				evt.Str("panic", fmt.Sprint(r)).
					Str("stack", string(stack[:n])).
					Msg("panic recovered")

				err = echo.NewHTTPError(http.StatusInternalServerError, "internal server error")
			}()
			return next(c)
		}
	}
}
