package middleware

import (
	"fmt"
	"runtime"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/dukerupert/courtbill/internal/domain"
)

// Recover turns a panicking handler into a 500 response and logs the stack.
func Recover(logger zerolog.Logger) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) (err error) {
			defer func() {
				r := recover()
				if r == nil {
					return
				}
				stack := make([]byte, 4<<10)
				stack = stack[:runtime.Stack(stack, false)]
				logger.Error().
					Str("panic", fmt.Sprint(r)).
					Str("path", c.Request().URL.Path).
					Str("request_id", GetRequestID(c.Request().Context())).
					Bytes("stack", stack).
					Msg("handler panicked")
				err = domain.Internal(fmt.Errorf("panic: %v", r), "http", "handler panicked")
			}()
			return next(c)
		}
	}
}
