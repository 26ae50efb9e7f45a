package server

import (
	"time"

	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/at-ishikawa/dreamjournal/internal/validation"
)

// validatable is a pointer to a request type that can validate itself.
type validatable[Req any] interface {
	*Req
	validation.Validatable
}

// Handle adapts a typed handler into an echo.HandlerFunc. Each call binds
// and validates a fresh Req before invoking handler, then writes the result
// as JSON with status.
func Handle[Req any, PReq validatable[Req], Res any](
	status int,
	handler func(c echo.Context, req PReq) (Res, error),
) echo.HandlerFunc {
	return func(c echo.Context) error {
		start := time.Now()
		logger := GetLogger(c)

		req := PReq(new(Req))
		if err := validation.BindAndValidate(c, req); err != nil {
			logger.Debug().Err(err).Msg("request validation failed")
			return err
		}

		result, err := handler(c, req)
		if err != nil {
			logger.Debug().Err(err).Dur("handler_duration", time.Since(start)).Msg("handler execution failed")
			return errors.WithStack(err)
		}

		logger.Debug().Dur("handler_duration", time.Since(start)).Msg("request completed successfully")
		return c.JSON(status, result)
	}
}
