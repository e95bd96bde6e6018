package mid

import (
	"context"
	"net/http"

	"github.com/leakwatch/leakwatch/internal/api/errs"
	"github.com/leakwatch/leakwatch/pkg/common/logger"
	"github.com/leakwatch/leakwatch/pkg/web"
)

// Errors handles errors coming out of the call chain. It detects normal
// application errors which are used to respond to the client in a uniform way.
// Unexpected errors (status >= 500) are logged.
func Errors(log *logger.Logger) web.MidFunc {
	m := func(next web.HandlerFunc) web.HandlerFunc {
		h := func(ctx context.Context, r *http.Request) web.Encoder {
			resp := next(ctx, r)

			err, isError := resp.(error)
			if !isError {
				return resp
			}

			switch v := err.(type) {
			case errs.Error:
				if v.HTTPStatus() >= http.StatusInternalServerError {
					log.Error(ctx, "handler error", "code", v.Code.String(), "message", v.Message)
				}
				return v

			case errs.FieldErrors:
				return errs.New(errs.InvalidArgument, v)

			default:
				log.Error(ctx, "unexpected handler error", "error", err)
				return errs.Newf(errs.Internal, "internal error")
			}
		}

		return h
	}

	return m
}
