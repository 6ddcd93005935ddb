package echoapi

import (
	"net/http"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/pkg/errors"

	"github.com/laurinbuild/kantine/core"
	"github.com/laurinbuild/kantine/core/cashbook"
	"github.com/laurinbuild/kantine/core/catalog"
	"github.com/laurinbuild/kantine/core/order"
	"github.com/laurinbuild/kantine/core/payment"
	"github.com/laurinbuild/kantine/core/staff"
	"github.com/laurinbuild/kantine/core/theme"
	"github.com/laurinbuild/kantine/core/user"
)

var (
	errUnauthorized         = echo.NewHTTPError(http.StatusUnauthorized, "not authenticated")
	errAuthenticationFailed = echo.NewHTTPError(http.StatusUnauthorized, "authentication failed")
	errRefreshExpired       = echo.NewHTTPError(http.StatusForbidden, "refresh has expired")
	errHttpForbidden        = echo.NewHTTPError(http.StatusForbidden, "permission denied")
	errHttpNotFound         = echo.NewHTTPError(http.StatusNotFound, "not found")
)

// notFoundErrs map to a plain 404 regardless of domain.
var notFoundErrs = map[error]bool{
	user.ErrNotFound:            true,
	user.ErrRoleNotFound:        true,
	catalog.ErrBeverageNotFound: true,
	catalog.ErrItemNotFound:     true,
	order.ErrInvoiceNotFound:    true,
	payment.ErrNotFound:         true,
	payment.ErrRequestNotFound:  true,
	payment.ErrMyPOSNotFound:    true,
	cashbook.ErrEntryNotFound:   true,
	theme.ErrNotFound:           true,
}

// conflictErrs are valid requests racing the current state.
var conflictErrs = map[error]bool{
	user.ErrRoleInUse:      true,
	user.ErrPINSet:         true,
	payment.ErrNotPending:  true,
	order.ErrInvoiceExists: true,
}

// badRequestErrs are rejected inputs that carry their own message.
var badRequestErrs = map[error]bool{
	theme.ErrUnknownTheme:     true,
	user.ErrNoPIN:             true,
	user.ErrPINMismatch:       true,
	catalog.ErrNoPrice:        true,
	order.ErrBeverageInactive: true,
}

// newAppHTTPErrorHandler returns a custom echo.HTTPErrorHandler that knows how to handle our errors.
// signalShutdown is called in order to gracefully shutdown the Server whenever a core.shutdown error is caught.
func newAppHTTPErrorHandler(logger core.Logger, signalShutdown func()) echo.HTTPErrorHandler {
	return func(err error, ctx echo.Context) {
		var code int
		var message interface{}

		cause := errors.Cause(err)
		switch origErr := cause.(type) {
		case *echo.HTTPError:
			if origErr == middleware.ErrJWTMissing {
				code = http.StatusUnauthorized
				message = origErr.Message
				break
			}
			if origErr.Internal != nil {
				if herr, ok := origErr.Internal.(*echo.HTTPError); ok {
					origErr = herr
				}
			}
			code = origErr.Code
			message = origErr.Message
		case validator.ValidationErrors:
			fldErrs := make(map[string]string, len(origErr))
			for _, vErr := range origErr {
				fldErrs[vErr.Field()] = vErr.Translate(core.Translator)
			}
			code = http.StatusBadRequest
			message = fldErrs
		case *core.ValidationError:
			if origErr.Fields != nil {
				fldErrs := make(map[string]string, len(origErr.Fields))
				for _, fErr := range origErr.Fields {
					fldErrs[fErr.Field] = fErr.Error
				}
				message = fldErrs
			} else {
				message = origErr.Error()
			}
			code = http.StatusBadRequest
		default:
			switch {
			case notFoundErrs[cause]:
				code = http.StatusNotFound
				message = cause.Error()
			case conflictErrs[cause]:
				code = http.StatusConflict
				message = cause.Error()
			case badRequestErrs[cause]:
				code = http.StatusBadRequest
				message = cause.Error()
			case cause == staff.ErrInvalidToken:
				code = errAuthenticationFailed.Code
				message = errAuthenticationFailed.Message
			default: // any other error is a server error
				code = http.StatusInternalServerError
				msg := http.StatusText(http.StatusInternalServerError)
				message = msg

				logger.Error(msg, errors.Wrap(err, msg))

				// shutting down...
				if core.IsShutdown(err) {
					signalShutdown()
				}
			}
		}

		if ctx.Echo().Debug {
			message = err.Error()
		} else if m, ok := message.(string); ok {
			message = echo.Map{"error": m}
		}

		// Send response
		if !ctx.Response().Committed {
			if ctx.Request().Method == http.MethodHead { // Issue #608
				err = ctx.NoContent(code)
			} else {
				err = ctx.JSON(code, message)
			}
			if err != nil {
				ctx.Echo().Logger.Error(err)
			}
		}
	}
}
