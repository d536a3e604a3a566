package relayerr

import (
	"errors"
	"net/http"

	echo "github.com/labstack/echo/v5"
)

// ToHTTPError maps a typed relayerr error to an echo.HTTPError, the way the
// teacher's pkg/api/errors.go mapServiceError maps service-layer errors.
// Routes should call this exactly once at the edge; nothing below the edge
// should be constructing echo.HTTPError directly.
func ToHTTPError(err error) *echo.HTTPError {
	var (
		validErr *ValidationError
		notFound *NotFoundError
		permErr  *PermissionError
		concErr  *ConcurrencyError
		idemHit  *IdempotencyHit
		timeErr  *TimeoutError
		upErr    *UpstreamError
	)

	switch {
	case errors.As(err, &validErr):
		return echo.NewHTTPError(http.StatusBadRequest, validErr.Error())
	case errors.As(err, &notFound), errors.Is(err, ErrNotFound):
		return echo.NewHTTPError(http.StatusNotFound, "resource not found")
	case errors.As(err, &permErr):
		return echo.NewHTTPError(http.StatusForbidden, permErr.Error())
	case errors.As(err, &concErr):
		he := echo.NewHTTPError(http.StatusTooManyRequests, concErr.Error())
		he.Internal = concErr
		return he
	case errors.As(err, &idemHit):
		he := echo.NewHTTPError(http.StatusOK, "already dispatched")
		he.Internal = idemHit
		return he
	case errors.As(err, &timeErr):
		return echo.NewHTTPError(http.StatusGatewayTimeout, timeErr.Error())
	case errors.As(err, &upErr):
		return echo.NewHTTPError(http.StatusBadGateway, upErr.Error())
	case errors.Is(err, ErrAlreadyExists):
		return echo.NewHTTPError(http.StatusConflict, "resource already exists")
	case errors.Is(err, ErrNotCancellable), errors.Is(err, ErrTerminal):
		return echo.NewHTTPError(http.StatusConflict, err.Error())
	case errors.Is(err, ErrTokenMismatch):
		return echo.NewHTTPError(http.StatusConflict, err.Error())
	default:
		return echo.NewHTTPError(http.StatusInternalServerError, "internal server error")
	}
}
