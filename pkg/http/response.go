package http

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"
)

// writeEnvelope always answers 200 and carries the outcome in the body.
func writeEnvelope(c echo.Context, status int, data interface{}) error {
	return c.JSON(http.StatusOK, APIResponse{
		Status:  status,
		Message: http.StatusText(status),
		Data:    data,
	})
}

func SuccessResponse(c echo.Context, data interface{}) error {
	return writeEnvelope(c, http.StatusOK, data)
}

func ListResponse(c echo.Context, rows interface{}, total int64) error {
	return writeEnvelope(c, http.StatusOK, &ListDataResponse{Rows: rows, Total: total})
}

// AcceptedResponse acknowledges work that was queued, not yet done.
func AcceptedResponse(c echo.Context, data interface{}) error {
	return writeEnvelope(c, http.StatusAccepted, data)
}

// NoContentResponse is the one reply without an envelope.
func NoContentResponse(c echo.Context) error {
	return c.NoContent(http.StatusNoContent)
}

func BadRequestResponse(c echo.Context, errs []ValidationError) error {
	return writeEnvelope(c, http.StatusBadRequest, errs)
}

// AppErrorResponse reports err with its own status. Anything that is not an
// *AppError is reported as a bare 500.
func AppErrorResponse(c echo.Context, err error) error {
	var appErr *AppError
	if !errors.As(err, &appErr) {
		appErr = InternalError("internal error")
	}
	return writeEnvelope(c, appErr.Status, []*AppError{appErr})
}
