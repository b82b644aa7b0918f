package http

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"
)

// Envelope wraps every JSON body served by the API.
type Envelope struct {
	Status  int         `json:"status"`
	Message string      `json:"message"`
	Data    interface{} `json:"data,omitempty"`
}

func respond(c echo.Context, status int, data interface{}) error {
	return c.JSON(status, Envelope{Status: status, Message: http.StatusText(status), Data: data})
}

// OK writes data with status 200.
func OK(c echo.Context, data interface{}) error {
	return respond(c, http.StatusOK, data)
}

// Invalid writes field validation failures with status 400.
func Invalid(c echo.Context, errs []ValidationError) error {
	return respond(c, http.StatusBadRequest, errs)
}

// Fail writes err with its own status when it is an *Error and a bare
// 500 otherwise.
func Fail(c echo.Context, err error) error {
	var e *Error
	if !errors.As(err, &e) {
		e = Internal(err, "internal error")
	}
	return respond(c, e.Status, []*Error{e})
}
