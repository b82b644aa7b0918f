package http

import (
	"errors"
	"fmt"
	"reflect"
	"strings"

	"github.com/creasty/defaults"
	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
)

// ValidationError describes one rejected request field.
type ValidationError struct {
	Code    string `json:"code"`
	Field   string `json:"field,omitempty"`
	Message string `json:"message"`
	Param   string `json:"param,omitempty"`
}

var validate = newValidator()

// Message templates keyed by validator tag: field name then tag parameter.
var ruleMessages = map[string]string{
	"required": "%s is required",
	"min":      "%s must be at least %s",
	"max":      "%s must be at most %s",
	"gt":       "%s must be greater than %s",
	"gte":      "%s must be greater than or equal to %s",
	"lt":       "%s must be less than %s",
	"lte":      "%s must be less than or equal to %s",
	"oneof":    "%s must be one of: %s",
}

func newValidator() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		for _, key := range []string{"query", "param", "json"} {
			name, _, _ := strings.Cut(f.Tag.Get(key), ",")
			if name != "" && name != "-" {
				return name
			}
		}
		return f.Name
	})
	return v
}

// BindRequest applies struct defaults, binds path and query parameters over
// them and validates the result. A nil slice means req is usable.
func BindRequest(c echo.Context, req interface{}) []ValidationError {
	if err := defaults.Set(req); err != nil {
		return unknown(err)
	}
	if err := c.Bind(req); err != nil {
		var he *echo.HTTPError
		if errors.As(err, &he) {
			return []ValidationError{{Code: "ERR_BIND", Message: fmt.Sprint(he.Message)}}
		}
		return unknown(err)
	}
	err := validate.StructCtx(c.Request().Context(), req)
	if err == nil {
		return nil
	}
	var fields validator.ValidationErrors
	if !errors.As(err, &fields) {
		return unknown(err)
	}
	out := make([]ValidationError, len(fields))
	for i, fe := range fields {
		out[i] = fieldError(fe)
	}
	return out
}

func fieldError(fe validator.FieldError) ValidationError {
	param := fe.Param()
	if fe.Tag() == "oneof" {
		param = strings.Join(strings.Fields(param), ", ")
	}
	msg := fmt.Sprintf("%s failed the %s rule", fe.Field(), fe.Tag())
	if tmpl, ok := ruleMessages[fe.Tag()]; ok {
		if fe.Tag() == "required" {
			msg = fmt.Sprintf(tmpl, fe.Field())
		} else {
			msg = fmt.Sprintf(tmpl, fe.Field(), param)
		}
	}
	return ValidationError{
		Code:    "ERR_" + strings.ToUpper(fe.Tag()),
		Field:   fe.Field(),
		Message: msg,
		Param:   param,
	}
}

func unknown(err error) []ValidationError {
	return []ValidationError{{Code: "ERR_UNKNOWN", Message: err.Error()}}
}
