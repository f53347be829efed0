package http

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"reflect"
	"strings"

	"github.com/go-chi/render"
	"github.com/go-playground/validator/v10"

	apperrors "github.com/Lynx96-creator/ets2-mod-api/internal/errors"
)

const maxBodySize = 64 * 1024

// requestValidator validates request bodies by struct tags
type requestValidator struct {
	validate *validator.Validate
}

func newRequestValidator() *requestValidator {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	return &requestValidator{validate: v}
}

// bind decodes a JSON body into dst and validates it
func (rv *requestValidator) bind(w http.ResponseWriter, r *http.Request, dst interface{}) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodySize)
	if err := render.DecodeJSON(r.Body, dst); err != nil {
		if errors.Is(err, io.EOF) {
			return apperrors.New(http.StatusBadRequest, "INVALID_JSON", "Request body is empty")
		}
		return apperrors.InvalidRequestWithError(err)
	}

	if err := rv.validate.Struct(dst); err != nil {
		var fieldErrs validator.ValidationErrors
		if !errors.As(err, &fieldErrs) {
			return apperrors.InvalidRequestWithError(err)
		}
		out := make([]apperrors.ValidationError, 0, len(fieldErrs))
		for _, fe := range fieldErrs {
			out = append(out, apperrors.ValidationError{
				Field:   fe.Field(),
				Message: validationMessage(fe),
			})
		}
		return apperrors.NewValidationErrors(out)
	}
	return nil
}

func validationMessage(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return fmt.Sprintf("%s is required", fe.Field())
	case "email":
		return fmt.Sprintf("%s must be a valid email address", fe.Field())
	case "max":
		return fmt.Sprintf("%s must be at most %s characters", fe.Field(), fe.Param())
	default:
		return fmt.Sprintf("%s failed %s validation", fe.Field(), fe.Tag())
	}
}
