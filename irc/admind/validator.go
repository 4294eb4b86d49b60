package admind

import (
	"net/http"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
)

// requestValidator plugs go-playground/validator into echo. Errors name
// fields by their query tag.
type requestValidator struct {
	validator *validator.Validate
}

func newRequestValidator() *requestValidator {
	v := validator.New()
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("query"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	return &requestValidator{validator: v}
}

// Validate implements echo.Validator
func (rv *requestValidator) Validate(i any) error {
	if err := rv.validator.Struct(i); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	return nil
}

// clientQuery filters /api/clients
type clientQuery struct {
	State   string `query:"state" validate:"omitempty,oneof=unauthenticated password-ok nick-set user-set registered"`
	Channel string `query:"channel" validate:"omitempty,max=50"`
	Limit   int    `query:"limit" validate:"min=0,max=10000"`
}
