package service

import (
	"errors"
	"fmt"
	"reflect"
	"strings"

	"feeportal/internal/domain"

	"github.com/go-playground/validator/v10"
)

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New()
	// report fields by their json names
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
		if name == "-" || name == "" {
			return f.Name
		}
		return name
	})
	return v
}

// validateInput runs struct validation and converts failures to a ValidationError.
func validateInput(in interface{}) error {
	err := validate.Struct(in)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return domain.ValidationError(err.Error())
	}
	msgs := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		path := fe.Namespace()
		if i := strings.Index(path, "."); i >= 0 {
			path = path[i+1:]
		}
		switch fe.Tag() {
		case "required":
			msgs = append(msgs, path+" is required")
		case "email":
			msgs = append(msgs, path+" must be a valid email")
		case "gt":
			msgs = append(msgs, fmt.Sprintf("%s must be greater than %s", path, fe.Param()))
		default:
			msgs = append(msgs, fmt.Sprintf("%s failed %s", path, fe.Tag()))
		}
	}
	return domain.ValidationError(strings.Join(msgs, "; "))
}
