package httpapi

import (
	"errors"
	"io"
	"reflect"
	"strings"
	"sync"

	"github.com/NordCoder/Authus/internal/apperr"
	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/validator/v10"
)

var messages = map[string]string{
	"name.required":       "Name is required",
	"name.min":            "Name is required",
	"email.required":      "Invalid email format",
	"email.email":         "Invalid email format",
	"password.required":   "Password is required",
	"password.min":        "Password must be at least 6 characters long",
	"credential.required": "Invalid JWT format",
	"credential.jwt":      "Invalid JWT format",
}

var registerOnce sync.Once

// useJSONNames makes validation errors report the json field name.
func useJSONNames() {
	registerOnce.Do(func() {
		v, ok := binding.Validator.Engine().(*validator.Validate)
		if !ok {
			return
		}
		v.RegisterTagNameFunc(func(f reflect.StructField) string {
			name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
			if name == "-" {
				return ""
			}
			return name
		})
	})
}

// bindError turns a binding failure into a ValidationError with one message
// per field.
func bindError(err error) error {
	var ve validator.ValidationErrors
	if !errors.As(err, &ve) {
		if errors.Is(err, io.EOF) {
			return apperr.Validation(map[string]string{"body": "Request body is required"})
		}
		return apperr.Validation(map[string]string{"body": "Malformed JSON body"})
	}

	fields := make(map[string]string, len(ve))
	for _, fe := range ve {
		key := fe.Field()
		if msg, ok := messages[key+"."+fe.Tag()]; ok {
			fields[key] = msg
			continue
		}
		fields[key] = "Invalid value"
	}
	return apperr.Validation(fields)
}
