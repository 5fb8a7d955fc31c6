// Package httpx holds the JSON envelope and request decoding shared by the
// HTTP handlers: success bodies are {"data": ...}, failures {"error": "..."}.
package httpx

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"reflect"
	"strings"

	"go-playbooks/internal/apperr"
	"go-playbooks/internal/shortid"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
)

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
		if name == "-" || name == "" {
			return f.Name
		}
		return name
	})
	return v
}

type envelope struct {
	Data  any    `json:"data,omitempty"`
	Error string `json:"error,omitempty"`
}

func WriteJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func WriteData(w http.ResponseWriter, status int, data any) {
	WriteJSON(w, status, envelope{Data: data})
}

// WriteError maps err to its HTTP status. Downstream failures keep the
// underlying message attached.
func WriteError(w http.ResponseWriter, err error) {
	WriteJSON(w, apperr.HTTPStatus(err), envelope{Error: err.Error()})
}

// Decode reads a JSON body into dst and validates its struct tags.
func Decode(r *http.Request, dst any) error {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		return apperr.Validation("invalid request body: " + err.Error())
	}
	return Validate(dst)
}

// Validate runs struct-tag validation and reports the first failing field.
func Validate(v any) error {
	err := validate.Struct(v)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) || len(verrs) == 0 {
		return apperr.Validation(err.Error())
	}
	fe := verrs[0]
	switch fe.Tag() {
	case "required":
		return apperr.Validation(fe.Field() + " is required")
	case "oneof":
		return apperr.Validation(fmt.Sprintf("%s must be one of [%s]", fe.Field(), fe.Param()))
	case "email":
		return apperr.Validation(fe.Field() + " must be a valid email address")
	case "hexcolor":
		return apperr.Validation(fe.Field() + " must be a hex color such as #3b82f6")
	default:
		return apperr.Validation(fmt.Sprintf("%s failed %s validation", fe.Field(), fe.Tag()))
	}
}

// PathID reads a chi URL parameter holding either a UUID or its short form.
func PathID(r *http.Request, name string) (uuid.UUID, error) {
	raw := chi.URLParam(r, name)
	if raw == "" {
		return uuid.Nil, apperr.Validation(name + " is required")
	}
	return shortid.EnsureUUID(raw)
}
