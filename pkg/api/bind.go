package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"reflect"
	"sort"
	"strings"

	"github.com/go-playground/validator/v10"
)

const maxRequestBody = 64 << 10

var (
	errMissingContentType = errors.New("missing content type, expected application/json")
	errTrailingData       = errors.New("unexpected data after JSON object")
)

// ValidationError maps field names to messages.
type ValidationError url.Values

func (e ValidationError) Error() string {
	if len(e) == 0 {
		return "validation failed"
	}
	fields := make([]string, 0, len(e))
	for f := range e {
		fields = append(fields, f)
	}
	sort.Strings(fields)
	parts := make([]string, 0, len(fields))
	for _, f := range fields {
		parts = append(parts, fmt.Sprintf("%s: %s", f, e[f][0]))
	}
	return "validation error: " + strings.Join(parts, ", ")
}

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// decode reads a JSON body into dst and validates it. An empty body decodes
// as the zero value so optional-only payloads may be omitted. Otherwise the
// request must be application/json holding exactly one object with known fields.
func (h *handlers) decode(w http.ResponseWriter, r *http.Request, dst any) error {
	if r.ContentLength == 0 {
		return h.validate(dst)
	}

	contentType := r.Header.Get("Content-Type")
	if contentType == "" {
		return errors.Join(ErrUnsupportedMediaType, errMissingContentType)
	}
	mediaType := contentType
	if idx := strings.Index(contentType, ";"); idx != -1 {
		mediaType = strings.TrimSpace(contentType[:idx])
	}
	if !strings.EqualFold(mediaType, "application/json") {
		return errors.Join(ErrUnsupportedMediaType, fmt.Errorf("got %s, expected application/json", mediaType))
	}

	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxRequestBody))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil && !errors.Is(err, io.EOF) {
		return jsonError(err)
	}

	var extra json.RawMessage
	if err := dec.Decode(&extra); !errors.Is(err, io.EOF) {
		if err != nil {
			return jsonError(err)
		}
		return errors.Join(ErrBadRequest, errTrailingData)
	}
	return h.validate(dst)
}

func jsonError(err error) error {
	var tooLarge *http.MaxBytesError
	if errors.As(err, &tooLarge) {
		return ErrTooLarge
	}
	return errors.Join(ErrBadRequest, err)
}

func (h *handlers) validate(v any) error {
	err := h.validator.Struct(v)
	if err == nil {
		return nil
	}
	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) {
		return errors.Join(ErrBadRequest, err)
	}
	verr := ValidationError{}
	for _, fe := range fieldErrs {
		url.Values(verr).Add(fe.Field(), message(fe))
	}
	return verr
}

func message(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "is required"
	case "uuid", "uuid4":
		return "must be a valid id"
	case "max":
		return "is too long"
	default:
		return "is invalid"
	}
}
