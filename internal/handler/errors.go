package handler

import (
	"maps"
	"net/http"
	"slices"
	"strings"

	"github.com/go-faster/errors"
	"github.com/go-faster/jx"
	"github.com/go-faster/sdk/zctx"
	"go.uber.org/zap"

	"github.com/mosaed-alotaibi/retail-discount-service/internal/domain/auth"
	"github.com/mosaed-alotaibi/retail-discount-service/internal/domain/errs"
)

const internalErrorMessage = "An unexpected error occurred. Please try again later."

// fieldErrors maps a request field path to what is wrong with it.
type fieldErrors map[string]string

// message renders field errors as "Validation failed: a - x, b - y".
func (f fieldErrors) message() string {
	parts := make([]string, 0, len(f))
	for _, k := range slices.Sorted(maps.Keys(f)) {
		parts = append(parts, k+" - "+f[k])
	}
	return "Validation failed: " + strings.Join(parts, ", ")
}

// writeError maps err onto a status code and error body.
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	lg := zctx.From(r.Context())

	var (
		notFound   *errs.NotFoundError
		validation *errs.ValidationError
	)
	switch {
	case errors.As(err, &notFound):
		lg.Warn("Resource not found", zap.String("kind", notFound.Kind), zap.String("id", notFound.ID))
		writeStatus(w, http.StatusNotFound, notFound.Error())
	case errors.As(err, &validation):
		body := errorBody{code: http.StatusBadRequest, message: err.Error()}
		if validation.Field != "" {
			body.fields = fieldErrors{validation.Field: validation.Reason}
		}
		body.write(w)
	case errors.Is(err, errs.ErrInvariant):
		writeStatus(w, http.StatusUnprocessableEntity, err.Error())
	case errors.Is(err, auth.ErrUnauthorized):
		writeStatus(w, http.StatusUnauthorized, "a valid API key is required")
	case errors.Is(err, auth.ErrForbidden):
		writeStatus(w, http.StatusForbidden, "forbidden")
	default:
		lg.Error("Request failed", zap.Error(err))
		writeStatus(w, http.StatusInternalServerError, internalErrorMessage)
	}
}

func writeFieldErrors(w http.ResponseWriter, fields fieldErrors) {
	errorBody{code: http.StatusBadRequest, message: fields.message(), fields: fields}.write(w)
}

func writeStatus(w http.ResponseWriter, code int, message string) {
	errorBody{code: code, message: message}.write(w)
}

type errorBody struct {
	code    int
	message string
	fields  fieldErrors
}

func (b errorBody) write(w http.ResponseWriter) {
	var e jx.Encoder
	e.ObjStart()
	e.FieldStart("code")
	e.Int(b.code)
	e.FieldStart("message")
	e.Str(b.message)
	if len(b.fields) > 0 {
		e.FieldStart("fieldErrors")
		e.ObjStart()
		for _, k := range slices.Sorted(maps.Keys(b.fields)) {
			e.FieldStart(k)
			e.Str(b.fields[k])
		}
		e.ObjEnd()
	}
	e.ObjEnd()
	writeJSON(w, b.code, e.Bytes())
}

func writeJSON(w http.ResponseWriter, code int, body []byte) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_, _ = w.Write(body)
}
