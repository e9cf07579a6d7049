package httpapi

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"reflect"
	"strconv"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/sirupsen/logrus"

	"gestoria.cloud/internal/apperr"
	"gestoria.cloud/internal/model"
	"gestoria.cloud/internal/obs"
)

var (
	errInvalidPayload = apperr.BadRequest("invalid_payload", "Invalid request body.")
	errNotFound       = apperr.NotFound("not_found", "Resource not found.")
	errConflict       = apperr.Conflict("conflict", "Resource already exists.")
	errBodyTooLarge   = &apperr.Error{Kind: apperr.KindBadRequest, Code: "payload_too_large", Message: "Request body too large."}
)

// Codes rendered with the nested envelope for client compatibility.
var nestedEnvelope = map[string]struct{}{
	apperr.ErrTenantContextRequired.Code: {},
	apperr.ErrTenantNotFound.Code:        {},
}

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

// writeError renders err. Store sentinels that escaped a service map to
// generic codes; anything unknown is a logged 500.
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, model.ErrNotFound):
		err = errNotFound
	case errors.Is(err, model.ErrConflict):
		err = errConflict
	}
	e := apperr.From(err)
	if e.Kind == apperr.KindInternal {
		obs.Logger().WithFields(logrus.Fields{
			"request_id": RequestIDFromContext(r.Context()),
			"method":     r.Method,
			"path":       r.URL.Path,
		}).WithError(err).Error("request failed")
	}

	var payload map[string]any
	if _, nested := nestedEnvelope[e.Code]; nested {
		payload = map[string]any{"error": map[string]string{"code": e.Code, "message": e.Message}}
	} else {
		payload = map[string]any{"error": e.Code, "message": e.Message}
	}
	if rid := RequestIDFromContext(r.Context()); rid != "" {
		payload["request_id"] = rid
	}
	writeJSON(w, e.Status(), payload)
}

// decodeJSON reads exactly one JSON document and validates it.
func decodeJSON(r *http.Request, dst any) error {
	if r.Body == nil {
		return apperr.BadRequest("invalid_payload", "Request body is required.")
	}
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		var (
			tooLarge *http.MaxBytesError
			appErr   *apperr.Error
		)
		switch {
		case errors.As(err, &appErr):
			return appErr
		case errors.As(err, &tooLarge):
			return errBodyTooLarge
		case errors.Is(err, io.EOF):
			return apperr.BadRequest("invalid_payload", "Request body is required.")
		}
		return &apperr.Error{Kind: apperr.KindBadRequest, Code: errInvalidPayload.Code, Message: errInvalidPayload.Message, Err: err}
	}
	if err := dec.Decode(&struct{}{}); !errors.Is(err, io.EOF) {
		return apperr.BadRequest("invalid_payload", "Unexpected data after JSON body.")
	}
	return validateStruct(dst)
}

// validateStruct maps the first failing field onto "<field>_required" or
// "<field>_invalid".
func validateStruct(v any) error {
	err := validate.Struct(v)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) || len(verrs) == 0 {
		return nil
	}
	fe := verrs[0]
	suffix := "_invalid"
	if fe.Tag() == "required" {
		suffix = "_required"
	}
	return apperr.BadRequest(fe.Field()+suffix, "")
}

func queryInt(r *http.Request, key string, def int) (int, error) {
	raw := strings.TrimSpace(r.URL.Query().Get(key))
	if raw == "" {
		return def, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return 0, apperr.BadRequest("invalid_pagination", key+" must be an integer")
	}
	return v, nil
}

// pageParams reads limit/offset with a default of 50 and a cap of 200.
func pageParams(r *http.Request) (limit, offset int, err error) {
	if limit, err = queryInt(r, "limit", 50); err != nil {
		return 0, 0, err
	}
	if offset, err = queryInt(r, "offset", 0); err != nil {
		return 0, 0, err
	}
	if limit < 1 || limit > 200 || offset < 0 {
		return 0, 0, apperr.BadRequest("invalid_pagination", "")
	}
	return limit, offset, nil
}

type listResponse[T any] struct {
	Items []T `json:"items"`
	Total int `json:"total"`
}

func listOf[T any](items []T, total int) listResponse[T] {
	if items == nil {
		items = []T{}
	}
	return listResponse[T]{Items: items, Total: total}
}
