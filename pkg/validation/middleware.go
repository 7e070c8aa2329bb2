package validation

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
)

// MaxBodyBytes bounds request bodies read by DecodeJSON.
const MaxBodyBytes = 1 << 20

// DecodeJSON decodes a JSON request body into dst and validates it. Decoding
// problems are reported as a ValidationErrors for the "request_body" field.
func DecodeJSON(r *http.Request, dst any) error {
	decoder := json.NewDecoder(io.LimitReader(r.Body, MaxBodyBytes))
	if err := decoder.Decode(dst); err != nil {
		msg := fmt.Sprintf("invalid JSON: %v", err)
		if errors.Is(err, io.EOF) {
			msg = "request body is empty"
		}
		return ValidationErrors{{Field: "request_body", Message: msg}}
	}
	return ValidateStruct(dst)
}

// WriteErrorResponse writes validation errors as a JSON response body.
func WriteErrorResponse(w http.ResponseWriter, statusCode int, errs ValidationErrors) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)

	body, err := MarshalValidationErrors(errs)
	if err != nil {
		_, _ = w.Write([]byte(`{"error":"validation failed"}`))
		return
	}
	_, _ = w.Write(body)
}

// WriteError writes err as a 400 response, unwrapping ValidationErrors when
// present.
func WriteError(w http.ResponseWriter, err error) {
	var verrs ValidationErrors
	if errors.As(err, &verrs) {
		WriteErrorResponse(w, http.StatusBadRequest, verrs)
		return
	}
	var verr ValidationError
	if errors.As(err, &verr) {
		WriteErrorResponse(w, http.StatusBadRequest, ValidationErrors{verr})
		return
	}
	WriteErrorResponse(w, http.StatusBadRequest, ValidationErrors{{Field: "request", Message: err.Error()}})
}
