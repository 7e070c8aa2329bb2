package validation

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidationError(t *testing.T) {
	err := ValidationError{
		Field:   "message",
		Value:   "",
		Message: "field is required",
	}

	expected := "validation error on field 'message': field is required (got: )"
	assert.Equal(t, expected, err.Error())
}

func TestValidationErrors(t *testing.T) {
	errs := ValidationErrors{
		{Field: "message", Value: "", Message: "field is required"},
		{Field: "limit", Value: -1, Message: "minimum value/length is 0"},
	}

	expected := "validation error on field 'message': field is required (got: ); validation error on field 'limit': minimum value/length is 0 (got: -1)"
	assert.Equal(t, expected, errs.Error())
	assert.Equal(t, "no validation errors", ValidationErrors{}.Error())
}

type chatBody struct {
	Message  string `json:"message" validate:"required"`
	Platform string `json:"platform" validate:"routing"`
	Role     string `json:"role,omitempty" validate:"omitempty,role"`
}

type threadPath struct {
	ThreadID string `json:"thread_id" validate:"required,thread_ref"`
}

type limits struct {
	Min int `json:"min" validate:"min=0"`
	Max int `json:"max" validate:"max=10"`
}

func (l limits) Validate() error {
	if l.Min > l.Max {
		return errors.New("min must not exceed max")
	}
	return nil
}

func TestValidateStruct(t *testing.T) {
	t.Run("valid struct", func(t *testing.T) {
		assert.NoError(t, ValidateStruct(chatBody{Message: "hi", Platform: "web"}))
		assert.NoError(t, ValidateStruct(chatBody{Message: "hi", Role: "tool"}))
	})

	t.Run("missing required field uses json name", func(t *testing.T) {
		err := ValidateStruct(chatBody{Platform: "web"})
		var verrs ValidationErrors
		require.ErrorAs(t, err, &verrs)
		require.Len(t, verrs, 1)
		assert.Equal(t, "message", verrs[0].Field)
		assert.Equal(t, "field is required", verrs[0].Message)
	})

	t.Run("custom rules", func(t *testing.T) {
		err := ValidateStruct(chatBody{Message: "hi", Platform: "we b", Role: "robot"})
		var verrs ValidationErrors
		require.ErrorAs(t, err, &verrs)
		require.Len(t, verrs, 2)
		assert.Equal(t, "platform", verrs[0].Field)
		assert.Equal(t, "role", verrs[1].Field)
	})

	t.Run("tag rules run before Validate method", func(t *testing.T) {
		err := ValidateStruct(limits{Min: -1, Max: 5})
		var verrs ValidationErrors
		require.ErrorAs(t, err, &verrs)
		assert.Equal(t, "min", verrs[0].Field)

		err = ValidateStruct(limits{Min: 6, Max: 5})
		assert.EqualError(t, err, "min must not exceed max")

		assert.NoError(t, ValidateStruct(limits{Min: 1, Max: 5}))
	})
}

func TestThreadRef(t *testing.T) {
	tests := []struct {
		value string
		valid bool
	}{
		{"new", true},
		{"NEW", true},
		{"3f1c7a52-0d7e-4a43-9d0b-5ab6a9e5f1aa", true},
		{"not-a-uuid", false},
		{"", false},
		{"newer", false},
	}

	for _, tt := range tests {
		t.Run(tt.value, func(t *testing.T) {
			assert.Equal(t, tt.valid, IsThreadRef(tt.value))
			err := ValidateStruct(threadPath{ThreadID: tt.value})
			if tt.valid {
				assert.NoError(t, err)
			} else {
				assert.Error(t, err)
			}
		})
	}
}

func TestDecodeJSON(t *testing.T) {
	t.Run("valid body", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"message":"hello","platform":"line"}`))
		var body chatBody
		require.NoError(t, DecodeJSON(req, &body))
		assert.Equal(t, "hello", body.Message)
	})

	t.Run("empty body", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(""))
		var body chatBody
		err := DecodeJSON(req, &body)
		var verrs ValidationErrors
		require.ErrorAs(t, err, &verrs)
		assert.Equal(t, "request_body", verrs[0].Field)
		assert.Equal(t, "request body is empty", verrs[0].Message)
	})

	t.Run("malformed body", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"message":`))
		var body chatBody
		err := DecodeJSON(req, &body)
		assert.ErrorContains(t, err, "invalid JSON")
	})

	t.Run("fails validation", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"message":""}`))
		var body chatBody
		err := DecodeJSON(req, &body)
		var verrs ValidationErrors
		require.ErrorAs(t, err, &verrs)
		assert.Equal(t, "message", verrs[0].Field)
	})
}

func TestWriteError(t *testing.T) {
	rec := httptest.NewRecorder()
	WriteError(rec, ValidationErrors{{Field: "message", Message: "field is required"}})

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))

	var resp struct {
		Error  string            `json:"error"`
		Errors []ValidationError `json:"errors"`
		Count  int               `json:"count"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "validation failed", resp.Error)
	assert.Equal(t, 1, resp.Count)
	assert.Equal(t, "message", resp.Errors[0].Field)

	rec = httptest.NewRecorder()
	WriteError(rec, errors.New("boom"))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "boom")
}
