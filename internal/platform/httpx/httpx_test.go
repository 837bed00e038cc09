package httpx

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-playground/validator/v10"
	"github.com/stretchr/testify/require"

	"github.com/moneta-ledger/moneta/internal/store"
)

func decodeProblem(t *testing.T, rec *httptest.ResponseRecorder) ProblemDetail {
	t.Helper()
	var p ProblemDetail
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&p))
	return p
}

func TestRespondErrorStatuses(t *testing.T) {
	cases := []struct {
		err    error
		status int
	}{
		{fmt.Errorf("store: products get: %w", store.ErrNotFound), http.StatusNotFound},
		{fmt.Errorf("store: products get: %w: %w", store.ErrNotFound, store.ErrPersistence), http.StatusServiceUnavailable},
		{fmt.Errorf("store: products insert: %w: %w", store.ErrDuplicate, store.ErrPersistence), http.StatusConflict},
		{fmt.Errorf("%w: bad month", ErrValidation), http.StatusBadRequest},
		{errors.New("boom"), http.StatusInternalServerError},
	}
	for _, tc := range cases {
		rec := httptest.NewRecorder()
		RespondError(rec, tc.err)
		require.Equal(t, tc.status, rec.Code, tc.err.Error())
		require.Equal(t, tc.status, decodeProblem(t, rec).Status)
	}
}

func TestValidationProblemListsFields(t *testing.T) {
	type body struct {
		Name     string `validate:"required"`
		Quantity int    `validate:"gt=0"`
	}
	err := validator.New().Struct(body{})
	require.Error(t, err)

	rec := httptest.NewRecorder()
	ValidationProblem(rec, err)
	require.Equal(t, http.StatusBadRequest, rec.Code)
	p := decodeProblem(t, rec)
	require.Equal(t, map[string]string{"Name": "required", "Quantity": "gt"}, p.Errors)
}

func TestDecodeJSONRejectsUnknownFields(t *testing.T) {
	var target struct {
		Name string `json:"name"`
	}
	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"name":"a","extra":1}`))
	err := DecodeJSON(httptest.NewRecorder(), req, &target)
	require.ErrorIs(t, err, ErrValidation)

	req = httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"name":"a"}`))
	require.NoError(t, DecodeJSON(httptest.NewRecorder(), req, &target))
	require.Equal(t, "a", target.Name)
}
