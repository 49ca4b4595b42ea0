package responses

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	pkgerrors "github.com/seahsky/joho-erp-sub004/pkg/errors"
	"github.com/seahsky/joho-erp-sub004/pkg/types"
)

func TestSuccessEnvelopes(t *testing.T) {
	w := httptest.NewRecorder()
	WriteSuccessStatus(w, http.StatusCreated, map[string]string{"order_number": "ORD-20261017-000001"})
	assert.Equal(t, http.StatusCreated, w.Code)
	assert.Equal(t, "application/json", w.Header().Get("Content-Type"))
	assert.JSONEq(t, `{"data":{"order_number":"ORD-20261017-000001"}}`, w.Body.String())

	w = httptest.NewRecorder()
	WriteList(w, []int{1, 2}, 2, "next")
	assert.JSONEq(t, `{"data":[1,2],"meta":{"next_cursor":"next","count":2}}`, w.Body.String())
}

func TestWriteError(t *testing.T) {
	cases := []struct {
		name       string
		err        error
		status     int
		code       pkgerrors.Code
		message    string
		retryable  bool
		hasDetails bool
		retryAfter string
	}{
		{
			name:       "validation keeps message and details",
			err:        pkgerrors.New(pkgerrors.CodeValidation, "bad input").WithDetails(map[string]string{"field": "demo"}),
			status:     http.StatusBadRequest,
			code:       pkgerrors.CodeValidation,
			message:    "bad input",
			hasDetails: true,
		},
		{
			name:       "wrapped version conflict is retryable",
			err:        fmt.Errorf("transition: %w", pkgerrors.New(pkgerrors.CodeVersionConflict, "order version is 4").WithDetails(map[string]any{"expected": 3, "current": 4})),
			status:     http.StatusConflict,
			code:       pkgerrors.CodeVersionConflict,
			message:    "order version is 4",
			retryable:  true,
			hasDetails: true,
		},
		{
			name:      "untyped error is internal and hidden",
			err:       errors.New("pq: password authentication failed"),
			status:    http.StatusInternalServerError,
			code:      pkgerrors.CodeInternal,
			message:   "internal server error",
			retryable: true,
		},
		{
			name:       "provider outage advertises retry-after",
			err:        pkgerrors.Wrap(pkgerrors.CodeRouteProviderUnavailable, errors.New("deadline exceeded"), "routes api timed out"),
			status:     http.StatusServiceUnavailable,
			code:       pkgerrors.CodeRouteProviderUnavailable,
			message:    "routes api timed out",
			retryable:  true,
			retryAfter: "5",
		},
		{
			name:       "dependency message is replaced",
			err:        pkgerrors.Wrap(pkgerrors.CodeDependency, errors.New("dial tcp 10.0.0.3:6379"), "redis: dial tcp 10.0.0.3:6379"),
			status:     http.StatusServiceUnavailable,
			code:       pkgerrors.CodeDependency,
			message:    "dependency unavailable",
			retryable:  true,
			retryAfter: "5",
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			w := httptest.NewRecorder()
			WriteError(context.Background(), nil, w, tc.err)

			require.Equal(t, tc.status, w.Code)
			var body types.ErrorEnvelope
			require.NoError(t, json.NewDecoder(w.Body).Decode(&body))
			assert.Equal(t, string(tc.code), body.Error.Code)
			assert.Equal(t, tc.message, body.Error.Message)
			assert.Equal(t, tc.retryable, body.Error.Retryable)
			assert.Equal(t, tc.hasDetails, body.Error.Details != nil)
			assert.Equal(t, tc.retryAfter, w.Header().Get("Retry-After"))
		})
	}
}

func TestWriteErrorEchoesRequestID(t *testing.T) {
	w := httptest.NewRecorder()
	w.Header().Set("X-Request-Id", "req-42")
	WriteError(context.Background(), nil, w, pkgerrors.New(pkgerrors.CodeNotFound, "order not found"))

	var body types.ErrorEnvelope
	require.NoError(t, json.NewDecoder(w.Body).Decode(&body))
	assert.Equal(t, "req-42", body.Error.RequestID)
}

func TestWriteErrorNil(t *testing.T) {
	w := httptest.NewRecorder()
	WriteError(context.Background(), nil, w, nil)
	assert.Equal(t, http.StatusInternalServerError, w.Code)
}
