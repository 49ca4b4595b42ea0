package errors

import (
	stdErrors "errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEveryCodeHasMetadata(t *testing.T) {
	codes := []Code{
		CodeValidation, CodeUnauthorized, CodeForbidden, CodeNotFound, CodeConflict,
		CodeIdempotency, CodeInternal, CodeDependency, CodeInvalidTransition,
		CodeVersionConflict, CodeInsufficientStock, CodeAlreadyResolved,
		CodeMissingDriver, CodeMissingProof, CodeRouteProviderUnavailable,
		CodeCreditLimitExceeded,
	}
	for _, code := range codes {
		meta, ok := metadataByCode[code]
		require.True(t, ok, "missing metadata for %s", code)
		assert.NotZero(t, meta.HTTPStatus, code)
		assert.NotEmpty(t, meta.PublicMessage, code)
	}
}

func TestMetadataForDomainCodes(t *testing.T) {
	cases := []struct {
		code      Code
		status    int
		retryable bool
		details   bool
	}{
		{CodeValidation, http.StatusBadRequest, false, true},
		{CodeInvalidTransition, http.StatusConflict, false, true},
		{CodeVersionConflict, http.StatusConflict, true, true},
		{CodeMissingDriver, http.StatusUnprocessableEntity, false, false},
		{CodeRouteProviderUnavailable, http.StatusServiceUnavailable, true, true},
		{CodeInternal, http.StatusInternalServerError, true, false},
	}
	for _, tc := range cases {
		t.Run(string(tc.code), func(t *testing.T) {
			meta := MetadataFor(tc.code)
			assert.Equal(t, tc.status, meta.HTTPStatus)
			assert.Equal(t, tc.retryable, meta.Retryable)
			assert.Equal(t, tc.details, meta.DetailsAllowed)
		})
	}

	assert.Equal(t, MetadataFor(CodeInternal), MetadataFor("SOMETHING_UNKNOWN"))
}

func TestConstructors(t *testing.T) {
	err := Newf(CodeInsufficientStock, "only %d left", 4)
	assert.Equal(t, CodeInsufficientStock, err.Code())
	assert.Equal(t, "INSUFFICIENT_STOCK: only 4 left", err.Error())
	assert.Nil(t, err.Details())

	err.WithDetails(map[string]any{"available": 4})
	assert.Equal(t, map[string]any{"available": 4}, err.Details())

	cause := stdErrors.New("connection refused")
	wrapped := Wrap(CodeDependency, cause, "publish event")
	assert.ErrorIs(t, wrapped, cause)
	assert.Equal(t, "publish event", wrapped.Message())
	assert.Equal(t, "DEPENDENCY_ERROR: publish event: connection refused", wrapped.Error())
	assert.ErrorIs(t, wrapped, New(CodeDependency, ""))
	assert.NotErrorIs(t, wrapped, New(CodeConflict, ""))

	assert.Nil(t, Wrap(CodeConflict, nil, "noop").Unwrap())
}

func TestNilReceiver(t *testing.T) {
	var err *Error
	assert.Equal(t, CodeInternal, err.Code())
	assert.Empty(t, err.Message())
	assert.Empty(t, err.Error())
	assert.Nil(t, err.WithDetails("x"))
}

func TestAsAndIsCodeWalkTheChain(t *testing.T) {
	inner := New(CodeInsufficientStock, "only 4 left")
	outer := fmt.Errorf("deduct line: %w", inner)

	assert.Same(t, inner, As(outer))
	assert.True(t, IsCode(outer, CodeInsufficientStock))
	assert.False(t, IsCode(outer, CodeVersionConflict))
	assert.False(t, IsCode(nil, CodeInternal))
	assert.Nil(t, As(stdErrors.New("plain")))
}
