package errors

import "net/http"

// Code classifies an error for clients and for the HTTP layer.
type Code string

const (
	CodeValidation   Code = "VALIDATION_ERROR"
	CodeUnauthorized Code = "UNAUTHORIZED"
	CodeForbidden    Code = "FORBIDDEN"
	CodeNotFound     Code = "NOT_FOUND"
	CodeConflict     Code = "CONFLICT"
	CodeIdempotency  Code = "IDEMPOTENCY_KEY_REUSED"
	CodeInternal     Code = "INTERNAL_ERROR"
	CodeDependency   Code = "DEPENDENCY_ERROR"

	CodeInvalidTransition        Code = "INVALID_TRANSITION"
	CodeVersionConflict          Code = "VERSION_CONFLICT"
	CodeInsufficientStock        Code = "INSUFFICIENT_STOCK"
	CodeAlreadyResolved          Code = "ALREADY_RESOLVED"
	CodeMissingDriver            Code = "MISSING_DRIVER"
	CodeMissingProof             Code = "MISSING_PROOF"
	CodeRouteProviderUnavailable Code = "ROUTE_PROVIDER_UNAVAILABLE"
	CodeCreditLimitExceeded      Code = "CREDIT_LIMIT_EXCEEDED"
)

// Metadata is what the HTTP layer needs to render a code. Details are only
// echoed to clients when DetailsAllowed is set.
type Metadata struct {
	HTTPStatus     int
	Retryable      bool
	PublicMessage  string
	DetailsAllowed bool
}

var metadataByCode = map[Code]Metadata{
	CodeValidation:   {HTTPStatus: http.StatusBadRequest, PublicMessage: "validation failed", DetailsAllowed: true},
	CodeUnauthorized: {HTTPStatus: http.StatusUnauthorized, PublicMessage: "authentication required"},
	CodeForbidden:    {HTTPStatus: http.StatusForbidden, PublicMessage: "access denied"},
	CodeNotFound:     {HTTPStatus: http.StatusNotFound, PublicMessage: "resource not found"},
	CodeConflict:     {HTTPStatus: http.StatusConflict, PublicMessage: "conflict detected"},
	CodeIdempotency:  {HTTPStatus: http.StatusConflict, PublicMessage: "idempotency key reused", DetailsAllowed: true},
	CodeInternal:     {HTTPStatus: http.StatusInternalServerError, Retryable: true, PublicMessage: "internal server error"},
	CodeDependency:   {HTTPStatus: http.StatusServiceUnavailable, Retryable: true, PublicMessage: "dependency unavailable", DetailsAllowed: true},

	CodeInvalidTransition:        {HTTPStatus: http.StatusConflict, PublicMessage: "status transition not allowed", DetailsAllowed: true},
	CodeVersionConflict:          {HTTPStatus: http.StatusConflict, Retryable: true, PublicMessage: "order was modified concurrently; reload and retry", DetailsAllowed: true},
	CodeInsufficientStock:        {HTTPStatus: http.StatusConflict, PublicMessage: "insufficient stock", DetailsAllowed: true},
	CodeAlreadyResolved:          {HTTPStatus: http.StatusConflict, PublicMessage: "backorder already resolved", DetailsAllowed: true},
	CodeMissingDriver:            {HTTPStatus: http.StatusUnprocessableEntity, PublicMessage: "driver assignment required"},
	CodeMissingProof:             {HTTPStatus: http.StatusUnprocessableEntity, PublicMessage: "proof of delivery required"},
	CodeRouteProviderUnavailable: {HTTPStatus: http.StatusServiceUnavailable, Retryable: true, PublicMessage: "route optimization unavailable", DetailsAllowed: true},
	CodeCreditLimitExceeded:      {HTTPStatus: http.StatusUnprocessableEntity, PublicMessage: "customer credit limit exceeded", DetailsAllowed: true},
}

// MetadataFor falls back to CodeInternal for unknown codes.
func MetadataFor(code Code) Metadata {
	meta, ok := metadataByCode[code]
	if !ok {
		return metadataByCode[CodeInternal]
	}
	return meta
}
