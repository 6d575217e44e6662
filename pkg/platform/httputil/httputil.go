package httputil

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"

	dErrors "anonpoll/pkg/domain-errors"
)

// maxBodyBytes caps request bodies; attestations are the largest field.
const maxBodyBytes = 64 << 10

// Validatable is implemented by request DTOs that normalize and validate themselves.
type Validatable interface {
	Validate() error
}

// ErrorResponse is the wire shape of every error.
type ErrorResponse struct {
	Error            string `json:"error"`
	ErrorDescription string `json:"error_description,omitempty"`
}

// WriteJSON writes v with the given status.
func WriteJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// WriteError maps a domain error to its HTTP status and body. Internal and
// storage errors never echo their description.
func WriteError(w http.ResponseWriter, err error) {
	code := dErrors.CodeOf(err)
	if code == "" {
		code = dErrors.CodeInternal
	}
	resp := ErrorResponse{Error: string(code)}
	var de *dErrors.Error
	if errors.As(err, &de) && exposeDescription(code) {
		resp.ErrorDescription = de.Message
	}
	WriteJSON(w, StatusFor(code), resp)
}

// StatusFor returns the HTTP status for a code.
func StatusFor(code dErrors.Code) int {
	switch code {
	case dErrors.CodeBadRequest, dErrors.CodeValidation, dErrors.CodeInvalidInput,
		dErrors.CodeInvalidOption, dErrors.CodePayloadHashMismatch, dErrors.CodePollBindingMismatch:
		return http.StatusBadRequest
	case dErrors.CodeUnauthorized, dErrors.CodeInvalidAttestation, dErrors.CodeExpiredAttestation,
		dErrors.CodeExpiredOrInvalidNonce:
		return http.StatusUnauthorized
	case dErrors.CodeForbidden, dErrors.CodeNotEligible:
		return http.StatusForbidden
	case dErrors.CodeNotFound:
		return http.StatusNotFound
	case dErrors.CodeConflict, dErrors.CodePollNotActive, dErrors.CodeDuplicateNullifier,
		dErrors.CodeQueryOverlapDenied:
		return http.StatusConflict
	case dErrors.CodeTimeout:
		return http.StatusGatewayTimeout
	case dErrors.CodeUnavailable, dErrors.CodeStorage, dErrors.CodeSigningUnavailable:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func exposeDescription(code dErrors.Code) bool {
	switch code {
	case dErrors.CodeInternal, dErrors.CodeStorage, dErrors.CodeUnavailable,
		dErrors.CodeSigningUnavailable, dErrors.CodeTimeout:
		return false
	}
	return true
}

// DecodeAndPrepare decodes a JSON body into T and validates it. On failure
// it writes the error response and returns ok=false.
func DecodeAndPrepare[T any, PT interface {
	*T
	Validatable
}](w http.ResponseWriter, r *http.Request, logger *slog.Logger, ctx context.Context, requestID string) (PT, bool) {
	req := PT(new(T))
	dec := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(req); err != nil {
		logger.WarnContext(ctx, "invalid request body",
			"request_id", requestID,
			"error", err,
		)
		WriteError(w, dErrors.New(dErrors.CodeBadRequest, "invalid request body"))
		return nil, false
	}
	if err := req.Validate(); err != nil {
		logger.WarnContext(ctx, "request validation failed",
			"request_id", requestID,
			"error", err,
		)
		WriteError(w, err)
		return nil, false
	}
	return req, true
}
