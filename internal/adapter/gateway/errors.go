package gateway

import (
	"net/http"

	"coral-agents/internal/domain"
)

// errorResponse is the JSON body of every failed REST call.
type errorResponse struct {
	Success bool   `json:"success"`
	Error   string `json:"error"`
	Code    string `json:"code"`
	Stage   string `json:"stage,omitempty"`
}

// successResponse wraps REST results.
type successResponse struct {
	Success bool `json:"success"`
	Data    any  `json:"data"`
}

// statusFor maps an error code to an HTTP status.
func statusFor(code domain.ErrorCode) int {
	switch code {
	case domain.CodeInvalidInput, domain.CodeInvalidMessage, domain.CodeInvalidDescriptor,
		domain.CodeRPCInvalidPayload:
		return http.StatusBadRequest
	case domain.CodeAgentNotFound, domain.CodeRPCMethodNotFound:
		return http.StatusNotFound
	case domain.CodeAgentCallFailed, domain.CodeOrchestrationFailed, domain.CodeAgentTimeout:
		return http.StatusBadGateway
	case domain.CodeCircuitOpen:
		return http.StatusServiceUnavailable
	case domain.CodeGatewayAuth, domain.CodeAuthInvalid:
		return http.StatusUnauthorized
	case domain.CodeRateLimit:
		return http.StatusTooManyRequests
	}
	return http.StatusInternalServerError
}

func writeError(w http.ResponseWriter, err error) {
	code := domain.ErrorCodeOf(err)
	writeJSON(w, statusFor(code), errorResponse{
		Error: err.Error(),
		Code:  string(code),
		Stage: domain.StageOf(err),
	})
}

func writeData(w http.ResponseWriter, data any) {
	writeJSON(w, http.StatusOK, successResponse{Success: true, Data: data})
}
