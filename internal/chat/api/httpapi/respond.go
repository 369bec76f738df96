package httpapi

import (
	"encoding/json"
	"log"
	"net/http"

	apperrors "github.com/conclave-chat/conclave/internal/platform/errors"
)

type errorBody struct {
	Error errorDetail `json:"error"`
}

type errorDetail struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func newErrorBody(err error) errorBody {
	return errorBody{Error: errorDetail{
		Code:    string(apperrors.CodeOf(err)),
		Message: err.Error(),
	}}
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if payload == nil {
		return
	}
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		log.Printf("httpapi: encode response: %v", err)
	}
}

// writeError maps a domain error onto the wire shape {"error":{code,message}}.
// Internal failures are logged and never leak their message to the client.
func writeError(w http.ResponseWriter, logger *log.Logger, err error) {
	code := apperrors.CodeOf(err)
	status := code.HTTPStatus()
	message := err.Error()
	if status >= http.StatusInternalServerError {
		logger.Printf("httpapi: internal error: %v", err)
		message = "internal error"
	}
	writeJSON(w, status, errorBody{Error: errorDetail{
		Code:    string(code),
		Message: message,
	}})
}

func badRequest(w http.ResponseWriter, logger *log.Logger, message string) {
	writeError(w, logger, apperrors.New(apperrors.CodeInvalidRequest, message))
}
