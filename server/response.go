package server

import (
	"encoding/json"
	"fmt"
	"net/http"
)

// Response wraps every JSON body the server writes.
type Response struct {
	Status int `json:"status"`
	Body   any `json:"body,omitempty"`
}

type ErrorResponse struct {
	Error string `json:"error"`
}

const internalErrorJSON = `{"status":500,"body":{"error":"internal server error"}}`

func writeResponse(w http.ResponseWriter, status int, body any) {
	b, err := json.Marshal(Response{Status: status, Body: body})
	if err != nil {
		writeInternalError(w)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(b)
}

func writeError(w http.ResponseWriter, status int, format string, args ...any) {
	writeResponse(w, status, ErrorResponse{Error: fmt.Sprintf(format, args...)})
}

func writeInternalError(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusInternalServerError)
	_, _ = fmt.Fprintln(w, internalErrorJSON)
}
