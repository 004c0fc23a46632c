package middleware

import (
	"encoding/json"
	"net/http"
)

// writeFail writes the API error envelope. Middleware cannot use the
// handlers package helpers without an import cycle.
func writeFail(w http.ResponseWriter, status int, message string) {
	state := "fail"
	if status >= http.StatusInternalServerError {
		state = "error"
	}
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{
		"status":  state,
		"message": message,
	})
}
