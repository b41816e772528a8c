package api

import (
	"encoding/json"
	"net/http"
)

// WriteJSON writes a JSON response with the given status code. The frontend
// expects UTF-8 explicitly; Turkish text is everywhere in this API.
func WriteJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// failBody is the error response shape shared by every endpoint.
type failBody struct {
	OK    bool   `json:"ok"`
	Error string `json:"error"`
}

// WriteFail writes an {ok:false, error} response.
func WriteFail(w http.ResponseWriter, status int, msg string) {
	WriteJSON(w, status, failBody{OK: false, Error: msg})
}
