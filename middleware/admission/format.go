// utilitários pequenos para respostas de rejeição e valores de headers.

package admission

import (
	"encoding/json"
	"net/http"
	"strconv"
)

const (
	bodyForbidden   = "forbidden"
	bodyRateLimited = "request limit exceeded"
)

type denialBody struct {
	Error string `json:"error"`
}

func writeForbidden(w http.ResponseWriter) {
	writeDenial(w, http.StatusForbidden, bodyForbidden)
}

func writeRateLimited(w http.ResponseWriter) {
	writeDenial(w, http.StatusTooManyRequests, bodyRateLimited)
}

// writeDenial escreve um corpo JSON mínimo: {"error": "..."}.
func writeDenial(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("X-Content-Type-Options", "nosniff")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(denialBody{Error: msg})
}

func formatInt(v int) string { return strconv.Itoa(v) }

func formatInt64(v int64) string { return strconv.FormatInt(v, 10) }
