// Package handlers implements the JSON API of Ajeyam. Every response uses
// the same envelope: {"status":"success","data":...} on success and
// {"status":"fail"|"error","message":...} on failure.
package handlers

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"math"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"ajeyam/internal/apperr"
	"ajeyam/internal/store"
)

// maxBodyBytes caps request bodies. Blog content is the largest field.
const maxBodyBytes = 1 << 20

const (
	defaultPageLimit = 10
	maxPageLimit     = 100
	maxPageNumber    = math.MaxInt32
)

// envelope is a response body.
type envelope map[string]any

// writeJSON encodes v with the given status.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("encode response failed", "error", err)
	}
}

// writeData writes a success envelope around data.
func writeData(w http.ResponseWriter, status int, data any) {
	writeJSON(w, status, envelope{"status": "success", "data": data})
}

// writeMessage writes a success envelope carrying only a message.
func writeMessage(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, envelope{"status": "success", "message": message})
}

// writeFail writes a failure envelope.
func writeFail(w http.ResponseWriter, status int, message string) {
	state := "fail"
	if status >= http.StatusInternalServerError {
		state = "error"
	}
	writeJSON(w, status, envelope{"status": state, "message": message})
}

// writeError maps err onto the envelope. Unclassified errors are logged
// and reported without detail.
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	kind := apperr.KindOf(err)
	if kind == apperr.KindInternal {
		slog.ErrorContext(r.Context(), "request failed",
			"error", err, "method", r.Method, "path", r.URL.Path)
		writeFail(w, http.StatusInternalServerError, "Something went wrong")
		return
	}
	writeFail(w, apperr.HTTPStatus(kind), apperr.Message(err))
}

// writePage writes a paginated listing under key.
func writePage(w http.ResponseWriter, key string, items any, count, total int, p store.Page) {
	writeJSON(w, http.StatusOK, envelope{
		"status":     "success",
		"results":    count,
		"pagination": pagination(p, total),
		"data":       envelope{key: items},
	})
}

// pagination describes page p of total results.
func pagination(p store.Page, total int) envelope {
	pages := 0
	if p.Limit > 0 {
		pages = (total + p.Limit - 1) / p.Limit
	}
	return envelope{
		"page":        p.Number,
		"limit":       p.Limit,
		"total":       total,
		"pages":       pages,
		"hasNextPage": p.Number < pages,
		"hasPrevPage": p.Number > 1,
	}
}

// decodeJSON reads the request body into dst. An empty body leaves dst
// untouched.
func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	dec := json.NewDecoder(r.Body)
	if err := dec.Decode(dst); err != nil {
		if errors.Is(err, io.EOF) {
			return nil
		}
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			return apperr.Validation("Request body is too large")
		}
		return apperr.Validation("Invalid JSON body")
	}
	return nil
}

// uuidParam parses a chi URL parameter as a UUID. A malformed id reports
// notFound, since no entity can have it.
func uuidParam(r *http.Request, name, notFound string) (uuid.UUID, error) {
	id, err := uuid.Parse(chi.URLParam(r, name))
	if err != nil {
		return uuid.Nil, apperr.NotFound("%s", notFound)
	}
	return id, nil
}

// parsePage reads ?page= and ?limit=, clamping to sane bounds.
func parsePage(r *http.Request, defaultLimit int) store.Page {
	p := store.Page{Number: 1, Limit: defaultLimit}
	if n, err := strconv.Atoi(r.URL.Query().Get("page")); err == nil && n > 0 {
		p.Number = min(n, maxPageNumber)
	}
	if n, err := strconv.Atoi(r.URL.Query().Get("limit")); err == nil && n > 0 {
		p.Limit = min(n, maxPageLimit)
	}
	return p
}

// queryLimit reads ?limit= for non-paginated listings.
func queryLimit(r *http.Request, fallback int) int {
	if n, err := strconv.Atoi(r.URL.Query().Get("limit")); err == nil && n > 0 {
		return min(n, maxPageLimit)
	}
	return fallback
}

// splitComma splits a comma separated query value, dropping blanks.
func splitComma(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
