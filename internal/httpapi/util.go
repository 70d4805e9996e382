package httpapi

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"

	"github.com/xfn3t/smart-warehouse-sub000/internal/apperr"
)

const maxBodyBytes = 1 << 20

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// writeError NotFound -> 404，InvalidArgument -> 400，其余 -> 500
func writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	msg := "internal error"
	switch apperr.KindOf(err) {
	case apperr.KindNotFound:
		status, msg = http.StatusNotFound, err.Error()
	case apperr.KindInvalidArgument:
		status, msg = http.StatusBadRequest, err.Error()
	}
	writeJSON(w, status, Fail(msg))
}

func readBodyJSON(r *http.Request, v any) error {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes+1))
	if err != nil {
		return apperr.InvalidArgument("read body: %v", err)
	}
	if len(body) > maxBodyBytes {
		return apperr.InvalidArgument("request body too large")
	}
	if len(body) == 0 {
		return apperr.InvalidArgument("empty request body")
	}
	if err := json.Unmarshal(body, v); err != nil {
		var syntaxErr *json.SyntaxError
		if errors.As(err, &syntaxErr) {
			return apperr.InvalidArgument("malformed json at offset %d", syntaxErr.Offset)
		}
		return apperr.InvalidArgument("invalid json: %v", err)
	}
	return nil
}

func pathInt(r *http.Request, name string) (int, error) {
	raw := r.PathValue(name)
	v, err := strconv.Atoi(raw)
	if err != nil {
		return 0, apperr.InvalidArgument("%s must be an integer, got %q", name, raw)
	}
	if v < 0 {
		return 0, apperr.InvalidArgument("%s must be non-negative", name)
	}
	return v, nil
}

func requirePath(r *http.Request, name string) (string, error) {
	v := r.PathValue(name)
	if v == "" {
		return "", apperr.InvalidArgument("%s is required", name)
	}
	return v, nil
}

