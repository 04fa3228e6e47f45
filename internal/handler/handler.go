package handler

import (
	"bytes"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"math"
	"net/http"
	"strconv"
	"strings"

	"github.com/dukerupert/pointledger/internal/auth"
	"github.com/dukerupert/pointledger/internal/blob"
	"github.com/dukerupert/pointledger/internal/ledger"
	"github.com/dukerupert/pointledger/internal/middleware"
	"github.com/dukerupert/pointledger/internal/websocket"
)

const maxBodyBytes = 1 << 20

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// decodeJSON reads a JSON object into v. An empty body decodes as {}.
func decodeJSON(w http.ResponseWriter, r *http.Request, v any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	dec := json.NewDecoder(r.Body)
	if err := dec.Decode(v); err != nil && !errors.Is(err, io.EOF) {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return false
	}
	return true
}

// flexInt accepts a JSON number or a numeric string that fits a 32-bit
// integer column. Set is false when the field is absent or null; Valid is
// false when it is present but not such an integer.
type flexInt struct {
	Value int
	Set   bool
	Valid bool
}

func (f *flexInt) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if string(data) == "null" {
		*f = flexInt{}
		return nil
	}
	f.Set = true

	if len(data) > 0 && data[0] == '"' {
		var raw string
		if err := json.Unmarshal(data, &raw); err != nil {
			return nil
		}
		if n, err := strconv.ParseInt(strings.TrimSpace(raw), 10, 32); err == nil {
			f.Value, f.Valid = int(n), true
		}
		return nil
	}

	raw := string(data)
	if n, err := strconv.ParseInt(raw, 10, 32); err == nil {
		f.Value, f.Valid = int(n), true
		return nil
	}
	fl, err := strconv.ParseFloat(raw, 64)
	if err == nil && fl == math.Trunc(fl) && fl >= math.MinInt32 && fl <= math.MaxInt32 {
		f.Value, f.Valid = int(fl), true
	}
	return nil
}

// statusFor maps ledger and storage outcomes to HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, ledger.ErrValidation),
		errors.Is(err, ledger.ErrInsufficientFunds),
		errors.Is(err, ledger.ErrConflict):
		return http.StatusBadRequest
	case errors.Is(err, ledger.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, ledger.ErrAlreadySubmitted):
		return http.StatusOK
	default:
		return http.StatusInternalServerError
	}
}

// fail logs err with the caller and operation and writes the mapped status.
// Business outcomes are answered with msg (or the error text); faults get a
// generic message.
func fail(w http.ResponseWriter, r *http.Request, logger *slog.Logger, op string, err error, msg string, attrs ...any) {
	status := statusFor(err)
	attrs = append([]any{
		"account_id", auth.AccountID(r.Context()),
		"request_id", middleware.RequestID(r.Context()),
		"op", op,
		"error", err,
	}, attrs...)

	if status >= http.StatusInternalServerError {
		logger.Error("request failed", attrs...)
		if errors.Is(err, blob.ErrStorage) {
			writeError(w, status, "An error occurred while uploading the image.")
			return
		}
		writeError(w, status, "internal error")
		return
	}

	logger.Warn("request rejected", attrs...)
	if msg == "" {
		msg = err.Error()
	}
	writeError(w, status, msg)
}

func publish(hub *websocket.Hub, msg websocket.Message) {
	if hub != nil {
		hub.Publish(msg)
	}
}
