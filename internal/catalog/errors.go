package catalog

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"unicode/utf8"
)

// APIError is a non-2xx response from the catalog API. Message is the
// server's error string, shown to operators verbatim.
type APIError struct {
	Op         string
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	return e.Message
}

// RequestError is a transport failure: the catalog API was not reached or
// its response could not be read.
type RequestError struct {
	Op  string
	Err error
}

func (e *RequestError) Error() string {
	return fmt.Sprintf("%s request failed: %v", e.Op, e.Err)
}

func (e *RequestError) Unwrap() error {
	return e.Err
}

const maxErrorBody = 512

func newAPIError(op string, status int, body []byte) *APIError {
	var payload struct {
		Error   string `json:"error"`
		Message string `json:"message"`
	}
	msg := ""
	if err := json.Unmarshal(body, &payload); err == nil {
		msg = payload.Error
		if msg == "" {
			msg = payload.Message
		}
	}
	if msg == "" {
		text := strings.TrimSpace(string(bytes.ToValidUTF8(body, nil)))
		if len(text) > maxErrorBody {
			cut := maxErrorBody
			for cut > 0 && !utf8.RuneStart(text[cut]) {
				cut--
			}
			text = text[:cut]
		}
		msg = text
	}
	if msg == "" {
		msg = fmt.Sprintf("%s failed: %d %s", op, status, http.StatusText(status))
	}
	return &APIError{Op: op, StatusCode: status, Message: msg}
}
