package regapi

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
)

// Error is a non-2xx reply from the Registration API.
type Error struct {
	Op         string
	StatusCode int
	Message    string // "message" field of a JSON error body
	Body       string
}

func (e *Error) Error() string {
	detail := e.Message
	if detail == "" {
		detail = e.Body
	}
	if detail == "" {
		detail = http.StatusText(e.StatusCode)
	}
	return fmt.Sprintf("regapi: %s: status %d: %s", e.Op, e.StatusCode, detail)
}

// ServerMessage returns the message supplied by the server, if any.
func (e *Error) ServerMessage() string {
	return e.Message
}

// HTTPStatus returns the status code of the failed reply.
func (e *Error) HTTPStatus() int {
	return e.StatusCode
}

func errorFromResponse(op string, resp *http.Response) error {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))

	apiErr := &Error{Op: op, StatusCode: resp.StatusCode}
	var payload struct {
		Message string `json:"message"`
		Error   string `json:"error"`
	}
	if len(body) > 0 && json.Unmarshal(body, &payload) == nil {
		apiErr.Message = strings.TrimSpace(payload.Message)
		if apiErr.Message == "" {
			apiErr.Message = strings.TrimSpace(payload.Error)
		}
	}
	if apiErr.Message == "" {
		apiErr.Body = strings.TrimSpace(string(body))
	}
	return apiErr
}
