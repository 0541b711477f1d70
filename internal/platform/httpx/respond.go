// Package httpx provides HTTP response utilities.
package httpx

import (
	"encoding/json"
	"net/http"
	"time"
)

const timestampLayout = "2006-01-02T15:04:05.000Z"

// Envelope wraps every successful response.
type Envelope struct {
	Success    bool   `json:"success"`
	StatusCode int    `json:"statusCode"`
	Message    string `json:"message"`
	Data       any    `json:"data"`
	Meta       any    `json:"meta,omitempty"`
	Timestamp  string `json:"timestamp"`
}

// ErrorBody is written for every failed request.
type ErrorBody struct {
	Success    bool     `json:"success"`
	StatusCode int      `json:"statusCode"`
	Message    string   `json:"message"`
	Errors     []string `json:"errors"`
	Timestamp  string   `json:"timestamp"`
	Path       string   `json:"path"`
}

var now = time.Now

func timestamp() string {
	return now().UTC().Format(timestampLayout)
}

// JSON sends a JSON response with the given status code.
func JSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

// Success writes data inside the standard envelope.
func Success(w http.ResponseWriter, status int, message string, data any) {
	JSON(w, status, Envelope{
		Success:    true,
		StatusCode: status,
		Message:    message,
		Data:       data,
		Timestamp:  timestamp(),
	})
}

// Paged writes one page of data with its pagination metadata.
func Paged(w http.ResponseWriter, message string, data, meta any) {
	JSON(w, http.StatusOK, Envelope{
		Success:    true,
		StatusCode: http.StatusOK,
		Message:    message,
		Data:       data,
		Meta:       meta,
		Timestamp:  timestamp(),
	})
}

// Fail writes an error body. The first message becomes the headline.
func Fail(w http.ResponseWriter, r *http.Request, status int, messages ...string) {
	if len(messages) == 0 {
		messages = []string{http.StatusText(status)}
	}
	JSON(w, status, ErrorBody{
		Success:    false,
		StatusCode: status,
		Message:    messages[0],
		Errors:     messages,
		Timestamp:  timestamp(),
		Path:       r.URL.RequestURI(),
	})
}

// DecodeJSON decodes JSON request body into the target struct.
func DecodeJSON(r *http.Request, target any) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(target); err != nil {
		return &ValidationError{Messages: []string{"request body is not valid JSON: " + err.Error()}}
	}
	return nil
}
