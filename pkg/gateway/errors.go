package gateway

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/pkg/errors"
)

// ErrSessionInvalid is returned for every 401 response. By the time a
// caller sees it the session has already been cleared; the caller decides
// where to send the user.
var ErrSessionInvalid = errors.New("session invalid")

const (
	NetworkErrorMessage        = "Network error. Please check your connection and try again."
	SessionExpiredErrorMessage = "Session expired. Please log in again."
)

// NetworkError is a transport failure: no response was received.
type NetworkError struct {
	Method string
	URL    string
	Err    error
}

func (e *NetworkError) Error() string {
	return fmt.Sprintf("%s %s: %v", e.Method, e.URL, e.Err)
}

func (e *NetworkError) Unwrap() error { return e.Err }

// StatusError is a non-2xx response, passed through with the body the
// backend sent.
type StatusError struct {
	Method     string
	Path       string
	StatusCode int
	Body       []byte
}

func (e *StatusError) Error() string {
	body := strings.TrimSpace(string(e.Body))
	if len(body) > 200 {
		body = body[:200] + "..."
	}
	if body == "" {
		return fmt.Sprintf("%s %s: %d %s", e.Method, e.Path, e.StatusCode, http.StatusText(e.StatusCode))
	}
	return fmt.Sprintf("%s %s: %d %s: %s", e.Method, e.Path, e.StatusCode, http.StatusText(e.StatusCode), body)
}

// SessionInvalidError carries the 401 response. It matches
// ErrSessionInvalid with errors.Is and unwraps to the StatusError.
type SessionInvalidError struct {
	Status *StatusError
}

func (e *SessionInvalidError) Error() string {
	return ErrSessionInvalid.Error() + ": " + e.Status.Error()
}

func (e *SessionInvalidError) Is(target error) bool { return target == ErrSessionInvalid }

func (e *SessionInvalidError) Unwrap() error { return e.Status }

// Kind is the user-facing category of a failed call.
type Kind int

const (
	KindNone Kind = iota
	KindNetwork
	KindAuth
	KindValidation
	KindUnknown
)

func (k Kind) String() string {
	switch k {
	case KindNone:
		return "none"
	case KindNetwork:
		return "network"
	case KindAuth:
		return "auth"
	case KindValidation:
		return "validation"
	default:
		return "unknown"
	}
}

// Classify maps an error returned by the gateway to its Kind.
func Classify(err error) Kind {
	if err == nil {
		return KindNone
	}
	if errors.Is(err, ErrSessionInvalid) {
		return KindAuth
	}
	var netErr *NetworkError
	if errors.As(err, &netErr) {
		return KindNetwork
	}
	var statusErr *StatusError
	if errors.As(err, &statusErr) && statusErr.StatusCode >= 400 && statusErr.StatusCode < 500 {
		if _, ok := FirstFieldMessage(statusErr.Body); ok {
			return KindValidation
		}
	}
	return KindUnknown
}

// UserMessage turns err into the single line shown to the user. Validation
// errors show only the first message of the first field; everything the
// gateway cannot interpret collapses to fallback.
func UserMessage(err error, fallback string) string {
	switch Classify(err) {
	case KindNone:
		return ""
	case KindNetwork:
		return NetworkErrorMessage
	case KindAuth:
		return SessionExpiredErrorMessage
	case KindValidation:
		var statusErr *StatusError
		if errors.As(err, &statusErr) {
			if msg, ok := FirstFieldMessage(statusErr.Body); ok {
				return msg
			}
		}
	}
	return fallback
}

// FirstFieldMessage extracts the first message of the first field of a
// structured error body such as {"password": ["too short"], "username": [...]}.
// Field order is the order in the payload. Fields whose value holds no
// message are skipped.
func FirstFieldMessage(body []byte) (string, bool) {
	dec := json.NewDecoder(bytes.NewReader(body))
	tok, err := dec.Token()
	if err != nil {
		return "", false
	}
	if d, ok := tok.(json.Delim); !ok || d != '{' {
		return "", false
	}
	for dec.More() {
		if _, err := dec.Token(); err != nil {
			return "", false
		}
		var raw json.RawMessage
		if err := dec.Decode(&raw); err != nil {
			return "", false
		}
		if msg, ok := firstMessage(raw); ok {
			return msg, true
		}
	}
	return "", false
}

func firstMessage(raw json.RawMessage) (string, bool) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 {
		return "", false
	}
	switch raw[0] {
	case '"':
		var s string
		if err := json.Unmarshal(raw, &s); err != nil || s == "" {
			return "", false
		}
		return s, true
	case '[':
		var items []json.RawMessage
		if err := json.Unmarshal(raw, &items); err != nil {
			return "", false
		}
		for _, item := range items {
			if msg, ok := firstMessage(item); ok {
				return msg, true
			}
		}
	case '{':
		return FirstFieldMessage(raw)
	}
	return "", false
}

func readBody(r io.Reader) ([]byte, error) {
	if r == nil {
		return nil, nil
	}
	return io.ReadAll(r)
}
