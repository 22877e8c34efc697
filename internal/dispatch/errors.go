package dispatch

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Kind classifies an invocation failure.
type Kind string

const (
	KindUnknownTool         Kind = "unknown_tool"
	KindMissingParameter    Kind = "missing_parameter"
	KindInvalidParameter    Kind = "invalid_parameter"
	KindUnexpectedParameter Kind = "unexpected_parameter"
	KindAuth                Kind = "auth_error"
	KindTransport           Kind = "transport_error"
	KindRemote              Kind = "remote_error"
)

// Sentinels for errors.Is; they compare by Kind only.
var (
	ErrUnknownTool         = &Error{Kind: KindUnknownTool}
	ErrMissingParameter    = &Error{Kind: KindMissingParameter}
	ErrInvalidParameter    = &Error{Kind: KindInvalidParameter}
	ErrUnexpectedParameter = &Error{Kind: KindUnexpectedParameter}
	ErrAuth                = &Error{Kind: KindAuth}
	ErrTransport           = &Error{Kind: KindTransport}
	ErrRemote              = &Error{Kind: KindRemote}
)

// Error is the structured failure returned by Invoke.
type Error struct {
	Kind    Kind
	Tool    string
	Param   string
	Message string

	// StatusCode and Body are set for KindRemote.
	StatusCode int
	Body       []byte

	// Err is the underlying cause for KindAuth and KindTransport.
	Err error
}

func (e *Error) Error() string {
	var sb strings.Builder
	sb.WriteString(string(e.Kind))
	if e.Tool != "" {
		sb.WriteString(" (" + e.Tool + ")")
	}
	if e.Message != "" {
		sb.WriteString(": " + e.Message)
	}
	return sb.String()
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is matches any *Error with the same Kind.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	return ok && t.Kind == e.Kind
}

// Retryable reports whether a caller may reasonably try the same call again
// unchanged: transport failures and 429/5xx remote responses.
func (e *Error) Retryable() bool {
	switch e.Kind {
	case KindTransport:
		return true
	case KindRemote:
		return e.StatusCode == 429 || e.StatusCode >= 500
	}
	return false
}

// MarshalJSON renders the error the way tool clients receive it.
func (e *Error) MarshalJSON() ([]byte, error) {
	out := struct {
		Kind       Kind            `json:"kind"`
		Tool       string          `json:"tool,omitempty"`
		Param      string          `json:"param,omitempty"`
		Message    string          `json:"message"`
		StatusCode int             `json:"status_code,omitempty"`
		Body       json.RawMessage `json:"body,omitempty"`
		BodyText   string          `json:"body_text,omitempty"`
	}{
		Kind:       e.Kind,
		Tool:       e.Tool,
		Param:      e.Param,
		Message:    e.Message,
		StatusCode: e.StatusCode,
	}
	if len(e.Body) > 0 {
		if json.Valid(e.Body) {
			out.Body = e.Body
		} else {
			out.BodyText = string(e.Body)
		}
	}
	return json.Marshal(out)
}

func unknownTool(name string) *Error {
	return &Error{Kind: KindUnknownTool, Tool: name, Message: fmt.Sprintf("no tool named %q", name)}
}

func missingParameter(tool, param string) *Error {
	return &Error{Kind: KindMissingParameter, Tool: tool, Param: param, Message: fmt.Sprintf("%s parameter is required", param)}
}

func invalidParameter(tool, param, format string, args ...any) *Error {
	return &Error{Kind: KindInvalidParameter, Tool: tool, Param: param, Message: param + ": " + fmt.Sprintf(format, args...)}
}

func unexpectedParameter(tool, param string) *Error {
	return &Error{Kind: KindUnexpectedParameter, Tool: tool, Param: param, Message: fmt.Sprintf("%s is not a parameter of this tool", param)}
}

// boxError is the error envelope the Box API returns on failures.
type boxError struct {
	Type      string `json:"type"`
	Status    int    `json:"status"`
	Code      string `json:"code"`
	Message   string `json:"message"`
	RequestID string `json:"request_id"`
}

// remoteError builds a KindRemote error, lifting the message out of Box's
// error envelope when the body is one.
func remoteError(tool string, status int, body []byte) *Error {
	msg := fmt.Sprintf("server returned %d", status)
	var env boxError
	if json.Unmarshal(body, &env) == nil {
		switch {
		case env.Message != "" && env.Code != "":
			msg = fmt.Sprintf("%s (%s, status %d)", env.Message, env.Code, status)
		case env.Message != "":
			msg = fmt.Sprintf("%s (status %d)", env.Message, status)
		case env.Code != "":
			msg = fmt.Sprintf("%s (status %d)", env.Code, status)
		}
	}
	return &Error{Kind: KindRemote, Tool: tool, Message: msg, StatusCode: status, Body: body}
}
