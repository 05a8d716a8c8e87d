package domain

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// Domain errors represent business-level errors that can occur in the system.
// These errors are used across layers to communicate specific failure conditions.
var (
	// Route errors
	ErrRouteNotFound    = errors.New("route not found")
	ErrNoDomains        = errors.New("route has no domains")
	ErrNoUpstreams      = errors.New("route has no upstreams")
	ErrUnsafeRouteName  = errors.New("route name is not a safe identifier")
	ErrNameImmutable    = errors.New("route name cannot be changed")
	ErrMissingContact   = errors.New("acme contact email is not configured")
	ErrUnknownSSLType   = errors.New("unknown ssl type")
	ErrRouteLockTimeout = errors.New("timed out waiting for the controller lock")

	// Certificate errors
	ErrCertificateMissing = errors.New("certificate files not found")
	ErrPollExhausted      = errors.New("polling attempts exhausted")
	ErrNoHTTP01Challenge  = errors.New("authorization offers no http-01 challenge")
	ErrSelfCheckFailed    = errors.New("challenge self-check failed")
)

// ValidationError reports bad user input for a single field.
type ValidationError struct {
	Field   string
	Value   string
	Message string
}

func (e *ValidationError) Error() string {
	if e.Value == "" {
		return fmt.Sprintf("%s: %s", e.Field, e.Message)
	}
	return fmt.Sprintf("%s %q: %s", e.Field, e.Value, e.Message)
}

// ValidationErrors collects every problem found in one input.
type ValidationErrors []*ValidationError

func (e ValidationErrors) Error() string {
	msgs := make([]string, 0, len(e))
	for _, v := range e {
		msgs = append(msgs, v.Error())
	}
	return strings.Join(msgs, "; ")
}

// OrNil returns nil when no problem was collected.
func (e ValidationErrors) OrNil() error {
	if len(e) == 0 {
		return nil
	}
	return e
}

// Subproblem is one identifier-specific entry of an ACME problem document.
type Subproblem struct {
	Type       string `json:"type"`
	Detail     string `json:"detail,omitempty"`
	Identifier string `json:"identifier,omitempty"`
}

// ProtocolError is a malformed or unexpected ACME exchange, including
// problem documents returned by the server.
type ProtocolError struct {
	URL         string       `json:"url,omitempty"`
	Status      int          `json:"status,omitempty"`
	Type        string       `json:"type,omitempty"`
	Detail      string       `json:"detail,omitempty"`
	Subproblems []Subproblem `json:"subproblems,omitempty"`
	Err         error        `json:"-"`
}

func (e *ProtocolError) Error() string {
	var b strings.Builder
	b.WriteString("acme protocol error")
	if e.Status != 0 {
		fmt.Fprintf(&b, " (%d)", e.Status)
	}
	if e.Type != "" {
		b.WriteString(": ")
		b.WriteString(e.Type)
	}
	if e.Detail != "" {
		b.WriteString(": ")
		b.WriteString(e.Detail)
	}
	for _, sp := range e.Subproblems {
		fmt.Fprintf(&b, " [%s: %s]", sp.Identifier, sp.Detail)
	}
	if e.Err != nil {
		b.WriteString(": ")
		b.WriteString(e.Err.Error())
	}
	return b.String()
}

func (e *ProtocolError) Unwrap() error { return e.Err }

// ChallengeFailedError is an ACME validation rejected by the server.
type ChallengeFailedError struct {
	Domain string
	Type   string
	Detail string
}

func (e *ChallengeFailedError) Error() string {
	if e.Type == "" {
		return fmt.Sprintf("challenge failed for %s: %s", e.Domain, e.Detail)
	}
	return fmt.Sprintf("challenge failed for %s: %s: %s", e.Domain, e.Type, e.Detail)
}

// KeyError is a key that cannot be loaded, parsed or generated.
type KeyError struct {
	Path string
	Err  error
}

func (e *KeyError) Error() string {
	if e.Path == "" {
		return "key error: " + e.Err.Error()
	}
	return fmt.Sprintf("key error (%s): %v", e.Path, e.Err)
}

func (e *KeyError) Unwrap() error { return e.Err }

// IOError is a filesystem read or write failure.
type IOError struct {
	Op   string
	Path string
	Err  error
}

func (e *IOError) Error() string {
	return fmt.Sprintf("%s %s: %v", e.Op, e.Path, e.Err)
}

func (e *IOError) Unwrap() error { return e.Err }

// ActivationError is a failed proxy configuration test or reload.
type ActivationError struct {
	Command  string
	ExitCode int
	Output   string
	Err      error
}

func (e *ActivationError) Error() string {
	msg := fmt.Sprintf("%s exited with code %d", e.Command, e.ExitCode)
	if e.Output != "" {
		msg += ": " + strings.TrimSpace(e.Output)
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *ActivationError) Unwrap() error { return e.Err }

// errorDescription is the JSON stored in a route's error column.
type errorDescription struct {
	Kind        string       `json:"kind"`
	Message     string       `json:"message"`
	Field       string       `json:"field,omitempty"`
	Domain      string       `json:"domain,omitempty"`
	Path        string       `json:"path,omitempty"`
	Type        string       `json:"type,omitempty"`
	Detail      string       `json:"detail,omitempty"`
	Status      int          `json:"status,omitempty"`
	Subproblems []Subproblem `json:"subproblems,omitempty"`
	Command     string       `json:"command,omitempty"`
	ExitCode    int          `json:"exit_code,omitempty"`
}

// DescribeError serializes err into the description persisted on a route.
func DescribeError(err error) string {
	if err == nil {
		return ""
	}
	d := errorDescription{Kind: "error", Message: err.Error()}

	var (
		protoErr   *ProtocolError
		chalErr    *ChallengeFailedError
		keyErr     *KeyError
		ioErr      *IOError
		actErr     *ActivationError
		valErr     *ValidationError
		valErrList ValidationErrors
	)
	switch {
	case errors.As(err, &chalErr):
		d.Kind = "challenge_failed"
		d.Domain = chalErr.Domain
		d.Type = chalErr.Type
		d.Detail = chalErr.Detail
	case errors.As(err, &protoErr):
		d.Kind = "protocol"
		d.Type = protoErr.Type
		d.Detail = protoErr.Detail
		d.Status = protoErr.Status
		d.Subproblems = protoErr.Subproblems
	case errors.As(err, &keyErr):
		d.Kind = "key"
		d.Path = keyErr.Path
	case errors.As(err, &ioErr):
		d.Kind = "io"
		d.Path = ioErr.Path
	case errors.As(err, &actErr):
		d.Kind = "activation"
		d.Command = actErr.Command
		d.ExitCode = actErr.ExitCode
	case errors.As(err, &valErrList):
		d.Kind = "validation"
	case errors.As(err, &valErr):
		d.Kind = "validation"
		d.Field = valErr.Field
	}

	out, mErr := json.Marshal(d)
	if mErr != nil {
		return err.Error()
	}
	return string(out)
}
