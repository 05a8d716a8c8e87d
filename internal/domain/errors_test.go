package domain

import (
	"encoding/json"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func decodeDescription(t *testing.T, s string) map[string]any {
	t.Helper()
	var out map[string]any
	require.NoError(t, json.Unmarshal([]byte(s), &out))
	return out
}

func TestDescribeError_Protocol(t *testing.T) {
	err := fmt.Errorf("issue certificate: %w", &ProtocolError{
		Status: 403,
		Type:   "urn:ietf:params:acme:error:rejectedIdentifier",
		Detail: "policy forbids issuing",
		Subproblems: []Subproblem{
			{Type: "urn:ietf:params:acme:error:rejectedIdentifier", Detail: "forbidden", Identifier: "bad.example.com"},
		},
	})

	d := decodeDescription(t, DescribeError(err))
	assert.Equal(t, "protocol", d["kind"])
	assert.Equal(t, "urn:ietf:params:acme:error:rejectedIdentifier", d["type"])
	assert.Equal(t, "policy forbids issuing", d["detail"])
	subs := d["subproblems"].([]any)
	require.Len(t, subs, 1)
	assert.Equal(t, "bad.example.com", subs[0].(map[string]any)["identifier"])
}

func TestDescribeError_Kinds(t *testing.T) {
	tests := []struct {
		err  error
		kind string
	}{
		{&ChallengeFailedError{Domain: "example.com", Detail: "connection refused"}, "challenge_failed"},
		{&KeyError{Path: "/k.pem", Err: errors.New("bad")}, "key"},
		{&IOError{Op: "write", Path: "/x", Err: errors.New("denied")}, "io"},
		{&ActivationError{Command: "nginx -t", ExitCode: 1}, "activation"},
		{&ValidationError{Field: "domains", Message: "invalid"}, "validation"},
		{ValidationErrors{{Field: "ip", Message: "invalid"}}, "validation"},
		{errors.New("plain"), "error"},
	}

	for _, tt := range tests {
		t.Run(tt.kind, func(t *testing.T) {
			d := decodeDescription(t, DescribeError(tt.err))
			assert.Equal(t, tt.kind, d["kind"])
			assert.Equal(t, tt.err.Error(), d["message"])
		})
	}
}

func TestDescribeError_Nil(t *testing.T) {
	assert.Equal(t, "", DescribeError(nil))
}

func TestValidationErrors(t *testing.T) {
	var errs ValidationErrors
	assert.NoError(t, errs.OrNil())

	errs = append(errs, &ValidationError{Field: "domains[0]", Value: "localhost", Message: "invalid domain name"})
	errs = append(errs, &ValidationError{Field: "upstreams[0]", Message: "invalid port"})
	err := errs.OrNil()
	require.Error(t, err)
	assert.Equal(t, `domains[0] "localhost": invalid domain name; upstreams[0]: invalid port`, err.Error())
}

func TestProtocolError_Unwrap(t *testing.T) {
	err := &ProtocolError{Detail: "gave up", Err: ErrPollExhausted}
	assert.ErrorIs(t, err, ErrPollExhausted)
}
