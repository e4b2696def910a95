package client

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// errMissingSuccess marks a JSON body without the success flag.
var errMissingSuccess = errors.New("envelope has no success flag")

// Envelope is the response wrapper every Ashby RPC returns.
type Envelope struct {
	Success           bool
	Results           json.RawMessage
	Errors            []string
	MoreDataAvailable bool
	NextCursor        string
}

type wireEnvelope struct {
	Success           *bool           `json:"success"`
	Results           json.RawMessage `json:"results"`
	Errors            json.RawMessage `json:"errors"`
	ErrorInfo         *wireErrorInfo  `json:"errorInfo"`
	MoreDataAvailable bool            `json:"moreDataAvailable"`
	NextCursor        string          `json:"nextCursor"`
}

type wireErrorInfo struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// decodeEnvelope validates body against the envelope schema. A body that
// is not JSON returns a decode error; a JSON body without success returns
// errMissingSuccess alongside the partially decoded envelope.
func decodeEnvelope(body []byte) (*Envelope, error) {
	var wire wireEnvelope
	if err := json.Unmarshal(body, &wire); err != nil {
		return nil, fmt.Errorf("decode envelope: %w", err)
	}

	env := &Envelope{
		Results:           wire.Results,
		Errors:            decodeErrors(wire.Errors),
		MoreDataAvailable: wire.MoreDataAvailable,
		NextCursor:        wire.NextCursor,
	}
	if wire.ErrorInfo != nil && wire.ErrorInfo.Message != "" {
		env.Errors = append(env.Errors, wire.ErrorInfo.Message)
	}

	if wire.Success == nil {
		return env, errMissingSuccess
	}
	env.Success = *wire.Success
	return env, nil
}

// decodeErrors accepts either a string or a list of strings.
func decodeErrors(raw json.RawMessage) []string {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return nil
	}

	var single string
	if err := json.Unmarshal(raw, &single); err == nil {
		if single == "" {
			return nil
		}
		return []string{single}
	}

	var list []string
	if err := json.Unmarshal(raw, &list); err == nil {
		return list
	}

	return []string{string(raw)}
}

// ErrorMessage returns the upstream error text, or "Unknown error".
func (e *Envelope) ErrorMessage() string {
	if len(e.Errors) == 0 {
		return "Unknown error"
	}
	return strings.Join(e.Errors, "; ")
}

// HasResults reports whether the envelope carries a non-null results value.
func (e *Envelope) HasResults() bool {
	raw := bytes.TrimSpace(e.Results)
	return len(raw) > 0 && !bytes.Equal(raw, []byte("null"))
}

// DecodeResults unmarshals results into v. Missing results leave v untouched.
func (e *Envelope) DecodeResults(v any) error {
	if !e.HasResults() {
		return nil
	}
	if err := json.Unmarshal(e.Results, v); err != nil {
		return fmt.Errorf("decode results: %w", err)
	}
	return nil
}
