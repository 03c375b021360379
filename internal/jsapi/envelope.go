package jsapi

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
)

const (
	okSuffix     = ":ok"
	cancelSuffix = ":cancel"
)

type OutcomeKind uint8

const (
	OutcomeSuccess OutcomeKind = iota + 1
	OutcomeCancelled
	OutcomeAPIError
)

func (k OutcomeKind) String() string {
	switch k {
	case OutcomeSuccess:
		return "ok"
	case OutcomeCancelled:
		return "cancel"
	case OutcomeAPIError:
		return "api_error"
	default:
		return "unknown"
	}
}

// Outcome is a classified host response. Value is only meaningful for
// OutcomeSuccess; Message always holds the raw outcome string.
type Outcome[T any] struct {
	Kind    OutcomeKind
	Value   T
	Message string
}

// Result is for capabilities without cancel semantics: anything but success,
// including an unexpected cancel, becomes an *APIError.
func (o Outcome[T]) Result() (T, error) {
	if o.Kind == OutcomeSuccess {
		return o.Value, nil
	}
	var zero T
	return zero, &APIError{Message: o.Message}
}

// Err reports the API failure of o, or nil for success and cancellation.
func (o Outcome[T]) Err() error {
	if o.Kind == OutcomeAPIError {
		return &APIError{Message: o.Message}
	}
	return nil
}

// PayloadChecker is implemented by response types whose required fields can be
// absent from a decoded success envelope.
type PayloadChecker interface {
	PayloadPresent() bool
}

type envelope struct {
	ErrMsg      *string `json:"errMsg"`
	ErrMsgAlias *string `json:"err_msg"`
}

func decodeOutcomeString(raw json.RawMessage) (string, error) {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || trimmed[0] != '{' {
		return "", fmt.Errorf("%w: envelope is not an object", ErrDecode)
	}
	var env envelope
	if err := json.Unmarshal(trimmed, &env); err != nil {
		return "", fmt.Errorf("%w: envelope: %v", ErrDecode, err)
	}
	switch {
	case env.ErrMsg != nil:
		return *env.ErrMsg, nil
	case env.ErrMsgAlias != nil:
		return *env.ErrMsgAlias, nil
	default:
		return "", fmt.Errorf("%w: envelope has no errMsg", ErrDecode)
	}
}

// Classify decodes a host envelope and sorts it by the suffix of its outcome
// string. Matching is exact and case-sensitive.
func Classify[T any](raw json.RawMessage) (Outcome[T], error) {
	msg, err := decodeOutcomeString(raw)
	if err != nil {
		return Outcome[T]{}, err
	}
	switch {
	case strings.HasSuffix(msg, okSuffix):
		var value T
		if err := json.Unmarshal(raw, &value); err != nil {
			return Outcome[T]{}, fmt.Errorf("%w: payload: %v", ErrDecode, err)
		}
		if checker, ok := any(&value).(PayloadChecker); ok && !checker.PayloadPresent() {
			return Outcome[T]{}, fmt.Errorf("%w: %s", ErrMalformedSuccess, msg)
		}
		return Outcome[T]{Kind: OutcomeSuccess, Value: value, Message: msg}, nil
	case strings.HasSuffix(msg, cancelSuffix):
		return Outcome[T]{Kind: OutcomeCancelled, Message: msg}, nil
	default:
		return Outcome[T]{Kind: OutcomeAPIError, Message: msg}, nil
	}
}
