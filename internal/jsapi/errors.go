package jsapi

import (
	"context"
	"errors"
	"fmt"

	"github.com/redforks/wx-js-sdk/internal/host"
	"github.com/redforks/wx-js-sdk/internal/signing"
)

var (
	ErrURLUnavailable = signing.ErrURLUnavailable
	ErrNetwork        = signing.ErrNetwork
	ErrDecode         = signing.ErrDecode
	ErrThrottled      = signing.ErrThrottled

	// ErrStillInitializing is returned to callers that lose the race for the
	// handshake while it is in flight.
	ErrStillInitializing = errors.New("initializing")
	ErrSerialization     = errors.New("serialize host options")
	ErrMalformedSuccess  = errors.New("host reported success without payload")
)

// ConfigurationRejectedError means the host refused the handshake.
type ConfigurationRejectedError struct {
	HostMessage string
}

func (e *ConfigurationRejectedError) Error() string {
	return "configure wx jsapi failed: " + e.HostMessage
}

// TransportError is an out-of-band failure of a capability entry point. Capability
// outcomes are reported in the envelope, so this is never a business error.
type TransportError struct {
	Capability string
	Err        error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("call %s: %v", e.Capability, e.Err)
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

// APIError carries the host's outcome string verbatim.
type APIError struct {
	Message string
}

func (e *APIError) Error() string {
	return e.Message
}

const (
	KindURLUnavailable        = "url_unavailable"
	KindNetwork               = "network"
	KindDecode                = "decode"
	KindThrottled             = "throttled"
	KindConfigurationRejected = "configuration_rejected"
	KindStillInitializing     = "still_initializing"
	KindSerialization         = "serialization"
	KindTransport             = "transport"
	KindMalformedSuccess      = "malformed_success"
	KindAPIError              = "api_error"
	KindCanceled              = "canceled"
	KindUnknown               = "unknown"
)

// Kind maps an error returned by this package to a stable label.
func Kind(err error) string {
	var rejected *ConfigurationRejectedError
	var transport *TransportError
	var apiErr *APIError
	switch {
	case err == nil:
		return ""
	case errors.As(err, &apiErr):
		return KindAPIError
	case errors.As(err, &rejected):
		return KindConfigurationRejected
	case errors.As(err, &transport):
		return KindTransport
	case errors.Is(err, ErrStillInitializing):
		return KindStillInitializing
	case errors.Is(err, ErrURLUnavailable):
		return KindURLUnavailable
	case errors.Is(err, ErrThrottled):
		return KindThrottled
	case errors.Is(err, ErrNetwork):
		return KindNetwork
	case errors.Is(err, ErrDecode):
		return KindDecode
	case errors.Is(err, ErrSerialization):
		return KindSerialization
	case errors.Is(err, ErrMalformedSuccess):
		return KindMalformedSuccess
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return KindCanceled
	default:
		return KindUnknown
	}
}

// configFailure maps an Invoke error of the config entry point.
func configFailure(err error) error {
	var foreign *host.ForeignError
	if errors.As(err, &foreign) {
		return &ConfigurationRejectedError{HostMessage: foreign.Message}
	}
	return &TransportError{Capability: host.CapConfig, Err: err}
}
