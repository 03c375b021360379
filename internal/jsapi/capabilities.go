package jsapi

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/redforks/wx-js-sdk/internal/host"
)

type ChooseImageOptions struct {
	Count uint8 `json:"count"`
}

func DefaultChooseImageOptions() ChooseImageOptions {
	return ChooseImageOptions{Count: 9}
}

type ChooseImageResult struct {
	LocalIDs []string `json:"localIds"`
}

func (r *ChooseImageResult) PayloadPresent() bool { return r.LocalIDs != nil }

type UploadImageOptions struct {
	LocalID string `json:"localId"`
}

type UploadImageResult struct {
	ServerID string `json:"serverId"`

	hasServerID bool
}

// UnmarshalJSON records whether serverId was sent at all; an empty id is a
// valid answer, a missing one is not.
func (r *UploadImageResult) UnmarshalJSON(data []byte) error {
	var wire struct {
		ServerID *string `json:"serverId"`
	}
	if err := json.Unmarshal(data, &wire); err != nil {
		return err
	}
	*r = UploadImageResult{}
	if wire.ServerID != nil {
		r.ServerID, r.hasServerID = *wire.ServerID, true
	}
	return nil
}

func (r *UploadImageResult) PayloadPresent() bool { return r.hasServerID }

// PayRequest holds the parameters the payment backend issued for one order.
type PayRequest struct {
	AppID     string `json:"appId"`
	TimeStamp string `json:"timeStamp"`
	NonceStr  string `json:"nonceStr"`
	Package   string `json:"package"`
	SignType  string `json:"signType"`
	PaySign   string `json:"paySign"`
}

type checkJSAPIOptions struct {
	JSAPIList []string `json:"jsApiList"`
}

type checkJSAPIResult struct {
	CheckResult CheckResult `json:"checkResult"`
}

func (r *checkJSAPIResult) PayloadPresent() bool { return r.CheckResult != nil }

type APICheck struct {
	Name      string
	Supported bool
}

// CheckResult keeps the host's answer in the order the host listed it.
type CheckResult []APICheck

func (c CheckResult) Supported(name string) (supported, listed bool) {
	for _, check := range c {
		if check.Name == name {
			return check.Supported, true
		}
	}
	return false, false
}

func (c *CheckResult) UnmarshalJSON(data []byte) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	tok, err := dec.Token()
	if err != nil {
		return err
	}
	if tok == nil {
		*c = nil
		return nil
	}
	if delim, ok := tok.(json.Delim); !ok || delim != '{' {
		return errors.New("checkResult must be an object")
	}
	out := CheckResult{}
	for dec.More() {
		keyTok, err := dec.Token()
		if err != nil {
			return err
		}
		name, ok := keyTok.(string)
		if !ok {
			return fmt.Errorf("checkResult key %v is not a string", keyTok)
		}
		var supported bool
		if err := dec.Decode(&supported); err != nil {
			return fmt.Errorf("checkResult %s: %w", name, err)
		}
		out = append(out, APICheck{Name: name, Supported: supported})
	}
	if _, err := dec.Token(); err != nil {
		return err
	}
	*c = out
	return nil
}

// ChooseImage lets the user pick images. A user cancellation is reported as an
// OutcomeCancelled outcome; host failures are *APIError.
func (g *Gateway) ChooseImage(ctx context.Context, opts ChooseImageOptions) (Outcome[ChooseImageResult], error) {
	out, err := Call[ChooseImageOptions, ChooseImageResult](ctx, g, host.CapChooseImage, opts)
	if err != nil {
		return out, err
	}
	return out, out.Err()
}

func (g *Gateway) UploadImage(ctx context.Context, opts UploadImageOptions) (UploadImageResult, error) {
	out, err := Call[UploadImageOptions, UploadImageResult](ctx, g, host.CapUploadImage, opts)
	if err != nil {
		return UploadImageResult{}, err
	}
	return out.Result()
}

// CheckJSAPI asks the host which of apis the current client supports.
func (g *Gateway) CheckJSAPI(ctx context.Context, apis []string) (CheckResult, error) {
	if apis == nil {
		apis = []string{}
	}
	out, err := Call[checkJSAPIOptions, checkJSAPIResult](ctx, g, host.CapCheckJSAPI, checkJSAPIOptions{JSAPIList: apis})
	if err != nil {
		return nil, err
	}
	res, err := out.Result()
	if err != nil {
		return nil, err
	}
	return res.CheckResult, nil
}

func (g *Gateway) Pay(ctx context.Context, req PayRequest) error {
	out, err := Call[PayRequest, struct{}](ctx, g, host.CapPay, req)
	if err != nil {
		return err
	}
	_, err = out.Result()
	return err
}

// CloseWindow asks the host to close the page. It needs no handshake and the
// host answers nothing.
func (g *Gateway) CloseWindow(ctx context.Context) error {
	if _, err := g.host.Invoke(ctx, host.CapCloseWindow, nil); err != nil {
		return &TransportError{Capability: host.CapCloseWindow, Err: err}
	}
	return nil
}
