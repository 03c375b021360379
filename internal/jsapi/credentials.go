package jsapi

import "github.com/redforks/wx-js-sdk/internal/signing"

var (
	DefaultJSAPIList   = []string{"uploadImage", "chooseImage", "downloadImage"}
	DefaultOpenTagList = []string{"wx-open-launch-weapp"}
)

// ConfigCredentials is the payload of the host config entry point. A value is
// built once per handshake and dropped after the call.
type ConfigCredentials struct {
	Debug       bool     `json:"debug"`
	AppID       string   `json:"appId"`
	Timestamp   uint32   `json:"timestamp"`
	NonceStr    string   `json:"nonceStr"`
	Signature   string   `json:"signature"`
	JSAPIList   []string `json:"jsApiList"`
	OpenTagList []string `json:"openTagList,omitempty"`
}

// Settings are the handshake inputs that do not come from the signing endpoint.
type Settings struct {
	AppID       string
	Debug       bool
	JSAPIList   []string
	OpenTagList []string
}

func newCredentials(s Settings, sig signing.Result) ConfigCredentials {
	return ConfigCredentials{
		Debug:       s.Debug,
		AppID:       s.AppID,
		Timestamp:   sig.Timestamp,
		NonceStr:    sig.NonceStr,
		Signature:   sig.Sign,
		JSAPIList:   append([]string{}, s.JSAPIList...),
		OpenTagList: cloneStrings(s.OpenTagList),
	}
}

func cloneStrings(in []string) []string {
	if in == nil {
		return nil
	}
	return append([]string(nil), in...)
}
