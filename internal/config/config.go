package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// AppID is stamped at build time:
//
//	go build -ldflags "-X github.com/redforks/wx-js-sdk/internal/config.AppID=wx..."
var AppID = ""

const (
	envAppID          = "WX_APP_ID"
	envSignPath       = "WX_JSAPI_SIGN_PATH"
	envDebug          = "WX_JSAPI_DEBUG"
	envAwaitHandshake = "WX_JSAPI_AWAIT_HANDSHAKE"

	defaultSignPath = "/api/wx/jsapi/sign-url"
)

var ErrMissingAppID = errors.New("wx app id is not configured")

type Config struct {
	AppID              string        `yaml:"appId"`
	Debug              bool          `yaml:"debug"`
	SignPath           string        `yaml:"signPath"`
	JSAPIList          []string      `yaml:"jsApiList"`
	OpenTagList        []string      `yaml:"openTagList"`
	AwaitHandshake     bool          `yaml:"awaitHandshake"`
	SignRateLimitRPS   float64       `yaml:"signRateLimitRps"`
	SignRateLimitBurst int           `yaml:"signRateLimitBurst"`
	HTTPTimeout        time.Duration `yaml:"httpTimeout"`
}

type FileConfig struct {
	JSAPI FileJSAPIConfig `yaml:"jsapi"`
}

// FileJSAPIConfig uses pointers for bools so an explicit false in the file can
// be told apart from an absent key.
type FileJSAPIConfig struct {
	AppID              string        `yaml:"appId"`
	Debug              *bool         `yaml:"debug"`
	SignPath           string        `yaml:"signPath"`
	JSAPIList          []string      `yaml:"jsApiList"`
	OpenTagList        []string      `yaml:"openTagList"`
	AwaitHandshake     *bool         `yaml:"awaitHandshake"`
	SignRateLimitRPS   float64       `yaml:"signRateLimitRps"`
	SignRateLimitBurst int           `yaml:"signRateLimitBurst"`
	HTTPTimeout        time.Duration `yaml:"httpTimeout"`
}

func Default() Config {
	return Config{
		AppID:              AppID,
		SignPath:           defaultSignPath,
		JSAPIList:          []string{"uploadImage", "chooseImage", "downloadImage"},
		OpenTagList:        []string{"wx-open-launch-weapp"},
		SignRateLimitRPS:   1,
		SignRateLimitBurst: 3,
	}
}

// LoadFromPath reads configPath, or the first readable default candidate when it
// is empty, merges it over Default and applies env overrides. A missing explicit
// path is an error; missing candidates are not.
func LoadFromPath(configPath string) (Config, error) {
	cfg := Default()

	if configPath != "" {
		data, err := os.ReadFile(configPath)
		if err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
		if err := mergeYAML(&cfg, data); err != nil {
			return Config{}, fmt.Errorf("parse config %s: %w", configPath, err)
		}
		ApplyEnvOverrides(&cfg)
		return normalize(cfg), nil
	}

	for _, path := range []string{"configs/jsapi.yaml", "jsapi.yaml"} {
		data, err := os.ReadFile(path)
		if err != nil {
			continue
		}
		if err := mergeYAML(&cfg, data); err != nil {
			continue
		}
		break
	}
	ApplyEnvOverrides(&cfg)
	return normalize(cfg), nil
}

func mergeYAML(dst *Config, data []byte) error {
	var parsed FileConfig
	if err := yaml.Unmarshal(data, &parsed); err != nil {
		return err
	}
	Merge(dst, parsed.JSAPI)
	return nil
}

func Merge(dst *Config, src FileJSAPIConfig) {
	if src.AppID != "" {
		dst.AppID = src.AppID
	}
	if src.Debug != nil {
		dst.Debug = *src.Debug
	}
	if src.SignPath != "" {
		dst.SignPath = src.SignPath
	}
	if src.JSAPIList != nil {
		dst.JSAPIList = src.JSAPIList
	}
	if src.OpenTagList != nil {
		dst.OpenTagList = src.OpenTagList
	}
	if src.AwaitHandshake != nil {
		dst.AwaitHandshake = *src.AwaitHandshake
	}
	if src.SignRateLimitRPS != 0 {
		dst.SignRateLimitRPS = src.SignRateLimitRPS
	}
	if src.SignRateLimitBurst != 0 {
		dst.SignRateLimitBurst = src.SignRateLimitBurst
	}
	if src.HTTPTimeout != 0 {
		dst.HTTPTimeout = src.HTTPTimeout
	}
}

func ApplyEnvOverrides(cfg *Config) {
	if v := strings.TrimSpace(os.Getenv(envAppID)); v != "" {
		cfg.AppID = v
	}
	if v := strings.TrimSpace(os.Getenv(envSignPath)); v != "" {
		cfg.SignPath = v
	}
	if v, ok := parseBoolEnv(envDebug); ok {
		cfg.Debug = v
	}
	if v, ok := parseBoolEnv(envAwaitHandshake); ok {
		cfg.AwaitHandshake = v
	}
}

func parseBoolEnv(name string) (bool, bool) {
	raw := strings.TrimSpace(os.Getenv(name))
	if raw == "" {
		return false, false
	}
	v, err := strconv.ParseBool(raw)
	if err != nil {
		return false, false
	}
	return v, true
}

func normalize(cfg Config) Config {
	cfg.AppID = strings.TrimSpace(cfg.AppID)
	if strings.TrimSpace(cfg.SignPath) == "" {
		cfg.SignPath = defaultSignPath
	}
	if cfg.HTTPTimeout < 0 {
		cfg.HTTPTimeout = 0
	}
	return cfg
}

func (c Config) Validate() error {
	if c.AppID == "" {
		return fmt.Errorf("%w: set %s, the config file or the build-time AppID", ErrMissingAppID, envAppID)
	}
	return nil
}
