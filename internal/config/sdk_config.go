// Package config provides configuration management for docgpt.
// It handles loading and parsing YAML configuration files, applying environment
// overrides, and exposes structured access to the GitHub OAuth application,
// credential caching, callback listener, and README generation settings.
package config

import "time"

// DefaultRequestTimeout bounds every outbound call to GitHub when no explicit value is configured.
const DefaultRequestTimeout = 8 * time.Second

// SDKConfig holds settings shared by every outbound HTTP client.
type SDKConfig struct {
	// ProxyURL is the URL of an optional proxy server to use for outbound requests.
	// Supported schemes are socks5, http and https.
	ProxyURL string `yaml:"proxy-url" json:"proxy-url"`

	// RequestTimeoutSeconds bounds identity provider and REST calls. <= 0 uses DefaultRequestTimeout.
	RequestTimeoutSeconds int `yaml:"request-timeout-seconds,omitempty" json:"request-timeout-seconds,omitempty"`
}

// RequestTimeout returns the effective outbound request timeout.
func (c *SDKConfig) RequestTimeout() time.Duration {
	if c == nil || c.RequestTimeoutSeconds <= 0 {
		return DefaultRequestTimeout
	}
	return time.Duration(c.RequestTimeoutSeconds) * time.Second
}
