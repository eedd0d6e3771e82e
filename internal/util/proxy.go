package util

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"strings"

	"github.com/docgpt/docgpt/internal/config"
	log "github.com/sirupsen/logrus"
	"golang.org/x/net/proxy"
)

// SetProxy routes httpClient through cfg.ProxyURL (socks5, http or https). A missing,
// malformed or unsupported proxy URL leaves the client's transport untouched.
func SetProxy(cfg *config.SDKConfig, httpClient *http.Client) *http.Client {
	if cfg == nil {
		return httpClient
	}
	raw := strings.TrimSpace(cfg.ProxyURL)
	if raw == "" {
		return httpClient
	}
	transport, err := proxyTransport(raw)
	if err != nil {
		log.Warnf("proxy %q ignored, using direct connection: %v", raw, err)
		return httpClient
	}
	httpClient.Transport = transport
	return httpClient
}

func proxyTransport(raw string) (*http.Transport, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return nil, err
	}
	switch u.Scheme {
	case "http", "https":
		return &http.Transport{Proxy: http.ProxyURL(u)}, nil
	case "socks5":
		var auth *proxy.Auth
		if u.User != nil {
			pass, _ := u.User.Password()
			auth = &proxy.Auth{User: u.User.Username(), Password: pass}
		}
		dialer, err := proxy.SOCKS5("tcp", u.Host, auth, proxy.Direct)
		if err != nil {
			return nil, err
		}
		return &http.Transport{
			DialContext: func(ctx context.Context, network, addr string) (net.Conn, error) {
				if cd, ok := dialer.(proxy.ContextDialer); ok {
					return cd.DialContext(ctx, network, addr)
				}
				return dialer.Dial(network, addr)
			},
		}, nil
	default:
		return nil, fmt.Errorf("unsupported scheme %q", u.Scheme)
	}
}

// NewHTTPClient returns a client bounded by the configured request timeout and routed
// through the configured proxy, if any.
func NewHTTPClient(cfg *config.SDKConfig) *http.Client {
	return SetProxy(cfg, &http.Client{Timeout: cfg.RequestTimeout()})
}
