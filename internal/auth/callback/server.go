// Package callback implements the short-lived loopback HTTP listener that receives the
// authorization code redirected by the identity provider and publishes it through a
// handoff store.
package callback

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"html/template"
	"io"
	"net"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/docgpt/docgpt/internal/auth/handoff"
	"github.com/docgpt/docgpt/internal/constant"
	"github.com/docgpt/docgpt/internal/logging"
	"github.com/docgpt/docgpt/internal/util"
	"github.com/gin-gonic/gin"
	log "github.com/sirupsen/logrus"
)

// ErrBind is returned by Start when the listener cannot bind its address.
var ErrBind = errors.New("callback: bind failed")

const (
	defaultHost     = "127.0.0.1"
	shutdownTimeout = 5 * time.Second
)

// Config describes one listener.
type Config struct {
	// Host is the bind address. Empty selects 127.0.0.1.
	Host string
	// Port pins the port. 0 lets the OS choose an ephemeral port.
	Port int
	// State, when set, must match the state query parameter of the callback.
	State string
	// Store receives the bound port and the authorization code.
	Store handoff.Store
}

// Listener serves /callback and /shutdown until stopped.
type Listener struct {
	server *http.Server
	store  handoff.Store
	state  string
	host   string
	port   int

	mu      sync.Mutex
	running bool
	done    chan struct{}
}

// Start binds the listener, publishes the bound port to cfg.Store, and starts serving
// in a new goroutine. The port is published before the serve loop starts, so a reader
// that sees the port can immediately build a redirect URI.
func Start(ctx context.Context, cfg Config) (*Listener, error) {
	if cfg.Store == nil {
		return nil, fmt.Errorf("callback: handoff store is required")
	}
	host := strings.TrimSpace(cfg.Host)
	if host == "" {
		host = defaultHost
	}

	var lc net.ListenConfig
	ln, err := lc.Listen(ctx, "tcp", net.JoinHostPort(host, strconv.Itoa(cfg.Port)))
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrBind, err)
	}
	port := ln.Addr().(*net.TCPAddr).Port

	if err = cfg.Store.WritePort(ctx, port); err != nil {
		_ = ln.Close()
		return nil, fmt.Errorf("callback: publish port: %w", err)
	}

	l := &Listener{
		store:   cfg.Store,
		state:   cfg.State,
		host:    host,
		port:    port,
		running: true,
		done:    make(chan struct{}),
	}
	l.server = &http.Server{
		Handler:           l.routes(),
		ReadHeaderTimeout: 10 * time.Second,
		WriteTimeout:      10 * time.Second,
	}

	go func() {
		defer close(l.done)
		if errServe := l.server.Serve(ln); errServe != nil && !errors.Is(errServe, http.ErrServerClosed) {
			log.Errorf("callback server stopped unexpectedly: %v", errServe)
		}
	}()

	log.WithField("port", port).Debug("callback listener started")
	return l, nil
}

// Port returns the bound port.
func (l *Listener) Port() int { return l.port }

// RedirectURI returns the URI the identity provider must redirect to.
func (l *Listener) RedirectURI() string {
	return RedirectURI(l.host, l.port)
}

// Done is closed once the serve loop has exited.
func (l *Listener) Done() <-chan struct{} { return l.done }

// IsRunning reports whether Stop has not yet been called.
func (l *Listener) IsRunning() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.running
}

// Stop gracefully shuts the listener down. It is safe to call more than once and
// from the /shutdown handler.
func (l *Listener) Stop(ctx context.Context) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if !l.running {
		return nil
	}
	l.running = false
	log.WithField("port", l.port).Debug("stopping callback listener")

	shutdownCtx, cancel := context.WithTimeout(ctx, shutdownTimeout)
	defer cancel()
	if err := l.server.Shutdown(shutdownCtx); err != nil {
		_ = l.server.Close()
		return fmt.Errorf("callback: shutdown: %w", err)
	}
	return nil
}

func (l *Listener) routes() http.Handler {
	engine := gin.New()
	engine.Use(logging.GinLogrusLogger(), logging.GinLogrusRecovery(), securityHeaders())
	engine.GET(constant.CallbackPath, l.handleCallback)
	engine.GET(constant.ShutdownPath, l.handleShutdown)
	engine.GET("/favicon.ico", func(c *gin.Context) {
		logging.SkipGinRequestLogging(c)
		c.Status(http.StatusNoContent)
	})
	return engine
}

func (l *Listener) handleCallback(c *gin.Context) {
	entry := logging.Entry(c.Request.Context())
	code := strings.TrimSpace(c.Query("code"))
	state := c.Query("state")

	if providerErr := c.Query("error"); providerErr != "" {
		msg := providerErr
		if desc := c.Query("error_description"); desc != "" {
			msg += ": " + desc
		}
		entry.Warnf("identity provider returned error: %s", providerErr)
		renderPage(c, http.StatusBadRequest, errorPage, map[string]string{"Message": msg})
		return
	}
	if code == "" {
		entry.Warn("callback without authorization code")
		renderPage(c, http.StatusBadRequest, errorPage, map[string]string{"Message": "No authorization code received."})
		return
	}
	if l.state != "" && state != l.state {
		entry.Warn("callback state mismatch")
		renderPage(c, http.StatusBadRequest, errorPage, map[string]string{"Message": "The authorization response does not belong to this login attempt."})
		return
	}

	if err := l.store.WriteCode(c.Request.Context(), code); err != nil {
		// The page still shows the code so the user can paste it manually.
		entry.Warnf("failed to publish authorization code: %v", err)
	} else {
		entry.WithField("port", l.port).Infof("authorization code received (%s)", util.HideSecret(code))
	}
	renderPage(c, http.StatusOK, codePage, map[string]string{"Code": code})
}

func (l *Listener) handleShutdown(c *gin.Context) {
	c.String(http.StatusOK, "Server shutting down...")
	go func() {
		if err := l.Stop(context.Background()); err != nil {
			log.Warnf("callback listener shutdown: %v", err)
		}
	}()
}

func renderPage(c *gin.Context, status int, tmpl *template.Template, data any) {
	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, data); err != nil {
		log.Errorf("render %s page: %v", tmpl.Name(), err)
		c.String(http.StatusInternalServerError, "internal error")
		return
	}
	c.Data(status, "text/html; charset=utf-8", buf.Bytes())
}

func securityHeaders() gin.HandlerFunc {
	return func(c *gin.Context) {
		h := c.Writer.Header()
		h.Set("X-Content-Type-Options", "nosniff")
		h.Set("X-Frame-Options", "DENY")
		h.Set("Referrer-Policy", "no-referrer")
		h.Set("Cache-Control", "no-store")
		h.Set("Content-Security-Policy", "default-src 'none'; style-src 'unsafe-inline'; script-src 'unsafe-inline'")
		c.Next()
	}
}

// RedirectURI builds the loopback callback URI for host and port.
func RedirectURI(host string, port int) string {
	if strings.TrimSpace(host) == "" {
		host = defaultHost
	}
	return "http://" + net.JoinHostPort(host, strconv.Itoa(port)) + constant.CallbackPath
}

// Shutdown asks a listener running in another process to stop by calling its
// /shutdown endpoint.
func Shutdown(ctx context.Context, client *http.Client, host string, port int) error {
	if client == nil {
		client = &http.Client{Timeout: shutdownTimeout}
	}
	if strings.TrimSpace(host) == "" {
		host = defaultHost
	}
	endpoint := "http://" + net.JoinHostPort(host, strconv.Itoa(port)) + constant.ShutdownPath
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return fmt.Errorf("callback: build shutdown request: %w", err)
	}
	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("callback: shutdown request: %w", err)
	}
	defer func() {
		_, _ = io.Copy(io.Discard, resp.Body)
		if errClose := resp.Body.Close(); errClose != nil {
			log.Debugf("callback: close shutdown response: %v", errClose)
		}
	}()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("callback: shutdown returned status %d", resp.StatusCode)
	}
	return nil
}
