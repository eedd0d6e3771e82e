package callback

import (
	"context"
	"errors"
	"io"
	"net"
	"net/http"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/docgpt/docgpt/internal/auth/handoff"
	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus/hooks/test"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func startListener(t *testing.T, cfg Config) (*Listener, *handoff.MemoryStore) {
	t.Helper()
	store := handoff.NewMemoryStore()
	if cfg.Store == nil {
		cfg.Store = store
	}
	l, err := Start(context.Background(), cfg)
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	t.Cleanup(func() { _ = l.Stop(context.Background()) })
	return l, store
}

func get(t *testing.T, url string) (int, string) {
	t.Helper()
	resp, err := http.Get(url)
	if err != nil {
		t.Fatalf("GET %s: %v", url, err)
	}
	defer func() { _ = resp.Body.Close() }()
	body, _ := io.ReadAll(resp.Body)
	return resp.StatusCode, string(body)
}

func TestStartPublishesEphemeralPort(t *testing.T) {
	l, store := startListener(t, Config{})
	port, ok, _ := store.Port(context.Background())
	if !ok || port == 0 || port != l.Port() {
		t.Fatalf("published port = %d (ok=%v), listener port = %d", port, ok, l.Port())
	}
	if want := "http://127.0.0.1:" + strconv.Itoa(port) + "/callback"; l.RedirectURI() != want {
		t.Fatalf("RedirectURI = %q, want %q", l.RedirectURI(), want)
	}
}

func TestCallbackStoresCodeAndEchoesIt(t *testing.T) {
	l, store := startListener(t, Config{})

	status, body := get(t, l.RedirectURI()+"?code=abc123")
	if status != http.StatusOK {
		t.Fatalf("status = %d", status)
	}
	if !strings.Contains(body, `value="abc123"`) || !strings.Contains(body, "Copy") {
		t.Fatalf("page does not echo the code with a copy control: %s", body)
	}
	code, ok, _ := store.Code(context.Background())
	if !ok || code != "abc123" {
		t.Fatalf("stored code = %q (ok=%v)", code, ok)
	}
}

func TestCallbackEscapesCode(t *testing.T) {
	l, _ := startListener(t, Config{})
	_, body := get(t, l.RedirectURI()+`?code=%22%3E%3Cscript%3Ealert(1)%3C%2Fscript%3E`)
	if strings.Contains(body, "<script>alert(1)</script>") {
		t.Fatal("code must be HTML-escaped")
	}
}

func TestCallbackRejectsMissingCodeAndBadState(t *testing.T) {
	l, store := startListener(t, Config{State: "s1"})

	if status, _ := get(t, l.RedirectURI()); status != http.StatusBadRequest {
		t.Fatalf("missing code status = %d", status)
	}
	if status, _ := get(t, l.RedirectURI()+"?code=abc&state=other"); status != http.StatusBadRequest {
		t.Fatalf("bad state status = %d", status)
	}
	if status, body := get(t, l.RedirectURI()+"?error=access_denied"); status != http.StatusBadRequest || !strings.Contains(body, "access_denied") {
		t.Fatalf("provider error status = %d body=%s", status, body)
	}
	if _, ok, _ := store.Code(context.Background()); ok {
		t.Fatal("no code must be stored for rejected callbacks")
	}

	if status, _ := get(t, l.RedirectURI()+"?code=abc&state=s1"); status != http.StatusOK {
		t.Fatalf("matching state status = %d", status)
	}
	if code, ok, _ := store.Code(context.Background()); !ok || code != "abc" {
		t.Fatalf("stored code = %q", code)
	}
}

func TestShutdownEndpointStopsListener(t *testing.T) {
	l, _ := startListener(t, Config{})

	status, body := get(t, "http://127.0.0.1:"+strconv.Itoa(l.Port())+"/shutdown")
	if status != http.StatusOK || body != "Server shutting down..." {
		t.Fatalf("shutdown response = %d %q", status, body)
	}
	select {
	case <-l.Done():
	case <-time.After(5 * time.Second):
		t.Fatal("serve loop did not exit after /shutdown")
	}
	if l.IsRunning() {
		t.Fatal("listener still reports running")
	}
	if err := l.Stop(context.Background()); err != nil {
		t.Fatalf("Stop after /shutdown must be a no-op, got %v", err)
	}
}

func TestStopIsIdempotent(t *testing.T) {
	l, _ := startListener(t, Config{})
	for i := 0; i < 3; i++ {
		if err := l.Stop(context.Background()); err != nil {
			t.Fatalf("Stop #%d: %v", i+1, err)
		}
	}
	<-l.Done()
	if _, err := http.Get(l.RedirectURI() + "?code=late"); err == nil {
		t.Fatal("expected connection failure after stop")
	}
}

func TestStartFailsWhenPortTaken(t *testing.T) {
	occupied, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	defer func() { _ = occupied.Close() }()
	port := occupied.Addr().(*net.TCPAddr).Port

	store := handoff.NewMemoryStore()
	_, err = Start(context.Background(), Config{Port: port, Store: store})
	if !errors.Is(err, ErrBind) {
		t.Fatalf("expected ErrBind, got %v", err)
	}
	if _, ok, _ := store.Port(context.Background()); ok {
		t.Fatal("port must not be published when bind fails")
	}
}

func TestRemoteShutdown(t *testing.T) {
	l, _ := startListener(t, Config{})
	if err := Shutdown(context.Background(), nil, "127.0.0.1", l.Port()); err != nil {
		t.Fatalf("Shutdown: %v", err)
	}
	select {
	case <-l.Done():
	case <-time.After(5 * time.Second):
		t.Fatal("listener did not stop")
	}
}

func TestFaviconRequestIsNotLogged(t *testing.T) {
	hook := test.NewGlobal()
	defer hook.Reset()
	l, store := startListener(t, Config{})

	status, _ := get(t, "http://127.0.0.1:"+strconv.Itoa(l.Port())+"/favicon.ico")
	if status != http.StatusNoContent {
		t.Fatalf("favicon status = %d", status)
	}
	for _, entry := range hook.AllEntries() {
		if strings.Contains(entry.Message, "favicon") {
			t.Fatalf("favicon request was logged: %q", entry.Message)
		}
	}
	if _, ok, _ := store.Code(context.Background()); ok {
		t.Fatal("favicon request must not store a code")
	}
}
