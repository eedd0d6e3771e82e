package auth

import (
	"errors"
	"fmt"
	"strings"
	"testing"
)

func TestProviderErrorClasses(t *testing.T) {
	cause := errors.New("dial tcp: i/o timeout")
	noResp := NoResponse("exchange", cause)
	if !errors.Is(noResp, ErrNoResponse) || errors.Is(noResp, ErrRejected) {
		t.Fatalf("no-response classification wrong: %v", noResp)
	}
	if !errors.Is(noResp, cause) {
		t.Fatal("cause must be reachable through Unwrap")
	}

	rejected := Rejected("identity", 401, "bad_verification_code", "The code passed is incorrect or expired.")
	if !errors.Is(rejected, ErrRejected) || errors.Is(rejected, ErrNoResponse) {
		t.Fatalf("rejected classification wrong: %v", rejected)
	}
	if !strings.Contains(rejected.Error(), "status 401") || !strings.Contains(rejected.Error(), "bad_verification_code") {
		t.Fatalf("unexpected message %q", rejected.Error())
	}
}

func TestAuthenticationErrorMatching(t *testing.T) {
	err := NewAuthenticationError(ErrCodeExchangeFailed, Rejected("exchange", 400, "bad_verification_code", ""))
	wrapped := fmt.Errorf("login: %w", err)

	if !IsAuthenticationError(wrapped) {
		t.Fatal("expected authentication error")
	}
	if !errors.Is(wrapped, ErrCodeExchangeFailed) {
		t.Fatal("expected match against base value")
	}
	if errors.Is(wrapped, ErrSetupFailed) {
		t.Fatal("unexpected match against a different type")
	}
	if !errors.Is(wrapped, ErrRejected) {
		t.Fatal("provider class must be reachable through the cause chain")
	}
	if !IsProviderError(wrapped) {
		t.Fatal("expected provider error in chain")
	}
}

func TestGetUserFriendlyMessage(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want string
	}{
		{"Setup", NewAuthenticationError(ErrSetupFailed, errors.New("bind")), "setup failed"},
		{"Port timeout", ErrPortTimeout, "setup failed"},
		{"Cancelled", ErrCancelled, "cancelled"},
		{"Exchange no response", NewAuthenticationError(ErrCodeExchangeFailed, NoResponse("exchange", nil)), "could not be reached"},
		{"Exchange rejected", NewAuthenticationError(ErrCodeExchangeFailed, Rejected("exchange", 400, "", "")), "rejected"},
		{"Provider denied", Rejected("exchange", 400, "access_denied", ""), "denied"},
		{"Unknown", errors.New("boom"), "unexpected"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := GetUserFriendlyMessage(tt.err)
			if !strings.Contains(got, tt.want) {
				t.Fatalf("message %q does not contain %q", got, tt.want)
			}
		})
	}
}
