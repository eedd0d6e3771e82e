// Package constant defines identifiers shared across docgpt.
// These constants keep the secret-store keying and handoff record names
// consistent between the listener, the orchestrator, and the CLI.
package constant

const (
	// KeyringService is the secret-store service name under which access tokens are cached.
	KeyringService = "docgpt"

	// PlaceholderUser is the stand-in username used before the real GitHub login is known.
	PlaceholderUser = "default"

	// AccountPointerSuffix is appended to the service name for the record that remembers
	// which real username the last reconciled token belongs to.
	AccountPointerSuffix = ":account"

	// HandoffPortRecord is the record name holding the negotiated callback port.
	HandoffPortRecord = "port"

	// HandoffCodeRecord is the record name holding the received authorization code.
	HandoffCodeRecord = "code"

	// CallbackPath is the local listener path the identity provider redirects to.
	CallbackPath = "/callback"

	// ShutdownPath is the local listener path that stops the serve loop.
	ShutdownPath = "/shutdown"
)
