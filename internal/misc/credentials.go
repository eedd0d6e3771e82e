package misc

import (
	"fmt"
	"io"
)

// LogSavingCredentials tells the user where a freshly issued token is being stored.
// Nothing is written without a writer or a backend name.
func LogSavingCredentials(w io.Writer, backend, service, user string) {
	if w != nil && backend != "" {
		fmt.Fprintf(w, "Saving credentials to %s (%s/%s)\n", backend, service, user)
	}
}
