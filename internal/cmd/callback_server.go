package cmd

import (
	"context"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/docgpt/docgpt/internal/auth/callback"
	"github.com/docgpt/docgpt/internal/auth/handoff"
	"github.com/docgpt/docgpt/internal/config"
	"github.com/docgpt/docgpt/internal/util"
	log "github.com/sirupsen/logrus"
)

// RunCallbackServer runs the callback listener as its own process. It publishes the
// port and received code through the file handoff store so a docgpt process configured
// with auth.external-listener can complete the login. It returns when /shutdown is
// called or ctx is cancelled.
func RunCallbackServer(ctx context.Context, cfg *config.Config, out io.Writer) error {
	if out == nil {
		out = os.Stdout
	}
	dir, err := util.ExpandPath(cfg.Auth.HandoffDir)
	if err != nil {
		return err
	}
	store, err := handoff.NewFileStore(ctx, dir)
	if err != nil {
		return fmt.Errorf("callback server: %w", err)
	}

	l, err := callback.Start(ctx, callback.Config{
		Host:  cfg.Auth.CallbackHost,
		Port:  cfg.Auth.CallbackPort,
		Store: store,
	})
	if err != nil {
		return fmt.Errorf("callback server: %w", err)
	}
	_, _ = fmt.Fprintf(out, "Callback server listening on %s\n", l.RedirectURI())
	_, _ = fmt.Fprintf(out, "Handoff records are written to %s\n", store.Dir())

	select {
	case <-l.Done():
		log.Info("callback server stopped by /shutdown")
		return nil
	case <-ctx.Done():
	}

	stopCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if l.IsRunning() {
		if errStop := l.Stop(stopCtx); errStop != nil {
			log.Warnf("callback server stop error: %v", errStop)
		}
	}
	// Nobody will read the records once this process is interrupted.
	if errErase := store.Erase(stopCtx); errErase != nil {
		log.Warnf("failed to erase handoff records: %v", errErase)
	}
	return nil
}
