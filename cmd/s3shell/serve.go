package main

import (
	"context"
	"errors"
	"net/http"

	"github.com/koustreak/s3shell/internal/errs"
	"github.com/koustreak/s3shell/internal/gateway"
)

// serve runs the HTTP gateway until ctx is cancelled, then drains in-flight
// requests for up to the configured shutdown timeout.
func (a *app) serve(ctx context.Context) error {
	handler := gateway.New(a.realm, gateway.Options{
		IdentityHeader: a.cfg.HTTP.IdentityHeader,
		Logger:         a.log,
		Store:          a.store,
	})

	server := &http.Server{
		Addr:              a.cfg.HTTP.Addr,
		Handler:           handler,
		ReadHeaderTimeout: a.cfg.HTTP.ReadHeaderTimeout,
		IdleTimeout:       a.cfg.HTTP.IdleTimeout,
	}

	serveErr := make(chan error, 1)
	go func() {
		a.log.InfoWith("gateway listening", map[string]any{
			"addr":       a.cfg.HTTP.Addr,
			"identities": a.realm.Identities(),
			"version":    version,
		})
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	select {
	case err := <-serveErr:
		if err != nil {
			return errs.Wrap(errs.ErrKindIO, "gateway failed", err)
		}
		return nil
	case <-ctx.Done():
	}

	a.log.Info("shutting down gateway")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), a.cfg.HTTP.ShutdownTimeout)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		return errs.Wrap(errs.ErrKindTimeout, "gateway shutdown did not finish", err)
	}
	a.log.Info("gateway stopped")
	return nil
}
