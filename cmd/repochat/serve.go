package main

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"repochat/internal/adapter/gateway"
	"repochat/internal/infra/middleware"
)

// lockReportInterval is how often serve logs the number of running turns.
const lockReportInterval = time.Minute

func newServeCmd(root *rootFlags) *cobra.Command {
	var addr string

	cmd := &cobra.Command{
		Use:     "serve",
		Short:   "Serve the chat over a WebSocket gateway",
		GroupID: "core",
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runServe(cmd, root, addr)
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "", "Listen address (overrides gateway.addr)")
	return cmd
}

func runServe(cmd *cobra.Command, root *rootFlags, addr string) error {
	a, err := newApp(cmd.Context(), root, appOptions{})
	if err != nil {
		return err
	}
	defer a.Close(context.Background())

	gw := a.cfg.Gateway
	if addr != "" {
		gw.Addr = addr
	}
	if len(gw.Auth.Tokens) == 0 {
		return errors.New("serve: gateway.auth.tokens must list at least one token")
	}
	gateway.Version = Version

	srv := gateway.NewServer(a.bus, gateway.NewStaticTokenAuth(gw.Auth.Tokens), gw.Addr, a.logger)
	srv.SetRateLimit(middleware.RateLimitConfig{
		RequestsPerSecond: gw.RateLimit.RequestsPerSecond,
		Burst:             gw.RateLimit.Burst,
	})
	deps := gateway.HandlerDeps{
		Dispatcher:     a.dispatcher,
		Chats:          a.chats,
		Registry:       a.registry,
		Locker:         a.locker,
		Bus:            a.bus,
		Logger:         a.logger,
		ActiveRequests: &sync.Map{},
	}
	gateway.RegisterDefaultHandlers(srv, deps)
	gateway.RegisterRESTHandlers(srv, deps)

	g, ctx := errgroup.WithContext(cmd.Context())
	g.Go(func() error {
		return srv.Start(ctx)
	})
	g.Go(func() error {
		ticker := time.NewTicker(lockReportInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return nil
			case <-ticker.C:
				if n := a.locker.ActiveCount(); n > 0 {
					a.logger.Info("turns in progress", "active", n)
				}
			}
		}
	})

	if err := g.Wait(); err != nil {
		return fmt.Errorf("serve: %w", err)
	}
	a.logger.Info("gateway stopped")
	return nil
}
