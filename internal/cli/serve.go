package cli

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"

	"github.com/glimte/relay-go/config"
	"github.com/glimte/relay-go/health"
	"github.com/glimte/relay-go/internal/demo"
)

const shutdownTimeout = 10 * time.Second

func newServeCmd(a *app) *cobra.Command {
	var (
		tf          transportFlags
		metricsAddr string
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the inventory service until interrupted",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if cmd.Flags().Changed("metrics-addr") {
				a.cfg.Metrics.Address = metricsAddr
			}
			if err := tf.apply(cmd, a.cfg); err != nil {
				return err
			}
			ctx := cmd.Context()

			st, err := a.newStack(ctx)
			if err != nil {
				return err
			}
			server, err := a.publish(ctx, st.bus)
			if err != nil {
				_ = st.bus.Shutdown(context.Background())
				return err
			}
			st.health.Register(health.NewServerChecker(demo.ServiceName, a.cfg.Transport.Address, server))
			st.health.Register(health.NewRuntimeChecker(5000, 20000))

			var httpServer *http.Server
			if a.cfg.Metrics.Address != "" {
				listener, err := net.Listen("tcp", a.cfg.Metrics.Address)
				if err != nil {
					_ = st.bus.Shutdown(context.Background())
					return fmt.Errorf("listen on %s: %w", a.cfg.Metrics.Address, err)
				}
				httpServer = st.httpServer()
				go func() {
					if err := httpServer.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
						a.logger.Error("metrics server failed", "error", err)
					}
				}()
				a.logger.Info("metrics listening", "address", listener.Addr().String())
			}

			if a.cfg.Transport.Kind == config.TransportLocal {
				a.logger.Warn("local transport is reachable only from this process")
			}
			fmt.Fprintf(cmd.OutOrStdout(), "serving %s on %s:%s\n",
				demo.ServiceName, a.cfg.Transport.Kind, a.cfg.Transport.Address)

			<-ctx.Done()
			a.logger.Info("shutting down")

			shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
			defer cancel()
			var errs []error
			if httpServer != nil {
				errs = append(errs, httpServer.Shutdown(shutdownCtx))
			}
			errs = append(errs, st.bus.Shutdown(shutdownCtx))
			return errors.Join(errs...)
		},
	}
	tf.register(cmd)
	cmd.Flags().StringVar(&metricsAddr, "metrics-addr", "", "metrics and health listen address, empty to disable (overrides config)")
	return cmd
}

func (st *stack) httpServer() *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(st.registry, promhttp.HandlerOpts{EnableOpenMetrics: true}))
	mux.Handle("/health", st.health.Handler())
	return &http.Server{
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
}
