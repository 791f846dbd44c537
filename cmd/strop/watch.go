package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/justyntemme/strop/internal/index"
	"github.com/justyntemme/strop/internal/logging"
	"github.com/justyntemme/strop/internal/metrics"
	"github.com/justyntemme/strop/internal/ops"
)

func (c *cli) watchCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "watch [dir]",
		Short: "Print a directory's listing every time it changes",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.withEngine(cmd, func(ctx context.Context, rt *runtime) error {
				dir := rt.eng.StartPath(ctx)
				if len(args) == 1 {
					dir = absPath(args[0])
				}
				if addr := rt.cfg.Metrics.Addr; addr != "" {
					stop := serveMetrics(addr)
					defer stop()
				}
				n, err := rt.load(ctx, dir)
				if err != nil {
					return err
				}
				out := cmd.OutOrStdout()
				fmt.Fprintf(out, "%s  %s (%d entries)\n", time.Now().Format(time.TimeOnly), n.Path, len(n.Entries))

				for {
					select {
					case <-ctx.Done():
						return nil
					case ev, ok := <-rt.eng.Events():
						if !ok {
							return nil
						}
						switch ev := ev.(type) {
						case index.TreeUpdated:
							if ev.Path != n.Path {
								continue
							}
							if ev.Err != nil {
								fmt.Fprintf(out, "%s  %s: %v\n", time.Now().Format(time.TimeOnly), ev.Path, ev.Err)
								continue
							}
							fmt.Fprintf(out, "%s  %s (%d entries)\n", time.Now().Format(time.TimeOnly), ev.Path, len(ev.Entries))
							printEntries(out, ev.Entries, false)
						case ops.Completed:
							logging.Named("cli").Debug("operation completed", zap.String("task", ev.Task.ID))
						}
					}
				}
			})
		},
	}
	cmd.Flags().StringVar(&c.metricsAddr, "metrics-addr", "", "serve Prometheus metrics on this address, e.g. :9090")
	return cmd
}

// serveMetrics exposes /metrics until the returned func is called.
func serveMetrics(addr string) func() {
	log := logging.Named("metrics")
	mux := http.NewServeMux()
	mux.Handle("/metrics", metrics.Handler())
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	go func() {
		log.Info("serving metrics", zap.String("addr", addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("metrics server failed", zap.Error(err))
		}
	}()
	return func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		_ = srv.Shutdown(ctx)
	}
}
