package main

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/jrife/osdplacement/realizer"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var (
	strategyName string
	metricsAddr  string

	realizeCmd = &cobra.Command{
		Use:   "realize",
		Short: "Move replicas until every file is on the OSD of its folder",
		Long: `Move replicas until every file is on the OSD of its folder.

Files are moved in batches. A failed batch stops the run. Running realize
again picks up where the failed run stopped.
`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			application, ctx, err := openApp(cmd.Context())

			if err != nil {
				return err
			}

			defer application.Close()

			if strategyName == "" {
				strategyName = application.config.Strategy
			}

			strategy, err := realizer.ParseStrategy(strategyName)

			if err != nil {
				return err
			}

			if metricsAddr != "" {
				stop, err := serveMetrics(application, metricsAddr)

				if err != nil {
					return err
				}

				defer stop()
			}

			return application.manager.Realize(ctx, strategy)
		},
	}
)

func init() {
	realizeCmd.Flags().StringVarP(&strategyName, "strategy", "s", "", "batching strategy: osd_balanced or random (default from config)")
	realizeCmd.Flags().StringVar(&metricsAddr, "metrics-addr", "", "serve prometheus metrics on this address while realizing")
}

func serveMetrics(application *app, addr string) (func(), error) {
	registry := prometheus.NewRegistry()

	if err := registry.Register(application.metrics); err != nil {
		return nil, err
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))

	server := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	go func() {
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			application.logger.Warn("metrics server stopped", zap.Error(err))
		}
	}()

	return func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()

		server.Shutdown(ctx)
	}, nil
}
