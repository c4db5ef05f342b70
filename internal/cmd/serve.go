package cmd

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/viant/taskgraph"
	"github.com/viant/taskgraph/service/api"
	"github.com/viant/taskgraph/tracing"
)

const shutdownTimeout = 30 * time.Second

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP API and a worker loop",
	Long: `Serve recovers tasks left RUNNING by a previous crash, starts the worker
loop and exposes the task API over HTTP until interrupted.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return run(cmd, true)
	},
}

var workerCmd = &cobra.Command{
	Use:   "worker",
	Short: "Run a worker loop without the HTTP API",
	Long: `Worker recovers tasks left RUNNING by a previous crash and runs the worker
loop until interrupted. Several workers may share one durable store.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return run(cmd, false)
	},
}

func init() {
	serveCmd.Flags().String("addr", "", "HTTP listen address (overrides http.addr)")
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(workerCmd)
}

func run(cmd *cobra.Command, withHTTP bool) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	srv, err := openService(ctx)
	if err != nil {
		return err
	}
	defer srv.Close()
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		_ = tracing.Shutdown(shutdownCtx)
	}()

	rt := srv.Runtime()
	logger := srv.Logger()
	if _, err = rt.Recover(ctx); err != nil {
		return err
	}
	if err = rt.Start(ctx); err != nil {
		return err
	}

	var httpServer *http.Server
	httpErr := make(chan error, 1)
	if withHTTP {
		addr := srv.Config().HTTP.Addr
		if flagAddr, _ := cmd.Flags().GetString("addr"); flagAddr != "" {
			addr = flagAddr
		}
		httpServer = &http.Server{
			Addr:              addr,
			Handler:           api.NewServer(rt, logger).Handler(),
			ReadHeaderTimeout: 10 * time.Second,
		}
		go func() {
			logger.Info("http api listening", "addr", addr)
			if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				httpErr <- err
			}
			close(httpErr)
		}()
	}

	select {
	case <-ctx.Done():
	case err = <-httpErr:
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if httpServer != nil {
		if sErr := httpServer.Shutdown(shutdownCtx); sErr != nil && err == nil {
			err = sErr
		}
	}
	if sErr := rt.Shutdown(shutdownCtx); sErr != nil && err == nil {
		err = sErr
	}
	logger.Info("stopped", "progress", rt.Progress())
	return err
}

var _ api.Runtime = (*taskgraph.Runtime)(nil)
