package main

import (
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/karasz/kelissuer/internal/dispatch"
)

// serveCmd runs the bounded Dispatcher's worker pool in the foreground
// until interrupted. Network transport is explicitly out of the
// specification's scope, so this is the library-embedding entry point: a
// long-running process other in-process callers attach to, not a network
// listener.
var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the dispatcher's worker pool in the foreground",
	RunE: func(cmd *cobra.Command, args []string) error {
		c, _, err := openController()
		if err != nil {
			return err
		}
		defer c.Close()

		d := dispatch.New(c, queueCapacity, workerCount)
		d.SetLogger(logger)
		defer d.Stop()

		logger.Infow("dispatcher ready", "queue_capacity", queueCapacity, "workers", workerCount)

		sig := make(chan os.Signal, 1)
		signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
		<-sig
		logger.Info("shutting down")
		return nil
	},
}
