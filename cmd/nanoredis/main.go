// Command nanoredis runs the RESP2-compatible in-memory data server.
package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/wiredb/nanoredis/internal/server"
)

func main() {
	var (
		port         int
		pollInterval time.Duration
		expiryTick   time.Duration
	)

	root := &cobra.Command{
		Use:   "nanoredis",
		Short: "An in-memory, RESP2-compatible data server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(port, pollInterval, expiryTick)
		},
	}

	root.Flags().IntVar(&port, "port", 6379, "TCP port to listen on")
	root.Flags().DurationVar(&pollInterval, "poll-interval", 50*time.Millisecond,
		"how often blocking commands (BLPOP, XREAD BLOCK) re-probe their keys")
	root.Flags().DurationVar(&expiryTick, "expiry-tick", 10*time.Millisecond,
		"how often the background expiry worker wakes to check for due keys")

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run(port int, pollInterval, expiryTick time.Duration) error {
	log := zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339}).
		With().Timestamp().Logger()

	srv := server.New(server.Config{
		Addr:         fmt.Sprintf("0.0.0.0:%d", port),
		PollInterval: pollInterval,
		ExpiryTick:   expiryTick,
	}, log)

	if err := srv.Start(); err != nil {
		return err
	}

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("shutting down")
	srv.Shutdown()
	log.Info().Msg("shutdown complete")
	return nil
}
