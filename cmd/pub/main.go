// Command pub runs the p3sub publisher: it serves a feed directory over
// HTTP and pushes new elements to registered subscribers.
//
// CLI parsing is intentionally thin (spec Non-goal: "CLI parsing and
// subcommand dispatch" is an external collaborator, not core logic) — two
// stdlib flags override the environment-driven configuration's listen URL
// and feed directory, matching the informative CLI surface.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"p3sub/internal/config"
	"p3sub/internal/logging"
	"p3sub/internal/publisher"
)

func main() {
	listen := flag.String("listen", "", "http listen URL for the feed (overrides P3SUB_PUB_LISTEN)")
	feedDir := flag.String("feed-directory", "", "directory of feed elements (overrides P3SUB_PUB_FEED_DIR)")
	flag.Parse()

	cfg, err := config.LoadPublisher()
	if err != nil {
		fmt.Fprintf(os.Stderr, "pub: invalid configuration: %v\n", err)
		os.Exit(1)
	}
	if *listen != "" {
		cfg.ListenURL = *listen
	}
	if *feedDir != "" {
		cfg.FeedDirectory = *feedDir
	}

	logger, err := logging.New(cfg.Logging)
	if err != nil {
		fmt.Fprintf(os.Stderr, "pub: failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = logger.Sync() }()

	pub, err := publisher.New(publisher.Options{Config: cfg, Log: logger})
	if err != nil {
		logger.Fatal("failed to construct publisher", logging.Error(err))
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	logger.Info("publisher starting",
		logging.String("listen", cfg.ListenURL),
		logging.String("feed_directory", cfg.FeedDirectory))

	if err := pub.Run(ctx); err != nil {
		logger.Fatal("publisher terminated", logging.Error(err))
	}
	logger.Info("publisher stopped")
}
