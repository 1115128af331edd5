// Command sub runs the p3sub subscriber. With a feed URL argument it runs
// the full discover/subscribe/listen/unsubscribe lifecycle; with
// -subscriptionid instead, it runs as a passive listener accepting PUTs
// for a pre-shared subscription id only.
//
// CLI parsing is intentionally thin, matching the publisher binary: flags
// override the environment-driven configuration, nothing more.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"p3sub/internal/config"
	"p3sub/internal/logging"
	"p3sub/internal/protocol"
	"p3sub/internal/subfeed"
	"p3sub/internal/subscriber"
)

func main() {
	listen := flag.String("listen", "", "http listen URL for callbacks (overrides P3SUB_SUB_LISTEN)")
	receivedDir := flag.String("received-directory", "", "directory to write received elements to (overrides P3SUB_SUB_RECEIVED_DIR)")
	subscriptionID := flag.String("subscriptionid", "", "run as a passive listener for this pre-shared subscription id")
	fromTs := flag.String("from-ts", "", "request delivery starting after this timestamp (subscribing mode only)")
	diff := flag.Bool("diff", false, "additionally persist compressed deltas between received elements")
	flag.Parse()

	cfg, err := config.LoadSubscriber()
	if err != nil {
		fmt.Fprintf(os.Stderr, "sub: invalid configuration: %v\n", err)
		os.Exit(1)
	}
	if *listen != "" {
		cfg.ListenURL = *listen
	}
	if *receivedDir != "" {
		cfg.ReceivedDirectory = *receivedDir
	}
	if *diff {
		cfg.Diff = true
	}

	logger, err := logging.New(cfg.Logging)
	if err != nil {
		fmt.Fprintf(os.Stderr, "sub: failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = logger.Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	codec := subfeed.CodecSnappy

	if *subscriptionID != "" {
		runPassive(ctx, logger, cfg, *subscriptionID, codec)
		return
	}

	feedURL := flag.Arg(0)
	if feedURL == "" {
		fmt.Fprintln(os.Stderr, "sub: a feed URL argument or -subscriptionid is required")
		os.Exit(1)
	}
	runSubscribing(ctx, logger, cfg, feedURL, *fromTs, codec)
}

func runPassive(ctx context.Context, logger *logging.Logger, cfg *config.SubscriberConfig, subID string, codec subfeed.Codec) {
	p, err := subscriber.NewPassive(subscriber.PassiveOptions{
		ListenURL:   cfg.ListenURL,
		SubID:       subID,
		ReceivedDir: cfg.ReceivedDirectory,
		Diff:        cfg.Diff,
		Codec:       codec,
		Log:         logger,
	})
	if err != nil {
		logger.Fatal("failed to construct passive subscriber", logging.Error(err))
	}

	logger.Info("passive subscriber listening", logging.String("listen", cfg.ListenURL), logging.String("sub_id", subID))
	if err := p.Listen(ctx); err != nil {
		logger.Fatal("passive subscriber terminated", logging.Error(err))
	}
	logger.Info("passive subscriber stopped")
}

func runSubscribing(ctx context.Context, logger *logging.Logger, cfg *config.SubscriberConfig, feedURL, fromTsRaw string, codec subfeed.Codec) {
	var fromTs time.Time
	if fromTsRaw != "" {
		parsed, err := protocol.ParseTimestamp(fromTsRaw)
		if err != nil {
			logger.Fatal("invalid -from-ts", logging.Error(err))
		}
		fromTs = parsed
	}

	s, err := subscriber.NewSubscribing(subscriber.SubscribingOptions{
		FeedURL:     feedURL,
		ListenURL:   cfg.ListenURL,
		ReceivedDir: cfg.ReceivedDirectory,
		Diff:        cfg.Diff,
		Codec:       codec,
		Log:         logger,
	})
	if err != nil {
		logger.Fatal("failed to construct subscriber", logging.Error(err))
	}

	subscribeURL, err := s.Discover(ctx)
	if err != nil {
		logger.Fatal("discover failed", logging.Error(err))
	}
	if err := s.Subscribe(ctx, subscribeURL, fromTs); err != nil {
		logger.Fatal("subscribe failed", logging.Error(err))
	}
	logger.Info("subscribed", logging.String("feed", feedURL), logging.String("sub_id", s.SubID()))

	listenErr := make(chan error, 1)
	go func() { listenErr <- s.Listen(ctx) }()

	<-ctx.Done()
	unsubCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := s.Unsubscribe(unsubCtx); err != nil {
		logger.Warn("unsubscribe failed", logging.Error(err))
	}

	if err := <-listenErr; err != nil {
		logger.Fatal("subscriber listener terminated", logging.Error(err))
	}
	logger.Info("subscriber stopped")
}
