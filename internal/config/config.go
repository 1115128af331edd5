// Package config loads environment-variable driven configuration for the
// p3sub publisher and subscriber binaries.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

const (
	// DefaultPublisherListenURL is where the publisher serves its feed if unset.
	DefaultPublisherListenURL = "http://localhost:8945/feed"
	// DefaultFeedDirectory holds the feed elements the publisher serves.
	DefaultFeedDirectory = "feed"

	// DefaultSubscriberListenURL is where the subscriber accepts PUT callbacks if unset.
	DefaultSubscriberListenURL = "http://localhost:8946/"
	// DefaultReceivedDirectory stores feed elements the subscriber has received.
	DefaultReceivedDirectory = "received"

	// DefaultLogLevel controls verbosity for p3sub logs.
	DefaultLogLevel = "info"
	// DefaultLogPath is where structured logs are written.
	DefaultLogPath = "p3sub.log"
	// DefaultLogMaxSizeMB caps the size of a single log file before rotation.
	DefaultLogMaxSizeMB = 100
	// DefaultLogMaxBackups limits retained rotated log files.
	DefaultLogMaxBackups = 10
	// DefaultLogMaxAgeDays controls how long rotated log files are kept on disk.
	DefaultLogMaxAgeDays = 7
	// DefaultLogCompress toggles gzip compression for rotated log files.
	DefaultLogCompress = true

	// DefaultSubscribeRateLimit caps subscribe requests accepted per
	// DefaultSubscribeRateWindow. Subscribe is the only externally-triggerable
	// write path that requires no authentication, so the publisher guards it
	// with a sliding-window limit even though the feed protocol itself has no
	// rate-limit concept.
	DefaultSubscribeRateLimit = 50
	// DefaultSubscribeRateWindowMS is the sliding window, in milliseconds,
	// DefaultSubscribeRateLimit is measured over.
	DefaultSubscribeRateWindowMS = 1000
)

// LoggingConfig captures structured logging configuration options.
type LoggingConfig struct {
	Level      string
	Path       string
	MaxSizeMB  int
	MaxBackups int
	MaxAgeDays int
	Compress   bool
}

// PublisherConfig captures the runtime tunables for the p3sub publisher.
type PublisherConfig struct {
	ListenURL           string
	FeedDirectory       string
	SubscribeRateLimit  int
	SubscribeRateWindow time.Duration
	Logging             LoggingConfig
}

// SubscriberConfig captures the runtime tunables for the p3sub subscriber.
type SubscriberConfig struct {
	ListenURL         string
	ReceivedDirectory string
	Diff              bool
	Logging           LoggingConfig
}

// LoadPublisher reads publisher configuration from the environment, applying
// sane defaults and returning descriptive errors for invalid overrides.
func LoadPublisher() (*PublisherConfig, error) {
	logging, problems := loadLogging()
	cfg := &PublisherConfig{
		ListenURL:           getString("P3SUB_PUB_LISTEN", DefaultPublisherListenURL),
		FeedDirectory:       getString("P3SUB_PUB_FEED_DIR", DefaultFeedDirectory),
		SubscribeRateLimit:  DefaultSubscribeRateLimit,
		SubscribeRateWindow: time.Duration(DefaultSubscribeRateWindowMS) * time.Millisecond,
		Logging:             logging,
	}

	if raw := strings.TrimSpace(os.Getenv("P3SUB_PUB_SUBSCRIBE_RATE_LIMIT")); raw != "" {
		value, err := strconv.Atoi(raw)
		if err != nil || value <= 0 {
			problems = append(problems, fmt.Sprintf("P3SUB_PUB_SUBSCRIBE_RATE_LIMIT must be a positive integer, got %q", raw))
		} else {
			cfg.SubscribeRateLimit = value
		}
	}
	if raw := strings.TrimSpace(os.Getenv("P3SUB_PUB_SUBSCRIBE_RATE_WINDOW_MS")); raw != "" {
		value, err := strconv.Atoi(raw)
		if err != nil || value <= 0 {
			problems = append(problems, fmt.Sprintf("P3SUB_PUB_SUBSCRIBE_RATE_WINDOW_MS must be a positive integer, got %q", raw))
		} else {
			cfg.SubscribeRateWindow = time.Duration(value) * time.Millisecond
		}
	}

	if len(problems) > 0 {
		return nil, fmt.Errorf("%s", strings.Join(problems, "; "))
	}
	return cfg, nil
}

// LoadSubscriber reads subscriber configuration from the environment,
// applying sane defaults and returning descriptive errors for invalid
// overrides.
func LoadSubscriber() (*SubscriberConfig, error) {
	logging, problems := loadLogging()
	cfg := &SubscriberConfig{
		ListenURL:         getString("P3SUB_SUB_LISTEN", DefaultSubscriberListenURL),
		ReceivedDirectory: getString("P3SUB_SUB_RECEIVED_DIR", DefaultReceivedDirectory),
		Diff:              false,
		Logging:           logging,
	}
	if raw := strings.TrimSpace(os.Getenv("P3SUB_SUB_DIFF")); raw != "" {
		value, err := strconv.ParseBool(raw)
		if err != nil {
			problems = append(problems, fmt.Sprintf("P3SUB_SUB_DIFF must be a boolean value, got %q", raw))
		} else {
			cfg.Diff = value
		}
	}
	if len(problems) > 0 {
		return nil, fmt.Errorf("%s", strings.Join(problems, "; "))
	}
	return cfg, nil
}

func loadLogging() (LoggingConfig, []string) {
	cfg := LoggingConfig{
		Level:      getString("P3SUB_LOG_LEVEL", DefaultLogLevel),
		Path:       getString("P3SUB_LOG_PATH", DefaultLogPath),
		MaxSizeMB:  DefaultLogMaxSizeMB,
		MaxBackups: DefaultLogMaxBackups,
		MaxAgeDays: DefaultLogMaxAgeDays,
		Compress:   DefaultLogCompress,
	}

	var problems []string

	if raw := strings.TrimSpace(os.Getenv("P3SUB_LOG_MAX_SIZE_MB")); raw != "" {
		value, err := strconv.Atoi(raw)
		if err != nil || value <= 0 {
			problems = append(problems, fmt.Sprintf("P3SUB_LOG_MAX_SIZE_MB must be a positive integer, got %q", raw))
		} else {
			cfg.MaxSizeMB = value
		}
	}

	if raw := strings.TrimSpace(os.Getenv("P3SUB_LOG_MAX_BACKUPS")); raw != "" {
		value, err := strconv.Atoi(raw)
		if err != nil || value < 0 {
			problems = append(problems, fmt.Sprintf("P3SUB_LOG_MAX_BACKUPS must be a non-negative integer, got %q", raw))
		} else {
			cfg.MaxBackups = value
		}
	}

	if raw := strings.TrimSpace(os.Getenv("P3SUB_LOG_MAX_AGE_DAYS")); raw != "" {
		value, err := strconv.Atoi(raw)
		if err != nil || value < 0 {
			problems = append(problems, fmt.Sprintf("P3SUB_LOG_MAX_AGE_DAYS must be a non-negative integer, got %q", raw))
		} else {
			cfg.MaxAgeDays = value
		}
	}

	if raw := strings.TrimSpace(os.Getenv("P3SUB_LOG_COMPRESS")); raw != "" {
		value, err := strconv.ParseBool(raw)
		if err != nil {
			problems = append(problems, fmt.Sprintf("P3SUB_LOG_COMPRESS must be a boolean value, got %q", raw))
		} else {
			cfg.Compress = value
		}
	}

	return cfg, problems
}

func getString(key, fallback string) string {
	if value := strings.TrimSpace(os.Getenv(key)); value != "" {
		return value
	}
	return fallback
}
