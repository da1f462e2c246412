// Package cfg holds the service-specific configuration, registered as flags
// and fillable from the environment.
package cfg

import (
	"errors"
	"flag"
	"fmt"
)

// Config adds service-specific configuration fields to the
// common cfg.Registerable and cfg.Validatable interfaces
type Config struct {
	DrainSeconds          int
	ShutdownBudgetSeconds int
	APIPort               int
	RunIntervalSeconds    int
	BucketsPath           string
	DatasetPath           string
	DatabaseURL           string
	SlackToken            string
	SlackModeratorChannel string
	SlackCommunityChannel string
	APIToken              string
}

// RegisterFlags binds Config fields to the given FlagSet with defaults inline
func (c *Config) RegisterFlags(fs *flag.FlagSet) {
	fs.IntVar(&c.DrainSeconds, "drain-seconds", 60, "seconds to wait for in-flight requests to drain before shutdown (1..300)")
	fs.IntVar(&c.ShutdownBudgetSeconds, "shutdown-budget-seconds", 90, "total seconds for component shutdown after drain (1..300)")
	fs.IntVar(&c.APIPort, "http-port", 8080, "API listen TCP port (1..65535)")
	fs.IntVar(&c.RunIntervalSeconds, "run-interval-seconds", 30, "seconds between triage passes (1..3600)")
	fs.StringVar(&c.BucketsPath, "buckets-path", "", "path to the asset-category bucket config (JSON)")
	fs.StringVar(&c.DatasetPath, "dataset-path", "", "path to the threat dataset (JSON)")
	fs.StringVar(&c.DatabaseURL, "database-url", "", "PostgreSQL connection URL (empty = in-memory store)")
	fs.StringVar(&c.SlackToken, "slack-token", "", "Slack bot token for moderation and publishing")
	fs.StringVar(&c.SlackModeratorChannel, "slack-moderator-channel", "", "Slack channel ID receiving threats for review")
	fs.StringVar(&c.SlackCommunityChannel, "slack-community-channel", "", "Slack channel ID receiving published threats")
	fs.StringVar(&c.APIToken, "api-token", "", "bearer token guarding the dashboard API (empty = open access)")
}

// Validate checks all configuration fields for correctness.
// It returns an error if any field is invalid, or nil if all fields are valid.
func (c *Config) Validate() error {
	var errs []error

	// Drain and shutdown budgets
	if c.DrainSeconds <= 0 || c.DrainSeconds > 300 {
		errs = append(errs, fmt.Errorf("invalid DRAIN_SECONDS %d (must be 1..300)", c.DrainSeconds))
	}
	if c.ShutdownBudgetSeconds <= 0 || c.ShutdownBudgetSeconds > 300 {
		errs = append(errs, fmt.Errorf("invalid SHUTDOWN_BUDGET_SECONDS %d (must be 1..300)", c.ShutdownBudgetSeconds))
	}

	// Shutdown budget must be greater than drain time
	if c.ShutdownBudgetSeconds <= c.DrainSeconds {
		errs = append(errs, fmt.Errorf("SHUTDOWN_BUDGET_SECONDS %d must be greater than DRAIN_SECONDS %d", c.ShutdownBudgetSeconds, c.DrainSeconds))
	}

	// API port must be valid TCP port number
	if c.APIPort <= 0 || c.APIPort > 65535 {
		errs = append(errs, fmt.Errorf("invalid HTTP_PORT %d (must be 1..65535)", c.APIPort))
	}

	if c.RunIntervalSeconds <= 0 || c.RunIntervalSeconds > 3600 {
		errs = append(errs, fmt.Errorf("invalid RUN_INTERVAL_SECONDS %d (must be 1..3600)", c.RunIntervalSeconds))
	}

	// Triage cannot start without its two input files
	if c.BucketsPath == "" {
		errs = append(errs, errors.New("BUCKETS_PATH is required"))
	}
	if c.DatasetPath == "" {
		errs = append(errs, errors.New("DATASET_PATH is required"))
	}

	// Slack is the moderation channel; all three settings travel together
	if c.SlackToken == "" {
		errs = append(errs, errors.New("SLACK_TOKEN is required"))
	}
	if c.SlackModeratorChannel == "" {
		errs = append(errs, errors.New("SLACK_MODERATOR_CHANNEL is required"))
	}
	if c.SlackCommunityChannel == "" {
		errs = append(errs, errors.New("SLACK_COMMUNITY_CHANNEL is required"))
	}

	if len(errs) > 0 {
		return errors.Join(errs...)
	}
	return nil
}
