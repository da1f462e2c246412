package cfg

import (
	"flag"
	"math"
	"strings"
	"testing"
)

// validBase returns a Config with all required fields set to valid values.
func validBase() Config {
	return Config{
		DrainSeconds:          60,
		ShutdownBudgetSeconds: 90,
		APIPort:               8080,
		RunIntervalSeconds:    30,
		BucketsPath:           "/etc/threatwatch/critical_assets.json",
		DatasetPath:           "/etc/threatwatch/threats.json",
		SlackToken:            "xoxb-test",
		SlackModeratorChannel: "C-MOD",
		SlackCommunityChannel: "C-COMMUNITY",
	}
}

func TestRegisterFlags_Defaults(t *testing.T) {
	t.Parallel()

	var c Config
	fs := flag.NewFlagSet("test", flag.ContinueOnError)
	c.RegisterFlags(fs)

	if err := fs.Parse(nil); err != nil {
		t.Fatalf("parse empty args: %v", err)
	}

	if c.DrainSeconds != 60 {
		t.Errorf("DrainSeconds = %d, want 60", c.DrainSeconds)
	}
	if c.ShutdownBudgetSeconds != 90 {
		t.Errorf("ShutdownBudgetSeconds = %d, want 90", c.ShutdownBudgetSeconds)
	}
	if c.APIPort != 8080 {
		t.Errorf("APIPort = %d, want 8080", c.APIPort)
	}
	if c.RunIntervalSeconds != 30 {
		t.Errorf("RunIntervalSeconds = %d, want 30", c.RunIntervalSeconds)
	}
	if c.DatabaseURL != "" {
		t.Errorf("DatabaseURL = %q, want empty (in-memory store)", c.DatabaseURL)
	}
}

func TestRegisterFlags_Override(t *testing.T) {
	t.Parallel()

	var c Config
	fs := flag.NewFlagSet("test", flag.ContinueOnError)
	c.RegisterFlags(fs)

	args := []string{
		"-drain-seconds", "30",
		"-shutdown-budget-seconds", "120",
		"-http-port", "9090",
		"-run-interval-seconds", "300",
		"-buckets-path", "/data/buckets.json",
		"-dataset-path", "/data/threats.json",
		"-slack-token", "xoxb-override",
		"-slack-moderator-channel", "C1",
		"-slack-community-channel", "C2",
	}
	if err := fs.Parse(args); err != nil {
		t.Fatalf("parse args: %v", err)
	}

	if c.DrainSeconds != 30 {
		t.Errorf("DrainSeconds = %d, want 30", c.DrainSeconds)
	}
	if c.ShutdownBudgetSeconds != 120 {
		t.Errorf("ShutdownBudgetSeconds = %d, want 120", c.ShutdownBudgetSeconds)
	}
	if c.APIPort != 9090 {
		t.Errorf("APIPort = %d, want 9090", c.APIPort)
	}
	if c.RunIntervalSeconds != 300 {
		t.Errorf("RunIntervalSeconds = %d, want 300", c.RunIntervalSeconds)
	}
	if c.BucketsPath != "/data/buckets.json" {
		t.Errorf("BucketsPath = %q, want /data/buckets.json", c.BucketsPath)
	}
	if c.SlackToken != "xoxb-override" {
		t.Errorf("SlackToken = %q, want xoxb-override", c.SlackToken)
	}
}

func TestValidate(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name      string
		cfg       Config
		wantErr   bool
		errSubstr []string // substrings that must appear in error message
	}{
		{
			name:    "defaults are valid",
			cfg:     validBase(),
			wantErr: false,
		},
		{
			name: "minimum valid values",
			cfg: Config{
				DrainSeconds: 1, ShutdownBudgetSeconds: 2, APIPort: 1, RunIntervalSeconds: 1,
				BucketsPath: "b", DatasetPath: "d",
				SlackToken: "t", SlackModeratorChannel: "m", SlackCommunityChannel: "c",
			},
			wantErr: false,
		},
		{
			name: "maximum valid values",
			cfg: Config{
				DrainSeconds: 299, ShutdownBudgetSeconds: 300, APIPort: 65535, RunIntervalSeconds: 3600,
				BucketsPath: "b", DatasetPath: "d",
				SlackToken: "t", SlackModeratorChannel: "m", SlackCommunityChannel: "c",
			},
			wantErr: false,
		},
		// DrainSeconds boundaries
		{
			name:      "drain zero",
			cfg:       Config{DrainSeconds: 0, ShutdownBudgetSeconds: 90, APIPort: 8080, RunIntervalSeconds: 30},
			wantErr:   true,
			errSubstr: []string{"DRAIN_SECONDS"},
		},
		{
			name:      "drain negative",
			cfg:       Config{DrainSeconds: -1, ShutdownBudgetSeconds: 90, APIPort: 8080, RunIntervalSeconds: 30},
			wantErr:   true,
			errSubstr: []string{"DRAIN_SECONDS"},
		},
		{
			name:      "drain above max",
			cfg:       Config{DrainSeconds: 301, ShutdownBudgetSeconds: 302, APIPort: 8080, RunIntervalSeconds: 30},
			wantErr:   true,
			errSubstr: []string{"DRAIN_SECONDS"},
		},
		{
			name: "drain at upper bound",
			cfg: func() Config {
				c := validBase()
				c.DrainSeconds = 300
				c.ShutdownBudgetSeconds = 300
				return c
			}(),
			wantErr: true, // budget must be greater than drain
		},
		// ShutdownBudgetSeconds boundaries
		{
			name:      "budget zero",
			cfg:       Config{DrainSeconds: 60, ShutdownBudgetSeconds: 0, APIPort: 8080, RunIntervalSeconds: 30},
			wantErr:   true,
			errSubstr: []string{"SHUTDOWN_BUDGET_SECONDS"},
		},
		{
			name:      "budget above max",
			cfg:       Config{DrainSeconds: 60, ShutdownBudgetSeconds: 301, APIPort: 8080, RunIntervalSeconds: 30},
			wantErr:   true,
			errSubstr: []string{"SHUTDOWN_BUDGET_SECONDS"},
		},
		// Cross-field: budget vs drain
		{
			name:      "budget equals drain",
			cfg:       Config{DrainSeconds: 60, ShutdownBudgetSeconds: 60, APIPort: 8080, RunIntervalSeconds: 30},
			wantErr:   true,
			errSubstr: []string{"must be greater than"},
		},
		{
			name:      "budget less than drain",
			cfg:       Config{DrainSeconds: 60, ShutdownBudgetSeconds: 30, APIPort: 8080, RunIntervalSeconds: 30},
			wantErr:   true,
			errSubstr: []string{"must be greater than"},
		},
		{
			name: "budget is drain plus one",
			cfg: func() Config {
				c := validBase()
				c.DrainSeconds = 60
				c.ShutdownBudgetSeconds = 61
				return c
			}(),
			wantErr: false,
		},
		// APIPort boundaries
		{
			name:      "port zero",
			cfg:       Config{DrainSeconds: 60, ShutdownBudgetSeconds: 90, APIPort: 0, RunIntervalSeconds: 30},
			wantErr:   true,
			errSubstr: []string{"HTTP_PORT"},
		},
		{
			name:      "port above max",
			cfg:       Config{DrainSeconds: 60, ShutdownBudgetSeconds: 90, APIPort: 65536, RunIntervalSeconds: 30},
			wantErr:   true,
			errSubstr: []string{"HTTP_PORT"},
		},
		// RunIntervalSeconds boundaries
		{
			name:      "interval zero",
			cfg:       Config{DrainSeconds: 60, ShutdownBudgetSeconds: 90, APIPort: 8080, RunIntervalSeconds: 0},
			wantErr:   true,
			errSubstr: []string{"RUN_INTERVAL_SECONDS"},
		},
		{
			name:      "interval above max",
			cfg:       Config{DrainSeconds: 60, ShutdownBudgetSeconds: 90, APIPort: 8080, RunIntervalSeconds: 3601},
			wantErr:   true,
			errSubstr: []string{"RUN_INTERVAL_SECONDS"},
		},
		// Required string fields
		{
			name: "empty buckets path",
			cfg: func() Config {
				c := validBase()
				c.BucketsPath = ""
				return c
			}(),
			wantErr:   true,
			errSubstr: []string{"BUCKETS_PATH"},
		},
		{
			name: "empty dataset path",
			cfg: func() Config {
				c := validBase()
				c.DatasetPath = ""
				return c
			}(),
			wantErr:   true,
			errSubstr: []string{"DATASET_PATH"},
		},
		{
			name: "empty slack token",
			cfg: func() Config {
				c := validBase()
				c.SlackToken = ""
				return c
			}(),
			wantErr:   true,
			errSubstr: []string{"SLACK_TOKEN"},
		},
		{
			name: "empty moderator channel",
			cfg: func() Config {
				c := validBase()
				c.SlackModeratorChannel = ""
				return c
			}(),
			wantErr:   true,
			errSubstr: []string{"SLACK_MODERATOR_CHANNEL"},
		},
		{
			name: "empty community channel",
			cfg: func() Config {
				c := validBase()
				c.SlackCommunityChannel = ""
				return c
			}(),
			wantErr:   true,
			errSubstr: []string{"SLACK_COMMUNITY_CHANNEL"},
		},
		// Optional fields stay optional
		{
			name: "empty database url and api token are fine",
			cfg: func() Config {
				c := validBase()
				c.DatabaseURL = ""
				c.APIToken = ""
				return c
			}(),
			wantErr: false,
		},
		// Error accumulation: all fields invalid
		{
			name:    "all fields invalid",
			cfg:     Config{DrainSeconds: 0, ShutdownBudgetSeconds: 0, APIPort: 0, RunIntervalSeconds: 0},
			wantErr: true,
			errSubstr: []string{
				"DRAIN_SECONDS", "SHUTDOWN_BUDGET_SECONDS", "HTTP_PORT", "RUN_INTERVAL_SECONDS",
				"BUCKETS_PATH", "DATASET_PATH", "SLACK_TOKEN", "SLACK_MODERATOR_CHANNEL", "SLACK_COMMUNITY_CHANNEL",
			},
		},
		// Extreme values
		{
			name:      "extreme negative values",
			cfg:       Config{DrainSeconds: math.MinInt32, ShutdownBudgetSeconds: math.MinInt32, APIPort: math.MinInt32, RunIntervalSeconds: math.MinInt32},
			wantErr:   true,
			errSubstr: []string{"DRAIN_SECONDS", "SHUTDOWN_BUDGET_SECONDS", "HTTP_PORT", "RUN_INTERVAL_SECONDS"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			err := tt.cfg.Validate()
			if (err != nil) != tt.wantErr {
				t.Fatalf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
			if err != nil {
				errMsg := err.Error()
				for _, sub := range tt.errSubstr {
					if !strings.Contains(errMsg, sub) {
						t.Errorf("error %q does not contain %q", errMsg, sub)
					}
				}
			}
		})
	}
}

func FuzzValidate(f *testing.F) {
	// Seeds: defaults, boundaries, extremes
	seeds := []struct {
		drain, budget, port, interval         int
		buckets, dataset, token, modCh, comCh string
	}{
		{60, 90, 8080, 30, "/b.json", "/d.json", "xoxb", "C1", "C2"},
		{1, 2, 1, 1, "b", "d", "t", "m", "c"},
		{299, 300, 65535, 3600, "b", "d", "t", "m", "c"},
		{0, 0, 0, 0, "", "", "", "", ""},
		{-1, -1, -1, -1, "", "", "", "", ""},
		{300, 300, 65535, 3600, "b", "d", "t", "m", "c"},
		{301, 302, 65536, 3601, "", "", "", "", ""},
		{150, 100, 8080, 30, "b", "d", "t", "m", "c"},
		{math.MinInt32, math.MinInt32, math.MinInt32, math.MinInt32, "", "", "", "", ""},
		{math.MaxInt32, math.MaxInt32, math.MaxInt32, math.MaxInt32, "", "", "", "", ""},
	}
	for _, s := range seeds {
		f.Add(s.drain, s.budget, s.port, s.interval, s.buckets, s.dataset, s.token, s.modCh, s.comCh)
	}

	f.Fuzz(func(t *testing.T, drain, budget, port, interval int, buckets, dataset, token, modCh, comCh string) {
		c := Config{
			DrainSeconds:          drain,
			ShutdownBudgetSeconds: budget,
			APIPort:               port,
			RunIntervalSeconds:    interval,
			BucketsPath:           buckets,
			DatasetPath:           dataset,
			SlackToken:            token,
			SlackModeratorChannel: modCh,
			SlackCommunityChannel: comCh,
		}
		err := c.Validate()

		drainOK := drain >= 1 && drain <= 300
		budgetOK := budget >= 1 && budget <= 300
		portOK := port >= 1 && port <= 65535
		intervalOK := interval >= 1 && interval <= 3600
		crossOK := budget > drain
		bucketsOK := buckets != ""
		datasetOK := dataset != ""
		tokenOK := token != ""
		modOK := modCh != ""
		comOK := comCh != ""

		allValid := drainOK && budgetOK && portOK && intervalOK && crossOK &&
			bucketsOK && datasetOK && tokenOK && modOK && comOK

		if allValid && err != nil {
			t.Errorf("expected no error for valid config %+v, got: %v", c, err)
		}
		if !allValid && err == nil {
			t.Errorf("expected error for invalid config %+v, got nil", c)
		}
	})
}
