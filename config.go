package main

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/Seednode/chungsuc/games/feud"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

type Config struct {
	bind    string
	port    int
	prefix  string
	profile bool
	metrics bool
	tlsCert string
	tlsKey  string
	verbose bool
	version bool

	redisURL     string
	redisChannel string
	stateDir     string
	stateKey     string
	prefsKey     string

	celebrationThreshold int
	celebrationDuration  time.Duration

	log *logrus.Logger
}

func (c *Config) validate() error {
	if (c.tlsCert == "") != (c.tlsKey == "") {
		return errors.New("both --tls-cert and --tls-key must be provided together")
	}
	if c.port < 1 || c.port > 65535 {
		return fmt.Errorf("invalid port (must be between 1-65535 inclusive): %d", c.port)
	}
	if c.redisURL != "" && c.stateDir != "" {
		return errors.New("--redis-url and --state-dir cannot be used together")
	}
	if c.stateKey == "" || c.prefsKey == "" {
		return errors.New("--state-key and --prefs-key must not be empty")
	}
	if c.stateKey == c.prefsKey {
		return fmt.Errorf("--state-key and --prefs-key must differ: %q", c.stateKey)
	}
	if c.celebrationThreshold < 1 {
		return fmt.Errorf("invalid celebration threshold (must be positive): %d", c.celebrationThreshold)
	}
	if c.celebrationDuration <= 0 {
		return fmt.Errorf("invalid celebration duration (must be positive): %s", c.celebrationDuration)
	}
	return nil
}

func (c *Config) scheme() string {
	if c.tlsCert != "" && c.tlsKey != "" {
		return "https"
	}
	return "http"
}

func (c *Config) backend() string {
	switch {
	case c.redisURL != "":
		return "redis"
	case c.stateDir != "":
		return "file"
	default:
		return "memory"
	}
}

func newCmd(cfg *Config) *cobra.Command {
	v := viper.New()
	v.SetEnvPrefix("CHUNGSUC")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	cmd := &cobra.Command{
		Use:           "chungsuc",
		Short:         "Live scoreboard for a Chung Sức style party quiz, with a control panel and synced display pages.",
		Args:          cobra.ExactArgs(0),
		SilenceErrors: true,
		Version:       releaseVersion,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := cfg.validate(); err != nil {
				return err
			}
			return ServePage(cmd.Context(), cfg, args)
		},
	}

	fs := cmd.Flags()

	fs.SetNormalizeFunc(func(_ *pflag.FlagSet, name string) pflag.NormalizedName {
		return pflag.NormalizedName(strings.ReplaceAll(name, "_", "-"))
	})

	fs.StringVarP(&cfg.bind, "bind", "b", "127.0.0.1", "address to bind to (env: CHUNGSUC_BIND)")
	fs.IntVar(&cfg.celebrationThreshold, "celebration-threshold", feud.DefaultCelebrationThreshold, "score that triggers the win celebration (env: CHUNGSUC_CELEBRATION_THRESHOLD)")
	fs.DurationVar(&cfg.celebrationDuration, "celebration-duration", feud.DefaultCelebrationDuration, "time before the win celebration is dismissed (env: CHUNGSUC_CELEBRATION_DURATION)")
	fs.BoolVar(&cfg.metrics, "metrics", true, "serve prometheus metrics at /metrics (env: CHUNGSUC_METRICS)")
	fs.IntVarP(&cfg.port, "port", "p", 8080, "port to listen on (env: CHUNGSUC_PORT)")
	fs.StringVar(&cfg.prefix, "prefix", "", "path to prepend to all URLs, for use behind reverse proxy (env: CHUNGSUC_PREFIX)")
	fs.StringVar(&cfg.prefsKey, "prefs-key", feud.DefaultPreferencesKey, "storage key for control panel preferences (env: CHUNGSUC_PREFS_KEY)")
	fs.BoolVar(&cfg.profile, "profile", false, "register net/http/pprof handlers (env: CHUNGSUC_PROFILE)")
	fs.StringVar(&cfg.redisChannel, "redis-channel", "", "pub/sub channel for state changes (env: CHUNGSUC_REDIS_CHANNEL)")
	fs.StringVar(&cfg.redisURL, "redis-url", "", "persist and sync state through redis, e.g. redis://localhost:6379/0 (env: CHUNGSUC_REDIS_URL)")
	fs.StringVar(&cfg.stateDir, "state-dir", "", "persist state as json files in this directory (env: CHUNGSUC_STATE_DIR)")
	fs.StringVar(&cfg.stateKey, "state-key", feud.DefaultStateKey, "storage key for the game state (env: CHUNGSUC_STATE_KEY)")
	fs.StringVar(&cfg.tlsCert, "tls-cert", "", "path to tls certificate (env: CHUNGSUC_TLS_CERT)")
	fs.StringVar(&cfg.tlsKey, "tls-key", "", "path to tls keyfile (env: CHUNGSUC_TLS_KEY)")
	fs.BoolVarP(&cfg.verbose, "verbose", "v", false, "display additional output (env: CHUNGSUC_VERBOSE)")
	fs.BoolVarP(&cfg.version, "version", "V", false, "display version and exit (env: CHUNGSUC_VERSION)")

	fs.VisitAll(func(f *pflag.Flag) {
		_ = v.BindPFlag(f.Name, f)
		_ = v.BindEnv(f.Name)
		if !f.Changed && v.IsSet(f.Name) {
			_ = fs.Set(f.Name, fmt.Sprintf("%v", v.Get(f.Name)))
		}
	})

	cmd.CompletionOptions.HiddenDefaultCmd = true
	cmd.SetHelpCommand(&cobra.Command{Hidden: true})
	cmd.SetVersionTemplate("chungsuc v{{.Version}}\n")

	cmd.SilenceErrors = true
	cmd.SilenceUsage = true

	return cmd
}
